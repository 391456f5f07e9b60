package orchestrator

import (
	"context"
	"time"

	"github.com/johndauphine/profile-ingest/internal/stats"
)

// HealthCheckResult reports connectivity to the target database.
type HealthCheckResult struct {
	Timestamp  string `json:"timestamp"`
	DBType     string `json:"db_type"`
	Target     string `json:"target"`
	Connected  bool   `json:"connected"`
	LatencyMs  int64  `json:"latency_ms"`
	TableCount int    `json:"table_count"`
	Pool       string `json:"pool,omitempty"`
	Error      string `json:"error,omitempty"`
	Healthy    bool   `json:"healthy"`
}

// HealthCheck pings the database and counts the tables the schema knows.
func (o *Orchestrator) HealthCheck(ctx context.Context) (*HealthCheckResult, error) {
	result := &HealthCheckResult{
		Timestamp:  time.Now().Format(time.RFC3339),
		DBType:     o.config.Database.Type,
		Target:     o.target(),
		TableCount: len(o.schema),
	}

	const checkTimeout = 30 * time.Second
	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	start := time.Now()
	if o.db == nil {
		result.Error = "no database connection (offline)"
	} else if err := o.db.PingContext(checkCtx); err != nil {
		result.Error = err.Error()
	} else {
		result.Connected = true
		result.Pool = stats.FromDB(o.driver.Name(), o.db.Stats()).String()
	}
	result.LatencyMs = time.Since(start).Milliseconds()

	result.Healthy = result.Connected && result.TableCount > 0
	return result, nil
}
