package orchestrator

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/zeebo/xxh3"
	"golang.org/x/sync/errgroup"

	"github.com/johndauphine/profile-ingest/internal/logging"
	"github.com/johndauphine/profile-ingest/internal/scalar"
)

// document is one parsed input file.
type document struct {
	Path string
	Hash string
	Doc  scalar.Value
	Err  error // read or parse failure, reported per file
}

// LocateInputs expands paths into the ordered list of input files.
// Directories are walked recursively and their files filtered by pattern,
// which matches the base name. Files named explicitly are always included.
// Duplicates are dropped, keeping the first occurrence.
func LocateInputs(paths []string, pattern string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("locating input: %w", err)
		}
		if !info.IsDir() {
			add(filepath.Clean(p))
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			ok, err := filepath.Match(pattern, d.Name())
			if err != nil {
				return err
			}
			if ok {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking %s: %w", p, err)
		}
		sort.Strings(found)
		for _, f := range found {
			add(f)
		}
	}
	return files, nil
}

// hashContent returns the ledger key for file content.
func hashContent(data []byte) string {
	return strconv.FormatUint(xxh3.Hash(data), 16)
}

// parseAll reads, hashes and decodes files with at most workers goroutines.
// Results keep the input order. Per-file failures are stored on the
// document; only cancellation fails the call.
func parseAll(ctx context.Context, files []string, workers int) ([]document, error) {
	docs := make([]document, len(files))
	if workers < 1 {
		workers = 1
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, path := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			docs[i] = parseFile(path)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return docs, nil
}

func parseFile(path string) document {
	d := document{Path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		d.Err = fmt.Errorf("reading input: %w", err)
		return d
	}
	d.Hash = hashContent(data)
	d.Doc, err = scalar.Decode(data)
	if err != nil {
		d.Err = fmt.Errorf("%s: %w", path, err)
		return d
	}
	logging.Debug("parsed %s (%d bytes, hash %s)", path, len(data), d.Hash)
	return d
}
