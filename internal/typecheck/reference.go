package typecheck

import "regexp"

// referencePattern matches deferred references: a session variable ending
// in "id" (@rid, @clid) or a call to a *_id lookup function whose argument
// list holds no statement separator (cluster_id('Lenox', 1)).
var referencePattern = regexp.MustCompile(`^(?:@\w+id|\w+_id\([^;]*\))$`)

// IsReference reports whether s is SQL to be resolved by the database at
// execution time rather than literal data.
func IsReference(s string) bool {
	return referencePattern.MatchString(s)
}
