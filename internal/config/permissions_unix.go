//go:build unix

package config

import (
	"fmt"
	"os"
)

// checkFilePermissions returns a warning when a file holding credentials is
// readable by group or others.
func checkFilePermissions(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return ""
	}

	mode := info.Mode().Perm()
	if mode&0077 == 0 {
		return ""
	}
	return fmt.Sprintf("%s has insecure permissions (%04o); other users may read the database password. Run: chmod 600 %s",
		path, mode, path)
}
