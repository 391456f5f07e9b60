//go:build windows

package config

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var broadPrincipals = []string{"everyone", "authenticated users", "builtin\\users"}

// checkFilePermissions returns a warning when icacls lists a broad group on
// a file holding credentials.
func checkFilePermissions(path string) string {
	if _, err := os.Stat(path); err != nil {
		return ""
	}

	output, err := exec.Command("icacls", path).Output()
	if err != nil {
		return ""
	}

	acl := strings.ToLower(string(output))
	for _, p := range broadPrincipals {
		if strings.Contains(acl, p) {
			return fmt.Sprintf("%s may be readable by %s; secure it with: icacls \"%s\" /inheritance:r /grant:r \"%%USERNAME%%:F\"",
				path, p, path)
		}
	}
	return ""
}
