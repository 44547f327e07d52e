package ingest

import (
	"os"
	"strings"
)

// IsTermux reports whether the process runs inside Termux on Android.
func IsTermux() bool {
	if os.Getenv("TERMUX_VERSION") != "" {
		return true
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	return strings.Contains(home, "com.termux")
}
