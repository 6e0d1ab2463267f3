//go:build !windows

package log

import (
	"os"
	"path/filepath"
	"runtime"
)

// defaultDir is ~/Library/Logs/fono on macOS and $XDG_STATE_HOME/fono elsewhere.
func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "Logs", "fono"), nil
	}
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "fono"), nil
}
