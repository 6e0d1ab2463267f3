// Package clipboard copies exported reports to the system clipboard.
package clipboard

import (
	"errors"

	cb "github.com/atotto/clipboard"
)

var ErrUnsupported = errors.New("no clipboard utility found (install xclip, xsel or wl-clipboard)")

// Available reports whether a clipboard backend exists on this system.
func Available() bool { return !cb.Unsupported }

func Copy(text string) error {
	if !Available() {
		return ErrUnsupported
	}
	return cb.WriteAll(text)
}

func Read() (string, error) {
	if !Available() {
		return "", ErrUnsupported
	}
	return cb.ReadAll()
}
