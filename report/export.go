package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// Exporter writes a rendered view somewhere and returns where it went.
type Exporter interface {
	Export(view, filename string) (string, error)
}

// FileExporter writes views as text files under Dir.
type FileExporter struct {
	Dir string
}

func (e FileExporter) Export(view, filename string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid export filename %q", filename)
	}
	dir := e.Dir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(view), 0644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Filename names an export after the user and the moment it was made:
// sessao-<name>-<unix ms>.txt.
func Filename(name string, now time.Time) string {
	slug := Slug(name)
	ms := strconv.FormatInt(now.UnixMilli(), 10)
	if slug == "" {
		return "sessao-" + ms + ".txt"
	}
	return "sessao-" + slug + "-" + ms + ".txt"
}

// Slug lowercases name and keeps letters and digits, joining words with '-'.
func Slug(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			dash = false
			b.WriteRune(r)
		default:
			dash = true
		}
	}
	return b.String()
}
