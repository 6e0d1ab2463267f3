// Package log writes fono's diagnostic log and the per-session transcript.
// Every call is a no-op until Init succeeds, so packages log freely in tests.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

const (
	diagFileName       = "diagnostics_log.txt"
	transcriptFileName = "transcript_log.txt"

	// EnvLogPath overrides the default log directory.
	EnvLogPath = "FONO_LOG_PATH"

	timeLayout = "2006-01-02 15:04:05"
)

var (
	mu         sync.Mutex
	ready      atomic.Bool
	diag       zerolog.Logger
	diagFile   *os.File
	transcript *os.File
	dir        string
)

// ResolveDir picks the log directory: the flag, then FONO_LOG_PATH, then
// the platform default. Relative paths resolve against the working dir.
func ResolveDir(flagPath string) (string, error) {
	for _, p := range []string{flagPath, os.Getenv(EnvLogPath)} {
		if p != "" {
			return filepath.Abs(p)
		}
	}
	return defaultDir()
}

func SetDir(d string) { dir = d }

func Dir() string { return dir }

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}
	return nil
}

func openAppend(name string) (*os.File, error) {
	return os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
}

func Init() error {
	mu.Lock()
	defer mu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	df, err := openAppend(diagFileName)
	if err != nil {
		return err
	}
	tf, err := openAppend(transcriptFileName)
	if err != nil {
		df.Close()
		return err
	}

	diagFile, transcript = df, tf
	out := zerolog.ConsoleWriter{Out: df, TimeFormat: timeLayout, NoColor: true}
	diag = zerolog.New(out).With().Timestamp().Int("pid", os.Getpid()).Logger()
	ready.Store(true)
	return nil
}

func Close() {
	mu.Lock()
	defer mu.Unlock()
	ready.Store(false)
	for _, f := range []**os.File{&diagFile, &transcript} {
		if *f != nil {
			(*f).Close()
			*f = nil
		}
	}
}

// event returns nil before Init; zerolog treats a nil event as a no-op.
func event(level zerolog.Level) *zerolog.Event {
	if !ready.Load() {
		return nil
	}
	return diag.WithLevel(level)
}

func Info(msg string)                   { event(zerolog.InfoLevel).Msg(msg) }
func Infof(format string, args ...any)  { event(zerolog.InfoLevel).Msgf(format, args...) }
func Warn(msg string)                   { event(zerolog.WarnLevel).Msg(msg) }
func Warnf(format string, args ...any)  { event(zerolog.WarnLevel).Msgf(format, args...) }
func Error(msg string)                  { event(zerolog.ErrorLevel).Msg(msg) }
func Errorf(format string, args ...any) { event(zerolog.ErrorLevel).Msgf(format, args...) }
