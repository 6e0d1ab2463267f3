package log

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// SubmitStats describes one audio upload and its network timings.
type SubmitStats struct {
	SessionID  string
	AudioS     float64
	SizeKB     float64
	SetupMs    float64
	UploadMs   float64
	TTFBMs     float64
	TotalMs    float64
	ConnReused bool
	TLSProto   string
	Turns      int
	Finished   bool
}

func SubmitMetrics(s SubmitStats) {
	conn := "new"
	if s.ConnReused {
		conn = "reused"
	}
	ev := event(zerolog.InfoLevel).Str("session", s.SessionID).Str("conn", conn)
	if s.TLSProto != "" {
		ev = ev.Str("tls_proto", s.TLSProto)
	}
	ev.Float64("audio_s", s.AudioS).
		Float64("size_kb", s.SizeKB).
		Float64("setup_ms", s.SetupMs).
		Float64("upload_ms", s.UploadMs).
		Float64("ttfb_ms", s.TTFBMs).
		Float64("total_ms", s.TotalMs).
		Int("turns", s.Turns).
		Bool("finished", s.Finished).
		Msg("submit")
}

func SessionStart(difficulty string) {
	event(zerolog.InfoLevel).Str("difficulty", difficulty).Msg("session_start")
}

func SessionActive(sessionID string, turns int) {
	event(zerolog.InfoLevel).Str("session", sessionID).Int("turns", turns).Msg("session_active")
}

func SessionFinished(sessionID string, correct, total int, score float64) {
	event(zerolog.InfoLevel).
		Str("session", sessionID).
		Int("correct", correct).
		Int("total", total).
		Float64("score", score).
		Msg("session_finished")
}

// SessionEnd records a session leaving memory with count transcript turns.
func SessionEnd(count int) {
	event(zerolog.InfoLevel).Int("count", count).Msg("session_end")
}

// TranscriptLine appends one turn to transcript_log.txt as tab-separated
// time, pid, session, kind and single-line text.
func TranscriptLine(sessionID, kind, text string) {
	if !ready.Load() {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	if transcript == nil {
		return
	}
	text = strings.ReplaceAll(text, "\n", " ")
	fmt.Fprintf(transcript, "%s\t[%d]\t%s\t%s\t%s\n", time.Now().Format(timeLayout), os.Getpid(), sessionID, kind, text)
}
