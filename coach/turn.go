package coach

import (
	"time"

	"github.com/rs/xid"
)

// Message kinds sent by the service in the "tipo" field.
const (
	KindGreeting     = "SAUDACAO"
	KindInstruction  = "INSTRUCAO"
	KindWords        = "PALAVRAS"
	KindAnalysis     = "FEEDBACK_ANALISE"
	KindFinalSummary = "RESUMO_FINAL"
	KindAwaiting     = "AGUARDANDO_AUDIO"
	KindError        = "ERRO"

	// Local kinds, never sent by the service.
	KindUserAudio   = "AUDIO_USUARIO"
	KindClientError = "ERRO_CLIENTE"
)

// TurnMeta is carried by every transcript entry.
type TurnMeta struct {
	ID          xid.ID
	SessionID   string
	Kind        string
	Timestamp   time.Time
	Cycle       int
	TotalCycles int
}

func (m TurnMeta) Meta() TurnMeta { return m }

func newMeta(sessionID, kind string) TurnMeta {
	return TurnMeta{ID: xid.New(), SessionID: sessionID, Kind: kind, Timestamp: time.Now()}
}

// Turn is one transcript entry. The set of implementations is closed:
// PromptTurn, UserAudioTurn, AnalysisTurn, TerminalTurn and ErrorTurn.
type Turn interface {
	Meta() TurnMeta
	Text() string
	isTurn()
}

// PromptTurn is an instruction from the service, optionally with words to read.
type PromptTurn struct {
	TurnMeta
	Message string
	Words   []string
}

// UserAudioTurn marks one submitted recording. The audio itself is not kept.
type UserAudioTurn struct {
	TurnMeta
	Message  string
	Duration time.Duration
}

type AnalysisTurn struct {
	TurnMeta
	Message  string
	Analysis Analysis
}

// TerminalTurn ends the session and carries its result.
type TerminalTurn struct {
	TurnMeta
	Message  string
	Result   SessionResult
	Analysis *Analysis
}

// ErrorTurn records a failure that did not end the session.
type ErrorTurn struct {
	TurnMeta
	Message string
	Err     error
}

func (PromptTurn) isTurn()    {}
func (UserAudioTurn) isTurn() {}
func (AnalysisTurn) isTurn()  {}
func (TerminalTurn) isTurn()  {}
func (ErrorTurn) isTurn()     {}

func (t PromptTurn) Text() string    { return t.Message }
func (t UserAudioTurn) Text() string { return t.Message }
func (t AnalysisTurn) Text() string  { return t.Message }
func (t TerminalTurn) Text() string  { return t.Message }
func (t ErrorTurn) Text() string     { return t.Message }

// NewUserAudioTurn builds the placeholder appended when a recording is submitted.
func NewUserAudioTurn(sessionID string, d time.Duration) UserAudioTurn {
	return UserAudioTurn{
		TurnMeta: newMeta(sessionID, KindUserAudio),
		Message:  "Áudio enviado",
		Duration: d,
	}
}

// NewErrorTurn wraps a local or remote failure as a transcript entry.
func NewErrorTurn(sessionID string, err error) ErrorTurn {
	msg := "erro desconhecido"
	if err != nil {
		msg = err.Error()
	}
	return ErrorTurn{TurnMeta: newMeta(sessionID, KindClientError), Message: msg, Err: err}
}

// WordResult scores one expected word.
type WordResult struct {
	Expected    string
	Transcribed string
	Correct     bool
	Similarity  *float64
	Feedback    string
}

// Analysis is the scoring of one submitted attempt. Score keeps the
// server's fractional value and is only meaningful when HasScore is set.
type Analysis struct {
	Expected     []string
	Transcript   string
	Results      []WordResult
	Score        float64
	HasScore     bool
	TotalCorrect *int
	TotalWords   *int
	Percent      *float64
	Feedback     string
	AnalyzedAt   time.Time
}

// Correct counts results marked as hits.
func (a Analysis) Correct() int {
	n := 0
	for _, r := range a.Results {
		if r.Correct {
			n++
		}
	}
	return n
}

// SessionResult is the final summary of a finished session.
type SessionResult struct {
	TotalCorrect    int
	TotalWords      int
	Score           float64
	Percent         *float64
	Feedback        string
	Strengths       []string
	Improvements    []string
	DurationMinutes *int
}

// Clone returns a copy that shares no slices with r.
func (r SessionResult) Clone() SessionResult {
	r.Strengths = append([]string(nil), r.Strengths...)
	r.Improvements = append([]string(nil), r.Improvements...)
	return r
}
