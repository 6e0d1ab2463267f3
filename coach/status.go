package coach

import (
	"encoding/json"
	"time"
)

// Status is the server's view of one session, as returned by the state and
// cancel endpoints. Unlike batch items it may report a finished session
// without a summary.
type Status struct {
	SessionID string
	Kind      string
	Message   string
	Words     []string
	Finished  bool
	Timestamp time.Time
}

// Awaiting reports whether the server waits for a recording.
func (s Status) Awaiting() bool { return s.Kind == KindAwaiting }

// FinishedTurn closes a session the server reports as finished without a
// summary. The result is empty apart from the server's message.
func (s Status) FinishedTurn() TerminalTurn {
	return TerminalTurn{
		TurnMeta: newMeta(s.SessionID, KindFinalSummary),
		Message:  s.Message,
		Result:   SessionResult{Feedback: s.Message},
	}
}

func decodeStatus(op string, body []byte) (Status, error) {
	var w wireTurn
	if !isObject(body) {
		return Status{}, malformed(op, "expected a JSON object")
	}
	if err := json.Unmarshal(body, &w); err != nil {
		pe := malformed(op, "%v", err)
		pe.Err = err
		return Status{}, pe
	}
	return Status{
		SessionID: parseID(w.SessaoID),
		Kind:      w.Tipo,
		Message:   w.Mensagem,
		Words:     w.Palavras,
		Finished:  w.SessaoFinalizada != nil && *w.SessaoFinalizada,
		Timestamp: parseTime(w.Timestamp),
	}, nil
}
