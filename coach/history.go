package coach

import (
	"encoding/json"
	"time"
)

// Session statuses reported in history entries.
const (
	StatusStarted    = "INICIADA"
	StatusAwaiting   = "AGUARDANDO_AUDIO"
	StatusProcessing = "PROCESSANDO"
	StatusFinished   = "FINALIZADA"
	StatusCanceled   = "CANCELADA"
)

// HistoryEntry is one past session of a client.
type HistoryEntry struct {
	ID           string
	StartedAt    time.Time
	EndedAt      time.Time
	Score        *float64
	TotalCorrect *int
	TotalWords   *int
	Difficulty   Difficulty
	Status       string
	Feedback     string
	Details      []WordResult
}

func (e HistoryEntry) Finished() bool { return e.Status == StatusFinished }

type wireHistory struct {
	ID             json.RawMessage `json:"id"`
	DataInicio     json.RawMessage `json:"dataInicio"`
	DataFim        json.RawMessage `json:"dataFim"`
	PontuacaoGeral *float64        `json:"pontuacaoGeral"`
	TotalAcertos   *int            `json:"totalAcertos"`
	TotalPalavras  *int            `json:"totalPalavras"`
	Dificuldade    string          `json:"dificuldade"`
	Status         string          `json:"status"`
	FeedbackGeral  string          `json:"feedbackGeral"`
	Detalhes       []wireResult    `json:"detalhes"`
}

func decodeHistory(op string, body []byte) ([]HistoryEntry, error) {
	var items []wireHistory
	if err := json.Unmarshal(body, &items); err != nil || items == nil {
		pe := malformed(op, "expected a JSON array of sessions")
		pe.Err = err
		return nil, pe
	}
	out := make([]HistoryEntry, 0, len(items))
	for _, w := range items {
		e := HistoryEntry{
			ID:           parseID(w.ID),
			StartedAt:    parseTime(w.DataInicio),
			EndedAt:      parseTime(w.DataFim),
			Score:        w.PontuacaoGeral,
			TotalCorrect: w.TotalAcertos,
			TotalWords:   w.TotalPalavras,
			Difficulty:   Difficulty(w.Dificuldade),
			Status:       w.Status,
			Feedback:     w.FeedbackGeral,
		}
		for _, r := range w.Detalhes {
			e.Details = append(e.Details, r.result())
		}
		out = append(out, e)
	}
	return out, nil
}
