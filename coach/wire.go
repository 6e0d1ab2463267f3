package coach

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/rs/xid"
)

type wireResult struct {
	PalavraEsperada   string   `json:"palavraEsperada"`
	PalavraTranscrita string   `json:"palavraTranscrita"`
	Acertou           *bool    `json:"acertou"`
	Similaridade      *float64 `json:"similaridade"`
	Feedback          string   `json:"feedback"`
}

type wireAnalysis struct {
	PalavrasEsperadas   []string        `json:"palavrasEsperadas"`
	TranscricaoCompleta string          `json:"transcricaoCompleta"`
	Resultados          []wireResult    `json:"resultados"`
	PontuacaoGeral      *float64        `json:"pontuacaoGeral"`
	TotalAcertos        *int            `json:"totalAcertos"`
	TotalPalavras       *int            `json:"totalPalavras"`
	PorcentagemAcerto   *float64        `json:"porcentagemAcerto"`
	FeedbackGeral       string          `json:"feedbackGeral"`
	DataAnalise         json.RawMessage `json:"dataAnalise"`
}

type wireSummary struct {
	TotalPalavras     *int     `json:"totalPalavras"`
	TotalAcertos      *int     `json:"totalAcertos"`
	PontuacaoGeral    *float64 `json:"pontuacaoGeral"`
	PorcentagemAcerto *float64 `json:"porcentagemAcerto"`
	FeedbackGeral     string   `json:"feedbackGeral"`
	PontosFortes      []string `json:"pontosFortes"`
	PontosAMelhorar   []string `json:"pontosAMelhorar"`
	DuracaoMinutos    *int     `json:"duracaoMinutos"`
}

type wireTurn struct {
	SessaoID         json.RawMessage `json:"sessaoId"`
	Tipo             string          `json:"tipo"`
	Mensagem         string          `json:"mensagem"`
	Palavras         []string        `json:"palavras"`
	CicloAtual       int             `json:"cicloAtual"`
	TotalCiclos      int             `json:"totalCiclos"`
	Analise          *wireAnalysis   `json:"analise"`
	ResumoSessao     *wireSummary    `json:"resumoSessao"`
	Timestamp        json.RawMessage `json:"timestamp"`
	SessaoFinalizada *bool           `json:"sessaoFinalizada"`
}

type wireError struct {
	Erro string `json:"erro"`
}

// decodeTurns validates a batch and maps each item to exactly one Turn.
func decodeTurns(op string, body []byte) ([]Turn, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil || items == nil {
		pe := malformed(op, "expected a JSON array of messages")
		pe.Err = err
		return nil, pe
	}

	turns := make([]Turn, 0, len(items))
	for i, raw := range items {
		var w wireTurn
		if !isObject(raw) {
			return nil, malformed(op, "item %d is not an object", i)
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			pe := malformed(op, "item %d: %v", i, err)
			pe.Err = err
			return nil, pe
		}
		turns = append(turns, w.turn())
	}
	return turns, nil
}

func (w wireTurn) meta() TurnMeta {
	return TurnMeta{
		ID:          xid.New(),
		SessionID:   parseID(w.SessaoID),
		Kind:        w.Tipo,
		Timestamp:   parseTime(w.Timestamp),
		Cycle:       w.CicloAtual,
		TotalCycles: w.TotalCiclos,
	}
}

// turn never fails once the item decoded: missing sub-fields degrade to
// zero values so a sloppy item cannot hide a terminal one in the same batch.
func (w wireTurn) turn() Turn {
	meta := w.meta()

	var analysis *Analysis
	if w.Analise != nil {
		a := w.Analise.analysis()
		analysis = &a
	}

	switch {
	case w.SessaoFinalizada != nil && *w.SessaoFinalizada:
		var res SessionResult
		if w.ResumoSessao != nil {
			res = w.ResumoSessao.result()
		}
		return TerminalTurn{TurnMeta: meta, Message: w.Mensagem, Result: res, Analysis: analysis}
	case analysis != nil:
		return AnalysisTurn{TurnMeta: meta, Message: w.Mensagem, Analysis: *analysis}
	case strings.EqualFold(w.Tipo, KindError):
		return ErrorTurn{TurnMeta: meta, Message: w.Mensagem}
	}
	return PromptTurn{TurnMeta: meta, Message: w.Mensagem, Words: w.Palavras}
}

func (a *wireAnalysis) analysis() Analysis {
	out := Analysis{
		Expected:     a.PalavrasEsperadas,
		Transcript:   a.TranscricaoCompleta,
		Score:        deref(a.PontuacaoGeral),
		HasScore:     a.PontuacaoGeral != nil,
		TotalCorrect: a.TotalAcertos,
		TotalWords:   a.TotalPalavras,
		Percent:      a.PorcentagemAcerto,
		Feedback:     a.FeedbackGeral,
		AnalyzedAt:   parseTime(a.DataAnalise),
	}
	for _, r := range a.Resultados {
		out.Results = append(out.Results, r.result())
	}
	return out
}

func (r wireResult) result() WordResult {
	return WordResult{
		Expected:    r.PalavraEsperada,
		Transcribed: r.PalavraTranscrita,
		Correct:     r.Acertou != nil && *r.Acertou,
		Similarity:  r.Similaridade,
		Feedback:    r.Feedback,
	}
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func (s *wireSummary) result() SessionResult {
	return SessionResult{
		TotalCorrect:    deref(s.TotalAcertos),
		TotalWords:      deref(s.TotalPalavras),
		Score:           deref(s.PontuacaoGeral),
		Percent:         s.PorcentagemAcerto,
		Feedback:        s.FeedbackGeral,
		Strengths:       s.PontosFortes,
		Improvements:    s.PontosAMelhorar,
		DurationMinutes: s.DuracaoMinutos,
	}
}

func isObject(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '{'
}

// parseID accepts numeric and string identifiers and returns them as text.
func parseID(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// parseTime reads server timestamps: ISO strings with or without zone, or
// the [y, m, d, h, min, s, nanos] array form. Anything else yields zero time.
func parseTime(raw json.RawMessage) time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		for _, layout := range timeLayouts {
			if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
				return t
			}
		}
		return time.Time{}
	}

	var parts []int
	if err := json.Unmarshal(raw, &parts); err != nil || len(parts) < 3 {
		return time.Time{}
	}
	for len(parts) < 7 {
		parts = append(parts, 0)
	}
	return time.Date(parts[0], time.Month(parts[1]), parts[2], parts[3], parts[4], parts[5], parts[6], time.Local)
}
