package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fono/coach"
)

func TestFormatScore(t *testing.T) {
	for _, tt := range []struct {
		in   float64
		want string
	}{
		{87.4, "87%"},
		{87.5, "88%"},
		{80, "80%"},
		{0, "0%"},
		{99.99, "100%"},
		{66.666, "67%"},
	} {
		if got := FormatScore(tt.in); got != tt.want {
			t.Errorf("FormatScore(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewSummary(t *testing.T) {
	res := coach.SessionResult{
		TotalCorrect: 4,
		TotalWords:   5,
		Score:        80,
		Strengths:    []string{"ritmo", "clareza"},
		Improvements: []string{"R vibrante"},
	}
	s := NewSummary(res)

	if got := s.CountText(); got != "4/5" {
		t.Errorf("CountText = %q, want 4/5", got)
	}
	if got := s.ScoreText(); got != "80%" {
		t.Errorf("ScoreText = %q, want 80%%", got)
	}
	if len(s.Strengths) != 2 || s.Strengths[1] != "clareza" {
		t.Errorf("strengths = %v", s.Strengths)
	}

	res.Strengths[0] = "changed"
	if s.Strengths[0] != "ritmo" {
		t.Error("summary shares slices with the result")
	}
}

func TestSummaryKeepsFraction(t *testing.T) {
	s := NewSummary(coach.SessionResult{TotalCorrect: 7, TotalWords: 8, Score: 87.4})
	if s.Score != 87.4 {
		t.Errorf("Score = %v, want 87.4", s.Score)
	}
	if s.ScoreText() != "87%" {
		t.Errorf("ScoreText = %q", s.ScoreText())
	}
}

func TestAccuracy(t *testing.T) {
	if got := (Summary{Correct: 3, Total: 4}).Accuracy(); got != 75 {
		t.Errorf("Accuracy = %v, want 75", got)
	}
	p := 60.0
	if got := (Summary{Correct: 3, Total: 4, Percent: &p}).Accuracy(); got != 60 {
		t.Errorf("Accuracy = %v, want service value 60", got)
	}
	if got := (Summary{}).Accuracy(); got != 0 {
		t.Errorf("Accuracy = %v, want 0", got)
	}
}

func TestGradeOf(t *testing.T) {
	for _, tt := range []struct {
		score float64
		want  Grade
	}{
		{95, GradeGood}, {80, GradeGood}, {79.9, GradeFair}, {60, GradeFair}, {10, GradeLow},
	} {
		if got := GradeOf(tt.score); got != tt.want {
			t.Errorf("GradeOf(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestRender(t *testing.T) {
	s := NewSummary(coach.SessionResult{
		TotalCorrect: 4, TotalWords: 5, Score: 80,
		Feedback:     "Muito bem!",
		Strengths:    []string{"ritmo"},
		Improvements: []string{"R vibrante"},
	})
	out := Render(s, Options{
		Name:       "Ana Souza",
		Difficulty: coach.DifficultyR,
		Date:       time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC),
		Analyses: []coach.Analysis{{
			Score:    87.4,
			HasScore: true,
			Results: []coach.WordResult{
				{Expected: "rato", Transcribed: "rato", Correct: true},
				{Expected: "carro", Transcribed: "caro", Feedback: "vibre o R"},
			},
		}},
	})

	for _, want := range []string{
		"Ana Souza", "R (rato, carro)", "14/03/2025 09:30", "4/5", "80%", "Muito bem!",
		"Pontos fortes", "  - ritmo", "Pontos a melhorar", "  - R vibrante",
		"Tentativa 1: 87% (1/2 palavras)", "Acertos:     4/5 (80%)", "carro", "caro", "vibre o R",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestRenderOmitsEmptyLists(t *testing.T) {
	out := Render(NewSummary(coach.SessionResult{TotalCorrect: 0, TotalWords: 3}), Options{})
	if strings.Contains(out, "Pontos fortes") || strings.Contains(out, "Pontos a melhorar") {
		t.Errorf("empty lists rendered:\n%s", out)
	}
	if !strings.Contains(out, "0/3") {
		t.Errorf("missing counts:\n%s", out)
	}
}

func TestRenderStyled(t *testing.T) {
	out := RenderStyled(NewSummary(coach.SessionResult{
		TotalCorrect: 4, TotalWords: 5, Score: 80,
		Strengths: []string{"ritmo"},
	}), 60)
	for _, want := range []string{"4/5", "80%", "ritmo"} {
		if !strings.Contains(out, want) {
			t.Errorf("styled render missing %q", want)
		}
	}
}

func TestFilename(t *testing.T) {
	now := time.UnixMilli(1735689600123)
	for _, tt := range []struct {
		name string
		want string
	}{
		{"Ana Souza", "sessao-ana-souza-1735689600123.txt"},
		{"  João  da Silva ", "sessao-joão-da-silva-1735689600123.txt"},
		{"../etc", "sessao-etc-1735689600123.txt"},
		{"", "sessao-1735689600123.txt"},
	} {
		if got := Filename(tt.name, now); got != tt.want {
			t.Errorf("Filename(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestFileExporter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "exports")
	e := FileExporter{Dir: dir}

	path, err := e.Export("conteúdo", "sessao-ana-1.txt")
	if err != nil {
		t.Fatalf("Export: %v", err)
	}
	if path != filepath.Join(dir, "sessao-ana-1.txt") {
		t.Errorf("path = %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "conteúdo" {
		t.Errorf("file = %q", data)
	}

	for _, bad := range []string{"", "../x.txt", "a/b.txt"} {
		if _, err := e.Export("x", bad); err == nil {
			t.Errorf("Export(%q) succeeded", bad)
		}
	}
}

func TestAttemptText(t *testing.T) {
	results := []coach.WordResult{{Expected: "rato", Correct: true}, {Expected: "carro"}, {Correct: true}}
	for _, tt := range []struct {
		a    coach.Analysis
		want string
	}{
		{coach.Analysis{Score: 66.6, HasScore: true, Results: results}, "67% (2/3 palavras)"},
		{coach.Analysis{Results: results}, "sem nota (2/3 palavras)"},
		{coach.Analysis{Score: 40, HasScore: true}, "40%"},
		{coach.Analysis{}, "sem nota"},
	} {
		if got := AttemptText(tt.a); got != tt.want {
			t.Errorf("AttemptText(%+v) = %q, want %q", tt.a, got, tt.want)
		}
	}
}
