package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"fono/coach"
)

// Options carries the context printed around a summary.
type Options struct {
	Name       string
	Difficulty coach.Difficulty
	SessionID  string
	Date       time.Time
	Analyses   []coach.Analysis
}

// Render produces the plain-text view used for export and clipboard.
func Render(s Summary, opts Options) string {
	var b strings.Builder

	b.WriteString("Resultado da sessão\n")
	b.WriteString("===================\n\n")
	if opts.Name != "" {
		fmt.Fprintf(&b, "Paciente:    %s\n", opts.Name)
	}
	if opts.Difficulty != "" {
		fmt.Fprintf(&b, "Dificuldade: %s (%s)\n", opts.Difficulty, opts.Difficulty.Examples())
	}
	if opts.SessionID != "" {
		fmt.Fprintf(&b, "Sessão:      %s\n", opts.SessionID)
	}
	if !opts.Date.IsZero() {
		fmt.Fprintf(&b, "Data:        %s\n", opts.Date.Format("02/01/2006 15:04"))
	}
	if s.DurationMinutes != nil {
		fmt.Fprintf(&b, "Duração:     %d min\n", *s.DurationMinutes)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Acertos:     %s (%s)\n", s.CountText(), FormatScore(s.Accuracy()))
	fmt.Fprintf(&b, "Pontuação:   %s\n", s.ScoreText())
	if s.Feedback != "" {
		fmt.Fprintf(&b, "\n%s\n", s.Feedback)
	}

	writeList(&b, "Pontos fortes", s.Strengths)
	writeList(&b, "Pontos a melhorar", s.Improvements)

	for i, a := range opts.Analyses {
		if len(a.Results) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\nTentativa %d: %s\n", i+1, AttemptText(a))
		b.WriteString(WordTable(a.Results))
	}
	return b.String()
}

// AttemptText is the one-line verdict for one analyzed attempt, e.g.
// "87% (1/2 palavras)". Attempts the service did not score read "sem nota".
func AttemptText(a coach.Analysis) string {
	text := "sem nota"
	if a.HasScore {
		text = FormatScore(a.Score)
	}
	if len(a.Results) > 0 {
		text += fmt.Sprintf(" (%d/%d palavras)", a.Correct(), len(a.Results))
	}
	return text
}

func writeList(b *strings.Builder, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "\n%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(b, "  - %s\n", it)
	}
}

// WordTable renders per-word results as a text table.
func WordTable(results []coach.WordResult) string {
	var b strings.Builder
	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Esperada", "Ouvida", "Resultado", "Feedback"})
	table.SetBorder(false)
	table.SetCenterSeparator("|")
	table.SetColumnSeparator("|")
	table.SetRowSeparator("-")
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(false)

	for _, r := range results {
		mark := "✗"
		if r.Correct {
			mark = "✓"
		}
		heard := r.Transcribed
		if heard == "" {
			heard = "-"
		}
		table.Append([]string{r.Expected, heard, mark, r.Feedback})
	}
	table.Render()
	return b.String()
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("147"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	goodStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("114"))
	fairStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("221"))
	lowStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203"))
	boxStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("60")).Padding(0, 2)
)

// ScoreStyle colors a score by grade.
func ScoreStyle(score float64) lipgloss.Style {
	switch GradeOf(score) {
	case GradeGood:
		return goodStyle
	case GradeFair:
		return fairStyle
	}
	return lowStyle
}

// RenderStyled is the terminal result screen.
func RenderStyled(s Summary, width int) string {
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		boxStyle.Render(labelStyle.Render("Acertos")+"\n"+titleStyle.Render(s.CountText())+" "+labelStyle.Render(FormatScore(s.Accuracy()))),
		" ",
		boxStyle.Render(labelStyle.Render("Pontuação")+"\n"+ScoreStyle(s.Score).Render(s.ScoreText())),
	)

	var b strings.Builder
	b.WriteString(titleStyle.Render(GradeOf(s.Score).Icon() + "  Sessão concluída"))
	b.WriteString("\n\n")
	b.WriteString(stats)
	b.WriteString("\n")

	wrap := lipgloss.NewStyle()
	if width > 4 {
		wrap = wrap.Width(width - 4)
	}
	if s.Feedback != "" {
		b.WriteString("\n" + wrap.Render(s.Feedback) + "\n")
	}
	if len(s.Strengths) > 0 {
		b.WriteString("\n" + goodStyle.Render("💪 Pontos fortes") + "\n")
		for _, it := range s.Strengths {
			b.WriteString(wrap.Render("  • "+it) + "\n")
		}
	}
	if len(s.Improvements) > 0 {
		b.WriteString("\n" + fairStyle.Render("🎯 Pontos a melhorar") + "\n")
		for _, it := range s.Improvements {
			b.WriteString(wrap.Render("  • "+it) + "\n")
		}
	}
	return b.String()
}
