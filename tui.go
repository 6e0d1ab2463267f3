package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"fono/audio"
	"fono/beep"
	"fono/clipboard"
	"fono/coach"
	"fono/history"
	"fono/report"
	"fono/session"
)

// TUI message types
type snapshotMsg session.Snapshot
type levelMsg float64
type historyMsg struct{}
type tickMsg time.Time
type opMsg struct {
	op  string
	err error
}
type exportMsg struct {
	path string
	err  error
}
type copyMsg struct{ err error }

// tuiDeps are the collaborators the TUI drives. Every machine call runs in a
// tea.Cmd because the machine observer sends back into the program.
type tuiDeps struct {
	machine  *session.Machine
	history  *history.Store
	exporter report.Exporter
	name     string
	device   string
}

type tuiModel struct {
	tuiDeps
	ctx context.Context

	snap          session.Snapshot
	cursor        int
	level         float64
	peak          float64
	status        string
	statusErr     bool
	width, height int
	now           time.Time
}

var (
	tuiProgram *tea.Program
	tuiMu      sync.Mutex
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("111"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	helpKeyStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	recStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	okStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	wordStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229"))
	serviceStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("246")).Italic(true)
	cardStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("238")).Padding(0, 1).Width(22)
	cardSelStyle  = cardStyle.BorderForeground(lipgloss.Color("111"))
	levelBarStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func newTUIModel(ctx context.Context, deps tuiDeps) tuiModel {
	m := tuiModel{tuiDeps: deps, ctx: ctx, now: time.Now()}
	m.snap = deps.machine.Snapshot()
	for i, d := range coach.Difficulties {
		if d == m.snap.Difficulty {
			m.cursor = i
		}
	}
	return m
}

func NewTUIProgram(ctx context.Context, deps tuiDeps) *tea.Program {
	return tea.NewProgram(newTUIModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
}

// tuiSend delivers msg to the running program, if any.
func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.Send(msg)
	}
}

func tuiTick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	return tuiTick()
}

// run wraps a blocking machine operation as a command.
func (m tuiModel) run(op string, fn func() error) tea.Cmd {
	return func() tea.Msg {
		return opMsg{op: op, err: fn()}
	}
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.now = time.Time(msg)
		return m, tuiTick()

	case snapshotMsg:
		prev := m.snap
		m.snap = session.Snapshot(msg)
		if m.snap.Recording && !prev.Recording {
			m.level, m.peak = 0, 0
		}
		if m.snap.State != prev.State {
			m.status, m.statusErr = "", false
		}

	case levelMsg:
		if m.snap.Recording {
			l := float64(msg)
			m.level = m.level*0.6 + l*0.4
			if l > m.peak {
				m.peak = l
			}
		}

	case historyMsg:
		// Evolution is read from the store on render.

	case opMsg:
		if msg.err != nil {
			m.status, m.statusErr = errText(msg.err), true
			if msg.op == "record" || msg.op == "stop" || msg.op == "submit" {
				beep.PlayError()
			}
		} else if msg.op == "stop" {
			beep.PlayEnd()
		}

	case exportMsg:
		if msg.err != nil {
			m.status, m.statusErr = "Falha ao exportar: "+msg.err.Error(), true
		} else {
			m.status, m.statusErr = "Relatório salvo em "+msg.path, false
		}

	case copyMsg:
		if msg.err != nil {
			m.status, m.statusErr = "Falha ao copiar: "+msg.err.Error(), true
		} else {
			m.status, m.statusErr = "Resumo copiado para a área de transferência", false
		}

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.snap.Busy() {
			return m, nil
		}
		switch m.snap.State {
		case session.StateSetup:
			return m.updateSetup(msg)
		case session.StateActive:
			return m.updateSession(msg)
		case session.StateFinished:
			return m.updateResult(msg)
		}
	}
	return m, nil
}

func (m tuiModel) updateSetup(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	n := len(coach.Difficulties)
	switch key := msg.String(); key {
	case "left", "h", "up", "k":
		m.cursor = (m.cursor + n - 1) % n
	case "right", "l", "down", "j", "tab":
		m.cursor = (m.cursor + 1) % n
	case "1", "2", "3", "4", "5", "6":
		if i := int(key[0] - '1'); i < n {
			m.cursor = i
		}
	case "enter":
		d := coach.Difficulties[m.cursor]
		m.status, m.statusErr = "", false
		return m, m.run("start", func() error {
			if err := m.machine.ChooseDifficulty(d); err != nil {
				return err
			}
			return m.machine.Start(m.ctx)
		})
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) updateSession(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case " ", "space":
		m.status, m.statusErr = "", false
		if m.snap.Recording {
			return m, m.run("stop", m.machine.StopRecording)
		}
		beep.PlayStart()
		return m, m.run("record", func() error { return m.machine.BeginRecording(m.ctx) })
	case "enter":
		m.status, m.statusErr = "", false
		return m, m.run("submit", func() error { return m.machine.SubmitPending(m.ctx) })
	case "x":
		return m, m.run("discard", m.machine.DiscardPending)
	case "esc":
		return m, m.run("abandon", func() error { return m.machine.Abandon(m.ctx) })
	}
	return m, nil
}

func (m tuiModel) updateResult(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "n":
		return m, m.run("new", func() error { return m.machine.NewSession("") })
	case "e":
		return m, m.exportCmd()
	case "c":
		return m, m.copyCmd()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m tuiModel) exportCmd() tea.Cmd {
	now := time.Now()
	view := resultText(m.snap, m.name, now)
	exp := m.exporter
	name := m.name
	return func() tea.Msg {
		if view == "" {
			return exportMsg{err: errors.New("nenhum resultado para exportar")}
		}
		path, err := exp.Export(view, report.Filename(name, now))
		return exportMsg{path: path, err: err}
	}
}

func (m tuiModel) copyCmd() tea.Cmd {
	view := resultText(m.snap, m.name, time.Now())
	return func() tea.Msg {
		if view == "" {
			return copyMsg{err: errors.New("nenhum resultado para copiar")}
		}
		return copyMsg{err: clipboard.Copy(view)}
	}
}

// resultText is the plain-text report of a finished snapshot, empty otherwise.
func resultText(s session.Snapshot, name string, now time.Time) string {
	if s.Result == nil {
		return ""
	}
	return report.Render(report.NewSummary(*s.Result), report.Options{
		Name:       name,
		Difficulty: s.Difficulty,
		SessionID:  s.SessionID,
		Date:       now,
		Analyses:   analyses(s.Transcript),
	})
}

func analyses(turns []coach.Turn) []coach.Analysis {
	var out []coach.Analysis
	for _, t := range turns {
		switch t := t.(type) {
		case coach.AnalysisTurn:
			out = append(out, t.Analysis)
		case coach.TerminalTurn:
			if t.Analysis != nil {
				out = append(out, *t.Analysis)
			}
		}
	}
	return out
}

func errText(err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		return "Permissão de microfone negada. Verifique as configurações do sistema."
	case errors.Is(err, audio.ErrDeviceUnavailable):
		return "Microfone indisponível: " + err.Error()
	case errors.Is(err, session.ErrPendingExists):
		return "Já existe uma gravação. Envie (enter) ou descarte (x)."
	case errors.Is(err, session.ErrNoPending):
		return "Nenhuma gravação para enviar. Grave com espaço."
	case errors.Is(err, coach.ErrNoAudio):
		return "A gravação está vazia."
	case errors.Is(err, coach.ErrTransport):
		return "Sem conexão com o serviço. Tente novamente."
	case coach.IsRetryable(err):
		return "O serviço falhou (" + err.Error() + "). Tente novamente em instantes."
	case errors.Is(err, coach.ErrRejected):
		return "O serviço recusou a requisição: " + err.Error() + ". Grave de novo."
	case errors.Is(err, coach.ErrMalformedResponse):
		return "Resposta inválida do serviço."
	}
	return err.Error()
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Carregando..."
	}

	var body string
	switch m.snap.State {
	case session.StateSetup:
		body = m.viewSetup()
	case session.StateActive:
		body = m.viewSession()
	case session.StateFinished:
		body = m.viewResult()
	}

	header := titleStyle.Render("fono") + dimStyle.Render("  treino de pronúncia")
	if m.name != "" {
		header += dimStyle.Render(" · " + m.name)
	}
	mic := "mic: " + m.device
	if audio.IsBluetooth(m.device) {
		mic += warnStyle.Render(" (bluetooth!)")
	}

	lines := []string{header, dimStyle.Render(mic), "", body}
	if m.status != "" {
		style := okStyle
		if m.statusErr {
			style = errStyle
		}
		lines = append(lines, "", style.Render(m.status))
	}
	return lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
}

func (m tuiModel) viewSetup() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Escolha a dificuldade") + "\n\n")

	var cards []string
	for i, d := range coach.Difficulties {
		style := cardStyle
		label := fmt.Sprintf("%d  %s", i+1, d)
		if i == m.cursor {
			style = cardSelStyle
			label = titleStyle.Render(label)
		}
		cards = append(cards, style.Render(label+"\n"+dimStyle.Render(d.Examples())))
	}
	for i := 0; i < len(cards); i += 3 {
		b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards[i:min(i+3, len(cards))]...) + "\n")
	}

	if m.snap.Starting {
		b.WriteString("\n" + dimStyle.Render("Iniciando sessão..."))
	} else if pts := m.evolution(); pts != "" {
		b.WriteString("\n" + dimStyle.Render("Evolução: ") + pts)
	}
	b.WriteString("\n\n" + help("←/→ 1-6", "escolher", "enter", "iniciar", "q", "sair"))
	return b.String()
}

func (m tuiModel) viewSession() string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}

	var lines []string
	for _, t := range m.snap.Transcript {
		lines = append(lines, strings.Split(renderTurn(t, width), "\n")...)
	}
	// keep the newest turns in view
	room := m.height - 12
	if room < 5 {
		room = 5
	}
	if len(lines) > room {
		lines = lines[len(lines)-room:]
	}

	var b strings.Builder
	b.WriteString(dimStyle.Render(fmt.Sprintf("Sessão %s · %s", m.snap.SessionID, m.snap.Difficulty)) + "\n\n")
	b.WriteString(strings.Join(lines, "\n") + "\n\n")

	switch {
	case m.snap.Submitting:
		b.WriteString(dimStyle.Render("Enviando áudio para análise..."))
	case m.snap.Stopping:
		b.WriteString(dimStyle.Render("Finalizando gravação..."))
	case m.snap.Recording:
		elapsed := m.now.Sub(m.snap.RecordingSince).Seconds()
		if elapsed < 0 {
			elapsed = 0
		}
		b.WriteString(recStyle.Render(fmt.Sprintf("● REC %.1fs ", elapsed)) + levelBar(m.level))
		if elapsed > 1.0 && m.peak < 0.02 {
			b.WriteString(warnStyle.Render("  ⚠ nenhuma voz detectada"))
		}
	case m.snap.Pending:
		b.WriteString(okStyle.Render(fmt.Sprintf("Gravação pronta (%.1fs)", m.snap.PendingDuration.Seconds())))
	default:
		b.WriteString(dimStyle.Render("○ pronto para gravar"))
	}

	b.WriteString("\n\n")
	switch {
	case m.snap.Recording:
		b.WriteString(help("espaço", "parar", "esc", "abandonar"))
	case m.snap.Pending:
		b.WriteString(help("enter", "enviar", "x", "descartar", "esc", "abandonar"))
	default:
		b.WriteString(help("espaço", "gravar", "esc", "abandonar"))
	}
	return b.String()
}

func (m tuiModel) viewResult() string {
	var b strings.Builder
	if m.snap.Result != nil {
		b.WriteString(report.RenderStyled(report.NewSummary(*m.snap.Result), m.width-2))
	}
	if pts := m.evolution(); pts != "" {
		b.WriteString("\n" + dimStyle.Render("Evolução: ") + pts + "\n")
	}
	b.WriteString("\n" + help("n", "nova sessão", "e", "exportar", "c", "copiar", "q", "sair"))
	return b.String()
}

// evolution renders the last scores of the history store, oldest first.
func (m tuiModel) evolution() string {
	if m.history == nil {
		return ""
	}
	pts := m.history.Evolution(6)
	if len(pts) == 0 {
		return ""
	}
	parts := make([]string, len(pts))
	for i, p := range pts {
		parts[i] = report.ScoreStyle(float64(p.Score)).Render(fmt.Sprintf("%d%%", p.Score))
	}
	out := strings.Join(parts, dimStyle.Render(" → "))
	if at := m.history.FetchedAt(); !at.IsZero() {
		out += dimStyle.Render("  (atualizado às " + at.Format("15:04") + ")")
	}
	return out
}

func renderTurn(t coach.Turn, width int) string {
	wrap := lipgloss.NewStyle().Width(width)
	switch t := t.(type) {
	case coach.PromptTurn:
		s := serviceStyle.Render(wrap.Render(t.Message))
		if len(t.Words) > 0 {
			s += "\n   " + wordStyle.Render(strings.Join(t.Words, "   "))
		}
		return s
	case coach.UserAudioTurn:
		return userStyle.Render(fmt.Sprintf("  🎤 %s (%.1fs)", t.Message, t.Duration.Seconds()))
	case coach.AnalysisTurn:
		return renderAnalysis(t.Message, t.Analysis, wrap)
	case coach.TerminalTurn:
		s := ""
		if t.Analysis != nil {
			s = renderAnalysis("", *t.Analysis, wrap) + "\n"
		}
		return s + titleStyle.Render(wrap.Render(t.Message))
	case coach.ErrorTurn:
		return errStyle.Render(wrap.Render("✗ " + t.Message))
	}
	return wrap.Render(t.Text())
}

func renderAnalysis(msg string, a coach.Analysis, wrap lipgloss.Style) string {
	var b strings.Builder
	if msg != "" {
		b.WriteString(serviceStyle.Render(wrap.Render(msg)) + "\n")
	}
	verdict := dimStyle
	if a.HasScore {
		verdict = report.ScoreStyle(a.Score)
	}
	b.WriteString("   " + verdict.Render(report.AttemptText(a)))
	for _, r := range a.Results {
		mark := okStyle.Render("✓")
		if !r.Correct {
			mark = errStyle.Render("✗")
		}
		line := fmt.Sprintf("   %s %s", mark, r.Expected)
		if r.Transcribed != "" && !strings.EqualFold(r.Transcribed, r.Expected) {
			line += dimStyle.Render(" (ouvido: " + r.Transcribed + ")")
		}
		if r.Feedback != "" {
			line += dimStyle.Render(" · " + r.Feedback)
		}
		b.WriteString("\n" + line)
	}
	if a.Feedback != "" {
		b.WriteString("\n" + dimStyle.Render(wrap.Render("   "+a.Feedback)))
	}
	return b.String()
}

func levelBar(level float64) string {
	n := int(level * 60)
	if n > 20 {
		n = 20
	}
	return levelBarStyle.Render(strings.Repeat("▮", n)) + dimStyle.Render(strings.Repeat("▯", 20-n))
}

// help renders key/description pairs.
func help(pairs ...string) string {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, helpKeyStyle.Render(pairs[i])+helpStyle.Render(" "+pairs[i+1]))
	}
	return strings.Join(parts, helpStyle.Render("  ·  "))
}
