package main

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"fono/audio"
	"fono/beep"
	"fono/coach"
	"fono/history"
	"fono/report"
	"fono/session"
)

type fakeProto struct {
	submit func() (coach.Batch, error)
}

func (f *fakeProto) Start(_ context.Context, req coach.StartRequest) ([]coach.Turn, string, error) {
	return []coach.Turn{coach.PromptTurn{
		TurnMeta: coach.TurnMeta{SessionID: "7", Kind: coach.KindWords},
		Message:  "Leia em voz alta (" + string(req.Difficulty) + "):",
		Words:    []string{"rato", "carro"},
	}}, "7", nil
}

func (f *fakeProto) SubmitAudio(context.Context, string, *audio.Artifact) (coach.Batch, error) {
	return f.submit()
}

func (f *fakeProto) Cancel(context.Context, string) (coach.Status, error) {
	return coach.Status{}, nil
}

func (f *fakeProto) State(_ context.Context, id string) (coach.Status, error) {
	return coach.Status{SessionID: id, Kind: coach.KindAwaiting}, nil
}

func finishBatch() (coach.Batch, error) {
	res := coach.SessionResult{TotalCorrect: 4, TotalWords: 5, Score: 80, Feedback: "Muito bem"}
	return coach.Batch{
		Turns: []coach.Turn{coach.TerminalTurn{
			TurnMeta: coach.TurnMeta{SessionID: "7", Kind: coach.KindFinalSummary},
			Message:  "Sessão finalizada",
			Result:   res,
			Analysis: &coach.Analysis{Score: 80, HasScore: true, Results: []coach.WordResult{{Expected: "rato", Correct: true}}},
		}},
		Result: &res,
	}, nil
}

func tonePCM() []byte {
	buf := make([]byte, 8000*2)
	for i := 0; i < 8000; i++ {
		s := int16(math.Sin(2*math.Pi*440*float64(i)/16000) * 10000)
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}

func newTestModel(t *testing.T, proto *fakeProto) (tuiModel, *session.Machine) {
	t.Helper()
	beep.Disable()
	ctl := audio.NewController(audio.NewFakeContextPCM(tonePCM()))
	t.Cleanup(ctl.Close)
	m := session.New(proto, ctl)
	t.Cleanup(m.Close)

	model := newTUIModel(context.Background(), tuiDeps{
		machine:  m,
		exporter: report.FileExporter{Dir: t.TempDir()},
		name:     "Ana Souza",
		device:   "fake",
	})
	model.width, model.height = 100, 40
	return model, m
}

func press(t *testing.T, model tuiModel, keys ...tea.KeyMsg) (tuiModel, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = model.Update(k)
		model = next.(tuiModel)
	}
	return model, cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

// exec runs cmd and feeds its message back, then syncs the snapshot.
func exec(t *testing.T, model tuiModel, cmd tea.Cmd, m *session.Machine) (tuiModel, tea.Msg) {
	t.Helper()
	if cmd == nil {
		t.Fatal("no command returned")
	}
	msg := cmd()
	next, _ := model.Update(msg)
	next, _ = next.(tuiModel).Update(snapshotMsg(m.Snapshot()))
	return next.(tuiModel), msg
}

func TestSetupCursor(t *testing.T) {
	model, _ := newTestModel(t, &fakeProto{})
	if model.cursor != 0 {
		t.Fatalf("cursor = %d, want 0 for default R", model.cursor)
	}

	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyRight})
	if model.cursor != 1 {
		t.Errorf("cursor after right = %d, want 1", model.cursor)
	}
	model, _ = press(t, model, tea.KeyMsg{Type: tea.KeyLeft}, tea.KeyMsg{Type: tea.KeyLeft})
	if model.cursor != len(coach.Difficulties)-1 {
		t.Errorf("cursor after wrap = %d", model.cursor)
	}
	model, _ = press(t, model, runes("3"))
	if model.cursor != 2 {
		t.Errorf("cursor after 3 = %d, want 2", model.cursor)
	}
	if !strings.Contains(model.View(), "Escolha a dificuldade") {
		t.Error("setup view not shown")
	}
}

func TestStartFromSetup(t *testing.T) {
	model, m := newTestModel(t, &fakeProto{})
	model, cmd := press(t, model, runes("2"), tea.KeyMsg{Type: tea.KeyEnter})
	model, msg := exec(t, model, cmd, m)

	if op := msg.(opMsg); op.err != nil {
		t.Fatalf("start: %v", op.err)
	}
	if m.State() != session.StateActive || m.Difficulty() != coach.DifficultyL {
		t.Fatalf("state = %v difficulty = %v", m.State(), m.Difficulty())
	}
	view := model.View()
	for _, want := range []string{"Sessão 7", "rato", "carro", "gravar"} {
		if !strings.Contains(view, want) {
			t.Errorf("session view missing %q", want)
		}
	}
}

func TestRecordSubmitFinishExport(t *testing.T) {
	model, m := newTestModel(t, &fakeProto{submit: finishBatch})
	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = exec(t, model, cmd, m)

	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeySpace})
	model, _ = exec(t, model, cmd, m)
	if !model.snap.Recording {
		t.Fatal("not recording after space")
	}
	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeySpace})
	model, _ = exec(t, model, cmd, m)
	if !model.snap.Pending {
		t.Fatal("no pending recording after second space")
	}
	if !strings.Contains(model.View(), "Gravação pronta") {
		t.Error("pending recording not shown")
	}

	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, msg := exec(t, model, cmd, m)
	if op := msg.(opMsg); op.err != nil {
		t.Fatalf("submit: %v", op.err)
	}
	if model.snap.State != session.StateFinished {
		t.Fatalf("state = %v, want finished", model.snap.State)
	}
	if view := model.View(); !strings.Contains(view, "80%") || !strings.Contains(view, "4/5") {
		t.Errorf("result view missing score:\n%s", view)
	}

	model, cmd = press(t, model, runes("e"))
	model, msg = exec(t, model, cmd, m)
	exp := msg.(exportMsg)
	if exp.err != nil {
		t.Fatalf("export: %v", exp.err)
	}
	if !strings.Contains(exp.path, "sessao-ana-souza-") {
		t.Errorf("path = %q", exp.path)
	}
	data, err := os.ReadFile(exp.path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "Pontuação:   80%") || !strings.Contains(string(data), "Tentativa 1") {
		t.Errorf("export content:\n%s", data)
	}
	if !strings.Contains(model.status, exp.path) {
		t.Errorf("status = %q", model.status)
	}

	model, cmd = press(t, model, runes("n"))
	model, _ = exec(t, model, cmd, m)
	if model.snap.State != session.StateSetup || len(model.snap.Transcript) != 0 {
		t.Errorf("after new session: state %v, %d turns", model.snap.State, len(model.snap.Transcript))
	}
}

func TestSubmitErrorShownInStatus(t *testing.T) {
	fail := func() (coach.Batch, error) {
		return coach.Batch{}, &coach.ProtocolError{Kind: coach.Transport, Op: "submit audio", Err: errors.New("refused")}
	}
	model, m := newTestModel(t, &fakeProto{submit: fail})
	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = exec(t, model, cmd, m)

	model, cmd = press(t, model, runes("x"))
	model, msg := exec(t, model, cmd, m)
	if !errors.Is(msg.(opMsg).err, session.ErrNoPending) {
		t.Errorf("discard without recording: %v", msg.(opMsg).err)
	}

	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeySpace})
	model, _ = exec(t, model, cmd, m)
	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeySpace})
	model, _ = exec(t, model, cmd, m)
	model, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	model, _ = exec(t, model, cmd, m)

	if !model.statusErr || !strings.Contains(model.status, "Sem conexão") {
		t.Errorf("status = %q", model.status)
	}
	if model.snap.State != session.StateActive {
		t.Errorf("state = %v, want active", model.snap.State)
	}
}

func TestBusyIgnoresKeys(t *testing.T) {
	model, _ := newTestModel(t, &fakeProto{})
	model.snap.Starting = true
	model, cmd := press(t, model, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Error("enter accepted while busy")
	}
	_, cmd = press(t, model, tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Error("ctrl+c ignored while busy")
	}
}

type fakeHistory struct{ entries []coach.HistoryEntry }

func (f fakeHistory) History(context.Context, int64) ([]coach.HistoryEntry, error) {
	return f.entries, nil
}

func TestSetupShowsEvolution(t *testing.T) {
	model, _ := newTestModel(t, &fakeProto{})
	score := func(v float64) *float64 { return &v }
	store := history.NewStore(fakeHistory{entries: []coach.HistoryEntry{
		{ID: "1", StartedAt: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), Status: coach.StatusFinished, Score: score(55)},
		{ID: "2", StartedAt: time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), Status: coach.StatusFinished, Score: score(82)},
	}}, 7)
	if err := store.Refresh(context.Background()); err != nil {
		t.Fatal(err)
	}
	model.history = store

	view := model.View()
	for _, want := range []string{"Evolução", "55%", "82%", "atualizado às " + store.FetchedAt().Format("15:04")} {
		if !strings.Contains(view, want) {
			t.Errorf("setup view missing %q", want)
		}
	}
}

func TestRenderTurn(t *testing.T) {
	turns := []coach.Turn{
		coach.NewUserAudioTurn("1", 0),
		coach.NewErrorTurn("1", errors.New("boom")),
		coach.AnalysisTurn{Message: "Veja", Analysis: coach.Analysis{Score: 50, HasScore: true, Results: []coach.WordResult{
			{Expected: "carro", Transcribed: "caro", Feedback: "vibre o R"},
		}}},
	}
	var out []string
	for _, tt := range turns {
		out = append(out, renderTurn(tt, 60))
	}
	all := strings.Join(out, "\n")
	for _, want := range []string{"Áudio enviado", "boom", "50% (0/1 palavras)", "carro", "ouvido: caro", "vibre o R"} {
		if !strings.Contains(all, want) {
			t.Errorf("rendered turns missing %q:\n%s", want, all)
		}
	}
}

func TestErrText(t *testing.T) {
	for _, tt := range []struct {
		err  error
		want string
	}{
		{audio.ErrPermissionDenied, "Permissão"},
		{session.ErrPendingExists, "Já existe"},
		{&coach.ProtocolError{Kind: coach.Rejected, Op: "x", Status: 400, Message: "bad"}, "Grave de novo"},
		{&coach.ProtocolError{Kind: coach.Rejected, Op: "x", Status: 503, Message: "down"}, "Tente novamente"},
		{errors.New("other"), "other"},
	} {
		if got := errText(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("errText(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
