package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"fono/audio"
	"fono/coach"
	"fono/log"
)

// Protocol is the subset of the training service a session needs.
type Protocol interface {
	Start(ctx context.Context, req coach.StartRequest) ([]coach.Turn, string, error)
	SubmitAudio(ctx context.Context, sessionID string, a *audio.Artifact) (coach.Batch, error)
	Cancel(ctx context.Context, sessionID string) (coach.Status, error)
	State(ctx context.Context, sessionID string) (coach.Status, error)
}

// Recorder owns the microphone.
type Recorder interface {
	BeginCapture(ctx context.Context) (*audio.Handle, error)
	EndCapture(h *audio.Handle) (*audio.Artifact, error)
	Discard(a *audio.Artifact)
}

// Refresher is notified when a session ends so history can be reloaded.
type Refresher interface {
	Refresh(ctx context.Context) error
}

type Option func(*Machine)

func WithClientID(id int64) Option { return func(m *Machine) { m.clientID = id } }

func WithSpecialist(id int64) Option { return func(m *Machine) { m.specialistID = id } }

func WithAge(age int) Option { return func(m *Machine) { m.age = age } }

func WithHistory(r Refresher) Option { return func(m *Machine) { m.history = r } }

// WithObserver registers fn to receive a snapshot after every change.
// fn is called without internal locks held.
func WithObserver(fn func(Snapshot)) Option { return func(m *Machine) { m.observer = fn } }

// Snapshot is an immutable copy of the machine state for rendering.
type Snapshot struct {
	State      State
	Difficulty coach.Difficulty
	SessionID  string
	Transcript []coach.Turn
	Result     *coach.SessionResult

	Recording       bool
	RecordingSince  time.Time
	Pending         bool
	PendingDuration time.Duration
	Starting        bool
	Stopping        bool
	Submitting      bool
}

// Busy reports whether a blocking operation is in flight.
func (s Snapshot) Busy() bool { return s.Starting || s.Stopping || s.Submitting }

// Machine drives one practice session: Setup, then Active once the service
// has assigned an id, then Finished when a terminal turn arrives.
//
// The transcript only grows. Responses that arrive after NewSession, Abandon
// or Close are dropped instead of being applied to the new session.
type Machine struct {
	proto    Protocol
	rec      Recorder
	history  Refresher
	observer func(Snapshot)

	clientID     int64
	specialistID int64
	age          int

	mu         sync.Mutex
	gen        uint64
	state      State
	difficulty coach.Difficulty
	sessionID  string
	transcript []coach.Turn
	result     *coach.SessionResult

	handle     *audio.Handle
	pending    *audio.Artifact
	acquiring  bool
	stopping   bool
	starting   bool
	submitting bool
}

func New(proto Protocol, rec Recorder, opts ...Option) *Machine {
	m := &Machine{
		proto:        proto,
		rec:          rec,
		specialistID: 8,
		age:          25,
		difficulty:   coach.DifficultyR,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ChooseDifficulty sets the phoneme for the next session.
func (m *Machine) ChooseDifficulty(d coach.Difficulty) error {
	if !d.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, d)
	}
	m.mu.Lock()
	if m.state != StateSetup {
		s := m.state
		m.mu.Unlock()
		return invalidState("choose difficulty", s)
	}
	if m.starting {
		m.mu.Unlock()
		return ErrBusy
	}
	m.difficulty = d
	m.mu.Unlock()
	m.notify()
	return nil
}

// Start asks the service for a new session. On failure the machine stays in
// Setup with an empty transcript and the error is returned.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateSetup {
		s := m.state
		m.mu.Unlock()
		return invalidState("start", s)
	}
	if m.starting {
		m.mu.Unlock()
		return ErrBusy
	}
	m.starting = true
	gen := m.gen
	req := coach.StartRequest{
		ClientID:     m.clientID,
		SpecialistID: m.specialistID,
		Difficulty:   m.difficulty,
		Age:          m.age,
	}
	m.mu.Unlock()
	m.notify()

	log.SessionStart(string(req.Difficulty))
	turns, id, err := m.proto.Start(ctx, req)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if err == nil && id != "" {
			if _, cerr := m.proto.Cancel(ctx, id); cerr != nil {
				log.Warnf("cancel orphaned session %s: %v", id, cerr)
			}
		}
		return ErrSessionDiscarded
	}
	m.starting = false
	if err != nil {
		m.mu.Unlock()
		m.notify()
		log.Warnf("start failed: %v", err)
		return err
	}
	m.sessionID = id
	m.appendLocked(turns...)
	m.state = StateActive
	m.mu.Unlock()

	log.SessionActive(id, len(turns))
	m.notify()
	return nil
}

// BeginRecording acquires the microphone. It is rejected while a recording
// is pending or another capture is running.
func (m *Machine) BeginRecording(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkActive("begin recording"); err != nil {
		m.mu.Unlock()
		return err
	}
	switch {
	case m.pending != nil:
		m.mu.Unlock()
		return ErrPendingExists
	case m.handle != nil:
		m.mu.Unlock()
		return ErrRecording
	case m.acquiring || m.stopping || m.submitting:
		m.mu.Unlock()
		return ErrBusy
	}
	m.acquiring = true
	gen := m.gen
	m.mu.Unlock()

	h, err := m.rec.BeginCapture(ctx)

	m.mu.Lock()
	m.acquiring = false
	if gen != m.gen || m.state != StateActive {
		m.mu.Unlock()
		h.Release()
		if err != nil {
			return err
		}
		return ErrSessionDiscarded
	}
	if err != nil {
		m.mu.Unlock()
		m.notify()
		return err
	}
	m.handle = h
	m.mu.Unlock()

	m.notify()
	return nil
}

// StopRecording ends the capture and keeps the audio as the pending recording.
func (m *Machine) StopRecording() error {
	m.mu.Lock()
	if err := m.checkActive("stop recording"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.handle == nil {
		m.mu.Unlock()
		return ErrNotRecording
	}
	h := m.handle
	m.handle = nil
	m.stopping = true
	gen := m.gen
	m.mu.Unlock()
	m.notify()

	art, err := m.rec.EndCapture(h)

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if art != nil {
			m.rec.Discard(art)
		}
		return ErrSessionDiscarded
	}
	m.stopping = false
	if err != nil {
		m.mu.Unlock()
		m.notify()
		return err
	}
	m.pending = art
	m.mu.Unlock()

	m.notify()
	return nil
}

// DiscardPending drops the pending recording without touching the transcript.
func (m *Machine) DiscardPending() error {
	m.mu.Lock()
	if err := m.checkActive("discard"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoPending
	}
	p := m.pending
	m.pending = nil
	m.mu.Unlock()

	m.rec.Discard(p)
	m.notify()
	return nil
}

// SubmitPending sends the pending recording.
//
// A UserAudioTurn is appended before the upload starts and stays in the
// transcript whatever the outcome. The pending slot is cleared in the same
// critical section, so a second submission cannot start until a new
// recording exists. A failed upload appends one ErrorTurn and leaves the
// session Active so the user can record again, unless the service reports
// that the session already finished; then the machine finishes too.
func (m *Machine) SubmitPending(ctx context.Context) error {
	m.mu.Lock()
	if err := m.checkActive("submit"); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.pending == nil {
		m.mu.Unlock()
		return ErrNoPending
	}
	if m.submitting {
		m.mu.Unlock()
		return ErrBusy
	}
	art := m.pending
	m.pending = nil
	m.submitting = true
	gen := m.gen
	sessionID := m.sessionID
	m.appendLocked(coach.NewUserAudioTurn(sessionID, art.Duration))
	m.mu.Unlock()
	m.notify()

	size := len(art.Data)
	dur := art.Duration
	batch, err := m.proto.SubmitAudio(ctx, sessionID, art)
	m.rec.Discard(art)

	var status *coach.Status
	if errors.Is(err, coach.ErrMalformedResponse) || (err == nil && batch.ServerError()) {
		status = m.serverStatus(ctx, sessionID)
	}
	serverFinished := status != nil && status.Finished

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		log.Warnf("dropping response for discarded session %s", sessionID)
		return ErrSessionDiscarded
	}
	m.submitting = false
	if err != nil {
		m.appendLocked(coach.NewErrorTurn(sessionID, err))
		log.Warnf("submit failed: %v", err)
		if !serverFinished {
			m.mu.Unlock()
			m.notify()
			return err
		}
		batch = coach.Batch{}
	}
	if serverFinished {
		batch.Turns = append(batch.Turns, status.FinishedTurn())
	}

	m.appendLocked(batch.Turns...)
	finished := false
	if batch.Result != nil {
		res := batch.Result.Clone()
		m.result = &res
		m.state = StateFinished
		finished = true
	} else if tt, ok := batch.Terminal(); ok {
		res := tt.Result.Clone()
		m.result = &res
		m.state = StateFinished
		finished = true
	}
	var result coach.SessionResult
	if finished {
		result = *m.result
	}
	m.mu.Unlock()

	logSubmit(sessionID, size, dur, batch, finished)
	if finished {
		log.SessionFinished(sessionID, result.TotalCorrect, result.TotalWords, result.Score)
	}
	m.notify()
	if finished {
		m.refreshHistory(ctx)
	}
	return nil
}

// serverStatus asks the service where a session stands after a reply the
// machine could not apply. Failures only log.
func (m *Machine) serverStatus(ctx context.Context, sessionID string) *coach.Status {
	st, err := m.proto.State(ctx, sessionID)
	if err != nil {
		log.Warnf("session %s state: %v", sessionID, err)
		return nil
	}
	if st.SessionID == "" {
		st.SessionID = sessionID
	}
	if !st.Finished && !st.Awaiting() {
		log.Warnf("session %s in unexpected state %s", sessionID, st.Kind)
	}
	return &st
}

// NewSession discards the current session, whatever its state, and returns
// to Setup with difficulty d. An empty d keeps the previous difficulty.
func (m *Machine) NewSession(d coach.Difficulty) error {
	if d != "" && !d.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDifficulty, d)
	}
	m.mu.Lock()
	h, p, _, count := m.resetLocked()
	if d != "" {
		m.difficulty = d
	}
	m.mu.Unlock()

	m.release(h, p)
	log.SessionEnd(count)
	m.notify()
	return nil
}

// Abandon leaves the current session. An active session is cancelled on
// the server on a best-effort basis.
func (m *Machine) Abandon(ctx context.Context) error {
	m.mu.Lock()
	wasActive := m.state == StateActive
	h, p, sessionID, count := m.resetLocked()
	m.mu.Unlock()

	m.release(h, p)
	m.notify()

	if wasActive && sessionID != "" {
		if _, err := m.proto.Cancel(ctx, sessionID); err != nil {
			log.Warnf("cancel session %s: %v", sessionID, err)
		}
		log.SessionEnd(count)
		m.refreshHistory(ctx)
	}
	return nil
}

// Close releases the microphone and any pending audio. Late responses are
// dropped afterwards.
func (m *Machine) Close() {
	m.mu.Lock()
	m.gen++
	h, p := m.handle, m.pending
	m.handle, m.pending = nil, nil
	m.acquiring, m.stopping, m.starting, m.submitting = false, false, false, false
	m.mu.Unlock()
	m.release(h, p)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) SessionID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessionID
}

func (m *Machine) Difficulty() coach.Difficulty {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.difficulty
}

// Transcript returns a copy of the turns so far.
func (m *Machine) Transcript() []coach.Turn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]coach.Turn(nil), m.transcript...)
}

// Result returns the session result once Finished.
func (m *Machine) Result() (coach.SessionResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.result == nil {
		return coach.SessionResult{}, false
	}
	return m.result.Clone(), true
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      m.state,
		Difficulty: m.difficulty,
		SessionID:  m.sessionID,
		Transcript: append([]coach.Turn(nil), m.transcript...),
		Recording:  m.handle != nil || m.acquiring,
		Pending:    m.pending != nil,
		Starting:   m.starting,
		Stopping:   m.stopping,
		Submitting: m.submitting,
	}
	if m.handle != nil {
		s.RecordingSince = time.Now().Add(-m.handle.Elapsed())
	}
	if m.pending != nil {
		s.PendingDuration = m.pending.Duration
	}
	if m.result != nil {
		r := m.result.Clone()
		s.Result = &r
	}
	return s
}

func (m *Machine) checkActive(op string) error {
	if m.state != StateActive {
		return invalidState(op, m.state)
	}
	return nil
}

func (m *Machine) appendLocked(turns ...coach.Turn) {
	for _, t := range turns {
		m.transcript = append(m.transcript, t)
		meta := t.Meta()
		log.TranscriptLine(meta.SessionID, meta.Kind, t.Text())
	}
}

// resetLocked clears the session and returns what must be released.
func (m *Machine) resetLocked() (*audio.Handle, *audio.Artifact, string, int) {
	h, p := m.handle, m.pending
	id, count := m.sessionID, len(m.transcript)
	m.gen++
	m.state = StateSetup
	m.sessionID = ""
	m.transcript = nil
	m.result = nil
	m.handle, m.pending = nil, nil
	m.acquiring, m.stopping, m.starting, m.submitting = false, false, false, false
	return h, p, id, count
}

func (m *Machine) release(h *audio.Handle, p *audio.Artifact) {
	if h != nil {
		h.Release()
	}
	if p != nil {
		m.rec.Discard(p)
	}
}

func (m *Machine) notify() {
	if m.observer == nil {
		return
	}
	m.observer(m.Snapshot())
}

func (m *Machine) refreshHistory(ctx context.Context) {
	if m.history == nil {
		return
	}
	if err := m.history.Refresh(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warnf("history refresh: %v", err)
	}
}

func logSubmit(sessionID string, size int, dur time.Duration, b coach.Batch, finished bool) {
	st := log.SubmitStats{
		SessionID: sessionID,
		AudioS:    dur.Seconds(),
		SizeKB:    float64(size) / 1024,
		Turns:     len(b.Turns),
		Finished:  finished,
	}
	if t := b.Timing; t != nil {
		st.SetupMs = ms(t.Setup())
		st.UploadMs = ms(t.Upload)
		st.TTFBMs = ms(t.TTFB)
		st.TotalMs = ms(t.Total)
		st.ConnReused = t.ConnReused
		st.TLSProto = t.TLSProto
	}
	log.SubmitMetrics(st)
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }
