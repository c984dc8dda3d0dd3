package training

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/training-app/internal/store"
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeTimers is a manual clock. Callbacks run synchronously on the caller's
// goroutine, in deadline order, which is what an Engine expects.
type fakeTimers struct {
	now     time.Time
	nextSeq int
	pending []*fakeTimer
}

type fakeTimer struct {
	owner    *fakeTimers
	deadline time.Time
	seq      int
	fn       func()
	stopped  bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped {
		return false
	}
	t.stopped = true
	t.owner.remove(t)
	return true
}

func newFakeTimers() *fakeTimers {
	return &fakeTimers{now: epoch}
}

func (f *fakeTimers) Now() time.Time { return f.now }

func (f *fakeTimers) AfterFunc(d time.Duration, fn func()) Timer {
	t := &fakeTimer{owner: f, deadline: f.now.Add(d), seq: f.nextSeq, fn: fn}
	f.nextSeq++
	f.pending = append(f.pending, t)
	return t
}

func (f *fakeTimers) remove(t *fakeTimer) {
	for i, p := range f.pending {
		if p == t {
			f.pending = append(f.pending[:i], f.pending[i+1:]...)
			return
		}
	}
}

// Advance moves the clock forward by d and then runs every due callback,
// including ones armed by earlier callbacks
func (f *fakeTimers) Advance(d time.Duration) {
	f.now = f.now.Add(d)
	for {
		next := f.nextDue()
		if next == nil {
			return
		}
		next.stopped = true
		f.remove(next)
		next.fn()
	}
}

func (f *fakeTimers) nextDue() *fakeTimer {
	sort.SliceStable(f.pending, func(i, j int) bool {
		if !f.pending[i].deadline.Equal(f.pending[j].deadline) {
			return f.pending[i].deadline.Before(f.pending[j].deadline)
		}
		return f.pending[i].seq < f.pending[j].seq
	})
	if len(f.pending) == 0 || f.pending[0].deadline.After(f.now) {
		return nil
	}
	return f.pending[0]
}

// FireAll runs every pending callback now, regardless of deadline, the way a
// throttled host timer can fire early
func (f *fakeTimers) FireAll() {
	fire := append([]*fakeTimer(nil), f.pending...)
	f.pending = nil
	for _, t := range fire {
		t.stopped = true
		t.fn()
	}
}

func (f *fakeTimers) Pending() int { return len(f.pending) }

// fakePlayer records player calls
type fakePlayer struct {
	mu      sync.Mutex
	played  []string
	calls   []string
	playErr error
}

func (p *fakePlayer) Play(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, "play:"+url)
	if p.playErr != nil {
		return p.playErr
	}
	p.played = append(p.played, url)
	return nil
}

func (p *fakePlayer) Pause()  { p.record("pause") }
func (p *fakePlayer) Resume() { p.record("resume") }
func (p *fakePlayer) Stop()   { p.record("stop") }

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePlayer) Played() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.played...)
}

var errBackendDown = errors.New("backend down")

// fakeSubmitter records submissions. With block set, each call waits for a
// value on release before returning.
type fakeSubmitter struct {
	mu      sync.Mutex
	records []CompletionRecord
	fail    bool
	block   chan struct{}
	release chan error
}

func (s *fakeSubmitter) SubmitCompletion(ctx context.Context, rec CompletionRecord) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	fail := s.fail
	block, release := s.block, s.release
	s.mu.Unlock()

	if block != nil {
		block <- struct{}{}
		select {
		case err := <-release:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if fail {
		return errBackendDown
	}
	return nil
}

func (s *fakeSubmitter) Records() []CompletionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]CompletionRecord(nil), s.records...)
}

func (s *fakeSubmitter) SetFail(fail bool) {
	s.mu.Lock()
	s.fail = fail
	s.mu.Unlock()
}

type fakeStarter struct {
	payload StartPayload
	err     error
}

func (s fakeStarter) StartTraining(_ context.Context, workoutID string) (StartPayload, error) {
	if s.err != nil {
		return StartPayload{}, s.err
	}
	p := s.payload
	p.WorkoutID = workoutID
	return p, nil
}

// harness wires an Engine to in-memory collaborators
type harness struct {
	t         *testing.T
	timers    *fakeTimers
	fs        afero.Fs
	slots     *store.FileSlots
	outbox    *store.Outbox
	submitter *fakeSubmitter
	player    *fakePlayer
	engine    *Engine
	changes   []Snapshot
	ended     []Trigger

	// set to make every outbox enqueue fail
	enqueueErr error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	h := &harness{
		t:         t,
		timers:    newFakeTimers(),
		fs:        fs,
		slots:     store.NewFileSlots(fs, "/state"),
		outbox:    openOutbox(t),
		submitter: &fakeSubmitter{},
		player:    &fakePlayer{},
	}
	h.engine = h.newEngine()
	return h
}

// newEngine builds another engine on the same storage and clock, as a reload would
func (h *harness) newEngine() *Engine {
	return NewEngine(Config{}, Deps{
		Timers:        h.timers,
		Slots:         h.slots,
		Outbox:        flakyOutbox{Outbox: h.outbox, err: &h.enqueueErr},
		Submitter:     h.submitter,
		Player:        h.player,
		Logger:        zerolog.Nop(),
		OnChange:      func(s Snapshot) { h.changes = append(h.changes, s) },
		OnTimelineEnd: func(tr Trigger) { h.ended = append(h.ended, tr) },
	})
}

func (h *harness) start(steps ...workout.Step) {
	h.t.Helper()
	require.NoError(h.t, h.engine.StartFromServer(StartPayload{
		TrainingID: "tr-1",
		WorkoutID:  "wk-1",
		UserID:     "user-1",
		Steps:      steps,
	}))
}

func (h *harness) session() *Session {
	return h.engine.Snapshot().Session
}

func (h *harness) elapsed() []int64 {
	s := h.session()
	out := make([]int64, len(s.Steps))
	for i := range s.Steps {
		out[i] = s.Steps[i].ElapsedMillis
	}
	return out
}

// flakyOutbox fails Enqueue while *err is set
type flakyOutbox struct {
	*store.Outbox
	err *error
}

func (o flakyOutbox) Enqueue(ctx context.Context, trainingID string, payload []byte) error {
	if *o.err != nil {
		return *o.err
	}
	return o.Outbox.Enqueue(ctx, trainingID, payload)
}

func openOutbox(t *testing.T) *store.Outbox {
	t.Helper()
	ob, err := store.OpenOutbox(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { ob.Close() })
	return ob
}

// --- workout step builders ---

func countdown(seconds int) workout.Step {
	return workout.Step{
		Kind:      workout.StepKindSet,
		Name:      "Plank",
		Exercises: []workout.Exercise{{ID: "plank", Name: "Plank", Kind: workout.ExerciseKindCountdown, DurationSeconds: seconds}},
	}
}

func restPause(seconds int, auto bool) workout.Step {
	return workout.Step{Kind: workout.StepKindPause, DurationSeconds: seconds, AutoAdvance: auto}
}

func openSet() workout.Step {
	return workout.Step{
		Kind:      workout.StepKindSet,
		Name:      "Push-ups",
		Exercises: []workout.Exercise{{ID: "pushup", Name: "Push-ups", Kind: workout.ExerciseKindRepetition, Reps: 12}},
	}
}

func superset(repeats int, restSeconds int) workout.Step {
	st := workout.Step{
		ID:               "ss",
		Kind:             workout.StepKindSet,
		Name:             "Arms",
		Superset:         true,
		RepeatCount:      repeats,
		EstimatedSeconds: 60,
		Exercises: []workout.Exercise{
			{ID: "curl", Name: "Curl", Kind: workout.ExerciseKindRepetition, Reps: 10},
			{ID: "dip", Name: "Dip", Kind: workout.ExerciseKindRepetition, Reps: 10},
		},
	}
	if restSeconds > 0 {
		st.RestBetweenRepeats = &workout.Rest{Seconds: restSeconds, AutoAdvance: true}
	}
	return st
}
