package training

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/events"
	"github.com/lowaak/smart-trainer/training-app/internal/safego"
)

var ErrRunnerClosed = errors.New("training: runner closed")

// RunnerDeps are the collaborators of a Runner
type RunnerDeps struct {
	Slots     SlotStore
	Outbox    Outbox // optional
	Submitter Submitter
	Starter   Starter // optional, needed by Begin
	Player    Player  // optional
	Logger    zerolog.Logger
}

// Runner owns an Engine on a dedicated goroutine. Every public method posts a
// request to that goroutine and waits for it, and timer callbacks are posted
// the same way, so engine state is only ever touched by one goroutine.
type Runner struct {
	engine    *Engine
	starter   Starter
	outbox    Outbox
	submitter Submitter
	logger    zerolog.Logger

	snapshots *events.ChannelEvent[Snapshot]
	failures  *events.CallbackEvent[error]

	// Goroutine management
	inbox        chan func()
	doneChan     chan struct{} // Closed to signal shutdown
	wg           sync.WaitGroup
	background   sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewRunner creates a Runner and starts its goroutine
func NewRunner(cfg Config, deps RunnerDeps) *Runner {
	if deps.Slots == nil {
		panic("Runner: slots cannot be nil")
	}
	if deps.Submitter == nil {
		panic("Runner: submitter cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		starter:   deps.Starter,
		outbox:    deps.Outbox,
		submitter: deps.Submitter,
		logger:    deps.Logger.With().Str("component", "runner").Logger(),
		snapshots: events.NewChannelEvent[Snapshot](true),
		failures:  events.NewCallbackEvent[error](),
		inbox:     make(chan func(), 16),
		doneChan:  make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
	}
	r.engine = NewEngine(cfg, Deps{
		Timers:        loopTimers{r: r},
		Slots:         deps.Slots,
		Outbox:        deps.Outbox,
		Submitter:     deps.Submitter,
		Player:        deps.Player,
		Logger:        deps.Logger,
		OnChange:      r.snapshots.Notify,
		OnTimelineEnd: r.onTimelineEnd,
	})

	r.wg.Add(1)
	safego.Go(r.logger, r.loop)
	return r
}

func (r *Runner) loop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.doneChan:
			r.engine.Close()
			r.logger.Debug().Msg("loop exiting")
			return
		case fn := <-r.inbox:
			fn()
		}
	}
}

// post queues fn for the loop without waiting for it
func (r *Runner) post(fn func()) {
	select {
	case r.inbox <- fn:
	case <-r.doneChan:
	}
}

// do runs fn on the loop and waits for it to finish
func (r *Runner) do(fn func()) error {
	done := make(chan struct{})
	select {
	case r.inbox <- func() { defer close(done); fn() }:
	case <-r.doneChan:
		return ErrRunnerClosed
	}
	select {
	case <-done:
		return nil
	case <-r.doneChan:
		return ErrRunnerClosed
	}
}

func (r *Runner) call(fn func() error) error {
	var err error
	if doErr := r.do(func() { err = fn() }); doErr != nil {
		return doErr
	}
	return err
}

// loopTimers schedules callbacks onto the Runner's loop
type loopTimers struct {
	r *Runner
}

func (t loopTimers) Now() time.Time {
	return time.Now()
}

func (t loopTimers) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, func() { t.r.post(f) })
}

// --- Commands ---

// Begin asks the backend to start a training for workoutID and makes it live
func (r *Runner) Begin(ctx context.Context, workoutID string) error {
	if r.starter == nil {
		return errors.New("training: no starter configured")
	}
	p, err := r.starter.StartTraining(ctx, workoutID)
	if err != nil {
		return err
	}
	return r.StartFromServer(p)
}

func (r *Runner) StartFromServer(p StartPayload) error {
	return r.call(func() error { return r.engine.StartFromServer(p) })
}

func (r *Runner) Start() error           { return r.call(r.engine.Start) }
func (r *Runner) Pause() error           { return r.call(r.engine.Pause) }
func (r *Runner) Advance() error         { return r.call(r.engine.Advance) }
func (r *Runner) MarkSoundPlayed() error { return r.call(r.engine.MarkSoundPlayed) }
func (r *Runner) Suspend() error         { return r.call(r.engine.Suspend) }

func (r *Runner) Discard() error {
	return r.do(r.engine.Discard)
}

// Restore loads the persisted session, paused
func (r *Runner) Restore(ctx context.Context) (bool, error) {
	var restored bool
	err := r.call(func() error {
		var err error
		restored, err = r.engine.Restore(ctx)
		return err
	})
	return restored, err
}

// Finish finalizes on the loop, submits off it, then applies the outcome on
// the loop. A concurrent Finish for the same training gets ErrFinishInFlight.
func (r *Runner) Finish(ctx context.Context) error {
	var rec CompletionRecord
	err := r.call(func() error {
		var err error
		rec, err = r.engine.beginFinish(ctx)
		return err
	})
	if err != nil {
		return err
	}

	submitErr := r.engine.submit(ctx, rec)
	if err := r.do(func() { r.engine.endFinish(ctx, rec, submitErr) }); err != nil {
		return err
	}
	return submitErr
}

// FlushOutbox resubmits completion records left over from earlier runs
func (r *Runner) FlushOutbox(ctx context.Context) (int, error) {
	if r.outbox == nil {
		return 0, nil
	}
	return FlushOutbox(ctx, r.outbox, r.submitter, r.logger)
}

// --- Reads ---

func (r *Runner) Snapshot() Snapshot {
	var snap Snapshot
	_ = r.do(func() { snap = r.engine.Snapshot() })
	return snap
}

func (r *Runner) CurrentStep() (RuntimeStep, bool) {
	var step RuntimeStep
	var ok bool
	_ = r.do(func() { step, ok = r.engine.CurrentStep() })
	return step, ok
}

func (r *Runner) ElapsedNow() time.Duration {
	var d time.Duration
	_ = r.do(func() { d = r.engine.ElapsedNow() })
	return d
}

func (r *Runner) Restored() bool {
	var restored bool
	_ = r.do(func() { restored = r.engine.Restored() })
	return restored
}

// ListenToSnapshots registers ch for state changes; the latest snapshot is sent immediately
func (r *Runner) ListenToSnapshots(ch chan Snapshot) func() {
	return r.snapshots.Listen(ch)
}

// ListenToFailures registers a callback for errors from background work,
// such as the automatic finish at the end of the timeline
func (r *Runner) ListenToFailures(cb func(error)) func() {
	return r.failures.Listen(cb)
}

// onTimelineEnd runs on the loop; the finish itself must not
func (r *Runner) onTimelineEnd(trigger Trigger) {
	r.logger.Info().Str("trigger", string(trigger)).Msg("timeline ended, finishing")
	safego.GoWait(r.logger, &r.background, func() {
		err := r.Finish(r.ctx)
		switch {
		case err == nil, errors.Is(err, ErrFinishInFlight), errors.Is(err, ErrRunnerClosed):
		default:
			r.failures.Notify(err)
		}
	})
}

// Shutdown stops the loop and waits for background work.
// Safe to call multiple times - only the first call has effect
func (r *Runner) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.logger.Debug().Msg("shutting down")
		r.cancel()
		close(r.doneChan)
		r.wg.Wait()
		r.background.Wait()
		r.snapshots.Close()
	})
}
