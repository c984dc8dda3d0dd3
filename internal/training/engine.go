package training

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/metrics"
)

var (
	ErrNoSession       = errors.New("training: no active session")
	ErrSessionDone     = errors.New("training: session already finished")
	ErrUnloggedSession = errors.New("training: finished session is not logged or queued")
	ErrFinishInFlight  = errors.New("training: already finishing")
)

// Default values
const (
	DefaultSlot              = "training-session"
	DefaultRestoreCatchUpCap = 30 * time.Second
	DefaultCueLead           = 3 * time.Second
	DefaultStorageTimeout    = 2 * time.Second
)

// Config tunes an Engine
type Config struct {
	Slot              string        // main persistence slot, the page-hide snapshot uses Slot + ".hide"
	RestoreCatchUpCap time.Duration // most unseen time credited on restore
	CueLead           time.Duration // default cue lead before a target
	StorageTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.Slot == "" {
		c.Slot = DefaultSlot
	}
	if c.RestoreCatchUpCap <= 0 {
		c.RestoreCatchUpCap = DefaultRestoreCatchUpCap
	}
	if c.CueLead < 0 {
		c.CueLead = 0
	} else if c.CueLead == 0 {
		c.CueLead = DefaultCueLead
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = DefaultStorageTimeout
	}
	return c
}

// Deps are the collaborators of an Engine. Outbox and Player are optional.
type Deps struct {
	Timers    Timers
	Slots     SlotStore
	Outbox    Outbox
	Submitter Submitter
	Player    Player
	Logger    zerolog.Logger

	// OnChange receives a snapshot after every committed change
	OnChange func(Snapshot)
	// OnTimelineEnd is called when an advance runs past the last step
	OnTimelineEnd func(trigger Trigger)
}

// Snapshot is a read-only view of the engine for presentation
type Snapshot struct {
	Session     *Session
	Restored    bool
	Finishing   bool
	LastTrigger Trigger
	// the most recent record the backend accepted
	Logged *CompletionRecord
}

// Engine owns the single live training session.
//
// It is not safe for concurrent use: every method, and every callback
// scheduled through Timers, must run on the same goroutine. Runner provides that.
type Engine struct {
	cfg       Config
	timers    Timers
	slots     SlotStore
	outbox    Outbox
	submitter Submitter
	logger    zerolog.Logger

	onChange      func(Snapshot)
	onTimelineEnd func(Trigger)

	session     *Session
	restored    bool
	lastTrigger Trigger
	lastLogged  *CompletionRecord
	finishing   map[string]bool
	unqueued    string // done session whose record is not in the outbox

	advancer *autoAdvancer
	cues     *cueScheduler
}

// NewEngine creates an engine with no session
func NewEngine(cfg Config, deps Deps) *Engine {
	if deps.Timers == nil {
		panic("Engine: timers cannot be nil")
	}
	if deps.Slots == nil {
		panic("Engine: slots cannot be nil")
	}
	if deps.Submitter == nil {
		panic("Engine: submitter cannot be nil")
	}
	player := deps.Player
	if player == nil {
		player = silentPlayer{}
	}

	cfg = cfg.withDefaults()
	e := &Engine{
		cfg:           cfg,
		timers:        deps.Timers,
		slots:         deps.Slots,
		outbox:        deps.Outbox,
		submitter:     deps.Submitter,
		logger:        deps.Logger.With().Str("component", "training").Logger(),
		onChange:      deps.OnChange,
		onTimelineEnd: deps.OnTimelineEnd,
		finishing:     make(map[string]bool),
	}
	e.advancer = newAutoAdvancer(deps.Timers, e.onAutoAdvanceDue)
	e.cues = newCueScheduler(deps.Timers, player, cfg.CueLead, e.logger, e.onCueDue)
	return e
}

// --- Reads ---

// Snapshot returns a deep copy of the current state
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		Session:     e.session.Clone(),
		Restored:    e.restored,
		LastTrigger: e.lastTrigger,
		Logged:      e.lastLogged,
	}
	if e.session != nil {
		snap.Finishing = e.finishing[e.session.TrainingID]
	}
	return snap
}

// CurrentStep returns a copy of the current step
func (e *Engine) CurrentStep() (RuntimeStep, bool) {
	cur := e.session.Current()
	if cur == nil {
		return RuntimeStep{}, false
	}
	return *cur, true
}

// ElapsedNow is the current step's elapsed time right now, without committing it
func (e *Engine) ElapsedNow() time.Duration {
	if e.session == nil {
		return 0
	}
	return time.Duration(e.session.CurrentStepElapsedAt(e.timers.Now().UnixMilli())) * time.Millisecond
}

// Restored reports whether the live session came from storage
func (e *Engine) Restored() bool {
	return e.restored
}

// --- Commands ---

// StartFromServer expands and normalizes a backend start payload and makes it the live session
func (e *Engine) StartFromServer(p StartPayload) error {
	now := e.timers.Now()
	s, err := Normalize(RawTimeline{
		TrainingID:   p.TrainingID,
		WorkoutID:    p.WorkoutID,
		WorkoutName:  p.WorkoutName,
		UserID:       p.UserID,
		Steps:        Expand(p.Steps),
		CurrentIndex: p.CurrentIndex,
		Running:      p.Running,
		Done:         p.Done,
		StartedAt:    p.StartedAt,
		CompletedAt:  p.CompletedAt,
	}, now.UnixMilli())
	if err != nil {
		return err
	}

	if e.session != nil && e.unqueued == e.session.TrainingID {
		// its record exists nowhere else
		if err := e.enqueue(context.Background(), recordOf(e.session)); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrUnloggedSession, e.session.TrainingID, err)
		}
	}
	if e.session != nil && e.session.TrainingID != s.TrainingID {
		e.logger.Info().Str("previous", e.session.TrainingID).Str("training_id", s.TrainingID).Msg("replacing live session")
	}
	e.session = s
	e.unqueued = ""
	e.restored = false
	e.lastTrigger = TriggerServer
	e.logger.Info().
		Str("training_id", s.TrainingID).
		Str("workout_id", s.WorkoutID).
		Int("steps", len(s.Steps)).
		Msg("training started from server")
	e.afterCommit()
	return nil
}

// Start starts or resumes the current step
func (e *Engine) Start() error {
	return e.mutate("", func(s *Session, now time.Time) error {
		if s.Done {
			return ErrSessionDone
		}
		s.resume(now)
		return nil
	})
}

// Pause commits the running time and stops the clock
func (e *Engine) Pause() error {
	return e.mutate("", func(s *Session, _ time.Time) error {
		if s.Done {
			return ErrSessionDone
		}
		s.pause()
		return nil
	})
}

// Advance moves to the next step on user request
func (e *Engine) Advance() error {
	return e.advance(TriggerManual)
}

// MarkSoundPlayed sets the current step's one-shot cue guard
func (e *Engine) MarkSoundPlayed() error {
	return e.mutate("", func(s *Session, _ time.Time) error {
		cur := s.Current()
		if cur == nil {
			return ErrSessionDone
		}
		cur.SoundPlayed = true
		return nil
	})
}

// Discard drops the live session and clears storage
func (e *Engine) Discard() {
	if e.session != nil {
		e.logger.Info().Str("training_id", e.session.TrainingID).Msg("session discarded")
	}
	e.destroy()
	e.restored = false
	e.notify()
}

// Close cancels every deferred callback. The persisted session is kept.
func (e *Engine) Close() {
	e.advancer.clear()
	e.cues.hardStop()
}

// --- Internals ---

// mutate applies fn to a committed copy of the session and, on success,
// replaces the live session with it
func (e *Engine) mutate(trigger Trigger, fn func(s *Session, now time.Time) error) error {
	if e.session == nil {
		return ErrNoSession
	}
	now := e.timers.Now()
	next := e.session.Clone()
	next.commit(now.UnixMilli())
	if err := fn(next, now); err != nil {
		return err
	}
	e.session = next
	if trigger != "" {
		e.lastTrigger = trigger
	}
	e.afterCommit()
	return nil
}

// afterCommit mirrors a committed state to storage, the schedulers and listeners
func (e *Engine) afterCommit() {
	e.persist()
	e.syncSchedulers()
	e.notify()
}

func (e *Engine) syncSchedulers() {
	nowMs := e.timers.Now().UnixMilli()
	e.advancer.sync(e.session, nowMs)
	e.cues.sync(e.session, nowMs)
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange(e.Snapshot())
	}
}

// destroy drops the session, its deferred callbacks and both slots
func (e *Engine) destroy() {
	e.session = nil
	e.unqueued = ""
	e.syncSchedulers()
	e.clearSlots()
}

// nextIndex is the index after the current step, skipping the rest of a
// superset iteration
func nextIndex(s *Session) int {
	cur := &s.Steps[s.CurrentIndex]
	next := s.CurrentIndex + 1
	if cur.Superset && cur.SubsetID != "" {
		for next < len(s.Steps) &&
			s.Steps[next].SubsetID == cur.SubsetID &&
			s.Steps[next].LoopIndex == cur.LoopIndex {
			next++
		}
	}
	return next
}

// advance commits the outgoing step and moves the cursor. Running past the
// last step pauses on it and reports the end of the timeline.
func (e *Engine) advance(trigger Trigger) error {
	ended := false
	from := 0
	err := e.mutate(trigger, func(s *Session, now time.Time) error {
		if s.Done {
			return ErrSessionDone
		}
		from = s.CurrentIndex
		next := nextIndex(s)
		if next >= len(s.Steps) {
			s.pause()
			ended = true
			return nil
		}
		s.CurrentIndex = next
		if s.Running {
			t := now.UTC()
			s.RunningSince = &t
		}
		s.applyFlags()
		return nil
	})
	if err != nil {
		return err
	}

	metrics.StepTransitions.WithLabelValues(string(trigger)).Inc()
	e.logger.Info().
		Str("training_id", e.session.TrainingID).
		Str("trigger", string(trigger)).
		Int("from", from).
		Int("to", e.session.CurrentIndex).
		Bool("timeline_end", ended).
		Msg("step advanced")

	if ended && e.onTimelineEnd != nil {
		e.onTimelineEnd(trigger)
	}
	return nil
}

func (e *Engine) onAutoAdvanceDue(key runKey, seq uint64) {
	if !e.advancer.claim(key, seq) {
		return
	}
	live, ok := runKeyOf(e.session)
	if !ok || live != key {
		return
	}

	nowMs := e.timers.Now().UnixMilli()
	if gap := key.DurationMs - e.session.CurrentStepElapsedAt(nowMs); gap > 0 {
		// fired early; wait out the residual instead of skipping ahead
		metrics.AutoAdvanceReschedules.Inc()
		e.logger.Debug().Int64("gap_ms", gap).Str("step_id", key.StepID).Msg("auto-advance fired early, rescheduling")
		e.advancer.arm(key, time.Duration(gap)*time.Millisecond)
		return
	}

	if err := e.advance(TriggerAuto); err != nil {
		e.logger.Warn().Err(err).Msg("auto-advance failed")
	}
}

func (e *Engine) onCueDue(key cueKey, token uint64) {
	if !e.cues.claim(key, token) {
		return
	}
	live, ok := e.cues.desired(key.Kind, e.session)
	if !ok || live != key {
		return
	}

	nowMs := e.timers.Now().UnixMilli()
	if gap := key.fireAtMs() - elapsedFor(key.Kind, e.session, nowMs); gap > 0 {
		e.cues.arm(key, gap)
		return
	}

	if err := e.cues.play(key); err != nil {
		metrics.CuePlaybackErrors.Inc()
	} else {
		metrics.CuesFired.WithLabelValues(key.Kind.String()).Inc()
	}

	err := e.mutate("", func(s *Session, _ time.Time) error {
		cur := s.Current()
		if cur == nil {
			return ErrSessionDone
		}
		if key.Kind == cueSubset {
			s.markSubsetCuePlayed(cur.subsetLoopKey())
		} else {
			cur.SoundPlayed = true
		}
		return nil
	})
	if err != nil {
		e.logger.Warn().Err(err).Msg("could not record cue as played")
	}
}
