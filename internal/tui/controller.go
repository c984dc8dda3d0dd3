package tui

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/safego"
	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

// finishTimeout bounds a finish started from the keyboard
const finishTimeout = 30 * time.Second

// Commands is the part of training.Runner the UI drives
type Commands interface {
	Snapshot() training.Snapshot
	Start() error
	Pause() error
	Advance() error
	MarkSoundPlayed() error
	Finish(ctx context.Context) error
	Discard() error
	Suspend() error
}

// Controller turns key presses into runner commands
type Controller struct {
	commands Commands
	model    *Model
	logger   zerolog.Logger
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewController creates a new Controller with the given dependencies
func NewController(commands Commands, model *Model, logger zerolog.Logger) *Controller {
	if commands == nil {
		panic("Controller: commands cannot be nil")
	}
	if model == nil {
		panic("Controller: model cannot be nil")
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		commands: commands,
		model:    model,
		logger:   logger.With().Str("component", "tui").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// ToggleTimer starts, pauses, or resumes the training based on current state
func (c *Controller) ToggleTimer() {
	snap := c.commands.Snapshot()
	s := snap.Session
	switch {
	case s == nil:
		c.logger.Info().Msg("No training loaded")
	case s.Done:
		c.logger.Info().Msg("Training is finished - press F to save it")
	case s.Running:
		c.report("pause", c.commands.Pause())
	default:
		c.report("start", c.commands.Start())
	}
}

// NextStep manually advances to the next step
func (c *Controller) NextStep() {
	c.report("advance", c.commands.Advance())
}

// SilenceCue marks the current step's cue as played
func (c *Controller) SilenceCue() {
	c.report("silence cue", c.commands.MarkSoundPlayed())
}

// FinishTraining finalizes and submits in the background so the UI keeps drawing
func (c *Controller) FinishTraining() {
	safego.GoWait(c.logger, &c.wg, func() {
		ctx, cancel := context.WithTimeout(c.ctx, finishTimeout)
		defer cancel()
		err := c.commands.Finish(ctx)
		if errors.Is(err, training.ErrFinishInFlight) {
			c.logger.Info().Msg("Already saving")
			return
		}
		if c.report("finish", err) {
			c.logger.Info().Msg("Training saved")
		}
	})
}

// DiscardTraining drops the session without logging it
func (c *Controller) DiscardTraining() {
	if c.report("discard", c.commands.Discard()) {
		c.logger.Info().Msg("Training discarded")
	}
}

// Quit snapshots the session so it can be resumed, then closes the UI
func (c *Controller) Quit() {
	c.report("suspend", c.commands.Suspend())
	c.model.RequestCloseApplication()
}

// report logs a failed command and returns true on success
func (c *Controller) report(action string, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, training.ErrNoSession):
		c.logger.Info().Msgf("Cannot %s: no training loaded", action)
	case errors.Is(err, training.ErrSessionDone):
		c.logger.Info().Msgf("Cannot %s: training already finished", action)
	default:
		c.logger.Error().Err(err).Msgf("Failed to %s", action)
	}
	return false
}

// Shutdown cancels a pending finish and waits for it
func (c *Controller) Shutdown() {
	c.cancel()
	c.wg.Wait()
}
