package tui

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/safego"
	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

const DefaultRenderTick = 100 * time.Millisecond

// SnapshotSource publishes engine snapshots; training.Runner is one
type SnapshotSource interface {
	ListenToSnapshots(ch chan training.Snapshot) func()
}

// BaseView contains the logic shared by all UI implementations
type BaseView struct {
	viewImpl   ViewImpl
	model      *Model
	controller *Controller
	source     SnapshotSource
	renderTick time.Duration
	now        func() time.Time
	context    context.Context
	cancelFunc context.CancelFunc
	waitGroup  sync.WaitGroup
	logger     zerolog.Logger
}

// NewBaseViewArg holds the arguments for creating a new BaseView
type NewBaseViewArg struct {
	ViewImpl   ViewImpl
	Model      *Model
	Controller *Controller
	Source     SnapshotSource
	RenderTick time.Duration    // DefaultRenderTick when zero
	Now        func() time.Time // time.Now when nil
	Logger     zerolog.Logger
}

// NewBaseView creates a new BaseView with the given implementation
func NewBaseView(args NewBaseViewArg) *BaseView {
	if args.ViewImpl == nil {
		panic("BaseView: ViewImpl cannot be nil")
	}
	if args.Model == nil {
		panic("BaseView: Model cannot be nil")
	}
	if args.Controller == nil {
		panic("BaseView: Controller cannot be nil")
	}
	if args.Source == nil {
		panic("BaseView: Source cannot be nil")
	}
	if args.RenderTick <= 0 {
		args.RenderTick = DefaultRenderTick
	}
	if args.Now == nil {
		args.Now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())

	base := &BaseView{
		viewImpl:   args.ViewImpl,
		model:      args.Model,
		controller: args.Controller,
		source:     args.Source,
		renderTick: args.RenderTick,
		now:        args.Now,
		context:    ctx,
		cancelFunc: cancel,
		logger:     args.Logger.With().Str("component", "tui").Logger(),
	}

	// Initialize framework-specific widgets
	args.ViewImpl.Initialize(args.Controller)

	// Set up keyboard handlers
	args.ViewImpl.SetupKeyboardHandlers(args.Controller)

	base.setupEventListeners()
	return base
}

func (base *BaseView) setupEventListeners() {
	// Snapshots redraw immediately; the ticker keeps a running clock moving
	snapChan := make(chan training.Snapshot, 1)
	snapUnregister := base.source.ListenToSnapshots(snapChan)
	safego.GoWait(base.logger, &base.waitGroup, func() {
		defer snapUnregister()
		ticker := time.NewTicker(base.renderTick)
		defer ticker.Stop()

		var latest training.Snapshot
		for {
			select {
			case <-base.context.Done():
				return
			case snap := <-snapChan:
				latest = snap
				base.viewImpl.UpdateTimer(NewTimerState(latest, base.now()))
			case <-ticker.C:
				if latest.Session != nil && latest.Session.Running {
					base.viewImpl.UpdateTimer(NewTimerState(latest, base.now()))
				}
			}
		}
	})

	// New log lines and resizes both re-render the tail
	logChan := make(chan string, 1)
	logUnregister := base.model.ListenToLog(logChan)
	safego.GoWait(base.logger, &base.waitGroup, func() {
		defer logUnregister()
		ticker := time.NewTicker(DefaultRenderTick)
		defer ticker.Stop()

		var lastHeight int
		for {
			select {
			case <-base.context.Done():
				return
			case <-logChan:
				base.updateLogDisplay()
			case <-ticker.C:
				if height := base.viewImpl.GetLogViewHeight(); height != lastHeight && height > 0 {
					lastHeight = height
					base.updateLogDisplay()
				}
			}
		}
	})

	closeChan := make(chan struct{}, 1)
	closeUnregister := base.model.ListenToCloseApplication(closeChan)
	safego.GoWait(base.logger, &base.waitGroup, func() {
		defer closeUnregister()
		select {
		case <-base.context.Done():
		case <-closeChan:
			base.viewImpl.Stop()
		}
	})
}

func (base *BaseView) updateLogDisplay() {
	height := base.viewImpl.GetLogViewHeight()
	if height <= 0 {
		return
	}
	base.viewImpl.SetLogLines(base.model.GetLogTail(height))
}

// Run starts the UI and blocks until it exits
func (base *BaseView) Run() error {
	return base.viewImpl.Run()
}

// Shutdown stops all goroutines and waits for them to finish
func (base *BaseView) Shutdown() {
	base.logger.Debug().Msg("shutting down")
	base.cancelFunc()
	base.waitGroup.Wait()
}
