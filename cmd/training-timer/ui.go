package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/rivo/tview"

	"github.com/lowaak/smart-trainer/training-app/internal/audio"
	"github.com/lowaak/smart-trainer/training-app/internal/safego"
	"github.com/lowaak/smart-trainer/training-app/internal/tui"
)

// runTimerUI shows the live session until the user quits or a signal arrives.
// Either way the session is suspended so it can be resumed later.
func runTimerUI(a *app, model *tui.Model) error {
	controller := tui.NewController(a.runner, model, a.logger)
	view := tui.NewTviewView(tview.NewApplication())
	if bell, ok := a.player.(*audio.BellPlayer); ok {
		// cues ring through the screen tview owns
		bell.Attach(view)
		defer bell.Attach(nil)
	}
	base := tui.NewBaseView(tui.NewBaseViewArg{
		ViewImpl:   view,
		Model:      model,
		Controller: controller,
		Source:     a.runner,
		RenderTick: a.cfg.Timer.RenderTick,
		Logger:     a.logger,
	})

	unregister := a.runner.ListenToFailures(func(err error) {
		a.logger.Error().Err(err).Msg("Saving the training failed - press F to retry")
	})
	defer unregister()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigChan)
	done := make(chan struct{})
	defer close(done)
	safego.Go(a.logger, func() {
		select {
		case <-done:
		case sig := <-sigChan:
			a.logger.Info().Str("signal", sig.String()).Msg("Signal received, suspending training")
			controller.Quit()
		}
	})

	err := base.Run()
	base.Shutdown()
	controller.Shutdown()
	return err
}
