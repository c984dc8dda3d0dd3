package main

import (
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/training-app/internal/audio"
	"github.com/lowaak/smart-trainer/training-app/internal/backend"
	"github.com/lowaak/smart-trainer/training-app/internal/config"
	"github.com/lowaak/smart-trainer/training-app/internal/logging"
	"github.com/lowaak/smart-trainer/training-app/internal/metrics"
	"github.com/lowaak/smart-trainer/training-app/internal/store"
	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

// app is everything a command needs, wired from configuration
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	runner  *training.Runner
	client  *backend.Client
	player  training.Player
	closers []func() error
}

// newApp loads configuration and wires storage, backend and runner.
// logPane, when set, receives log lines for an on-screen pane.
func newApp(cmd *cobra.Command, logPane io.Writer) (*app, error) {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	var extra []io.Writer
	if logPane != nil {
		extra = append(extra, logging.PaneWriter(logPane))
	}
	logger, logCloser, err := logging.Setup(cfg.Logging, extra...)
	if err != nil {
		return nil, fmt.Errorf("failed to set up logging: %w", err)
	}
	log.Logger = logger

	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()
	a.closers = append(a.closers, logCloser.Close)

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Str("storage", cfg.Storage.Type).
		Msg("Starting training-timer")

	slots, err := openSlots(cfg, a)
	if err != nil {
		return nil, err
	}

	outbox, err := store.OpenOutbox(cfg.Outbox.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open outbox: %w", err)
	}
	a.closers = append(a.closers, outbox.Close)

	a.client = backend.NewClient(backend.ClientConfig{
		BaseURL: cfg.Backend.URL,
		Token:   cfg.Backend.Token,
		Timeout: cfg.Backend.Timeout,
		Retries: cfg.Backend.Retries,
	}, logger)

	player, err := audio.New(cfg.Audio.Player, logger)
	if err != nil {
		return nil, err
	}
	a.player = player

	if cfg.Metrics.Listen != "" {
		metricsServer := metrics.NewServer(cfg.Metrics.Listen, logger)
		if err := metricsServer.Start(); err != nil {
			return nil, fmt.Errorf("failed to start metrics server: %w", err)
		}
		a.closers = append(a.closers, metricsServer.Stop)
	}

	a.runner = training.NewRunner(training.Config{
		Slot:              cfg.Storage.Slot,
		RestoreCatchUpCap: cfg.Timer.RestoreCatchUpCap,
		CueLead:           cueLead(cfg.Cues.Lead),
	}, training.RunnerDeps{
		Slots:     slots,
		Outbox:    outbox,
		Submitter: a.client,
		Starter:   a.client,
		Player:    player,
		Logger:    logger,
	})
	// The runner must stop before the stores it writes to close
	a.closers = append(a.closers, func() error {
		a.runner.Shutdown()
		return nil
	})

	ok = true
	return a, nil
}

func openSlots(cfg *config.Config, a *app) (training.SlotStore, error) {
	switch cfg.Storage.Type {
	case "redis":
		slots, err := store.OpenRedisSlots(store.RedisConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, slots.Close)
		return slots, nil
	default:
		return store.NewFileSlots(afero.NewOsFs(), cfg.Storage.Dir), nil
	}
}

// cueLead maps a configured lead of zero to "no lead"; the engine reads zero as its default
func cueLead(lead time.Duration) time.Duration {
	if lead == 0 {
		return -1
	}
	return lead
}

// close releases resources in reverse order of acquisition
func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error().Err(err).Msg("Failed to close resource")
		}
	}
	a.closers = nil
}
