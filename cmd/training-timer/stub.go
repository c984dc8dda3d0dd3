package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/lowaak/smart-trainer/training-app/internal/backend"
	"github.com/lowaak/smart-trainer/training-app/internal/config"
	"github.com/lowaak/smart-trainer/training-app/internal/logging"
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

var stubCmd = &cobra.Command{
	Use:   "stub-backend",
	Short: "Serve a local training backend",
	Long: `Serve workouts from a YAML library and accept completions in memory, for
running the timer without the real backend.`,
	Args: cobra.NoArgs,
	RunE: runStub,
}

func init() {
	stubCmd.Flags().String("stub.listen", "", "Address to listen on")
	stubCmd.Flags().String("stub.library", "", "Workout library YAML file")
	rootCmd.AddCommand(stubCmd)
}

func runStub(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// The stub has no UI, so it logs to the terminal
	cfg.Logging.File = ""
	logger, closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()
	log.Logger = logger

	library, err := workout.LoadLibrary(afero.NewOsFs(), cfg.Stub.Library)
	if err != nil {
		return fmt.Errorf("failed to load workout library: %w", err)
	}

	server := &http.Server{
		Handler:           backend.NewStubServer(library, cfg.Backend.Token, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}
	ln, err := net.Listen("tcp", cfg.Stub.Listen)
	if err != nil {
		return err
	}
	logger.Info().
		Str("addr", ln.Addr().String()).
		Int("workouts", len(library.All())).
		Msg("Starting stub backend")

	serveErr := make(chan error, 1)
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-serveErr:
		return err
	case <-sigChan:
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}
