package metrics

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	// Timeline metrics
	StepTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_timer_step_transitions_total",
			Help: "Step transitions by trigger",
		},
		[]string{"trigger"},
	)

	AutoAdvanceReschedules = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "training_timer_auto_advance_reschedules_total",
			Help: "Auto-advance callbacks that fired early and were rescheduled for the residual gap",
		},
	)

	// Cue metrics
	CuesFired = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_timer_cues_fired_total",
			Help: "Cue sounds fired by kind",
		},
		[]string{"kind"},
	)

	CuePlaybackErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "training_timer_cue_playback_errors_total",
			Help: "Cue sounds the player rejected",
		},
	)

	// Persistence metrics
	SessionRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_timer_session_restores_total",
			Help: "Session restore attempts by result",
		},
		[]string{"result"},
	)

	StorageErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_timer_storage_errors_total",
			Help: "Slot storage failures by operation",
		},
		[]string{"op"},
	)

	// Completion metrics
	CompletionSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "training_timer_completion_submissions_total",
			Help: "Completion submissions by result",
		},
		[]string{"result"},
	)

	CompletionSubmitDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "training_timer_completion_submit_duration_seconds",
			Help:    "Completion submission latency",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(
		StepTransitions,
		AutoAdvanceReschedules,
		CuesFired,
		CuePlaybackErrors,
		SessionRestores,
		StorageErrors,
		CompletionSubmissions,
		CompletionSubmitDuration,
	)
}

// Server exposes the timer's counters for scraping while a training runs.
// It is optional and only started when a listen address is configured.
type Server struct {
	server *http.Server
	logger zerolog.Logger
}

// NewServer serves the registry on /metrics and a liveness probe on /health
func NewServer(addr string, logger zerolog.Logger) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = io.WriteString(w, "ok\n")
	})

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger.With().Str("component", "metrics").Logger(),
	}
}

// Start binds the address and serves in the background. A taken port is
// reported here rather than logged later.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics listen on %s: %w", s.server.Addr, err)
	}
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Serving timer metrics")
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
	return nil
}

// Stop closes the listener and any open scrape
func (s *Server) Stop() error {
	s.logger.Debug().Msg("Stopping metrics server")
	return s.server.Close()
}
