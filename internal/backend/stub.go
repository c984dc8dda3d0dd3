package backend

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/training"
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

const stubUserID = "local"

type openedTraining struct {
	WorkoutID string
	OpenedAt  time.Time
}

// StubServer is a local stand-in for the training backend. It serves
// workouts from a library and keeps completions in memory.
type StubServer struct {
	library *workout.Library
	token   string
	logger  zerolog.Logger
	router  chi.Router

	mu          sync.Mutex
	trainings   map[string]openedTraining
	completions map[string]training.CompletionRecord
}

// NewStubServer creates a StubServer with all routes configured.
// An empty token disables authentication.
func NewStubServer(library *workout.Library, token string, logger zerolog.Logger) *StubServer {
	if library == nil {
		panic("StubServer: library cannot be nil")
	}
	s := &StubServer{
		library:     library,
		token:       token,
		logger:      logger.With().Str("component", "stub-backend").Logger(),
		router:      chi.NewRouter(),
		trainings:   make(map[string]openedTraining),
		completions: make(map[string]training.CompletionRecord),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *StubServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *StubServer) routes() {
	s.router.Use(requestLogging(s.logger))

	s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.bearerAuth)
		r.Get("/workouts", s.handleListWorkouts)
		r.Post("/trainings", s.handleStartTraining)
		r.Put("/trainings/{id}/completion", s.handlePutCompletion)
		r.Get("/trainings/{id}/completion", s.handleGetCompletion)
	})
}

func (s *StubServer) handleListWorkouts(w http.ResponseWriter, _ *http.Request) {
	type summary struct {
		ID               string `json:"id"`
		Name             string `json:"name"`
		Steps            int    `json:"steps"`
		EstimatedSeconds int    `json:"estimatedSeconds"`
	}
	workouts := s.library.All()
	out := make([]summary, 0, len(workouts))
	for _, wk := range workouts {
		out = append(out, summary{
			ID:               wk.ID,
			Name:             wk.Name,
			Steps:            len(wk.Steps),
			EstimatedSeconds: int(wk.TotalEstimated().Seconds()),
		})
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *StubServer) handleStartTraining(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkoutID == "" {
		s.writeError(w, http.StatusBadRequest, "workoutId is required")
		return
	}
	wk, ok := s.library.Find(req.WorkoutID)
	if !ok {
		s.writeError(w, http.StatusNotFound, "unknown workout "+req.WorkoutID)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.trainings[id] = openedTraining{WorkoutID: wk.ID, OpenedAt: time.Now().UTC()}
	s.mu.Unlock()

	s.logger.Info().Str("training_id", id).Str("workout_id", wk.ID).Msg("training opened")
	s.writeJSON(w, http.StatusCreated, training.StartPayload{
		TrainingID:  id,
		WorkoutID:   wk.ID,
		WorkoutName: wk.Name,
		UserID:      stubUserID,
		Steps:       wk.Steps,
	})
}

func (s *StubServer) handlePutCompletion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var rec training.CompletionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid completion record")
		return
	}
	if rec.TrainingID != id {
		s.writeError(w, http.StatusBadRequest, "trainingId does not match the path")
		return
	}
	if rec.CompletedAt.Before(rec.StartedAt) {
		s.writeError(w, http.StatusUnprocessableEntity, "completedAt precedes startedAt")
		return
	}

	s.mu.Lock()
	if _, ok := s.trainings[id]; !ok {
		s.mu.Unlock()
		s.writeError(w, http.StatusNotFound, "unknown training "+id)
		return
	}
	_, replaced := s.completions[id]
	s.completions[id] = rec
	s.mu.Unlock()

	status := http.StatusCreated
	if replaced {
		status = http.StatusOK
	}
	s.logger.Info().
		Str("training_id", id).
		Dur("duration", rec.Duration()).
		Bool("replaced", replaced).
		Msg("completion logged")
	s.writeJSON(w, status, rec)
}

func (s *StubServer) handleGetCompletion(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.Completion(chi.URLParam(r, "id"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "no completion logged")
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// Completion returns the logged completion for a training
func (s *StubServer) Completion(id string) (training.CompletionRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.completions[id]
	return rec, ok
}

// bearerAuth rejects requests without the expected bearer token
func (s *StubServer) bearerAuth(next http.Handler) http.Handler {
	if s.token == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || got == "" {
			s.writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		if got != s.token {
			s.writeError(w, http.StatusForbidden, "invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogging logs each request
func requestLogging(logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			logger.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", sw.status).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (s *StubServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// the client went away mid-response
		s.logger.Debug().Err(err).Int("status", status).Msg("failed to write response")
	}
}

func (s *StubServer) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
