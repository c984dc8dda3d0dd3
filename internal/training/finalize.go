package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/metrics"
)

// minimum reported duration of a finished training
const minCompletedDuration = time.Second

var errNoOutbox = errors.New("training: no outbox configured")

// CompletionRecord is what the backend logs for a finished training
type CompletionRecord struct {
	TrainingID  string          `json:"trainingId"`
	WorkoutID   string          `json:"workoutId"`
	WorkoutName string          `json:"workoutName,omitempty"`
	UserID      string          `json:"userId"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
	Steps       []CompletedStep `json:"steps,omitempty"`
}

// CompletedStep is the per-step log line of a CompletionRecord
type CompletedStep struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	Kind          string `json:"kind"`
	TargetSeconds int    `json:"targetSeconds,omitempty"`
	ElapsedMillis int64  `json:"elapsedMs"`
}

// Duration is the reported length of the training
func (r CompletionRecord) Duration() time.Duration {
	return r.CompletedAt.Sub(r.StartedAt)
}

// finalize marks the session done. completedAt is derived from the step log,
// not the clock, so it does not depend on when finalize runs.
// Callers must commit first.
func (s *Session) finalize(now time.Time) {
	s.Done = true
	s.Running = false
	s.RunningSince = nil
	if s.StartedAt == nil {
		t := now.UTC()
		s.StartedAt = &t
	}
	d := max(time.Duration(s.TotalElapsedMillis())*time.Millisecond, minCompletedDuration)
	completed := s.StartedAt.Add(d)
	s.CompletedAt = &completed
	s.applyFlags()
}

func recordOf(s *Session) CompletionRecord {
	rec := CompletionRecord{
		TrainingID:  s.TrainingID,
		WorkoutID:   s.WorkoutID,
		WorkoutName: s.WorkoutName,
		UserID:      s.UserID,
		Steps:       make([]CompletedStep, 0, len(s.Steps)),
	}
	if s.StartedAt != nil {
		rec.StartedAt = *s.StartedAt
	}
	if s.CompletedAt != nil {
		rec.CompletedAt = *s.CompletedAt
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		rec.Steps = append(rec.Steps, CompletedStep{
			ID:            st.ID,
			Name:          st.Name,
			Kind:          string(st.Kind),
			TargetSeconds: st.EstimatedSeconds,
			ElapsedMillis: st.ElapsedMillis,
		})
	}
	return rec
}

// beginFinish finalizes the live session (once) and claims the in-flight
// guard for its training id. A session that is already done but not logged
// yields its fixed record again.
func (e *Engine) beginFinish(ctx context.Context) (CompletionRecord, error) {
	if e.session == nil {
		return CompletionRecord{}, ErrNoSession
	}
	id := e.session.TrainingID
	if e.finishing[id] {
		return CompletionRecord{}, ErrFinishInFlight
	}

	if !e.session.Done {
		now := e.timers.Now()
		next := e.session.Clone()
		next.commit(now.UnixMilli())
		next.finalize(now)

		// the slot keeps the done session until the outbox holds its record
		if err := e.enqueue(ctx, recordOf(next)); err != nil {
			e.unqueued = id
			e.logger.Warn().Err(err).Str("training_id", id).Msg("completion not queued, keeping finished session in storage")
		}
		e.session = next
		e.persist()
		e.syncSchedulers()
		e.logger.Info().
			Str("training_id", id).
			Time("started_at", *next.StartedAt).
			Time("completed_at", *next.CompletedAt).
			Msg("training finalized")
	} else if e.unqueued == id {
		if err := e.enqueue(ctx, recordOf(e.session)); err == nil {
			e.unqueued = ""
			e.persist()
		}
	}

	e.finishing[id] = true
	e.notify()
	return recordOf(e.session), nil
}

// submit delivers a record. It touches only immutable engine fields, so the
// Runner calls it off the owner goroutine.
func (e *Engine) submit(ctx context.Context, rec CompletionRecord) error {
	started := time.Now()
	err := e.submitter.SubmitCompletion(ctx, rec)
	metrics.CompletionSubmitDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		return fmt.Errorf("submitting completion %s: %w", rec.TrainingID, err)
	}
	return nil
}

// endFinish releases the guard and applies the submission outcome. On success
// the session is destroyed; on failure it stays done and unlogged for a retry.
func (e *Engine) endFinish(ctx context.Context, rec CompletionRecord, submitErr error) {
	delete(e.finishing, rec.TrainingID)

	if submitErr != nil {
		metrics.CompletionSubmissions.WithLabelValues("error").Inc()
		e.logger.Warn().Err(submitErr).Str("training_id", rec.TrainingID).Msg("completion not logged, will retry")
		if e.outbox != nil {
			if err := e.outbox.RecordAttempt(ctx, rec.TrainingID); err != nil {
				e.logger.Warn().Err(err).Msg("failed to record outbox attempt")
			}
		}
		e.notify()
		return
	}

	metrics.CompletionSubmissions.WithLabelValues("ok").Inc()
	if e.outbox != nil {
		if err := e.outbox.MarkDelivered(ctx, rec.TrainingID); err != nil {
			e.logger.Warn().Err(err).Msg("failed to clear outbox record")
		}
	}
	logged := rec
	e.lastLogged = &logged
	e.logger.Info().
		Str("training_id", rec.TrainingID).
		Dur("duration", rec.Duration()).
		Msg("completion logged")

	if e.session != nil && e.session.TrainingID == rec.TrainingID {
		e.session.Logged = true
		e.destroy()
		e.restored = false
	}
	e.notify()
}

// Finish finalizes and submits synchronously. Runner.Finish does the same
// without blocking the owner goroutine during submission.
func (e *Engine) Finish(ctx context.Context) error {
	rec, err := e.beginFinish(ctx)
	if err != nil {
		return err
	}
	err = e.submit(ctx, rec)
	e.endFinish(ctx, rec, err)
	return err
}

// enqueue stores rec in the outbox. Without an outbox nothing is stored and
// errNoOutbox is returned.
func (e *Engine) enqueue(ctx context.Context, rec CompletionRecord) error {
	if e.outbox == nil {
		return errNoOutbox
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding completion %s: %w", rec.TrainingID, err)
	}
	if err := e.outbox.Enqueue(ctx, rec.TrainingID, payload); err != nil {
		metrics.StorageErrors.WithLabelValues("enqueue").Inc()
		return fmt.Errorf("enqueueing completion %s: %w", rec.TrainingID, err)
	}
	return nil
}

// FlushOutbox resubmits every pending record verbatim. Records that cannot be
// decoded are dropped. It returns how many were delivered.
func FlushOutbox(ctx context.Context, outbox Outbox, submitter Submitter, logger zerolog.Logger) (int, error) {
	pending, err := outbox.Pending(ctx)
	if err != nil {
		return 0, err
	}

	var errs []error
	delivered := 0
	for _, entry := range pending {
		var rec CompletionRecord
		if err := json.Unmarshal(entry.Payload, &rec); err != nil || rec.TrainingID == "" {
			logger.Error().Err(err).Str("training_id", entry.TrainingID).Msg("dropping undecodable completion record")
			if err := outbox.MarkDelivered(ctx, entry.TrainingID); err != nil {
				errs = append(errs, err)
			}
			continue
		}

		if err := submitter.SubmitCompletion(ctx, rec); err != nil {
			metrics.CompletionSubmissions.WithLabelValues("error").Inc()
			logger.Warn().Err(err).Str("training_id", rec.TrainingID).Int("attempts", entry.Attempts+1).Msg("pending completion still not logged")
			if err := outbox.RecordAttempt(ctx, entry.TrainingID); err != nil {
				errs = append(errs, err)
			}
			errs = append(errs, fmt.Errorf("submitting completion %s: %w", rec.TrainingID, err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		metrics.CompletionSubmissions.WithLabelValues("ok").Inc()
		if err := outbox.MarkDelivered(ctx, entry.TrainingID); err != nil {
			errs = append(errs, err)
			continue
		}
		delivered++
		logger.Info().Str("training_id", rec.TrainingID).Msg("pending completion logged")
	}
	return delivered, errors.Join(errs...)
}
