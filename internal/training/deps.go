package training

import (
	"context"
	"time"

	"github.com/lowaak/smart-trainer/training-app/internal/store"
)

// Timer is a pending deferred callback
type Timer interface {
	Stop() bool
}

// Timers supplies the wall clock and deferred callbacks.
// AfterFunc callbacks must run on the goroutine that owns the Engine.
type Timers interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// SlotStore is durable single-writer storage for the session snapshot.
// Read returns store.ErrNotFound when a slot is empty.
type SlotStore interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte) error
	Delete(ctx context.Context, name string) error
}

// Outbox holds finalized completion records until the backend accepts them
type Outbox interface {
	Enqueue(ctx context.Context, trainingID string, payload []byte) error
	Pending(ctx context.Context) ([]store.OutboxEntry, error)
	RecordAttempt(ctx context.Context, trainingID string) error
	MarkDelivered(ctx context.Context, trainingID string) error
}

// Submitter delivers a completion record; it must be idempotent by training id
type Submitter interface {
	SubmitCompletion(ctx context.Context, rec CompletionRecord) error
}

// Starter asks the backend to open a training for a workout
type Starter interface {
	StartTraining(ctx context.Context, workoutID string) (StartPayload, error)
}

// Player plays cue sounds. Pause keeps the sound resumable; Stop discards it.
type Player interface {
	Play(url string) error
	Pause()
	Resume()
	Stop()
}

type silentPlayer struct{}

func (silentPlayer) Play(string) error { return nil }
func (silentPlayer) Pause()            {}
func (silentPlayer) Resume()           {}
func (silentPlayer) Stop()             {}
