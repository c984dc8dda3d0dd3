package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OutboxEntry is one completion record awaiting delivery
type OutboxEntry struct {
	TrainingID string
	Payload    []byte
	Attempts   int
	CreatedAt  time.Time
}

// Outbox persists finalized completion records until the backend accepts them
type Outbox struct {
	db *sql.DB
}

// OpenOutbox opens (or creates) the SQLite outbox at path.
// ":memory:" gives a private in-memory database.
func OpenOutbox(path string) (*Outbox, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating outbox dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening outbox db: %w", err)
	}
	// single writer; also keeps ":memory:" on one connection
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS completions (
		training_id TEXT PRIMARY KEY,
		payload     BLOB NOT NULL,
		attempts    INTEGER NOT NULL DEFAULT 0,
		created_at  INTEGER NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating outbox table: %w", err)
	}

	return &Outbox{db: db}, nil
}

// Enqueue stores a record, replacing any earlier record for the same training
func (o *Outbox) Enqueue(ctx context.Context, trainingID string, payload []byte) error {
	_, err := o.db.ExecContext(ctx,
		`INSERT INTO completions (training_id, payload, attempts, created_at) VALUES (?, ?, 0, ?)
		 ON CONFLICT(training_id) DO UPDATE SET payload = excluded.payload`,
		trainingID, payload, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue completion %s: %w", trainingID, err)
	}
	return nil
}

// Pending lists undelivered records, oldest first
func (o *Outbox) Pending(ctx context.Context) ([]OutboxEntry, error) {
	rows, err := o.db.QueryContext(ctx,
		`SELECT training_id, payload, attempts, created_at FROM completions ORDER BY created_at, training_id`)
	if err != nil {
		return nil, fmt.Errorf("listing pending completions: %w", err)
	}
	defer rows.Close()

	var out []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		var created int64
		if err := rows.Scan(&e.TrainingID, &e.Payload, &e.Attempts, &created); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecordAttempt bumps the attempt counter after a failed delivery
func (o *Outbox) RecordAttempt(ctx context.Context, trainingID string) error {
	_, err := o.db.ExecContext(ctx,
		`UPDATE completions SET attempts = attempts + 1 WHERE training_id = ?`, trainingID)
	return err
}

// MarkDelivered removes a record once the backend has accepted it
func (o *Outbox) MarkDelivered(ctx context.Context, trainingID string) error {
	_, err := o.db.ExecContext(ctx, `DELETE FROM completions WHERE training_id = ?`, trainingID)
	if err != nil {
		return fmt.Errorf("mark delivered %s: %w", trainingID, err)
	}
	return nil
}

// Close closes the outbox database
func (o *Outbox) Close() error {
	return o.db.Close()
}
