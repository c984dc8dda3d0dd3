package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

const (
	DefaultTimeout = 10 * time.Second
	DefaultRetries = 3
	defaultBackoff = 500 * time.Millisecond
)

// ClientConfig configures a Client
type ClientConfig struct {
	BaseURL string
	Token   string // sent as a bearer token when set
	Timeout time.Duration
	Retries int           // attempts for idempotent requests
	Backoff time.Duration // delay before the first retry, doubled after each
}

// StatusError is a non-2xx answer from the backend
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s failed (status %d): %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Temporary reports whether repeating the request may succeed
func (e *StatusError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return e.StatusCode >= 500
}

// Client talks to the training backend. It implements training.Starter and
// training.Submitter.
type Client struct {
	baseURL    string
	token      string
	retries    int
	backoff    time.Duration
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewClient creates a new HTTP client for the training backend
func NewClient(cfg ClientConfig, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Retries < 1 {
		cfg.Retries = DefaultRetries
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		retries: cfg.Retries,
		backoff: cfg.Backoff,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		logger: logger.With().Str("component", "backend").Logger(),
	}
}

type startRequest struct {
	WorkoutID string `json:"workoutId"`
}

// StartTraining asks the backend to open a training for workoutID.
// Not idempotent, so it is never retried.
func (c *Client) StartTraining(ctx context.Context, workoutID string) (training.StartPayload, error) {
	body, err := json.Marshal(startRequest{WorkoutID: workoutID})
	if err != nil {
		return training.StartPayload{}, fmt.Errorf("marshaling start request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/v1/trainings", body)
	if err != nil {
		return training.StartPayload{}, fmt.Errorf("starting training: %w", err)
	}

	var payload training.StartPayload
	if err := json.Unmarshal(resp, &payload); err != nil {
		return training.StartPayload{}, fmt.Errorf("decoding start response: %w", err)
	}
	c.logger.Info().Str("training_id", payload.TrainingID).Str("workout_id", workoutID).Msg("training opened")
	return payload, nil
}

// SubmitCompletion upserts a completion record. The endpoint is idempotent by
// training id, so transport errors, 5xx, 408 and 429 are retried with
// exponential backoff.
func (c *Client) SubmitCompletion(ctx context.Context, rec training.CompletionRecord) error {
	if rec.TrainingID == "" {
		return errors.New("completion record has no training id")
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshaling completion: %w", err)
	}
	path := "/api/v1/trainings/" + url.PathEscape(rec.TrainingID) + "/completion"

	var lastErr error
	for attempt := range c.retries {
		if attempt > 0 {
			delay := c.backoff << uint(attempt-1)
			c.logger.Debug().Err(lastErr).Int("attempt", attempt+1).Dur("delay", delay).Msg("retrying completion")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return errors.Join(ctx.Err(), lastErr)
			}
		}

		_, err := c.do(ctx, http.MethodPut, path, body)
		if err == nil {
			return nil
		}
		lastErr = err

		var statusErr *StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("after %d attempts: %w", c.retries, lastErr)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}
	return data, nil
}
