package training

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

// Session is the single live training. It mirrors the persisted slot layout.
type Session struct {
	TrainingID  string `json:"trainingId"`
	WorkoutID   string `json:"workoutId"`
	WorkoutName string `json:"workoutName,omitempty"`
	UserID      string `json:"userId"`

	Steps        []RuntimeStep `json:"steps"`
	CurrentIndex int           `json:"currentIndex"`

	Running       bool       `json:"running"`
	RunningSince  *time.Time `json:"runningSince"`
	LastUpdatedAt int64      `json:"lastUpdatedAt"` // ms since epoch, accumulator anchor

	Done        bool       `json:"done"`
	StartedAt   *time.Time `json:"startedAt"`
	CompletedAt *time.Time `json:"completedAt"`
	Logged      bool       `json:"logged"`

	// subset-loop keys whose cue has already played
	PlayedSubsetCues []string `json:"playedSubsetCues,omitempty"`
}

// Clone returns a deep copy
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Steps = make([]RuntimeStep, len(s.Steps))
	copy(c.Steps, s.Steps)
	c.RunningSince = cloneTime(s.RunningSince)
	c.StartedAt = cloneTime(s.StartedAt)
	c.CompletedAt = cloneTime(s.CompletedAt)
	if s.PlayedSubsetCues != nil {
		c.PlayedSubsetCues = append([]string(nil), s.PlayedSubsetCues...)
	}
	return &c
}

// Current returns the current step, or nil when done or empty
func (s *Session) Current() *RuntimeStep {
	if s == nil || s.Done || s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Steps) {
		return nil
	}
	return &s.Steps[s.CurrentIndex]
}

// TotalElapsedMillis sums the stored elapsed time of every step
func (s *Session) TotalElapsedMillis() int64 {
	var total int64
	for i := range s.Steps {
		total += s.Steps[i].ElapsedMillis
	}
	return total
}

func (s *Session) subsetCuePlayed(key string) bool {
	for _, k := range s.PlayedSubsetCues {
		if k == key {
			return true
		}
	}
	return false
}

func (s *Session) markSubsetCuePlayed(key string) {
	if key == "" || s.subsetCuePlayed(key) {
		return
	}
	s.PlayedSubsetCues = append(s.PlayedSubsetCues, key)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// RawTimeline is a timeline as received from the network or storage, before normalization.
// Timestamps are kept raw so garbage values can be discarded rather than failing the decode.
type RawTimeline struct {
	TrainingID       string          `json:"trainingId"`
	WorkoutID        string          `json:"workoutId"`
	WorkoutName      string          `json:"workoutName,omitempty"`
	UserID           string          `json:"userId"`
	Steps            []RuntimeStep   `json:"steps"`
	CurrentIndex     int             `json:"currentIndex"`
	Running          bool            `json:"running"`
	RunningSince     json.RawMessage `json:"runningSince,omitempty"`
	LastUpdatedAt    int64           `json:"lastUpdatedAt,omitempty"`
	Done             bool            `json:"done"`
	StartedAt        json.RawMessage `json:"startedAt,omitempty"`
	CompletedAt      json.RawMessage `json:"completedAt,omitempty"`
	Logged           bool            `json:"logged,omitempty"`
	PlayedSubsetCues []string        `json:"playedSubsetCues,omitempty"`
}

// StartPayload is the backend's answer to "start a training": an unexpanded timeline
type StartPayload struct {
	TrainingID   string          `json:"trainingId"`
	WorkoutID    string          `json:"workoutId"`
	WorkoutName  string          `json:"workoutName,omitempty"`
	UserID       string          `json:"userId"`
	Steps        []workout.Step  `json:"steps"`
	CurrentIndex int             `json:"currentIndex"`
	Running      bool            `json:"running"`
	Done         bool            `json:"done"`
	StartedAt    json.RawMessage `json:"startedAt,omitempty"`
	CompletedAt  json.RawMessage `json:"completedAt,omitempty"`
}

// ParseTimestamp accepts an RFC 3339 string or epoch milliseconds.
// null, empty, unparseable and zero/epoch values all yield nil.
func ParseTimestamp(raw json.RawMessage) *time.Time {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var t time.Time
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			ms, convErr := strconv.ParseInt(s, 10, 64)
			if convErr != nil {
				return nil
			}
			parsed = time.UnixMilli(ms)
		}
		t = parsed
	} else {
		f, err := strconv.ParseFloat(string(raw), 64)
		if err != nil {
			return nil
		}
		t = time.UnixMilli(int64(f))
	}

	if t.IsZero() || t.UnixMilli() <= 0 {
		return nil
	}
	t = t.UTC()
	return &t
}
