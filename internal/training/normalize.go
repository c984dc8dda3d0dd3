package training

import (
	"errors"
	"time"
)

var (
	ErrMissingTrainingID = errors.New("training: timeline has no training id")
	ErrEmptyTimeline     = errors.New("training: timeline has no steps")
)

// Normalize turns a raw timeline into a canonical session.
// Per-step flags are rebuilt from the cursor, bad timestamps are dropped,
// and lastUpdatedAt is stamped to nowMs.
func Normalize(raw RawTimeline, nowMs int64) (*Session, error) {
	if raw.TrainingID == "" {
		return nil, ErrMissingTrainingID
	}
	if len(raw.Steps) == 0 {
		return nil, ErrEmptyTimeline
	}

	s := &Session{
		TrainingID:    raw.TrainingID,
		WorkoutID:     raw.WorkoutID,
		WorkoutName:   raw.WorkoutName,
		UserID:        raw.UserID,
		Steps:         make([]RuntimeStep, len(raw.Steps)),
		CurrentIndex:  clampIndex(raw.CurrentIndex, len(raw.Steps)),
		Running:       raw.Running && !raw.Done,
		Done:          raw.Done,
		StartedAt:     ParseTimestamp(raw.StartedAt),
		CompletedAt:   ParseTimestamp(raw.CompletedAt),
		Logged:        raw.Logged,
		LastUpdatedAt: nowMs,
	}
	copy(s.Steps, raw.Steps)
	if len(raw.PlayedSubsetCues) > 0 {
		s.PlayedSubsetCues = append([]string(nil), raw.PlayedSubsetCues...)
	}

	seen := make(map[string]bool, len(s.Steps))
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.ID == "" || seen[st.ID] {
			st.ID = NewStepID()
		}
		seen[st.ID] = true
		if st.ElapsedMillis < 0 {
			st.ElapsedMillis = 0
		}
	}

	if s.Running {
		s.RunningSince = ParseTimestamp(raw.RunningSince)
		if s.RunningSince == nil {
			now := time.UnixMilli(nowMs).UTC()
			s.RunningSince = &now
		}
		if s.StartedAt == nil {
			s.StartedAt = cloneTime(s.RunningSince)
		}
	}

	s.applyFlags()
	return s, nil
}

// applyFlags rebuilds completed/current/running on every step from the
// session's cursor, done and running state alone
func (s *Session) applyFlags() {
	if s.Done {
		s.Running = false
		s.RunningSince = nil
		for i := range s.Steps {
			s.Steps[i].Completed = true
			s.Steps[i].Current = false
			s.Steps[i].Running = false
		}
		return
	}
	s.CurrentIndex = clampIndex(s.CurrentIndex, len(s.Steps))
	if !s.Running {
		s.RunningSince = nil
	}
	for i := range s.Steps {
		st := &s.Steps[i]
		st.Completed = i < s.CurrentIndex
		st.Current = i == s.CurrentIndex
		st.Running = st.Current && s.Running
	}
}

func clampIndex(idx, n int) int {
	if n == 0 || idx < 0 {
		return 0
	}
	if idx >= n {
		return n - 1
	}
	return idx
}
