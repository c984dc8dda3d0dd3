package tui

import (
	"fmt"
	"time"

	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

// TimerStatus is what the timer panel is showing
type TimerStatus int

const (
	TimerStatusIdle      TimerStatus = iota // no session
	TimerStatusReady                        // loaded, never started
	TimerStatusRunning
	TimerStatusPaused
	TimerStatusFinishing
	TimerStatusUnlogged // done but the backend has not accepted it yet
	TimerStatusLogged
)

// TimerState is the render-ready view of a snapshot at one instant
type TimerState struct {
	Status      TimerStatus
	WorkoutName string
	Restored    bool

	StepIndex int
	StepCount int
	Step      training.RuntimeStep
	HasStep   bool
	NextName  string // empty on the last step

	StepElapsed   time.Duration
	StepRemaining time.Duration // zero for open-ended steps
	TotalElapsed  time.Duration

	Logged *training.CompletionRecord
}

// NewTimerState derives the panel state from a snapshot. Elapsed values are
// projected to now without touching the session.
func NewTimerState(snap training.Snapshot, now time.Time) TimerState {
	state := TimerState{Restored: snap.Restored, Logged: snap.Logged}
	s := snap.Session
	if s == nil {
		if snap.Logged != nil {
			state.Status = TimerStatusLogged
			state.TotalElapsed = snap.Logged.Duration()
		}
		return state
	}

	state.WorkoutName = s.WorkoutName
	if state.WorkoutName == "" {
		state.WorkoutName = s.WorkoutID
	}
	state.StepCount = len(s.Steps)

	nowMs := now.UnixMilli()
	total := s.TotalElapsedMillis()

	switch {
	case snap.Finishing:
		state.Status = TimerStatusFinishing
	case s.Done:
		state.Status = TimerStatusUnlogged
	case s.Running:
		state.Status = TimerStatusRunning
	case s.StartedAt == nil:
		state.Status = TimerStatusReady
	default:
		state.Status = TimerStatusPaused
	}

	if cur := s.Current(); cur != nil {
		elapsed := s.CurrentStepElapsedAt(nowMs)
		total += elapsed - cur.ElapsedMillis

		state.HasStep = true
		state.Step = *cur
		state.StepIndex = s.CurrentIndex
		state.StepElapsed = time.Duration(elapsed) * time.Millisecond
		if target := cur.TargetMillis(); target > elapsed {
			state.StepRemaining = time.Duration(target-elapsed) * time.Millisecond
		}
		if next := s.CurrentIndex + 1; next < len(s.Steps) {
			state.NextName = stepLabel(&s.Steps[next])
		}
	}
	state.TotalElapsed = time.Duration(total) * time.Millisecond
	return state
}

// stepLabel names a step for display
func stepLabel(st *training.RuntimeStep) string {
	name := st.Name
	if name == "" {
		name = string(st.Kind)
	}
	if st.LoopTotal > 1 {
		name = fmt.Sprintf("%s (%d/%d)", name, st.LoopIndex, st.LoopTotal)
	}
	return name
}
