package workout

import (
	"errors"
	"fmt"
	"time"
)

// StepKind classifies a workout step
type StepKind string

const (
	StepKindSet   StepKind = "set"
	StepKindPause StepKind = "pause"
)

// ExerciseKind describes how an exercise is measured
type ExerciseKind string

const (
	ExerciseKindRepetition ExerciseKind = "repetition" // Counted reps, open-ended unless the step has a target
	ExerciseKindStopwatch  ExerciseKind = "stopwatch"  // Timed, the user ends it
	ExerciseKindCountdown  ExerciseKind = "countdown"  // Timed, ends itself
)

// Exercise is one movement inside a set step
type Exercise struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Kind            ExerciseKind `json:"kind" yaml:"kind"`
	Reps            int          `json:"reps,omitempty" yaml:"reps,omitempty"`
	DurationSeconds int          `json:"durationSeconds,omitempty" yaml:"duration_seconds,omitempty"`
	SoundURL        string       `json:"soundUrl,omitempty" yaml:"sound_url,omitempty"`
}

// Rest configures the synthetic pause inserted between repeats of a step
type Rest struct {
	Seconds     int    `json:"seconds" yaml:"seconds"`
	AutoAdvance bool   `json:"autoAdvance,omitempty" yaml:"auto_advance,omitempty"`
	SoundURL    string `json:"soundUrl,omitempty" yaml:"sound_url,omitempty"`
	AfterLast   bool   `json:"afterLast,omitempty" yaml:"after_last,omitempty"`
}

// Step is one entry of a stored workout definition.
// A set step holds exercises; a pause step is a timed rest.
type Step struct {
	ID                 string     `json:"id" yaml:"id"`
	Kind               StepKind   `json:"kind" yaml:"kind"`
	Name               string     `json:"name,omitempty" yaml:"name,omitempty"`
	Exercises          []Exercise `json:"exercises,omitempty" yaml:"exercises,omitempty"`
	RepeatCount        int        `json:"repeatCount,omitempty" yaml:"repeat_count,omitempty"`
	EstimatedSeconds   int        `json:"estimatedSeconds,omitempty" yaml:"estimated_seconds,omitempty"`
	Superset           bool       `json:"superset,omitempty" yaml:"superset,omitempty"`
	RestBetweenRepeats *Rest      `json:"restBetweenRepeats,omitempty" yaml:"rest_between_repeats,omitempty"`

	// Pause-only fields
	DurationSeconds int  `json:"durationSeconds,omitempty" yaml:"duration_seconds,omitempty"`
	AutoAdvance     bool `json:"autoAdvance,omitempty" yaml:"auto_advance,omitempty"`

	SoundURL         string `json:"soundUrl,omitempty" yaml:"sound_url,omitempty"`
	SoundLeadSeconds int    `json:"soundLeadSeconds,omitempty" yaml:"sound_lead_seconds,omitempty"`
}

// Repeats returns the effective repeat count (at least 1)
func (s *Step) Repeats() int {
	if s.RepeatCount < 1 {
		return 1
	}
	return s.RepeatCount
}

// Workout is a named, ordered list of steps
type Workout struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

var (
	ErrMissingID   = errors.New("workout: missing id")
	ErrMissingName = errors.New("workout: missing name")
	ErrUnknownKind = errors.New("workout: unknown kind")
)

// Validate checks identity and that every kind is known
func (w *Workout) Validate() error {
	if w.ID == "" {
		return ErrMissingID
	}
	if w.Name == "" {
		return fmt.Errorf("%s: %w", w.ID, ErrMissingName)
	}
	for i, st := range w.Steps {
		switch st.Kind {
		case StepKindSet, StepKindPause:
		default:
			return fmt.Errorf("%s step %d kind %q: %w", w.ID, i, st.Kind, ErrUnknownKind)
		}
		for j, ex := range st.Exercises {
			switch ex.Kind {
			case ExerciseKindRepetition, ExerciseKindStopwatch, ExerciseKindCountdown:
			default:
				return fmt.Errorf("%s step %d exercise %d kind %q: %w", w.ID, i, j, ex.Kind, ErrUnknownKind)
			}
		}
	}
	return nil
}

// TotalEstimated returns the sum of all known targets, including repeats and rests.
// Open-ended steps contribute nothing.
func (w *Workout) TotalEstimated() time.Duration {
	var total time.Duration
	for _, st := range w.Steps {
		var perIteration int
		switch st.Kind {
		case StepKindPause:
			perIteration = st.DurationSeconds
		default:
			if st.EstimatedSeconds > 0 && (len(st.Exercises) == 1 || st.Superset) {
				perIteration = st.EstimatedSeconds
			} else {
				for _, ex := range st.Exercises {
					if ex.Kind != ExerciseKindRepetition {
						perIteration += ex.DurationSeconds
					}
				}
			}
		}
		repeats := st.Repeats()
		total += time.Duration(perIteration*repeats) * time.Second
		if st.RestBetweenRepeats != nil {
			rests := repeats - 1
			if st.RestBetweenRepeats.AfterLast {
				rests++
			}
			total += time.Duration(st.RestBetweenRepeats.Seconds*rests) * time.Second
		}
	}
	return total
}
