package training

import (
	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

const defaultPauseName = "Pause"

// Expand flattens workout steps into a runtime timeline.
//
// Every repeat iteration is emitted in full before the next one. A step with
// several exercises yields one runtime step per exercise, all sharing a subset id.
// Rest-between-repeats becomes a synthetic pause after each iteration except the
// last, unless the rest is configured to follow the last one too.
//
// If nothing can be expanded the input is mapped one to one instead.
func Expand(steps []workout.Step) []RuntimeStep {
	var out []RuntimeStep
	for i := range steps {
		st := &steps[i]
		repeats := st.Repeats()
		subsetID := ""
		if st.Kind != workout.StepKindPause && len(st.Exercises) > 1 {
			subsetID = st.ID
			if subsetID == "" {
				subsetID = NewStepID()
			}
		}

		for loop := 1; loop <= repeats; loop++ {
			iter := expandIteration(st, subsetID)
			if len(iter) == 0 {
				continue
			}
			if st.Kind != workout.StepKindPause && st.RestBetweenRepeats != nil &&
				(loop < repeats || st.RestBetweenRepeats.AfterLast) {
				iter = append(iter, restStep(st))
			}
			if repeats > 1 {
				for j := range iter {
					iter[j].LoopIndex = loop
					iter[j].LoopTotal = repeats
				}
			}
			out = append(out, iter...)
		}
	}

	if len(out) == 0 {
		return shallowSteps(steps)
	}
	return out
}

func expandIteration(st *workout.Step, subsetID string) []RuntimeStep {
	if st.Kind == workout.StepKindPause {
		estimated := st.DurationSeconds
		if estimated <= 0 {
			estimated = st.EstimatedSeconds
		}
		return []RuntimeStep{{
			ID:               NewStepID(),
			Kind:             workout.StepKindPause,
			Name:             nameOr(st.Name, defaultPauseName),
			AutoAdvance:      st.AutoAdvance,
			EstimatedSeconds: estimated,
			SoundURL:         st.SoundURL,
			CueLeadSeconds:   st.SoundLeadSeconds,
		}}
	}

	switch len(st.Exercises) {
	case 0:
		return nil
	case 1:
		rs := fromExercise(st, &st.Exercises[0])
		if st.Exercises[0].Kind == workout.ExerciseKindRepetition || st.Exercises[0].Kind == "" {
			rs.EstimatedSeconds = st.EstimatedSeconds
		}
		if rs.SoundURL == "" {
			rs.SoundURL = st.SoundURL
		}
		return []RuntimeStep{rs}
	}

	out := make([]RuntimeStep, 0, len(st.Exercises))
	for j := range st.Exercises {
		rs := fromExercise(st, &st.Exercises[j])
		rs.SubsetID = subsetID
		rs.Superset = st.Superset
		rs.SubsetSoundURL = st.SoundURL
		rs.SubsetTargetSeconds = st.EstimatedSeconds
		out = append(out, rs)
	}
	return out
}

func fromExercise(st *workout.Step, ex *workout.Exercise) RuntimeStep {
	rs := RuntimeStep{
		ID:             NewStepID(),
		Kind:           workout.StepKindSet,
		Name:           nameOr(ex.Name, st.Name),
		ExerciseID:     ex.ID,
		ExerciseKind:   ex.Kind,
		Reps:           ex.Reps,
		SoundURL:       ex.SoundURL,
		CueLeadSeconds: st.SoundLeadSeconds,
	}
	switch ex.Kind {
	case workout.ExerciseKindStopwatch:
		rs.EstimatedSeconds = ex.DurationSeconds
	case workout.ExerciseKindCountdown:
		rs.EstimatedSeconds = ex.DurationSeconds
		rs.AutoAdvance = true
	}
	return rs
}

func restStep(st *workout.Step) RuntimeStep {
	rest := st.RestBetweenRepeats
	return RuntimeStep{
		ID:               NewStepID(),
		Kind:             workout.StepKindPause,
		Name:             defaultPauseName,
		AutoAdvance:      rest.AutoAdvance,
		EstimatedSeconds: rest.Seconds,
		SoundURL:         rest.SoundURL,
		CueLeadSeconds:   st.SoundLeadSeconds,
	}
}

func shallowSteps(steps []workout.Step) []RuntimeStep {
	out := make([]RuntimeStep, 0, len(steps))
	for i := range steps {
		st := &steps[i]
		kind := st.Kind
		if kind == "" {
			kind = workout.StepKindSet
		}
		estimated := st.EstimatedSeconds
		if estimated <= 0 {
			estimated = st.DurationSeconds
		}
		out = append(out, RuntimeStep{
			ID:               NewStepID(),
			Kind:             kind,
			Name:             st.Name,
			AutoAdvance:      kind == workout.StepKindPause && st.AutoAdvance,
			EstimatedSeconds: estimated,
			SoundURL:         st.SoundURL,
			CueLeadSeconds:   st.SoundLeadSeconds,
		})
	}
	return out
}

func nameOr(name, fallback string) string {
	if name != "" {
		return name
	}
	return fallback
}
