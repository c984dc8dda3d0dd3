package training

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

func TestExpand_SingleExercises(t *testing.T) {
	steps := Expand([]workout.Step{
		countdown(30),
		restPause(10, true),
		{
			Kind:             workout.StepKindSet,
			Name:             "Squats",
			EstimatedSeconds: 45,
			Exercises:        []workout.Exercise{{ID: "squat", Kind: workout.ExerciseKindRepetition, Reps: 15}},
		},
	})
	require.Len(t, steps, 3)

	assert.Equal(t, workout.StepKindSet, steps[0].Kind)
	assert.Equal(t, "Plank", steps[0].Name)
	assert.Equal(t, 30, steps[0].EstimatedSeconds)
	assert.True(t, steps[0].AutoAdvance, "countdown ends itself")
	assert.Empty(t, steps[0].SubsetID)

	assert.Equal(t, workout.StepKindPause, steps[1].Kind)
	assert.Equal(t, "Pause", steps[1].Name)
	assert.Equal(t, 10, steps[1].EstimatedSeconds)
	assert.True(t, steps[1].AutoAdvance)

	assert.Equal(t, "Squats", steps[2].Name, "falls back to the step name")
	assert.Equal(t, 45, steps[2].EstimatedSeconds)
	assert.Equal(t, 15, steps[2].Reps)
	assert.False(t, steps[2].AutoAdvance)
}

func TestExpand_SupersetWithRests(t *testing.T) {
	steps := Expand([]workout.Step{superset(2, 30)})

	type row struct {
		Name     string
		Kind     workout.StepKind
		SubsetID string
		Loop     int
	}
	var got []row
	for _, s := range steps {
		got = append(got, row{s.Name, s.Kind, s.SubsetID, s.LoopIndex})
		assert.Equal(t, 2, s.LoopTotal)
	}
	assert.Equal(t, []row{
		{"Curl", workout.StepKindSet, "ss", 1},
		{"Dip", workout.StepKindSet, "ss", 1},
		{"Pause", workout.StepKindPause, "", 1},
		{"Curl", workout.StepKindSet, "ss", 2},
		{"Dip", workout.StepKindSet, "ss", 2},
	}, got)

	assert.True(t, steps[0].Superset)
	assert.Equal(t, 60, steps[0].SubsetTargetSeconds)
	assert.Equal(t, 30, steps[2].EstimatedSeconds)
	assert.True(t, steps[2].AutoAdvance)
}

func TestExpand_RestAfterLast(t *testing.T) {
	st := superset(2, 20)
	st.RestBetweenRepeats.AfterLast = true

	steps := Expand([]workout.Step{st})
	require.Len(t, steps, 6)
	assert.Equal(t, workout.StepKindPause, steps[5].Kind)
	assert.Equal(t, 2, steps[5].LoopIndex)
}

func TestExpand_MultiExerciseWithoutSuperset(t *testing.T) {
	st := superset(1, 0)
	st.ID = ""
	st.Superset = false

	steps := Expand([]workout.Step{st})
	require.Len(t, steps, 2)
	assert.NotEmpty(t, steps[0].SubsetID, "generated subset id")
	assert.Equal(t, steps[0].SubsetID, steps[1].SubsetID)
	assert.False(t, steps[0].Superset)
	assert.Zero(t, steps[0].LoopIndex, "single pass is not a loop")
}

func TestExpand_UniqueIDs(t *testing.T) {
	steps := Expand([]workout.Step{superset(3, 15), countdown(20), superset(2, 0)})
	seen := map[string]bool{}
	for _, s := range steps {
		require.NotEmpty(t, s.ID)
		assert.False(t, seen[s.ID], "duplicate id %s", s.ID)
		seen[s.ID] = true
	}
}

func TestExpand_FallsBackToShallowMapping(t *testing.T) {
	steps := Expand([]workout.Step{
		{Kind: workout.StepKindSet, Name: "Warm-up", EstimatedSeconds: 300},
		{Kind: workout.StepKindSet, Name: "Stretch"},
	})
	require.Len(t, steps, 2)
	assert.Equal(t, "Warm-up", steps[0].Name)
	assert.Equal(t, 300, steps[0].EstimatedSeconds)
	assert.False(t, steps[0].AutoAdvance)
	assert.Equal(t, "Stretch", steps[1].Name)

	assert.Empty(t, Expand(nil))
}

func TestNormalize_Rejects(t *testing.T) {
	_, err := Normalize(RawTimeline{Steps: []RuntimeStep{{ID: "a"}}}, 0)
	assert.ErrorIs(t, err, ErrMissingTrainingID)

	_, err = Normalize(RawTimeline{TrainingID: "tr"}, 0)
	assert.ErrorIs(t, err, ErrEmptyTimeline)
}

func TestNormalize_Flags(t *testing.T) {
	nowMs := epoch.UnixMilli()
	tests := []struct {
		name        string
		index       int
		running     bool
		done        bool
		wantIndex   int
		wantCurrent []bool
		wantDone    []bool
		wantRunning []bool
	}{
		{"middle running", 1, true, false, 1, []bool{false, true, false}, []bool{true, false, false}, []bool{false, true, false}},
		{"paused", 2, false, false, 2, []bool{false, false, true}, []bool{true, true, false}, []bool{false, false, false}},
		{"index past end", 9, false, false, 2, []bool{false, false, true}, []bool{true, true, false}, []bool{false, false, false}},
		{"negative index", -3, false, false, 0, []bool{true, false, false}, []bool{false, false, false}, []bool{false, false, false}},
		{"done", 1, true, true, 1, []bool{false, false, false}, []bool{true, true, true}, []bool{false, false, false}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Normalize(RawTimeline{
				TrainingID:   "tr",
				Steps:        []RuntimeStep{{ID: "a", Current: true, Running: true}, {ID: "b", Completed: true}, {ID: "c"}},
				CurrentIndex: tt.index,
				Running:      tt.running,
				Done:         tt.done,
			}, nowMs)
			require.NoError(t, err)

			assert.Equal(t, tt.wantIndex, s.CurrentIndex)
			assert.Equal(t, tt.running && !tt.done, s.Running)
			assert.Equal(t, nowMs, s.LastUpdatedAt)
			for i, st := range s.Steps {
				assert.Equal(t, tt.wantCurrent[i], st.Current, "current[%d]", i)
				assert.Equal(t, tt.wantDone[i], st.Completed, "completed[%d]", i)
				assert.Equal(t, tt.wantRunning[i], st.Running, "running[%d]", i)
			}
		})
	}
}

func TestNormalize_RepairsSteps(t *testing.T) {
	s, err := Normalize(RawTimeline{
		TrainingID: "tr",
		Steps:      []RuntimeStep{{ID: "a", ElapsedMillis: -50}, {ID: "a", ElapsedMillis: 700}, {}},
	}, 0)
	require.NoError(t, err)

	assert.Equal(t, "a", s.Steps[0].ID)
	assert.NotEqual(t, "a", s.Steps[1].ID)
	assert.NotEmpty(t, s.Steps[2].ID)
	assert.NotEqual(t, s.Steps[1].ID, s.Steps[2].ID)
	assert.Equal(t, int64(0), s.Steps[0].ElapsedMillis)
	assert.Equal(t, int64(700), s.Steps[1].ElapsedMillis)
}

func TestNormalize_RunningTimestamps(t *testing.T) {
	nowMs := epoch.UnixMilli()

	s, err := Normalize(RawTimeline{
		TrainingID: "tr",
		Steps:      []RuntimeStep{{ID: "a"}},
		Running:    true,
	}, nowMs)
	require.NoError(t, err)
	require.NotNil(t, s.RunningSince)
	assert.Equal(t, nowMs, s.RunningSince.UnixMilli())
	require.NotNil(t, s.StartedAt)
	assert.Equal(t, *s.RunningSince, *s.StartedAt)

	s, err = Normalize(RawTimeline{
		TrainingID:   "tr",
		Steps:        []RuntimeStep{{ID: "a"}},
		Running:      true,
		RunningSince: json.RawMessage(`"2026-03-01T08:59:00Z"`),
		StartedAt:    json.RawMessage(`"garbage"`),
		CompletedAt:  json.RawMessage(`0`),
	}, nowMs)
	require.NoError(t, err)
	assert.Equal(t, epoch.Add(-time.Minute), *s.RunningSince)
	assert.Equal(t, epoch.Add(-time.Minute), *s.StartedAt, "unparseable startedAt falls back to runningSince")
	assert.Nil(t, s.CompletedAt)

	s, err = Normalize(RawTimeline{
		TrainingID:   "tr",
		Steps:        []RuntimeStep{{ID: "a"}},
		RunningSince: json.RawMessage(`"2026-03-01T08:59:00Z"`),
	}, nowMs)
	require.NoError(t, err)
	assert.Nil(t, s.RunningSince, "paused sessions carry no runningSince")
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		raw  string
		want *time.Time
	}{
		{"rfc3339", `"2026-03-01T09:00:00Z"`, &want},
		{"offset", `"2026-03-01T10:00:00+01:00"`, &want},
		{"epoch ms", `1772355600000`, &want},
		{"epoch ms string", `"1772355600000"`, &want},
		{"null", `null`, nil},
		{"empty", ``, nil},
		{"empty string", `""`, nil},
		{"garbage", `"next tuesday"`, nil},
		{"zero", `0`, nil},
		{"zero time", `"0001-01-01T00:00:00Z"`, nil},
		{"object", `{}`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseTimestamp(json.RawMessage(tt.raw))
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
			assert.Equal(t, time.UTC, got.Location())
		})
	}
}
