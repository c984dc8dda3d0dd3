package training

import (
	"crypto/rand"
	"strconv"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/lowaak/smart-trainer/training-app/internal/workout"
)

// RuntimeStep is one atomic entry of a live training timeline
type RuntimeStep struct {
	ID           string               `json:"id"`
	Kind         workout.StepKind     `json:"kind"`
	Name         string               `json:"name,omitempty"`
	ExerciseID   string               `json:"exerciseId,omitempty"`
	ExerciseKind workout.ExerciseKind `json:"exerciseKind,omitempty"`
	Reps         int                  `json:"reps,omitempty"`

	AutoAdvance      bool  `json:"autoAdvance,omitempty"`
	EstimatedSeconds int   `json:"estimatedSeconds,omitempty"` // 0 means open-ended
	ElapsedMillis    int64 `json:"elapsedMillis"`

	Completed bool `json:"completed"`
	Current   bool `json:"current"`
	Running   bool `json:"running"`

	SubsetID  string `json:"subsetId,omitempty"`
	Superset  bool   `json:"superset,omitempty"`
	LoopIndex int    `json:"loopIndex,omitempty"` // 1-based, 0 when the step is not repeated
	LoopTotal int    `json:"loopTotal,omitempty"`

	SoundURL            string `json:"soundUrl,omitempty"`
	SubsetSoundURL      string `json:"subsetSoundUrl,omitempty"`
	SubsetTargetSeconds int    `json:"subsetTargetSeconds,omitempty"`
	CueLeadSeconds      int    `json:"cueLeadSeconds,omitempty"`
	SoundPlayed         bool   `json:"soundPlayed,omitempty"`
}

// TargetMillis returns the target duration in milliseconds, 0 if open-ended
func (s *RuntimeStep) TargetMillis() int64 {
	if s.EstimatedSeconds <= 0 {
		return 0
	}
	return int64(s.EstimatedSeconds) * 1000
}

// AutoAdvanceEligible reports whether the step ends itself
func (s *RuntimeStep) AutoAdvanceEligible() bool {
	return s.AutoAdvance && s.EstimatedSeconds > 0
}

// subsetLoopKey identifies one iteration of a subset
func (s *RuntimeStep) subsetLoopKey() string {
	if s.SubsetID == "" {
		return ""
	}
	return s.SubsetID + "#" + strconv.Itoa(s.LoopIndex)
}

// Trigger tags what caused a transition
type Trigger string

const (
	TriggerManual  Trigger = "manual"
	TriggerAuto    Trigger = "auto"
	TriggerRestore Trigger = "restore"
	TriggerServer  Trigger = "server"
)

var (
	idMu      sync.Mutex
	idEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewStepID returns a fresh, never reused step id
func NewStepID() string {
	idMu.Lock()
	defer idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), idEntropy).String()
}
