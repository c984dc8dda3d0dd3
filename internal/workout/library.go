package workout

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Library is an immutable set of workout definitions loaded from YAML
type Library struct {
	workouts []Workout
	byID     map[string]int
}

type libraryFile struct {
	Workouts []Workout `yaml:"workouts"`
}

// NewLibrary builds a library from already-decoded workouts
func NewLibrary(workouts []Workout) (*Library, error) {
	l := &Library{byID: make(map[string]int, len(workouts))}
	for _, w := range workouts {
		if err := w.Validate(); err != nil {
			return nil, err
		}
		if _, dup := l.byID[w.ID]; dup {
			return nil, fmt.Errorf("workout %s defined twice", w.ID)
		}
		l.byID[w.ID] = len(l.workouts)
		l.workouts = append(l.workouts, w)
	}
	return l, nil
}

// LoadLibrary reads a YAML file of the form `workouts: [...]`
func LoadLibrary(fs afero.Fs, path string) (*Library, error) {
	raw, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading workout library %s: %w", path, err)
	}
	return ParseLibrary(raw)
}

// ParseLibrary decodes a YAML workout library
func ParseLibrary(raw []byte) (*Library, error) {
	var f libraryFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parsing workout library: %w", err)
	}
	return NewLibrary(f.Workouts)
}

// Find returns the workout with the given id
func (l *Library) Find(id string) (Workout, bool) {
	idx, ok := l.byID[id]
	if !ok {
		return Workout{}, false
	}
	return l.workouts[idx], true
}

// All returns the workouts in file order
func (l *Library) All() []Workout {
	out := make([]Workout, len(l.workouts))
	copy(out, l.workouts)
	return out
}
