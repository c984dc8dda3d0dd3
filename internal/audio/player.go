package audio

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lowaak/smart-trainer/training-app/internal/training"
)

// State of a BellPlayer
type State int

const (
	Idle State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

// Bell rings once. tcell.Screen satisfies it.
type Bell interface {
	Beep() error
}

// BellPlayer rings a bell for every cue. A terminal has no way to stop a
// bell mid-ring, so the player only tracks what cue is current so a paused
// cue rings again on resume.
type BellPlayer struct {
	mu      sync.Mutex
	bell    Bell
	logger  zerolog.Logger
	state   State
	current string
}

// NewBellPlayer creates a player with no bell attached. Cues are tracked but
// silent until Attach is called.
func NewBellPlayer(logger zerolog.Logger) *BellPlayer {
	return &BellPlayer{
		logger: logger.With().Str("component", "audio").Logger(),
	}
}

// Attach sets the bell to ring, usually the screen the UI draws on. nil detaches.
func (p *BellPlayer) Attach(b Bell) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bell = b
}

func (p *BellPlayer) Play(url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ring(); err != nil {
		return err
	}
	p.state = Playing
	p.current = url
	p.logger.Debug().Str("url", url).Msg("cue")
	return nil
}

func (p *BellPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.state = Paused
	}
}

func (p *BellPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Paused {
		return
	}
	if err := p.ring(); err != nil {
		p.logger.Warn().Err(err).Msg("resume failed")
		p.state = Idle
		return
	}
	p.state = Playing
}

func (p *BellPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = Idle
	p.current = ""
}

// State returns the playback state and the current cue URL
func (p *BellPlayer) State() (State, string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.current
}

func (p *BellPlayer) ring() error {
	if p.bell == nil {
		return nil
	}
	if err := p.bell.Beep(); err != nil {
		return fmt.Errorf("ringing bell: %w", err)
	}
	return nil
}

// NopPlayer accepts every cue and plays nothing
type NopPlayer struct{}

func (NopPlayer) Play(string) error { return nil }
func (NopPlayer) Pause()            {}
func (NopPlayer) Resume()           {}
func (NopPlayer) Stop()             {}

// New returns the player for a configured kind: "bell" or "none"
func New(kind string, logger zerolog.Logger) (training.Player, error) {
	switch kind {
	case "", "bell":
		return NewBellPlayer(logger), nil
	case "none":
		return NopPlayer{}, nil
	}
	return nil, fmt.Errorf("unknown audio player %q", kind)
}
