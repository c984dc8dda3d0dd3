package training

import (
	"time"

	"github.com/rs/zerolog"
)

type cueKind int

const (
	cueSubset cueKind = iota
	cueStep
	cueKinds
)

func (k cueKind) String() string {
	if k == cueSubset {
		return "subset"
	}
	return "step"
}

// cueKey is the run-instance identity of one cue, including its sound
type cueKey struct {
	Kind         cueKind
	TrainingID   string
	Index        int
	StepID       string
	RunningSince int64
	TargetMs     int64
	LeadMs       int64
	URL          string
}

// fireAtMs is the cue's position on the elapsed clock: a lead before the
// target, never before zero
func (k cueKey) fireAtMs() int64 {
	return k.TargetMs - min(k.TargetMs, k.LeadMs)
}

type stepInstance struct {
	TrainingID string
	Index      int
	StepID     string
}

type cueSlot struct {
	key   cueKey
	timer Timer
	armed bool
}

// cueScheduler arms up to one subset cue and one step cue for the current step.
// Every fire callback carries the token it was armed under; a hard stop bumps
// the token so late callbacks are ignored.
type cueScheduler struct {
	timers      Timers
	player      Player
	defaultLead time.Duration
	logger      zerolog.Logger
	onDue       func(key cueKey, token uint64)

	slots    [cueKinds]cueSlot
	token    uint64
	instance stepInstance
	audible  bool // a cue was played since the last hard stop
	paused   bool
}

func newCueScheduler(timers Timers, player Player, lead time.Duration, logger zerolog.Logger, onDue func(cueKey, uint64)) *cueScheduler {
	return &cueScheduler{
		timers:      timers,
		player:      player,
		defaultLead: lead,
		logger:      logger,
		onDue:       onDue,
	}
}

func instanceOf(s *Session) stepInstance {
	cur := s.Current()
	if cur == nil {
		return stepInstance{}
	}
	return stepInstance{TrainingID: s.TrainingID, Index: s.CurrentIndex, StepID: cur.ID}
}

func (c *cueScheduler) leadMs(step *RuntimeStep) int64 {
	if step.CueLeadSeconds > 0 {
		return int64(step.CueLeadSeconds) * 1000
	}
	return c.defaultLead.Milliseconds()
}

// desired computes the cue of the given kind that should be armed for s
func (c *cueScheduler) desired(kind cueKind, s *Session) (cueKey, bool) {
	if s == nil || !s.Running || s.Done || s.RunningSince == nil {
		return cueKey{}, false
	}
	cur := s.Current()
	if cur == nil {
		return cueKey{}, false
	}
	key := cueKey{
		Kind:         kind,
		TrainingID:   s.TrainingID,
		Index:        s.CurrentIndex,
		StepID:       cur.ID,
		RunningSince: s.RunningSince.UnixMilli(),
		LeadMs:       c.leadMs(cur),
	}
	switch kind {
	case cueSubset:
		if cur.SubsetID == "" || cur.SubsetSoundURL == "" || cur.SubsetTargetSeconds <= 0 {
			return cueKey{}, false
		}
		if s.subsetCuePlayed(cur.subsetLoopKey()) {
			return cueKey{}, false
		}
		key.TargetMs = int64(cur.SubsetTargetSeconds) * 1000
		key.URL = cur.SubsetSoundURL
	default:
		if cur.SoundURL == "" || cur.SoundPlayed || cur.TargetMillis() <= 0 {
			return cueKey{}, false
		}
		key.TargetMs = cur.TargetMillis()
		key.URL = cur.SoundURL
	}
	return key, true
}

// elapsedFor is the clock a cue is measured against
func elapsedFor(kind cueKind, s *Session, nowMs int64) int64 {
	if kind == cueSubset {
		return s.subsetElapsedAt(nowMs)
	}
	return s.CurrentStepElapsedAt(nowMs)
}

// sync re-arms cues against the session. A changed step hard-stops playback;
// a paused session pauses it.
func (c *cueScheduler) sync(s *Session, nowMs int64) {
	if inst := instanceOf(s); inst != c.instance {
		c.hardStop()
		c.instance = inst
	}

	if s == nil || s.Done {
		c.clearSlots()
		return
	}

	if !s.Running {
		c.clearSlots()
		if c.audible && !c.paused {
			c.player.Pause()
			c.paused = true
		}
		return
	}

	if c.paused {
		c.player.Resume()
		c.paused = false
	}

	for kind := cueKind(0); kind < cueKinds; kind++ {
		key, ok := c.desired(kind, s)
		if !ok {
			c.clearSlot(kind)
			continue
		}
		slot := &c.slots[kind]
		if slot.armed && slot.key == key {
			continue
		}
		c.arm(key, key.fireAtMs()-elapsedFor(kind, s, nowMs))
	}
}

func (c *cueScheduler) arm(key cueKey, delayMs int64) {
	c.clearSlot(key.Kind)
	if delayMs < 0 {
		delayMs = 0
	}
	token := c.token
	slot := &c.slots[key.Kind]
	slot.key = key
	slot.armed = true
	slot.timer = c.timers.AfterFunc(time.Duration(delayMs)*time.Millisecond, func() { c.onDue(key, token) })
}

func (c *cueScheduler) clearSlot(kind cueKind) {
	slot := &c.slots[kind]
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.armed = false
}

func (c *cueScheduler) clearSlots() {
	for kind := cueKind(0); kind < cueKinds; kind++ {
		c.clearSlot(kind)
	}
}

// claim validates a firing callback against the token and the armed slot
func (c *cueScheduler) claim(key cueKey, token uint64) bool {
	if token != c.token {
		return false
	}
	slot := &c.slots[key.Kind]
	if !slot.armed || slot.key != key {
		return false
	}
	slot.armed = false
	slot.timer = nil
	return true
}

// play starts a cue. A rejection is logged and returned; the caller still
// treats the cue as spent so a missed sound never holds up the timeline.
func (c *cueScheduler) play(key cueKey) error {
	if err := c.player.Play(key.URL); err != nil {
		c.logger.Warn().Err(err).Str("url", key.URL).Str("kind", key.Kind.String()).Msg("cue playback rejected")
		return err
	}
	c.audible = true
	c.paused = false
	c.logger.Debug().Str("url", key.URL).Str("kind", key.Kind.String()).Int("index", key.Index).Msg("cue played")
	return nil
}

// hardStop invalidates every armed cue and stops playback
func (c *cueScheduler) hardStop() {
	c.token++
	c.clearSlots()
	if c.audible {
		c.player.Stop()
	}
	c.audible = false
	c.paused = false
}
