package training

import "time"

// runKey identifies one run instance of an auto-advancing step.
// A deadline is scheduled only when the key changes.
type runKey struct {
	TrainingID   string
	Index        int
	StepID       string
	RunningSince int64
	DurationMs   int64
}

// runKeyOf returns the key of the current run instance, or false if the
// current step should not advance itself right now
func runKeyOf(s *Session) (runKey, bool) {
	if s == nil || !s.Running || s.Done || s.RunningSince == nil {
		return runKey{}, false
	}
	cur := s.Current()
	if cur == nil || !cur.AutoAdvanceEligible() {
		return runKey{}, false
	}
	return runKey{
		TrainingID:   s.TrainingID,
		Index:        s.CurrentIndex,
		StepID:       cur.ID,
		RunningSince: s.RunningSince.UnixMilli(),
		DurationMs:   cur.TargetMillis(),
	}, true
}

// autoAdvancer holds at most one pending deadline
type autoAdvancer struct {
	timers Timers
	onDue  func(key runKey, seq uint64)

	key   runKey
	seq   uint64
	timer Timer
	armed bool
}

func newAutoAdvancer(timers Timers, onDue func(runKey, uint64)) *autoAdvancer {
	return &autoAdvancer{timers: timers, onDue: onDue}
}

// sync brings the schedule in line with the session. Calling it again with
// an unchanged run instance keeps the existing deadline.
func (a *autoAdvancer) sync(s *Session, nowMs int64) {
	key, ok := runKeyOf(s)
	if !ok {
		a.clear()
		return
	}
	if a.armed && a.key == key {
		return
	}

	// anchor on what has already elapsed so a resumed step gets only its remainder
	anchorStart := nowMs - s.CurrentStepElapsedAt(nowMs)
	deadline := anchorStart + key.DurationMs
	a.arm(key, time.Duration(deadline-nowMs)*time.Millisecond)
}

func (a *autoAdvancer) arm(key runKey, delay time.Duration) {
	a.clear()
	if delay < 0 {
		delay = 0
	}
	seq := a.seq
	a.key = key
	a.armed = true
	a.timer = a.timers.AfterFunc(delay, func() { a.onDue(key, seq) })
}

func (a *autoAdvancer) clear() {
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.armed = false
	a.seq++
}

// claim reports whether a firing callback is the live one and, if so, disarms it
func (a *autoAdvancer) claim(key runKey, seq uint64) bool {
	if !a.armed || a.seq != seq || a.key != key {
		return false
	}
	a.armed = false
	a.timer = nil
	return true
}

// pending reports whether a deadline is armed, and for which instance
func (a *autoAdvancer) pending() (runKey, bool) {
	return a.key, a.armed
}
