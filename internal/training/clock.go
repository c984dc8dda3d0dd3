package training

import "time"

// commit credits the time since lastUpdatedAt to the current step if the
// session is running, then stamps lastUpdatedAt. Every mutation calls it first.
func (s *Session) commit(nowMs int64) {
	if s.Running && !s.Done {
		if cur := s.Current(); cur != nil {
			if delta := nowMs - s.LastUpdatedAt; delta > 0 {
				cur.ElapsedMillis += delta
			}
		}
	}
	s.LastUpdatedAt = nowMs
}

// CurrentStepElapsedAt returns the current step's elapsed time at nowMs without
// committing anything. Render ticks use this; transitions use commit.
func (s *Session) CurrentStepElapsedAt(nowMs int64) int64 {
	cur := s.Current()
	if cur == nil {
		return 0
	}
	return s.stepElapsedAt(s.CurrentIndex, nowMs)
}

// stepElapsedAt is the non-mutating elapsed value of any step
func (s *Session) stepElapsedAt(idx int, nowMs int64) int64 {
	st := &s.Steps[idx]
	elapsed := st.ElapsedMillis
	if s.Running && !s.Done && idx == s.CurrentIndex {
		if delta := nowMs - s.LastUpdatedAt; delta > 0 {
			elapsed += delta
		}
	}
	return elapsed
}

// subsetElapsedAt sums elapsed time across all steps of the current step's subset
// iteration
func (s *Session) subsetElapsedAt(nowMs int64) int64 {
	cur := s.Current()
	if cur == nil || cur.SubsetID == "" {
		return 0
	}
	var total int64
	for i := range s.Steps {
		st := &s.Steps[i]
		if st.SubsetID == cur.SubsetID && st.LoopIndex == cur.LoopIndex {
			total += s.stepElapsedAt(i, nowMs)
		}
	}
	return total
}

// resume marks the session running from now. The first resume also stamps startedAt.
// Callers must commit first.
func (s *Session) resume(now time.Time) {
	if s.Running || s.Done {
		return
	}
	t := now.UTC()
	s.Running = true
	s.RunningSince = &t
	if s.StartedAt == nil {
		s.StartedAt = cloneTime(&t)
	}
	s.applyFlags()
}

// pause stops the clock. Callers must commit first.
func (s *Session) pause() {
	s.Running = false
	s.RunningSince = nil
	s.applyFlags()
}
