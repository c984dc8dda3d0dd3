package training

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lowaak/smart-trainer/training-app/internal/metrics"
	"github.com/lowaak/smart-trainer/training-app/internal/store"
)

func (e *Engine) hideSlot() string {
	return e.cfg.Slot + ".hide"
}

func (e *Engine) storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), e.cfg.StorageTimeout)
}

// persist writes the live session to the main slot. A done session has
// nothing to resume, so its slot is removed instead, unless the outbox
// could not take its record.
func (e *Engine) persist() {
	if e.session == nil {
		return
	}
	if e.session.Done && e.unqueued != e.session.TrainingID {
		e.clearSlots()
		return
	}
	ctx, cancel := e.storageContext()
	defer cancel()

	raw, err := json.Marshal(e.session)
	if err != nil {
		e.logger.Error().Err(err).Msg("failed to encode session")
		return
	}
	if err := e.slots.Write(ctx, e.cfg.Slot, raw); err != nil {
		metrics.StorageErrors.WithLabelValues("write").Inc()
		e.logger.Warn().Err(err).Msg("failed to persist session")
	}
}

func (e *Engine) clearSlots() {
	ctx, cancel := e.storageContext()
	defer cancel()
	for _, name := range []string{e.cfg.Slot, e.hideSlot()} {
		if err := e.slots.Delete(ctx, name); err != nil {
			metrics.StorageErrors.WithLabelValues("delete").Inc()
			e.logger.Warn().Err(err).Str("slot", name).Msg("failed to clear slot")
		}
	}
}

// Suspend writes a best-effort snapshot to the hide slot as if the session
// had been paused now. The live session is left running.
func (e *Engine) Suspend() error {
	if e.session == nil || e.session.Done {
		return nil
	}
	now := e.timers.Now()
	snap := e.session.Clone()
	snap.commit(now.UnixMilli())
	snap.pause()

	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding hide snapshot: %w", err)
	}
	ctx, cancel := e.storageContext()
	defer cancel()
	if err := e.slots.Write(ctx, e.hideSlot(), raw); err != nil {
		metrics.StorageErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("writing hide snapshot: %w", err)
	}
	e.logger.Debug().Str("training_id", snap.TrainingID).Msg("hide snapshot written")
	return nil
}

// readSlot decodes one slot. Malformed contents are cleared and reported as absent.
func (e *Engine) readSlot(ctx context.Context, name string) (RawTimeline, bool, error) {
	data, err := e.slots.Read(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return RawTimeline{}, false, nil
		}
		metrics.StorageErrors.WithLabelValues("read").Inc()
		return RawTimeline{}, false, fmt.Errorf("reading slot %s: %w", name, err)
	}

	var raw RawTimeline
	if err := json.Unmarshal(data, &raw); err != nil || raw.TrainingID == "" {
		e.logger.Warn().Err(err).Str("slot", name).Msg("discarding malformed session slot")
		metrics.SessionRestores.WithLabelValues("malformed").Inc()
		if delErr := e.slots.Delete(ctx, name); delErr != nil {
			e.logger.Warn().Err(delErr).Str("slot", name).Msg("failed to clear malformed slot")
		}
		return RawTimeline{}, false, nil
	}
	return raw, true, nil
}

// pickRestore chooses between the main slot and the hide snapshot. The hide
// snapshot wins only for the same training and only if it is newer.
func pickRestore(main RawTimeline, mainOK bool, hide RawTimeline, hideOK bool) (RawTimeline, bool) {
	switch {
	case mainOK && hideOK:
		if hide.TrainingID == main.TrainingID && hide.LastUpdatedAt > main.LastUpdatedAt {
			return hide, true
		}
		return main, true
	case mainOK:
		return main, true
	case hideOK:
		return hide, true
	}
	return RawTimeline{}, false
}

// Restore loads the persisted session, if any. Unseen time since the last
// write is credited only if the session was running, and never more than the
// catch-up cap. The restored session is always paused.
func (e *Engine) Restore(ctx context.Context) (bool, error) {
	main, mainOK, err := e.readSlot(ctx, e.cfg.Slot)
	if err != nil {
		return false, err
	}
	hide, hideOK, err := e.readSlot(ctx, e.hideSlot())
	if err != nil {
		return false, err
	}

	raw, ok := pickRestore(main, mainOK, hide, hideOK)
	if !ok {
		metrics.SessionRestores.WithLabelValues("empty").Inc()
		return false, nil
	}
	if raw.Done {
		return e.restoreFinished(ctx, raw, hideOK)
	}

	now := e.timers.Now()
	nowMs := now.UnixMilli()
	s, err := Normalize(raw, nowMs)
	if err != nil {
		e.logger.Warn().Err(err).Msg("discarding unusable session slot")
		e.clearSlots()
		metrics.SessionRestores.WithLabelValues("malformed").Inc()
		return false, nil
	}

	var gap int64
	if raw.Running && raw.LastUpdatedAt > 0 {
		gap = min(max(nowMs-raw.LastUpdatedAt, 0), e.cfg.RestoreCatchUpCap.Milliseconds())
		if cur := s.Current(); cur != nil {
			cur.ElapsedMillis += gap
		}
	}
	s.pause()

	e.session = s
	e.restored = true
	e.lastTrigger = TriggerRestore
	if hideOK {
		if err := e.slots.Delete(ctx, e.hideSlot()); err != nil {
			e.logger.Warn().Err(err).Msg("failed to clear hide snapshot")
		}
	}
	e.afterCommit()

	metrics.SessionRestores.WithLabelValues("restored").Inc()
	e.logger.Info().
		Str("training_id", s.TrainingID).
		Int("index", s.CurrentIndex).
		Bool("was_running", raw.Running).
		Int64("credited_ms", gap).
		Msg("session restored paused")
	return true, nil
}

// restoreFinished handles a stored session that was finalized but whose
// record never reached the outbox. The record is queued now; if that still
// fails the session comes back done and unlogged so finishing can retry it.
func (e *Engine) restoreFinished(ctx context.Context, raw RawTimeline, hideOK bool) (bool, error) {
	if raw.Logged {
		e.logger.Info().Str("training_id", raw.TrainingID).Msg("stored session already logged, clearing")
		e.clearSlots()
		metrics.SessionRestores.WithLabelValues("empty").Inc()
		return false, nil
	}
	s, err := Normalize(raw, e.timers.Now().UnixMilli())
	if err != nil {
		e.logger.Warn().Err(err).Msg("discarding unusable finished session")
		e.clearSlots()
		metrics.SessionRestores.WithLabelValues("malformed").Inc()
		return false, nil
	}

	err = e.enqueue(ctx, recordOf(s))
	if err == nil {
		e.logger.Info().Str("training_id", s.TrainingID).Msg("finished session moved to outbox")
		e.clearSlots()
		metrics.SessionRestores.WithLabelValues("queued").Inc()
		return false, nil
	}
	e.logger.Warn().Err(err).Str("training_id", s.TrainingID).Msg("finished session still not queued, restoring it unlogged")

	e.session = s
	e.unqueued = s.TrainingID
	e.restored = true
	e.lastTrigger = TriggerRestore
	if hideOK {
		if err := e.slots.Delete(ctx, e.hideSlot()); err != nil {
			e.logger.Warn().Err(err).Msg("failed to clear hide snapshot")
		}
	}
	e.afterCommit()
	metrics.SessionRestores.WithLabelValues("unlogged").Inc()
	return true, nil
}
