package alarm

import (
	"fmt"
	"slices"
	"time"
)

// Dismiss permanently acknowledges an alarm. Implicit alarms are recorded as
// an acknowledged absolute alarm at their trigger instant so they stay
// suppressed when recomputed. Returns false when there was nothing to do.
func (t *Task) Dismiss(alarmID string, now time.Time) (bool, error) {
	now = now.UTC()

	if IsImplicitID(alarmID) {
		ref, err := t.implicitRef(alarmID)
		if err != nil {
			return false, err
		}
		if t.HasAlarmAt(ref.At) {
			return false, nil
		}

		a := NewAlarm(Absolute(ref.At))
		a.Description = ref.Kind.Body()
		a.AcknowledgedAt = &now
		t.Alarms = append(t.Alarms, a)
		return true, nil
	}

	idx := t.alarmIndex(alarmID)
	if idx < 0 {
		return false, fmt.Errorf("%w: %s", ErrAlarmNotFound, alarmID)
	}
	if t.Alarms[idx].Acknowledged() {
		return false, nil
	}

	t.Alarms[idx].AcknowledgedAt = &now
	return true, nil
}

// Snooze acknowledges an alarm and adds an absolute snooze alarm at now+d
// related to the root alarm. A snoozed snooze is removed. Implicit alarms are
// first materialised as an acknowledged alarm at their trigger instant.
// Returns the new snooze alarm, or false when there was nothing to do.
func (t *Task) Snooze(alarmID string, d time.Duration, now time.Time) (Alarm, bool, error) {
	now = now.UTC()

	var root string
	if IsImplicitID(alarmID) {
		ref, err := t.implicitRef(alarmID)
		if err != nil {
			return Alarm{}, false, err
		}
		if t.HasAlarmAt(ref.At) {
			return Alarm{}, false, nil
		}

		ghost := NewAlarm(Absolute(ref.At))
		ghost.Description = ref.Kind.Body()
		ghost.AcknowledgedAt = &now
		t.Alarms = append(t.Alarms, ghost)
		root = ghost.ID
	} else {
		idx := t.alarmIndex(alarmID)
		if idx < 0 {
			return Alarm{}, false, fmt.Errorf("%w: %s", ErrAlarmNotFound, alarmID)
		}

		parent := t.Alarms[idx]
		if parent.Acknowledged() {
			return Alarm{}, false, nil
		}

		root = parent.ID
		if parent.IsSnooze() {
			root = parent.RelatedTo
			t.Alarms = slices.Delete(t.Alarms, idx, idx+1)
		} else {
			t.Alarms[idx].AcknowledgedAt = &now
		}
	}

	snooze := NewAlarm(Absolute(now.Add(d)))
	snooze.Description = fmt.Sprintf("Snoozed for %dm", int(d.Minutes()))
	snooze.RelatedTo = root
	snooze.Relation = RelationSnooze
	t.Alarms = append(t.Alarms, snooze)
	return snooze, true, nil
}

func (t *Task) implicitRef(alarmID string) (ImplicitRef, error) {
	ref, err := ParseImplicitID(alarmID)
	if err != nil {
		return ImplicitRef{}, err
	}
	if ref.TaskID != t.ID {
		return ImplicitRef{}, fmt.Errorf("%w: alarm %s belongs to task %s", ErrInvalidAlarmID, alarmID, ref.TaskID)
	}
	return ref, nil
}

func (t *Task) alarmIndex(alarmID string) int {
	return slices.IndexFunc(t.Alarms, func(a Alarm) bool { return a.ID == alarmID })
}

// MergeState carries the acknowledgement and snooze state of a stored copy
// of the task into t. Alarms present in both keep the stored acknowledgement
// and relation unless t sets its own. Stored acknowledged absolute alarms and
// active snoozes that t does not list are kept, so saving the same task again
// does not revive dismissed reminders.
func (t *Task) MergeState(stored Task) {
	incoming := make(map[string]int, len(t.Alarms))
	for i, a := range t.Alarms {
		incoming[a.ID] = i
	}

	for _, s := range stored.Alarms {
		if i, ok := incoming[s.ID]; ok {
			a := &t.Alarms[i]
			if a.AcknowledgedAt == nil {
				a.AcknowledgedAt = s.AcknowledgedAt
			}
			if a.RelatedTo == "" {
				a.RelatedTo, a.Relation = s.RelatedTo, s.Relation
			}
			continue
		}

		keep := (s.IsSnooze() && !s.Acknowledged()) ||
			(s.Acknowledged() && s.Trigger.Kind == TriggerAbsolute)
		if !keep || (s.Trigger.Kind == TriggerAbsolute && t.HasAlarmAt(s.Trigger.At)) {
			continue
		}
		t.Alarms = append(t.Alarms, s)
	}
}
