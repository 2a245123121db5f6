package alarm

import (
	"fmt"
	"strings"
	"time"
)

const implicitPrefix = "implicit_"

// ImplicitKind names the task date an implicit alarm derives from.
type ImplicitKind string

const (
	KindDue   ImplicitKind = "due"
	KindStart ImplicitKind = "start"
)

// Body returns the notification text for an implicit alarm of this kind.
func (k ImplicitKind) Body() string {
	if k == KindStart {
		return "Starting now"
	}
	return "Due now"
}

// ImplicitRef is the decoded form of an implicit alarm id.
type ImplicitRef struct {
	Kind   ImplicitKind
	At     time.Time
	TaskID string
}

// ImplicitID builds the id of the implicit alarm for a task date. The same
// (kind, instant, task) always yields the same id.
func ImplicitID(kind ImplicitKind, at time.Time, taskID string) string {
	return fmt.Sprintf("%s%s:|%s|%s", implicitPrefix, kind, at.UTC().Format(time.RFC3339), taskID)
}

// IsImplicitID reports whether id names an implicit alarm.
func IsImplicitID(id string) bool {
	return strings.HasPrefix(id, implicitPrefix)
}

// ParseImplicitID decodes an id produced by ImplicitID.
func ParseImplicitID(id string) (ImplicitRef, error) {
	rest, ok := strings.CutPrefix(id, implicitPrefix)
	if !ok {
		return ImplicitRef{}, fmt.Errorf("%w: %q is not implicit", ErrInvalidAlarmID, id)
	}

	kind, rest, ok := strings.Cut(rest, ":|")
	if !ok {
		return ImplicitRef{}, fmt.Errorf("%w: %q", ErrInvalidAlarmID, id)
	}
	switch ImplicitKind(kind) {
	case KindDue, KindStart:
	default:
		return ImplicitRef{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidAlarmID, kind)
	}

	ts, taskID, ok := strings.Cut(rest, "|")
	if !ok || taskID == "" {
		return ImplicitRef{}, fmt.Errorf("%w: %q", ErrInvalidAlarmID, id)
	}

	at, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ImplicitRef{}, fmt.Errorf("%w: bad timestamp: %v", ErrInvalidAlarmID, err)
	}

	return ImplicitRef{Kind: ImplicitKind(kind), At: at.UTC(), TaskID: taskID}, nil
}
