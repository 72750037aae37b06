package services

import "github.com/lookout/backend/internal/domain"

// Decision is the notification policy outcome for one terminal execution.
type Decision struct {
	Notify     bool
	Deactivate bool
}

// Decide is the notification policy engine. It is a pure function of the
// task's notify behavior, the previous and current condition verdicts and
// the comparator's change summary.
//
// The rolling condition verdict is always replaced by the caller with
// curr, never OR-ed; a task's state is a function of its latest
// execution, not an accumulator.
func Decide(behavior domain.NotifyBehavior, prev, curr bool, change *domain.ChangeSummary) Decision {
	switch behavior {
	case domain.NotifyOnce:
		// First successful trigger completes the task. prev is
		// deliberately ignored: a stale true must not suppress or force
		// anything.
		if curr {
			return Decision{Notify: true, Deactivate: true}
		}
		return Decision{}
	case domain.NotifyAlways:
		return Decision{Notify: curr}
	case domain.NotifyTrackState:
		// Notify on any structural change, independent of the verdict.
		return Decision{Notify: change != nil}
	default:
		return Decision{}
	}
}
