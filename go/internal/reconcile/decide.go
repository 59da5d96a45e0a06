package reconcile

import (
	"fmt"
	"time"
)

// Action is what the reconciler does with an accepted poll result.
type Action int

const (
	ActionKeep Action = iota
	ActionReload
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionKeep:
		return "keep"
	case ActionReload:
		return "reload"
	case ActionStop:
		return "stop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// ReasonTargetElapsed is reported when the server still shows a target that
// has already passed.
const ReasonTargetElapsed = "target elapsed"

type Decision struct {
	Action Action
	Reason string
}

// Decide compares an accepted poll result against the local state. Any
// mismatch is resolved by a reload rather than patching local state.
func Decide(local State, remote PollResult, now time.Time, tolerance time.Duration) Decision {
	if remote.Status != local.Status {
		return Decision{
			Action: ActionReload,
			Reason: fmt.Sprintf("status changed %s -> %s", local.Status, remote.Status),
		}
	}

	if remote.Status.Terminal() {
		return Decision{Action: ActionStop, Reason: fmt.Sprintf("status %s is terminal", remote.Status)}
	}

	if !remote.Target.IsZero() && !remote.Target.After(now) {
		return Decision{Action: ActionReload, Reason: ReasonTargetElapsed}
	}

	if !remote.Target.IsZero() && !local.Target.IsZero() {
		drift := remote.Target.Sub(local.Target)
		if drift < 0 {
			drift = -drift
		}
		if drift > tolerance {
			return Decision{Action: ActionReload, Reason: fmt.Sprintf("target drifted by %s", drift)}
		}
	}

	return Decision{Action: ActionKeep}
}
