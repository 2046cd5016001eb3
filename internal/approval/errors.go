package approval

import (
	"errors"
	"fmt"
)

// ErrUnknownAction is returned for actions the machine does not know about.
var ErrUnknownAction = errors.New("unknown approval action")

// TransitionError reports a guard condition that did not hold.
type TransitionError struct {
	Action Action
	From   State
}

func (e *TransitionError) Error() string {
	switch {
	case e.Action == ActionCheckIn && e.From.Status != "approved":
		return fmt.Sprintf("cannot check in: status is %s", e.From.Status)
	case e.Action == ActionCheckIn:
		return "visitor already checked in"
	case e.Action == ActionCheckOut && e.From.CheckedOut:
		return "visitor already checked out"
	case e.Action == ActionCheckOut:
		return "visitor has not checked in"
	case e.Action == ActionApprove || e.Action == ActionDeny:
		return fmt.Sprintf("request is no longer pending: status is %s", e.From.Status)
	}
	return fmt.Sprintf("cannot %s from %s", e.Action, e.From.Status)
}
