// Package approval defines the visitor approval state machine.
//
// The machine covers only the approval dimension (pending, approved, denied).
// Check-in and check-out are tracked by two nullable timestamps whose legality
// depends on the approval status; both dimensions are checked here so that the
// store can encode the same guard as a conditional write.
package approval

import (
	"fmt"

	"society-gate-backend/internal/model"
)

// Action is a trigger that moves a visitor record.
type Action string

const (
	ActionPreApprove    Action = "pre_approve"
	ActionRequestEntry  Action = "request_entry"
	ActionManualCheckIn Action = "manual_check_in"
	ActionApprove       Action = "approve"
	ActionDeny          Action = "deny"
	ActionCheckIn       Action = "check_in"
	ActionCheckOut      Action = "check_out"
)

// State is the part of a record the machine looks at.
type State struct {
	Status     model.ApprovalStatus
	CheckedIn  bool
	CheckedOut bool
}

// StateOf extracts the machine state from a stored record.
func StateOf(v *model.Visitor) State {
	return State{
		Status:     v.ApprovalStatus,
		CheckedIn:  v.CheckInTime != nil,
		CheckedOut: v.CheckOutTime != nil,
	}
}

type transition struct {
	role model.Role
	from []model.ApprovalStatus // empty for creation
	to   model.ApprovalStatus
	// creates marks transitions out of "no record".
	creates bool
}

var transitions = map[Action]transition{
	ActionPreApprove:    {role: model.RoleResident, creates: true, to: model.StatusApproved},
	ActionRequestEntry:  {role: model.RoleGuard, creates: true, to: model.StatusPending},
	ActionManualCheckIn: {role: model.RoleGuard, creates: true, to: model.StatusApproved},
	ActionApprove:       {role: model.RoleResident, from: []model.ApprovalStatus{model.StatusPending}, to: model.StatusApproved},
	ActionDeny:          {role: model.RoleResident, from: []model.ApprovalStatus{model.StatusPending}, to: model.StatusDenied},
	ActionCheckIn:       {role: model.RoleGuard, from: []model.ApprovalStatus{model.StatusApproved}, to: model.StatusApproved},
	ActionCheckOut:      {role: model.RoleGuard, from: []model.ApprovalStatus{model.StatusApproved}, to: model.StatusApproved},
}

// Role returns the role allowed to trigger action.
func Role(action Action) (model.Role, bool) {
	t, ok := transitions[action]
	return t.role, ok
}

// Initial returns the status a record is created in by action.
func Initial(action Action) (model.ApprovalStatus, error) {
	t, ok := transitions[action]
	if !ok || !t.creates {
		return "", fmt.Errorf("%w: %s does not create a record", ErrUnknownAction, action)
	}
	return t.to, nil
}

// Next validates action against the current state and returns the resulting status.
// It never mutates anything; a non-nil error means the record must stay untouched.
func Next(current State, action Action) (model.ApprovalStatus, error) {
	t, ok := transitions[action]
	if !ok || t.creates {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, action)
	}
	if !statusIn(current.Status, t.from) {
		return "", &TransitionError{Action: action, From: current}
	}

	switch action {
	case ActionCheckIn:
		if current.CheckedIn {
			return "", &TransitionError{Action: action, From: current}
		}
	case ActionCheckOut:
		if !current.CheckedIn || current.CheckedOut {
			return "", &TransitionError{Action: action, From: current}
		}
	case ActionApprove, ActionDeny:
		if current.CheckedIn {
			return "", &TransitionError{Action: action, From: current}
		}
	}
	return t.to, nil
}

// Decision maps a resident's response to an action.
func Decision(status model.ApprovalStatus) (Action, bool) {
	switch status {
	case model.StatusApproved:
		return ActionApprove, true
	case model.StatusDenied:
		return ActionDeny, true
	}
	return "", false
}

// Terminal reports whether no transition leaves status.
func Terminal(status model.ApprovalStatus) bool {
	return status == model.StatusDenied
}

func statusIn(s model.ApprovalStatus, set []model.ApprovalStatus) bool {
	for _, candidate := range set {
		if candidate == s {
			return true
		}
	}
	return false
}
