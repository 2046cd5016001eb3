package store

import (
	"errors"
	"time"

	"society-gate-backend/internal/model"
)

var (
	// ErrNotFound is returned when the referenced record or unit does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConditionFailed is returned when a conditional write matched no row
	// although the record exists. The current record is returned alongside it.
	ErrConditionFailed = errors.New("conditional update matched no rows")
)

// VisitorOrder selects the sort order of visitor listings.
type VisitorOrder int

const (
	// OrderNewest sorts by creation time, newest first.
	OrderNewest VisitorOrder = iota
	// OrderCheckInDesc sorts by check-in time, newest first, never-checked-in records last.
	OrderCheckInDesc
)

// VisitorFilter narrows a visitor listing. Zero values mean "any".
type VisitorFilter struct {
	UnitOwnerID string
	Status      model.ApprovalStatus
	CheckedIn   *bool
	CheckedOut  *bool
	Order       VisitorOrder
	Limit       int
	WithOwner   bool
}

// CheckInUpdate carries the fields written by a guard check-in.
type CheckInUpdate struct {
	GuardID   string
	At        time.Time
	VehicleNo string // empty keeps the stored value
}

// Bool returns a pointer to b, for use in VisitorFilter.
func Bool(b bool) *bool {
	return &b
}
