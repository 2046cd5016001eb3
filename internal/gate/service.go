// Package gate implements the visitor gate workflow: pre-approvals, sudden
// entry requests, resident responses, check-in and check-out.
//
// Every mutation is a single conditional write in the store followed by
// exactly one fanout event. Queries are scoped by the acting role.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"society-gate-backend/internal/approval"
	"society-gate-backend/internal/fanout"
	"society-gate-backend/internal/model"
	"society-gate-backend/internal/notification"
	"society-gate-backend/internal/parse"
	"society-gate-backend/internal/store"
)

// DefaultHistoryLimit caps the resident history listing when no limit is configured.
const DefaultHistoryLimit = 10

// Actor is the identity resolved by the upstream auth layer.
type Actor struct {
	ID   string
	Role model.Role
}

// Publisher broadcasts state-change events.
type Publisher interface {
	Publish(evt fanout.Event) error
}

// Notifier queues a push notice for a resident.
type Notifier interface {
	Dispatch(job notification.Job) bool
}

// PreApproveInput is what a resident supplies ahead of a visit.
type PreApproveInput struct {
	Name         string
	Phone        string
	VehicleNo    string
	VisitorType  string
	ExpectedTime *time.Time
}

// EntryInput describes a visitor standing at the gate.
type EntryInput struct {
	UnitNumber  string
	Name        string
	Phone       string
	VehicleNo   string
	VisitorType string
}

// CheckInInput checks in an existing record when VisitorID is set, and
// otherwise creates a guard-vouched record from Entry.
type CheckInInput struct {
	VisitorID string
	VehicleNo string
	Entry     EntryInput
}

// Manual reports whether the input takes the manual override path.
func (in CheckInInput) Manual() bool {
	return strings.TrimSpace(in.VisitorID) == ""
}

// Service orchestrates the gate workflow.
type Service struct {
	store        store.Store
	hub          Publisher
	notifier     Notifier
	now          func() time.Time
	historyLimit int
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier enables resident push notices for sudden entry requests.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithHistoryLimit sets how many records ResidentHistory returns.
func WithHistoryLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.historyLimit = n
		}
	}
}

// NewService creates a gate workflow service.
func NewService(st store.Store, hub Publisher, opts ...Option) *Service {
	s := &Service{
		store:        st,
		hub:          hub,
		now:          func() time.Time { return time.Now().UTC() },
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PreApprove creates an approved pass for a visitor of the acting resident.
func (s *Service) PreApprove(ctx context.Context, actor Actor, in PreApproveInput) (*model.Visitor, error) {
	if err := authorize(actor, approval.ActionPreApprove); err != nil {
		return nil, err
	}
	name, phone, vtype, err := visitorFields(in.Name, in.Phone, in.VisitorType)
	if err != nil {
		return nil, err
	}

	resident, err := s.store.GetResident(ctx, actor.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, validationError("resident %s is not in the directory", actor.ID)
	}
	if err != nil {
		return nil, persistenceError("load resident", err)
	}
	if resident.UnitNumber == "" {
		return nil, validationError("resident %s has no unit", actor.ID)
	}

	status, err := approval.Initial(approval.ActionPreApprove)
	if err != nil {
		return nil, err
	}
	token := uuid.NewString()
	v := &model.Visitor{
		UnitOwnerID:    resident.ID,
		UnitNumber:     resident.UnitNumber,
		Name:           name,
		Phone:          phone,
		VehicleNo:      strings.TrimSpace(in.VehicleNo),
		VisitorType:    vtype,
		PreApproved:    true,
		ApprovalStatus: status,
		ExpectedTime:   in.ExpectedTime,
		QRCodeToken:    &token,
		CreatedByID:    actor.ID,
		CreatedByRole:  actor.Role,
	}
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		return nil, persistenceError("create pre-approval", err)
	}

	s.publish(fanout.ActionCreate, approval.ActionPreApprove, v)
	return v, nil
}

// RequestSuddenEntry records an unannounced visitor as pending and asks the
// unit owner to respond.
func (s *Service) RequestSuddenEntry(ctx context.Context, actor Actor, in EntryInput) (*model.Visitor, error) {
	if err := authorize(actor, approval.ActionRequestEntry); err != nil {
		return nil, err
	}
	v, owner, err := s.newEntry(ctx, in)
	if err != nil {
		return nil, err
	}

	status, err := approval.Initial(approval.ActionRequestEntry)
	if err != nil {
		return nil, err
	}
	v.ApprovalStatus = status
	v.CreatedByID = actor.ID
	v.CreatedByRole = actor.Role
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		return nil, persistenceError("create entry request", err)
	}

	s.publish(fanout.ActionCreate, approval.ActionRequestEntry, v)
	if s.notifier != nil {
		s.notifier.Dispatch(notification.Job{
			ResidentID: owner.ID,
			VisitorID:  v.ID,
			Title:      "Visitor at the gate",
			Body:       fmt.Sprintf("%s is waiting at the gate for unit %s", v.Name, v.UnitNumber),
		})
	}
	return v, nil
}

// RespondToRequest applies the owner's decision to a pending request.
func (s *Service) RespondToRequest(ctx context.Context, actor Actor, visitorID, decision string) (*model.Visitor, error) {
	status := model.ApprovalStatus(strings.ToLower(strings.TrimSpace(decision)))
	action, ok := approval.Decision(status)
	if !ok {
		return nil, validationError("decision must be %q or %q", model.StatusApproved, model.StatusDenied)
	}
	if err := authorize(actor, action); err != nil {
		return nil, err
	}

	v, err := s.store.RespondToRequest(ctx, visitorID, actor.ID, status, s.now())
	if err != nil {
		return nil, s.writeError(err, v, action, visitorID)
	}

	s.publish(fanout.ActionUpdate, action, v)
	return v, nil
}

// CheckIn admits a visitor. With a VisitorID it stamps an approved record;
// without one it creates an approved, checked-in record on the guard's word.
func (s *Service) CheckIn(ctx context.Context, actor Actor, in CheckInInput) (*model.Visitor, error) {
	if in.Manual() {
		return s.manualCheckIn(ctx, actor, in.Entry)
	}
	if err := authorize(actor, approval.ActionCheckIn); err != nil {
		return nil, err
	}

	id := strings.TrimSpace(in.VisitorID)
	v, err := s.store.CheckIn(ctx, id, store.CheckInUpdate{
		GuardID:   actor.ID,
		At:        s.now(),
		VehicleNo: strings.TrimSpace(in.VehicleNo),
	})
	if err != nil {
		return nil, s.writeError(err, v, approval.ActionCheckIn, id)
	}

	s.publish(fanout.ActionUpdate, approval.ActionCheckIn, v)
	return v, nil
}

func (s *Service) manualCheckIn(ctx context.Context, actor Actor, in EntryInput) (*model.Visitor, error) {
	if err := authorize(actor, approval.ActionManualCheckIn); err != nil {
		return nil, err
	}
	v, _, err := s.newEntry(ctx, in)
	if err != nil {
		return nil, err
	}

	status, err := approval.Initial(approval.ActionManualCheckIn)
	if err != nil {
		return nil, err
	}
	now := s.now()
	v.ApprovalStatus = status
	v.CheckInTime = &now
	v.ManualOverride = true
	v.CreatedByID = actor.ID
	v.CreatedByRole = actor.Role
	v.CheckedInByID = actor.ID
	if err := s.store.CreateVisitor(ctx, v); err != nil {
		return nil, persistenceError("create manual check-in", err)
	}

	slog.Info("manual override check-in", "guard_id", actor.ID, "unit", v.UnitNumber, "visitor_id", v.ID)
	s.publish(fanout.ActionCreate, approval.ActionManualCheckIn, v)
	return v, nil
}

// CheckOut stamps the departure of a visitor on the premises.
func (s *Service) CheckOut(ctx context.Context, actor Actor, visitorID string) (*model.Visitor, error) {
	if err := authorize(actor, approval.ActionCheckOut); err != nil {
		return nil, err
	}

	v, err := s.store.CheckOut(ctx, visitorID, actor.ID, s.now())
	if err != nil {
		return nil, s.writeError(err, v, approval.ActionCheckOut, visitorID)
	}

	s.publish(fanout.ActionUpdate, approval.ActionCheckOut, v)
	return v, nil
}

// ResidentHistory lists the acting resident's most recent visitors.
func (s *Service) ResidentHistory(ctx context.Context, actor Actor) ([]model.Visitor, error) {
	return s.list(ctx, actor, model.RoleResident, store.VisitorFilter{
		UnitOwnerID: actor.ID,
		Limit:       s.historyLimit,
	})
}

// ResidentPending lists requests still waiting for the acting resident.
func (s *Service) ResidentPending(ctx context.Context, actor Actor) ([]model.Visitor, error) {
	return s.list(ctx, actor, model.RoleResident, store.VisitorFilter{
		UnitOwnerID: actor.ID,
		Status:      model.StatusPending,
		CheckedIn:   store.Bool(false),
	})
}

// GuardApproved lists approved visitors who have not arrived yet.
func (s *Service) GuardApproved(ctx context.Context, actor Actor) ([]model.Visitor, error) {
	return s.list(ctx, actor, model.RoleGuard, store.VisitorFilter{
		Status:    model.StatusApproved,
		CheckedIn: store.Bool(false),
		WithOwner: true,
	})
}

// GuardCheckedIn lists visitors currently on the premises.
func (s *Service) GuardCheckedIn(ctx context.Context, actor Actor) ([]model.Visitor, error) {
	return s.list(ctx, actor, model.RoleGuard, store.VisitorFilter{
		CheckedIn:  store.Bool(true),
		CheckedOut: store.Bool(false),
		Order:      store.OrderCheckInDesc,
		WithOwner:  true,
	})
}

// Logs lists every record, most recent check-in first.
func (s *Service) Logs(ctx context.Context, actor Actor) ([]model.Visitor, error) {
	return s.list(ctx, actor, model.RoleAdmin, store.VisitorFilter{
		Order:     store.OrderCheckInDesc,
		WithOwner: true,
	})
}

// LookupResident returns the contact entry of the resident owning unitNumber.
func (s *Service) LookupResident(ctx context.Context, actor Actor, unitNumber string) (*model.Resident, error) {
	if actor.Role != model.RoleGuard {
		return nil, forbiddenError(string(actor.Role))
	}
	unit, err := parse.UnitNumber(unitNumber)
	if err != nil {
		return nil, validationError("%v", err)
	}
	return s.resolveOwner(ctx, unit)
}

func (s *Service) list(ctx context.Context, actor Actor, role model.Role, f store.VisitorFilter) ([]model.Visitor, error) {
	if actor.Role != role {
		return nil, forbiddenError(string(actor.Role))
	}
	visitors, err := s.store.ListVisitors(ctx, f)
	if err != nil {
		return nil, persistenceError("list visitors", err)
	}
	return visitors, nil
}

// newEntry validates guard-supplied details and resolves the unit owner.
func (s *Service) newEntry(ctx context.Context, in EntryInput) (*model.Visitor, *model.Resident, error) {
	name, phone, vtype, err := visitorFields(in.Name, in.Phone, in.VisitorType)
	if err != nil {
		return nil, nil, err
	}
	if strings.TrimSpace(in.UnitNumber) == "" {
		return nil, nil, validationError("unitNumber is required")
	}
	unit, err := parse.UnitNumber(in.UnitNumber)
	if err != nil {
		return nil, nil, validationError("%v", err)
	}

	owner, err := s.resolveOwner(ctx, unit)
	if err != nil {
		return nil, nil, err
	}
	return &model.Visitor{
		UnitOwnerID: owner.ID,
		UnitNumber:  owner.UnitNumber,
		Name:        name,
		Phone:       phone,
		VehicleNo:   strings.TrimSpace(in.VehicleNo),
		VisitorType: vtype,
	}, owner, nil
}

func (s *Service) resolveOwner(ctx context.Context, unit string) (*model.Resident, error) {
	owner, err := s.store.FindResidentByUnit(ctx, unit)
	if errors.Is(err, store.ErrNotFound) {
		return nil, notFoundError("no resident owns unit %s", unit)
	}
	if err != nil {
		return nil, persistenceError("resolve unit owner", err)
	}
	return owner, nil
}

// writeError translates a failed conditional write. On a failed condition the
// store hands back the current record, and the state machine names the guard
// that did not hold.
func (s *Service) writeError(err error, current *model.Visitor, action approval.Action, id string) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return notFoundError("visitor %s not found", id)
	case errors.Is(err, store.ErrConditionFailed) && current != nil:
		if _, terr := approval.Next(approval.StateOf(current), action); terr != nil {
			return conflictError(terr)
		}
		return conflictError(fmt.Errorf("visitor %s changed concurrently", id))
	}
	return persistenceError(string(action), err)
}

func (s *Service) publish(action string, op approval.Action, v *model.Visitor) {
	err := s.hub.Publish(fanout.Event{
		Type:   fanout.TypeVisitor,
		Action: action,
		Op:     string(op),
		Data:   v,
	})
	if err != nil {
		slog.Error("publishing visitor event", "op", op, "visitor_id", v.ID, "error", err)
	}
}

func authorize(actor Actor, action approval.Action) error {
	role, ok := approval.Role(action)
	if !ok || actor.Role != role {
		return forbiddenError(string(actor.Role))
	}
	return nil
}

func visitorFields(name, phone, rawType string) (string, string, model.VisitorType, error) {
	name = strings.TrimSpace(name)
	phone = strings.TrimSpace(phone)
	switch {
	case name == "":
		return "", "", "", validationError("name is required")
	case phone == "":
		return "", "", "", validationError("phone is required")
	}
	vtype, ok := model.ParseVisitorType(strings.ToLower(strings.TrimSpace(rawType)))
	if !ok {
		return "", "", "", validationError("unknown visitorType %q", rawType)
	}
	return name, phone, vtype, nil
}
