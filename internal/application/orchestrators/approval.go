package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapters/storage/records"
	"studio/internal/domain/account"
	"studio/internal/domain/actionrequest"
	"studio/internal/domain/apperr"
	"studio/internal/domain/approval"
	"studio/internal/domain/audit"
	"studio/internal/domain/booking"
	"studio/internal/domain/identity"
	"studio/internal/metrics"
)

// Approval workflow errors.
var (
	ErrStaffOnly    = apperr.New(apperr.KindForbidden, "only coaches and admins can do this")
	ErrReviewerOnly = apperr.New(apperr.KindForbidden, "only the master admin can review requests")
	ErrNoExecutor   = apperr.New(apperr.KindValidation, "no executor for this action type")
)

// ActionRequestStore persists action requests.
type ActionRequestStore interface {
	Create(ctx context.Context, r actionrequest.Request) error
	GetByID(ctx context.Context, id string) (actionrequest.Request, error)
	List(ctx context.Context, status string, limit int) ([]actionrequest.Request, error)
	Review(ctx context.Context, id, status, reviewerID string, now time.Time) (actionrequest.Request, error)
}

// AuditRecorder stores audit events.
type AuditRecorder interface {
	Save(ctx context.Context, event audit.Event) error
}

// RequestExecutor carries out an approved request.
type RequestExecutor interface {
	// Execute performs the action. executed is false when the action needs a
	// different path; message tells the reviewer what happened.
	Execute(ctx context.Context, r actionrequest.Request) (executed bool, message string, err error)
}

func recordAudit(ctx context.Context, store AuditRecorder, logger zerolog.Logger, evt audit.Event) {
	if store == nil {
		return
	}
	if err := store.Save(ctx, evt); err != nil {
		logger.Warn().Err(err).Str("category", string(evt.Category)).Str("action", string(evt.Action)).Msg("audit_write_failed")
	}
}

// SubmitActionRequestInput carries input for SubmitActionRequest.
type SubmitActionRequestInput struct {
	Caller      identity.Identity
	ActionType  string
	TargetTable string
	TargetID    string
	Reason      string
}

// BookingReader reads one booking.
type BookingReader interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
}

// SubmitActionRequestDeps holds dependencies for SubmitActionRequest.
type SubmitActionRequestDeps struct {
	Requests   ActionRequestStore
	Bookings   BookingReader
	Accounts   AccountReader
	Audit      AuditRecorder
	Logger     zerolog.Logger
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteSubmitActionRequest files an action for second-approver review.
// The decision metadata is read from the stores, never taken from the caller.
// PRE: caller is authenticated
// POST: A pending request is stored, or the action is denied outright
func ExecuteSubmitActionRequest(ctx context.Context, input SubmitActionRequestInput, deps SubmitActionRequestDeps) (actionrequest.Request, error) {
	if err := input.Caller.CanWrite(); err != nil {
		return actionrequest.Request{}, err
	}
	if !input.Caller.IsStaff() {
		return actionrequest.Request{}, ErrStaffOnly
	}
	md, err := gateMetadata(ctx, input, deps)
	if err != nil {
		return actionrequest.Request{}, err
	}
	decision := approval.CheckPermission(input.ActionType, input.Caller.Role, md)
	if decision.Outcome == approval.Denied {
		metrics.IncApproval(input.ActionType, string(approval.Denied))
		return actionrequest.Request{}, apperr.New(apperr.KindForbidden, decision.Reason)
	}

	req := actionrequest.New(deps.GenerateID(), input.Caller.UserID, input.ActionType, input.TargetTable, input.TargetID, input.Reason, md, deps.Now())
	if err := req.Validate(); err != nil {
		return actionrequest.Request{}, err
	}
	if err := deps.Requests.Create(ctx, req); err != nil {
		return actionrequest.Request{}, fmt.Errorf("create action request: %w", err)
	}
	metrics.IncApproval(req.ActionType, "submitted")
	deps.Logger.Info().Str("request_id", req.ID).Str("action_type", req.ActionType).Str("target_id", req.TargetID).
		Str("requester_id", req.RequesterID).Msg("action_request_submitted")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryApproval, audit.ActionSubmit, deps.Now()).
		WithResource(req.TargetTable, req.TargetID).WithDescription(req.ActionType))
	return req, nil
}

// gateMetadata loads what the policy needs about the target.
func gateMetadata(ctx context.Context, input SubmitActionRequestInput, deps SubmitActionRequestDeps) (approval.Metadata, error) {
	md := approval.Metadata{RequesterID: input.Caller.UserID}
	if input.TargetID == "" {
		return md, nil
	}
	switch input.ActionType {
	case approval.ActionDeleteSession:
		if deps.Bookings == nil {
			return md, errors.New("submit action request: no booking reader")
		}
		b, err := deps.Bookings.GetByID(ctx, input.TargetID)
		if err != nil {
			return md, err
		}
		md = sessionMetadata(ctx, b, input.Caller.UserID, deps.Accounts, deps.Logger, deps.Now())
	case approval.ActionDeleteAthlete:
		md.TargetUserID = input.TargetID
		if md.TargetUserID == md.RequesterID {
			return md, nil
		}
		if deps.Accounts == nil {
			return md, errors.New("submit action request: no account reader")
		}
		a, err := deps.Accounts.GetByID(ctx, input.TargetID)
		if err != nil {
			return md, err
		}
		md.TargetRole = a.Role
	}
	return md, nil
}

// sessionMetadata describes a booking for the delete_session policy.
func sessionMetadata(ctx context.Context, b booking.Booking, requesterID string, accounts AccountReader, logger zerolog.Logger, now time.Time) approval.Metadata {
	md := approval.Metadata{
		HasAthlete:    b.AthleteID != "" && b.IsActive(),
		IsPastSession: b.IsPast(now),
		RequesterID:   requesterID,
	}
	if md.HasAthlete && accounts != nil {
		if a, err := accounts.GetByID(ctx, b.AthleteID); err == nil {
			md.AthleteName = a.DisplayName()
		} else {
			logger.Warn().Err(err).Str("athlete_id", b.AthleteID).Msg("delete_session_athlete_lookup_failed")
		}
	}
	return md
}

// ListActionRequestsInput carries input for ListActionRequests.
type ListActionRequestsInput struct {
	Caller identity.Identity
	Status string
	Limit  int
}

// ExecuteListActionRequests returns every request for the reviewer and only
// the caller's own requests for everyone else.
func ExecuteListActionRequests(ctx context.Context, input ListActionRequestsInput, store ActionRequestStore) ([]actionrequest.Request, error) {
	if !input.Caller.Authenticated() {
		return nil, identity.ErrUnauthenticated
	}
	if !input.Caller.IsStaff() {
		return nil, ErrStaffOnly
	}
	if input.Limit <= 0 {
		input.Limit = 100
	}
	all, err := store.List(ctx, input.Status, input.Limit)
	if err != nil {
		return nil, err
	}
	if input.Caller.HasRole(account.RoleMasterAdmin) {
		return all, nil
	}
	own := make([]actionrequest.Request, 0, len(all))
	for _, r := range all {
		if r.RequesterID == input.Caller.UserID {
			own = append(own, r)
		}
	}
	return own, nil
}

// ReviewActionRequestInput carries input for ReviewActionRequest.
type ReviewActionRequestInput struct {
	Caller    identity.Identity
	RequestID string
	Decision  string
	Execute   bool
}

// ReviewActionRequestResult reports the review and any execution.
type ReviewActionRequestResult struct {
	Request  actionrequest.Request `json:"request"`
	Executed bool                  `json:"executed"`
	Message  string                `json:"message,omitempty"`
}

// ReviewActionRequestDeps holds dependencies for ReviewActionRequest.
type ReviewActionRequestDeps struct {
	Requests  ActionRequestStore
	Executors map[string]RequestExecutor
	Audit     AuditRecorder
	Logger    zerolog.Logger
	Now       func() time.Time
}

// ExecuteReviewActionRequest approves or denies a pending request exactly
// once and, when asked, runs an approved action.
// PRE: caller is the master admin
// POST: Status moved from pending once; a second review returns
// actionrequest.ErrAlreadyReviewed and changes nothing
func ExecuteReviewActionRequest(ctx context.Context, input ReviewActionRequestInput, deps ReviewActionRequestDeps) (ReviewActionRequestResult, error) {
	if err := input.Caller.CanWrite(); err != nil {
		return ReviewActionRequestResult{}, err
	}
	if !input.Caller.HasRole(account.RoleMasterAdmin) {
		return ReviewActionRequestResult{}, ErrReviewerOnly
	}
	status, err := actionrequest.StatusForDecision(input.Decision)
	if err != nil {
		return ReviewActionRequestResult{}, err
	}

	now := deps.Now()
	req, err := deps.Requests.Review(ctx, input.RequestID, status, input.Caller.UserID, now)
	if err != nil {
		return ReviewActionRequestResult{}, err
	}
	metrics.IncApproval(req.ActionType, status)
	deps.Logger.Info().Str("request_id", req.ID).Str("action_type", req.ActionType).Str("status", status).
		Str("reviewer_id", input.Caller.UserID).Msg("action_request_reviewed")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryApproval, audit.ActionReview, now).
		WithResource("action_request", req.ID).WithDescription(status))

	out := ReviewActionRequestResult{Request: req}
	if status != actionrequest.StatusApproved || !input.Execute {
		return out, nil
	}
	executor, ok := deps.Executors[req.ActionType]
	if !ok {
		return out, ErrNoExecutor
	}
	out.Executed, out.Message, err = executor.Execute(ctx, req)
	if err != nil {
		deps.Logger.Error().Err(err).Str("request_id", req.ID).Str("action_type", req.ActionType).Msg("action_request_execute_failed")
		return out, err
	}
	if out.Executed {
		recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryApproval, audit.ActionExecute, now).
			WithResource(req.TargetTable, req.TargetID).WithDescription(req.ActionType).WithSeverity(audit.SeverityWarning))
	}
	return out, nil
}

// BookingDeleter removes a booking and gives its place back.
type BookingDeleter interface {
	DeleteAndRelease(ctx context.Context, id string) (booking.Booking, error)
}

// DeleteSessionExecutor deletes an approved booking.
type DeleteSessionExecutor struct {
	Bookings BookingDeleter
}

// Execute deletes the booking. A booking already gone counts as done.
func (e *DeleteSessionExecutor) Execute(ctx context.Context, r actionrequest.Request) (bool, string, error) {
	_, err := e.Bookings.DeleteAndRelease(ctx, r.TargetID)
	if errors.Is(err, booking.ErrNotFound) {
		return false, "Session was already deleted", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, "Session deleted", nil
}

// RecordDeleter removes coaching records.
type RecordDeleter interface {
	DeleteDrill(ctx context.Context, id string) error
	DeleteMetric(ctx context.Context, id string) error
}

// DeleteRecordExecutor deletes an approved drill or performance metric.
type DeleteRecordExecutor struct {
	Records RecordDeleter
}

// Execute deletes the target row.
func (e *DeleteRecordExecutor) Execute(ctx context.Context, r actionrequest.Request) (bool, string, error) {
	var err error
	switch r.ActionType {
	case approval.ActionDeleteDrill:
		err = e.Records.DeleteDrill(ctx, r.TargetID)
	case approval.ActionDeletePerformanceMetric:
		err = e.Records.DeleteMetric(ctx, r.TargetID)
	default:
		return false, "", ErrNoExecutor
	}
	if errors.Is(err, records.ErrNotFound) {
		return false, "Record was already deleted", nil
	}
	if err != nil {
		return false, "", err
	}
	return true, "Record deleted", nil
}

// DeleteAthleteExecutor does not delete: athlete removal needs cleanup
// across systems this gate does not own.
type DeleteAthleteExecutor struct{}

// Execute points the reviewer at the dedicated endpoint.
func (DeleteAthleteExecutor) Execute(context.Context, actionrequest.Request) (bool, string, error) {
	return false, "Approved. Use the dedicated athlete-deletion endpoint to remove the account", nil
}

// DefaultExecutors wires an executor for every gated action.
func DefaultExecutors(bookings BookingDeleter, recs RecordDeleter) map[string]RequestExecutor {
	rec := &DeleteRecordExecutor{Records: recs}
	return map[string]RequestExecutor{
		approval.ActionDeleteSession:           &DeleteSessionExecutor{Bookings: bookings},
		approval.ActionDeleteDrill:             rec,
		approval.ActionDeletePerformanceMetric: rec,
		approval.ActionDeleteAthlete:           DeleteAthleteExecutor{},
	}
}

// DeleteSessionStore reads and deletes bookings.
type DeleteSessionStore interface {
	GetByID(ctx context.Context, id string) (booking.Booking, error)
	DeleteAndRelease(ctx context.Context, id string) (booking.Booking, error)
}

// DeleteSessionInput carries input for DeleteSession.
type DeleteSessionInput struct {
	Caller    identity.Identity
	BookingID string
	Reason    string
}

// DeleteSessionResult is either a completed deletion or the reason a
// request must be filed.
type DeleteSessionResult struct {
	Outcome   approval.Outcome  `json:"outcome"`
	Deleted   bool              `json:"deleted"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  approval.Metadata `json:"metadata"`
	RequestID string            `json:"request_id,omitempty"`
}

// DeleteSessionDeps holds dependencies for DeleteSession.
type DeleteSessionDeps struct {
	Bookings DeleteSessionStore
	Accounts AccountReader
	// Requests, when set, files a pending request for the caller instead of
	// only returning the reason.
	Requests   ActionRequestStore
	Audit      AuditRecorder
	Logger     zerolog.Logger
	GenerateID func() string
	Now        func() time.Time
}

// ExecuteDeleteSession deletes a booking through the approval gate.
// PRE: caller is staff
// POST: direct -> booking deleted and slot released; requires_approval ->
// nothing deleted, reason returned; denied -> forbidden error
func ExecuteDeleteSession(ctx context.Context, input DeleteSessionInput, deps DeleteSessionDeps) (DeleteSessionResult, error) {
	if err := input.Caller.CanWrite(); err != nil {
		return DeleteSessionResult{}, err
	}
	if !input.Caller.IsStaff() {
		return DeleteSessionResult{}, ErrStaffOnly
	}
	b, err := deps.Bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return DeleteSessionResult{}, err
	}
	now := deps.Now()
	md := sessionMetadata(ctx, b, input.Caller.UserID, deps.Accounts, deps.Logger, now)

	decision := approval.CheckPermission(approval.ActionDeleteSession, input.Caller.Role, md)
	out := DeleteSessionResult{Outcome: decision.Outcome, Reason: decision.Reason, Metadata: md}
	switch decision.Outcome {
	case approval.Denied:
		metrics.IncApproval(approval.ActionDeleteSession, string(approval.Denied))
		return out, apperr.New(apperr.KindForbidden, decision.Reason)
	case approval.RequiresApproval:
		metrics.IncApproval(approval.ActionDeleteSession, string(approval.RequiresApproval))
		if deps.Requests == nil {
			return out, nil
		}
		req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
			Caller:     input.Caller,
			ActionType: approval.ActionDeleteSession,
			TargetID:   b.ID,
			Reason:     input.Reason,
		}, SubmitActionRequestDeps{
			Requests:   deps.Requests,
			Bookings:   deps.Bookings,
			Accounts:   deps.Accounts,
			Audit:      deps.Audit,
			Logger:     deps.Logger,
			GenerateID: deps.GenerateID,
			Now:        deps.Now,
		})
		if err != nil {
			return out, err
		}
		out.RequestID = req.ID
		return out, nil
	}

	if _, err := deps.Bookings.DeleteAndRelease(ctx, b.ID); err != nil {
		return out, err
	}
	out.Deleted = true
	metrics.IncApproval(approval.ActionDeleteSession, string(approval.Direct))
	deps.Logger.Info().Str("booking_id", b.ID).Str("slot_id", b.SlotID).Str("actor_id", input.Caller.TrueUserID).Msg("booking_deleted")
	recordAudit(ctx, deps.Audit, deps.Logger, audit.NewEvent(input.Caller.TrueUserID, input.Caller.Role, audit.CategoryBooking, audit.ActionDelete, now).
		WithResource("booking", b.ID).WithMetadata(md))
	return out, nil
}
