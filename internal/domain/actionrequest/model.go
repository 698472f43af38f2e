package actionrequest

import (
	"strings"
	"time"

	"studio/internal/domain/apperr"
	"studio/internal/domain/approval"
)

// Status constants for the review lifecycle.
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusDenied   = "denied"
)

// Decision values accepted by a reviewer.
const (
	DecisionApprove = "approve"
	DecisionDeny    = "deny"
)

// MaxReasonLength bounds the requester's free-text reason.
const MaxReasonLength = 2000

// Domain errors.
var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "action request not found")
	ErrAlreadyReviewed   = apperr.New(apperr.KindConflict, "action request has already been reviewed")
	ErrEmptyRequester    = apperr.New(apperr.KindValidation, "requester is required")
	ErrEmptyTarget       = apperr.New(apperr.KindValidation, "target id is required")
	ErrUnknownActionType = apperr.New(apperr.KindValidation, "unknown action type")
	ErrTargetMismatch    = apperr.New(apperr.KindValidation, "target table does not match action type")
	ErrReasonTooLong     = apperr.New(apperr.KindValidation, "reason cannot exceed 2000 characters")
	ErrInvalidDecision   = apperr.New(apperr.KindValidation, "decision must be approve or deny")
)

// targetTables maps each gated action to the table it removes rows from.
var targetTables = map[string]string{
	approval.ActionDeleteSession:           "booking",
	approval.ActionDeleteAthlete:           "account",
	approval.ActionDeleteDrill:             "drill",
	approval.ActionDeletePerformanceMetric: "performance_metric",
}

// TargetTableFor returns the table an action type operates on.
func TargetTableFor(actionType string) (string, bool) {
	t, ok := targetTables[actionType]
	return t, ok
}

// Request is an administrative action awaiting second-approver review.
// Requests are never deleted; they are the audit trail.
type Request struct {
	ID          string
	RequesterID string
	ActionType  string
	TargetTable string
	TargetID    string
	Reason      string
	Metadata    approval.Metadata
	Status      string
	ReviewedBy  string
	ReviewedAt  *time.Time
	CreatedAt   time.Time
}

// New creates a pending request. TargetTable defaults from the action type.
func New(id, requesterID, actionType, targetTable, targetID, reason string, md approval.Metadata, now time.Time) Request {
	if targetTable == "" {
		targetTable, _ = TargetTableFor(actionType)
	}
	return Request{
		ID:          id,
		RequesterID: requesterID,
		ActionType:  actionType,
		TargetTable: targetTable,
		TargetID:    strings.TrimSpace(targetID),
		Reason:      strings.TrimSpace(reason),
		Metadata:    md,
		Status:      StatusPending,
		CreatedAt:   now,
	}
}

// Validate checks that the Request has valid data.
// PRE: Request fields may be empty
// POST: Returns nil if valid, error otherwise
func (r *Request) Validate() error {
	if r.RequesterID == "" {
		return ErrEmptyRequester
	}
	want, ok := TargetTableFor(r.ActionType)
	if !ok {
		return ErrUnknownActionType
	}
	if r.TargetTable != want {
		return ErrTargetMismatch
	}
	if r.TargetID == "" {
		return ErrEmptyTarget
	}
	if len(r.Reason) > MaxReasonLength {
		return ErrReasonTooLong
	}
	return nil
}

// IsPending reports whether the request still awaits review.
func (r *Request) IsPending() bool {
	return r.Status == StatusPending
}

// StatusForDecision maps a reviewer decision to the resulting status.
func StatusForDecision(decision string) (string, error) {
	switch decision {
	case DecisionApprove:
		return StatusApproved, nil
	case DecisionDeny:
		return StatusDenied, nil
	}
	return "", ErrInvalidDecision
}

// MarkReviewed records the single review of the request.
// PRE: IsPending returns true
// POST: Status is approved or denied, ReviewedBy and ReviewedAt set
// INVARIANT: A request is reviewed at most once
func (r *Request) MarkReviewed(decision, reviewerID string, now time.Time) error {
	if !r.IsPending() {
		return ErrAlreadyReviewed
	}
	status, err := StatusForDecision(decision)
	if err != nil {
		return err
	}
	r.Status = status
	r.ReviewedBy = reviewerID
	r.ReviewedAt = &now
	return nil
}
