package orchestrators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auditStore "studio/internal/adapters/storage/audit"
	"studio/internal/adapters/storage/records"
	"studio/internal/domain/account"
	"studio/internal/domain/actionrequest"
	"studio/internal/domain/apperr"
	"studio/internal/domain/approval"
	"studio/internal/domain/audit"
	"studio/internal/domain/booking"
	"studio/internal/domain/identity"
)

func callerAs(id, role string) identity.Identity {
	return identity.Resolve(id, role, nil, nil, testNow)
}

func (h *harness) submitDeps() SubmitActionRequestDeps {
	return SubmitActionRequestDeps{
		Requests:   h.Requests,
		Bookings:   h.Bookings,
		Accounts:   h.Accounts,
		Audit:      h.Audit,
		Logger:     zerolog.Nop(),
		GenerateID: uuid.NewString,
		Now:        func() time.Time { return testNow },
	}
}

func (h *harness) reviewDeps() ReviewActionRequestDeps {
	return ReviewActionRequestDeps{
		Requests:  h.Requests,
		Executors: DefaultExecutors(h.Bookings, h.Records),
		Audit:     h.Audit,
		Logger:    zerolog.Nop(),
		Now:       func() time.Time { return testNow },
	}
}

func (h *harness) deleteDeps(now time.Time) DeleteSessionDeps {
	return DeleteSessionDeps{
		Bookings:   h.Bookings,
		Accounts:   h.Accounts,
		Requests:   h.Requests,
		Audit:      h.Audit,
		Logger:     zerolog.Nop(),
		GenerateID: uuid.NewString,
		Now:        func() time.Time { return now },
	}
}

// bookedSlot reconciles one paid booking for athlete A1 on slot S1.
func (h *harness) bookedSlot(t *testing.T) booking.Booking {
	t.Helper()
	h.addAccount(t, "A1", account.RoleAthlete)
	h.addSlot(t, "S1", 2)
	res, err := ExecuteReconcileBooking(context.Background(), paidBookingSession(t, "cs_test_del", "A1", "S1"), h.reconcileDeps())
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	b, err := h.Bookings.GetByID(context.Background(), res.ID)
	require.NoError(t, err)
	return b
}

func TestSubmitActionRequestStoresPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller:     callerAs("C1", account.RoleCoach),
		ActionType: approval.ActionDeleteDrill,
		TargetID:   "D1",
		Reason:     "duplicate drill",
	}, h.submitDeps())
	require.NoError(t, err)
	assert.Equal(t, actionrequest.StatusPending, req.Status)
	assert.Equal(t, "drill", req.TargetTable)

	stored, err := h.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "C1", stored.RequesterID)
	assert.Equal(t, "C1", stored.Metadata.RequesterID)

	events, err := h.Audit.List(ctx, auditStore.Filter{Category: audit.CategoryApproval, Action: audit.ActionSubmit}, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestSubmitActionRequestRefusals(t *testing.T) {
	tests := []struct {
		name   string
		caller identity.Identity
		setup  func(t *testing.T, h *harness)
		input  SubmitActionRequestInput
		kind   apperr.Kind
	}{
		{
			name:   "athlete",
			caller: callerAs("A1", account.RoleAthlete),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteDrill, TargetID: "D1"},
			kind:   apperr.KindForbidden,
		},
		{
			name:   "self deletion",
			caller: callerAs("C1", account.RoleCoach),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteAthlete, TargetID: "C1"},
			kind:   apperr.KindForbidden,
		},
		{
			name:   "master admin target",
			caller: callerAs("AD1", account.RoleAdmin),
			setup: func(t *testing.T, h *harness) {
				h.addAccount(t, "AD1", account.RoleAdmin)
				h.addAccount(t, "M1", account.RoleMasterAdmin)
			},
			input: SubmitActionRequestInput{ActionType: approval.ActionDeleteAthlete, TargetID: "M1"},
			kind:  apperr.KindForbidden,
		},
		{
			name:   "unknown athlete",
			caller: callerAs("AD1", account.RoleAdmin),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteAthlete, TargetID: "ghost"},
			kind:   apperr.KindNotFound,
		},
		{
			name:   "unknown session",
			caller: callerAs("C1", account.RoleCoach),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteSession, TargetID: "ghost"},
			kind:   apperr.KindNotFound,
		},
		{
			name:   "missing target",
			caller: callerAs("C1", account.RoleCoach),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteDrill},
			kind:   apperr.KindValidation,
		},
		{
			name:   "wrong table",
			caller: callerAs("C1", account.RoleCoach),
			input:  SubmitActionRequestInput{ActionType: approval.ActionDeleteDrill, TargetTable: "booking", TargetID: "D1"},
			kind:   apperr.KindValidation,
		},
		{
			name: "impersonating",
			caller: identity.Resolve("AD1", account.RoleAdmin,
				&identity.Impersonation{TargetUserID: "C1", TargetRole: account.RoleCoach, ExpiresAt: testNow.Add(time.Hour)}, nil, testNow),
			input: SubmitActionRequestInput{ActionType: approval.ActionDeleteDrill, TargetID: "D1"},
			kind:  apperr.KindForbidden,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.setup != nil {
				tt.setup(t, h)
			}
			in := tt.input
			in.Caller = tt.caller
			_, err := ExecuteSubmitActionRequest(context.Background(), in, h.submitDeps())
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			pending, err := h.Requests.List(context.Background(), "", 10)
			require.NoError(t, err)
			assert.Empty(t, pending)
		})
	}
}

func TestSubmitDeleteSessionReadsBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.bookedSlot(t)

	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteSession, TargetID: b.ID,
	}, h.submitDeps())
	require.NoError(t, err)
	assert.True(t, req.Metadata.HasAthlete)
	assert.Equal(t, "User A1", req.Metadata.AthleteName)
	assert.False(t, req.Metadata.IsPastSession)
}

func TestListActionRequestsScopesToAuthor(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	for _, who := range []string{"C1", "C2", "C1"} {
		_, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
			Caller: callerAs(who, account.RoleCoach), ActionType: approval.ActionDeleteDrill, TargetID: "D-" + who,
		}, h.submitDeps())
		require.NoError(t, err)
	}

	own, err := ExecuteListActionRequests(ctx, ListActionRequestsInput{Caller: callerAs("C1", account.RoleCoach)}, h.Requests)
	require.NoError(t, err)
	assert.Len(t, own, 2)

	all, err := ExecuteListActionRequests(ctx, ListActionRequestsInput{Caller: callerAs("M1", account.RoleMasterAdmin)}, h.Requests)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = ExecuteListActionRequests(ctx, ListActionRequestsInput{Caller: callerAs("A1", account.RoleAthlete)}, h.Requests)
	assert.ErrorIs(t, err, ErrStaffOnly)
}

func TestReviewTwiceKeepsFirstDecision(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteDrill, TargetID: "D1",
	}, h.submitDeps())
	require.NoError(t, err)

	first, err := ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: req.ID, Decision: actionrequest.DecisionDeny,
	}, h.reviewDeps())
	require.NoError(t, err)
	assert.Equal(t, actionrequest.StatusDenied, first.Request.Status)

	_, err = ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M2", account.RoleMasterAdmin), RequestID: req.ID, Decision: actionrequest.DecisionApprove, Execute: true,
	}, h.reviewDeps())
	require.ErrorIs(t, err, actionrequest.ErrAlreadyReviewed)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	stored, err := h.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, actionrequest.StatusDenied, stored.Status)
	assert.Equal(t, "M1", stored.ReviewedBy)
}

func TestConcurrentReviewsFireOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteDrill, TargetID: "D1",
	}, h.submitDeps())
	require.NoError(t, err)

	const reviewers = 5
	errs := make([]error, reviewers)
	var wg sync.WaitGroup
	for i := range reviewers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
				Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: req.ID, Decision: actionrequest.DecisionApprove,
			}, h.reviewDeps())
		}()
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, actionrequest.ErrAlreadyReviewed)
	}
	assert.Equal(t, 1, succeeded)
}

func TestReviewRefusals(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteDrill, TargetID: "D1",
	}, h.submitDeps())
	require.NoError(t, err)

	_, err = ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("AD1", account.RoleAdmin), RequestID: req.ID, Decision: actionrequest.DecisionApprove,
	}, h.reviewDeps())
	assert.ErrorIs(t, err, ErrReviewerOnly)

	_, err = ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: req.ID, Decision: "maybe",
	}, h.reviewDeps())
	assert.ErrorIs(t, err, actionrequest.ErrInvalidDecision)

	_, err = ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: "missing", Decision: actionrequest.DecisionApprove,
	}, h.reviewDeps())
	assert.ErrorIs(t, err, actionrequest.ErrNotFound)

	stored, err := h.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPending())
}

func TestApprovedDeleteSessionExecutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.bookedSlot(t)

	res, err := ExecuteDeleteSession(ctx, DeleteSessionInput{
		Caller: callerAs("C1", account.RoleCoach), BookingID: b.ID, Reason: "athlete asked",
	}, h.deleteDeps(testNow))
	require.NoError(t, err)
	assert.Equal(t, approval.RequiresApproval, res.Outcome)
	assert.False(t, res.Deleted)
	assert.Contains(t, res.Reason, "User A1")
	require.NotEmpty(t, res.RequestID)

	review, err := ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: res.RequestID,
		Decision: actionrequest.DecisionApprove, Execute: true,
	}, h.reviewDeps())
	require.NoError(t, err)
	assert.True(t, review.Executed)

	_, err = h.Bookings.GetByID(ctx, b.ID)
	assert.ErrorIs(t, err, booking.ErrNotFound)
	sl, err := h.Slots.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 0, sl.CurrentBookings)
}

func TestApprovedDrillDeletionExecutes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Records.CreateDrill(ctx, records.Drill{ID: "D1", CoachID: "C1", Title: "Ladder", CreatedAt: testNow}))

	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteDrill, TargetID: "D1",
	}, h.submitDeps())
	require.NoError(t, err)

	res, err := ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: req.ID,
		Decision: actionrequest.DecisionApprove, Execute: true,
	}, h.reviewDeps())
	require.NoError(t, err)
	assert.True(t, res.Executed)

	exists, err := h.Records.Exists(ctx, "drill", "D1")
	require.NoError(t, err)
	assert.False(t, exists)

	events, err := h.Audit.List(ctx, auditStore.Filter{Action: audit.ActionExecute}, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestApprovedAthleteDeletionIsNotExecuted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAccount(t, "A1", account.RoleAthlete)

	req, err := ExecuteSubmitActionRequest(ctx, SubmitActionRequestInput{
		Caller: callerAs("C1", account.RoleCoach), ActionType: approval.ActionDeleteAthlete, TargetID: "A1",
	}, h.submitDeps())
	require.NoError(t, err)
	assert.Equal(t, "A1", req.Metadata.TargetUserID)
	assert.Equal(t, account.RoleAthlete, req.Metadata.TargetRole)

	res, err := ExecuteReviewActionRequest(ctx, ReviewActionRequestInput{
		Caller: callerAs("M1", account.RoleMasterAdmin), RequestID: req.ID,
		Decision: actionrequest.DecisionApprove, Execute: true,
	}, h.reviewDeps())
	require.NoError(t, err)
	assert.False(t, res.Executed)
	assert.Contains(t, res.Message, "athlete-deletion endpoint")

	_, err = h.Accounts.GetByID(ctx, "A1")
	assert.NoError(t, err)
}

func TestDeleteSessionPolicy(t *testing.T) {
	afterSlot := time.Date(2026, 11, 3, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		role    string
		now     time.Time
		cancel  bool
		outcome approval.Outcome
		deleted bool
	}{
		{name: "master admin with athlete", role: account.RoleMasterAdmin, now: testNow, outcome: approval.Direct, deleted: true},
		{name: "coach with athlete", role: account.RoleCoach, now: testNow, outcome: approval.RequiresApproval},
		{name: "coach cancelled future", role: account.RoleCoach, now: testNow, cancel: true, outcome: approval.Direct, deleted: true},
		{name: "coach cancelled past", role: account.RoleCoach, now: afterSlot, cancel: true, outcome: approval.RequiresApproval},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			ctx := context.Background()
			b := h.bookedSlot(t)
			if tt.cancel {
				require.NoError(t, h.Bookings.UpdateStatus(ctx, b.ID, booking.StatusConfirmed, booking.StatusCancelled, testNow))
			}

			res, err := ExecuteDeleteSession(ctx, DeleteSessionInput{
				Caller: callerAs("U1", tt.role), BookingID: b.ID,
			}, h.deleteDeps(tt.now))
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, tt.deleted, res.Deleted)

			_, err = h.Bookings.GetByID(ctx, b.ID)
			if tt.deleted {
				assert.ErrorIs(t, err, booking.ErrNotFound)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeleteSessionRejectsAthletes(t *testing.T) {
	h := newHarness(t)
	b := h.bookedSlot(t)

	_, err := ExecuteDeleteSession(context.Background(), DeleteSessionInput{
		Caller: callerAs("A1", account.RoleAthlete), BookingID: b.ID,
	}, h.deleteDeps(testNow))
	assert.ErrorIs(t, err, ErrStaffOnly)
}
