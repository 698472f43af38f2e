package actionrequest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain/approval"
)

func TestNewDefaultsTargetTable(t *testing.T) {
	now := time.Now()
	r := New("r1", "coach-1", approval.ActionDeleteSession, "", " b1 ", " athlete moved away ", approval.Metadata{}, now)
	assert.Equal(t, "booking", r.TargetTable)
	assert.Equal(t, "b1", r.TargetID)
	assert.Equal(t, "athlete moved away", r.Reason)
	assert.Equal(t, StatusPending, r.Status)
	require.NoError(t, r.Validate())
}

func TestValidate(t *testing.T) {
	now := time.Now()
	r := New("r1", "coach-1", approval.ActionDeleteDrill, "booking", "d1", "", approval.Metadata{}, now)
	assert.ErrorIs(t, r.Validate(), ErrTargetMismatch)

	r = New("r1", "coach-1", "rename_gym", "", "x", "", approval.Metadata{}, now)
	assert.ErrorIs(t, r.Validate(), ErrUnknownActionType)

	r = New("r1", "", approval.ActionDeleteDrill, "", "d1", "", approval.Metadata{}, now)
	assert.ErrorIs(t, r.Validate(), ErrEmptyRequester)
}

func TestMarkReviewedOnce(t *testing.T) {
	now := time.Now()
	r := New("r1", "coach-1", approval.ActionDeleteDrill, "", "d1", "", approval.Metadata{}, now)

	require.NoError(t, r.MarkReviewed(DecisionApprove, "master-1", now))
	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, "master-1", r.ReviewedBy)

	err := r.MarkReviewed(DecisionDeny, "master-2", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrAlreadyReviewed)
	assert.Equal(t, StatusApproved, r.Status)
	assert.Equal(t, "master-1", r.ReviewedBy)
}

func TestMarkReviewedRejectsUnknownDecision(t *testing.T) {
	r := New("r1", "coach-1", approval.ActionDeleteDrill, "", "d1", "", approval.Metadata{}, time.Now())
	assert.ErrorIs(t, r.MarkReviewed("maybe", "m", time.Now()), ErrInvalidDecision)
	assert.True(t, r.IsPending())
}
