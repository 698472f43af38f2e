package booking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain/apperr"
)

func TestDraftRoundTrip(t *testing.T) {
	d := Draft{SlotID: "S1", CoachID: "c1", Date: "2026-11-02", StartTime: "09:00", DurationMinutes: 60, Location: "Main", Notes: "  knee  "}
	raw, err := d.Encode()
	require.NoError(t, err)

	got, err := DecodeDraft(raw)
	require.NoError(t, err)
	assert.Equal(t, "S1", got.SlotID)
	assert.Equal(t, "knee", got.Notes)
}

func TestDecodeDraftRejectsIncomplete(t *testing.T) {
	_, err := DecodeDraft(`{"slot_id":"S1"}`)
	assert.ErrorIs(t, err, ErrInvalidDraft)

	_, err = DecodeDraft(`not json`)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestTransitionTo(t *testing.T) {
	now := time.Date(2026, 11, 2, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		from, to string
		ok       bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusCompleted, false},
		{StatusConfirmed, StatusCompleted, true},
		{StatusConfirmed, StatusNoShow, true},
		{StatusConfirmed, StatusCancelled, true},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusConfirmed, false},
	}
	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			b := Booking{Status: tt.from}
			err := b.TransitionTo(tt.to, now)
			if tt.ok {
				require.NoError(t, err)
				assert.Equal(t, tt.to, b.Status)
				assert.Equal(t, now, b.UpdatedAt)
			} else {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, b.Status)
			}
		})
	}
}

func TestReleasesSlot(t *testing.T) {
	assert.True(t, ReleasesSlot(StatusConfirmed, StatusCancelled))
	assert.True(t, ReleasesSlot(StatusPending, StatusCancelled))
	assert.False(t, ReleasesSlot(StatusConfirmed, StatusCompleted))
	assert.False(t, ReleasesSlot(StatusCompleted, StatusCancelled))
}

func TestValidate(t *testing.T) {
	b := Booking{AthleteID: "a1", ServiceID: "svc", Date: "2026-11-02", StartTime: "09:00", DurationMinutes: 60, PaymentStatus: PaymentPaid}
	require.NoError(t, b.Validate())

	b.PaymentStatus = "maybe"
	assert.ErrorIs(t, b.Validate(), ErrInvalidPaymentStatus)

	b.PaymentStatus = PaymentPaid
	require.NoError(t, b.Validate())
	assert.Equal(t, MethodCard, b.PaymentMethod)

	b.PaymentStatus = "comp"
	assert.ErrorIs(t, b.Validate(), ErrInvalidPaymentStatus)
	b.PaymentStatus = PaymentPaid
	b.PaymentMethod = "iou"
	assert.ErrorIs(t, b.Validate(), ErrInvalidPaymentMethod)

	b.PaymentMethod = MethodComp
	b.AthleteID = ""
	assert.ErrorIs(t, b.Validate(), ErrMissingAthlete)
}
