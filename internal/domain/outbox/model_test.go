package outbox

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEntryLifecycle(t *testing.T) {
	now := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)
	e := NewEntry("o1", ActionTypeRefund, `{"payment_intent_id":"pi_1"}`, now)
	e.MaxAttempts = 2
	assert.NoError(t, e.Validate())
	assert.True(t, e.CanRetry())
	assert.Equal(t, now, e.DueAt(time.Minute, time.Hour))

	e.MarkAttempt(now)
	e.MarkFailed(errors.New("processor timeout"))
	assert.Equal(t, StatusRetrying, e.Status)
	assert.False(t, e.IsTerminal())
	assert.Equal(t, now.Add(2*time.Minute), e.DueAt(time.Minute, time.Hour))

	e.MarkAttempt(now.Add(2 * time.Minute))
	e.MarkFailed(errors.New("processor timeout"))
	assert.Equal(t, StatusFailed, e.Status)
	assert.True(t, e.IsTerminal())
	assert.False(t, e.CanRetry())
}

func TestNextRetryDelayCapped(t *testing.T) {
	e := Entry{Attempts: 20}
	assert.Equal(t, time.Hour, e.NextRetryDelay(time.Minute, time.Hour))
	e.Attempts = 40
	assert.Equal(t, time.Hour, e.NextRetryDelay(time.Minute, time.Hour))
}

func TestValidate(t *testing.T) {
	e := Entry{ActionType: ActionTypeEmail, CreatedAt: time.Now()}
	assert.ErrorIs(t, e.Validate(), ErrEmptyPayload)

	e = Entry{Payload: "{}", CreatedAt: time.Now()}
	assert.ErrorIs(t, e.Validate(), ErrEmptyActionType)

	e = Entry{ActionType: ActionTypeEmail, Payload: "{}", CreatedAt: time.Now()}
	assert.NoError(t, e.Validate())
	assert.Equal(t, DefaultMaxAttempts, e.MaxAttempts)
}
