package email

import (
	"testing"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestResendBuildRequest(t *testing.T) {
	s := NewResendSender(ResendConfig{APIKey: "re_test", From: "Studio <bookings@studio.test>", ReplyTo: "desk@studio.test"}, zerolog.Nop())

	params, opts := s.buildRequest(SendRequest{
		To:             []string{"ana@studio.test"},
		Subject:        "Booked",
		HTML:           "<p>hi</p>",
		Category:       "confirmation",
		IdempotencyKey: "booking-confirmation/cs_test_1",
	})
	assert.Equal(t, "Studio <bookings@studio.test>", params.From)
	assert.Equal(t, "desk@studio.test", params.ReplyTo)
	assert.Equal(t, []resend.Tag{{Name: "category", Value: "confirmation"}}, params.Tags)
	assert.Equal(t, "booking-confirmation/cs_test_1", opts.IdempotencyKey)

	params, opts = s.buildRequest(SendRequest{To: []string{"ana@studio.test"}, From: "coach@studio.test", ReplyTo: "coach@studio.test"})
	assert.Equal(t, "coach@studio.test", params.From)
	assert.Equal(t, "coach@studio.test", params.ReplyTo)
	assert.Nil(t, params.Tags)
	assert.NotNil(t, opts)
	assert.Empty(t, opts.IdempotencyKey)
}
