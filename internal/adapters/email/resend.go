package email

import (
	"context"
	"fmt"
	"time"

	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
)

// ResendConfig configures the Resend sender.
type ResendConfig struct {
	APIKey  string
	From    string
	ReplyTo string
}

// ResendSender sends emails via the Resend API.
type ResendSender struct {
	client *resend.Client
	cfg    ResendConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewResendSender creates a sender with the configured default from and reply-to addresses.
// PRE: cfg.APIKey is a valid Resend API key; cfg.From is a valid sender address
// POST: Returns a ready-to-use sender
func NewResendSender(cfg ResendConfig, logger zerolog.Logger) *ResendSender {
	return &ResendSender{
		client: resend.NewClient(cfg.APIKey),
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Send sends a single email via Resend.
// PRE: req has at least one recipient and a subject
// POST: Email is queued for delivery; returns the Resend message ID
func (s *ResendSender) Send(ctx context.Context, req SendRequest) (SendResult, error) {
	params, opts := s.buildRequest(req)
	sent, err := s.client.Emails.SendWithOptions(ctx, params, opts)
	if err != nil {
		s.logger.Error().Err(err).Strs("to", req.To).Str("subject", req.Subject).Msg("resend_send_failed")
		return SendResult{}, fmt.Errorf("resend send failed: %w", err)
	}

	s.logger.Info().Str("message_id", sent.Id).Strs("to", req.To).Str("category", req.Category).Msg("resend_sent")
	return SendResult{MessageID: sent.Id, SentAt: s.now()}, nil
}

func (s *ResendSender) buildRequest(req SendRequest) (*resend.SendEmailRequest, *resend.SendEmailOptions) {
	params := &resend.SendEmailRequest{
		From:    firstNonEmpty(req.From, s.cfg.From),
		To:      req.To,
		Subject: req.Subject,
		Html:    req.HTML,
		ReplyTo: firstNonEmpty(req.ReplyTo, s.cfg.ReplyTo),
	}
	if req.Category != "" {
		params.Tags = []resend.Tag{{Name: "category", Value: req.Category}}
	}
	// The client skips the header for an empty key; options must be non-nil.
	return params, &resend.SendEmailOptions{IdempotencyKey: req.IdempotencyKey}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
