// Package payment adapts the Stripe API to payments.Processor.
package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"studio/internal/application/payments"
)

// Account holds one Stripe account's credentials.
type Account struct {
	SecretKey     string
	WebhookSecret string
}

// StripeProcessor talks to a live and a test Stripe account.
type StripeProcessor struct {
	clients  map[payments.Mode]*client.API
	accounts map[payments.Mode]Account
}

var (
	_ payments.Processor       = (*StripeProcessor)(nil)
	_ payments.WebhookVerifier = (*StripeProcessor)(nil)
)

// NewStripeProcessor builds clients for each configured account. An account
// without a secret key gets no client and reports payments.ErrNotConfigured.
func NewStripeProcessor(live, test Account, timeout time.Duration) *StripeProcessor {
	p := &StripeProcessor{
		clients:  make(map[payments.Mode]*client.API),
		accounts: map[payments.Mode]Account{payments.ModeLive: live, payments.ModeTest: test},
	}
	httpClient := &http.Client{Timeout: timeout}
	for mode, acct := range p.accounts {
		if acct.SecretKey == "" {
			continue
		}
		p.clients[mode] = client.New(acct.SecretKey, stripe.NewBackends(httpClient))
	}
	return p
}

func (p *StripeProcessor) client(mode payments.Mode) (*client.API, error) {
	c, ok := p.clients[mode]
	if !ok {
		return nil, payments.ErrNotConfigured
	}
	return c, nil
}

// CreateCheckout creates a hosted checkout session.
func (p *StripeProcessor) CreateCheckout(ctx context.Context, mode payments.Mode, req payments.CheckoutRequest) (payments.Session, error) {
	sc, err := p.client(mode)
	if err != nil {
		return payments.Session{}, err
	}
	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(req.Currency),
		UnitAmount: stripe.Int64(req.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(req.Name),
		},
	}
	params := &stripe.CheckoutSessionParams{
		SuccessURL: stripe.String(req.SuccessURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:  stripe.String(req.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: priceData, Quantity: stripe.Int64(1)},
		},
	}
	params.Context = ctx
	if req.Recurring {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: req.Metadata}
	} else {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: req.Metadata}
	}
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	sess, err := sc.CheckoutSessions.New(params)
	if err != nil {
		return payments.Session{}, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return toSession(sess), nil
}

// GetSession retrieves a checkout session.
func (p *StripeProcessor) GetSession(ctx context.Context, mode payments.Mode, id string) (payments.Session, error) {
	sc, err := p.client(mode)
	if err != nil {
		return payments.Session{}, err
	}
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	sess, err := sc.CheckoutSessions.Get(id, params)
	if err != nil {
		return payments.Session{}, fmt.Errorf("stripe get checkout session %s: %w", id, err)
	}
	return toSession(sess), nil
}

// Refund refunds the full payment intent.
func (p *StripeProcessor) Refund(ctx context.Context, mode payments.Mode, paymentIntentID, reason string) (string, error) {
	sc, err := p.client(mode)
	if err != nil {
		return "", err
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentIntentID),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	params.AddMetadata("studio_reason", reason)
	r, err := sc.Refunds.New(params)
	if err != nil {
		var se *stripe.Error
		if errors.As(err, &se) && se.Code == stripe.ErrorCodeChargeAlreadyRefunded {
			return "", payments.ErrAlreadyRefunded
		}
		return "", fmt.Errorf("stripe refund %s: %w", paymentIntentID, err)
	}
	return r.ID, nil
}

// CreateCustomer creates a customer record.
func (p *StripeProcessor) CreateCustomer(ctx context.Context, mode payments.Mode, email, name string) (string, error) {
	sc, err := p.client(mode)
	if err != nil {
		return "", err
	}
	params := &stripe.CustomerParams{Email: stripe.String(email), Name: stripe.String(name)}
	params.Context = ctx
	c, err := sc.Customers.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe create customer: %w", err)
	}
	return c.ID, nil
}

// Ping reads the account balance, the cheapest authenticated call.
func (p *StripeProcessor) Ping(ctx context.Context, mode payments.Mode) error {
	sc, err := p.client(mode)
	if err != nil {
		return err
	}
	params := &stripe.BalanceParams{}
	params.Context = ctx
	if _, err := sc.Balance.Get(params); err != nil {
		return fmt.Errorf("stripe balance: %w", err)
	}
	return nil
}

// VerifyWebhook checks the signature against the live webhook secret, then
// the test one. API version mismatches are tolerated; only the checkout
// session fields the studio reads are decoded.
func (p *StripeProcessor) VerifyWebhook(payload []byte, signature string) (payments.Event, error) {
	var lastErr error
	for _, mode := range []payments.Mode{payments.ModeLive, payments.ModeTest} {
		secret := p.accounts[mode].WebhookSecret
		if secret == "" {
			continue
		}
		evt, err := webhook.ConstructEventWithOptions(payload, signature, secret,
			webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
		if err != nil {
			lastErr = err
			continue
		}
		return toEvent(evt, mode)
	}
	if lastErr == nil {
		return payments.Event{}, payments.ErrNotConfigured
	}
	return payments.Event{}, fmt.Errorf("%w: %v", payments.ErrInvalidSignature, lastErr)
}

func toEvent(evt stripe.Event, mode payments.Mode) (payments.Event, error) {
	out := payments.Event{ID: evt.ID, Type: string(evt.Type), Mode: mode}
	if evt.Data == nil || len(evt.Data.Raw) == 0 {
		return out, nil
	}
	if string(evt.Type) == payments.EventCheckoutCompleted {
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
			return payments.Event{}, fmt.Errorf("decode checkout session: %w", err)
		}
		s := toSession(&sess)
		out.Session = &s
	}
	return out, nil
}

func toSession(sess *stripe.CheckoutSession) payments.Session {
	out := payments.Session{
		ID:            sess.ID,
		URL:           sess.URL,
		PaymentStatus: string(sess.PaymentStatus),
		AmountTotal:   sess.AmountTotal,
		Metadata:      sess.Metadata,
	}
	if sess.PaymentIntent != nil {
		out.PaymentIntentID = sess.PaymentIntent.ID
	}
	if sess.Subscription != nil {
		out.SubscriptionID = sess.Subscription.ID
	}
	if sess.Customer != nil {
		out.CustomerID = sess.Customer.ID
	}
	return out
}
