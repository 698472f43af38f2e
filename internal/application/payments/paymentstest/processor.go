// Package paymentstest provides an in-memory payments.Processor for tests.
package paymentstest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"studio/internal/application/payments"
)

// Refund records one refund call.
type Refund struct {
	Mode            payments.Mode
	PaymentIntentID string
	Reason          string
}

// Processor is a thread-safe fake processor. Sessions created in test mode
// get "cs_test_" ids and live ones "cs_live_", like the real processor.
type Processor struct {
	mu        sync.Mutex
	seq       int
	sessions  map[string]payments.Session
	requests  map[string]payments.CheckoutRequest
	refunds   []Refund
	refunded  map[string]bool
	customers []string

	// Failure injection.
	CreateErr  error
	GetErr     error
	RefundErr  error
	PingErr    map[payments.Mode]error
	GetCalls   int
	CreateHook func(payments.CheckoutRequest)
}

// New creates an empty fake.
func New() *Processor {
	return &Processor{
		sessions: make(map[string]payments.Session),
		requests: make(map[string]payments.CheckoutRequest),
		refunded: make(map[string]bool),
		PingErr:  make(map[payments.Mode]error),
	}
}

var _ payments.Processor = (*Processor)(nil)

// CreateCheckout stores an unpaid session.
func (p *Processor) CreateCheckout(_ context.Context, mode payments.Mode, req payments.CheckoutRequest) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.CreateErr != nil {
		return payments.Session{}, p.CreateErr
	}
	if p.CreateHook != nil {
		p.CreateHook(req)
	}
	p.seq++
	prefix := "cs_live_"
	if mode == payments.ModeTest {
		prefix = payments.TestSessionPrefix
	}
	id := fmt.Sprintf("%s%03d", prefix, p.seq)
	md := make(map[string]string, len(req.Metadata))
	for k, v := range req.Metadata {
		md[k] = v
	}
	sess := payments.Session{
		ID:            id,
		URL:           "https://checkout.test/" + id,
		PaymentStatus: payments.StatusUnpaid,
		AmountTotal:   req.AmountCents,
		CustomerID:    req.CustomerID,
		Metadata:      md,
	}
	p.sessions[id] = sess
	p.requests[id] = req
	return sess, nil
}

// Put stores a session directly, e.g. one that arrived by webhook.
func (p *Processor) Put(sess payments.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions[sess.ID] = sess
}

// Complete marks a session paid with the given payment intent.
func (p *Processor) Complete(id, paymentIntentID string) payments.Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	sess := p.sessions[id]
	sess.PaymentStatus = payments.StatusPaid
	sess.PaymentIntentID = paymentIntentID
	p.sessions[id] = sess
	return sess
}

// GetSession returns a stored session.
func (p *Processor) GetSession(_ context.Context, _ payments.Mode, id string) (payments.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GetCalls++
	if p.GetErr != nil {
		return payments.Session{}, p.GetErr
	}
	sess, ok := p.sessions[id]
	if !ok {
		return payments.Session{}, fmt.Errorf("no such checkout session: %s", id)
	}
	return sess, nil
}

// Refund records the call; a second refund of one intent reports ErrAlreadyRefunded.
func (p *Processor) Refund(_ context.Context, mode payments.Mode, paymentIntentID, reason string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.RefundErr != nil {
		return "", p.RefundErr
	}
	if p.refunded[paymentIntentID] {
		return "", payments.ErrAlreadyRefunded
	}
	p.refunded[paymentIntentID] = true
	p.refunds = append(p.refunds, Refund{Mode: mode, PaymentIntentID: paymentIntentID, Reason: reason})
	return fmt.Sprintf("re_%d", len(p.refunds)), nil
}

// CreateCustomer returns a new customer id.
func (p *Processor) CreateCustomer(_ context.Context, _ payments.Mode, email, _ string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customers = append(p.customers, email)
	return fmt.Sprintf("cus_%d", len(p.customers)), nil
}

// Ping returns the injected error for mode.
func (p *Processor) Ping(_ context.Context, mode payments.Mode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PingErr[mode]
}

// Refunds returns a copy of the recorded refunds.
func (p *Processor) Refunds() []Refund {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Refund(nil), p.refunds...)
}

// Request returns the request a session was created from.
func (p *Processor) Request(id string) payments.CheckoutRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[id]
}

// Customers returns the emails customers were created for.
func (p *Processor) Customers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.customers...)
}

// ModeStore is an in-memory payments.ModeStore.
type ModeStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewModeStore creates an empty mode store.
func NewModeStore() *ModeStore {
	return &ModeStore{values: make(map[string]string)}
}

// Get returns the stored value or def.
func (m *ModeStore) Get(_ context.Context, key, def string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return def, nil
}

// Set stores value.
func (m *ModeStore) Set(_ context.Context, key, value string, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}
