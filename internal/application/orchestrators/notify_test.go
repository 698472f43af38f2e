package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/adapters/email"
	"studio/internal/adapters/events"
	"studio/internal/domain/account"
	"studio/internal/domain/outbox"
)

type failingSender struct{}

func (failingSender) Send(context.Context, email.SendRequest) (email.SendResult, error) {
	return email.SendResult{}, errors.New("provider rejected")
}

func TestConfirmationMailerRendersBooking(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "A1", account.RoleAthlete)
	sender := email.NewNoopSender(zerolog.Nop())
	m := &ConfirmationMailer{Accounts: h.Accounts, Sender: sender, Outbox: h.Outbox, Logger: zerolog.Nop(), GenerateID: uuid.NewString, Now: func() time.Time { return testNow }}

	err := m.Notify(context.Background(), Notice{Kind: NoticeBooking, AthleteID: "A1", Date: "2026-11-02", StartTime: "09:00", Location: "Main gym", AmountCents: 8550, SessionID: "cs_test_1"})
	require.NoError(t, err)

	sent := sender.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, []string{"A1@studio.test"}, sent[0].To)
	assert.Equal(t, "Your session on 2026-11-02 is confirmed", sent[0].Subject)
	assert.Contains(t, sent[0].HTML, "<strong>2026-11-02 at 09:00</strong>")
	assert.Contains(t, sent[0].HTML, "$85.50")
	assert.Equal(t, "booking-confirmation/cs_test_1", sent[0].IdempotencyKey)
}

func TestConfirmationMailerQueuesFailedSend(t *testing.T) {
	h := newHarness(t)
	h.addAccount(t, "A1", account.RoleAthlete)
	m := &ConfirmationMailer{Accounts: h.Accounts, Sender: failingSender{}, Outbox: h.Outbox, Logger: zerolog.Nop(), GenerateID: uuid.NewString, Now: func() time.Time { return testNow }}

	require.NoError(t, m.Notify(context.Background(), Notice{Kind: NoticePackage, AthleteID: "A1", SessionsTotal: 10, AmountCents: 40000, SessionID: "cs_test_2"}))

	entries, err := h.Outbox.List(context.Background(), outbox.ActionTypeEmail, "", 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	var payload outbox.EmailPayload
	require.NoError(t, json.Unmarshal([]byte(entries[0].Payload), &payload))
	assert.Equal(t, "Your session package is ready", payload.Subject)
	assert.Contains(t, payload.HTML, "10 sessions")
	assert.Equal(t, "package-confirmation/cs_test_2", payload.IdempotencyKey, "retries reuse the key")
}

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func TestFanoutRunsEveryNotifier(t *testing.T) {
	pub := &recordingPublisher{}
	broken := &recordingNotifier{err: errors.New("boom")}
	after := &recordingNotifier{}
	fan := FanoutNotifier{broken, &EventNotifier{Publisher: pub}, after}

	err := fan.Notify(context.Background(), Notice{Kind: NoticeBooking, AthleteID: "A1"})
	require.Error(t, err)
	assert.Len(t, after.all(), 1)
	assert.Equal(t, []string{events.KeyBookingConfirmed}, pub.keys)

	require.Error(t, fan.Notify(context.Background(), Notice{Kind: NoticePackage}))
	assert.Equal(t, []string{events.KeyBookingConfirmed, events.KeyPackagePurchased}, pub.keys)
}

type blockingNotifier struct {
	release chan struct{}
	got     chan Notice
}

func (b *blockingNotifier) Notify(ctx context.Context, n Notice) error {
	select {
	case <-b.release:
	case <-ctx.Done():
		return ctx.Err()
	}
	b.got <- n
	return nil
}

func TestAsyncNotifierDoesNotBlockCaller(t *testing.T) {
	next := &blockingNotifier{release: make(chan struct{}), got: make(chan Notice, 1)}
	async := &AsyncNotifier{Next: next, Timeout: time.Second, Logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, async.Notify(ctx, Notice{AthleteID: "A1"}))
	cancel()
	close(next.release)
	async.Wait()

	select {
	case n := <-next.got:
		assert.Equal(t, "A1", n.AthleteID)
	default:
		t.Fatal("notification was dropped when the request context ended")
	}
}
