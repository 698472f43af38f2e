package orchestrators

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapters/email"
	"studio/internal/adapters/events"
	"studio/internal/domain/account"
	"studio/internal/domain/outbox"
)

// Notice kinds.
const (
	NoticeBooking = "booking"
	NoticePackage = "package"
)

// Notice describes a purchase that was just recorded.
type Notice struct {
	Kind             string
	AthleteID        string
	SessionID        string
	AmountCents      int64
	BookingID        string
	SlotID           string
	Date             string
	StartTime        string
	Location         string
	AthletePackageID string
	PackageID        string
	SessionsTotal    int
}

// Notifier is told about recorded purchases. Implementations must not be
// relied on for correctness; a failed notification never undoes a booking.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// AccountLookup resolves an athlete's contact details.
type AccountLookup interface {
	GetByID(ctx context.Context, id string) (account.Account, error)
}

// OutboxWriter records side effects for retry.
type OutboxWriter interface {
	Save(ctx context.Context, e outbox.Entry) error
}

var (
	bookingConfirmation = email.Template{
		Subject: "Your session on {{.Date}} is confirmed",
		Body: `Hi {{.Name}},

Your training session is booked for **{{.Date}} at {{.StartTime}}**{{if .Location}} at {{.Location}}{{end}}.

Amount paid: {{.Amount}}

See you there!`,
	}
	packageConfirmation = email.Template{
		Subject: "Your session package is ready",
		Body: `Hi {{.Name}},

Thanks for your purchase. Your package includes **{{.Sessions}} sessions**.

Amount paid: {{.Amount}}`,
	}
)

// ConfirmationMailer emails the athlete. A failed send is queued in the
// outbox for the retry worker.
type ConfirmationMailer struct {
	Accounts   AccountLookup
	Sender     email.Sender
	Outbox     OutboxWriter
	Logger     zerolog.Logger
	GenerateID func() string
	Now        func() time.Time
}

// Notify renders and sends the confirmation for n.
func (m *ConfirmationMailer) Notify(ctx context.Context, n Notice) error {
	acct, err := m.Accounts.GetByID(ctx, n.AthleteID)
	if err != nil {
		return fmt.Errorf("look up athlete %s: %w", n.AthleteID, err)
	}
	data := map[string]any{
		"Name":      acct.DisplayName(),
		"Date":      n.Date,
		"StartTime": n.StartTime,
		"Location":  n.Location,
		"Sessions":  n.SessionsTotal,
		"Amount":    formatCents(n.AmountCents),
	}
	tmpl := bookingConfirmation
	if n.Kind == NoticePackage {
		tmpl = packageConfirmation
	}
	subject, html, err := tmpl.Render(data)
	if err != nil {
		return err
	}
	req := email.SendRequest{
		To:             []string{acct.Email},
		Subject:        subject,
		HTML:           html,
		Category:       "confirmation",
		IdempotencyKey: n.Kind + "-confirmation/" + n.SessionID,
	}
	if _, err := m.Sender.Send(ctx, req); err != nil {
		m.Logger.Warn().Err(err).Str("athlete_id", n.AthleteID).Msg("confirmation_email_failed")
		return m.queue(ctx, req, err)
	}
	return nil
}

func (m *ConfirmationMailer) queue(ctx context.Context, req email.SendRequest, cause error) error {
	if m.Outbox == nil {
		return cause
	}
	payload, err := json.Marshal(outbox.EmailPayload{
		To: req.To, Subject: req.Subject, HTML: req.HTML, ReplyTo: req.ReplyTo, IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}
	entry := outbox.NewEntry(m.GenerateID(), outbox.ActionTypeEmail, string(payload), m.Now())
	entry.ErrorMessage = cause.Error()
	return m.Outbox.Save(ctx, entry)
}

func formatCents(c int64) string {
	return fmt.Sprintf("$%d.%02d", c/100, c%100)
}

// EventNotifier publishes purchase events to the broker.
type EventNotifier struct {
	Publisher events.Publisher
}

// Notify publishes the event matching n.Kind.
func (e *EventNotifier) Notify(ctx context.Context, n Notice) error {
	if n.Kind == NoticePackage {
		return e.Publisher.Publish(ctx, events.KeyPackagePurchased, events.PackagePurchased{
			AthletePackageID: n.AthletePackageID,
			AthleteID:        n.AthleteID,
			PackageID:        n.PackageID,
			SessionsTotal:    n.SessionsTotal,
			SessionID:        n.SessionID,
		})
	}
	return e.Publisher.Publish(ctx, events.KeyBookingConfirmed, events.BookingConfirmed{
		BookingID:   n.BookingID,
		AthleteID:   n.AthleteID,
		SlotID:      n.SlotID,
		Date:        n.Date,
		StartTime:   n.StartTime,
		SessionID:   n.SessionID,
		AmountCents: n.AmountCents,
	})
}

// FanoutNotifier calls every notifier and joins their errors.
type FanoutNotifier []Notifier

// Notify runs all notifiers even when one fails.
func (f FanoutNotifier) Notify(ctx context.Context, n Notice) error {
	var errs []error
	for _, next := range f {
		if err := next.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AsyncNotifier runs Next in the background on a context detached from the
// caller's, bounded by Timeout. Notify always returns nil immediately.
type AsyncNotifier struct {
	Next    Notifier
	Timeout time.Duration
	Logger  zerolog.Logger

	wg sync.WaitGroup
}

// Notify dispatches n and returns.
func (a *AsyncNotifier) Notify(ctx context.Context, n Notice) error {
	timeout := a.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	detached := context.WithoutCancel(ctx)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		nctx, cancel := context.WithTimeout(detached, timeout)
		defer cancel()
		if err := a.Next.Notify(nctx, n); err != nil {
			a.Logger.Warn().Err(err).Str("kind", n.Kind).Str("athlete_id", n.AthleteID).
				Str("session_id", n.SessionID).Msg("notification_failed")
		}
	}()
	return nil
}

// Wait blocks until dispatched notifications finish.
func (a *AsyncNotifier) Wait() {
	a.wg.Wait()
}
