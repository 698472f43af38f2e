package orchestrators

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"studio/internal/adapters/email"
	outboxStore "studio/internal/adapters/storage/outbox"
	domain "studio/internal/domain/outbox"
)

// OutboxProcessor retries external side effects that failed inline.
type OutboxProcessor struct {
	store     outboxStore.Store
	executors map[string]ActionExecutor
	logger    zerolog.Logger
	now       func() time.Time
	baseDelay time.Duration
	maxDelay  time.Duration
	batchSize int
}

// ActionExecutor executes a specific type of external action.
type ActionExecutor interface {
	// Execute runs the external action with the given payload.
	// Returns the external ID (e.g., refund or message id) and any error.
	Execute(ctx context.Context, payload string) (string, error)
}

// NewOutboxProcessor creates a new outbox processor.
func NewOutboxProcessor(store outboxStore.Store, executors map[string]ActionExecutor, logger zerolog.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		store:     store,
		executors: executors,
		logger:    logger,
		now:       time.Now,
		baseDelay: 30 * time.Second,
		maxDelay:  1 * time.Hour,
		batchSize: 10,
	}
}

// ProcessPending processes pending outbox entries with retries.
// PRE: Context is valid
// POST: Due entries are attempted once, failed entries marked for retry
func (p *OutboxProcessor) ProcessPending(ctx context.Context) error {
	// Entries still backing off are paged past, so they never starve newer
	// entries that are already due.
	var afterAt time.Time
	var afterID string
	attempted := 0
	for {
		entries, err := p.store.ListPendingAfter(ctx, afterAt, afterID, p.batchSize)
		if err != nil {
			return fmt.Errorf("list pending outbox entries: %w", err)
		}
		for _, entry := range entries {
			afterAt, afterID = entry.CreatedAt, entry.ID
			if p.now().Before(entry.DueAt(p.baseDelay, p.maxDelay)) {
				continue
			}
			if err := p.attempt(ctx, entry); err != nil {
				p.logger.Error().Err(err).Str("entry_id", entry.ID).Str("action_type", entry.ActionType).Msg("outbox_process_failed")
			}
			attempted++
			if attempted == p.batchSize {
				return nil
			}
		}
		if len(entries) < p.batchSize {
			return nil
		}
	}
}

func (p *OutboxProcessor) attempt(ctx context.Context, entry domain.Entry) error {
	executor, ok := p.executors[entry.ActionType]
	if !ok {
		entry.MarkAttempt(p.now())
		entry.MarkFailed(fmt.Errorf("no executor registered for action type: %s", entry.ActionType))
		return p.store.Save(ctx, entry)
	}

	entry.MarkAttempt(p.now())
	externalID, err := executor.Execute(ctx, entry.Payload)
	if err != nil {
		entry.MarkFailed(err)
		evt := p.logger.Warn()
		if entry.Status == domain.StatusFailed {
			evt = p.logger.Error()
		}
		evt.Err(err).Str("entry_id", entry.ID).Str("action_type", entry.ActionType).
			Int("attempt", entry.Attempts).Str("status", entry.Status).Msg("outbox_action_failed")
	} else {
		entry.MarkSuccess(externalID)
		p.logger.Info().Str("entry_id", entry.ID).Str("action_type", entry.ActionType).
			Str("external_id", externalID).Msg("outbox_action_succeeded")
	}
	return p.store.Save(ctx, entry)
}

// ProcessSingle manually processes a single outbox entry (for admin retry).
// An entry that exhausted its attempts is given one more.
// PRE: entryID is non-empty
// POST: Entry is attempted, status updated
func (p *OutboxProcessor) ProcessSingle(ctx context.Context, entryID string) (domain.Entry, error) {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if entry.Status == domain.StatusDone || entry.Status == domain.StatusAbandoned {
		return entry, domain.ErrTerminal
	}
	if entry.Attempts >= entry.MaxAttempts {
		entry.MaxAttempts = entry.Attempts + 1
	}
	if err := p.attempt(ctx, entry); err != nil {
		return domain.Entry{}, err
	}
	return p.store.GetByID(ctx, entryID)
}

// AbandonEntry marks an entry as abandoned by admin.
// PRE: entryID is non-empty
// POST: Entry status set to abandoned
func (p *OutboxProcessor) AbandonEntry(ctx context.Context, entryID string) (domain.Entry, error) {
	entry, err := p.store.GetByID(ctx, entryID)
	if err != nil {
		return domain.Entry{}, err
	}
	if entry.Status == domain.StatusDone {
		return entry, domain.ErrTerminal
	}
	entry.MarkAbandoned()
	p.logger.Warn().Str("entry_id", entry.ID).Str("action_type", entry.ActionType).Msg("outbox_entry_abandoned")
	return entry, p.store.Save(ctx, entry)
}

// --- Refund Executor ---

// RefundExecutor retries compensating refunds.
type RefundExecutor struct {
	Refunder Refunder
}

// Execute issues the refund described by payload.
// PRE: payload is valid JSON matching outbox.RefundPayload
// POST: Refund issued or already present; returns the refund id when new
func (e *RefundExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var p domain.RefundPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	return e.Refunder.IssueRefund(ctx, p.SessionID, p.PaymentIntentID, p.Reason)
}

// --- Email Executor ---

// EmailExecutor resends queued email.
type EmailExecutor struct {
	Sender email.Sender
}

// Execute sends an email from the payload.
// PRE: payload is valid JSON matching outbox.EmailPayload
// POST: email sent via configured sender, returns message ID
func (e *EmailExecutor) Execute(ctx context.Context, payload string) (string, error) {
	var p domain.EmailPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return "", fmt.Errorf("unmarshal payload: %w", err)
	}
	res, err := e.Sender.Send(ctx, email.SendRequest{
		To: p.To, Subject: p.Subject, HTML: p.HTML, ReplyTo: p.ReplyTo, IdempotencyKey: p.IdempotencyKey,
	})
	if err != nil {
		return "", err
	}
	return res.MessageID, nil
}

// --- Background Worker ---

// StartBackgroundWorker starts a background goroutine that periodically processes pending outbox entries.
// PRE: stopCh is provided to signal shutdown
// POST: Worker runs until stopCh is closed; done is closed when it has exited
func StartBackgroundWorker(processor *OutboxProcessor, interval time.Duration, stopCh <-chan struct{}) (done <-chan struct{}) {
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
				if err := processor.ProcessPending(ctx); err != nil {
					processor.logger.Error().Err(err).Msg("outbox_background_process_failed")
				}
				cancel()
			case <-stopCh:
				processor.logger.Info().Msg("outbox_background_worker_stopped")
				return
			}
		}
	}()
	return exited
}
