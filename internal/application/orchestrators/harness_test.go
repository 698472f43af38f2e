package orchestrators

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	accountStore "studio/internal/adapters/storage/account"
	actionStore "studio/internal/adapters/storage/actionrequest"
	auditStore "studio/internal/adapters/storage/audit"
	bookingStore "studio/internal/adapters/storage/booking"
	catalogStore "studio/internal/adapters/storage/catalog"
	outboxStore "studio/internal/adapters/storage/outbox"
	"studio/internal/adapters/storage/records"
	"studio/internal/adapters/storage/setting"
	simulationStore "studio/internal/adapters/storage/simulation"
	slotStore "studio/internal/adapters/storage/slot"
	"studio/internal/adapters/storage/storagetest"
	"studio/internal/application/payments"
	"studio/internal/application/payments/paymentstest"
	"studio/internal/domain/account"
	"studio/internal/domain/catalog"
	"studio/internal/domain/slot"
)

var testNow = time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

// harness wires every store against one throwaway database.
type harness struct {
	Accounts    *accountStore.SQLiteStore
	Bookings    *bookingStore.SQLiteStore
	Catalog     *catalogStore.SQLiteStore
	Slots       *slotStore.SQLiteStore
	Outbox      *outboxStore.SQLiteStore
	Audit       *auditStore.SQLiteStore
	Requests    *actionStore.SQLiteStore
	Simulations *simulationStore.SQLiteStore
	Records     *records.SQLiteStore
	Settings    *setting.SQLiteStore
	Processor   *paymentstest.Processor
	Gateway     *payments.Gateway
	Notifier    *recordingNotifier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := storagetest.Open(t)
	proc := paymentstest.New()
	settings := setting.NewSQLiteStore(db)
	return &harness{
		Accounts:    accountStore.NewSQLiteStore(db),
		Bookings:    bookingStore.NewSQLiteStore(db),
		Catalog:     catalogStore.NewSQLiteStore(db),
		Slots:       slotStore.NewSQLiteStore(db),
		Outbox:      outboxStore.NewSQLiteStore(db),
		Audit:       auditStore.NewSQLiteStore(db),
		Requests:    actionStore.NewSQLiteStore(db),
		Simulations: simulationStore.NewSQLiteStore(db),
		Records:     records.NewSQLiteStore(db),
		Settings:    settings,
		Processor:   proc,
		Gateway:     payments.NewGateway(proc, settings, payments.Config{SuccessURL: "https://studio.test/ok", CancelURL: "https://studio.test/cancel"}, zerolog.Nop()),
		Notifier:    &recordingNotifier{},
	}
}

func (h *harness) reconcileDeps() ReconcileBookingDeps {
	return ReconcileBookingDeps{
		Bookings:    h.Bookings,
		Slots:       h.Slots,
		Refunder:    h.Gateway,
		Outbox:      h.Outbox,
		Simulations: h.Simulations,
		Notifier:    h.Notifier,
		Logger:      zerolog.Nop(),
		GenerateID:  uuid.NewString,
		Now:         func() time.Time { return testNow },
	}
}

func (h *harness) packageDeps() ReconcilePackageDeps {
	return ReconcilePackageDeps{
		Catalog:     h.Catalog,
		Refunder:    h.Gateway,
		Outbox:      h.Outbox,
		Simulations: h.Simulations,
		Notifier:    h.Notifier,
		Logger:      zerolog.Nop(),
		GenerateID:  uuid.NewString,
		Now:         func() time.Time { return testNow },
	}
}

func (h *harness) addAccount(t *testing.T, id, role string) account.Account {
	t.Helper()
	a := account.Account{ID: id, Email: id + "@studio.test", Name: "User " + id, Role: role, CreatedAt: testNow}
	require.NoError(t, h.Accounts.Save(context.Background(), a))
	return a
}

func (h *harness) addSlot(t *testing.T, id string, capacity int) slot.Slot {
	t.Helper()
	s := slot.Slot{
		ID:          id,
		Date:        "2026-11-02",
		StartTime:   "09:00",
		EndTime:     "10:00",
		Location:    "Main gym",
		CoachID:     "C1",
		MaxBookings: capacity,
		CreatedAt:   testNow,
	}
	require.NoError(t, h.Slots.Save(context.Background(), s))
	return s
}

func (h *harness) addService(t *testing.T) catalog.Service {
	t.Helper()
	svc := catalog.Service{ID: "SV1", Name: "1:1 Skills", PriceCents: 8500, DurationMinutes: 60, Active: true}
	require.NoError(t, h.Catalog.SaveService(context.Background(), svc))
	return svc
}

// paidBookingSession builds a completed booking session for slotID as the
// processor would return it.
func paidBookingSession(t *testing.T, id, athleteID, slotID string) payments.Session {
	t.Helper()
	draft := `{"slot_id":"` + slotID + `","coach_id":"C1","date":"2026-11-02","start_time":"09:00","duration_minutes":60,"location":"Main gym"}`
	return payments.Session{
		ID:              id,
		PaymentStatus:   payments.StatusPaid,
		PaymentIntentID: "pi_" + id,
		AmountTotal:     8500,
		Metadata: map[string]string{
			payments.MetaPurchaseType: payments.PurchaseBooking,
			payments.MetaAthleteID:    athleteID,
			payments.MetaServiceID:    "SV1",
			payments.MetaBookingDraft: draft,
		},
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	notices []Notice
	err     error
}

func (r *recordingNotifier) Notify(_ context.Context, n Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
	return r.err
}

func (r *recordingNotifier) all() []Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notice(nil), r.notices...)
}
