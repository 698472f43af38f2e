package orchestrators

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/application/payments"
	"studio/internal/domain/catalog"
)

func paidPackageSession(id, athleteID, packageID string) payments.Session {
	return payments.Session{
		ID:              id,
		PaymentStatus:   payments.StatusPaid,
		PaymentIntentID: "pi_" + id,
		AmountTotal:     40000,
		Metadata: map[string]string{
			payments.MetaPurchaseType:      payments.PurchasePackage,
			payments.MetaAthleteID:         athleteID,
			payments.MetaPackageID:         packageID,
			payments.MetaInstallmentsTotal: "1",
			payments.MetaSessionsIncluded:  "10",
		},
	}
}

func TestReconcilePackageIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.Catalog.SavePackage(ctx, catalog.Package{ID: "P1", Name: "Ten pack", PriceCents: 40000, SessionsIncluded: 8, ValidityDays: 90}))
	sess := paidPackageSession("cs_test_pkg", "A1", "P1")

	const callers = 5
	results := make([]ReconcileResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			var err error
			results[i], err = ExecuteReconcilePackage(ctx, sess, h.packageDeps())
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, r := range results {
		if r.Outcome == OutcomeCreated {
			created++
		}
		assert.Equal(t, results[0].ID, r.ID)
	}
	assert.Equal(t, 1, created)

	list, err := h.Catalog.ListAthletePackages(ctx, "A1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	ap := list[0]
	assert.Equal(t, 10, ap.SessionsTotal, "sessions quoted at checkout win")
	assert.Equal(t, 0, ap.SessionsUsed)
	assert.True(t, testNow.AddDate(0, 0, 90).Equal(ap.ExpiresAt))
	assert.Equal(t, int64(40000), ap.AmountCents)
	require.Len(t, h.Notifier.all(), 1)
	assert.Equal(t, NoticePackage, h.Notifier.all()[0].Kind)
}

func TestReconcilePackageUnknownPackageRefunds(t *testing.T) {
	h := newHarness(t)
	res, err := ExecuteReconcilePackage(context.Background(), paidPackageSession("cs_test_gone", "A1", "P-missing"), h.packageDeps())
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.Len(t, h.Processor.Refunds(), 1)
	assert.Equal(t, "pi_cs_test_gone", h.Processor.Refunds()[0].PaymentIntentID)
}

func TestReconcilePackageIgnoresBookings(t *testing.T) {
	h := newHarness(t)
	res, err := ExecuteReconcilePackage(context.Background(), paidBookingSession(t, "cs_test_b", "A1", "S1"), h.packageDeps())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNotBooking, res.Outcome)
}

func testPackage() catalog.Package {
	return catalog.Package{ID: "P1", Name: "Ten pack", PriceCents: 40000, SessionsIncluded: 10, ValidityDays: 90, AllowInstallments: true}
}
