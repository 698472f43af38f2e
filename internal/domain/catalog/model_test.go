package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallmentAmount(t *testing.T) {
	pkg := Package{ID: "p10", Name: "Ten pack", PriceCents: 100000, SessionsIncluded: 10, ValidityDays: 90, AllowInstallments: true}

	tests := []struct {
		n    int
		want int64
		err  error
	}{
		{2, 50000, nil},
		{3, 33334, nil},
		{4, 25000, nil},
		{1, 0, ErrInvalidInstallments},
		{5, 0, ErrInvalidInstallments},
	}
	for _, tt := range tests {
		got, err := pkg.InstallmentAmount(tt.n)
		assert.Equal(t, tt.err, err, "n=%d", tt.n)
		assert.Equal(t, tt.want, got, "n=%d", tt.n)
	}

	pkg.AllowInstallments = false
	_, err := pkg.InstallmentAmount(2)
	assert.ErrorIs(t, err, ErrInstallmentsDisallowed)
}

func TestAthletePackageUsage(t *testing.T) {
	bought := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ap := NewAthletePackage("ap1", "a1", Package{ID: "p2", SessionsIncluded: 2, ValidityDays: 30}, bought)

	assert.Equal(t, 0, ap.SessionsUsed)
	assert.Equal(t, bought.AddDate(0, 0, 30), ap.ExpiresAt)

	now := bought.Add(24 * time.Hour)
	require.NoError(t, ap.UseSession(now))
	require.NoError(t, ap.UseSession(now))
	assert.ErrorIs(t, ap.UseSession(now), ErrPackageExhausted)

	fresh := NewAthletePackage("ap2", "a1", Package{ID: "p2", SessionsIncluded: 2, ValidityDays: 30}, bought)
	assert.ErrorIs(t, fresh.UseSession(ap.ExpiresAt), ErrPackageExpired)
}
