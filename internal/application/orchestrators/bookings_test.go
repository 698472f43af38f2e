package orchestrators

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studio/internal/domain/account"
	"studio/internal/domain/booking"
	"studio/internal/domain/catalog"
	"studio/internal/domain/identity"
	"studio/internal/domain/simulation"
	"studio/internal/domain/slot"
)

func (h *harness) staffBookingDeps() StaffBookingDeps {
	return StaffBookingDeps{
		Accounts:    h.Accounts,
		Catalog:     h.Catalog,
		Packages:    h.Catalog,
		Slots:       h.Slots,
		Bookings:    h.Bookings,
		Simulations: h.Simulations,
		Audit:       h.Audit,
		Logger:      zerolog.Nop(),
		GenerateID:  uuid.NewString,
		Now:         func() time.Time { return testNow },
	}
}

func (h *harness) statusDeps() UpdateBookingStatusDeps {
	return UpdateBookingStatusDeps{Bookings: h.Bookings, Audit: h.Audit, Logger: zerolog.Nop(), Now: func() time.Time { return testNow }}
}

func (h *harness) addAthletePackage(t *testing.T, id, athleteID string, total int) {
	t.Helper()
	require.NoError(t, h.Catalog.CreateAthletePackage(context.Background(), catalog.AthletePackage{
		ID: id, AthleteID: athleteID, PackageID: "P1", SessionsTotal: total,
		PurchasedAt: testNow, ExpiresAt: testNow.AddDate(0, 3, 0),
	}))
}

func TestStaffBookingComp(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAccount(t, "A1", account.RoleAthlete)
	h.addSlot(t, "S1", 1)
	h.addService(t)

	b, err := ExecuteStaffBooking(ctx, StaffBookingInput{
		Caller: callerAs("C1", account.RoleCoach), AthleteID: "A1", ServiceID: "SV1", SlotID: "S1",
	}, h.staffBookingDeps())
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, booking.MethodComp, b.PaymentMethod)
	assert.Equal(t, booking.StatusConfirmed, b.Status)
	assert.Equal(t, "Main gym", b.Location)

	sl, err := h.Slots.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, sl.CurrentBookings)
	assert.False(t, sl.IsAvailable)

	h.addAccount(t, "A2", account.RoleAthlete)
	_, err = ExecuteStaffBooking(ctx, StaffBookingInput{
		Caller: callerAs("C1", account.RoleCoach), AthleteID: "A2", ServiceID: "SV1", SlotID: "S1",
	}, h.staffBookingDeps())
	assert.ErrorIs(t, err, slot.ErrSlotFull)
}

func TestStaffBookingDeductsPackageSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAccount(t, "A1", account.RoleAthlete)
	h.addSlot(t, "S1", 3)
	h.addSlot(t, "S2", 3)
	h.addService(t)
	h.addAthletePackage(t, "AP1", "A1", 1)

	b, err := ExecuteStaffBooking(ctx, StaffBookingInput{
		Caller: callerAs("C1", account.RoleCoach), AthleteID: "A1", ServiceID: "SV1", SlotID: "S1", AthletePackageID: "AP1",
	}, h.staffBookingDeps())
	require.NoError(t, err)
	assert.Equal(t, booking.PaymentPaid, b.PaymentStatus)
	assert.Equal(t, booking.MethodPackage, b.PaymentMethod)

	ap, err := h.Catalog.GetAthletePackage(ctx, "AP1")
	require.NoError(t, err)
	assert.Equal(t, 1, ap.SessionsUsed)

	_, err = ExecuteStaffBooking(ctx, StaffBookingInput{
		Caller: callerAs("C1", account.RoleCoach), AthleteID: "A1", ServiceID: "SV1", SlotID: "S2", AthletePackageID: "AP1",
	}, h.staffBookingDeps())
	require.ErrorIs(t, err, catalog.ErrPackageExhausted)

	sl, err := h.Slots.GetByID(ctx, "S2")
	require.NoError(t, err)
	assert.Zero(t, sl.CurrentBookings, "an exhausted package leaves the slot untouched")
}

func TestStaffBookingRefusals(t *testing.T) {
	tests := []struct {
		name  string
		input StaffBookingInput
		want  error
	}{
		{name: "athlete caller", input: StaffBookingInput{Caller: callerAs("A1", account.RoleAthlete), AthleteID: "A1", ServiceID: "SV1", SlotID: "S1"}, want: ErrStaffOnly},
		{name: "coach as athlete", input: StaffBookingInput{Caller: callerAs("C1", account.RoleCoach), AthleteID: "C2", ServiceID: "SV1", SlotID: "S1"}, want: ErrNotAnAthlete},
		{name: "foreign package", input: StaffBookingInput{Caller: callerAs("C1", account.RoleCoach), AthleteID: "A1", ServiceID: "SV1", SlotID: "S1", AthletePackageID: "AP2"}, want: ErrPackageNotOwned},
		{name: "unknown slot", input: StaffBookingInput{Caller: callerAs("C1", account.RoleCoach), AthleteID: "A1", ServiceID: "SV1", SlotID: "nope"}, want: slot.ErrSlotNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.addAccount(t, "A1", account.RoleAthlete)
			h.addAccount(t, "A2", account.RoleAthlete)
			h.addAccount(t, "C2", account.RoleCoach)
			h.addSlot(t, "S1", 2)
			h.addService(t)
			h.addAthletePackage(t, "AP2", "A2", 5)

			_, err := ExecuteStaffBooking(context.Background(), tt.input, h.staffBookingDeps())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStaffBookingWhileSimulatingIsLogged(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addAccount(t, "A1", account.RoleAthlete)
	h.addSlot(t, "S1", 2)
	h.addService(t)
	require.NoError(t, h.Simulations.Create(ctx, simulation.Session{
		ID: "SIM1", AdminID: "AD1", Role: account.RoleCoach, Status: simulation.StatusActive,
		StartedAt: testNow, ExpiresAt: testNow.Add(time.Hour),
	}))
	caller := identity.Resolve("AD1", account.RoleAdmin, nil,
		&identity.Simulation{SessionID: "SIM1", Role: account.RoleCoach, ExpiresAt: testNow.Add(time.Hour)}, testNow)

	b, err := ExecuteStaffBooking(ctx, StaffBookingInput{Caller: caller, AthleteID: "A1", ServiceID: "SV1", SlotID: "S1"}, h.staffBookingDeps())
	require.NoError(t, err)

	log, err := h.Simulations.ListLog(ctx, "SIM1")
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, b.ID, log[0].RecordID)
}

func TestUpdateBookingStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.bookedSlot(t)

	done, err := ExecuteUpdateBookingStatus(ctx, UpdateBookingStatusInput{
		Caller: callerAs("C1", account.RoleCoach), BookingID: b.ID, Status: booking.StatusCompleted,
	}, h.statusDeps())
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCompleted, done.Status)

	sl, err := h.Slots.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 1, sl.CurrentBookings, "completion keeps the place")

	_, err = ExecuteUpdateBookingStatus(ctx, UpdateBookingStatusInput{
		Caller: callerAs("C1", account.RoleCoach), BookingID: b.ID, Status: booking.StatusCancelled,
	}, h.statusDeps())
	assert.ErrorIs(t, err, booking.ErrInvalidTransition)
}

func TestAthleteCancelsOwnBooking(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	b := h.bookedSlot(t)

	_, err := ExecuteUpdateBookingStatus(ctx, UpdateBookingStatusInput{
		Caller: athleteCaller("A9"), BookingID: b.ID, Status: booking.StatusCancelled,
	}, h.statusDeps())
	require.ErrorIs(t, err, ErrNotBookingOwner)

	_, err = ExecuteUpdateBookingStatus(ctx, UpdateBookingStatusInput{
		Caller: athleteCaller("A1"), BookingID: b.ID, Status: booking.StatusCompleted,
	}, h.statusDeps())
	require.ErrorIs(t, err, ErrAthleteCancelled)

	cancelled, err := ExecuteUpdateBookingStatus(ctx, UpdateBookingStatusInput{
		Caller: athleteCaller("A1"), BookingID: b.ID, Status: booking.StatusCancelled,
	}, h.statusDeps())
	require.NoError(t, err)
	assert.Equal(t, booking.StatusCancelled, cancelled.Status)

	sl, err := h.Slots.GetByID(ctx, "S1")
	require.NoError(t, err)
	assert.Zero(t, sl.CurrentBookings)
	assert.True(t, sl.IsAvailable)
}

func TestListBookingsScopesAthletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.bookedSlot(t)

	own, err := ExecuteListBookings(ctx, ListBookingsInput{Caller: athleteCaller("A1"), AthleteID: "A2"}, h.Bookings)
	require.NoError(t, err)
	assert.Len(t, own, 1)

	other, err := ExecuteListBookings(ctx, ListBookingsInput{Caller: athleteCaller("A2")}, h.Bookings)
	require.NoError(t, err)
	assert.Empty(t, other)

	byDay, err := ExecuteListBookings(ctx, ListBookingsInput{Caller: callerAs("C1", account.RoleCoach), Date: "2026-11-02"}, h.Bookings)
	require.NoError(t, err)
	assert.Len(t, byDay, 1)

	_, err = ExecuteListBookings(ctx, ListBookingsInput{Caller: callerAs("C1", account.RoleCoach)}, h.Bookings)
	assert.Error(t, err)
}
