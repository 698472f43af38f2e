package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/catalog"
)

// SQLiteStore implements the catalog Store using SQLite.
type SQLiteStore struct {
	db SQLDB
}

// NewSQLiteStore creates a new catalog store.
func NewSQLiteStore(db SQLDB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// GetService retrieves a service by ID.
func (s *SQLiteStore) GetService(ctx context.Context, id string) (domain.Service, error) {
	var svc domain.Service
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, price_cents, duration_minutes, active FROM service WHERE id = ?`, id).
		Scan(&svc.ID, &svc.Name, &svc.Description, &svc.PriceCents, &svc.DurationMinutes, &svc.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Service{}, domain.ErrServiceNotFound
	}
	return svc, err
}

// SaveService inserts or updates a service.
func (s *SQLiteStore) SaveService(ctx context.Context, svc domain.Service) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO service (id, name, description, price_cents, duration_minutes, active)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, description=excluded.description, price_cents=excluded.price_cents,
		   duration_minutes=excluded.duration_minutes, active=excluded.active`,
		svc.ID, svc.Name, svc.Description, svc.PriceCents, svc.DurationMinutes, svc.Active)
	return err
}

// GetPackage retrieves a package by ID.
func (s *SQLiteStore) GetPackage(ctx context.Context, id string) (domain.Package, error) {
	var p domain.Package
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, price_cents, sessions_included, validity_days, allow_installments FROM package WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.PriceCents, &p.SessionsIncluded, &p.ValidityDays, &p.AllowInstallments)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Package{}, domain.ErrPackageNotFound
	}
	return p, err
}

// SavePackage inserts or updates a package.
func (s *SQLiteStore) SavePackage(ctx context.Context, p domain.Package) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO package (id, name, price_cents, sessions_included, validity_days, allow_installments)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   name=excluded.name, price_cents=excluded.price_cents, sessions_included=excluded.sessions_included,
		   validity_days=excluded.validity_days, allow_installments=excluded.allow_installments`,
		p.ID, p.Name, p.PriceCents, p.SessionsIncluded, p.ValidityDays, p.AllowInstallments)
	return err
}

// GetTier retrieves a membership tier by ID.
func (s *SQLiteStore) GetTier(ctx context.Context, id string) (domain.MembershipTier, error) {
	var t domain.MembershipTier
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, monthly_price_cents FROM membership_tier WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &t.MonthlyPriceCents)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.MembershipTier{}, domain.ErrTierNotFound
	}
	return t, err
}

// SaveTier inserts or updates a membership tier.
func (s *SQLiteStore) SaveTier(ctx context.Context, t domain.MembershipTier) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO membership_tier (id, name, monthly_price_cents) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, monthly_price_cents=excluded.monthly_price_cents`,
		t.ID, t.Name, t.MonthlyPriceCents)
	return err
}

const athletePackageColumns = `id, athlete_id, package_id, sessions_total, sessions_used, purchased_at, expires_at,
	amount_cents, installments_total, stripe_checkout_session_id, stripe_payment_intent_id`

// CreateAthletePackage inserts a purchase. The unique index on the checkout
// session id makes a second insert for the same payment fail.
func (s *SQLiteStore) CreateAthletePackage(ctx context.Context, ap domain.AthletePackage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO athlete_package (`+athletePackageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ap.ID, ap.AthleteID, ap.PackageID, ap.SessionsTotal, ap.SessionsUsed,
		storage.FormatTime(ap.PurchasedAt), storage.FormatTime(ap.ExpiresAt),
		ap.AmountCents, ap.InstallmentsTotal, storage.NullString(ap.StripeCheckoutSessionID), ap.StripePaymentIntentID)
	if storage.UniqueViolationOn(err, "stripe_checkout_session_id") {
		return domain.ErrDuplicatePurchase
	}
	if err != nil {
		return fmt.Errorf("insert athlete package: %w", err)
	}
	return nil
}

// GetAthletePackage retrieves an athlete package by ID.
func (s *SQLiteStore) GetAthletePackage(ctx context.Context, id string) (domain.AthletePackage, error) {
	return s.getAthletePackage(ctx, `id = ?`, id)
}

// GetAthletePackageBySession retrieves the package bought through a checkout session.
func (s *SQLiteStore) GetAthletePackageBySession(ctx context.Context, sessionID string) (domain.AthletePackage, error) {
	return s.getAthletePackage(ctx, `stripe_checkout_session_id = ?`, sessionID)
}

func (s *SQLiteStore) getAthletePackage(ctx context.Context, where string, arg string) (domain.AthletePackage, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+athletePackageColumns+` FROM athlete_package WHERE `+where, arg)
	ap, err := scanAthletePackage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.AthletePackage{}, domain.ErrAthletePackageNotFound
	}
	return ap, err
}

// ListAthletePackages returns an athlete's packages, newest first.
func (s *SQLiteStore) ListAthletePackages(ctx context.Context, athleteID string) ([]domain.AthletePackage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+athletePackageColumns+` FROM athlete_package WHERE athlete_id = ? ORDER BY purchased_at DESC`, athleteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.AthletePackage
	for rows.Next() {
		ap, err := scanAthletePackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ap)
	}
	return out, rows.Err()
}

// DeleteAthletePackage removes an athlete package.
func (s *SQLiteStore) DeleteAthletePackage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM athlete_package WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete athlete package %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrAthletePackageNotFound
	}
	return nil
}

// UseSession consumes one session outside any caller transaction.
func (s *SQLiteStore) UseSession(ctx context.Context, id string, now time.Time) error {
	return UseSession(ctx, s.db, id, now)
}

// UseSession consumes one session with a conditional update so two
// concurrent staff bookings cannot both take the last session.
// POST: sessions_used incremented, or ErrAthletePackageNotFound / ErrPackageExpired / ErrPackageExhausted
func UseSession(ctx context.Context, q storage.Querier, id string, now time.Time) error {
	res, err := q.ExecContext(ctx,
		`UPDATE athlete_package SET sessions_used = sessions_used + 1
		 WHERE id = ? AND sessions_used < sessions_total AND expires_at > ?`,
		id, storage.FormatTime(now))
	if err != nil {
		return fmt.Errorf("use package session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 1 {
		return nil
	}

	var ap domain.AthletePackage
	var purchasedAt, expiresAt string
	err = q.QueryRowContext(ctx,
		`SELECT sessions_total, sessions_used, purchased_at, expires_at FROM athlete_package WHERE id = ?`, id).
		Scan(&ap.SessionsTotal, &ap.SessionsUsed, &purchasedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrAthletePackageNotFound
	}
	if err != nil {
		return fmt.Errorf("use package session %s: %w", id, err)
	}
	ap.ExpiresAt = storage.ParseTime(expiresAt)
	if ap.IsExpired(now) {
		return domain.ErrPackageExpired
	}
	return domain.ErrPackageExhausted
}

// ReturnSession gives a consumed session back, floored at zero.
func ReturnSession(ctx context.Context, q storage.Querier, id string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE athlete_package SET sessions_used = MAX(sessions_used - 1, 0) WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("return package session %s: %w", id, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAthletePackage(row scanner) (domain.AthletePackage, error) {
	var ap domain.AthletePackage
	var purchasedAt, expiresAt string
	var sessionID sql.NullString
	err := row.Scan(&ap.ID, &ap.AthleteID, &ap.PackageID, &ap.SessionsTotal, &ap.SessionsUsed,
		&purchasedAt, &expiresAt, &ap.AmountCents, &ap.InstallmentsTotal, &sessionID, &ap.StripePaymentIntentID)
	if err != nil {
		return domain.AthletePackage{}, err
	}
	ap.PurchasedAt = storage.ParseTime(purchasedAt)
	ap.ExpiresAt = storage.ParseTime(expiresAt)
	ap.StripeCheckoutSessionID = sessionID.String
	return ap, nil
}
