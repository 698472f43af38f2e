package catalog

import (
	"context"
	"time"

	"studio/internal/adapters/storage"
	domain "studio/internal/domain/catalog"
)

// Store defines persistence for the studio's catalog and athlete packages.
type Store interface {
	GetService(ctx context.Context, id string) (domain.Service, error)
	SaveService(ctx context.Context, s domain.Service) error
	GetPackage(ctx context.Context, id string) (domain.Package, error)
	SavePackage(ctx context.Context, p domain.Package) error
	GetTier(ctx context.Context, id string) (domain.MembershipTier, error)
	SaveTier(ctx context.Context, t domain.MembershipTier) error

	// CreateAthletePackage records a purchase.
	// POST: Row inserted, or domain.ErrDuplicatePurchase when the checkout
	// session id is already recorded
	CreateAthletePackage(ctx context.Context, ap domain.AthletePackage) error
	GetAthletePackage(ctx context.Context, id string) (domain.AthletePackage, error)
	GetAthletePackageBySession(ctx context.Context, sessionID string) (domain.AthletePackage, error)
	ListAthletePackages(ctx context.Context, athleteID string) ([]domain.AthletePackage, error)
	DeleteAthletePackage(ctx context.Context, id string) error

	// UseSession consumes one session of an athlete package.
	UseSession(ctx context.Context, id string, now time.Time) error
}

var _ Store = (*SQLiteStore)(nil)

// SQLDB is the database handle the catalog store needs.
type SQLDB interface {
	storage.SQLDB
}
