// Package store persists pharmacies, cities and harvest runs in SQLite or
// Postgres.
package store

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

// ErrConflict is returned when a write violates a unique constraint, such as a
// second pharmacy with the same external place id.
var ErrConflict = eris.New("store: unique constraint violated")

// Store defines the persistence interface for harvest runs.
type Store interface {
	// Pharmacies. Find methods return (nil, nil) when nothing matches.
	FindByExternalID(ctx context.Context, externalID string) (*model.Pharmacy, error)
	FindByCityAndName(ctx context.Context, cityID int64, nameKey string) (*model.Pharmacy, error)
	FindByBoundingBox(ctx context.Context, cityID int64, box geo.Box) ([]model.Pharmacy, error)
	Create(ctx context.Context, p *model.Pharmacy) error
	Update(ctx context.Context, p *model.Pharmacy) error
	ListByCity(ctx context.Context, cityID int64) ([]model.Pharmacy, error)
	CountActive(ctx context.Context, cityID int64) (int, error)

	// Cities
	EnsureCity(ctx context.Context, c model.City) (*model.City, error)
	SyncCities(ctx context.Context, cities []model.City) (int64, error)
	CityStatuses(ctx context.Context) ([]model.CityStatus, error)

	// Runs
	CreateRun(ctx context.Context, citySlug string) (*model.Run, error)
	CompleteRun(ctx context.Context, runID string, status model.RunStatus, result any) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// IsConflict reports whether err is a unique constraint violation from either
// backend.
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// conflict tags unique violations with ErrConflict and wraps everything else.
func conflict(err error, msg string) error {
	if IsConflict(err) {
		return eris.Wrapf(ErrConflict, "%s: %v", msg, err)
	}
	return eris.Wrap(err, msg)
}

// pharmacyColumns is the column order shared by every SELECT.
const pharmacyColumns = `id, city_id, name_me, name_en, name_key, address, lat, lng,
	phone, email, website, is_24h, open_sunday, hours_monfri, hours_sat, hours_sun,
	opening_hours, google_place_id, google_rating, google_reviews_count, source_type,
	reliability_score, active, last_online_sync, created_at, updated_at`

type scannable interface {
	Scan(dest ...any) error
}

func scanPharmacy(row scannable) (*model.Pharmacy, error) {
	var p model.Pharmacy
	err := row.Scan(
		&p.ID, &p.CityID, &p.NameLocal, &p.NameSecondary, &p.NameKey, &p.Address, &p.Lat, &p.Lng,
		&p.Phone, &p.Email, &p.Website, &p.Is24h, &p.OpenSunday, &p.HoursMonFri, &p.HoursSat, &p.HoursSun,
		&p.OpeningHours, &p.ExternalID, &p.Rating, &p.ReviewCount, &p.SourceType,
		&p.Reliability, &p.Active, &p.LastOnlineSync, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// writeArgs returns the mutable columns in insert/update order:
// city_id through last_online_sync.
func writeArgs(p *model.Pharmacy) []any {
	return []any{
		p.CityID, p.NameLocal, p.NameSecondary, p.NameKey, p.Address, p.Lat, p.Lng,
		p.Phone, p.Email, p.Website, p.Is24h, p.OpenSunday, p.HoursMonFri, p.HoursSat, p.HoursSun,
		p.OpeningHours, p.ExternalID, p.Rating, p.ReviewCount, p.SourceType,
		p.Reliability, p.Active, p.LastOnlineSync,
	}
}
