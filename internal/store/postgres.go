package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/db"
	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id         BIGSERIAL PRIMARY KEY,
	slug       TEXT NOT NULL UNIQUE,
	name_me    TEXT NOT NULL,
	name_en    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS pharmacies (
	id                   BIGSERIAL PRIMARY KEY,
	city_id              BIGINT NOT NULL REFERENCES cities(id) ON DELETE RESTRICT,
	name_me              TEXT NOT NULL,
	name_en              TEXT,
	name_key             TEXT NOT NULL DEFAULT '',
	address              TEXT NOT NULL,
	lat                  DOUBLE PRECISION NOT NULL,
	lng                  DOUBLE PRECISION NOT NULL,
	phone                TEXT,
	email                TEXT,
	website              TEXT,
	is_24h               BOOLEAN NOT NULL DEFAULT false,
	open_sunday          BOOLEAN NOT NULL DEFAULT false,
	hours_monfri         TEXT NOT NULL,
	hours_sat            TEXT NOT NULL,
	hours_sun            TEXT NOT NULL,
	opening_hours        TEXT,
	google_place_id      TEXT UNIQUE,
	google_rating        DOUBLE PRECISION,
	google_reviews_count INTEGER NOT NULL DEFAULT 0,
	source_type          TEXT NOT NULL DEFAULT '',
	reliability_score    INTEGER NOT NULL DEFAULT 0 CHECK (reliability_score BETWEEN 0 AND 100),
	active               BOOLEAN NOT NULL DEFAULT true,
	last_online_sync     TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS harvest_runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	city_slug  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_pharmacies_city_name ON pharmacies(city_id, name_key);
CREATE INDEX IF NOT EXISTS idx_pharmacies_city_latlng ON pharmacies(city_id, lat, lng);
CREATE INDEX IF NOT EXISTS idx_harvest_runs_city ON harvest_runs(city_slug);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) FindByExternalID(ctx context.Context, externalID string) (*model.Pharmacy, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE google_place_id = $1`, externalID)
	return pgOne(row, "find by external id")
}

func (s *PostgresStore) FindByCityAndName(ctx context.Context, cityID int64, nameKey string) (*model.Pharmacy, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE city_id = $1 AND name_key = $2 ORDER BY id LIMIT 1`,
		cityID, nameKey)
	return pgOne(row, "find by city and name")
}

func (s *PostgresStore) FindByBoundingBox(ctx context.Context, cityID int64, box geo.Box) ([]model.Pharmacy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies
		WHERE city_id = $1 AND lat BETWEEN $2 AND $3 AND lng BETWEEN $4 AND $5
		ORDER BY id`,
		cityID, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find by bounding box")
	}
	return pgAll(rows, "find by bounding box")
}

func (s *PostgresStore) ListByCity(ctx context.Context, cityID int64) ([]model.Pharmacy, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE city_id = $1 ORDER BY name_key, id`, cityID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list by city")
	}
	return pgAll(rows, "list by city")
}

func (s *PostgresStore) Create(ctx context.Context, p *model.Pharmacy) error {
	now := time.Now().UTC()
	args := append(writeArgs(p), now, now)
	err := s.pool.QueryRow(ctx,
		`INSERT INTO pharmacies (city_id, name_me, name_en, name_key, address, lat, lng,
			phone, email, website, is_24h, open_sunday, hours_monfri, hours_sat, hours_sun,
			opening_hours, google_place_id, google_rating, google_reviews_count, source_type,
			reliability_score, active, last_online_sync, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17,
			$18, $19, $20, $21, $22, $23, $24, $25)
		RETURNING id`,
		args...).Scan(&p.ID)
	if err != nil {
		return conflict(err, "postgres: insert pharmacy")
	}
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *PostgresStore) Update(ctx context.Context, p *model.Pharmacy) error {
	now := time.Now().UTC()
	args := append(writeArgs(p), now, p.ID)
	tag, err := s.pool.Exec(ctx,
		`UPDATE pharmacies SET city_id = $1, name_me = $2, name_en = $3, name_key = $4, address = $5,
			lat = $6, lng = $7, phone = $8, email = $9, website = $10, is_24h = $11, open_sunday = $12,
			hours_monfri = $13, hours_sat = $14, hours_sun = $15, opening_hours = $16, google_place_id = $17,
			google_rating = $18, google_reviews_count = $19, source_type = $20, reliability_score = $21,
			active = $22, last_online_sync = $23, updated_at = $24
		WHERE id = $25`,
		args...)
	if err != nil {
		return conflict(err, "postgres: update pharmacy")
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: pharmacy not found: %d", p.ID)
	}
	p.UpdatedAt = now
	return nil
}

func (s *PostgresStore) CountActive(ctx context.Context, cityID int64) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM pharmacies WHERE city_id = $1 AND active`, cityID).Scan(&n)
	return n, eris.Wrap(err, "postgres: count active")
}

func (s *PostgresStore) EnsureCity(ctx context.Context, c model.City) (*model.City, error) {
	var out model.City
	err := s.pool.QueryRow(ctx,
		`INSERT INTO cities (slug, name_me, name_en) VALUES ($1, $2, $3)
		ON CONFLICT (slug) DO UPDATE SET slug = EXCLUDED.slug
		RETURNING id, slug, name_me, name_en`,
		c.Slug, c.NameME, c.NameEN,
	).Scan(&out.ID, &out.Slug, &out.NameME, &out.NameEN)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: ensure city %s", c.Slug)
	}
	return &out, nil
}

// SyncCities upserts the static city list by slug.
func (s *PostgresStore) SyncCities(ctx context.Context, cities []model.City) (int64, error) {
	n, err := db.UpsertCities(ctx, s.pool, cities)
	return n, eris.Wrap(err, "postgres: sync cities")
}

func (s *PostgresStore) CityStatuses(ctx context.Context) ([]model.CityStatus, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT c.slug, c.name_en,
			COUNT(p.id) FILTER (WHERE p.active),
			MAX(p.last_online_sync)
		FROM cities c
		LEFT JOIN pharmacies p ON p.city_id = c.id
		GROUP BY c.id, c.slug, c.name_en
		ORDER BY c.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: city statuses")
	}
	defer rows.Close()

	var out []model.CityStatus
	for rows.Next() {
		var st model.CityStatus
		if err := rows.Scan(&st.Slug, &st.Name, &st.PharmacyCount, &st.LastSync); err != nil {
			return nil, eris.Wrap(err, "postgres: scan city status")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: city statuses iterate")
}

func (s *PostgresStore) CreateRun(ctx context.Context, citySlug string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO harvest_runs (id, city_slug, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		id, citySlug, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}
	return &model.Run{
		ID:        id,
		CitySlug:  citySlug,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal run result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE harvest_runs SET status = $1, result = $2, updated_at = $3 WHERE id = $4`,
		string(status), resultJSON, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run not found: %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var status string
	var result []byte
	err := s.pool.QueryRow(ctx,
		`SELECT id, city_slug, status, result, created_at, updated_at FROM harvest_runs WHERE id = $1`, runID,
	).Scan(&r.ID, &r.CitySlug, &status, &result, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	if len(result) > 0 {
		r.Result = json.RawMessage(result)
	}
	return &r, nil
}

func pgOne(row pgx.Row, op string) (*model.Pharmacy, error) {
	p, err := scanPharmacy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: %s", op)
	}
	return p, nil
}

func pgAll(rows pgx.Rows, op string) ([]model.Pharmacy, error) {
	defer rows.Close()

	var out []model.Pharmacy
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: %s scan", op)
		}
		out = append(out, *p)
	}
	return out, eris.Wrapf(rows.Err(), "postgres: %s iterate", op)
}
