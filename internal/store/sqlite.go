package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer keeps match-then-insert sequences serialized.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS cities (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	slug       TEXT NOT NULL UNIQUE,
	name_me    TEXT NOT NULL,
	name_en    TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS pharmacies (
	id                   INTEGER PRIMARY KEY AUTOINCREMENT,
	city_id              INTEGER NOT NULL REFERENCES cities(id),
	name_me              TEXT NOT NULL,
	name_en              TEXT,
	name_key             TEXT NOT NULL DEFAULT '',
	address              TEXT NOT NULL,
	lat                  REAL NOT NULL,
	lng                  REAL NOT NULL,
	phone                TEXT,
	email                TEXT,
	website              TEXT,
	is_24h               INTEGER NOT NULL DEFAULT 0,
	open_sunday          INTEGER NOT NULL DEFAULT 0,
	hours_monfri         TEXT NOT NULL,
	hours_sat            TEXT NOT NULL,
	hours_sun            TEXT NOT NULL,
	opening_hours        TEXT,
	google_place_id      TEXT UNIQUE,
	google_rating        REAL,
	google_reviews_count INTEGER NOT NULL DEFAULT 0,
	source_type          TEXT NOT NULL DEFAULT '',
	reliability_score    INTEGER NOT NULL DEFAULT 0,
	active               INTEGER NOT NULL DEFAULT 1,
	last_online_sync     DATETIME,
	created_at           DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at           DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS harvest_runs (
	id         TEXT PRIMARY KEY,
	city_slug  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_pharmacies_city_name ON pharmacies(city_id, name_key);
CREATE INDEX IF NOT EXISTS idx_pharmacies_city_latlng ON pharmacies(city_id, lat, lng);
CREATE INDEX IF NOT EXISTS idx_harvest_runs_city ON harvest_runs(city_slug);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) FindByExternalID(ctx context.Context, externalID string) (*model.Pharmacy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE google_place_id = ?`, externalID)
	return sqliteOne(row, "find by external id")
}

func (s *SQLiteStore) FindByCityAndName(ctx context.Context, cityID int64, nameKey string) (*model.Pharmacy, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE city_id = ? AND name_key = ? ORDER BY id LIMIT 1`,
		cityID, nameKey)
	return sqliteOne(row, "find by city and name")
}

func (s *SQLiteStore) FindByBoundingBox(ctx context.Context, cityID int64, box geo.Box) ([]model.Pharmacy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies
		WHERE city_id = ? AND lat BETWEEN ? AND ? AND lng BETWEEN ? AND ?
		ORDER BY id`,
		cityID, box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: find by bounding box")
	}
	return sqliteAll(rows, "find by bounding box")
}

func (s *SQLiteStore) ListByCity(ctx context.Context, cityID int64) ([]model.Pharmacy, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+pharmacyColumns+` FROM pharmacies WHERE city_id = ? ORDER BY name_key, id`, cityID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list by city")
	}
	return sqliteAll(rows, "list by city")
}

func (s *SQLiteStore) Create(ctx context.Context, p *model.Pharmacy) error {
	now := time.Now().UTC()
	args := append(writeArgs(p), now, now)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pharmacies (city_id, name_me, name_en, name_key, address, lat, lng,
			phone, email, website, is_24h, open_sunday, hours_monfri, hours_sat, hours_sun,
			opening_hours, google_place_id, google_rating, google_reviews_count, source_type,
			reliability_score, active, last_online_sync, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		return conflict(err, "sqlite: insert pharmacy")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return eris.Wrap(err, "sqlite: last insert id")
	}
	p.ID = id
	p.CreatedAt, p.UpdatedAt = now, now
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, p *model.Pharmacy) error {
	now := time.Now().UTC()
	args := append(writeArgs(p), now, p.ID)
	res, err := s.db.ExecContext(ctx,
		`UPDATE pharmacies SET city_id = ?, name_me = ?, name_en = ?, name_key = ?, address = ?,
			lat = ?, lng = ?, phone = ?, email = ?, website = ?, is_24h = ?, open_sunday = ?,
			hours_monfri = ?, hours_sat = ?, hours_sun = ?, opening_hours = ?, google_place_id = ?,
			google_rating = ?, google_reviews_count = ?, source_type = ?, reliability_score = ?,
			active = ?, last_online_sync = ?, updated_at = ?
		WHERE id = ?`,
		args...)
	if err != nil {
		return conflict(err, "sqlite: update pharmacy")
	}
	if err := checkRowsAffected(res, "pharmacy", p.ID); err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) CountActive(ctx context.Context, cityID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pharmacies WHERE city_id = ? AND active = 1`, cityID).Scan(&n)
	return n, eris.Wrap(err, "sqlite: count active")
}

func (s *SQLiteStore) EnsureCity(ctx context.Context, c model.City) (*model.City, error) {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cities (slug, name_me, name_en) VALUES (?, ?, ?) ON CONFLICT(slug) DO NOTHING`,
		c.Slug, c.NameME, c.NameEN)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: ensure city %s", c.Slug)
	}

	var out model.City
	err = s.db.QueryRowContext(ctx,
		`SELECT id, slug, name_me, name_en FROM cities WHERE slug = ?`, c.Slug,
	).Scan(&out.ID, &out.Slug, &out.NameME, &out.NameEN)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get city %s", c.Slug)
	}
	return &out, nil
}

// SyncCities upserts the static city list by slug.
func (s *SQLiteStore) SyncCities(ctx context.Context, cities []model.City) (int64, error) {
	var n int64
	for _, c := range cities {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO cities (slug, name_me, name_en) VALUES (?, ?, ?)
			ON CONFLICT(slug) DO UPDATE SET name_me = excluded.name_me, name_en = excluded.name_en,
				updated_at = datetime('now')`,
			c.Slug, c.NameME, c.NameEN)
		if err != nil {
			return n, eris.Wrapf(err, "sqlite: sync city %s", c.Slug)
		}
		affected, _ := res.RowsAffected()
		n += affected
	}
	return n, nil
}

func (s *SQLiteStore) CityStatuses(ctx context.Context) ([]model.CityStatus, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.slug, c.name_en,
			COALESCE(SUM(CASE WHEN p.active = 1 THEN 1 ELSE 0 END), 0),
			MAX(p.last_online_sync)
		FROM cities c
		LEFT JOIN pharmacies p ON p.city_id = c.id
		GROUP BY c.id, c.slug, c.name_en
		ORDER BY c.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: city statuses")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CityStatus
	for rows.Next() {
		var st model.CityStatus
		var last sql.NullString
		if err := rows.Scan(&st.Slug, &st.Name, &st.PharmacyCount, &last); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan city status")
		}
		// MAX() drops the column type, so the timestamp comes back as text.
		if last.Valid {
			if t, ok := parseSQLiteTime(last.String); ok {
				st.LastSync = &t
			}
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: city statuses iterate")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, citySlug string) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO harvest_runs (id, city_slug, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		id, citySlug, string(model.RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}
	return &model.Run{
		ID:        id,
		CitySlug:  citySlug,
		Status:    model.RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, status model.RunStatus, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal run result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE harvest_runs SET status = ?, result = ?, updated_at = ? WHERE id = ?`,
		string(status), string(resultJSON), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Errorf("sqlite: run not found: %s", runID)
	}
	return nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	var r model.Run
	var status string
	var result sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, city_slug, status, result, created_at, updated_at FROM harvest_runs WHERE id = ?`, runID,
	).Scan(&r.ID, &r.CitySlug, &status, &result, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	r.Status = model.RunStatus(status)
	if result.Valid {
		r.Result = json.RawMessage(result.String)
	}
	return &r, nil
}

func sqliteOne(row *sql.Row, op string) (*model.Pharmacy, error) {
	p, err := scanPharmacy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: %s", op)
	}
	return p, nil
}

func sqliteAll(rows *sql.Rows, op string) ([]model.Pharmacy, error) {
	defer rows.Close() //nolint:errcheck

	var out []model.Pharmacy
	for rows.Next() {
		p, err := scanPharmacy(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: %s scan", op)
		}
		out = append(out, *p)
	}
	return out, eris.Wrapf(rows.Err(), "sqlite: %s iterate", op)
}

func checkRowsAffected(res sql.Result, entity string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %d", entity, id)
	}
	return nil
}

var sqliteTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
}

func parseSQLiteTime(s string) (time.Time, bool) {
	for _, layout := range sqliteTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
