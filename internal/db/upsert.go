package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/model"
)

const cityUpsertSuffix = ` ON CONFLICT (slug) DO UPDATE SET
	name_me = EXCLUDED.name_me,
	name_en = EXCLUDED.name_en,
	updated_at = now()
WHERE cities.name_me IS DISTINCT FROM EXCLUDED.name_me
	OR cities.name_en IS DISTINCT FROM EXCLUDED.name_en`

// UpsertCities inserts the static city list in one statement, keyed by slug.
// Rows whose names are unchanged are left alone, so the returned count is the
// number of cities created or renamed. Repeated slugs keep the first entry.
func UpsertCities(ctx context.Context, pool Pool, cities []model.City) (int64, error) {
	seen := make(map[string]struct{}, len(cities))
	values := make([]string, 0, len(cities))
	args := make([]any, 0, 3*len(cities))
	for _, c := range cities {
		slug := strings.TrimSpace(c.Slug)
		if slug == "" {
			return 0, eris.New("db: upsert cities: empty slug")
		}
		if _, dup := seen[slug]; dup {
			continue
		}
		seen[slug] = struct{}{}

		n := len(args)
		values = append(values, fmt.Sprintf("($%d, $%d, $%d)", n+1, n+2, n+3))
		args = append(args, slug, c.NameME, c.NameEN)
	}
	if len(values) == 0 {
		return 0, nil
	}

	sql := "INSERT INTO cities (slug, name_me, name_en) VALUES " + strings.Join(values, ", ") + cityUpsertSuffix
	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert %d cities", len(values))
	}
	return tag.RowsAffected(), nil
}
