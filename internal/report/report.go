// Package report writes the bootstrap artifacts: per-city action logs, the
// run summary text block and an optional XLSX workbook.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/harvest"
	"github.com/sells-group/pharmacy-harvester/internal/reconcile"
)

// CityLogDir is the subdirectory of the export dir holding per-city logs.
const CityLogDir = "city_logs"

// CitySummary is the outcome of one city in a bootstrap.
type CitySummary struct {
	Slug     string        `json:"citySlug"`
	Name     string        `json:"cityName"`
	Online   int           `json:"onlineDiscovered"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Errors   int           `json:"errors"`
	Duration time.Duration `json:"duration"`
	Message  string        `json:"message,omitempty"`
}

// FromResult summarizes a sync result. err is the sync error, if any.
func FromResult(slug, name string, res *harvest.Result, err error, d time.Duration) CitySummary {
	cs := CitySummary{Slug: slug, Name: name, Duration: d}
	if res != nil {
		cs.Online, cs.Created, cs.Updated, cs.Errors = res.OnlineCount, res.Created, res.Updated, res.Errors
		if res.Warning != "" {
			cs.Message = res.Warning
		}
	}
	if err != nil {
		cs.Errors++
		cs.Message = "Failed: " + err.Error()
	}
	return cs
}

// Line formats one reconciled action:
// slug | ACTION | name | lat,lng | address | phone | website | external_id | R=reliability
func Line(slug string, a reconcile.Action) string {
	if a.Action == reconcile.ActionError {
		return strings.Join([]string{slug, "ERROR", squash(a.Name), a.Error}, " | ")
	}
	return strings.Join([]string{
		slug,
		strings.ToUpper(a.Action),
		squash(a.Name),
		strconv.FormatFloat(a.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(a.Lng, 'f', -1, 64),
		squash(a.Address),
		a.Phone,
		a.Website,
		a.ExternalID,
		fmt.Sprintf("R=%d", a.Reliability),
	}, " | ")
}

// Lines formats every action of a result.
func Lines(slug string, actions []reconcile.Action) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, Line(slug, a))
	}
	return out
}

// AppendCityLog appends lines to <dir>/city_logs/<slug>.txt.
func AppendCityLog(dir, slug string, lines []string) error {
	if len(lines) == 0 {
		return nil
	}
	logDir := filepath.Join(dir, CityLogDir)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return eris.Wrapf(err, "report: create %s", logDir)
	}
	path := filepath.Join(logDir, slug+".txt")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return eris.Wrapf(err, "report: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	if _, err := f.WriteString(strings.Join(lines, "\n") + "\n"); err != nil {
		return eris.Wrapf(err, "report: write %s", path)
	}
	return nil
}

// Summary is the whole bootstrap outcome.
type Summary struct {
	Cities   []CitySummary `json:"cities"`
	Duration time.Duration `json:"duration"`
}

// Totals returns the summed counts over all cities.
func (s Summary) Totals() (online, created, updated, errors int) {
	for _, c := range s.Cities {
		online += c.Online
		created += c.Created
		updated += c.Updated
		errors += c.Errors
	}
	return online, created, updated, errors
}

// Text renders the summary block.
func (s Summary) Text(now time.Time) string {
	online, created, updated, errors := s.Totals()

	var b strings.Builder
	b.WriteString("# Pharmacy bootstrap summary\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", now.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Cities: %d\n", len(s.Cities))
	fmt.Fprintf(&b, "Discovered online: %d\n", online)
	fmt.Fprintf(&b, "Created: %d\n", created)
	fmt.Fprintf(&b, "Updated: %d\n", updated)
	fmt.Fprintf(&b, "Errors: %d\n", errors)
	fmt.Fprintf(&b, "Duration(s): %d\n", int(s.Duration.Round(time.Second).Seconds()))
	b.WriteString("\n## Per-city\n")
	for _, c := range s.Cities {
		parts := []string{
			c.Slug,
			fmt.Sprintf("online=%d", c.Online),
			fmt.Sprintf("created=%d", c.Created),
			fmt.Sprintf("updated=%d", c.Updated),
			fmt.Sprintf("errors=%d", c.Errors),
			fmt.Sprintf("t=%ds", int(c.Duration.Round(time.Second).Seconds())),
		}
		if c.Message != "" {
			parts = append(parts, "msg="+c.Message)
		}
		b.WriteString(strings.Join(parts, " | "))
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "\nNote: Detailed per-city lines are saved in %s/*.txt", CityLogDir)
	return b.String()
}

// WriteSummary writes text to <dir>/pharmacies_summary_<ts>.txt and returns the path.
func WriteSummary(dir, text string, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", eris.Wrapf(err, "report: create %s", dir)
	}
	ts := strings.NewReplacer(":", "-", ".", "-").Replace(now.UTC().Format("2006-01-02T15:04:05.000Z"))
	path := filepath.Join(dir, "pharmacies_summary_"+ts+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", eris.Wrapf(err, "report: write %s", path)
	}
	return path, nil
}

func squash(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
