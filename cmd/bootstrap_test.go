package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmacy-harvester/internal/harvest"
	"github.com/sells-group/pharmacy-harvester/internal/reconcile"
	"github.com/sells-group/pharmacy-harvester/internal/registry"
)

type mapSyncer map[string]struct {
	res *harvest.Result
	err error
}

func (m mapSyncer) Sync(_ context.Context, slug string) (*harvest.Result, error) {
	r := m[slug]
	return r.res, r.err
}

func TestRunBootstrap(t *testing.T) {
	dir := t.TempDir()
	cities := []registry.City{
		{Slug: "bar", NameEN: "Bar"},
		{Slug: "ghost", NameEN: "Ghost"},
		{Slug: "kolasin", NameEN: "Kolasin"},
	}
	syncer := mapSyncer{
		"bar": {res: &harvest.Result{
			OnlineCount: 2, Created: 1, Updated: 1,
			Pharmacies: []reconcile.Action{
				{Name: "Apoteka Bar", Action: reconcile.ActionCreated, Lat: 42.1, Lng: 19.1, Reliability: 80},
				{Name: "Benu Bar", Action: reconcile.ActionUpdated, Lat: 42.2, Lng: 19.2, Reliability: 90},
			},
		}},
		"ghost": {
			res: &harvest.Result{State: harvest.StateFailed, Pharmacies: []reconcile.Action{}},
			err: eris.Wrap(harvest.ErrMissingCity, "harvest: \"ghost\""),
		},
		"kolasin": {res: &harvest.Result{Warning: harvest.NoResultsWarning, Pharmacies: []reconcile.Action{}}},
	}

	clock := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	var progress bytes.Buffer

	sum, err := runBootstrap(context.Background(), syncer, cities, bootstrapOptions{
		ExportDir: dir,
		XLSX:      true,
		Now:       now,
		Progress:  &progress,
	})
	require.NoError(t, err)
	require.Len(t, sum.Cities, 3)

	online, created, updated, errs := sum.Totals()
	assert.Equal(t, 2, online)
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 1, errs)
	assert.Equal(t, harvest.NoResultsWarning, sum.Cities[2].Message)
	assert.Equal(t, 3, strings.Count(progress.String(), "\n"))

	bar, err := os.ReadFile(filepath.Join(dir, "city_logs", "bar.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(bar), "bar | CREATED | Apoteka Bar | 42.1,19.1")
	assert.Contains(t, string(bar), "bar | UPDATED | Benu Bar")

	ghost, err := os.ReadFile(filepath.Join(dir, "city_logs", "ghost.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(ghost), "ghost | ERROR | Ghost | "))

	_, err = os.Stat(filepath.Join(dir, "city_logs", "kolasin.txt"))
	assert.True(t, os.IsNotExist(err))

	summaries, _ := filepath.Glob(filepath.Join(dir, "pharmacies_summary_*.txt"))
	assert.Len(t, summaries, 1)
	workbooks, _ := filepath.Glob(filepath.Join(dir, "pharmacies_*.xlsx"))
	assert.Len(t, workbooks, 1)
}

func TestRunBootstrap_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sum, err := runBootstrap(ctx, mapSyncer{}, []registry.City{{Slug: "bar"}}, bootstrapOptions{ExportDir: t.TempDir()})
	require.NoError(t, err)
	assert.Empty(t, sum.Cities)
}
