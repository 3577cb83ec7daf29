package geo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"
)

type fixedTess struct {
	points []Point
}

func (f fixedTess) Centroids(_ *geom.Polygon) []Point { return f.points }

func podgorica() Area {
	return Area{Center: Point{Lat: 42.4304, Lng: 19.2594}, RadiusM: 15000}
}

func TestBaseline_QueryShape(t *testing.T) {
	p := NewPlanner(DefaultPlanConfig(), nil)
	qs := p.Baseline(podgorica())

	// 1 unkeyworded + 2 langs x 5 keywords + 25 municipalities x 2 langs x 6 terms.
	require.Len(t, qs, 1+10+300)

	assert.Equal(t, Nearby, qs[0].Mode)
	assert.Empty(t, qs[0].Keyword)
	assert.Equal(t, 15000, qs[0].RadiusM)
	assert.Equal(t, "sr", qs[0].Lang)

	assert.Equal(t, "apoteka", qs[1].Keyword)
	assert.Equal(t, "hr", qs[6].Lang)

	text := qs[11]
	assert.Equal(t, Text, text.Mode)
	assert.Equal(t, "Montefarm Andrijevica", text.Text)
}

func TestNeedsCountrySweep(t *testing.T) {
	p := NewPlanner(DefaultPlanConfig(), nil)
	assert.True(t, p.NeedsCountrySweep(14))
	assert.False(t, p.NeedsCountrySweep(15))
}

func TestCountry_OneQueryPerCentroid(t *testing.T) {
	tess := fixedTess{points: []Point{{Lat: 42, Lng: 19}, {Lat: 42.1, Lng: 19.1}}}
	p := NewPlanner(DefaultPlanConfig(), tess)

	qs := p.Country(Box{MinLat: 41, MinLng: 18, MaxLat: 43, MaxLng: 20}.Polygon())
	require.Len(t, qs, 2)
	for i, q := range qs {
		assert.Equal(t, Nearby, q.Mode)
		assert.Equal(t, tess.points[i], q.Center)
		assert.Equal(t, 2000, q.RadiusM)
		assert.Empty(t, q.Keyword)
	}

	assert.Nil(t, p.Country(nil))
}

func TestExpansion_CapsSeedCount(t *testing.T) {
	cfg := DefaultPlanConfig()
	cfg.MaxExpansionSeeds = 5
	p := NewPlanner(cfg, nil)

	seeds := make([]Point, 0, 10*cfg.MaxExpansionSeeds)
	for i := 0; i < 10*cfg.MaxExpansionSeeds; i++ {
		seeds = append(seeds, Point{Lat: 42 + float64(i)*0.001, Lng: 19})
	}

	groups := p.Expansion(seeds)
	require.Len(t, groups, cfg.MaxExpansionSeeds)

	unkeyworded := 0
	for _, g := range groups {
		require.Len(t, g.Queries, 1+cfg.ExpansionKeywords)
		for _, q := range g.Queries {
			assert.Equal(t, 800, q.RadiusM)
			assert.Equal(t, g.Seed, q.Center)
			if q.Keyword == "" {
				unkeyworded++
			}
		}
	}
	assert.Equal(t, cfg.MaxExpansionSeeds, unkeyworded)
}

func TestExpansion_SkipsDuplicateSeeds(t *testing.T) {
	p := NewPlanner(DefaultPlanConfig(), nil)
	s := Point{Lat: 42.123456, Lng: 19.654321}
	groups := p.Expansion([]Point{s, s, {Lat: 42.1234561, Lng: 19.6543211}})
	assert.Len(t, groups, 1)
}

func TestOptional(t *testing.T) {
	p := NewPlanner(DefaultPlanConfig(), nil)
	q := p.Optional(podgorica())
	assert.Equal(t, Nearby, q.Mode)
	assert.Equal(t, "pharmacy", q.Keyword)
	assert.Equal(t, 15000, q.RadiusM)
}

func TestModeString(t *testing.T) {
	for m, want := range map[Mode]string{Nearby: "nearby", Text: "text", Country: "country", Mode(0): "unknown"} {
		assert.Equal(t, want, m.String(), fmt.Sprint(int(m)))
	}
}
