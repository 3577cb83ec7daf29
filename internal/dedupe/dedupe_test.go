package dedupe

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
)

func ptr(f float64) *float64 { return &f }

func TestRun_ExactDuplicateCollapse(t *testing.T) {
	cands := []model.Candidate{
		{NameLocal: "Apoteka Centar", Address: "Slobode 1, Podgorica", PlaceID: "g1", Source: model.SourceGoogle, Lat: ptr(42.44), Lng: ptr(19.26)},
		{NameLocal: "Apoteka Centar", Address: "SLOBODE 1, PODGORICA", PlaceID: "g1", Source: model.SourceGoogle, Lat: ptr(42.4401), Lng: ptr(19.2601)},
	}

	out, st := Run(cands)
	require.Len(t, out, 1)
	assert.Equal(t, "Slobode 1, Podgorica", out[0].Address)
	assert.Equal(t, "GOOGLE", out[0].Provenance)
	assert.Equal(t, Stats{Input: 2, ExactDropped: 1, Output: 1}, st)
}

func TestExact_Keys(t *testing.T) {
	cands := []model.Candidate{
		{NameLocal: "A", NativeType: "node", NativeID: "1", Lat: ptr(42.1), Lng: ptr(19.1)},
		{NameLocal: "B", NativeType: "node", NativeID: "1"},
		{NameLocal: "C", NativeType: "way", NativeID: "1"},
		{NameLocal: "D", Lat: ptr(42.100001), Lng: ptr(19.100001)},
		{NameLocal: "E", PlaceID: "p", Lat: ptr(42.2), Lng: ptr(19.2)},
		{NameLocal: "F"},
		{NameLocal: "G"},
	}
	out := Exact(cands)

	var names []string
	for _, c := range out {
		names = append(names, c.NameLocal)
	}
	assert.Equal(t, []string{"A", "C", "E", "F", "G"}, names)
}

func TestExact_DroppedCandidateRegistersNoKeys(t *testing.T) {
	cands := []model.Candidate{
		{NameLocal: "A", PlaceID: "p1"},
		// p1 dup; its coordinate key must not block the next one.
		{NameLocal: "B", PlaceID: "p1", Lat: ptr(42.5), Lng: ptr(19.5)},
		{NameLocal: "C", Lat: ptr(42.5), Lng: ptr(19.5)},
	}
	out := Exact(cands)
	require.Len(t, out, 2)
	assert.Equal(t, "C", out[1].NameLocal)
}

func TestFuzzy_NameBucketWithoutCoords(t *testing.T) {
	cands := []model.Candidate{
		{NameLocal: "BENU Apoteka", Source: model.SourceChain},
		{NameLocal: "Benu apoteka!", Source: model.SourceChain},
		{NameLocal: "Montefarm Budva", Source: model.SourceChain},
	}
	out := Fuzzy(cands)
	require.Len(t, out, 2)
	assert.Equal(t, "BENU Apoteka", out[0].NameLocal)
}

func TestRun_SortedByNormalizedName(t *testing.T) {
	cands := []model.Candidate{
		{NameLocal: "Zdravlje", Lat: ptr(42.3), Lng: ptr(19.3)},
		{NameLocal: "apoteka Lara", Lat: ptr(42.1), Lng: ptr(19.1)},
		{NameLocal: "Čarobna", Lat: ptr(42.2), Lng: ptr(19.2)},
	}
	out, _ := Run(cands)
	require.Len(t, out, 3)
	assert.Equal(t, "apoteka Lara", out[0].NameLocal)
	assert.Equal(t, "Čarobna", out[1].NameLocal)
	assert.Equal(t, "Zdravlje", out[2].NameLocal)
}

// Every pair in the output differs in place id, native key or coordinate key,
// or has names less than DuplicateThreshold similar.
func TestRun_NoDuplicateInvariant(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	names := []string{"Apoteka Centar", "APOTEKA CENTAR", "Montefarm", "BENU", "Sloboda", "Ljekarna Bar", "Galenika"}

	var cands []model.Candidate
	for i := 0; i < 400; i++ {
		c := model.Candidate{NameLocal: names[r.IntN(len(names))], Source: model.SourceGoogle}
		if r.IntN(3) > 0 {
			c.PlaceID = fmt.Sprintf("p%d", r.IntN(60))
		}
		if r.IntN(4) == 0 {
			c.NativeType, c.NativeID = "node", fmt.Sprint(r.IntN(40))
		}
		if r.IntN(5) > 0 {
			c.Lat, c.Lng = ptr(42+float64(r.IntN(50))*0.01), ptr(19+float64(r.IntN(3))*0.01)
		}
		cands = append(cands, c)
	}

	out, st := Run(cands)
	assert.Equal(t, st.Input-st.ExactDropped-st.FuzzyDropped, st.Output)

	for i := range out {
		for j := i + 1; j < len(out); j++ {
			a, b := out[i].Candidate, out[j].Candidate
			if a.PlaceID != "" {
				assert.NotEqual(t, a.PlaceID, b.PlaceID)
			}
			if a.NativeKey() != "" {
				assert.NotEqual(t, a.NativeKey(), b.NativeKey())
			}
			if ga := GeoKey(a); ga != "" {
				assert.NotEqual(t, ga, GeoKey(b))
			}
			if !a.HasCoords() && !b.HasCoords() {
				assert.Less(t, normalize.Similarity(a.NameLocal, b.NameLocal), normalize.DuplicateThreshold,
					"%q vs %q", a.NameLocal, b.NameLocal)
			}
		}
	}
}
