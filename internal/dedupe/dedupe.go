// Package dedupe collapses the raw candidate pool of one run into canonical
// entities: first by exact identity keys, then by name similarity inside a
// location bucket.
package dedupe

import (
	"sort"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
)

// Stats counts what each stage removed.
type Stats struct {
	Input        int `json:"input"`
	ExactDropped int `json:"exact_dropped"`
	FuzzyDropped int `json:"fuzzy_dropped"`
	Output       int `json:"output"`
}

// GeoKey returns the 5-decimal coordinate key, or "" without coordinates.
func GeoKey(c model.Candidate) string {
	if !c.HasCoords() {
		return ""
	}
	return geo.Point{Lat: *c.Lat, Lng: *c.Lng}.Key()
}

// Exact keeps the first candidate for every external place id, native
// (type, id) pair and coordinate key. A candidate is dropped if any one of its
// keys was already seen; a dropped candidate registers none of its keys.
func Exact(cands []model.Candidate) []model.Candidate {
	seenPlace := make(map[string]struct{})
	seenNative := make(map[string]struct{})
	seenGeo := make(map[string]struct{})

	out := make([]model.Candidate, 0, len(cands))
	for _, c := range cands {
		pid, nk, gk := c.PlaceID, c.NativeKey(), GeoKey(c)
		if hit(seenPlace, pid) || hit(seenNative, nk) || hit(seenGeo, gk) {
			continue
		}
		mark(seenPlace, pid)
		mark(seenNative, nk)
		mark(seenGeo, gk)
		out = append(out, c)
	}
	return out
}

// Fuzzy buckets candidates by coordinate key (normalized name when there are
// no coordinates) and, within each bucket sorted by normalized name, drops every
// candidate whose name is at least DuplicateThreshold similar to one already kept.
// Dropped candidates contribute no fields.
func Fuzzy(cands []model.Candidate) []model.Candidate {
	buckets := make(map[string][]model.Candidate)
	var order []string
	for _, c := range cands {
		k := GeoKey(c)
		if k == "" {
			k = "~" + normalize.Name(c.NameLocal)
		}
		if _, ok := buckets[k]; !ok {
			order = append(order, k)
		}
		buckets[k] = append(buckets[k], c)
	}

	out := make([]model.Candidate, 0, len(cands))
	for _, k := range order {
		items := buckets[k]
		sort.SliceStable(items, func(i, j int) bool {
			return normalize.Name(items[i].NameLocal) < normalize.Name(items[j].NameLocal)
		})

		var kept []model.Candidate
		for _, x := range items {
			dup := false
			for _, y := range kept {
				if normalize.Similarity(x.NameLocal, y.NameLocal) >= normalize.DuplicateThreshold {
					dup = true
					break
				}
			}
			if !dup {
				kept = append(kept, x)
			}
		}
		out = append(out, kept...)
	}
	return out
}

// Run applies Exact then Fuzzy and returns the canonical entities ordered by
// normalized name, with coordinate key and source as tie-breakers.
func Run(cands []model.Candidate) ([]model.Entity, Stats) {
	st := Stats{Input: len(cands)}

	exact := Exact(cands)
	st.ExactDropped = len(cands) - len(exact)

	fuzzy := Fuzzy(exact)
	st.FuzzyDropped = len(exact) - len(fuzzy)

	entities := make([]model.Entity, len(fuzzy))
	for i, c := range fuzzy {
		entities[i] = model.Entity{Candidate: c, Provenance: string(c.Source)}
	}
	sort.SliceStable(entities, func(i, j int) bool {
		a, b := normalize.Name(entities[i].NameLocal), normalize.Name(entities[j].NameLocal)
		if a != b {
			return a < b
		}
		ga, gb := GeoKey(entities[i].Candidate), GeoKey(entities[j].Candidate)
		if ga != gb {
			return ga < gb
		}
		return entities[i].Source < entities[j].Source
	})

	st.Output = len(entities)
	return entities, st
}

func hit(seen map[string]struct{}, k string) bool {
	if k == "" {
		return false
	}
	_, ok := seen[k]
	return ok
}

func mark(seen map[string]struct{}, k string) {
	if k != "" {
		seen[k] = struct{}{}
	}
}
