package normalize

import (
	"strings"
	"unicode/utf8"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
)

// Input is a provider payload flattened to the fields every adapter can fill.
// Zero values mean "not provided".
type Input struct {
	Name         string
	NameEN       string
	Address      string
	City         string
	Lat          *float64
	Lng          *float64
	Phones       []string
	Emails       []string
	Website      string
	OpeningHours string
	Source       model.Source
	PlaceID      string
	NativeType   string
	NativeID     string
	CoordSource  model.Source
	Rating       *float64
	ReviewCount  int
}

// Reliability scores the completeness and trust of a raw payload in [0,100].
func Reliability(in Input) int {
	score := 50
	if joined(in.Phones) != "" {
		score += 15
	}
	if strings.TrimSpace(in.Website) != "" {
		score += 15
	}
	if utf8.RuneCountInString(in.Address) > 10 {
		score += 10
	}
	if strings.TrimSpace(in.OpeningHours) != "" {
		score += 10
	}
	if in.Source == model.SourceOSM {
		score += 10
	}
	if in.PlaceID != "" {
		score += 10
	}
	return min(100, max(0, score))
}

// Candidate maps in to the canonical candidate shape, filling defaults for
// missing names and address and classifying opening hours.
func Candidate(in Input) model.Candidate {
	name := Clean(in.Name)
	if name == "" {
		name = model.UnknownName
	}
	secondary := Clean(in.NameEN)
	if secondary == "" {
		secondary = name
	}
	addr := Clean(in.Address)
	if addr == "" {
		addr = model.UnknownAddress
	}

	c := model.Candidate{
		NameLocal:     name,
		NameSecondary: secondary,
		Address:       addr,
		CityHint:      Clean(in.City),
		Phone:         joined(in.Phones),
		Email:         joined(in.Emails),
		Website:       strings.TrimSpace(in.Website),
		OpeningHours:  strings.TrimSpace(in.OpeningHours),
		Hours:         ClassifyHours(in.OpeningHours),
		Source:        in.Source,
		PlaceID:       in.PlaceID,
		NativeType:    in.NativeType,
		NativeID:      in.NativeID,
		CoordSource:   in.CoordSource,
		Rating:        in.Rating,
		ReviewCount:   in.ReviewCount,
		Reliability:   Reliability(in),
	}
	if in.Lat != nil && in.Lng != nil {
		lat, lng := *in.Lat, *in.Lng
		c.Lat, c.Lng = &lat, &lng
	}
	return c
}

// ClipToBox drops coordinates that fall outside box so no candidate carries a
// position outside the country. The candidate itself is kept.
func ClipToBox(cands []model.Candidate, box geo.Box) int {
	if !box.Valid() {
		return 0
	}
	dropped := 0
	for i := range cands {
		c := &cands[i]
		if !c.HasCoords() {
			continue
		}
		if !box.Contains(geo.Point{Lat: *c.Lat, Lng: *c.Lng}) {
			c.Lat, c.Lng = nil, nil
			dropped++
		}
	}
	return dropped
}

func joined(vals []string) string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, ", ")
}
