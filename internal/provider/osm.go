package provider

import (
	"context"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/pkg/overpass"
)

// FallbackBounds is used when the country relation bounds cannot be fetched.
var FallbackBounds = geo.Box{MinLat: 41.85, MinLng: 18.40, MaxLat: 43.60, MaxLng: 20.35}

// OSM scans the whole country through a prioritized list of Overpass mirrors.
// The first mirror that answers wins; the rest are not tried. Each mirror has
// its own breaker so a dead mirror cannot block the healthy ones behind it.
type OSM struct {
	mirrors []overpass.Client
	callers []*Caller
	iso     string
	log     *zap.Logger
}

// NewOSM creates the Overpass adapter for an ISO 3166-1 country code.
func NewOSM(mirrors []overpass.Client, caller *Caller, iso string) *OSM {
	if caller == nil {
		caller = NewCaller("osm", CallerOptions{})
	}
	callers := make([]*Caller, len(mirrors))
	for i, m := range mirrors {
		callers[i] = caller.ForEndpoint(m.Endpoint())
	}
	return &OSM{
		mirrors: mirrors,
		callers: callers,
		iso:     iso,
		log:     zap.L().With(zap.String("component", "provider"), zap.String("provider", "osm")),
	}
}

func (o *OSM) Name() string                { return "osm" }
func (o *OSM) Source() model.Source        { return model.SourceOSM }
func (o *OSM) Enabled() bool               { return len(o.mirrors) > 0 && o.iso != "" }
func (o *OSM) Supports(mode geo.Mode) bool { return mode == geo.Country }

// Search runs the whole-country pharmacy query.
func (o *OSM) Search(ctx context.Context, q geo.Query) []model.Candidate {
	if !o.Enabled() || q.Mode != geo.Country {
		return nil
	}

	resp, err := o.query(ctx, overpass.PharmacyQuery(o.iso))
	if err != nil {
		o.log.Warn("osm: country scan failed", zap.Stringer("mode", q.Mode), zap.Error(err))
		return nil
	}

	out := make([]model.Candidate, 0, len(resp.Elements))
	for _, el := range resp.Elements {
		lat, lon, ok := el.Position()
		if !ok {
			continue
		}
		t := el.Tags
		in := normalize.Input{
			Name:         t["name"],
			NameEN:       t["name:en"],
			Address:      strings.TrimSpace(t["addr:street"] + " " + t["addr:housenumber"]),
			City:         t["addr:city"],
			Lat:          &lat,
			Lng:          &lon,
			Website:      firstNonEmpty(t["website"], t["contact:website"]),
			OpeningHours: t["opening_hours"],
			Source:       model.SourceOSM,
			NativeType:   el.Type,
			NativeID:     strconv.FormatInt(el.ID, 10),
			CoordSource:  model.SourceOSM,
		}
		if phone := firstNonEmpty(t["phone"], t["contact:phone"]); phone != "" {
			in.Phones = []string{phone}
		}
		if email := firstNonEmpty(t["email"], t["contact:email"]); email != "" {
			in.Emails = []string{email}
		}
		out = append(out, normalize.Candidate(in))
	}
	return out
}

// CountryBounds returns the bounding box of the country relation, or
// FallbackBounds when no mirror answers.
func (o *OSM) CountryBounds(ctx context.Context) (geo.Box, bool) {
	if !o.Enabled() {
		return FallbackBounds, false
	}
	resp, err := o.query(ctx, overpass.BoundsQuery(o.iso))
	if err == nil {
		for _, el := range resp.Elements {
			if b := el.Bounds; b != nil {
				box := geo.Box{MinLat: b.MinLat, MinLng: b.MinLon, MaxLat: b.MaxLat, MaxLng: b.MaxLon}
				if box.Valid() {
					return box, true
				}
			}
		}
		err = eris.New("osm: no bounds in response")
	}
	o.log.Warn("osm: country bounds unavailable, using fallback", zap.Error(err))
	return FallbackBounds, false
}

func (o *OSM) query(ctx context.Context, ql string) (*overpass.Response, error) {
	var lastErr error
	for i, m := range o.mirrors {
		resp, err := Call(ctx, o.callers[i], "query", func(ctx context.Context) (*overpass.Response, error) {
			return m.Query(ctx, ql)
		})
		if err == nil && resp != nil {
			return resp, nil
		}
		o.log.Debug("osm: mirror failed, trying next", zap.String("endpoint", m.Endpoint()), zap.Error(err))
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	if lastErr == nil {
		lastErr = eris.New("osm: no mirrors configured")
	}
	return nil, eris.Wrap(lastErr, "osm: all mirrors failed")
}
