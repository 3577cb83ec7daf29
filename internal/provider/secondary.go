package provider

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/pkg/foursquare"
	"github.com/sells-group/pharmacy-harvester/pkg/here"
	"github.com/sells-group/pharmacy-harvester/pkg/tomtom"
)

func degraded(name string, q geo.Query, err error) {
	zap.L().Warn("provider: search failed",
		zap.String("component", "provider"),
		zap.String("provider", name),
		zap.Stringer("mode", q.Mode),
		zap.Error(err),
	)
}

func defaultQuery(q geo.Query) string {
	if q.Keyword != "" {
		return q.Keyword
	}
	if q.Text != "" {
		return q.Text
	}
	return "pharmacy"
}

// Foursquare adapts the Foursquare Places search. A nil client disables it.
type Foursquare struct {
	client foursquare.Client
	caller *Caller
}

// NewFoursquare creates the Foursquare adapter.
func NewFoursquare(client foursquare.Client, caller *Caller) *Foursquare {
	if caller == nil {
		caller = NewCaller("foursquare", CallerOptions{})
	}
	return &Foursquare{client: client, caller: caller}
}

func (f *Foursquare) Name() string                { return "foursquare" }
func (f *Foursquare) Source() model.Source        { return model.SourceFoursquare }
func (f *Foursquare) Enabled() bool               { return f.client != nil }
func (f *Foursquare) Supports(mode geo.Mode) bool { return mode == geo.Nearby || mode == geo.Text }

func (f *Foursquare) Search(ctx context.Context, q geo.Query) []model.Candidate {
	if !f.Enabled() || !f.Supports(q.Mode) {
		return nil
	}
	resp, err := Call(ctx, f.caller, "search", func(ctx context.Context) (*foursquare.SearchResponse, error) {
		return f.client.Search(ctx, foursquare.SearchRequest{
			Lat: q.Center.Lat, Lng: q.Center.Lng, RadiusM: q.RadiusM, Query: defaultQuery(q),
		})
	})
	if err != nil {
		degraded(f.Name(), q, err)
		return nil
	}

	out := make([]model.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		in := normalize.Input{
			Name:        r.Name,
			Address:     r.Location.FormattedAddress,
			City:        r.Location.Locality,
			Website:     r.Website,
			Source:      model.SourceFoursquare,
			CoordSource: model.SourceFoursquare,
		}
		if r.Tel != "" {
			in.Phones = []string{r.Tel}
		}
		if g := r.Geocodes.Main; g != nil {
			lat, lng := g.Latitude, g.Longitude
			in.Lat, in.Lng = &lat, &lng
		}
		out = append(out, normalize.Candidate(in))
	}
	return out
}

// HERE adapts the HERE Discover search. A nil client disables it.
type HERE struct {
	client here.Client
	caller *Caller
}

// NewHERE creates the HERE adapter.
func NewHERE(client here.Client, caller *Caller) *HERE {
	if caller == nil {
		caller = NewCaller("here", CallerOptions{})
	}
	return &HERE{client: client, caller: caller}
}

func (h *HERE) Name() string                { return "here" }
func (h *HERE) Source() model.Source        { return model.SourceHERE }
func (h *HERE) Enabled() bool               { return h.client != nil }
func (h *HERE) Supports(mode geo.Mode) bool { return mode == geo.Nearby || mode == geo.Text }

func (h *HERE) Search(ctx context.Context, q geo.Query) []model.Candidate {
	if !h.Enabled() || !h.Supports(q.Mode) {
		return nil
	}
	resp, err := Call(ctx, h.caller, "discover", func(ctx context.Context) (*here.DiscoverResponse, error) {
		return h.client.Discover(ctx, here.DiscoverRequest{Lat: q.Center.Lat, Lng: q.Center.Lng, Query: defaultQuery(q)})
	})
	if err != nil {
		degraded(h.Name(), q, err)
		return nil
	}

	out := make([]model.Candidate, 0, len(resp.Items))
	for _, it := range resp.Items {
		in := normalize.Input{
			Name:        it.Title,
			Address:     it.Address.Label,
			City:        it.Address.City,
			Website:     it.Website(),
			Source:      model.SourceHERE,
			CoordSource: model.SourceHERE,
		}
		if p := it.Phone(); p != "" {
			in.Phones = []string{p}
		}
		if pos := it.Position; pos != nil {
			lat, lng := pos.Lat, pos.Lng
			in.Lat, in.Lng = &lat, &lng
		}
		out = append(out, normalize.Candidate(in))
	}
	return out
}

// TomTom adapts TomTom nearby and POI search. A nil client disables it.
type TomTom struct {
	client  tomtom.Client
	caller  *Caller
	country string
}

// NewTomTom creates the TomTom adapter. country restricts text searches.
func NewTomTom(client tomtom.Client, caller *Caller, country string) *TomTom {
	if caller == nil {
		caller = NewCaller("tomtom", CallerOptions{})
	}
	return &TomTom{client: client, caller: caller, country: country}
}

func (t *TomTom) Name() string                { return "tomtom" }
func (t *TomTom) Source() model.Source        { return model.SourceTomTom }
func (t *TomTom) Enabled() bool               { return t.client != nil }
func (t *TomTom) Supports(mode geo.Mode) bool { return mode == geo.Nearby || mode == geo.Text }

func (t *TomTom) Search(ctx context.Context, q geo.Query) []model.Candidate {
	if !t.Enabled() || !t.Supports(q.Mode) {
		return nil
	}
	resp, err := Call(ctx, t.caller, q.Mode.String(), func(ctx context.Context) (*tomtom.SearchResponse, error) {
		if q.Mode == geo.Text {
			req := tomtom.POIRequest{Query: q.Text, CountrySet: t.country, CategorySet: tomtom.CategoryPharmacy}
			if q.Center != (geo.Point{}) {
				lat, lng := q.Center.Lat, q.Center.Lng
				req.Lat, req.Lng = &lat, &lng
			}
			return t.client.POISearch(ctx, req)
		}
		return t.client.NearbySearch(ctx, tomtom.NearbyRequest{Lat: q.Center.Lat, Lng: q.Center.Lng, RadiusM: q.RadiusM})
	})
	if err != nil {
		degraded(t.Name(), q, err)
		return nil
	}

	out := make([]model.Candidate, 0, len(resp.Results))
	for _, r := range resp.Results {
		in := normalize.Input{
			Name:        r.POI.Name,
			Address:     r.Address.FreeformAddress,
			City:        r.Address.Municipality,
			Website:     r.POI.URL,
			Source:      model.SourceTomTom,
			CoordSource: model.SourceTomTom,
		}
		if r.POI.Phone != "" {
			in.Phones = []string{r.POI.Phone}
		}
		if pos := r.Position; pos != nil {
			lat, lng := pos.Lat, pos.Lon
			in.Lat, in.Lng = &lat, &lng
		}
		out = append(out, normalize.Candidate(in))
	}
	return out
}
