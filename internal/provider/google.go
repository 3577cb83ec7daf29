package provider

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/pharmacy-harvester/internal/geo"
	"github.com/sells-group/pharmacy-harvester/internal/model"
	"github.com/sells-group/pharmacy-harvester/internal/normalize"
	"github.com/sells-group/pharmacy-harvester/pkg/google"
)

// GoogleOptions tunes the Places adapter.
type GoogleOptions struct {
	// PageDelay is the wait before a continuation token becomes valid. Default: 2.3s.
	PageDelay time.Duration
	// QuotaBackoff is the wait after OVER_QUERY_LIMIT before retrying the page. Default: 6s.
	QuotaBackoff time.Duration
	// QuotaRetries bounds OVER_QUERY_LIMIT retries per search. Default: 3.
	QuotaRetries int
	// MaxPages caps pagination. Default: 3.
	MaxPages int
	// FetchDetails enriches each new result with a Place Details call.
	FetchDetails bool
	// Region biases text search. Default: "me".
	Region string
}

// Google adapts the Places Web Service (nearby, text, details).
type Google struct {
	client google.Client
	caller *Caller
	opts   GoogleOptions
	log    *zap.Logger
}

// NewGoogle creates the Places adapter. A nil client (no API key) disables it.
func NewGoogle(client google.Client, caller *Caller, opts GoogleOptions) *Google {
	if opts.PageDelay <= 0 {
		opts.PageDelay = 2300 * time.Millisecond
	}
	if opts.QuotaBackoff <= 0 {
		opts.QuotaBackoff = 6 * time.Second
	}
	if opts.QuotaRetries <= 0 {
		opts.QuotaRetries = 3
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	if opts.Region == "" {
		opts.Region = "me"
	}
	if caller == nil {
		caller = NewCaller("google", CallerOptions{})
	}
	return &Google{
		client: client,
		caller: caller,
		opts:   opts,
		log:    zap.L().With(zap.String("component", "provider"), zap.String("provider", "google")),
	}
}

func (g *Google) Name() string         { return "google" }
func (g *Google) Source() model.Source { return model.SourceGoogle }
func (g *Google) Enabled() bool        { return g.client != nil }

func (g *Google) Supports(mode geo.Mode) bool {
	return mode == geo.Nearby || mode == geo.Text
}

// Search runs a paginated nearby or text search. Results are unique by place id.
func (g *Google) Search(ctx context.Context, q geo.Query) []model.Candidate {
	if !g.Enabled() || !g.Supports(q.Mode) {
		return nil
	}

	var places []google.Place
	switch q.Mode {
	case geo.Nearby:
		req := google.NearbyRequest{
			Lat:      q.Center.Lat,
			Lng:      q.Center.Lng,
			RadiusM:  q.RadiusM,
			Keyword:  q.Keyword,
			Language: q.Lang,
		}
		if q.Keyword == "" {
			req.Type = "pharmacy"
		}
		places = g.paginate(ctx, q, func(ctx context.Context, token string) (*google.SearchResponse, error) {
			r := req
			r.PageToken = token
			return g.client.NearbySearch(ctx, r)
		})
	case geo.Text:
		req := google.TextRequest{Query: q.Text, Region: g.opts.Region, Language: q.Lang}
		places = g.paginate(ctx, q, func(ctx context.Context, token string) (*google.SearchResponse, error) {
			r := req
			r.PageToken = token
			return g.client.TextSearch(ctx, r)
		})
	}

	out := make([]model.Candidate, 0, len(places))
	for _, p := range places {
		if g.opts.FetchDetails {
			p = g.enrich(ctx, p, q.Lang)
		}
		out = append(out, googleCandidate(p))
	}
	return out
}

type pageFunc func(ctx context.Context, token string) (*google.SearchResponse, error)

func (g *Google) paginate(ctx context.Context, q geo.Query, fetch pageFunc) []google.Place {
	seen := make(map[string]struct{})
	var out []google.Place

	token := ""
	quotaHits := 0
	tokenRetried := false
	for page := 0; page < g.opts.MaxPages; {
		if token != "" {
			if err := sleep(ctx, g.opts.PageDelay); err != nil {
				break
			}
		}

		resp, err := Call(ctx, g.caller, "search", func(ctx context.Context) (*google.SearchResponse, error) {
			return fetch(ctx, token)
		})
		if err != nil {
			g.log.Warn("google: search failed",
				zap.Stringer("mode", q.Mode), zap.Int("page", page), zap.Error(err))
			break
		}

		switch resp.Status {
		case google.StatusOK, google.StatusZeroResults:
		case google.StatusInvalidRequest:
			// A continuation token used too early; wait one more page delay.
			if token != "" && !tokenRetried {
				tokenRetried = true
				continue
			}
		case google.StatusOverQueryLimit:
			quotaHits++
			if quotaHits > g.opts.QuotaRetries {
				g.log.Warn("google: quota exhausted", zap.Stringer("mode", q.Mode), zap.Int("retries", g.opts.QuotaRetries))
				return out
			}
			if err := sleep(ctx, g.opts.QuotaBackoff); err != nil {
				return out
			}
			continue
		default:
			g.log.Warn("google: unexpected status",
				zap.Stringer("mode", q.Mode), zap.String("status", resp.Status), zap.String("message", resp.ErrorMessage))
			return out
		}

		for _, p := range resp.Results {
			if p.PlaceID == "" {
				continue
			}
			if _, dup := seen[p.PlaceID]; dup {
				continue
			}
			seen[p.PlaceID] = struct{}{}
			out = append(out, p)
		}

		token = resp.NextPageToken
		tokenRetried = false
		page++
		if token == "" {
			break
		}
	}
	return out
}

// enrich merges Place Details into p. Failures keep the search result as is.
func (g *Google) enrich(ctx context.Context, p google.Place, lang string) google.Place {
	resp, err := Call(ctx, g.caller, "details", func(ctx context.Context) (*google.DetailsResponse, error) {
		return g.client.Details(ctx, p.PlaceID, lang)
	})
	if err != nil || resp.Status != google.StatusOK {
		if err != nil {
			g.log.Debug("google: details failed", zap.String("place_id", p.PlaceID), zap.Error(err))
		}
		return p
	}
	d := resp.Result
	if d.FormattedAddress != "" {
		p.FormattedAddress = d.FormattedAddress
	}
	if d.InternationalPhone != "" || d.FormattedPhone != "" {
		p.InternationalPhone, p.FormattedPhone = d.InternationalPhone, d.FormattedPhone
	}
	if d.Website != "" {
		p.Website = d.Website
	}
	if d.OpeningHours != nil && len(d.OpeningHours.WeekdayText) > 0 {
		p.OpeningHours = d.OpeningHours
	}
	if d.Rating > 0 {
		p.Rating = d.Rating
		p.UserRatingsTotal = d.UserRatingsTotal
	}
	if d.Geometry.Location != nil {
		p.Geometry = d.Geometry
	}
	return p
}

func googleCandidate(p google.Place) model.Candidate {
	in := normalize.Input{
		Name:        p.Name,
		Address:     firstNonEmpty(p.FormattedAddress, p.Vicinity),
		Website:     p.Website,
		Source:      model.SourceGoogle,
		PlaceID:     p.PlaceID,
		CoordSource: model.SourceGoogle,
		ReviewCount: p.UserRatingsTotal,
	}
	if p.Geometry.Location != nil {
		lat, lng := p.Geometry.Location.Lat, p.Geometry.Location.Lng
		in.Lat, in.Lng = &lat, &lng
	}
	if phone := firstNonEmpty(p.InternationalPhone, p.FormattedPhone); phone != "" {
		in.Phones = []string{phone}
	}
	if p.OpeningHours != nil {
		in.OpeningHours = strings.Join(p.OpeningHours.WeekdayText, "; ")
	}
	if p.Rating > 0 {
		r := p.Rating
		in.Rating = &r
	}
	return normalize.Candidate(in)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
