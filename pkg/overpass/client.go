// Package overpass queries an OpenStreetMap Overpass API endpoint.
package overpass

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/resilience"
)

// DefaultEndpoints are the public mirrors, in priority order.
var DefaultEndpoints = []string{
	"https://overpass-api.de/api/interpreter",
	"https://overpass.kumi.systems/api/interpreter",
	"https://overpass.openstreetmap.fr/api/interpreter",
}

// Client runs Overpass QL queries against one endpoint.
type Client interface {
	Endpoint() string
	Query(ctx context.Context, ql string) (*Response, error)
}

// Response is the JSON output of an Overpass query.
type Response struct {
	Elements []Element `json:"elements"`
}

// Element is a node, way or relation.
type Element struct {
	Type   string            `json:"type"`
	ID     int64             `json:"id"`
	Lat    *float64          `json:"lat,omitempty"`
	Lon    *float64          `json:"lon,omitempty"`
	Center *Center           `json:"center,omitempty"`
	Bounds *Bounds           `json:"bounds,omitempty"`
	Tags   map[string]string `json:"tags,omitempty"`
}

// Center is the computed center of a way or relation ("out center").
type Center struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Bounds is an element bounding box ("out bb").
type Bounds struct {
	MinLat float64 `json:"minlat"`
	MinLon float64 `json:"minlon"`
	MaxLat float64 `json:"maxlat"`
	MaxLon float64 `json:"maxlon"`
}

// Position returns the element coordinates: the node position, or the
// computed center for ways and relations.
func (e Element) Position() (lat, lon float64, ok bool) {
	if e.Lat != nil && e.Lon != nil {
		return *e.Lat, *e.Lon, true
	}
	if e.Center != nil {
		return e.Center.Lat, e.Center.Lon, true
	}
	return 0, 0, false
}

// Option configures the client.
type Option func(*httpClient)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	endpoint  string
	userAgent string
	http      *http.Client
}

// NewClient creates a client for one interpreter endpoint.
func NewClient(endpoint string, opts ...Option) Client {
	c := &httpClient{
		endpoint: endpoint,
		http:     &http.Client{Timeout: 35 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Endpoint() string { return c.endpoint }

func (c *httpClient) Query(ctx context.Context, ql string) (*Response, error) {
	form := url.Values{"data": {ql}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, eris.Wrap(err, "overpass: create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "overpass: post %s", c.endpoint)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "overpass: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("overpass", resp.StatusCode, string(body))
	}

	var out Response
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "overpass: unmarshal response")
	}
	return &out, nil
}

// PharmacyQuery returns the whole-country pharmacy query for an ISO 3166-1 code.
func PharmacyQuery(iso string) string {
	return `[out:json][timeout:240];
area["ISO3166-1"="` + iso + `"]->.a;
(
  node["amenity"="pharmacy"](area.a);
  way["amenity"="pharmacy"](area.a);
  relation["amenity"="pharmacy"](area.a);
  node["healthcare"="pharmacy"](area.a);
  way["healthcare"="pharmacy"](area.a);
  relation["healthcare"="pharmacy"](area.a);
  node["shop"="chemist"](area.a);
  way["shop"="chemist"](area.a);
);
out tags center;`
}

// BoundsQuery returns the query for the bounding box of a country relation.
func BoundsQuery(iso string) string {
	return `[out:json][timeout:120];rel["ISO3166-1"="` + iso + `"]["admin_level"="2"];out ids bb;`
}
