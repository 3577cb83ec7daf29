// Package tomtom is a minimal TomTom Search API v2 client.
package tomtom

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/pharmacy-harvester/internal/resilience"
)

const defaultBaseURL = "https://api.tomtom.com/search/2"

// CategoryPharmacy is the TomTom POI category for pharmacies.
const CategoryPharmacy = "9554"

// Client runs TomTom POI searches.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) (*SearchResponse, error)
	POISearch(ctx context.Context, req POIRequest) (*SearchResponse, error)
}

// NearbyRequest is a category search around a point.
type NearbyRequest struct {
	Lat         float64
	Lng         float64
	RadiusM     int
	CategorySet string
	Limit       int
}

// POIRequest is a free-text POI search, optionally biased to a point.
type POIRequest struct {
	Query       string
	Lat         *float64
	Lng         *float64
	CountrySet  string
	CategorySet string
	Limit       int
}

// SearchResponse is the result list of both search kinds.
type SearchResponse struct {
	Results []Result `json:"results"`
}

// Result is one POI.
type Result struct {
	ID       string    `json:"id"`
	POI      POI       `json:"poi"`
	Address  Address   `json:"address"`
	Position *Position `json:"position,omitempty"`
}

// POI holds the place name and contacts.
type POI struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	URL   string `json:"url,omitempty"`
}

// Address holds the free-form address.
type Address struct {
	FreeformAddress    string `json:"freeformAddress"`
	Municipality       string `json:"municipality,omitempty"`
	CountryCode        string `json:"countryCode,omitempty"`
	CountrySubdivision string `json:"countrySubdivision,omitempty"`
}

// Position is a coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
}

// NewClient creates a TomTom client. The key is sent as the key query parameter.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http:    &http.Client{Timeout: 20 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) NearbySearch(ctx context.Context, r NearbyRequest) (*SearchResponse, error) {
	if r.CategorySet == "" {
		r.CategorySet = CategoryPharmacy
	}
	if r.Limit <= 0 {
		r.Limit = 100
	}
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(r.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(r.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(r.RadiusM))
	q.Set("categorySet", r.CategorySet)
	q.Set("limit", strconv.Itoa(r.Limit))
	return c.get(ctx, "/nearbySearch/.json", q)
}

func (c *httpClient) POISearch(ctx context.Context, r POIRequest) (*SearchResponse, error) {
	if r.Query == "" {
		return nil, eris.New("tomtom: query is required")
	}
	if r.Limit <= 0 {
		r.Limit = 20
	}
	q := url.Values{}
	q.Set("limit", strconv.Itoa(r.Limit))
	if r.Lat != nil && r.Lng != nil {
		q.Set("lat", strconv.FormatFloat(*r.Lat, 'f', -1, 64))
		q.Set("lon", strconv.FormatFloat(*r.Lng, 'f', -1, 64))
	}
	if r.CountrySet != "" {
		q.Set("countrySet", r.CountrySet)
	}
	if r.CategorySet != "" {
		q.Set("categorySet", r.CategorySet)
	}
	return c.get(ctx, "/poiSearch/"+url.PathEscape(r.Query)+".json", q)
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values) (*SearchResponse, error) {
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "tomtom: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("tomtom", resp.StatusCode, string(body))
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "tomtom: unmarshal response")
	}
	return &out, nil
}
