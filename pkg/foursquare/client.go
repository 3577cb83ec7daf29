// Package foursquare is a minimal Foursquare Places API v3 client.
package foursquare

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

const defaultBaseURL = "https://api.foursquare.com/v3"

// CategoryPharmacy is the Foursquare category id for pharmacies.
const CategoryPharmacy = "13032"

// Client searches Foursquare places.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest is a place search around a point.
type SearchRequest struct {
	Lat        float64
	Lng        float64
	RadiusM    int
	Query      string
	Categories string
	Limit      int
}

// SearchResponse is the place search result list.
type SearchResponse struct {
	Results []Place `json:"results"`
}

// Place is one Foursquare place.
type Place struct {
	FsqID    string   `json:"fsq_id"`
	Name     string   `json:"name"`
	Location Location `json:"location"`
	Geocodes Geocodes `json:"geocodes"`
	Website  string   `json:"website,omitempty"`
	Tel      string   `json:"tel,omitempty"`
}

// Location holds the postal address.
type Location struct {
	FormattedAddress string `json:"formatted_address"`
	Locality         string `json:"locality,omitempty"`
}

// Geocodes holds the place coordinates.
type Geocodes struct {
	Main *Point `json:"main,omitempty"`
}

// Point is a coordinate pair.
type Point struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
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

// NewClient creates a Foursquare client. The key is sent in the Authorization header.
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

func (c *httpClient) Search(ctx context.Context, r SearchRequest) (*SearchResponse, error) {
	if r.Query == "" {
		r.Query = "pharmacy"
	}
	if r.Categories == "" {
		r.Categories = CategoryPharmacy
	}
	if r.Limit <= 0 {
		r.Limit = 50
	}

	q := url.Values{}
	q.Set("ll", strconv.FormatFloat(r.Lat, 'f', -1, 64)+","+strconv.FormatFloat(r.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(r.RadiusM))
	q.Set("categories", r.Categories)
	q.Set("query", r.Query)
	q.Set("limit", strconv.Itoa(r.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/places/search?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: create request")
	}
	req.Header.Set("Authorization", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "foursquare: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("foursquare", resp.StatusCode, string(body))
	}

	var out SearchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "foursquare: unmarshal response")
	}
	return &out, nil
}
