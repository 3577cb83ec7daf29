// Package here is a minimal HERE Geocoding & Search v1 Discover client.
package here

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

const defaultBaseURL = "https://discover.search.hereapi.com/v1"

// Client runs HERE Discover searches.
type Client interface {
	Discover(ctx context.Context, req DiscoverRequest) (*DiscoverResponse, error)
}

// DiscoverRequest is a free-text search biased to a position.
type DiscoverRequest struct {
	Lat   float64
	Lng   float64
	Query string
	Limit int
}

// DiscoverResponse is the Discover result list.
type DiscoverResponse struct {
	Items []Item `json:"items"`
}

// Item is one result.
type Item struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Address  Address   `json:"address"`
	Position *Position `json:"position,omitempty"`
	Contacts []Contact `json:"contacts,omitempty"`
}

// Address holds the formatted label.
type Address struct {
	Label string `json:"label"`
	City  string `json:"city,omitempty"`
}

// Position is a coordinate pair.
type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Contact groups contact channels.
type Contact struct {
	Phone []Value `json:"phone,omitempty"`
	WWW   []Value `json:"www,omitempty"`
}

// Value is one contact entry.
type Value struct {
	Value string `json:"value"`
}

// Website returns the first website listed, if any.
func (i Item) Website() string {
	for _, c := range i.Contacts {
		for _, w := range c.WWW {
			if w.Value != "" {
				return w.Value
			}
		}
	}
	return ""
}

// Phone returns the first phone listed, if any.
func (i Item) Phone() string {
	for _, c := range i.Contacts {
		for _, p := range c.Phone {
			if p.Value != "" {
				return p.Value
			}
		}
	}
	return ""
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

// NewClient creates a HERE client. The key is sent as the apiKey query parameter.
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

func (c *httpClient) Discover(ctx context.Context, r DiscoverRequest) (*DiscoverResponse, error) {
	if r.Query == "" {
		r.Query = "pharmacy"
	}
	if r.Limit <= 0 {
		r.Limit = 50
	}

	q := url.Values{}
	q.Set("at", strconv.FormatFloat(r.Lat, 'f', -1, 64)+","+strconv.FormatFloat(r.Lng, 'f', -1, 64))
	q.Set("q", r.Query)
	q.Set("limit", strconv.Itoa(r.Limit))
	q.Set("apiKey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/discover?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "here: create request")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "here: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "here: read response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.HTTPStatusError("here", resp.StatusCode, string(body))
	}

	var out DiscoverResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "here: unmarshal response")
	}
	return &out, nil
}
