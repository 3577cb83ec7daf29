package google

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

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Response statuses of the Places Web Service.
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusOverQueryLimit = "OVER_QUERY_LIMIT"
	StatusInvalidRequest = "INVALID_REQUEST"
	StatusRequestDenied  = "REQUEST_DENIED"
)

// DetailFields is the field mask requested from Place Details.
const DetailFields = "place_id,name,formatted_address,geometry,formatted_phone_number," +
	"international_phone_number,website,opening_hours,rating,user_ratings_total,business_status,types"

// Client performs Google Places Web Service operations.
type Client interface {
	NearbySearch(ctx context.Context, req NearbyRequest) (*SearchResponse, error)
	TextSearch(ctx context.Context, req TextRequest) (*SearchResponse, error)
	Details(ctx context.Context, placeID, language string) (*DetailsResponse, error)
}

// NearbyRequest is a Nearby Search query. PageToken, when set, continues a
// previous search and the other fields are sent unchanged.
type NearbyRequest struct {
	Lat       float64
	Lng       float64
	RadiusM   int
	Keyword   string
	Type      string
	Language  string
	PageToken string
}

// TextRequest is a Text Search query.
type TextRequest struct {
	Query     string
	Region    string
	Language  string
	PageToken string
}

// SearchResponse is the envelope returned by Nearby and Text Search.
type SearchResponse struct {
	Status        string  `json:"status"`
	ErrorMessage  string  `json:"error_message,omitempty"`
	Results       []Place `json:"results"`
	NextPageToken string  `json:"next_page_token,omitempty"`
}

// DetailsResponse is the envelope returned by Place Details.
type DetailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Result       Place  `json:"result"`
}

// Place is a search result or detail record.
type Place struct {
	PlaceID            string        `json:"place_id"`
	Name               string        `json:"name"`
	Vicinity           string        `json:"vicinity,omitempty"`
	FormattedAddress   string        `json:"formatted_address,omitempty"`
	Geometry           Geometry      `json:"geometry"`
	FormattedPhone     string        `json:"formatted_phone_number,omitempty"`
	InternationalPhone string        `json:"international_phone_number,omitempty"`
	Website            string        `json:"website,omitempty"`
	OpeningHours       *OpeningHours `json:"opening_hours,omitempty"`
	Rating             float64       `json:"rating,omitempty"`
	UserRatingsTotal   int           `json:"user_ratings_total,omitempty"`
	BusinessStatus     string        `json:"business_status,omitempty"`
	Types              []string      `json:"types,omitempty"`
}

// Geometry holds the place location.
type Geometry struct {
	Location *LatLng `json:"location,omitempty"`
}

// LatLng is a coordinate pair.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// OpeningHours carries the human-readable weekly schedule.
type OpeningHours struct {
	WeekdayText []string `json:"weekday_text,omitempty"`
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

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *httpClient) {
		c.userAgent = ua
	}
}

type httpClient struct {
	apiKey    string
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient creates a Google Places API client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 20 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) NearbySearch(ctx context.Context, r NearbyRequest) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("location", strconv.FormatFloat(r.Lat, 'f', -1, 64)+","+strconv.FormatFloat(r.Lng, 'f', -1, 64))
	q.Set("radius", strconv.Itoa(r.RadiusM))
	setIf(q, "keyword", r.Keyword)
	setIf(q, "type", r.Type)
	setIf(q, "language", r.Language)
	setIf(q, "pagetoken", r.PageToken)

	var out SearchResponse
	if err := c.get(ctx, "/nearbysearch/json", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) TextSearch(ctx context.Context, r TextRequest) (*SearchResponse, error) {
	q := url.Values{}
	q.Set("query", r.Query)
	setIf(q, "region", r.Region)
	setIf(q, "language", r.Language)
	setIf(q, "pagetoken", r.PageToken)

	var out SearchResponse
	if err := c.get(ctx, "/textsearch/json", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) Details(ctx context.Context, placeID, language string) (*DetailsResponse, error) {
	if placeID == "" {
		return nil, eris.New("google: place id is required")
	}
	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", DetailFields)
	setIf(q, "language", language)

	var out DetailsResponse
	if err := c.get(ctx, "/details/json", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *httpClient) get(ctx context.Context, path string, q url.Values, out any) error {
	q.Set("key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return eris.Wrap(err, "google: create request")
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return resilience.HTTPStatusError("google", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrap(err, "google: unmarshal response")
	}
	return nil
}

func setIf(q url.Values, k, v string) {
	if v != "" {
		q.Set(k, v)
	}
}
