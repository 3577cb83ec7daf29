package foursquare

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/places/search", r.URL.Path)
		assert.Equal(t, "fsq-key", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "42.43,19.26", q.Get("ll"))
		assert.Equal(t, "13032", q.Get("categories"))
		assert.Equal(t, "pharmacy", q.Get("query"))
		assert.Equal(t, "50", q.Get("limit"))

		_, _ = w.Write([]byte(`{"results":[{"fsq_id":"f1","name":"Apoteka Lara",
			"location":{"formatted_address":"Hercegovačka 5, Podgorica"},
			"geocodes":{"main":{"latitude":42.441,"longitude":19.262}}}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient("fsq-key", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{Lat: 42.43, Lng: 19.26, RadiusM: 15000})
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "Apoteka Lara", resp.Results[0].Name)
	require.NotNil(t, resp.Results[0].Geocodes.Main)
	assert.Equal(t, 42.441, resp.Results[0].Geocodes.Main.Latitude)
}

func TestSearch_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := NewClient("bad", WithBaseURL(srv.URL)).Search(context.Background(), SearchRequest{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "foursquare: http 401")
}
