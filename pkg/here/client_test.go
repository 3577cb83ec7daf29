package here

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscover_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/discover", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "here-key", q.Get("apiKey"))
		assert.Equal(t, "42.1,19.1", q.Get("at"))
		assert.Equal(t, "pharmacy", q.Get("q"))

		_, _ = w.Write([]byte(`{"items":[{"id":"h1","title":"Apoteka Bar",
			"address":{"label":"Jovana Tomaševića 2, 85000 Bar"},
			"position":{"lat":42.098,"lng":19.095},
			"contacts":[{"phone":[{"value":"+38230111222"}],"www":[{"value":"https://apotekabar.me"}]}]}]}`))
	}))
	defer srv.Close()

	resp, err := NewClient("here-key", WithBaseURL(srv.URL)).Discover(context.Background(), DiscoverRequest{Lat: 42.1, Lng: 19.1})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)
	it := resp.Items[0]
	assert.Equal(t, "Apoteka Bar", it.Title)
	assert.Equal(t, "https://apotekabar.me", it.Website())
	assert.Equal(t, "+38230111222", it.Phone())
	require.NotNil(t, it.Position)
	assert.Equal(t, 19.095, it.Position.Lng)
}

func TestItem_NoContacts(t *testing.T) {
	assert.Empty(t, Item{}.Website())
	assert.Empty(t, Item{}.Phone())
}

func TestDiscover_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewClient("k", WithBaseURL(srv.URL)).Discover(context.Background(), DiscoverRequest{})
	require.Error(t, err)
}
