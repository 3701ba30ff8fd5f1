package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowcal/internal/geo"
	"shadowcal/internal/model"
)

func newTestServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != "/search" || r.Header.Get("User-Agent") == "" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Query().Get("q") {
		case "1600 Pennsylvania Ave NW, Washington DC":
			_, _ = w.Write([]byte(`[{"lat":"38.8976763","lon":"-77.0365298"}]`))
		default:
			_, _ = w.Write([]byte(`[]`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClientLookup(t *testing.T) {
	t.Parallel()

	var hits atomic.Int32
	srv := newTestServer(t, &hits)
	c, err := NewClient(Config{Endpoint: srv.URL, RatePerSec: 100})
	require.NoError(t, err)

	p, err := c.Lookup(context.Background(), "1600 Pennsylvania Ave NW, Washington DC")
	require.NoError(t, err)
	assert.InDelta(t, 38.8977, p.Lat, 1e-4)
	assert.InDelta(t, -77.0365, p.Lng, 1e-4)

	// Memoized, whitespace and case insensitive.
	_, err = c.Lookup(context.Background(), "  1600 pennsylvania ave NW,   Washington DC ")
	require.NoError(t, err)
	assert.EqualValues(t, 1, hits.Load())

	_, err = c.Lookup(context.Background(), "nowhere at all")
	assert.ErrorIs(t, err, ErrNotFound)
}

type mapGeocoder map[string]geo.Point

func (m mapGeocoder) Lookup(_ context.Context, address string) (geo.Point, error) {
	if p, ok := m[address]; ok {
		return p, nil
	}
	return geo.Point{}, ErrNotFound
}

func TestResolve(t *testing.T) {
	t.Parallel()

	known := geo.Point{Lat: 51.5, Lng: -0.12}
	g := mapGeocoder{"10 Downing St": known}

	p, ok := Resolve(context.Background(), g, &model.Location{Point: &geo.Point{Lat: 1, Lng: 2}})
	assert.True(t, ok)
	assert.Equal(t, geo.Point{Lat: 1, Lng: 2}, p)

	p, ok = Resolve(context.Background(), g, &model.Location{Address: "10 Downing St"})
	assert.True(t, ok)
	assert.Equal(t, known, p)

	_, ok = Resolve(context.Background(), g, &model.Location{Address: "221B Baker St"})
	assert.False(t, ok)

	_, ok = Resolve(context.Background(), nil, &model.Location{Address: "10 Downing St"})
	assert.False(t, ok)

	_, ok = Resolve(context.Background(), g, nil)
	assert.False(t, ok)
}

func TestResolvePair(t *testing.T) {
	t.Parallel()

	g := mapGeocoder{"a": {Lat: 1, Lng: 1}}
	pa, okA, _, okB := ResolvePair(context.Background(), g, &model.Location{Address: "a"}, &model.Location{Address: "b"})
	assert.True(t, okA)
	assert.False(t, okB)
	assert.Equal(t, geo.Point{Lat: 1, Lng: 1}, pa)
}
