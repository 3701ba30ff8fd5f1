// Package geocode resolves street addresses to coordinates through a
// Nominatim-style search API.
package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"shadowcal/internal/geo"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
)

// ErrNotFound means the address could not be resolved.
var ErrNotFound = errors.New("geocode: address not found")

// Geocoder resolves an address.
type Geocoder interface {
	Lookup(ctx context.Context, address string) (geo.Point, error)
}

// Config configures Client.
type Config struct {
	Endpoint   string
	UserAgent  string
	RatePerSec float64
	Timeout    time.Duration
}

// Client is a Nominatim-compatible geocoder with a small in-memory memo.
type Client struct {
	endpoint  string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter

	mu   sync.RWMutex
	memo map[string]geo.Point
}

// NewClient creates a Client. Public Nominatim asks for at most one
// request per second, which is the default rate.
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("geocode: endpoint is empty")
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "shadowcal/0.1"
	}
	burst := int(cfg.RatePerSec)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: cfg.Timeout},
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst),
		memo:      make(map[string]geo.Point),
	}, nil
}

type searchResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup resolves address, returning ErrNotFound when the service has no
// match.
func (c *Client) Lookup(ctx context.Context, address string) (geo.Point, error) {
	key := strings.ToLower(strings.Join(strings.Fields(address), " "))
	if key == "" {
		return geo.Point{}, ErrNotFound
	}
	c.mu.RLock()
	p, ok := c.memo[key]
	c.mu.RUnlock()
	if ok {
		return p, nil
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return geo.Point{}, err
	}

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/search?"+params.Encode(), nil)
	if err != nil {
		return geo.Point{}, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return geo.Point{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return geo.Point{}, fmt.Errorf("geocode: status %s", resp.Status)
	}

	var results []searchResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return geo.Point{}, fmt.Errorf("geocode: decode: %w", err)
	}
	if len(results) == 0 {
		return geo.Point{}, ErrNotFound
	}
	lat, err1 := strconv.ParseFloat(results[0].Lat, 64)
	lng, err2 := strconv.ParseFloat(results[0].Lon, 64)
	p = geo.Point{Lat: lat, Lng: lng}
	if err1 != nil || err2 != nil || !p.Valid() {
		return geo.Point{}, ErrNotFound
	}

	c.mu.Lock()
	c.memo[key] = p
	c.mu.Unlock()
	return p, nil
}

// Resolve returns loc's coordinates, geocoding its address when needed.
// Any failure is reported as "no coordinates" (ok == false) and logged.
func Resolve(ctx context.Context, g Geocoder, loc *model.Location) (geo.Point, bool) {
	if p, ok := loc.Coordinates(); ok {
		return p, true
	}
	if loc == nil || strings.TrimSpace(loc.Address) == "" || g == nil {
		return geo.Point{}, false
	}
	p, err := g.Lookup(ctx, loc.Address)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			appLog.Info("geocode: address not found", "address", loc.Address)
		} else {
			appLog.Error("geocode: lookup failed", err, "address", loc.Address)
		}
		return geo.Point{}, false
	}
	return p, true
}

// ResolvePair resolves two locations concurrently.
func ResolvePair(ctx context.Context, g Geocoder, a, b *model.Location) (pa geo.Point, okA bool, pb geo.Point, okB bool) {
	var eg errgroup.Group
	eg.Go(func() error {
		pa, okA = Resolve(ctx, g, a)
		return nil
	})
	eg.Go(func() error {
		pb, okB = Resolve(ctx, g, b)
		return nil
	})
	_ = eg.Wait()
	return pa, okA, pb, okB
}
