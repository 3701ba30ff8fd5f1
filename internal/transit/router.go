package transit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"shadowcal/internal/geo"
)

// Query is a single routing request. A nil ArriveBy means "depart now".
type Query struct {
	Origin      geo.Point
	Destination geo.Point
	ArriveBy    *time.Time
}

// Router is the live routing provider. It returns ErrNoRoute when the
// provider has no itinerary and any other error for transport failures.
type Router interface {
	Route(ctx context.Context, q Query) (Estimate, error)
}

// HTTPRouterConfig configures HTTPRouter.
type HTTPRouterConfig struct {
	// Endpoint is a Directions-style JSON endpoint, e.g.
	// "https://maps.googleapis.com/maps/api/directions/json".
	Endpoint string
	APIKey   string
	// RatePerSec throttles outbound calls. <= 0 disables throttling.
	RatePerSec float64
	Client     *http.Client
}

// HTTPRouter queries a Directions-style transit API restricted to buses.
type HTTPRouter struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

// NewHTTPRouter creates a router. The http.Client has no timeout of its
// own; the estimator's context deadline bounds each call.
func NewHTTPRouter(cfg HTTPRouterConfig) (*HTTPRouter, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("transit: router endpoint is empty")
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("transit: router endpoint: %w", err)
	}
	r := &HTTPRouter{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   cfg.Client,
	}
	if r.client == nil {
		r.client = &http.Client{}
	}
	if cfg.RatePerSec > 0 {
		burst := int(cfg.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), burst)
	}
	return r, nil
}

// directionsResponse is the subset of the Directions JSON we read.
type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Routes       []struct {
		Legs []struct {
			Distance      valueField `json:"distance"`
			Duration      valueField `json:"duration"`
			DepartureTime valueField `json:"departure_time"`
			ArrivalTime   valueField `json:"arrival_time"`
			Steps         []struct {
				TravelMode     string     `json:"travel_mode"`
				Duration       valueField `json:"duration"`
				TransitDetails *struct {
					Line struct {
						ShortName string `json:"short_name"`
						Name      string `json:"name"`
					} `json:"line"`
					DepartureStop struct {
						Name string `json:"name"`
					} `json:"departure_stop"`
					ArrivalStop struct {
						Name string `json:"name"`
					} `json:"arrival_stop"`
					DepartureTime valueField `json:"departure_time"`
					ArrivalTime   valueField `json:"arrival_time"`
					NumStops      int        `json:"num_stops"`
				} `json:"transit_details"`
			} `json:"steps"`
		} `json:"legs"`
	} `json:"routes"`
}

// valueField is Directions' {"value": N, "text": "..."} shape. Value is
// seconds for durations and times, meters for distances.
type valueField struct {
	Value int64  `json:"value"`
	Text  string `json:"text"`
}

const metersPerMile = 1609.344

// Route issues one bus-only transit query and parses the first route.
func (r *HTTPRouter) Route(ctx context.Context, q Query) (Estimate, error) {
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Estimate{}, fmt.Errorf("transit: rate limit wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("origin", q.Origin.String())
	params.Set("destination", q.Destination.String())
	params.Set("mode", "transit")
	params.Set("transit_mode", "bus")
	if q.ArriveBy != nil {
		params.Set("arrival_time", strconv.FormatInt(q.ArriveBy.Unix(), 10))
	} else {
		params.Set("departure_time", "now")
	}
	if r.apiKey != "" {
		params.Set("key", r.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Estimate{}, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return Estimate{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Estimate{}, fmt.Errorf("transit: provider status %s", resp.Status)
	}

	var body directionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Estimate{}, fmt.Errorf("transit: decode: %w", err)
	}
	return parseDirections(body)
}

func parseDirections(body directionsResponse) (Estimate, error) {
	switch body.Status {
	case "OK":
	case "ZERO_RESULTS", "NOT_FOUND":
		return Estimate{}, ErrNoRoute
	default:
		return Estimate{}, fmt.Errorf("transit: provider status %q: %s", body.Status, body.ErrorMessage)
	}
	if len(body.Routes) == 0 || len(body.Routes[0].Legs) == 0 {
		return Estimate{}, ErrNoRoute
	}

	trip := body.Routes[0].Legs[0]
	est := Estimate{
		DurationMinutes: secondsToMinutes(trip.Duration.Value),
		DistanceMiles:   math.Round(float64(trip.Distance.Value)/metersPerMile*100) / 100,
		Source:          SourceProvider,
	}
	if trip.DepartureTime.Value > 0 {
		est.DepartureTime = time.Unix(trip.DepartureTime.Value, 0).UTC()
	}
	if trip.ArrivalTime.Value > 0 {
		est.ArrivalTime = time.Unix(trip.ArrivalTime.Value, 0).UTC()
	}

	walkSeconds := int64(0)
	routeIDs := make([]string, 0, len(trip.Steps))
	for _, step := range trip.Steps {
		if step.TravelMode != "TRANSIT" || step.TransitDetails == nil {
			if step.TravelMode == "WALKING" {
				walkSeconds += step.Duration.Value
			}
			continue
		}
		td := step.TransitDetails
		id := td.Line.ShortName
		if id == "" {
			id = td.Line.Name
		}
		leg := Leg{
			RouteID:         id,
			RouteName:       td.Line.Name,
			FromStop:        td.DepartureStop.Name,
			ToStop:          td.ArrivalStop.Name,
			DurationMinutes: secondsToMinutes(step.Duration.Value),
			StopCount:       td.NumStops,
		}
		if td.DepartureTime.Value > 0 {
			leg.DepartureTime = time.Unix(td.DepartureTime.Value, 0).UTC()
		}
		if td.ArrivalTime.Value > 0 {
			leg.ArrivalTime = time.Unix(td.ArrivalTime.Value, 0).UTC()
		}
		est.Legs = append(est.Legs, leg)
		routeIDs = append(routeIDs, id)
	}

	est.WalkingMinutes = secondsToMinutes(walkSeconds)
	est.TransferCount = len(est.Legs) - 1
	if est.TransferCount < 0 {
		est.TransferCount = 0
	}
	if len(routeIDs) == 0 {
		est.RouteLabel = "Walk"
	} else {
		est.RouteLabel = strings.Join(routeIDs, routeSeparator)
	}
	if est.DurationMinutes <= 0 {
		return Estimate{}, errors.New("transit: provider returned zero duration")
	}
	return est, nil
}

func secondsToMinutes(s int64) int {
	return int((s + 30) / 60)
}
