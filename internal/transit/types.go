// Package transit estimates commute time between two coordinates. A live
// routing provider is consulted first; when it is unavailable, slow, or has
// no route, a deterministic distance-based estimate is returned instead.
// Results are cached on a quantized coordinate/time grid.
package transit

import (
	"errors"
	"time"
)

var (
	// ErrNoRoute means the provider answered but found no itinerary.
	ErrNoRoute = errors.New("transit: no route found")
	// ErrCircuitOpen means the provider is being skipped after repeated failures.
	ErrCircuitOpen = errors.New("transit: provider circuit open")
)

// Leg is one ride on a single transit line.
type Leg struct {
	RouteID         string    `json:"route_id"`
	RouteName       string    `json:"route_name"`
	FromStop        string    `json:"from_stop"`
	ToStop          string    `json:"to_stop"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	DurationMinutes int       `json:"duration_minutes"`
	StopCount       int       `json:"stop_count"`
}

// Source records where an estimate came from.
type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

// Estimate is a door-to-door commute estimate.
type Estimate struct {
	DurationMinutes int       `json:"duration_minutes"`
	DepartureTime   time.Time `json:"departure_time"`
	ArrivalTime     time.Time `json:"arrival_time"`
	Legs            []Leg     `json:"legs"`
	WalkingMinutes  int       `json:"walking_minutes"`
	TransferCount   int       `json:"transfer_count"`
	RouteLabel      string    `json:"route_label"`
	DistanceMiles   float64   `json:"distance_miles"`
	Source          Source    `json:"source"`
}

// Estimated reports whether the value came from the offline fallback.
func (e Estimate) Estimated() bool {
	return e.Source == SourceFallback
}

// routeSeparator joins leg route ids in RouteLabel.
const routeSeparator = " → "
