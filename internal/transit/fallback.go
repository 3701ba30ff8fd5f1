package transit

import (
	"hash/fnv"
	"math"
	"time"

	"shadowcal/internal/geo"
)

const (
	// DefaultAverageSpeedMPH is the assumed door-to-door bus speed.
	DefaultAverageSpeedMPH = 12.0
	// DefaultOverheadMinutes covers walking to/from stops and waiting.
	DefaultOverheadMinutes = 10
	// milesPerStop approximates urban bus stop spacing.
	milesPerStop = 0.25
)

// regionRoutes is the fixed set of plausible route labels the fallback
// chooses from.
var regionRoutes = []string{"1", "4", "7", "10", "15", "22", "28", "33", "38", "45", "52", "61"}

// Fallback computes an offline estimate from great-circle distance. The
// result depends only on its inputs, so identical queries always agree.
type Fallback struct {
	SpeedMPH        float64
	OverheadMinutes int
}

func (f Fallback) speed() float64 {
	if f.SpeedMPH <= 0 {
		return DefaultAverageSpeedMPH
	}
	return f.SpeedMPH
}

func (f Fallback) overhead() int {
	if f.OverheadMinutes < 0 {
		return 0
	}
	if f.OverheadMinutes == 0 {
		return DefaultOverheadMinutes
	}
	return f.OverheadMinutes
}

// Estimate builds the degraded estimate. When arriveBy is nil, the trip
// departs at now.
func (f Fallback) Estimate(origin, dest geo.Point, arriveBy *time.Time, now time.Time) Estimate {
	dist := geo.DistanceMiles(origin, dest)
	busMinutes := int(math.Ceil(dist / f.speed() * 60))
	overhead := f.overhead()
	total := busMinutes + overhead
	if total < 1 {
		total = 1
	}

	var depart, arrive time.Time
	if arriveBy != nil {
		arrive = arriveBy.UTC()
		depart = arrive.Add(-time.Duration(total) * time.Minute)
	} else {
		depart = now.UTC()
		arrive = depart.Add(time.Duration(total) * time.Minute)
	}

	// Half the overhead is the walk to the stop, the rest is the walk off.
	walkIn := overhead / 2
	legDepart := depart.Add(time.Duration(walkIn) * time.Minute)
	route := RegionRoute(origin, dest)
	stops := int(math.Round(dist / milesPerStop))
	if stops < 1 {
		stops = 1
	}

	leg := Leg{
		RouteID:         route,
		RouteName:       "Route " + route,
		FromStop:        "Stop near " + geo.GridKey(origin),
		ToStop:          "Stop near " + geo.GridKey(dest),
		DepartureTime:   legDepart,
		ArrivalTime:     legDepart.Add(time.Duration(busMinutes) * time.Minute),
		DurationMinutes: busMinutes,
		StopCount:       stops,
	}

	return Estimate{
		DurationMinutes: total,
		DepartureTime:   depart,
		ArrivalTime:     arrive,
		Legs:            []Leg{leg},
		WalkingMinutes:  overhead,
		TransferCount:   0,
		RouteLabel:      route,
		DistanceMiles:   math.Round(dist*100) / 100,
		Source:          SourceFallback,
	}
}

// RegionRoute deterministically picks a route label for the pair from the
// quantized origin and destination cells.
func RegionRoute(origin, dest geo.Point) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(geo.GridKey(origin)))
	_, _ = h.Write([]byte{'|'})
	_, _ = h.Write([]byte(geo.GridKey(dest)))
	return regionRoutes[h.Sum32()%uint32(len(regionRoutes))]
}
