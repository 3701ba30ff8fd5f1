package transit

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/singleflight"

	"shadowcal/internal/clock"
	"shadowcal/internal/geo"
	appLog "shadowcal/internal/log"
)

// DefaultTimeout bounds a single provider call.
const DefaultTimeout = 8 * time.Second

// Config controls an Estimator. Zero values pick defaults.
type Config struct {
	// Router is the live provider. Nil means fallback-only.
	Router Router
	// Cache is shared across callers. Nil creates a private cache.
	Cache *Cache
	// Clock drives cache TTL and "depart now" timestamps.
	Clock clock.Clock
	// Timeout bounds each provider call.
	Timeout  time.Duration
	Fallback Fallback

	// BreakerTrip is the number of consecutive provider failures after
	// which calls are skipped. 0 uses 5; negative disables the breaker.
	BreakerTrip     int
	BreakerCooldown time.Duration
	BreakerMaxDelay time.Duration
}

// Estimator answers commute-time queries and never fails: provider
// errors, timeouts and missing routes all degrade to the fallback estimate.
type Estimator struct {
	router   Router
	cache    *Cache
	clock    clock.Clock
	timeout  time.Duration
	fallback Fallback
	breaker  *breaker
	group    singleflight.Group
}

// NewEstimator builds an Estimator from cfg.
func NewEstimator(cfg Config) *Estimator {
	c := cfg.Clock
	if c == nil {
		c = clock.Real{}
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewCache(DefaultCacheTTL, c)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Estimator{
		router:   cfg.Router,
		cache:    cache,
		clock:    c,
		timeout:  timeout,
		fallback: cfg.Fallback,
		breaker:  newBreaker(cfg.BreakerTrip, cfg.BreakerCooldown, cfg.BreakerMaxDelay),
	}
}

// Cache exposes the estimator's cache for maintenance.
func (e *Estimator) Cache() *Cache {
	return e.cache
}

// Estimate returns a commute estimate from origin to dest, optionally
// arriving by arriveBy. Concurrent calls for the same cache key share one
// computation, which runs detached from any single caller's ctx and is
// bounded only by the estimator's timeout. A caller whose ctx ends first
// gets an uncached fallback estimate.
func (e *Estimator) Estimate(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time) Estimate {
	key := CacheKey(origin, dest, arriveBy)
	if est, ok := e.cache.Get(key); ok {
		appLog.Debug("transit cache hit", "key", key)
		return e.restamp(est, arriveBy)
	}

	detached := context.WithoutCancel(ctx)
	ch := e.group.DoChan(key, func() (any, error) {
		est := e.compute(detached, origin, dest, arriveBy)
		e.cache.Put(key, est)
		return est, nil
	})
	select {
	case r := <-ch:
		est := r.Val.(Estimate)
		est.Legs = cloneLegs(est.Legs)
		return e.restamp(est, arriveBy)
	case <-ctx.Done():
		appLog.Debug("transit caller gone before provider answered; using fallback", "key", key)
		return e.fallback.Estimate(origin, dest, arriveBy, e.clock.Now())
	}
}

// restamp moves a "depart now" estimate to the current time. Cached entries
// in the now bucket otherwise report a departure in the past.
func (e *Estimator) restamp(est Estimate, arriveBy *time.Time) Estimate {
	if arriveBy != nil || est.DepartureTime.IsZero() {
		return est
	}
	delta := e.clock.Now().UTC().Sub(est.DepartureTime)
	if delta <= 0 {
		return est
	}
	est.DepartureTime = est.DepartureTime.Add(delta)
	est.ArrivalTime = est.ArrivalTime.Add(delta)
	for i := range est.Legs {
		if !est.Legs[i].DepartureTime.IsZero() {
			est.Legs[i].DepartureTime = est.Legs[i].DepartureTime.Add(delta)
		}
		if !est.Legs[i].ArrivalTime.IsZero() {
			est.Legs[i].ArrivalTime = est.Legs[i].ArrivalTime.Add(delta)
		}
	}
	return est
}

func cloneLegs(legs []Leg) []Leg {
	if legs == nil {
		return nil
	}
	return append([]Leg(nil), legs...)
}

func (e *Estimator) compute(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time) Estimate {
	now := e.clock.Now()
	if e.router == nil {
		return e.fallback.Estimate(origin, dest, arriveBy, now)
	}

	est, err := e.routeOnce(ctx, origin, dest, arriveBy, now)
	if err == nil {
		return est
	}

	kv := []any{"origin", geo.GridKey(origin), "destination", geo.GridKey(dest)}
	switch {
	case errors.Is(err, ErrNoRoute):
		appLog.Info("transit provider found no route; using fallback", kv...)
	case errors.Is(err, ErrCircuitOpen):
		appLog.Debug("transit provider circuit open; using fallback", kv...)
	default:
		appLog.Error("transit provider failed; using fallback", err, kv...)
	}
	return e.fallback.Estimate(origin, dest, arriveBy, now)
}

func (e *Estimator) routeOnce(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time, now time.Time) (Estimate, error) {
	if !e.breaker.allow(now) {
		return Estimate{}, ErrCircuitOpen
	}

	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	est, err := e.router.Route(callCtx, Query{Origin: origin, Destination: dest, ArriveBy: arriveBy})
	if errors.Is(err, ErrNoRoute) {
		e.breaker.record(now, nil)
		return Estimate{}, err
	}
	// Cancellation of ctx itself is not a provider failure.
	if err != nil && ctx.Err() != nil {
		return Estimate{}, err
	}
	e.breaker.record(now, err)
	if err != nil {
		return Estimate{}, err
	}
	appLog.Debug("transit provider answered", "duration_min", est.DurationMinutes, "route", est.RouteLabel, "took", appLog.Since(started))

	fillTimes(&est, arriveBy, now)
	return est, nil
}

// fillTimes backfills departure/arrival when the provider omits them.
func fillTimes(est *Estimate, arriveBy *time.Time, now time.Time) {
	d := time.Duration(est.DurationMinutes) * time.Minute
	switch {
	case !est.DepartureTime.IsZero() && !est.ArrivalTime.IsZero():
	case arriveBy != nil:
		est.ArrivalTime = arriveBy.UTC()
		est.DepartureTime = est.ArrivalTime.Add(-d)
	default:
		est.DepartureTime = now.UTC()
		est.ArrivalTime = est.DepartureTime.Add(d)
	}
}
