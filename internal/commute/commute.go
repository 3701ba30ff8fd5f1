// Package commute synthesizes travel blocks that end exactly when an
// anchor event starts.
package commute

import (
	"context"
	"time"

	"shadowcal/internal/geo"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
	"shadowcal/internal/transit"
)

// DefaultBlock is used when no estimate can be produced at all.
const DefaultBlock = 30 * time.Minute

// Estimator is the subset of transit.Estimator the generator needs.
type Estimator interface {
	Estimate(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time) transit.Estimate
}

// Generator builds commute events.
type Generator struct {
	estimator Estimator
}

// NewGenerator returns a generator. A nil estimator yields fixed
// DefaultBlock commutes.
func NewGenerator(est Estimator) *Generator {
	return &Generator{estimator: est}
}

// Generate returns the commute from userLocation to anchor, or nil when the
// anchor has no usable coordinates.
func (g *Generator) Generate(ctx context.Context, anchor model.CalendarEvent, userLocation geo.Point, mode model.TransitMode) *model.CalendarEvent {
	dest, ok := anchor.Location.Coordinates()
	if !ok {
		return nil
	}

	var est *transit.Estimate
	if g != nil && g.estimator != nil {
		start := anchor.Start
		e := g.estimator.Estimate(ctx, userLocation, dest, &start)
		est = &e
	}
	return FromEstimate(anchor, est, mode)
}

// FromEstimate builds the commute for anchor from an already computed
// estimate. A nil or empty estimate produces a DefaultBlock commute.
func FromEstimate(anchor model.CalendarEvent, est *transit.Estimate, mode model.TransitMode) *model.CalendarEvent {
	if mode == "" {
		mode = model.ModeTransit
	}

	length := DefaultBlock
	info := &model.TransitInfo{
		Mode:            mode,
		RouteSummary:    "Estimated commute",
		DurationMinutes: int(DefaultBlock / time.Minute),
		Estimated:       true,
	}
	if est != nil && est.DurationMinutes > 0 {
		length = time.Duration(est.DurationMinutes) * time.Minute
		info.RouteSummary = est.RouteLabel
		info.DurationMinutes = est.DurationMinutes
		info.Estimated = est.Estimated()
	} else {
		appLog.Warn("commute estimate unavailable; using default block",
			"anchor", anchor.ID, "minutes", info.DurationMinutes)
	}

	ev := model.CalendarEvent{
		ID:             "commute:" + anchor.ID,
		OwnerID:        anchor.OwnerID,
		Kind:           model.KindCommute,
		Interval:       model.Interval{Start: anchor.Start.Add(-length), End: anchor.Start},
		JobRef:         anchor.JobRef,
		ApplicationRef: anchor.ApplicationRef,
		InterviewRef:   anchor.InterviewRef,
		Title:          commuteTitle(anchor),
		Transit:        info,
	}
	return &ev
}

func commuteTitle(anchor model.CalendarEvent) string {
	if anchor.Title == "" {
		return "Commute"
	}
	return "Commute to " + anchor.Title
}
