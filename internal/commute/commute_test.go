package commute

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowcal/internal/clock"
	"shadowcal/internal/geo"
	"shadowcal/internal/model"
	"shadowcal/internal/transit"
)

type stubEstimator struct {
	est      transit.Estimate
	arriveBy *time.Time
}

func (s *stubEstimator) Estimate(_ context.Context, _, _ geo.Point, arriveBy *time.Time) transit.Estimate {
	s.arriveBy = arriveBy
	return s.est
}

var (
	user = geo.Point{Lat: 47.6062, Lng: -122.3321}
	job  = geo.Point{Lat: 47.6205, Lng: -122.3493}
)

func anchorAt(start time.Time, loc *model.Location) model.CalendarEvent {
	return model.CalendarEvent{
		ID:       "shift-1",
		OwnerID:  "u1",
		Kind:     model.KindShift,
		Interval: model.Interval{Start: start, End: start.Add(8 * time.Hour)},
		JobRef:   "job-9",
		Title:    "Barista",
		Location: loc,
	}
}

func TestGenerateEndsAtAnchorStart(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	stub := &stubEstimator{est: transit.Estimate{DurationMinutes: 25, RouteLabel: "8 → 44", Source: transit.SourceProvider}}
	g := NewGenerator(stub)

	ev := g.Generate(context.Background(), anchorAt(start, &model.Location{Point: &job}), user, model.ModeTransit)
	require.NotNil(t, ev)

	assert.Equal(t, model.KindCommute, ev.Kind)
	assert.True(t, ev.End.Equal(start))
	assert.True(t, ev.Start.Equal(start.Add(-25*time.Minute)))
	require.NotNil(t, stub.arriveBy)
	assert.True(t, stub.arriveBy.Equal(start))

	require.NotNil(t, ev.Transit)
	assert.Equal(t, "8 → 44", ev.Transit.RouteSummary)
	assert.Equal(t, 25, ev.Transit.DurationMinutes)
	assert.False(t, ev.Transit.Estimated)
	assert.Equal(t, "job-9", ev.JobRef)
	assert.Equal(t, "Commute to Barista", ev.Title)
}

func TestGenerateWithoutCoordinates(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	g := NewGenerator(&stubEstimator{})

	assert.Nil(t, g.Generate(context.Background(), anchorAt(start, nil), user, model.ModeTransit))
	assert.Nil(t, g.Generate(context.Background(), anchorAt(start, &model.Location{Address: "5th Ave"}), user, model.ModeTransit))
}

func TestGenerateFallsBackToDefaultBlock(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	anchor := anchorAt(start, &model.Location{Point: &job})

	for name, g := range map[string]*Generator{
		"nil estimator":  NewGenerator(nil),
		"empty estimate": NewGenerator(&stubEstimator{}),
	} {
		t.Run(name, func(t *testing.T) {
			ev := g.Generate(context.Background(), anchor, user, "")
			require.NotNil(t, ev)
			assert.Equal(t, DefaultBlock, ev.Duration())
			assert.True(t, ev.End.Equal(start))
			assert.True(t, ev.Transit.Estimated)
			assert.Equal(t, model.ModeTransit, ev.Transit.Mode)
		})
	}
}

func TestGenerateWithRealEstimatorFallback(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 3, 14, 0, 0, 0, time.UTC)
	est := transit.NewEstimator(transit.Config{Clock: clock.NewFixed(start.Add(-24 * time.Hour))})
	g := NewGenerator(est)

	a := g.Generate(context.Background(), anchorAt(start, &model.Location{Point: &job}), user, model.ModeTransit)
	b := g.Generate(context.Background(), anchorAt(start, &model.Location{Point: &job}), user, model.ModeTransit)
	require.NotNil(t, a)
	assert.Equal(t, a, b)
	assert.True(t, a.Transit.Estimated)
	assert.Positive(t, a.Transit.DurationMinutes)
}
