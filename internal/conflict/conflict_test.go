package conflict

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowcal/internal/model"
)

var base = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC) // a Monday

func at(day, hour, minute int) time.Time {
	return base.AddDate(0, 0, day).Add(time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute)
}

func iv(start, end time.Time) model.Interval {
	return model.Interval{Start: start, End: end}
}

func randomInterval(r *rand.Rand) model.Interval {
	start := base.Add(time.Duration(r.Intn(24*60)) * time.Minute)
	return iv(start, start.Add(time.Duration(1+r.Intn(8*60))*time.Minute))
}

func TestOverlapProperties(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		a := randomInterval(r)
		b := randomInterval(r)

		assert.Equal(t, Overlaps(a, b), Overlaps(b, a), "symmetry for %v %v", a, b)

		m := OverlapMinutes(a, b)
		limit := int(a.Duration().Minutes())
		if d := int(b.Duration().Minutes()); d < limit {
			limit = d
		}
		assert.LessOrEqual(t, m, limit)
		if !Overlaps(a, b) {
			assert.Zero(t, m)
		}

		if IsFullOverlap(a, b) {
			assert.True(t, Overlaps(a, b), "containment implies overlap for %v in %v", a, b)
		}
	}
}

func TestTouchingIntervalsDoNotOverlap(t *testing.T) {
	t.Parallel()

	a := iv(at(0, 9, 0), at(0, 10, 0))
	b := iv(at(0, 10, 0), at(0, 11, 0))

	assert.False(t, Overlaps(a, b))
	assert.False(t, Overlaps(b, a))
	assert.Zero(t, OverlapMinutes(a, b))
}

func TestOverlapMinutesRounds(t *testing.T) {
	t.Parallel()

	a := iv(at(0, 9, 0), at(0, 10, 0))
	b := iv(at(0, 9, 30).Add(31*time.Second), at(0, 11, 0))

	// 29m29s rounds down.
	assert.Equal(t, 29, OverlapMinutes(a, b))

	c := iv(at(0, 9, 29).Add(29*time.Second), at(0, 11, 0))
	assert.Equal(t, 31, OverlapMinutes(a, c))
}

func TestCommuteBlockBeforeMeetingDoesNotConflict(t *testing.T) {
	t.Parallel()

	commute := model.CalendarEvent{Kind: model.KindCommute, Interval: iv(at(1, 13, 30), at(1, 13, 50))}
	meeting := model.CalendarEvent{ID: "m", Kind: model.KindBlock, Interval: iv(at(1, 14, 0), at(1, 15, 0))}

	assert.False(t, Overlaps(commute.Interval, meeting.Interval))
	assert.Empty(t, FindConflicts(commute, []model.CalendarEvent{meeting}))
}

func TestFindConflicts(t *testing.T) {
	t.Parallel()

	candidate := model.CalendarEvent{ID: "c", Kind: model.KindShift, Interval: iv(at(0, 9, 0), at(0, 17, 0))}
	existing := []model.CalendarEvent{
		{ID: "c", Kind: model.KindShift, Interval: candidate.Interval},
		{ID: "all-day", Kind: model.KindBlock, Interval: iv(at(0, 8, 0), at(0, 18, 0))},
		{ID: "lunch", Kind: model.KindBlock, Interval: iv(at(0, 12, 0), at(0, 13, 0))},
		{ID: "evening", Kind: model.KindBlock, Interval: iv(at(0, 17, 0), at(0, 19, 0))},
		{ID: "late-start", Kind: model.KindInterview, Interval: iv(at(0, 16, 15), at(0, 18, 0))},
	}

	got := FindConflicts(candidate, existing)
	require.Len(t, got, 3)

	type summary struct {
		ID      string
		Kind    OverlapKind
		Minutes int
		Start   time.Time
		End     time.Time
	}
	var sums []summary
	for _, d := range got {
		sums = append(sums, summary{d.Existing.ID, d.Kind, d.OverlapMinutes, d.OverlapStart, d.OverlapEnd})
	}
	want := []summary{
		{"all-day", OverlapFull, 480, at(0, 9, 0), at(0, 17, 0)},
		{"lunch", OverlapPartial, 60, at(0, 12, 0), at(0, 13, 0)},
		{"late-start", OverlapPartial, 45, at(0, 16, 15), at(0, 17, 0)},
	}
	if diff := cmp.Diff(want, sums); diff != "" {
		t.Fatalf("conflicts mismatch (-want +got):\n%s", diff)
	}
}

func TestFreeSlots(t *testing.T) {
	t.Parallel()

	events := []model.Interval{
		iv(at(0, 12, 0), at(0, 13, 0)),
		iv(at(0, 7, 0), at(0, 9, 30)), // straddles range start
		iv(at(0, 12, 30), at(0, 14, 0)),
		iv(at(0, 16, 30), at(0, 19, 0)), // straddles range end
		iv(at(1, 9, 0), at(1, 10, 0)),   // outside range
	}

	got := FreeSlots(events, at(0, 9, 0), at(0, 17, 0), time.Hour)
	want := []time.Time{at(0, 9, 30), at(0, 14, 0)}
	assert.Equal(t, want, got)
}

func TestFreeSlotsTrailingAndEmpty(t *testing.T) {
	t.Parallel()

	got := FreeSlots(nil, at(0, 9, 0), at(0, 10, 0), time.Hour)
	assert.Equal(t, []time.Time{at(0, 9, 0)}, got)

	got = FreeSlots(nil, at(0, 9, 0), at(0, 9, 59), time.Hour)
	assert.Empty(t, got)

	got = FreeSlots(nil, at(0, 10, 0), at(0, 9, 0), time.Hour)
	assert.Empty(t, got)
}

func TestFreeSlotsValidity(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		events := make([]model.Interval, 0, 6)
		for i := 0; i < 6; i++ {
			events = append(events, randomInterval(r))
		}
		required := time.Duration(15+r.Intn(120)) * time.Minute
		rangeStart := at(0, 6, 0)
		rangeEnd := at(0, 22, 0)

		for _, start := range FreeSlots(events, rangeStart, rangeEnd, required) {
			slot := iv(start, start.Add(required))
			assert.False(t, slot.End.After(rangeEnd))
			assert.False(t, slot.Start.Before(rangeStart))
			for _, ev := range events {
				assert.False(t, Overlaps(slot, ev), "slot %v overlaps %v", slot, ev)
			}
		}
	}
}
