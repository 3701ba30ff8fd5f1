package conflict

import (
	"sort"
	"time"

	"shadowcal/internal/model"
)

// FreeSlots returns the start instants of every gap of at least required
// inside [rangeStart, rangeEnd) that no event covers. Events outside the
// range are ignored; events straddling a range edge only move the cursor.
// Each returned start is the beginning of a free run, so the slot
// [start, start+required) is always free.
func FreeSlots(events []model.Interval, rangeStart, rangeEnd time.Time, required time.Duration) []time.Time {
	if !rangeStart.Before(rangeEnd) || required <= 0 {
		return nil
	}
	window := model.Interval{Start: rangeStart, End: rangeEnd}

	inRange := make([]model.Interval, 0, len(events))
	for _, ev := range events {
		if ev.Valid() && Overlaps(ev, window) {
			inRange = append(inRange, ev)
		}
	}
	sort.SliceStable(inRange, func(i, j int) bool {
		return inRange[i].Start.Before(inRange[j].Start)
	})

	var out []time.Time
	cursor := rangeStart
	for _, ev := range inRange {
		if ev.Start.After(cursor) && ev.Start.Sub(cursor) >= required {
			out = append(out, cursor)
		}
		if ev.End.After(cursor) {
			cursor = ev.End
		}
	}
	if rangeEnd.Sub(cursor) >= required {
		out = append(out, cursor)
	}
	return out
}

// EventIntervals extracts the intervals of events, dropping invalid ones.
func EventIntervals(events []model.CalendarEvent) []model.Interval {
	out := make([]model.Interval, 0, len(events))
	for _, ev := range events {
		if ev.Interval.Valid() {
			out = append(out, ev.Interval)
		}
	}
	return out
}
