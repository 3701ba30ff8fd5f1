// Package conflict implements half-open interval overlap tests, conflict
// detection between a candidate event and existing commitments, and the
// free-slot sweep.
package conflict

import (
	"math"
	"time"

	"shadowcal/internal/model"
)

// OverlapKind tells whether the existing event fully contains the candidate.
type OverlapKind string

const (
	OverlapFull    OverlapKind = "full"
	OverlapPartial OverlapKind = "partial"
)

// Detail describes one collision between a candidate and an existing event.
type Detail struct {
	Candidate      model.CalendarEvent `json:"candidate"`
	Existing       model.CalendarEvent `json:"existing_event"`
	OverlapMinutes int                 `json:"overlap_minutes"`
	Kind           OverlapKind         `json:"overlap_kind"`
	OverlapStart   time.Time           `json:"overlap_start"`
	OverlapEnd     time.Time           `json:"overlap_end"`
}

// Overlaps reports whether a and b share any instant. Touching endpoints do
// not overlap.
func Overlaps(a, b model.Interval) bool {
	return a.Start.Before(b.End) && a.End.After(b.Start)
}

// OverlapMinutes returns the length of a ∩ b rounded to the nearest minute,
// or 0 when they do not overlap.
func OverlapMinutes(a, b model.Interval) int {
	start, end, ok := intersection(a, b)
	if !ok {
		return 0
	}
	return int(math.Round(end.Sub(start).Minutes()))
}

// IsFullOverlap reports whether existing contains candidate entirely.
func IsFullOverlap(candidate, existing model.Interval) bool {
	return !existing.Start.After(candidate.Start) && !existing.End.Before(candidate.End)
}

// FindConflicts checks candidate against every existing event in input order.
// An existing event with the candidate's ID is skipped.
func FindConflicts(candidate model.CalendarEvent, existing []model.CalendarEvent) []Detail {
	var out []Detail
	for _, ev := range existing {
		if candidate.ID != "" && ev.ID == candidate.ID {
			continue
		}
		start, end, ok := intersection(candidate.Interval, ev.Interval)
		if !ok {
			continue
		}
		kind := OverlapPartial
		if IsFullOverlap(candidate.Interval, ev.Interval) {
			kind = OverlapFull
		}
		out = append(out, Detail{
			Candidate:      candidate,
			Existing:       ev,
			OverlapMinutes: int(math.Round(end.Sub(start).Minutes())),
			Kind:           kind,
			OverlapStart:   start,
			OverlapEnd:     end,
		})
	}
	return out
}

func intersection(a, b model.Interval) (time.Time, time.Time, bool) {
	if !Overlaps(a, b) {
		return time.Time{}, time.Time{}, false
	}
	start := a.Start
	if b.Start.After(start) {
		start = b.Start
	}
	end := a.End
	if b.End.Before(end) {
		end = b.End
	}
	return start, end, true
}
