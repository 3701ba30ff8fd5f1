package model

import (
	"errors"
	"fmt"
	"time"

	"shadowcal/internal/geo"
)

// ErrInvalidInterval is returned when an interval does not satisfy start < end.
var ErrInvalidInterval = errors.New("invalid interval: start must be before end")

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewInterval validates start < end and normalizes both bounds to UTC.
func NewInterval(start, end time.Time) (Interval, error) {
	if !start.Before(end) {
		return Interval{}, fmt.Errorf("%w: [%s, %s)", ErrInvalidInterval,
			start.Format(time.RFC3339), end.Format(time.RFC3339))
	}
	return Interval{Start: start.UTC(), End: end.UTC()}, nil
}

// Duration returns End - Start.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Valid reports whether the interval is non-empty.
func (iv Interval) Valid() bool {
	return iv.Start.Before(iv.End)
}

// EventKind classifies a calendar entry.
type EventKind string

const (
	KindShift     EventKind = "shift"
	KindCommute   EventKind = "commute"
	KindInterview EventKind = "interview"
	KindBlock     EventKind = "block"
)

// Valid reports whether k is one of the known kinds.
func (k EventKind) Valid() bool {
	switch k {
	case KindShift, KindCommute, KindInterview, KindBlock:
		return true
	}
	return false
}

// Location is an optional address and/or coordinate. A nil *Location means
// "no location known"; a Location with a nil Point still needs geocoding.
type Location struct {
	Address string     `json:"address,omitempty"`
	Point   *geo.Point `json:"point,omitempty"`
}

// Coordinates returns the usable point, if any.
func (l *Location) Coordinates() (geo.Point, bool) {
	if l == nil || l.Point == nil || !l.Point.Valid() {
		return geo.Point{}, false
	}
	return *l.Point, true
}

// TransitMode is how the user travels to an anchor event.
type TransitMode string

const (
	ModeTransit TransitMode = "transit"
	ModeWalk    TransitMode = "walk"
	ModeDrive   TransitMode = "drive"
	ModeBike    TransitMode = "bike"
)

// TransitInfo is the commute metadata attached to commute events.
type TransitInfo struct {
	Mode            TransitMode `json:"mode"`
	RouteSummary    string      `json:"route_summary"`
	DurationMinutes int         `json:"duration_minutes"`
	Estimated       bool        `json:"estimated"`
}

// CalendarEvent is a single concrete entry in a user's calendar. Events are
// value objects; storage belongs to the caller.
type CalendarEvent struct {
	ID      string    `json:"id,omitempty"`
	OwnerID string    `json:"owner_id"`
	Kind    EventKind `json:"kind"`

	Interval

	JobRef         string `json:"job_ref,omitempty"`
	ApplicationRef string `json:"application_ref,omitempty"`
	InterviewRef   string `json:"interview_ref,omitempty"`

	Title    string       `json:"title,omitempty"`
	Location *Location    `json:"location,omitempty"`
	Transit  *TransitInfo `json:"transit,omitempty"`
}

// NewEvent builds an event after validating its interval and kind.
func NewEvent(owner string, kind EventKind, start, end time.Time) (CalendarEvent, error) {
	if !kind.Valid() {
		return CalendarEvent{}, fmt.Errorf("unknown event kind %q", kind)
	}
	iv, err := NewInterval(start, end)
	if err != nil {
		return CalendarEvent{}, err
	}
	return CalendarEvent{OwnerID: owner, Kind: kind, Interval: iv}, nil
}

// Validate checks the invariants an event must satisfy before it enters
// conflict detection.
func (e CalendarEvent) Validate() error {
	if !e.Kind.Valid() {
		return fmt.Errorf("event %q: unknown kind %q", e.ID, e.Kind)
	}
	if !e.Interval.Valid() {
		return fmt.Errorf("event %q: %w", e.ID, ErrInvalidInterval)
	}
	return nil
}
