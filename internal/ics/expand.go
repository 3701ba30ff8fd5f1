package ics

import (
	"errors"
	"time"

	"github.com/teambition/rrule-go"

	appLog "shadowcal/internal/log"
)

const defaultMaxOccurrencesPerEvent = 5000

// Occurrence is one concrete instance of a (possibly recurring) event.
type Occurrence struct {
	SourceID    string
	UID         string
	InstanceKey string
	Summary     string
	Location    string
	Categories  string
	AllDay      bool
	Start       time.Time
	End         time.Time
}

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Location is the zone occurrences are converted to; nil means UTC.
	Location *time.Location

	// Occurrences intersecting [RangeStart, RangeEnd) are returned.
	RangeStart time.Time
	RangeEnd   time.Time

	// MaxOccurrencesPerEvent caps runaway rules. Zero uses the default.
	MaxOccurrencesPerEvent int
}

// ExpandResult holds expanded occurrences.
type ExpandResult struct {
	Occurrences []Occurrence
	// TruncatedEvents lists UIDs that hit MaxOccurrencesPerEvent.
	TruncatedEvents []string
}

// ExpandOccurrences expands parsed events into occurrences within the
// configured range. It handles single events, RRULE recurrences, EXDATE
// exclusions and RECURRENCE-ID overrides.
func ExpandOccurrences(events []ParsedEvent, cfg ExpandConfig) (ExpandResult, error) {
	var result ExpandResult

	if !cfg.RangeEnd.After(cfg.RangeStart) {
		return result, errors.New("expand: RangeEnd is not after RangeStart")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.MaxOccurrencesPerEvent <= 0 {
		cfg.MaxOccurrencesPerEvent = defaultMaxOccurrencesPerEvent
	}

	baseByUID := make(map[string][]ParsedEvent)
	overridesByUID := make(map[string][]ParsedEvent)
	var order []string
	for _, ev := range events {
		if ev.IsOverride && ev.Recurrence != nil {
			overridesByUID[ev.UID] = append(overridesByUID[ev.UID], ev)
			continue
		}
		if _, seen := baseByUID[ev.UID]; !seen {
			order = append(order, ev.UID)
		}
		baseByUID[ev.UID] = append(baseByUID[ev.UID], ev)
	}

	out := make([]Occurrence, 0)
	for _, uid := range order {
		truncated := false
		for _, ev := range baseByUID[uid] {
			occ, hitCap := expandEvent(ev, overridesByUID[uid], cfg)
			truncated = truncated || hitCap
			out = append(out, occ...)
		}
		if truncated {
			result.TruncatedEvents = append(result.TruncatedEvents, uid)
			appLog.Warn("expand: truncated occurrences", "uid", uid, "cap", cfg.MaxOccurrencesPerEvent)
		}
	}

	result.Occurrences = out
	return result, nil
}

func expandEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	if ev.RawRRule == "" {
		return expandSingleEvent(ev, overrides, cfg), false
	}
	return expandRecurringEvent(ev, overrides, cfg)
}

func expandSingleEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) []Occurrence {
	start, end := ev.Start, ev.End
	if o, ok := findOverrideForStart(overrides, start); ok {
		start, end, ev = o.Start, o.End, o
	}
	if !inRange(start, end, cfg) {
		return nil
	}
	return []Occurrence{makeOccurrence(ev, start, end, cfg.Location)}
}

func expandRecurringEvent(ev ParsedEvent, overrides []ParsedEvent, cfg ExpandConfig) ([]Occurrence, bool) {
	out := make([]Occurrence, 0)

	r, err := rrule.StrToRRule(ev.RawRRule)
	if err != nil {
		appLog.Error("expand: failed to parse RRULE", err, "uid", ev.UID, "rrule", ev.RawRRule)
		return out, false
	}
	r.DTStart(ev.Start)

	var set rrule.Set
	set.RRule(r)
	for _, ex := range ev.ExDates {
		set.ExDate(ex.In(ev.Start.Location()))
	}

	dur := ev.End.Sub(ev.Start)
	// Instances still running at RangeStart count.
	from := cfg.RangeStart.Add(-dur).In(ev.Start.Location())
	to := cfg.RangeEnd.In(ev.Start.Location())
	starts := set.Between(from, to, true)

	hitCap := false
	if len(starts) > cfg.MaxOccurrencesPerEvent {
		starts = starts[:cfg.MaxOccurrencesPerEvent]
		hitCap = true
	}

	for _, s := range starts {
		e := s.Add(dur)
		if ev.AllDay {
			s = time.Date(s.Year(), s.Month(), s.Day(), 0, 0, 0, 0, s.Location())
			e = s.AddDate(0, 0, 1)
		}
		inst := ev
		if o, ok := findOverrideForStart(overrides, s); ok {
			s, e, inst = o.Start, o.End, o
		}
		if !inRange(s, e, cfg) {
			continue
		}
		out = append(out, makeOccurrence(inst, s, e, cfg.Location))
	}
	return out, hitCap
}

func findOverrideForStart(overrides []ParsedEvent, start time.Time) (ParsedEvent, bool) {
	for _, ov := range overrides {
		if ov.Recurrence != nil && ov.Recurrence.Equal(start) {
			return ov, true
		}
	}
	return ParsedEvent{}, false
}

// makeOccurrence keys overridden instances by their RECURRENCE-ID so a
// moved instance keeps its identity.
func makeOccurrence(ev ParsedEvent, start, end time.Time, loc *time.Location) Occurrence {
	key := start
	if ev.Recurrence != nil {
		key = *ev.Recurrence
	}
	return Occurrence{
		SourceID:    ev.SourceID,
		UID:         ev.UID,
		InstanceKey: key.UTC().Format("20060102T150405Z"),
		Summary:     ev.Summary,
		Location:    ev.Location,
		Categories:  ev.Categories,
		AllDay:      ev.AllDay,
		Start:       start.In(loc),
		End:         end.In(loc),
	}
}

func inRange(start, end time.Time, cfg ExpandConfig) bool {
	return start.Before(cfg.RangeEnd) && cfg.RangeStart.Before(end)
}
