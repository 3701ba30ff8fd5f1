package shift

import (
	"fmt"
	"sort"
	"time"

	"github.com/teambition/rrule-go"

	"shadowcal/internal/model"
)

var rruleWeekdays = map[time.Weekday]rrule.Weekday{
	time.Sunday:    rrule.SU,
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
}

// RRule returns the weekly recurrence of t anchored at dtstart's date and
// location. dtstart's clock is replaced by t.Start.
func (t Template) RRule(dtstart time.Time) (*rrule.RRule, error) {
	loc := dtstart.Location()
	anchor := time.Date(dtstart.Year(), dtstart.Month(), dtstart.Day(), t.Start.Hour, t.Start.Minute, 0, 0, loc)
	return rrule.NewRRule(rrule.ROption{
		Freq:      rrule.WEEKLY,
		Dtstart:   anchor,
		Byweekday: []rrule.Weekday{rruleWeekdays[t.Day]},
	})
}

// ProjectRange expands templates over [from, to) in from's location. Every
// shift whose start falls in the range is returned, ordered by start.
func ProjectRange(ts []Template, from, to time.Time, opts ProjectOptions) ([]model.CalendarEvent, error) {
	if !from.Before(to) {
		return nil, nil
	}
	loc := from.Location()
	dayStart := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, loc)

	out := make([]model.CalendarEvent, 0)
	for _, t := range ts {
		r, err := t.RRule(dayStart)
		if err != nil {
			return nil, fmt.Errorf("rrule for %s: %w", t, err)
		}
		for _, occ := range r.Between(from, to, true) {
			if !occ.Before(to) {
				continue
			}
			ev, err := projectOnDate(t, occ.In(loc), opts)
			if err != nil {
				return nil, err
			}
			out = append(out, ev)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}
