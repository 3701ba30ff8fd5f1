package ics

import (
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"shadowcal/internal/model"
)

const productID = "-//shadowcal//shadow calendar//EN"

// ToEvents converts occurrences into owner's calendar events. The kind is
// taken from CATEGORIES when it names one, otherwise the event is a block.
func ToEvents(occs []Occurrence, ownerID string) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(occs))
	for _, o := range occs {
		kind := model.EventKind(strings.ToLower(strings.TrimSpace(o.Categories)))
		if !kind.Valid() {
			kind = model.KindBlock
		}
		ev := model.CalendarEvent{
			ID:       "ics:" + o.UID + ":" + o.InstanceKey,
			OwnerID:  ownerID,
			Kind:     kind,
			Interval: model.Interval{Start: o.Start.UTC(), End: o.End.UTC()},
			Title:    o.Summary,
		}
		if o.Location != "" {
			ev.Location = &model.Location{Address: o.Location}
		}
		out = append(out, ev)
	}
	return out
}

// Export renders events as an ICS calendar. Commute blocks carry their
// route summary in DESCRIPTION.
func Export(name string, events []model.CalendarEvent, now time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetName(name)
	}

	for _, ev := range events {
		uid := ev.ID
		if uid == "" {
			uid = string(ev.Kind) + ":" + ev.Start.UTC().Format("20060102T150405Z")
		}
		ve := cal.AddEvent(uid)
		ve.SetDtStampTime(now.UTC())
		ve.SetStartAt(ev.Start.UTC())
		ve.SetEndAt(ev.End.UTC())
		ve.SetSummary(summaryFor(ev))
		ve.SetProperty(ical.ComponentPropertyCategories, string(ev.Kind))
		if ev.Location != nil && ev.Location.Address != "" {
			ve.SetLocation(ev.Location.Address)
		}
		if ev.Transit != nil {
			desc := ev.Transit.RouteSummary
			if ev.Transit.Estimated {
				desc += " (estimated)"
			}
			ve.SetDescription(desc)
		}
	}
	return cal.Serialize()
}

func summaryFor(ev model.CalendarEvent) string {
	if ev.Title != "" {
		return ev.Title
	}
	switch ev.Kind {
	case model.KindShift:
		return "Shift"
	case model.KindCommute:
		return "Commute"
	case model.KindInterview:
		return "Interview"
	}
	return "Busy"
}
