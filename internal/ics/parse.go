package ics

import (
	"bytes"
	"errors"
	"strconv"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	appLog "shadowcal/internal/log"
)

// ParsedEvent is one VEVENT as read from an ICS payload. Recurrences are
// recorded but not expanded; see ExpandOccurrences.
type ParsedEvent struct {
	SourceID string

	UID string
	Seq int

	Summary     string
	Description string
	Location    string
	Categories  string

	Start  time.Time
	End    time.Time
	AllDay bool

	RawRRule   string
	ExDates    []time.Time
	Recurrence *time.Time // RECURRENCE-ID
	IsOverride bool
}

// ParseICS parses an ICS payload. Floating times (no TZID, no Z) are read
// in loc; nil means UTC. Malformed VEVENTs are logged and skipped.
func ParseICS(sourceID string, body []byte, loc *time.Location) ([]ParsedEvent, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("ics: empty body")
	}
	if loc == nil {
		loc = time.UTC
	}

	cal, err := ical.ParseCalendar(bytes.NewReader(body))
	if err != nil {
		appLog.Error("ics parse failed", err, "source", sourceID)
		return nil, err
	}

	events := make([]ParsedEvent, 0)
	for _, comp := range cal.Events() {
		ev, perr := parseVEvent(comp, loc)
		if perr != nil {
			appLog.Warn("ics vevent skipped", "source", sourceID, "error", perr.Error())
			continue
		}
		ev.SourceID = sourceID
		events = append(events, ev)
	}

	appLog.Info("ics parse completed", "source", sourceID, "event_count", len(events))
	return events, nil
}

func parseVEvent(ve *ical.VEvent, loc *time.Location) (ParsedEvent, error) {
	var out ParsedEvent

	uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
	if uidProp == nil || uidProp.Value == "" {
		return out, errors.New("missing UID")
	}
	out.UID = uidProp.Value

	if p := ve.GetProperty(ical.ComponentPropertySequence); p != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(p.Value)); err == nil {
			out.Seq = n
		}
	}
	if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
		out.Summary = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyDescription); p != nil {
		out.Description = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyLocation); p != nil {
		out.Location = p.Value
	}
	if p := ve.GetProperty(ical.ComponentPropertyCategories); p != nil {
		out.Categories = p.Value
	}

	dtStart := ve.GetProperty(ical.ComponentPropertyDtStart)
	if dtStart == nil {
		return out, errors.New("missing DTSTART")
	}
	start, err := propTime(dtStart, loc)
	if err != nil {
		return out, err
	}
	out.Start = start
	out.AllDay = isDateOnly(dtStart)

	switch {
	case ve.GetProperty(ical.ComponentPropertyDtEnd) != nil:
		end, err := propTime(ve.GetProperty(ical.ComponentPropertyDtEnd), loc)
		if err != nil {
			return out, err
		}
		out.End = end
	case out.AllDay:
		out.End = start.AddDate(0, 0, 1)
	default:
		// Timed event without DTEND blocks one hour.
		out.End = start.Add(time.Hour)
	}
	if !out.End.After(out.Start) {
		return out, errors.New("DTEND is not after DTSTART")
	}

	if p := ve.GetProperty(ical.ComponentPropertyRrule); p != nil {
		out.RawRRule = p.Value
	}

	for _, p := range ve.GetProperties(ical.ComponentPropertyExdate) {
		tz := tzFor(p.ICalParameters, loc)
		for _, part := range strings.Split(p.Value, ",") {
			if t, err := parseICSTime(part, tz); err == nil {
				out.ExDates = append(out.ExDates, t)
			}
		}
	}

	if p := ve.GetProperty("RECURRENCE-ID"); p != nil {
		if t, err := parseICSTime(p.Value, tzFor(p.ICalParameters, loc)); err == nil {
			out.Recurrence = &t
			out.IsOverride = true
		}
	}

	return out, nil
}

func isDateOnly(p *ical.IANAProperty) bool {
	if vs, ok := p.ICalParameters["VALUE"]; ok && len(vs) > 0 && strings.EqualFold(vs[0], "DATE") {
		return true
	}
	return !strings.Contains(p.Value, "T")
}

func propTime(p *ical.IANAProperty, loc *time.Location) (time.Time, error) {
	return parseICSTime(p.Value, tzFor(p.ICalParameters, loc))
}

// tzFor resolves a TZID parameter, falling back to loc for floating or
// unknown zones.
func tzFor(params map[string][]string, loc *time.Location) *time.Location {
	if tzs, ok := params["TZID"]; ok && len(tzs) > 0 {
		if l, err := time.LoadLocation(tzs[0]); err == nil {
			return l
		}
		appLog.Warn("ics unknown TZID, using default zone", "tzid", tzs[0], "zone", loc.String())
	}
	return loc
}

// parseICSTime parses DATE, floating DATE-TIME and UTC DATE-TIME values.
func parseICSTime(v string, loc *time.Location) (time.Time, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "":
		return time.Time{}, errors.New("empty time value")
	case strings.HasSuffix(v, "Z"):
		return time.Parse("20060102T150405Z", v)
	case strings.Contains(v, "T"):
		return time.ParseInLocation("20060102T150405", v, loc)
	default:
		return time.ParseInLocation("20060102", v, loc)
	}
}
