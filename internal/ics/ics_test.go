package ics

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shadowcal/internal/model"
)

const sampleICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:class-1\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260302T140000Z\r\n" +
	"DTEND:20260302T153000Z\r\n" +
	"RRULE:FREQ=WEEKLY;BYDAY=MO,WE\r\n" +
	"EXDATE:20260304T140000Z\r\n" +
	"SUMMARY:Statistics\r\n" +
	"LOCATION:Hall 4\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:class-1\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"RECURRENCE-ID:20260309T140000Z\r\n" +
	"DTSTART:20260309T160000Z\r\n" +
	"DTEND:20260309T173000Z\r\n" +
	"SUMMARY:Statistics (moved)\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:dentist\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260303T100000\r\n" +
	"DTEND:20260303T110000\r\n" +
	"SUMMARY:Dentist\r\n" +
	"CATEGORIES:interview\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"DTSTAMP:20260301T000000Z\r\n" +
	"DTSTART:20260303T100000Z\r\n" +
	"SUMMARY:No UID\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestParseICS(t *testing.T) {
	t.Parallel()

	ny := time.FixedZone("EST", -5*3600)
	events, err := ParseICS("upload", []byte(sampleICS), ny)
	require.NoError(t, err)
	require.Len(t, events, 3, "event without UID is skipped")

	base := events[0]
	assert.Equal(t, "upload", base.SourceID)
	assert.Equal(t, "Statistics", base.Summary)
	assert.Equal(t, "Hall 4", base.Location)
	assert.Equal(t, "FREQ=WEEKLY;BYDAY=MO,WE", base.RawRRule)
	require.Len(t, base.ExDates, 1)
	assert.False(t, base.AllDay)

	assert.True(t, events[1].IsOverride)
	require.NotNil(t, events[1].Recurrence)

	// Floating time is read in the default zone.
	assert.True(t, events[2].Start.Equal(time.Date(2026, 3, 3, 15, 0, 0, 0, time.UTC)))
	assert.Equal(t, "interview", events[2].Categories)

	_, err = ParseICS("empty", []byte("  "), nil)
	assert.Error(t, err)
}

func TestExpandOccurrences(t *testing.T) {
	t.Parallel()

	events, err := ParseICS("upload", []byte(sampleICS), time.UTC)
	require.NoError(t, err)

	res, err := ExpandOccurrences(events, ExpandConfig{
		RangeStart: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Empty(t, res.TruncatedEvents)

	var got []string
	for _, o := range res.Occurrences {
		got = append(got, o.UID+" "+o.Start.Format("Jan 2 15:04")+" "+o.Summary)
	}
	assert.Equal(t, []string{
		"class-1 Mar 2 14:00 Statistics",
		// Mar 4 is excluded.
		"class-1 Mar 9 16:00 Statistics (moved)",
		"class-1 Mar 11 14:00 Statistics",
		"dentist Mar 3 10:00 Dentist",
	}, got)
	assert.Equal(t, "20260309T140000Z", res.Occurrences[1].InstanceKey)
}

func TestExpandRangeAndCap(t *testing.T) {
	t.Parallel()

	daily := []ParsedEvent{{
		UID:      "daily",
		Start:    time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 1, 2, 1, 0, 0, 0, time.UTC),
		RawRRule: "FREQ=DAILY",
	}}

	_, err := ExpandOccurrences(daily, ExpandConfig{
		RangeStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	assert.Error(t, err)

	res, err := ExpandOccurrences(daily, ExpandConfig{
		RangeStart: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:   time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Len(t, res.Occurrences, 1, "instance running across RangeStart is kept")
	assert.Equal(t, 31, res.Occurrences[0].Start.Day())

	res, err = ExpandOccurrences(daily, ExpandConfig{
		RangeStart:             time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RangeEnd:               time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		MaxOccurrencesPerEvent: 5,
	})
	require.NoError(t, err)
	assert.Len(t, res.Occurrences, 5)
	assert.Equal(t, []string{"daily"}, res.TruncatedEvents)
}

func TestToEventsAndExportRoundTrip(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC)
	in := []model.CalendarEvent{
		{
			ID: "commute:shift:j1:20260302T0900", OwnerID: "u1", Kind: model.KindCommute,
			Interval: model.Interval{Start: start, End: start.Add(45 * time.Minute)},
			Title:    "Commute to Barista",
			Transit:  &model.TransitInfo{Mode: model.ModeTransit, RouteSummary: "M15 → Q32", DurationMinutes: 45},
		},
		{
			ID: "shift:j1:20260302T0900", OwnerID: "u1", Kind: model.KindShift,
			Interval: model.Interval{Start: start.Add(45 * time.Minute), End: start.Add(525 * time.Minute)},
			Location: &model.Location{Address: "1 Main St"},
		},
	}

	out := Export("Shadow calendar", in, start)
	assert.True(t, strings.HasPrefix(out, "BEGIN:VCALENDAR"))
	assert.Contains(t, out, "UID:shift:j1:20260302T0900")
	assert.Contains(t, out, "SUMMARY:Shift")

	parsed, err := ParseICS("export", []byte(out), time.UTC)
	require.NoError(t, err)
	res, err := ExpandOccurrences(parsed, ExpandConfig{RangeStart: start.Add(-time.Hour), RangeEnd: start.Add(24 * time.Hour)})
	require.NoError(t, err)

	got := ToEvents(res.Occurrences, "u2")
	require.Len(t, got, 2)
	assert.Equal(t, model.KindCommute, got[0].Kind)
	assert.Equal(t, model.KindShift, got[1].Kind)
	assert.Equal(t, "u2", got[1].OwnerID)
	assert.True(t, got[1].Start.Equal(in[1].Start))
	assert.True(t, got[1].End.Equal(in[1].End))
	require.NotNil(t, got[1].Location)
	assert.Equal(t, "1 Main St", got[1].Location.Address)
	assert.Equal(t, "ics:shift:j1:20260302T0900:20260302T090000Z", got[1].ID)
}
