package shift

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var est = time.FixedZone("EST", -5*60*60)

func TestLibraryLookup(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()

	tests := []struct {
		label string
		want  string
		found bool
	}{
		{label: "full_time", want: "full_time", found: true},
		{label: "Full-Time", want: "full_time", found: true},
		{label: "full time", want: "full_time", found: true},
		{label: "fulltime", want: "full_time", found: true},
		{label: "Retail", want: "retail", found: true},
		{label: "restaurant", want: "food_service", found: true},
		{label: "astronaut", want: "full_time", found: false},
		{label: "", want: "full_time", found: false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, found := lib.Templates(tt.label)
			assert.Equal(t, tt.found, found)
			assert.Equal(t, builtinPatterns[tt.want], got)
		})
	}
}

func TestLibraryTemplatesReturnsCopy(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	got, _ := lib.Templates("full_time")
	got[0].Day = time.Sunday

	again, _ := lib.Templates("full_time")
	assert.Equal(t, time.Monday, again[0].Day)
}

func TestLibraryReplaceAddsTypes(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	lib.Replace(map[string][]Template{
		"Barista": {{Day: time.Saturday, Start: Clock{6, 0}, End: Clock{12, 0}}},
	})

	got, found := lib.Templates("barista")
	require.True(t, found)
	require.Len(t, got, 1)
	assert.Contains(t, lib.Types(), "barista")
	assert.Contains(t, lib.Types(), "full_time")

	lib.Replace(nil)
	_, found = lib.Templates("barista")
	assert.False(t, found)
}

func TestParseTemplate(t *testing.T) {
	t.Parallel()

	tpl, err := ParseTemplate(Spec{Day: "Tue", Start: "14:00", End: "15:30"})
	require.NoError(t, err)
	assert.Equal(t, Template{Day: time.Tuesday, Start: Clock{14, 0}, End: Clock{15, 30}}, tpl)
	assert.Equal(t, 90*time.Minute, tpl.Length())

	for _, bad := range []Spec{
		{Day: "someday", Start: "09:00", End: "10:00"},
		{Day: "mon", Start: "9", End: "10:00"},
		{Day: "mon", Start: "24:00", End: "10:00"},
		{Day: "mon", Start: "09:00", End: "09:00"},
	} {
		_, err := ParseTemplate(bad)
		assert.Error(t, err, "%+v", bad)
	}
}

func TestProjectToWeek(t *testing.T) {
	t.Parallel()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, est)
	tpl := Template{Day: time.Wednesday, Start: Clock{9, 0}, End: Clock{17, 0}}

	ev, err := ProjectToWeek(tpl, monday, ProjectOptions{OwnerID: "u1", JobRef: "job-7", Title: "Cashier"})
	require.NoError(t, err)

	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 4, 9, 0, 0, 0, est)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 4, 17, 0, 0, 0, est)))
	assert.Equal(t, "shift", string(ev.Kind))
	assert.Equal(t, "job-7", ev.JobRef)
	assert.Equal(t, "Cashier", ev.Title)
	assert.Equal(t, "u1", ev.OwnerID)

	// A Sunday-first week places Monday one day after the start.
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, est)
	ev, err = ProjectToWeek(Template{Day: time.Monday, Start: Clock{9, 0}, End: Clock{10, 0}}, sunday, ProjectOptions{})
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 2, 9, 0, 0, 0, est)))
}

func TestProjectToWeekOvernight(t *testing.T) {
	t.Parallel()

	monday := time.Date(2026, 3, 2, 0, 0, 0, 0, est)
	tpl := Template{Day: time.Thursday, Start: Clock{22, 0}, End: Clock{6, 0}}
	require.True(t, tpl.Overnight())

	ev, err := ProjectToWeek(tpl, monday, ProjectOptions{})
	require.NoError(t, err)
	assert.True(t, ev.Start.Equal(time.Date(2026, 3, 5, 22, 0, 0, 0, est)))
	assert.True(t, ev.End.Equal(time.Date(2026, 3, 6, 6, 0, 0, 0, est)))
	assert.Equal(t, 8*time.Hour, ev.Duration())
}

func TestProjectWeekOrdersByStart(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	ts, _ := lib.Templates("retail")
	sunday := time.Date(2026, 3, 1, 0, 0, 0, 0, est)

	evs, err := ProjectWeek(ts, sunday, ProjectOptions{})
	require.NoError(t, err)
	require.Len(t, evs, 4)
	for i := 1; i < len(evs); i++ {
		assert.True(t, evs[i-1].Start.Before(evs[i].Start))
	}
	assert.Equal(t, time.Sunday, evs[0].Start.In(est).Weekday())
}

func TestProjectRange(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	ts, _ := lib.Templates("part_time") // Mon/Wed/Fri 12-17

	from := time.Date(2026, 3, 4, 13, 0, 0, 0, est) // Wednesday, after that day's start
	to := time.Date(2026, 3, 18, 0, 0, 0, 0, est)

	evs, err := ProjectRange(ts, from, to, ProjectOptions{JobRef: "j"})
	require.NoError(t, err)

	var days []string
	for _, ev := range evs {
		days = append(days, ev.Start.In(est).Format("Mon 02"))
	}
	assert.Equal(t, []string{"Fri 06", "Mon 09", "Wed 11", "Fri 13", "Mon 16"}, days)
}

func TestWeekStartFor(t *testing.T) {
	t.Parallel()

	wed := time.Date(2026, 3, 4, 15, 0, 0, 0, est)
	got := WeekStartFor(wed, est, time.Monday)
	assert.True(t, got.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, est)))

	mon := time.Date(2026, 3, 9, 8, 0, 0, 0, est)
	got = WeekStartFor(mon, est, time.Monday)
	assert.True(t, got.Equal(time.Date(2026, 3, 9, 0, 0, 0, 0, est)))

	got = WeekStartFor(wed, est, time.Sunday)
	assert.True(t, got.Equal(time.Date(2026, 3, 8, 0, 0, 0, 0, est)))
}
