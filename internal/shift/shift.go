// Package shift holds the employment-type → weekly shift template table and
// projects templates onto concrete calendar weeks.
package shift

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"shadowcal/internal/model"
)

// DefaultType is used when an employment type is unknown.
const DefaultType = "full_time"

// Clock is a local time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// ParseClock parses "HH:MM" (24h).
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("clock %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("clock %q: bad hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("clock %q: bad minute", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Template is one recurring weekly shift. An End at or before Start means
// the shift runs past midnight into the next day.
type Template struct {
	Day   time.Weekday
	Start Clock
	End   Clock
}

// Overnight reports whether the shift ends on the following day.
func (t Template) Overnight() bool {
	return t.End.minutes() <= t.Start.minutes()
}

// Length returns the shift duration.
func (t Template) Length() time.Duration {
	m := t.End.minutes() - t.Start.minutes()
	if m <= 0 {
		m += 24 * 60
	}
	return time.Duration(m) * time.Minute
}

func (t Template) String() string {
	return fmt.Sprintf("%s %s-%s", t.Day.String()[:3], t.Start, t.End)
}

// Spec is the string form of a template used by config files and the API.
type Spec struct {
	Day   string `yaml:"day" json:"day"`
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// ParseTemplate converts a Spec into a Template.
func ParseTemplate(s Spec) (Template, error) {
	day, err := ParseWeekday(s.Day)
	if err != nil {
		return Template{}, err
	}
	start, err := ParseClock(s.Start)
	if err != nil {
		return Template{}, err
	}
	end, err := ParseClock(s.End)
	if err != nil {
		return Template{}, err
	}
	if start == end {
		return Template{}, fmt.Errorf("shift %s: start equals end", s.Day)
	}
	return Template{Day: day, Start: start, End: end}, nil
}

// ParseTemplates converts every spec, failing on the first bad one.
func ParseTemplates(specs []Spec) ([]Template, error) {
	out := make([]Template, 0, len(specs))
	for i, s := range specs {
		t, err := ParseTemplate(s)
		if err != nil {
			return nil, fmt.Errorf("template %d: %w", i, err)
		}
		out = append(out, t)
	}
	return out, nil
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekday accepts English day names/abbreviations or 0-6 (Sunday=0).
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if d, ok := weekdayNames[s]; ok {
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 6 {
		return time.Weekday(n), nil
	}
	return 0, fmt.Errorf("unknown weekday %q", s)
}

// NormalizeType canonicalizes an employment-type label:
// "Full-Time", "full time" and "FULL_TIME" all become "full_time".
func NormalizeType(label string) string {
	s := strings.ToLower(strings.TrimSpace(label))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if alias, ok := typeAliases[s]; ok {
		return alias
	}
	return s
}

var typeAliases = map[string]string{
	"fulltime":      "full_time",
	"ft":            "full_time",
	"standard":      "full_time",
	"parttime":      "part_time",
	"pt":            "part_time",
	"restaurant":    "food_service",
	"hospitality":   "food_service",
	"foodservice":   "food_service",
	"overnight":     "night_shift",
	"nights":        "night_shift",
	"third_shift":   "night_shift",
	"logistics":     "warehouse",
	"fulfillment":   "warehouse",
	"retail_store":  "retail",
	"sales_floor":   "retail",
	"weekend":       "weekend_only",
	"weekends_only": "weekend_only",
}

func weekdays(days []time.Weekday, start, end Clock) []Template {
	out := make([]Template, 0, len(days))
	for _, d := range days {
		out = append(out, Template{Day: d, Start: start, End: end})
	}
	return out
}

var monFri = []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}

// builtinPatterns is the canonical table. New employment types are data.
var builtinPatterns = map[string][]Template{
	"full_time": weekdays(monFri, Clock{9, 0}, Clock{17, 0}),
	"part_time": weekdays([]time.Weekday{time.Monday, time.Wednesday, time.Friday}, Clock{12, 0}, Clock{17, 0}),
	"retail": {
		{Day: time.Wednesday, Start: Clock{12, 0}, End: Clock{20, 0}},
		{Day: time.Friday, Start: Clock{12, 0}, End: Clock{20, 0}},
		{Day: time.Saturday, Start: Clock{10, 0}, End: Clock{18, 0}},
		{Day: time.Sunday, Start: Clock{10, 0}, End: Clock{18, 0}},
	},
	"food_service": {
		{Day: time.Tuesday, Start: Clock{16, 0}, End: Clock{22, 0}},
		{Day: time.Thursday, Start: Clock{16, 0}, End: Clock{22, 0}},
		{Day: time.Friday, Start: Clock{17, 0}, End: Clock{23, 0}},
		{Day: time.Saturday, Start: Clock{17, 0}, End: Clock{23, 0}},
	},
	"warehouse":    weekdays(monFri, Clock{6, 0}, Clock{14, 30}),
	"night_shift":  weekdays([]time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday}, Clock{22, 0}, Clock{6, 0}),
	"weekend_only": weekdays([]time.Weekday{time.Saturday, time.Sunday}, Clock{8, 0}, Clock{16, 0}),
}

// Library resolves employment types to templates. It starts from the
// built-in table and can be extended or overridden at runtime.
type Library struct {
	mu       sync.RWMutex
	patterns map[string][]Template
}

// NewLibrary returns a library seeded with the built-in table.
func NewLibrary() *Library {
	l := &Library{}
	l.Replace(nil)
	return l
}

// Replace resets the library to the built-in table plus overrides.
// Override keys are normalized.
func (l *Library) Replace(overrides map[string][]Template) {
	m := make(map[string][]Template, len(builtinPatterns)+len(overrides))
	for k, v := range builtinPatterns {
		m[k] = v
	}
	for k, v := range overrides {
		if len(v) == 0 {
			continue
		}
		m[NormalizeType(k)] = append([]Template(nil), v...)
	}
	l.mu.Lock()
	l.patterns = m
	l.mu.Unlock()
}

// Templates returns the templates for employmentType and whether it was
// found. Unknown types fall back to DefaultType.
func (l *Library) Templates(employmentType string) ([]Template, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if ts, ok := l.patterns[NormalizeType(employmentType)]; ok {
		return append([]Template(nil), ts...), true
	}
	return append([]Template(nil), l.patterns[DefaultType]...), false
}

// Types lists the known employment types in sorted order.
func (l *Library) Types() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.patterns))
	for k := range l.patterns {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ProjectOptions carries the metadata stamped onto projected shifts.
type ProjectOptions struct {
	OwnerID  string
	JobRef   string
	Title    string
	Location *model.Location
}

// ProjectToWeek places t inside the week beginning at weekStart. The date is
// weekStart plus the number of days from weekStart's weekday to t.Day; the
// clock fields are interpreted in weekStart's location.
func ProjectToWeek(t Template, weekStart time.Time, opts ProjectOptions) (model.CalendarEvent, error) {
	offset := (int(t.Day) - int(weekStart.Weekday()) + 7) % 7
	day := weekStart.AddDate(0, 0, offset)
	return projectOnDate(t, day, opts)
}

func projectOnDate(t Template, day time.Time, opts ProjectOptions) (model.CalendarEvent, error) {
	loc := day.Location()
	start := time.Date(day.Year(), day.Month(), day.Day(), t.Start.Hour, t.Start.Minute, 0, 0, loc)
	endDay := day
	if t.Overnight() {
		endDay = day.AddDate(0, 0, 1)
	}
	end := time.Date(endDay.Year(), endDay.Month(), endDay.Day(), t.End.Hour, t.End.Minute, 0, 0, loc)

	ev, err := model.NewEvent(opts.OwnerID, model.KindShift, start, end)
	if err != nil {
		return model.CalendarEvent{}, err
	}
	ev.ID = fmt.Sprintf("shift:%s:%s", opts.JobRef, start.Format("20060102T1504"))
	ev.JobRef = opts.JobRef
	ev.Title = opts.Title
	ev.Location = opts.Location
	return ev, nil
}

// ProjectWeek projects every template onto the week starting at weekStart,
// ordered by start time.
func ProjectWeek(ts []Template, weekStart time.Time, opts ProjectOptions) ([]model.CalendarEvent, error) {
	out := make([]model.CalendarEvent, 0, len(ts))
	for _, t := range ts {
		ev, err := ProjectToWeek(t, weekStart, opts)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

// WeekStartFor returns local midnight of the nearest week start on or after
// now's date in loc.
func WeekStartFor(now time.Time, loc *time.Location, first time.Weekday) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	midnight := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	offset := (int(first) - int(midnight.Weekday()) + 7) % 7
	return midnight.AddDate(0, 0, offset)
}
