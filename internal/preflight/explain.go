package preflight

import (
	"fmt"
	"time"

	"shadowcal/internal/conflict"
	"shadowcal/internal/model"
)

// Explain renders one conflict for people, in loc, e.g.
// `Tue 13:30–14:15 commute overlaps "Dentist" (Tue 14:00–15:00) by 15 minutes`.
func Explain(d conflict.Detail, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	what := string(d.Candidate.Kind)
	if d.Candidate.Kind == model.KindShift && d.Candidate.Title != "" {
		what = d.Candidate.Title + " shift"
	}
	name := d.Existing.Title
	if name == "" {
		name = string(d.Existing.Kind)
	}

	msg := fmt.Sprintf("%s %s overlaps %q (%s) by %s",
		span(d.Candidate.Interval, loc), what, name, span(d.Existing.Interval, loc), minutes(d.OverlapMinutes))
	if d.Kind == conflict.OverlapFull {
		msg += "; it falls entirely inside that commitment"
	}
	return msg
}

// ExplainAll renders every conflict in r.
func ExplainAll(r Result, loc *time.Location) []string {
	out := make([]string, 0, len(r.Conflicts))
	for _, d := range r.Conflicts {
		out = append(out, Explain(d, loc))
	}
	return out
}

func span(iv model.Interval, loc *time.Location) string {
	s := iv.Start.In(loc)
	e := iv.End.In(loc)
	if s.YearDay() == e.YearDay() && s.Year() == e.Year() {
		return s.Format("Mon 15:04") + "–" + e.Format("15:04")
	}
	return s.Format("Mon 15:04") + "–" + e.Format("Mon 15:04")
}

func minutes(n int) string {
	if n == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", n)
}
