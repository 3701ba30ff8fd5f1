// Package preflight answers "would taking this job collide with my
// existing commitments, including the commute?" by projecting a job's
// weekly shifts onto the upcoming week and checking both the shifts and
// their commute blocks against the user's calendar.
package preflight

import (
	"context"
	"time"

	"shadowcal/internal/clock"
	"shadowcal/internal/commute"
	"shadowcal/internal/conflict"
	"shadowcal/internal/geo"
	"shadowcal/internal/geocode"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
	"shadowcal/internal/shift"
	"shadowcal/internal/transit"
)

// Estimator is the transit dependency.
type Estimator interface {
	Estimate(ctx context.Context, origin, dest geo.Point, arriveBy *time.Time) transit.Estimate
}

// Request is one evaluation.
type Request struct {
	OwnerID         string
	EmploymentType  string
	// CustomTemplates, when non-empty, replace the library lookup.
	CustomTemplates []shift.Template
	Existing        []model.CalendarEvent

	UserLocation *model.Location
	JobLocation  *model.Location
	Mode         model.TransitMode

	JobRef string
	Title  string

	// WeekStart pins the projected week; zero means the nearest upcoming
	// week start.
	WeekStart time.Time
}

// Result is the aggregated outcome.
type Result struct {
	HasScheduleConflict bool                  `json:"has_schedule_conflict"`
	HasCommuteConflict  bool                  `json:"has_commute_conflict"`
	Conflicts           []conflict.Detail     `json:"conflicts"`
	TransitEstimate     *transit.Estimate     `json:"transit_estimate,omitempty"`
	TransitDisplay      *transit.Display      `json:"transit_display,omitempty"`
	WeekStart           time.Time             `json:"week_start"`
	EmploymentType      string                `json:"employment_type"`
	Shifts              []model.CalendarEvent `json:"shifts"`
	CommuteBlocks       []model.CalendarEvent `json:"commute_blocks,omitempty"`
	Skipped             []string              `json:"skipped,omitempty"`
}

// Config wires an Evaluator.
type Config struct {
	Library   *shift.Library
	Estimator Estimator
	Geocoder  geocode.Geocoder
	Clock     clock.Clock
	// Location is the zone shift templates are read in.
	Location  *time.Location
	WeekStart time.Weekday
}

// Evaluator runs preflight checks. It has no error path: missing inputs
// shrink the evaluation rather than fail it.
type Evaluator struct {
	lib       *shift.Library
	estimator Estimator
	geocoder  geocode.Geocoder
	clock     clock.Clock
	loc       *time.Location
	weekStart time.Weekday
}

// NewEvaluator builds an Evaluator, filling defaults for nil fields.
func NewEvaluator(cfg Config) *Evaluator {
	e := &Evaluator{
		lib:       cfg.Library,
		estimator: cfg.Estimator,
		geocoder:  cfg.Geocoder,
		clock:     cfg.Clock,
		loc:       cfg.Location,
		weekStart: cfg.WeekStart,
	}
	if e.lib == nil {
		e.lib = shift.NewLibrary()
	}
	if e.clock == nil {
		e.clock = clock.Real{}
	}
	if e.loc == nil {
		e.loc = time.UTC
	}
	return e
}

// Evaluate runs the schedule phase and, when both locations resolve, the
// commute phase.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Result {
	res := Result{Conflicts: []conflict.Detail{}}

	templates := req.CustomTemplates
	res.EmploymentType = "custom"
	if len(templates) == 0 {
		var found bool
		templates, found = e.lib.Templates(req.EmploymentType)
		res.EmploymentType = shift.NormalizeType(req.EmploymentType)
		if !found {
			appLog.Info("preflight: unknown employment type, using default",
				"employment_type", req.EmploymentType, "default", shift.DefaultType)
			res.EmploymentType = shift.DefaultType
		}
	}

	weekStart := req.WeekStart
	if weekStart.IsZero() {
		weekStart = shift.WeekStartFor(e.clock.Now(), e.loc, e.weekStart)
	}
	res.WeekStart = weekStart

	existing := validEvents(req.Existing, &res)
	route := e.resolve(ctx, req)

	opts := shift.ProjectOptions{
		OwnerID:  req.OwnerID,
		JobRef:   req.JobRef,
		Title:    req.Title,
		Location: req.JobLocation,
	}
	if route.ok {
		opts.Location = &model.Location{Address: req.JobLocation.Address, Point: &route.job}
	}
	shifts, err := shift.ProjectWeek(templates, weekStart, opts)
	if err != nil {
		appLog.Error("preflight: shift projection failed", err, "employment_type", req.EmploymentType)
		res.Skipped = append(res.Skipped, "projection: "+err.Error())
	}
	res.Shifts = shifts

	for _, s := range shifts {
		if found := conflict.FindConflicts(s, existing); len(found) > 0 {
			res.HasScheduleConflict = true
			res.Conflicts = append(res.Conflicts, found...)
		}
	}

	e.commutePhase(ctx, req, route, existing, &res)

	appLog.Debug("preflight evaluated",
		"owner", req.OwnerID,
		"employment_type", res.EmploymentType,
		"shifts", len(res.Shifts),
		"conflicts", len(res.Conflicts),
		"schedule_conflict", res.HasScheduleConflict,
		"commute_conflict", res.HasCommuteConflict,
	)
	return res
}

// resolvedRoute holds the user and job coordinates once both are known.
type resolvedRoute struct {
	user, job geo.Point
	ok        bool
	reason    string
}

// resolve geocodes the user and job locations. It runs before projection so
// every copy of a shift carries the same resolved job location.
func (e *Evaluator) resolve(ctx context.Context, req Request) resolvedRoute {
	if req.UserLocation == nil || req.JobLocation == nil {
		return resolvedRoute{reason: "commute: location unavailable"}
	}
	userPt, okUser, jobPt, okJob := geocode.ResolvePair(ctx, e.geocoder, req.UserLocation, req.JobLocation)
	if !okUser || !okJob {
		return resolvedRoute{reason: "commute: location could not be resolved"}
	}
	return resolvedRoute{user: userPt, job: jobPt, ok: true}
}

func (e *Evaluator) commutePhase(ctx context.Context, req Request, route resolvedRoute, existing []model.CalendarEvent, res *Result) {
	if len(res.Shifts) == 0 {
		return
	}
	if !route.ok {
		res.Skipped = append(res.Skipped, route.reason)
		return
	}
	userPt, jobPt := route.user, route.job

	// One estimate is shared by every shift; the first shift's start
	// picks the arrive-by bucket.
	var est *transit.Estimate
	if e.estimator != nil {
		arriveBy := res.Shifts[0].Start
		v := e.estimator.Estimate(ctx, userPt, jobPt, &arriveBy)
		est = &v
		d := v.Display()
		res.TransitEstimate = est
		res.TransitDisplay = &d
	}

	for _, s := range res.Shifts {
		block := commute.FromEstimate(s, est, req.Mode)
		res.CommuteBlocks = append(res.CommuteBlocks, *block)
		if found := conflict.FindConflicts(*block, existing); len(found) > 0 {
			res.HasCommuteConflict = true
			res.Conflicts = append(res.Conflicts, found...)
		}
	}
}

// validEvents drops events that violate start < end so they never reach
// conflict detection.
func validEvents(events []model.CalendarEvent, res *Result) []model.CalendarEvent {
	out := make([]model.CalendarEvent, 0, len(events))
	for _, ev := range events {
		if !ev.Interval.Valid() {
			appLog.Warn("preflight: dropping invalid event", "id", ev.ID, "start", ev.Start, "end", ev.End)
			res.Skipped = append(res.Skipped, "event "+ev.ID+": "+model.ErrInvalidInterval.Error())
			continue
		}
		out = append(out, ev)
	}
	return out
}
