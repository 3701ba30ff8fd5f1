package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shadowcal/internal/commute"
	"shadowcal/internal/conflict"
	"shadowcal/internal/geo"
	"shadowcal/internal/geocode"
	"shadowcal/internal/ics"
	appLog "shadowcal/internal/log"
	"shadowcal/internal/model"
	"shadowcal/internal/preflight"
	"shadowcal/internal/shift"
	"shadowcal/internal/store"
	"shadowcal/internal/transit"
)

// PreflightRequest is the wire form of a preflight evaluation.
type PreflightRequest struct {
	OwnerID         string                `json:"owner_id"`
	EmploymentType  string                `json:"employment_type"`
	CustomTemplates []shift.Spec          `json:"custom_templates,omitempty"`
	Existing        []model.CalendarEvent `json:"existing,omitempty"`
	UserLocation    *model.Location       `json:"user_location,omitempty"`
	JobLocation     *model.Location       `json:"job_location,omitempty"`
	Mode            model.TransitMode     `json:"mode,omitempty"`
	JobRef          string                `json:"job_ref,omitempty"`
	Title           string                `json:"title,omitempty"`
	// WeekStart is YYYY-MM-DD in the configured zone.
	WeekStart string `json:"week_start,omitempty"`
}

// PreflightResponse is a preflight result plus readable explanations.
type PreflightResponse struct {
	preflight.Result
	Explanations []string `json:"explanations"`
}

func (s *Server) handlePreflight(w http.ResponseWriter, r *http.Request) {
	var in PreflightRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	out, status, err := s.Preflight(r.Context(), in)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// Preflight evaluates a prospective job. Existing commitments come from
// the request or, when omitted, from the store by owner_id. On error the
// returned status is the HTTP status that describes it.
func (s *Server) Preflight(ctx context.Context, in PreflightRequest) (PreflightResponse, int, error) {
	req, status, err := s.buildPreflight(ctx, in)
	if err != nil {
		return PreflightResponse{}, status, err
	}
	res := s.deps.Evaluator.Evaluate(ctx, req)
	return PreflightResponse{
		Result:       res,
		Explanations: preflight.ExplainAll(res, s.cfg.Location()),
	}, http.StatusOK, nil
}

func (s *Server) buildPreflight(ctx context.Context, in PreflightRequest) (preflight.Request, int, error) {
	loc := s.cfg.Location()
	req := preflight.Request{
		OwnerID:        in.OwnerID,
		EmploymentType: in.EmploymentType,
		Existing:       in.Existing,
		UserLocation:   in.UserLocation,
		JobLocation:    in.JobLocation,
		Mode:           in.Mode,
		JobRef:         in.JobRef,
		Title:          in.Title,
	}

	if len(in.CustomTemplates) > 0 {
		ts, err := shift.ParseTemplates(in.CustomTemplates)
		if err != nil {
			return req, http.StatusBadRequest, err
		}
		req.CustomTemplates = ts
	}

	if in.WeekStart != "" {
		ws, err := time.ParseInLocation(time.DateOnly, in.WeekStart, loc)
		if err != nil {
			return req, http.StatusBadRequest, errors.New("week_start must be YYYY-MM-DD")
		}
		req.WeekStart = ws
	} else {
		req.WeekStart = shift.WeekStartFor(s.deps.Clock.Now(), loc, s.cfg.WeekStartDay())
	}

	if in.Existing == nil && in.OwnerID != "" && s.deps.Store != nil {
		// One extra day covers overnight shifts spilling past the week.
		existing, err := s.deps.Store.List(ctx, in.OwnerID, req.WeekStart.Add(-24*time.Hour), req.WeekStart.AddDate(0, 0, 8))
		if err != nil {
			appLog.Error("preflight: load existing events failed", err, "owner", in.OwnerID)
			return req, http.StatusInternalServerError, errors.New("failed to load existing events")
		}
		req.Existing = existing
	}
	return req, http.StatusOK, nil
}

type estimateRequest struct {
	Origin      *model.Location `json:"origin"`
	Destination *model.Location `json:"destination"`
	ArriveBy    *time.Time      `json:"arrive_by,omitempty"`
}

type estimateResponse struct {
	Estimate transit.Estimate `json:"estimate"`
	Display  transit.Display  `json:"display"`
}

func (s *Server) handleTransitEstimate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Estimator == nil {
		writeError(w, http.StatusServiceUnavailable, "transit estimation is not configured")
		return
	}
	var in estimateRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if in.Origin == nil || in.Destination == nil {
		writeError(w, http.StatusBadRequest, "origin and destination are required")
		return
	}

	from, okFrom, to, okTo := geocode.ResolvePair(r.Context(), s.deps.Geocoder, in.Origin, in.Destination)
	if !okFrom || !okTo {
		writeError(w, http.StatusUnprocessableEntity, "origin or destination could not be resolved")
		return
	}

	est := s.deps.Estimator.Estimate(r.Context(), from, to, in.ArriveBy)
	writeJSON(w, http.StatusOK, estimateResponse{Estimate: est, Display: est.Display()})
}

type freeSlotsRequest struct {
	OwnerID         string           `json:"owner_id,omitempty"`
	Events          []model.Interval `json:"events,omitempty"`
	RangeStart      time.Time        `json:"range_start"`
	RangeEnd        time.Time        `json:"range_end"`
	DurationMinutes int              `json:"duration_minutes"`
}

type freeSlotsResponse struct {
	Slots []time.Time `json:"slots"`
}

func (s *Server) handleFreeSlots(w http.ResponseWriter, r *http.Request) {
	var in freeSlotsRequest
	if err := decodeJSON(r, &in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if !in.RangeEnd.After(in.RangeStart) {
		writeError(w, http.StatusBadRequest, "range_end must be after range_start")
		return
	}
	if in.DurationMinutes <= 0 {
		writeError(w, http.StatusBadRequest, "duration_minutes must be positive")
		return
	}

	events := in.Events
	if events == nil && in.OwnerID != "" && s.deps.Store != nil {
		stored, err := s.deps.Store.List(r.Context(), in.OwnerID, in.RangeStart, in.RangeEnd)
		if err != nil {
			appLog.Error("free-slots: load events failed", err, "owner", in.OwnerID)
			writeError(w, http.StatusInternalServerError, "failed to load events")
			return
		}
		events = conflict.EventIntervals(stored)
	}

	slots := conflict.FreeSlots(events, in.RangeStart, in.RangeEnd, time.Duration(in.DurationMinutes)*time.Minute)
	if slots == nil {
		slots = []time.Time{}
	}
	writeJSON(w, http.StatusOK, freeSlotsResponse{Slots: slots})
}

type patternDTO struct {
	EmploymentType string   `json:"employment_type"`
	Shifts         []string `json:"shifts"`
}

func (s *Server) handlePatterns(w http.ResponseWriter, _ *http.Request) {
	types := s.deps.Library.Types()
	out := make([]patternDTO, 0, len(types))
	for _, t := range types {
		ts, _ := s.deps.Library.Templates(t)
		shifts := make([]string, 0, len(ts))
		for _, tpl := range ts {
			shifts = append(shifts, tpl.String())
		}
		out = append(out, patternDTO{EmploymentType: t, Shifts: shifts})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  shift.DefaultType,
		"patterns": out,
	})
}

// handleShadowICS exports projected shifts, and their commute blocks when
// both ends are given as from_lat/from_lng and to_lat/to_lng, as ICS.
func (s *Server) handleShadowICS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	loc := s.cfg.Location()

	weeks := parseIntDefault(q.Get("weeks"), 4)
	if weeks <= 0 || weeks > 52 {
		weeks = 4
	}
	ts, _ := s.deps.Library.Templates(q.Get("employment_type"))

	from := shift.WeekStartFor(s.deps.Clock.Now(), loc, s.cfg.WeekStartDay())
	to := from.AddDate(0, 0, 7*weeks)

	var jobLoc *model.Location
	dest, okDest := pointParam(q.Get("to_lat"), q.Get("to_lng"))
	if okDest {
		jobLoc = &model.Location{Point: &dest}
	}
	shifts, err := shift.ProjectRange(ts, from, to, shift.ProjectOptions{
		OwnerID:  q.Get("owner_id"),
		JobRef:   q.Get("job_ref"),
		Title:    q.Get("title"),
		Location: jobLoc,
	})
	if err != nil {
		appLog.Error("shadow.ics: projection failed", err)
		writeError(w, http.StatusInternalServerError, "failed to project shifts")
		return
	}

	events := append([]model.CalendarEvent(nil), shifts...)
	if origin, ok := pointParam(q.Get("from_lat"), q.Get("from_lng")); ok && okDest {
		gen := commute.NewGenerator(s.deps.Estimator)
		for _, sh := range shifts {
			if c := gen.Generate(r.Context(), sh, origin, model.TransitMode(q.Get("mode"))); c != nil {
				events = append(events, *c)
			}
		}
	}

	body := ics.Export("Shadow calendar", events, s.deps.Clock.Now())
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="shadow.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, body)
}

func pointParam(lat, lng string) (geo.Point, bool) {
	if lat == "" || lng == "" {
		return geo.Point{}, false
	}
	la, err1 := strconv.ParseFloat(lat, 64)
	ln, err2 := strconv.ParseFloat(lng, 64)
	p := geo.Point{Lat: la, Lng: ln}
	if err1 != nil || err2 != nil || !p.Valid() {
		return geo.Point{}, false
	}
	return p, true
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.deps.Store == nil {
		writeError(w, http.StatusServiceUnavailable, "event storage is not configured")
		return false
	}
	return true
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	owner := q.Get("owner_id")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	from, err1 := parseTimeOrZero(q.Get("from"))
	to, err2 := parseTimeOrZero(q.Get("to"))
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "from/to must be RFC3339")
		return
	}

	events, err := s.deps.Store.List(r.Context(), owner, from, to)
	if err != nil {
		appLog.Error("events: list failed", err, "owner", owner)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handlePutEvent(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	var ev model.CalendarEvent
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if ev.Kind == "" {
		ev.Kind = model.KindBlock
	}
	if ev.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.deps.Store.Put(r.Context(), ev)
	if err != nil {
		appLog.Error("events: put failed", err, "owner", ev.OwnerID)
		writeError(w, http.StatusInternalServerError, "failed to store event")
		return
	}
	writeJSON(w, http.StatusCreated, stored)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	owner, id := q.Get("owner_id"), q.Get("id")
	if owner == "" || id == "" {
		writeError(w, http.StatusBadRequest, "owner_id and id are required")
		return
	}
	err := s.deps.Store.Delete(r.Context(), owner, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "event not found")
	case err != nil:
		appLog.Error("events: delete failed", err, "owner", owner, "id", id)
		writeError(w, http.StatusInternalServerError, "failed to delete event")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type importResponse struct {
	Imported        int      `json:"imported"`
	TruncatedEvents []string `json:"truncated_events,omitempty"`
}

// handleImportEvents stores the occurrences of an uploaded ICS file that
// fall within [now-backfill days, now+days).
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	if !s.requireStore(w) {
		return
	}
	q := r.URL.Query()
	owner := q.Get("owner_id")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}
	days := parseIntDefault(q.Get("days"), 28)
	if days <= 0 {
		days = 28
	}
	backfill := parseIntDefault(q.Get("backfill"), 0)
	if backfill < 0 {
		backfill = 0
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	loc := s.cfg.Location()
	parsed, err := ics.ParseICS(strings.TrimSpace(q.Get("source")), body, loc)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ICS: "+err.Error())
		return
	}

	now := s.deps.Clock.Now().In(loc)
	res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		Location:   loc,
		RangeStart: now.AddDate(0, 0, -backfill),
		RangeEnd:   now.AddDate(0, 0, days),
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stored, err := s.deps.Store.PutAll(r.Context(), ics.ToEvents(res.Occurrences, owner))
	if err != nil {
		appLog.Error("events: import failed", err, "owner", owner)
		writeError(w, http.StatusInternalServerError, "failed to store imported events")
		return
	}
	appLog.Info("events imported", "owner", owner, "count", len(stored), "truncated", len(res.TruncatedEvents))
	writeJSON(w, http.StatusOK, importResponse{Imported: len(stored), TruncatedEvents: res.TruncatedEvents})
}
