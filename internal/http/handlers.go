package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"ledger/internal/cache"
	"ledger/internal/core"
	applog "ledger/internal/log"
	"ledger/internal/services"
)

type recordResponse struct {
	Outcome string       `json:"outcome"`
	Record  *core.Record `json:"record,omitempty"`
}

type recordsResponse struct {
	From    string        `json:"from"`
	To      string        `json:"to"`
	Count   int           `json:"count"`
	Records []core.Record `json:"records"`
}

type paramsResponse struct {
	Session  string        `json:"session"`
	Day      string        `json:"day"`
	Search   string        `json:"search"`
	Grouping core.Grouping `json:"grouping"`
}

// writeError maps service errors to status codes. Unexpected errors are
// logged and reported as 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		BadRequestError(verr.Field, verr.Error()).Send(w)
	case errors.Is(err, core.ErrNotFound):
		NotFoundError(err.Error()).Send(w)
	case errors.Is(err, core.ErrConstraint):
		BadRequestError("", err.Error()).Send(w)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, cache.ErrStopped):
		ErrorResponse(http.StatusServiceUnavailable, "view unavailable, try again").Send(w)
	default:
		s.events.LogError(r.Context(), "Request failed", err, applog.ComponentHTTP, op,
			applog.NewFields().WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, r.Header.Get("User-Agent")))
		InternalError("internal error").Send(w)
	}
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Send(w)
}

// handleReady checks that the store answers through the view engine.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if _, err := s.views.TodaySnapshot(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Send(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	active := 0
	for _, st := range s.views.Stats() {
		if st.State == cache.Active.String() {
			active++
		}
	}

	w.WriteHeader(http.StatusOK)

	metric := func(name, help, kind string, value any) {
		fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n%s %v\n\n", name, help, name, kind, name, value)
	}
	metric("http_requests_total", "Total number of HTTP requests", "counter", traceMetrics.TotalRequests)
	metric("records_created_total", "Records accepted through the API", "counter", s.appMetrics.recordsCreated.Load())
	metric("duplicates_rejected_total", "Submissions rejected by the duplicate guard", "counter", s.appMetrics.duplicatesRejected.Load())
	metric("view_entries_active", "Shared view computations currently running", "gauge", active)
	metric("view_sessions", "Open list sessions", "gauge", s.sessions.Len())
	metric("rate_limit_hits_total", "Total rate limit hits", "counter", rateLimitMetrics.TotalHits)
	metric("suspicious_requests_total", "Total suspicious requests detected", "counter", securityMetrics.SuspiciousRequests)
	metric("uptime_seconds", "Application uptime in seconds", "gauge", strconv.FormatFloat(time.Since(s.appMetrics.uptime).Seconds(), 'f', 0, 64))
}

func (s *Server) handleDebugCache(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"entries":    s.views.Stats(),
		"sessions":   s.sessions.Len(),
		"rate_limit": s.rateLimiter.GetMetrics(),
		"security":   s.securityDetector.GetMetrics(),
	}).Send(w)
}

func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	outcome, rec, err := s.records.Add(r.Context(), req.Draft(core.UnassignedID))
	switch outcome {
	case services.OutcomeSuccess:
		s.appMetrics.recordsCreated.Add(1)
		NewJSONResponse().
			Status(http.StatusCreated).
			Header("Location", "/records/"+strconv.FormatInt(rec.ID, 10)).
			Body(recordResponse{Outcome: outcome.String(), Record: &rec}).
			Send(w)
	case services.OutcomeDuplicate:
		s.appMetrics.duplicatesRejected.Add(1)
		NewJSONResponse().Status(http.StatusConflict).Body(errorBody{
			Error:   "a matching record was added in the last " + s.records.DuplicateWindow().String(),
			Outcome: outcome.String(),
		}).Send(w)
	default:
		s.writeError(w, r, err, applog.OpCreate)
	}
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	loc := s.views.Location()
	from, to, err := ParseDayRange(r.URL.Query(), s.views.Now(), loc)
	if err != nil {
		BadRequestError("", err.Error()).Send(w)
		return
	}

	records, err := s.records.List(r.Context(), from, to)
	if err != nil {
		s.writeError(w, r, err, applog.OpList)
		return
	}
	if records == nil {
		records = []core.Record{}
	}
	NewJSONResponse().Body(recordsResponse{
		From:    core.DayKey(from, loc),
		To:      core.DayKey(to, loc),
		Count:   len(records),
		Records: records,
	}).Send(w)
}

func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		BadRequestError("id", err.Error()).Send(w)
		return
	}
	rec, err := s.records.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(rec).Send(w)
}

func (s *Server) handleUpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		BadRequestError("id", err.Error()).Send(w)
		return
	}
	var req recordRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	rec, err := s.records.Update(r.Context(), req.Draft(id))
	if err != nil {
		s.writeError(w, r, err, applog.OpUpdate)
		return
	}
	NewJSONResponse().Body(recordResponse{Outcome: services.OutcomeSuccess.String(), Record: &rec}).Send(w)
}

func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		BadRequestError("id", err.Error()).Send(w)
		return
	}
	if err := s.records.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, applog.OpDelete)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Send(w)
}

func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *core.ValidationError
	if errors.As(err, &verr) {
		BadRequestError(verr.Field, verr.Error()).Send(w)
		return
	}
	BadRequestError("", err.Error()).Send(w)
}

func (s *Server) listParams(w http.ResponseWriter, r *http.Request) (core.ListParams, bool) {
	p, err := ParseListParams(r.URL.Query(), s.views.Now(), s.views.Location())
	if err != nil {
		BadRequestError("", err.Error()).Send(w)
		return core.ListParams{}, false
	}
	return p, true
}

func (s *Server) handleListView(w http.ResponseWriter, r *http.Request) {
	p, ok := s.listParams(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	v, err := s.views.ListSnapshot(ctx, p)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(v).Send(w)
}

func (s *Server) handleTotalsView(w http.ResponseWriter, r *http.Request) {
	p, ok := s.listParams(w, r)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	t, err := s.views.TotalsSnapshot(ctx, p)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(t).Send(w)
}

func (s *Server) handleReportView(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	rep, err := s.views.ReportSnapshot(ctx)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(rep).Send(w)
}

func (s *Server) handleTodayView(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	t, err := s.views.TodaySnapshot(ctx)
	if err != nil {
		s.writeError(w, r, err, applog.OpRead)
		return
	}
	NewJSONResponse().Body(t).Send(w)
}

func (s *Server) handleListStream(w http.ResponseWriter, r *http.Request) {
	p, ok := s.listParams(w, r)
	if !ok {
		return
	}
	streamView(w, r, s.closing, "list", s.views.List(p))
}

func (s *Server) handleReportStream(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, s.closing, "report", s.views.Report())
}

func (s *Server) handleTodayStream(w http.ResponseWriter, r *http.Request) {
	streamView(w, r, s.closing, "today", s.views.TodaySpent())
}

func (s *Server) sessionParams(id string, sess *services.Session) paramsResponse {
	p := sess.Params()
	return paramsResponse{
		Session:  id,
		Day:      core.DayKey(p.Day, s.views.Location()),
		Search:   p.Search,
		Grouping: p.Grouping,
	}
}

// handleSessionParams creates a session when none is named and applies the
// submitted parameters in one step.
func (s *Server) handleSessionParams(w http.ResponseWriter, r *http.Request) {
	var req paramsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}

	var update core.ListParams
	if req.Day != "" {
		day, err := parseDay(req.Day, s.views.Now(), s.views.Location())
		if err != nil {
			BadRequestError("day", err.Error()).Send(w)
			return
		}
		update.Day = day
	}
	if req.Grouping != "" {
		g, err := core.ParseGrouping(req.Grouping)
		if err != nil {
			BadRequestError("grouping", err.Error()).Send(w)
			return
		}
		update.Grouping = g
	}

	status := http.StatusOK
	id := req.Session
	var sess *services.Session
	if id == "" {
		id, sess = s.sessions.create()
		status = http.StatusCreated
	} else {
		var ok bool
		if sess, ok = s.sessions.get(id); !ok {
			NotFoundError("unknown session").Send(w)
			return
		}
	}

	update.Search = sess.Params().Search
	if req.Search != nil {
		update.Search = *req.Search
	}
	sess.Apply(update)

	NewJSONResponse().Status(status).Body(s.sessionParams(id, sess)).Send(w)
}

// handleSessionStream sends the session's list and totals as they change.
func (s *Server) handleSessionStream(w http.ResponseWriter, r *http.Request) {
	sess, release, ok := s.sessions.attach(r.URL.Query().Get("session"))
	if !ok {
		NotFoundError("unknown session").Send(w)
		return
	}
	defer release()

	list := sess.List()
	defer list.Close()
	totals := sess.Totals()
	defer totals.Close()

	flusher, ok := startStream(w)
	if !ok {
		return
	}
	ping := time.NewTicker(heartbeatInterval)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-r.Context().Done():
			return
		case <-s.closing:
			return
		case v, ok := <-list.C():
			if !ok {
				return
			}
			err = writeEvent(w, "list", v)
		case t, ok := <-totals.C():
			if !ok {
				return
			}
			err = writeEvent(w, "totals", t)
		case <-ping.C:
			_, err = fmt.Fprint(w, ": ping\n\n")
		}
		if err != nil {
			return
		}
		flusher.Flush()
	}
}

func (s *Server) handleSessionClose(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.remove(r.URL.Query().Get("session")) {
		NotFoundError("unknown session").Send(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Send(w)
}
