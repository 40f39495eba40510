package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ksj/cloud-doctor/internal/diff"
	"github.com/ksj/cloud-doctor/internal/engine"
	"github.com/ksj/cloud-doctor/internal/models"
	"github.com/ksj/cloud-doctor/internal/providers"
	"github.com/ksj/cloud-doctor/internal/providers/prowler"
	"github.com/ksj/cloud-doctor/internal/providers/snapshot"
	"github.com/ksj/cloud-doctor/internal/store"
)

// errBadRequest marks client errors detected by the handlers themselves.
var errBadRequest = errors.New("bad request")

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, engine.ErrUnknownSource),
		errors.Is(err, engine.ErrInvalidScanID):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, engine.ErrScanNotFound),
		errors.Is(err, diff.ErrNoPrevious),
		errors.Is(err, diff.ErrAccountMismatch):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrScanInProgress), errors.Is(err, store.ErrImmutable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any, code int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		msg = http.StatusText(code)
	}
	writeJSON(w, map[string]string{"error": msg}, code)
}

// GET /readyz
func (s *Server) getReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			writeJSON(w, map[string]string{"error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	w.Write([]byte("ok"))
}

// GET /api/v1/accounts/{account}/reports/latest
func (s *Server) getLatestReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Latest(r.Context(), chi.URLParam(r, "account"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rep, http.StatusOK)
}

// GET /api/v1/reports/{id}
func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, rep, http.StatusOK)
}

// GET /api/v1/accounts/{account}/reports?limit=&offset=
func (s *Server) listReports(w http.ResponseWriter, r *http.Request) {
	page, err := pageFromQuery(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	sums, err := s.store.List(r.Context(), chi.URLParam(r, "account"), page)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sums == nil {
		sums = []models.ReportSummary{}
	}
	writeJSON(w, map[string]any{
		"reports": sums,
		"limit":   page.Limit,
		"offset":  page.Offset,
	}, http.StatusOK)
}

func pageFromQuery(r *http.Request) (store.Page, error) {
	var p store.Page
	q := r.URL.Query()
	for name, dst := range map[string]*int{"limit": &p.Limit, "offset": &p.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return p, badRequest("%s must be an integer", name)
		}
		*dst = n
	}
	p, err := p.Normalize()
	if err != nil {
		return p, badRequest("%v", err)
	}
	return p, nil
}

type diffResponse struct {
	AccountID   string                     `json:"account_id"`
	From        string                     `json:"from"`
	To          string                     `json:"to"`
	Transitions []models.FindingTransition `json:"transitions"`
}

// GET /api/v1/accounts/{account}/diff?from=&to=
// Without from and to the latest report is diffed against the one before it.
func (s *Server) getDiff(w http.ResponseWriter, r *http.Request) {
	account := chi.URLParam(r, "account")
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")

	resp := diffResponse{AccountID: account, From: from, To: to}
	var err error
	switch {
	case from == "" && to == "":
		resp.From, resp.To, resp.Transitions, err = s.differ.Previous(r.Context(), account)
	case from == "" || to == "":
		err = badRequest("from and to must be given together")
	default:
		resp.Transitions, err = s.differ.Diff(r.Context(), account, from, to)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if resp.Transitions == nil {
		resp.Transitions = []models.FindingTransition{}
	}
	writeJSON(w, resp, http.StatusOK)
}

type scanRequest struct {
	Source        string   `json:"source"`
	Regions       []string `json:"regions"`
	ResourceTypes []string `json:"resource_types"`
	ScanID        string   `json:"scan_id"`
}

// fileSources read a local path and cannot be started over HTTP.
var fileSources = map[string]bool{snapshot.Name: true, prowler.Name: true}

// POST /api/v1/accounts/{account}/scans  body: {"source":"aws","regions":["us-east-1"],"scan_id":"<uuid>"}
func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(w, r, badRequest("invalid JSON body: %v", err))
		return
	}
	if fileSources[body.Source] {
		s.writeError(w, r, badRequest("source %q reads a local file and cannot be started over HTTP", body.Source))
		return
	}
	regions := body.Regions
	if len(regions) == 0 {
		regions = slices.Clone(s.defaultRegions)
	}
	req := engine.ScanRequest{
		AccountID: chi.URLParam(r, "account"),
		Source:    body.Source,
		Scope:     providers.Scope{Regions: regions},
		ScanID:    body.ScanID,
	}
	for _, t := range body.ResourceTypes {
		if t == "" {
			s.writeError(w, r, badRequest("empty resource type"))
			return
		}
		req.Scope.ResourceTypes = append(req.Scope.ResourceTypes, models.ResourceType(t))
	}

	scan, err := s.scanner.StartScan(r.Context(), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", "/api/v1/scans/"+scan.ID)
	writeJSON(w, scan, http.StatusAccepted)
}

// GET /api/v1/scans/{id}
func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.scanner.Scan(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, scan, http.StatusOK)
}

type ruleView struct {
	ID           string              `json:"id"`
	Version      int                 `json:"version"`
	Title        string              `json:"title"`
	Severity     models.Severity     `json:"severity"`
	ResourceType models.ResourceType `json:"resource_type"`
	Remediation  string              `json:"remediation,omitempty"`
	Params       map[string]float64  `json:"params,omitempty"`
}

type categoryView struct {
	Category models.Category `json:"category"`
	Rules    []ruleView      `json:"rules"`
}

// GET /api/v1/rules
func (s *Server) getRules(w http.ResponseWriter, r *http.Request) {
	byCat := make(map[models.Category][]ruleView)
	for _, rule := range s.scanner.Rules() {
		byCat[rule.Category] = append(byCat[rule.Category], ruleView{
			ID:           rule.ID,
			Version:      rule.Version,
			Title:        rule.Title,
			Severity:     rule.Severity,
			ResourceType: rule.ResourceType,
			Remediation:  rule.Remediation,
			Params:       rule.Params,
		})
	}
	out := make([]categoryView, 0, len(byCat))
	for _, c := range models.Categories {
		if rs := byCat[c]; len(rs) > 0 {
			out = append(out, categoryView{Category: c, Rules: rs})
		}
	}
	writeJSON(w, map[string]any{"categories": out}, http.StatusOK)
}
