// Package http serves the financial statement API: the JSON report endpoint,
// its CSV export and the consolidation mapping audit.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-fin/meridian/internal/authz"
	"github.com/meridian-fin/meridian/internal/consolidation"
	"github.com/meridian-fin/meridian/internal/periods"
	"github.com/meridian-fin/meridian/internal/platform/httpx"
	"github.com/meridian-fin/meridian/internal/report"
)

// Handler wires the statement report endpoints.
type Handler struct {
	logger      *slog.Logger
	service     *report.Service
	validator   *validator.Validate
	rateLimit   func(http.Handler) http.Handler
	exportLimit func(http.Handler) http.Handler
}

// NewHandler constructs the report handler. Rate limits are keyed by API key
// when a principal is present, falling back to the client address.
func NewHandler(logger *slog.Logger, service *report.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:      logger,
		service:     service,
		validator:   validator.New(),
		rateLimit:   httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(clientKey)),
		exportLimit: httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(clientKey)),
	}
}

func clientKey(r *http.Request) (string, error) {
	if principal := authz.FromContext(r.Context()); principal != nil {
		return "key:" + principal.KeyID, nil
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "ip:" + r.RemoteAddr, nil
	}
	return "ip:" + host, nil
}

// MountRoutes registers the report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/reports/financial-statements", h.HandleGetReport)
		r.Get("/reports/consolidation/unmapped", h.HandleUnmappedAccounts)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.exportLimit)
		r.Get("/reports/financial-statements/export.csv", h.HandleExportCSV)
	})
}

// HandleGetReport serves the three statements as JSON.
func (h *Handler) HandleGetReport(w http.ResponseWriter, r *http.Request) {
	req, fieldErrs := h.parseRequest(r)
	if len(fieldErrs) > 0 {
		httpx.ValidationProblem(w, fieldErrs)
		return
	}
	if !h.authorize(w, r, req) {
		return
	}
	rep, err := h.getReport(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

// HandleExportCSV serves the same report as a CSV download.
func (h *Handler) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	req, fieldErrs := h.parseRequest(r)
	if len(fieldErrs) > 0 {
		httpx.ValidationProblem(w, fieldErrs)
		return
	}
	if !h.authorize(w, r, req) {
		return
	}
	rep, err := h.getReport(r.Context(), req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	recordCSVExport(req)
	filename := fmt.Sprintf("financial-statements-%s-%s-%s.csv",
		rep.Metadata.Scope, rep.Metadata.StartPeriod, rep.Metadata.EndPeriod)
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	if err := writeReportCSV(w, rep); err != nil {
		h.logger.ErrorContext(r.Context(), "write report csv", "error", err)
	}
}

type unmappedResponse struct {
	OrganizationID int64                           `json:"organizationId"`
	Accounts       []consolidation.UnmappedAccount `json:"unmappedAccounts"`
}

// HandleUnmappedAccounts lists the entity accounts the master chart cannot
// place, so operators can close mapping gaps.
func (h *Handler) HandleUnmappedAccounts(w http.ResponseWriter, r *http.Request) {
	orgID, err := strconv.ParseInt(r.URL.Query().Get("organizationId"), 10, 64)
	if err != nil || orgID <= 0 {
		httpx.ValidationProblem(w, map[string]string{"organizationId": "must be a positive integer"})
		return
	}
	if !authz.FromContext(r.Context()).CanAccessOrganization(orgID) {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "API key has no grant for the requested organization")
		return
	}
	unmapped, err := h.service.UnmappedAccounts(r.Context(), orgID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, unmappedResponse{OrganizationID: orgID, Accounts: unmapped})
}

// getReport fetches through the singleflight group so concurrent identical
// requests share one build.
func (h *Handler) getReport(ctx context.Context, req report.Request) (report.Report, error) {
	key := strings.Join(req.CacheKeyParts(), ":")
	start := time.Now()
	result, err, shared := singleflightReport(ctx, key, func(ctx context.Context) (interface{}, error) {
		return h.service.GetReport(ctx, req)
	})
	observeFetchDuration(req, time.Since(start))
	if shared {
		recordSharedBuild(req)
	}
	if err != nil {
		return report.Report{}, err
	}
	rep, ok := result.(report.Report)
	if !ok {
		return report.Report{}, fmt.Errorf("report http: unexpected build result %T", result)
	}
	return rep, nil
}

// authorize rejects requests whose API key carries no grant for the requested
// scope, before any data is touched.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, req report.Request) bool {
	principal := authz.FromContext(r.Context())
	allowed := false
	switch req.Scope {
	case report.ScopeEntity:
		allowed = principal.CanAccessEntity(req.EntityID)
	case report.ScopeOrganization:
		allowed = principal.CanAccessOrganization(req.OrgID)
	}
	if !allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "API key has no grant for the requested scope")
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, periods.ErrEmptyRange), errors.Is(err, periods.ErrBadGranularity):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Period Range", err.Error())
	case errors.Is(err, report.ErrEntityNotFound), errors.Is(err, report.ErrOrgNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, consolidation.ErrNoTemplates):
		httpx.Problem(w, http.StatusConflict, "Master Chart Empty", err.Error())
	default:
		h.logger.ErrorContext(r.Context(), "report request failed", "error", err)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

var queryParamNames = map[string]string{
	"Scope":       "scope",
	"EntityID":    "entityId",
	"OrgID":       "organizationId",
	"StartYear":   "startYear",
	"StartMonth":  "startMonth",
	"EndYear":     "endYear",
	"EndMonth":    "endMonth",
	"Granularity": "granularity",
}

func (h *Handler) parseRequest(r *http.Request) (report.Request, map[string]string) {
	q := r.URL.Query()
	fieldErrs := make(map[string]string)

	req := report.Request{
		Scope:       report.Scope(strings.TrimSpace(q.Get("scope"))),
		Granularity: periods.Granularity(strings.TrimSpace(q.Get("granularity"))),
	}
	req.EntityID = parseIDParam(q.Get("entityId"), "entityId", fieldErrs)
	req.OrgID = parseIDParam(q.Get("organizationId"), "organizationId", fieldErrs)
	req.StartYear = parseIntParam(q.Get("startYear"), "startYear", fieldErrs)
	req.StartMonth = time.Month(parseIntParam(q.Get("startMonth"), "startMonth", fieldErrs))
	req.EndYear = parseIntParam(q.Get("endYear"), "endYear", fieldErrs)
	req.EndMonth = time.Month(parseIntParam(q.Get("endMonth"), "endMonth", fieldErrs))
	req.IncludeYoY = parseBoolParam(q.Get("includeYoY"), "includeYoY", fieldErrs)
	req.IncludeBudget = parseBoolParam(q.Get("includeBudget"), "includeBudget", fieldErrs)
	if len(fieldErrs) > 0 {
		return req, fieldErrs
	}

	if err := h.validator.Struct(req); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) {
			for _, fieldErr := range vErrs {
				name := queryParamNames[fieldErr.StructField()]
				if name == "" {
					name = fieldErr.StructField()
				}
				fieldErrs[name] = validationMessage(fieldErr)
			}
		} else {
			fieldErrs["request"] = err.Error()
		}
	}
	return req, fieldErrs
}

func validationMessage(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return "required"
	case "required_if":
		return "required for the requested scope"
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fieldErr.Param(), " ", ", ")
	case "min":
		return "must be at least " + fieldErr.Param()
	case "max":
		return "must be at most " + fieldErr.Param()
	default:
		return fieldErr.Error()
	}
}

func parseIDParam(raw, name string, fieldErrs map[string]string) int64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		fieldErrs[name] = "must be a positive integer"
		return 0
	}
	return id
}

func parseIntParam(raw, name string, fieldErrs map[string]string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		fieldErrs[name] = "must be an integer"
		return 0
	}
	return v
}

func parseBoolParam(raw, name string, fieldErrs map[string]string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		fieldErrs[name] = "must be a boolean"
		return false
	}
	return v
}
