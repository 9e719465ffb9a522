package jobs

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/meridian-fin/meridian/internal/authz"
	"github.com/meridian-fin/meridian/internal/platform/httpx"
)

// Handler exposes queue health and manual enqueue endpoints. Enqueues fan
// out across entities and organizations, so they sit behind the full-access
// grant; a refresh scoped to one organization only needs that organization's
// grant.
type Handler struct {
	inspector *asynq.Inspector
	client    *Client
	logger    *slog.Logger
}

// NewHandler constructs the jobs HTTP handler.
func NewHandler(inspector *asynq.Inspector, client *Client, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, client: client, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
	r.Post("/report-warmup", h.enqueueReportWarmup)
	r.Post("/mapping-refresh", h.enqueueMappingRefresh)
}

type queueStatus struct {
	Queue   string `json:"queue"`
	Pending int    `json:"pending"`
}

type enqueueResponse struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, queueStatus{Queue: QueueDefault})
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	status := queueStatus{Queue: QueueDefault}
	if info != nil {
		status.Queue = info.Queue
		status.Pending = info.Pending
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) enqueueReportWarmup(w http.ResponseWriter, r *http.Request) {
	principal := authz.FromContext(r.Context())
	if !principal.HasFullAccess() {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "warmup requires a full-access API key")
		return
	}

	months := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("months")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			httpx.ValidationProblem(w, map[string]string{"months": "must be a positive integer"})
			return
		}
		months = parsed
	}

	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	info, err := h.client.EnqueueReportWarmup(r.Context(), months)
	if err != nil {
		h.logger.Error("enqueue report warmup", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{ID: info.ID, Queue: info.Queue})
}

func (h *Handler) enqueueMappingRefresh(w http.ResponseWriter, r *http.Request) {
	selector := strings.TrimSpace(r.URL.Query().Get("organizationId"))
	if selector == "" {
		selector = "all"
	}

	principal := authz.FromContext(r.Context())
	if selector == "all" {
		if !principal.HasFullAccess() {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "refreshing all organizations requires a full-access API key")
			return
		}
	} else {
		orgID, err := strconv.ParseInt(selector, 10, 64)
		if err != nil || orgID <= 0 {
			httpx.ValidationProblem(w, map[string]string{"organizationId": "must be a positive integer or all"})
			return
		}
		if !principal.CanAccessOrganization(orgID) {
			httpx.Problem(w, http.StatusForbidden, "Forbidden", "API key has no grant for the requested organization")
			return
		}
	}

	if h.client == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	info, err := h.client.EnqueueMappingRefresh(r.Context(), selector)
	if err != nil {
		h.logger.Error("enqueue mapping refresh", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
		return
	}
	httpx.JSON(w, http.StatusAccepted, enqueueResponse{ID: info.ID, Queue: info.Queue})
}
