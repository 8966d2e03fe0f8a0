package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/tagboard/tagboard/internal/audit"
	"github.com/tagboard/tagboard/internal/observability"
	"github.com/tagboard/tagboard/internal/platform/httpx"
	"github.com/tagboard/tagboard/jobs"
)

// Timeline pages through the audit log.
type Timeline interface {
	Timeline(ctx context.Context, filters audit.TimelineFilters) (audit.Result, error)
}

// RouterParams groups dependencies for building the ops router.
type RouterParams struct {
	Logger     *slog.Logger
	Metrics    *observability.Metrics
	JobHandler *jobs.Handler
	Timeline   Timeline
}

// NewOpsRouter serves health, metrics, queue and audit endpoints.
func NewOpsRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(params.Metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Timeline != nil {
		r.Get("/audit", auditTimeline(params.Timeline, params.Logger))
	}
	return r
}

type timelineEntry struct {
	ID      string            `json:"id"`
	Actor   string            `json:"actor"`
	Subject string            `json:"subject"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
	At      time.Time         `json:"at"`
}

type timelinePage struct {
	Entries  []timelineEntry `json:"entries"`
	Page     int             `json:"page"`
	HasNext  bool            `json:"has_next"`
	PageSize int             `json:"page_size"`
}

func auditTimeline(timeline Timeline, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := audit.TimelineFilters{
			Actor:   q.Get("actor"),
			Subject: q.Get("subject"),
		}
		filters.Page, _ = strconv.Atoi(q.Get("page"))
		filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))
		if from, err := time.Parse(time.RFC3339, q.Get("from")); err == nil {
			filters.From = from
		}
		if to, err := time.Parse(time.RFC3339, q.Get("to")); err == nil {
			filters.To = to
		}

		result, err := timeline.Timeline(r.Context(), filters)
		if err != nil {
			if logger != nil {
				logger.Error("audit timeline", slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		page := timelinePage{
			Entries:  make([]timelineEntry, 0, len(result.Entries)),
			Page:     result.Paging.Page,
			HasNext:  result.Paging.HasNext,
			PageSize: result.Paging.PageSize,
		}
		for _, e := range result.Entries {
			page.Entries = append(page.Entries, timelineEntry{
				ID:      e.ID.String(),
				Actor:   e.Actor,
				Subject: e.Subject,
				Message: e.Message(),
				Fields:  e.Fields,
				At:      e.At,
			})
		}
		httpx.JSON(w, http.StatusOK, page)
	}
}
