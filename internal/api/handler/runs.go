package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/provtrack/tierwatch/internal/api/response"
	"github.com/provtrack/tierwatch/internal/cache"
	"github.com/provtrack/tierwatch/internal/store"
	"github.com/provtrack/tierwatch/pkg/models"
)

// RunReader defines the store operations the run handlers depend on.
type RunReader interface {
	GetRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, page, limit int) ([]*models.AnalysisRun, int, error)
}

// NewGetRunHandler returns an http.HandlerFunc for GET /api/v1/analysis/runs/{runID}.
// The cached status, when present, is fresher than the stored row during
// transitions and overrides it.
func NewGetRunHandler(runs RunReader, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runID, err := uuid.Parse(chi.URLParam(r, "runID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"runID must be a valid UUID", nil)
			return
		}

		run, err := runs.GetRun(r.Context(), runID)
		if errors.Is(err, store.ErrNotFound) {
			response.Error(w, http.StatusNotFound, "NOT_FOUND", "Run not found", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to load run", nil)
			return
		}

		if status, ok, err := ca.GetRunStatus(r.Context(), runID); err == nil && ok {
			run.Status = status
		}

		response.JSON(w, run)
	}
}

// NewListRunsHandler returns an http.HandlerFunc for GET /api/v1/analysis/runs.
func NewListRunsHandler(runs RunReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page := queryInt(r, "page", 1)
		limit := queryInt(r, "limit", 20)
		if limit > 100 {
			limit = 100
		}

		list, total, err := runs.ListRuns(r.Context(), page, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to list runs", nil)
			return
		}
		if list == nil {
			list = []*models.AnalysisRun{}
		}

		response.Collection(w, list, response.PaginationMeta{
			Page:    page,
			Limit:   limit,
			Total:   total,
			HasNext: page*limit < total,
		})
	}
}

func queryInt(r *http.Request, key string, defaultVal int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return defaultVal
	}
	return n
}
