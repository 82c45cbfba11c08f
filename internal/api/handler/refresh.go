package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/provtrack/tierwatch/internal/api/response"
	"github.com/provtrack/tierwatch/internal/coordinator"
	"github.com/provtrack/tierwatch/pkg/models"
)

// RunStarter defines the interface the refresh handler depends on.
type RunStarter interface {
	StartRun(ctx context.Context) (*models.AnalysisRun, error)
}

// NewRefreshHandler returns an http.HandlerFunc for POST /api/v1/analysis/refresh.
// Returns 202 with the new run, or 409 while a run is already in flight.
func NewRefreshHandler(starter RunStarter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := starter.StartRun(r.Context())
		if errors.Is(err, coordinator.ErrAlreadyRunning) {
			response.Error(w, http.StatusConflict, "REFRESH_IN_PROGRESS",
				"An analysis run is already in progress", nil)
			return
		}
		if err != nil {
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to start analysis run", nil)
			return
		}
		response.Accepted(w, run)
	}
}
