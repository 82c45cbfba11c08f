package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// RunCounters are the per-run statistics rolled up across all deployment
// groups. ChangesFound always equals UpgradesFound + DowngradesFound.
type RunCounters struct {
	RecordsAnalyzed int `db:"records_analyzed" json:"records_analyzed"`
	RecordsExcluded int `db:"records_excluded" json:"records_excluded"`
	PairsEvaluated  int `db:"pairs_evaluated"  json:"pairs_evaluated"`
	PairsUnranked   int `db:"pairs_unranked"   json:"pairs_unranked"`
	ChangesFound    int `db:"changes_found"    json:"changes_found"`
	UpgradesFound   int `db:"upgrades_found"   json:"upgrades_found"`
	DowngradesFound int `db:"downgrades_found" json:"downgrades_found"`
}

// AnalysisRun tracks one execution of the change detection engine. The API
// returns a run on POST /api/v1/analysis/refresh; clients poll
// GET /api/v1/analysis/runs/{runID} until status is completed or failed.
// Prior runs are retained for audit; only the latest completed run's output
// is the published current result.
type AnalysisRun struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	Status       string     `db:"status"        json:"status"`
	ErrorMessage *string    `db:"error_message" json:"error_message,omitempty"`
	RunCounters
	StartedAt   *time.Time `db:"started_at"   json:"started_at,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `db:"created_at"   json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"   json:"updated_at"`
}
