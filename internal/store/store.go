package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/provtrack/tierwatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error
	GetDefaultTenant(ctx context.Context) (*models.Tenant, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error

	CreateRun(ctx context.Context, run *models.AnalysisRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error)
	ListRuns(ctx context.Context, page, limit int) ([]*models.AnalysisRun, int, error)
	UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error
	AbandonStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error)

	// PublishResult atomically replaces the current aggregate result and the
	// audit copy of its change list. Readers see either the old result whole
	// or the new result whole, never a mix.
	PublishResult(ctx context.Context, result *models.AggregateResult, changes []models.PackageChange) error
	// GetCurrentResult returns the latest published result, or ErrNotFound
	// when no run has ever completed.
	GetCurrentResult(ctx context.Context) (*models.AggregateResult, error)
}

type runUpdateParams struct {
	ErrorMessage *string
	Counters     *models.RunCounters
}

type RunUpdateOption func(*runUpdateParams)

func WithErrorMessage(msg string) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func WithCounters(c models.RunCounters) RunUpdateOption {
	return func(p *runUpdateParams) {
		p.Counters = &c
	}
}
