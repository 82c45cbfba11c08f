// Package coordinator owns the analysis run lifecycle: it triggers record
// fetches, drives the engine, and atomically publishes the resulting
// aggregates. At most one run is in flight at a time.
package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/provtrack/tierwatch/internal/cache"
	"github.com/provtrack/tierwatch/internal/crm"
	"github.com/provtrack/tierwatch/internal/engine"
	"github.com/provtrack/tierwatch/internal/store"
	"github.com/provtrack/tierwatch/pkg/models"
)

// ErrAlreadyRunning is returned by StartRun while another run is in flight.
// Callers decide whether to retry later; runs are never queued.
var ErrAlreadyRunning = errors.New("an analysis run is already in progress")

const (
	runStatusTTL     = 30 * time.Minute
	currentResultTTL = 24 * time.Hour

	defaultStaleAfter = 30 * time.Minute
)

// Config holds the engine knobs the coordinator passes through.
type Config struct {
	RecentLimit int
	DiffWorkers int
	// StaleAfter bounds how long a run may sit in pending/running before a
	// new StartRun finalizes it as failed. Covers runs orphaned by a
	// process crash.
	StaleAfter time.Duration
}

// Coordinator drives analysis runs and owns the published current result.
type Coordinator struct {
	source      crm.Client
	store       store.Store
	cache       cache.Cache
	differ      *engine.Differ
	recentLimit int
	staleAfter  time.Duration

	running atomic.Bool
	current atomic.Pointer[models.AggregateResult]
}

// New creates a Coordinator.
func New(source crm.Client, st store.Store, ca cache.Cache, resolver engine.RankResolver, cfg Config) *Coordinator {
	if cfg.RecentLimit < 1 {
		cfg.RecentLimit = engine.DefaultRecentLimit
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = defaultStaleAfter
	}
	return &Coordinator{
		source:      source,
		store:       st,
		cache:       ca,
		differ:      engine.NewDiffer(resolver, cfg.DiffWorkers),
		recentLimit: cfg.RecentLimit,
		staleAfter:  cfg.StaleAfter,
	}
}

// Restore loads the last published result from the store so reads work
// immediately after a restart. A never-run state is not an error.
func (c *Coordinator) Restore(ctx context.Context) error {
	result, err := c.store.GetCurrentResult(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("restore current result: %w", err)
	}
	c.current.Store(result)
	return nil
}

// Current returns the published result of the latest completed run, or nil if
// no run has ever completed. The read is a single pointer load; readers never
// observe a partially built result.
func (c *Coordinator) Current() *models.AggregateResult {
	return c.current.Load()
}

// StartRun begins a new analysis run and returns it immediately; the run
// proceeds in a background goroutine. Returns ErrAlreadyRunning if a run is
// in flight.
func (c *Coordinator) StartRun(ctx context.Context) (*models.AnalysisRun, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}

	if abandoned, err := c.store.AbandonStaleRuns(ctx, c.staleAfter); err != nil {
		slog.Warn("failed to abandon stale runs", "error", err)
	} else if abandoned > 0 {
		slog.Info("abandoned stale analysis runs", "count", abandoned)
	}

	now := time.Now().UTC()
	run := &models.AnalysisRun{
		ID:        uuid.New(),
		Status:    models.RunStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.CreateRun(ctx, run); err != nil {
		c.running.Store(false)
		return nil, fmt.Errorf("creating run: %w", err)
	}

	_ = c.cache.SetRunStatus(ctx, run.ID, models.RunStatusPending, runStatusTTL)

	go c.run(run.ID)

	return run, nil
}

// run executes one analysis pass. It recovers from panics and always leaves
// the run completed or failed. A failed run never touches the previously
// published result.
func (c *Coordinator) run(runID uuid.UUID) {
	ctx := context.Background()

	defer c.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in analysis run", "error", r, "run_id", runID)
			c.fail(ctx, runID, fmt.Sprintf("panic: %v", r))
		}
	}()

	_ = c.store.UpdateRunStatus(ctx, runID, models.RunStatusRunning)
	_ = c.cache.SetRunStatus(ctx, runID, models.RunStatusRunning, runStatusTTL)

	raw, err := c.source.FetchCompletedRecords(ctx, crm.FetchRequest{})
	if err != nil {
		c.fail(ctx, runID, fmt.Sprintf("fetching records: %v", err))
		return
	}

	records := make([]models.ProvisioningRecord, 0, len(raw))
	excluded := 0
	for _, r := range raw {
		rec, valid := engine.Normalize(r)
		if !valid {
			excluded++
			continue
		}
		records = append(records, rec)
	}

	groups := engine.Group(records)
	changes, stats := c.differ.Diff(groups)
	result := engine.Aggregate(changes, c.recentLimit)
	result.RunID = runID

	counters := models.RunCounters{
		RecordsAnalyzed: len(records),
		RecordsExcluded: excluded,
		PairsEvaluated:  stats.PairsEvaluated,
		PairsUnranked:   stats.PairsUnranked,
		ChangesFound:    len(changes),
		UpgradesFound:   stats.Upgrades,
		DowngradesFound: stats.Downgrades,
	}

	if err := c.store.PublishResult(ctx, &result, changes); err != nil {
		c.fail(ctx, runID, fmt.Sprintf("publishing result: %v", err))
		return
	}

	// The pointer swap is the publication point for in-process readers.
	c.current.Store(&result)

	if payload, err := json.Marshal(&result); err == nil {
		_ = c.cache.SetCurrentResult(ctx, payload, currentResultTTL)
	}

	_ = c.store.UpdateRunStatus(ctx, runID, models.RunStatusCompleted, store.WithCounters(counters))
	_ = c.cache.SetRunStatus(ctx, runID, models.RunStatusCompleted, runStatusTTL)

	slog.Info("analysis run completed",
		"run_id", runID,
		"records_analyzed", counters.RecordsAnalyzed,
		"records_excluded", counters.RecordsExcluded,
		"changes_found", counters.ChangesFound,
		"upgrades", counters.UpgradesFound,
		"downgrades", counters.DowngradesFound,
		"pairs_unranked", counters.PairsUnranked,
	)
}

func (c *Coordinator) fail(ctx context.Context, runID uuid.UUID, msg string) {
	slog.Error("analysis run failed", "run_id", runID, "error", msg)
	_ = c.store.UpdateRunStatus(ctx, runID, models.RunStatusFailed, store.WithErrorMessage(msg))
	_ = c.cache.SetRunStatus(ctx, runID, models.RunStatusFailed, runStatusTTL)
}
