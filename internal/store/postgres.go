package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/provtrack/tierwatch/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Tenants ---

func (s *PostgresStore) GetDefaultTenant(ctx context.Context) (*models.Tenant, error) {
	var t models.Tenant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, crm_org_id, created_at, updated_at FROM tenants WHERE name = 'default' LIMIT 1`,
	).Scan(&t.ID, &t.Name, &t.CRMOrgID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get default tenant: %w", err)
	}
	return &t, nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, tenant_id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		key.ID, key.TenantID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context, tenantID uuid.UUID) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE tenant_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID, tenantID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND tenant_id = $2 AND deleted_at IS NULL`, id, tenantID)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanAPIKeys(rows pgx.Rows) ([]*models.APIKey, error) {
	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.TenantID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

// --- Analysis Runs ---

const runColumns = `id, status, error_message,
	records_analyzed, records_excluded, pairs_evaluated, pairs_unranked,
	changes_found, upgrades_found, downgrades_found,
	started_at, completed_at, created_at, updated_at`

func (s *PostgresStore) CreateRun(ctx context.Context, run *models.AnalysisRun) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO analysis_runs (id, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4)`,
		run.ID, run.Status, run.CreatedAt, run.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, id uuid.UUID) (*models.AnalysisRun, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM analysis_runs WHERE id = $1`, id)

	run, err := scanRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis run: %w", err)
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, page, limit int) ([]*models.AnalysisRun, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}

	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM analysis_runs`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count analysis runs: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+runColumns+` FROM analysis_runs
		 ORDER BY created_at DESC OFFSET $1 LIMIT $2`,
		(page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan analysis run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, id uuid.UUID, status string, opts ...RunUpdateOption) error {
	var params runUpdateParams
	for _, opt := range opts {
		opt(&params)
	}

	now := time.Now().UTC()
	query := `UPDATE analysis_runs SET status = $2, updated_at = $3`
	args := []any{id, status, now}
	argIdx := 4

	if status == models.RunStatusRunning {
		query += fmt.Sprintf(", started_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if status == models.RunStatusCompleted || status == models.RunStatusFailed {
		query += fmt.Sprintf(", completed_at = $%d", argIdx)
		args = append(args, now)
		argIdx++
	}
	if params.ErrorMessage != nil {
		query += fmt.Sprintf(", error_message = $%d", argIdx)
		args = append(args, *params.ErrorMessage)
		argIdx++
	}
	if params.Counters != nil {
		c := params.Counters
		query += fmt.Sprintf(`, records_analyzed = $%d, records_excluded = $%d,
			pairs_evaluated = $%d, pairs_unranked = $%d,
			changes_found = $%d, upgrades_found = $%d, downgrades_found = $%d`,
			argIdx, argIdx+1, argIdx+2, argIdx+3, argIdx+4, argIdx+5, argIdx+6)
		args = append(args, c.RecordsAnalyzed, c.RecordsExcluded,
			c.PairsEvaluated, c.PairsUnranked,
			c.ChangesFound, c.UpgradesFound, c.DowngradesFound)
		argIdx += 7
	}

	query += " WHERE id = $1"

	_, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update run status: %w", err)
	}
	return nil
}

func (s *PostgresStore) AbandonStaleRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	tag, err := s.pool.Exec(ctx,
		`UPDATE analysis_runs
		 SET status = $1, error_message = 'stale run abandoned', completed_at = NOW(), updated_at = NOW()
		 WHERE status IN ($2, $3) AND updated_at < $4`,
		models.RunStatusFailed, models.RunStatusPending, models.RunStatusRunning, cutoff)
	if err != nil {
		return 0, fmt.Errorf("abandon stale runs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*models.AnalysisRun, error) {
	var run models.AnalysisRun
	err := row.Scan(&run.ID, &run.Status, &run.ErrorMessage,
		&run.RecordsAnalyzed, &run.RecordsExcluded, &run.PairsEvaluated, &run.PairsUnranked,
		&run.ChangesFound, &run.UpgradesFound, &run.DowngradesFound,
		&run.StartedAt, &run.CompletedAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &run, nil
}

// --- Published Results ---

func (s *PostgresStore) PublishResult(ctx context.Context, result *models.AggregateResult, changes []models.PackageChange) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal aggregate result: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin publish tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`UPDATE aggregate_results SET is_current = FALSE WHERE is_current`); err != nil {
		return fmt.Errorf("retire current result: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO aggregate_results (id, run_id, generated_at, payload, is_current, created_at)
		 VALUES ($1, $2, $3, $4, TRUE, NOW())`,
		uuid.New(), result.RunID, result.GeneratedAt, payload); err != nil {
		return fmt.Errorf("insert aggregate result: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM package_changes`); err != nil {
		return fmt.Errorf("clear package changes: %w", err)
	}

	batch := &pgx.Batch{}
	for _, c := range changes {
		batch.Queue(
			`INSERT INTO package_changes
			 (run_id, product_code, previous_package, new_package, change_type,
			  deployment_id, account_id, account_name, tenant_name,
			  previous_record_id, new_record_id, new_sequence,
			  previous_start, previous_end, new_start, new_end)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
			result.RunID, c.ProductCode, c.PreviousPackage, c.NewPackage, c.ChangeType,
			c.DeploymentID, c.AccountID, c.AccountName, c.TenantName,
			c.PreviousRecordID, c.NewRecordID, c.NewSequence,
			c.PreviousDateRange.Start, c.PreviousDateRange.End,
			c.NewDateRange.Start, c.NewDateRange.End)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert package changes: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCurrentResult(ctx context.Context) (*models.AggregateResult, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM aggregate_results WHERE is_current LIMIT 1`,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get current result: %w", err)
	}

	var result models.AggregateResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal aggregate result: %w", err)
	}
	return &result, nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// Compile-time check that PostgresStore implements Store.
var _ Store = (*PostgresStore)(nil)
