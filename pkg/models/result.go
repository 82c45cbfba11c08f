package models

import (
	"time"

	"github.com/google/uuid"
)

// TierCounts is an upgrade/downgrade tally, used at every aggregation level.
type TierCounts struct {
	Upgrades   int `json:"upgrades"`
	Downgrades int `json:"downgrades"`
}

// Total returns the combined change count.
func (c TierCounts) Total() int {
	return c.Upgrades + c.Downgrades
}

// Summary holds the global roll-up for one analysis run. A record with three
// product changes counts once in RecordsWithChanges and three times in
// TotalChanges.
type Summary struct {
	RecordsWithChanges int `json:"records_with_changes"`
	TotalChanges       int `json:"total_changes"`
	Upgrades           int `json:"upgrades"`
	Downgrades         int `json:"downgrades"`
	AccountsAffected   int `json:"accounts_affected"`
}

// DeploymentAggregate is the per-deployment level of the account tree.
type DeploymentAggregate struct {
	TierCounts
	TenantName string                `json:"tenant_name,omitempty"`
	Products   map[string]TierCounts `json:"products"`
}

// AccountAggregate is the per-account level of the account tree. Its counts
// equal the sum of its deployments' counts, which in turn equal the sum of
// their product counts.
type AccountAggregate struct {
	TierCounts
	AccountName string                          `json:"account_name"`
	Deployments map[string]*DeploymentAggregate `json:"deployments"`
}

// AggregateResult is the published output of one completed analysis run.
// Immutable once published; readers always observe a whole result.
type AggregateResult struct {
	RunID       uuid.UUID                    `json:"run_id"`
	GeneratedAt time.Time                    `json:"generated_at"`
	Summary     Summary                      `json:"summary"`
	ByProduct   map[string]TierCounts        `json:"by_product"`
	ByAccount   map[string]*AccountAggregate `json:"by_account"`
	Recent      []PackageChange              `json:"recent"`
}
