package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/provtrack/tierwatch/pkg/models"
)

const defaultDiffWorkers = 4

// Stats are the counters a diff pass accumulates across all deployment groups.
type Stats struct {
	PairsEvaluated int
	PairsUnranked  int
	Upgrades       int
	Downgrades     int
}

func (s *Stats) add(other Stats) {
	s.PairsEvaluated += other.PairsEvaluated
	s.PairsUnranked += other.PairsUnranked
	s.Upgrades += other.Upgrades
	s.Downgrades += other.Downgrades
}

// Differ walks grouped records and emits classified package changes.
type Differ struct {
	resolver RankResolver
	workers  int
}

// NewDiffer creates a Differ using the given resolver. workers bounds the
// per-deployment-group fan-out; values below 1 fall back to the default.
func NewDiffer(resolver RankResolver, workers int) *Differ {
	if workers < 1 {
		workers = defaultDiffWorkers
	}
	return &Differ{resolver: resolver, workers: workers}
}

// Diff examines each immediately adjacent record pair of every deployment
// group exactly once and returns the flat change list plus rolled-up stats.
// Deployment groups are independent, so they are diffed concurrently; the
// merged output is sorted (deployment, new sequence, product) so the same
// input always yields the same change list in the same order.
func (d *Differ) Diff(groups map[string][]models.ProvisioningRecord) ([]models.PackageChange, Stats) {
	deploymentIDs := make([]string, 0, len(groups))
	for id := range groups {
		deploymentIDs = append(deploymentIDs, id)
	}
	sort.Strings(deploymentIDs)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		changes []models.PackageChange
		stats   Stats
	)

	sem := make(chan struct{}, d.workers)
	for _, id := range deploymentIDs {
		group := groups[id]
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			groupChanges, groupStats := d.diffGroup(group)

			mu.Lock()
			changes = append(changes, groupChanges...)
			stats.add(groupStats)
			mu.Unlock()
		}()
	}
	wg.Wait()

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].DeploymentID != changes[j].DeploymentID {
			return changes[i].DeploymentID < changes[j].DeploymentID
		}
		if changes[i].NewSequence != changes[j].NewSequence {
			return changes[i].NewSequence < changes[j].NewSequence
		}
		return changes[i].ProductCode < changes[j].ProductCode
	})

	if changes == nil {
		changes = []models.PackageChange{}
	}
	return changes, stats
}

// diffGroup walks one sequence-ordered group. Each adjacent pair is visited
// once; an ineligible pair produces no changes but does not block later pairs.
func (d *Differ) diffGroup(group []models.ProvisioningRecord) ([]models.PackageChange, Stats) {
	var changes []models.PackageChange
	var stats Stats

	for i := 1; i < len(group); i++ {
		previous, current := group[i-1], group[i]
		stats.PairsEvaluated++

		// Only an update can change an existing deployment's packages.
		if current.RequestType != models.RequestTypeUpdate {
			continue
		}

		pairChanges, unranked := d.diffPair(previous, current)
		changes = append(changes, pairChanges...)
		stats.PairsUnranked += unranked
		for _, c := range pairChanges {
			if c.ChangeType == models.ChangeTypeUpgrade {
				stats.Upgrades++
			} else {
				stats.Downgrades++
			}
		}
	}
	return changes, stats
}

// diffPair compares every product present with a non-nil package on both
// sides. A product present on only one side was added or removed, not
// changed. An unrankable package pair excludes that single product and the
// remaining products of the pair are still compared.
func (d *Differ) diffPair(previous, current models.ProvisioningRecord) ([]models.PackageChange, int) {
	prevPackages := packagesByProduct(previous)

	var changes []models.PackageChange
	unranked := 0

	for _, ent := range current.Entitlements {
		if ent.PackageName == nil {
			continue
		}
		prev, ok := prevPackages[ent.ProductCode]
		if !ok {
			continue
		}
		if prev.name == *ent.PackageName {
			continue
		}

		rank := d.resolver.Rank(ent.ProductCode, prev.name, *ent.PackageName)
		if rank == RankUnknown || rank == RankEqual {
			if rank == RankUnknown {
				unranked++
				slog.Warn("package pair excluded from comparison",
					"reason", ReasonUnrankablePair,
					"product_code", ent.ProductCode,
					"previous_package", prev.name,
					"new_package", *ent.PackageName,
					"record_id", current.ID,
				)
			}
			continue
		}

		changeType := models.ChangeTypeUpgrade
		if rank == RankGreater {
			changeType = models.ChangeTypeDowngrade
		}

		changes = append(changes, models.PackageChange{
			ProductCode:       ent.ProductCode,
			PreviousPackage:   prev.name,
			NewPackage:        *ent.PackageName,
			ChangeType:        changeType,
			DeploymentID:      current.DeploymentID,
			AccountID:         current.AccountID,
			AccountName:       current.AccountName,
			TenantName:        current.TenantName,
			PreviousRecordID:  previous.ID,
			NewRecordID:       current.ID,
			NewSequence:       current.Sequence,
			PreviousDateRange: prev.dateRange,
			NewDateRange:      ent.DateRange,
		})
	}
	return changes, unranked
}

type previousPackage struct {
	name      string
	dateRange models.DateRange
}

// packagesByProduct indexes a record's comparison-eligible entitlements.
// If a product appears on multiple lines the latest-starting one wins;
// normalization has already guaranteed the lines do not overlap.
func packagesByProduct(rec models.ProvisioningRecord) map[string]previousPackage {
	out := make(map[string]previousPackage, len(rec.Entitlements))
	for _, ent := range rec.Entitlements {
		if ent.PackageName == nil {
			continue
		}
		existing, ok := out[ent.ProductCode]
		if ok && existing.dateRange.Start.After(ent.DateRange.Start) {
			continue
		}
		out[ent.ProductCode] = previousPackage{name: *ent.PackageName, dateRange: ent.DateRange}
	}
	return out
}
