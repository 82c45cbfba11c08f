package engine

import (
	"sort"
	"time"

	"github.com/provtrack/tierwatch/pkg/models"
)

// DefaultRecentLimit bounds the recent-changes feed when no limit is configured.
const DefaultRecentLimit = 50

// Aggregate folds a change list into the published result shape: global
// summary, by-product counts, the account -> deployment -> product tree with
// bottom-up totals, and the recency-ordered feed. Totals at every tree level
// equal the sum of their children's totals, and Summary.TotalChanges always
// equals Summary.Upgrades + Summary.Downgrades.
func Aggregate(changes []models.PackageChange, recentLimit int) models.AggregateResult {
	if recentLimit < 1 {
		recentLimit = DefaultRecentLimit
	}

	result := models.AggregateResult{
		GeneratedAt: time.Now().UTC(),
		ByProduct:   make(map[string]models.TierCounts),
		ByAccount:   make(map[string]*models.AccountAggregate),
	}

	recordsSeen := make(map[string]struct{})
	accountsSeen := make(map[string]struct{})

	for _, change := range changes {
		recordsSeen[change.NewRecordID] = struct{}{}
		accountsSeen[change.AccountID] = struct{}{}

		upgrade := change.ChangeType == models.ChangeTypeUpgrade
		if upgrade {
			result.Summary.Upgrades++
		} else {
			result.Summary.Downgrades++
		}

		counts := result.ByProduct[change.ProductCode]
		bump(&counts, upgrade)
		result.ByProduct[change.ProductCode] = counts

		account, ok := result.ByAccount[change.AccountID]
		if !ok {
			account = &models.AccountAggregate{
				AccountName: change.AccountName,
				Deployments: make(map[string]*models.DeploymentAggregate),
			}
			result.ByAccount[change.AccountID] = account
		}
		bump(&account.TierCounts, upgrade)

		deployment, ok := account.Deployments[change.DeploymentID]
		if !ok {
			deployment = &models.DeploymentAggregate{
				TenantName: change.TenantName,
				Products:   make(map[string]models.TierCounts),
			}
			account.Deployments[change.DeploymentID] = deployment
		}
		bump(&deployment.TierCounts, upgrade)

		product := deployment.Products[change.ProductCode]
		bump(&product, upgrade)
		deployment.Products[change.ProductCode] = product
	}

	result.Summary.TotalChanges = len(changes)
	result.Summary.RecordsWithChanges = len(recordsSeen)
	result.Summary.AccountsAffected = len(accountsSeen)
	result.Recent = recentFeed(changes, recentLimit)

	return result
}

func bump(c *models.TierCounts, upgrade bool) {
	if upgrade {
		c.Upgrades++
	} else {
		c.Downgrades++
	}
}

// recentFeed sorts changes by new-record sequence descending, ties broken by
// product code ascending, truncated to limit.
func recentFeed(changes []models.PackageChange, limit int) []models.PackageChange {
	feed := make([]models.PackageChange, len(changes))
	copy(feed, changes)

	sort.Slice(feed, func(i, j int) bool {
		if feed[i].NewSequence != feed[j].NewSequence {
			return feed[i].NewSequence > feed[j].NewSequence
		}
		return feed[i].ProductCode < feed[j].ProductCode
	})

	if len(feed) > limit {
		feed = feed[:limit]
	}
	return feed
}
