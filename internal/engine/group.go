package engine

import (
	"sort"

	"github.com/provtrack/tierwatch/pkg/models"
)

// Group buckets records by deployment ID and sorts each bucket ascending by
// sequence. Only completed records are retained; in-flight and failed requests
// cannot be compared, but they are not exclusions either, just not eligible.
// A bucket with fewer than two records produces zero changes
// downstream, which is expected and not an error.
func Group(records []models.ProvisioningRecord) map[string][]models.ProvisioningRecord {
	groups := make(map[string][]models.ProvisioningRecord)
	for _, rec := range records {
		if rec.Status != models.StatusCompleted {
			continue
		}
		groups[rec.DeploymentID] = append(groups[rec.DeploymentID], rec)
	}
	for _, group := range groups {
		sort.Slice(group, func(i, j int) bool {
			return group[i].Sequence < group[j].Sequence
		})
	}
	return groups
}
