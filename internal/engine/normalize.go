// Package engine implements package change detection and classification over
// provisioning record histories: normalization, deployment grouping, adjacent
// pairwise diffing, package rank resolution, and aggregation. All functions
// are pure in-memory computation; callers own I/O and persistence.
package engine

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"github.com/provtrack/tierwatch/pkg/models"
)

// Exclusion reason codes. Every excluded record or skipped product pair is
// individually attributable in the logs for troubleshooting.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonOverlappingDates = "overlapping_dates"
	ReasonUnparsableID     = "unparsable_id"
	ReasonUnrankablePair   = "unrankable_package_pair"
)

const payloadDateLayout = "2006-01-02"

// reSequence extracts the trailing integer sequence from a record ID such as
// "PS-140". The sequence, not the created timestamp, is the ordering key.
var reSequence = regexp.MustCompile(`-(\d+)$`)

// payloadLine is one entry of the raw entitlement payload.
type payloadLine struct {
	ProductCode string  `json:"product_code"`
	PackageName *string `json:"package_name"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
}

// Normalize parses a raw provisioning record into its canonical form and
// reports whether it is structurally valid. Invalid records are logged with a
// reason code and must be excluded from every comparison, whether they would
// appear as the previous or the current side of a pair.
func Normalize(raw models.RawRecord) (models.ProvisioningRecord, bool) {
	rec := models.ProvisioningRecord{
		ID:           raw.ID,
		DeploymentID: raw.DeploymentID,
		AccountID:    raw.AccountID,
		AccountName:  raw.AccountName,
		TenantName:   raw.TenantName,
		Status:       models.ParseRecordStatus(raw.Status),
		RequestType:  models.ParseRequestType(raw.RequestType),
		CreatedAt:    raw.CreatedAt,
	}

	seq, ok := ParseSequence(raw.ID)
	if !ok {
		logExcluded(raw, ReasonUnparsableID)
		return rec, false
	}
	rec.Sequence = seq

	entitlements, ok := parsePayload(raw.Payload)
	if !ok {
		logExcluded(raw, ReasonMalformedPayload)
		return rec, false
	}
	rec.Entitlements = entitlements

	if hasOverlappingDates(entitlements) {
		logExcluded(raw, ReasonOverlappingDates)
		return rec, false
	}

	return rec, true
}

// ParseSequence extracts the numeric sequence from a record ID of the form
// PREFIX-<sequence>.
func ParseSequence(id string) (int64, bool) {
	m := reSequence.FindStringSubmatch(id)
	if m == nil {
		return 0, false
	}
	seq, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return seq, true
}

func parsePayload(payload json.RawMessage) ([]models.Entitlement, bool) {
	if len(payload) == 0 {
		return nil, false
	}

	var lines []payloadLine
	if err := json.Unmarshal(payload, &lines); err != nil {
		return nil, false
	}

	entitlements := make([]models.Entitlement, 0, len(lines))
	for _, line := range lines {
		if line.ProductCode == "" {
			return nil, false
		}
		start, err := time.Parse(payloadDateLayout, line.StartDate)
		if err != nil {
			return nil, false
		}
		end, err := time.Parse(payloadDateLayout, line.EndDate)
		if err != nil {
			return nil, false
		}
		pkg := line.PackageName
		if pkg != nil && *pkg == "" {
			pkg = nil
		}
		entitlements = append(entitlements, models.Entitlement{
			ProductCode: line.ProductCode,
			PackageName: pkg,
			DateRange:   models.DateRange{Start: start, End: end},
		})
	}
	return entitlements, true
}

// hasOverlappingDates checks, per product code, every pair of date ranges for
// overlap. A single overlap invalidates the entire record.
func hasOverlappingDates(entitlements []models.Entitlement) bool {
	byProduct := make(map[string][]models.DateRange)
	for _, e := range entitlements {
		byProduct[e.ProductCode] = append(byProduct[e.ProductCode], e.DateRange)
	}
	for _, ranges := range byProduct {
		for i := 0; i < len(ranges); i++ {
			for j := i + 1; j < len(ranges); j++ {
				if ranges[i].Overlaps(ranges[j]) {
					return true
				}
			}
		}
	}
	return false
}

func logExcluded(raw models.RawRecord, reason string) {
	slog.Warn("record excluded from analysis",
		"reason", reason,
		"record_id", raw.ID,
		"deployment_id", raw.DeploymentID,
	)
}
