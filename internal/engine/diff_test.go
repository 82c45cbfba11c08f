package engine

import (
	"reflect"
	"testing"
	"time"

	"github.com/provtrack/tierwatch/pkg/models"
)

func strPtr(s string) *string { return &s }

func yearRange(year int) models.DateRange {
	return models.DateRange{
		Start: time.Date(year, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(year, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func record(id string, seq int64, reqType models.RequestType, packages map[string]*string) models.ProvisioningRecord {
	rec := models.ProvisioningRecord{
		ID:           id,
		Sequence:     seq,
		DeploymentID: "D1",
		AccountID:    "A1",
		AccountName:  "Acme Corp",
		TenantName:   "acme-prod",
		Status:       models.StatusCompleted,
		RequestType:  reqType,
	}
	for product, pkg := range packages {
		rec.Entitlements = append(rec.Entitlements, models.Entitlement{
			ProductCode: product,
			PackageName: pkg,
			DateRange:   yearRange(2024),
		})
	}
	return rec
}

func TestDiff_UpgradeAndDowngrade(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P4"), "Y": strPtr("X3")}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P5"), "Y": strPtr("X2")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}

	byProduct := make(map[string]models.PackageChange)
	for _, c := range changes {
		byProduct[c.ProductCode] = c
	}
	if byProduct["X"].ChangeType != models.ChangeTypeUpgrade {
		t.Errorf("product X: expected upgrade, got %s", byProduct["X"].ChangeType)
	}
	if byProduct["Y"].ChangeType != models.ChangeTypeDowngrade {
		t.Errorf("product Y: expected downgrade, got %s", byProduct["Y"].ChangeType)
	}
	if byProduct["X"].PreviousRecordID != "PS-100" || byProduct["X"].NewRecordID != "PS-110" {
		t.Errorf("unexpected record attribution: %+v", byProduct["X"])
	}
	if stats.PairsEvaluated != 1 || stats.Upgrades != 1 || stats.Downgrades != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestDiff_SamePackageNoChange(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P4")}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P4")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 0 {
		t.Errorf("expected no changes, got %d", len(changes))
	}
	if stats.PairsEvaluated != 1 {
		t.Errorf("expected pair still evaluated, got %d", stats.PairsEvaluated)
	}
}

func TestDiff_IneligibleCurrentRecord(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P4")}),
			record("PS-110", 110, models.RequestTypeNew, map[string]*string{"X": strPtr("P5")}),
		},
	}

	changes, _ := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 0 {
		t.Errorf("a non-update current record must produce no changes, got %d", len(changes))
	}
}

func TestDiff_FirstRecordHasNoPair(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P5")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 0 || stats.PairsEvaluated != 0 {
		t.Errorf("single record must yield no pairs, got %d changes, %d pairs", len(changes), stats.PairsEvaluated)
	}
}

func TestDiff_AdjacencyAfterExclusion(t *testing.T) {
	// An excluded middle record never reaches Diff, so its neighbors become
	// adjacent and are compared directly. No change may reference it.
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P4")}),
			record("PS-130", 130, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P6")}),
		},
	}

	changes, _ := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if c.PreviousRecordID != "PS-100" || c.NewRecordID != "PS-130" {
		t.Errorf("change must bridge the surviving neighbors, got %s -> %s", c.PreviousRecordID, c.NewRecordID)
	}
	if c.ChangeType != models.ChangeTypeUpgrade {
		t.Errorf("expected upgrade, got %s", c.ChangeType)
	}
}

func TestDiff_ProductOnOneSideOnly(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P4")}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"Y": strPtr("P5")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 0 {
		t.Errorf("added or removed products are not changes, got %d", len(changes))
	}
	if stats.PairsUnranked != 0 {
		t.Errorf("disjoint products are not unranked pairs, got %d", stats.PairsUnranked)
	}
}

func TestDiff_NilPackageSkipped(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": nil}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P5")}),
		},
	}

	changes, _ := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 0 {
		t.Errorf("a side without a package cannot be compared, got %d changes", len(changes))
	}
}

func TestDiff_UnrankablePairCountedAndSkipped(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("Gold"), "Y": strPtr("P4")}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("Silver"), "Y": strPtr("P5")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if len(changes) != 1 {
		t.Fatalf("the rankable product must still be compared, got %d changes", len(changes))
	}
	if changes[0].ProductCode != "Y" {
		t.Errorf("expected change for product Y, got %s", changes[0].ProductCode)
	}
	if stats.PairsUnranked != 1 {
		t.Errorf("expected 1 unranked pair, got %d", stats.PairsUnranked)
	}
}

func TestDiff_MultipleAdjacentPairs(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{
		"D1": {
			record("PS-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P3")}),
			record("PS-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P4")}),
			record("PS-120", 120, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P5")}),
		},
	}

	changes, stats := NewDiffer(TierResolver{}, 1).Diff(groups)
	if stats.PairsEvaluated != 2 {
		t.Errorf("three records make two adjacent pairs, got %d", stats.PairsEvaluated)
	}
	if len(changes) != 2 || stats.Upgrades != 2 {
		t.Errorf("expected 2 upgrades, got %d changes, stats %+v", len(changes), stats)
	}
}

func TestDiff_Deterministic(t *testing.T) {
	groups := map[string][]models.ProvisioningRecord{}
	for _, dep := range []string{"D3", "D1", "D2"} {
		r1 := record(dep+"-100", 100, models.RequestTypeNew, map[string]*string{"X": strPtr("P4"), "Y": strPtr("X3")})
		r1.DeploymentID = dep
		r2 := record(dep+"-110", 110, models.RequestTypeUpdate, map[string]*string{"X": strPtr("P5"), "Y": strPtr("X2")})
		r2.DeploymentID = dep
		groups[dep] = []models.ProvisioningRecord{r1, r2}
	}

	d := NewDiffer(TierResolver{}, 4)
	first, _ := d.Diff(groups)
	for range 5 {
		next, _ := d.Diff(groups)
		if !reflect.DeepEqual(first, next) {
			t.Fatal("repeated diffs of the same input must produce identical output")
		}
	}

	for i := 1; i < len(first); i++ {
		if first[i-1].DeploymentID > first[i].DeploymentID {
			t.Fatal("changes must be sorted by deployment")
		}
	}
}

func TestDiff_EmptyInput(t *testing.T) {
	changes, stats := NewDiffer(TierResolver{}, 1).Diff(nil)
	if changes == nil {
		t.Error("change list must be non-nil even when empty")
	}
	if len(changes) != 0 || stats.PairsEvaluated != 0 {
		t.Errorf("expected empty result, got %d changes, %+v", len(changes), stats)
	}
}
