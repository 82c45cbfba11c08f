package engine

import (
	"testing"

	"github.com/provtrack/tierwatch/pkg/models"
)

func change(product, account, deployment, newRecordID string, seq int64, ct models.ChangeType) models.PackageChange {
	return models.PackageChange{
		ProductCode:     product,
		PreviousPackage: "P4",
		NewPackage:      "P5",
		ChangeType:      ct,
		DeploymentID:    deployment,
		AccountID:       account,
		AccountName:     "Account " + account,
		TenantName:      deployment + "-tenant",
		NewRecordID:     newRecordID,
		NewSequence:     seq,
	}
}

func TestAggregate_Summary(t *testing.T) {
	changes := []models.PackageChange{
		change("X", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("Y", "A1", "D1", "PS-110", 110, models.ChangeTypeDowngrade),
		change("X", "A2", "D2", "PS-210", 210, models.ChangeTypeUpgrade),
	}

	result := Aggregate(changes, 50)
	s := result.Summary
	if s.TotalChanges != 3 {
		t.Errorf("expected 3 total changes, got %d", s.TotalChanges)
	}
	if s.Upgrades != 2 || s.Downgrades != 1 {
		t.Errorf("expected 2 upgrades, 1 downgrade, got %d/%d", s.Upgrades, s.Downgrades)
	}
	if s.TotalChanges != s.Upgrades+s.Downgrades {
		t.Error("total changes must equal upgrades plus downgrades")
	}
	if s.RecordsWithChanges != 2 {
		t.Errorf("two changes on one record count once, expected 2 records, got %d", s.RecordsWithChanges)
	}
	if s.AccountsAffected != 2 {
		t.Errorf("expected 2 accounts affected, got %d", s.AccountsAffected)
	}
}

func TestAggregate_ByProduct(t *testing.T) {
	changes := []models.PackageChange{
		change("X", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("X", "A2", "D2", "PS-210", 210, models.ChangeTypeDowngrade),
		change("Y", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
	}

	result := Aggregate(changes, 50)
	x := result.ByProduct["X"]
	if x.Upgrades != 1 || x.Downgrades != 1 {
		t.Errorf("product X: expected 1/1, got %d/%d", x.Upgrades, x.Downgrades)
	}
	y := result.ByProduct["Y"]
	if y.Upgrades != 1 || y.Downgrades != 0 {
		t.Errorf("product Y: expected 1/0, got %d/%d", y.Upgrades, y.Downgrades)
	}

	var total int
	for _, counts := range result.ByProduct {
		total += counts.Total()
	}
	if total != result.Summary.TotalChanges {
		t.Error("per-product totals must sum to the summary total")
	}
}

func TestAggregate_AccountTreeSums(t *testing.T) {
	changes := []models.PackageChange{
		change("X", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("Y", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("X", "A1", "D2", "PS-150", 150, models.ChangeTypeDowngrade),
	}

	result := Aggregate(changes, 50)
	account := result.ByAccount["A1"]
	if account == nil {
		t.Fatal("expected account A1 in tree")
	}
	if account.Total() != 3 {
		t.Errorf("account total must sum all its changes, got %d", account.Total())
	}
	if account.AccountName != "Account A1" {
		t.Errorf("unexpected account name %q", account.AccountName)
	}

	var deploymentTotal int
	for _, dep := range account.Deployments {
		deploymentTotal += dep.Total()

		var productTotal int
		for _, counts := range dep.Products {
			productTotal += counts.Total()
		}
		if productTotal != dep.Total() {
			t.Errorf("deployment total %d must equal product sum %d", dep.Total(), productTotal)
		}
	}
	if deploymentTotal != account.Total() {
		t.Errorf("account total %d must equal deployment sum %d", account.Total(), deploymentTotal)
	}

	d1 := account.Deployments["D1"]
	if d1 == nil || d1.TenantName != "D1-tenant" {
		t.Errorf("expected deployment D1 with tenant name, got %+v", d1)
	}
	if d1.Products["X"].Upgrades != 1 || d1.Products["Y"].Upgrades != 1 {
		t.Errorf("unexpected product leaf counts: %+v", d1.Products)
	}
}

func TestAggregate_RecentFeed(t *testing.T) {
	changes := []models.PackageChange{
		change("B", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("A", "A1", "D1", "PS-110", 110, models.ChangeTypeUpgrade),
		change("X", "A1", "D1", "PS-300", 300, models.ChangeTypeUpgrade),
		change("X", "A1", "D1", "PS-200", 200, models.ChangeTypeDowngrade),
	}

	result := Aggregate(changes, 50)
	feed := result.Recent
	if len(feed) != 4 {
		t.Fatalf("expected 4 feed entries, got %d", len(feed))
	}
	if feed[0].NewSequence != 300 || feed[1].NewSequence != 200 {
		t.Errorf("feed must be newest first, got sequences %d, %d", feed[0].NewSequence, feed[1].NewSequence)
	}
	// Equal sequences tie-break on product code ascending.
	if feed[2].ProductCode != "A" || feed[3].ProductCode != "B" {
		t.Errorf("tie-break order wrong: %s, %s", feed[2].ProductCode, feed[3].ProductCode)
	}
}

func TestAggregate_RecentFeedTruncated(t *testing.T) {
	var changes []models.PackageChange
	for i := range 10 {
		changes = append(changes, change("X", "A1", "D1", "PS-110", int64(100+i), models.ChangeTypeUpgrade))
	}

	result := Aggregate(changes, 3)
	if len(result.Recent) != 3 {
		t.Fatalf("expected feed truncated to 3, got %d", len(result.Recent))
	}
	if result.Recent[0].NewSequence != 109 {
		t.Errorf("truncation must keep the newest entries, got sequence %d first", result.Recent[0].NewSequence)
	}
	if result.Summary.TotalChanges != 10 {
		t.Errorf("truncation must not affect totals, got %d", result.Summary.TotalChanges)
	}
}

func TestAggregate_Empty(t *testing.T) {
	result := Aggregate(nil, 50)
	if result.Summary.TotalChanges != 0 {
		t.Errorf("expected zero totals, got %d", result.Summary.TotalChanges)
	}
	if result.ByProduct == nil || result.ByAccount == nil || result.Recent == nil {
		t.Error("maps and feed must be non-nil even when empty")
	}
	if result.GeneratedAt.IsZero() {
		t.Error("generated timestamp must be set")
	}
}
