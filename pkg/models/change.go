package models

// ChangeType classifies a package tier transition.
type ChangeType string

const (
	ChangeTypeUpgrade   ChangeType = "upgrade"
	ChangeTypeDowngrade ChangeType = "downgrade"
)

// PackageChange is one detected package tier transition for a product between
// two adjacent records of the same deployment. Immutable once produced;
// lifetime is one analysis run.
type PackageChange struct {
	ProductCode       string     `db:"product_code"        json:"product_code"`
	PreviousPackage   string     `db:"previous_package"    json:"previous_package"`
	NewPackage        string     `db:"new_package"         json:"new_package"`
	ChangeType        ChangeType `db:"change_type"         json:"change_type"`
	DeploymentID      string     `db:"deployment_id"       json:"deployment_id"`
	AccountID         string     `db:"account_id"          json:"account_id"`
	AccountName       string     `db:"account_name"        json:"account_name"`
	TenantName        string     `db:"tenant_name"         json:"tenant_name,omitempty"`
	PreviousRecordID  string     `db:"previous_record_id"  json:"previous_record_id"`
	NewRecordID       string     `db:"new_record_id"       json:"new_record_id"`
	NewSequence       int64      `db:"new_sequence"        json:"new_sequence"`
	PreviousDateRange DateRange  `db:"previous_date_range" json:"previous_date_range"`
	NewDateRange      DateRange  `db:"new_date_range"      json:"new_date_range"`
}
