// Package models contains shared data models used across the Tierwatch codebase.
package models

import (
	"encoding/json"
	"time"
)

// RecordStatus is the lifecycle state of a provisioning request.
type RecordStatus string

const (
	StatusCompleted  RecordStatus = "completed"
	StatusInProgress RecordStatus = "in_progress"
	StatusFailed     RecordStatus = "failed"
	StatusOther      RecordStatus = "other"
)

// RequestType describes what a provisioning request was asked to do.
type RequestType string

const (
	RequestTypeNew         RequestType = "new"
	RequestTypeUpdate      RequestType = "update"
	RequestTypeDeprovision RequestType = "deprovision"
	RequestTypeOther       RequestType = "other"
)

// ParseRecordStatus maps a raw CRM status string to a RecordStatus.
// Unrecognized values map to StatusOther.
func ParseRecordStatus(s string) RecordStatus {
	switch s {
	case "Completed", "completed":
		return StatusCompleted
	case "In Progress", "InProgress", "in_progress":
		return StatusInProgress
	case "Failed", "failed":
		return StatusFailed
	default:
		return StatusOther
	}
}

// ParseRequestType maps a raw CRM request type string to a RequestType.
// Unrecognized values map to RequestTypeOther.
func ParseRequestType(s string) RequestType {
	switch s {
	case "New", "new":
		return RequestTypeNew
	case "Update", "update":
		return RequestTypeUpdate
	case "Deprovision", "deprovision":
		return RequestTypeDeprovision
	default:
		return RequestTypeOther
	}
}

// RawRecord is a provisioning request as returned by the CRM, before
// normalization. The entitlement payload is kept opaque until the engine
// parses and validates it.
type RawRecord struct {
	ID           string          `json:"id"`
	DeploymentID string          `json:"deployment_id"`
	AccountID    string          `json:"account_id"`
	AccountName  string          `json:"account_name"`
	TenantName   string          `json:"tenant_name,omitempty"`
	Status       string          `json:"status"`
	RequestType  string          `json:"request_type"`
	CreatedAt    time.Time       `json:"created_at"`
	Payload      json.RawMessage `json:"payload"`
}

// DateRange is an inclusive active window for an entitlement.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether two inclusive ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !r.Start.After(other.End) && !other.Start.After(r.End)
}

// Entitlement is one product line within a provisioning record's payload.
// PackageName is nil when the line carries no package tier; such lines are
// kept for product-existence checks but never participate in a comparison.
type Entitlement struct {
	ProductCode string    `json:"product_code"`
	PackageName *string   `json:"package_name,omitempty"`
	DateRange   DateRange `json:"date_range"`
}

// ProvisioningRecord is a normalized provisioning request. Sequence is parsed
// from the trailing integer of the record ID and is the ordering key within a
// deployment.
type ProvisioningRecord struct {
	ID           string        `json:"id"`
	Sequence     int64         `json:"sequence"`
	DeploymentID string        `json:"deployment_id"`
	AccountID    string        `json:"account_id"`
	AccountName  string        `json:"account_name"`
	TenantName   string        `json:"tenant_name,omitempty"`
	Status       RecordStatus  `json:"status"`
	RequestType  RequestType   `json:"request_type"`
	CreatedAt    time.Time     `json:"created_at"`
	Entitlements []Entitlement `json:"entitlements"`
}
