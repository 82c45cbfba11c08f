// Package soql constructs SOQL query strings for the provisioning record API.
package soql

import (
	"fmt"
	"strings"
)

const recordFields = "Id, Deployment__c, Account__c, Account_Name__c, Tenant_Name__c, " +
	"Status__c, Request_Type__c, CreatedDate, Entitlement_Payload__c"

// QueryBuilder constructs safe SOQL query strings.
// All methods are pure functions with no side effects.
// Zero value is ready to use.
type QueryBuilder struct{}

// RecordQueryParams defines inputs for provisioning record queries.
type RecordQueryParams struct {
	SinceSequence int64
	DeploymentID  string
	Statuses      []string
	Limit         int
}

// BuildRecordQuery returns a SOQL query selecting provisioning requests,
// oldest first so sequence numbers arrive in creation order.
func (b QueryBuilder) BuildRecordQuery(p RecordQueryParams) string {
	conditions := []string{}

	if sf := b.buildStatusFilter(p.Statuses); sf != "" {
		conditions = append(conditions, sf)
	}
	if p.DeploymentID != "" {
		conditions = append(conditions, fmt.Sprintf("Deployment__c = '%s'", escape(p.DeploymentID)))
	}
	if p.SinceSequence > 0 {
		conditions = append(conditions, fmt.Sprintf("Sequence__c > %d", p.SinceSequence))
	}

	query := fmt.Sprintf("SELECT %s FROM Provisioning_Request__c", recordFields)
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY CreatedDate ASC"
	if p.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", p.Limit)
	}
	return query
}

func (b QueryBuilder) buildStatusFilter(statuses []string) string {
	if len(statuses) == 0 {
		return ""
	}
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + escape(s) + "'"
	}
	if len(quoted) == 1 {
		return "Status__c = " + quoted[0]
	}
	return fmt.Sprintf("Status__c IN (%s)", strings.Join(quoted, ", "))
}

// escape neutralizes single quotes and backslashes in filter values.
func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, "'", `\'`)
}
