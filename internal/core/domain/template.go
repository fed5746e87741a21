package domain

import (
	"time"

	"github.com/google/uuid"
)

// TemplateStatus mirrors the provider-side approval state. Only approved
// templates may be broadcast.
type TemplateStatus string

const (
	TemplateStatusPending  TemplateStatus = "pending"
	TemplateStatusApproved TemplateStatus = "approved"
	TemplateStatusRejected TemplateStatus = "rejected"
)

// VarContactName is the reserved template variable that resolves to the
// contact's display name at send time.
const VarContactName = "contact_name"

// Template is a pre-approved message structure with placeholder variables,
// required for messaging outside an active service window.
type Template struct {
	ID        uuid.UUID      `json:"id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Name      string         `json:"name"`
	Language  string         `json:"language"`
	Body      string         `json:"body"`
	Status    TemplateStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// MergeVariables resolves the variable set for one send: campaign defaults,
// overridden by recipient-specific values, with the reserved contact-name
// key filled from the contact when absent.
func MergeVariables(defaults, overrides map[string]string, contactName string) map[string]string {
	merged := make(map[string]string, len(defaults)+len(overrides)+1)
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	if _, ok := merged[VarContactName]; !ok {
		merged[VarContactName] = contactName
	}
	return merged
}
