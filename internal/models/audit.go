package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// Audit actions recorded for the admissions lifecycle.
const (
	AuditActionLogin             = "LOGIN"
	AuditActionUserCreate        = "USER_CREATE"
	AuditActionApplicationSubmit = "APPLICATION_SUBMIT"
	AuditActionApplicationUpdate = "APPLICATION_UPDATE"
	AuditActionApprove           = "APPLICATION_APPROVE"
	AuditActionReject            = "APPLICATION_REJECT"
	AuditActionApplicationDelete = "APPLICATION_DELETE"
	AuditActionApplicationExport = "APPLICATION_EXPORT"
	AuditActionAttachmentBind    = "ATTACHMENT_BIND"
	AuditActionAttachmentReplace = "ATTACHMENT_REPLACE"
	AuditActionAttachmentRelease = "ATTACHMENT_RELEASE"
)

// Audit resources.
const (
	AuditResourceAuth        = "auth"
	AuditResourceUser        = "user"
	AuditResourceApplication = "application"
	AuditResourceAttachment  = "attachment"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string         `db:"id" json:"id"`
	UserID     *string        `db:"user_id" json:"user_id,omitempty"`
	Action     string         `db:"action" json:"action"`
	Resource   string         `db:"resource" json:"resource"`
	ResourceID *string        `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  types.JSONText `db:"old_values" json:"old_values,omitempty"`
	NewValues  types.JSONText `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string         `db:"ip_address" json:"ip_address"`
	UserAgent  string         `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Actor identifies who performs an operation, for audit and attribution.
type Actor struct {
	UserID    string
	Role      UserRole
	IP        string
	UserAgent string
}
