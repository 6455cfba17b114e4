package models

import "time"

// ReleaseAll selects every attachment of a record in release operations.
const ReleaseAll = "*"

// Attachment references one blob in object storage bound to an application
// under a role. At most one attachment exists per (application, role).
type Attachment struct {
	ID            string    `db:"id" json:"id"`
	ApplicationID string    `db:"application_id" json:"applicationId"`
	Role          string    `db:"role" json:"role"`
	BlobKey       string    `db:"blob_key" json:"-"`
	URL           string    `db:"url" json:"url"`
	ContentType   string    `db:"content_type" json:"contentType"`
	SizeBytes     int64     `db:"size_bytes" json:"sizeBytes"`
	UploadedBy    *string   `db:"uploaded_by" json:"uploadedBy,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// OrphanedBlob records a blob whose remote delete failed. The sweeper
// retries it until it succeeds or the attempt budget is spent.
type OrphanedBlob struct {
	ID            string     `db:"id" json:"id"`
	BlobKey       string     `db:"blob_key" json:"blobKey"`
	ApplicationID *string    `db:"application_id" json:"applicationId,omitempty"`
	Role          string     `db:"role" json:"role"`
	Reason        string     `db:"reason" json:"reason"`
	Attempts      int        `db:"attempts" json:"attempts"`
	LastError     *string    `db:"last_error" json:"lastError,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"createdAt"`
	ResolvedAt    *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// Orphan reasons.
const (
	OrphanReasonRelease    = "release"
	OrphanReasonReplace    = "replace"
	OrphanReasonCompensate = "compensate"
)
