package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

const attachmentColumns = `id, application_id, role, blob_key, url, content_type, size_bytes, uploaded_by, created_at, updated_at`

// AttachmentRepository persists attachment references.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create inserts a new reference. A second reference for the same
// (application, role) yields ErrDuplicate.
func (r *AttachmentRepository) Create(ctx context.Context, att *models.Attachment) error {
	if att.ID == "" {
		att.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if att.CreatedAt.IsZero() {
		att.CreatedAt = now
	}
	att.UpdatedAt = now

	const query = `INSERT INTO application_attachments
	(id, application_id, role, blob_key, url, content_type, size_bytes, uploaded_by, created_at, updated_at)
	VALUES (:id, :application_id, :role, :blob_key, :url, :content_type, :size_bytes, :uploaded_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, att); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// FindByID fetches a reference by identifier.
func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM application_attachments WHERE id = $1`
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, id); err != nil {
		return nil, err
	}
	return &att, nil
}

// FindByRole fetches the reference bound to role, or sql.ErrNoRows.
func (r *AttachmentRepository) FindByRole(ctx context.Context, applicationID, role string) (*models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM application_attachments WHERE application_id = $1 AND role = $2`
	var att models.Attachment
	if err := r.db.GetContext(ctx, &att, query, applicationID, role); err != nil {
		return nil, err
	}
	return &att, nil
}

// ListByApplication returns every reference of an application ordered by role.
func (r *AttachmentRepository) ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	query := `SELECT ` + attachmentColumns + ` FROM application_attachments WHERE application_id = $1 ORDER BY role`
	var atts []models.Attachment
	if err := r.db.SelectContext(ctx, &atts, query, applicationID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return atts, nil
}

// Swap points an existing reference at a new blob, provided it still points
// at oldBlobKey. Returns sql.ErrNoRows when a concurrent writer got there first.
func (r *AttachmentRepository) Swap(ctx context.Context, att *models.Attachment, oldBlobKey string) error {
	att.UpdatedAt = time.Now().UTC()
	const query = `UPDATE application_attachments
	SET blob_key = $3, url = $4, content_type = $5, size_bytes = $6, uploaded_by = $7, updated_at = $8
	WHERE id = $1 AND blob_key = $2`
	result, err := r.db.ExecContext(ctx, query,
		att.ID, oldBlobKey, att.BlobKey, att.URL, att.ContentType, att.SizeBytes, att.UploadedBy, att.UpdatedAt)
	if err != nil {
		return fmt.Errorf("swap attachment blob: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check attachment swap rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a reference provided it still points at blobKey. It reports
// false when the row is gone or a concurrent replace moved it to another blob.
func (r *AttachmentRepository) Delete(ctx context.Context, id, blobKey string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM application_attachments WHERE id = $1 AND blob_key = $2`, id, blobKey)
	if err != nil {
		return false, fmt.Errorf("delete attachment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("check attachment delete rows: %w", err)
	}
	return rows > 0, nil
}
