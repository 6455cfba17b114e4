package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/sma-admissions-api/internal/models"
)

const applicationColumns = `id, category, status, external_id, applicant_name, email, phone, grade_applying,
       fields, notes, reviewed_by, reviewed_at, created_at, updated_at`

// ApplicationRepository persists enquiry, admission and registration records.
type ApplicationRepository struct {
	db *sqlx.DB
}

// NewApplicationRepository constructs the repository.
func NewApplicationRepository(db *sqlx.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

func (r *ApplicationRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// Create inserts a new pending application.
func (r *ApplicationRepository) Create(ctx context.Context, app *models.Application) error {
	if app.ID == "" {
		app.ID = uuid.NewString()
	}
	app.Status = models.StatusPending
	app.ExternalID = nil
	if len(app.Fields) == 0 {
		app.Fields = types.JSONText(`{}`)
	}
	now := time.Now().UTC()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = now
	}
	app.UpdatedAt = now

	const query = `INSERT INTO applications
	(id, category, status, external_id, applicant_name, email, phone, grade_applying, fields, notes, reviewed_by, reviewed_at, created_at, updated_at)
	VALUES (:id, :category, :status, :external_id, :applicant_name, :email, :phone, :grade_applying, :fields, :notes, :reviewed_by, :reviewed_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, app); err != nil {
		return fmt.Errorf("create application: %w", err)
	}
	return nil
}

// FindByID fetches an application by identifier.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// FindByExternalID fetches an approved application by its external identifier.
func (r *ApplicationRepository) FindByExternalID(ctx context.Context, externalID string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE external_id = $1`
	var app models.Application
	if err := r.db.GetContext(ctx, &app, query, externalID); err != nil {
		return nil, err
	}
	return &app, nil
}

// LockPending takes a row lock on a pending application inside exec's
// transaction. A concurrent reviewer blocks here until the first commits and
// then sees sql.ErrNoRows because the row is no longer pending.
func (r *ApplicationRepository) LockPending(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1 AND status = 'pending' FOR UPDATE`
	var app models.Application
	if err := sqlx.GetContext(ctx, r.exec(exec), &app, query, id); err != nil {
		return nil, err
	}
	return &app, nil
}

// Review writes the terminal status, and the external identifier for
// approvals, in one conditional statement. Returns sql.ErrNoRows when the
// record is no longer pending.
func (r *ApplicationRepository) Review(ctx context.Context, exec sqlx.ExtContext, review models.ApplicationReview) (*models.Application, error) {
	query := `UPDATE applications
	SET status = $2, external_id = $3, notes = COALESCE($4, notes), reviewed_by = $5, reviewed_at = $6, updated_at = $6
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + applicationColumns
	var app models.Application
	err := sqlx.GetContext(ctx, r.exec(exec), &app, query,
		review.ID,
		review.Status,
		review.ExternalID,
		review.Notes,
		nullableString(review.ReviewedBy),
		review.ReviewedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("review application: %w", err)
	}
	return &app, nil
}

// UpdateFields applies applicant edits in place and returns the stored row.
// Columns the patch leaves nil keep whatever is stored, so a review that
// commits concurrently is never overwritten. Status and identifier are untouched.
func (r *ApplicationRepository) UpdateFields(ctx context.Context, id string, patch models.ApplicationPatch) (*models.Application, error) {
	var fields interface{}
	if len(patch.Fields) > 0 {
		fields = string(patch.Fields)
	}
	query := `UPDATE applications
	SET applicant_name = COALESCE($2, applicant_name),
	    email = COALESCE($3, email),
	    phone = COALESCE($4, phone),
	    grade_applying = COALESCE($5, grade_applying),
	    fields = COALESCE($6::jsonb, fields),
	    notes = CASE WHEN $7 THEN $8::text ELSE notes END,
	    updated_at = $9
	WHERE id = $1
	RETURNING ` + applicationColumns
	var app models.Application
	err := r.db.GetContext(ctx, &app, query,
		id,
		patch.ApplicantName,
		patch.Email,
		patch.Phone,
		patch.GradeApplying,
		fields,
		patch.SetNotes,
		patch.Notes,
		time.Now().UTC(),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update application: %w", err)
	}
	return &app, nil
}

// Delete removes an application row. Attachments must be released first;
// a reference bound in the meantime yields ErrStillReferenced.
func (r *ApplicationRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM applications WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrStillReferenced
		}
		return fmt.Errorf("delete application: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check application delete rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// List returns applications matching the filter with the total count.
func (r *ApplicationRepository) List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error) {
	where, args := buildApplicationFilter(filter)

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"created_at":     true,
		"updated_at":     true,
		"applicant_name": true,
		"external_id":    true,
		"reviewed_at":    true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "created_at"
	}
	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "DESC"
	}
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	listQuery := fmt.Sprintf("SELECT %s FROM applications%s ORDER BY %s %s, id LIMIT %d OFFSET %d",
		applicationColumns, where, sortBy, sortOrder, limit, offset)
	var apps []models.Application
	if err := r.db.SelectContext(ctx, &apps, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list applications: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM applications"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count applications: %w", err)
	}
	return apps, total, nil
}

func buildApplicationFilter(filter models.ApplicationFilter) (string, []interface{}) {
	conditions := make([]string, 0, 6)
	args := make([]interface{}, 0, 6)

	if filter.Category != "" {
		args = append(args, filter.Category)
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.Search != "" {
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
		n := len(args)
		conditions = append(conditions, fmt.Sprintf("(LOWER(applicant_name) LIKE $%d OR LOWER(email) LIKE $%d OR LOWER(COALESCE(external_id, '')) LIKE $%d)", n, n, n))
	}
	if filter.GradeApplying != "" {
		args = append(args, filter.GradeApplying)
		conditions = append(conditions, fmt.Sprintf("grade_applying = $%d", len(args)))
	}
	if filter.CreatedFrom != nil {
		args = append(args, *filter.CreatedFrom)
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.CreatedTo != nil {
		args = append(args, *filter.CreatedTo)
		conditions = append(conditions, fmt.Sprintf("created_at < $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func nullableString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
