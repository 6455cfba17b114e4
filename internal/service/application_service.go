package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
	"github.com/noah-isme/sma-admissions-api/pkg/tracing"
)

const exportPageSize = 500

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

type applicationStore interface {
	Create(ctx context.Context, app *models.Application) error
	FindByID(ctx context.Context, id string) (*models.Application, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Application, error)
	LockPending(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Application, error)
	Review(ctx context.Context, exec sqlx.ExtContext, review models.ApplicationReview) (*models.Application, error)
	UpdateFields(ctx context.Context, id string, patch models.ApplicationPatch) (*models.Application, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter models.ApplicationFilter) ([]models.Application, int, error)
}

type sequenceSource interface {
	NextWithin(ctx context.Context, exec sqlx.ExtContext, category models.ApplicationCategory, at time.Time) (int64, error)
	Current(ctx context.Context, category models.ApplicationCategory, at time.Time) (string, int64, error)
}

type identifierCodec interface {
	Format(category models.ApplicationCategory, seq int64, at time.Time) (string, error)
	Parse(code string) (ParsedIdentifier, error)
}

type attachmentCoordinator interface {
	List(ctx context.Context, applicationID string) ([]models.Attachment, error)
	Release(ctx context.Context, applicationID, role string, actor *models.Actor) ([]string, error)
}

type applicationNotifier interface {
	NotifySubmitted(app *models.Application) error
	NotifyTransition(app *models.Application) error
}

type verificationCache interface {
	Lookup(ctx context.Context, code string) (*models.Verification, bool)
	Store(ctx context.Context, v *models.Verification)
	Forget(ctx context.Context, codes ...string)
}

// errLostRace marks a conditional write that found the record no longer pending.
var errLostRace = errors.New("application no longer pending")

// ApplicationServiceConfig holds tunables.
type ApplicationServiceConfig struct {
	// ExportBatchSize is the page size used while streaming CSV exports.
	ExportBatchSize int
}

// ApplicationService runs the pending -> approved | rejected workflow.
// Approval bumps the category counter and writes status plus identifier in
// one transaction; side effects that may fail independently (audit, cache,
// notification) run only after commit.
type ApplicationService struct {
	tx          txProvider
	repo        applicationStore
	allocator   sequenceSource
	formatter   identifierCodec
	attachments attachmentCoordinator
	notifier    applicationNotifier
	cache       verificationCache
	audit       auditWriter
	metrics     *MetricsService
	tracer      trace.Tracer
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         ApplicationServiceConfig
	now         func() time.Time
}

// ApplicationServiceOption configures optional collaborators.
type ApplicationServiceOption func(*ApplicationService)

// WithApplicationNotifier enables lifecycle emails.
func WithApplicationNotifier(notifier applicationNotifier) ApplicationServiceOption {
	return func(s *ApplicationService) { s.notifier = notifier }
}

// WithApplicationCache caches public verification lookups.
func WithApplicationCache(cache verificationCache) ApplicationServiceOption {
	return func(s *ApplicationService) { s.cache = cache }
}

// WithApplicationAudit records the audit trail.
func WithApplicationAudit(audit auditWriter) ApplicationServiceOption {
	return func(s *ApplicationService) { s.audit = audit }
}

// WithApplicationMetrics publishes workflow counters.
func WithApplicationMetrics(metrics *MetricsService) ApplicationServiceOption {
	return func(s *ApplicationService) { s.metrics = metrics }
}

// WithApplicationTracer wraps transitions and deletes in spans.
func WithApplicationTracer(tracer trace.Tracer) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithApplicationClock overrides the clock used for review timestamps and year scoping.
func WithApplicationClock(now func() time.Time) ApplicationServiceOption {
	return func(s *ApplicationService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewApplicationService constructs the workflow service.
func NewApplicationService(tx txProvider, repo applicationStore, allocator sequenceSource, formatter identifierCodec, attachments attachmentCoordinator, validate *validator.Validate, logger *zap.Logger, cfg ApplicationServiceConfig, opts ...ApplicationServiceOption) *ApplicationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if cfg.ExportBatchSize <= 0 {
		cfg.ExportBatchSize = exportPageSize
	}
	s := &ApplicationService{
		tx:          tx,
		repo:        repo,
		allocator:   allocator,
		formatter:   formatter,
		attachments: attachments,
		tracer:      noop.NewTracerProvider().Tracer("applications"),
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Submit creates a pending record from a public form.
func (s *ApplicationService) Submit(ctx context.Context, category models.ApplicationCategory, req dto.SubmitApplicationRequest, actor *models.Actor) (*models.Application, error) {
	if !category.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", category))
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	fields, err := normalizeFields(req.Fields)
	if err != nil {
		return nil, err
	}

	app := &models.Application{
		Category:      category,
		ApplicantName: strings.TrimSpace(req.ApplicantName),
		Email:         strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:         strings.TrimSpace(req.Phone),
		GradeApplying: strings.TrimSpace(req.GradeApplying),
		Fields:        fields,
	}
	if err := s.repo.Create(ctx, app); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save application")
	}

	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     models.AuditActionApplicationSubmit,
		resource:   models.AuditResourceApplication,
		resourceID: app.ID,
		newValues:  map[string]interface{}{"category": app.Category, "applicantName": app.ApplicantName},
	})
	if s.notifier != nil {
		if err := s.notifier.NotifySubmitted(app); err != nil {
			s.logger.Warn("submission acknowledgement not queued", zap.String("application_id", app.ID), zap.Error(err))
		}
	}
	return app, nil
}

// Get returns a record with its attachment references.
func (s *ApplicationService) Get(ctx context.Context, id string) (*dto.ApplicationDetail, error) {
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	detail := &dto.ApplicationDetail{Application: *app, Attachments: []models.Attachment{}}
	if s.attachments != nil {
		atts, err := s.attachments.List(ctx, id)
		if err != nil {
			return nil, err
		}
		detail.Attachments = atts
	}
	return detail, nil
}

// List returns a filtered page of records.
func (s *ApplicationService) List(ctx context.Context, query dto.ApplicationQuery) ([]models.Application, *models.Pagination, error) {
	filter, err := s.buildFilter(query)
	if err != nil {
		return nil, nil, err
	}
	apps, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list applications")
	}
	if apps == nil {
		apps = []models.Application{}
	}
	return apps, &models.Pagination{
		Page:       filter.Offset/filter.Limit + 1,
		PageSize:   filter.Limit,
		TotalCount: total,
	}, nil
}

// UpdateFields edits applicant data. Status and identifier never change here.
func (s *ApplicationService) UpdateFields(ctx context.Context, id string, req dto.UpdateApplicationRequest, actor *models.Actor) (*models.Application, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid update payload")
	}
	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	var patch models.ApplicationPatch
	if req.ApplicantName != nil {
		patch.ApplicantName = trimmed(*req.ApplicantName)
	}
	if req.Email != nil {
		patch.Email = trimmed(strings.ToLower(*req.Email))
	}
	if req.Phone != nil {
		patch.Phone = trimmed(*req.Phone)
	}
	if req.GradeApplying != nil {
		patch.GradeApplying = trimmed(*req.GradeApplying)
	}
	if req.Notes != nil {
		patch.SetNotes = true
		patch.Notes = optionalString(*req.Notes)
	}
	if len(req.Fields) > 0 {
		fields, err := normalizeFields(req.Fields)
		if err != nil {
			return nil, err
		}
		patch.Fields = fields
	}

	updated, err := s.repo.UpdateFields(ctx, id, patch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application")
	}
	s.invalidateVerification(ctx, updated)

	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     models.AuditActionApplicationUpdate,
		resource:   models.AuditResourceApplication,
		resourceID: updated.ID,
		oldValues:  app,
		newValues:  updated,
	})
	return updated, nil
}

// Transition moves a pending record to approved or rejected.
//
// A record already in a terminal state yields ErrInvalidTransition carrying
// its identifier. A caller that loses a concurrent race yields ErrConflict
// with the winner's status and identifier; the loser never touches the counter.
func (s *ApplicationService) Transition(ctx context.Context, id string, req dto.TransitionRequest, actor *models.Actor) (app *models.Application, warnings []string, err error) {
	ctx, span := s.tracer.Start(ctx, "applications.transition", trace.WithAttributes(
		attribute.String("application.id", id),
		attribute.String("application.target_status", string(req.Status)),
	))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "status must be approved or rejected")
	}
	current, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	span.SetAttributes(attribute.String("application.category", string(current.Category)))
	if current.Status.Terminal() {
		s.metrics.RecordTransition(current.Category, req.Status, TransitionResultInvalid)
		return nil, nil, terminalError(current)
	}

	updated, err := s.review(ctx, current, req, actor)
	if err != nil {
		if errors.Is(err, errLostRace) {
			s.metrics.RecordTransition(current.Category, req.Status, TransitionResultConflict)
			return nil, nil, s.conflictError(ctx, id)
		}
		s.metrics.RecordTransition(current.Category, req.Status, TransitionResultError)
		return nil, nil, err
	}

	s.metrics.RecordTransition(updated.Category, updated.Status, TransitionResultOK)
	action := models.AuditActionReject
	if updated.Status == models.StatusApproved {
		action = models.AuditActionApprove
		s.metrics.IdentifierMinted(updated.Category)
		span.SetAttributes(attribute.String("application.external_id", updated.ExternalIDValue()))
		s.logger.Info("application approved",
			zap.String("application_id", updated.ID),
			zap.String("category", string(updated.Category)),
			zap.String("external_id", updated.ExternalIDValue()),
		)
	}
	s.invalidateVerification(ctx, updated)
	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     action,
		resource:   models.AuditResourceApplication,
		resourceID: updated.ID,
		oldValues:  map[string]interface{}{"status": current.Status},
		newValues:  map[string]interface{}{"status": updated.Status, "externalId": updated.ExternalID},
	})

	if s.notifier != nil {
		if err := s.notifier.NotifyTransition(updated); err != nil {
			s.logger.Warn("transition notification not queued", zap.String("application_id", updated.ID), zap.Error(err))
			warnings = append(warnings, "notification could not be queued")
		}
	}
	return updated, warnings, nil
}

// review performs the conditional write. Approvals allocate inside the same
// transaction, after the row lock, so a losing caller never bumps the counter.
func (s *ApplicationService) review(ctx context.Context, current *models.Application, req dto.TransitionRequest, actor *models.Actor) (result *models.Application, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.repo.LockPending(ctx, tx, current.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errLostRace
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock application")
	}

	now := s.now().UTC()
	review := models.ApplicationReview{
		ID:         current.ID,
		Status:     req.Status,
		Notes:      optionalString(req.Notes),
		ReviewedBy: actorID(actor),
		ReviewedAt: now,
	}
	if req.Status == models.StatusApproved {
		seq, err := s.allocator.NextWithin(ctx, tx, current.Category, now)
		if err != nil {
			return nil, err
		}
		externalID, err := s.formatter.Format(current.Category, seq, now)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrAllocation.Code, appErrors.ErrAllocation.Status, "failed to format identifier")
		}
		review.ExternalID = &externalID
	}

	result, err = s.repo.Review(ctx, tx, review)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errLostRace
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update application status")
	}

	if err = tx.Commit(); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit transition")
	}
	return result, nil
}

// Delete releases every attachment and then removes the record. Blobs that
// could not be deleted come back as warnings and do not block the delete.
func (s *ApplicationService) Delete(ctx context.Context, id string, actor *models.Actor) (warnings []string, err error) {
	ctx, span := s.tracer.Start(ctx, "applications.delete", trace.WithAttributes(attribute.String("application.id", id)))
	defer func() {
		tracing.RecordError(span, err)
		span.End()
	}()

	app, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if s.attachments != nil {
		warnings, err = s.attachments.Release(ctx, id, models.ReleaseAll, actor)
		if err != nil {
			return warnings, err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return warnings, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		if errors.Is(err, repository.ErrStillReferenced) {
			return warnings, appErrors.Clone(appErrors.ErrConflict, "attachments changed during delete, retry")
		}
		return warnings, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete application")
	}
	for _, warning := range warnings {
		s.logger.Warn("application deleted with attachment warning", zap.String("application_id", id), zap.String("warning", warning))
	}
	s.invalidateVerification(ctx, app)

	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     models.AuditActionApplicationDelete,
		resource:   models.AuditResourceApplication,
		resourceID: id,
		oldValues:  app,
		newValues:  map[string]interface{}{"warnings": warnings},
	})
	return warnings, nil
}

// Verify is the public lookup of an approved record by its identifier.
func (s *ApplicationService) Verify(ctx context.Context, code string) (*models.Verification, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if _, err := s.formatter.Parse(code); err != nil {
		return nil, err
	}
	if s.cache != nil {
		if cached, hit := s.cache.Lookup(ctx, code); hit {
			return cached, nil
		}
	}

	app, err := s.repo.FindByExternalID(ctx, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "identifier not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify identifier")
	}
	result := &models.Verification{
		ExternalID:    app.ExternalIDValue(),
		Category:      app.Category,
		ApplicantName: app.ApplicantName,
		GradeApplying: app.GradeApplying,
		Status:        app.Status,
		ApprovedAt:    app.ReviewedAt,
	}
	if s.cache != nil {
		s.cache.Store(ctx, result)
	}
	return result, nil
}

// Counter reports the last value issued for a category and the identifier it produced.
func (s *ApplicationService) Counter(ctx context.Context, category models.ApplicationCategory) (*dto.CounterResponse, error) {
	now := s.now().UTC()
	key, value, err := s.allocator.Current(ctx, category, now)
	if err != nil {
		return nil, err
	}
	resp := &dto.CounterResponse{Category: category, Key: key, Value: value}
	if value > 0 {
		if last, err := s.formatter.Format(category, value, now); err == nil {
			resp.LastID = last
		}
	}
	return resp, nil
}

// Export writes every record matching query to w as CSV and returns the row count.
func (s *ApplicationService) Export(ctx context.Context, query dto.ApplicationQuery, w io.Writer) (int, error) {
	filter, err := s.buildFilter(query)
	if err != nil {
		return 0, err
	}
	filter.Limit = s.cfg.ExportBatchSize
	filter.Offset = 0

	dataset := export.Dataset{Columns: []export.Column{
		{Key: "id", Title: "ID"},
		{Key: "category", Title: "Category"},
		{Key: "status", Title: "Status"},
		{Key: "externalId", Title: "Number"},
		{Key: "applicantName", Title: "Applicant"},
		{Key: "email", Title: "Email"},
		{Key: "phone", Title: "Phone"},
		{Key: "gradeApplying", Title: "Grade"},
		{Key: "createdAt", Title: "Submitted"},
		{Key: "reviewedAt", Title: "Reviewed"},
	}}
	for {
		apps, total, err := s.repo.List(ctx, filter)
		if err != nil {
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load applications for export")
		}
		for _, app := range apps {
			row := map[string]string{
				"id":            app.ID,
				"category":      string(app.Category),
				"status":        string(app.Status),
				"externalId":    app.ExternalIDValue(),
				"applicantName": app.ApplicantName,
				"email":         app.Email,
				"phone":         app.Phone,
				"gradeApplying": app.GradeApplying,
				"createdAt":     app.CreatedAt.UTC().Format(time.RFC3339),
			}
			if app.ReviewedAt != nil {
				row["reviewedAt"] = app.ReviewedAt.UTC().Format(time.RFC3339)
			}
			dataset.Rows = append(dataset.Rows, row)
		}
		filter.Offset += len(apps)
		if len(apps) < filter.Limit || filter.Offset >= total {
			break
		}
	}
	if err := export.NewCSVExporter().Write(w, dataset); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write export")
	}
	return len(dataset.Rows), nil
}

func (s *ApplicationService) load(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFoundOrInternal(err, "application not found", "failed to load application")
	}
	return app, nil
}

func notFoundOrInternal(err error, notFound, internal string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, internal)
}

func (s *ApplicationService) conflictError(ctx context.Context, id string) error {
	latest, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	message := fmt.Sprintf("application was already %s", latest.Status)
	if latest.Status == models.StatusApproved {
		message = fmt.Sprintf("application already approved with identifier %s", latest.ExternalIDValue())
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrConflict, message), transitionDetails(latest))
}

func (s *ApplicationService) invalidateVerification(ctx context.Context, app *models.Application) {
	if s.cache == nil || app == nil || app.ExternalID == nil {
		return
	}
	s.cache.Forget(ctx, *app.ExternalID)
}

func (s *ApplicationService) buildFilter(query dto.ApplicationQuery) (models.ApplicationFilter, error) {
	if query.Category != "" && !query.Category.Valid() {
		return models.ApplicationFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown category %q", query.Category))
	}
	for _, status := range query.Status {
		switch status {
		case models.StatusPending, models.StatusApproved, models.StatusRejected:
		default:
			return models.ApplicationFilter{}, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown status %q", status))
		}
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	filter := models.ApplicationFilter{
		Category:      query.Category,
		Status:        query.Status,
		Search:        strings.TrimSpace(query.Search),
		GradeApplying: strings.TrimSpace(query.GradeApplying),
		SortBy:        query.SortBy,
		SortOrder:     query.SortOrder,
		Limit:         size,
		Offset:        (page - 1) * size,
	}
	if query.CreatedFrom != "" {
		from, err := time.Parse("2006-01-02", query.CreatedFrom)
		if err != nil {
			return models.ApplicationFilter{}, appErrors.Clone(appErrors.ErrValidation, "createdFrom must be YYYY-MM-DD")
		}
		filter.CreatedFrom = &from
	}
	if query.CreatedTo != "" {
		to, err := time.Parse("2006-01-02", query.CreatedTo)
		if err != nil {
			return models.ApplicationFilter{}, appErrors.Clone(appErrors.ErrValidation, "createdTo must be YYYY-MM-DD")
		}
		// inclusive of the whole day
		to = to.AddDate(0, 0, 1)
		filter.CreatedTo = &to
	}
	return filter, nil
}

func terminalError(app *models.Application) error {
	message := fmt.Sprintf("application is already %s", app.Status)
	if app.Status == models.StatusApproved {
		message = fmt.Sprintf("application already approved with identifier %s", app.ExternalIDValue())
	}
	return appErrors.WithDetails(appErrors.Clone(appErrors.ErrInvalidTransition, message), transitionDetails(app))
}

func transitionDetails(app *models.Application) map[string]interface{} {
	details := map[string]interface{}{"status": app.Status}
	if app.ExternalID != nil {
		details["externalId"] = *app.ExternalID
	}
	return details
}

// normalizeFields accepts an absent value or a JSON object.
func trimmed(value string) *string {
	v := strings.TrimSpace(value)
	return &v
}

func normalizeFields(raw json.RawMessage) (types.JSONText, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return types.JSONText(`{}`), nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fields must be a JSON object")
	}
	return types.JSONText(trimmed), nil
}
