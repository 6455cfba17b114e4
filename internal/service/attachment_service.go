package service

import (
	"bufio"
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	"github.com/noah-isme/sma-admissions-api/internal/repository"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/storage"
	"github.com/noah-isme/sma-admissions-api/pkg/tracing"
)

// maxReleaseAttempts bounds how often Release follows a reference that a
// concurrent replace keeps moving.
const maxReleaseAttempts = 3

type attachmentStore interface {
	Create(ctx context.Context, att *models.Attachment) error
	FindByID(ctx context.Context, id string) (*models.Attachment, error)
	FindByRole(ctx context.Context, applicationID, role string) (*models.Attachment, error)
	ListByApplication(ctx context.Context, applicationID string) ([]models.Attachment, error)
	Swap(ctx context.Context, att *models.Attachment, oldBlobKey string) error
	Delete(ctx context.Context, id, blobKey string) (bool, error)
}

type orphanRecorder interface {
	Create(ctx context.Context, orphan *models.OrphanedBlob) error
}

type applicationReader interface {
	FindByID(ctx context.Context, id string) (*models.Application, error)
}

type downloadSigner interface {
	Sign(attachmentID, key string) (string, storage.DownloadGrant, error)
	Verify(token string) (storage.DownloadGrant, error)
}

// AttachmentServiceConfig holds validation and IO limits.
type AttachmentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	Roles        []string
	Timeout      time.Duration
	APIPrefix    string
}

// AttachmentDownload is an open blob ready to stream.
type AttachmentDownload struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	SizeBytes   int64
}

// AttachmentService binds uploaded files to applications and keeps every
// reference pointing at exactly one live blob. Uploads always happen before
// the reference is written and old blobs are deleted only after the new
// reference is durable.
type AttachmentService struct {
	apps    applicationReader
	repo    attachmentStore
	orphans orphanRecorder
	store   storage.ObjectStore
	signer  downloadSigner
	audit   auditWriter
	metrics *MetricsService
	tracer  trace.Tracer
	logger  *zap.Logger
	cfg     AttachmentServiceConfig
	mimeSet map[string]struct{}
	roleSet map[string]struct{}
}

// AttachmentServiceOption configures optional collaborators.
type AttachmentServiceOption func(*AttachmentService)

// WithAttachmentSigner enables signed download URLs.
func WithAttachmentSigner(signer downloadSigner) AttachmentServiceOption {
	return func(s *AttachmentService) { s.signer = signer }
}

// WithAttachmentAudit records audit entries for bind, replace and release.
func WithAttachmentAudit(audit auditWriter) AttachmentServiceOption {
	return func(s *AttachmentService) { s.audit = audit }
}

// WithAttachmentMetrics publishes operation and orphan counters.
func WithAttachmentMetrics(metrics *MetricsService) AttachmentServiceOption {
	return func(s *AttachmentService) { s.metrics = metrics }
}

// WithAttachmentTracer wraps operations in spans.
func WithAttachmentTracer(tracer trace.Tracer) AttachmentServiceOption {
	return func(s *AttachmentService) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewAttachmentService constructs the service with defaults.
func NewAttachmentService(apps applicationReader, repo attachmentStore, orphans orphanRecorder, store storage.ObjectStore, logger *zap.Logger, cfg AttachmentServiceConfig, opts ...AttachmentServiceOption) *AttachmentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"image/jpeg", "image/png", "image/webp", "application/pdf"}
	}
	if len(cfg.Roles) == 0 {
		cfg.Roles = []string{"photo", "birth-certificate", "transfer-certificate", "report-card", "aadhaar-card", "admit-card"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	s := &AttachmentService{
		apps:    apps,
		repo:    repo,
		orphans: orphans,
		store:   store,
		tracer:  noop.NewTracerProvider().Tracer("attachments"),
		logger:  logger,
		cfg:     cfg,
		mimeSet: make(map[string]struct{}, len(cfg.AllowedMIMEs)),
		roleSet: make(map[string]struct{}, len(cfg.Roles)),
	}
	for _, mt := range cfg.AllowedMIMEs {
		s.mimeSet[strings.ToLower(strings.TrimSpace(mt))] = struct{}{}
	}
	for _, role := range cfg.Roles {
		s.roleSet[strings.ToLower(strings.TrimSpace(role))] = struct{}{}
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// List returns every reference of an application.
func (s *AttachmentService) List(ctx context.Context, applicationID string) ([]models.Attachment, error) {
	if _, err := s.loadApplication(ctx, applicationID); err != nil {
		return nil, err
	}
	atts, err := s.repo.ListByApplication(ctx, applicationID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
	}
	if atts == nil {
		atts = []models.Attachment{}
	}
	return atts, nil
}

// Attach binds upload to role, replacing the current file when one exists.
func (s *AttachmentService) Attach(ctx context.Context, applicationID, role string, upload dto.Upload, actor *models.Actor) (*models.Attachment, []string, error) {
	role = normalizeRole(role)
	_, err := s.repo.FindByRole(ctx, applicationID, role)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		att, err := s.Bind(ctx, applicationID, role, upload, actor)
		return att, nil, err
	case err != nil:
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	default:
		return s.Replace(ctx, applicationID, role, upload, actor)
	}
}

// Bind stores a new blob and then the reference. When the reference cannot
// be written the fresh blob is deleted again so nothing points at it.
func (s *AttachmentService) Bind(ctx context.Context, applicationID, role string, upload dto.Upload, actor *models.Actor) (att *models.Attachment, err error) {
	ctx, span := s.tracer.Start(ctx, "attachments.bind", trace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("attachment.role", role),
	))
	defer func() {
		s.metrics.RecordAttachment("bind", err)
		tracing.RecordError(span, err)
		span.End()
	}()

	role = normalizeRole(role)
	if err := s.validateRole(role); err != nil {
		return nil, err
	}
	body, contentType, err := s.prepareUpload(upload)
	if err != nil {
		return nil, err
	}
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	key := s.blobKey(app, role, upload.Filename, contentType)
	url, err := s.put(ctx, app, role, key, body, upload.Size, contentType)
	if err != nil {
		return nil, err
	}

	att = &models.Attachment{
		ApplicationID: app.ID,
		Role:          role,
		BlobKey:       key,
		URL:           url,
		ContentType:   contentType,
		SizeBytes:     upload.Size,
		UploadedBy:    optionalString(actorID(actor)),
	}
	if err := s.repo.Create(ctx, att); err != nil {
		s.discard(ctx, app, role, key, models.OrphanReasonCompensate)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("role %s is already bound", role))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save attachment")
	}

	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     models.AuditActionAttachmentBind,
		resource:   models.AuditResourceAttachment,
		resourceID: att.ID,
		newValues:  map[string]interface{}{"applicationId": app.ID, "role": role, "blobKey": key},
	})
	return att, nil
}

// Replace uploads the new blob, repoints the reference and only then deletes
// the previous blob. A failure before the swap leaves the old file intact; a
// failure deleting the old blob becomes a warning and an orphan record.
func (s *AttachmentService) Replace(ctx context.Context, applicationID, role string, upload dto.Upload, actor *models.Actor) (att *models.Attachment, warnings []string, err error) {
	ctx, span := s.tracer.Start(ctx, "attachments.replace", trace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("attachment.role", role),
	))
	defer func() {
		s.metrics.RecordAttachment("replace", err)
		tracing.RecordError(span, err)
		span.End()
	}()

	role = normalizeRole(role)
	if err := s.validateRole(role); err != nil {
		return nil, nil, err
	}
	body, contentType, err := s.prepareUpload(upload)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, nil, err
	}
	current, err := s.repo.FindByRole(ctx, app.ID, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no attachment bound to role %s", role))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}

	key := s.blobKey(app, role, upload.Filename, contentType)
	url, err := s.put(ctx, app, role, key, body, upload.Size, contentType)
	if err != nil {
		return nil, nil, err
	}

	next := *current
	next.BlobKey = key
	next.URL = url
	next.ContentType = contentType
	next.SizeBytes = upload.Size
	next.UploadedBy = optionalString(actorID(actor))
	if err := s.repo.Swap(ctx, &next, current.BlobKey); err != nil {
		s.discard(ctx, app, role, key, models.OrphanReasonCompensate)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("attachment %s changed concurrently", role))
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attachment")
	}

	if warning := s.discard(ctx, app, role, current.BlobKey, models.OrphanReasonReplace); warning != "" {
		warnings = append(warnings, warning)
	}

	emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
		action:     models.AuditActionAttachmentReplace,
		resource:   models.AuditResourceAttachment,
		resourceID: next.ID,
		oldValues:  map[string]interface{}{"blobKey": current.BlobKey},
		newValues:  map[string]interface{}{"blobKey": key},
	})
	return &next, warnings, nil
}

// Release deletes the blobs of one role, or every role when role is
// models.ReleaseAll, then removes the references. Remote delete failures do
// not stop the references from being removed; they come back as warnings.
func (s *AttachmentService) Release(ctx context.Context, applicationID, role string, actor *models.Actor) (warnings []string, err error) {
	ctx, span := s.tracer.Start(ctx, "attachments.release", trace.WithAttributes(
		attribute.String("application.id", applicationID),
		attribute.String("attachment.role", role),
	))
	defer func() {
		s.metrics.RecordAttachment("release", err)
		tracing.RecordError(span, err)
		span.End()
	}()

	app, err := s.loadApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	var targets []models.Attachment
	if role == models.ReleaseAll {
		targets, err = s.repo.ListByApplication(ctx, app.ID)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attachments")
		}
	} else {
		role = normalizeRole(role)
		att, err := s.repo.FindByRole(ctx, app.ID, role)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no attachment bound to role %s", role))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
		}
		targets = []models.Attachment{*att}
	}

	released := make([]string, 0, len(targets))
	for _, att := range targets {
		roleWarnings, err := s.releaseOne(ctx, app, att)
		warnings = append(warnings, roleWarnings...)
		if err != nil {
			return warnings, err
		}
		released = append(released, att.Role)
	}

	if len(released) > 0 {
		emitAudit(ctx, s.audit, s.logger, actor, auditEntry{
			action:     models.AuditActionAttachmentRelease,
			resource:   models.AuditResourceApplication,
			resourceID: app.ID,
			oldValues:  map[string]interface{}{"roles": released},
			newValues:  map[string]interface{}{"warnings": len(warnings)},
		})
	}
	return warnings, nil
}

// releaseOne deletes the blob behind att and then its reference. When a
// concurrent replace has moved the reference to a new blob in between, the
// new blob is released too instead of being left without a reference.
func (s *AttachmentService) releaseOne(ctx context.Context, app *models.Application, att models.Attachment) ([]string, error) {
	var warnings []string
	key := att.BlobKey
	for attempt := 0; attempt < maxReleaseAttempts; attempt++ {
		if warning := s.discard(ctx, app, att.Role, key, models.OrphanReasonRelease); warning != "" {
			warnings = append(warnings, warning)
		}
		removed, err := s.repo.Delete(ctx, att.ID, key)
		if err != nil {
			return warnings, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to remove attachment %s", att.Role))
		}
		if removed {
			return warnings, nil
		}
		current, err := s.repo.FindByID(ctx, att.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return warnings, nil
		}
		if err != nil {
			return warnings, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, fmt.Sprintf("failed to reload attachment %s", att.Role))
		}
		s.logger.Info("attachment replaced during release, releasing new blob",
			zap.String("application_id", app.ID),
			zap.String("role", att.Role),
			zap.String("key", current.BlobKey),
		)
		key = current.BlobKey
	}
	return warnings, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("attachment %s kept changing during release, retry", att.Role))
}

// SignedURL issues a short-lived download link for the blob bound to role.
func (s *AttachmentService) SignedURL(ctx context.Context, applicationID, role string) (*dto.AttachmentDownloadResponse, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	role = normalizeRole(role)
	att, err := s.repo.FindByRole(ctx, applicationID, role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no attachment bound to role %s", role))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	token, grant, err := s.signer.Sign(att.ID, att.BlobKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &dto.AttachmentDownloadResponse{
		AttachmentID: att.ID,
		Role:         att.Role,
		URL:          fmt.Sprintf("%s/files/download?token=%s", base, token),
		ExpiresAt:    grant.ExpiresAt,
	}, nil
}

// Download resolves a signed token to an open blob. Tokens issued before a
// replace no longer match the reference and are refused.
func (s *AttachmentService) Download(ctx context.Context, token string) (*AttachmentDownload, error) {
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "download signer unavailable")
	}
	grant, err := s.signer.Verify(token)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired token")
	}
	att, err := s.repo.FindByID(ctx, grant.AttachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attachment")
	}
	if att.BlobKey != grant.Key {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "token mismatch")
	}
	body, err := s.store.Open(ctx, att.BlobKey)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "file not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrAttachment.Code, appErrors.ErrAttachment.Status, "failed to open file")
	}
	return &AttachmentDownload{
		Body:        body,
		Filename:    filepath.Base(att.BlobKey),
		ContentType: att.ContentType,
		SizeBytes:   att.SizeBytes,
	}, nil
}

func (s *AttachmentService) loadApplication(ctx context.Context, id string) (*models.Application, error) {
	app, err := s.apps.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "application not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load application")
	}
	return app, nil
}

func (s *AttachmentService) put(ctx context.Context, app *models.Application, role, key string, body io.Reader, size int64, contentType string) (string, error) {
	putCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	url, err := s.store.Put(putCtx, key, body, size, contentType)
	if err != nil {
		s.logger.Error("attachment upload failed", zap.String("key", key), zap.Error(err))
		// a timed out upload may have left a partial object behind
		s.discard(ctx, app, role, key, models.OrphanReasonCompensate)
		return "", appErrors.Wrap(err, appErrors.ErrAttachment.Code, appErrors.ErrAttachment.Status, "failed to upload file")
	}
	return url, nil
}

// discard deletes key from the object store. On failure the blob is recorded
// as an orphan for the sweeper and a warning is returned.
func (s *AttachmentService) discard(ctx context.Context, app *models.Application, role, key, reason string) string {
	ctx = context.WithoutCancel(ctx)
	delCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	err := s.store.Delete(delCtx, key)
	if err == nil {
		return ""
	}

	s.logger.Warn("blob delete failed, recording orphan",
		zap.String("key", key),
		zap.String("application_id", app.ID),
		zap.String("role", role),
		zap.String("reason", reason),
		zap.Error(err),
	)
	s.metrics.RecordOrphan(reason)
	if s.orphans != nil {
		cause := err.Error()
		appID := app.ID
		orphan := &models.OrphanedBlob{
			BlobKey:       key,
			ApplicationID: &appID,
			Role:          role,
			Reason:        reason,
			LastError:     &cause,
		}
		if recErr := s.orphans.Create(ctx, orphan); recErr != nil {
			s.logger.Error("failed to record orphaned blob", zap.String("key", key), zap.Error(recErr))
		}
	}
	return fmt.Sprintf("%s: stored file could not be deleted and was queued for cleanup", role)
}

func (s *AttachmentService) validateRole(role string) error {
	if role == "" || role == models.ReleaseAll {
		return appErrors.Clone(appErrors.ErrValidation, "attachment role is required")
	}
	if _, ok := s.roleSet[role]; !ok {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported attachment role %s", role))
	}
	return nil
}

// prepareUpload checks size and type, sniffing the content when the client
// did not declare a usable type. The returned reader replays sniffed bytes.
func (s *AttachmentService) prepareUpload(upload dto.Upload) (io.Reader, string, error) {
	if upload.Reader == nil || upload.Size <= 0 {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "file is required")
	}
	if upload.Size > s.cfg.MaxFileSize {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
	}
	br := bufio.NewReaderSize(upload.Reader, 512)
	contentType := strings.ToLower(strings.TrimSpace(upload.ContentType))
	if idx := strings.Index(contentType, ";"); idx >= 0 {
		contentType = strings.TrimSpace(contentType[:idx])
	}
	if contentType == "" || contentType == "application/octet-stream" {
		head, err := br.Peek(512)
		if err != nil && err != io.EOF && !errors.Is(err, bufio.ErrBufferFull) {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to inspect file")
		}
		if len(head) == 0 {
			return nil, "", appErrors.Clone(appErrors.ErrValidation, "empty file")
		}
		contentType = http.DetectContentType(head)
		if idx := strings.Index(contentType, ";"); idx >= 0 {
			contentType = strings.TrimSpace(contentType[:idx])
		}
	}
	if _, ok := s.mimeSet[contentType]; !ok {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s not allowed", contentType))
	}
	return br, contentType, nil
}

// blobKey yields <category>/<applicationID>/<role>/<unixnano>-<rand><ext>.
func (s *AttachmentService) blobKey(app *models.Application, role, filename, contentType string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || len(ext) > 6 || sanitize(ext[1:]) != ext[1:] {
		ext = mimeExtension(contentType)
	}
	return fmt.Sprintf("%s/%s/%s/%d-%s%s", app.Category, app.ID, role, time.Now().UnixNano(), randomSuffix(), ext)
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func sanitize(raw string) string {
	raw = strings.ToLower(raw)
	var b strings.Builder
	for _, r := range raw {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func mimeExtension(mime string) string {
	switch strings.ToLower(mime) {
	case "application/pdf":
		return ".pdf"
	case "image/jpeg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".bin"
	}
}

func randomSuffix() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(buf)
}

func optionalString(value string) *string {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	return &v
}
