package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
)

// AdmitCardRole is the attachment role the rendered card is stored under.
const AdmitCardRole = "admit-card"

type admitCardRenderer interface {
	RenderAdmitCard(card export.AdmitCard) ([]byte, error)
}

type admitCardAttacher interface {
	Attach(ctx context.Context, applicationID, role string, upload dto.Upload, actor *models.Actor) (*models.Attachment, []string, error)
}

type admitCardNotifier interface {
	NotifyAdmitCard(app *models.Application, pdf []byte, details string) error
}

// AdmitCardService renders the aptitude test admit card for an approved
// registration, stores it as an attachment and optionally mails it.
type AdmitCardService struct {
	apps       applicationReader
	renderer   admitCardRenderer
	attach     admitCardAttacher
	notifier   admitCardNotifier
	validator  *validator.Validate
	logger     *zap.Logger
	schoolName string
	now        func() time.Time
}

// NewAdmitCardService constructs the service. notifier may be nil.
func NewAdmitCardService(apps applicationReader, renderer admitCardRenderer, attach admitCardAttacher, notifier admitCardNotifier, validate *validator.Validate, logger *zap.Logger, schoolName string) *AdmitCardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if renderer == nil {
		renderer = export.NewPDFExporter()
	}
	return &AdmitCardService{
		apps:       apps,
		renderer:   renderer,
		attach:     attach,
		notifier:   notifier,
		validator:  validate,
		logger:     logger,
		schoolName: schoolName,
		now:        time.Now,
	}
}

// Issue renders and stores the card. Reissuing replaces the previous card.
func (s *AdmitCardService) Issue(ctx context.Context, applicationID string, req dto.AdmitCardRequest, actor *models.Actor) (*models.Attachment, []string, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid admit card payload")
	}
	app, err := s.apps.FindByID(ctx, applicationID)
	if err != nil {
		return nil, nil, notFoundOrInternal(err, "application not found", "failed to load application")
	}
	if app.Category != models.CategoryRegistration {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "admit cards are issued for test registrations only")
	}
	if app.Status != models.StatusApproved {
		return nil, nil, appErrors.WithDetails(
			appErrors.Clone(appErrors.ErrInvalidTransition, "admit card requires an approved registration"),
			map[string]interface{}{"status": app.Status},
		)
	}

	parentName, phone := contactFromFields(app)
	pdf, err := s.renderer.RenderAdmitCard(export.AdmitCard{
		SchoolName:    s.schoolName,
		ExternalID:    app.ExternalIDValue(),
		ApplicantName: app.ApplicantName,
		GradeApplying: app.GradeApplying,
		ParentName:    parentName,
		Phone:         phone,
		ExamDate:      strings.TrimSpace(req.ExamDate),
		ExamVenue:     strings.TrimSpace(req.ExamVenue),
		Instructions:  req.Instructions,
		GeneratedAt:   s.now().UTC(),
	})
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render admit card")
	}

	att, warnings, err := s.attach.Attach(ctx, app.ID, AdmitCardRole, dto.Upload{
		Filename:    fmt.Sprintf("admit-card-%s.pdf", app.ExternalIDValue()),
		ContentType: "application/pdf",
		Size:        int64(len(pdf)),
		Reader:      bytes.NewReader(pdf),
	}, actor)
	if err != nil {
		return nil, warnings, err
	}

	if req.Notify && s.notifier != nil {
		details := fmt.Sprintf("Test date: %s. Venue: %s.", req.ExamDate, req.ExamVenue)
		if err := s.notifier.NotifyAdmitCard(app, pdf, details); err != nil {
			s.logger.Warn("admit card email not queued", zap.String("application_id", app.ID), zap.Error(err))
			warnings = append(warnings, "admit card email could not be queued")
		}
	}
	return att, warnings, nil
}

// contactFromFields reads parent contact details from the free-form fields.
func contactFromFields(app *models.Application) (string, string) {
	phone := app.Phone
	if len(app.Fields) == 0 {
		return "", phone
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(app.Fields, &fields); err != nil {
		return "", phone
	}
	parent := firstString(fields, "parentName", "fatherName", "motherName", "guardianName")
	if p := firstString(fields, "parentPhone", "phone"); p != "" && phone == "" {
		phone = p
	}
	return parent, phone
}

func firstString(fields map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := fields[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
