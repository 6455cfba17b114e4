package service

import (
	"bytes"
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/dto"
	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/export"
)

type capturingRenderer struct {
	cards []export.AdmitCard
}

func (r *capturingRenderer) RenderAdmitCard(card export.AdmitCard) ([]byte, error) {
	r.cards = append(r.cards, card)
	return export.NewPDFExporter().RenderAdmitCard(card)
}

func approvedRegistration(id string) *models.Application {
	app := pendingApplication(id, models.CategoryRegistration)
	code := "ATAT000003"
	app.Status = models.StatusApproved
	app.ExternalID = &code
	return app
}

func newAdmitCardFixture(t *testing.T, apps ...*models.Application) (*AdmitCardService, *capturingRenderer, *objectStoreStub, *notifierStub) {
	t.Helper()
	store := newObjectStoreStub()
	appStore := newApplicationStoreStub(apps...)
	attachments := NewAttachmentService(appStore, newAttachmentRepoStub(), &orphanRecorderStub{}, store, zap.NewNop(), AttachmentServiceConfig{})
	renderer := &capturingRenderer{}
	notifier := &notifierStub{}
	svc := NewAdmitCardService(appStore, renderer, attachments, notifier, validator.New(), zap.NewNop(), "Sunrise Public School")
	return svc, renderer, store, notifier
}

func TestAdmitCardServiceIssue(t *testing.T) {
	svc, renderer, store, notifier := newAdmitCardFixture(t, approvedRegistration("app-1"))

	att, warnings, err := svc.Issue(context.Background(), "app-1", dto.AdmitCardRequest{
		ExamDate:     "12 May 2025, 9:00 AM",
		ExamVenue:    "Main Hall",
		Instructions: []string{"Bring a pencil"},
		Notify:       true,
	}, staffActor)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, AdmitCardRole, att.Role)
	assert.Equal(t, "application/pdf", att.ContentType)

	require.Len(t, renderer.cards, 1)
	card := renderer.cards[0]
	assert.Equal(t, "ATAT000003", card.ExternalID)
	assert.Equal(t, "Ravi Verma", card.ParentName)
	assert.Equal(t, "Sunrise Public School", card.SchoolName)

	body, err := store.Open(context.Background(), att.BlobKey)
	require.NoError(t, err)
	defer body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Equal(t, []string{"app-1"}, notifier.admitCards)
}

func TestAdmitCardServiceReissueReplaces(t *testing.T) {
	svc, _, store, notifier := newAdmitCardFixture(t, approvedRegistration("app-1"))
	req := dto.AdmitCardRequest{ExamDate: "12 May", ExamVenue: "Main Hall"}

	first, _, err := svc.Issue(context.Background(), "app-1", req, nil)
	require.NoError(t, err)
	second, _, err := svc.Issue(context.Background(), "app-1", req, nil)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, []string{second.BlobKey}, store.keys())
	assert.Empty(t, notifier.admitCards)
}

func TestAdmitCardServiceRequiresApprovedRegistration(t *testing.T) {
	admission := approvedRegistration("app-2")
	admission.Category = models.CategoryAdmission
	svc, _, _, _ := newAdmitCardFixture(t,
		pendingApplication("app-1", models.CategoryRegistration),
		admission,
	)
	req := dto.AdmitCardRequest{ExamDate: "12 May", ExamVenue: "Main Hall"}
	ctx := context.Background()

	_, _, err := svc.Issue(ctx, "app-1", req, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrInvalidTransition.Code))

	_, _, err = svc.Issue(ctx, "app-2", req, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))

	_, _, err = svc.Issue(ctx, "missing", req, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotFound.Code))

	_, _, err = svc.Issue(ctx, "app-1", dto.AdmitCardRequest{}, nil)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrValidation.Code))
}
