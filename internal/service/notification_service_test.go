package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/mail"
)

type failingDispatcher struct {
	calls atomic.Int32
}

func (d *failingDispatcher) Send(ctx context.Context, msg mail.Message) error {
	d.calls.Add(1)
	return errors.New("smtp 451 try again later")
}

func startNotifications(t *testing.T, dispatcher mail.Dispatcher, metrics *MetricsService, retries int) *NotificationService {
	t.Helper()
	svc := NewNotificationService(dispatcher, metrics, zap.NewNop(), NotificationConfig{
		SchoolName: "Sunrise Public School",
		Workers:    1,
		Retries:    retries,
		RetryDelay: 5 * time.Millisecond,
	})
	svc.Start(context.Background())
	t.Cleanup(svc.Stop)
	return svc
}

func approvedApplication() *models.Application {
	app := pendingApplication("app-1", models.CategoryAdmission)
	id := "ADM000017"
	app.Status = models.StatusApproved
	app.ExternalID = &id
	return app
}

func TestNotificationServiceDeliversApproval(t *testing.T) {
	dispatcher := mail.NewLogDispatcher(zap.NewNop())
	metrics := NewMetricsService()
	svc := startNotifications(t, dispatcher, metrics, 0)

	require.NoError(t, svc.NotifyTransition(approvedApplication()))

	require.Eventually(t, func() bool { return len(dispatcher.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	msg := dispatcher.Sent()[0]
	assert.Equal(t, mail.TemplateApproved, msg.Template)
	assert.Equal(t, "asha@example.com", msg.To[0].Address)
	assert.Contains(t, msg.Subject, "ADM000017")
	assert.Contains(t, msg.Text, "ADM000017")
	assert.Contains(t, msg.Text, "Sunrise Public School")
	assert.Zero(t, metrics.Snapshot().NotificationsFailed)
}

func TestNotificationServiceSkipsPendingAndMissingEmail(t *testing.T) {
	dispatcher := mail.NewLogDispatcher(zap.NewNop())
	svc := startNotifications(t, dispatcher, nil, 0)

	require.NoError(t, svc.NotifyTransition(pendingApplication("app-1", models.CategoryEnquiry)))

	app := approvedApplication()
	app.Email = " "
	require.NoError(t, svc.NotifyTransition(app))
	require.NoError(t, svc.NotifySubmitted(app))

	assert.Zero(t, svc.Pending())
	assert.Empty(t, dispatcher.Sent())
}

func TestNotificationServiceRetriesThenRecordsFailure(t *testing.T) {
	dispatcher := &failingDispatcher{}
	metrics := NewMetricsService()
	svc := startNotifications(t, dispatcher, metrics, 2)

	require.NoError(t, svc.NotifySubmitted(pendingApplication("app-1", models.CategoryEnquiry)))

	require.Eventually(t, func() bool { return metrics.Snapshot().NotificationsFailed == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 3, dispatcher.calls.Load())
	assert.Zero(t, svc.Pending())
}

func TestNotificationServiceEnqueueWhenStopped(t *testing.T) {
	svc := NewNotificationService(mail.NewLogDispatcher(nil), nil, nil, NotificationConfig{})

	err := svc.NotifySubmitted(pendingApplication("app-1", models.CategoryEnquiry))
	require.Error(t, err)
	assert.True(t, appErrors.HasCode(err, appErrors.ErrNotification.Code))
}

func TestNotificationServiceAdmitCardCarriesPDF(t *testing.T) {
	dispatcher := mail.NewLogDispatcher(zap.NewNop())
	svc := startNotifications(t, dispatcher, nil, 0)

	require.NoError(t, svc.NotifyAdmitCard(approvedApplication(), []byte("%PDF-1.4"), "Test date: 12 May."))

	require.Eventually(t, func() bool { return len(dispatcher.Sent()) == 1 }, time.Second, 5*time.Millisecond)
	msg := dispatcher.Sent()[0]
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "admit-card-ADM000017.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, "application/pdf", msg.Attachments[0].ContentType)
	assert.Equal(t, mail.TemplateAdmitCard, msg.Template)
}
