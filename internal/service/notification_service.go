package service

import (
	"context"
	"fmt"
	netmail "net/mail"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-admissions-api/internal/models"
	appErrors "github.com/noah-isme/sma-admissions-api/pkg/errors"
	"github.com/noah-isme/sma-admissions-api/pkg/jobs"
	"github.com/noah-isme/sma-admissions-api/pkg/mail"
)

const notificationJobType = "email"

// NotificationConfig tunes the outbox.
type NotificationConfig struct {
	SchoolName string
	Timeout    time.Duration
	Workers    int
	BufferSize int
	Retries    int
	RetryDelay time.Duration
}

// NotificationService is the outbox between the workflow and the mail
// transport. Enqueue never waits on delivery; failures are retried by the
// queue and end up in logs and metrics, never in the caller's result.
type NotificationService struct {
	dispatcher mail.Dispatcher
	queue      *jobs.Queue
	metrics    *MetricsService
	logger     *zap.Logger
	cfg        NotificationConfig
}

// NewNotificationService wires the dispatcher behind a worker queue. Start must
// be called before anything is enqueued.
func NewNotificationService(dispatcher mail.Dispatcher, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.SchoolName == "" {
		cfg.SchoolName = "Admissions Office"
	}
	s := &NotificationService{dispatcher: dispatcher, metrics: metrics, logger: logger, cfg: cfg}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:     cfg.Workers,
		BufferSize:  cfg.BufferSize,
		MaxRetries:  cfg.Retries,
		RetryDelay:  cfg.RetryDelay,
		OnExhausted: s.exhausted,
		Logger:      logger,
	})
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop halts the workers. Undelivered messages are dropped and logged by the queue.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Pending reports messages waiting for delivery or retry.
func (s *NotificationService) Pending() int {
	return s.queue.Pending()
}

// Enqueue hands msg to the outbox.
func (s *NotificationService) Enqueue(msg mail.Message) error {
	if err := s.queue.Enqueue(jobs.Job{Type: notificationJobType, Payload: msg}); err != nil {
		s.metrics.RecordNotification(msg.Template, err)
		return appErrors.Wrap(err, appErrors.ErrNotification.Code, appErrors.ErrNotification.Status, "notification not queued")
	}
	return nil
}

// NotifySubmitted acknowledges a public submission. Records without an email are skipped.
func (s *NotificationService) NotifySubmitted(app *models.Application) error {
	to, ok := recipient(app)
	if !ok {
		return nil
	}
	return s.Enqueue(mail.Message{
		To:       []netmail.Address{to},
		Subject:  fmt.Sprintf("We received your %s", app.Category.Label()),
		Template: mail.TemplateSubmissionReceived,
		Data:     s.notice(app),
	})
}

// NotifyTransition announces an approval or rejection. Pending records are ignored.
func (s *NotificationService) NotifyTransition(app *models.Application) error {
	to, ok := recipient(app)
	if !ok {
		return nil
	}
	msg := mail.Message{To: []netmail.Address{to}, Data: s.notice(app)}
	switch app.Status {
	case models.StatusApproved:
		msg.Template = mail.TemplateApproved
		msg.Subject = fmt.Sprintf("Your %s has been approved (%s)", app.Category.Label(), app.ExternalIDValue())
	case models.StatusRejected:
		msg.Template = mail.TemplateRejected
		msg.Subject = fmt.Sprintf("Update on your %s", app.Category.Label())
	default:
		return nil
	}
	return s.Enqueue(msg)
}

// NotifyAdmitCard mails a rendered admit card to the applicant.
func (s *NotificationService) NotifyAdmitCard(app *models.Application, pdf []byte, details string) error {
	to, ok := recipient(app)
	if !ok {
		return nil
	}
	notice := s.notice(app)
	notice.Notes = details
	return s.Enqueue(mail.Message{
		To:       []netmail.Address{to},
		Subject:  fmt.Sprintf("Admit card %s", app.ExternalIDValue()),
		Template: mail.TemplateAdmitCard,
		Data:     notice,
		Attachments: []mail.Attachment{{
			Content:     pdf,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("admit-card-%s.pdf", app.ExternalIDValue()),
		}},
	})
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	msg, ok := job.Payload.(mail.Message)
	if !ok {
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	if err := s.dispatcher.Send(sendCtx, msg); err != nil {
		return err
	}
	s.metrics.RecordNotification(msg.Template, nil)
	return nil
}

func (s *NotificationService) exhausted(job jobs.Job, err error) {
	template := ""
	if msg, ok := job.Payload.(mail.Message); ok {
		template = msg.Template
	}
	s.metrics.RecordNotification(template, err)
	s.logger.Error("notification dropped",
		zap.String("job_id", job.ID),
		zap.String("template", template),
		zap.Int("attempts", job.Attempt),
		zap.Error(err),
	)
}

func (s *NotificationService) notice(app *models.Application) mail.Notice {
	notice := mail.Notice{
		SchoolName:    s.cfg.SchoolName,
		ApplicantName: app.ApplicantName,
		CategoryLabel: app.Category.Label(),
		ApplicationID: app.ID,
		ExternalID:    app.ExternalIDValue(),
		SubmittedAt:   app.CreatedAt.Format("02 Jan 2006"),
	}
	if app.Notes != nil {
		notice.Notes = *app.Notes
	}
	return notice
}

func recipient(app *models.Application) (netmail.Address, bool) {
	if app == nil || strings.TrimSpace(app.Email) == "" {
		return netmail.Address{}, false
	}
	return netmail.Address{Name: app.ApplicantName, Address: strings.TrimSpace(app.Email)}, true
}
