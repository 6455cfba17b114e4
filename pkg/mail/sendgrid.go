package mail

import (
	"context"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

// SendgridDispatcher delivers messages through the SendGrid v3 API.
type SendgridDispatcher struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

var _ Dispatcher = (*SendgridDispatcher)(nil)

// NewSendgridDispatcher builds a dispatcher sending as from.
func NewSendgridDispatcher(apiKey string, from mail.Address, subjectPrefix string) (*SendgridDispatcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("sendgrid api key required")
	}
	if from.Address == "" {
		return nil, fmt.Errorf("sender address required")
	}
	return &SendgridDispatcher{
		key:        apiKey,
		host:       sendgridHost,
		from:       sgmail.NewEmail(from.Name, from.Address),
		subjPrefix: subjectPrefix,
	}, nil
}

// Send renders msg and posts it. Non-2xx responses are errors so that the
// outbox can retry them.
func (d *SendgridDispatcher) Send(ctx context.Context, msg Message) error {
	if err := msg.Render(); err != nil {
		return fmt.Errorf("render email: %w", err)
	}
	if !msg.HasRecipients() {
		return fmt.Errorf("email has no recipients")
	}
	if !msg.HasContent() && len(msg.Attachments) == 0 {
		return fmt.Errorf("email has no content")
	}

	req := sendgrid.GetRequest(d.key, sendgridEndpoint, d.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(d.prepare(msg))

	res, err := sendgrid.MakeRequestWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("send email: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

func (d *SendgridDispatcher) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = d.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Address))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgmail.NewEmail(cc.Name, cc.Address))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(d.from)
	m.AddPersonalizations(p)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	for _, a := range msg.Attachments {
		m.AddAttachment(&sgmail.Attachment{
			Content:     a.base64(),
			Type:        a.ContentType,
			Filename:    a.Filename,
			Disposition: "attachment",
		})
	}
	return m
}
