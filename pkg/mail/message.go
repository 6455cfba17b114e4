package mail

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"fmt"
	htmltmpl "html/template"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"
)

//go:embed templates/*
var templateFS embed.FS

// Template names shipped with the service.
const (
	TemplateSubmissionReceived = "submission_received"
	TemplateApproved           = "application_approved"
	TemplateRejected           = "application_rejected"
	TemplateAdmitCard          = "admit_card"
)

// Attachment is a file carried by a message. Content holds raw bytes.
type Attachment struct {
	Content     []byte
	ContentType string
	Filename    string
}

// Message is a single outbound email. Either Text/HTML are set directly or
// Template names a pair of embedded templates rendered with Data.
type Message struct {
	To          []mail.Address
	Cc          []mail.Address
	Subject     string
	Text        string
	HTML        string
	Attachments []Attachment

	Template string
	Data     interface{}
}

// Dispatcher delivers messages. Implementations must respect ctx.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

func (m *Message) HasRecipients() bool { return len(m.To) > 0 }
func (m *Message) HasContent() bool    { return m.Text != "" || m.HTML != "" }

func (a Attachment) base64() string {
	return base64.StdEncoding.EncodeToString(a.Content)
}

type templatePair struct {
	text *texttmpl.Template
	html *htmltmpl.Template
}

var (
	templates     map[string]templatePair
	templatesErr  error
	templatesOnce sync.Once
)

func loadTemplates() {
	templates = make(map[string]templatePair)
	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		templatesErr = err
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		ext := path.Ext(name)
		base := strings.TrimSuffix(name, ext)
		pair := templates[base]
		switch ext {
		case ".txt":
			tmpl, err := texttmpl.New(name).Option("missingkey=error").ParseFS(templateFS, "templates/"+name)
			if err != nil {
				templatesErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			pair.text = tmpl
		case ".gohtml":
			tmpl, err := htmltmpl.New(name).Option("missingkey=error").ParseFS(templateFS, "templates/"+name)
			if err != nil {
				templatesErr = fmt.Errorf("parse %s: %w", name, err)
				return
			}
			pair.html = tmpl
		default:
			continue
		}
		templates[base] = pair
	}
}

// Render fills Text and HTML from the named template. Messages without a
// template are left untouched.
func (m *Message) Render() error {
	if m.Template == "" {
		return nil
	}
	templatesOnce.Do(loadTemplates)
	if templatesErr != nil {
		return templatesErr
	}
	pair, ok := templates[m.Template]
	if !ok {
		return fmt.Errorf("unknown email template %q", m.Template)
	}

	var buf bytes.Buffer
	if pair.text != nil {
		if err := pair.text.Execute(&buf, m.Data); err != nil {
			return fmt.Errorf("render %s text: %w", m.Template, err)
		}
		m.Text = buf.String()
		buf.Reset()
	}
	if pair.html != nil {
		if err := pair.html.Execute(&buf, m.Data); err != nil {
			return fmt.Errorf("render %s html: %w", m.Template, err)
		}
		m.HTML = buf.String()
	}
	return nil
}

// Notice is the data shared by the lifecycle templates.
type Notice struct {
	SchoolName    string
	ApplicantName string
	CategoryLabel string
	ApplicationID string
	ExternalID    string
	Notes         string
	SubmittedAt   string
}
