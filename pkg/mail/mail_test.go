package mail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"testing"

	"github.com/stretchr/testify/require"
)

func approvedMessage() Message {
	return Message{
		To:       []mail.Address{{Name: "Ayu", Address: "ayu@example.test"}},
		Subject:  "Admission approved",
		Template: TemplateApproved,
		Data: Notice{
			SchoolName:    "SMA Example",
			ApplicantName: "Ayu",
			CategoryLabel: "admission",
			ExternalID:    "ADM000001",
		},
	}
}

func TestRenderTemplates(t *testing.T) {
	msg := approvedMessage()
	require.NoError(t, msg.Render())
	require.Contains(t, msg.Text, "ADM000001")
	require.Contains(t, msg.HTML, "<strong>ADM000001</strong>")
	require.NotContains(t, msg.Text, "Notes from the office")

	for _, name := range []string{TemplateSubmissionReceived, TemplateRejected, TemplateAdmitCard} {
		m := Message{Template: name, Data: Notice{ApplicantName: "<b>x</b>", Notes: "n"}}
		require.NoError(t, m.Render(), name)
		require.NotEmpty(t, m.Text)
		require.Contains(t, m.HTML, "&lt;b&gt;x&lt;/b&gt;")
	}
}

func TestRenderUnknownTemplate(t *testing.T) {
	msg := Message{Template: "nope"}
	require.Error(t, msg.Render())
}

func TestLogDispatcherRecordsMessages(t *testing.T) {
	d := NewLogDispatcher(nil)
	require.NoError(t, d.Send(context.Background(), approvedMessage()))
	require.Error(t, d.Send(context.Background(), Message{Subject: "no one"}))

	sent := d.Sent()
	require.Len(t, sent, 1)
	require.Contains(t, sent[0].Text, "ADM000001")
}

func TestSendgridDispatcherPostsV3Payload(t *testing.T) {
	var payload map[string]interface{}
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		require.Equal(t, "/v3/mail/send", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d, err := NewSendgridDispatcher("sg-key", mail.Address{Name: "Office", Address: "office@example.test"}, "[Admissions] ")
	require.NoError(t, err)
	d.host = srv.URL

	msg := approvedMessage()
	msg.Attachments = []Attachment{{Content: []byte("pdf"), ContentType: "application/pdf", Filename: "card.pdf"}}
	require.NoError(t, d.Send(context.Background(), msg))

	require.Equal(t, "Bearer sg-key", auth)
	personalizations := payload["personalizations"].([]interface{})
	first := personalizations[0].(map[string]interface{})
	require.Equal(t, "[Admissions] Admission approved", first["subject"])
	attachments := payload["attachments"].([]interface{})
	require.Equal(t, "cGRm", attachments[0].(map[string]interface{})["content"])
}

func TestSendgridDispatcherFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d, err := NewSendgridDispatcher("sg-key", mail.Address{Address: "office@example.test"}, "")
	require.NoError(t, err)
	d.host = srv.URL

	require.Error(t, d.Send(context.Background(), approvedMessage()))
}

func TestNewSendgridDispatcherValidates(t *testing.T) {
	_, err := NewSendgridDispatcher("", mail.Address{Address: "a@b.c"}, "")
	require.Error(t, err)
	_, err = NewSendgridDispatcher("k", mail.Address{}, "")
	require.Error(t, err)
}
