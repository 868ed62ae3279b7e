package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bodhisatwazer00ne/WAA-100/pkg/config"
)

func sampleMessage() Message {
	return Message{
		From:    "WAA-100 <no-reply@example.com>",
		To:      []string{"asha@example.com"},
		Subject: "Absence Alert: Physics (2024-05-02)",
		Text:    "Dear Asha,",
	}
}

func TestSendGridSend(t *testing.T) {
	var captured map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mail/send", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	res, err := NewSendGrid("sg-key", srv.URL, srv.Client()).Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "sg-123", res.MessageID)
	assert.Equal(t, []string{"asha@example.com"}, res.Accepted)

	assert.Equal(t, "Absence Alert: Physics (2024-05-02)", captured["subject"])
	from := captured["from"].(map[string]interface{})
	assert.Equal(t, "no-reply@example.com", from["email"])
	assert.Equal(t, "WAA-100", from["name"])
	content := captured["content"].([]interface{})
	require.Len(t, content, 1)
	assert.Equal(t, "text/plain", content[0].(map[string]interface{})["type"])
}

func TestSendGridReportsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"errors":[{"message":"rate limited"}]}`))
	}))
	defer srv.Close()

	res, err := NewSendGrid("sg-key", srv.URL, srv.Client()).Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Equal(t, http.StatusTooManyRequests, res.StatusCode)
	assert.Equal(t, "2", res.Header.Get("Retry-After"))
	assert.Contains(t, res.Body, "rate limited")
	assert.Equal(t, []string{"asha@example.com"}, res.Rejected)
}

func TestMailgunSend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/mg.example.com/messages", r.URL.Path)
		expected := "Basic " + base64.StdEncoding.EncodeToString([]byte("api:mg-key"))
		assert.Equal(t, expected, r.Header.Get("Authorization"))
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "asha@example.com", r.PostForm.Get("to"))
		assert.Equal(t, "Dear Asha,", r.PostForm.Get("text"))
		assert.Empty(t, r.PostForm.Get("html"))
		_, _ = w.Write([]byte(`{"id":"<mg-1@mg.example.com>","message":"Queued. Thank you."}`))
	}))
	defer srv.Close()

	res, err := NewMailgun("mg-key", "mg.example.com", srv.URL, srv.Client()).Send(context.Background(), sampleMessage())
	require.NoError(t, err)
	assert.True(t, res.Success())
	assert.Equal(t, "<mg-1@mg.example.com>", res.MessageID)
}

func TestProviderTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewMailgun("k", "d", url, nil).Send(context.Background(), sampleMessage())
	assert.Error(t, err)
}

func TestProvidersHonourContextCancellation(t *testing.T) {
	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewSendGrid("sg-key", srv.URL, srv.Client()).Send(ctx, sampleMessage())
	assert.ErrorIs(t, err, context.Canceled)
	_, err = NewMailgun("k", "mg.example.com", srv.URL, srv.Client()).Send(ctx, sampleMessage())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, hits)
}

func TestMessageValidate(t *testing.T) {
	msg := sampleMessage()
	require.NoError(t, msg.Validate())

	msg.To = nil
	assert.Error(t, msg.Validate())

	msg = sampleMessage()
	msg.To = []string{"not-an-address"}
	assert.Error(t, msg.Validate())

	msg = sampleMessage()
	msg.Text = ""
	assert.Error(t, msg.Validate())
}

func TestSMTPCompose(t *testing.T) {
	p := NewSMTP("smtp.example.com", 0, "", "", false, 0)
	p.now = func() time.Time { return time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC) }

	raw := string(p.compose(sampleMessage(), "<id@smtp.example.com>"))
	assert.Contains(t, raw, "To: asha@example.com\r\n")
	assert.Contains(t, raw, "Message-ID: <id@smtp.example.com>\r\n")
	assert.Contains(t, raw, "Content-Type: text/plain; charset=UTF-8\r\n")
	assert.True(t, strings.HasSuffix(raw, "\r\nDear Asha,"))

	msg := sampleMessage()
	msg.HTML = "<p>Dear Asha,</p>"
	raw = string(p.compose(msg, "<id@smtp.example.com>"))
	assert.Contains(t, raw, "multipart/alternative")
	assert.Contains(t, raw, "<p>Dear Asha,</p>")
}

func TestDeliveryErrorTemporary(t *testing.T) {
	assert.True(t, (&DeliveryError{StatusCode: http.StatusTooManyRequests}).Temporary())
	assert.True(t, (&DeliveryError{StatusCode: http.StatusBadGateway}).Temporary())
	assert.False(t, (&DeliveryError{StatusCode: http.StatusBadRequest}).Temporary())
	assert.True(t, (&DeliveryError{Err: errors.New("dial tcp: refused")}).Temporary())

	err := &DeliveryError{Provider: "sendgrid", StatusCode: 400, Attempts: 1, Response: &Response{Body: "bad"}}
	assert.Equal(t, "email delivery via sendgrid failed after 1 attempt(s): status 400: bad", err.Error())
}

func TestFromConfigPrecedence(t *testing.T) {
	cfg := config.MailConfig{
		SendGridAPIKey: "sg",
		MailgunAPIKey:  "mg",
		MailgunDomain:  "mg.example.com",
		SMTPHost:       "smtp.example.com",
	}
	assert.Equal(t, "sendgrid", FromConfig(cfg).Name())

	cfg.SendGridAPIKey = ""
	assert.Equal(t, "mailgun", FromConfig(cfg).Name())

	cfg.MailgunDomain = ""
	assert.Equal(t, "smtp", FromConfig(cfg).Name())

	cfg.SMTPHost = ""
	assert.Nil(t, FromConfig(cfg))
}
