package mailer

import (
	"context"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const sendGridEndpoint = "/v3/mail/send"

// SendGrid delivers through the SendGrid v3 mail API.
type SendGrid struct {
	key    string
	host   string
	client *rest.Client
}

// NewSendGrid builds a SendGrid provider. host defaults to the public API.
func NewSendGrid(key, host string, httpClient *http.Client) *SendGrid {
	if host == "" {
		host = "https://api.sendgrid.com"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &SendGrid{
		key:    key,
		host:   strings.TrimRight(host, "/"),
		client: &rest.Client{HTTPClient: httpClient},
	}
}

func (p *SendGrid) Name() string { return "sendgrid" }

func (p *SendGrid) Send(ctx context.Context, msg Message) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	req := sendgrid.GetRequest(p.key, sendGridEndpoint, p.host)
	req.Method = rest.Post
	req.Body = sgmail.GetRequestBody(p.prepare(msg))

	res, err := p.client.SendWithContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := fromRest(res)
	if out.Success() {
		out.MessageID = out.Header.Get("X-Message-Id")
		out.Accepted = append([]string(nil), msg.To...)
	} else {
		out.Rejected = append([]string(nil), msg.To...)
	}
	return out, nil
}

func (p *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	personalization := sgmail.NewPersonalization()
	for _, to := range msg.To {
		personalization.AddTos(toSGEmail(to))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(toSGEmail(msg.From))
	m.Subject = msg.Subject
	m.AddPersonalizations(personalization)
	if msg.Text != "" {
		m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}
	return m
}

func toSGEmail(raw string) *sgmail.Email {
	if addr, err := mail.ParseAddress(raw); err == nil {
		return sgmail.NewEmail(addr.Name, addr.Address)
	}
	return sgmail.NewEmail("", raw)
}

func fromRest(res *rest.Response) *Response {
	return &Response{
		StatusCode: res.StatusCode,
		Header:     http.Header(res.Headers),
		Body:       res.Body,
	}
}
