package mailer

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/sendgrid/rest"
)

// Mailgun delivers through the Mailgun messages API. It shares the rest transport used
// by SendGrid.
type Mailgun struct {
	apiKey  string
	domain  string
	baseURL string
	client  *rest.Client
}

// NewMailgun builds a Mailgun provider. baseURL defaults to the US region endpoint.
func NewMailgun(apiKey, domain, baseURL string, httpClient *http.Client) *Mailgun {
	if baseURL == "" {
		baseURL = "https://api.mailgun.net"
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Mailgun{
		apiKey:  apiKey,
		domain:  domain,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &rest.Client{HTTPClient: httpClient},
	}
}

func (p *Mailgun) Name() string { return "mailgun" }

func (p *Mailgun) Send(ctx context.Context, msg Message) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("from", msg.From)
	for _, to := range msg.To {
		form.Add("to", to)
	}
	form.Set("subject", msg.Subject)
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}

	credentials := base64.StdEncoding.EncodeToString([]byte("api:" + p.apiKey))
	req := rest.Request{
		Method:  rest.Post,
		BaseURL: p.baseURL + "/v3/" + url.PathEscape(p.domain) + "/messages",
		Headers: map[string]string{
			"Authorization": "Basic " + credentials,
			"Content-Type":  "application/x-www-form-urlencoded",
			"Accept":        "application/json",
		},
		Body: []byte(form.Encode()),
	}

	res, err := p.client.SendWithContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := fromRest(res)
	if !out.Success() {
		out.Rejected = append([]string(nil), msg.To...)
		return out, nil
	}

	var payload struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(res.Body), &payload); err == nil {
		out.MessageID = payload.ID
	}
	out.Accepted = append([]string(nil), msg.To...)
	return out, nil
}
