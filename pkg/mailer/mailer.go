// Package mailer holds the outbound e-mail provider adapters. Providers perform a single
// delivery attempt; retry policy lives with the caller.
package mailer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Message is a provider-neutral outbound e-mail.
type Message struct {
	From    string
	To      []string
	Subject string
	Text    string
	HTML    string
}

// Validate checks the fields every provider requires.
func (m Message) Validate() error {
	if strings.TrimSpace(m.From) == "" {
		return fmt.Errorf("mail: sender required")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("mail: at least one recipient required")
	}
	for _, to := range m.To {
		if !strings.Contains(to, "@") {
			return fmt.Errorf("mail: invalid recipient %q", to)
		}
	}
	if m.Text == "" && m.HTML == "" {
		return fmt.Errorf("mail: empty body")
	}
	return nil
}

// Response is the normalised outcome of one provider attempt. Non-2xx outcomes are
// reported here with a nil error; errors are reserved for transport failures.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
	MessageID  string
	Accepted   []string
	Rejected   []string
}

// Success reports whether the provider accepted the message.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// Provider delivers a message with a single attempt.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg Message) (*Response, error)
}
