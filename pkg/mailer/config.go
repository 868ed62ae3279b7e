package mailer

import (
	"net/http"

	"github.com/bodhisatwazer00ne/WAA-100/pkg/config"
)

// FromConfig selects the provider once, in the order SendGrid, Mailgun, SMTP. It returns
// nil when nothing is configured, which callers treat as e-mail disabled.
func FromConfig(cfg config.MailConfig) Provider {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	switch {
	case cfg.SendGridAPIKey != "":
		return NewSendGrid(cfg.SendGridAPIKey, cfg.SendGridHost, httpClient)
	case cfg.MailgunAPIKey != "" && cfg.MailgunDomain != "":
		return NewMailgun(cfg.MailgunAPIKey, cfg.MailgunDomain, cfg.MailgunBaseURL, httpClient)
	case cfg.SMTPHost != "":
		return NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPassword, cfg.SMTPImplicit, cfg.HTTPTimeout)
	default:
		return nil
	}
}
