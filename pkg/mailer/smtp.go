package mailer

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/http"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SMTP delivers through a plain SMTP relay. Reply codes are mapped onto HTTP-like
// statuses so the caller's retry policy applies unchanged: 4xx becomes 503, 5xx becomes 400.
type SMTP struct {
	host     string
	port     int
	username string
	password string
	implicit bool
	timeout  time.Duration
	now      func() time.Time
}

// NewSMTP builds an SMTP provider. implicit selects TLS-on-connect (usually port 465);
// otherwise STARTTLS is used when the server offers it.
func NewSMTP(host string, port int, username, password string, implicit bool, timeout time.Duration) *SMTP {
	if port == 0 {
		port = 587
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMTP{
		host:     host,
		port:     port,
		username: username,
		password: password,
		implicit: implicit,
		timeout:  timeout,
		now:      time.Now,
	}
}

func (p *SMTP) Name() string { return "smtp" }

func (p *SMTP) Send(ctx context.Context, msg Message) (*Response, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	from, err := mail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("smtp: parse sender: %w", err)
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.NewString(), p.host)
	body := p.compose(msg, messageID)

	err = p.deliver(ctx, from.Address, msg.To, body)
	var tpErr *textproto.Error
	switch {
	case err == nil:
		return &Response{
			StatusCode: http.StatusAccepted,
			Header:     http.Header{},
			MessageID:  messageID,
			Accepted:   append([]string(nil), msg.To...),
		}, nil
	case errors.As(err, &tpErr):
		status := http.StatusBadRequest
		if tpErr.Code >= 400 && tpErr.Code < 500 {
			status = http.StatusServiceUnavailable
		}
		return &Response{
			StatusCode: status,
			Header:     http.Header{},
			Body:       strconv.Itoa(tpErr.Code) + " " + tpErr.Msg,
			Rejected:   append([]string(nil), msg.To...),
		}, nil
	default:
		return nil, err
	}
}

func (p *SMTP) deliver(ctx context.Context, from string, to []string, body []byte) error {
	addr := net.JoinHostPort(p.host, strconv.Itoa(p.port))
	dialer := &net.Dialer{Timeout: p.timeout}
	tlsConfig := &tls.Config{ServerName: p.host, MinVersion: tls.VersionTLS12}

	var (
		conn net.Conn
		err  error
	)
	if p.implicit {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return fmt.Errorf("smtp: dial %s: %w", addr, err)
	}

	deadline := time.Now().Add(p.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = conn.SetDeadline(deadline)

	client, err := smtp.NewClient(conn, p.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer client.Close() //nolint:errcheck

	if !p.implicit {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if p.username != "" {
		if ok, _ := client.Extension("AUTH"); ok {
			if err := client.Auth(smtp.PlainAuth("", p.username, p.password, p.host)); err != nil {
				return err
			}
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func (p *SMTP) compose(msg Message, messageID string) []byte {
	var buf bytes.Buffer
	header := func(k, v string) { fmt.Fprintf(&buf, "%s: %s\r\n", k, v) }

	header("From", msg.From)
	header("To", strings.Join(msg.To, ", "))
	header("Subject", mime.QEncoding.Encode("utf-8", msg.Subject))
	header("Date", p.now().Format(time.RFC1123Z))
	header("Message-ID", messageID)
	header("MIME-Version", "1.0")

	if msg.HTML == "" {
		header("Content-Type", "text/plain; charset=UTF-8")
		buf.WriteString("\r\n")
		buf.WriteString(msg.Text)
		return buf.Bytes()
	}

	boundary := "waa-" + uuid.NewString()
	header("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	buf.WriteString("\r\n")
	if msg.Text != "" {
		fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/plain; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.Text)
	}
	fmt.Fprintf(&buf, "--%s\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s\r\n", boundary, msg.HTML)
	fmt.Fprintf(&buf, "--%s--\r\n", boundary)
	return buf.Bytes()
}
