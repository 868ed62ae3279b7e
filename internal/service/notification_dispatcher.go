package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bodhisatwazer00ne/WAA-100/internal/models"
	"github.com/bodhisatwazer00ne/WAA-100/pkg/mailer"
)

const disabledProvider = "disabled"

// EmailRequest is one outbound e-mail.
type EmailRequest struct {
	To      []string
	Subject string
	Text    string
	HTML    string
}

// DeliveryReceipt describes a message the provider accepted.
type DeliveryReceipt struct {
	MessageID        string   `json:"messageId"`
	Accepted         []string `json:"accepted"`
	Rejected         []string `json:"rejected"`
	Provider         string   `json:"provider"`
	Attempts         int      `json:"attempts"`
	ProviderResponse string   `json:"providerResponse,omitempty"`
}

// DispatchResult counts the outcome of a batch of alerts.
type DispatchResult struct {
	Attempted int `json:"attempted"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// AbsenceAlert is the e-mail payload produced for one absent student.
type AbsenceAlert struct {
	StudentID   string
	StudentName string
	To          string
	ClassName   string
	SubjectName string
	Date        string
	SubjectPct  float64
	Risk        models.RiskLevel
}

// Email renders the alert.
func (a AbsenceAlert) Email(appName string) EmailRequest {
	subject := fmt.Sprintf("Absence Alert: %s (%s)", a.SubjectName, a.Date)
	text := fmt.Sprintf("Dear %s,\n\nYou were marked absent for %s on %s in %s.\nCurrent risk category in %s: %s.\nCurrent attendance in %s: %.2f%%.\n\nPlease ensure regular attendance.\n- %s",
		a.StudentName, a.SubjectName, a.Date, a.ClassName,
		a.SubjectName, strings.ToUpper(string(a.Risk)),
		a.SubjectName, a.SubjectPct,
		appName,
	)
	return EmailRequest{To: []string{a.To}, Subject: subject, Text: text}
}

// RecipientResolver decides which address receives a student's alerts.
type RecipientResolver interface {
	Resolve(contact models.StudentContact) (string, bool)
}

type storedRecipientResolver struct {
	overrides map[string]string
}

// NewRecipientResolver returns the stored student address, unless overrides names the
// student. Overrides are meant for sandbox setups.
func NewRecipientResolver(overrides map[string]string) RecipientResolver {
	return &storedRecipientResolver{overrides: overrides}
}

func (r *storedRecipientResolver) Resolve(contact models.StudentContact) (string, bool) {
	if addr, ok := r.overrides[contact.StudentID]; ok && addr != "" {
		return addr, true
	}
	addr := strings.TrimSpace(contact.Email)
	return addr, addr != ""
}

// DispatcherConfig governs the retry policy and pacing.
type DispatcherConfig struct {
	From           string
	AppName        string
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RatePerSecond  float64
}

// NotificationDispatcher sends e-mail through the configured provider with bounded
// retries. Delivery is best effort.
type NotificationDispatcher struct {
	provider mailer.Provider
	cfg      DispatcherConfig
	limiter  *rate.Limiter
	metrics  *MetricsService
	logger   *zap.Logger
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewNotificationDispatcher constructs a dispatcher. A nil provider disables e-mail.
func NewNotificationDispatcher(provider mailer.Provider, cfg DispatcherConfig, metrics *MetricsService, logger *zap.Logger) *NotificationDispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 20 * time.Second
	}
	if cfg.AppName == "" {
		cfg.AppName = "WAA-100"
	}
	d := &NotificationDispatcher{
		provider: provider,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
		sleep:    sleepContext,
		now:      time.Now,
	}
	if cfg.RatePerSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), 1)
	}
	return d
}

// Enabled reports whether a provider is configured.
func (d *NotificationDispatcher) Enabled() bool {
	return d != nil && d.provider != nil
}

// ProviderName names the active provider.
func (d *NotificationDispatcher) ProviderName() string {
	if !d.Enabled() {
		return disabledProvider
	}
	return d.provider.Name()
}

// SendEmail delivers one message. Failures are returned as *mailer.DeliveryError.
func (d *NotificationDispatcher) SendEmail(ctx context.Context, req EmailRequest) (*DeliveryReceipt, error) {
	if !d.Enabled() {
		d.metrics.RecordEmailResult(disabledProvider, false)
		return nil, &mailer.DeliveryError{Provider: disabledProvider, Err: errors.New("email disabled; no provider configured")}
	}
	name := d.provider.Name()
	msg := mailer.Message{From: d.cfg.From, To: req.To, Subject: req.Subject, Text: req.Text, HTML: req.HTML}
	if err := msg.Validate(); err != nil {
		d.metrics.RecordEmailResult(name, false)
		return nil, &mailer.DeliveryError{Provider: name, Err: err}
	}

	var (
		lastResp *mailer.Response
		lastErr  error
	)
	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		resp, err := d.provider.Send(ctx, msg)
		switch {
		case err != nil:
			d.metrics.RecordEmailAttempt(name, "network")
			lastResp, lastErr = nil, err
		case resp.Success():
			d.metrics.RecordEmailAttempt(name, "ok")
			d.metrics.RecordEmailResult(name, true)
			return &DeliveryReceipt{
				MessageID:        resp.MessageID,
				Accepted:         resp.Accepted,
				Rejected:         resp.Rejected,
				Provider:         name,
				Attempts:         attempt,
				ProviderResponse: resp.Body,
			}, nil
		case mailer.Retryable(resp.StatusCode):
			d.metrics.RecordEmailAttempt(name, "retryable")
			lastResp, lastErr = resp, nil
		default:
			d.metrics.RecordEmailAttempt(name, "rejected")
			d.metrics.RecordEmailResult(name, false)
			return nil, &mailer.DeliveryError{Provider: name, StatusCode: resp.StatusCode, Attempts: attempt, Response: resp}
		}

		if attempt == d.cfg.MaxAttempts {
			break
		}
		wait := d.backoff(attempt, lastResp)
		d.logger.Warn("email attempt failed, retrying",
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Int("status", statusOf(lastResp)),
			zap.Duration("wait", wait),
			zap.Error(lastErr),
		)
		if err := d.sleep(ctx, wait); err != nil {
			d.metrics.RecordEmailResult(name, false)
			return nil, &mailer.DeliveryError{Provider: name, StatusCode: statusOf(lastResp), Attempts: attempt, Response: lastResp, Err: err}
		}
	}

	d.metrics.RecordEmailResult(name, false)
	return nil, &mailer.DeliveryError{Provider: name, StatusCode: statusOf(lastResp), Attempts: d.cfg.MaxAttempts, Response: lastResp, Err: lastErr}
}

// Dispatch sends the alerts one after another. Each failure is logged and counted; none is
// returned.
func (d *NotificationDispatcher) Dispatch(ctx context.Context, alerts []AbsenceAlert) DispatchResult {
	var result DispatchResult
	for _, alert := range alerts {
		if d.limiter != nil {
			if err := d.limiter.Wait(ctx); err != nil {
				d.logger.Warn("email dispatch interrupted", zap.Error(err))
				break
			}
		}
		result.Attempted++
		receipt, err := d.SendEmail(ctx, alert.Email(d.cfg.AppName))
		if err != nil {
			result.Failed++
			fields := []zap.Field{zap.String("student_id", alert.StudentID), zap.String("to", alert.To), zap.Error(err)}
			var delivery *mailer.DeliveryError
			if errors.As(err, &delivery) {
				fields = append(fields, zap.String("provider", delivery.Provider), zap.Int("status", delivery.StatusCode), zap.Int("attempts", delivery.Attempts))
			}
			d.logger.Error("absence alert delivery failed", fields...)
			continue
		}
		result.Delivered++
		d.logger.Info("absence alert delivered",
			zap.String("student_id", alert.StudentID),
			zap.String("message_id", receipt.MessageID),
			zap.Int("attempts", receipt.Attempts),
		)
	}
	return result
}

// backoff returns the wait before the next attempt. A Retry-After header wins over the
// exponential schedule; both are capped at MaxBackoff.
func (d *NotificationDispatcher) backoff(attempt int, resp *mailer.Response) time.Duration {
	if resp != nil {
		if wait, ok := retryAfter(resp.Header, d.now()); ok {
			return minDuration(wait, d.cfg.MaxBackoff)
		}
	}
	wait := float64(d.cfg.InitialBackoff) * math.Pow(2, float64(attempt-1))
	if wait > float64(d.cfg.MaxBackoff) {
		return d.cfg.MaxBackoff
	}
	return time.Duration(wait)
}

// retryAfter parses a Retry-After header given as integer seconds or an HTTP-date.
func retryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	raw := strings.TrimSpace(header.Get("Retry-After"))
	if raw == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, false
		}
		return time.Duration(secs) * time.Second, true
	}
	if at, err := http.ParseTime(raw); err == nil {
		wait := at.Sub(now)
		if wait < 0 {
			wait = 0
		}
		return wait, true
	}
	return 0, false
}

func statusOf(resp *mailer.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
