package mailer

import (
	"fmt"
	"net/http"
)

// DeliveryError reports a message that could not be delivered after the retry policy ran
// its course.
type DeliveryError struct {
	Provider   string
	StatusCode int
	Attempts   int
	Response   *Response
	Err        error
}

func (e *DeliveryError) Error() string {
	switch {
	case e.Err != nil && e.StatusCode == 0:
		return fmt.Sprintf("email delivery via %s failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
	case e.Response != nil && e.Response.Body != "":
		return fmt.Sprintf("email delivery via %s failed after %d attempt(s): status %d: %s", e.Provider, e.Attempts, e.StatusCode, e.Response.Body)
	default:
		return fmt.Sprintf("email delivery via %s failed after %d attempt(s): status %d", e.Provider, e.Attempts, e.StatusCode)
	}
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Temporary reports whether the final failure was of a retryable class.
func (e *DeliveryError) Temporary() bool {
	if e.StatusCode == 0 {
		return e.Err != nil
	}
	return Retryable(e.StatusCode)
}

// Retryable reports whether a provider status is worth another attempt.
func Retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}
