// Package transport builds the HTTP client every Livy request goes
// through. The client retries connection/TLS faults and a fixed set of
// status codes with exponential backoff below the application layer;
// raising on non-2xx statuses is left to callers.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

const (
	// The Livy protocol is a low-concurrency, long-lived session
	// protocol; a small fixed pool is enough.
	poolSize = 4

	retryMax     = 3
	retryWaitMin = 1 * time.Second
	retryWaitMax = 30 * time.Second
)

// New returns an *http.Client with transport-level retry and a bounded
// keep-alive pool. The retry policy covers connection errors and the
// retryable statuses (429, 500, 502, 503, 504) for every method used here;
// POST idempotency is owned by the application layer's retry-with-rebuild
// strategy, not this one.
func New(timeout time.Duration, logger *slog.Logger) *http.Client {
	return newClient(timeout, logger, retryWaitMin, retryWaitMax)
}

func newClient(timeout time.Duration, logger *slog.Logger, waitMin, waitMax time.Duration) *http.Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = waitMin
	rc.RetryWaitMax = waitMax
	rc.Logger = leveledLogger{logger}
	rc.HTTPClient = &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        poolSize,
			MaxIdleConnsPerHost: poolSize,
			MaxConnsPerHost:     poolSize,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return rc.StandardClient()
}

// leveledLogger adapts slog to retryablehttp's LeveledLogger.
type leveledLogger struct {
	l *slog.Logger
}

func (l leveledLogger) Error(msg string, keysAndValues ...any) { l.l.Error(msg, keysAndValues...) }
func (l leveledLogger) Warn(msg string, keysAndValues ...any)  { l.l.Warn(msg, keysAndValues...) }
func (l leveledLogger) Info(msg string, keysAndValues ...any)  { l.l.Debug(msg, keysAndValues...) }
func (l leveledLogger) Debug(msg string, keysAndValues ...any) { l.l.Debug(msg, keysAndValues...) }

// StatusError reports a non-2xx response. It is deliberately separate from
// transport errors: connection faults are retried by the application layer,
// status errors are not.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %s", e.Status)
}

// CheckStatus returns a *StatusError for non-2xx responses.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{Code: resp.StatusCode, Status: resp.Status}
}

// IsConnectionError classifies an error from http.Client.Do as a
// connection-level failure (network, TLS, timeout) as opposed to an HTTP
// status or decode failure. Everything the transport surfaces as an error
// rather than a response counts.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
