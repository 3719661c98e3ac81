// Package resilience wraps write operations against the records API with
// bounded retry. An error is retried only when it looks like a rate-limit,
// server, timeout, or network failure; everything else fails immediately.
package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// Transient marks an error as safe to retry. The store client wraps
// 408/429/5xx responses in one of these.
type Transient struct {
	Err        error
	StatusCode int
}

func (e *Transient) Error() string { return e.Err.Error() }

func (e *Transient) Unwrap() error { return e.Err }

// MarkTransient wraps err as retryable, recording the HTTP status that
// caused it (0 when the failure was not an HTTP response).
func MarkTransient(err error, statusCode int) error {
	if err == nil {
		return nil
	}
	return &Transient{Err: err, StatusCode: statusCode}
}

// RetryableStatus reports whether an HTTP status code indicates a failure
// worth retrying.
func RetryableStatus(code int) bool {
	switch code {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// Retryable reports whether err is worth retrying: an explicit Transient
// wrapper anywhere in the chain, a network timeout, or a connection-level
// failure. Context cancellation is never retryable.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var t *Transient
	if errors.As(err, &t) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	// Wrapped HTTP client errors lose their type; fall back to message
	// heuristics for the common network failures.
	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"connection refused",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"tls handshake timeout",
		"unexpected eof",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
