package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"
)

var (
	ErrMalformedURL = errors.New("malformed url")
	ErrTimeout      = errors.New("fetch timed out")
	ErrBlocked      = errors.New("request blocked by bot protection")
)

// Fetcher retrieves one document. Implementations must honour ctx
// cancellation and deadlines.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Document, error)
}

type Request struct {
	URL     string
	Headers map[string]string
}

// Document is a fetched page.
type Document struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	FetchedAt  time.Time
}

// StatusError reports a non-success HTTP status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// IsTransient reports whether a failed fetch is worth retrying: timeouts,
// 5xx and 429 responses, and dropped connections. Cancellation is never
// transient.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusTooManyRequests || statusErr.StatusCode >= 500
	}

	switch {
	case errors.Is(err, ErrMalformedURL), errors.Is(err, ErrBlocked):
		return false
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.ECONNABORTED), errors.Is(err, syscall.ETIMEDOUT),
		errors.Is(err, syscall.EPIPE), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return true
	}

	// *url.Error is a net.Error too; only its timeouts are retried
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
