package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"FeedIngestor/internal/domain"
)

// ErrTooManyRedirects is returned by the redirect policy once the cap is hit.
var ErrTooManyRedirects = errors.New("too many redirects")

// ErrEmptyResponse is returned when a feed answers 2xx with no body.
var ErrEmptyResponse = errors.New("empty response body")

// FetchError represents a classified feed fetch failure.
type FetchError struct {
	Kind       domain.ErrorKind
	StatusCode int
	URL        string
	Cause      error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: HTTP %d for %s", e.Kind, e.StatusCode, e.URL)
	}
	return fmt.Sprintf("%s: %v for %s", e.Kind, e.Cause, e.URL)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// classifyHTTPStatus builds the error for a non-2xx response.
func classifyHTTPStatus(statusCode int, url string) *FetchError {
	return &FetchError{Kind: domain.KindHTTP, StatusCode: statusCode, URL: url, Cause: fmt.Errorf("HTTP %d", statusCode)}
}

// classifyNetworkError maps a transport error onto one of the fetch failure kinds.
func classifyNetworkError(cause error, url string) *FetchError {
	return &FetchError{Kind: networkKind(cause), URL: url, Cause: cause}
}

// classifyParseError wraps a feed decoding failure.
func classifyParseError(cause error, url string) *FetchError {
	kind := domain.KindInvalidFeedFormat
	if errors.Is(cause, ErrEmptyResponse) {
		kind = domain.KindEmptyResponse
	}
	return &FetchError{Kind: kind, URL: url, Cause: cause}
}

func networkKind(err error) domain.ErrorKind {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return domain.KindDNS
	}
	if errors.Is(err, ErrTooManyRedirects) {
		return domain.KindHTTP
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return domain.KindConnRefused
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return domain.KindConnReset
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout() {
		return domain.KindConnTimeout
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.KindTimeout
	}
	return domain.KindConnReset
}
