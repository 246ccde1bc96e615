package connection

import (
	"errors"
	"fmt"
	"strings"
)

// Common sentinel errors
var (
	ErrConnectionInit     = errors.New("connection init failed")
	ErrTransportFailure   = errors.New("no response received")
	ErrProtocol           = errors.New("unexpected response code")
	ErrRedirectExhausted  = errors.New("redirect limit exceeded")
	ErrRetryExhausted     = errors.New("retry limit exhausted")
	ErrUnsupportedMethod  = errors.New("unsupported method")
	ErrMalformedResponse  = errors.New("malformed response body")
	ErrNoRedirectLocation = errors.New("redirect without location")
	ErrRequestBuild       = errors.New("failed to build request")
)

// RequestError is the terminal error of a logical request.
type RequestError struct {
	Kind       error // one of the sentinels above
	Method     string
	URL        string
	StatusCode int // last response code, 0 when none arrived
	Retries    int
	Redirects  int
	Message    string // S3 error message, when the body carried one
	Err        error  // underlying cause
}

// Error implements the error interface
func (e *RequestError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Method, e.URL)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status: %d)", e.StatusCode)
	}
	fmt.Fprintf(&b, ": %v", e.Kind)
	if e.Message != "" {
		fmt.Fprintf(&b, ": %s", e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *RequestError) Unwrap() []error {
	out := []error{e.Kind}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// IsRetryable reports whether a fresh call may succeed where err failed.
// Exhausted limits are retryable in that sense; configuration and usage
// errors are not.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnsupportedMethod),
		errors.Is(err, ErrRequestBuild),
		errors.Is(err, ErrRedirectExhausted),
		errors.Is(err, ErrNoRedirectLocation):
		return false
	}

	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.StatusCode >= 400 && reqErr.StatusCode < 500 {
		return reqErr.StatusCode == 408 || reqErr.StatusCode == 429
	}
	return errors.Is(err, ErrTransportFailure) ||
		errors.Is(err, ErrProtocol) ||
		errors.Is(err, ErrRetryExhausted) ||
		errors.Is(err, ErrConnectionInit)
}
