package protocol

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/s3conn/pkg/header"
)

// Request is one wire attempt. URL is absolute; Header already carries
// Host and Authorization.
type Request struct {
	URL    string
	Method string
	Header *header.Headers
	Body   []byte
}

// Response represents the result of a request. Error is set when the
// exchange did not complete; StatusCode is zero when no response arrived.
type Response struct {
	StatusCode   int
	Header       http.Header
	Body         []byte
	Duration     time.Duration
	BytesRead    int64
	BytesWritten int64
	Error        error
}

// Client is the interface for protocol implementations.
type Client interface {
	// Do executes a request and returns the response.
	Do(ctx context.Context, req *Request) *Response

	// Close releases any resources held by the client.
	Close() error
}

// DialFunc matches net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ClientConfig contains the transport settings of one connection.
type ClientConfig struct {
	// Timeout bounds a whole attempt, including reading the body.
	Timeout time.Duration
	// DialRetries is the number of extra dial attempts after the first.
	DialRetries int
	// TLS is used for https URLs. It is shared, never modified.
	TLS *tls.Config
	// HTTP2 negotiates h2 over TLS when the server offers it.
	HTTP2 bool
	// OnClose is invoked once for every dialed socket when it closes.
	OnClose func(remote string)
	// Dial overrides the default dialer.
	Dial            DialFunc
	IdleConnTimeout time.Duration
}
