package config

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
)

// Endpoint is the live host/port/scheme every connection dials. It starts
// from the s3 section and is moved by redirects, so all connections of a
// pool follow the bucket to its region.
type Endpoint struct {
	mu   sync.RWMutex
	host string
	port int
	ssl  bool
}

// NewEndpoint returns the endpoint described by s.
func NewEndpoint(s S3) *Endpoint {
	return &Endpoint{host: s.Host, port: s.Port, ssl: s.SSL}
}

// Host returns the host name without port.
func (e *Endpoint) Host() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.host
}

// SSL reports whether the endpoint is reached over TLS.
func (e *Endpoint) SSL() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ssl
}

// Port returns the effective port.
func (e *Endpoint) Port() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.effectivePort()
}

func (e *Endpoint) effectivePort() int {
	if e.port != 0 {
		return e.port
	}
	if e.ssl {
		return 443
	}
	return 80
}

// Authority returns host, with the port appended when it is not the
// scheme default. It is the value of the Host header.
func (e *Endpoint) Authority() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.port == 0 || (e.ssl && e.port == 443) || (!e.ssl && e.port == 80) {
		return bracketHost(e.host)
	}
	return hostPort(e.host, e.port)
}

// URL returns scheme://authority.
func (e *Endpoint) URL() string {
	scheme := "http"
	if e.SSL() {
		scheme = "https"
	}
	return scheme + "://" + e.Authority()
}

// Addr returns host:port for dialing.
func (e *Endpoint) Addr() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return hostPort(e.host, e.effectivePort())
}

// SetURL moves the endpoint. raw is either an absolute URL, whose scheme,
// host and port all replace the current ones, or a bare host[:port] as
// found in an S3 error document, which keeps the current scheme.
func (e *Endpoint) SetURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fmt.Errorf("empty endpoint")
	}

	if !strings.Contains(raw, "://") {
		host, port, err := splitHostPort(raw)
		if err != nil {
			return err
		}
		e.mu.Lock()
		e.host, e.port = host, port
		e.mu.Unlock()
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse endpoint %q: %w", raw, err)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("endpoint %q has no host", raw)
	}

	var ssl bool
	switch strings.ToLower(u.Scheme) {
	case "https":
		ssl = true
	case "http":
	default:
		return fmt.Errorf("endpoint %q: unsupported scheme %q", raw, u.Scheme)
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return fmt.Errorf("endpoint %q: bad port: %w", raw, err)
		}
	}

	e.mu.Lock()
	e.host, e.port, e.ssl = u.Hostname(), port, ssl
	e.mu.Unlock()
	return nil
}

func splitHostPort(s string) (string, int, error) {
	s = strings.TrimSuffix(s, "/")
	host, p, err := net.SplitHostPort(s)
	if err != nil {
		// no port
		return strings.TrimSuffix(strings.TrimPrefix(s, "["), "]"), 0, nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return "", 0, fmt.Errorf("endpoint %q: bad port: %w", s, err)
	}
	return host, port, nil
}

func hostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// bracketHost wraps an IPv6 literal in brackets for use in a URL or Host
// header.
func bracketHost(host string) string {
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		return "[" + host + "]"
	}
	return host
}
