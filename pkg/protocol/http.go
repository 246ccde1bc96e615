package protocol

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/s3conn/pkg/header"
)

// HTTPClient implements Client over a single keep-alive socket.
type HTTPClient struct {
	client  *http.Client
	bufPool sync.Pool
}

// NewHTTPClient builds the transport for one connection.
func NewHTTPClient(cfg ClientConfig) (*HTTPClient, error) {
	dial := cfg.Dial
	if dial == nil {
		dial = (&net.Dialer{
			Timeout:   cfg.Timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}

	idle := cfg.IdleConnTimeout
	if idle == 0 {
		idle = 90 * time.Second
	}

	transport := &http.Transport{
		DialContext:         retryDial(dial, cfg.DialRetries, cfg.OnClose),
		MaxIdleConns:        1,
		MaxIdleConnsPerHost: 1,
		MaxConnsPerHost:     1,
		IdleConnTimeout:     idle,
		DisableCompression:  true,
		TLSClientConfig:     cfg.TLS.Clone(),
		TLSHandshakeTimeout: cfg.Timeout,
	}
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2: %w", err)
		}
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		bufPool: sync.Pool{
			New: func() interface{} {
				buf := make([]byte, 32*1024)
				return &buf
			},
		},
	}, nil
}

func retryDial(dial DialFunc, retries int, onClose func(string)) DialFunc {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		var err error
		for attempt := 0; attempt <= retries; attempt++ {
			var conn net.Conn
			conn, err = dial(ctx, network, addr)
			if err == nil {
				if onClose == nil {
					return conn, nil
				}
				return &notifyConn{Conn: conn, onClose: onClose}, nil
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
		}
		return nil, err
	}
}

type notifyConn struct {
	net.Conn
	once    sync.Once
	onClose func(string)
}

func (c *notifyConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(func() { c.onClose(c.RemoteAddr().String()) })
	return err
}

// Do executes an HTTP request and reads the whole body.
func (c *HTTPClient) Do(ctx context.Context, req *Request) *Response {
	start := time.Now()
	resp := &Response{}

	var bodyReader io.Reader = http.NoBody
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		resp.Error = err
		resp.Duration = time.Since(start)
		return resp
	}
	req.Header.Apply(httpReq)
	resp.BytesWritten = int64(req.Header.Size() + len(req.Body))

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		resp.Error = err
		resp.Duration = time.Since(start)
		return resp
	}
	defer httpResp.Body.Close()

	resp.StatusCode = httpResp.StatusCode
	resp.Header = httpResp.Header

	bufPtr := c.bufPool.Get().(*[]byte)
	defer c.bufPool.Put(bufPtr)

	var body bytes.Buffer
	if _, err := io.CopyBuffer(&body, httpResp.Body, *bufPtr); err != nil {
		resp.Error = err
	}
	resp.Body = body.Bytes()
	resp.BytesRead = int64(header.HTTPSize(httpResp.Header) + body.Len())
	resp.Duration = time.Since(start)

	return resp
}

// Close releases resources.
func (c *HTTPClient) Close() error {
	c.client.CloseIdleConnections()
	return nil
}
