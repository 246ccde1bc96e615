package connection

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/s3conn/internal/history"
	"github.com/s3conn/pkg/header"
	"github.com/s3conn/pkg/protocol"
	"github.com/s3conn/pkg/s3err"
	"github.com/s3conn/pkg/signer"
)

// State is the position of an in-flight request in the retry/redirect
// state machine.
type State int

const (
	StateInit State = iota
	StateReinit
	StateSend
	StateTransportFailure
	StateProtocolError
	StateRedirect
	StateRetry
	StateSuccess
	StateFail
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateReinit:
		return "REINIT"
	case StateSend:
		return "SEND"
	case StateTransportFailure:
		return "TRANSPORT_FAILURE"
	case StateProtocolError:
		return "PROTOCOL_ERROR"
	case StateRedirect:
		return "REDIRECT"
	case StateRetry:
		return "RETRY"
	case StateSuccess:
		return "SUCCESS"
	case StateFail:
		return "FAIL"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Response is the successful outcome of a logical request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Retries    int
	Redirects  int
}

// Callback receives the outcome of MakeRequest. body and header are nil
// when ok is false.
type Callback func(ok bool, body []byte, header http.Header, err error)

var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodPut:    true,
	http.MethodPost:   true,
	http.MethodDelete: true,
	http.MethodHead:   true,
}

func isSuccess(code int) bool {
	return code == http.StatusOK || code == http.StatusNoContent || code == http.StatusPartialContent
}

func isRedirect(code int) bool {
	return code == http.StatusMovedPermanently || code == http.StatusTemporaryRedirect
}

// inFlight is one logical call: the snapshot it resends and its counters.
type inFlight struct {
	method      string
	resource    string // escaped path relative to the bucket
	body        []byte
	headers     *header.Headers
	enableRetry bool
	retries     int
	redirects   int
	start       time.Time
	state       State

	url     string
	resp    *protocol.Response
	message string
	err     error
}

func (r *inFlight) fail(kind, cause error) {
	code := 0
	if r.resp != nil {
		code = r.resp.StatusCode
	}
	r.err = &RequestError{
		Kind:       kind,
		Method:     r.method,
		URL:        r.url,
		StatusCode: code,
		Retries:    r.retries,
		Redirects:  r.redirects,
		Message:    r.message,
		Err:        cause,
	}
	r.state = StateFail
}

// MakeRequest runs the request in its own goroutine and reports the outcome
// to cb exactly once. An unsupported method is reported synchronously
// without any network I/O.
func (c *Connection) MakeRequest(ctx context.Context, path, method string, body []byte, enableRetry bool, cb Callback) {
	if !supportedMethods[method] {
		_, err := c.Do(ctx, path, method, body, enableRetry)
		cb(false, nil, nil, err)
		return
	}

	go func() {
		resp, err := c.Do(ctx, path, method, body, enableRetry)
		if err != nil {
			cb(false, nil, nil, err)
			return
		}
		cb(true, resp.Body, resp.Header, nil)
	}()
}

// Do runs the request to a terminal outcome in the calling goroutine. path
// is the raw resource path relative to the bucket, optionally followed by a
// sub-resource query.
func (c *Connection) Do(ctx context.Context, path, method string, body []byte, enableRetry bool) (*Response, error) {
	c.mu.Lock()
	staged := c.staged
	c.staged = header.New()
	c.mu.Unlock()

	rec := &inFlight{
		method:      method,
		resource:    signer.EscapePath(path),
		body:        body,
		headers:     staged,
		enableRetry: enableRetry,
		start:       c.now(),
		state:       StateInit,
	}

	if !supportedMethods[method] {
		c.log.Error("unsupported HTTP method", "method", method, "path", path)
		rec.url = path
		rec.fail(ErrUnsupportedMethod, nil)
		return nil, rec.err
	}

	c.recorder.RequestStarted(method)
	resp, err := c.run(ctx, rec)
	c.recorder.RequestFinished(method, err == nil)
	c.log.Debug("request finished", "method", method, "ok", err == nil,
		"retries", rec.retries, "redirects", rec.redirects, "elapsed", c.now().Sub(rec.start))
	return resp, err
}

func (c *Connection) run(ctx context.Context, rec *inFlight) (*Response, error) {
	maxRetries := c.cfg.Connection.MaxRetries
	maxRedirects := c.cfg.Connection.MaxRedirects

	for {
		switch rec.state {
		case StateInit:
			c.mu.Lock()
			missing := c.client == nil
			c.mu.Unlock()
			if missing {
				rec.state = StateReinit
			} else {
				rec.state = StateSend
			}

		case StateReinit:
			if err := c.Init(); err != nil {
				rec.fail(ErrConnectionInit, err)
				continue
			}
			rec.state = StateSend

		case StateSend:
			if err := ctx.Err(); err != nil {
				rec.fail(err, nil)
				continue
			}
			if err := c.send(ctx, rec); err != nil {
				rec.fail(ErrRequestBuild, err)
				continue
			}
			switch code := rec.resp.StatusCode; {
			case rec.resp.Error != nil:
				rec.state = StateTransportFailure
			case isRedirect(code):
				rec.state = StateRedirect
			case isSuccess(code):
				rec.state = StateSuccess
			default:
				rec.state = StateProtocolError
			}

		case StateTransportFailure, StateProtocolError:
			kind := ErrProtocol
			var cause error
			if rec.state == StateTransportFailure {
				kind, cause = ErrTransportFailure, rec.resp.Error
				c.log.Error("request failed", "method", rec.method, "url", rec.url, "err", cause)
			} else {
				rec.message = ""
				if msg, ok := c.parser.ErrorMessage(rec.resp.Body); ok {
					rec.message = msg
				}
				c.log.Error("server returned HTTP error", "method", rec.method, "url", rec.url,
					"code", rec.resp.StatusCode, "msg", rec.message)
			}

			if err := ctx.Err(); err != nil {
				rec.fail(err, cause)
				continue
			}
			if !rec.enableRetry {
				rec.fail(kind, cause)
				continue
			}
			rec.retries++
			if rec.retries >= maxRetries {
				c.log.Error("retries exhausted", "method", rec.method, "url", rec.url, "retries", rec.retries)
				rec.fail(ErrRetryExhausted, errors.Join(kind, cause))
				continue
			}
			rec.state = StateRetry

		case StateRetry:
			c.log.Info("retrying request", "method", rec.method, "url", rec.url, "retry", rec.retries, "max", maxRetries)
			c.recorder.Retry(rec.method)
			rec.state = StateSend

		case StateRedirect:
			rec.redirects++
			if rec.redirects > maxRedirects {
				c.log.Error("too many redirects", "method", rec.method, "url", rec.url, "redirects", rec.redirects)
				rec.fail(ErrRedirectExhausted, nil)
				continue
			}

			loc := rec.resp.Header.Get("Location")
			if loc == "" {
				if ep, ok := c.parser.RedirectEndpoint(rec.resp.Body); ok {
					loc = ep
				}
			}
			if loc == "" {
				var cause error
				if _, ok := s3err.Parse(rec.resp.Body); !ok && len(rec.resp.Body) > 0 {
					cause = ErrMalformedResponse
				}
				c.log.Error("redirect without location", "method", rec.method, "url", rec.url)
				rec.fail(ErrNoRedirectLocation, cause)
				continue
			}
			if err := c.endpoint.SetURL(loc); err != nil {
				rec.fail(ErrNoRedirectLocation, err)
				continue
			}

			c.log.Info("following redirect", "method", rec.method, "location", loc, "redirects", rec.redirects)
			c.recorder.Redirect(rec.method)
			if err := c.Init(); err != nil {
				rec.fail(ErrConnectionInit, err)
				continue
			}
			rec.state = StateSend

		case StateSuccess:
			return &Response{
				StatusCode: rec.resp.StatusCode,
				Header:     rec.resp.Header,
				Body:       rec.resp.Body,
				Retries:    rec.retries,
				Redirects:  rec.redirects,
			}, nil

		case StateFail:
			return nil, rec.err
		}
	}
}

// wirePath is the request path as sent. Virtual-host style endpoints, whose
// host starts with the bucket name, address the object directly; otherwise
// the bucket leads the path.
func wirePath(host, bucket, resource string) string {
	if strings.HasPrefix(strings.ToLower(host), strings.ToLower(bucket)) {
		return resource
	}
	return "/" + bucket + resource
}

// Authorization returns the Authorization value the connection would send
// for the request at now. Staged headers are included but not consumed.
func (c *Connection) Authorization(path, method string, body []byte, now time.Time) (string, error) {
	c.mu.Lock()
	staged := c.staged.Clone()
	c.mu.Unlock()

	rec := &inFlight{
		method:   method,
		resource: signer.EscapePath(path),
		body:     body,
		headers:  staged,
	}
	h, err := c.prepare(rec, wirePath(c.endpoint.Host(), c.cfg.S3.BucketName, rec.resource), now)
	if err != nil {
		return "", err
	}
	return h.Value("Authorization"), nil
}

// prepare assembles the headers of one attempt and signs them.
func (c *Connection) prepare(rec *inFlight, path string, now time.Time) (*header.Headers, error) {
	h := rec.headers.Clone()

	h.SetDefault("Host", c.endpoint.Authority())
	h.SetDefault("Connection", "keep-alive")
	h.SetDefault("Accept-Encoding", "identity")
	if c.cfg.S3.UseAWSV4 {
		// the hash of the actual body rather than the fixed empty-payload hash
		h.SetDefault("x-amz-content-sha256", signer.HashPayload(rec.body))
		h.SetDefault("x-amz-date", signer.FormatAmzDate(now))
	} else {
		h.SetDefault("Date", signer.FormatDate(now))
	}

	auth, err := c.signer.Sign(&signer.Request{
		Method:   rec.method,
		Resource: rec.resource,
		URI:      path,
		Header:   h,
	}, now)
	if err != nil {
		return nil, err
	}
	h.Set("Authorization", auth)
	return h, nil
}

// send performs one attempt and records it. A returned error means nothing
// was sent.
func (c *Connection) send(ctx context.Context, rec *inFlight) error {
	now := c.now()
	path := wirePath(c.endpoint.Host(), c.cfg.S3.BucketName, rec.resource)
	rec.url = c.endpoint.URL() + path

	h, err := c.prepare(rec, path, now)
	if err != nil {
		c.log.Error("failed to sign request", "method", rec.method, "url", rec.url, "err", err)
		return err
	}

	c.mu.Lock()
	if c.client == nil {
		if err := c.initLocked(); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	client := c.client
	c.stats.start(rec.method, rec.url, now)
	c.mu.Unlock()

	c.log.Info("sending request", "method", rec.method, "url", rec.url,
		"bucket", c.cfg.S3.BucketName, "out_len", len(rec.body))

	ctx, span := c.tracer.Start(ctx, "s3 "+rec.method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", rec.method),
			attribute.String("url.full", rec.url),
			attribute.String("s3.connection", c.id),
			attribute.Int("s3.retries", rec.retries),
			attribute.Int("s3.redirects", rec.redirects),
		))
	resp := client.Do(ctx, &protocol.Request{
		URL:    rec.url,
		Method: rec.method,
		Header: h,
		Body:   rec.body,
	})
	rec.resp = resp

	code := resp.StatusCode
	if resp.Error != nil {
		code = http.StatusInternalServerError
		span.RecordError(resp.Error)
		span.SetStatus(codes.Error, resp.Error.Error())
	} else if !isSuccess(code) && !isRedirect(code) {
		span.SetStatus(codes.Error, http.StatusText(code))
	}
	span.SetAttributes(attribute.Int("http.response.status_code", code))
	span.End()

	stop := c.now()
	failed := resp.Error != nil || (!isSuccess(code) && !isRedirect(code))

	c.mu.Lock()
	c.stats.finish(code, stop, resp.BytesWritten, resp.BytesRead, failed)
	c.latency.RecordValue(resp.Duration.Milliseconds())
	c.mu.Unlock()

	c.recorder.Attempt(rec.method, code, resp.Duration, resp.BytesWritten, resp.BytesRead)

	entry := history.Entry{
		ConnID:   c.id,
		Start:    now,
		Elapsed:  stop.Sub(now),
		Method:   rec.method,
		URL:      rec.url,
		Range:    h.Value("Range"),
		Code:     code,
		Sent:     resp.BytesWritten,
		Received: resp.BytesRead,
	}
	if err := c.history.Add(entry); err != nil {
		c.log.Warn("failed to record history", "err", err)
	}

	c.log.Debug("got HTTP response", "code", code, "msec", resp.Duration.Milliseconds())
	return nil
}
