// Package connection owns one keep-alive connection to an S3 endpoint and
// drives requests over it through signing, redirects and retries.
package connection

import (
	"crypto/tls"
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
	"github.com/inconshreveable/log15"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/history"
	"github.com/s3conn/internal/logger"
	"github.com/s3conn/pkg/header"
	"github.com/s3conn/pkg/protocol"
	"github.com/s3conn/pkg/s3err"
	"github.com/s3conn/pkg/signer"
)

const tracerName = "github.com/s3conn/internal/connection"

// Recorder receives request instrumentation. health.Metrics implements it.
type Recorder interface {
	RequestStarted(method string)
	RequestFinished(method string, ok bool)
	Attempt(method string, code int, d time.Duration, sent, received int64)
	Retry(method string)
	Redirect(method string)
	Connect()
}

type nopRecorder struct{}

func (nopRecorder) RequestStarted(string)                            {}
func (nopRecorder) RequestFinished(string, bool)                     {}
func (nopRecorder) Attempt(string, int, time.Duration, int64, int64) {}
func (nopRecorder) Retry(string)                                     {}
func (nopRecorder) Redirect(string)                                  {}
func (nopRecorder) Connect()                                         {}

// ClientFactory builds the transport for one connection.
type ClientFactory func(cfg protocol.ClientConfig) (protocol.Client, error)

func defaultClientFactory(cfg protocol.ClientConfig) (protocol.Client, error) {
	return protocol.NewHTTPClient(cfg)
}

// Option configures a Connection.
type Option func(*Connection)

// WithEndpoint shares an endpoint handle between connections so that a
// redirect followed by one moves all of them.
func WithEndpoint(e *config.Endpoint) Option {
	return func(c *Connection) { c.endpoint = e }
}

// WithTLSConfig sets the shared TLS context.
func WithTLSConfig(t *tls.Config) Option {
	return func(c *Connection) { c.tls = t }
}

// WithHistory sets the sink receiving one entry per completed attempt.
func WithHistory(s history.Sink) Option {
	return func(c *Connection) { c.history = s }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Connection) { c.recorder = r }
}

// WithClock overrides the time source used for signing and stats.
func WithClock(now func() time.Time) Option {
	return func(c *Connection) { c.now = now }
}

// WithErrorParser overrides the XML error body parser.
func WithErrorParser(p s3err.Parser) Option {
	return func(c *Connection) { c.parser = p }
}

// WithTracerProvider overrides the global OpenTelemetry provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Connection) { c.tracer = tp.Tracer(tracerName) }
}

// WithClientFactory overrides how transports are built.
func WithClientFactory(f ClientFactory) Option {
	return func(c *Connection) { c.newClient = f }
}

// Connection is one logical transport slot. At most one request runs on it
// at a time; the pool enforces that through Acquire and Release.
type Connection struct {
	id        string
	cfg       *config.Config
	endpoint  *config.Endpoint
	tls       *tls.Config
	signer    signer.Signer
	parser    s3err.Parser
	history   history.Sink
	recorder  Recorder
	tracer    trace.Tracer
	newClient ClientFactory
	now       func() time.Time
	log       log15.Logger

	mu         sync.Mutex
	client     protocol.Client
	staged     *header.Headers
	acquired   bool
	onReleased func(*Connection)
	stats      counters
	latency    *hdrhistogram.Histogram
}

// New allocates a Connection bound to cfg and builds its transport. cfg is
// treated as read-only.
func New(cfg *config.Config, opts ...Option) (*Connection, error) {
	c := &Connection{
		id:  uuid.NewString(),
		cfg: cfg,
		signer: signer.New(cfg.S3.UseAWSV4, signer.Credentials{
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, cfg.S3.BucketName, cfg.S3.Region),
		parser:    s3err.Default,
		history:   history.Discard{},
		recorder:  nopRecorder{},
		tracer:    otel.Tracer(tracerName),
		newClient: defaultClientFactory,
		now:       time.Now,
		staged:    header.New(),
		latency:   hdrhistogram.New(1, int64(10*time.Minute/time.Millisecond), 3),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = logger.New("module", "con", "con", c.id)

	if c.endpoint == nil {
		c.endpoint = config.NewEndpoint(cfg.S3)
	}
	if c.tls == nil {
		t, err := config.NewTLSConfig(cfg.S3)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConnectionInit, err)
		}
		c.tls = t
	}

	if err := c.Init(); err != nil {
		return nil, err
	}
	return c, nil
}

// ID returns the connection's stable identifier.
func (c *Connection) ID() string {
	return c.id
}

// Endpoint returns the endpoint handle the connection dials.
func (c *Connection) Endpoint() *config.Endpoint {
	return c.endpoint
}

// Init (re)builds the transport for the current endpoint. Idle sockets of
// the previous transport are released first.
func (c *Connection) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked()
}

func (c *Connection) initLocked() error {
	if c.client != nil {
		c.client.Close()
		c.client = nil
	}

	addr := c.endpoint.Addr()
	client, err := c.newClient(protocol.ClientConfig{
		Timeout:     c.cfg.Connection.Timeout,
		DialRetries: c.cfg.Connection.Retries,
		TLS:         c.tls,
		HTTP2:       c.cfg.Connection.HTTP2,
		OnClose:     c.onClose,
	})
	if err != nil {
		c.log.Error("failed to create transport", "addr", addr, "err", err)
		return fmt.Errorf("%w: %s: %v", ErrConnectionInit, addr, err)
	}

	c.client = client
	c.stats.connects++
	c.recorder.Connect()
	c.log.Debug("connection initialised", "addr", addr, "ssl", c.endpoint.SSL())
	return nil
}

// onClose fires when a socket of this connection is closed by either side.
// The request in flight, if any, is left to the transport timeout and the
// caller's context.
func (c *Connection) onClose(remote string) {
	c.log.Debug("connection closed", "remote", remote)
}

// Acquire marks the connection busy.
func (c *Connection) Acquire() {
	c.mu.Lock()
	c.acquired = true
	c.mu.Unlock()
	c.log.Debug("connection acquired")
}

// Release marks the connection idle and invokes the release callback once.
// Releasing an idle connection is a no-op.
func (c *Connection) Release() {
	c.mu.Lock()
	if !c.acquired {
		c.mu.Unlock()
		c.log.Warn("release of idle connection ignored")
		return
	}
	c.acquired = false
	cb := c.onReleased
	c.mu.Unlock()

	c.log.Debug("connection released")
	if cb != nil {
		cb(c)
	}
}

// CheckReadiness reports whether the connection can be handed out.
func (c *Connection) CheckReadiness() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.acquired
}

// SetOnReleased registers the pool's release callback.
func (c *Connection) SetOnReleased(fn func(*Connection)) {
	c.mu.Lock()
	c.onReleased = fn
	c.mu.Unlock()
}

// AddOutputHeader stages a header for the next request. Staged headers are
// consumed and cleared when that request starts.
func (c *Connection) AddOutputHeader(key, value string) {
	c.mu.Lock()
	c.staged.Set(key, value)
	c.mu.Unlock()
}

// Close releases the transport.
func (c *Connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Debug("destroying connection")
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
