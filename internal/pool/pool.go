// Package pool hands out connections to callers one request at a time.
package pool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/inconshreveable/log15"
	"golang.org/x/time/rate"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/connection"
	"github.com/s3conn/internal/health"
	"github.com/s3conn/internal/logger"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("pool closed")

// Option configures a Pool.
type Option func(*Pool)

// WithMetrics records busy connections and passes m to every connection as
// its recorder.
func WithMetrics(m *health.Metrics) Option {
	return func(p *Pool) {
		p.metrics = m
		p.connOpts = append(p.connOpts, connection.WithRecorder(m))
	}
}

// WithConnectionOptions adds options applied to every connection.
func WithConnectionOptions(opts ...connection.Option) Option {
	return func(p *Pool) { p.connOpts = append(p.connOpts, opts...) }
}

// Pool owns a fixed set of connections sharing one endpoint and TLS
// context, so a redirect followed on any of them moves all of them.
type Pool struct {
	cfg      *config.Config
	endpoint *config.Endpoint
	conns    []*connection.Connection
	idle     chan *connection.Connection
	limiter  *rate.Limiter
	metrics  *health.Metrics
	connOpts []connection.Option
	busy     int64
	log      log15.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates cfg.Pool.Size connections.
func New(cfg *config.Config, opts ...Option) (*Pool, error) {
	limit := rate.Inf
	if cfg.Pool.RateLimit > 0 {
		limit = rate.Limit(cfg.Pool.RateLimit)
	}
	burst := cfg.Pool.Burst
	if burst <= 0 {
		burst = 1
	}

	p := &Pool{
		cfg:      cfg,
		endpoint: config.NewEndpoint(cfg.S3),
		idle:     make(chan *connection.Connection, cfg.Pool.Size),
		limiter:  rate.NewLimiter(limit, burst),
		log:      logger.New("module", "pool"),
		closed:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}

	tlsCfg, err := config.NewTLSConfig(cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", connection.ErrConnectionInit, err)
	}

	connOpts := append([]connection.Option{
		connection.WithEndpoint(p.endpoint),
		connection.WithTLSConfig(tlsCfg),
	}, p.connOpts...)

	for i := 0; i < cfg.Pool.Size; i++ {
		c, err := connection.New(cfg, connOpts...)
		if err != nil {
			p.Close()
			return nil, err
		}
		c.SetOnReleased(p.onReleased)
		p.conns = append(p.conns, c)
		p.idle <- c
	}

	p.log.Info("pool started", "size", cfg.Pool.Size, "endpoint", p.endpoint.URL(), "rate_limit", cfg.Pool.RateLimit)
	return p, nil
}

func (p *Pool) onReleased(c *connection.Connection) {
	p.setBusy(atomic.AddInt64(&p.busy, -1))
	select {
	case p.idle <- c:
	default:
		// every slot is already queued
		p.log.Warn("idle queue full", "con", c.ID())
	}
}

func (p *Pool) setBusy(n int64) {
	if p.metrics != nil {
		p.metrics.SetBusyConnections(int(n))
	}
}

// Acquire waits for the rate limiter and a ready connection.
func (p *Pool) Acquire(ctx context.Context) (*connection.Connection, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	for {
		select {
		case <-p.closed:
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		case c := <-p.idle:
			if !c.CheckReadiness() {
				continue
			}
			c.Acquire()
			p.setBusy(atomic.AddInt64(&p.busy, 1))
			return c, nil
		}
	}
}

// Release returns c to the pool.
func (p *Pool) Release(c *connection.Connection) {
	c.Release()
}

// Do runs one request on a pooled connection with retries enabled. hdr is
// staged on the connection before the request starts.
func (p *Pool) Do(ctx context.Context, method, path string, body []byte, hdr map[string]string) (*connection.Response, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(c)

	for k, v := range hdr {
		c.AddOutputHeader(k, v)
	}
	return c.Do(ctx, path, method, body, true)
}

// Probe issues a HEAD on the bucket root. It satisfies health.Prober.
func (p *Pool) Probe(ctx context.Context) error {
	_, err := p.Do(ctx, http.MethodHead, "/", nil, nil)
	return err
}

// Endpoint returns the shared endpoint.
func (p *Pool) Endpoint() *config.Endpoint {
	return p.endpoint
}

// Size returns the number of connections.
func (p *Pool) Size() int {
	return len(p.conns)
}

// Busy returns the number of acquired connections.
func (p *Pool) Busy() int {
	return int(atomic.LoadInt64(&p.busy))
}

// Stats returns a snapshot of every connection.
func (p *Pool) Stats() []connection.Stats {
	out := make([]connection.Stats, 0, len(p.conns))
	for _, c := range p.conns {
		out = append(out, c.Stats())
	}
	return out
}

// RenderStats writes the caption and one row per connection.
func (p *Pool) RenderStats(f connection.PrintFormat) string {
	var b strings.Builder
	connection.WriteStatsCaption(&b, f)
	for _, c := range p.conns {
		c.WriteStatsRow(&b, f)
	}
	return b.String()
}

// Close closes every connection. Waiting Acquire calls return ErrClosed.
func (p *Pool) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		close(p.closed)
		for _, c := range p.conns {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		p.log.Info("pool closed")
	})
	return errors.Join(errs...)
}
