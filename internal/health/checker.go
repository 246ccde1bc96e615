package health

import (
	"context"
	"sync"
	"time"

	"github.com/inconshreveable/log15"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/logger"
)

// Prober issues one probe request against the bucket.
type Prober interface {
	Probe(ctx context.Context) error
}

// Checker performs periodic health checks on the endpoint.
type Checker struct {
	cfg     config.Health
	prober  Prober
	metrics *Metrics
	log     log15.Logger

	mu      sync.RWMutex
	healthy bool
	lastErr error
	checked time.Time
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewChecker creates a new health checker. metrics may be nil.
func NewChecker(cfg config.Health, prober Prober, metrics *Metrics) *Checker {
	return &Checker{
		cfg:     cfg,
		prober:  prober,
		metrics: metrics,
		log:     logger.New("module", "health"),
		healthy: true,
	}
}

// Start begins periodic health checking. The first probe runs immediately.
func (c *Checker) Start(ctx context.Context) {
	if !c.cfg.Enabled {
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.run(ctx)
}

// run is the main health check loop.
func (c *Checker) run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check runs one probe and records the result.
func (c *Checker) Check(ctx context.Context) bool {
	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	checkCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := c.prober.Probe(checkCtx)
	healthy := err == nil

	c.mu.Lock()
	prev := c.healthy
	c.healthy = healthy
	c.lastErr = err
	c.checked = time.Now()
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetEndpointUp(healthy)
	}

	if prev != healthy {
		if healthy {
			c.log.Info("endpoint is now healthy")
		} else {
			c.log.Warn("endpoint is now unhealthy", "err", err)
		}
	}
	return healthy
}

// IsHealthy returns the last probe result. It is true before any probe.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

// LastError returns the error of the last probe, if any.
func (c *Checker) LastError() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Stop stops the health checker and waits for the loop to exit.
func (c *Checker) Stop() {
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
}
