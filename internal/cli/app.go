package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/s3conn/internal/connection"
	"github.com/s3conn/internal/health"
	"github.com/s3conn/internal/history"
	"github.com/s3conn/internal/logger"
	"github.com/s3conn/internal/pool"
)

// app bundles the pieces every network command needs.
type app struct {
	pool    *pool.Pool
	history history.Sink
	metrics *health.Metrics
	reg     *prometheus.Registry
	server  *health.Server
	closers []func() error
}

// newApp builds the history sink, metrics and pool from cfg. size overrides
// the configured pool size when positive.
func newApp(size int) (*app, error) {
	a := &app{reg: prometheus.NewRegistry()}
	a.metrics = health.NewMetrics(a.reg)

	if cfg.History.Path != "" {
		sink, err := history.NewBoltSink(cfg.History.Path, cfg.History.Capacity)
		if err != nil {
			return nil, err
		}
		a.history = sink
		a.closers = append(a.closers, sink.Close)
	} else {
		a.history = history.NewMemorySink(cfg.History.Capacity)
	}

	if size > 0 {
		cfg.Pool.Size = size
	}
	p, err := pool.New(cfg,
		pool.WithMetrics(a.metrics),
		pool.WithConnectionOptions(connection.WithHistory(a.history)),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.pool = p
	a.closers = append([]func() error{p.Close}, a.closers...)
	return a, nil
}

// serveMetrics starts the metrics server when enabled.
func (a *app) serveMetrics(checker *health.Checker) {
	if !cfg.Metrics.Enabled {
		return
	}
	a.server = health.NewServer(cfg.Metrics, a.reg, checker)
	go func() {
		if err := a.server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.New("module", "cli").Error("metrics server failed", "err", err)
		}
	}()
}

func (a *app) close() error {
	var errs []error
	if a.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.server.Stop(ctx))
		cancel()
	}
	for _, fn := range a.closers {
		errs = append(errs, fn())
	}
	return errors.Join(errs...)
}
