package pool

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s3conn/internal/config"
	"github.com/s3conn/internal/connection"
	"github.com/s3conn/internal/health"
	"github.com/s3conn/internal/history"
)

func testConfig(t *testing.T, srvURL string, size int) *config.Config {
	t.Helper()
	host, p, err := net.SplitHostPort(strings.TrimPrefix(srvURL, "http://"))
	require.NoError(t, err)
	port, err := strconv.Atoi(p)
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.S3.Host = host
	cfg.S3.Port = port
	cfg.S3.BucketName = "bucket"
	cfg.S3.AccessKeyID = "AKIDEXAMPLE"
	cfg.S3.SecretAccessKey = "secret"
	cfg.Connection.Timeout = 5 * time.Second
	cfg.Connection.Retries = 0
	cfg.Connection.MaxRetries = 2
	cfg.Pool.Size = size
	return cfg
}

func newTestPool(t *testing.T, cfg *config.Config, opts ...Option) *Pool {
	t.Helper()
	p, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { p.Close() })
	return p
}

func TestPool_DoAndProbe(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.URL.Path+" "+r.Header.Get("Range"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 2))
	assert.Equal(t, 2, p.Size())

	resp, err := p.Do(context.Background(), http.MethodGet, "/key", nil, map[string]string{"Range": "bytes=0-9"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, p.Probe(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"GET /bucket/key bytes=0-9", "HEAD /bucket/ "}, seen)
	assert.Equal(t, 0, p.Busy())
}

func TestPool_ProbeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 1))
	err := p.Probe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, connection.ErrRetryExhausted)
}

func TestPool_AcquireBlocksUntilRelease(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 1))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, p.Busy())
	assert.False(t, c.CheckReadiness())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	got := make(chan *connection.Connection, 1)
	go func() {
		c2, err := p.Acquire(context.Background())
		if err == nil {
			got <- c2
		}
	}()

	p.Release(c)
	select {
	case c2 := <-got:
		assert.Equal(t, c.ID(), c2.ID())
		p.Release(c2)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter was not woken by release")
	}
}

func TestPool_DoubleReleaseIsIgnored(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 2))

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(a)
	p.Release(a)
	assert.Equal(t, 1, p.Busy())
	assert.Len(t, p.idle, 1)

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Same(t, a, c)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	p.Release(b)
	p.Release(c)
	assert.Equal(t, 0, p.Busy())
}

func TestPool_ConcurrentRequestsUseDistinctConnections(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
	}))
	defer srv.Close()

	sink := history.NewMemorySink(100)
	p := newTestPool(t, testConfig(t, srv.URL, 3), WithConnectionOptions(connection.WithHistory(sink)))

	var wg sync.WaitGroup
	for i := 0; i < 9; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := p.Do(context.Background(), http.MethodGet, "/obj"+strconv.Itoa(i), nil, nil)
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Equal(t, uint64(9), sink.Total())

	var jobs uint64
	for _, s := range p.Stats() {
		jobs += s.Jobs
	}
	assert.Equal(t, uint64(9), jobs)
}

func TestPool_RedirectMovesSharedEndpoint(t *testing.T) {
	target := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer target.Close()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", target.URL)
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer origin.Close()

	p := newTestPool(t, testConfig(t, origin.URL, 2))
	_, err := p.Do(context.Background(), http.MethodGet, "/key", nil, nil)
	require.NoError(t, err)

	assert.Equal(t, target.URL, p.Endpoint().URL())
	for _, c := range p.conns {
		assert.Same(t, p.Endpoint(), c.Endpoint())
	}
}

func TestPool_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL, 1)
	cfg.Pool.RateLimit = 20
	cfg.Pool.Burst = 1
	p := newTestPool(t, cfg)

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := p.Do(context.Background(), http.MethodGet, "/key", nil, nil)
		require.NoError(t, err)
	}
	// one token up front, then 50ms per request
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func TestPool_Metrics(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	reg := prometheus.NewRegistry()
	m := health.NewMetrics(reg)
	p := newTestPool(t, testConfig(t, srv.URL, 2), WithMetrics(m))

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BusyConnections))
	p.Release(c)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.BusyConnections))

	_, err = p.Do(context.Background(), http.MethodGet, "/key", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ConnectsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("GET", "success")))
}

func TestPool_RenderStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 2))
	_, err := p.Do(context.Background(), http.MethodGet, "/key", nil, nil)
	require.NoError(t, err)

	out := p.RenderStats(connection.TextFormat)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "ID | Current state"))
	assert.Contains(t, out, "GET")
}

func TestPool_CloseUnblocksAcquire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	p := newTestPool(t, testConfig(t, srv.URL, 1))
	_, err := p.Acquire(context.Background())
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := p.Acquire(context.Background())
		errc <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, p.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("Acquire did not return after Close")
	}
}
