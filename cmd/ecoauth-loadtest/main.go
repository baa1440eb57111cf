// Command ecoauth-loadtest measures refresh coalescing under load.
//
// It starts the reference backend and signs in, then runs waves: each wave
// invalidates every access token and fires -callers concurrent authenticated
// calls through one Manager. A healthy client performs exactly one refresh per
// wave no matter how many callers were rejected.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ecochallenge/ecoauth"
	"github.com/ecochallenge/ecoauth/credstore"
	"github.com/ecochallenge/ecoauth/internal/devserver"
)

const (
	loadEmail    = "load@example.com"
	loadPassword = "load-test-password"
)

func main() {
	var (
		callers   = flag.Int("callers", 256, "concurrent calls per wave")
		waves     = flag.Int("waves", 5, "number of expiry waves")
		latency   = flag.Duration("refresh-latency", 20*time.Millisecond, "artificial delay on the refresh endpoint")
		rotate    = flag.Bool("rotate", true, "rotate refresh tokens")
		redisAddr = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
	)
	flag.Parse()

	if *callers <= 0 || *waves <= 0 {
		fmt.Fprintln(os.Stderr, "callers and waves must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}
	client, stop, err := openRedis(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "redis: %v\n", err)
		os.Exit(1)
	}
	defer stop()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	dev, err := devserver.New(devserver.Config{
		Redis:          client,
		KeyPrefix:      fmt.Sprintf("loadtest-%d", time.Now().UnixNano()),
		RotateRefresh:  *rotate,
		RefreshLatency: *latency,
		Logger:         quiet,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "devserver: %v\n", err)
		os.Exit(1)
	}
	if _, err := dev.CreateUser("load", loadEmail, loadPassword, ""); err != nil {
		fmt.Fprintf(os.Stderr, "seed user: %v\n", err)
		os.Exit(1)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	httpSrv := &http.Server{Handler: dev.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() { _ = httpSrv.Serve(ln) }()
	defer httpSrv.Close()

	cfg := ecoauth.DefaultConfig()
	cfg.BaseURL = "http://" + ln.Addr().String()
	cfg.Store.Backend = credstore.BackendMemory
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = *callers

	m, err := ecoauth.New().
		WithConfig(cfg).
		WithStore(credstore.NewMemory()).
		WithHTTPClient(&http.Client{Transport: transport}).
		WithLogger(quiet).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "manager: %v\n", err)
		os.Exit(1)
	}
	defer m.Close()

	if _, err := m.Login(ctx, loadEmail, loadPassword); err != nil {
		fmt.Fprintf(os.Stderr, "login: %v\n", err)
		os.Exit(1)
	}

	healthy := true
	for w := 1; w <= *waves; w++ {
		before := dev.RefreshCalls()
		dev.ExpireAccessTokens()
		stats := runWave(ctx, m, *callers)
		refreshes := dev.RefreshCalls() - before
		if refreshes != 1 || stats.failures > 0 {
			healthy = false
		}
		printStats(fmt.Sprintf("wave %d", w), refreshes, stats)
	}

	snap := m.MetricsSnapshot()
	fmt.Println("---- manager counters ----")
	for _, c := range []struct {
		name string
		id   ecoauth.MetricID
	}{
		{"fetch", ecoauth.MetricFetchTotal},
		{"fetch_unauthorized", ecoauth.MetricFetchUnauthorized},
		{"fetch_retry", ecoauth.MetricFetchRetry},
		{"refresh_success", ecoauth.MetricRefreshSuccess},
		{"refresh_shared", ecoauth.MetricRefreshShared},
		{"refresh_skipped", ecoauth.MetricRefreshSkipped},
		{"refresh_rotated", ecoauth.MetricRefreshRotated},
	} {
		fmt.Printf("%-20s %d\n", c.name, snap.Counters[c.id])
	}

	if !healthy {
		fmt.Fprintln(os.Stderr, "FAIL: expected exactly one refresh and no failures per wave")
		os.Exit(1)
	}
}

type waveStats struct {
	total    time.Duration
	calls    int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
}

func runWave(ctx context.Context, m *ecoauth.Manager, callers int) waveStats {
	var (
		wg        sync.WaitGroup
		failures  atomic.Int64
		latencies = make([]time.Duration, callers)
		start     = make(chan struct{})
	)

	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			t0 := time.Now()
			resp, err := m.AuthenticatedFetch(ctx, "/api/auth/test-protected/", nil)
			latencies[i] = time.Since(t0)
			if err == nil && !resp.OK() {
				err = fmt.Errorf("status %d", resp.StatusCode)
			}
			if err != nil {
				failures.Add(1)
			}
		}()
	}

	began := time.Now()
	close(start)
	wg.Wait()
	total := time.Since(began)

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	return waveStats{
		total:    total,
		calls:    len(latencies),
		failures: failures.Load(),
		p50:      percentile(latencies, 50),
		p95:      percentile(latencies, 95),
		p99:      percentile(latencies, 99),
	}
}

// percentile expects sorted samples and uses nearest-rank on [0, len-1].
func percentile(sorted []time.Duration, p int) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	p = min(max(p, 0), 100)
	return sorted[(len(sorted)-1)*p/100]
}

// openRedis dials addr, or an in-process miniredis when addr is empty.
func openRedis(addr string) (redis.UniversalClient, func(), error) {
	var mr *miniredis.Miniredis
	if addr == "" {
		var err error
		if mr, err = miniredis.Run(); err != nil {
			return nil, nil, fmt.Errorf("start miniredis: %w", err)
		}
		addr = mr.Addr()
	}
	fmt.Printf("redis at %s (embedded=%t)\n", addr, mr != nil)

	client := redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
	return client, func() {
		_ = client.Close()
		if mr != nil {
			mr.Close()
		}
	}, nil
}

func printStats(name string, refreshes int64, s waveStats) {
	fmt.Printf("%s: calls=%d failures=%d refreshes=%d total=%s p50=%s p95=%s p99=%s\n",
		name,
		s.calls,
		s.failures,
		refreshes,
		s.total.Round(time.Millisecond),
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
