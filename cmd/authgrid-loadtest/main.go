package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	authgrid "github.com/authgrid/authgrid"
	"github.com/authgrid/authgrid/credstore"
	"github.com/authgrid/authgrid/directory"
	promexport "github.com/authgrid/authgrid/metrics/export/prometheus"
)

type accountState struct {
	email    string
	password string
	access   string
	refresh  string
}

func main() {
	var (
		accounts    = flag.Int("accounts", 2000, "number of accounts to seed via signup")
		concurrency = flag.Int("concurrency", 64, "number of concurrent workers")
		ops         = flag.Int("ops", 20000, "operations per phase (login + validate + refresh)")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "ag", "redis key prefix")
		showMetrics = flag.Bool("metrics", false, "print the prometheus exposition after the run")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{addr},
		})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	engine, err := authgrid.New().
		WithConfig(loadtestConfig(*prefix)).
		WithRedis(client).
		WithCredentialStore(credstore.New(client, *prefix+":cred")).
		WithProjectDirectory(directory.New(client, *prefix+":dir")).
		WithMetricsEnabled(true).
		WithLatencyHistograms(true).
		Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine build failed: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	scope := authgrid.PlatformScope()

	states := make([]accountState, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	for i := range states {
		email := fmt.Sprintf("load-%d@example.com", i)
		password := fmt.Sprintf("load-pass-%d-secret", i)
		result, err := engine.Signup(ctx, scope, authgrid.SignupRequest{
			Email:    email,
			Password: password,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "seed signup failed: %v\n", err)
			os.Exit(1)
		}
		states[i] = accountState{
			email:    email,
			password: password,
			access:   result.Tokens.AccessToken,
			refresh:  result.Tokens.RefreshToken,
		}
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	loginStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		_, err := engine.Login(ctx, scope, state.email, state.password)
		return err
	})
	validateStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		_, err := engine.ValidateAccess(ctx, state.access)
		return err
	})
	refreshStats := runPhase(*ops, *concurrency, func(r *rand.Rand) error {
		state := &states[r.Intn(len(states))]
		_, err := engine.Refresh(ctx, state.refresh)
		return err
	})

	fmt.Println("---- results ----")
	printStats("login", loginStats)
	printStats("validate", validateStats)
	printStats("refresh", refreshStats)

	if *showMetrics {
		fmt.Println("---- metrics ----")
		fmt.Print(promexport.NewPrometheusExporter(engine).Render())
	}
}

// loadtestConfig trades argon2 cost for throughput and lifts the session cap
// so the login phase cannot evict the seeded refresh tokens.
func loadtestConfig(prefix string) authgrid.Config {
	return authgrid.Config{
		Token: authgrid.TokenConfig{
			AccessSecret:      []byte("loadtest-access-secret-0123456789abcdef"),
			RefreshSecret:     []byte("loadtest-refresh-secret-0123456789abcde"),
			Issuer:            "authgrid-loadtest",
			Audience:          "authgrid-loadtest",
			Leeway:            30 * time.Second,
			PlatformAccessTTL: time.Hour,
			RefreshTTL:        24 * time.Hour,
		},
		Session: authgrid.SessionConfig{
			RedisPrefix: prefix,
		},
		Password: authgrid.PasswordConfig{
			Memory:      8192,
			Time:        1,
			Parallelism: 1,
			SaltLength:  16,
			KeyLength:   32,
		},
		PasswordReset: authgrid.PasswordResetConfig{
			TTL:         time.Hour,
			MaxAttempts: 5,
		},
		EmailVerification: authgrid.EmailVerificationConfig{
			TTL:         24 * time.Hour,
			MaxAttempts: 5,
		},
		Audit: authgrid.AuditConfig{
			BufferSize: 1024,
			DropIfFull: true,
		},
		Mail: authgrid.MailConfig{
			BufferSize:  256,
			SendTimeout: 10 * time.Second,
		},
		PlatformPolicy: authgrid.Policy{
			AllowSignup:          true,
			MinPasswordLength:    8,
			MaxLoginAttempts:     5,
			LockoutDuration:      15 * time.Minute,
			EnableAccountLocking: false,
			SessionTimeout:       time.Hour,
			MaxSessions:          0,
		},
		LoginHistoryLimit: 10,
	}
}

func runPhase(ops, concurrency int, op func(r *rand.Rand) error) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w := 0; w < concurrency; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				t0 := time.Now()
				err := op(r)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	idx := (len(samples) - 1) * p / 100
	return samples[idx]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
