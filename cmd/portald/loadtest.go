package main

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	portalAuth "github.com/MrEthical07/portalAuth"
	"github.com/MrEthical07/portalAuth/password"
	"github.com/MrEthical07/portalAuth/provider/redisprovider"
	"github.com/spf13/cobra"
)

const loadtestPassword = "loadtest-password"

type loadtestFlags struct {
	accounts    int
	devices     int
	concurrency int
	ops         int
	memoryKB    uint32
}

func newLoadtestCmd(g *globalFlags) *cobra.Command {
	f := &loadtestFlags{}
	cmd := &cobra.Command{
		Use:   "loadtest",
		Short: "Measure sign-in and session-restore latency against the configured Redis",
		Long: `loadtest seeds accounts, signs them in on many devices and then restores sessions
from random devices, reporting latency percentiles for each phase. With --dev it
runs against an embedded Redis.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.accounts <= 0 || f.devices <= 0 || f.concurrency <= 0 || f.ops <= 0 {
				return fmt.Errorf("accounts, devices, concurrency and ops must be > 0")
			}
			cfg, logger, err := g.load()
			if err != nil {
				return err
			}
			in, err := openInfra(cmd.Context(), cfg, logger, func(rc *redisprovider.Config) {
				rc.Password = password.Config{
					Memory:      f.memoryKB,
					Time:        1,
					Parallelism: 1,
					SaltLength:  16,
					KeyLength:   32,
				}
				rc.Rate.MaxLoginFailures = 0
				rc.Rate.MaxSignups = 0
			})
			if err != nil {
				return err
			}
			defer in.close()
			return runLoadtest(cmd.Context(), cmd.OutOrStdout(), in.backend, f)
		},
	}
	cmd.Flags().IntVar(&f.accounts, "accounts", 200, "number of accounts to seed")
	cmd.Flags().IntVar(&f.devices, "devices", 1000, "number of device keys to sign in")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 64, "number of concurrent workers")
	cmd.Flags().IntVar(&f.ops, "ops", 20000, "session restores in the restore phase")
	cmd.Flags().Uint32Var(&f.memoryKB, "argon-memory-kb", 8*1024, "argon2id memory for seeded accounts")
	return cmd
}

func runLoadtest(ctx context.Context, out io.Writer, backend *redisprovider.Backend, f *loadtestFlags) error {
	run := strconv.FormatInt(time.Now().UnixNano(), 36)
	emails := make([]string, f.accounts)

	fmt.Fprintf(out, "seeding %d accounts...\n", f.accounts)
	startSeed := time.Now()
	for i := range emails {
		emails[i] = fmt.Sprintf("load-%s-%d@campus.test", run, i)
		role := portalAuth.Roles()[i%len(portalAuth.Roles())]
		if _, err := backend.CreateAccount(ctx, emails[i], loadtestPassword, portalAuth.SignUpAttributes{
			DisplayName: "Load " + strconv.Itoa(i),
			Role:        role,
		}); err != nil {
			return fmt.Errorf("seed account %d: %w", i, err)
		}
	}
	fmt.Fprintf(out, "seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	devices := make([]string, f.devices)
	for i := range devices {
		devices[i] = fmt.Sprintf("load-%s-dev-%d", run, i)
	}

	signIn := runPhase(f.devices, f.concurrency, func(i int, _ *rand.Rand) error {
		_, err := backend.Client(devices[i]).SignInWithPassword(ctx, emails[i%len(emails)], loadtestPassword)
		return err
	})
	restore := runPhase(f.ops, f.concurrency, func(_ int, r *rand.Rand) error {
		id, err := backend.Client(devices[r.Intn(len(devices))]).GetSession(ctx)
		if err == nil && id == nil {
			return fmt.Errorf("session missing")
		}
		return err
	})

	fmt.Fprintln(out, "---- results ----")
	printStats(out, "sign-in", signIn)
	printStats(out, "restore", restore)
	return nil
}

// runPhase runs op ops times across concurrency workers and collects latencies.
func runPhase(ops, concurrency int, op func(i int, r *rand.Rand) error) phaseStats {
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
				err := op(i, r)
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
	return computeStats(time.Since(start), latencies, failures)
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
	return samples[(len(samples)-1)*p/100]
}

func printStats(out io.Writer, name string, s phaseStats) {
	fmt.Fprintf(out, "%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
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
