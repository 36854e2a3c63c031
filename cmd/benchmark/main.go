package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/payconnector/internal/signature"
)

// Benchmark settings
var (
	targetURL   string
	concurrency int
	duration    time.Duration
	workload    string
	accountID   int64
	charges     int
	passphrase  string
)

// Metrics
var (
	totalRequests uint64
	acknowledged  uint64
	forbidden     uint64
	failOther     uint64
)

func main() {
	cmd := &cobra.Command{
		Use:   "benchmark",
		Short: "Replay signed ePDQ capture notifications against the connector",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&targetURL, "url", "http://localhost:8080", "API base URL")
	cmd.Flags().IntVar(&concurrency, "workers", 10, "Number of concurrent workers")
	cmd.Flags().DurationVar(&duration, "duration", 30*time.Second, "Test duration")
	cmd.Flags().StringVar(&workload, "workload", "uniform", "Workload type: uniform | duplicate")
	cmd.Flags().Int64Var(&accountID, "account", 1, "Seeded gateway account id")
	cmd.Flags().IntVar(&charges, "charges", 1000, "Number of seeded charges")
	cmd.Flags().StringVar(&passphrase, "sha-out", "bench-passphrase", "SHA-OUT passphrase of the seeded account")

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting benchmark",
		zap.String("workload", workload),
		zap.Int("workers", concurrency),
		zap.Duration("duration", duration),
	)

	ctx, cancel := context.WithTimeout(ctx, duration)
	defer cancel()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < concurrency; i++ {
		g.Go(func() error { return worker(gctx) })
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return printResults(time.Since(start))
}

func worker(ctx context.Context) error {
	client := &http.Client{Timeout: 5 * time.Second}
	endpoint := targetURL + "/v1/api/notifications/epdq"

	for ctx.Err() == nil {
		body, err := notificationBody(pickCharge())
		if err != nil {
			return err
		}
		req, _ := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := client.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				atomic.AddUint64(&failOther, 1)
			}
			continue
		}

		atomic.AddUint64(&totalRequests, 1)
		switch resp.StatusCode {
		case http.StatusOK:
			atomic.AddUint64(&acknowledged, 1)
		case http.StatusForbidden:
			atomic.AddUint64(&forbidden, 1)
		default:
			atomic.AddUint64(&failOther, 1)
		}
		resp.Body.Close()
	}
	return nil
}

// pickCharge returns a seeded charge index. The duplicate workload sends 90%
// of traffic to the first ten charges, so most notifications are replays.
func pickCharge() int {
	if workload == "duplicate" && rand.Float32() < 0.90 {
		return rand.Intn(min(10, charges)) + 1
	}
	return rand.Intn(charges) + 1
}

func notificationBody(n int) (string, error) {
	fields := []signature.Param{
		{Name: "orderID", Value: fmt.Sprintf("bench-%d", n)},
		{Name: "PAYID", Value: fmt.Sprintf("bench-%d-%d", accountID, n)},
		{Name: "PAYIDSUB", Value: "1"},
		{Name: "STATUS", Value: "9"},
	}
	sig, err := signature.Sign(fields, passphrase)
	if err != nil {
		return "", err
	}
	form := url.Values{}
	for _, f := range fields {
		form.Set(f.Name, f.Value)
	}
	form.Set("SHASIGN", strings.ToUpper(sig))
	return form.Encode(), nil
}

func printResults(d time.Duration) error {
	total := atomic.LoadUint64(&totalRequests)
	ok := atomic.LoadUint64(&acknowledged)
	f403 := atomic.LoadUint64(&forbidden)
	fErr := atomic.LoadUint64(&failOther)

	results := map[string]interface{}{
		"workload":       workload,
		"duration_sec":   d.Seconds(),
		"total_requests": total,
		"throughput_rps": float64(total) / d.Seconds(),
		"acknowledged":   ok,
		"forbidden":      f403,
		"errors":         fErr,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return err
	}

	file, err := os.Create(fmt.Sprintf("results_%s.json", workload))
	if err != nil {
		return err
	}
	defer file.Close()
	return json.NewEncoder(file).Encode(results)
}
