package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/punchamoorthee/payconnector/internal/api"
	"github.com/punchamoorthee/payconnector/internal/capture"
	"github.com/punchamoorthee/payconnector/internal/config"
	"github.com/punchamoorthee/payconnector/internal/gateway"
	"github.com/punchamoorthee/payconnector/internal/gateway/epdq"
	"github.com/punchamoorthee/payconnector/internal/gateway/stripe"
	"github.com/punchamoorthee/payconnector/internal/gateway/worldpay"
	"github.com/punchamoorthee/payconnector/internal/notification"
	"github.com/punchamoorthee/payconnector/internal/service"
	"github.com/punchamoorthee/payconnector/internal/store"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "connector",
		Short: "Payment gateway connector",
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML config file")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and run the capture processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, true)
		},
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "capture-worker",
		Short: "Run only the capture processor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), configPath, false)
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type app struct {
	store     *store.Store
	charges   *service.ChargeService
	processor *capture.Processor
	notifier  *notification.Service
}

func run(ctx context.Context, configPath string, serveHTTP bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		return err
	}
	defer logger.Sync()

	a, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.store.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.processor.Run(gctx) })
	if serveHTTP {
		g.Go(func() error { return serve(gctx, cfg, a, logger) })
	}
	return g.Wait()
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

func build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := store.NewStore(ctx, cfg.DBSource)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	registry := gateway.NewRegistry(
		epdq.New(epdq.Config{
			BaseURL:     cfg.EPDQ.BaseURL,
			FrontendURL: cfg.EPDQ.FrontendURL,
			Timeout:     cfg.EPDQ.Timeout,
		}, logger),
		worldpay.New(worldpay.Config{
			URL:     cfg.Worldpay.URL,
			Timeout: cfg.Worldpay.Timeout,
		}, logger),
		stripe.New(stripe.Config{
			BaseURL:       cfg.Stripe.BaseURL,
			SecretKey:     cfg.Stripe.SecretKey,
			FrontendURL:   cfg.Stripe.FrontendURL,
			WebhookSecret: cfg.Stripe.WebhookSecret,
			Timeout:       cfg.Stripe.Timeout,
		}, logger),
	)

	queue := capture.NewPostgresQueue(db.Db, cfg.Capture.Visibility)
	charges := service.NewChargeService(db, registry, queue, service.Config{
		AuthorisationTimeout: cfg.AuthorisationTimeout,
		MaxConflictRetries:   cfg.MaxConflictRetries,
	}, logger)

	allow, err := notification.NewAllowList(cfg.NotificationRanges)
	if err != nil {
		db.Close()
		return nil, err
	}
	notifier := notification.NewService(notification.Deps{
		Parsers:  registry.Parsers(),
		Allow:    allow,
		Charges:  db,
		Accounts: db,
		ChargeTx: charges,
		RefundTx: charges,
	}, logger)

	processor := capture.NewProcessor(queue, charges, capture.ProcessorConfig{
		BatchSize:    cfg.Capture.BatchSize,
		Workers:      cfg.Capture.Workers,
		PollInterval: cfg.Capture.PollInterval,
		Retry: capture.RetryPolicy{
			MaxAttempts: cfg.Capture.MaxAttempts,
			BaseDelay:   cfg.Capture.BaseDelay,
			MaxDelay:    cfg.Capture.MaxDelay,
		},
	}, logger)

	return &app{store: db, charges: charges, processor: processor, notifier: notifier}, nil
}

func serve(ctx context.Context, cfg *config.Config, a *app, logger *zap.Logger) error {
	handler := api.NewHandler(a.charges, a.store, a.notifier, logger)

	// Router
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := a.store.Db.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})
	handler.Routes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	logger.Info("server starting", zap.String("port", cfg.Port), zap.String("env", cfg.Env))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
