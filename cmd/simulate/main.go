package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"token-curve-engine/internal/config"
	"token-curve-engine/internal/engine"
	"token-curve-engine/internal/logger"
	"token-curve-engine/internal/observability"
	"token-curve-engine/internal/scenario"
	"token-curve-engine/internal/scheduler"
)

type options struct {
	scenarioPath   string
	candleInterval int64
	candleLimit    int
	serve          bool
	jsonOutput     bool
}

func main() {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
		os.Exit(1)
	}

	configPath := flag.String("config", os.Getenv("CURVE_ENGINE_CONFIG"), "Path to the YAML config file (optional)")
	scenarioPath := flag.String("scenario", "", "Scenario YAML to run against the engine")
	candleInterval := flag.Int64("candle-interval", 60, "Candle interval in seconds for the summary")
	candleLimit := flag.Int("candle-limit", 10, "Number of most recent candles to print per instrument")
	serve := flag.Bool("serve", false, "Keep serving /metrics and running the snapshot job until interrupted")
	jsonOutput := flag.Bool("json", false, "Output the summary as JSON")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := options{
		scenarioPath:   *scenarioPath,
		candleInterval: *candleInterval,
		candleLimit:    *candleLimit,
		serve:          *serve,
		jsonOutput:     *jsonOutput,
	}
	if err := run(ctx, cfg, opts, log); err != nil {
		log.Error("simulate failed", zap.Error(err))
		logger.Sync(log)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts options, log *zap.Logger) error {
	stores, err := openStorage(ctx, cfg.Storage, log)
	if err != nil {
		return err
	}
	defer stores.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(cfg.Metrics.Namespace, reg)

	clock := newVirtualClock()
	ctrl, err := engine.New(engine.Options{
		Store:   stores.store,
		Archive: stores.archive,
		Params:  cfg.CurveParams(),
		Fees:    cfg.FeePolicy(),
		Logger:  log.Named("engine"),
		Metrics: metrics,
		Now:     clock.Now,
	})
	if err != nil {
		return err
	}

	end := logger.TrackPerformance(log, "restore")
	restored, err := ctrl.Restore(ctx)
	end()
	if err != nil {
		return fmt.Errorf("restore: %w", err)
	}
	log.Info("engine ready",
		zap.String("driver", cfg.Storage.Driver),
		zap.Bool("archive", stores.archive != nil),
		zap.Int("instruments", restored),
	)

	var report *scenario.Report
	if opts.scenarioPath != "" {
		sc, err := scenario.Load(opts.scenarioPath)
		if err != nil {
			return err
		}
		runner := scenario.NewRunner(ctrl, scenario.Options{
			TokenDecimals: cfg.Curve.TokenDecimals,
			SolDecimals:   cfg.Curve.SolDecimals,
			Advance:       clock.Advance,
			Logger:        logger.WithOperation(log, "scenario"),
		})
		report, err = runner.Run(ctx, sc)
		if err != nil {
			return fmt.Errorf("scenario %s: %w", sc.Name, err)
		}
	}

	sum, err := summarize(ctx, ctrl, report, opts.candleInterval, opts.candleLimit)
	if err != nil {
		return err
	}
	if err := printSummary(os.Stdout, sum, opts.jsonOutput); err != nil {
		return err
	}

	if !opts.serve {
		return nil
	}
	return serve(ctx, cfg, ctrl, metrics, reg, log)
}

// serve exposes /metrics and runs the snapshot scheduler until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, ctrl *engine.Controller, metrics *observability.Metrics, reg *prometheus.Registry, log *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	sched := scheduler.New(gctx, ctrl, metrics, log.Named("scheduler"))
	if cfg.Scheduler.SnapshotCron != "" {
		if err := sched.Register(cfg.Scheduler.SnapshotCron); err != nil {
			return err
		}
	}
	sched.Snapshot(gctx)
	sched.Start()
	g.Go(func() error {
		<-gctx.Done()
		sched.Stop()
		return nil
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: newMux(reg), ReadHeaderTimeout: 5 * time.Second}

		g.Go(func() error {
			log.Info("metrics server listening", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	log.Info("serving until interrupted")
	return g.Wait()
}

// newMux routes /metrics to reg and answers /health.
func newMux(reg prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.HandlerFor(reg))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "ok")
	})
	return mux
}
