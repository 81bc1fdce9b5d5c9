// Command telemetryd hosts a telemetry engine behind a small chi router. It
// serves the engine's read API, the health endpoints, Prometheus metrics, and a
// few demo routes that generate traffic.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonwraymond/telemetrykit/auth"
	"github.com/jonwraymond/telemetrykit/config"
	"github.com/jonwraymond/telemetrykit/eventlog"
	"github.com/jonwraymond/telemetrykit/health"
	"github.com/jonwraymond/telemetrykit/metrics"
	"github.com/jonwraymond/telemetrykit/observe"
	"github.com/jonwraymond/telemetrykit/observe/exporters"
	"github.com/jonwraymond/telemetrykit/telemetry"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	if err := run(*configPath); err != nil {
		log.Fatalf("telemetryd: %v", err)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig())
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	inst, err := observe.FromObserver(obs)
	if err != nil {
		return fmt.Errorf("init instrumentation: %w", err)
	}
	logger := inst.Logger.WithComponent("telemetryd")

	// The engine's memory check and the standalone heap check share one
	// reader so both report against the same heap total.
	mem := metrics.RuntimeMemory(cfg.Growth.MaxHeapBytes)

	eng, err := telemetry.New(cfg,
		telemetry.WithInstrumentation(inst),
		telemetry.WithMemoryReader(mem),
	)
	if err != nil {
		return err
	}
	eng.Start(ctx)

	if !cfg.Auth.Enabled() {
		logger.Warn(ctx, "telemetry read API is unauthenticated; set auth.api_keys or auth.jwt_secret")
	}
	r := newRouter(cfg, eng, mem, logger)

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info(ctx, "listening", observe.F("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err = <-serveErr:
	case <-ctx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error(shutdownCtx, "http shutdown failed", observe.F("error", serr))
	}
	if cerr := eng.Close(shutdownCtx); cerr != nil {
		logger.Error(shutdownCtx, "telemetry close failed", observe.F("error", cerr))
	}
	logger.Info(shutdownCtx, "shutdown complete")
	return err
}

// newRouter serves the engine's read API, guarded when auth is configured,
// next to the unauthenticated health endpoints, /metrics and the demo routes.
func newRouter(cfg config.Config, eng *telemetry.Engine, mem metrics.MemoryReader, logger observe.Logger) chi.Router {
	checks := health.NewAggregator()
	checks.Register("telemetry", eng.Checker())
	checks.Register("heap", health.NewMemoryChecker(health.MemoryCheckerConfig{
		Threshold: cfg.Health.Memory,
		Memory:    mem,
	}))

	r := chi.NewRouter()
	r.Use(eng.Middleware)

	r.Group(func(r chi.Router) {
		if guard := auth.New(cfg.Auth); guard != nil {
			r.Use(auth.Middleware(guard, logger))
		}
		eng.Mount(r)
	})

	health.RegisterHandlers(r, checks)
	r.Handle("/metrics", promhttp.HandlerFor(exporters.PrometheusRegistry, promhttp.HandlerOpts{}))
	demoRoutes(r, eng)
	return r
}

// demoRoutes registers endpoints that produce each kind of event.
func demoRoutes(r chi.Router, eng *telemetry.Engine) {
	r.Route("/demo", func(r chi.Router) {
		r.Get("/hello/{name}", func(w http.ResponseWriter, r *http.Request) {
			_, _ = fmt.Fprintf(w, "hello, %s\n", chi.URLParam(r, "name"))
		})

		r.Get("/work/{ms}", func(w http.ResponseWriter, r *http.Request) {
			ms, err := strconv.Atoi(chi.URLParam(r, "ms"))
			if err != nil || ms < 0 {
				http.Error(w, "ms must be a non-negative integer", http.StatusBadRequest)
				return
			}
			start := time.Now()
			select {
			case <-time.After(time.Duration(ms) * time.Millisecond):
			case <-r.Context().Done():
			}
			eng.RecordPerformance(r.Context(), eventlog.PerformanceEvent{
				Operation: "demo.work",
				Duration:  time.Since(start),
				Details:   map[string]any{"request_id": telemetry.RequestID(r.Context())},
			})
			w.WriteHeader(http.StatusNoContent)
		})

		r.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
			eng.RecordError(r.Context(), eventlog.ErrorEvent{
				Err:     errors.New("demo failure"),
				Context: map[string]any{"request_id": telemetry.RequestID(r.Context())},
			})
			http.Error(w, "demo failure", http.StatusInternalServerError)
		})

		r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
			panic("demo panic")
		})
	})
}
