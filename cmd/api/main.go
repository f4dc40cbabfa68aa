package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/net/netutil"

	httpadapter "github.com/mkravets/docveil/internal/adapters/http"
	"github.com/mkravets/docveil/internal/bootstrap"
	"github.com/mkravets/docveil/internal/config"
	"github.com/mkravets/docveil/internal/observability/logging"
	"github.com/mkravets/docveil/internal/observability/metrics"
)

// The ingestion worker runs inside the API process: session state (the PII
// mapping store and the session's vector index) is process-local and is
// never persisted, so documents must be processed where their session lives.
// NATS still decouples upload from processing and buffers bursts.
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger := logging.NewJSONLogger("api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap error", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("api")
	go runIngestionWorker(ctx, app, workerMetrics)
	go serveWorkerMetrics(ctx, cfg.WorkerMetricsPort, workerMetrics)

	router := httpadapter.NewRouter(
		app.Sessions,
		app.IngestUC,
		app.Repo,
		metrics.NewHTTPServerMetrics("api"),
		cfg,
	).Handler()

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", ":"+cfg.APIPort)
	if err != nil {
		slog.Error("api listen error", "error", err)
		os.Exit(1)
	}
	if cfg.APIMaxConns > 0 {
		listener = netutil.LimitListener(listener, cfg.APIMaxConns)
	}

	go func() {
		slog.Info("api listening", "port", cfg.APIPort)
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			slog.Error("api server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("api shutdown error", "error", err)
	}
}

func runIngestionWorker(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics) {
	slog.Info("ingestion worker subscribed", "subject", app.Config.NATSSubject)
	err := app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 5*time.Minute)
		defer cancel()

		if doc, err := app.Repo.GetByID(processCtx, documentID); err == nil {
			workerMetrics.ObserveQueueLag("api", time.Since(doc.CreatedAt))
		}

		workerMetrics.StartDocument()
		start := time.Now()
		err := app.ProcessUC.ProcessByID(processCtx, documentID)
		workerMetrics.FinishDocument("api", time.Since(start), err)
		return err
	})
	if err != nil && ctx.Err() == nil {
		slog.Error("ingestion worker subscribe error", "error", err)
	}
}

func serveWorkerMetrics(ctx context.Context, port string, workerMetrics *metrics.WorkerMetrics) {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())

	server := &http.Server{
		Addr:        ":" + port,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("worker metrics server error", "error", err)
	}
}
