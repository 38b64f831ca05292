package main

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"tracceaqua/internal/adapters/records"
	"tracceaqua/internal/blob"
	"tracceaqua/internal/core"
)

const shutdownGrace = 10 * time.Second

// server bundles the HTTP handler with the resources it owns.
type server struct {
	handler http.Handler
	close   func(ctx context.Context) error
}

func (a *app) serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the records API, batch exports and metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runServe(cmd.Context())
		},
	}
}

func (a *app) buildServer(ctx context.Context) (*server, error) {
	store, err := core.OpenRecordStore(ctx, a.cfg.StorageConfig())
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}
	blobs, err := blob.Open(ctx, a.cfg.BlobConfig())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("open blob store: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promMetrics, err := core.NewPrometheusMetricsRecorder(registry)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("register metrics: %w", err)
	}
	metrics := core.MultiMetricsRecorder{promMetrics, core.NewExpvarMetricsRecorder("")}

	svc := core.NewService(core.StoreFetcher{Store: store},
		core.WithLogger(a.logger.Named("batches")),
		core.WithMetrics(metrics),
	)
	worker := records.NewWorker(svc, blobs, records.ZapAuditLog{Logger: a.logger.Named("audit")}, a.logger.Named("exports"))
	worker.Start()

	api := records.NewHandler(store)
	api.Batches = svc
	api.Exports = worker
	api.Logger = a.logger.Named("api")

	mux := http.NewServeMux()
	mux.Handle("/api/", api)
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/debug/vars", expvar.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return &server{
		handler: mux,
		close: func(ctx context.Context) error {
			return errors.Join(worker.Stop(ctx), store.Close())
		},
	}, nil
}

func (a *app) runServe(ctx context.Context) error {
	srv, err := a.buildServer(ctx)
	if err != nil {
		return err
	}
	listener, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		_ = srv.close(context.Background())
		return fmt.Errorf("listen %s: %w", a.cfg.Server.ListenAddr, err)
	}
	httpServer := &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: a.cfg.GetReadTimeout(),
		ReadTimeout:       a.cfg.GetReadTimeout(),
		WriteTimeout:      a.cfg.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("serving records api",
			zap.String("addr", listener.Addr().String()),
			zap.String("storage", a.cfg.Storage.Driver),
			zap.String("blob", a.cfg.Blob.Driver),
		)
		errCh <- httpServer.Serve(listener)
	}()

	select {
	case err := <-errCh:
		_ = srv.close(context.Background())
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	a.logger.Info("shutting down")
	shutdownErr := httpServer.Shutdown(shutdownCtx)
	return errors.Join(shutdownErr, srv.close(shutdownCtx))
}
