package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/habforecast/eo-fetcher/downloader"
	"github.com/habforecast/eo-fetcher/service/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// statusServer serves the progress of the batch and its metrics
type statusServer struct {
	server *http.Server
}

// newStatusServer returns nil if addr is empty
func newStatusServer(addr string, executor *downloader.Executor, registry *prometheus.Registry) *statusServer {
	if addr == "" {
		return nil
	}
	router := mux.NewRouter()
	router.HandleFunc("/progress", func(w http.ResponseWriter, r *http.Request) {
		report := executor.Report()
		if report == nil {
			http.Error(w, "batch not started", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report.Snapshot()); err != nil {
			log.Logger(r.Context()).Warn("progress", zap.Error(err))
		}
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	originsOk := handlers.AllowedOrigins([]string{"*"})
	methodsOk := handlers.AllowedMethods([]string{"GET", "OPTIONS"})
	return &statusServer{server: &http.Server{
		Addr:              addr,
		Handler:           handlers.RecoveryHandler()(handlers.CORS(originsOk, methodsOk)(router)),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Serve blocks until Stop is called
func (s *statusServer) Serve(ctx context.Context) error {
	log.Logger(ctx).Sugar().Infof("status endpoint listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down, waiting for the pending requests
func (s *statusServer) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}
