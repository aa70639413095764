package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/synapticgarden/vm/internal/bridge"
)

// AdminServer exposes the Synaptic Bridge's operational surface over
// REST/JSON, the admin-plane counterpart to internal/api.Server's
// tenant-facing APIServer: health, bridge status, and Prometheus
// metrics instead of pool/escrow/reputation endpoints.
type AdminServer struct {
	bridge *bridge.Bridge
	srv    *http.Server
}

// NewAdminServer builds an AdminServer bound to b, listening on addr
// (host:port).
func NewAdminServer(b *bridge.Bridge, addr string, readTimeout, writeTimeout time.Duration) *AdminServer {
	r := mux.NewRouter()
	a := &AdminServer{bridge: b}

	r.HandleFunc("/healthz", a.handleHealthz).Methods("GET")
	r.HandleFunc("/bridge/status", a.handleBridgeStatus).Methods("GET")
	r.HandleFunc("/bridge/metrics/summary", a.handleMetricsSummary).Methods("GET")
	r.HandleFunc("/bridge/metrics/reset", a.handleMetricsReset).Methods("POST")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	a.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return a
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (a *AdminServer) Start() error {
	slog.Info("synapsevm: admin server listening", "addr", a.srv.Addr)
	if err := a.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("adminserver: listen: %w", err)
	}
	return nil
}

func (a *AdminServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (a *AdminServer) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	status := a.bridge.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleMetricsSummary returns the current per-proxy telemetry
// summary, optionally scoped with repeated ?proxy= query parameters.
func (a *AdminServer) handleMetricsSummary(w http.ResponseWriter, r *http.Request) {
	proxies := r.URL.Query()["proxy"]
	summary := a.bridge.MetricsSummary(proxies...)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(summary); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleMetricsReset clears the rolling telemetry window for the
// named proxies (every registered proxy if none are named) and
// reports what was captured immediately before the reset.
func (a *AdminServer) handleMetricsReset(w http.ResponseWriter, r *http.Request) {
	proxies := r.URL.Query()["proxy"]
	before := a.bridge.MetricsSummary(proxies...)
	a.bridge.MetricsReset(proxies...)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(before); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
