// Package common provides shared service plumbing.
package common

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"
)

// HealthServer serves liveness and readiness endpoints for the supervising
// platform. Liveness returns 200 while the process is alive; readiness is
// gated on the provided flag.
type HealthServer struct {
	server *http.Server
	ready  *atomic.Bool
}

// NewHealthServer creates a health server listening on addr and starts it in
// the background.
func NewHealthServer(ready *atomic.Bool, addr string) *HealthServer {
	hs := &HealthServer{ready: ready}

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/health", hs.handleHealth)
	mux.HandleFunc("/v1/readiness", hs.handleReadiness)

	hs.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() { _ = hs.server.ListenAndServe() }()

	return hs
}

// Server returns the underlying http server for shutdown.
func (hs *HealthServer) Server() *http.Server { return hs.server }

func (hs *HealthServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (hs *HealthServer) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if !hs.ready.Load() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
