/*
Copyright © 2025 Denis Khalturin
All rights reserved.

Redistribution and use in source and binary forms, with or without
modification, are permitted provided that the following conditions are met:

1. Redistributions of source code must retain the above copyright notice,
   this list of conditions and the following disclaimer.

2. Redistributions in binary form must reproduce the above copyright notice,
   this list of conditions and the following disclaimer in the documentation
   and/or other materials provided with the distribution.

3. Neither the name of the copyright holder nor the names of its contributors
   may be used to endorse or promote products derived from this software
   without specific prior written permission.

THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS"
AND ANY EXPRESS OR IMPLIED WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE
IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE
ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE
LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR
CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED TO, PROCUREMENT OF
SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN
CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING NEGLIGENCE OR OTHERWISE)
ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
POSSIBILITY OF SUCH DAMAGE.
*/
// prettier-ignore-end
package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"jacs/internal/agent"
	"jacs/internal/agreement"
	"jacs/internal/config"
	"jacs/internal/metrics"
	"jacs/internal/server"
	"jacs/internal/storage"
	"jacs/internal/storage/types"
	"jacs/internal/trust"
)

// App represents the main application structure that orchestrates all components:
// the loaded agent identity, agreement engine, document storage, HTTP API and
// metrics servers. It manages the lifecycle from initialization to graceful shutdown.
type App struct {
	config        config.Config
	agent         *agent.Agent
	agreements    *agreement.Engine
	storage       types.Storage
	serverHTTP    *server.Server
	serverMetrics *server.Server
}

// New creates and initializes a new App instance with all required components.
// It loads configuration, loads the agent identity from the key directory
// (keys never come from document storage), initializes the storage backend,
// the HTTP API server and the metrics server for monitoring.
// Returns an error if any component fails to initialize.
func New() (*App, error) {
	slog.Debug("initializing application")

	ctx := context.Background()

	cfg, err := config.New()
	if err != nil {
		slog.Error("failed to load config")
		return nil, err
	}

	collector := metrics.NewCollector()
	trustStore := trust.NewStore()

	ag, err := agent.Load(cfg,
		agent.WithCollector(collector),
		agent.WithTrustStore(trustStore),
	)
	if err != nil {
		slog.Error("failed to load agent identity")
		return nil, err
	}

	store, err := storage.New(ctx, cfg.DefaultStorage,
		types.WithAppID(cfg.UUID.String()),
		types.WithBucket(cfg.Storage.Bucket),
		types.WithConnMaxIdleTime(cfg.Storage.ConnMaxIdleTime),
		types.WithConnMaxLifetime(cfg.Storage.ConnMaxLifetime),
		types.WithDSN(cfg.Storage.DSN),
		types.WithDataDir(cfg.DataDirectory),
		types.WithMaxIdleConns(cfg.Storage.MaxIdleConns),
		types.WithMaxOpenConns(cfg.Storage.MaxOpenConns),
	)
	if err != nil {
		slog.Error("failed to create storage")
		return nil, err
	}

	agreements := agreement.NewEngine(ag.Engine(), ag, ag, agreement.WithCollector(collector))

	srvHTTP := server.NewServer(
		server.WithAddr(cfg.Server.Listen),
		server.WithReadTimeout(cfg.Server.ReadTimeout),
		server.WithWriteTimeout(cfg.Server.WriteTimeout),
	)

	srvMetrics := server.NewServer(
		server.WithAddr("127.0.0.1:9090"),
	)
	srvMetrics.SetHandle("/metrics", promhttp.Handler())
	srvMetrics.SetHandleFunc("/", metrics.Root)
	srvMetrics.SetHandleFunc("/health/liveness", store.ProbeLiveness())
	srvMetrics.SetHandleFunc("/health/readiness", store.ProbeReadiness())
	srvMetrics.SetHandleFunc("/health/startup", store.ProbeStartup())

	app := &App{
		config:        cfg,
		agent:         ag,
		agreements:    agreements,
		storage:       store,
		serverHTTP:    srvHTTP,
		serverMetrics: srvMetrics,
	}

	srvHTTP.SetHandleFunc("POST /api/v1/verify", app.handleVerify)
	srvHTTP.SetHandleFunc("GET /api/v1/agent", app.handleAgent)
	srvHTTP.SetHandleFunc("POST /api/v1/documents", app.handleCreateDocument)
	srvHTTP.SetHandleFunc("GET /api/v1/documents/{id}/{version}", app.handleGetDocument)
	srvHTTP.SetHandleFunc("POST /api/v1/agreements/check", app.handleCheckAgreement)

	return app, nil
}

// handleVerify verifies a signed document posted as JSON and returns the
// structured verification result. The endpoint always answers 200 on a
// well-formed document; validity is in the body.
func (a *App) handleVerify(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}

	writeJSON(w, a.agent.Verify(doc))
}

// handleAgent returns the loaded agent's self-signed descriptor.
func (a *App) handleAgent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.agent.Descriptor())
}

// handleCreateDocument signs a JSON payload as a fresh document, persists it
// through the storage collaborator, and returns the signed document.
func (a *App) handleCreateDocument(w http.ResponseWriter, r *http.Request) {
	payload, ok := readDocument(w, r)
	if !ok {
		return
	}

	signed, err := a.agent.SignMessage(payload)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	stored, err := types.FromDocument(signed)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := a.storage.PutDocument(r.Context(), stored); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, signed)
}

// handleGetDocument fetches a stored document by identity and version.
func (a *App) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	version := r.PathValue("version")

	if id == "" || version == "" {
		http.Error(w, "id and version required", http.StatusBadRequest)
		return
	}

	stored, err := a.storage.GetDocument(r.Context(), id, version)
	if err != nil {
		if err == types.ErrNotFound {
			http.Error(w, fmt.Sprintf("document %s:%s not found", id, version), http.StatusNotFound)
			return
		}

		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(stored.Raw)
}

// handleCheckAgreement reports the completion status of an agreement document.
func (a *App) handleCheckAgreement(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}

	status, err := a.agreements.Check(doc)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	writeJSON(w, status)
}

// Up starts the application and all its components in separate goroutines.
// It launches the metrics server and the main HTTP server, then blocks until
// a shutdown signal arrives and triggers graceful shutdown.
func (a *App) Up() {
	slog.Info("starting application",
		"storage_type", a.config.DefaultStorage,
		"agent", a.agent.ID(),
		"app_id", a.config.UUID.String(),
	)

	go a.serverMetrics.Up()
	go a.serverHTTP.Up()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs,
		syscall.SIGTERM,
		syscall.SIGINT,
	)

	sig := <-sigs
	slog.Info("shutdown signal received", "signal", fmt.Sprintf("%s (%d)", sig.String(), sig))

	a.Down()
}

// Down performs graceful shutdown of the application.
// It stops both servers, closes the storage connection, and disposes the
// loaded agent so its key material is zeroed.
func (a *App) Down() error {
	a.serverMetrics.Down()
	a.serverHTTP.Down()

	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			slog.Error("failed to close storage", "error", err)
		}
	}

	if a.agent != nil {
		a.agent.Dispose()
	}

	slog.Info("application stopped")
	return nil
}

// readDocument decodes a JSON object from the request body, answering 400 on
// malformed input.
func readDocument(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var doc map[string]any

	if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
		http.Error(w, fmt.Sprintf("invalid JSON body: %v", err), http.StatusBadRequest)
		return nil, false
	}

	return doc, true
}

func writeJSON(w http.ResponseWriter, value any) {
	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(value); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
