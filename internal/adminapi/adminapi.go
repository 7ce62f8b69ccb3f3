// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of carbond.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package adminapi is the minimal operational HTTP surface supplementing
// the distilled spec (SPEC_FULL §11): health, Prometheus exposition, a
// cache debug snapshot, and a forced schema reload — no job/auth surface,
// unlike the teacher's GraphQL+REST API this is deliberately a thin
// sidecar for operators, not an end-user API.
//
// Grounded on the teacher's cmd/cc-backend/server.go router construction:
// gorilla/mux for route dispatch, gorilla/handlers for the compression and
// panic-recovery middleware chain, and a CustomLoggingHandler
// wrapping every request in a debug log line.
package adminapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/carbond/carbond/internal/cache"
	"github.com/carbond/carbond/internal/reload"
	"github.com/carbond/carbond/pkg/log"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the admin HTTP surface.
type Server struct {
	addr   string
	cache  *cache.Cache
	reload *reload.Watcher
	http   *http.Server
}

// New builds a Server listening on addr. c and rw may be nil (debug/cache
// and admin/reload are then omitted from the router).
func New(addr string, c *cache.Cache, rw *reload.Watcher) *Server {
	s := &Server{addr: addr, cache: c, reload: rw}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	if c != nil {
		router.HandleFunc("/debug/cache", s.handleDebugCache).Methods(http.MethodGet)
	}
	if rw != nil {
		router.HandleFunc("/admin/reload", s.handleReload).Methods(http.MethodPost)
	}

	router.Use(handlers.CompressHandler)
	router.Use(handlers.RecoveryHandler(handlers.PrintRecoveryStack(true)))

	logged := handlers.CustomLoggingHandler(io.Discard, router, func(_ io.Writer, params handlers.LogFormatterParams) {
		log.Debugf("%s %s (%d, %dms)",
			params.Request.Method, params.URL.RequestURI(),
			params.StatusCode, time.Since(params.TimeStamp).Milliseconds())
	})

	s.http = &http.Server{
		Addr:         addr,
		Handler:      logged,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving HTTP until the listener errors or is
// closed by Shutdown.
func (s *Server) ListenAndServe() error {
	log.Infof("adminapi: listening on %s", s.addr)
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "ok\n")
}

func (s *Server) handleDebugCache(w http.ResponseWriter, r *http.Request) {
	counts := s.cache.Counts()
	out := struct {
		Size     int               `json:"size"`
		TooFull  bool              `json:"too_full"`
		Counts   []cache.CountEntry `json:"counts"`
	}{
		Size:    s.cache.Size(),
		TooFull: s.cache.TooFull(),
		Counts:  counts,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.reload.Reload(); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
