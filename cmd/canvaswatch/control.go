package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hazyhaar/canvaswatch"
)

// control exposes the recorder lifecycle operations over HTTP so operators
// can freeze, reset, or purge a running capture without restarting the
// daemon.
type control struct {
	recorder *canvaswatch.Recorder
	logger   *slog.Logger
}

func newControl(r *canvaswatch.Recorder, logger *slog.Logger) *control {
	return &control{recorder: r, logger: logger}
}

func (c *control) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/status", c.handleStatus)
	r.Post("/freeze", c.action(func() { c.recorder.Freeze() }))
	r.Post("/unfreeze", c.action(func() { c.recorder.Unfreeze() }))
	r.Post("/lock", c.action(func() { c.recorder.Lock() }))
	r.Post("/unlock", c.action(func() { c.recorder.Unlock() }))
	r.Post("/reset", c.action(func() { c.recorder.Reset() }))
	r.Post("/purge", c.action(func() { c.recorder.PurgeCaches() }))
	r.Post("/start", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.recorder.Start(); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return r
}

func (c *control) serve(ctx context.Context, addr string) {
	srv := &http.Server{
		Addr:              addr,
		Handler:           c.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	c.logger.Info("canvaswatch: control API listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		c.logger.Error("canvaswatch: control API failed", "error", err)
	}
}

func (c *control) action(fn func()) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		fn()
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

func (c *control) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"session": c.recorder.SessionID(),
		"frozen":  c.recorder.Frozen(),
		"locked":  c.recorder.Locked(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
