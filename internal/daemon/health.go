package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sokrates-llm/sokq/internal/task"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	PID      int                 `json:"pid"`
	Uptime   string              `json:"uptime"`
	LastPoll time.Time           `json:"last_poll"`
	Queue    map[task.Status]int `json:"queue"`
}

// startHTTP serves the loopback status endpoint when an address is
// configured. The returned func shuts the server down.
func (d *Daemon) startHTTP(ctx context.Context) func() {
	if d.opts.HTTPAddr == "" {
		return func() {}
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(map[string]string{"status": "ok"}); err != nil {
			d.logger.Debug("failed to write health response", "error", err)
		}
	})

	r.Get("/status", func(w http.ResponseWriter, req *http.Request) {
		counts, err := d.store.CountByStatus(req.Context())
		if err != nil {
			d.logger.Error("failed to count tasks for status endpoint", "error", err)
			http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
			return
		}

		resp := statusResponse{
			PID:      os.Getpid(),
			Uptime:   time.Since(d.startedAt).Round(time.Second).String(),
			LastPoll: d.LastPoll(),
			Queue:    counts,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			d.logger.Debug("failed to write status response", "error", err)
		}
	})

	srv := &http.Server{
		Addr:              d.opts.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		d.logger.Info("status endpoint listening", "addr", d.opts.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			d.logger.Error("status endpoint failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			d.logger.Debug("status endpoint shutdown", "error", err)
		}
	}
}
