package web

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/relaynote/relaynote/internal/config"
	"github.com/relaynote/relaynote/internal/engine"
)

// NewServer creates and configures the HTTP server for the sync API.
func NewServer(db *sql.DB, cfg *config.Config, eng *engine.Engine, fetcher engine.ReleaseFetcher, version, bind string, port int) *http.Server {
	h := &Handlers{
		db:      db,
		cfg:     cfg,
		engine:  eng,
		fetcher: fetcher,
		version: version,
	}

	mux := http.NewServeMux()

	// Routes using Go 1.22+ pattern syntax
	mux.HandleFunc("POST /sync", h.HandleSyncManual)
	mux.HandleFunc("GET /sync", h.HandleSyncScheduled)

	mux.HandleFunc("GET /mappings", h.HandleMappingList)
	mux.HandleFunc("POST /mappings", h.HandleMappingCreate)
	mux.HandleFunc("GET /mappings/{id}", h.HandleMappingGet)
	mux.HandleFunc("DELETE /mappings/{id}", h.HandleMappingDelete)
	mux.HandleFunc("GET /mappings/{id}/preview", h.HandlePreview)

	mux.HandleFunc("GET /runs", h.HandleRunList)

	mux.HandleFunc("GET /healthz", h.HandleHealthz)

	handler := securityHeaders(mux)

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", bind, port),
		Handler: handler,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and handles graceful shutdown on SIGINT/SIGTERM.
func Run(srv *http.Server) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Printf("relaynote API listening at http://%s", srv.Addr)

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Printf("WARNING: Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Println("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
