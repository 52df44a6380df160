// Package server exposes resolved entities over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/resolver-cli/internal/config"
	"github.com/sells-group/resolver-cli/internal/model"
	"github.com/sells-group/resolver-cli/internal/store"
)

// Server serves resolution results from the store. All endpoints are
// read-only: resolution itself happens in the CLI, never in-band.
type Server struct {
	cfg   config.ServerConfig
	store store.Store
	http  *http.Server
}

// New builds the server and its router.
func New(cfg config.ServerConfig, st store.Store) *Server {
	s := &Server{cfg: cfg, store: st}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet},
	}))
	if cfg.RateLimit > 0 {
		r.Use(rateLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst))
	}

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{runID}", s.handleGetRun)
		r.Get("/runs/{runID}/entities", s.handleListEntities)
		r.Get("/runs/{runID}/entities/{entityID}", s.handleGetEntity)
		r.Get("/runs/{runID}/parties/{partyID}/entity", s.handleGetEntityByParty)

		// Unscoped convenience routes against the latest complete run.
		r.Get("/entities/{entityID}", s.handleGetEntity)
		r.Get("/parties/{partyID}/entity", s.handleGetEntityByParty)
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("http server listening", zap.String("addr", s.http.Addr))
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return eris.Wrap(err, "server: listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return eris.Wrap(s.http.Shutdown(shutdownCtx), "server: shutdown")
}

// rateLimiter applies a single token bucket across all clients. The API is
// internal tooling, not multi-tenant, so per-IP buckets are not worth the
// bookkeeping.
func rateLimiter(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	if burst <= 0 {
		burst = 1
	}
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	filter := store.RunFilter{
		Status: model.RunStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		s.storeError(w, err, "list runs")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.storeError(w, err, "get run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	entities, err := s.store.ListEntities(r.Context(),
		chi.URLParam(r, "runID"), queryInt(r, "limit"), queryInt(r, "offset"))
	if err != nil {
		s.storeError(w, err, "list entities")
		return
	}
	if entities == nil {
		entities = []model.Entity{}
	}
	writeJSON(w, http.StatusOK, entities)
}

func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runID(r)
	if err != nil {
		s.storeError(w, err, "resolve run")
		return
	}
	entity, err := s.store.GetEntity(r.Context(), runID, chi.URLParam(r, "entityID"))
	if err != nil {
		s.storeError(w, err, "get entity")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

func (s *Server) handleGetEntityByParty(w http.ResponseWriter, r *http.Request) {
	runID, err := s.runID(r)
	if err != nil {
		s.storeError(w, err, "resolve run")
		return
	}
	entity, err := s.store.GetEntityByParty(r.Context(), runID, chi.URLParam(r, "partyID"))
	if err != nil {
		s.storeError(w, err, "lookup party")
		return
	}
	writeJSON(w, http.StatusOK, entity)
}

// runID resolves the run scope for a request, falling back to the latest
// complete run when the route carries no runID segment.
func (s *Server) runID(r *http.Request) (string, error) {
	if id := chi.URLParam(r, "runID"); id != "" {
		return id, nil
	}
	return s.store.LatestCompleteRunID(r.Context())
}

func (s *Server) storeError(w http.ResponseWriter, err error, op string) {
	if eris.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	zap.L().Error("store query failed", zap.String("op", op), zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
