// Package server exposes the runtime over HTTP: agent discovery, workflow
// execution (buffered, streaming and multipart), chat, session management
// and operational endpoints.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wsaadi/nova/pkg/runtime"
)

// Server wraps the chi router around a runtime.
type Server struct {
	rt     *runtime.Runtime
	router chi.Router
	http   *http.Server
}

func New(rt *runtime.Runtime) *Server {
	s := &Server{rt: rt}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Get("/metrics", s.rt.Metrics.Handler().ServeHTTP)
	r.Post("/reload", s.handleReload)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.handleListAgents)
		r.Post("/import", s.handleImportAgent)

		r.Route("/{agentRef}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Get("/definition", s.handleGetDefinition)
			r.Get("/ui", s.handleGetUI)
			r.Post("/execute", s.handleExecute)
			r.Post("/execute/stream", s.handleExecuteStream)
			r.Post("/execute/upload", s.handleExecuteUpload)
			r.Post("/chat", s.handleChat)
		})
	})

	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleDeleteSession)
		r.Get("/messages", s.handleGetSessionMessages)
		r.Post("/clear", s.handleClearSession)
	})

	return r
}

// Handler returns the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until the context is cancelled, then drains with a 10 second
// grace period.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.rt.Config.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "address", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	origins := s.rt.Config.CORSOriginList()

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && originAllowed(origin, origins) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(origin string, allowed []string) bool {
	for _, candidate := range allowed {
		if candidate == "*" || candidate == origin {
			return true
		}
	}
	return len(allowed) == 0
}
