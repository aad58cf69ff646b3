package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/knowledgevault/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/knowledgevault/internal/api/middlewares"
	"github.com/markdave123-py/knowledgevault/internal/config"
	"github.com/markdave123-py/knowledgevault/internal/logger"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, chat handlers.Chatter, docs handlers.DocumentManager, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if cfg.JWTSecret == "" {
		log.Warn("JWT_SECRET is empty: bearer tokens are not verified, the API must sit behind an authorizer")
	}
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, chat, docs, log),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// NewRouter returns the API routes; split out so tests can drive it with httptest.
func NewRouter(cfg *config.Config, chat handlers.Chatter, docs handlers.DocumentManager, log *logger.Logger) http.Handler {
	chatHandler := handlers.NewChatHandler(chat, log)
	docHandler := handlers.NewDocumentHandler(docs, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
		api.Post("/chat", chatHandler.Chat)
		api.Get("/usage", chatHandler.Usage)
		api.Get("/documents", docHandler.GetDocuments)
		api.Post("/documents", docHandler.RequestUpload)
		api.Delete("/documents", docHandler.DeleteDocument)
		api.Post("/documents/reindex", docHandler.Reindex)
	})
	return r
}

func requestLogger(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
