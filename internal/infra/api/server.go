package api

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"compat-assistant/internal/domain/model"
	"compat-assistant/internal/usecase"
)

// Server exposes the conversation engine over HTTP and server-sent events.
type Server struct {
	chat         usecase.ChatUseCase
	stats        usecase.StatsUseCase
	catalog      model.Catalog
	quickActions []model.QuickAction
	timeout      time.Duration
	heartbeat    time.Duration
	auth         *Authenticator
	log          *zerolog.Logger

	// closed when the HTTP server shuts down so open event streams end
	streamsDone chan struct{}
	closeOnce   sync.Once
}

func NewServer(chat usecase.ChatUseCase, stats usecase.StatsUseCase, requestTimeout time.Duration, logger *zerolog.Logger) *Server {
	apiLog := logger.With().Str("component", "api").Logger()
	return &Server{
		chat:         chat,
		stats:        stats,
		catalog:      model.DefaultCatalog(),
		quickActions: model.DefaultQuickActions(),
		timeout:      requestTimeout,
		heartbeat:    15 * time.Second,
		log:          &apiLog,
		streamsDone:  make(chan struct{}),
	}
}

// HTTPServer wraps Routes in an http.Server whose Shutdown also ends open
// event streams.
func (s *Server) HTTPServer(port int) *http.Server {
	hs := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	hs.RegisterOnShutdown(s.CloseStreams)
	return hs
}

// CloseStreams ends every open event stream. Safe to call more than once.
func (s *Server) CloseStreams() {
	s.closeOnce.Do(func() { close(s.streamsDone) })
}

// RequireAuth protects every /api/v1 route with bearer tokens checked by a.
func (s *Server) RequireAuth(a *Authenticator) { s.auth = a }

// Routes builds the router. Event streams are exempt from the request
// timeout.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		if s.auth != nil {
			r.Use(RequireToken(s.auth, s.log))
		}
		r.Get("/sessions/{id}/events", s.handleEvents)

		r.Group(func(r chi.Router) {
			r.Use(Timeout(s.timeout))

			r.Post("/sessions", s.handleCreateSession)
			r.Get("/sessions", s.handleListSessions)
			r.Get("/sessions/{id}", s.handleGetSession)
			r.Post("/sessions/{id}/messages", s.handleSubmit)

			r.Get("/profile", s.handleGetProfile)
			r.Put("/profile", s.handleSetProfile)

			r.Get("/catalog", s.handleCatalog)
			r.Get("/quick-actions", s.handleQuickActions)
			r.Get("/stats", s.handleStats)
		})
	})
	return r
}
