package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/kedevs/blogapi/config"
	"github.com/kedevs/blogapi/internal/auth"
	"github.com/kedevs/blogapi/internal/db"
	"github.com/kedevs/blogapi/internal/handlers"
	"github.com/kedevs/blogapi/internal/logger"
	"github.com/kedevs/blogapi/internal/metrics"
	"github.com/kedevs/blogapi/internal/mq"
	"github.com/kedevs/blogapi/internal/services"
	"github.com/kedevs/blogapi/internal/store"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators the router is built from.
type Deps struct {
	DB      *sql.DB
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	// Events receives post events. Nil disables publishing.
	Events       services.EventPublisher
	TokenOptions []auth.TokenOption
}

// Server wraps the HTTP server and the resources it owns.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     *slog.Logger
}

// New opens the database and message queue and builds the HTTP server.
func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}

	deps := Deps{
		DB:      dbConn,
		Logger:  log,
		Metrics: metrics.New(),
	}
	if queue != nil {
		deps.Events = mq.NewPostEventPublisher(queue, cfg.MQ.PostEventsChannel)
	}

	router := NewRouter(cfg, deps)

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		ErrorLog:     slog.NewLogLogger(log.Handler(), slog.LevelError),
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     log,
	}, nil
}

// NewRouter wires repositories, services and handlers into a chi router.
func NewRouter(cfg config.Config, deps Deps) *chi.Mux {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	userRepo := store.NewUserRepository(deps.DB)
	postRepo := store.NewPostRepository(deps.DB)

	hasher := auth.NewBcryptHasher(cfg.Auth.BcryptCost)
	userService := services.NewUserService(userRepo, hasher)
	postService := services.NewPostService(postRepo, deps.Events)

	credentials := auth.NewCredentialVerifier(userRepo, hasher)
	tokens := auth.NewTokenIssuer(userRepo, cfg.Auth, deps.TokenOptions...)

	authHandler := handlers.NewAuthHandler(userService, credentials, tokens, deps.Metrics)
	postHandler := handlers.NewPostHandler(postService, deps.Metrics)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	if cfg.TrustProxyHeaders {
		router.Use(middleware.RealIP)
	}
	router.Use(
		logger.RequestLogger(log),
		middleware.Recoverer,
		deps.Metrics.Middleware,
		cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"Retry-After"},
			AllowCredentials: false,
			MaxAge:           300,
		}),
		middleware.Timeout(60*time.Second),
	)

	router.Get("/healthz", handlers.Healthz(deps.DB))
	if deps.Metrics != nil {
		router.Handle("/metrics", deps.Metrics.Handler())
	}
	handlers.AuthRouter(router, authHandler, handlers.RateLimit(cfg.RateLimit))
	router.Route("/posts", func(r chi.Router) {
		handlers.PostRouter(r, postHandler, tokens)
	})

	return router
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully and
// releases the database and queue.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	s.close()
	return err
}

func (s *Server) close() {
	if s.queue != nil {
		if err := s.queue.Close(); err != nil {
			s.logger.Warn("close message queue", slog.Any("error", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Warn("close database", slog.Any("error", err))
		}
	}
}
