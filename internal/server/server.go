package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shared-transactions/internal/auth"
	"shared-transactions/internal/config"
	"shared-transactions/internal/handler"
	"shared-transactions/internal/metrics"
	"shared-transactions/internal/middleware"
	"shared-transactions/internal/notify"
	"shared-transactions/internal/repository"
	"shared-transactions/internal/service"
)

const metricsNamespace = "shares"

// Server represents the HTTP server
type Server struct {
	router     *mux.Router
	server     *http.Server
	listener   net.Listener
	store      *repository.Store
	dispatcher *notify.Dispatcher
	logger     *slog.Logger
	port       string
}

// Dependencies are the collaborators the router dispatches to.
type Dependencies struct {
	Store        *repository.Store
	Transactions *service.TransactionService
	Users        *service.UserService
	JWT          *auth.JWTManager
	Gatherer     prometheus.Gatherer
	Logger       *slog.Logger
}

// NewServer opens the store, applies migrations and wires the engine.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	dialect, ok := repository.ParseDialect(cfg.DBDriver)
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DBDriver)
	}

	openCtx, cancel := context.WithTimeout(ctx, cfg.DBTimeout)
	defer cancel()

	store, err := repository.Open(openCtx, dialect, cfg.DSN(), logger)
	if err != nil {
		return nil, err
	}
	logger.Info("Successfully connected to database", "dialect", dialect)

	if err := store.Migrate(openCtx); err != nil {
		store.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector, err := metrics.NewPrometheusCollector(metricsNamespace, registry)
	if err != nil {
		store.Close()
		return nil, err
	}

	var sink notify.Sink = notify.NewLogSink(logger)
	if cfg.WebhookURL != "" {
		sink = notify.NewWebhookSink(notify.WebhookConfig{URL: cfg.WebhookURL}, logger)
	}
	dispatcher := notify.NewDispatcher(sink, notify.DispatcherConfig{
		QueueSize: cfg.NotifyQueueSize,
		Workers:   cfg.NotifyWorkers,
	}, collector, logger)

	transactions := service.NewTransactionService(
		store.Transactions(),
		store.Identities(),
		dispatcher,
		logger,
		service.WithMetrics(collector),
		service.WithTimeout(cfg.OperationTimeout),
	)
	users := service.NewUserService(store.Users(), logger)

	router := NewRouter(Dependencies{
		Store:        store,
		Transactions: transactions,
		Users:        users,
		JWT:          auth.NewJWTManager(cfg.JWTSecret, cfg.TokenTTL),
		Gatherer:     registry,
		Logger:       logger,
	})

	return &Server{
		router:     router,
		store:      store,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// NewRouter registers every route. Transaction routes require a Bearer token.
func NewRouter(deps Dependencies) *mux.Router {
	transactionHandler := handler.NewTransactionHandler(deps.Transactions)
	userHandler := handler.NewUserHandler(deps.Users, deps.JWT)

	router := mux.NewRouter()
	router.Use(loggingMiddleware(deps.Logger))

	router.HandleFunc("/users", userHandler.Register).Methods("POST")

	api := router.NewRoute().Subrouter()
	api.Use(middleware.RequireAuth(deps.JWT, handler.WriteAuthError))

	api.HandleFunc("/users/me", userHandler.Me).Methods("GET")

	api.HandleFunc("/transactions", transactionHandler.Create).Methods("POST")
	api.HandleFunc("/transactions", transactionHandler.List).Methods("GET")
	api.HandleFunc("/transactions/{transaction_id}", transactionHandler.Get).Methods("GET")
	api.HandleFunc("/transactions/{transaction_id}", transactionHandler.Delete).Methods("DELETE")
	api.HandleFunc("/transactions/{transaction_id}/participants", transactionHandler.EditParticipants).Methods("PUT")
	api.HandleFunc("/transactions/{transaction_id}/participants/{participant_id}/response", transactionHandler.Respond).Methods("POST")

	if deps.Gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}

	// Health check
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := deps.Store.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]string{"status": "unhealthy", "error": "database unavailable"})
			return
		}

		json.NewEncoder(w).Encode(map[string]string{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}).Methods("GET")

	return router
}

// loggingMiddleware adds request logging
func loggingMiddleware(logger *slog.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.statusCode,
				"duration", time.Since(start),
				"user_agent", r.UserAgent(),
			)
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Listen binds the port ("0" picks a free one) and returns the actual port.
func (s *Server) Listen(port string) (string, error) {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return "", err
	}

	addr := listener.Addr().(*net.TCPAddr)
	s.port = strconv.Itoa(addr.Port)
	s.listener = listener

	s.server = &http.Server{
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s.port, nil
}

// Serve blocks until the server is shut down. It returns nil after Stop.
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server: Listen must be called before Serve")
	}
	s.logger.Info("Starting server", "port", s.port)
	if err := s.server.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start listens on port and serves in the background.
func (s *Server) Start(port string) (string, error) {
	port, err := s.Listen(port)
	if err != nil {
		return "", err
	}

	go func() {
		if err := s.Serve(); err != nil {
			s.logger.Error("Server failed", "error", err)
		}
	}()
	return port, nil
}

// Stop drains HTTP requests, then pending notifications, then closes the store.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down server")

	var errs []error
	if s.server != nil {
		errs = append(errs, s.server.Shutdown(ctx))
	}
	if s.dispatcher != nil {
		errs = append(errs, s.dispatcher.Close(ctx))
	}
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}

// GetPort returns the port the server is listening on
func (s *Server) GetPort() string {
	return s.port
}

// GetBaseURL returns the base URL for the server
func (s *Server) GetBaseURL() string {
	return "http://localhost:" + s.port
}

// GetRouter returns the router for testing purposes
func (s *Server) GetRouter() *mux.Router {
	return s.router
}

// StartServer builds and starts the server with the given configuration
func StartServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, string, error) {
	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return nil, "", err
	}

	port, err := server.Start(cfg.ServerPort)
	if err != nil {
		server.Stop(ctx)
		return nil, "", err
	}
	return server, port, nil
}
