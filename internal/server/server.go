// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the wiring layer. It decides which URL maps to which
// handler, which middleware runs where, and how the server starts and stops.
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and calls New, which builds:
//
//	changefeed.Hub (+ NATSBridge)   → live query notifications
//	sqlite.DB                       → documents + accounts
//	blob.Store → blob.Uploader      → post images
//	auth.Provider                   → sessions
//	service.*Service                → domain operations
//	handler.*Handler                → HTTP and websocket surface
//
// All dependencies are wired here, in one composition root, rather than
// scattered across packages.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"

	"github.com/sakif/socialhub/internal/auth"
	"github.com/sakif/socialhub/internal/blob"
	"github.com/sakif/socialhub/internal/changefeed"
	"github.com/sakif/socialhub/internal/config"
	"github.com/sakif/socialhub/internal/handler"
	"github.com/sakif/socialhub/internal/middleware"
	sqliteRepo "github.com/sakif/socialhub/internal/repository/sqlite"
	"github.com/sakif/socialhub/internal/service"
)

// Server owns the router and every resource that must be released on
// shutdown: the database, the NATS connection and open websocket streams.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger

	db       *sqliteRepo.DB
	nc       *nats.Conn
	bridge   *changefeed.NATSBridge
	provider *auth.Provider

	localBlobs *blob.LocalStore // nil with the S3 backend

	// streams is the base context of every request. Cancelling it ends
	// websocket streams, which http.Server.Shutdown does not wait for.
	streams      context.Context
	closeStreams context.CancelFunc
}

// New creates a Server from cfg. The returned Server owns the database; call
// Start, or Close when the server is never started.
//
// IMPORT ALIAS:
// repository/sqlite is imported as sqliteRepo so it is not confused with
// the modernc.org/sqlite driver.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
	}
	s.streams, s.closeStreams = context.WithCancel(context.Background())

	if err := s.wire(ctx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) wire(ctx context.Context) error {
	cfg := s.config

	// === CHANGE FEED ===
	hub := changefeed.NewHub()
	var notifier changefeed.Notifier = hub
	if cfg.NATSURL != "" {
		nc, err := nats.Connect(cfg.NATSURL, nats.Name("socialhub"))
		if err != nil {
			return fmt.Errorf("connecting to NATS: %w", err)
		}
		s.nc = nc
		bridge, err := changefeed.NewNATSBridge(nc, hub, s.logger)
		if err != nil {
			return err
		}
		s.bridge = bridge
		notifier = bridge
	}

	// === DATABASE ===
	db, err := sqliteRepo.New(cfg.DBPath, notifier, s.logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	s.db = db

	// === BLOB STORAGE ===
	var store blob.Store
	switch cfg.BlobBackend {
	case config.BlobS3:
		s3, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
		if err != nil {
			return fmt.Errorf("opening blob bucket: %w", err)
		}
		store = s3
	default:
		local, err := blob.NewLocalStore(cfg.BlobDir, cfg.BlobBaseURL)
		if err != nil {
			return fmt.Errorf("opening blob directory: %w", err)
		}
		s.localBlobs = local
		store = local
	}
	uploader := blob.NewUploader(store, s.logger)

	// === IDENTITY ===
	tokens, err := auth.NewTokenService(cfg.JWTSecret)
	if err != nil {
		return fmt.Errorf("creating token service: %w", err)
	}
	s.provider = auth.NewProvider(db, db, notifier, auth.NewPasswordService(), tokens, cfg.TokenTTL, s.logger)

	var github *auth.GitHubProvider
	if cfg.GitHubEnabled() {
		github = auth.NewGitHubProvider(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubCallbackURL)
	} else {
		s.logger.Info("GitHub sign-in disabled: GITHUB_CLIENT_ID or GITHUB_CLIENT_SECRET not set")
	}

	// === SERVICES ===
	// Services receive repository interfaces, never the concrete *sqlite.DB
	// type, so tests can swap in fakes.
	profiles := service.NewProfileService(db, s.logger)
	follows := service.NewFollowService(db, s.logger)
	posts := service.NewPostService(db, uploader, s.logger)
	messages := service.NewMessageService(db, s.logger)

	s.routes(routeHandlers{
		auth:     handler.NewAuthHandler(s.provider, github, profiles, cfg.SecureCookies, s.logger),
		profiles: handler.NewProfileHandler(profiles, follows, posts, s.logger),
		posts:    handler.NewPostHandler(posts, s.logger),
		messages: handler.NewMessageHandler(messages, s.logger),
		streams:  handler.NewStreamHandler(s.provider, posts, messages, cfg.AllowedOrigins, s.logger),
	})
	return nil
}

type routeHandlers struct {
	auth     *handler.AuthHandler
	profiles *handler.ProfileHandler
	posts    *handler.PostHandler
	messages *handler.MessageHandler
	streams  *handler.StreamHandler
}

// routes configures middleware and routes.
//
// ROUTE STRUCTURE:
//
//	POST   /auth/signup | /auth/signin | /auth/signout
//	GET    /auth/github/login | /auth/github/callback
//	GET    /api/me            PATCH /api/me
//	GET    /api/users?q=      GET /api/users/suggestions
//	GET    /api/users/{uid}   GET /api/users/{uid}/posts
//	GET|POST|DELETE /api/users/{uid}/follow
//	GET    /api/posts         POST /api/posts
//	DELETE /api/posts/{id}
//	POST   /api/posts/{id}/like | /api/posts/{id}/comments
//	GET    /api/conversations POST /api/conversations
//	GET|POST /api/conversations/{id}/messages
//	POST   /api/conversations/{id}/read
//	WS     /ws/session | /ws/posts | /ws/conversations | /ws/conversations/{id}/messages
//	GET    /blobs/*           (local blob backend only)
//
// MIDDLEWARE ORDER MATTERS:
//  1. RequestID: unique id per request, picked up by the logger
//  2. RealIP: client IP from proxy headers
//  3. Logger: one line per request
//  4. Recoverer: a panic becomes a 500 instead of a crash
//
// Reads of public data (feed, profiles) use OptionalAuth so signed-in
// callers get personalised fields; everything that acts as "the current
// user" sits behind RequireAuth.
func (s *Server) routes(h routeHandlers) {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	requireAuth := auth.RequireAuth(s.provider)
	optionalAuth := auth.OptionalAuth(s.provider)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	s.router.Route("/auth", func(r chi.Router) {
		r.Post("/signup", h.auth.HandleSignUp)
		r.Post("/signin", h.auth.HandleSignIn)
		r.With(optionalAuth).Post("/signout", h.auth.HandleSignOut)
		r.Get("/github/login", h.auth.HandleGitHubLogin)
		r.Get("/github/callback", h.auth.HandleGitHubCallback)
	})

	s.router.Route("/api", func(r chi.Router) {
		// Public reads
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)
			r.Get("/posts", h.posts.HandleList)
			r.Get("/users/{uid}", h.profiles.HandleGetUser)
			r.Get("/users/{uid}/posts", h.profiles.HandleUserPosts)
			r.Get("/users/{uid}/follow", h.profiles.HandleFollowStatus)
		})

		// Current-user operations
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)

			r.Get("/me", h.profiles.HandleMe)
			r.Patch("/me", h.profiles.HandleUpdateMe)
			r.Get("/users", h.profiles.HandleSearch)
			r.Get("/users/suggestions", h.profiles.HandleSuggestions)
			r.Post("/users/{uid}/follow", h.profiles.HandleFollow)
			r.Delete("/users/{uid}/follow", h.profiles.HandleUnfollow)

			r.Post("/posts", h.posts.HandleCreate)
			r.Delete("/posts/{id}", h.posts.HandleDelete)
			r.Post("/posts/{id}/like", h.posts.HandleToggleLike)
			r.Post("/posts/{id}/comments", h.posts.HandleAddComment)

			r.Get("/conversations", h.messages.HandleListConversations)
			r.Post("/conversations", h.messages.HandleOpenConversation)
			r.Get("/conversations/{id}/messages", h.messages.HandleListMessages)
			r.Post("/conversations/{id}/messages", h.messages.HandleSendMessage)
			r.Post("/conversations/{id}/read", h.messages.HandleMarkRead)
		})
	})

	s.router.Route("/ws", func(r chi.Router) {
		r.With(optionalAuth).Get("/session", h.streams.HandleSession)
		r.With(optionalAuth).Get("/posts", h.streams.HandlePosts)
		r.With(requireAuth).Get("/conversations", h.streams.HandleConversations)
		r.With(requireAuth).Get("/conversations/{id}/messages", h.streams.HandleMessages)
	})

	// http.StripPrefix removes "/blobs/" so GET /blobs/posts/u1/x.png
	// serves {BlobDir}/posts/u1/x.png.
	if s.localBlobs != nil {
		prefix := strings.TrimRight(s.config.BlobBaseURL, "/")
		if strings.HasPrefix(prefix, "/") {
			fileServer := http.FileServer(http.Dir(s.localBlobs.Root()))
			s.router.Handle(prefix+"/*", http.StripPrefix(prefix+"/", fileServer))
		}
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until SIGINT/SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new connections
//  2. Cancel the streams context so websocket loops send a close frame
//  3. Wait up to 30s for in-flight requests
//  4. Close NATS and the database (flushes WAL, releases the file lock)
//
// WriteTimeout is 0: websocket connections stay open for hours and manage
// their own write deadlines.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return s.streams
		},
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("database", s.config.DBPath),
			slog.String("blobs", s.config.BlobBackend),
			slog.Bool("nats", s.nc != nil),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		s.closeStreams()
		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}
	return nil
}

// Close releases everything New acquired. It is safe to call more than once.
func (s *Server) Close() error {
	s.closeStreams()

	var errs []error
	if s.bridge != nil {
		errs = append(errs, s.bridge.Close())
		s.bridge = nil
	}
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	return errors.Join(errs...)
}
