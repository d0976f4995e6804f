// Command marginalia-server starts the Marginalia HTTP/GraphQL server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marginalia-app/marginalia/internal/config"
	pkgcrypto "github.com/marginalia-app/marginalia/internal/crypto"
	"github.com/marginalia-app/marginalia/internal/limiter"
	"github.com/marginalia-app/marginalia/internal/migrate"
	"github.com/marginalia-app/marginalia/internal/repository/postgres"
	"github.com/marginalia-app/marginalia/internal/server/guard"
	graphqlserver "github.com/marginalia-app/marginalia/internal/server/graphql"
	httpserver "github.com/marginalia-app/marginalia/internal/server/http"
	"github.com/marginalia-app/marginalia/internal/service"
	"github.com/marginalia-app/marginalia/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main parses configuration, runs migrations, and starts the HTTP server.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	defer db.Close()

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	tokenRepo := postgres.NewTokenRepo(db)

	lim := limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)

	// Services
	hasher := pkgcrypto.NewHasher(cfg.Pepper)
	accessTokens := token.NewManager([]byte(cfg.JWTSecret), cfg.AccessTTL)
	sessionSvc := service.NewSessionService(tokenRepo, userRepo, accessTokens, cfg.RefreshTTL)
	authSvc := service.NewAuthService(userRepo, hasher, accessTokens, sessionSvc, lim, cfg.BlockedEmailDomains)
	g := guard.New(accessTokens, userRepo)

	cookies := httpserver.CookieWriter{
		Domain:     cfg.CookieDomain,
		Secure:     cfg.Production(),
		AccessTTL:  accessTokens.TTL(),
		RefreshTTL: sessionSvc.RefreshTTL(),
	}

	// Transports
	rest := httpserver.New(authSvc, sessionSvc, g, cookies, logger)
	gql := graphqlserver.NewHandler(graphqlserver.NewResolver(authSvc, sessionSvc, g, cookies, logger))

	mux := http.NewServeMux()
	mux.Handle("/", rest.Handler())
	mux.Handle("POST /graphql", httpserver.Recover(logger)(httpserver.Logging(logger)(gql)))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}
