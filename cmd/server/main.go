package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"focusflow/docs" // swagger docs
	"focusflow/internal/auth"
	"focusflow/internal/cache"
	"focusflow/internal/config"
	"focusflow/internal/db"
	"focusflow/internal/handler"
	"focusflow/internal/logging"
	"focusflow/internal/repository"
	"focusflow/internal/router"
	"focusflow/internal/service"
)

const shutdownTimeout = 10 * time.Second

// @title FocusFlow Auth API
// @version 1.0
// @description Login, token verification and role-gated user directory for FocusFlow.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()

	log := logging.Must(cfg.LogLevel, cfg.Env)
	defer log.Sync() //nolint:errcheck

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}
	if cfg.UsesFallbackSecret() {
		if cfg.IsProduction() {
			log.Warn("FOCUSFLOW_JWT_SECRET is not set, signing tokens with the development fallback secret")
		} else {
			log.Info("using development JWT secret")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	userRepo, dbPinger := openUserStore(cfg, log)

	seeded, err := service.NewSeeder(userRepo, nil, log).Seed(ctx)
	if err != nil {
		log.Fatal("seed default accounts", zap.Error(err))
	}
	log.Info("seeding complete", zap.Int("created", seeded))

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, log)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		log.Warn("redis unavailable, continuing without cache", zap.Error(err))
	}

	tokens := auth.NewTokenService(cfg.SigningSecret(), cfg.TokenTTL, auth.WithLogger(log))
	gate := auth.NewGate(tokens, log)

	authService := service.NewAuthService(userRepo, tokens, log)
	userService := service.NewUserService(userRepo, cacheClient)
	if seeded > 0 || cfg.ResetDB {
		if err := userService.InvalidateDirectory(ctx); err != nil {
			log.Warn("invalidate user directory cache", zap.Error(err))
		}
	}

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, log, gate, router.Handlers{
		Auth:   handler.NewAuthHandler(authService, log),
		User:   handler.NewUserHandler(userService),
		Health: handler.NewHealthHandler(dbPinger, cacheClient),
	})

	go func() {
		addr := ":" + cfg.ServerPort
		log.Info("server listening",
			zap.String("addr", addr),
			zap.String("swagger", "http://"+docs.SwaggerInfo.Host+"/swagger/index.html"),
			zap.Duration("token_ttl", cfg.TokenTTL),
		)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server start", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", zap.Error(err))
	}
}

// openUserStore returns the credential store selected by FOCUSFLOW_STORE and a
// health probe for it (nil for the in-memory store).
func openUserStore(cfg *config.Config, log *zap.Logger) (repository.UserRepository, handler.Pinger) {
	if cfg.Store == config.StoreMemory {
		log.Warn("using in-memory credential store, users are lost on restart")
		return repository.NewMemoryUserRepository(), nil
	}

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatal("database init", zap.Error(err))
	}
	if err := db.Migrate(gormDB, cfg.ResetDB, log); err != nil {
		log.Fatal("database migrate", zap.Error(err))
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("database handle", zap.Error(err))
	}
	return repository.NewUserRepository(gormDB), handler.PingFunc(sqlDB.PingContext)
}
