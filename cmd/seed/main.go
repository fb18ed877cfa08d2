package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"focusflow/internal/cache"
	"focusflow/internal/config"
	"focusflow/internal/db"
	"focusflow/internal/logging"
	"focusflow/internal/repository"
	"focusflow/internal/service"
)

func main() {
	reset := flag.Bool("reset", false, "drop the users table before seeding (overrides RESET_DB)")
	flag.Parse()

	cfg := config.Load()
	log := logging.Must(cfg.LogLevel, cfg.Env)
	defer log.Sync() //nolint:errcheck

	log.Info("starting seed")

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	log.Info("connected to database")

	if err := db.Migrate(gormDB, *reset || cfg.ResetDB, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}
	log.Info("database migrations completed")

	repo := repository.NewUserRepository(gormDB)
	created, err := service.NewSeeder(repo, nil, log).Seed(context.Background())
	if err != nil {
		log.Fatal("failed to seed accounts", zap.Error(err))
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, log)
	defer cacheClient.Close()
	if err := service.NewUserService(repo, cacheClient).InvalidateDirectory(context.Background()); err != nil {
		log.Warn("failed to invalidate user directory cache", zap.Error(err))
	}

	log.Info("seed completed",
		zap.Int("created", created),
		zap.Int("existing", len(service.DefaultAccounts)-created),
	)
}
