package main

import (
	"context"
	"flag"
	"log"

	"birzha/internal/api"
	"birzha/internal/bootstrap"
	"birzha/internal/config"
	"birzha/internal/matching"
	"birzha/internal/metrics"
	"birzha/internal/store"
	"birzha/internal/store/memory"
	"birzha/internal/store/postgres"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("could not load config: %s", err)
	}
	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("could not build logger: %s", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	var st store.Store
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("could not open postgres store", zap.Error(err))
		}
		st = pg
		logger.Info("using postgres store")
	} else {
		st = memory.New()
		logger.Warn("DATABASE_URL not set, using in-memory store")
	}
	defer st.Close()

	if err := bootstrap.Run(ctx, st, cfg.AdminAPIKey, logger); err != nil {
		logger.Fatal("bootstrap failed", zap.Error(err))
	}

	m := metrics.NewMetrics()
	engine := matching.NewEngine(st, m, logger)
	server := api.NewServer(cfg.ListenAddr, st, engine, m, logger)

	if err := server.Run(); err != nil {
		logger.Fatal("could not start server", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
