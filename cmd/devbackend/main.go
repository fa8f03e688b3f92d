package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/config"
	"github.com/matthewbaird/railgrid/internal/devbackend"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	logger, err := cfg.Logger()
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	fixture, err := devbackend.LoadFixture(cfg.DevBackend.Fixture)
	if err != nil {
		logger.Fatal("loading fixture", zap.Error(err))
	}
	store, err := devbackend.OpenStore(ctx, cfg.DevBackend.DB)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer store.Close()
	if err := store.Seed(ctx, fixture); err != nil {
		logger.Fatal("seeding store", zap.Error(err))
	}
	logger.Info("store seeded", zap.Int("schemas", len(fixture.Schemas)))

	srv := devbackend.NewServer(store, fixture,
		devbackend.WithToken(cfg.Token),
		devbackend.WithLogger(logger),
	)
	if err := srv.Run(ctx, cfg.DevBackend.Listen); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
