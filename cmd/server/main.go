package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/config"
	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/server"
	"github.com/matthewbaird/railgrid/internal/session"
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

	backend := railgun.New(cfg.BackendURL,
		railgun.WithToken(cfg.Token),
		railgun.WithLogger(logger.Named("railgun")),
	)
	history := eventbus.NewHistory(eventbus.DefaultHistory)
	bus := eventbus.New(256, logger.Named("eventbus"))
	bus.Subscribe("log", eventbus.NewLogConsumer(logger.Named("events")))
	bus.Subscribe("history", history)
	bus.Start(ctx)
	defer bus.Stop()

	sessions := session.NewManager(ctx, backend, cfg.View(),
		session.WithIdleTimeout(cfg.SessionIdleTimeout),
		session.WithMaxAge(cfg.SessionMaxAge),
		session.WithLogger(logger.Named("session")),
		session.WithPublisher(bus),
	)
	go sessions.Janitor(ctx, time.Minute)

	logger.Info("record service", zap.String("origin", backend.Origin()))
	if err := server.Run(ctx, server.Config{
		Addr:     cfg.Listen,
		Sessions: sessions,
		History:  history,
		Logger:   logger,
	}); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
