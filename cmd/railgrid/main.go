package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/matthewbaird/railgrid/internal/config"
	"github.com/matthewbaird/railgrid/internal/eventbus"
	"github.com/matthewbaird/railgrid/internal/railgun"
	"github.com/matthewbaird/railgrid/internal/tui"
	"github.com/matthewbaird/railgrid/internal/view"
)

// logPath receives debug logs; the terminal belongs to the grid.
const logPath = "railgrid.log"

func newLogger(cfg config.Config) (*zap.Logger, error) {
	if !cfg.Debug {
		return zap.NewNop(), nil
	}
	zc := zap.NewDevelopmentConfig()
	zc.OutputPaths = []string{logPath}
	zc.ErrorOutputPaths = []string{logPath}
	return zc.Build()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(flag.NewFlagSet(os.Args[0], flag.ExitOnError), os.Args[1:], os.LookupEnv)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if cfg.Schema == "" || cfg.Entity == "" {
		log.Fatal("both -schema and -entity are required")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck
	zap.ReplaceGlobals(logger)

	backend := railgun.New(cfg.BackendURL,
		railgun.WithToken(cfg.Token),
		railgun.WithLogger(logger.Named("railgun")),
	)
	bus := eventbus.New(64, logger)
	bus.Subscribe("log", eventbus.NewLogConsumer(logger.Named("events")))
	bus.Start(ctx)
	defer bus.Stop()

	l := tui.NewLoop(ctx)
	v := view.New(cfg.View(), l, backend,
		view.WithLogger(logger),
		view.WithPublisher(bus),
	)

	p := tea.NewProgram(tui.New(v, l), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
