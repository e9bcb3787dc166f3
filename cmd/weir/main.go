package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/weir-lab/project-weir/internal/admin"
	"github.com/weir-lab/project-weir/internal/core/aggregation"
	corecfg "github.com/weir-lab/project-weir/internal/core/config"
	"github.com/weir-lab/project-weir/internal/engine"
	"github.com/weir-lab/project-weir/internal/ingestion"
	"github.com/weir-lab/project-weir/internal/publish"
	"github.com/weir-lab/project-weir/internal/server"
)

func main() {
	configPath := flag.String("config", "weir.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config", "config", cfg)

	// 2. Load aggregation definitions from disk
	defs, err := aggregation.LoadDefinitionsDir(cfg.Engine.DefinitionsDir)
	if err != nil {
		slog.Error("Failed to load aggregation definitions", "error", err)
		os.Exit(1)
	}
	if cfg.Engine.RequireDefinitions && len(defs) == 0 {
		slog.Error("No aggregation definitions found", "dir", cfg.Engine.DefinitionsDir)
		os.Exit(1)
	}

	// 3. Initialize Engine
	eng := engine.New(engine.Options{
		QueueSize:     cfg.Engine.QueueSize,
		SweepInterval: cfg.SweepIntervalDuration(),
		Publisher:     publish.NewLogPublisher(),
	})
	for _, def := range defs {
		if err := eng.Register(def); err != nil {
			slog.Error("Failed to register aggregation definition", "name", def.Name, "error", err)
			os.Exit(1)
		}
	}
	slog.Info("Engine initialized",
		"definitions", len(defs),
		"queue_size", cfg.Engine.QueueSize,
		"sweep_interval", cfg.Engine.SweepInterval,
	)

	// 4. Initialize Services
	ingestionSvc := ingestion.NewService(eng, cfg.Ingestion.PartitionField, cfg.Server.MaxBodySizeMB)
	adminSvc := admin.NewService(eng)

	// 5. Initialize Server
	srv := server.New(fmtAddr(cfg.Server.Host, cfg.Server.Port), eng, cfg.Server.Mode)
	ingestionSvc.RegisterRoutes(srv.Engine)
	adminSvc.RegisterRoutes(srv.Engine)

	// 6. Start Services
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

func fmtAddr(host string, port int) string {
	return fmt.Sprintf("%s:%d", host, port)
}
