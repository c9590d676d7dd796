package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/openorbit/agenthub/internal/common/config"
	"github.com/openorbit/agenthub/internal/database"
	"github.com/openorbit/agenthub/internal/engine"
	"github.com/openorbit/agenthub/internal/event"
	"github.com/openorbit/agenthub/internal/gate"
	"github.com/openorbit/agenthub/internal/lifecycle"
	"github.com/openorbit/agenthub/internal/registry"
	"github.com/openorbit/agenthub/internal/server"
	"github.com/openorbit/agenthub/pkg/logger"
	"github.com/openorbit/agenthub/pkg/metrics"
	"github.com/openorbit/agenthub/pkg/trace"
	"github.com/openorbit/agenthub/pkg/version"
)

var (
	configPath string

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of agenthub",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("agenthub version %s\n", version.Get())
		},
	}

	rootCmd = &cobra.Command{
		Use:   "agenthub",
		Short: "Agent session hub",
		Long:  `agenthub coordinates long-running agent sessions and streams their events to connected observers`,
		Run: func(cmd *cobra.Command, args []string) {
			run()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "conf", "configs/agenthub.yaml", "path to configuration file")
	rootCmd.AddCommand(versionCmd)
}

func run() {
	cfg, cfgPath, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	lg, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer lg.Sync()

	lg.Info("starting agenthub",
		zap.String("version", version.Get()),
		zap.String("config", cfgPath))

	ctx := context.Background()
	if cfg.Tracing.Enabled {
		shutdownTracing, err := trace.InitTracing(ctx, &cfg.Tracing, lg)
		if err != nil {
			lg.Fatal("failed to initialize tracing", zap.Error(err))
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				lg.Error("failed to shutdown tracing", zap.Error(err))
			}
		}()
	}

	m := metrics.New(cfg.Metrics)

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		lg.Fatal("failed to initialize database",
			zap.String("type", cfg.Database.Type),
			zap.Error(err))
	}
	defer db.Close()

	bus, err := event.NewBus(lg, m, &cfg.Bus)
	if err != nil {
		lg.Fatal("failed to initialize event bus",
			zap.String("type", cfg.Bus.Type),
			zap.Error(err))
	}
	defer bus.Close()

	reg := registry.New(lg, m)
	eng := engine.NewEcho(lg, bus, reg)
	g := gate.New(lg, m, bus, reg, eng, cfg.Gate)
	coord := lifecycle.New(lg, db, reg, bus, g, cfg.Gate)

	if err := coord.Start(ctx); err != nil {
		lg.Fatal("failed to restore sessions", zap.Error(err))
	}

	srv, err := server.New(lg, cfg, m, bus, reg, g, coord)
	if err != nil {
		lg.Fatal("failed to initialize server", zap.Error(err))
	}
	srv.Start()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	lg.Info("received shutdown signal")

	// warn subscribers and drain in-flight operations before the
	// listener goes away, so streaming clients see the notice
	stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Gate.DrainGrace+10*time.Second)
	defer cancel()
	if err := coord.Stop(stopCtx); err != nil {
		lg.Error("failed to stop cleanly", zap.Error(err))
	}
	if err := srv.Shutdown(stopCtx); err != nil {
		lg.Error("failed to shutdown server", zap.Error(err))
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Failed to execute command: %v", err)
	}
}
