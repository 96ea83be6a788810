package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bidworks/marketplace/marketplace"
	"github.com/bidworks/marketplace/marketplace/logger"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	path := flag.String("config", "config.toml", "path to config")
	flag.Parse()

	cfg, err := marketplace.LoadConfig(*path)
	if err != nil {
		slog.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(-1)
	}

	slog.SetDefault(slog.New(logger.NewHandler(cfg.Log.Level)))

	slog.Info("Starting BidWorks marketplace",
		slog.String("version", version),
		slog.String("commit", commit))

	startCtx, startCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	app, err := marketplace.New(startCtx, cfg)
	startCancel()
	if err != nil {
		slog.Error("Failed to start marketplace", slog.Any("error", err))
		os.Exit(-1)
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	app.Start(runCtx)

	s := make(chan os.Signal, 1)
	signal.Notify(s, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-s

	slog.Info("Shutting down marketplace...")
	runCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	app.Close(shutdownCtx)
}
