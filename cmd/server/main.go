// Package main is the entry point for the streaming chat gateway server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"bedrock-gateway/internal/api"
	"bedrock-gateway/internal/config"
	"bedrock-gateway/internal/credentials"
	"bedrock-gateway/internal/gateway"
	"bedrock-gateway/internal/logging"
	log "bedrock-gateway/internal/logging"
	"bedrock-gateway/internal/usage"
	"bedrock-gateway/internal/watcher"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func init() {
	logging.SetupBaseLogger()
}

func main() {
	fmt.Printf("bedrock-gateway Version: %s, Commit: %s, BuiltAt: %s\n", Version, Commit, BuildDate)

	var configPath string
	var credentialsPath string
	var port int
	flag.StringVar(&configPath, "config", "config.yaml", "Configuration file path")
	flag.StringVar(&credentialsPath, "credentials", "", "Credentials file path (overrides config)")
	flag.IntVar(&port, "port", 0, "Listen port (overrides config)")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if credentialsPath != "" {
		cfg.CredentialsFile = credentialsPath
	}
	if port != 0 {
		cfg.Port = port
	}

	if cfg.Debug {
		logging.SetLevel(slog.LevelDebug)
	}
	if err := logging.ConfigureLogOutput(cfg.LoggingToFile, cfg.LogDir); err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	store := credentials.NewStore()
	credWatcher := watcher.New(cfg.CredentialsFile, store)
	credWatcher.LoadInitial()

	gwOpts := []gateway.Option{
		gateway.WithTransport(gateway.NewHTTPTransport(cfg.ProxyURL, 0)),
	}
	if cfg.Host != "" {
		gwOpts = append(gwOpts, gateway.WithHost(cfg.Host))
	}
	gw := gateway.New(store, gwOpts...)

	var persister *usage.Persister
	if cfg.UsageStatistics.Enabled {
		persister, err = usage.NewPersister(cfg.UsageStatistics.DBPath, cfg.UsageStatistics.RetentionDays)
		if err != nil {
			log.Fatalf("open usage store: %v", err)
		}
		defer persister.Stop()
	}

	server := api.New(cfg, gw, store, persister)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(server.Start)

	g.Go(func() error {
		return credWatcher.Run(ctx)
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
		os.Exit(1)
	}
	log.Info("server stopped")
}
