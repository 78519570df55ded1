package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"sensorhub/internal/app"
	"sensorhub/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to JSON configuration file")
	dbPath := flag.String("db", "", "override database path")
	port := flag.Int("port", 0, "override HTTP listen port")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Optional; a missing .env file is not an error.
	_ = godotenv.Load()

	level := zerolog.InfoLevel
	if *debug {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		Level(level).
		With().Timestamp().Logger()

	cfg := config.Load("")
	if *configPath != "" {
		fileCfg, err := config.LoadFromFile(*configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", *configPath).Msg("failed to load configuration file")
		}
		cfg = fileCfg
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build application")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := application.Start(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to start application")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-application.ServerError():
		logger.Error().Err(err).Msg("http server failed")
	}

	cancel()
	if err := application.Stop(context.Background()); err != nil {
		logger.Error().Err(err).Msg("shutdown finished with errors")
		os.Exit(1)
	}
}
