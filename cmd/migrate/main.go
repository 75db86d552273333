package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"reseller-ledger/config"
	pgStorage "reseller-ledger/internal/adapter/storage/postgres"
	"reseller-ledger/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the config file")
	cmd := flag.String("cmd", "up", "goose command: up|down|status|version|redo|reset")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.Component(logger.New(cfg.Log.Level, cfg.Log.Pretty), "migrate")
	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	log.Info().Str("cmd", *cmd).Msg("Running migrations")
	if err := pgStorage.Migrate(ctx, pool, *cmd, flag.Args()...); err != nil {
		log.Error().Err(err).Str("cmd", *cmd).Msg("Migration failed")
		pool.Close()
		os.Exit(1)
	}
	log.Info().Str("cmd", *cmd).Msg("Migrations finished")
}
