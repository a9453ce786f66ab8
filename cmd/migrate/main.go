package main

import (
	"flag"
	"fmt"
	"os"

	"tunecrate/internal/config"
	"tunecrate/internal/database"
	"tunecrate/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	loader := config.NewConfigLoader()
	if *configPath != "" {
		loader.SetConfigFile(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to load configuration:", err)
		os.Exit(1)
	}

	logging.InitGlobalLogger(logging.LogLevel(cfg.Logging.Level), cfg.Logging.Format)
	log := logging.WithModule("migrate")

	dbManager, err := database.NewDatabaseManager(&cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbManager.Close()

	if err := database.NewMigrationManager(dbManager.GetGormDB(), log).Migrate(); err != nil {
		log.Error().Err(err).Msg("Migration failed")
		os.Exit(1)
	}
	log.Info().Str("driver", cfg.Database.Driver).Msg("Migrations applied")
}
