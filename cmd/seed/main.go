package main

import (
	"os"

	"github.com/oggyb/matchchat/internal/config"
	"github.com/oggyb/matchchat/internal/db"
	"github.com/oggyb/matchchat/internal/logger"
)

func main() {
	cfg := config.New()
	logger.InitFromConfig(cfg)
	log := logger.L()

	database, err := db.NewDB(cfg)
	if err != nil {
		log.Error("failed to init db", "err", err)
		os.Exit(1)
	}

	if _, err := db.SeedQuestions(database); err != nil {
		log.Error("failed to seed questions", "err", err)
		os.Exit(1)
	}
	if _, err := db.SeedPersonalities(database); err != nil {
		log.Error("failed to seed personalities", "err", err)
		os.Exit(1)
	}
	if err := db.SeedDemoData(database); err != nil {
		log.Error("failed to seed", "err", err)
		os.Exit(1)
	}

	log.Info("Seeding completed.")
}
