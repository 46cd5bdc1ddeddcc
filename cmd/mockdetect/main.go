package main

import (
	"fmt"
	"log"
	"net/http"

	"warescan/internal/config"
	"warescan/internal/logger"
	"warescan/internal/mockserver"
	"warescan/internal/repository/sqlite"
)

func main() {
	cfg := config.Load()
	logg := logger.New(cfg.LogDirectory)

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open product catalog: %v", err)
	}
	defer db.Close()

	repo := sqlite.NewProductRepository(db)
	if err := repo.Seed(); err != nil {
		log.Fatalf("Failed to seed product catalog: %v", err)
	}
	count, err := repo.Count()
	if err != nil {
		log.Fatalf("Failed to count products: %v", err)
	}

	srv := mockserver.New(logg, repo, cfg.DetectEvery)

	fmt.Printf("🧪 Mock detection service\n")
	fmt.Printf("📍 URL: ws://localhost:%d/api/v1\n", cfg.MockPort)
	fmt.Printf("📦 Catalog: %d products (%s)\n", count, cfg.DatabasePath)

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.MockPort), srv.Router()); err != nil {
		log.Fatalf("Failed to start mock service: %v", err)
	}
}
