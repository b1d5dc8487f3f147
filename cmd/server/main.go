package main

import (
	"context"
	"log"
	"os"

	"github.com/david/jv-board/internal/api"
	"github.com/david/jv-board/internal/auth"
	"github.com/david/jv-board/internal/board"
	"github.com/david/jv-board/internal/db"
	"github.com/david/jv-board/internal/ingest"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
	}

	reg, err := ingest.LoadRegistry(os.Getenv("FEEDS_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load feed registry: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	store := db.NewStore(pool)
	feeds := ingest.NewFeedClient(reg)
	b := board.New(feeds, store, reg.AllCategories())

	n, err := b.Load(ctx)
	if err != nil {
		log.Printf("[Warn] %v", err)
	}
	log.Printf("Restored %d projects from snapshot", n)

	srv := api.NewServer(b, store, auth.NewService(store), feeds)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
