package main

import (
	"context"
	"flag"
	"log"

	"github.com/david/jv-board/internal/auth"
	"github.com/david/jv-board/internal/db"
)

func main() {
	username := flag.String("username", "", "Login name")
	name := flag.String("name", "", "Display name used for project sharing")
	code := flag.String("code", "", "Access code")
	role := flag.String("role", auth.RoleUser, "user or admin")
	flag.Parse()

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	user, err := auth.NewService(db.NewStore(pool)).CreateUser(ctx, auth.CreateUserRequest{
		Username:   *username,
		Name:       *name,
		AccessCode: *code,
		Role:       *role,
	})
	if err != nil {
		log.Fatalf("Failed to create user: %v", err)
	}
	log.Printf("Created %s user %s (%s) id=%s", user.Role, user.Username, user.Name, user.ID)
}
