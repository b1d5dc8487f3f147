package main

import (
	"context"
	"fmt"
	"log"

	"github.com/david/jv-board/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	var projects, notices, shares, users, prefsRows, runs int
	err = pool.QueryRow(ctx, `
		SELECT
			(SELECT count(*) FROM project_snapshot),
			(SELECT count(DISTINCT notice_no) FROM project_snapshot),
			(SELECT count(*) FROM project_shares),
			(SELECT count(*) FROM users),
			(SELECT count(*) FROM user_preferences),
			(SELECT count(*) FROM refresh_runs)
	`).Scan(&projects, &notices, &shares, &users, &prefsRows, &runs)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Snapshot projects: %d (%d notices)\n", projects, notices)
	fmt.Printf("Sharing assignments: %d\n", shares)
	fmt.Printf("Users: %d (with preferences: %d)\n", users, prefsRows)
	fmt.Printf("Refresh runs: %d\n", runs)
}
