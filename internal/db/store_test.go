package db

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/jv-board/internal/models"
	"github.com/david/jv-board/internal/prefs"
)

func TestClampLimit(t *testing.T) {
	tests := map[int]int{-1: 20, 0: 20, 5: 5, 500: 500, 9000: 500}
	for in, want := range tests {
		if got := clampLimit(in); got != want {
			t.Errorf("clampLimit(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSnapshotRows_KeepOrder(t *testing.T) {
	projects := []models.Project{
		{ID: "B:1", NoticeNo: "B", Name: "두번째"},
		{ID: "A", NoticeNo: "A", Name: "첫번째"},
	}
	rows, err := snapshotRows(projects)
	if err != nil {
		t.Fatalf("snapshotRows failed: %v", err)
	}
	if len(rows) != 2 || rows[0][0] != 0 || rows[1][0] != 1 || rows[0][1] != "B:1" || rows[1][2] != "A" {
		t.Fatalf("unexpected rows %v", rows)
	}

	var decoded models.Project
	if err := json.Unmarshal(rows[0][3].([]byte), &decoded); err != nil {
		t.Fatalf("doc is not valid JSON: %v", err)
	}
	if decoded.Name != "두번째" {
		t.Fatalf("unexpected decoded project %+v", decoded)
	}
}

func TestMigrationFiles_Sorted(t *testing.T) {
	files, err := migrationFiles()
	if err != nil {
		t.Fatalf("migrationFiles failed: %v", err)
	}
	if len(files) == 0 || files[0] != "001_init.sql" {
		t.Fatalf("unexpected migration files %v", files)
	}
}

func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		t.Skip("Database not available, skipping integration test")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		t.Skip("Database not reachable, skipping integration test")
	}
	t.Cleanup(pool.Close)
	if err := ApplyMigrations(ctx, pool); err != nil {
		t.Fatalf("ApplyMigrations failed: %v", err)
	}
	return pool
}

func TestStore_Integration(t *testing.T) {
	pool := testPool(t)
	store := NewStore(pool)
	ctx := context.Background()

	deadline := time.Date(2025, 6, 15, 14, 0, 0, 0, time.UTC)
	projects := []models.Project{
		{ID: "IT-1", NoticeNo: "IT-1", Name: "통합 테스트", ParsedDate: &deadline, Members: []models.CompanyMember{{Name: "A사", Status: models.Submitted}}},
		{ID: "IT-2", NoticeNo: "IT-2", Name: "두번째"},
	}
	if err := store.SaveSnapshot(ctx, projects); err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}
	loaded, _, err := store.LoadSnapshot(ctx)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}
	if len(loaded) != 2 || loaded[0].ID != "IT-1" || loaded[0].Members[0].Status != models.Submitted {
		t.Fatalf("unexpected snapshot %+v", loaded)
	}

	notice := "IT-" + uuid.NewString()[:8]
	if err := store.ReplaceShares(ctx, notice, []string{"김철수", "이영희"}); err != nil {
		t.Fatalf("ReplaceShares failed: %v", err)
	}
	shares, err := store.ListShares(ctx)
	if err != nil {
		t.Fatalf("ListShares failed: %v", err)
	}
	if got := shares[notice]; len(got) != 2 || got[0] != "김철수" {
		t.Fatalf("unexpected shares %v", got)
	}
	if err := store.ReplaceShares(ctx, notice, nil); err != nil {
		t.Fatalf("ReplaceShares(nil) failed: %v", err)
	}

	u := &models.User{Username: "it-" + uuid.NewString()[:8], Name: "테스트", Role: "user", PasswordHash: "x"}
	if err := store.CreateUser(ctx, u); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	dup := &models.User{Username: u.Username, Name: "중복", Role: "user", PasswordHash: "x"}
	if err := store.CreateUser(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if _, err := store.UserByUsername(ctx, "missing-"+uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := store.GetPreferences(ctx, u.ID)
	if err != nil || p.Version != prefs.CurrentVersion {
		t.Fatalf("GetPreferences = (%+v, %v)", p, err)
	}
	p.Hide("IT-1")
	if err := store.SavePreferences(ctx, u.ID, p); err != nil {
		t.Fatalf("SavePreferences failed: %v", err)
	}
	p, _ = store.GetPreferences(ctx, u.ID)
	if len(p.HiddenIDs) != 1 {
		t.Fatalf("expected hidden id to persist, got %+v", p)
	}

	done := time.Now()
	run := &models.RefreshRun{ID: uuid.New(), Source: models.SourceFeed, Status: "completed", StartedAt: done, CompletedAt: &done}
	if err := store.RecordRun(ctx, run); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	runs, err := store.ListRuns(ctx, 5)
	if err != nil || len(runs) == 0 {
		t.Fatalf("ListRuns = (%d, %v)", len(runs), err)
	}
}
