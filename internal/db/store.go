package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/david/jv-board/internal/models"
	"github.com/david/jv-board/internal/prefs"
)

var (
	ErrNotFound  = models.ErrNotFound
	ErrDuplicate = models.ErrDuplicate
)

const uniqueViolation = "23505"

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Snapshot

// SaveSnapshot replaces the stored collection in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, projects []models.Project) error {
	rows, err := snapshotRows(projects)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM project_snapshot"); err != nil {
		return fmt.Errorf("failed to clear snapshot: %w", err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"project_snapshot"},
		[]string{"ordinal", "project_id", "notice_no", "doc"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("failed to copy snapshot rows: %w", err)
	}

	return tx.Commit(ctx)
}

func snapshotRows(projects []models.Project) ([][]any, error) {
	rows := make([][]any, 0, len(projects))
	for i, p := range projects {
		doc, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("failed to encode project %s: %w", p.ID, err)
		}
		rows = append(rows, []any{i, p.ID, p.NoticeNo, doc})
	}
	return rows, nil
}

// LoadSnapshot returns the stored collection in its original order and the time it was saved.
func (s *Store) LoadSnapshot(ctx context.Context) ([]models.Project, time.Time, error) {
	rows, err := s.pool.Query(ctx, "SELECT doc, saved_at FROM project_snapshot ORDER BY ordinal")
	if err != nil {
		return nil, time.Time{}, err
	}
	defer rows.Close()

	var (
		projects []models.Project
		savedAt  time.Time
	)
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc, &savedAt); err != nil {
			return nil, time.Time{}, err
		}
		var p models.Project
		if err := json.Unmarshal(doc, &p); err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode snapshot row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, savedAt, rows.Err()
}

// Sharing assignments

func (s *Store) ListShares(ctx context.Context) (map[string][]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT notice_no, name FROM project_shares ORDER BY notice_no, position")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shares := make(map[string][]string)
	for rows.Next() {
		var notice, name string
		if err := rows.Scan(&notice, &name); err != nil {
			return nil, err
		}
		shares[notice] = append(shares[notice], name)
	}
	return shares, rows.Err()
}

// ReplaceShares sets the sharing list of one notice; an empty list removes it.
func (s *Store) ReplaceShares(ctx context.Context, noticeNo string, names []string) error {
	noticeNo = strings.TrimSpace(noticeNo)
	if noticeNo == "" {
		return fmt.Errorf("notice number is required")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "DELETE FROM project_shares WHERE notice_no = $1", noticeNo); err != nil {
		return fmt.Errorf("failed to clear shares: %w", err)
	}

	batch := &pgx.Batch{}
	for i, name := range names {
		batch.Queue(`
			INSERT INTO project_shares (notice_no, name, position)
			VALUES ($1, $2, $3)
			ON CONFLICT (notice_no, name) DO NOTHING
		`, noticeNo, name, i)
	}
	if batch.Len() > 0 {
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("failed to insert shares: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Refresh runs

func (s *Store) RecordRun(ctx context.Context, run *models.RefreshRun) error {
	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO refresh_runs (id, source, status, bids_found, agreements_seen, projects, rejected, error, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			bids_found = EXCLUDED.bids_found,
			agreements_seen = EXCLUDED.agreements_seen,
			projects = EXCLUDED.projects,
			rejected = EXCLUDED.rejected,
			error = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at
	`, run.ID, run.Source, run.Status, run.BidsFound, run.AgreementsSeen, run.Projects, run.Rejected,
		errText, run.StartedAt, run.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.RefreshRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, status, bids_found, agreements_seen, projects, rejected, error, started_at, completed_at
		FROM refresh_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.RefreshRun{}
	for rows.Next() {
		var r models.RefreshRun
		var errText *string
		if err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.BidsFound, &r.AgreementsSeen,
			&r.Projects, &r.Rejected, &errText, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		if errText != nil {
			r.Error = *errText
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// Users

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (id, username, name, role, password_hash)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`, u.ID, u.Username, u.Name, u.Role, u.PasswordHash).Scan(&u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicate
		}
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

const userCols = "id, username, name, role, password_hash, created_at"

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Username, &u.Name, &u.Role, &u.PasswordHash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE username = $1", username))
}

func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, "SELECT "+userCols+" FROM users WHERE id = $1", id))
}

// Preferences

// GetPreferences returns the stored document upgraded to the current version,
// or the defaults when the user has none.
func (s *Store) GetPreferences(ctx context.Context, userID uuid.UUID) (prefs.Preferences, error) {
	var doc []byte
	err := s.pool.QueryRow(ctx, "SELECT doc FROM user_preferences WHERE user_id = $1", userID).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return prefs.Default(), nil
	}
	if err != nil {
		return prefs.Preferences{}, err
	}
	return prefs.Migrate(doc)
}

func (s *Store) SavePreferences(ctx context.Context, userID uuid.UUID, p prefs.Preferences) error {
	p.Version = prefs.CurrentVersion
	doc, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO user_preferences (user_id, doc, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = NOW()
	`, userID, doc)
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}
