// Package board owns the current project collection and the refresh cycle that rebuilds it.
package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

var (
	ErrNoData   = errors.New("no data to load")
	ErrNotFound = errors.New("project not found")
)

// Refresh run statuses.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
	RunNoData    = "no_data"
)

// FeedSource fetches the raw bid and agreement payloads.
type FeedSource interface {
	FetchBoth(ctx context.Context) (bids, agreements json.RawMessage, err error)
}

// Store persists the last good collection, sharing assignments and run history.
type Store interface {
	SaveSnapshot(ctx context.Context, projects []models.Project) error
	LoadSnapshot(ctx context.Context) ([]models.Project, time.Time, error)
	ListShares(ctx context.Context) (map[string][]string, error)
	ReplaceShares(ctx context.Context, noticeNo string, names []string) error
	RecordRun(ctx context.Context, run *models.RefreshRun) error
}

// Collection is an immutable project list. Readers must not modify it.
type Collection struct {
	Projects  []models.Project
	UpdatedAt time.Time
	Source    string
	byID      map[string]int
}

func newCollection(projects []models.Project, source string, at time.Time) *Collection {
	c := &Collection{
		Projects:  projects,
		UpdatedAt: at,
		Source:    source,
		byID:      make(map[string]int, len(projects)),
	}
	for i, p := range projects {
		c.byID[p.ID] = i
	}
	return c
}

type Board struct {
	source     FeedSource
	store      Store
	categories []string
	now        func() time.Time

	current atomic.Pointer[Collection]
}

// New creates an empty board. store may be nil for a board that is not persisted.
func New(source FeedSource, store Store, categories []string) *Board {
	b := &Board{
		source:     source,
		store:      store,
		categories: categories,
		now:        time.Now,
	}
	b.current.Store(newCollection([]models.Project{}, "", time.Time{}))
	return b
}

// Current returns the collection in effect.
func (b *Board) Current() *Collection {
	return b.current.Load()
}

// Projects returns the current project list.
func (b *Board) Projects() []models.Project {
	return b.current.Load().Projects
}

// Project looks a project up by id in the current collection.
func (b *Board) Project(id string) (models.Project, error) {
	c := b.current.Load()
	i, ok := c.byID[id]
	if !ok {
		return models.Project{}, ErrNotFound
	}
	return c.Projects[i], nil
}

// Categories returns the configured category list used for tagging.
func (b *Board) Categories() []string {
	return b.categories
}

// Load restores the last persisted collection.
func (b *Board) Load(ctx context.Context) (int, error) {
	if b.store == nil {
		return 0, nil
	}
	projects, savedAt, err := b.store.LoadSnapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if len(projects) == 0 {
		return 0, nil
	}
	b.current.Store(newCollection(projects, "snapshot", savedAt))
	return len(projects), nil
}

// RefreshReport describes the outcome of one refresh.
type RefreshReport struct {
	Run   models.RefreshRun     `json:"run"`
	Stats ingest.ReconcileStats `json:"stats"`
}

// Refresh fetches both feeds, reconciles them and swaps the new collection in.
// A transport failure leaves the previous collection in place. When the feeds yield
// no projects the collection is also kept and ErrNoData is returned with the report.
func (b *Board) Refresh(ctx context.Context) (RefreshReport, error) {
	run := b.startRun(models.SourceFeed)

	bidRaw, agreementRaw, err := b.source.FetchBoth(ctx)
	if err != nil {
		b.finishRun(ctx, &run, RunFailed, err)
		return RefreshReport{Run: run}, fmt.Errorf("refresh failed: %w", err)
	}

	res := ingest.ReconcilePayloads(bidRaw, agreementRaw)
	run.BidsFound = res.Stats.BidsFound
	run.AgreementsSeen = res.Stats.AgreementsSeen
	run.Rejected = res.Stats.BidsRejected + res.Stats.AgreementsRejected
	run.Projects = len(res.Projects)

	if len(res.Projects) == 0 {
		log.Printf("[Refresh] No projects produced (shape mismatch: %v); keeping %d current projects",
			res.Stats.ShapeMismatch, len(b.Projects()))
		b.finishRun(ctx, &run, RunNoData, nil)
		return RefreshReport{Run: run, Stats: res.Stats}, ErrNoData
	}

	shares := b.loadShares(ctx)
	projects := decorate(res.Projects, shares, b.categories)
	b.publish(ctx, projects, models.SourceFeed)

	log.Printf("[Refresh] %d projects (%d matched, %d unmatched bids, %d agreements dropped)",
		len(projects), res.Stats.Matched, res.Stats.Orphans, res.Stats.AgreementsDropped)
	b.finishRun(ctx, &run, RunCompleted, nil)
	return RefreshReport{Run: run, Stats: res.Stats}, nil
}

// ReplaceFromImport swaps in a collection parsed from a spreadsheet. Sharing lists carried
// by the sheet are stored as assignments for their notice numbers.
func (b *Board) ReplaceFromImport(ctx context.Context, projects []models.Project) (models.RefreshRun, error) {
	run := b.startRun(models.SourceImport)
	run.Projects = len(projects)

	if len(projects) == 0 {
		b.finishRun(ctx, &run, RunNoData, nil)
		return run, ErrNoData
	}

	if b.store != nil {
		imported := make(map[string][]string)
		for _, p := range projects {
			if p.NoticeNo == "" || len(p.SharedWith) == 0 {
				continue
			}
			imported[p.NoticeNo] = ingest.MergeUniqueFold(imported[p.NoticeNo], p.SharedWith)
		}
		for notice, names := range imported {
			if err := b.store.ReplaceShares(ctx, notice, names); err != nil {
				b.finishRun(ctx, &run, RunFailed, err)
				return run, fmt.Errorf("failed to store sharing list for %s: %w", notice, err)
			}
		}
	}

	decorated := decorate(projects, b.loadShares(ctx), b.categories)
	b.publish(ctx, decorated, models.SourceImport)
	b.finishRun(ctx, &run, RunCompleted, nil)
	return run, nil
}

// SetShares replaces the sharing assignment of a notice and applies it to the current collection.
func (b *Board) SetShares(ctx context.Context, noticeNo string, names []string) error {
	names = ingest.MergeUniqueFold(nil, names)
	if b.store != nil {
		if err := b.store.ReplaceShares(ctx, noticeNo, names); err != nil {
			return fmt.Errorf("failed to store sharing list: %w", err)
		}
	}

	b.update(func(cur *Collection) *Collection {
		projects := make([]models.Project, len(cur.Projects))
		copy(projects, cur.Projects)
		for i := range projects {
			if projects[i].NoticeNo == noticeNo {
				projects[i].SharedWith = append([]string{}, names...)
			}
		}
		return newCollection(projects, cur.Source, cur.UpdatedAt)
	})
	return nil
}

// update derives a new collection from the current one and swaps it in, retrying
// when another writer published in between.
func (b *Board) update(derive func(cur *Collection) *Collection) {
	for {
		cur := b.current.Load()
		if b.current.CompareAndSwap(cur, derive(cur)) {
			return
		}
	}
}

func (b *Board) publish(ctx context.Context, projects []models.Project, source string) {
	b.current.Store(newCollection(projects, source, b.now()))

	if b.store == nil {
		return
	}
	if err := b.store.SaveSnapshot(ctx, projects); err != nil {
		log.Printf("[Warn] Failed to persist snapshot: %v", err)
	}
}

func (b *Board) loadShares(ctx context.Context) map[string][]string {
	if b.store == nil {
		return nil
	}
	shares, err := b.store.ListShares(ctx)
	if err != nil {
		log.Printf("[Warn] Failed to load sharing assignments: %v", err)
		return nil
	}
	return shares
}

func (b *Board) startRun(source string) models.RefreshRun {
	return models.RefreshRun{
		ID:        uuid.New(),
		Source:    source,
		Status:    RunRunning,
		StartedAt: b.now(),
	}
}

func (b *Board) finishRun(ctx context.Context, run *models.RefreshRun, status string, err error) {
	run.Status = status
	if err != nil {
		run.Error = err.Error()
	}
	done := b.now()
	run.CompletedAt = &done

	if b.store == nil {
		return
	}
	// the run is recorded even when the caller's context is already done
	if recErr := b.store.RecordRun(context.WithoutCancel(ctx), run); recErr != nil {
		log.Printf("[Warn] Failed to record refresh run %s: %v", run.ID, recErr)
	}
}

// decorate attaches category tags and sharing assignments. The input is not modified.
func decorate(projects []models.Project, shares map[string][]string, categories []string) []models.Project {
	out := make([]models.Project, len(projects))
	for i, p := range projects {
		p.Tags = ingest.TagCategories(p.Name, categories)
		if p.Tags == nil {
			p.Tags = []string{}
		}
		p.SharedWith = ingest.MergeUniqueFold(append([]string{}, p.SharedWith...), shares[p.NoticeNo])
		if p.Members == nil {
			p.Members = []models.CompanyMember{}
		}
		out[i] = p
	}
	return out
}
