package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/david/jv-board/internal/models"
)

type fakeSource struct {
	bids       string
	agreements string
	err        error
}

func (f *fakeSource) FetchBoth(ctx context.Context) (json.RawMessage, json.RawMessage, error) {
	if f.err != nil {
		return nil, nil, f.err
	}
	return json.RawMessage(f.bids), json.RawMessage(f.agreements), nil
}

type fakeStore struct {
	mu       sync.Mutex
	snapshot []models.Project
	savedAt  time.Time
	shares   map[string][]string
	runs     []models.RefreshRun
}

func newFakeStore() *fakeStore {
	return &fakeStore{shares: map[string][]string{}}
}

func (s *fakeStore) SaveSnapshot(ctx context.Context, projects []models.Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = projects
	s.savedAt = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	return nil
}

func (s *fakeStore) LoadSnapshot(ctx context.Context) ([]models.Project, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, s.savedAt, nil
}

func (s *fakeStore) ListShares(ctx context.Context) (map[string][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]string, len(s.shares))
	for k, v := range s.shares {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) ReplaceShares(ctx context.Context, noticeNo string, names []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shares[noticeNo] = names
	return nil
}

func (s *fakeStore) RecordRun(ctx context.Context, run *models.RefreshRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, *run)
	return nil
}

const (
	testBids       = `[{"공고번호":"2025-001","공사명":"국도 포장공사","기초금액":"1,000,000"},{"공고번호":"2025-002","공사명":"교량 도장"}]`
	testAgreements = `[{"공고번호":"2025-001","대표사":"A사","최종제출":"O"}]`
)

func TestRefresh_SwapsAndDecorates(t *testing.T) {
	store := newFakeStore()
	store.shares["2025-001"] = []string{"김철수"}
	b := New(&fakeSource{bids: testBids, agreements: testAgreements}, store, []string{"포장", "도장"})

	report, err := b.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if report.Run.Status != RunCompleted || report.Run.Projects != 2 {
		t.Fatalf("unexpected run %+v", report.Run)
	}

	projects := b.Projects()
	if len(projects) != 2 {
		t.Fatalf("expected 2 projects, got %d", len(projects))
	}
	p, err := b.Project("2025-001")
	if err != nil {
		t.Fatalf("Project lookup failed: %v", err)
	}
	if diff := cmp.Diff([]string{"포장"}, p.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"김철수"}, p.SharedWith); diff != "" {
		t.Fatalf("shared_with mismatch (-want +got):\n%s", diff)
	}
	if len(store.snapshot) != 2 {
		t.Fatalf("expected snapshot to be persisted, got %d projects", len(store.snapshot))
	}
	if len(store.runs) != 1 || store.runs[0].CompletedAt == nil {
		t.Fatalf("expected one completed run, got %+v", store.runs)
	}
	if _, err := b.Project("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefresh_TransportFailureKeepsCollection(t *testing.T) {
	store := newFakeStore()
	src := &fakeSource{bids: testBids, agreements: testAgreements}
	b := New(src, store, nil)

	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}
	before := b.Current()

	transport := errors.New("connection refused")
	src.err = transport
	report, err := b.Refresh(context.Background())
	if !errors.Is(err, transport) {
		t.Fatalf("expected wrapped transport error, got %v", err)
	}
	if report.Run.Status != RunFailed || report.Run.Error == "" {
		t.Fatalf("unexpected run %+v", report.Run)
	}
	if b.Current() != before {
		t.Fatal("collection must not change after a transport failure")
	}
}

func TestRefresh_NoDataKeepsCollection(t *testing.T) {
	src := &fakeSource{bids: testBids, agreements: testAgreements}
	b := New(src, nil, nil)
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("initial refresh failed: %v", err)
	}

	src.bids = `{"message":"maintenance"}`
	report, err := b.Refresh(context.Background())
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
	if !report.Stats.ShapeMismatch || report.Run.Status != RunNoData {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(b.Projects()) != 2 {
		t.Fatalf("expected previous 2 projects to remain, got %d", len(b.Projects()))
	}
}

func TestLoad_RestoresSnapshot(t *testing.T) {
	store := newFakeStore()
	store.snapshot = []models.Project{{ID: "x", NoticeNo: "x"}}
	store.savedAt = time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)

	b := New(&fakeSource{}, store, nil)
	n, err := b.Load(context.Background())
	if err != nil || n != 1 {
		t.Fatalf("Load = (%d, %v), want (1, nil)", n, err)
	}
	if c := b.Current(); c.Source != "snapshot" || !c.UpdatedAt.Equal(store.savedAt) {
		t.Fatalf("unexpected collection metadata %+v", c)
	}
}

func TestReplaceFromImport_RecordsShares(t *testing.T) {
	store := newFakeStore()
	b := New(&fakeSource{}, store, []string{"포장"})

	projects := []models.Project{
		{ID: "N-1", NoticeNo: "N-1", Name: "포장 공사", SharedWith: []string{"김철수", "이영희"}, Source: models.SourceImport},
		{ID: "N-2", NoticeNo: "N-2", Name: "건축", Source: models.SourceImport},
	}
	run, err := b.ReplaceFromImport(context.Background(), projects)
	if err != nil {
		t.Fatalf("ReplaceFromImport failed: %v", err)
	}
	if run.Source != models.SourceImport || run.Status != RunCompleted {
		t.Fatalf("unexpected run %+v", run)
	}
	if diff := cmp.Diff([]string{"김철수", "이영희"}, store.shares["N-1"]); diff != "" {
		t.Fatalf("stored shares mismatch (-want +got):\n%s", diff)
	}
	if _, ok := store.shares["N-2"]; ok {
		t.Fatal("projects without a sharing list must not create assignments")
	}

	p, _ := b.Project("N-1")
	if diff := cmp.Diff([]string{"포장"}, p.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}

	if _, err := b.ReplaceFromImport(context.Background(), nil); !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData for an empty import, got %v", err)
	}
	if len(b.Projects()) != 2 {
		t.Fatal("empty import must not replace the collection")
	}
}

func TestSetShares(t *testing.T) {
	store := newFakeStore()
	b := New(&fakeSource{bids: testBids, agreements: testAgreements}, store, nil)
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	before := b.Projects()

	if err := b.SetShares(context.Background(), "2025-002", []string{"박민수", " 박민수 "}); err != nil {
		t.Fatalf("SetShares failed: %v", err)
	}

	p, _ := b.Project("2025-002")
	if diff := cmp.Diff([]string{"박민수"}, p.SharedWith); diff != "" {
		t.Fatalf("shared_with mismatch (-want +got):\n%s", diff)
	}
	if len(before[1].SharedWith) != 0 {
		t.Fatal("previous collection must not be mutated")
	}

	// assignments survive the next refresh
	if _, err := b.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	p, _ = b.Project("2025-002")
	if diff := cmp.Diff([]string{"박민수"}, p.SharedWith); diff != "" {
		t.Fatalf("shared_with after refresh mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdate_RetriesAfterConcurrentPublish(t *testing.T) {
	ctx := context.Background()
	b := New(nil, nil, nil)
	b.publish(ctx, []models.Project{{ID: "old", NoticeNo: "N-1"}}, models.SourceImport)

	calls := 0
	b.update(func(cur *Collection) *Collection {
		calls++
		if calls == 1 {
			// a refresh lands while the derived collection is being built
			b.publish(ctx, []models.Project{{ID: "new", NoticeNo: "N-1"}}, models.SourceFeed)
		}
		return newCollection(cur.Projects, cur.Source, cur.UpdatedAt)
	})

	if calls != 2 {
		t.Fatalf("expected a retry, derive ran %d times", calls)
	}
	cur := b.Current()
	if cur.Source != models.SourceFeed || cur.Projects[0].ID != "new" {
		t.Fatalf("stale collection restored: %+v", cur.Projects)
	}
}

func TestSetShares_ConcurrentWritersKeepAll(t *testing.T) {
	ctx := context.Background()
	b := New(nil, nil, nil)

	var projects []models.Project
	for i := 0; i < 20; i++ {
		n := fmt.Sprintf("N-%d", i)
		projects = append(projects, models.Project{ID: n, NoticeNo: n})
	}
	b.publish(ctx, projects, models.SourceImport)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := b.SetShares(ctx, fmt.Sprintf("N-%d", i), []string{fmt.Sprintf("담당%d", i)}); err != nil {
				t.Errorf("SetShares failed: %v", err)
			}
		}(i)
	}
	wg.Wait()

	for i, p := range b.Projects() {
		if len(p.SharedWith) != 1 || p.SharedWith[0] != fmt.Sprintf("담당%d", i) {
			t.Fatalf("project %s lost its sharing list: %v", p.ID, p.SharedWith)
		}
	}
}
