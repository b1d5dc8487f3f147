package filter

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/david/jv-board/internal/models"
)

func member(name string, st models.SubmissionStatus) models.CompanyMember {
	return models.CompanyMember{Name: name, Role: models.RoleMember, Status: st}
}

func ids(projects []models.Project) []string {
	out := []string{}
	for _, p := range projects {
		out = append(out, p.ID)
	}
	return out
}

func fixture() []models.Project {
	return []models.Project{
		{
			ID: "1", Name: "국도 포장공사", NoticeNo: "2025-001", Client: "국토관리청", Representative: "A건설",
			Members:    []models.CompanyMember{member("A건설", models.Submitted), member("B산업", models.Submitted)},
			SharedWith: []string{"김철수"},
		},
		{
			ID: "2", Name: "하수관로 정비", NoticeNo: "2025-002", Client: "서울시", Representative: "C토건",
			Members:    []models.CompanyMember{member("C토건", models.Submitted), {Name: "D전기", Status: models.NotSubmitted, Contact: "Lee"}},
			SharedWith: []string{"이영희", "kim"},
		},
		{
			ID: "3", Name: "교량 도장", NoticeNo: "2025-003", Client: "부산시", Representative: models.RepresentativeUnset,
			Members:    []models.CompanyMember{},
			SharedWith: []string{"철수"},
		},
		{
			ID: "4", Name: "전기 설비 포장", NoticeNo: "2025-004",
			SharedWith: []string{},
		},
	}
}

func TestApply_PermissionGate(t *testing.T) {
	projects := []models.Project{
		{ID: "shared", SharedWith: []string{"김철수"}},
		{ID: "empty", SharedWith: []string{}},
	}

	tests := []struct {
		name   string
		viewer Viewer
		want   []string
	}{
		{"display name", Viewer{Name: "김철수", Username: "chulsoo"}, []string{"shared"}},
		{"username", Viewer{Name: "Kim", Username: "김철수"}, []string{"shared"}},
		{"alias", Viewer{Name: "Kim", Username: "ck", Aliases: []string{"김철수"}}, []string{"shared"}},
		{"other user", Viewer{Name: "이영희", Username: "younghee"}, []string{}},
		{"anonymous", Viewer{}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(projects, tt.viewer, Criteria{}))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("visible ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestApply_Predicates(t *testing.T) {
	viewer := Viewer{Name: "김철수", Username: "kim", Aliases: []string{"이영희", "철수"}}

	tests := []struct {
		name     string
		criteria Criteria
		want     []string
	}{
		{"no filters", Criteria{}, []string{"1", "2", "3"}},
		{"hidden", Criteria{HiddenIDs: []string{"2"}}, []string{"1", "3"}},
		{"category", Criteria{Categories: []string{"포장", "도장"}}, []string{"1", "3"}},
		{"blank category is inactive", Criteria{Categories: []string{""}}, []string{"1", "2", "3"}},
		{"ongoing", Criteria{Status: StatusOngoing}, []string{"1", "2"}},
		{"completed", Criteria{Status: StatusCompleted}, []string{"1"}},
		{"search name", Criteria{Query: "하수"}, []string{"2"}},
		{"search notice", Criteria{Query: "2025-003"}, []string{"3"}},
		{"search client", Criteria{Query: "서울"}, []string{"2"}},
		{"search representative", Criteria{Query: "a건설"}, []string{"1"}},
		{"search member contact", Criteria{Query: "lee"}, []string{"2"}},
		{"search member name", Criteria{Query: "B산업"}, []string{"1"}},
		{"combined", Criteria{Categories: []string{"포장"}, Status: StatusCompleted, Query: "국도"}, []string{"1"}},
		{"no match", Criteria{Query: "없는공사"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(fixture(), viewer, tt.criteria))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("visible ids mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseStatusFilter(t *testing.T) {
	tests := map[string]StatusFilter{
		"":          StatusAll,
		"all":       StatusAll,
		"Ongoing":   StatusOngoing,
		"completed": StatusCompleted,
		"bogus":     StatusAll,
	}
	for in, want := range tests {
		if got := ParseStatusFilter(in); got != want {
			t.Errorf("ParseStatusFilter(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDated(t *testing.T) {
	at := func(d int) *time.Time {
		v := time.Date(2025, 6, d, 9, 0, 0, 0, time.UTC)
		return &v
	}
	projects := []models.Project{
		{ID: "before", ParsedDate: at(1)},
		{ID: "start", ParsedDate: at(2)},
		{ID: "inside", ParsedDate: at(5)},
		{ID: "undated"},
		{ID: "end", ParsedDate: at(9)},
	}
	from := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	to := time.Date(2025, 6, 9, 9, 0, 0, 0, time.UTC)

	if diff := cmp.Diff([]string{"start", "inside"}, ids(Dated(projects, from, to))); diff != "" {
		t.Fatalf("Dated mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"before", "start", "inside", "end"}, ids(Dated(projects, time.Time{}, time.Time{}))); diff != "" {
		t.Fatalf("open range should only drop undated projects (-want +got):\n%s", diff)
	}
}

func TestSummarize(t *testing.T) {
	got := Summarize(fixture())
	want := Summary{Total: 4, Complete: 1, InProgress: 1, Unconfirmed: 2}
	if got != want {
		t.Fatalf("Summarize = %+v, want %+v", got, want)
	}
}
