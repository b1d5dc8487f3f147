package sheet

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

func buildWorkbook(t *testing.T, rows [][]interface{}) *bytes.Reader {
	t.Helper()

	wb := excelize.NewFile()
	defer wb.Close()
	sheet := wb.GetSheetName(wb.GetActiveSheetIndex())

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		r := row
		if err := wb.SetSheetRow(sheet, cell, &r); err != nil {
			t.Fatalf("SetSheetRow %s failed: %v", cell, err)
		}
	}

	buf, err := wb.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer failed: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseAgreementWorkbook(t *testing.T) {
	rows := [][]interface{}{
		{"공고번호", "공사명", "발주처", "지역", "기초금액", "협정마감일", "공유자",
			"대표사", "사업자번호", "지분율", "최종제출", "카톡담당자",
			"구성사 1", "사업자번호1", "지분율1", "최종 제출1", "카톡담당자1"},
		{"2025-001", "국도 포장공사", "국토관리청", "경기", "1,000,000", 45823, "김철수, 이영희",
			"A사", "1234567890", 0.6, "O", "박담당",
			"B사", "", "40", "X", ""},
		{"2025-009", "", "발주처만"},
		{"2025-001", "국도 포장공사 2차", "국토관리청", "경기", "", "2025-06-20 10:00", "박민수",
			"", "", "", "", "",
			"C사", "", "", "o", "최과장"},
	}

	res, err := ParseAgreementWorkbook(buildWorkbook(t, rows))
	if err != nil {
		t.Fatalf("ParseAgreementWorkbook failed: %v", err)
	}
	if res.Kind != KindAgreement || res.Dropped != 1 || len(res.Projects) != 2 {
		t.Fatalf("unexpected result kind=%s dropped=%d projects=%d", res.Kind, res.Dropped, len(res.Projects))
	}

	first := res.Projects[0]
	if first.ID != "2025-001:1" || first.Amount != "1000000" || first.Client != "국토관리청" || first.Location != "경기" {
		t.Fatalf("unexpected first project %+v", first)
	}
	if first.ParsedDate == nil || !first.ParsedDate.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, ingest.KST)) {
		t.Fatalf("expected serial date 2025-06-15, got %v", first.ParsedDate)
	}
	if first.Deadline != "2025-06-15" {
		t.Fatalf("expected rendered deadline, got %q", first.Deadline)
	}
	if diff := cmp.Diff([]string{"김철수", "이영희"}, first.SharedWith); diff != "" {
		t.Fatalf("shared_with mismatch (-want +got):\n%s", diff)
	}

	wantMembers := []models.CompanyMember{
		{Name: "A사", BusinessNo: "123-45-67890", Role: models.RoleRepresentative, Share: "60.00%", ShareRatio: 60, Contact: "박담당", Status: models.Submitted, StatusRaw: "O"},
		{Name: "B사", Role: models.RoleMember, Share: "40.00%", ShareRatio: 40, Status: models.NotSubmitted, StatusRaw: "X"},
	}
	if diff := cmp.Diff(wantMembers, first.Members); diff != "" {
		t.Fatalf("members mismatch (-want +got):\n%s", diff)
	}
	if first.Representative != "A사" || first.Status() != models.StatusInProgress {
		t.Fatalf("unexpected representative/status %q/%s", first.Representative, first.Status())
	}

	second := res.Projects[1]
	if second.ID != "2025-001:2" || second.Representative != "C사" {
		t.Fatalf("unexpected second project %+v", second)
	}
	if len(second.Members) != 1 || second.Members[0].Role != models.RoleRepresentative || second.Members[0].Contact != "최과장" {
		t.Fatalf("expected promoted representative, got %+v", second.Members)
	}
	if second.Status() != models.StatusComplete {
		t.Fatalf("expected complete, got %s", second.Status())
	}
	if second.ParsedDate == nil || second.ParsedDate.Hour() != 10 || second.Deadline != "2025-06-20 10:00" {
		t.Fatalf("text deadline should be parsed and kept, got %q %v", second.Deadline, second.ParsedDate)
	}
	if second.Amount != "0" {
		t.Fatalf("empty amount should normalize to 0, got %q", second.Amount)
	}
}

func TestParseNoticeWorkbook(t *testing.T) {
	rows := [][]interface{}{
		{"공고번호", "공사명", "", "기초금액", "", "", "", "발주처", "지역", "협정마감일"},
		{"N-1", "하수관로 정비", "", "500,000원", "", "", "", "서울시", "서울", "2025.07.01"},
		{"N-2", "", "", "1"},
		{"N-3", "교량 보수", "", 700000, "", "", "", "부산시", "부산", 45839},
	}

	res, err := ParseNoticeWorkbook(buildWorkbook(t, rows))
	if err != nil {
		t.Fatalf("ParseNoticeWorkbook failed: %v", err)
	}
	if res.Dropped != 1 || len(res.Projects) != 2 {
		t.Fatalf("unexpected result dropped=%d projects=%d", res.Dropped, len(res.Projects))
	}

	var got []string
	for _, p := range res.Projects {
		got = append(got, strings.Join([]string{p.ID, p.Name, p.Amount, p.Client, p.Location, p.ParsedDate.Format("2006-01-02")}, "|"))
		if len(p.Members) != 0 || p.Representative != models.RepresentativeUnset || p.Source != models.SourceImport {
			t.Fatalf("notice projects carry no consortium, got %+v", p)
		}
	}
	want := []string{
		"N-1|하수관로 정비|500000|서울시|서울|2025-07-01",
		"N-3|교량 보수|700000|부산시|부산|2025-07-01",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("projects mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_HeaderOnlyAndInvalid(t *testing.T) {
	res, err := Parse(buildWorkbook(t, [][]interface{}{{"공사명"}}), KindAgreement)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if len(res.Projects) != 0 || res.Projects == nil {
		t.Fatalf("expected empty project list, got %v", res.Projects)
	}

	if _, err := Parse(strings.NewReader("not a workbook"), KindNotice); err == nil {
		t.Fatal("expected error for invalid workbook")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"": KindAgreement, "agreement": KindAgreement, "Notice": KindNotice} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = (%q, %v), want %q", in, got, err, want)
		}
	}
	if _, err := ParseKind("csv"); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestParseCellDate(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"45823", "2025-06-15 00:00"},
		{"45823.5", "2025-06-15 12:00"},
		{"2025.07.01 10:00", "2025-07-01 10:00"},
		{"19999", ""},
		{"", ""},
	}
	for _, tt := range tests {
		got := parseCellDate(tt.in)
		s := ""
		if got != nil {
			s = got.In(ingest.KST).Format("2006-01-02 15:04")
		}
		if s != tt.want {
			t.Errorf("parseCellDate(%q) = %q, want %q", tt.in, s, tt.want)
		}
	}
}
