// Package sheet imports projects from the agreement status and bid notice spreadsheets.
package sheet

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

// Kind selects the spreadsheet layout.
type Kind string

const (
	KindAgreement Kind = "agreement"
	KindNotice    Kind = "notice"
)

// ParseKind validates a layout name.
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAgreement, "":
		return KindAgreement, nil
	case KindNotice:
		return KindNotice, nil
	default:
		return "", fmt.Errorf("unknown sheet kind %q", s)
	}
}

// ImportResult holds the projects of one workbook and the number of rows dropped for lacking a name.
type ImportResult struct {
	Kind     Kind             `json:"kind"`
	Sheet    string           `json:"sheet"`
	Projects []models.Project `json:"projects"`
	Dropped  int              `json:"dropped"`
}

// Parse reads a workbook of the given kind.
func Parse(r io.Reader, kind Kind) (*ImportResult, error) {
	switch kind {
	case KindNotice:
		return ParseNoticeWorkbook(r)
	default:
		return ParseAgreementWorkbook(r)
	}
}

// readFirstSheet returns the raw cell values of the first worksheet.
func readFirstSheet(r io.Reader) (string, [][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return "", nil, fmt.Errorf("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return "", nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return sheets[0], rows, nil
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

// Plausible serial day numbers (1954..2119); anything else is read as text.
const (
	minSerialDate = 20000
	maxSerialDate = 80000
)

// parseCellDate accepts an Excel serial day number or any text layout the feeds use.
func parseCellDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if v, err := strconv.ParseFloat(raw, 64); err == nil && v >= minSerialDate && v <= maxSerialDate {
		t, err := excelize.ExcelDateToTime(v, false)
		if err != nil {
			return nil
		}
		local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), 0, 0, ingest.KST)
		return &local
	}
	return ingest.ParseDeadline(raw)
}

// displayDeadline keeps text deadlines as written and renders serial dates.
func displayDeadline(raw string, parsed *time.Time) string {
	if parsed == nil {
		return raw
	}
	if _, err := strconv.ParseFloat(raw, 64); err == nil {
		if parsed.Hour() == 0 && parsed.Minute() == 0 {
			return parsed.Format("2006-01-02")
		}
		return parsed.Format("2006-01-02 15:04")
	}
	return raw
}

// assignIDs gives imported projects the same identity scheme as feed projects:
// the notice number, suffixed with :n when the sheet repeats it.
func assignIDs(projects []models.Project) {
	total := make(map[string]int, len(projects))
	for _, p := range projects {
		total[p.NoticeNo]++
	}
	seq := make(map[string]int, len(total))
	for i := range projects {
		key := projects[i].NoticeNo
		if key == "" {
			projects[i].ID = "row-" + strconv.Itoa(i+1)
			continue
		}
		seq[key]++
		projects[i].ID = key
		if total[key] > 1 {
			projects[i].ID = key + ":" + strconv.Itoa(seq[key])
		}
	}
}
