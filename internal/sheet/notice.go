package sheet

import (
	"io"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

// Columns of the bid notice list.
const (
	noticeColNotice   = 0 // A
	noticeColName     = 1 // B
	noticeColAmount   = 3 // D
	noticeColClient   = 7 // H
	noticeColLocation = 8 // I
	noticeColDeadline = 9 // J
)

// ParseNoticeWorkbook reads the bid notice list. Its projects carry no consortium yet.
func ParseNoticeWorkbook(r io.Reader) (*ImportResult, error) {
	sheetName, rows, err := readFirstSheet(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Kind: KindNotice, Sheet: sheetName, Projects: []models.Project{}}
	if len(rows) < 2 {
		return res, nil
	}

	for _, row := range rows[1:] {
		name := cell(row, noticeColName)
		if name == "" {
			res.Dropped++
			continue
		}

		rawDeadline := cell(row, noticeColDeadline)
		parsed := parseCellDate(rawDeadline)
		res.Projects = append(res.Projects, models.Project{
			Name:           name,
			NoticeNo:       cell(row, noticeColNotice),
			Client:         cell(row, noticeColClient),
			Location:       cell(row, noticeColLocation),
			Amount:         ingest.NormalizeAmount(cell(row, noticeColAmount)),
			Deadline:       displayDeadline(rawDeadline, parsed),
			ParsedDate:     parsed,
			Representative: models.RepresentativeUnset,
			Members:        []models.CompanyMember{},
			SharedWith:     []string{},
			Source:         models.SourceImport,
		})
	}

	assignIDs(res.Projects)
	return res, nil
}
