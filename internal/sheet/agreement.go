package sheet

import (
	"io"
	"strings"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

// Fixed positions of the agreement status sheet, used when a header is missing.
const (
	colNotice   = 5  // F
	colName     = 6  // G
	colClient   = 7  // H
	colLocation = 8  // I
	colAmount   = 9  // J
	colDeadline = 10 // K
)

// Relative search windows after a member name column.
const (
	statusWindow  = 8
	contactWindow = 15
)

type agreementLayout struct {
	headers []string

	name, notice, client, location, amount, deadline int
	representative, shared                            int
	members                                           []int
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), "")
}

// find returns the first header containing any of the names, or fallback.
func (l *agreementLayout) find(fallback int, names ...string) int {
	for _, n := range names {
		for i, h := range l.headers {
			if h != "" && strings.Contains(h, n) {
				return i
			}
		}
	}
	return fallback
}

// relative looks for keyword in the headers following start.
func (l *agreementLayout) relative(start int, keyword string, window int) int {
	for i := start + 1; i <= start+window && i < len(l.headers); i++ {
		if strings.Contains(compact(l.headers[i]), keyword) {
			return i
		}
	}
	return -1
}

func newAgreementLayout(headers []string) *agreementLayout {
	l := &agreementLayout{headers: headers}
	l.name = l.find(colName, "공사명", "공고명")
	l.notice = l.find(colNotice, "공고번호")
	l.client = l.find(colClient, "발주처")
	l.location = l.find(colLocation, "지역")
	l.amount = l.find(colAmount, "기초금액")
	l.deadline = l.find(colDeadline, "협정마감일", "마감일")
	l.representative = l.find(-1, "대표사")
	l.shared = l.find(-1, "공유자", "컨소아티스트", "담당자", "참여자")

	for i, h := range headers {
		c := compact(h)
		if strings.Contains(c, "대표사") || strings.Contains(c, "대표업체") || strings.Contains(c, "구성사") {
			l.members = append(l.members, i)
		}
	}
	return l
}

func isRepresentativeHeader(h string) bool {
	c := compact(h)
	return strings.Contains(c, "대표사") || strings.Contains(c, "대표업체")
}

// ParseAgreementWorkbook reads the agreement status sheet: one project per row, member
// groups located by their header (name, business no. and share in consecutive columns).
func ParseAgreementWorkbook(r io.Reader) (*ImportResult, error) {
	sheetName, rows, err := readFirstSheet(r)
	if err != nil {
		return nil, err
	}

	res := &ImportResult{Kind: KindAgreement, Sheet: sheetName, Projects: []models.Project{}}
	if len(rows) < 2 {
		return res, nil
	}

	layout := newAgreementLayout(rows[0])
	for _, row := range rows[1:] {
		p, ok := layout.project(row)
		if !ok {
			res.Dropped++
			continue
		}
		res.Projects = append(res.Projects, p)
	}

	assignIDs(res.Projects)
	return res, nil
}

func (l *agreementLayout) project(row []string) (models.Project, bool) {
	name := cell(row, l.name)
	if name == "" {
		return models.Project{}, false
	}

	rawDeadline := cell(row, l.deadline)
	parsed := parseCellDate(rawDeadline)

	p := models.Project{
		Name:       name,
		NoticeNo:   cell(row, l.notice),
		Client:     cell(row, l.client),
		Location:   cell(row, l.location),
		Amount:     ingest.NormalizeAmount(cell(row, l.amount)),
		Deadline:   displayDeadline(rawDeadline, parsed),
		ParsedDate: parsed,
		Members:    l.memberList(row),
		SharedWith: ingest.SplitNames(cell(row, l.shared)),
		Source:     models.SourceImport,
	}
	if p.SharedWith == nil {
		p.SharedWith = []string{}
	}

	p.Representative = cell(row, l.representative)
	if p.Representative == "" {
		p.Representative = models.RepresentativeUnset
		if len(p.Members) > 0 {
			p.Representative = p.Members[0].Name
		}
	}
	return p, true
}

func (l *agreementLayout) memberList(row []string) []models.CompanyMember {
	members := []models.CompanyMember{}
	hasRep := false

	for _, idx := range l.members {
		name := cell(row, idx)
		if name == "" {
			continue
		}

		slot := ingest.MemberSlot{
			Name:       name,
			BusinessNo: cell(row, idx+1),
			Share:      cell(row, idx+2),
		}
		if s := l.relative(idx, "최종제출", statusWindow); s >= 0 {
			slot.Status = cell(row, s)
		}

		role := models.RoleMember
		if !hasRep && isRepresentativeHeader(l.headers[idx]) {
			role = models.RoleRepresentative
			hasRep = true
		}

		m := ingest.NewMember(slot, role)
		if c := l.relative(idx, "카톡담당자", contactWindow); c >= 0 {
			m.Contact = cell(row, c)
		}

		if role == models.RoleRepresentative {
			members = append([]models.CompanyMember{m}, members...)
			continue
		}
		members = append(members, m)
	}

	if !hasRep && len(members) > 0 {
		members[0].Role = models.RoleRepresentative
	}
	return members
}
