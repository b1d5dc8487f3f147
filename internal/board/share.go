package board

import (
	"fmt"
	"strings"
	"time"

	"github.com/david/jv-board/internal/ingest"
	"github.com/david/jv-board/internal/models"
)

const shareRule = "￣￣￣￣￣￣￣￣￣￣￣￣￣￣"

// ShareText renders the chat message members receive when a consortium is announced.
// Projects without a parsed deadline use now for the MM/DD line.
func ShareText(p models.Project, now time.Time) string {
	deadline := now.In(ingest.KST)
	if p.ParsedDate != nil {
		deadline = p.ParsedDate.In(ingest.KST)
	}

	location := p.Location
	if location == "" {
		location = "-"
	}
	name := ingest.CleanProjectName(p.Name)
	if name == "" {
		name = "제목 없음"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<%s>\n", location)
	fmt.Fprintf(&b, "%s [%s]\n", name, p.NoticeNo)
	fmt.Fprintf(&b, "기초금액 : %s\n", ingest.FormatAmount(p.Amount))
	fmt.Fprintf(&b, "마감 : %s\n", deadline.Format("01/02"))
	b.WriteString(shareRule + "\n")

	for _, m := range p.Members {
		if m.Name == "" {
			continue
		}
		id := ""
		if m.BusinessNo != "" && m.BusinessNo != "-" {
			id = "(" + ingest.FormatBusinessNo(m.BusinessNo) + ")"
		}
		share := m.Share
		if share != "" {
			share, _ = ingest.FormatShare(share)
		}
		fmt.Fprintf(&b, "%s%s %s\n", m.Name, id, share)
	}

	b.WriteString(shareRule + "\n")
	b.WriteString("협정서 작성후 톡 부탁드립니다.")
	return b.String()
}
