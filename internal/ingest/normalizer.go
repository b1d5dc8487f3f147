package ingest

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/david/jv-board/internal/models"
)

var htmlTagRe = regexp.MustCompile(`<[^>]*>?`)

// StripHTML removes markup tags from a feed text field. Entities are left as-is.
func StripHTML(s string) string {
	if s == "" {
		return ""
	}
	return htmlTagRe.ReplaceAllString(s, "")
}

// FormatShare turns a raw share value into its display form and percentage.
// Values at or below 1.0 are fractions. Non-numeric input is returned unchanged.
func FormatShare(raw string) (string, float64) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", 0
	}
	percent := strings.HasSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimSuffix(s, "%")), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return s, 0
	}
	// Bare values up to 1 are fractions; a value already carrying % is never rescaled.
	if !percent && v <= 1.0 {
		v *= 100
	}
	return fmt.Sprintf("%.2f%%", v), math.Round(v*100) / 100
}

// FormatBusinessNo renders a 10-digit business registration number as XXX-XX-XXXXX.
func FormatBusinessNo(raw string) string {
	d := DigitsOnly(raw)
	if len(d) != 10 {
		return strings.TrimSpace(raw)
	}
	return d[:3] + "-" + d[3:5] + "-" + d[5:]
}

var submissionCodes = map[string]models.SubmissionStatus{
	"O":   models.Submitted,
	"o":   models.Submitted,
	"0":   models.Submitted,
	"ㅇ":   models.Submitted,
	"○":   models.Submitted,
	"OK":  models.Submitted,
	"ok":  models.Submitted,
	"제출":  models.Submitted,
	"X":   models.NotSubmitted,
	"x":   models.NotSubmitted,
	"NO":  models.NotSubmitted,
	"no":  models.NotSubmitted,
	"미제출": models.NotSubmitted,
}

// ParseSubmission maps a raw final-submission code to the tri-state status.
// Unknown and empty codes are Unset.
func ParseSubmission(raw string) models.SubmissionStatus {
	if st, ok := submissionCodes[strings.TrimSpace(raw)]; ok {
		return st
	}
	return models.Unset
}

// NewMember builds a normalized member from a raw slot.
func NewMember(slot MemberSlot, role string) models.CompanyMember {
	share, ratio := FormatShare(slot.Share)
	return models.CompanyMember{
		Name:       strings.TrimSpace(slot.Name),
		BusinessNo: FormatBusinessNo(slot.BusinessNo),
		Role:       role,
		Share:      share,
		ShareRatio: ratio,
		Status:     ParseSubmission(slot.Status),
		StatusRaw:  strings.TrimSpace(slot.Status),
	}
}

// TagCategories returns every category that occurs in the project name, in category order.
func TagCategories(name string, categories []string) []string {
	var tags []string
	for _, c := range categories {
		if c != "" && strings.Contains(name, c) {
			tags = appendUnique(tags, c)
		}
	}
	return tags
}

// CleanProjectName removes the agreement marker some sources prepend to names.
func CleanProjectName(name string) string {
	return cleanText(strings.ReplaceAll(name, "[협정]", ""))
}
