package ingest

import (
	"regexp"
	"strings"
	"time"
)

// KST is the zone every feed date is expressed in.
var KST = time.FixedZone("KST", 9*60*60)

var deadlineLayouts = []string{
	time.RFC3339,
	"2006-1-2 15:04:05",
	"2006-1-2 15:04",
	"2006-1-2",
	"2006.1.2 15:04",
	"2006.1.2",
	"2006/1/2 15:04",
	"2006/1/2",
	"2006년 1월 2일 15:04",
	"2006년 1월 2일",
	"06/1/2",
	"06.1.2",
	"06-1-2",
}

var (
	parenRe      = regexp.MustCompile(`\([^)]*\)`)
	trailingDot  = regexp.MustCompile(`\.\s*$`)
	dotSpaceRe   = regexp.MustCompile(`\.\s+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// cleanDateString removes weekday annotations like "(월)" and normalizes spacing.
func cleanDateString(s string) string {
	s = parenRe.ReplaceAllString(s, " ")
	s = trailingDot.ReplaceAllString(strings.TrimSpace(s), "")
	s = dotSpaceRe.ReplaceAllString(s, ".")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// ParseDeadline parses an agreement deadline as written by the feeds.
// It returns nil when no known layout matches.
func ParseDeadline(raw string) *time.Time {
	text := cleanDateString(raw)
	if text == "" {
		return nil
	}

	for _, layout := range deadlineLayouts {
		if t, err := time.ParseInLocation(layout, text, KST); err == nil {
			return &t
		}
	}
	return nil
}
