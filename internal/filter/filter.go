// Package filter computes the subset of projects a user sees under a given filter state.
package filter

import (
	"strings"
	"time"

	"github.com/david/jv-board/internal/models"
)

// StatusFilter selects projects by consortium progress.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusOngoing   StatusFilter = "ongoing"
	StatusCompleted StatusFilter = "completed"
)

// ParseStatusFilter maps a query value to a StatusFilter; unknown values mean all.
func ParseStatusFilter(s string) StatusFilter {
	switch StatusFilter(strings.ToLower(strings.TrimSpace(s))) {
	case StatusOngoing:
		return StatusOngoing
	case StatusCompleted:
		return StatusCompleted
	default:
		return StatusAll
	}
}

// Viewer identifies the user a subset is computed for.
type Viewer struct {
	Name     string
	Username string
	Aliases  []string
}

// Criteria is the user's filter state.
type Criteria struct {
	HiddenIDs  []string
	Categories []string
	Status     StatusFilter
	Query      string
}

// Apply returns the projects visible to v under c, preserving collection order.
// Predicates run in a fixed order: hidden, permission, category, status, search.
func Apply(projects []models.Project, v Viewer, c Criteria) []models.Project {
	hidden := make(map[string]struct{}, len(c.HiddenIDs))
	for _, id := range c.HiddenIDs {
		hidden[id] = struct{}{}
	}
	identities := v.identities()
	query := strings.ToLower(strings.TrimSpace(c.Query))

	out := make([]models.Project, 0, len(projects))
	for _, p := range projects {
		if _, ok := hidden[p.ID]; ok {
			continue
		}
		if !permitted(p, identities) {
			continue
		}
		if !matchesCategory(p, c.Categories) {
			continue
		}
		if !matchesStatus(p, c.Status) {
			continue
		}
		if query != "" && !matchesQuery(p, query) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (v Viewer) identities() map[string]struct{} {
	ids := make(map[string]struct{}, len(v.Aliases)+2)
	for _, s := range append([]string{v.Name, v.Username}, v.Aliases...) {
		if s = strings.TrimSpace(s); s != "" {
			ids[s] = struct{}{}
		}
	}
	return ids
}

// Visible reports whether v may see p at all, ignoring the rest of the filter state.
func Visible(p models.Project, v Viewer) bool {
	return permitted(p, v.identities())
}

// permitted requires an exact match between a sharing entry and one of the viewer's names.
// An empty sharing list is visible to no one.
func permitted(p models.Project, identities map[string]struct{}) bool {
	for _, s := range p.SharedWith {
		if _, ok := identities[strings.TrimSpace(s)]; ok {
			return true
		}
	}
	return false
}

func matchesCategory(p models.Project, categories []string) bool {
	active := false
	for _, c := range categories {
		if c == "" {
			continue
		}
		active = true
		if strings.Contains(p.Name, c) {
			return true
		}
	}
	return !active
}

func matchesStatus(p models.Project, s StatusFilter) bool {
	switch s {
	case StatusOngoing:
		return len(p.Members) > 0
	case StatusCompleted:
		return p.AllSubmitted()
	default:
		return true
	}
}

func matchesQuery(p models.Project, q string) bool {
	if containsFold(p.Name, q) || containsFold(p.NoticeNo, q) ||
		containsFold(p.Client, q) || containsFold(p.Representative, q) {
		return true
	}
	for _, m := range p.Members {
		if containsFold(m.Name, q) || containsFold(m.Contact, q) {
			return true
		}
	}
	return false
}

// containsFold reports whether s contains the already lower-cased q.
func containsFold(s, q string) bool {
	return s != "" && strings.Contains(strings.ToLower(s), q)
}

// Dated keeps projects with a parsed deadline in [from, to). A zero bound is open.
func Dated(projects []models.Project, from, to time.Time) []models.Project {
	out := make([]models.Project, 0, len(projects))
	for _, p := range projects {
		if p.ParsedDate == nil {
			continue
		}
		d := *p.ParsedDate
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && !d.Before(to) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// Summary counts projects per aggregate status.
type Summary struct {
	Total       int `json:"total"`
	Complete    int `json:"complete"`
	InProgress  int `json:"in_progress"`
	Unconfirmed int `json:"unconfirmed"`
}

func Summarize(projects []models.Project) Summary {
	s := Summary{Total: len(projects)}
	for _, p := range projects {
		switch p.Status() {
		case models.StatusComplete:
			s.Complete++
		case models.StatusInProgress:
			s.InProgress++
		default:
			s.Unconfirmed++
		}
	}
	return s
}
