package models

import (
	"time"
)

// Member roles as they appear on agreement documents.
const (
	RoleRepresentative = "대표사"
	RoleMember         = "구성원"
)

// RepresentativeUnset is shown for projects whose consortium is not known yet.
const RepresentativeUnset = "미정"

// Project sources.
const (
	SourceFeed   = "feed"
	SourceImport = "import"
)

// SubmissionStatus is the tri-state final submission flag of a consortium member.
type SubmissionStatus string

const (
	Submitted    SubmissionStatus = "o"
	NotSubmitted SubmissionStatus = "x"
	Unset        SubmissionStatus = ""
)

// Label returns the Korean label used on documents.
func (s SubmissionStatus) Label() string {
	switch s {
	case Submitted:
		return "제출"
	case NotSubmitted:
		return "미제출"
	default:
		return ""
	}
}

type CompanyMember struct {
	Name       string           `json:"name"`
	BusinessNo string           `json:"business_no,omitempty"`
	Role       string           `json:"role"`
	Share      string           `json:"share"`
	ShareRatio float64          `json:"share_ratio"`
	Contact    string           `json:"contact,omitempty"`
	Status     SubmissionStatus `json:"status"`
	StatusRaw  string           `json:"status_raw,omitempty"`
}

// Project is one consortium bid as shown on the board.
type Project struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	NoticeNo       string          `json:"notice_no"`
	Client         string          `json:"client"`
	Location       string          `json:"location"`
	Amount         string          `json:"amount"` // digits only
	Deadline       string          `json:"deadline"`
	ParsedDate     *time.Time      `json:"parsed_date"`
	BidDate        string          `json:"bid_date"`
	Representative string          `json:"representative"`
	Members        []CompanyMember `json:"members"`
	SharedWith     []string        `json:"shared_with"`
	Tags           []string        `json:"tags"`
	Source         string          `json:"source"`
}

// AggregateStatus summarises member submissions for a project.
type AggregateStatus string

const (
	StatusComplete    AggregateStatus = "complete"
	StatusInProgress  AggregateStatus = "in_progress"
	StatusUnconfirmed AggregateStatus = "unconfirmed"
)

// Status derives the aggregate state from the member list.
func (p Project) Status() AggregateStatus {
	if len(p.Members) == 0 {
		return StatusUnconfirmed
	}
	allSubmitted := true
	for _, m := range p.Members {
		if m.Status == NotSubmitted {
			return StatusInProgress
		}
		if m.Status != Submitted {
			allSubmitted = false
		}
	}
	if allSubmitted {
		return StatusComplete
	}
	return StatusUnconfirmed
}

// AllSubmitted reports whether the project has members and every one of them submitted.
func (p Project) AllSubmitted() bool {
	return p.Status() == StatusComplete
}
