package ingest

import (
	"encoding/json"
	"log"
	"strconv"
	"strings"

	"github.com/david/jv-board/internal/models"
)

// Defaults for bid fields the feed left empty.
const (
	defaultProjectName = "제목 없음"
	defaultClient      = "미정"
	defaultLocation    = "전국"
)

type ReconcileStats struct {
	BidsFound          int  `json:"bids_found"`
	BidsRejected       int  `json:"bids_rejected"`
	AgreementsSeen     int  `json:"agreements_seen"`
	AgreementsRejected int  `json:"agreements_rejected"`
	AgreementsDropped  int  `json:"agreements_dropped"`
	Matched            int  `json:"matched"`
	Orphans            int  `json:"orphans"`
	ShapeMismatch      bool `json:"shape_mismatch"`
}

type ReconcileResult struct {
	Projects []models.Project
	Stats    ReconcileStats
}

// ReconcilePayloads validates both raw payloads and reconciles them.
// A bid payload that is not an array yields an empty result with ShapeMismatch set;
// an agreement payload that is not an array is treated as having no agreements.
func ReconcilePayloads(bidRaw, agreementRaw json.RawMessage) ReconcileResult {
	bids, bidsRejected, ok := DecodeBids(bidRaw)
	if !ok {
		log.Printf("[Warn] Bid payload is not an array (%d bytes)", len(bidRaw))
		return ReconcileResult{
			Projects: []models.Project{},
			Stats:    ReconcileStats{ShapeMismatch: true},
		}
	}

	agreements, agreementsRejected, ok := DecodeAgreements(agreementRaw)
	if !ok {
		log.Printf("[Warn] Agreement payload is not an array (%d bytes); treating all bids as unmatched", len(agreementRaw))
		agreements = nil
	}

	res := Reconcile(bids, agreements)
	res.Stats.BidsRejected = bidsRejected
	res.Stats.AgreementsRejected = agreementsRejected
	return res
}

// Reconcile joins bids and agreements on the notice number. Every agreement whose notice
// matches a bid becomes one project; every bid left unmatched becomes one orphan project.
// Agreements without a bid are dropped.
func Reconcile(bids []BidNotice, agreements []AgreementRecord) ReconcileResult {
	var stats ReconcileStats

	index := make(map[string]BidNotice, len(bids))
	order := make([]string, 0, len(bids))
	for _, b := range bids {
		key := strings.TrimSpace(b.NoticeNo)
		if key == "" {
			continue
		}
		if _, seen := index[key]; !seen {
			order = append(order, key)
		}
		// later duplicates overwrite, position stays with the first
		index[key] = b
	}
	stats.BidsFound = len(order)

	perNotice := make(map[string]int)
	for _, a := range agreements {
		key := strings.TrimSpace(a.NoticeNo)
		if _, ok := index[key]; ok {
			perNotice[key]++
		}
	}

	projects := make([]models.Project, 0, len(agreements)+len(order))
	matched := make(map[string]bool, len(perNotice))
	seq := make(map[string]int, len(perNotice))

	for _, a := range agreements {
		stats.AgreementsSeen++
		key := strings.TrimSpace(a.NoticeNo)
		bid, ok := index[key]
		if !ok {
			stats.AgreementsDropped++
			continue
		}

		seq[key]++
		id := key
		if perNotice[key] > 1 {
			id = key + ":" + strconv.Itoa(seq[key])
		}

		p := projectFromBid(id, key, bid)
		p.Members, p.Representative = buildMembers(a)
		projects = append(projects, p)
		matched[key] = true
		stats.Matched++
	}

	for _, key := range order {
		if matched[key] {
			continue
		}
		p := projectFromBid(key, key, index[key])
		p.Representative = models.RepresentativeUnset
		projects = append(projects, p)
		stats.Orphans++
	}

	return ReconcileResult{Projects: projects, Stats: stats}
}

func projectFromBid(id, noticeNo string, b BidNotice) models.Project {
	name := strings.TrimSpace(StripHTML(b.Name))
	if name == "" {
		name = defaultProjectName
	}
	client := b.Client
	if client == "" {
		client = defaultClient
	}
	location := b.Location
	if location == "" {
		location = defaultLocation
	}

	return models.Project{
		ID:         id,
		Name:       name,
		NoticeNo:   noticeNo,
		Client:     client,
		Location:   location,
		Amount:     NormalizeAmount(b.BaseAmount),
		Deadline:   b.AgreementDeadline,
		ParsedDate: ParseDeadline(b.AgreementDeadline),
		BidDate:    b.BidDate,
		Members:    []models.CompanyMember{},
		SharedWith: []string{},
		Source:     models.SourceFeed,
	}
}

// buildMembers collects the numbered member slots, then places the representative first:
// a representative already present among the slots is relabelled rather than duplicated.
// Without a named representative the first member takes the role.
func buildMembers(a AgreementRecord) ([]models.CompanyMember, string) {
	members := make([]models.CompanyMember, 0, memberSlots+1)
	for _, slot := range a.Members {
		if strings.TrimSpace(slot.Name) == "" {
			continue
		}
		members = append(members, NewMember(slot, models.RoleMember))
	}

	repName := strings.TrimSpace(a.Representative.Name)
	if repName == "" {
		if len(members) == 0 {
			return members, models.RepresentativeUnset
		}
		members[0].Role = models.RoleRepresentative
		return members, members[0].Name
	}

	for i := range members {
		if members[i].Name != repName {
			continue
		}
		rep := members[i]
		rep.Role = models.RoleRepresentative
		copy(members[1:i+1], members[:i])
		members[0] = rep
		return members, repName
	}

	rep := NewMember(a.Representative, models.RoleRepresentative)
	return append([]models.CompanyMember{rep}, members...), repName
}
