package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Source field names of the bid listing feed.
const (
	keyNoticeNo          = "공고번호"
	keyProjectName       = "공사명"
	keyClient            = "발주처"
	keyLocation          = "지역제한"
	keyBaseAmount        = "기초금액"
	keyAgreementDeadline = "협정마감일"
	keyBidDate           = "입찰일"
)

// Source field names of the agreement feed. Member slots carry a 1-based suffix.
const (
	keyRepresentative = "대표사"
	keyMemberName     = "구성사"
	keyBusinessNo     = "사업자등록번호"
	keyShare          = "지분율"
	keyFinalSubmit    = "최종제출"

	memberSlots = 4
)

// BidNotice is one row of the bid listing feed.
type BidNotice struct {
	NoticeNo          string
	Name              string // may contain HTML
	Client            string
	Location          string
	BaseAmount        string
	AgreementDeadline string
	BidDate           string
}

// MemberSlot is one company slot of an agreement row, all values raw.
type MemberSlot struct {
	Name       string
	BusinessNo string
	Share      string
	Status     string
}

// AgreementRecord is one row of the agreement feed.
type AgreementRecord struct {
	NoticeNo       string
	Representative MemberSlot
	Members        [memberSlots]MemberSlot
}

// FetchedDocument represents the raw result of a fetch operation.
type FetchedDocument struct {
	URL         string
	StatusCode  int
	ContentType string
	Body        io.ReadCloser
	FetchedAt   time.Time
	Headers     map[string][]string
}

// Fetcher retrieves raw content from a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedDocument, error)
}

// row is a decoded feed object with every scalar coerced to a string.
type row map[string]string

func (r row) get(key string) string {
	return strings.TrimSpace(r[key])
}

// decodeRows decodes a JSON array of objects. ok is false when the payload is not an array;
// array elements that are not objects are counted as rejected.
func decodeRows(raw json.RawMessage) (rows []row, rejected int, ok bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var items []json.RawMessage
	if err := dec.Decode(&items); err != nil {
		return nil, 0, false
	}
	if items == nil {
		// JSON null
		return nil, 0, false
	}

	rows = make([]row, 0, len(items))
	for _, item := range items {
		obj, err := decodeObject(item)
		if err != nil {
			rejected++
			continue
		}
		rows = append(rows, obj)
	}
	return rows, rejected, true
}

func decodeObject(raw json.RawMessage) (row, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("null row")
	}

	out := make(row, len(obj))
	for k, v := range obj {
		out[strings.TrimSpace(k)] = scalarString(v)
	}
	return out, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func bidFromRow(r row) (BidNotice, bool) {
	b := BidNotice{
		NoticeNo:          r.get(keyNoticeNo),
		Name:              r[keyProjectName],
		Client:            r.get(keyClient),
		Location:          r.get(keyLocation),
		BaseAmount:        r.get(keyBaseAmount),
		AgreementDeadline: r.get(keyAgreementDeadline),
		BidDate:           r.get(keyBidDate),
	}
	return b, b.NoticeNo != ""
}

func agreementFromRow(r row) (AgreementRecord, bool) {
	a := AgreementRecord{
		NoticeNo: r.get(keyNoticeNo),
		Representative: MemberSlot{
			Name:       r.get(keyRepresentative),
			BusinessNo: r.get(keyBusinessNo),
			Share:      r.get(keyShare),
			Status:     r.get(keyFinalSubmit),
		},
	}
	for i := 0; i < memberSlots; i++ {
		n := strconv.Itoa(i + 1)
		a.Members[i] = MemberSlot{
			Name:       r.get(keyMemberName + n),
			BusinessNo: r.get(keyBusinessNo + n),
			Share:      r.get(keyShare + n),
			Status:     r.get(keyFinalSubmit + n),
		}
	}
	return a, a.NoticeNo != ""
}

// DecodeBids validates a bid payload. ok is false when the payload is not an array.
func DecodeBids(raw json.RawMessage) (bids []BidNotice, rejected int, ok bool) {
	rows, rejected, ok := decodeRows(raw)
	if !ok {
		return nil, 0, false
	}
	bids = make([]BidNotice, 0, len(rows))
	for _, r := range rows {
		b, valid := bidFromRow(r)
		if !valid {
			rejected++
			continue
		}
		bids = append(bids, b)
	}
	return bids, rejected, true
}

// DecodeAgreements validates an agreement payload. ok is false when the payload is not an array.
func DecodeAgreements(raw json.RawMessage) (agreements []AgreementRecord, rejected int, ok bool) {
	rows, rejected, ok := decodeRows(raw)
	if !ok {
		return nil, 0, false
	}
	agreements = make([]AgreementRecord, 0, len(rows))
	for _, r := range rows {
		a, valid := agreementFromRow(r)
		if !valid {
			rejected++
			continue
		}
		agreements = append(agreements, a)
	}
	return agreements, rejected, true
}
