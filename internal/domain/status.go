package domain

import (
	"sort"
	"strings"
)

// Offer statuses as stored. The column is free-form; these are the values
// the application writes.
const (
	StatusDraft     = "draft"
	StatusPreparing = "hazırlanıyor"
	StatusReady     = "hazır"
	StatusCancelled = "iptal edildi"
	StatusPending   = "beklemede"
	StatusAccepted  = "iletim alındı"
	StatusRejected  = "reddedildi"
)

// AdminStatuses is the closed set offered by the admin status selector.
var AdminStatuses = []string{StatusPreparing, StatusReady, StatusCancelled, StatusPending}

type Bucket string

const (
	BucketPending  Bucket = "pending"
	BucketReady    Bucket = "ready"
	BucketAccepted Bucket = "accepted"
	BucketRejected Bucket = "rejected"
)

var Buckets = []Bucket{BucketPending, BucketReady, BucketAccepted, BucketRejected}

func normStatus(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// BucketFor partitions a status into one customer-facing bucket.
func BucketFor(status string) Bucket {
	switch normStatus(status) {
	case StatusReady:
		return BucketReady
	case StatusAccepted:
		return BucketAccepted
	case StatusRejected:
		return BucketRejected
	}
	return BucketPending
}

// GroupByBucket keeps the input order within each bucket.
func GroupByBucket(offers []Offer) map[Bucket][]Offer {
	out := make(map[Bucket][]Offer, len(Buckets))
	for _, b := range Buckets {
		out[b] = []Offer{}
	}
	for _, o := range offers {
		b := BucketFor(o.Status)
		out[b] = append(out[b], o)
	}
	return out
}

var statusLabels = map[string]string{
	StatusDraft:           "Draft",
	StatusPreparing:       "Preparing",
	StatusReady:           "Ready",
	StatusCancelled:       "Cancelled",
	StatusPending:         "Pending",
	StatusAccepted:        "Accepted",
	StatusRejected:        "Rejected",
	"teklif hazırlanıyor": "Preparing offer",
}

// StatusLabel is the badge text. Unknown statuses render as stored.
func StatusLabel(status string) string {
	n := normStatus(status)
	if n == "" {
		return statusLabels[StatusPending]
	}
	if l, ok := statusLabels[n]; ok {
		return l
	}
	return status
}

// StatusDrafts holds unsaved admin status selections keyed by offer id.
type StatusDrafts struct {
	fetched map[string]string
	drafts  map[string]string
}

func NewStatusDrafts(offers []Offer) *StatusDrafts {
	d := &StatusDrafts{fetched: make(map[string]string, len(offers)), drafts: map[string]string{}}
	for _, o := range offers {
		d.fetched[o.ID] = o.Status
	}
	return d
}

func (d *StatusDrafts) Stage(offerID, status string) { d.drafts[offerID] = status }

// Draft returns the staged value, or the fetched one when nothing is staged.
func (d *StatusDrafts) Draft(offerID string) string {
	if s, ok := d.drafts[offerID]; ok {
		return s
	}
	return d.fetched[offerID]
}

// CanSave is false when the draft equals the last fetched value.
func (d *StatusDrafts) CanSave(offerID string) bool {
	s, ok := d.drafts[offerID]
	return ok && s != d.fetched[offerID]
}

func (d *StatusDrafts) Clear(offerID string) { delete(d.drafts, offerID) }

type OfferCategory string

const (
	CategoryAll       OfferCategory = "all"
	CategoryPending   OfferCategory = "pending"
	CategorySent      OfferCategory = "sent"
	CategoryCompleted OfferCategory = "completed"
)

var categoryNeedle = map[OfferCategory]string{
	CategoryPending:   "bekle",
	CategorySent:      "gonder",
	CategoryCompleted: "tamam",
}

type OfferFilter struct {
	Category OfferCategory
	Status   string
	Search   string
}

// FilterOffers applies the admin listing filters. A non-empty search only
// matches owner name or email and ignores Category and Status.
func FilterOffers(offers []Offer, f OfferFilter) []Offer {
	out := make([]Offer, 0, len(offers))
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		for _, o := range offers {
			if strings.Contains(strings.ToLower(o.OwnerName), q) || strings.Contains(strings.ToLower(o.OwnerEmail), q) {
				out = append(out, o)
			}
		}
		return out
	}
	needle := categoryNeedle[f.Category]
	for _, o := range offers {
		st := strings.ToLower(o.Status)
		if needle != "" && !strings.Contains(st, needle) {
			continue
		}
		if f.Status != "" && f.Status != "all" && o.Status != f.Status {
			continue
		}
		out = append(out, o)
	}
	return out
}

// DistinctStatuses feeds the admin status dropdown. Empty counts as draft.
func DistinctStatuses(offers []Offer) []string {
	seen := map[string]struct{}{}
	for _, o := range offers {
		s := o.Status
		if s == "" {
			s = StatusDraft
		}
		seen[s] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
