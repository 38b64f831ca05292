package domain

import (
	"sort"
	"strings"
)

// SortOrder selects ascending or descending ordering.
type SortOrder string

// Sort directions. Anything that is not SortDesc sorts ascending.
const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

// ParseSortOrder normalises a user supplied direction.
func ParseSortOrder(raw string) SortOrder {
	if strings.EqualFold(strings.TrimSpace(raw), string(SortDesc)) {
		return SortDesc
	}
	return SortAsc
}

// Record sort keys understood by the records endpoint.
const (
	RecordSortCreatedAt  = "createdAt"
	RecordSortID         = "id"
	RecordSortStatus     = "status"
	RecordSortSourceType = "sourceType"
	RecordSortQuantity   = "quantity"
	RecordSortBatchID    = "batchId"
)

// RecordQuery mirrors the query parameters of the records endpoint.
type RecordQuery struct {
	Status     RecordStatus `json:"status,omitempty"`
	SourceType SourceType   `json:"sourceType,omitempty"`
	Search     string       `json:"search,omitempty"`
	SortBy     string       `json:"sortBy,omitempty"`
	SortOrder  SortOrder    `json:"sortOrder,omitempty"`
}

// Key returns a canonical string identifying the query for caching and
// request deduplication. Search is trimmed but keeps its casing, since it is
// sent to the server as given.
func (q RecordQuery) Key() string {
	return strings.Join([]string{
		"status=" + string(q.Status),
		"sourceType=" + string(q.SourceType),
		"search=" + strings.TrimSpace(q.Search),
		"sortBy=" + q.SortBy,
		"sortOrder=" + string(q.SortOrder),
	}, "&")
}

// Matches reports whether the record passes the status, source type and
// free-text filters. Search is case-insensitive over id, batch id, species,
// origin and creator fields.
func (q RecordQuery) Matches(r ProductRecord) bool {
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.SourceType != "" && r.SourceType != q.SourceType {
		return false
	}
	term := strings.ToLower(strings.TrimSpace(q.Search))
	if term == "" {
		return true
	}
	species := r.SpeciesOrUnknown()
	for _, field := range []string{
		r.ID,
		r.BatchID,
		species.CommonName,
		species.ScientificName,
		r.Origin.Location,
		r.Origin.Facility,
		r.Creator.Name,
		r.Creator.Organization,
	} {
		if field != "" && strings.Contains(strings.ToLower(field), term) {
			return true
		}
	}
	return false
}

// Apply filters and orders records, returning a new slice. Without a SortBy
// the input order is kept.
func (q RecordQuery) Apply(records []ProductRecord) []ProductRecord {
	out := make([]ProductRecord, 0, len(records))
	for _, r := range records {
		if q.Matches(r) {
			out = append(out, r)
		}
	}
	less := recordLess(q.SortBy)
	if less == nil {
		return out
	}
	desc := q.SortOrder == SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

func recordLess(field string) func(a, b ProductRecord) bool {
	switch field {
	case RecordSortCreatedAt:
		return func(a, b ProductRecord) bool { return a.CreatedAt.Before(b.CreatedAt) }
	case RecordSortID:
		return func(a, b ProductRecord) bool { return a.ID < b.ID }
	case RecordSortStatus:
		return func(a, b ProductRecord) bool { return a.Status < b.Status }
	case RecordSortSourceType:
		return func(a, b ProductRecord) bool { return a.SourceType < b.SourceType }
	case RecordSortQuantity:
		return func(a, b ProductRecord) bool { return a.Quantity() < b.Quantity() }
	case RecordSortBatchID:
		return func(a, b ProductRecord) bool { return a.BatchID < b.BatchID }
	default:
		return nil
	}
}
