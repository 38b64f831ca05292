package core

import (
	"sort"
	"strings"

	"tracceaqua/pkg/domain"
)

// BatchField names a BatchSummary attribute usable as a sort key.
type BatchField string

// Sortable batch fields.
const (
	FieldBatchID         BatchField = "batchId"
	FieldTotalQuantity   BatchField = "totalQuantity"
	FieldAverageProgress BatchField = "averageProgress"
	FieldCreatedAt       BatchField = "createdAt"
	FieldStatus          BatchField = "status"
	FieldSourceType      BatchField = "sourceType"
	FieldUnit            BatchField = "unit"
	FieldSpecies         BatchField = "species"
	FieldProductCount    BatchField = "productCount"
	FieldStageCount      BatchField = "stageCount"
)

var batchComparators = map[BatchField]func(a, b domain.BatchSummary) int{
	FieldBatchID:         func(a, b domain.BatchSummary) int { return strings.Compare(a.BatchID, b.BatchID) },
	FieldTotalQuantity:   func(a, b domain.BatchSummary) int { return compareFloat(a.TotalQuantity, b.TotalQuantity) },
	FieldAverageProgress: func(a, b domain.BatchSummary) int { return a.AverageProgress - b.AverageProgress },
	FieldCreatedAt:       func(a, b domain.BatchSummary) int { return a.CreatedAt.Compare(b.CreatedAt) },
	FieldStatus:          func(a, b domain.BatchSummary) int { return strings.Compare(string(a.Status), string(b.Status)) },
	FieldSourceType:      func(a, b domain.BatchSummary) int { return strings.Compare(string(a.SourceType), string(b.SourceType)) },
	FieldUnit:            func(a, b domain.BatchSummary) int { return strings.Compare(a.Unit, b.Unit) },
	FieldSpecies:         func(a, b domain.BatchSummary) int { return strings.Compare(a.Species.CommonName, b.Species.CommonName) },
	FieldProductCount:    func(a, b domain.BatchSummary) int { return len(a.Products) - len(b.Products) },
	FieldStageCount:      func(a, b domain.BatchSummary) int { return len(a.Stages) - len(b.Stages) },
}

// ParseBatchField reports whether raw names a sortable field.
func ParseBatchField(raw string) (BatchField, bool) {
	field := BatchField(strings.TrimSpace(raw))
	_, ok := batchComparators[field]
	return field, ok
}

// SortBatches returns a copy of batches ordered by field. The sort is stable
// in both directions: ties keep their fetch order. Unknown fields compare
// equal everywhere, which leaves the input order untouched.
func SortBatches(batches []domain.BatchSummary, field BatchField, order domain.SortOrder) []domain.BatchSummary {
	out := make([]domain.BatchSummary, len(batches))
	copy(out, batches)
	cmp, ok := batchComparators[field]
	if !ok {
		return out
	}
	desc := order == domain.SortDesc
	sort.SliceStable(out, func(i, j int) bool {
		c := cmp(out[i], out[j])
		if desc {
			return c > 0
		}
		return c < 0
	})
	return out
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
