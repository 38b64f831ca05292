package core

import (
	"math"

	"tracceaqua/pkg/domain"
)

// GroupBatches partitions records by batch key and aggregates each group.
// Groups appear in first-seen order and keep input order internally, so every
// record lands in exactly one non-empty summary. Representative fields come
// from the first record of each group; conflicting values in later records are
// not reconciled.
func GroupBatches(records []domain.ProductRecord) []domain.BatchSummary {
	if len(records) == 0 {
		return []domain.BatchSummary{}
	}

	index := make(map[string]int)
	groups := make([][]domain.ProductRecord, 0)
	keys := make([]string, 0)
	for _, record := range records {
		key := record.BatchKey()
		pos, ok := index[key]
		if !ok {
			pos = len(groups)
			index[key] = pos
			groups = append(groups, nil)
			keys = append(keys, key)
		}
		groups[pos] = append(groups[pos], record)
	}

	out := make([]domain.BatchSummary, 0, len(groups))
	for i, products := range groups {
		out = append(out, summarize(keys[i], products))
	}
	return out
}

func summarize(key string, products []domain.ProductRecord) domain.BatchSummary {
	first := products[0]

	var total, ratios float64
	stages := make([]string, 0)
	seen := make(map[string]struct{})
	for _, p := range products {
		total += p.Quantity()
		ratios += p.CompletionRatio()
		for _, stage := range p.Stages {
			if _, dup := seen[stage.Name]; dup {
				continue
			}
			seen[stage.Name] = struct{}{}
			stages = append(stages, stage.Name)
		}
	}

	return domain.BatchSummary{
		BatchID:         key,
		Products:        products,
		TotalQuantity:   total,
		Unit:            first.Unit(),
		AverageProgress: int(math.Round(100 * ratios / float64(len(products)))),
		Stages:          stages,
		Status:          first.Status,
		SourceType:      first.SourceType,
		Species:         first.SpeciesOrUnknown(),
		Origin:          first.Origin,
		Creator:         first.Creator,
		CreatedAt:       first.CreatedAt,
	}
}
