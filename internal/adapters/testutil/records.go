// Package testutil hosts fixtures shared by the records adapter and CLI tests.
// Fixtures are loaded through domain.RecordStore so callers never depend on a
// concrete persistence package.
package testutil

import (
	"context"
	"time"

	"tracceaqua/pkg/domain"
)

// Epoch anchors fixture timestamps.
var Epoch = time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

// Record builds a record with one stage per status, named stage-1, stage-2...
func Record(id, batchID string, quantity float64, statuses ...domain.StageStatus) domain.ProductRecord {
	stages := make([]domain.Stage, len(statuses))
	for i, status := range statuses {
		stages[i] = domain.Stage{Name: "stage-" + string(rune('1'+i)), Status: status}
	}
	return domain.ProductRecord{
		ID:         id,
		BatchID:    batchID,
		Status:     domain.StatusActive,
		SourceType: domain.SourceFarmed,
		Product:    &domain.Product{Quantity: quantity, Unit: "kg", Species: &domain.Species{ScientificName: "Mytilus galloprovincialis", CommonName: "Mussel"}},
		Stages:     stages,
		Origin:     domain.Origin{Location: "Goro", Facility: "Sacca di Goro"},
		Creator:    domain.Creator{Name: "Anna", Organization: "Coop Goro"},
		CreatedAt:  Epoch,
	}
}

// SampleRecords returns a mixed fixture: batch B1 with two records, an
// unbatched wild-capture record and batch B2 with one completed record.
func SampleRecords() []domain.ProductRecord {
	b1a := Record("r1", "B1", 10, domain.StageCompleted, domain.StagePending)
	b1b := Record("r2", "B1", 5, domain.StageCompleted, domain.StageCompleted)
	b1b.CreatedAt = Epoch.Add(time.Hour)

	single := Record("r3", "", 2.5)
	single.SourceType = domain.SourceWildCapture
	single.Product.Species = &domain.Species{ScientificName: "Sparus aurata", CommonName: "Gilthead seabream"}
	single.Origin = domain.Origin{Location: "Chioggia"}
	single.CreatedAt = Epoch.Add(2 * time.Hour)

	b2 := Record("r4", "B2", 40, domain.StageCompleted)
	b2.Status = domain.StatusCompleted
	b2.CreatedAt = Epoch.Add(-time.Hour)

	return []domain.ProductRecord{b1a, single, b1b, b2}
}

// Seed loads records into store.
func Seed(ctx context.Context, store domain.RecordStore, records ...domain.ProductRecord) error {
	if len(records) == 0 {
		records = SampleRecords()
	}
	return store.PutRecords(ctx, records...)
}
