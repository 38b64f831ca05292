package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tracceaqua/pkg/domain"
)

func record(id, batch string, qty float64, statuses ...domain.StageStatus) domain.ProductRecord {
	stages := make([]domain.Stage, 0, len(statuses))
	for i, st := range statuses {
		stages = append(stages, domain.Stage{Name: string(rune('A' + i)), Status: st})
	}
	return domain.ProductRecord{ID: id, BatchID: batch, Product: &domain.Product{Quantity: qty}, Stages: stages}
}

func TestGroupBatchesSharedBatchAveragesProgress(t *testing.T) {
	got := GroupBatches([]domain.ProductRecord{
		record("1", "B1", 10, domain.StageCompleted),
		record("2", "B1", 20, domain.StagePending),
	})
	if len(got) != 1 {
		t.Fatalf("expected one batch, got %d", len(got))
	}
	b := got[0]
	if b.BatchID != "B1" || b.TotalQuantity != 30 || b.AverageProgress != 50 {
		t.Fatalf("unexpected summary %+v", b)
	}
	if len(b.Products) != 2 || b.Products[0].ID != "1" || b.Products[1].ID != "2" {
		t.Fatalf("expected products in input order, got %+v", b.Products)
	}
}

func TestGroupBatchesIndividualRecord(t *testing.T) {
	got := GroupBatches([]domain.ProductRecord{{ID: "1", Product: &domain.Product{Quantity: 5}, Stages: []domain.Stage{}}})
	if len(got) != 1 {
		t.Fatalf("expected one batch, got %d", len(got))
	}
	if got[0].BatchID != "INDIVIDUAL-1" || got[0].TotalQuantity != 5 || got[0].AverageProgress != 0 {
		t.Fatalf("unexpected summary %+v", got[0])
	}
}

func TestGroupBatchesEmptyInput(t *testing.T) {
	for name, in := range map[string][]domain.ProductRecord{"nil": nil, "empty": {}} {
		got := GroupBatches(in)
		if got == nil || len(got) != 0 {
			t.Fatalf("%s: expected empty non-nil slice, got %#v", name, got)
		}
	}
}

func TestGroupBatchesDistinctBatchesKeepInputOrder(t *testing.T) {
	got := GroupBatches([]domain.ProductRecord{record("1", "Z", 1), record("2", "A", 2)})
	ids := []string{got[0].BatchID, got[1].BatchID}
	if diff := cmp.Diff([]string{"Z", "A"}, ids); diff != "" {
		t.Fatalf("batch order mismatch (-want +got):\n%s", diff)
	}
	for _, b := range got {
		if len(b.Products) != 1 {
			t.Fatalf("expected single product in %s", b.BatchID)
		}
	}
}

func TestGroupBatchesInterleavedGroupsUseFirstSeenOrder(t *testing.T) {
	got := GroupBatches([]domain.ProductRecord{
		record("1", "B2", 1),
		record("2", "B1", 1),
		record("3", "B2", 1),
		record("4", "", 1),
		record("5", "B1", 1),
	})
	var order []string
	for _, b := range got {
		order = append(order, b.BatchID)
	}
	if diff := cmp.Diff([]string{"B2", "B1", "INDIVIDUAL-4"}, order); diff != "" {
		t.Fatalf("group order mismatch (-want +got):\n%s", diff)
	}
	if got[0].Products[1].ID != "3" || got[1].Products[1].ID != "5" {
		t.Fatalf("members out of order: %+v", got)
	}
}

func TestGroupBatchesFallbacksAndRepresentativeFields(t *testing.T) {
	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	first := domain.ProductRecord{
		ID: "1", BatchID: "B", Status: domain.StatusActive, SourceType: domain.SourceWildCapture,
		Origin: domain.Origin{Location: "Adriatic"}, Creator: domain.Creator{Name: "Marta"}, CreatedAt: created,
		Product: &domain.Product{Quantity: 2, Species: &domain.Species{CommonName: "Sea bream"}},
	}
	second := domain.ProductRecord{
		ID: "2", BatchID: "B", Status: domain.StatusRejected,
		Product: &domain.Product{Quantity: 3, Unit: "pcs", Species: &domain.Species{CommonName: "Bass"}},
	}
	got := GroupBatches([]domain.ProductRecord{first, second})[0]

	want := domain.Species{ScientificName: domain.UnknownScientificName, CommonName: "Sea bream"}
	if diff := cmp.Diff(want, got.Species); diff != "" {
		t.Fatalf("species mismatch (-want +got):\n%s", diff)
	}
	if got.Unit != domain.DefaultUnit || got.Status != domain.StatusActive || got.SourceType != domain.SourceWildCapture {
		t.Fatalf("expected fields from first record, got %+v", got)
	}
	if got.Origin.Location != "Adriatic" || got.Creator.Name != "Marta" || !got.CreatedAt.Equal(created) {
		t.Fatalf("expected origin, creator and date from first record, got %+v", got)
	}

	missing := GroupBatches([]domain.ProductRecord{{ID: "x"}})[0]
	if missing.TotalQuantity != 0 || missing.Unit != "kg" || missing.Species.CommonName != "Unknown Species" || missing.Species.ScientificName != "Unknown" {
		t.Fatalf("unexpected fallbacks %+v", missing)
	}
}

func TestGroupBatchesStagesDistinctInFirstSeenOrder(t *testing.T) {
	a := domain.ProductRecord{ID: "1", BatchID: "B", Stages: []domain.Stage{
		{Name: "Harvest", Status: domain.StageCompleted},
		{Name: "Transport", Status: domain.StagePending},
	}}
	b := domain.ProductRecord{ID: "2", BatchID: "B", Stages: []domain.Stage{
		{Name: "Processing", Status: domain.StageCompleted},
		{Name: "Harvest", Status: domain.StageCompleted},
	}}
	got := GroupBatches([]domain.ProductRecord{a, b})[0]
	if diff := cmp.Diff([]string{"Harvest", "Transport", "Processing"}, got.Stages); diff != "" {
		t.Fatalf("stages mismatch (-want +got):\n%s", diff)
	}
	// (0.5 + 1.0) / 2 = 0.75
	if got.AverageProgress != 75 {
		t.Fatalf("expected 75, got %d", got.AverageProgress)
	}
}

func TestGroupBatchesRoundsProgress(t *testing.T) {
	got := GroupBatches([]domain.ProductRecord{
		record("1", "B", 0, domain.StageCompleted, domain.StagePending, domain.StagePending),
	})[0]
	if got.AverageProgress != 33 {
		t.Fatalf("expected 33, got %d", got.AverageProgress)
	}
	got = GroupBatches([]domain.ProductRecord{
		record("1", "B", 0, domain.StageCompleted, domain.StageCompleted, domain.StagePending),
	})[0]
	if got.AverageProgress != 67 {
		t.Fatalf("expected 67, got %d", got.AverageProgress)
	}
}
