package core

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"tracceaqua/pkg/domain"
)

func batchIDs(batches []domain.BatchSummary) []string {
	out := make([]string, 0, len(batches))
	for _, b := range batches {
		out = append(out, b.BatchID)
	}
	return out
}

func sampleBatches() []domain.BatchSummary {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []domain.BatchSummary{
		{BatchID: "C", TotalQuantity: 5, AverageProgress: 50, CreatedAt: base.Add(2 * time.Hour), Species: domain.Species{CommonName: "Oyster"}, Products: make([]domain.ProductRecord, 2), Stages: []string{"a"}},
		{BatchID: "A", TotalQuantity: 10, AverageProgress: 50, CreatedAt: base, Species: domain.Species{CommonName: "Clam"}, Products: make([]domain.ProductRecord, 1)},
		{BatchID: "B", TotalQuantity: 5, AverageProgress: 100, CreatedAt: base.Add(time.Hour), Species: domain.Species{CommonName: "Mussel"}, Products: make([]domain.ProductRecord, 3), Stages: []string{"a", "b"}},
	}
}

func TestSortBatchesByField(t *testing.T) {
	cases := []struct {
		field BatchField
		order domain.SortOrder
		want  []string
	}{
		{FieldBatchID, domain.SortAsc, []string{"A", "B", "C"}},
		{FieldBatchID, domain.SortDesc, []string{"C", "B", "A"}},
		{FieldTotalQuantity, domain.SortAsc, []string{"C", "B", "A"}},
		{FieldTotalQuantity, domain.SortDesc, []string{"A", "C", "B"}},
		{FieldAverageProgress, domain.SortAsc, []string{"C", "A", "B"}},
		{FieldAverageProgress, domain.SortDesc, []string{"B", "C", "A"}},
		{FieldCreatedAt, domain.SortDesc, []string{"C", "B", "A"}},
		{FieldSpecies, domain.SortAsc, []string{"A", "B", "C"}},
		{FieldProductCount, domain.SortDesc, []string{"B", "C", "A"}},
		{FieldStageCount, domain.SortAsc, []string{"A", "C", "B"}},
	}
	for _, tc := range cases {
		t.Run(string(tc.field)+"_"+string(tc.order), func(t *testing.T) {
			got := batchIDs(SortBatches(sampleBatches(), tc.field, tc.order))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSortBatchesUnknownFieldKeepsOrder(t *testing.T) {
	in := sampleBatches()
	got := SortBatches(in, BatchField("colour"), domain.SortDesc)
	if diff := cmp.Diff([]string{"C", "A", "B"}, batchIDs(got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
	got = SortBatches(in, "", domain.SortAsc)
	if diff := cmp.Diff([]string{"C", "A", "B"}, batchIDs(got)); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestSortBatchesDoesNotMutateInput(t *testing.T) {
	in := sampleBatches()
	_ = SortBatches(in, FieldBatchID, domain.SortAsc)
	if diff := cmp.Diff([]string{"C", "A", "B"}, batchIDs(in)); diff != "" {
		t.Fatalf("input mutated (-want +got):\n%s", diff)
	}
}

func TestSortBatchesEmpty(t *testing.T) {
	if got := SortBatches(nil, FieldBatchID, domain.SortAsc); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestParseBatchField(t *testing.T) {
	if f, ok := ParseBatchField(" totalQuantity "); !ok || f != FieldTotalQuantity {
		t.Fatalf("expected totalQuantity, got %q %v", f, ok)
	}
	if _, ok := ParseBatchField("nope"); ok {
		t.Fatalf("expected unknown field to be rejected")
	}
}
