package domain

import (
	"testing"
	"time"
)

func queryFixture() []ProductRecord {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return []ProductRecord{
		{ID: "a", BatchID: "B2", Status: StatusActive, SourceType: SourceFarmed, CreatedAt: base.Add(2 * time.Hour),
			Product: &Product{Quantity: 5, Species: &Species{CommonName: "Mussel", ScientificName: "Mytilus galloprovincialis"}},
			Origin:  Origin{Location: "Goro"}},
		{ID: "b", Status: StatusDraft, SourceType: SourceWildCapture, CreatedAt: base,
			Product: &Product{Quantity: 20, Species: &Species{CommonName: "Clam"}},
			Creator: Creator{Organization: "Coop Pescatori"}},
		{ID: "c", BatchID: "B1", Status: StatusActive, SourceType: SourceWildCapture, CreatedAt: base.Add(time.Hour),
			Product: &Product{Quantity: 10}},
	}
}

func ids(records []ProductRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

func equalIDs(got []ProductRecord, want ...string) bool {
	g := ids(got)
	if len(g) != len(want) {
		return false
	}
	for i := range g {
		if g[i] != want[i] {
			return false
		}
	}
	return true
}

func TestRecordQueryFilters(t *testing.T) {
	records := queryFixture()
	cases := []struct {
		name  string
		query RecordQuery
		want  []string
	}{
		{"all", RecordQuery{}, []string{"a", "b", "c"}},
		{"status", RecordQuery{Status: StatusActive}, []string{"a", "c"}},
		{"source", RecordQuery{SourceType: SourceWildCapture}, []string{"b", "c"}},
		{"search species", RecordQuery{Search: "mytilus"}, []string{"a"}},
		{"search organization", RecordQuery{Search: "COOP"}, []string{"b"}},
		{"search unknown species label", RecordQuery{Search: "unknown species"}, []string{"c"}},
		{"combined", RecordQuery{Status: StatusActive, SourceType: SourceFarmed}, []string{"a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.query.Apply(records)
			if !equalIDs(got, tc.want...) {
				t.Fatalf("got %v want %v", ids(got), tc.want)
			}
		})
	}
}

func TestRecordQuerySort(t *testing.T) {
	records := queryFixture()
	cases := []struct {
		query RecordQuery
		want  []string
	}{
		{RecordQuery{SortBy: RecordSortCreatedAt}, []string{"b", "c", "a"}},
		{RecordQuery{SortBy: RecordSortCreatedAt, SortOrder: SortDesc}, []string{"a", "c", "b"}},
		{RecordQuery{SortBy: RecordSortQuantity, SortOrder: SortDesc}, []string{"b", "c", "a"}},
		{RecordQuery{SortBy: RecordSortBatchID}, []string{"b", "c", "a"}},
		{RecordQuery{SortBy: "bogus"}, []string{"a", "b", "c"}},
	}
	for _, tc := range cases {
		got := tc.query.Apply(records)
		if !equalIDs(got, tc.want...) {
			t.Fatalf("%+v: got %v want %v", tc.query, ids(got), tc.want)
		}
	}
	if !equalIDs(records, "a", "b", "c") {
		t.Fatalf("input mutated: %v", ids(records))
	}
}

func TestRecordQueryKeyTrimsSearch(t *testing.T) {
	a := RecordQuery{Search: "  Mussel "}
	b := RecordQuery{Search: "Mussel"}
	if a.Key() != b.Key() {
		t.Fatalf("expected equal keys: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == (RecordQuery{Search: "mussel"}).Key() {
		t.Fatalf("expected search casing to change key")
	}
	if a.Key() == (RecordQuery{Status: StatusActive, Search: "Mussel"}).Key() {
		t.Fatalf("expected status to change key")
	}
}

func TestParseSortOrder(t *testing.T) {
	if ParseSortOrder(" DESC ") != SortDesc {
		t.Fatalf("expected desc")
	}
	if ParseSortOrder("sideways") != SortAsc {
		t.Fatalf("expected asc fallback")
	}
}

func TestErrNotFoundMessage(t *testing.T) {
	if got := (ErrNotFound{ID: "x"}).Error(); got != "record x not found" {
		t.Fatalf("unexpected message %q", got)
	}
}
