package dedup

import (
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestKey_TrimsAndJoins(t *testing.T) {
	if got := Key([]string{" 0900000000 ", "a@b.vn"}); got != "0900000000|a@b.vn" {
		t.Fatalf("Key = %q", got)
	}
	// A single non-blank value keeps the separator positions of blank ones.
	if got := Key([]string{"0900000000", "  "}); got != "0900000000|" {
		t.Fatalf("Key = %q", got)
	}
}

func TestKey_AllBlankIsEmpty(t *testing.T) {
	if got := Key([]string{"", "   ", "\t"}); got != "" {
		t.Fatalf("expected empty key, got %q", got)
	}
	if got := Key(nil); got != "" {
		t.Fatalf("expected empty key for no values, got %q", got)
	}
}

func TestResolve_LatestWinsOlderFlagged(t *testing.T) {
	rows := []Row{
		{ID: 1, Timestamp: t0, Values: []string{"0900000000"}},
		{ID: 2, Timestamp: t0.Add(time.Hour), Values: []string{"0900000000"}},
		{ID: 3, Timestamp: t0.Add(2 * time.Hour), Values: []string{""}},
	}
	res := Resolve(rows)

	if !res[1].IsDuplicate {
		t.Fatalf("older submission 1 should be flagged duplicate")
	}
	if res[2].IsDuplicate {
		t.Fatalf("latest submission 2 must stay canonical")
	}
	if res[3].IsDuplicate || res[3].GroupKey != "" {
		t.Fatalf("blank-key submission 3 must be excluded: %+v", res[3])
	}
	if res[1].GroupKey != "0900000000" || res[2].GroupKey != "0900000000" {
		t.Fatalf("unexpected group keys: %+v %+v", res[1], res[2])
	}
}

func TestResolve_ExactlyOneCanonicalPerGroup(t *testing.T) {
	rows := []Row{
		{ID: 10, Timestamp: t0, Values: []string{"a", "x@y"}},
		{ID: 11, Timestamp: t0.Add(time.Minute), Values: []string{"a", "x@y"}},
		{ID: 12, Timestamp: t0.Add(2 * time.Minute), Values: []string{"a", "x@y"}},
		{ID: 20, Timestamp: t0, Values: []string{"b", ""}},
	}
	res := Resolve(rows)

	canonical := map[string]int{}
	for _, r := range rows {
		if !res[r.ID].IsDuplicate {
			canonical[res[r.ID].GroupKey]++
		}
	}
	if canonical["a|x@y"] != 1 {
		t.Fatalf("group a|x@y must have exactly one canonical, got %d", canonical["a|x@y"])
	}
	if canonical["b|"] != 1 {
		t.Fatalf("group b| must have exactly one canonical, got %d", canonical["b|"])
	}
	if res[12].IsDuplicate {
		t.Fatalf("max-timestamp member 12 must be canonical")
	}
}

func TestResolve_EqualTimestampsBreakByHighestID(t *testing.T) {
	rows := []Row{
		{ID: 5, Timestamp: t0, Values: []string{"same"}},
		{ID: 9, Timestamp: t0, Values: []string{"same"}},
		{ID: 7, Timestamp: t0, Values: []string{"same"}},
	}
	res := Resolve(rows)
	if res[9].IsDuplicate {
		t.Fatalf("highest id must win on equal timestamps")
	}
	if !res[5].IsDuplicate || !res[7].IsDuplicate {
		t.Fatalf("lower ids must be flagged: %+v %+v", res[5], res[7])
	}
}

func TestResolve_Idempotent(t *testing.T) {
	rows := []Row{
		{ID: 1, Timestamp: t0, Values: []string{"k"}},
		{ID: 2, Timestamp: t0.Add(time.Second), Values: []string{"k"}},
		{ID: 3, Timestamp: t0, Values: []string{" "}},
	}
	first := Resolve(rows)
	second := Resolve(rows)
	for id, r := range first {
		if second[id] != r {
			t.Fatalf("resolver not deterministic for id %d: %+v vs %+v", id, r, second[id])
		}
	}
}

func TestResolve_BlankRowsNeverFlagged(t *testing.T) {
	rows := make([]Row, 0, 5)
	for i := uint(1); i <= 5; i++ {
		rows = append(rows, Row{ID: i, Timestamp: t0, Values: []string{"", " "}})
	}
	res := Resolve(rows)
	for id, r := range res {
		if r.IsDuplicate {
			t.Fatalf("blank-key row %d flagged duplicate", id)
		}
	}
}

func TestCanonical_PreservesOrderAndDropsDuplicates(t *testing.T) {
	rows := []Row{
		{ID: 1, Timestamp: t0, Values: []string{"f1", "p", "e"}},
		{ID: 2, Timestamp: t0.Add(time.Hour), Values: []string{"f1", "p", "e"}},
		{ID: 3, Timestamp: t0, Values: []string{"f2", "p", "e"}},
		{ID: 4, Timestamp: t0, Values: []string{"", "", ""}},
	}
	got := Canonical(rows)
	want := []uint{2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("Canonical = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Canonical = %v, want %v", got, want)
		}
	}
}
