package domain

import "testing"

func TestNewReportCountsAndStatus(t *testing.T) {
	diffs := []RecordDiff{
		{Status: RecordDiffMatch, Key: []string{"B"}},
		{Status: RecordDiffMismatch, Key: []string{"A"}},
		{Status: RecordDiffAdded, Key: []string{"C"}},
		{Status: RecordDiffRemoved, Key: []string{"D"}},
		{Status: RecordDiffUnmatchable, Position: 7},
	}

	report := NewReport("select_sets", "prod-a", 3, diffs)

	if report.Status != ReportStatusFail {
		t.Fatalf("expected FAIL, got %s", report.Status)
	}
	if report.Summary.Total != 5 {
		t.Fatalf("expected 5 records, got %d", report.Summary.Total)
	}
	if report.Summary.Matched != 1 || report.Summary.Mismatched != 1 ||
		report.Summary.Added != 1 || report.Summary.Removed != 1 || report.Summary.Unmatchable != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
	if report.BaselineVersion != 3 {
		t.Fatalf("expected baseline version 3, got %d", report.BaselineVersion)
	}
}

func TestNewReportAllMatchedPasses(t *testing.T) {
	diffs := []RecordDiff{
		{Status: RecordDiffMatch, Key: []string{"1"}},
		{Status: RecordDiffMatch, Key: []string{"2"}},
	}

	report := NewReport("promotions", "prod-a", 1, diffs)

	if report.Status != ReportStatusPass {
		t.Fatalf("expected PASS, got %s", report.Status)
	}
	if report.Summary.Matched != 2 {
		t.Fatalf("expected 2 matched, got %d", report.Summary.Matched)
	}
}

func TestNewReportOrdersByKeyThenUnmatchable(t *testing.T) {
	diffs := []RecordDiff{
		{Status: RecordDiffUnmatchable, Position: 9},
		{Status: RecordDiffMatch, Key: []string{"B"}},
		{Status: RecordDiffUnmatchable, Position: 2},
		{Status: RecordDiffAdded, Key: []string{"A"}},
	}

	report := NewReport("select_sets", "prod-a", 1, diffs)

	if report.Records[0].KeyString() != "A" || report.Records[1].KeyString() != "B" {
		t.Fatalf("expected keyed records first in key order, got %+v", report.Records)
	}
	if report.Records[2].Position != 2 || report.Records[3].Position != 9 {
		t.Fatalf("expected unmatchable records last in position order, got %+v", report.Records)
	}
}

func TestNewReportIsOrderIndependent(t *testing.T) {
	forward := []RecordDiff{
		{Status: RecordDiffMatch, Key: []string{"1"}},
		{Status: RecordDiffMismatch, Key: []string{"2"}},
		{Status: RecordDiffAdded, Key: []string{"3"}},
	}
	reversed := []RecordDiff{forward[2], forward[1], forward[0]}

	a := NewReport("select_sets", "prod-a", 1, forward)
	b := NewReport("select_sets", "prod-a", 1, reversed)

	if a.Status != b.Status || a.Summary != b.Summary {
		t.Fatalf("reports differ by input order: %+v vs %+v", a.Summary, b.Summary)
	}
	for i := range a.Records {
		if a.Records[i].KeyString() != b.Records[i].KeyString() {
			t.Fatalf("record order differs at %d: %q vs %q",
				i, a.Records[i].KeyString(), b.Records[i].KeyString())
		}
	}
}

func TestRecordKeyValues(t *testing.T) {
	record := NewRecord(1)
	record.Append("SEL_NME", " DAILY ")
	record.Append("SEL_AREA", "CIRC")

	values, ok := record.KeyValues([]string{"SEL_NME"})
	if !ok {
		t.Fatalf("expected complete key")
	}
	if values[0] != "DAILY" {
		t.Fatalf("expected trimmed key value, got %q", values[0])
	}

	if _, ok := record.KeyValues([]string{"SEL_NME", "MISSING"}); ok {
		t.Fatalf("expected incomplete key for absent field")
	}

	blank := NewRecord(2)
	blank.Append("SEL_NME", "   ")
	if _, ok := blank.KeyValues([]string{"SEL_NME"}); ok {
		t.Fatalf("expected incomplete key for blank value")
	}
}
