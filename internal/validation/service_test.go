package validation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rpattn/exportval/internal/baseline"
	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/ingest"
	"github.com/rpattn/exportval/internal/registry"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	reg := registry.New(domain.EntitySchema{
		EntityType:     "select_sets",
		CorrelationKey: []string{"SEL_NME"},
		Fields: []domain.FieldDefinition{
			{Path: "SEL_NME", Kind: domain.ValueKindString, Multiplicity: domain.MultiplicitySingle, Validated: true},
			{Path: "SEL_CNT", Kind: domain.ValueKindNumber, Multiplicity: domain.MultiplicitySingle, Validated: true},
			{Path: "SEL_DESC", Kind: domain.ValueKindString, Multiplicity: domain.MultiplicitySingle},
		},
	})
	store := baseline.NewFSStore(t.TempDir())
	return NewService(reg, ingest.NewService(reg, nil), store, nil)
}

func export(rows ...string) string {
	var b strings.Builder
	b.WriteString(`<export entityType="select_sets" system="prod-a">`)
	for _, row := range rows {
		b.WriteString("<row>")
		b.WriteString(row)
		b.WriteString("</row>")
	}
	b.WriteString("</export>")
	return b.String()
}

func promote(t *testing.T, svc *Service, content string) domain.BaselineVersion {
	t.Helper()
	promoted, err := svc.Promote(context.Background(), PromoteRequest{
		EntityType: "select_sets",
		InstanceID: "prod-a",
		FileName:   "baseline.xml",
		Data:       strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("promote returned error: %v", err)
	}
	return promoted
}

func validate(t *testing.T, svc *Service, content string) domain.Report {
	t.Helper()
	report, err := svc.Validate(context.Background(), ValidateRequest{
		EntityType: "select_sets",
		InstanceID: "prod-a",
		FileName:   "candidate.xml",
		Data:       strings.NewReader(content),
	})
	if err != nil {
		t.Fatalf("validate returned error: %v", err)
	}
	return report
}

func TestValidateAgainstOwnPromotionPasses(t *testing.T) {
	svc := newTestService(t)
	content := export(
		"<SEL_NME>ACTIVE</SEL_NME><SEL_CNT>42</SEL_CNT>",
		"<SEL_NME>IDLE</SEL_NME><SEL_CNT>7</SEL_CNT>",
	)

	promoted := promote(t, svc, content)
	if promoted.Version != 1 {
		t.Fatalf("expected version 1, got %d", promoted.Version)
	}

	report := validate(t, svc, content)
	if report.Status != domain.ReportStatusPass {
		t.Fatalf("self-validation should pass, got %s: %+v", report.Status, report.Summary)
	}
	if report.BaselineVersion != 1 || report.Summary.Matched != 2 {
		t.Fatalf("unexpected report: version=%d summary=%+v", report.BaselineVersion, report.Summary)
	}
}

func TestValidateWithoutBaselineReportsAllAdded(t *testing.T) {
	svc := newTestService(t)

	report := validate(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))
	if report.Status != domain.ReportStatusFail {
		t.Fatalf("expected FAIL against empty baseline, got %s", report.Status)
	}
	if report.BaselineVersion != 0 || report.Summary.Added != 1 || report.Summary.Total != 1 {
		t.Fatalf("unexpected report: version=%d summary=%+v", report.BaselineVersion, report.Summary)
	}
}

func TestValidateDetectsDrift(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export(
		"<SEL_NME>ACTIVE</SEL_NME><SEL_CNT>42</SEL_CNT>",
		"<SEL_NME>IDLE</SEL_NME><SEL_CNT>7</SEL_CNT>",
	))

	report := validate(t, svc, export(
		"<SEL_NME>ACTIVE</SEL_NME><SEL_CNT>43</SEL_CNT>",
		"<SEL_NME>FRESH</SEL_NME><SEL_CNT>1</SEL_CNT>",
	))
	if report.Status != domain.ReportStatusFail {
		t.Fatalf("expected FAIL, got %s", report.Status)
	}
	if report.Summary.Mismatched != 1 || report.Summary.Added != 1 || report.Summary.Removed != 1 {
		t.Fatalf("unexpected summary: %+v", report.Summary)
	}
}

func TestValidateNonValidatedDriftStillPasses(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME><SEL_DESC>old wording</SEL_DESC>"))

	report := validate(t, svc, export("<SEL_NME>ACTIVE</SEL_NME><SEL_DESC>new wording</SEL_DESC>"))
	if report.Status != domain.ReportStatusPass {
		t.Fatalf("non-validated drift must not fail the run, got %s", report.Status)
	}
}

func TestPromoteAdvancesBaseline(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))
	second := promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>", "<SEL_NME>FRESH</SEL_NME>"))
	if second.Version != 2 {
		t.Fatalf("expected version 2, got %d", second.Version)
	}

	report := validate(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>", "<SEL_NME>FRESH</SEL_NME>"))
	if report.Status != domain.ReportStatusPass || report.BaselineVersion != 2 {
		t.Fatalf("validation not against new head: status=%s version=%d", report.Status, report.BaselineVersion)
	}
}

func TestPromoteStaleExpectedVersionConflicts(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))

	stale := 0
	_, err := svc.Promote(context.Background(), PromoteRequest{
		EntityType:      "select_sets",
		InstanceID:      "prod-a",
		FileName:        "stale.xml",
		Data:            strings.NewReader(export("<SEL_NME>STALE</SEL_NME>")),
		ExpectedVersion: &stale,
	})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

func TestPromoteRejectsInvalidDocument(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Promote(context.Background(), PromoteRequest{
		EntityType: "select_sets",
		InstanceID: "prod-a",
		FileName:   "bad.xml",
		Data:       strings.NewReader(export("<SEL_BOGUS>x</SEL_BOGUS>")),
	})
	var mismatch *domain.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}

	// A rejected promotion must leave no baseline behind.
	versions, err := svc.ListVersions(context.Background(), "select_sets", "prod-a")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(versions) != 0 {
		t.Fatalf("invalid document was promoted: %d versions", len(versions))
	}
}

func TestRollbackRestoresOldSnapshotAsNewHead(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>", "<SEL_NME>FRESH</SEL_NME>"))

	restored, err := svc.Rollback(context.Background(), "select_sets", "prod-a", 1)
	if err != nil {
		t.Fatalf("rollback returned error: %v", err)
	}
	if restored.Version != 3 {
		t.Fatalf("rollback should append, not rewrite: got version %d", restored.Version)
	}
	if len(restored.Document.Records) != 1 {
		t.Fatalf("rollback did not restore version 1 content: %+v", restored.Document)
	}

	// History keeps all three versions.
	versions, err := svc.ListVersions(context.Background(), "select_sets", "prod-a")
	if err != nil {
		t.Fatalf("list returned error: %v", err)
	}
	if len(versions) != 3 {
		t.Fatalf("expected 3 versions, got %d", len(versions))
	}
}

func TestRollbackToActiveVersionIsRejected(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))

	if _, err := svc.Rollback(context.Background(), "select_sets", "prod-a", 1); err == nil {
		t.Fatalf("expected rollback to the active version to fail")
	}
}

func TestValidateDuplicateCandidateKeysAbort(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Validate(context.Background(), ValidateRequest{
		EntityType: "select_sets",
		InstanceID: "prod-a",
		FileName:   "dup.xml",
		Data:       strings.NewReader(export("<SEL_NME>ACTIVE</SEL_NME>", "<SEL_NME>ACTIVE</SEL_NME>")),
	})
	var dup *domain.DuplicateKeyError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateKeyError, got %v", err)
	}
	if dup.Side != "candidate" {
		t.Fatalf("unexpected side %s", dup.Side)
	}
}

func TestValidateFilesRunsIndependently(t *testing.T) {
	svc := newTestService(t)
	promote(t, svc, export("<SEL_NME>ACTIVE</SEL_NME>"))

	dir := t.TempDir()
	good := filepath.Join(dir, "good.xml")
	broken := filepath.Join(dir, "broken.xml")
	if err := os.WriteFile(good, []byte(export("<SEL_NME>ACTIVE</SEL_NME>")), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	if err := os.WriteFile(broken, []byte("<export entityType=\"select_sets\"><row>"), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	results := svc.ValidateFiles(context.Background(), []FileRequest{
		{Path: good, EntityType: "select_sets", InstanceID: "prod-a"},
		{Path: broken, EntityType: "select_sets", InstanceID: "prod-a"},
		{Path: filepath.Join(dir, "missing.xml"), EntityType: "select_sets", InstanceID: "prod-a"},
	}, 2)

	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Err != nil || results[0].Report.Status != domain.ReportStatusPass {
		t.Fatalf("good file should pass: %+v", results[0])
	}
	var parseErr *domain.ParseError
	if !errors.As(results[1].Err, &parseErr) {
		t.Fatalf("broken file should yield ParseError, got %v", results[1].Err)
	}
	if results[2].Err == nil {
		t.Fatalf("missing file should yield an error")
	}
}
