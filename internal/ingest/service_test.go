package ingest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/registry"
)

func testRegistry() *registry.Registry {
	return registry.New(domain.EntitySchema{
		EntityType:     "select_sets",
		CorrelationKey: []string{"SEL_NME"},
		Fields: []domain.FieldDefinition{
			{Path: "SEL_NME", Kind: domain.ValueKindString, Multiplicity: domain.MultiplicitySingle, Validated: true},
			{Path: "SEL_DESC", Kind: domain.ValueKindString, Multiplicity: domain.MultiplicitySingle},
			{Path: "SEL_AREA", Kind: domain.ValueKindString, Multiplicity: domain.MultiplicityMulti, Validated: true},
		},
	})
}

const sampleExport = `<?xml version="1.0"?>
<export entityType="select_sets" system="prod-a" generated="2026-08-12T09:30:00" author="batch">
  <row tag="SEL">
    <SEL_NME>ACTIVE_WELLS</SEL_NME>
    <SEL_DESC>Active wells in area 7</SEL_DESC>
    <SEL_AREA>NORTH</SEL_AREA>
    <SEL_AREA>EAST</SEL_AREA>
  </row>
  <row tag="SEL">
    <SEL_NME>IDLE_WELLS</SEL_NME>
  </row>
</export>`

func TestIngestParsesRecordsAndMeta(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	doc, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "select_sets.xml",
		Data:       strings.NewReader(sampleExport),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}

	if doc.EntityType != "select_sets" {
		t.Fatalf("unexpected entity type %s", doc.EntityType)
	}
	if doc.Meta.System != "prod-a" || doc.Meta.Author != "batch" {
		t.Fatalf("unexpected meta: %+v", doc.Meta)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(doc.Records))
	}

	first := doc.Records[0]
	if first.Position != 1 || first.Tag != "SEL" {
		t.Fatalf("unexpected first record header: %+v", first)
	}
	areas := first.Values("SEL_AREA")
	if len(areas) != 2 || areas[0] != "NORTH" || areas[1] != "EAST" {
		t.Fatalf("repeated field occurrences lost: %v", areas)
	}

	// The second record is sparse: only the name field is present.
	second := doc.Records[1]
	if second.Position != 2 {
		t.Fatalf("unexpected second record position %d", second.Position)
	}
	if got := second.Values("SEL_DESC"); got != nil {
		t.Fatalf("expected absent field to yield nil, got %v", got)
	}
}

func TestIngestUTF16Export(t *testing.T) {
	encoder := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	encoded, _, err := transform.String(encoder, sampleExport)
	if err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	svc := NewService(testRegistry(), nil)
	doc, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "select_sets.xml",
		Data:       strings.NewReader(encoded),
	})
	if err != nil {
		t.Fatalf("ingest returned error: %v", err)
	}
	if len(doc.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(doc.Records))
	}
}

func TestIngestRejectsUndeclaredField(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	_, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "bad.xml",
		Data: strings.NewReader(`<export entityType="select_sets">
  <row><SEL_NME>A</SEL_NME></row>
  <row><SEL_SECRET>B</SEL_SECRET></row>
</export>`),
	})

	var mismatch *domain.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
	if mismatch.Field != "SEL_SECRET" || mismatch.Position != 2 {
		t.Fatalf("unexpected mismatch detail: %+v", mismatch)
	}
}

func TestIngestRejectsEntityTypeMismatch(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	_, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "bad.xml",
		Data:       strings.NewReader(`<export entityType="promotions"><row><SEL_NME>A</SEL_NME></row></export>`),
	})

	var mismatch *domain.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}

func TestIngestMalformedXML(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	_, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "broken.xml",
		Data:       strings.NewReader(`<export entityType="select_sets"><row><SEL_NME>A</SEL_NME>`),
	})

	var parseErr *domain.ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if parseErr.File != "broken.xml" {
		t.Fatalf("unexpected file in error: %s", parseErr.File)
	}
}

func TestIngestEmptyExport(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	_, err := svc.Ingest(context.Background(), Request{
		EntityType: "select_sets",
		FileName:   "empty.xml",
		Data:       strings.NewReader(""),
	})
	if !errors.Is(err, ErrEmptyExport) {
		t.Fatalf("expected ErrEmptyExport, got %v", err)
	}
}

func TestIngestUnknownEntityType(t *testing.T) {
	svc := NewService(testRegistry(), nil)

	_, err := svc.Ingest(context.Background(), Request{
		EntityType: "printers",
		FileName:   "printers.xml",
		Data:       strings.NewReader(sampleExport),
	})

	var mismatch *domain.SchemaMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected SchemaMismatchError, got %v", err)
	}
}
