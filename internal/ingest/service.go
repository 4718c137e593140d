// Package ingest parses raw entity exports into normalized in-memory
// documents, validating every observed field path against the schema
// registry as it goes.
package ingest

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/rpattn/exportval/internal/domain"
	"github.com/rpattn/exportval/internal/registry"
)

// ErrEmptyExport is returned when the reader yields no content.
var ErrEmptyExport = errors.New("export file is empty")

// Service turns raw export content into domain documents.
type Service struct {
	registry *registry.Registry
	logger   *zap.Logger
}

// NewService creates a new ingest service.
func NewService(reg *registry.Registry, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{registry: reg, logger: logger}
}

// Request describes the ingestion input: raw export content plus the entity
// type it claims to represent.
type Request struct {
	EntityType string
	FileName   string
	Data       io.Reader
}

// Ingest parses the export into a Document. Malformed structure yields a
// ParseError; an unknown entity type or an undeclared field path yields a
// SchemaMismatchError. Per-record field occurrence counts are preserved: a
// field may be absent, present once, or repeated within one record.
func (s *Service) Ingest(ctx context.Context, req Request) (domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return domain.Document{}, err
	}
	if strings.TrimSpace(req.EntityType) == "" {
		return domain.Document{}, errors.New("entity type is required")
	}
	if req.Data == nil {
		return domain.Document{}, errors.New("data reader is required")
	}

	schema, err := s.registry.GetSchema(req.EntityType)
	if err != nil {
		return domain.Document{}, err
	}

	// Production exports arrive as either UTF-8 or UTF-16 with a BOM.
	decoded := transform.NewReader(req.Data, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	payload, err := io.ReadAll(decoded)
	if err != nil {
		return domain.Document{}, fmt.Errorf("failed to read export: %w", err)
	}
	if len(payload) == 0 {
		return domain.Document{}, &domain.ParseError{File: req.FileName, Err: ErrEmptyExport}
	}

	doc, err := s.parse(req, schema, payload)
	if err != nil {
		return domain.Document{}, err
	}

	s.logger.Debug("export ingested",
		zap.String("entity", req.EntityType),
		zap.String("file", req.FileName),
		zap.Int("records", len(doc.Records)))
	return doc, nil
}

func (s *Service) parse(req Request, schema domain.EntitySchema, payload []byte) (domain.Document, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(payload)))
	// The payload is already UTF-8 at this point; honor whatever charset the
	// prolog still declares.
	decoder.CharsetReader = func(charset string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	doc := domain.Document{EntityType: req.EntityType}
	depth := 0
	position := 0
	var current domain.Record
	var fieldPath string
	var fieldText strings.Builder

	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return domain.Document{}, &domain.ParseError{File: req.FileName, Err: err}
		}

		switch t := token.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if declared := attrValue(t, "entityType"); declared != "" && declared != req.EntityType {
					return domain.Document{}, &domain.SchemaMismatchError{
						EntityType: req.EntityType,
						Reason:     fmt.Sprintf("export declares entity type %s", declared),
					}
				}
				doc.Meta = domain.DocumentMeta{
					System:    attrValue(t, "system"),
					Generated: attrValue(t, "generated"),
					Author:    attrValue(t, "author"),
				}
			case 2:
				position++
				current = domain.NewRecord(position)
				current.Tag = attrValue(t, "tag")
			case 3:
				fieldPath = t.Name.Local
				fieldText.Reset()
				if !schema.HasField(fieldPath) {
					return domain.Document{}, &domain.SchemaMismatchError{
						EntityType: req.EntityType,
						Field:      fieldPath,
						Position:   position,
						Reason:     "field is not declared in the entity schema",
					}
				}
			default:
				return domain.Document{}, &domain.ParseError{
					File: req.FileName,
					Err:  fmt.Errorf("unexpected nested element %s in record %d field %s", t.Name.Local, position, fieldPath),
				}
			}
		case xml.CharData:
			if depth == 3 {
				fieldText.Write(t)
			}
		case xml.EndElement:
			switch depth {
			case 2:
				doc.Records = append(doc.Records, current)
			case 3:
				current.Append(fieldPath, fieldText.String())
			}
			depth--
		}
	}

	if depth != 0 {
		return domain.Document{}, &domain.ParseError{File: req.FileName, Err: errors.New("unbalanced document structure")}
	}
	return doc, nil
}

func attrValue(el xml.StartElement, name string) string {
	for _, attr := range el.Attr {
		if attr.Name.Local == name {
			return strings.TrimSpace(attr.Value)
		}
	}
	return ""
}
