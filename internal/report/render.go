// Package report renders validation reports for operators: a deterministic
// plain-text form for the terminal and an XLSX form for teams that archive
// validation evidence in spreadsheets.
package report

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/exportval/internal/domain"
)

// RenderText renders the report as plain text, ordered exactly as the report
// orders its record diffs. MATCH records are summarized by count only;
// everything else is listed with its differing fields.
func RenderText(r domain.Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Export Validation Report\n")
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Entity: %s\n", r.EntityType)
	fmt.Fprintf(&b, "Instance: %s\n", r.InstanceID)
	if r.CandidateFile != "" {
		fmt.Fprintf(&b, "Candidate File: %s\n", r.CandidateFile)
	}
	if r.BaselineVersion > 0 {
		fmt.Fprintf(&b, "Baseline Version: %d\n", r.BaselineVersion)
	} else {
		fmt.Fprintf(&b, "Baseline Version: none (empty baseline)\n")
	}
	fmt.Fprintf(&b, "\nResult: %s\n", r.Status)
	fmt.Fprintf(&b, "Records: %d total, %d matched, %d mismatched, %d added, %d removed, %d unmatchable\n",
		r.Summary.Total, r.Summary.Matched, r.Summary.Mismatched,
		r.Summary.Added, r.Summary.Removed, r.Summary.Unmatchable)

	for _, record := range r.Records {
		if record.Status == domain.RecordDiffMatch {
			continue
		}
		b.WriteString("\n")
		if record.Status == domain.RecordDiffUnmatchable {
			fmt.Fprintf(&b, "%s record at position %d (incomplete correlation key)\n", record.Status, record.Position)
		} else {
			fmt.Fprintf(&b, "%s [%s]\n", record.Status, record.KeyString())
		}
		for _, field := range record.Fields {
			switch field.Status {
			case domain.FieldDiffMismatch:
				fmt.Fprintf(&b, "  * %s: baseline %s -> candidate %s\n",
					field.Field, renderValues(field.BaselineValues), renderValues(field.CandidateValues))
			case domain.FieldDiffAdded:
				fmt.Fprintf(&b, "  + %s: %s\n", field.Field, renderValues(field.CandidateValues))
			case domain.FieldDiffRemoved:
				fmt.Fprintf(&b, "  - %s: %s\n", field.Field, renderValues(field.BaselineValues))
			}
		}
	}

	return b.String()
}

func renderValues(values []string) string {
	if len(values) == 0 {
		return "(absent)"
	}
	if len(values) == 1 {
		return fmt.Sprintf("%q", values[0])
	}
	quoted := make([]string, len(values))
	for i, value := range values {
		quoted[i] = fmt.Sprintf("%q", value)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// WriteXLSX writes the report as a workbook with a Summary sheet and a
// Records sheet (one row per field diff).
func WriteXLSX(r domain.Report, path string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	summarySheet := "Summary"
	if err := f.SetSheetName(f.GetSheetName(0), summarySheet); err != nil {
		return fmt.Errorf("failed to prepare summary sheet: %w", err)
	}

	summaryRows := [][]any{
		{"Run ID", r.RunID.String()},
		{"Generated", r.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
		{"Entity", r.EntityType},
		{"Instance", r.InstanceID},
		{"Baseline Version", r.BaselineVersion},
		{"Candidate File", r.CandidateFile},
		{"Result", string(r.Status)},
		{"Total Records", r.Summary.Total},
		{"Matched", r.Summary.Matched},
		{"Mismatched", r.Summary.Mismatched},
		{"Added", r.Summary.Added},
		{"Removed", r.Summary.Removed},
		{"Unmatchable", r.Summary.Unmatchable},
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("failed to address summary cell: %w", err)
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write summary row: %w", err)
		}
	}

	recordSheet := "Records"
	if _, err := f.NewSheet(recordSheet); err != nil {
		return fmt.Errorf("failed to create records sheet: %w", err)
	}

	header := []any{"Record Status", "Correlation Key", "Position", "Tag", "Field", "Field Status", "Baseline Values", "Candidate Values"}
	if err := f.SetSheetRow(recordSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write records header: %w", err)
	}

	rowIdx := 2
	for _, record := range r.Records {
		if len(record.Fields) == 0 {
			row := []any{string(record.Status), record.KeyString(), record.Position, record.Tag, "", "", "", ""}
			if err := writeRecordRow(f, recordSheet, rowIdx, row); err != nil {
				return err
			}
			rowIdx++
			continue
		}
		for _, field := range record.Fields {
			row := []any{
				string(record.Status),
				record.KeyString(),
				record.Position,
				record.Tag,
				field.Field,
				string(field.Status),
				strings.Join(field.BaselineValues, "; "),
				strings.Join(field.CandidateValues, "; "),
			}
			if err := writeRecordRow(f, recordSheet, rowIdx, row); err != nil {
				return err
			}
			rowIdx++
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save report workbook: %w", err)
	}
	return nil
}

func writeRecordRow(f *excelize.File, sheet string, rowIdx int, row []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowIdx)
	if err != nil {
		return fmt.Errorf("failed to address record cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("failed to write record row: %w", err)
	}
	return nil
}
