package grader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kaminskia1/excel-autograder/internal/i18n"
	"github.com/kaminskia1/excel-autograder/internal/model"
)

// ErrUnknownColumn indicates an export column name is not recognized.
var ErrUnknownColumn = errors.New("unknown export column")

// ExportSheet is the name of the sheet holding exported results.
const ExportSheet = "Submissions"

type column struct {
	msgID string
	value func(s *model.Submission) any
}

var columns = map[string]column{
	"fileName":       {"ColumnFileName", func(s *model.Submission) any { return s.FileName }},
	"points":         {"ColumnPoints", func(s *model.Submission) any { return s.Points }},
	"maxPoints":      {"ColumnMaxPoints", func(s *model.Submission) any { return s.MaxPoints }},
	"score":          {"ColumnScore", func(s *model.Submission) any { return s.Score }},
	"creator":        {"ColumnCreator", func(s *model.Submission) any { return s.Properties.Creator }},
	"company":        {"ColumnCompany", func(s *model.Submission) any { return s.Properties.Company }},
	"lastModifiedBy": {"ColumnLastModifiedBy", func(s *model.Submission) any { return s.Properties.LastModifiedBy }},
	"lastModified":   {"ColumnLastModified", func(s *model.Submission) any { return s.Properties.Modified }},
	"created":        {"ColumnCreated", func(s *model.Submission) any { return s.Properties.Created }},
	"title":          {"ColumnTitle", func(s *model.Submission) any { return s.Properties.Title }},
	"subject":        {"ColumnSubject", func(s *model.Submission) any { return s.Properties.Subject }},
	"description":    {"ColumnDescription", func(s *model.Submission) any { return s.Properties.Description }},
	"keywords":       {"ColumnKeywords", func(s *model.Submission) any { return s.Properties.Keywords }},
	"category":       {"ColumnCategory", func(s *model.Submission) any { return s.Properties.Category }},
	"error":          {"ColumnError", func(s *model.Submission) any { return s.Error }},
}

// DefaultColumns are exported when none are requested.
var DefaultColumns = []string{"fileName", "points", "maxPoints", "score"}

// ParseColumns splits a comma separated column list, validating each name.
// An empty list yields DefaultColumns.
func ParseColumns(list string) ([]string, error) {
	var out []string
	for _, c := range strings.Split(list, ",") {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := columns[c]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return DefaultColumns, nil
	}
	return out, nil
}

// Export writes the submissions as an xlsx workbook to w: a header row of
// localized column titles followed by one row per submission.
func Export(ctx context.Context, w io.Writer, subs []model.Submission, cols []string, title string) error {
	if len(cols) == 0 {
		cols = DefaultColumns
	}
	selected := make([]column, 0, len(cols))
	for _, name := range cols {
		c, ok := columns[name]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, name)
		}
		selected = append(selected, c)
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", ExportSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if title != "" {
		if err := f.SetDocProps(&excelize.DocProperties{Title: title, Creator: "autograder"}); err != nil {
			return fmt.Errorf("set properties: %w", err)
		}
	}

	header := make([]any, len(selected))
	for i, c := range selected {
		header[i] = i18n.T(ctx, c.msgID)
	}
	if err := f.SetSheetRow(ExportSheet, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(selected), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(ExportSheet, "A1", last, bold); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i := range subs {
		row := make([]any, len(selected))
		for j, c := range selected {
			row[j] = c.value(&subs[i])
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ExportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(ExportSheet, &excelize.Panes{
		Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
