package workbook

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidFormat indicates the input is not a readable xlsx workbook.
var ErrInvalidFormat = errors.New("invalid xlsx format")

// Open loads the xlsx file at path.
func Open(path string) (*Book, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer f.Close()
	return load(f, filepath.Base(path))
}

// Read loads an xlsx workbook from r. name is used for reporting only.
func Read(r io.Reader, name string) (*Book, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	defer f.Close()
	return load(f, name)
}

type loader struct {
	f        *excelize.File
	date1904 bool
	// dateStyles caches whether a style id formats numbers as dates.
	dateStyles map[int]bool
}

func load(f *excelize.File, name string) (*Book, error) {
	l := &loader{f: f, dateStyles: make(map[int]bool)}
	if opts, err := f.GetWorkbookProps(); err == nil && opts.Date1904 != nil {
		l.date1904 = *opts.Date1904
	}

	b := NewBook(name)
	b.Properties = readProperties(f)
	for _, sheetName := range f.GetSheetList() {
		sheet := b.AddSheet(sheetName)
		if err := l.loadSheet(sheet); err != nil {
			return nil, fmt.Errorf("load sheet %q: %w", sheetName, err)
		}
	}
	return b, nil
}

func readProperties(f *excelize.File) Properties {
	var p Properties
	if doc, err := f.GetDocProps(); err == nil && doc != nil {
		p.Creator = doc.Creator
		p.LastModifiedBy = doc.LastModifiedBy
		p.Created = doc.Created
		p.Modified = doc.Modified
		p.Title = doc.Title
		p.Subject = doc.Subject
		p.Description = doc.Description
		p.Keywords = doc.Keywords
		p.Category = doc.Category
	}
	if app, err := f.GetAppProps(); err == nil && app != nil {
		p.Company = app.Company
	}
	return p
}

// usedRange merges the stored dimension with the extent of non-empty rows.
// Either may be missing or stale depending on the writing application.
func (l *loader) usedRange(sheet string) (Range, error) {
	var r Range
	if dim, err := l.f.GetSheetDimension(sheet); err == nil && dim != "" {
		if d, err := DecodeRange(dim); err == nil {
			r = d
		}
	}
	rows, err := l.f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return Range{}, err
	}
	width := 0
	for _, row := range rows {
		width = max(width, len(row))
	}
	if len(rows) > 0 && width > 0 {
		g := Range{Top: 1, Left: 1, Bottom: len(rows), Right: width}
		if r.Empty() {
			r = g
		} else {
			r = Range{
				Top:    min(r.Top, g.Top),
				Left:   min(r.Left, g.Left),
				Bottom: max(r.Bottom, g.Bottom),
				Right:  max(r.Right, g.Right),
			}
		}
	}
	return r, nil
}

func (l *loader) loadSheet(sheet *Sheet) error {
	used, err := l.usedRange(sheet.Name)
	if err != nil {
		return err
	}
	if used.Empty() {
		return nil
	}
	for row := used.Top; row <= used.Bottom; row++ {
		for col := used.Left; col <= used.Right; col++ {
			ref, err := excelize.CoordinatesToCellName(col, row)
			if err != nil {
				return err
			}
			c, ok, err := l.readCell(sheet.Name, ref)
			if err != nil {
				return fmt.Errorf("cell %s: %w", ref, err)
			}
			if !ok {
				continue
			}
			c.Address = CellAddress{SheetName: sheet.Name, Address: ref, Row: row, Col: col}
			sheet.Put(c)
		}
	}
	slog.Debug("loaded sheet", "sheet", sheet.Name, "cells", sheet.Len(), "range", used.String())
	return nil
}

func (l *loader) readCell(sheet, ref string) (Cell, bool, error) {
	formula, err := l.f.GetCellFormula(sheet, ref)
	if err != nil {
		return Cell{}, false, err
	}
	raw, err := l.f.GetCellValue(sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return Cell{}, false, err
	}
	if formula == "" && raw == "" {
		return Cell{}, false, nil
	}
	typ, err := l.f.GetCellType(sheet, ref)
	if err != nil {
		return Cell{}, false, err
	}

	c := Cell{Formula: trimFormula(formula)}
	if c.Formula != "" {
		if raw != "" {
			c.Cached = true
			l.classify(&c, sheet, ref, typ, raw)
		}
		return c, true, nil
	}

	l.classify(&c, sheet, ref, typ, raw)
	if c.Kind == KindString {
		if runs, err := l.f.GetCellRichText(sheet, ref); err == nil && len(runs) > 1 {
			var sb strings.Builder
			for _, run := range runs {
				sb.WriteString(run.Text)
			}
			c.Kind, c.Text = KindRichText, sb.String()
		}
		if link, _, err := l.f.GetCellHyperLink(sheet, ref); err == nil && link {
			c.Kind = KindHyperlink
		}
	}
	return c, true, nil
}

func (l *loader) classify(c *Cell, sheet, ref string, typ excelize.CellType, raw string) {
	switch typ {
	case excelize.CellTypeBool:
		c.Kind = KindBool
		c.Bool = raw == "1" || strings.EqualFold(raw, "true")
		return
	case excelize.CellTypeError:
		c.Kind, c.Text = KindError, raw
		return
	case excelize.CellTypeDate:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			c.Kind, c.Time = KindDate, t
			return
		}
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		c.Kind, c.Text = KindString, raw
		return
	}

	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.Kind, c.Text = KindString, raw
		return
	}
	if l.isDateStyled(sheet, ref) {
		if t, ok := excelSerialToTime(v, l.date1904); ok {
			c.Kind, c.Time = KindDate, t
			return
		}
	}
	c.Kind, c.Number = KindNumber, v
}

// Built-in number formats that render dates or times.
var builtinDateFormats = map[int]bool{
	14: true, 15: true, 16: true, 17: true, 18: true, 19: true, 20: true,
	21: true, 22: true, 45: true, 46: true, 47: true,
}

func (l *loader) isDateStyled(sheet, ref string) bool {
	id, err := l.f.GetCellStyle(sheet, ref)
	if err != nil || id == 0 {
		return false
	}
	if v, ok := l.dateStyles[id]; ok {
		return v
	}
	isDate := false
	if style, err := l.f.GetStyle(id); err == nil && style != nil {
		isDate = builtinDateFormats[style.NumFmt]
		if style.CustomNumFmt != nil {
			isDate = isDateFormatCode(*style.CustomNumFmt)
		}
	}
	l.dateStyles[id] = isDate
	return isDate
}

// isDateFormatCode reports whether a custom number format renders a date or
// time. Quoted text and bracketed sections (colors, locales) are ignored.
func isDateFormatCode(code string) bool {
	var sb strings.Builder
	inQuote, inBracket := false, false
	for _, r := range code {
		switch {
		case r == '"':
			inQuote = !inQuote
		case inQuote:
		case r == '[':
			inBracket = true
		case r == ']':
			inBracket = false
		case inBracket:
		default:
			sb.WriteRune(r)
		}
	}
	return strings.ContainsAny(strings.ToLower(sb.String()), "ydhs")
}
