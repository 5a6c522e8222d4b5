// Package workbook provides the cell-addressing and dependency model the
// grading engine evaluates against. A loaded spreadsheet is exposed through the
// Workbook interface; Book is the in-memory implementation produced by Open.
package workbook

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidRange indicates range text that does not follow A1 notation.
var ErrInvalidRange = errors.New("invalid range")

// CellAddress identifies a single cell in a workbook.
type CellAddress struct {
	// SheetName is the owning worksheet name.
	SheetName string `json:"sheetName"`
	// Address is the A1-style reference within the sheet (e.g. "B7").
	Address string `json:"address"`
	// Row is the 1-based row index.
	Row int `json:"row"`
	// Col is the 1-based column index.
	Col int `json:"col"`
}

// NewCellAddress builds a fully populated address from an A1 reference.
func NewCellAddress(sheetName, ref string) (CellAddress, error) {
	ref = strings.ReplaceAll(ref, "$", "")
	col, row, err := excelize.CellNameToCoordinates(ref)
	if err != nil {
		return CellAddress{}, fmt.Errorf("%w: %q: %v", ErrInvalidRange, ref, err)
	}
	name, _ := excelize.CoordinatesToCellName(col, row)
	return CellAddress{SheetName: sheetName, Address: name, Row: row, Col: col}, nil
}

// MustCellAddress is like NewCellAddress but panics on malformed input.
// Intended for literals in tests and fixtures.
func MustCellAddress(sheetName, ref string) CellAddress {
	a, err := NewCellAddress(sheetName, ref)
	if err != nil {
		panic(err)
	}
	return a
}

// coordinates returns the row/col pair, falling back to the A1 text when the
// numeric fields were not persisted.
func (a CellAddress) coordinates() (row, col int, ok bool) {
	if a.Row >= 1 && a.Col >= 1 {
		return a.Row, a.Col, true
	}
	if a.Address == "" {
		return 0, 0, false
	}
	c, r, err := excelize.CellNameToCoordinates(strings.ReplaceAll(a.Address, "$", ""))
	if err != nil {
		return 0, 0, false
	}
	return r, c, true
}

func (a CellAddress) String() string {
	if a.SheetName == "" {
		return a.Address
	}
	return QuoteSheetName(a.SheetName) + "!" + a.Address
}

// Range is a closed, 1-based rectangle of cells.
type Range struct {
	Top    int `json:"top"`
	Left   int `json:"left"`
	Bottom int `json:"bottom"`
	Right  int `json:"right"`
}

// Empty reports whether the range covers no cells.
func (r Range) Empty() bool {
	return r.Top < 1 || r.Left < 1 || r.Bottom < r.Top || r.Right < r.Left
}

// Contains reports whether (row, col) lies inside r.
func (r Range) Contains(row, col int) bool {
	return row >= r.Top && row <= r.Bottom && col >= r.Left && col <= r.Right
}

// Intersect returns the overlap of r and o. The result may be Empty.
func (r Range) Intersect(o Range) Range {
	return Range{
		Top:    max(r.Top, o.Top),
		Left:   max(r.Left, o.Left),
		Bottom: min(r.Bottom, o.Bottom),
		Right:  min(r.Right, o.Right),
	}
}

// Size returns the number of cells in r.
func (r Range) Size() int {
	if r.Empty() {
		return 0
	}
	return (r.Bottom - r.Top + 1) * (r.Right - r.Left + 1)
}

func (r Range) String() string {
	if r.Empty() {
		return ""
	}
	tl, _ := excelize.CoordinatesToCellName(r.Left, r.Top)
	br, _ := excelize.CoordinatesToCellName(r.Right, r.Bottom)
	if tl == br {
		return tl
	}
	return tl + ":" + br
}

// DecodeRange decodes sheet-relative range text into a Range. Accepted forms
// are a single cell ("A1"), a bounded range ("A1:B2"), full columns ("A:B")
// and full rows ("1:3"). Absolute markers ("$") are ignored and corners may
// be given in any order.
func DecodeRange(text string) (Range, error) {
	text = strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(text), "$", ""))
	if text == "" {
		return Range{}, fmt.Errorf("%w: empty", ErrInvalidRange)
	}
	first, second, isPair := strings.Cut(text, ":")
	if !isPair {
		col, row, err := excelize.CellNameToCoordinates(first)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
		}
		return Range{Top: row, Left: col, Bottom: row, Right: col}, nil
	}

	switch {
	case isDigits(first) && isDigits(second):
		top, err1 := strconv.Atoi(first)
		bottom, err2 := strconv.Atoi(second)
		if err1 != nil || err2 != nil || top < 1 || bottom < 1 || top > excelize.TotalRows || bottom > excelize.TotalRows {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
		}
		top, bottom = min(top, bottom), max(top, bottom)
		return Range{Top: top, Left: 1, Bottom: bottom, Right: excelize.MaxColumns}, nil
	case isLetters(first) && isLetters(second):
		left, err1 := excelize.ColumnNameToNumber(first)
		right, err2 := excelize.ColumnNameToNumber(second)
		if err1 != nil || err2 != nil {
			return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
		}
		left, right = min(left, right), max(left, right)
		return Range{Top: 1, Left: left, Bottom: excelize.TotalRows, Right: right}, nil
	}

	c1, r1, err := excelize.CellNameToCoordinates(first)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
	}
	c2, r2, err := excelize.CellNameToCoordinates(second)
	if err != nil {
		return Range{}, fmt.Errorf("%w: %q", ErrInvalidRange, text)
	}
	return Range{
		Top:    min(r1, r2),
		Left:   min(c1, c2),
		Bottom: max(r1, r2),
		Right:  max(c1, c2),
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}
