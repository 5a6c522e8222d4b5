package workbook

import (
	"fmt"
	"math"
	"time"

	"github.com/xuri/excelize/v2"
)

// Workbook is the read-only view of a loaded spreadsheet the engine consumes.
// Lookups never fail loudly: a missing sheet or coordinate reports ok=false.
type Workbook interface {
	// Cell returns the cell at addr.
	Cell(addr CellAddress) (*Cell, bool)
	// CellAt returns the cell at the given 1-based coordinates of sheet.
	CellAt(sheet string, row, col int) (*Cell, bool)
	// Sheet returns the named sheet.
	Sheet(name string) (*Sheet, bool)
}

// Properties holds the document metadata of a workbook.
type Properties struct {
	Creator        string `json:"creator,omitempty"`
	Company        string `json:"company,omitempty"`
	LastModifiedBy string `json:"lastModifiedBy,omitempty"`
	Modified       string `json:"modified,omitempty"`
	Created        string `json:"created,omitempty"`
	Title          string `json:"title,omitempty"`
	Subject        string `json:"subject,omitempty"`
	Description    string `json:"description,omitempty"`
	Keywords       string `json:"keywords,omitempty"`
	Category       string `json:"category,omitempty"`
}

// Sheet is one worksheet of a Book. Only non-empty cells are stored.
type Sheet struct {
	Name  string
	cells map[[2]int]*Cell
	dim   Range
}

// Dimension returns the bounding box of the stored cells.
func (s *Sheet) Dimension() Range {
	return s.dim
}

// At returns the cell at (row, col).
func (s *Sheet) At(row, col int) (*Cell, bool) {
	c, ok := s.cells[[2]int{row, col}]
	return c, ok
}

// Len returns the number of stored cells.
func (s *Sheet) Len() int {
	return len(s.cells)
}

// Put stores c at its address, overwriting any previous cell.
func (s *Sheet) Put(c Cell) {
	row, col := c.Address.Row, c.Address.Col
	c.Address.SheetName = s.Name
	if len(s.cells) == 0 {
		s.dim = Range{Top: row, Left: col, Bottom: row, Right: col}
	} else {
		s.dim = Range{
			Top:    min(s.dim.Top, row),
			Left:   min(s.dim.Left, col),
			Bottom: max(s.dim.Bottom, row),
			Right:  max(s.dim.Right, col),
		}
	}
	s.cells[[2]int{row, col}] = &c
}

// Set stores a literal value at the A1 reference. Supported values are nil,
// numbers, strings, bools and time.Time.
func (s *Sheet) Set(ref string, v any) *Cell {
	addr := MustCellAddress(s.Name, ref)
	c := Cell{Address: addr}
	setLiteral(&c, v)
	s.Put(c)
	got, _ := s.At(addr.Row, addr.Col)
	return got
}

// SetFormula stores a formula at the A1 reference. A nil result marks the
// formula as having no cached value.
func (s *Sheet) SetFormula(ref, formula string, result any) *Cell {
	addr := MustCellAddress(s.Name, ref)
	c := Cell{Address: addr, Formula: trimFormula(formula)}
	if result != nil {
		setLiteral(&c, result)
		c.Cached = true
	}
	s.Put(c)
	got, _ := s.At(addr.Row, addr.Col)
	return got
}

// SetError stores an error literal such as "#DIV/0!".
func (s *Sheet) SetError(ref, code string) *Cell {
	addr := MustCellAddress(s.Name, ref)
	s.Put(Cell{Address: addr, Kind: KindError, Text: code})
	got, _ := s.At(addr.Row, addr.Col)
	return got
}

func setLiteral(c *Cell, v any) {
	switch x := v.(type) {
	case nil:
		c.Kind = KindEmpty
	case string:
		c.Kind, c.Text = KindString, x
	case bool:
		c.Kind, c.Bool = KindBool, x
	case time.Time:
		c.Kind, c.Time = KindDate, x
	case int:
		c.Kind, c.Number = KindNumber, float64(x)
	case int64:
		c.Kind, c.Number = KindNumber, float64(x)
	case float32:
		c.Kind, c.Number = KindNumber, float64(x)
	case float64:
		c.Kind, c.Number = KindNumber, x
	default:
		c.Kind, c.Text = KindString, fmt.Sprint(x)
	}
}

func trimFormula(f string) string {
	if len(f) > 0 && f[0] == '=' {
		return f[1:]
	}
	return f
}

// Book is an in-memory Workbook.
type Book struct {
	Name       string
	Properties Properties
	sheets     []*Sheet
	byName     map[string]*Sheet
}

var _ Workbook = (*Book)(nil)

// NewBook returns an empty book.
func NewBook(name string) *Book {
	return &Book{Name: name, byName: make(map[string]*Sheet)}
}

// AddSheet returns the named sheet, creating it if needed.
func (b *Book) AddSheet(name string) *Sheet {
	if s, ok := b.byName[name]; ok {
		return s
	}
	s := &Sheet{Name: name, cells: make(map[[2]int]*Cell)}
	b.sheets = append(b.sheets, s)
	b.byName[name] = s
	return s
}

// Sheets returns the sheets in workbook order.
func (b *Book) Sheets() []*Sheet {
	return b.sheets
}

func (b *Book) Sheet(name string) (*Sheet, bool) {
	s, ok := b.byName[name]
	return s, ok
}

func (b *Book) Cell(addr CellAddress) (*Cell, bool) {
	row, col, ok := addr.coordinates()
	if !ok {
		return nil, false
	}
	return b.CellAt(addr.SheetName, row, col)
}

func (b *Book) CellAt(sheet string, row, col int) (*Cell, bool) {
	s, ok := b.byName[sheet]
	if !ok || row < 1 || col < 1 || row > excelize.TotalRows || col > excelize.MaxColumns {
		return nil, false
	}
	return s.At(row, col)
}

// excelSerialToTime converts an Excel serial date, tolerating values excelize
// rejects.
func excelSerialToTime(v float64, date1904 bool) (time.Time, bool) {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return time.Time{}, false
	}
	t, err := excelize.ExcelDateToTime(v, date1904)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
