package workbook

import (
	"math"
	"strconv"
	"time"
)

// Kind classifies the raw content of a cell (or the cached result of a formula).
type Kind int

const (
	KindEmpty Kind = iota
	KindNumber
	KindString
	KindBool
	KindDate
	KindError
	KindRichText
	KindHyperlink
)

// Cell is a single loaded cell. For formula cells the Kind and value fields
// hold the cached result, if the file carried one.
type Cell struct {
	Address CellAddress
	Kind    Kind
	Number  float64
	// Text holds string content, error codes ("#DIV/0!"), joined rich-text
	// runs or hyperlink display text depending on Kind.
	Text string
	Bool bool
	Time time.Time
	// Formula is the formula text without the leading "=". Empty when the
	// cell holds a literal.
	Formula string
	// Cached reports whether a formula cell carries a computed result.
	Cached bool
}

// HasFormula reports whether the cell holds a formula.
func (c *Cell) HasFormula() bool {
	return c != nil && c.Formula != ""
}

// IsError reports whether the cell, or its cached formula result, is an
// error value.
func (c *Cell) IsError() bool {
	return c != nil && c.Kind == KindError && (c.Formula == "" || c.Cached)
}

// ValueType is the classification reported by SafeValue.
type ValueType string

const (
	TypeNull      ValueType = "null"
	TypeNumber    ValueType = "number"
	TypeString    ValueType = "string"
	TypeBoolean   ValueType = "boolean"
	TypeDate      ValueType = "date"
	TypeError     ValueType = "error"
	TypeRichText  ValueType = "richText"
	TypeHyperlink ValueType = "text"
	TypeFormula   ValueType = "formula"
	TypeUnknown   ValueType = "unknown"
)

// FormulaMarker prefixes the display text of formula results.
const FormulaMarker = "ƒ "

// NoResultText is shown for formulas without a cached result.
const NoResultText = "#N/A"

// SafeValue is the normalized form of whatever a cell currently holds.
type SafeValue struct {
	Type ValueType `json:"type"`
	// Text is a human readable rendering.
	Text string `json:"text"`
	// Value is the canonical string form used for comparisons.
	Value string `json:"value"`
}

// SafeValue classifies the cell content. Every facet compares against Value,
// so a numeric literal and a numeric formula result render identically.
// A nil cell classifies as null.
func (c *Cell) SafeValue() SafeValue {
	if c == nil {
		return SafeValue{Type: TypeNull}
	}
	if c.Formula != "" {
		if !c.Cached {
			return SafeValue{Type: TypeFormula, Text: NoResultText, Value: c.Formula}
		}
		res := c.literal()
		switch res.Type {
		case TypeError:
			return res
		case TypeNull:
			return SafeValue{Type: TypeFormula, Text: FormulaMarker, Value: ""}
		}
		return SafeValue{Type: TypeFormula, Text: FormulaMarker + res.Text, Value: res.Value}
	}
	return c.literal()
}

func (c *Cell) literal() SafeValue {
	switch c.Kind {
	case KindEmpty:
		return SafeValue{Type: TypeNull}
	case KindNumber:
		s := FormatNumber(c.Number)
		return SafeValue{Type: TypeNumber, Text: s, Value: s}
	case KindString:
		return SafeValue{Type: TypeString, Text: c.Text, Value: c.Text}
	case KindBool:
		s := strconv.FormatBool(c.Bool)
		return SafeValue{Type: TypeBoolean, Text: s, Value: s}
	case KindDate:
		return SafeValue{
			Type:  TypeDate,
			Text:  c.Time.UTC().Format(time.RFC1123),
			Value: c.Time.UTC().Format("2006-01-02T15:04:05.000Z"),
		}
	case KindError:
		return SafeValue{Type: TypeError, Text: c.Text, Value: c.Text}
	case KindRichText:
		return SafeValue{Type: TypeRichText, Text: c.Text, Value: c.Text}
	case KindHyperlink:
		return SafeValue{Type: TypeHyperlink, Text: c.Text, Value: c.Text}
	}
	return SafeValue{Type: TypeUnknown, Text: "ERROR", Value: "ERROR"}
}

// FormatNumber renders a float the way spreadsheet users expect to read it:
// integers without a fractional part, shortest round-trip digits otherwise,
// exponent form only for very large or very small magnitudes.
func FormatNumber(f float64) string {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs >= 1e21 || abs < 1e-6) {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
