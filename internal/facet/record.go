package facet

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"

	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Record is the persisted form of a facet. Only the fields of the variant
// named by Type are populated; review and points are always written.
type Record struct {
	Type       Type                  `json:"type"`
	Name       string                `json:"name,omitempty"`
	Points     *float64              `json:"points"`
	Review     ReviewFlag            `json:"review"`
	TargetCell *workbook.CellAddress `json:"targetCell,omitempty"`

	Value       *string  `json:"value,omitempty"`
	LowerBounds *float64 `json:"lowerBounds,omitempty"`
	UpperBounds *float64 `json:"upperBounds,omitempty"`
	MinLength   *int     `json:"minLength,omitempty"`
	MaxLength   *int     `json:"maxLength,omitempty"`
	Formula     *string  `json:"formula,omitempty"`
	Expression  *string  `json:"expression,omitempty"`
	Formulas    []string `json:"formulas,omitempty"`
}

// rawRecord mirrors Record with loosely typed numeric fields. Authoring
// clients send numbers as JSON numbers or as form strings.
type rawRecord struct {
	Type        Type                  `json:"type"`
	Name        string                `json:"name"`
	Points      any                   `json:"points"`
	Review      ReviewFlag            `json:"review"`
	TargetCell  *workbook.CellAddress `json:"targetCell"`
	Value       any                   `json:"value"`
	LowerBounds any                   `json:"lowerBounds"`
	UpperBounds any                   `json:"upperBounds"`
	MinLength   any                   `json:"minLength"`
	MaxLength   any                   `json:"maxLength"`
	Formula     *string               `json:"formula"`
	Expression  *string               `json:"expression"`
	Formulas    []string              `json:"formulas"`
}

// UnmarshalJSON accepts numeric fields as numbers or numeric strings. An
// empty string or null leaves the field unset.
func (r *Record) UnmarshalJSON(data []byte) error {
	var raw rawRecord
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	rec := Record{
		Type:       raw.Type,
		Name:       raw.Name,
		Review:     raw.Review,
		TargetCell: raw.TargetCell,
		Formula:    raw.Formula,
		Expression: raw.Expression,
		Formulas:   raw.Formulas,
	}
	var err error
	if rec.Points, err = optFloat(raw.Points, "points"); err != nil {
		return err
	}
	if rec.LowerBounds, err = optFloat(raw.LowerBounds, "lowerBounds"); err != nil {
		return err
	}
	if rec.UpperBounds, err = optFloat(raw.UpperBounds, "upperBounds"); err != nil {
		return err
	}
	if rec.MinLength, err = optInt(raw.MinLength, "minLength"); err != nil {
		return err
	}
	if rec.MaxLength, err = optInt(raw.MaxLength, "maxLength"); err != nil {
		return err
	}
	if raw.Value != nil {
		// A numeric expectation is compared as its string form.
		s, err := cast.ToStringE(raw.Value)
		if err != nil {
			return fmt.Errorf("decode value: %w", err)
		}
		rec.Value = &s
	}
	*r = rec
	return nil
}

func isBlank(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && strings.TrimSpace(s) == ""
}

func optFloat(v any, field string) (*float64, error) {
	if isBlank(v) {
		return nil, nil
	}
	if s, ok := v.(string); ok {
		v = strings.TrimSpace(s)
	}
	f, err := cast.ToFloat64E(v)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", field, err)
	}
	return &f, nil
}

func optInt(v any, field string) (*int, error) {
	f, err := optFloat(v, field)
	if f == nil || err != nil {
		return nil, err
	}
	if *f != math.Trunc(*f) || math.IsInf(*f, 0) {
		return nil, fmt.Errorf("decode %s: %v is not a whole number", field, *f)
	}
	n := int(*f)
	return &n, nil
}

// ToRecord returns the persisted form of f.
func ToRecord(f Facet) Record {
	c := f.Base()
	rec := Record{
		Type:       f.Type(),
		Name:       c.Name,
		Points:     c.Points,
		Review:     c.Review,
		TargetCell: c.TargetCell,
	}
	if rec.Review == "" {
		rec.Review = ReviewNone
	}
	switch v := f.(type) {
	case *ValueFacet:
		rec.Value = v.Value
	case *ValueRangeFacet:
		rec.LowerBounds, rec.UpperBounds = v.LowerBounds, v.UpperBounds
	case *ValueLengthFacet:
		rec.MinLength, rec.MaxLength = v.MinLength, v.MaxLength
	case *FormulaContainsFacet:
		rec.Formula = v.Formula
	case *FormulaRegexFacet:
		rec.Expression = v.Expression
	case *FormulaListFacet:
		rec.Formulas = v.Formulas
	}
	return rec
}

// FromRecord builds the variant named by rec.Type.
func FromRecord(rec Record) (Facet, error) {
	review := rec.Review
	if review == "" {
		review = ReviewNone
	}
	common := Common{
		Name:       rec.Name,
		Points:     rec.Points,
		TargetCell: rec.TargetCell,
		Review:     review,
	}
	switch rec.Type {
	case TypeValue:
		return &ValueFacet{Common: common, Value: rec.Value}, nil
	case TypeValueRange:
		return &ValueRangeFacet{Common: common, LowerBounds: rec.LowerBounds, UpperBounds: rec.UpperBounds}, nil
	case TypeValueLength:
		return &ValueLengthFacet{Common: common, MinLength: rec.MinLength, MaxLength: rec.MaxLength}, nil
	case TypeFormulaContains:
		return &FormulaContainsFacet{Common: common, Formula: rec.Formula}, nil
	case TypeFormulaRegex:
		return &FormulaRegexFacet{Common: common, Expression: rec.Expression}, nil
	case TypeFormulaList:
		return &FormulaListFacet{Common: common, Formulas: rec.Formulas}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFacetType, rec.Type)
}

// New returns a facet for v. A live Facet is returned unchanged; a Record,
// raw JSON or decoded JSON object is built with FromRecord.
func New(v any) (Facet, error) {
	switch x := v.(type) {
	case Facet:
		return x, nil
	case Record:
		return FromRecord(x)
	case *Record:
		return FromRecord(*x)
	case json.RawMessage:
		return decode(x)
	case []byte:
		return decode(x)
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("encode facet record: %w", err)
		}
		return decode(data)
	}
	return nil, fmt.Errorf("%w: unsupported input %T", ErrUnknownFacetType, v)
}

func decode(data []byte) (Facet, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode facet record: %w", err)
	}
	return FromRecord(rec)
}
