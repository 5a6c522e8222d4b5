package facet

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dlclark/regexp2"
	"github.com/spf13/cast"

	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Evaluate scores f against wb: the facet points when its predicate holds,
// zero otherwise. Authoring errors (unset target cell or required fields,
// bad expressions or bounds) are returned as *Error rather than scored.
// A missing cell or formula is not an error and scores zero.
func Evaluate(f Facet, wb workbook.Workbook, opts Options) (float64, error) {
	c := f.Base()
	if c.TargetCell == nil {
		return 0, newError(f, "targetCell", ErrMissingTargetCell)
	}
	if c.Points == nil {
		return 0, newError(f, "points", ErrMissingRequiredField)
	}
	opts = opts.withDefaults()

	var (
		ok  bool
		err error
	)
	switch v := f.(type) {
	case *ValueFacet:
		ok, err = v.match(wb)
	case *ValueRangeFacet:
		ok, err = v.match(wb)
	case *ValueLengthFacet:
		ok, err = v.match(wb)
	case *FormulaContainsFacet:
		ok, err = v.match(wb)
	case *FormulaRegexFacet:
		ok, err = v.match(wb, opts)
	case *FormulaListFacet:
		ok, err = v.match(wb, opts)
	default:
		return 0, fmt.Errorf("%w: %T", ErrUnknownFacetType, f)
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return *c.Points, nil
}

// Provided returns the classified value currently in the target cell of f.
func Provided(f Facet, wb workbook.Workbook) workbook.SafeValue {
	c := f.Base()
	if c.TargetCell == nil || wb == nil {
		return workbook.SafeValue{Type: workbook.TypeNull}
	}
	cell, _ := wb.Cell(*c.TargetCell)
	return cell.SafeValue()
}

func (f *ValueFacet) match(wb workbook.Workbook) (bool, error) {
	if f.Value == nil {
		return false, newError(f, "value", ErrMissingRequiredField)
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok {
		return false, nil
	}
	return cell.SafeValue().Value == *f.Value, nil
}

func (f *ValueRangeFacet) match(wb workbook.Workbook) (bool, error) {
	if f.LowerBounds == nil {
		return false, newError(f, "lowerBounds", ErrMissingRequiredField)
	}
	if f.UpperBounds == nil {
		return false, newError(f, "upperBounds", ErrMissingRequiredField)
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok {
		return false, nil
	}
	v, ok := numericValue(cell.SafeValue())
	if !ok {
		return false, nil
	}
	return *f.LowerBounds <= v && v <= *f.UpperBounds, nil
}

// numericValue coerces a classified value to a number. Blank, boolean, date
// and text values are not numeric.
func numericValue(sv workbook.SafeValue) (float64, bool) {
	switch sv.Type {
	case workbook.TypeNumber, workbook.TypeFormula, workbook.TypeString, workbook.TypeRichText:
	default:
		return 0, false
	}
	s := strings.TrimSpace(sv.Value)
	if s == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (f *ValueLengthFacet) match(wb workbook.Workbook) (bool, error) {
	if f.MinLength == nil && f.MaxLength == nil {
		return false, newError(f, "minLength", ErrMissingRequiredField)
	}
	if f.MinLength != nil && f.MaxLength != nil && *f.MaxLength < *f.MinLength {
		return false, newError(f, "maxLength", ErrInvalidLengthBounds)
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok {
		return false, nil
	}
	n := utf8.RuneCountInString(cell.SafeValue().Value)
	if f.MinLength != nil && n < *f.MinLength {
		return false, nil
	}
	if f.MaxLength != nil && n > *f.MaxLength {
		return false, nil
	}
	return true, nil
}

func (f *FormulaContainsFacet) match(wb workbook.Workbook) (bool, error) {
	if f.Formula == nil {
		return false, newError(f, "formula", ErrMissingRequiredField)
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok || !cell.HasFormula() {
		return false, nil
	}
	needle := workbook.StripStringLiterals(workbook.NormalizeFormula(*f.Formula))
	return strings.Contains(workbook.NormalizeFormula(cell.Formula), needle), nil
}

func (f *FormulaRegexFacet) compile(timeout time.Duration) (*regexp2.Regexp, error) {
	if f.Expression == nil {
		return nil, newError(f, "expression", ErrMissingRequiredField)
	}
	re, err := regexp2.Compile(*f.Expression, regexp2.ECMAScript)
	if err != nil {
		return nil, newError(f, "expression", fmt.Errorf("%w: %v", ErrInvalidExpression, err))
	}
	re.MatchTimeout = timeout
	return re, nil
}

func (f *FormulaRegexFacet) match(wb workbook.Workbook, opts Options) (bool, error) {
	re, err := f.compile(opts.RegexTimeout)
	if err != nil {
		return false, err
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok || !cell.HasFormula() {
		return false, nil
	}
	matched, err := re.MatchString(workbook.NormalizeFormula(cell.Formula))
	if err != nil {
		return false, newError(f, "expression", fmt.Errorf("%w: %v", ErrInvalidExpression, err))
	}
	return matched, nil
}

func (f *FormulaListFacet) match(wb workbook.Workbook, opts Options) (bool, error) {
	if len(f.Formulas) == 0 {
		return false, newError(f, "formulas", ErrMissingRequiredField)
	}
	cell, ok := wb.Cell(*f.TargetCell)
	if !ok || !cell.HasFormula() || cell.IsError() {
		return false, nil
	}
	r := newResolver(wb, opts, f.Formulas)
	if err := r.visit(cell, 0); err != nil {
		return false, newError(f, "formulas", err)
	}
	return len(r.remaining) == 0, nil
}
