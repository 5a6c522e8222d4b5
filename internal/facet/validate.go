package facet

import "fmt"

// Validate reports the first authoring problem of f, or nil when f is
// complete enough to be evaluated. A zero points value or an empty expected
// string is valid.
func Validate(f Facet) error {
	c := f.Base()
	if c.TargetCell == nil {
		return newError(f, "targetCell", ErrMissingTargetCell)
	}
	if c.Points == nil {
		return newError(f, "points", ErrMissingRequiredField)
	}
	switch v := f.(type) {
	case *ValueFacet:
		if v.Value == nil {
			return newError(f, "value", ErrMissingRequiredField)
		}
	case *ValueRangeFacet:
		if v.LowerBounds == nil {
			return newError(f, "lowerBounds", ErrMissingRequiredField)
		}
		if v.UpperBounds == nil {
			return newError(f, "upperBounds", ErrMissingRequiredField)
		}
	case *ValueLengthFacet:
		if v.MinLength == nil && v.MaxLength == nil {
			return newError(f, "minLength", ErrMissingRequiredField)
		}
		if v.MinLength != nil && v.MaxLength != nil && *v.MaxLength < *v.MinLength {
			return newError(f, "maxLength", ErrInvalidLengthBounds)
		}
	case *FormulaContainsFacet:
		if v.Formula == nil {
			return newError(f, "formula", ErrMissingRequiredField)
		}
	case *FormulaRegexFacet:
		if _, err := v.compile(DefaultOptions().RegexTimeout); err != nil {
			return err
		}
	case *FormulaListFacet:
		if len(v.Formulas) == 0 {
			return newError(f, "formulas", ErrMissingRequiredField)
		}
	default:
		return fmt.Errorf("%w: %T", ErrUnknownFacetType, f)
	}
	return nil
}

// IsValid reports whether f can be evaluated. It never panics; compile
// errors of a regular expression simply make the facet invalid.
func IsValid(f Facet) bool {
	return f != nil && Validate(f) == nil
}
