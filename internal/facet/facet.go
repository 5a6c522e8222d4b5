// Package facet implements the atomic rubric checks a question is graded
// with. Facet is a closed set of variants; evaluation, validation and
// serialization dispatch on the concrete type.
package facet

import (
	"time"

	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Type discriminates facet variants in persisted records.
type Type string

const (
	TypeValue           Type = "ValueFacet"
	TypeValueRange      Type = "ValueRangeFacet"
	TypeValueLength     Type = "ValueLengthFacet"
	TypeFormulaContains Type = "FormulaContainsFacet"
	TypeFormulaRegex    Type = "FormulaRegexFacet"
	TypeFormulaList     Type = "FormulaListFacet"
)

// Types lists every facet type in display order.
var Types = []Type{
	TypeValue, TypeValueRange, TypeValueLength,
	TypeFormulaContains, TypeFormulaRegex, TypeFormulaList,
}

// ReviewFlag is the instructor triage state of a facet. The engine never
// interprets it.
type ReviewFlag string

const (
	ReviewNone      ReviewFlag = "none"
	ReviewAlways    ReviewFlag = "always"
	ReviewCorrect   ReviewFlag = "correct"
	ReviewIncorrect ReviewFlag = "incorrect"
)

// Facet is one of ValueFacet, ValueRangeFacet, ValueLengthFacet,
// FormulaContainsFacet, FormulaRegexFacet or FormulaListFacet.
type Facet interface {
	Type() Type
	// Base returns the fields shared by every variant.
	Base() *Common
	facet()
}

// Common holds the fields every facet carries. Pointers distinguish unset
// values from legitimate zeros.
type Common struct {
	Name       string
	Points     *float64
	TargetCell *workbook.CellAddress
	Review     ReviewFlag
}

func (c *Common) Base() *Common { return c }
func (*Common) facet()          {}

// ValueFacet checks that the cell value equals Value.
type ValueFacet struct {
	Common
	Value *string
}

// ValueRangeFacet checks that the numeric cell value lies in
// [LowerBounds, UpperBounds].
type ValueRangeFacet struct {
	Common
	LowerBounds *float64
	UpperBounds *float64
}

// ValueLengthFacet checks the length of the cell value against whichever
// bounds are set.
type ValueLengthFacet struct {
	Common
	MinLength *int
	MaxLength *int
}

// FormulaContainsFacet checks that the cell formula contains Formula.
type FormulaContainsFacet struct {
	Common
	Formula *string
}

// FormulaRegexFacet checks that Expression matches somewhere in the cell
// formula.
type FormulaRegexFacet struct {
	Common
	Expression *string
}

// FormulaListFacet checks that every function in Formulas is called
// somewhere in the formula closure of the target cell.
type FormulaListFacet struct {
	Common
	Formulas []string
}

func (*ValueFacet) Type() Type           { return TypeValue }
func (*ValueRangeFacet) Type() Type      { return TypeValueRange }
func (*ValueLengthFacet) Type() Type     { return TypeValueLength }
func (*FormulaContainsFacet) Type() Type { return TypeFormulaContains }
func (*FormulaRegexFacet) Type() Type    { return TypeFormulaRegex }
func (*FormulaListFacet) Type() Type     { return TypeFormulaList }

// Options bounds the work a single evaluation may do.
type Options struct {
	// MaxDepth limits the reference chain length followed by FormulaListFacet.
	MaxDepth int `mapstructure:"max-depth" json:"maxDepth"`
	// MaxCells limits the distinct formula cells visited by FormulaListFacet.
	MaxCells int `mapstructure:"max-cells" json:"maxCells"`
	// RegexTimeout limits a single FormulaRegexFacet match.
	RegexTimeout time.Duration `mapstructure:"regex-timeout" json:"regexTimeout"`
}

// DefaultOptions returns the limits used when none are configured.
func DefaultOptions() Options {
	return Options{MaxDepth: 512, MaxCells: 100_000, RegexTimeout: 250 * time.Millisecond}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxDepth <= 0 {
		o.MaxDepth = d.MaxDepth
	}
	if o.MaxCells <= 0 {
		o.MaxCells = d.MaxCells
	}
	if o.RegexTimeout <= 0 {
		o.RegexTimeout = d.RegexTimeout
	}
	return o
}

// MaxScore returns the points a facet awards, zero when unset.
func MaxScore(f Facet) float64 {
	if p := f.Base().Points; p != nil {
		return *p
	}
	return 0
}

// DefaultName is the display name used when a facet has none.
func DefaultName(t Type) string {
	switch t {
	case TypeValue:
		return "Value Equals"
	case TypeValueRange:
		return "Value Range"
	case TypeValueLength:
		return "Value Length"
	case TypeFormulaContains:
		return "Formula Contains"
	case TypeFormulaRegex:
		return "Formula Regex"
	case TypeFormulaList:
		return "Formula List"
	}
	return string(t)
}

// Name returns the facet name or its default.
func Name(f Facet) string {
	if n := f.Base().Name; n != "" {
		return n
	}
	return DefaultName(f.Type())
}

// Ptr returns a pointer to v. It keeps literal facet construction short.
func Ptr[T any](v T) *T {
	return &v
}
