package facet

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/kaminskia1/excel-autograder/internal/i18n"
	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Info returns the display lines describing f in the language carried by ctx.
func Info(ctx context.Context, f Facet) []string {
	notSet := i18n.T(ctx, "NotSet")
	line := func(label, value string) string {
		if value == "" {
			value = notSet
		}
		return fmt.Sprintf("%s: %s", i18n.T(ctx, label), value)
	}

	var target string
	if c := f.Base().TargetCell; c != nil {
		target = c.String()
	}
	lines := []string{line("FacetTargetCell", target)}

	switch v := f.(type) {
	case *ValueFacet:
		lines = append(lines, line("FacetValue", quoted(v.Value)))
	case *ValueRangeFacet:
		lines = append(lines,
			line("FacetLowerBounds", float(v.LowerBounds)),
			line("FacetUpperBounds", float(v.UpperBounds)))
	case *ValueLengthFacet:
		lines = append(lines,
			line("FacetMinLength", integer(v.MinLength)),
			line("FacetMaxLength", integer(v.MaxLength)))
	case *FormulaContainsFacet:
		lines = append(lines, line("FacetFormula", quoted(v.Formula)))
	case *FormulaRegexFacet:
		lines = append(lines, line("FacetExpression", quoted(v.Expression)))
	case *FormulaListFacet:
		lines = append(lines, line("FacetFormulas", strings.Join(v.Formulas, ", ")))
	}
	return lines
}

func quoted(s *string) string {
	if s == nil {
		return ""
	}
	return strconv.Quote(*s)
}

func float(f *float64) string {
	if f == nil {
		return ""
	}
	return workbook.FormatNumber(*f)
}

func integer(n *int) string {
	if n == nil {
		return ""
	}
	return strconv.Itoa(*n)
}
