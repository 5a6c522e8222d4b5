package workbook

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Namespace markers Excel writes in front of functions newer than the
// original file format. They are not part of the function name.
var functionPrefixes = strings.NewReplacer("_xlfn.", "", "_xlws.", "")

var (
	stringLiteralRe = regexp.MustCompile(`"(?:[^"]|"")*"`)
	functionNameRe  = regexp.MustCompile(`[A-Z][A-Z0-9.]*\(`)
	// Optional sheet prefix (single-quoted with '' escapes, or a bare
	// identifier in any script) terminated by "!", followed by a single cell, a bounded
	// range, a column range or a row range.
	referenceRe = regexp.MustCompile(
		`(?:(?:'((?:[^']|'')+)'|([\p{L}\p{N}_.]+))!)?` +
			`([A-Z]+[0-9]+(?::[A-Z]+[0-9]+)?|[A-Z]+:[A-Z]+|[0-9]+:[0-9]+)`)
)

// NormalizeFormula removes the leading "=" and Excel's internal function
// namespace prefixes.
func NormalizeFormula(formula string) string {
	return functionPrefixes.Replace(trimFormula(formula))
}

// StripStringLiterals removes every double-quoted literal, quotes included.
func StripStringLiterals(s string) string {
	return stringLiteralRe.ReplaceAllString(s, "")
}

// FunctionNames returns the function names called in formula, in order of
// appearance. Duplicates are kept.
func FunctionNames(formula string) []string {
	formula = StripStringLiterals(NormalizeFormula(formula))
	matches := functionNameRe.FindAllString(formula, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(m, "("))
	}
	return names
}

// Reference is a cell or range reference found in a formula.
type Reference struct {
	// Sheet is the unquoted sheet name, empty for sheet-relative references.
	Sheet string
	// Target is the sheet-relative part: "A1", "A1:B2", "A:B" or "1:3".
	Target string
}

// Range decodes the reference target.
func (r Reference) Range() (Range, error) {
	return DecodeRange(r.Target)
}

// SheetOr returns the reference sheet, or fallback for sheet-relative
// references.
func (r Reference) SheetOr(fallback string) string {
	if r.Sheet == "" {
		return fallback
	}
	return r.Sheet
}

func (r Reference) String() string {
	if r.Sheet == "" {
		return r.Target
	}
	return QuoteSheetName(r.Sheet) + "!" + r.Target
}

// References extracts the cell and range references of formula. Absolute
// markers are ignored, string literals are skipped, and tokens that are
// really function names (LOG10, ATAN2) are not reported.
func References(formula string) []Reference {
	formula = StripStringLiterals(NormalizeFormula(formula))
	formula = strings.ReplaceAll(formula, "$", "")

	var refs []Reference
	for _, m := range referenceRe.FindAllStringSubmatchIndex(formula, -1) {
		start, end := m[0], m[1]
		if prev, _ := utf8.DecodeLastRuneInString(formula[:start]); start > 0 && isNameRune(prev) {
			continue
		}
		if next, _ := utf8.DecodeRuneInString(formula[end:]); end < len(formula) && (next == '(' || isNameRune(next)) {
			continue
		}
		ref := Reference{Target: formula[m[6]:m[7]]}
		switch {
		case m[2] >= 0:
			ref.Sheet = strings.ReplaceAll(formula[m[2]:m[3]], "''", "'")
		case m[4] >= 0:
			ref.Sheet = formula[m[4]:m[5]]
		}
		refs = append(refs, ref)
	}
	return refs
}

func isNameRune(r rune) bool {
	return r == '_' || r == '.' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// QuoteSheetName renders a sheet name the way it must appear in a formula.
func QuoteSheetName(name string) string {
	first, _ := utf8.DecodeRuneInString(name)
	bare := name != "" && (first == '_' || unicode.IsLetter(first))
	for _, r := range name {
		if !isNameRune(r) {
			bare = false
			break
		}
	}
	if bare {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}
