package facet

import (
	"fmt"
	"strings"

	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

type cellKey struct {
	sheet    string
	row, col int
}

// resolver walks the formula closure of a cell depth first, crossing off
// required function names as it finds them.
type resolver struct {
	wb        workbook.Workbook
	opts      Options
	remaining map[string]struct{}
	visited   map[cellKey]struct{}
	// path holds the cells of the current reference chain.
	path map[cellKey]struct{}
}

func newResolver(wb workbook.Workbook, opts Options, functions []string) *resolver {
	r := &resolver{
		wb:        wb,
		opts:      opts,
		remaining: make(map[string]struct{}, len(functions)),
		visited:   make(map[cellKey]struct{}),
		path:      make(map[cellKey]struct{}),
	}
	for _, fn := range functions {
		if name := NormalizeFunctionName(fn); name != "" {
			r.remaining[name] = struct{}{}
		}
	}
	return r
}

// NormalizeFunctionName upper-cases a required function name and drops the
// namespace prefixes and call parenthesis an author may have typed.
func NormalizeFunctionName(name string) string {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "=")
	for _, prefix := range []string{"_XLFN.", "_XLWS."} {
		name = strings.TrimPrefix(name, prefix)
	}
	name = strings.TrimSuffix(name, "()")
	return strings.TrimSuffix(name, "(")
}

func (r *resolver) visit(c *workbook.Cell, depth int) error {
	if len(r.remaining) == 0 {
		return nil
	}
	key := cellKey{c.Address.SheetName, c.Address.Row, c.Address.Col}
	if _, ok := r.path[key]; ok {
		return fmt.Errorf("%w: %s refers back to itself", ErrCyclicReference, c.Address)
	}
	if _, ok := r.visited[key]; ok {
		return nil
	}
	if depth > r.opts.MaxDepth {
		return fmt.Errorf("%w: reference chain deeper than %d", ErrCyclicReference, r.opts.MaxDepth)
	}
	if len(r.visited) >= r.opts.MaxCells {
		return fmt.Errorf("%w: more than %d formula cells", ErrCyclicReference, r.opts.MaxCells)
	}
	r.visited[key] = struct{}{}
	r.path[key] = struct{}{}
	defer delete(r.path, key)

	for _, name := range workbook.FunctionNames(c.Formula) {
		delete(r.remaining, name)
	}

	for _, ref := range workbook.References(c.Formula) {
		sheet, ok := r.wb.Sheet(ref.SheetOr(c.Address.SheetName))
		if !ok {
			continue
		}
		rng, err := ref.Range()
		if err != nil {
			continue
		}
		// Full column and row ranges only need the populated part.
		rng = rng.Intersect(sheet.Dimension())
		if rng.Empty() {
			continue
		}
		for row := rng.Top; row <= rng.Bottom; row++ {
			for col := rng.Left; col <= rng.Right; col++ {
				next, ok := sheet.At(row, col)
				if !ok || !next.HasFormula() {
					continue
				}
				if err := r.visit(next, depth+1); err != nil {
					return err
				}
				if len(r.remaining) == 0 {
					return nil
				}
			}
		}
	}
	return nil
}
