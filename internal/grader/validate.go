package grader

import (
	"context"
	"fmt"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/model"
)

// Validate lists every facet of the assignment with its validity and its
// display lines in the language carried by ctx.
func Validate(ctx context.Context, a *model.Assignment) ([]model.FacetIssue, error) {
	rubric, err := a.Rubric()
	if err != nil {
		return nil, fmt.Errorf("build rubric: %w", err)
	}
	issues := []model.FacetIssue{}
	for qi, q := range rubric {
		for fi, f := range q.Facets {
			issue := model.FacetIssue{
				Question: qi,
				Facet:    fi,
				Name:     facet.Name(f),
				Type:     string(f.Type()),
				Valid:    true,
				Info:     facet.Info(ctx, f),
			}
			if err := facet.Validate(f); err != nil {
				issue.Valid = false
				issue.Error = err.Error()
			}
			issues = append(issues, issue)
		}
	}
	return issues, nil
}
