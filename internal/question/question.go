// Package question aggregates facets into a gradable question.
package question

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// ErrFacetNotFound indicates a facet does not belong to the question.
var ErrFacetNotFound = errors.New("facet not found in question")

// Record is the persisted form of a question.
type Record struct {
	Name   string         `json:"name,omitempty"`
	Facets []facet.Record `json:"facets"`
}

// Question owns an ordered list of facets.
type Question struct {
	Name   string
	Facets []facet.Facet
}

// FromRecord builds a question and all of its facets.
func FromRecord(rec Record) (*Question, error) {
	q := &Question{Name: rec.Name, Facets: make([]facet.Facet, 0, len(rec.Facets))}
	for i, fr := range rec.Facets {
		f, err := facet.FromRecord(fr)
		if err != nil {
			return nil, fmt.Errorf("facet %d: %w", i, err)
		}
		q.Facets = append(q.Facets, f)
	}
	return q, nil
}

// Record returns the persisted form of q.
func (q *Question) Record() Record {
	rec := Record{Name: q.Name, Facets: make([]facet.Record, 0, len(q.Facets))}
	for _, f := range q.Facets {
		rec.Facets = append(rec.Facets, facet.ToRecord(f))
	}
	return rec
}

// MaxScore sums the points of every facet.
func (q *Question) MaxScore() float64 {
	var total float64
	for _, f := range q.Facets {
		total += facet.MaxScore(f)
	}
	return total
}

// EvaluateScore sums the score of every facet against wb. The first
// authoring error aborts evaluation.
func (q *Question) EvaluateScore(wb workbook.Workbook, opts facet.Options) (float64, error) {
	var total float64
	for _, f := range q.Facets {
		s, err := facet.Evaluate(f, wb, opts)
		if err != nil {
			return 0, err
		}
		total += s
	}
	return total, nil
}

// Response is the outcome of one facet for review tooling.
type Response struct {
	Type     facet.Type         `json:"type"`
	Name     string             `json:"name"`
	Cell     string             `json:"cell,omitempty"`
	Review   facet.ReviewFlag   `json:"review"`
	Score    float64            `json:"score"`
	MaxScore float64            `json:"maxScore"`
	Provided workbook.SafeValue `json:"providedValue"`
	Expected workbook.SafeValue `json:"expectedValue"`
	// Error is set when the submission itself prevented scoring the facet.
	Error string `json:"error,omitempty"`
}

// EvaluateResponses scores every facet against sub. Expected values are
// read from the answer key, which may be nil.
//
// A circular reference in sub scores that facet 0, records the error on its
// response and keeps scoring the rest; the responses are then returned
// together with the first such error. Any other error is an authoring error
// and yields no responses.
func (q *Question) EvaluateResponses(sub, key workbook.Workbook, opts facet.Options) ([]Response, error) {
	out := make([]Response, 0, len(q.Facets))
	var cycle error
	for _, f := range q.Facets {
		s, err := facet.Evaluate(f, sub, opts)
		if err != nil && !errors.Is(err, facet.ErrCyclicReference) {
			return nil, err
		}
		if err != nil {
			s = 0
			if cycle == nil {
				cycle = err
			}
		}
		r := Response{
			Type:     f.Type(),
			Name:     facet.Name(f),
			Review:   f.Base().Review,
			Score:    s,
			MaxScore: facet.MaxScore(f),
			Provided: facet.Provided(f, sub),
			Expected: facet.Provided(f, key),
		}
		if c := f.Base().TargetCell; c != nil {
			r.Cell = c.String()
		}
		if err != nil {
			r.Error = err.Error()
		}
		out = append(out, r)
	}
	return out, cycle
}

// CreateFacet builds a facet from v (see facet.New) and appends it.
func (q *Question) CreateFacet(v any) (facet.Facet, error) {
	f, err := facet.New(v)
	if err != nil {
		return nil, err
	}
	q.Facets = append(q.Facets, f)
	return f, nil
}

// RemoveFacet removes f, which must be one of the question's own facets.
func (q *Question) RemoveFacet(f facet.Facet) error {
	i := slices.Index(q.Facets, f)
	if i < 0 {
		return ErrFacetNotFound
	}
	q.Facets = slices.Delete(q.Facets, i, i+1)
	return nil
}

// Invalid returns the validation error of every incomplete facet, keyed by
// facet index.
func (q *Question) Invalid() map[int]error {
	out := make(map[int]error)
	for i, f := range q.Facets {
		if err := facet.Validate(f); err != nil {
			out[i] = err
		}
	}
	return out
}

// IsValid reports whether every facet is valid.
func (q *Question) IsValid() bool {
	return len(q.Invalid()) == 0
}
