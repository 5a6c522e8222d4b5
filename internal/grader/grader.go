// Package grader grades batches of submission workbooks against an
// assignment and exports the results.
package grader

import (
	"bytes"
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/question"
	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Source is one submission file. Data is read when set, Path otherwise.
type Source struct {
	Name string
	Path string
	Data []byte
}

func (s Source) open() (*workbook.Book, error) {
	if s.Data != nil {
		return workbook.Read(bytes.NewReader(s.Data), s.Name)
	}
	b, err := workbook.Open(s.Path)
	if err != nil {
		return nil, err
	}
	if s.Name != "" {
		b.Name = s.Name
	}
	return b, nil
}

// Grader grades submissions with a fixed configuration.
type Grader struct {
	cfg model.GradeConfig
}

// New returns a Grader. Unset limits fall back to the defaults.
func New(cfg model.GradeConfig) *Grader {
	if cfg.Workers <= 0 {
		cfg.Workers = model.DefaultGradeConfig().Workers
	}
	return &Grader{cfg: cfg}
}

// Grade scores one loaded submission. Authoring errors are reported on the
// submission rather than returned and void its score. Circular references in
// the submission only zero the affected facets; they are listed in Error
// next to the remaining results.
func (g *Grader) Grade(rubric []*question.Question, key workbook.Workbook, sub *workbook.Book) model.Submission {
	res := model.Submission{
		FileName:   sub.Name,
		Properties: sub.Properties,
		GradedAt:   time.Now().UTC(),
	}
	var cycles []error
	for _, q := range rubric {
		responses, err := q.EvaluateResponses(sub, key, g.cfg.Options)
		if err != nil && !errors.Is(err, facet.ErrCyclicReference) {
			res.Error = err.Error()
			res.Points = 0
			res.Questions = nil
			cycles = nil
			break
		}
		if err != nil {
			cycles = append(cycles, err)
		}
		qr := model.QuestionResult{Name: q.Name, MaxPoints: q.MaxScore(), Responses: responses}
		for _, r := range responses {
			qr.Points += r.Score
		}
		res.Points += qr.Points
		res.Questions = append(res.Questions, qr)
	}
	if len(cycles) > 0 {
		res.Error = errors.Join(cycles...).Error()
	}
	for _, q := range rubric {
		res.MaxPoints += q.MaxScore()
	}
	if res.MaxPoints != 0 {
		res.Score = res.Points / res.MaxPoints
	}
	return res
}

// GradeAll grades every source against the assignment using up to
// Workers goroutines. The results are sorted by file name. A source that
// fails to load is reported on its result; only cancellation of ctx or a
// malformed rubric fails the batch.
func (g *Grader) GradeAll(ctx context.Context, a *model.Assignment, key workbook.Workbook, srcs []Source) ([]model.Submission, error) {
	rubric, err := a.Rubric()
	if err != nil {
		return nil, fmt.Errorf("build rubric: %w", err)
	}

	results := make([]model.Submission, len(srcs))
	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.cfg.Workers)
	for i, src := range srcs {
		if gctx.Err() != nil {
			break
		}
		eg.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			book, err := src.open()
			if err != nil {
				slog.Warn("load submission", "assignment", a.ID, "file", src.Name, "error", err)
				results[i] = model.Submission{FileName: src.Name, Error: err.Error(), GradedAt: time.Now().UTC()}
				results[i].MaxPoints = a.MaxScore()
				return nil
			}
			res := g.Grade(rubric, key, book)
			if res.Error != "" {
				slog.Warn("grade submission", "assignment", a.ID, "file", res.FileName, "error", res.Error)
			} else {
				slog.Debug("graded submission", "assignment", a.ID, "file", res.FileName,
					"points", res.Points, "max_points", res.MaxPoints)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i := range results {
		results[i].AssignmentID = a.ID
	}
	slices.SortStableFunc(results, func(x, y model.Submission) int {
		return cmp.Compare(x.FileName, y.FileName)
	})
	return results, nil
}

// LoadKey opens the answer-key workbook of an assignment. An assignment
// without a key yields a nil workbook, leaving expected values empty.
func LoadKey(a *model.Assignment) (workbook.Workbook, error) {
	if len(a.KeyFile) == 0 {
		return nil, nil
	}
	b, err := workbook.Read(bytes.NewReader(a.KeyFile), a.KeyFileName)
	if err != nil {
		return nil, fmt.Errorf("load answer key: %w", err)
	}
	return b, nil
}
