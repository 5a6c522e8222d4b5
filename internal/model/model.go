package model

import (
	"fmt"
	"time"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/question"
	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

// Assignment is a rubric of questions plus the answer-key workbook it was
// authored against.
type Assignment struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Questions   []question.Record `json:"questions"`
	KeyFileName string            `json:"keyFileName,omitempty"`
	KeyFile     []byte            `json:"-"`
	CreatedAt   time.Time         `json:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

// Rubric builds the live questions of the assignment.
func (a *Assignment) Rubric() ([]*question.Question, error) {
	qs := make([]*question.Question, 0, len(a.Questions))
	for i, rec := range a.Questions {
		q, err := question.FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		qs = append(qs, q)
	}
	return qs, nil
}

// MaxScore sums the points of every facet of every question.
func (a *Assignment) MaxScore() float64 {
	var total float64
	for _, q := range a.Questions {
		for _, f := range q.Facets {
			if f.Points != nil {
				total += *f.Points
			}
		}
	}
	return total
}

// Valid reports whether every facet of every question is complete.
func (a *Assignment) Valid() bool {
	rubric, err := a.Rubric()
	if err != nil {
		return false
	}
	for _, q := range rubric {
		if !q.IsValid() {
			return false
		}
	}
	return true
}

// FacetIssue describes one facet of an assignment for validation listings.
type FacetIssue struct {
	Question int      `json:"question"`
	Facet    int      `json:"facet"`
	Name     string   `json:"name"`
	Type     string   `json:"type"`
	Valid    bool     `json:"valid"`
	Error    string   `json:"error,omitempty"`
	Info     []string `json:"info,omitempty"`
}

// GradeConfig holds grading parameters set via CLI flags or config file.
type GradeConfig struct {
	facet.Options `mapstructure:",squash"`
	// Workers is the number of submissions graded in parallel.
	Workers int    `mapstructure:"workers"`
	Lang    string `mapstructure:"lang"`
}

// DefaultGradeConfig returns the configuration used when nothing is set.
func DefaultGradeConfig() GradeConfig {
	return GradeConfig{Options: facet.DefaultOptions(), Workers: 4, Lang: "en"}
}

// QuestionResult is the graded outcome of one question.
type QuestionResult struct {
	Name      string              `json:"name,omitempty"`
	Points    float64             `json:"points"`
	MaxPoints float64             `json:"maxPoints"`
	Responses []question.Response `json:"responses"`
}

// Submission is one graded student workbook.
type Submission struct {
	ID           int64               `json:"id,omitempty"`
	AssignmentID string              `json:"assignmentId,omitempty"`
	FileName     string              `json:"fileName"`
	Points       float64             `json:"points"`
	MaxPoints    float64             `json:"maxPoints"`
	Score        float64             `json:"score"`
	Questions    []QuestionResult    `json:"questions,omitempty"`
	Properties   workbook.Properties `json:"properties"`
	Error        string              `json:"error,omitempty"`
	GradedAt     time.Time           `json:"gradedAt"`
}
