package store

import (
	"fmt"
	"time"

	"github.com/kaminskia1/excel-autograder/internal/model"
)

// ExportAssignment builds the export-ready results of an assignment.
func (s *Store) ExportAssignment(id string) (*model.AssignmentExport, error) {
	a, err := s.GetAssignment(id)
	if err != nil {
		return nil, err
	}
	subs, err := s.ListSubmissions(id)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return &model.AssignmentExport{
		AssignmentID: a.ID,
		Name:         a.Name,
		Date:         time.Now().Format("2006-01-02"),
		MaxScore:     a.MaxScore(),
		NumQuestions: len(a.Questions),
		Results:      nonNil(subs),
	}, nil
}
