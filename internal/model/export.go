package model

// AssignmentExport is the top-level JSON structure for exporting the graded
// submissions of an assignment.
type AssignmentExport struct {
	AssignmentID string       `json:"assignmentId"`
	Name         string       `json:"name"`
	Date         string       `json:"date"`
	MaxScore     float64      `json:"maxScore"`
	NumQuestions int          `json:"numQuestions"`
	Results      []Submission `json:"results"`
}
