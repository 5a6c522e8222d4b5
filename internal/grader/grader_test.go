package grader

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/xuri/excelize/v2"
	"go.uber.org/goleak"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/question"
	"github.com/kaminskia1/excel-autograder/internal/workbook"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// xlsx builds a one-sheet workbook with the given cell values.
func xlsx(t *testing.T, creator string, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			t.Fatalf("SetCellValue(%s): %v", ref, err)
		}
	}
	if creator != "" {
		if err := f.SetDocProps(&excelize.DocProperties{Creator: creator}); err != nil {
			t.Fatalf("SetDocProps: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func testAssignment(t *testing.T) *model.Assignment {
	t.Helper()
	a1 := workbook.MustCellAddress("Sheet1", "A1")
	a2 := workbook.MustCellAddress("Sheet1", "A2")
	return &model.Assignment{
		ID:   "hw1",
		Name: "Homework 1",
		Questions: []question.Record{{
			Name: "Q1",
			Facets: []facet.Record{
				{Type: facet.TypeValue, Points: facet.Ptr(10.0), TargetCell: &a1, Value: facet.Ptr("Hello")},
				{Type: facet.TypeValueRange, Points: facet.Ptr(15.0), TargetCell: &a2,
					LowerBounds: facet.Ptr(0.0), UpperBounds: facet.Ptr(100.0)},
			},
		}},
		KeyFileName: "key.xlsx",
		KeyFile:     xlsx(t, "", map[string]any{"A1": "Hello", "A2": 42}),
	}
}

func TestGradeAll(t *testing.T) {
	a := testAssignment(t)
	key, err := LoadKey(a)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}

	path := filepath.Join(t.TempDir(), "carol.xlsx")
	f := excelize.NewFile()
	f.SetCellValue("Sheet1", "A1", "Hello")
	f.SetCellValue("Sheet1", "A2", 150)
	// NewFile stamps its own creator; the loader must report what was saved.
	if err := f.SetDocProps(&excelize.DocProperties{Creator: "Carol"}); err != nil {
		t.Fatalf("SetDocProps: %v", err)
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("SaveAs: %v", err)
	}
	f.Close()

	srcs := []Source{
		{Name: "bob.xlsx", Data: xlsx(t, "Bob", map[string]any{"A1": "Hi", "A2": 50})},
		{Name: "alice.xlsx", Data: xlsx(t, "Alice", map[string]any{"A1": "Hello", "A2": 50})},
		{Name: "broken.xlsx", Data: []byte("not a workbook")},
		{Path: path},
	}

	g := New(model.GradeConfig{Workers: 2})
	got, err := g.GradeAll(context.Background(), a, key, srcs)
	if err != nil {
		t.Fatalf("GradeAll: %v", err)
	}

	type summary struct {
		File             string
		Points, Max, Pct float64
		Creator          string
		Failed           bool
	}
	var sums []summary
	for _, s := range got {
		if s.AssignmentID != "hw1" {
			t.Errorf("%s: AssignmentID = %q", s.FileName, s.AssignmentID)
		}
		sums = append(sums, summary{s.FileName, s.Points, s.MaxPoints, s.Score, s.Properties.Creator, s.Error != ""})
	}
	want := []summary{
		{"alice.xlsx", 25, 25, 1, "Alice", false},
		{"bob.xlsx", 15, 25, 0.6, "Bob", false},
		{"broken.xlsx", 0, 25, 0, "", true},
		{"carol.xlsx", 10, 25, 0.4, "Carol", false},
	}
	if diff := cmp.Diff(want, sums, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("GradeAll mismatch (-want +got):\n%s", diff)
	}

	bob := got[1]
	if len(bob.Questions) != 1 || len(bob.Questions[0].Responses) != 2 {
		t.Fatalf("unexpected responses: %+v", bob.Questions)
	}
	r := bob.Questions[0].Responses[0]
	if r.Provided.Value != "Hi" || r.Expected.Value != "Hello" {
		t.Errorf("provided/expected = %q/%q", r.Provided.Value, r.Expected.Value)
	}
}

func TestGradeAuthoringError(t *testing.T) {
	a := testAssignment(t)
	a.Questions[0].Facets[0].Value = nil

	got, err := New(model.GradeConfig{}).GradeAll(context.Background(), a, nil, []Source{
		{Name: "alice.xlsx", Data: xlsx(t, "", map[string]any{"A1": "Hello"})},
	})
	if err != nil {
		t.Fatalf("GradeAll: %v", err)
	}
	if got[0].Error == "" || got[0].Points != 0 || got[0].MaxPoints != 25 {
		t.Errorf("expected authoring error on result, got %+v", got[0])
	}
}

func TestGradeCircularReference(t *testing.T) {
	a := testAssignment(t)
	b1 := workbook.MustCellAddress("Sheet1", "B1")
	a.Questions = append(a.Questions, question.Record{
		Name: "Q2",
		Facets: []facet.Record{
			{Type: facet.TypeFormulaList, Points: facet.Ptr(5.0), TargetCell: &b1, Formulas: []string{"SUM"}},
		},
	})
	rubric, err := a.Rubric()
	if err != nil {
		t.Fatalf("Rubric: %v", err)
	}

	sub := workbook.NewBook("loop.xlsx")
	s := sub.AddSheet("Sheet1")
	s.Set("A1", "Hello")
	s.Set("A2", 50)
	s.SetFormula("B1", "B2*2", 0)
	s.SetFormula("B2", "B1/2", 0)

	got := New(model.GradeConfig{}).Grade(rubric, nil, sub)
	if !strings.Contains(got.Error, facet.ErrCyclicReference.Error()) {
		t.Errorf("Error = %q, want circular reference reported", got.Error)
	}
	if got.Points != 25 || got.MaxPoints != 30 || len(got.Questions) != 2 {
		t.Fatalf("unexpected result: points %v/%v, %d questions", got.Points, got.MaxPoints, len(got.Questions))
	}
	loop := got.Questions[1].Responses[0]
	if loop.Score != 0 || loop.Error == "" {
		t.Errorf("cyclic response = %+v", loop)
	}
}

func TestGradeAllUnknownFacetType(t *testing.T) {
	a := testAssignment(t)
	a.Questions[0].Facets[0].Type = "FunctionChainFacet"

	_, err := New(model.GradeConfig{}).GradeAll(context.Background(), a, nil, nil)
	if !errors.Is(err, facet.ErrUnknownFacetType) {
		t.Errorf("expected ErrUnknownFacetType, got %v", err)
	}
}

func TestGradeAllCanceled(t *testing.T) {
	a := testAssignment(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(model.GradeConfig{Workers: 1}).GradeAll(ctx, a, nil, []Source{
		{Name: "a.xlsx", Data: xlsx(t, "", nil)},
		{Name: "b.xlsx", Data: xlsx(t, "", nil)},
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestExport(t *testing.T) {
	subs := []model.Submission{
		{FileName: "alice.xlsx", Points: 25, MaxPoints: 25, Score: 1, Properties: workbook.Properties{Creator: "Alice"}},
		{FileName: "bob.xlsx", Points: 15, MaxPoints: 25, Score: 0.6, Properties: workbook.Properties{Creator: "Bob"}},
	}
	cols, err := ParseColumns("fileName, points,creator")
	if err != nil {
		t.Fatalf("ParseColumns: %v", err)
	}

	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, subs, cols, "Homework 1"); err != nil {
		t.Fatalf("Export: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(ExportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	want := [][]string{
		{"File Name", "Points", "Creator"},
		{"alice.xlsx", "25", "Alice"},
		{"bob.xlsx", "15", "Bob"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
	props, err := f.GetDocProps()
	if err != nil {
		t.Fatalf("GetDocProps: %v", err)
	}
	if props.Title != "Homework 1" {
		t.Errorf("Title = %q", props.Title)
	}
}

func TestParseColumns(t *testing.T) {
	cols, err := ParseColumns("")
	if err != nil || !cmp.Equal(cols, DefaultColumns) {
		t.Errorf("ParseColumns(\"\") = %v, %v; want defaults", cols, err)
	}
	if _, err := ParseColumns("fileName,manager"); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("expected ErrUnknownColumn, got %v", err)
	}
	var buf bytes.Buffer
	if err := Export(context.Background(), &buf, nil, []string{"bogus"}, ""); !errors.Is(err, ErrUnknownColumn) {
		t.Errorf("Export: expected ErrUnknownColumn, got %v", err)
	}
}
