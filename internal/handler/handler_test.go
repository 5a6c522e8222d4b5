package handler

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/kaminskia1/excel-autograder/internal/grader"
	"github.com/kaminskia1/excel-autograder/internal/i18n"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/store"
)

const questionsJSON = `[{
	"name": "Q1",
	"facets": [
		{"type": "ValueFacet", "points": 10, "targetCell": {"sheetName": "Sheet1", "address": "A1"}, "value": "Hello"},
		{"type": "ValueRangeFacet", "points": "15", "targetCell": {"sheetName": "Sheet1", "address": "A2"}, "lowerBounds": 0, "upperBounds": 100}
	]
}]`

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	h, err := New(s, grader.New(model.DefaultGradeConfig()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	h.Routes(r)
	return r
}

func xlsx(t *testing.T, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for ref, v := range cells {
		if err := f.SetCellValue("Sheet1", ref, v); err != nil {
			t.Fatalf("SetCellValue(%s): %v", ref, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

type upload struct {
	field, name string
	data        []byte
}

func multipartRequest(t *testing.T, method, target string, fields map[string]string, files ...upload) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("WriteField: %v", err)
		}
	}
	for _, f := range files {
		fw, err := mw.CreateFormFile(f.field, f.name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		fw.Write(f.data)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, srv http.Handler, req *http.Request, wantStatus int) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if rec.Code != wantStatus {
		t.Fatalf("%s %s: status %d, want %d; body: %s", req.Method, req.URL, rec.Code, wantStatus, rec.Body)
	}
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body, err)
	}
	return v
}

func createAssignment(t *testing.T, srv http.Handler) model.Assignment {
	t.Helper()
	req := multipartRequest(t, http.MethodPost, "/assignments",
		map[string]string{"name": "Homework 1", "questions": questionsJSON},
		upload{"key", "key.xlsx", xlsx(t, map[string]any{"A1": "Hello", "A2": 42})})
	rec := do(t, srv, req, http.StatusCreated)
	a := decode[model.Assignment](t, rec)
	if loc := rec.Header().Get("Location"); loc != "/assignments/"+a.ID {
		t.Errorf("Location = %q", loc)
	}
	return a
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := do(t, srv, httptest.NewRequest(http.MethodGet, "/healthz", nil), http.StatusOK)
	if got := decode[map[string]string](t, rec); got["status"] != "ok" {
		t.Errorf("health = %v", got)
	}
}

func TestAssignmentLifecycle(t *testing.T) {
	srv := newTestServer(t)

	list := decode[[]model.Assignment](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/assignments", nil), http.StatusOK))
	if len(list) != 0 {
		t.Fatalf("expected no assignments, got %d", len(list))
	}

	a := createAssignment(t, srv)
	if a.Name != "Homework 1" || a.KeyFileName != "key.xlsx" || a.MaxScore() != 25 {
		t.Errorf("unexpected assignment: %+v", a)
	}

	got := decode[model.Assignment](t, do(t, srv, httptest.NewRequest(http.MethodGet, "/assignments/"+a.ID, nil), http.StatusOK))
	if diff := cmp.Diff(a.Questions, got.Questions); diff != "" {
		t.Errorf("questions mismatch (-want +got):\n%s", diff)
	}

	req := httptest.NewRequest(http.MethodPut, "/assignments/"+a.ID, strings.NewReader(`{"name": "Homework 1b"}`))
	req.Header.Set("Content-Type", "application/json")
	upd := decode[model.Assignment](t, do(t, srv, req, http.StatusOK))
	if upd.Name != "Homework 1b" || len(upd.Questions) != 1 || upd.KeyFileName != "key.xlsx" {
		t.Errorf("unexpected update: %+v", upd)
	}

	do(t, srv, httptest.NewRequest(http.MethodDelete, "/assignments/"+a.ID, nil), http.StatusNoContent)
	do(t, srv, httptest.NewRequest(http.MethodGet, "/assignments/"+a.ID, nil), http.StatusNotFound)
}

func TestCreateAssignmentErrors(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		fields map[string]string
		want   int
	}{
		{"missing name", map[string]string{"questions": questionsJSON}, http.StatusBadRequest},
		{"malformed questions", map[string]string{"name": "x", "questions": "[{"}, http.StatusUnprocessableEntity},
		{"unknown facet type", map[string]string{"name": "x", "questions": `[{"facets": [{"type": "ChartFacet"}]}]`}, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			do(t, srv, multipartRequest(t, http.MethodPost, "/assignments", tt.fields), tt.want)
		})
	}
}

func TestValidate(t *testing.T) {
	srv := newTestServer(t)
	req := multipartRequest(t, http.MethodPost, "/assignments", map[string]string{
		"name":      "Draft",
		"questions": `[{"facets": [{"type": "FormulaRegexFacet", "points": 5, "targetCell": {"sheetName": "Sheet1", "address": "B2"}}]}]`,
	})
	a := decode[model.Assignment](t, do(t, srv, req, http.StatusCreated))

	issues := decode[[]model.FacetIssue](t, do(t, srv,
		httptest.NewRequest(http.MethodGet, "/assignments/"+a.ID+"/validate?lang=ru", nil), http.StatusOK))
	if len(issues) != 1 {
		t.Fatalf("expected 1 issue, got %d", len(issues))
	}
	issue := issues[0]
	if issue.Valid || issue.Error == "" || issue.Type != "FormulaRegexFacet" {
		t.Errorf("unexpected issue: %+v", issue)
	}
	if len(issue.Info) != 2 || !strings.Contains(issue.Info[1], "Не задано") {
		t.Errorf("expected localized info, got %q", issue.Info)
	}
}

func TestGradeSubmissions(t *testing.T) {
	srv := newTestServer(t)
	a := createAssignment(t, srv)
	base := "/assignments/" + a.ID

	req := multipartRequest(t, http.MethodPost, base+"/submissions", nil,
		upload{"files", "bob.xlsx", xlsx(t, map[string]any{"A1": "Hi", "A2": 50})},
		upload{"files", "alice.xlsx", xlsx(t, map[string]any{"A1": "Hello", "A2": 50})},
		upload{"files", "broken.xlsx", []byte("garbage")},
	)
	results := decode[[]model.Submission](t, do(t, srv, req, http.StatusOK))

	type row struct {
		File   string
		Points float64
		Failed bool
	}
	var got []row
	for _, s := range results {
		if s.ID == 0 {
			t.Errorf("%s: missing id", s.FileName)
		}
		got = append(got, row{s.FileName, s.Points, s.Error != ""})
	}
	want := []row{{"alice.xlsx", 25, false}, {"bob.xlsx", 15, false}, {"broken.xlsx", 0, true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}

	// Regrading replaces stored results.
	req = multipartRequest(t, http.MethodPost, base+"/submissions", nil,
		upload{"files", "bob.xlsx", xlsx(t, map[string]any{"A1": "Hello", "A2": 50})})
	do(t, srv, req, http.StatusOK)

	stored := decode[[]model.Submission](t, do(t, srv, httptest.NewRequest(http.MethodGet, base+"/submissions", nil), http.StatusOK))
	if len(stored) != 3 || stored[1].FileName != "bob.xlsx" || stored[1].Points != 25 {
		t.Errorf("unexpected stored submissions: %+v", stored)
	}

	exp := decode[model.AssignmentExport](t, do(t, srv, httptest.NewRequest(http.MethodGet, base+"/export?format=json", nil), http.StatusOK))
	if exp.MaxScore != 25 || exp.NumQuestions != 1 || len(exp.Results) != 3 {
		t.Errorf("unexpected export: %+v", exp)
	}

	rec := do(t, srv, httptest.NewRequest(http.MethodGet, base+"/export?cols=fileName,points&lang=ru", nil), http.StatusOK)
	if ct := rec.Header().Get("Content-Type"); ct != xlsxMIME {
		t.Errorf("Content-Type = %q", ct)
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(grader.ExportSheet)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	wantRows := [][]string{{"Файл", "Баллы"}, {"alice.xlsx", "25"}, {"bob.xlsx", "25"}, {"broken.xlsx", "0"}}
	if diff := cmp.Diff(wantRows, rows); diff != "" {
		t.Errorf("export rows mismatch (-want +got):\n%s", diff)
	}

	do(t, srv, httptest.NewRequest(http.MethodGet, base+"/export?cols=manager", nil), http.StatusBadRequest)
}

func TestGradeSubmissionsErrors(t *testing.T) {
	srv := newTestServer(t)
	a := createAssignment(t, srv)

	do(t, srv, multipartRequest(t, http.MethodPost, "/assignments/"+a.ID+"/submissions", nil), http.StatusBadRequest)
	do(t, srv, multipartRequest(t, http.MethodPost, "/assignments/nope/submissions", nil,
		upload{"files", "a.xlsx", xlsx(t, nil)}), http.StatusNotFound)
	do(t, srv, httptest.NewRequest(http.MethodGet, "/assignments/nope/submissions", nil), http.StatusNotFound)
	do(t, srv, httptest.NewRequest(http.MethodGet, "/assignments/nope/export", nil), http.StatusNotFound)
}
