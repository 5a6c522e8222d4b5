package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/kaminskia1/excel-autograder/internal/facet"
	"github.com/kaminskia1/excel-autograder/internal/grader"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/question"
	"github.com/kaminskia1/excel-autograder/internal/store"
)

const (
	maxUploadSize = 64 << 20
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store  *store.Store
	grader *grader.Grader
}

// New creates a new Handler.
func New(s *store.Store, g *grader.Grader) (*Handler, error) {
	if s == nil || g == nil {
		return nil, errors.New("handler needs a store and a grader")
	}
	return &Handler{store: s, grader: g}, nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/assignments", func(r chi.Router) {
		r.Get("/", h.handleListAssignments)
		r.Post("/", h.handleCreateAssignment)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGetAssignment)
			r.Put("/", h.handleUpdateAssignment)
			r.Delete("/", h.handleDeleteAssignment)
			r.Get("/validate", h.handleValidate)
			r.Get("/submissions", h.handleListSubmissions)
			r.Post("/submissions", h.handleGradeSubmissions)
			r.Get("/export", h.handleExport)
		})
	})
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.ListAssignments()
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []model.Assignment{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleCreateAssignment(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, badRequest("parse form: %v", err))
		return
	}
	a := model.Assignment{Name: r.FormValue("name")}
	if a.Name == "" {
		writeError(w, badRequest("name is required"))
		return
	}
	questions, err := decodeQuestions(r.FormValue("questions"))
	if err != nil {
		writeError(w, err)
		return
	}
	a.Questions = questions
	if file, hdr, err := r.FormFile("key"); err == nil {
		defer file.Close()
		if a.KeyFile, err = io.ReadAll(file); err != nil {
			writeError(w, badRequest("read key file: %v", err))
			return
		}
		a.KeyFileName = hdr.Filename
	}

	id, err := h.store.CreateAssignment(a)
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("assignment created", "assignment", id, "name", a.Name, "questions", len(a.Questions))
	created, err := h.store.GetAssignment(id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", "/assignments/"+id)
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAssignment(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type assignmentUpdate struct {
	Name      *string            `json:"name"`
	Questions *[]question.Record `json:"questions"`
}

func (h *Handler) handleUpdateAssignment(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAssignment(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	var upd assignmentUpdate
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&upd); err != nil {
		writeError(w, &httpError{status: http.StatusUnprocessableEntity, msg: "decode assignment: " + err.Error()})
		return
	}
	if upd.Name != nil {
		a.Name = *upd.Name
	}
	if upd.Questions != nil {
		if err := checkQuestions(*upd.Questions); err != nil {
			writeError(w, err)
			return
		}
		a.Questions = *upd.Questions
	}
	a.KeyFile = nil
	if err := h.store.UpdateAssignment(a); err != nil {
		writeError(w, err)
		return
	}
	updated, err := h.store.GetAssignment(a.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteAssignment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.store.DeleteAssignment(id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("assignment deleted", "assignment", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAssignment(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	issues, err := grader.Validate(r.Context(), &a)
	if err != nil {
		writeError(w, unprocessable(err))
		return
	}
	writeJSON(w, http.StatusOK, issues)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.GetAssignment(id); err != nil {
		writeError(w, err)
		return
	}
	subs, err := h.store.ListSubmissions(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *Handler) handleGradeSubmissions(w http.ResponseWriter, r *http.Request) {
	a, err := h.store.GetAssignment(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, badRequest("parse form: %v", err))
		return
	}
	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, badRequest("no files uploaded"))
		return
	}
	srcs := make([]grader.Source, 0, len(headers))
	for _, hdr := range headers {
		data, err := readUpload(hdr)
		if err != nil {
			writeError(w, badRequest("read %s: %v", hdr.Filename, err))
			return
		}
		srcs = append(srcs, grader.Source{Name: hdr.Filename, Data: data})
	}

	key, err := grader.LoadKey(&a)
	if err != nil {
		writeError(w, unprocessable(err))
		return
	}
	results, err := h.grader.GradeAll(r.Context(), &a, key, srcs)
	if err != nil {
		if errors.Is(err, facet.ErrUnknownFacetType) {
			err = unprocessable(err)
		}
		writeError(w, err)
		return
	}
	for i := range results {
		id, err := h.store.UpsertSubmission(results[i])
		if err != nil {
			writeError(w, err)
			return
		}
		results[i].ID = id
	}
	slog.Info("submissions graded", "assignment", a.ID, "count", len(results))
	writeJSON(w, http.StatusOK, results)
}

func readUpload(hdr *multipart.FileHeader) ([]byte, error) {
	f, err := hdr.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	exp, err := h.store.ExportAssignment(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		w.Header().Set("Content-Disposition", attachment(exp.Name+".json"))
		writeJSON(w, http.StatusOK, exp)
		return
	}
	cols, err := grader.ParseColumns(r.URL.Query().Get("cols"))
	if err != nil {
		writeError(w, badRequest("%v", err))
		return
	}
	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", attachment(exp.Name+".xlsx"))
	if err := grader.Export(r.Context(), w, exp.Results, cols, exp.Name); err != nil {
		slog.Error("export failed", "assignment", exp.AssignmentID, "error", err)
	}
}

func attachment(name string) string {
	return fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name))
}

// decodeQuestions parses the questions JSON of an assignment form. An empty
// value is an empty rubric.
func decodeQuestions(raw string) ([]question.Record, error) {
	if raw == "" {
		return []question.Record{}, nil
	}
	var qs []question.Record
	if err := json.Unmarshal([]byte(raw), &qs); err != nil {
		return nil, &httpError{status: http.StatusUnprocessableEntity, msg: "decode questions: " + err.Error()}
	}
	if err := checkQuestions(qs); err != nil {
		return nil, err
	}
	return qs, nil
}

// checkQuestions rejects rubrics naming unknown facet types. Incomplete
// facets are stored; authors fix them through validation.
func checkQuestions(qs []question.Record) error {
	for i, rec := range qs {
		if _, err := question.FromRecord(rec); err != nil {
			return &httpError{status: http.StatusUnprocessableEntity, msg: fmt.Sprintf("question %d: %v", i, err)}
		}
	}
	return nil
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func unprocessable(err error) error {
	return &httpError{status: http.StatusUnprocessableEntity, msg: err.Error()}
}

func badRequest(format string, args ...any) error {
	return &httpError{status: http.StatusBadRequest, msg: fmt.Sprintf(format, args...)}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var he *httpError
	switch {
	case errors.As(err, &he):
		status = he.status
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	}
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
