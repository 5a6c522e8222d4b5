package main

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kaminskia1/excel-autograder/internal/grader"
	appI18n "github.com/kaminskia1/excel-autograder/internal/i18n"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/question"
	"github.com/kaminskia1/excel-autograder/internal/store"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade [flags] SUBMISSION.xlsx...",
		Short: "Grade submission workbooks against a rubric file",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.StringP("rubric", "r", "", "Rubric JSON file (required)")
	f.StringP("key", "k", "", "Answer-key workbook supplying expected values")
	f.StringP("output", "o", "-", "Report output file path (- for stdout)")
	f.String("export", "", "Also write an xlsx summary to this path")
	f.String("cols", strings.Join(grader.DefaultColumns, ","), "Columns of the xlsx summary")
	addGradeFlags(cmd)
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func validateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report incomplete or contradictory facets of a rubric",
		RunE:  runValidate,
	}
	f := cmd.Flags()
	f.StringP("rubric", "r", "", "Rubric JSON file (required)")
	f.BoolP("verbose", "v", false, "Also describe valid facets")
	f.StringP("lang", "l", "en", "Output language (en, ru)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Store a rubric and answer key as an assignment",
		RunE:  runImport,
	}
	f := cmd.Flags()
	f.String("db", "autograder.db", "SQLite database path")
	f.StringP("rubric", "r", "", "Rubric JSON file (required)")
	f.StringP("key", "k", "", "Answer-key workbook")
	f.StringP("name", "n", "", "Assignment name (defaults to the rubric name)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored submissions of an assignment",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "autograder.db", "SQLite database path")
	f.String("assignment", "", "Assignment id (required)")
	f.String("format", "xlsx", "Output format (xlsx, json)")
	f.String("cols", strings.Join(grader.DefaultColumns, ","), "Columns of the xlsx export")
	f.StringP("lang", "l", "en", "Language of the xlsx headers (en, ru)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("assignment")

	return cmd
}

// rubricFile is the document accepted by --rubric: either a bare question
// list or an assignment object as returned by the API.
type rubricFile struct {
	Name      string            `json:"name"`
	Questions []question.Record `json:"questions"`
}

func loadAssignment(rubricPath, keyPath string) (*model.Assignment, error) {
	data, err := os.ReadFile(rubricPath)
	if err != nil {
		return nil, fmt.Errorf("read rubric: %w", err)
	}
	var rf rubricFile
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &rf.Questions)
	} else {
		err = json.Unmarshal(data, &rf)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rubricPath, err)
	}
	if rf.Name == "" {
		rf.Name = strings.TrimSuffix(filepath.Base(rubricPath), filepath.Ext(rubricPath))
	}

	a := &model.Assignment{Name: rf.Name, Questions: rf.Questions}
	if keyPath != "" {
		if a.KeyFile, err = os.ReadFile(keyPath); err != nil {
			return nil, fmt.Errorf("read answer key: %w", err)
		}
		a.KeyFileName = filepath.Base(keyPath)
	}
	return a, nil
}

func runGrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := gradeConfig(v)
	if err != nil {
		return err
	}
	cols, err := grader.ParseColumns(v.GetString("cols"))
	if err != nil {
		return err
	}
	a, err := loadAssignment(v.GetString("rubric"), v.GetString("key"))
	if err != nil {
		return err
	}
	key, err := grader.LoadKey(a)
	if err != nil {
		return err
	}

	srcs := make([]grader.Source, len(args))
	for i, path := range args {
		srcs[i] = grader.Source{Name: filepath.Base(path), Path: path}
	}

	ctx := appI18n.WithLang(cmd.Context(), cfg.Lang)
	results, err := grader.New(cfg).GradeAll(ctx, a, key, srcs)
	if err != nil {
		return fmt.Errorf("grade submissions: %w", err)
	}

	if err := writeOutput(v.GetString("output"), func(w io.Writer) error {
		return writeJSON(w, results)
	}); err != nil {
		return err
	}
	if path := v.GetString("export"); path != "" {
		if err := writeOutput(path, func(w io.Writer) error {
			return grader.Export(ctx, w, results, cols, a.Name)
		}); err != nil {
			return err
		}
		slog.Info("wrote summary", "path", path, "rows", len(results))
	}

	fmt.Fprintln(cmd.ErrOrStderr(), appI18n.Tp(ctx, "SubmissionsGraded", len(results)))
	return nil
}

func runValidate(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	if err := appI18n.Init(v.GetString("lang")); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	a, err := loadAssignment(v.GetString("rubric"), "")
	if err != nil {
		return err
	}
	ctx := appI18n.WithLang(cmd.Context(), v.GetString("lang"))
	issues, err := grader.Validate(ctx, a)
	if err != nil {
		return err
	}

	invalid := printIssues(ctx, cmd.OutOrStdout(), a, issues, v.GetBool("verbose"))
	if invalid > 0 {
		cmd.SilenceUsage = true
		return fmt.Errorf("%d of %d facets invalid", invalid, len(issues))
	}
	return nil
}

func printIssues(ctx context.Context, w io.Writer, a *model.Assignment, issues []model.FacetIssue, verbose bool) int {
	invalid := 0
	for _, is := range issues {
		qname := a.Questions[is.Question].Name
		if qname == "" {
			qname = fmt.Sprintf("#%d", is.Question+1)
		}
		if !is.Valid {
			invalid++
			fmt.Fprintln(w, appI18n.Td(ctx, "InvalidFacet", map[string]any{
				"Question": qname,
				"Facet":    is.Name,
				"Error":    is.Error,
			}))
		} else if verbose {
			fmt.Fprintf(w, "%s / %s\n", qname, is.Name)
		} else {
			continue
		}
		for _, line := range is.Info {
			fmt.Fprintf(w, "    %s\n", line)
		}
	}
	return invalid
}

func runImport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	a, err := loadAssignment(v.GetString("rubric"), v.GetString("key"))
	if err != nil {
		return err
	}
	if name := v.GetString("name"); name != "" {
		a.Name = name
	}
	if _, err := a.Rubric(); err != nil {
		return fmt.Errorf("check rubric: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	hash, err := importHash(a)
	if err != nil {
		return err
	}
	id, err := db.ImportedAssignment(hash)
	if err != nil {
		return fmt.Errorf("check import status: %w", err)
	}
	if id != "" {
		slog.Info("rubric unchanged, skipping", "assignment", id, "rubric", v.GetString("rubric"))
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}

	if id, err = db.CreateAssignment(*a); err != nil {
		return fmt.Errorf("store assignment: %w", err)
	}
	if err := db.RecordImport(hash, id, v.GetString("rubric")); err != nil {
		return fmt.Errorf("record import: %w", err)
	}
	slog.Info("imported assignment", "assignment", id, "name", a.Name, "questions", len(a.Questions))
	fmt.Fprintln(cmd.OutOrStdout(), id)
	return nil
}

// importHash identifies an assignment by its name, rubric and answer key.
func importHash(a *model.Assignment) (string, error) {
	questions, err := json.Marshal(a.Questions)
	if err != nil {
		return "", fmt.Errorf("encode rubric: %w", err)
	}
	h := sha256.New()
	for _, part := range [][]byte{[]byte(a.Name), questions, a.KeyFile} {
		h.Write(part)
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	export, err := db.ExportAssignment(v.GetString("assignment"))
	if err != nil {
		return fmt.Errorf("export assignment: %w", err)
	}

	switch format := strings.ToLower(v.GetString("format")); format {
	case "json":
		return writeOutput(v.GetString("output"), func(w io.Writer) error {
			return writeJSON(w, export)
		})
	case "xlsx":
		cols, err := grader.ParseColumns(v.GetString("cols"))
		if err != nil {
			return err
		}
		if err := appI18n.Init(v.GetString("lang")); err != nil {
			return fmt.Errorf("init i18n: %w", err)
		}
		ctx := appI18n.WithLang(cmd.Context(), v.GetString("lang"))
		return writeOutput(v.GetString("output"), func(w io.Writer) error {
			return grader.Export(ctx, w, export.Results, cols, export.Name)
		})
	default:
		return fmt.Errorf("unknown export format %q", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)
	return nil
}

// writeOutput opens path (stdout for "" or "-") and hands it to write.
func writeOutput(path string, write func(io.Writer) error) error {
	if path == "" || path == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
