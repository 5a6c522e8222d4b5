package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kaminskia1/excel-autograder/internal/grader"
	"github.com/kaminskia1/excel-autograder/internal/handler"
	appI18n "github.com/kaminskia1/excel-autograder/internal/i18n"
	"github.com/kaminskia1/excel-autograder/internal/model"
	"github.com/kaminskia1/excel-autograder/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autograder",
		Short: "Grade spreadsheet submissions against instructor rubrics",
	}

	serve := serveCmd()
	root.AddCommand(serve, gradeCmd(), validateCmd(), importCmd(), exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `autograder --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP grading server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "autograder.db", "SQLite database path")
	addGradeFlags(cmd)
	addLogFlags(cmd)
	return cmd
}

// addGradeFlags registers the engine and worker pool knobs shared by every
// command that evaluates facets.
func addGradeFlags(cmd *cobra.Command) {
	def := model.DefaultGradeConfig()
	f := cmd.Flags()
	f.StringP("lang", "l", def.Lang, "Language for info lines and export headers (en, ru)")
	f.IntP("workers", "w", def.Workers, "Submissions graded in parallel")
	f.Int("max-depth", def.MaxDepth, "Maximum formula reference depth followed by FormulaListFacet")
	f.Int("max-cells", def.MaxCells, "Maximum cells visited by one FormulaListFacet evaluation")
	f.Duration("regex-timeout", def.RegexTimeout, "Match timeout for FormulaRegexFacet expressions")
}

func addLogFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func setupLogging(cmd *cobra.Command) {
	v := viperForCmd(cmd)

	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("AUTOGRADER")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("autograder")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/autograder")
	v.AddConfigPath("/etc/autograder")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// gradeConfig decodes the grading knobs from flags, environment and config
// file, then initializes the message bundle for the chosen language.
func gradeConfig(v *viper.Viper) (model.GradeConfig, error) {
	cfg := model.DefaultGradeConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode grade config: %w", err)
	}
	if err := appI18n.Init(cfg.Lang); err != nil {
		return cfg, fmt.Errorf("init i18n: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg, err := gradeConfig(v)
	if err != nil {
		return err
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	h, err := handler.New(db, grader.New(cfg))
	if err != nil {
		return fmt.Errorf("create handler: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(cfg.Lang))
	h.Routes(r)

	addr := v.GetString("addr")
	slog.Info("starting server",
		"addr", addr,
		"db", v.GetString("db"),
		"lang", cfg.Lang,
		"workers", cfg.Workers,
		"max_depth", cfg.MaxDepth,
		"max_cells", cfg.MaxCells,
		"regex_timeout", cfg.RegexTimeout,
	)
	return http.ListenAndServe(addr, r)
}
