package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/emrekara/gradescan/internal/analysis"
	"github.com/emrekara/gradescan/internal/batch"
	"github.com/emrekara/gradescan/internal/handler"
	appI18n "github.com/emrekara/gradescan/internal/i18n"
	"github.com/emrekara/gradescan/internal/model"
	"github.com/emrekara/gradescan/internal/scoring"
	"github.com/emrekara/gradescan/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "gradescan",
		Short: "Bulk exam scan scoring and outcome achievement service",
	}

	serve := serveCmd()
	root.AddCommand(serve, exportCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE

	// Register serve flags on root so bare `gradescan --addr ...` still works.
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP scoring server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	f.String("db", "gradescan.db", "SQLite database path")
	f.StringSliceP("reference", "r", nil, "Paths to reference data JSON files (repeatable)")
	f.String("scorer-url", "http://localhost:11434/v1", "OpenAI-compatible API base URL for the scoring model")
	f.String("scorer-key", "ollama", "API key for the scoring model")
	f.String("scorer-model", "llama3.2-vision", "Vision model used to read exam sheets")
	f.Duration("score-timeout", 0, "Timeout per document scoring call (0 = default)")
	f.IntP("workers", "w", 4, "Concurrent scoring calls")
	f.StringP("lang", "l", "en", "Summary language (en, tr)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	return cmd
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export an exam's analysis report as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "gradescan.db", "SQLite database path")
	f.Int64("exam-id", 0, "Exam ID to analyze (required)")
	f.StringP("lang", "l", "en", "Summary language (en, tr)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")

	_ = cmd.MarkFlagRequired("exam-id")

	return cmd
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

	v.SetEnvPrefix("GRADESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("gradescan")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/gradescan")
	v.AddConfigPath("/etc/gradescan")
	v.AddConfigPath("/data")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Info("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

func runServe(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	cfg := model.ServerConfig{
		Addr:   v.GetString("addr"),
		DBPath: v.GetString("db"),
		Lang:   v.GetString("lang"),
		Scoring: model.ScoringConfig{
			BaseURL:      v.GetString("scorer-url"),
			APIKey:       v.GetString("scorer-key"),
			Model:        v.GetString("scorer-model"),
			ScoreTimeout: v.GetDuration("score-timeout"),
			Workers:      v.GetInt("workers"),
		},
	}

	db, err := store.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := loadReference(db, v.GetStringSlice("reference")); err != nil {
		return fmt.Errorf("load reference data: %w", err)
	}

	if err := appI18n.Init(cfg.Lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	scorer := scoring.New(cfg.Scoring)
	if err := scorer.Ping(context.Background()); err != nil {
		return fmt.Errorf("scoring health check: %w", err)
	}
	slog.Info("scoring endpoint OK", "url", cfg.Scoring.BaseURL, "model", cfg.Scoring.Model)

	tracker := batch.New(db, scorer, cfg.Scoring)
	agg := analysis.New(db, appI18n.NewLocalizer(cfg.Lang))
	h := handler.New(db, tracker, agg)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	h.Routes(r)

	slog.Info("starting server",
		"addr", cfg.Addr,
		"model", cfg.Scoring.Model,
		"scorer_url", cfg.Scoring.BaseURL,
		"workers", cfg.Scoring.Workers,
		"lang", cfg.Lang,
	)
	return http.ListenAndServe(cfg.Addr, r)
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}

	agg := analysis.New(db, appI18n.NewLocalizer(lang))
	report, err := agg.Report(v.GetInt64("exam-id"))
	if err != nil {
		return fmt.Errorf("compute analysis: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = os.Stdout
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	_, err = w.Write(data)
	if err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	// Ensure trailing newline.
	_, _ = fmt.Fprintln(w)

	return nil
}

// loadReference imports reference data files, skipping files already
// imported with the same content. A changed file is skipped with a warning:
// re-importing would duplicate entities under existing score records.
func loadReference(db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}

		if storedHash == hash {
			slog.Info("reference file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("reference file changed since last import, skipping to avoid duplicating entities",
				"path", path)
			continue
		}

		var ref model.ReferenceImport
		if err := json.Unmarshal(data, &ref); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		if err := db.ImportReference(ref); err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		if err := db.SetImportedFileHash(path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
		slog.Info("imported reference data", "path", path, "courses", len(ref.Courses))
	}

	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
