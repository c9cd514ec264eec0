// Command gabarito serves the answer-sheet correction API and exposes the
// scoring engine and detector as offline subcommands.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mind-engage/gabarito/internal/answerkey"
	"github.com/mind-engage/gabarito/internal/config"
	"github.com/mind-engage/gabarito/internal/db"
	"github.com/mind-engage/gabarito/internal/detect"
	"github.com/mind-engage/gabarito/internal/grading"
	"github.com/mind-engage/gabarito/internal/logging"
)

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "gabarito",
		Short:         "Answer sheet correction service",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "gabarito.toml", "path to TOML config (missing file is ignored)")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newScoreCmd())
	rootCmd.AddCommand(newDetectCmd())
	return rootCmd
}

func loadConfig() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return cfg, logger, nil
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			dbh, err := db.Open(ctx, db.Driver(cfg.DBDriver), cfg.DBDSN)
			if err != nil {
				return fmt.Errorf("db open failed: %w", err)
			}
			logger.Info("schema ready", zap.String("driver", cfg.DBDriver))
			return dbh.Close()
		},
	}
}

func newScoreCmd() *cobra.Command {
	var keyPath, detectionPath string
	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score a detection file against an answer key file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runScore(cmd.OutOrStdout(), keyPath, detectionPath)
		},
	}
	cmd.Flags().StringVar(&keyPath, "key", "", "answer key JSON (titulo, quantidade_questoes, alternativas, respostas)")
	cmd.Flags().StringVar(&detectionPath, "detection", "", "detector output JSON")
	_ = cmd.MarkFlagRequired("key")
	_ = cmd.MarkFlagRequired("detection")
	return cmd
}

func runScore(out io.Writer, keyPath, detectionPath string) error {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return fmt.Errorf("failed to read answer key: %w", err)
	}
	var k answerkey.AnswerKey
	if err := json.Unmarshal(raw, &k); err != nil {
		return fmt.Errorf("failed to decode answer key: %w", err)
	}
	if err := answerkey.ValidateForCreate(answerkey.Draft{
		Title:         k.Title,
		QuestionCount: k.QuestionCount,
		Alphabet:      k.Alphabet,
		Answers:       k.Answers,
	}, nil); err != nil {
		return err
	}

	raw, err = os.ReadFile(detectionPath)
	if err != nil {
		return fmt.Errorf("failed to read detection: %w", err)
	}
	det, err := detect.ParseDetection(raw)
	if err != nil {
		return err
	}

	report, err := grading.Score(k, det)
	if err != nil {
		return err
	}
	return printJSON(out, grading.Format(report))
}

func newDetectCmd() *cobra.Command {
	var (
		image        string
		questions    int
		alternatives string
	)
	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Run the configured detector on one image and print its answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			d := detect.Instrument(newEngine(cfg.Detector), cfg.Detector.Engine, logger, nil)
			det, err := d.Detect(cmd.Context(), detect.Request{
				ImagePath: image,
				Config: detect.Config{
					QuestionCount: questions,
					Alphabet:      splitAlternatives(alternatives),
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), det)
		},
	}
	cmd.Flags().StringVar(&image, "image", "", "answer sheet image")
	cmd.Flags().IntVar(&questions, "questions", 0, "number of questions on the sheet")
	cmd.Flags().StringVar(&alternatives, "alternatives", "A,B,C,D,E", "comma separated alternatives")
	_ = cmd.MarkFlagRequired("image")
	_ = cmd.MarkFlagRequired("questions")
	return cmd
}

// newEngine builds the bare detector for the configured engine.
func newEngine(c config.DetectorConfig) detect.Detector {
	r := detect.Runner{Timeout: c.Timeout, MaxOutput: c.MaxOutput}
	if c.Engine == "tesseract" {
		return detect.NewTesseractDetector(c.TesseractLang, r)
	}
	return detect.NewOMRDetector(c.Command, c.Args, r)
}

func splitAlternatives(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
