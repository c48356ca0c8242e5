package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"horse.fit/lingo/internal/annotator"
	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/dataset"
	"horse.fit/lingo/internal/gateway"
)

func runAnnotate(args []string) int {
	fs := flag.NewFlagSet("annotate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	in := fs.String("in", "", "Input spreadsheet (.xlsx, .xlsm, .csv or .json)")
	out := fs.String("out", "", "Output file (.xlsx, .csv or .json); defaults to <in>_annotated.xlsx")
	column := fs.String("column", "", "Source text column (defaults to SOURCE_COLUMN)")
	concurrency := fs.Int("concurrency", 0, "Rows annotated in parallel (defaults to ANNOTATE_CONCURRENCY)")
	failFast := fs.Bool("fail-fast", false, "Abort on the first row error instead of recording it")
	timeout := fs.Duration("timeout", 2*time.Hour, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	inputPath := strings.TrimSpace(*in)
	if inputPath == "" {
		fmt.Fprintln(os.Stderr, "--in is required")
		return 2
	}
	outputPath := strings.TrimSpace(*out)
	if outputPath == "" {
		outputPath = defaultAnnotatedPath(inputPath)
	}
	if _, err := dataset.DetectFormat(outputPath); err != nil {
		fmt.Fprintf(os.Stderr, "--out: %v\n", err)
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	sourceColumn := strings.TrimSpace(*column)
	if sourceColumn == "" {
		sourceColumn = cfg.SourceColumn
	}
	workers := *concurrency
	if workers <= 0 {
		workers = cfg.AnnotateConcurrency
	}

	loaded, err := buildModels(cfg, logger, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load models: %v\n", err)
		return 1
	}
	defer loaded.Close()

	recorder, closeRecorder, err := openRunRecorder(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer closeRecorder()

	service := annotator.New(gateway.New(loaded.handles, logger), annotator.Options{
		SourceColumn: sourceColumn,
		Concurrency:  workers,
		FailFast:     *failFast || cfg.AnnotateFailFast,
		Recorder:     recorder,
		Logger:       logger,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	report, err := service.Reload(ctx, inputPath, filepath.Base(inputPath))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Annotate failed: %v\n", err)
		return 1
	}
	if err := dataset.Save(outputPath, service.Dataframe()); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return 1
	}

	for _, failure := range report.Failures {
		fmt.Fprintf(os.Stderr, "row %d %s: %s\n", failure.Row, failure.Stage, failure.Error)
	}
	fmt.Printf(
		"annotate run=%s in=%s out=%s column=%s rows=%d annotated=%d failed=%d duration=%s\n",
		report.RunID,
		inputPath,
		outputPath,
		sourceColumn,
		report.Rows,
		report.Annotated,
		report.Failed,
		report.Duration.Round(time.Millisecond),
	)
	return 0
}

func defaultAnnotatedPath(input string) string {
	ext := filepath.Ext(input)
	return strings.TrimSuffix(input, ext) + "_annotated.xlsx"
}
