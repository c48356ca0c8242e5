package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"horse.fit/lingo/internal/cli"
)

func runRuns(args []string) int {
	fs := flag.NewFlagSet("runs", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 20, "Maximum runs to list")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *limit <= 0 {
		fmt.Fprintln(os.Stderr, "--limit must be > 0")
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}
	if !cfg.HasDatabase() {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; in-memory run history is only available from a running server at /api/v1/runs")
		return 1
	}

	recorder, closeRecorder, err := openRunRecorder(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer closeRecorder()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	runs, err := recorder.RecentRuns(ctx, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List runs failed: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(runs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
			return 1
		}
		return 0
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tFILE\tSTATUS\tROWS\tFAILED\tDURATION\tERROR")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			run.RunID,
			formatUTCTimestamp(run.StartedAt),
			truncateForTable(run.Filename, 32),
			run.Status,
			run.Rows,
			run.Failed,
			run.Duration.Round(time.Millisecond),
			truncateForTable(run.Error, 48),
		)
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}
