package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/lingo/internal/cli"
	"horse.fit/lingo/internal/gateway"
	"horse.fit/lingo/internal/globaltime"
)

func runDetect(args []string) int {
	return runSingleCall("detect", args, func(ctx context.Context, models *gateway.Gateway, text string) (map[string]any, error) {
		started := globaltime.Now()
		result, err := models.Detect(ctx, text)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"language":   result.Language,
			"accuracy":   result.Confidence,
			"time_spent": globaltime.ElapsedMS(started),
		}, nil
	})
}

func runTranslate(args []string) int {
	return runSingleCall("translate", args, func(ctx context.Context, models *gateway.Gateway, text string) (map[string]any, error) {
		started := globaltime.Now()
		result, err := models.Translate(ctx, text)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"translation": result.Text,
			"time_spent":  globaltime.ElapsedMS(started),
		}, nil
	})
}

type singleCall func(ctx context.Context, models *gateway.Gateway, text string) (map[string]any, error)

// runSingleCall loads the models once, runs call on the joined positional
// arguments and prints the JSON result.
func runSingleCall(name string, args []string, call singleCall) int {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	text := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if text == "" {
		fmt.Fprintf(os.Stderr, "Usage: lingo %s [--env .env] [--timeout 2m] <text>\n", name)
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Startup failed: %v\n", err)
		return 1
	}

	loaded, err := buildModels(cfg, logger, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load models: %v\n", err)
		return 1
	}
	defer loaded.Close()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	out, err := call(ctx, gateway.New(loaded.handles, logger), text)
	if err != nil {
		logger.Error().Err(err).Str("command", name).Msg("model call failed")
		fmt.Fprintf(os.Stderr, "%s failed: %v\n", name, err)
		return 1
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write output: %v\n", err)
		return 1
	}
	return 0
}
