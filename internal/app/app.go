package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "detect":
		return runDetect(args[1:])
	case "translate":
		return runTranslate(args[1:])
	case "annotate":
		return runAnnotate(args[1:])
	case "runs":
		return runRuns(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "lingo CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  lingo <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health     Verify model backends and database connectivity")
	fmt.Fprintln(os.Stderr, "  detect     Detect the language of one text")
	fmt.Fprintln(os.Stderr, "  translate  Translate one text into the target language")
	fmt.Fprintln(os.Stderr, "  annotate   Annotate a spreadsheet with language, accuracy and translation")
	fmt.Fprintln(os.Stderr, "  runs       List recorded annotation runs")
	fmt.Fprintln(os.Stderr, "  serve      Start Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"lingo <command> -h\" for command-specific flags.")
}
