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
	case "run":
		return runWorkflow(args[1:], "")
	case "daily":
		return runWorkflow(args[1:], "daily")
	case "publish":
		return runPublish(args[1:])
	case "stats":
		return runStats(args[1:])
	case "serve":
		return runServe(args[1:])
	case "validate":
		return runValidate(args[1:])
	case "daemon":
		return runDaemon(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "townbeat CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  townbeat <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  run       Run the editorial workflow for all or one region")
	fmt.Fprintln(os.Stderr, "  daily     Run the workflow in daily mode (skips source discovery)")
	fmt.Fprintln(os.Stderr, "  publish   Run only the publishing gate for waiting drafts")
	fmt.Fprintln(os.Stderr, "  stats     Show per-region pipeline stats")
	fmt.Fprintln(os.Stderr, "  serve     Start the Echo read-only API server")
	fmt.Fprintln(os.Stderr, "  validate  Validate editorial config and signal payload files")
	fmt.Fprintln(os.Stderr, "  daemon    Install or control systemd units")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"townbeat <command> -h\" for command-specific flags.")
}
