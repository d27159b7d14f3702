package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"townbeat/internal/ai"
	"townbeat/internal/cli"
	"townbeat/internal/config"
	"townbeat/internal/db"
)

// runPublish pushes drafts already waiting in a ready state through the
// traffic gate, without running the pipeline phases.
func runPublish(args []string) int {
	fs := flag.NewFlagSet("publish", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	configPath := fs.String("config", "", "Editorial YAML config path (default: TB_EDITORIAL_CONFIG)")
	regionSlug := fs.String("region", "", "Publish only this region slug")
	timeout := fs.Duration("timeout", 2*time.Minute, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "publish does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	workflowCfg, err := config.LoadWorkflow(editorialConfigPath(*configPath, cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load editorial config: %v\n", err)
		return 1
	}

	regions, err := selectRegions(workflowCfg, *regionSlug)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	workflowCfg.Regions = regions

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.NewPool(dbCtx, cfg)
	dbCancel()
	if err != nil {
		logger.Error().Err(err).Msg("publish failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	// Publishing never calls the engine, but the orchestrator wiring wants one.
	orchestrator := buildOrchestrator(pool, workflowCfg, ai.NewHeuristicEngine(), logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	type publishOutput struct {
		Region    string `json:"region"`
		Published int    `json:"published"`
		Error     string `json:"error,omitempty"`
	}

	outputs := make([]publishOutput, 0, len(regions))
	failed := false
	for _, region := range regions {
		published, err := orchestrator.PublishOnly(ctx, region)
		output := publishOutput{Region: region.Slug, Published: published}
		if err != nil {
			failed = true
			output.Error = err.Error()
			logger.Error().Err(err).Str("region", region.Slug).Msg("publish gate failed")
		}
		outputs = append(outputs, output)
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(outputs); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
	} else {
		rows := make([][]string, 0, len(outputs))
		for _, output := range outputs {
			rows = append(rows, []string{output.Region, strconv.Itoa(output.Published), output.Error})
		}
		if err := writeTable([]string{"REGION", "PUBLISHED", "ERROR"}, rows); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to print table: %v\n", err)
			return 1
		}
	}

	if failed {
		return 1
	}
	return 0
}
