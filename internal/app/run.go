package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/ai"
	"townbeat/internal/cli"
	"townbeat/internal/config"
	"townbeat/internal/db"
	"townbeat/internal/dedup"
	"townbeat/internal/factcheck"
	"townbeat/internal/globaltime"
	"townbeat/internal/match"
	"townbeat/internal/retry"
	"townbeat/internal/source"
	"townbeat/internal/traffic"
	"townbeat/internal/workflow"
)

type regionRunOutput struct {
	Region string         `json:"region"`
	RunID  int64          `json:"run_id"`
	Status string         `json:"status"`
	Counts map[string]int `json:"counts"`
	Error  string         `json:"error,omitempty"`
}

// runWorkflow backs both the run and daily subcommands. forcedMode pins the
// mode for the daily alias; the run command chooses via -mode.
func runWorkflow(args []string, forcedMode string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	configPath := fs.String("config", "", "Editorial YAML config path (default: TB_EDITORIAL_CONFIG)")
	regionSlug := fs.String("region", "", "Run only this region slug")
	mode := fs.String("mode", workflow.ModeFull, "Run mode: full or daily")
	engineName := fs.String("engine", "", "Editorial engine name (default: TB_AI_ENGINE)")
	format := fs.String("format", outputFormatTable, "Output format: table or json")
	daemon := fs.Bool("daemon", false, "Keep running on a fixed interval until interrupted")
	interval := fs.Duration("interval", time.Hour, "Interval between daemon runs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "run does not accept positional arguments")
		return 2
	}

	runMode := strings.TrimSpace(strings.ToLower(*mode))
	if forcedMode != "" {
		runMode = forcedMode
	}
	if runMode != workflow.ModeFull && runMode != workflow.ModeDaily {
		fmt.Fprintln(os.Stderr, "--mode must be full or daily")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}
	if *daemon && *interval < time.Minute {
		fmt.Fprintln(os.Stderr, "--interval must be at least 1m in daemon mode")
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

	engine, err := ai.NewRegistryFromEnv().Engine(*engineName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve editorial engine: %v\n", err)
		return 2
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.NewPool(dbCtx, cfg)
	dbCancel()
	if err != nil {
		logger.Error().Err(err).Msg("run failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	orchestrator := buildOrchestrator(pool, workflowCfg, engine, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	if *daemon {
		return runWorkflowDaemon(ctx, orchestrator, workflowCfg, runMode, *interval, logger)
	}

	results := orchestrator.RunAll(ctx, runMode)
	if err := printRunResults(results, outputFormat); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print results: %v\n", err)
		return 1
	}
	for _, result := range results {
		if result.Err != nil {
			return 1
		}
	}
	return 0
}

func selectRegions(cfg config.WorkflowConfig, slug string) ([]config.RegionConfig, error) {
	trimmed := strings.TrimSpace(strings.ToLower(slug))
	if trimmed == "" {
		return cfg.Regions, nil
	}
	region, ok := cfg.Region(trimmed)
	if !ok {
		return nil, fmt.Errorf("region %q is not configured", trimmed)
	}
	return []config.RegionConfig{region}, nil
}

func buildOrchestrator(pool *db.Pool, workflowCfg config.WorkflowConfig, engine ai.Engine, logger zerolog.Logger) *workflow.Orchestrator {
	drafts := db.NewDraftStore(pool)
	signals := db.NewSignalStore(pool)
	publish := db.NewPublishStore(pool)
	policy := retry.New(workflowCfg.Retry.MaxAttempts, workflowCfg.Retry.BaseDelay)

	deps := workflow.Deps{
		Regions:  db.NewRegionStore(pool),
		Signals:  signals,
		Drafts:   drafts,
		Publish:  publish,
		Checks:   db.NewFactCheckStore(pool),
		Runs:     db.NewRunStore(pool),
		Ingestor: workflow.NewIngestor(
			source.NewNormalizer(workflowCfg, logger),
			signals,
			drafts,
			dedup.NewEngine(drafts, workflowCfg.Dedup, logger),
			logger,
		),
		Scorer:      engine,
		Generator:   engine,
		Matcher:     match.NewService(db.NewEntityStore(pool), workflowCfg.Matching, nil, policy, logger),
		FactChecker: factcheck.NewOrchestrator(engine, db.NewFactCheckStore(pool), policy, workflowCfg.FactCheck, logger),
		Scheduler:   traffic.NewScheduler(publish, workflowCfg, logger),
		Feeds:       source.NewFeedFetcher(0),
		Calendars:   source.NewCalendarFetcher(source.FetchOptions{}),
		Readable:    source.NewReadableFetcher(source.FetchOptions{}),
	}

	return workflow.New(workflowCfg, deps, logger)
}

// regionRunTask wraps one region run for the scheduled-retry queue.
type regionRunTask struct {
	orchestrator *workflow.Orchestrator
	region       config.RegionConfig
	mode         string
	enqueuedAt   time.Time
}

func (t *regionRunTask) ID() string {
	return t.region.Slug + "@" + t.enqueuedAt.UTC().Format(time.RFC3339)
}

func (t *regionRunTask) Type() string { return "workflow-run" }

func (t *regionRunTask) Execute(ctx context.Context) error {
	result := t.orchestrator.RunRegion(ctx, t.region, t.mode)
	return result.Err
}

func runWorkflowDaemon(ctx context.Context, orchestrator *workflow.Orchestrator, cfg config.WorkflowConfig, mode string, interval time.Duration, logger zerolog.Logger) int {
	queue := retry.NewQueue(len(cfg.Regions), retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay), logger)
	queue.Start()
	defer queue.Stop()

	enqueueAll := func() {
		now := globaltime.Now()
		for _, region := range cfg.Regions {
			task := &regionRunTask{orchestrator: orchestrator, region: region, mode: mode, enqueuedAt: now}
			if err := queue.Enqueue(task); err != nil {
				logger.Warn().Err(err).Str("region", region.Slug).Msg("failed to enqueue region run")
			}
		}
	}

	logger.Info().
		Dur("interval", interval).
		Str("mode", mode).
		Int("regions", len(cfg.Regions)).
		Msg("daemon mode started")
	enqueueAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			enqueueAll()
		case <-ctx.Done():
			logger.Info().Msg("daemon mode stopping")
			return 0
		}
	}
}

func printRunResults(results []workflow.Result, format string) error {
	outputs := make([]regionRunOutput, 0, len(results))
	for _, result := range results {
		output := regionRunOutput{
			Region: result.RegionSlug,
			RunID:  result.RunID,
			Status: db.RunStatusSucceeded,
			Counts: result.Counts,
		}
		if result.Err != nil {
			output.Status = db.RunStatusFailed
			output.Error = result.Err.Error()
		}
		outputs = append(outputs, output)
	}

	if format == outputFormatJSON {
		return printJSON(outputs)
	}

	rows := make([][]string, 0, len(outputs))
	for _, output := range outputs {
		rows = append(rows, []string{
			output.Region,
			strconv.FormatInt(output.RunID, 10),
			output.Status,
			strconv.Itoa(output.Counts[config.PhaseCollection]),
			strconv.Itoa(output.Counts[config.PhaseCuration]),
			strconv.Itoa(output.Counts[config.PhaseGeneration]),
			strconv.Itoa(output.Counts[config.PhasePublishing]),
			output.Error,
		})
	}
	return writeTable(
		[]string{"REGION", "RUN", "STATUS", "COLLECTED", "CURATED", "GENERATED", "PUBLISHED", "ERROR"},
		rows,
	)
}
