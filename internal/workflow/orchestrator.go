package workflow

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"townbeat/internal/ai"
	"townbeat/internal/config"
	"townbeat/internal/factcheck"
	"townbeat/internal/match"
	"townbeat/internal/retry"
	"townbeat/internal/traffic"
)

// Run modes. Daily mode skips the monthly discovery cadence.
const (
	ModeFull  = "full"
	ModeDaily = "daily"
)

const regionConcurrency = 4

// Deps bundles everything the orchestrator drives.
type Deps struct {
	Regions     RegionRepo
	Signals     SignalRepo
	Drafts      DraftRepo
	Publish     PublishRepo
	Checks      FactCheckRepo
	Runs        RunRepo
	Ingestor    *Ingestor
	Scorer      ai.Scorer
	Generator   ai.Generator
	Images      ai.ImageSearcher
	Matcher     *match.Service
	FactChecker *factcheck.Orchestrator
	Scheduler   *traffic.Scheduler
	Feeds       FeedSource
	Calendars   CalendarSource
	Readable    ReadableSource
	Discoverer  Discoverer
}

// Result is the outcome of one region's run.
type Result struct {
	RegionSlug string
	RunID      int64
	Counts     map[string]int
	Err        error
}

// Orchestrator executes the editorial workflow per region: source phases,
// the article chain, the event chain, then traffic-controlled publishing.
type Orchestrator struct {
	cfg    config.WorkflowConfig
	policy retry.Policy
	logger zerolog.Logger

	regions     RegionRepo
	signals     SignalRepo
	drafts      DraftRepo
	publish     PublishRepo
	checks      FactCheckRepo
	runs        RunRepo
	ingestor    *Ingestor
	scorer      ai.Scorer
	generator   ai.Generator
	images      ai.ImageSearcher
	matcher     *match.Service
	factChecker *factcheck.Orchestrator
	scheduler   *traffic.Scheduler
	feeds       FeedSource
	calendars   CalendarSource
	readable    ReadableSource
	discoverer  Discoverer
}

func New(cfg config.WorkflowConfig, deps Deps, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		policy:      retry.New(cfg.Retry.MaxAttempts, cfg.Retry.BaseDelay),
		logger:      logger,
		regions:     deps.Regions,
		signals:     deps.Signals,
		drafts:      deps.Drafts,
		publish:     deps.Publish,
		checks:      deps.Checks,
		runs:        deps.Runs,
		ingestor:    deps.Ingestor,
		scorer:      deps.Scorer,
		generator:   deps.Generator,
		images:      deps.Images,
		matcher:     deps.Matcher,
		factChecker: deps.FactChecker,
		scheduler:   deps.Scheduler,
		feeds:       deps.Feeds,
		calendars:   deps.Calendars,
		readable:    deps.Readable,
		discoverer:  deps.Discoverer,
	}
}

// RunAll runs every configured region concurrently. Regions are isolated:
// one region's failure is recorded in its result and never cancels the
// others.
func (o *Orchestrator) RunAll(ctx context.Context, mode string) []Result {
	results := make([]Result, len(o.cfg.Regions))

	group := new(errgroup.Group)
	group.SetLimit(regionConcurrency)
	for idx, region := range o.cfg.Regions {
		idx, region := idx, region
		group.Go(func() error {
			results[idx] = o.RunRegion(ctx, region, mode)
			return nil
		})
	}
	_ = group.Wait()

	return results
}

// PublishOnly runs just the publishing gate for one region. Drafts already
// waiting in a ready state are admitted or held; no pipeline phase runs.
func (o *Orchestrator) PublishOnly(ctx context.Context, region config.RegionConfig) (int, error) {
	regionID, err := o.regions.Ensure(ctx, region.Slug, region.Name, region.Timezone)
	if err != nil {
		return 0, fmt.Errorf("ensure region: %w", err)
	}
	return o.publishDrafts(ctx, regionID, region.Location(), true)
}

// RunRegion executes the full phase sequence for one region and records the
// run in the ledger. The first phase error aborts the remainder of the
// region's run.
func (o *Orchestrator) RunRegion(ctx context.Context, region config.RegionConfig, mode string) Result {
	result := Result{RegionSlug: region.Slug, Counts: map[string]int{}}
	logger := o.logger.With().Str("region", region.Slug).Str("mode", mode).Logger()

	regionID, err := o.regions.Ensure(ctx, region.Slug, region.Name, region.Timezone)
	if err != nil {
		result.Err = fmt.Errorf("ensure region: %w", err)
		return result
	}

	runID, err := o.runs.Start(ctx, region.Slug, mode)
	if err != nil {
		result.Err = fmt.Errorf("start run ledger: %w", err)
		return result
	}
	result.RunID = runID

	loc := region.Location()
	enabled := func(phase string) bool { return o.cfg.PhaseEnabled(region.Slug, phase) }

	phases := []struct {
		name string
		run  func(context.Context) (int, error)
	}{
		{config.PhaseDiscovery, func(ctx context.Context) (int, error) {
			if mode == ModeDaily {
				return 0, nil
			}
			return o.discoverSources(ctx, regionID, region, enabled(config.PhaseDiscovery))
		}},
		{config.PhaseCollection, func(ctx context.Context) (int, error) {
			return o.collectArticles(ctx, regionID, region, enabled(config.PhaseCollection))
		}},
		{config.PhaseDetection, func(ctx context.Context) (int, error) {
			return o.detectEvents(ctx, regionID, region, enabled(config.PhaseDetection))
		}},
		{config.PhaseCuration, func(ctx context.Context) (int, error) {
			return o.curateArticles(ctx, regionID, region.Slug, enabled(config.PhaseCuration))
		}},
		{config.PhaseOutline, func(ctx context.Context) (int, error) {
			return o.outlineArticles(ctx, regionID, enabled(config.PhaseOutline))
		}},
		{config.PhaseFactCheck, func(ctx context.Context) (int, error) {
			return o.factCheckArticles(ctx, regionID, enabled(config.PhaseFactCheck))
		}},
		{config.PhaseSelection, func(ctx context.Context) (int, error) {
			return o.selectArticles(ctx, regionID, enabled(config.PhaseSelection))
		}},
		{config.PhaseGeneration, func(ctx context.Context) (int, error) {
			return o.generateArticles(ctx, regionID, enabled(config.PhaseGeneration))
		}},
		{config.PhaseExtraction, func(ctx context.Context) (int, error) {
			return o.extractEvents(ctx, regionID, region.Slug, enabled(config.PhaseExtraction))
		}},
		{config.PhaseValidation, func(ctx context.Context) (int, error) {
			return o.validateEvents(ctx, regionID, enabled(config.PhaseValidation))
		}},
		{config.PhasePublishing, func(ctx context.Context) (int, error) {
			return o.publishDrafts(ctx, regionID, loc, enabled(config.PhasePublishing))
		}},
	}

	for _, phase := range phases {
		count, err := phase.run(ctx)
		result.Counts[phase.name] = count
		if err != nil {
			logger.Error().Err(err).Str("phase", phase.name).Msg("phase failed; aborting region run")
			result.Err = fmt.Errorf("phase %s: %w", phase.name, err)
			break
		}
		logger.Debug().Str("phase", phase.name).Int("processed", count).Msg("phase finished")
	}

	if err := o.runs.Finish(ctx, runID, result.Counts, result.Err); err != nil {
		logger.Error().Err(err).Msg("failed to close run ledger")
		if result.Err == nil {
			result.Err = err
		}
	}

	if result.Err == nil {
		logger.Info().Interface("counts", result.Counts).Msg("region run finished")
	}
	return result
}
