package traffic

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/config"
	"townbeat/internal/globaltime"
)

// Breaking-news keywords bypass every pacing check.
var breakingKeywords = []string{"breaking", "urgent", "alert", "emergency", "missing", "crisis"}

// Hold reasons reported on decisions. Held drafts keep their status and are
// re-evaluated on the next scheduling pass.
const (
	HoldDailyQuota         = "daily quota reached"
	HoldCategorySaturation = "category saturated for today"
	HoldTimeWindow         = "outside publishing hours"
)

// Draft is the projection traffic control evaluates.
type Draft struct {
	ID           int64
	Title        string
	Quality      float64
	PrimaryTopic string
}

// Decision is the outcome of one admission check.
type Decision struct {
	Publish    bool
	Breaking   bool
	Category   string
	HoldReason string
}

// Counts reads a region's published-post tallies. Decisions are computed
// fresh from these counts on every pass so concurrent regional schedulers
// never share pacing state.
type Counts interface {
	PublishedSince(ctx context.Context, regionID int64, since time.Time) (int, error)
	PublishedSinceByCategory(ctx context.Context, regionID int64, since time.Time, category string) (int, error)
}

type Scheduler struct {
	counts Counts
	cfg    config.WorkflowConfig
	logger zerolog.Logger
}

func NewScheduler(counts Counts, cfg config.WorkflowConfig, logger zerolog.Logger) *Scheduler {
	return &Scheduler{counts: counts, cfg: cfg, logger: logger}
}

// IsBreaking reports whether the title carries a breaking-news keyword.
func IsBreaking(title string) bool {
	lowered := strings.ToLower(title)
	for _, keyword := range breakingKeywords {
		if strings.Contains(lowered, keyword) {
			return true
		}
	}
	return false
}

// CategoryTarget is a category's share of the daily quota, floored. The
// epsilon guards against float shares like 0.35 flooring one short.
func (s *Scheduler) CategoryTarget(category string) int {
	share := s.cfg.Traffic.CategoryShares[category]
	return int(math.Floor(share*float64(s.cfg.Traffic.DailyTarget) + 1e-9))
}

// ShouldPublishNow applies the admission rules in order: breaking override,
// daily quota, category saturation (ignored past the late-hour cutoff), and
// the time-of-day window.
func (s *Scheduler) ShouldPublishNow(ctx context.Context, regionID int64, loc *time.Location, d Draft) (Decision, error) {
	if s == nil || s.counts == nil {
		return Decision{}, fmt.Errorf("traffic scheduler is not initialized")
	}
	if loc == nil {
		loc = time.UTC
	}

	category := s.cfg.CategoryForTopic(d.PrimaryTopic)
	decision := Decision{Category: category}

	if IsBreaking(d.Title) {
		decision.Publish = true
		decision.Breaking = true
		return decision, nil
	}

	dayStart := globaltime.DayStart(loc)
	published, err := s.counts.PublishedSince(ctx, regionID, dayStart)
	if err != nil {
		return Decision{}, fmt.Errorf("count published today: %w", err)
	}
	if published >= s.cfg.Traffic.DailyTarget {
		decision.HoldReason = HoldDailyQuota
		return decision, nil
	}

	hour := globaltime.Now().In(loc).Hour()

	// Saturation is waived past the late-hour cutoff to avoid starving the
	// feed; the daily quota above is never waived.
	if hour < s.cfg.Traffic.LateHourCutoff {
		categoryCount, err := s.counts.PublishedSinceByCategory(ctx, regionID, dayStart, category)
		if err != nil {
			return Decision{}, fmt.Errorf("count category published today: %w", err)
		}
		if categoryCount >= s.CategoryTarget(category)+1 {
			decision.HoldReason = HoldCategorySaturation
			return decision, nil
		}
	}

	if hour < s.cfg.Traffic.PublishStartHour || hour >= s.cfg.Traffic.PublishEndHour {
		decision.HoldReason = HoldTimeWindow
		return decision, nil
	}

	decision.Publish = true
	return decision, nil
}

// PriorityScore orders a region's publish-ready queue. It never gates
// admission.
func (s *Scheduler) PriorityScore(ctx context.Context, regionID int64, loc *time.Location, d Draft) (int, error) {
	if loc == nil {
		loc = time.UTC
	}

	score := int(d.Quality)
	breaking := IsBreaking(d.Title)
	if breaking {
		score += s.cfg.Traffic.BreakingBonus
	}

	category := s.cfg.CategoryForTopic(d.PrimaryTopic)
	categoryCount, err := s.counts.PublishedSinceByCategory(ctx, regionID, globaltime.DayStart(loc), category)
	if err != nil {
		return 0, fmt.Errorf("count category published today: %w", err)
	}
	if categoryCount < s.CategoryTarget(category) {
		score += s.cfg.Traffic.UnderSaturationBonus
	}

	return score, nil
}
