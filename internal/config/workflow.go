package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase identifiers used by enable/disable flags. Article path and event path
// share publishing; discovery runs on a monthly cadence and is skipped in
// daily mode.
const (
	PhaseDiscovery  = "discovery"
	PhaseCollection = "collection"
	PhaseCuration   = "curation"
	PhaseSelection  = "selection"
	PhaseOutline    = "outline"
	PhaseFactCheck  = "fact_check"
	PhaseGeneration = "generation"
	PhasePublishing = "publishing"
	PhaseDetection  = "detection"
	PhaseExtraction = "extraction"
	PhaseValidation = "validation"
)

// RegionConfig describes one geographic workspace the pipeline runs for.
// Feeds are RSS/Atom sources for article collection; Calendars are venue
// calendar pages scraped for event detection.
type RegionConfig struct {
	Slug      string          `yaml:"slug"`
	Name      string          `yaml:"name"`
	Timezone  string          `yaml:"timezone"`
	Feeds     []string        `yaml:"feeds,omitempty"`
	Calendars []string        `yaml:"calendars,omitempty"`
	Phases    map[string]bool `yaml:"phases,omitempty"`
}

// Location resolves the region's timezone, falling back to UTC.
func (r RegionConfig) Location() *time.Location {
	loc, err := time.LoadLocation(strings.TrimSpace(r.Timezone))
	if err != nil || loc == nil {
		return time.UTC
	}
	return loc
}

type DedupConfig struct {
	DateWindowDays    int     `yaml:"date_window_days"`
	TitleThreshold    float64 `yaml:"title_threshold"`
	RequireVenueMatch bool    `yaml:"require_venue_match"`
	VenueThreshold    float64 `yaml:"venue_threshold"`
}

type MatchingConfig struct {
	Threshold     float64 `yaml:"threshold"`
	WorkspaceName string  `yaml:"workspace_name"`
}

type SelectionConfig struct {
	TargetCount int     `yaml:"target_count"`
	MinQuality  float64 `yaml:"min_quality"`
}

type FactCheckConfig struct {
	MinConfidence float64 `yaml:"min_confidence"`
}

type TrafficConfig struct {
	DailyTarget          int                `yaml:"daily_target"`
	PublishStartHour     int                `yaml:"publish_start_hour"`
	PublishEndHour       int                `yaml:"publish_end_hour"`
	LateHourCutoff       int                `yaml:"late_hour_cutoff"`
	BreakingBonus        int                `yaml:"breaking_bonus"`
	UnderSaturationBonus int                `yaml:"under_saturation_bonus"`
	CategoryShares       map[string]float64 `yaml:"category_shares"`
	TopicCategories      map[string]string  `yaml:"topic_categories"`
	DefaultCategory      string             `yaml:"default_category"`
}

type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
}

type LanguageConfig struct {
	Allowed []string `yaml:"allowed"`
}

// WorkflowConfig is the explicit editorial configuration value handed to each
// phase call. Phase flags resolve per region, then globally, then default on.
type WorkflowConfig struct {
	Regions   []RegionConfig  `yaml:"regions"`
	Phases    map[string]bool `yaml:"phases,omitempty"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Matching  MatchingConfig  `yaml:"matching"`
	Selection SelectionConfig `yaml:"selection"`
	FactCheck FactCheckConfig `yaml:"fact_check"`
	Traffic   TrafficConfig   `yaml:"traffic"`
	Retry     RetryConfig     `yaml:"retry"`
	Language  LanguageConfig  `yaml:"language"`
}

// DefaultWorkflow returns the built-in editorial defaults.
func DefaultWorkflow() WorkflowConfig {
	return WorkflowConfig{
		Regions: []RegionConfig{
			{Slug: "default", Name: "Default Region", Timezone: "UTC"},
		},
		Dedup: DedupConfig{
			DateWindowDays:    0,
			TitleThreshold:    85,
			RequireVenueMatch: false,
			VenueThreshold:    80,
		},
		Matching: MatchingConfig{
			Threshold:     0.85,
			WorkspaceName: "townbeat-system",
		},
		Selection: SelectionConfig{
			TargetCount: 10,
			MinQuality:  70,
		},
		FactCheck: FactCheckConfig{
			MinConfidence: 60,
		},
		Traffic: TrafficConfig{
			DailyTarget:          20,
			PublishStartHour:     6,
			PublishEndHour:       22,
			LateHourCutoff:       18,
			BreakingBonus:        50,
			UnderSaturationBonus: 10,
			CategoryShares: map[string]float64{
				"news":      0.35,
				"events":    0.20,
				"business":  0.15,
				"sports":    0.10,
				"community": 0.10,
				"lifestyle": 0.10,
			},
			TopicCategories: map[string]string{
				"event":         "events",
				"concert":       "events",
				"festival":      "events",
				"business":      "business",
				"opening":       "business",
				"restaurant":    "business",
				"sports":        "sports",
				"team":          "sports",
				"community":     "community",
				"school":        "community",
				"volunteer":     "community",
				"food":          "lifestyle",
				"arts":          "lifestyle",
				"entertainment": "lifestyle",
			},
			DefaultCategory: "news",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelay:   500 * time.Millisecond,
		},
		Language: LanguageConfig{
			Allowed: []string{"en"},
		},
	}
}

// LoadWorkflow overlays the YAML file at path over the built-in defaults.
// An empty path returns the defaults unchanged.
func LoadWorkflow(path string) (WorkflowConfig, error) {
	cfg := DefaultWorkflow()
	path = strings.TrimSpace(path)
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return WorkflowConfig{}, fmt.Errorf("read editorial config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return WorkflowConfig{}, fmt.Errorf("parse editorial config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return WorkflowConfig{}, fmt.Errorf("editorial config %s: %w", path, err)
	}
	return cfg, nil
}

func (c WorkflowConfig) Validate() error {
	if len(c.Regions) == 0 {
		return fmt.Errorf("at least one region is required")
	}
	seen := make(map[string]struct{}, len(c.Regions))
	for _, region := range c.Regions {
		slug := strings.TrimSpace(region.Slug)
		if slug == "" {
			return fmt.Errorf("region slug must not be empty")
		}
		if _, dup := seen[slug]; dup {
			return fmt.Errorf("duplicate region slug %q", slug)
		}
		seen[slug] = struct{}{}
	}
	if c.Dedup.TitleThreshold < 0 || c.Dedup.TitleThreshold > 100 {
		return fmt.Errorf("dedup.title_threshold must be within [0,100]")
	}
	if c.Matching.Threshold < 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching.threshold must be within [0,1]")
	}
	if c.Selection.TargetCount < 0 {
		return fmt.Errorf("selection.target_count must be >= 0")
	}
	if c.Traffic.DailyTarget < 1 {
		return fmt.Errorf("traffic.daily_target must be >= 1")
	}
	if c.Traffic.PublishStartHour < 0 || c.Traffic.PublishStartHour > 23 ||
		c.Traffic.PublishEndHour < 0 || c.Traffic.PublishEndHour > 23 {
		return fmt.Errorf("traffic publish hours must be within [0,23]")
	}
	if c.Traffic.PublishStartHour >= c.Traffic.PublishEndHour {
		return fmt.Errorf("traffic.publish_start_hour must be before traffic.publish_end_hour")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be >= 1")
	}
	if c.Retry.BaseDelay < 0 {
		return fmt.Errorf("retry.base_delay must be >= 0")
	}
	return nil
}

// Region returns the configuration for slug, or false when unknown.
func (c WorkflowConfig) Region(slug string) (RegionConfig, bool) {
	for _, region := range c.Regions {
		if region.Slug == slug {
			return region, true
		}
	}
	return RegionConfig{}, false
}

// PhaseEnabled resolves a phase flag: per-region override first, then the
// global flag, then enabled by default.
func (c WorkflowConfig) PhaseEnabled(regionSlug, phase string) bool {
	if region, ok := c.Region(regionSlug); ok {
		if enabled, set := region.Phases[phase]; set {
			return enabled
		}
	}
	if enabled, set := c.Phases[phase]; set {
		return enabled
	}
	return true
}

// CategoryForTopic maps a draft's primary topic tag to a publishing category.
func (c WorkflowConfig) CategoryForTopic(topic string) string {
	normalized := strings.ToLower(strings.TrimSpace(topic))
	if normalized == "" {
		return c.Traffic.DefaultCategory
	}
	if category, ok := c.Traffic.TopicCategories[normalized]; ok {
		return category
	}
	// Substring fallback walks keywords in sorted order so the mapping stays
	// deterministic when several keywords match.
	keywords := make([]string, 0, len(c.Traffic.TopicCategories))
	for keyword := range c.Traffic.TopicCategories {
		keywords = append(keywords, keyword)
	}
	sort.Strings(keywords)
	for _, keyword := range keywords {
		if strings.Contains(normalized, keyword) {
			return c.Traffic.TopicCategories[keyword]
		}
	}
	return c.Traffic.DefaultCategory
}
