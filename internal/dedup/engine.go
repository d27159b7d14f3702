package dedup

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/config"
	"townbeat/internal/draft"
)

// Signal names recorded with each duplicate decision.
const (
	SignalSourceURL   = "source_url"
	SignalExternalID  = "external_id"
	SignalContentHash = "content_hash"
	SignalFuzzyTitle  = "fuzzy_title"
)

// Candidate is the normalized shape every raw-source record is reduced to
// before the duplicate check.
type Candidate struct {
	ScopeID    int64
	Kind       draft.Kind
	Title      string
	Date       *time.Time
	VenueName  string
	SourceURL  string
	ExternalID string
}

// Match identifies an existing draft that makes the candidate redundant.
type Match struct {
	DraftID int64
	Kind    draft.Kind
	Title   string
	Signal  string
	Score   float64
}

// WindowRow is the slim projection the fuzzy pass scans.
type WindowRow struct {
	DraftID         int64
	NormalizedTitle string
	VenueName       string
}

// Store is the lookup surface the engine needs. The db pool implements it;
// tests use an in-memory fake. ListInDateWindow spans the +/- windowDays
// window around date; a nil date restricts the scan to dateless drafts.
type Store interface {
	FindBySourceURL(ctx context.Context, scopeID int64, kind draft.Kind, normalizedURL string) (*Match, error)
	FindByExternalID(ctx context.Context, scopeID int64, kind draft.Kind, externalID string) (*Match, error)
	FindByContentHash(ctx context.Context, scopeID int64, kind draft.Kind, hash []byte) (*Match, error)
	ListInDateWindow(ctx context.Context, scopeID int64, kind draft.Kind, date *time.Time, windowDays int) ([]WindowRow, error)
}

type Engine struct {
	store  Store
	cfg    config.DedupConfig
	logger zerolog.Logger
}

func NewEngine(store Store, cfg config.DedupConfig, logger zerolog.Logger) *Engine {
	return &Engine{store: store, cfg: cfg, logger: logger}
}

// FindDuplicate walks the layered key strategy, cheapest first: exact source
// URL, exact external id, content hash, then the fuzzy title scan. The first
// hit wins; nil means the candidate is materially new.
func (e *Engine) FindDuplicate(ctx context.Context, candidate Candidate) (*Match, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("dedup engine is not initialized")
	}

	if url := NormalizeField(candidate.SourceURL); url != "" {
		match, err := e.store.FindBySourceURL(ctx, candidate.ScopeID, candidate.Kind, url)
		if err != nil {
			return nil, fmt.Errorf("dedup source url lookup: %w", err)
		}
		if match != nil {
			match.Signal = SignalSourceURL
			return match, nil
		}
	}

	if externalID := strings.TrimSpace(candidate.ExternalID); externalID != "" {
		match, err := e.store.FindByExternalID(ctx, candidate.ScopeID, candidate.Kind, externalID)
		if err != nil {
			return nil, fmt.Errorf("dedup external id lookup: %w", err)
		}
		if match != nil {
			match.Signal = SignalExternalID
			return match, nil
		}
	}

	hash := GenerateContentHash(candidate.Title, candidate.Date, candidate.VenueName, candidate.SourceURL)
	match, err := e.store.FindByContentHash(ctx, candidate.ScopeID, candidate.Kind, hash)
	if err != nil {
		return nil, fmt.Errorf("dedup content hash lookup: %w", err)
	}
	if match != nil {
		match.Signal = SignalContentHash
		return match, nil
	}

	return e.findFuzzy(ctx, candidate)
}

func (e *Engine) findFuzzy(ctx context.Context, candidate Candidate) (*Match, error) {
	title := NormalizeField(candidate.Title)
	if title == "" {
		return nil, nil
	}

	rows, err := e.store.ListInDateWindow(ctx, candidate.ScopeID, candidate.Kind, candidate.Date, e.cfg.DateWindowDays)
	if err != nil {
		return nil, fmt.Errorf("dedup date window scan: %w", err)
	}

	venue := NormalizeField(candidate.VenueName)
	for _, row := range rows {
		score := SimilarityPercent(title, row.NormalizedTitle)
		if score < e.cfg.TitleThreshold {
			continue
		}
		if e.cfg.RequireVenueMatch {
			venueScore := SimilarityPercent(venue, NormalizeField(row.VenueName))
			if venueScore < e.cfg.VenueThreshold {
				continue
			}
		}

		e.logger.Debug().
			Int64("draft_id", row.DraftID).
			Float64("title_similarity", score).
			Msg("fuzzy duplicate accepted")

		return &Match{
			DraftID: row.DraftID,
			Kind:    candidate.Kind,
			Title:   row.NormalizedTitle,
			Signal:  SignalFuzzyTitle,
			Score:   score,
		}, nil
	}

	return nil, nil
}

// NormalizeField lowercases, trims, and collapses internal whitespace.
func NormalizeField(value string) string {
	lowered := strings.ToLower(strings.TrimSpace(value))
	if lowered == "" {
		return ""
	}
	return strings.Join(strings.Fields(lowered), " ")
}

// GenerateContentHash computes the reproducible strong key
// SHA256(normalized_title | date(YYYY-MM-DD) | normalized_venue | normalized_url).
// It is pure so ingestion can run an early-exit check before constructing a
// full candidate.
func GenerateContentHash(title string, date *time.Time, venue, url string) []byte {
	dateKey := ""
	if date != nil {
		dateKey = date.UTC().Format("2006-01-02")
	}
	payload := strings.Join([]string{
		NormalizeField(title),
		dateKey,
		NormalizeField(venue),
		NormalizeField(url),
	}, "|")
	sum := sha256.Sum256([]byte(payload))
	return sum[:]
}

// SimilarityPercent is a normalized edit-distance percentage in [0,100].
// Empty-vs-empty counts as identical.
func SimilarityPercent(a, b string) float64 {
	if a == b {
		return 100
	}
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 100
	}
	distance := levenshtein([]rune(a), []rune(b))
	return (1 - float64(distance)/float64(longest)) * 100
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			current[j] = min(previous[j]+1, current[j-1]+1, previous[j-1]+cost)
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}
