package match

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"townbeat/internal/ai"
	"townbeat/internal/config"
	"townbeat/internal/dedup"
	"townbeat/internal/retry"
)

// EntityKind selects which corpus a name resolves against.
type EntityKind string

const (
	KindVenue     EntityKind = "venue"
	KindPerformer EntityKind = "performer"
)

// Entity is a resolved venue or performer reference.
type Entity struct {
	ID   int64
	UUID string
	Name string
	Kind EntityKind
}

// NameRow is the slim projection the fuzzy scan walks.
type NameRow struct {
	ID             int64
	UUID           string
	Name           string
	NormalizedName string
}

// NewEntity carries the fields for a create-if-absent insert.
type NewEntity struct {
	Kind           EntityKind
	Name           string
	NormalizedName string
	Address        *string
	Latitude       *float64
	Longitude      *float64
	PostalCode     *string
	PlaceID        *string
}

// Store is the persistence surface. CreateEntityIfAbsent must run under a
// transactional guard: when a concurrent call already inserted the same
// normalized name, it returns the existing row instead of a duplicate.
type Store interface {
	EnsureWorkspace(ctx context.Context, name string, synthetic bool) (int64, error)
	FindEntityByNormalizedName(ctx context.Context, workspaceID int64, kind EntityKind, normalizedName string) (*Entity, error)
	ListEntityNames(ctx context.Context, workspaceID int64, kind EntityKind) ([]NameRow, error)
	CreateEntityIfAbsent(ctx context.Context, workspaceID int64, entity NewEntity) (*Entity, error)
}

// Service resolves free-text venue/performer names to entities, creating them
// under the synthetic system workspace when nothing similar exists.
type Service struct {
	store    Store
	cfg      config.MatchingConfig
	geocoder ai.Geocoder
	policy   retry.Policy
	logger   zerolog.Logger

	mu           sync.Mutex
	workspaceIDs map[string]int64
}

func NewService(store Store, cfg config.MatchingConfig, geocoder ai.Geocoder, policy retry.Policy, logger zerolog.Logger) *Service {
	return &Service{
		store:        store,
		cfg:          cfg,
		geocoder:     geocoder,
		policy:       policy,
		logger:       logger,
		workspaceIDs: map[string]int64{},
	}
}

// MatchOrCreateVenue resolves a venue name. Geocoding enrichment is
// best-effort: a geocoder failure still creates the venue.
func (s *Service) MatchOrCreateVenue(ctx context.Context, name, address, regionHint string) (*Entity, error) {
	return s.matchOrCreate(ctx, KindVenue, name, func(ctx context.Context, entity *NewEntity) {
		if strings.TrimSpace(address) != "" {
			addr := strings.TrimSpace(address)
			entity.Address = &addr
		}
		if s.geocoder == nil {
			return
		}
		var located *ai.GeocodeResult
		err := s.policy.Do(ctx, func(ctx context.Context) error {
			result, geoErr := s.geocoder.GeocodeVenue(ctx, name, address, regionHint)
			if geoErr != nil {
				return geoErr
			}
			located = result
			return nil
		})
		if err != nil {
			s.logger.Warn().Err(err).Str("venue", name).Msg("geocoding failed; creating venue without coordinates")
			return
		}
		if located == nil {
			return
		}
		entity.Latitude = &located.Latitude
		entity.Longitude = &located.Longitude
		if located.PostalCode != "" {
			postal := located.PostalCode
			entity.PostalCode = &postal
		}
		if located.PlaceID != "" {
			place := located.PlaceID
			entity.PlaceID = &place
		}
	})
}

// MatchOrCreatePerformer resolves a performer name.
func (s *Service) MatchOrCreatePerformer(ctx context.Context, name string) (*Entity, error) {
	return s.matchOrCreate(ctx, KindPerformer, name, nil)
}

func (s *Service) matchOrCreate(ctx context.Context, kind EntityKind, name string, enrich func(context.Context, *NewEntity)) (*Entity, error) {
	if s == nil || s.store == nil {
		return nil, fmt.Errorf("match service is not initialized")
	}

	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, nil
	}
	normalized := dedup.NormalizeField(trimmed)

	workspaceID, err := s.systemWorkspace(ctx)
	if err != nil {
		return nil, err
	}

	existing, err := s.store.FindEntityByNormalizedName(ctx, workspaceID, kind, normalized)
	if err != nil {
		return nil, fmt.Errorf("exact %s lookup: %w", kind, err)
	}
	if existing != nil {
		return existing, nil
	}

	best, bestScore, err := s.bestFuzzyMatch(ctx, workspaceID, kind, normalized)
	if err != nil {
		return nil, err
	}
	if best != nil && bestScore >= s.cfg.Threshold {
		s.logger.Debug().
			Str("kind", string(kind)).
			Str("input", trimmed).
			Str("matched", best.Name).
			Float64("score", bestScore).
			Msg("fuzzy name match accepted")
		return best, nil
	}

	entity := NewEntity{Kind: kind, Name: trimmed, NormalizedName: normalized}
	if enrich != nil {
		enrich(ctx, &entity)
	}

	created, err := s.store.CreateEntityIfAbsent(ctx, workspaceID, entity)
	if err != nil {
		return nil, fmt.Errorf("create %s %q: %w", kind, trimmed, err)
	}
	return created, nil
}

func (s *Service) bestFuzzyMatch(ctx context.Context, workspaceID int64, kind EntityKind, normalized string) (*Entity, float64, error) {
	rows, err := s.store.ListEntityNames(ctx, workspaceID, kind)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s corpus: %w", kind, err)
	}

	var best *Entity
	bestScore := -1.0
	for _, row := range rows {
		score := NameSimilarity(normalized, row.NormalizedName)
		if score > bestScore {
			bestScore = score
			best = &Entity{ID: row.ID, UUID: row.UUID, Name: row.Name, Kind: kind}
		}
	}
	return best, bestScore, nil
}

// systemWorkspace lazily resolves the synthetic workspace and caches the id
// by name for the lifetime of the service.
func (s *Service) systemWorkspace(ctx context.Context) (int64, error) {
	name := strings.TrimSpace(s.cfg.WorkspaceName)
	if name == "" {
		name = "townbeat-system"
	}

	s.mu.Lock()
	cached, ok := s.workspaceIDs[name]
	s.mu.Unlock()
	if ok {
		return cached, nil
	}

	id, err := s.store.EnsureWorkspace(ctx, name, true)
	if err != nil {
		return 0, fmt.Errorf("ensure system workspace %q: %w", name, err)
	}

	s.mu.Lock()
	s.workspaceIDs[name] = id
	s.mu.Unlock()
	return id, nil
}

// NameSimilarity scores two normalized names: 1.0 exact, 0.9 when one is a
// substring of the other, otherwise 1 - levenshtein/max(len).
func NameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	if a == "" || b == "" {
		return 0
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return 0.9
	}
	return dedup.SimilarityPercent(a, b) / 100
}
