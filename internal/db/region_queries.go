package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// RegionStore maps configured regions to persisted rows.
type RegionStore struct {
	pool *Pool
}

func NewRegionStore(pool *Pool) *RegionStore {
	return &RegionStore{pool: pool}
}

// Ensure upserts a region by slug, refreshing name and timezone from the
// configuration, and returns its id.
func (s *RegionStore) Ensure(ctx context.Context, slug, name, timezone string) (int64, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO editorial.regions (slug, name, timezone)
		VALUES (?, ?, ?)
		ON CONFLICT (slug) DO UPDATE
		SET name = EXCLUDED.name, timezone = EXCLUDED.timezone, updated_at = now()`,
		slug, name, timezone)
	if err != nil {
		return 0, fmt.Errorf("ensure region %q: %w", slug, err)
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		SELECT region_id FROM editorial.regions WHERE slug = ?`, slug).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("load region %q: %w", slug, err)
	}
	return id, nil
}

// BySlug loads one region; nil means the slug is unknown.
func (s *RegionStore) BySlug(ctx context.Context, slug string) (*Region, error) {
	var region Region
	err := s.pool.GORM().WithContext(ctx).Where("slug = ?", slug).First(&region).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load region %q: %w", slug, err)
	}
	return &region, nil
}

// List returns all enabled regions ordered by slug.
func (s *RegionStore) List(ctx context.Context) ([]Region, error) {
	var regions []Region
	err := s.pool.GORM().WithContext(ctx).
		Where("enabled").
		Order("slug ASC").
		Find(&regions).Error
	if err != nil {
		return nil, fmt.Errorf("list regions: %w", err)
	}
	return regions, nil
}
