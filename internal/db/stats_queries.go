package db

import (
	"context"
	"fmt"
	"time"
)

// StatusCount is one (status, count) pair for a draft table.
type StatusCount struct {
	Status string
	Count  int
}

// DailyCount is one (day, count) pair of published posts.
type DailyCount struct {
	Day   time.Time
	Count int
}

// RegionStats aggregates a region's pipeline state for the stats surfaces.
type RegionStats struct {
	RegionSlug     string
	Articles       []StatusCount
	Events         []StatusCount
	PublishedByDay []DailyCount
}

// StatsStore serves the read-only aggregate queries.
type StatsStore struct {
	pool *Pool
}

func NewStatsStore(pool *Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// RegionStats aggregates draft status counts and the publish history of the
// last days for one region.
func (s *StatsStore) RegionStats(ctx context.Context, regionID int64, regionSlug string, days int) (*RegionStats, error) {
	if days <= 0 {
		days = 7
	}

	articles, err := s.statusCounts(ctx, "editorial.article_drafts", regionID)
	if err != nil {
		return nil, fmt.Errorf("article status counts: %w", err)
	}
	events, err := s.statusCounts(ctx, "editorial.event_drafts", regionID)
	if err != nil {
		return nil, fmt.Errorf("event status counts: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT date_trunc('day', published_at) AS day, COUNT(*)
		FROM editorial.published_posts
		WHERE region_id = ? AND published_at >= now() - make_interval(days => ?)
		GROUP BY day
		ORDER BY day DESC`, regionID, days)
	if err != nil {
		return nil, fmt.Errorf("published by day: %w", err)
	}
	defer rows.Close()

	var daily []DailyCount
	for rows.Next() {
		var row DailyCount
		if err := rows.Scan(&row.Day, &row.Count); err != nil {
			return nil, err
		}
		daily = append(daily, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &RegionStats{
		RegionSlug:     regionSlug,
		Articles:       articles,
		Events:         events,
		PublishedByDay: daily,
	}, nil
}

func (s *StatsStore) statusCounts(ctx context.Context, table string, regionID int64) ([]StatusCount, error) {
	query := fmt.Sprintf(`
		SELECT status, COUNT(*)
		FROM %s
		WHERE region_id = ?
		GROUP BY status
		ORDER BY status ASC`, table)

	rows, err := s.pool.Query(ctx, query, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusCount
	for rows.Next() {
		var row StatusCount
		if err := rows.Scan(&row.Status, &row.Count); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
