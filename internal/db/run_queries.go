package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Workflow run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// RunStore records the per-region workflow run ledger and source checkpoints.
type RunStore struct {
	pool *Pool
}

func NewRunStore(pool *Pool) *RunStore {
	return &RunStore{pool: pool}
}

// Start opens a run ledger row and returns its id.
func (s *RunStore) Start(ctx context.Context, regionSlug, mode string) (int64, error) {
	run := &WorkflowRun{
		RegionSlug: regionSlug,
		Mode:       mode,
		Status:     RunStatusRunning,
	}
	if err := s.pool.GORM().WithContext(ctx).Create(run).Error; err != nil {
		return 0, fmt.Errorf("start workflow run for %q: %w", regionSlug, err)
	}
	return run.RunID, nil
}

// Finish closes a run with its per-phase counters and outcome.
func (s *RunStore) Finish(ctx context.Context, runID int64, phaseCounts map[string]int, runErr error) error {
	counts, err := json.Marshal(phaseCounts)
	if err != nil {
		return fmt.Errorf("encode phase counts: %w", err)
	}

	status := RunStatusSucceeded
	var message *string
	if runErr != nil {
		status = RunStatusFailed
		text := runErr.Error()
		message = &text
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE editorial.workflow_runs
		SET finished_at = now(), status = ?, phase_counts = ?, error_message = ?
		WHERE run_id = ?`, status, counts, message, runID)
	if err != nil {
		return fmt.Errorf("finish workflow run %d: %w", runID, err)
	}
	return nil
}

// ListRecent returns the latest runs for a region, newest first.
func (s *RunStore) ListRecent(ctx context.Context, regionSlug string, limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var runs []WorkflowRun
	err := s.pool.GORM().WithContext(ctx).
		Where("region_slug = ?", regionSlug).
		Order("run_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("list workflow runs for %q: %w", regionSlug, err)
	}
	return runs, nil
}

// Checkpoint returns the stored frequency-gate timestamps for region+category,
// or nil when the pair never ran.
func (s *RunStore) Checkpoint(ctx context.Context, regionID int64, category string) (*SourceCheckpoint, error) {
	var cp SourceCheckpoint
	err := s.pool.QueryRow(ctx, `
		SELECT last_run_at, last_fetched_at
		FROM editorial.source_checkpoints
		WHERE region_id = ? AND category = ?`, regionID, category).
		Scan(&cp.LastRunAt, &cp.LastFetchedAt)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load checkpoint %d/%s: %w", regionID, category, err)
	}
	cp.RegionID = regionID
	cp.Category = category
	return &cp, nil
}

// TouchCheckpoint upserts the run timestamp, and the fetch timestamp when
// fetched is true.
func (s *RunStore) TouchCheckpoint(ctx context.Context, regionID int64, category string, at time.Time, fetched bool) error {
	var err error
	if fetched {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO editorial.source_checkpoints (region_id, category, last_run_at, last_fetched_at, updated_at)
			VALUES (?, ?, ?, ?, now())
			ON CONFLICT (region_id, category) DO UPDATE
			SET last_run_at = EXCLUDED.last_run_at, last_fetched_at = EXCLUDED.last_fetched_at, updated_at = now()`,
			regionID, category, at, at)
	} else {
		_, err = s.pool.Exec(ctx, `
			INSERT INTO editorial.source_checkpoints (region_id, category, last_run_at, updated_at)
			VALUES (?, ?, ?, now())
			ON CONFLICT (region_id, category) DO UPDATE
			SET last_run_at = EXCLUDED.last_run_at, updated_at = now()`,
			regionID, category, at)
	}
	if err != nil {
		return fmt.Errorf("touch checkpoint %d/%s: %w", regionID, category, err)
	}
	return nil
}
