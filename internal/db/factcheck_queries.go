package db

import (
	"context"
	"encoding/json"
	"fmt"

	"townbeat/internal/factcheck"
)

// FactCheckStore persists per-claim verification rows. It satisfies
// factcheck.Store.
type FactCheckStore struct {
	pool *Pool
}

func NewFactCheckStore(pool *Pool) *FactCheckStore {
	return &FactCheckStore{pool: pool}
}

func (s *FactCheckStore) InsertFactCheck(ctx context.Context, record factcheck.Record) (err error) {
	var evidence json.RawMessage
	if len(record.Sources) > 0 {
		evidence, err = json.Marshal(record.Sources)
		if err != nil {
			return fmt.Errorf("encode fact check evidence: %w", err)
		}
	}

	var rationale *string
	if record.Rationale != "" {
		rationale = &record.Rationale
	}

	row := &FactCheck{
		ArticleDraftID:     record.ArticleDraftID,
		ClaimText:          record.ClaimText,
		VerificationResult: record.Result,
		ConfidenceScore:    record.Confidence,
		Evidence:           evidence,
		Rationale:          rationale,
	}
	if err := s.pool.GORM().WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("insert fact check: %w", err)
	}
	return nil
}

// ListFactChecks returns all verification rows for one article draft.
func (s *FactCheckStore) ListFactChecks(ctx context.Context, articleDraftID int64) ([]FactCheck, error) {
	var checks []FactCheck
	err := s.pool.GORM().WithContext(ctx).
		Where("article_draft_id = ?", articleDraftID).
		Order("fact_check_id ASC").
		Find(&checks).Error
	if err != nil {
		return nil, fmt.Errorf("list fact checks for draft %d: %w", articleDraftID, err)
	}
	return checks, nil
}
