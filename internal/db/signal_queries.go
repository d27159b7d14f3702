package db

import (
	"context"
	"fmt"
)

// SignalStore persists raw ingested signals.
type SignalStore struct {
	pool *Pool
}

func NewSignalStore(pool *Pool) *SignalStore {
	return &SignalStore{pool: pool}
}

// PayloadSeen is the cheap pre-insert check: an identical payload hash for
// the region means the exact record was already ingested.
func (s *SignalStore) PayloadSeen(ctx context.Context, regionID int64, payloadHash []byte) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM editorial.raw_signals
			WHERE region_id = ? AND payload_hash = ?
		)`, regionID, payloadHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check payload hash: %w", err)
	}
	return exists, nil
}

// ContentSeen runs the early-exit content-hash check before the full dedup
// ladder is consulted.
func (s *SignalStore) ContentSeen(ctx context.Context, regionID int64, contentHash []byte) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM editorial.raw_signals
			WHERE region_id = ? AND content_hash = ?
		)`, regionID, contentHash).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check content hash: %w", err)
	}
	return exists, nil
}

// Insert stores one raw signal and returns its id.
func (s *SignalStore) Insert(ctx context.Context, signal *RawSignal) (int64, error) {
	if err := s.pool.GORM().WithContext(ctx).Create(signal).Error; err != nil {
		return 0, fmt.Errorf("insert raw signal: %w", err)
	}
	return signal.RawSignalID, nil
}
