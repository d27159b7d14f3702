package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"townbeat/internal/dedup"
	"townbeat/internal/draft"
)

// DraftStore is the draft persistence surface. It satisfies dedup.Store for
// both draft kinds; the kind argument routes to the matching table.
type DraftStore struct {
	pool *Pool
}

func NewDraftStore(pool *Pool) *DraftStore {
	return &DraftStore{pool: pool}
}

func draftTable(kind draft.Kind) (table, idColumn, titleColumn, dateColumn string, err error) {
	switch kind {
	case draft.KindArticle:
		return "editorial.article_drafts", "article_draft_id", "source_title", "signal_date", nil
	case draft.KindEvent:
		return "editorial.event_drafts", "event_draft_id", "title", "starts_on", nil
	default:
		return "", "", "", "", fmt.Errorf("unknown draft kind %q", kind)
	}
}

func (s *DraftStore) FindBySourceURL(ctx context.Context, scopeID int64, kind draft.Kind, normalizedURL string) (*dedup.Match, error) {
	table, idColumn, titleColumn, _, err := draftTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE region_id = ? AND lower(source_url) = ?
		ORDER BY %s ASC
		LIMIT 1`, idColumn, titleColumn, table, idColumn)

	return s.scanMatch(ctx, kind, query, scopeID, normalizedURL)
}

func (s *DraftStore) FindByExternalID(ctx context.Context, scopeID int64, kind draft.Kind, externalID string) (*dedup.Match, error) {
	table, idColumn, titleColumn, _, err := draftTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE region_id = ? AND external_id = ?
		ORDER BY %s ASC
		LIMIT 1`, idColumn, titleColumn, table, idColumn)

	return s.scanMatch(ctx, kind, query, scopeID, externalID)
}

func (s *DraftStore) FindByContentHash(ctx context.Context, scopeID int64, kind draft.Kind, hash []byte) (*dedup.Match, error) {
	table, idColumn, titleColumn, _, err := draftTable(kind)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
		SELECT %s, %s
		FROM %s
		WHERE region_id = ? AND content_hash = ?
		ORDER BY %s ASC
		LIMIT 1`, idColumn, titleColumn, table, idColumn)

	return s.scanMatch(ctx, kind, query, scopeID, hash)
}

func (s *DraftStore) scanMatch(ctx context.Context, kind draft.Kind, query string, args ...any) (*dedup.Match, error) {
	var match dedup.Match
	err := s.pool.QueryRow(ctx, query, args...).Scan(&match.DraftID, &match.Title)
	if err != nil {
		if IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	match.Kind = kind
	return &match, nil
}

func (s *DraftStore) ListInDateWindow(ctx context.Context, scopeID int64, kind draft.Kind, date *time.Time, windowDays int) ([]dedup.WindowRow, error) {
	table, idColumn, _, dateColumn, err := draftTable(kind)
	if err != nil {
		return nil, err
	}

	venueExpr := "''"
	if kind == draft.KindEvent {
		venueExpr = "COALESCE(venue_name, '')"
	}

	query, args := dateWindowQuery(table, idColumn, venueExpr, dateColumn, scopeID, date, windowDays)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dedup.WindowRow
	for rows.Next() {
		var row dedup.WindowRow
		if err := rows.Scan(&row.DraftID, &row.NormalizedTitle, &row.VenueName); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// dateWindowQuery builds the fuzzy-match corpus query. A dated candidate
// spans the +/- windowDays window; a dateless candidate is compared only
// against other dateless drafts, never the whole region corpus.
func dateWindowQuery(table, idColumn, venueExpr, dateColumn string, scopeID int64, date *time.Time, windowDays int) (string, []any) {
	query := fmt.Sprintf(`
		SELECT %s, normalized_title, %s
		FROM %s
		WHERE region_id = ?`, idColumn, venueExpr, table)
	args := []any{scopeID}

	if date == nil {
		query += fmt.Sprintf(" AND %s IS NULL", dateColumn)
	} else {
		if windowDays < 0 {
			windowDays = 0
		}
		day := date.UTC().Truncate(24 * time.Hour)
		query += fmt.Sprintf(" AND %s BETWEEN ? AND ?", dateColumn)
		args = append(args, day.AddDate(0, 0, -windowDays), day.AddDate(0, 0, windowDays))
	}
	query += fmt.Sprintf(" ORDER BY %s ASC", idColumn)
	return query, args
}

// InsertArticleDraft stores a newly admitted article draft and returns its id.
func (s *DraftStore) InsertArticleDraft(ctx context.Context, d *ArticleDraft) (int64, error) {
	if d.Status == "" {
		d.Status = string(draft.StatusCollected)
	}
	if err := s.pool.GORM().WithContext(ctx).Create(d).Error; err != nil {
		return 0, fmt.Errorf("insert article draft: %w", err)
	}
	return d.ArticleDraftID, nil
}

// InsertEventDraft stores a newly detected event draft and returns its id.
func (s *DraftStore) InsertEventDraft(ctx context.Context, d *EventDraft) (int64, error) {
	if d.Status == "" {
		d.Status = string(draft.StatusDetected)
	}
	if err := s.pool.GORM().WithContext(ctx).Create(d).Error; err != nil {
		return 0, fmt.Errorf("insert event draft: %w", err)
	}
	return d.EventDraftID, nil
}

// ListArticlesByStatus returns a region's article drafts in a status, oldest
// first. limit <= 0 means no limit.
func (s *DraftStore) ListArticlesByStatus(ctx context.Context, regionID int64, status draft.Status, limit int) ([]ArticleDraft, error) {
	q := s.pool.GORM().WithContext(ctx).
		Where("region_id = ? AND status = ?", regionID, string(status)).
		Order("article_draft_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var drafts []ArticleDraft
	if err := q.Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("list article drafts: %w", err)
	}
	return drafts, nil
}

// ListEventsByStatus returns a region's event drafts in a status, oldest first.
func (s *DraftStore) ListEventsByStatus(ctx context.Context, regionID int64, status draft.Status, limit int) ([]EventDraft, error) {
	q := s.pool.GORM().WithContext(ctx).
		Where("region_id = ? AND status = ?", regionID, string(status)).
		Order("event_draft_id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var drafts []EventDraft
	if err := q.Find(&drafts).Error; err != nil {
		return nil, fmt.Errorf("list event drafts: %w", err)
	}
	return drafts, nil
}

// AdvanceStatus moves one draft a single step forward. The update is guarded
// on the expected current status; a concurrent mutation makes it a no-op and
// returns false.
func (s *DraftStore) AdvanceStatus(ctx context.Context, kind draft.Kind, draftID int64, from draft.Status) (draft.Status, bool, error) {
	next, err := draft.Next(kind, from)
	if err != nil {
		return "", false, err
	}

	table, idColumn, _, _, err := draftTable(kind)
	if err != nil {
		return "", false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, updated_at = now()
		WHERE %s = ? AND status = ?`, table, idColumn)

	tag, err := s.pool.Exec(ctx, query, string(next), draftID, string(from))
	if err != nil {
		return "", false, fmt.Errorf("advance %s draft %d: %w", kind, draftID, err)
	}
	return next, tag.RowsAffected() == 1, nil
}

// Reject terminates a non-terminal draft with a reason. Guarded the same way
// as AdvanceStatus.
func (s *DraftStore) Reject(ctx context.Context, kind draft.Kind, draftID int64, from draft.Status, reason string) (bool, error) {
	if !draft.Rejectable(from) {
		return false, &draft.ErrIllegalTransition{Kind: kind, From: from}
	}

	table, idColumn, _, _, err := draftTable(kind)
	if err != nil {
		return false, err
	}

	query := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, rejection_reason = ?, updated_at = now()
		WHERE %s = ? AND status = ?`, table, idColumn)

	tag, err := s.pool.Exec(ctx, query, string(draft.StatusRejected), reason, draftID, string(from))
	if err != nil {
		return false, fmt.Errorf("reject %s draft %d: %w", kind, draftID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetArticleScores records curation scores on a collected draft.
func (s *DraftStore) SetArticleScores(ctx context.Context, draftID int64, relevance, quality float64, topics json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE editorial.article_drafts
		SET relevance_score = ?, quality_score = ?, topics = ?, updated_at = now()
		WHERE article_draft_id = ?`, relevance, quality, topics, draftID)
	if err != nil {
		return fmt.Errorf("set article scores for draft %d: %w", draftID, err)
	}
	return nil
}

// SetArticleOutline persists the generated outline. The outline is stored
// unconditionally, before any verdict on the draft.
func (s *DraftStore) SetArticleOutline(ctx context.Context, draftID int64, outline json.RawMessage) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE editorial.article_drafts
		SET outline = ?, updated_at = now()
		WHERE article_draft_id = ?`, outline, draftID)
	if err != nil {
		return fmt.Errorf("set article outline for draft %d: %w", draftID, err)
	}
	return nil
}

// SetArticleFactCheckConfidence records the mean claim confidence. confidence
// may be nil when no checks ran.
func (s *DraftStore) SetArticleFactCheckConfidence(ctx context.Context, draftID int64, confidence *float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE editorial.article_drafts
		SET fact_check_confidence = ?, updated_at = now()
		WHERE article_draft_id = ?`, confidence, draftID)
	if err != nil {
		return fmt.Errorf("set fact check confidence for draft %d: %w", draftID, err)
	}
	return nil
}

// SetArticleGenerated stores the generated content fields.
func (s *DraftStore) SetArticleGenerated(ctx context.Context, draftID int64, title, body, excerpt string, keywords json.RawMessage, imageURL, imageAttribution *string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE editorial.article_drafts
		SET generated_title = ?, generated_body = ?, generated_excerpt = ?,
		    seo_keywords = ?, image_url = ?, image_attribution = ?, updated_at = now()
		WHERE article_draft_id = ?`, title, body, excerpt, keywords, imageURL, imageAttribution, draftID)
	if err != nil {
		return fmt.Errorf("set generated content for draft %d: %w", draftID, err)
	}
	return nil
}

// SetEventExtraction records the entity resolution result and extraction
// confidence on an event draft.
func (s *DraftStore) SetEventExtraction(ctx context.Context, draftID int64, venueID, performerID *int64, confidence *float64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE editorial.event_drafts
		SET venue_id = ?, performer_id = ?, extraction_confidence = ?, updated_at = now()
		WHERE event_draft_id = ?`, venueID, performerID, confidence, draftID)
	if err != nil {
		return fmt.Errorf("set event extraction for draft %d: %w", draftID, err)
	}
	return nil
}

// GetArticle loads one article draft.
func (s *DraftStore) GetArticle(ctx context.Context, draftID int64) (*ArticleDraft, error) {
	var d ArticleDraft
	err := s.pool.GORM().WithContext(ctx).
		Where("article_draft_id = ?", draftID).
		First(&d).Error
	if err != nil {
		return nil, fmt.Errorf("load article draft %d: %w", draftID, err)
	}
	return &d, nil
}

// GetEvent loads one event draft.
func (s *DraftStore) GetEvent(ctx context.Context, draftID int64) (*EventDraft, error) {
	var d EventDraft
	err := s.pool.GORM().WithContext(ctx).
		Where("event_draft_id = ?", draftID).
		First(&d).Error
	if err != nil {
		return nil, fmt.Errorf("load event draft %d: %w", draftID, err)
	}
	return &d, nil
}
