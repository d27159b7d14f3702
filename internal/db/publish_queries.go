package db

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"townbeat/internal/draft"
)

// PublishStore owns the published-post table and the pacing counters.
// It satisfies traffic.Counts.
type PublishStore struct {
	pool *Pool
}

func NewPublishStore(pool *Pool) *PublishStore {
	return &PublishStore{pool: pool}
}

func (s *PublishStore) PublishedSince(ctx context.Context, regionID int64, since time.Time) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM editorial.published_posts
		WHERE region_id = ? AND published_at >= ?`, regionID, since).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count published posts: %w", err)
	}
	return count, nil
}

func (s *PublishStore) PublishedSinceByCategory(ctx context.Context, regionID int64, since time.Time, category string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM editorial.published_posts
		WHERE region_id = ? AND published_at >= ? AND category = ?`, regionID, since, category).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count published posts by category: %w", err)
	}
	return count, nil
}

// Slugify reduces a title to a URL slug: lowercase, alphanumeric runs joined
// by single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastHyphen = false
		case !lastHyphen:
			b.WriteByte('-')
			lastHyphen = true
		}
	}
	slug := strings.Trim(b.String(), "-")
	if slug == "" {
		slug = "post"
	}
	return slug
}

// AllocateSlug returns the base slug, or the first free numeric-suffixed
// variant when the base is taken.
func (s *PublishStore) AllocateSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	candidate := base
	for suffix := 2; ; suffix++ {
		var exists bool
		err := s.pool.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM editorial.published_posts WHERE slug = ?
			)`, candidate).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check slug %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

// PublishArticle inserts the post and flips the draft to published in one
// transaction, guarded on the draft's current status.
func (s *PublishStore) PublishArticle(ctx context.Context, post *PublishedPost, fromStatus draft.Status) error {
	if post.ArticleDraftID == nil {
		return fmt.Errorf("published post needs an article draft id")
	}
	return s.publish(ctx, post, "editorial.article_drafts", "article_draft_id", *post.ArticleDraftID, fromStatus)
}

// PublishEvent inserts the post and flips the event draft to published.
func (s *PublishStore) PublishEvent(ctx context.Context, post *PublishedPost, fromStatus draft.Status) error {
	if post.EventDraftID == nil {
		return fmt.Errorf("published post needs an event draft id")
	}
	return s.publish(ctx, post, "editorial.event_drafts", "event_draft_id", *post.EventDraftID, fromStatus)
}

func (s *PublishStore) publish(ctx context.Context, post *PublishedPost, draftTable, draftIDColumn string, draftID int64, fromStatus draft.Status) error {
	tx := s.pool.GORM().WithContext(ctx).Begin()
	if tx.Error != nil {
		return fmt.Errorf("begin publish tx: %w", tx.Error)
	}
	defer tx.Rollback()

	guard := fmt.Sprintf(`
		UPDATE %s
		SET status = ?, updated_at = now()
		WHERE %s = ? AND status = ?`, draftTable, draftIDColumn)
	res := tx.Exec(guard, string(draft.StatusPublished), draftID, string(fromStatus))
	if res.Error != nil {
		return fmt.Errorf("mark draft %d published: %w", draftID, res.Error)
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("draft %d moved out of %q before publish", draftID, fromStatus)
	}

	if err := tx.Create(post).Error; err != nil {
		return fmt.Errorf("insert published post: %w", err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("commit publish tx: %w", err)
	}
	return nil
}
