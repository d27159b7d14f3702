package workflow

import (
	"context"
	"encoding/json"
	"time"

	"townbeat/internal/db"
	"townbeat/internal/draft"
	"townbeat/internal/source"
)

// Persistence surfaces consumed by the orchestrator. The db package
// implements all of them; workflow tests swap in in-memory fakes.

type RegionRepo interface {
	Ensure(ctx context.Context, slug, name, timezone string) (int64, error)
}

type SignalRepo interface {
	PayloadSeen(ctx context.Context, regionID int64, payloadHash []byte) (bool, error)
	ContentSeen(ctx context.Context, regionID int64, contentHash []byte) (bool, error)
	Insert(ctx context.Context, signal *db.RawSignal) (int64, error)
}

type DraftRepo interface {
	InsertArticleDraft(ctx context.Context, d *db.ArticleDraft) (int64, error)
	InsertEventDraft(ctx context.Context, d *db.EventDraft) (int64, error)
	ListArticlesByStatus(ctx context.Context, regionID int64, status draft.Status, limit int) ([]db.ArticleDraft, error)
	ListEventsByStatus(ctx context.Context, regionID int64, status draft.Status, limit int) ([]db.EventDraft, error)
	AdvanceStatus(ctx context.Context, kind draft.Kind, draftID int64, from draft.Status) (draft.Status, bool, error)
	Reject(ctx context.Context, kind draft.Kind, draftID int64, from draft.Status, reason string) (bool, error)
	SetArticleScores(ctx context.Context, draftID int64, relevance, quality float64, topics json.RawMessage) error
	SetArticleOutline(ctx context.Context, draftID int64, outline json.RawMessage) error
	SetArticleFactCheckConfidence(ctx context.Context, draftID int64, confidence *float64) error
	SetArticleGenerated(ctx context.Context, draftID int64, title, body, excerpt string, keywords json.RawMessage, imageURL, imageAttribution *string) error
	SetEventExtraction(ctx context.Context, draftID int64, venueID, performerID *int64, confidence *float64) error
}

type PublishRepo interface {
	AllocateSlug(ctx context.Context, title string) (string, error)
	PublishArticle(ctx context.Context, post *db.PublishedPost, fromStatus draft.Status) error
	PublishEvent(ctx context.Context, post *db.PublishedPost, fromStatus draft.Status) error
}

type FactCheckRepo interface {
	ListFactChecks(ctx context.Context, articleDraftID int64) ([]db.FactCheck, error)
}

type RunRepo interface {
	Start(ctx context.Context, regionSlug, mode string) (int64, error)
	Finish(ctx context.Context, runID int64, phaseCounts map[string]int, runErr error) error
	Checkpoint(ctx context.Context, regionID int64, category string) (*db.SourceCheckpoint, error)
	TouchCheckpoint(ctx context.Context, regionID int64, category string, at time.Time, fetched bool) error
}

// FeedSource fetches article feeds; CalendarSource scrapes venue calendars.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) ([]source.FeedItem, error)
}

type CalendarSource interface {
	Fetch(ctx context.Context, pageURL string) ([]source.CalendarEvent, error)
}

// ReadableSource extracts the readable body text of an article page. The
// collection phase uses it to fill in feed items that carry no summary.
type ReadableSource interface {
	Extract(ctx context.Context, pageURL, title string) (string, error)
}

// Discoverer proposes new feed URLs for a region. Discovery is optional and
// runs on a monthly cadence.
type Discoverer interface {
	DiscoverSources(ctx context.Context, regionSlug string) ([]string, error)
}
