package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/ai"
	"townbeat/internal/config"
	"townbeat/internal/db"
	"townbeat/internal/dedup"
	"townbeat/internal/draft"
	"townbeat/internal/factcheck"
	"townbeat/internal/globaltime"
	"townbeat/internal/match"
	"townbeat/internal/retry"
	"townbeat/internal/source"
	"townbeat/internal/traffic"
)

// memStore backs every repo interface the orchestrator consumes, plus the
// dedup, match, and traffic lookups.
type memStore struct {
	mu          sync.Mutex
	nextID      int64
	regions     map[string]int64
	signals     []*db.RawSignal
	articles    map[int64]*db.ArticleDraft
	events      map[int64]*db.EventDraft
	posts       []*db.PublishedPost
	factChecks  []*db.FactCheck
	workspaces  map[string]int64
	entities    map[string]*match.Entity
	runs        map[int64]*db.WorkflowRun
	checkpoints map[string]*db.SourceCheckpoint
}

func newMemStore() *memStore {
	return &memStore{
		regions:     map[string]int64{},
		articles:    map[int64]*db.ArticleDraft{},
		events:      map[int64]*db.EventDraft{},
		workspaces:  map[string]int64{},
		entities:    map[string]*match.Entity{},
		runs:        map[int64]*db.WorkflowRun{},
		checkpoints: map[string]*db.SourceCheckpoint{},
	}
}

func (m *memStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memStore) Ensure(_ context.Context, slug, _, _ string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.regions[slug]; ok {
		return id, nil
	}
	id := m.id()
	m.regions[slug] = id
	return id, nil
}

func (m *memStore) PayloadSeen(_ context.Context, regionID int64, hash []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signals {
		if s.RegionID == regionID && string(s.PayloadHash) == string(hash) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ContentSeen(_ context.Context, regionID int64, hash []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.signals {
		if s.RegionID == regionID && string(s.ContentHash) == string(hash) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Insert(_ context.Context, signal *db.RawSignal) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	signal.RawSignalID = m.id()
	m.signals = append(m.signals, signal)
	return signal.RawSignalID, nil
}

func (m *memStore) InsertArticleDraft(_ context.Context, d *db.ArticleDraft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ArticleDraftID = m.id()
	m.articles[d.ArticleDraftID] = d
	return d.ArticleDraftID, nil
}

func (m *memStore) InsertEventDraft(_ context.Context, d *db.EventDraft) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.EventDraftID = m.id()
	m.events[d.EventDraftID] = d
	return d.EventDraftID, nil
}

func (m *memStore) ListArticlesByStatus(_ context.Context, regionID int64, status draft.Status, _ int) ([]db.ArticleDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.ArticleDraft
	for id := int64(1); id <= m.nextID; id++ {
		if d, ok := m.articles[id]; ok && d.RegionID == regionID && d.Status == string(status) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) ListEventsByStatus(_ context.Context, regionID int64, status draft.Status, _ int) ([]db.EventDraft, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.EventDraft
	for id := int64(1); id <= m.nextID; id++ {
		if d, ok := m.events[id]; ok && d.RegionID == regionID && d.Status == string(status) {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (m *memStore) AdvanceStatus(_ context.Context, kind draft.Kind, draftID int64, from draft.Status) (draft.Status, bool, error) {
	next, err := draft.Next(kind, from)
	if err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == draft.KindArticle {
		d, ok := m.articles[draftID]
		if !ok || d.Status != string(from) {
			return next, false, nil
		}
		d.Status = string(next)
		return next, true, nil
	}
	d, ok := m.events[draftID]
	if !ok || d.Status != string(from) {
		return next, false, nil
	}
	d.Status = string(next)
	return next, true, nil
}

func (m *memStore) Reject(_ context.Context, kind draft.Kind, draftID int64, from draft.Status, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == draft.KindArticle {
		d, ok := m.articles[draftID]
		if !ok || d.Status != string(from) {
			return false, nil
		}
		d.Status = string(draft.StatusRejected)
		d.RejectionReason = &reason
		return true, nil
	}
	d, ok := m.events[draftID]
	if !ok || d.Status != string(from) {
		return false, nil
	}
	d.Status = string(draft.StatusRejected)
	d.RejectionReason = &reason
	return true, nil
}

func (m *memStore) SetArticleScores(_ context.Context, draftID int64, relevance, quality float64, topics json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.articles[draftID]
	d.RelevanceScore = &relevance
	d.QualityScore = &quality
	d.Topics = topics
	return nil
}

func (m *memStore) SetArticleOutline(_ context.Context, draftID int64, outline json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[draftID].Outline = outline
	return nil
}

func (m *memStore) SetArticleFactCheckConfidence(_ context.Context, draftID int64, confidence *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[draftID].FactCheckConfidence = confidence
	return nil
}

func (m *memStore) SetArticleGenerated(_ context.Context, draftID int64, title, body, excerpt string, keywords json.RawMessage, imageURL, imageAttribution *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.articles[draftID]
	d.GeneratedTitle = &title
	d.GeneratedBody = &body
	d.GeneratedExcerpt = &excerpt
	d.SEOKeywords = keywords
	d.ImageURL = imageURL
	d.ImageAttribution = imageAttribution
	return nil
}

func (m *memStore) SetEventExtraction(_ context.Context, draftID int64, venueID, performerID *int64, confidence *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.events[draftID]
	d.VenueID = venueID
	d.PerformerID = performerID
	d.ExtractionConfidence = confidence
	return nil
}

func (m *memStore) AllocateSlug(_ context.Context, title string) (string, error) {
	base := db.Slugify(title)
	m.mu.Lock()
	defer m.mu.Unlock()
	candidate := base
	for suffix := 2; ; suffix++ {
		taken := false
		for _, p := range m.posts {
			if p.Slug == candidate {
				taken = true
				break
			}
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, suffix)
	}
}

func (m *memStore) PublishArticle(_ context.Context, post *db.PublishedPost, from draft.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.articles[*post.ArticleDraftID]
	if !ok || d.Status != string(from) {
		return fmt.Errorf("draft %d not in %q", *post.ArticleDraftID, from)
	}
	d.Status = string(draft.StatusPublished)
	m.posts = append(m.posts, post)
	return nil
}

func (m *memStore) PublishEvent(_ context.Context, post *db.PublishedPost, from draft.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.events[*post.EventDraftID]
	if !ok || d.Status != string(from) {
		return fmt.Errorf("draft %d not in %q", *post.EventDraftID, from)
	}
	d.Status = string(draft.StatusPublished)
	m.posts = append(m.posts, post)
	return nil
}

func (m *memStore) ListFactChecks(_ context.Context, articleDraftID int64) ([]db.FactCheck, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []db.FactCheck
	for _, c := range m.factChecks {
		if c.ArticleDraftID == articleDraftID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) InsertFactCheck(_ context.Context, record factcheck.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factChecks = append(m.factChecks, &db.FactCheck{
		FactCheckID:        m.id(),
		ArticleDraftID:     record.ArticleDraftID,
		ClaimText:          record.ClaimText,
		VerificationResult: record.Result,
		ConfidenceScore:    record.Confidence,
	})
	return nil
}

func (m *memStore) Start(_ context.Context, regionSlug, mode string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.id()
	m.runs[id] = &db.WorkflowRun{RunID: id, RegionSlug: regionSlug, Mode: mode, Status: db.RunStatusRunning}
	return id, nil
}

func (m *memStore) Finish(_ context.Context, runID int64, counts map[string]int, runErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := m.runs[runID]
	if runErr != nil {
		run.Status = db.RunStatusFailed
	} else {
		run.Status = db.RunStatusSucceeded
	}
	encoded, _ := json.Marshal(counts)
	run.PhaseCounts = encoded
	return nil
}

func (m *memStore) Checkpoint(_ context.Context, regionID int64, category string) (*db.SourceCheckpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := m.checkpoints[fmt.Sprintf("%d|%s", regionID, category)]
	return cp, nil
}

func (m *memStore) TouchCheckpoint(_ context.Context, regionID int64, category string, at time.Time, _ bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkpoints[fmt.Sprintf("%d|%s", regionID, category)] = &db.SourceCheckpoint{
		RegionID: regionID, Category: category, LastRunAt: &at,
	}
	return nil
}

// dedup.Store over the in-memory drafts.

func (m *memStore) FindBySourceURL(_ context.Context, scopeID int64, kind draft.Kind, normalizedURL string) (*dedup.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == draft.KindArticle {
		for _, d := range m.articles {
			if d.RegionID == scopeID && d.SourceURL != nil && strings.ToLower(*d.SourceURL) == normalizedURL {
				return &dedup.Match{DraftID: d.ArticleDraftID, Kind: kind}, nil
			}
		}
		return nil, nil
	}
	for _, d := range m.events {
		if d.RegionID == scopeID && d.SourceURL != nil && strings.ToLower(*d.SourceURL) == normalizedURL {
			return &dedup.Match{DraftID: d.EventDraftID, Kind: kind}, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByExternalID(_ context.Context, scopeID int64, kind draft.Kind, externalID string) (*dedup.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == draft.KindArticle {
		for _, d := range m.articles {
			if d.RegionID == scopeID && d.ExternalID != nil && *d.ExternalID == externalID {
				return &dedup.Match{DraftID: d.ArticleDraftID, Kind: kind}, nil
			}
		}
		return nil, nil
	}
	for _, d := range m.events {
		if d.RegionID == scopeID && d.ExternalID != nil && *d.ExternalID == externalID {
			return &dedup.Match{DraftID: d.EventDraftID, Kind: kind}, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindByContentHash(_ context.Context, scopeID int64, kind draft.Kind, hash []byte) (*dedup.Match, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if kind == draft.KindArticle {
		for _, d := range m.articles {
			if d.RegionID == scopeID && string(d.ContentHash) == string(hash) {
				return &dedup.Match{DraftID: d.ArticleDraftID, Kind: kind}, nil
			}
		}
		return nil, nil
	}
	for _, d := range m.events {
		if d.RegionID == scopeID && string(d.ContentHash) == string(hash) {
			return &dedup.Match{DraftID: d.EventDraftID, Kind: kind}, nil
		}
	}
	return nil, nil
}

func (m *memStore) ListInDateWindow(_ context.Context, scopeID int64, kind draft.Kind, _ *time.Time, _ int) ([]dedup.WindowRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []dedup.WindowRow
	if kind == draft.KindArticle {
		for _, d := range m.articles {
			if d.RegionID == scopeID {
				out = append(out, dedup.WindowRow{DraftID: d.ArticleDraftID, NormalizedTitle: d.NormalizedTitle})
			}
		}
		return out, nil
	}
	for _, d := range m.events {
		if d.RegionID == scopeID {
			venue := ""
			if d.VenueName != nil {
				venue = *d.VenueName
			}
			out = append(out, dedup.WindowRow{DraftID: d.EventDraftID, NormalizedTitle: d.NormalizedTitle, VenueName: venue})
		}
	}
	return out, nil
}

// match.Store over the in-memory entities.

func (m *memStore) EnsureWorkspace(_ context.Context, name string, _ bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.workspaces[name]; ok {
		return id, nil
	}
	id := m.id()
	m.workspaces[name] = id
	return id, nil
}

func (m *memStore) FindEntityByNormalizedName(_ context.Context, workspaceID int64, kind match.EntityKind, normalized string) (*match.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entity, ok := m.entities[fmt.Sprintf("%d|%s|%s", workspaceID, kind, normalized)]; ok {
		return entity, nil
	}
	return nil, nil
}

func (m *memStore) ListEntityNames(_ context.Context, workspaceID int64, kind match.EntityKind) ([]match.NameRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []match.NameRow
	prefix := fmt.Sprintf("%d|%s|", workspaceID, kind)
	for key, entity := range m.entities {
		if strings.HasPrefix(key, prefix) {
			out = append(out, match.NameRow{ID: entity.ID, Name: entity.Name, NormalizedName: strings.TrimPrefix(key, prefix)})
		}
	}
	return out, nil
}

func (m *memStore) CreateEntityIfAbsent(_ context.Context, workspaceID int64, entity match.NewEntity) (*match.Entity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d|%s|%s", workspaceID, entity.Kind, entity.NormalizedName)
	if existing, ok := m.entities[key]; ok {
		return existing, nil
	}
	created := &match.Entity{ID: m.id(), Name: entity.Name, Kind: entity.Kind}
	m.entities[key] = created
	return created, nil
}

// traffic.Counts over the in-memory posts.

func (m *memStore) PublishedSince(_ context.Context, regionID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.posts {
		if p.RegionID == regionID && !p.PublishedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *memStore) PublishedSinceByCategory(_ context.Context, regionID int64, since time.Time, category string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, p := range m.posts {
		if p.RegionID == regionID && p.Category == category && !p.PublishedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Fake AI ports.

type stubScorer struct {
	score   float64
	failFor string
}

func (s *stubScorer) Score(_ context.Context, item ai.ScoreItem, _ string) (ai.ScoreResult, error) {
	if s.failFor != "" && strings.Contains(item.Title, s.failFor) {
		return ai.ScoreResult{}, retry.Permanent(errors.New("scoring unavailable"))
	}
	return ai.ScoreResult{Score: s.score, Tags: []string{"news"}}, nil
}

type stubGenerator struct{}

func (stubGenerator) Outline(_ context.Context, item ai.ScoreItem) (ai.Outline, error) {
	return ai.Outline{Title: item.Title, KeyPoints: []string{"key point"}}, nil
}

func (stubGenerator) Claims(_ context.Context, outline ai.Outline) ([]ai.Claim, error) {
	return []ai.Claim{{Text: "claim about " + outline.Title}}, nil
}

func (stubGenerator) FactCheck(context.Context, ai.Claim, string) (ai.ClaimVerdict, error) {
	return ai.ClaimVerdict{Result: ai.VerificationVerified, Confidence: 90}, nil
}

func (stubGenerator) GenerateArticle(_ context.Context, outline ai.Outline, _ []ai.FactCheckInput) (ai.GeneratedArticle, error) {
	return ai.GeneratedArticle{
		Title:    outline.Title,
		Content:  "Full body for " + outline.Title,
		Excerpt:  "Excerpt",
		Keywords: []string{"local"},
	}, nil
}

type stubFeed struct {
	items map[string][]source.FeedItem
}

func (s *stubFeed) Fetch(_ context.Context, feedURL string) ([]source.FeedItem, error) {
	items, ok := s.items[feedURL]
	if !ok {
		return nil, errors.New("feed unreachable")
	}
	return items, nil
}

type stubCalendar struct {
	events []source.CalendarEvent
}

func (s *stubCalendar) Fetch(context.Context, string) ([]source.CalendarEvent, error) {
	return s.events, nil
}

type stubReadable struct {
	mu    sync.Mutex
	texts map[string]string
	calls []string
}

func (s *stubReadable) Extract(_ context.Context, pageURL, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, pageURL)
	text, ok := s.texts[pageURL]
	if !ok {
		return "", errors.New("page unreachable")
	}
	return text, nil
}

type recordingDiscoverer struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingDiscoverer) DiscoverSources(context.Context, string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return nil, nil
}

func testConfig(regions ...config.RegionConfig) config.WorkflowConfig {
	cfg := config.DefaultWorkflow()
	cfg.Regions = regions
	cfg.Language.Allowed = nil // admission without detector model load
	return cfg
}

func newTestOrchestrator(cfg config.WorkflowConfig, store *memStore, deps Deps) *Orchestrator {
	logger := zerolog.Nop()
	policy := retry.New(1, 0)

	if deps.Regions == nil {
		deps.Regions = store
	}
	deps.Signals = store
	deps.Drafts = store
	deps.Publish = store
	deps.Checks = store
	deps.Runs = store
	if deps.Scorer == nil {
		deps.Scorer = &stubScorer{score: 85}
	}
	if deps.Generator == nil {
		deps.Generator = stubGenerator{}
	}
	deps.Ingestor = NewIngestor(
		source.NewNormalizer(cfg, logger),
		store,
		store,
		dedup.NewEngine(store, cfg.Dedup, logger),
		logger,
	)
	deps.Matcher = match.NewService(store, cfg.Matching, nil, policy, logger)
	deps.FactChecker = factcheck.NewOrchestrator(deps.Generator, store, policy, cfg.FactCheck, logger)
	deps.Scheduler = traffic.NewScheduler(store, cfg, logger)
	return New(cfg, deps, logger)
}

func mockDaytime(t *testing.T) {
	t.Helper()
	globaltime.SetMockTime(time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC))
	t.Cleanup(globaltime.ResetTime)
}

func feedItems(titles ...string) []source.FeedItem {
	items := make([]source.FeedItem, 0, len(titles))
	for i, title := range titles {
		items = append(items, source.FeedItem{
			Title: title,
			Link:  fmt.Sprintf("https://example.com/news/%d", i+1),
			GUID:  fmt.Sprintf("guid-%d", i+1),
		})
	}
	return items
}

func TestRunRegion_ArticleFlowEndToEnd(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds: []string{"https://wire.example.com/rss"},
	}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Feeds: &stubFeed{items: map[string][]source.FeedItem{
			"https://wire.example.com/rss": feedItems("Council approves budget", "New bakery opens downtown"),
		}},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if result.Counts[config.PhaseCollection] != 2 {
		t.Fatalf("expected 2 collected, got %d", result.Counts[config.PhaseCollection])
	}
	if result.Counts[config.PhasePublishing] != 2 {
		t.Fatalf("expected 2 published, got %d", result.Counts[config.PhasePublishing])
	}
	if len(store.posts) != 2 {
		t.Fatalf("expected 2 posts, got %d", len(store.posts))
	}
	for _, d := range store.articles {
		if d.Status != string(draft.StatusPublished) {
			t.Fatalf("draft %d ended in %q", d.ArticleDraftID, d.Status)
		}
		if d.FactCheckConfidence == nil || *d.FactCheckConfidence != 90 {
			t.Fatalf("draft %d fact check confidence = %v", d.ArticleDraftID, d.FactCheckConfidence)
		}
		if d.Outline == nil {
			t.Fatalf("draft %d missing persisted outline", d.ArticleDraftID)
		}
	}
	if len(store.factChecks) != 2 {
		t.Fatalf("expected 1 fact check per draft, got %d", len(store.factChecks))
	}
	for _, run := range store.runs {
		if run.Status != db.RunStatusSucceeded {
			t.Fatalf("run ended %q", run.Status)
		}
	}
}

func TestRunRegion_DuplicateFeedItemsAdmittedOnce(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds: []string{"https://a.example.com/rss", "https://b.example.com/rss"},
	}
	items := feedItems("Council approves budget")
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Feeds: &stubFeed{items: map[string][]source.FeedItem{
			"https://a.example.com/rss": items,
			"https://b.example.com/rss": items,
		}},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if len(store.articles) != 1 {
		t.Fatalf("expected the duplicate dropped, got %d drafts", len(store.articles))
	}
}

func TestRunRegion_ScoringFailureRejectsOnlyThatDraft(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds: []string{"https://wire.example.com/rss"},
	}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Scorer: &stubScorer{score: 85, failFor: "bakery"},
		Feeds: &stubFeed{items: map[string][]source.FeedItem{
			"https://wire.example.com/rss": feedItems("Council approves budget", "New bakery opens downtown"),
		}},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}

	published, rejected := 0, 0
	for _, d := range store.articles {
		switch d.Status {
		case string(draft.StatusPublished):
			published++
		case string(draft.StatusRejected):
			rejected++
			if d.RejectionReason == nil || !strings.Contains(*d.RejectionReason, "curation scoring failed") {
				t.Fatalf("unexpected rejection reason: %v", d.RejectionReason)
			}
		}
	}
	if published != 1 || rejected != 1 {
		t.Fatalf("expected 1 published and 1 rejected, got %d/%d", published, rejected)
	}
}

func TestRunRegion_SummarylessItemEnrichedFromPage(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds: []string{"https://wire.example.com/rss"},
	}
	items := []source.FeedItem{
		{
			Title:   "Council approves budget",
			Link:    "https://example.com/news/1",
			GUID:    "guid-1",
			Summary: "The council passed the budget on Tuesday.",
		},
		{
			Title: "New bakery opens downtown",
			Link:  "https://example.com/news/2",
			GUID:  "guid-2",
		},
	}
	readable := &stubReadable{texts: map[string]string{
		"https://example.com/news/2": "The bakery on Main Street opened its doors this week.",
	}}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Feeds:    &stubFeed{items: map[string][]source.FeedItem{"https://wire.example.com/rss": items}},
		Readable: readable,
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if len(readable.calls) != 1 || readable.calls[0] != "https://example.com/news/2" {
		t.Fatalf("extraction must run only for summary-less items, got %v", readable.calls)
	}

	summaries := map[string]string{}
	for _, d := range store.articles {
		if d.Summary != nil {
			summaries[d.SourceTitle] = *d.Summary
		}
	}
	if summaries["Council approves budget"] != "The council passed the budget on Tuesday." {
		t.Fatalf("feed summary must be kept, got %q", summaries["Council approves budget"])
	}
	if !strings.Contains(summaries["New bakery opens downtown"], "bakery on Main Street") {
		t.Fatalf("extracted text must back the summary-less item, got %q", summaries["New bakery opens downtown"])
	}
}

func TestRunRegion_ExtractionFailureKeepsBareItem(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds: []string{"https://wire.example.com/rss"},
	}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Feeds: &stubFeed{items: map[string][]source.FeedItem{
			"https://wire.example.com/rss": feedItems("New bakery opens downtown"),
		}},
		Readable: &stubReadable{},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if len(store.articles) != 1 {
		t.Fatalf("expected the item admitted despite the failed fetch, got %d drafts", len(store.articles))
	}
	for _, d := range store.articles {
		if d.Summary != nil {
			t.Fatalf("failed extraction must leave the summary empty, got %q", *d.Summary)
		}
	}
}

func TestRunRegion_EventFlowEndToEnd(t *testing.T) {
	mockDaytime(t)

	starts := time.Date(2026, 9, 12, 19, 30, 0, 0, time.UTC)
	day := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Calendars: []string{"https://venue.example.com/calendar"},
	}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Calendars: &stubCalendar{events: []source.CalendarEvent{{
			Title:         "Summer Jazz Night",
			VenueName:     "Grand Avenue Ballroom",
			PerformerName: "The Riverside Quartet",
			DetailURL:     "https://venue.example.com/events/jazz",
			StartsAt:      &starts,
			OccursOn:      &day,
		}}},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if len(store.events) != 1 {
		t.Fatalf("expected 1 event draft, got %d", len(store.events))
	}
	for _, d := range store.events {
		if d.Status != string(draft.StatusPublished) {
			t.Fatalf("event ended in %q (reason %v)", d.Status, d.RejectionReason)
		}
		if d.VenueID == nil || d.PerformerID == nil {
			t.Fatal("expected venue and performer resolved")
		}
		if d.ExtractionConfidence == nil || *d.ExtractionConfidence != 1.0 {
			t.Fatalf("extraction confidence = %v", d.ExtractionConfidence)
		}
	}
	if len(store.entities) != 2 {
		t.Fatalf("expected venue and performer created, got %d entities", len(store.entities))
	}
}

func TestRunRegion_DisabledFactCheckFastForwards(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{
		Slug: "riverton", Name: "Riverton", Timezone: "UTC",
		Feeds:  []string{"https://wire.example.com/rss"},
		Phases: map[string]bool{config.PhaseFactCheck: false},
	}
	store := newMemStore()
	orch := newTestOrchestrator(testConfig(region), store, Deps{
		Feeds: &stubFeed{items: map[string][]source.FeedItem{
			"https://wire.example.com/rss": feedItems("Council approves budget"),
		}},
	})

	result := orch.RunRegion(context.Background(), region, ModeFull)
	if result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	for _, d := range store.articles {
		if d.Status != string(draft.StatusPublished) {
			t.Fatalf("draft ended in %q", d.Status)
		}
		if d.FactCheckConfidence != nil {
			t.Fatalf("disabled fact check must leave confidence nil, got %v", *d.FactCheckConfidence)
		}
	}
	if len(store.factChecks) != 0 {
		t.Fatalf("expected no fact check rows, got %d", len(store.factChecks))
	}
}

func TestRunAll_RegionFailureIsIsolated(t *testing.T) {
	mockDaytime(t)

	good := config.RegionConfig{Slug: "riverton", Name: "Riverton", Timezone: "UTC"}
	bad := config.RegionConfig{Slug: "broken", Name: "Broken", Timezone: "UTC"}
	store := newMemStore()

	failing := &failingRegionRepo{inner: store, failSlug: "broken"}
	orch := newTestOrchestrator(testConfig(good, bad), store, Deps{Regions: failing})

	results := orch.RunAll(context.Background(), ModeDaily)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	bySlug := map[string]Result{}
	for _, r := range results {
		bySlug[r.RegionSlug] = r
	}
	if bySlug["riverton"].Err != nil {
		t.Fatalf("healthy region must succeed, got %v", bySlug["riverton"].Err)
	}
	if bySlug["broken"].Err == nil {
		t.Fatal("failing region must report its error")
	}
}

type failingRegionRepo struct {
	inner    RegionRepo
	failSlug string
}

func (f *failingRegionRepo) Ensure(ctx context.Context, slug, name, timezone string) (int64, error) {
	if slug == f.failSlug {
		return 0, errors.New("region storage offline")
	}
	return f.inner.Ensure(ctx, slug, name, timezone)
}

func TestRunRegion_DailyModeSkipsDiscovery(t *testing.T) {
	mockDaytime(t)

	region := config.RegionConfig{Slug: "riverton", Name: "Riverton", Timezone: "UTC"}
	store := newMemStore()
	discoverer := &recordingDiscoverer{}
	orch := newTestOrchestrator(testConfig(region), store, Deps{Discoverer: discoverer})

	if result := orch.RunRegion(context.Background(), region, ModeDaily); result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if discoverer.calls != 0 {
		t.Fatalf("daily mode must skip discovery, got %d calls", discoverer.calls)
	}

	if result := orch.RunRegion(context.Background(), region, ModeFull); result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if discoverer.calls != 1 {
		t.Fatalf("full mode must run discovery once, got %d calls", discoverer.calls)
	}

	// The monthly cadence gate holds on the next full run.
	if result := orch.RunRegion(context.Background(), region, ModeFull); result.Err != nil {
		t.Fatalf("unexpected run error: %v", result.Err)
	}
	if discoverer.calls != 1 {
		t.Fatalf("discovery must respect the monthly cadence, got %d calls", discoverer.calls)
	}
}
