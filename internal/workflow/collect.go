package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"townbeat/internal/config"
	"townbeat/internal/globaltime"
	"townbeat/internal/source"
)

const discoveryInterval = 30 * 24 * time.Hour

// readableBodyLimit caps the readable text pulled for summary-less feed
// items; curation prompts never need a full page of body text.
const readableBodyLimit = 6000

// signalPayload mirrors the raw-signal schema for payloads built from fetched
// feeds and calendars.
type signalPayload struct {
	PayloadVersion string   `json:"payload_version"`
	Source         string   `json:"source"`
	SourceItemID   string   `json:"source_item_id"`
	Kind           string   `json:"kind"`
	Title          string   `json:"title"`
	CanonicalURL   string   `json:"canonical_url,omitempty"`
	PublishedAt    string   `json:"published_at,omitempty"`
	OccursOn       string   `json:"occurs_on,omitempty"`
	StartsAt       string   `json:"starts_at,omitempty"`
	VenueName      string   `json:"venue_name,omitempty"`
	PerformerName  string   `json:"performer_name,omitempty"`
	BodyText       string   `json:"body_text,omitempty"`
	Topics         []string `json:"topics,omitempty"`
}

// collectArticles pulls the region's feeds and admits their items. A failing
// feed is logged and skipped; the other feeds still run.
func (o *Orchestrator) collectArticles(ctx context.Context, regionID int64, region config.RegionConfig, enabled bool) (int, error) {
	if !enabled || o.feeds == nil || len(region.Feeds) == 0 {
		return 0, nil
	}

	admitted := 0
	fetchedAny := false
	for _, feedURL := range region.Feeds {
		items, err := o.feeds.Fetch(ctx, feedURL)
		if err != nil {
			o.logger.Warn().Err(err).Str("feed", feedURL).Msg("feed fetch failed; skipping source")
			continue
		}
		fetchedAny = true

		payloads := make([]json.RawMessage, 0, len(items))
		for _, item := range items {
			o.fillSummary(ctx, &item)
			payload, err := feedPayload(feedURL, item)
			if err != nil {
				o.logger.Warn().Err(err).Str("feed", feedURL).Msg("failed to encode feed item")
				continue
			}
			payloads = append(payloads, payload)
		}

		result, err := o.ingestor.Ingest(ctx, regionID, payloads)
		if err != nil {
			return admitted, fmt.Errorf("ingest feed %s: %w", feedURL, err)
		}
		admitted += result.Admitted
	}

	if err := o.runs.TouchCheckpoint(ctx, regionID, config.PhaseCollection, globaltime.Now().UTC(), fetchedAny); err != nil {
		return admitted, err
	}
	return admitted, nil
}

// fillSummary backfills a summary-less feed item with readable text
// extracted from its page so curation scores real body text instead of a
// bare title. Extraction is best-effort; a failure keeps the bare item.
func (o *Orchestrator) fillSummary(ctx context.Context, item *source.FeedItem) {
	if o.readable == nil || strings.TrimSpace(item.Summary) != "" || strings.TrimSpace(item.Link) == "" {
		return
	}
	text, err := o.readable.Extract(ctx, item.Link, item.Title)
	if err != nil {
		o.logger.Warn().Err(err).Str("url", item.Link).Msg("readable extraction failed; keeping bare item")
		return
	}
	item.Summary, _ = source.TruncateText(text, readableBodyLimit)
}

// detectEvents scrapes the region's venue calendars and admits their
// listings as event signals.
func (o *Orchestrator) detectEvents(ctx context.Context, regionID int64, region config.RegionConfig, enabled bool) (int, error) {
	if !enabled || o.calendars == nil || len(region.Calendars) == 0 {
		return 0, nil
	}

	admitted := 0
	fetchedAny := false
	for _, pageURL := range region.Calendars {
		events, err := o.calendars.Fetch(ctx, pageURL)
		if err != nil {
			o.logger.Warn().Err(err).Str("calendar", pageURL).Msg("calendar fetch failed; skipping source")
			continue
		}
		fetchedAny = true

		payloads := make([]json.RawMessage, 0, len(events))
		for _, event := range events {
			payload, err := calendarPayload(pageURL, event)
			if err != nil {
				o.logger.Warn().Err(err).Str("calendar", pageURL).Msg("failed to encode calendar event")
				continue
			}
			payloads = append(payloads, payload)
		}

		result, err := o.ingestor.Ingest(ctx, regionID, payloads)
		if err != nil {
			return admitted, fmt.Errorf("ingest calendar %s: %w", pageURL, err)
		}
		admitted += result.Admitted
	}

	if err := o.runs.TouchCheckpoint(ctx, regionID, config.PhaseDetection, globaltime.Now().UTC(), fetchedAny); err != nil {
		return admitted, err
	}
	return admitted, nil
}

// discoverSources asks the discovery port for new feeds, on a monthly
// cadence per region. Discovered feeds are ingested once immediately.
func (o *Orchestrator) discoverSources(ctx context.Context, regionID int64, region config.RegionConfig, enabled bool) (int, error) {
	if !enabled || o.discoverer == nil {
		return 0, nil
	}

	checkpoint, err := o.runs.Checkpoint(ctx, regionID, config.PhaseDiscovery)
	if err != nil {
		return 0, err
	}
	now := globaltime.Now().UTC()
	if checkpoint != nil && checkpoint.LastRunAt != nil && now.Sub(*checkpoint.LastRunAt) < discoveryInterval {
		return 0, nil
	}

	feeds, err := o.discoverer.DiscoverSources(ctx, region.Slug)
	if err != nil {
		// Discovery is opportunistic; a failed attempt waits for the next
		// cadence window.
		o.logger.Warn().Err(err).Str("region", region.Slug).Msg("source discovery failed")
		return 0, o.runs.TouchCheckpoint(ctx, regionID, config.PhaseDiscovery, now, false)
	}

	discovered := region
	discovered.Feeds = feeds
	admitted, err := o.collectArticles(ctx, regionID, discovered, true)
	if err != nil {
		return admitted, err
	}

	if err := o.runs.TouchCheckpoint(ctx, regionID, config.PhaseDiscovery, now, len(feeds) > 0); err != nil {
		return admitted, err
	}
	return admitted, nil
}

func feedPayload(feedURL string, item source.FeedItem) (json.RawMessage, error) {
	itemID := item.GUID
	if itemID == "" {
		itemID = item.Link
	}
	if itemID == "" {
		itemID = item.Title
	}

	payload := signalPayload{
		PayloadVersion: "v1",
		Source:         sourceName(feedURL, "rss"),
		SourceItemID:   itemID,
		Kind:           "article",
		Title:          item.Title,
		CanonicalURL:   item.Link,
		BodyText:       item.Summary,
		Topics:         item.Categories,
	}
	if item.Published != nil {
		payload.PublishedAt = item.Published.Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

func calendarPayload(pageURL string, event source.CalendarEvent) (json.RawMessage, error) {
	itemID := event.DetailURL
	if itemID == "" {
		itemID = event.Title
		if event.OccursOn != nil {
			itemID += "|" + event.OccursOn.Format("2006-01-02")
		}
	}

	payload := signalPayload{
		PayloadVersion: "v1",
		Source:         sourceName(pageURL, "venue-calendar"),
		SourceItemID:   itemID,
		Kind:           "event",
		Title:          event.Title,
		CanonicalURL:   event.DetailURL,
		VenueName:      event.VenueName,
		PerformerName:  event.PerformerName,
	}
	if event.OccursOn != nil {
		payload.OccursOn = event.OccursOn.Format("2006-01-02")
	}
	if event.StartsAt != nil {
		payload.StartsAt = event.StartsAt.Format(time.RFC3339)
	}
	return json.Marshal(payload)
}

func sourceName(rawURL, fallback string) string {
	parsed, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || parsed.Hostname() == "" {
		return fallback
	}
	return parsed.Hostname()
}
