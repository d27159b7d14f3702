package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"townbeat/internal/db"
	"townbeat/internal/draft"
	"townbeat/internal/globaltime"
	"townbeat/internal/traffic"
)

// publishable is one draft queued for the admission check, either kind.
type publishable struct {
	kind     draft.Kind
	id       int64
	from     draft.Status
	title    string
	body     string
	excerpt  *string
	keywords json.RawMessage
	imageURL *string
	quality  float64
	topic    string
	priority int
}

// publishDrafts runs traffic control over the region's publish-ready queue,
// highest priority first. Held drafts keep their status for the next pass.
func (o *Orchestrator) publishDrafts(ctx context.Context, regionID int64, loc *time.Location, enabled bool) (int, error) {
	if !enabled {
		o.logger.Debug().Int64("region_id", regionID).Msg("publishing disabled; drafts stay queued")
		return 0, nil
	}

	queue, err := o.publishQueue(ctx, regionID, loc)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, item := range queue {
		decision, err := o.scheduler.ShouldPublishNow(ctx, regionID, loc, traffic.Draft{
			ID:           item.id,
			Title:        item.title,
			Quality:      item.quality,
			PrimaryTopic: item.topic,
		})
		if err != nil {
			return published, fmt.Errorf("traffic decision for draft %d: %w", item.id, err)
		}
		if !decision.Publish {
			o.logger.Debug().
				Int64("draft_id", item.id).
				Str("kind", string(item.kind)).
				Str("hold_reason", decision.HoldReason).
				Msg("draft held by traffic control")
			continue
		}

		slug, err := o.publish.AllocateSlug(ctx, item.title)
		if err != nil {
			return published, err
		}

		post := &db.PublishedPost{
			RegionID:    regionID,
			Slug:        slug,
			Title:       item.title,
			Body:        item.body,
			Excerpt:     item.excerpt,
			Category:    decision.Category,
			SEOKeywords: item.keywords,
			ImageURL:    item.imageURL,
			Breaking:    decision.Breaking,
			PublishedAt: globaltime.Now().UTC(),
		}

		switch item.kind {
		case draft.KindArticle:
			id := item.id
			post.ArticleDraftID = &id
			err = o.publish.PublishArticle(ctx, post, item.from)
		case draft.KindEvent:
			id := item.id
			post.EventDraftID = &id
			err = o.publish.PublishEvent(ctx, post, item.from)
		}
		if err != nil {
			return published, fmt.Errorf("publish draft %d: %w", item.id, err)
		}

		o.logger.Info().
			Int64("draft_id", item.id).
			Str("kind", string(item.kind)).
			Str("slug", slug).
			Bool("breaking", decision.Breaking).
			Msg("draft published")
		published++
	}
	return published, nil
}

func (o *Orchestrator) publishQueue(ctx context.Context, regionID int64, loc *time.Location) ([]publishable, error) {
	articles, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusReadyForPublishing, 0)
	if err != nil {
		return nil, fmt.Errorf("list publish-ready articles: %w", err)
	}
	events, err := o.drafts.ListEventsByStatus(ctx, regionID, draft.StatusValidated, 0)
	if err != nil {
		return nil, fmt.Errorf("list validated events: %w", err)
	}

	queue := make([]publishable, 0, len(articles)+len(events))
	for _, d := range articles {
		queue = append(queue, articlePublishable(d))
	}
	for _, d := range events {
		queue = append(queue, eventPublishable(d))
	}

	for i := range queue {
		priority, err := o.scheduler.PriorityScore(ctx, regionID, loc, traffic.Draft{
			ID:           queue[i].id,
			Title:        queue[i].title,
			Quality:      queue[i].quality,
			PrimaryTopic: queue[i].topic,
		})
		if err != nil {
			return nil, fmt.Errorf("priority for draft %d: %w", queue[i].id, err)
		}
		queue[i].priority = priority
	}

	sort.SliceStable(queue, func(i, j int) bool {
		if queue[i].priority != queue[j].priority {
			return queue[i].priority > queue[j].priority
		}
		return queue[i].id < queue[j].id
	})
	return queue, nil
}

func articlePublishable(d db.ArticleDraft) publishable {
	item := publishable{
		kind:     draft.KindArticle,
		id:       d.ArticleDraftID,
		from:     draft.StatusReadyForPublishing,
		title:    d.SourceTitle,
		excerpt:  d.GeneratedExcerpt,
		keywords: d.SEOKeywords,
		imageURL: d.ImageURL,
		topic:    primaryTopic(d.Topics),
	}
	if d.GeneratedTitle != nil && strings.TrimSpace(*d.GeneratedTitle) != "" {
		item.title = *d.GeneratedTitle
	}
	if d.GeneratedBody != nil {
		item.body = *d.GeneratedBody
	}
	if item.body == "" {
		item.body = item.title
	}
	if d.QualityScore != nil {
		item.quality = *d.QualityScore
	}
	return item
}

func eventPublishable(d db.EventDraft) publishable {
	item := publishable{
		kind:  draft.KindEvent,
		id:    d.EventDraftID,
		from:  draft.StatusValidated,
		title: d.Title,
		topic: primaryTopic(d.Topics),
	}
	if item.topic == "" {
		item.topic = "event"
	}
	if d.Description != nil && strings.TrimSpace(*d.Description) != "" {
		item.body = *d.Description
	} else {
		item.body = d.Title
	}
	if d.ExtractionConfidence != nil {
		// Scale the 0-1 extraction confidence onto the quality axis so events
		// compete in the same priority queue as articles.
		item.quality = *d.ExtractionConfidence * 100
	}
	return item
}

func primaryTopic(topics json.RawMessage) string {
	if len(topics) == 0 {
		return ""
	}
	var decoded []string
	if err := json.Unmarshal(topics, &decoded); err != nil || len(decoded) == 0 {
		return ""
	}
	return decoded[0]
}
