package workflow

import (
	"context"
	"fmt"
	"strings"

	"townbeat/internal/draft"
)

// extractEvents resolves venue and performer names on detected events. An
// entity-resolution failure rejects the one draft; resolution of an absent
// name is simply skipped.
func (o *Orchestrator) extractEvents(ctx context.Context, regionID int64, regionSlug string, enabled bool) (int, error) {
	drafts, err := o.drafts.ListEventsByStatus(ctx, regionID, draft.StatusDetected, 0)
	if err != nil {
		return 0, fmt.Errorf("list detected events: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindEvent, d.EventDraftID, draft.StatusDetected); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		var venueID, performerID *int64
		resolved, named := 0, 0

		if d.VenueName != nil && strings.TrimSpace(*d.VenueName) != "" {
			named++
			venue, err := o.matcher.MatchOrCreateVenue(ctx, *d.VenueName, "", regionSlug)
			if err != nil {
				o.rejectEvent(ctx, d.EventDraftID, draft.StatusDetected, fmt.Sprintf("venue resolution failed: %v", err))
				processed++
				continue
			}
			if venue != nil {
				venueID = &venue.ID
				resolved++
			}
		}

		if d.PerformerName != nil && strings.TrimSpace(*d.PerformerName) != "" {
			named++
			performer, err := o.matcher.MatchOrCreatePerformer(ctx, *d.PerformerName)
			if err != nil {
				o.rejectEvent(ctx, d.EventDraftID, draft.StatusDetected, fmt.Sprintf("performer resolution failed: %v", err))
				processed++
				continue
			}
			if performer != nil {
				performerID = &performer.ID
				resolved++
			}
		}

		confidence := extractionConfidence(named, resolved)
		if err := o.drafts.SetEventExtraction(ctx, d.EventDraftID, venueID, performerID, &confidence); err != nil {
			return processed, err
		}
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindEvent, d.EventDraftID, draft.StatusDetected); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// validateEvents enforces the minimal event contract before publishing: a
// title and a date. Everything else is optional.
func (o *Orchestrator) validateEvents(ctx context.Context, regionID int64, enabled bool) (int, error) {
	drafts, err := o.drafts.ListEventsByStatus(ctx, regionID, draft.StatusExtracted, 0)
	if err != nil {
		return 0, fmt.Errorf("list extracted events: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindEvent, d.EventDraftID, draft.StatusExtracted); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		if strings.TrimSpace(d.Title) == "" {
			o.rejectEvent(ctx, d.EventDraftID, draft.StatusExtracted, "validation failed: missing title")
			processed++
			continue
		}
		if d.StartsOn == nil && d.StartsAt == nil {
			o.rejectEvent(ctx, d.EventDraftID, draft.StatusExtracted, "validation failed: missing event date")
			processed++
			continue
		}

		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindEvent, d.EventDraftID, draft.StatusExtracted); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (o *Orchestrator) rejectEvent(ctx context.Context, draftID int64, from draft.Status, reason string) {
	if _, err := o.drafts.Reject(ctx, draft.KindEvent, draftID, from, reason); err != nil {
		o.logger.Error().Err(err).Int64("draft_id", draftID).Msg("failed to reject event draft")
	}
}

// extractionConfidence is the resolved share of named entities; an event
// naming nothing scores a neutral 0.5.
func extractionConfidence(named, resolved int) float64 {
	if named == 0 {
		return 0.5
	}
	return float64(resolved) / float64(named)
}
