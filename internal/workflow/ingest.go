package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"townbeat/internal/db"
	"townbeat/internal/dedup"
	"townbeat/internal/draft"
	"townbeat/internal/source"
)

// IngestResult tallies one admission batch.
type IngestResult struct {
	Processed  int
	Admitted   int
	Duplicates int
	Rejected   int
}

// Ingestor admits raw collector payloads: schema validation, normalization,
// the payload/content-hash early exits, the full dedup ladder, and finally
// the raw-signal plus draft inserts. Per-payload failures never abort the
// batch.
type Ingestor struct {
	normalizer *source.Normalizer
	signals    SignalRepo
	drafts     DraftRepo
	engine     *dedup.Engine
	logger     zerolog.Logger
}

func NewIngestor(normalizer *source.Normalizer, signals SignalRepo, drafts DraftRepo, engine *dedup.Engine, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		normalizer: normalizer,
		signals:    signals,
		drafts:     drafts,
		engine:     engine,
		logger:     logger,
	}
}

// Ingest admits a batch of payloads for one region.
func (i *Ingestor) Ingest(ctx context.Context, regionID int64, payloads []json.RawMessage) (IngestResult, error) {
	var result IngestResult
	for _, payload := range payloads {
		result.Processed++

		admitted, duplicate, err := i.ingestOne(ctx, regionID, payload)
		if err != nil {
			if errors.Is(err, source.ErrLanguageNotAllowed) {
				i.logger.Debug().Err(err).Int64("region_id", regionID).Msg("signal dropped by language gate")
			} else {
				i.logger.Warn().Err(err).Int64("region_id", regionID).Msg("signal rejected during admission")
			}
			result.Rejected++
			continue
		}
		if duplicate {
			result.Duplicates++
			continue
		}
		if admitted {
			result.Admitted++
		}
	}
	return result, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, regionID int64, payload json.RawMessage) (admitted, duplicate bool, err error) {
	signal, err := i.normalizer.Normalize(payload)
	if err != nil {
		return false, false, err
	}

	seen, err := i.signals.PayloadSeen(ctx, regionID, signal.PayloadHash)
	if err != nil {
		return false, false, fmt.Errorf("payload hash check: %w", err)
	}
	if seen {
		return false, true, nil
	}

	// Cheap content-hash exit before the full ladder touches the draft tables.
	seen, err = i.signals.ContentSeen(ctx, regionID, signal.ContentHash)
	if err != nil {
		return false, false, fmt.Errorf("content hash check: %w", err)
	}
	if seen {
		return false, true, nil
	}

	match, err := i.engine.FindDuplicate(ctx, dedup.Candidate{
		ScopeID:    regionID,
		Kind:       signal.Kind,
		Title:      signal.Title,
		Date:       signal.OccursOn,
		VenueName:  signal.VenueName,
		SourceURL:  signal.CanonicalURL,
		ExternalID: signal.ExternalID,
	})
	if err != nil {
		return false, false, fmt.Errorf("dedup ladder: %w", err)
	}
	if match != nil {
		i.logger.Debug().
			Int64("region_id", regionID).
			Int64("existing_draft_id", match.DraftID).
			Str("signal", match.Signal).
			Msg("duplicate signal dropped")
		return false, true, nil
	}

	rawSignalID, err := i.insertSignal(ctx, regionID, signal)
	if err != nil {
		return false, false, err
	}

	if err := i.insertDraft(ctx, regionID, rawSignalID, signal); err != nil {
		return false, false, err
	}
	return true, false, nil
}

func (i *Ingestor) insertSignal(ctx context.Context, regionID int64, signal *source.NormalizedSignal) (int64, error) {
	row := &db.RawSignal{
		RegionID:    regionID,
		Source:      signal.Source,
		ExternalID:  optionalString(signal.ExternalID),
		Kind:        string(signal.Kind),
		SourceURL:   optionalString(signal.CanonicalURL),
		Title:       signal.Title,
		OccursOn:    signal.OccursOn,
		Language:    signal.Language,
		RawPayload:  signal.Payload,
		PayloadHash: signal.PayloadHash,
		ContentHash: signal.ContentHash,
	}
	if row.Language == "" {
		row.Language = "und"
	}
	return i.signals.Insert(ctx, row)
}

func (i *Ingestor) insertDraft(ctx context.Context, regionID, rawSignalID int64, signal *source.NormalizedSignal) error {
	topics, err := topicsJSON(signal.Topics)
	if err != nil {
		return err
	}

	switch signal.Kind {
	case draft.KindArticle:
		_, err := i.drafts.InsertArticleDraft(ctx, &db.ArticleDraft{
			RegionID:        regionID,
			RawSignalID:     &rawSignalID,
			Status:          string(draft.StatusCollected),
			SourceURL:       optionalString(signal.CanonicalURL),
			ExternalID:      optionalString(signal.ExternalID),
			SourceTitle:     signal.Title,
			NormalizedTitle: signal.NormalizedTitle,
			Summary:         optionalString(signal.BodyText),
			ContentHash:     signal.ContentHash,
			SignalDate:      signal.OccursOn,
			Topics:          topics,
		})
		if err != nil {
			return fmt.Errorf("insert article draft: %w", err)
		}
	case draft.KindEvent:
		_, err := i.drafts.InsertEventDraft(ctx, &db.EventDraft{
			RegionID:        regionID,
			RawSignalID:     &rawSignalID,
			Status:          string(draft.StatusDetected),
			SourceURL:       optionalString(signal.CanonicalURL),
			ExternalID:      optionalString(signal.ExternalID),
			Title:           signal.Title,
			NormalizedTitle: signal.NormalizedTitle,
			ContentHash:     signal.ContentHash,
			VenueName:       optionalString(signal.VenueName),
			PerformerName:   optionalString(signal.PerformerName),
			StartsOn:        signal.OccursOn,
			StartsAt:        signal.StartsAt,
			Description:     optionalString(signal.BodyText),
			Topics:          topics,
		})
		if err != nil {
			return fmt.Errorf("insert event draft: %w", err)
		}
	default:
		return fmt.Errorf("unknown signal kind %q", signal.Kind)
	}
	return nil
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

func topicsJSON(topics []string) (json.RawMessage, error) {
	if len(topics) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(topics)
	if err != nil {
		return nil, fmt.Errorf("encode topics: %w", err)
	}
	return encoded, nil
}
