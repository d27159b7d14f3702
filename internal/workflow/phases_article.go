package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"townbeat/internal/ai"
	"townbeat/internal/db"
	"townbeat/internal/draft"
	"townbeat/internal/selection"
)

// curateArticles scores collected drafts and shortlists them. A scoring
// failure rejects the one draft and the phase moves on.
func (o *Orchestrator) curateArticles(ctx context.Context, regionID int64, regionSlug string, enabled bool) (int, error) {
	drafts, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusCollected, 0)
	if err != nil {
		return 0, fmt.Errorf("list collected drafts: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusCollected); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		var result ai.ScoreResult
		err := o.policy.Do(ctx, func(ctx context.Context) error {
			scored, scoreErr := o.scorer.Score(ctx, scoreItem(d), regionSlug)
			if scoreErr != nil {
				return scoreErr
			}
			result = scored
			return nil
		})
		if err != nil {
			o.rejectArticle(ctx, d.ArticleDraftID, draft.StatusCollected, fmt.Sprintf("curation scoring failed: %v", err))
			processed++
			continue
		}

		topics, err := topicsJSON(result.Tags)
		if err != nil {
			return processed, err
		}
		if err := o.drafts.SetArticleScores(ctx, d.ArticleDraftID, result.Score, result.Score, topics); err != nil {
			return processed, err
		}
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusCollected); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// outlineArticles generates and persists an outline for each shortlisted
// draft. An outline failure rejects the draft.
func (o *Orchestrator) outlineArticles(ctx context.Context, regionID int64, enabled bool) (int, error) {
	drafts, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusShortlisted, 0)
	if err != nil {
		return 0, fmt.Errorf("list shortlisted drafts: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusShortlisted); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		outcome, err := o.factChecker.Run(ctx, d.ArticleDraftID, scoreItem(d), false)
		if err != nil {
			o.rejectArticle(ctx, d.ArticleDraftID, draft.StatusShortlisted, fmt.Sprintf("outline generation failed: %v", err))
			processed++
			continue
		}

		encoded, err := json.Marshal(outcome.Outline)
		if err != nil {
			return processed, fmt.Errorf("encode outline: %w", err)
		}
		if err := o.drafts.SetArticleOutline(ctx, d.ArticleDraftID, encoded); err != nil {
			return processed, err
		}
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusShortlisted); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// factCheckArticles verifies outlined drafts. Only a computed confidence
// below the floor rejects; missing checks always pass.
func (o *Orchestrator) factCheckArticles(ctx context.Context, regionID int64, enabled bool) (int, error) {
	drafts, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusOutlineGenerated, 0)
	if err != nil {
		return 0, fmt.Errorf("list outlined drafts: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusOutlineGenerated); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		outcome, err := o.factChecker.Check(ctx, d.ArticleDraftID, decodeOutline(d))
		if err != nil {
			return processed, err
		}
		if err := o.drafts.SetArticleFactCheckConfidence(ctx, d.ArticleDraftID, outcome.Confidence); err != nil {
			return processed, err
		}

		if o.factChecker.BelowMinimum(outcome.Confidence) {
			reason := fmt.Sprintf("fact check confidence %.1f below minimum %.1f",
				*outcome.Confidence, o.cfg.FactCheck.MinConfidence)
			o.rejectArticle(ctx, d.ArticleDraftID, draft.StatusOutlineGenerated, reason)
			processed++
			continue
		}
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusOutlineGenerated); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

// selectArticles applies the quality/count floors over all generation-ready
// drafts and rejects the remainder with the uniform reason.
func (o *Orchestrator) selectArticles(ctx context.Context, regionID int64, enabled bool) (int, error) {
	drafts, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusReadyForGeneration, 0)
	if err != nil {
		return 0, fmt.Errorf("list generation-ready drafts: %w", err)
	}
	if len(drafts) == 0 {
		return 0, nil
	}

	if !enabled {
		for _, d := range drafts {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusReadyForGeneration); err != nil {
				return 0, err
			}
		}
		return len(drafts), nil
	}

	candidates := make([]selection.Candidate, 0, len(drafts))
	for _, d := range drafts {
		score := 0.0
		if d.QualityScore != nil {
			score = *d.QualityScore
		}
		candidates = append(candidates, selection.Candidate{ID: d.ArticleDraftID, Score: score})
	}

	result := selection.Select(candidates, o.cfg.Selection.TargetCount, o.cfg.Selection.MinQuality, o.logger)
	for _, candidate := range result.Selected {
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, candidate.ID, draft.StatusReadyForGeneration); err != nil {
			return 0, err
		}
	}
	for _, candidate := range result.Rejected {
		o.rejectArticle(ctx, candidate.ID, draft.StatusReadyForGeneration, selection.RejectionReason)
	}
	return len(drafts), nil
}

// generateArticles produces full content for the selected drafts. Image
// search is best-effort; generation failure rejects the draft.
func (o *Orchestrator) generateArticles(ctx context.Context, regionID int64, enabled bool) (int, error) {
	drafts, err := o.drafts.ListArticlesByStatus(ctx, regionID, draft.StatusSelectedForGeneration, 0)
	if err != nil {
		return 0, fmt.Errorf("list selected drafts: %w", err)
	}

	processed := 0
	for _, d := range drafts {
		if !enabled {
			if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusSelectedForGeneration); err != nil {
				return processed, err
			}
			processed++
			continue
		}

		checks, err := o.factCheckInputs(ctx, d.ArticleDraftID)
		if err != nil {
			return processed, err
		}

		var article ai.GeneratedArticle
		err = o.policy.Do(ctx, func(ctx context.Context) error {
			generated, genErr := o.generator.GenerateArticle(ctx, decodeOutline(d), checks)
			if genErr != nil {
				return genErr
			}
			article = generated
			return nil
		})
		if err != nil {
			o.rejectArticle(ctx, d.ArticleDraftID, draft.StatusSelectedForGeneration, fmt.Sprintf("article generation failed: %v", err))
			processed++
			continue
		}

		keywords, err := topicsJSON(article.Keywords)
		if err != nil {
			return processed, err
		}
		imageURL, imageAttribution := o.findImage(ctx, article.Keywords)
		if err := o.drafts.SetArticleGenerated(ctx, d.ArticleDraftID, article.Title, article.Content, article.Excerpt, keywords, imageURL, imageAttribution); err != nil {
			return processed, err
		}
		if _, _, err := o.drafts.AdvanceStatus(ctx, draft.KindArticle, d.ArticleDraftID, draft.StatusSelectedForGeneration); err != nil {
			return processed, err
		}
		processed++
	}
	return processed, nil
}

func (o *Orchestrator) factCheckInputs(ctx context.Context, draftID int64) ([]ai.FactCheckInput, error) {
	if o.checks == nil {
		return nil, nil
	}
	rows, err := o.checks.ListFactChecks(ctx, draftID)
	if err != nil {
		return nil, fmt.Errorf("list fact checks: %w", err)
	}

	inputs := make([]ai.FactCheckInput, 0, len(rows))
	for _, row := range rows {
		inputs = append(inputs, ai.FactCheckInput{
			ClaimText:  row.ClaimText,
			Result:     row.VerificationResult,
			Confidence: row.ConfidenceScore,
		})
	}
	return inputs, nil
}

// findImage asks the image port for a header image. A nil result or an error
// falls back to no image; the phase never fails on it.
func (o *Orchestrator) findImage(ctx context.Context, keywords []string) (imageURL, attribution *string) {
	if o.images == nil || len(keywords) == 0 {
		return nil, nil
	}
	result, err := o.images.Search(ctx, keywords, "landscape")
	if err != nil {
		o.logger.Warn().Err(err).Msg("image search failed; publishing without a header image")
		return nil, nil
	}
	if result == nil {
		return nil, nil
	}
	return optionalString(result.URL), optionalString(result.Attribution)
}

func (o *Orchestrator) rejectArticle(ctx context.Context, draftID int64, from draft.Status, reason string) {
	if _, err := o.drafts.Reject(ctx, draft.KindArticle, draftID, from, reason); err != nil {
		o.logger.Error().Err(err).Int64("draft_id", draftID).Msg("failed to reject article draft")
	}
}

func scoreItem(d db.ArticleDraft) ai.ScoreItem {
	item := ai.ScoreItem{Title: d.SourceTitle}
	if d.SourceURL != nil {
		item.URL = *d.SourceURL
	}
	if d.Summary != nil {
		item.Body = *d.Summary
	}
	return item
}

// decodeOutline tolerates a missing or malformed stored outline and degrades
// to a title-only outline.
func decodeOutline(d db.ArticleDraft) ai.Outline {
	var outline ai.Outline
	if len(d.Outline) > 0 {
		if err := json.Unmarshal(d.Outline, &outline); err == nil && outline.Title != "" {
			return outline
		}
	}
	return ai.Outline{Title: d.SourceTitle}
}
