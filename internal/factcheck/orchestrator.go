package factcheck

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"townbeat/internal/ai"
	"townbeat/internal/config"
	"townbeat/internal/retry"
)

const defaultClaimConcurrency = 4

// Record is one persisted fact-check row. Rows are written once per claim and
// never mutated.
type Record struct {
	ArticleDraftID int64
	ClaimText      string
	Result         string
	Confidence     float64
	Rationale      string
	Sources        []string
}

// Store persists fact-check rows.
type Store interface {
	InsertFactCheck(ctx context.Context, record Record) error
}

// Outcome reports one draft's pass through the fact-checking phase.
// Confidence is nil when no checks ran; a nil confidence never rejects.
type Outcome struct {
	Outline    ai.Outline
	Checks     []Record
	Confidence *float64
}

// Orchestrator generates an outline, extracts claims, and verifies each claim
// independently. Fact-checking is best-effort: claim extraction or individual
// verification failures never block the draft from reaching generation.
type Orchestrator struct {
	generator   ai.Generator
	store       Store
	policy      retry.Policy
	cfg         config.FactCheckConfig
	logger      zerolog.Logger
	concurrency int
}

func NewOrchestrator(generator ai.Generator, store Store, policy retry.Policy, cfg config.FactCheckConfig, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		generator:   generator,
		store:       store,
		policy:      policy,
		cfg:         cfg,
		logger:      logger,
		concurrency: defaultClaimConcurrency,
	}
}

// Run produces the outline and, when enabled, the verified claim set for one
// shortlisted draft. An outline failure is the only hard failure; everything
// downstream degrades gracefully.
func (o *Orchestrator) Run(ctx context.Context, draftID int64, item ai.ScoreItem, enabled bool) (Outcome, error) {
	if o == nil || o.generator == nil {
		return Outcome{}, fmt.Errorf("fact-check orchestrator is not initialized")
	}

	var outline ai.Outline
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		generated, outlineErr := o.generator.Outline(ctx, item)
		if outlineErr != nil {
			return outlineErr
		}
		outline = generated
		return nil
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("generate outline for draft %d: %w", draftID, err)
	}

	outcome := Outcome{Outline: outline}
	if !enabled {
		return outcome, nil
	}

	return o.Check(ctx, draftID, outline)
}

// Check extracts and verifies claims against an already generated outline.
// It never fails the draft: extraction errors and per-claim errors degrade to
// fewer (or no) checks.
func (o *Orchestrator) Check(ctx context.Context, draftID int64, outline ai.Outline) (Outcome, error) {
	outcome := Outcome{Outline: outline}

	claims, err := o.extractClaims(ctx, outline)
	if err != nil {
		o.logger.Warn().
			Err(err).
			Int64("draft_id", draftID).
			Msg("claim extraction failed; draft proceeds without fact checks")
		return outcome, nil
	}
	if len(claims) == 0 {
		return outcome, nil
	}

	outcome.Checks = o.verifyClaims(ctx, draftID, outline, claims)
	if len(outcome.Checks) > 0 {
		total := 0.0
		for _, check := range outcome.Checks {
			total += check.Confidence
		}
		mean := total / float64(len(outcome.Checks))
		outcome.Confidence = &mean
	}

	return outcome, nil
}

// BelowMinimum reports whether a computed confidence falls under the
// configured floor. A nil confidence means checks never ran and passes.
func (o *Orchestrator) BelowMinimum(confidence *float64) bool {
	if confidence == nil {
		return false
	}
	return *confidence < o.cfg.MinConfidence
}

func (o *Orchestrator) extractClaims(ctx context.Context, outline ai.Outline) ([]ai.Claim, error) {
	var claims []ai.Claim
	err := o.policy.Do(ctx, func(ctx context.Context) error {
		extracted, claimsErr := o.generator.Claims(ctx, outline)
		if claimsErr != nil {
			return claimsErr
		}
		claims = extracted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// verifyClaims fans verification out per claim. A failed claim is logged and
// skipped; sibling claims are unaffected.
func (o *Orchestrator) verifyClaims(ctx context.Context, draftID int64, outline ai.Outline, claims []ai.Claim) []Record {
	contextText := strings.Join(outline.KeyPoints, "\n")

	var mu sync.Mutex
	records := make([]Record, 0, len(claims))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)

	for _, claim := range claims {
		claim := claim
		group.Go(func() error {
			var verdict ai.ClaimVerdict
			err := o.policy.Do(groupCtx, func(ctx context.Context) error {
				checked, checkErr := o.generator.FactCheck(ctx, claim, contextText)
				if checkErr != nil {
					return checkErr
				}
				verdict = checked
				return nil
			})
			if err != nil {
				o.logger.Warn().
					Err(err).
					Int64("draft_id", draftID).
					Str("claim", claim.Text).
					Msg("claim verification failed; skipping claim")
				return nil
			}

			record := Record{
				ArticleDraftID: draftID,
				ClaimText:      claim.Text,
				Result:         verdict.Result,
				Confidence:     verdict.Confidence,
				Rationale:      verdict.Rationale,
				Sources:        verdict.Sources,
			}
			if o.store != nil {
				if err := o.store.InsertFactCheck(groupCtx, record); err != nil {
					o.logger.Warn().
						Err(err).
						Int64("draft_id", draftID).
						Str("claim", claim.Text).
						Msg("failed to persist fact check; skipping claim")
					return nil
				}
			}

			mu.Lock()
			records = append(records, record)
			mu.Unlock()
			return nil
		})
	}

	// Workers never return errors; Wait only observes context cancellation.
	_ = group.Wait()
	return records
}
