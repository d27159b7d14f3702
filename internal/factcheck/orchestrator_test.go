package factcheck

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"townbeat/internal/ai"
	"townbeat/internal/config"
	"townbeat/internal/retry"
)

type fakeGenerator struct {
	outlineErr error
	claimsErr  error
	claims     []ai.Claim

	mu       sync.Mutex
	verdicts map[string]ai.ClaimVerdict
	failFor  map[string]error
}

func (f *fakeGenerator) Outline(context.Context, ai.ScoreItem) (ai.Outline, error) {
	if f.outlineErr != nil {
		return ai.Outline{}, f.outlineErr
	}
	return ai.Outline{Title: "Council approves budget", KeyPoints: []string{"vote passed 5-2"}}, nil
}

func (f *fakeGenerator) Claims(context.Context, ai.Outline) ([]ai.Claim, error) {
	if f.claimsErr != nil {
		return nil, f.claimsErr
	}
	return f.claims, nil
}

func (f *fakeGenerator) FactCheck(_ context.Context, claim ai.Claim, _ string) (ai.ClaimVerdict, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[claim.Text]; ok {
		return ai.ClaimVerdict{}, err
	}
	return f.verdicts[claim.Text], nil
}

func (f *fakeGenerator) GenerateArticle(context.Context, ai.Outline, []ai.FactCheckInput) (ai.GeneratedArticle, error) {
	return ai.GeneratedArticle{}, errors.New("not used in this test")
}

type fakeCheckStore struct {
	mu        sync.Mutex
	inserted  []Record
	insertErr error
}

func (f *fakeCheckStore) InsertFactCheck(_ context.Context, record Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, record)
	return nil
}

func newOrchestrator(gen ai.Generator, store Store) *Orchestrator {
	cfg := config.DefaultWorkflow().FactCheck
	policy := retry.New(2, 0)
	return NewOrchestrator(gen, store, policy, cfg, zerolog.Nop())
}

func TestRun_OutlineFailureIsFatal(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{outlineErr: retry.Permanent(errors.New("model unavailable"))}
	_, err := newOrchestrator(gen, &fakeCheckStore{}).Run(context.Background(), 1, ai.ScoreItem{}, true)
	if err == nil {
		t.Fatal("expected outline failure to surface as an error")
	}
	if !strings.Contains(err.Error(), "generate outline") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRun_DisabledSkipsChecksButKeepsOutline(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{claims: []ai.Claim{{Text: "vote passed 5-2"}}}
	store := &fakeCheckStore{}

	outcome, err := newOrchestrator(gen, store).Run(context.Background(), 2, ai.ScoreItem{}, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Outline.Title == "" {
		t.Fatal("outline must be produced even when fact-checking is disabled")
	}
	if outcome.Confidence != nil || len(outcome.Checks) != 0 {
		t.Fatalf("disabled run must not produce checks, got %+v", outcome)
	}
	if len(store.inserted) != 0 {
		t.Fatalf("disabled run must not persist checks, got %d", len(store.inserted))
	}
}

func TestRun_ClaimExtractionFailureStillAdvances(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{claimsErr: retry.Permanent(errors.New("extraction timeout"))}
	outcome, err := newOrchestrator(gen, &fakeCheckStore{}).Run(context.Background(), 3, ai.ScoreItem{}, true)
	if err != nil {
		t.Fatalf("claim extraction failure must not fail the run: %v", err)
	}
	if outcome.Confidence != nil {
		t.Fatal("no checks ran, confidence must be nil")
	}
}

func TestRun_PerClaimFailureIsIsolated(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		claims: []ai.Claim{{Text: "claim a"}, {Text: "claim b"}, {Text: "claim c"}},
		verdicts: map[string]ai.ClaimVerdict{
			"claim a": {Result: ai.VerificationVerified, Confidence: 90},
			"claim c": {Result: ai.VerificationPlausible, Confidence: 70},
		},
		failFor: map[string]error{"claim b": retry.Permanent(errors.New("verifier down"))},
	}
	store := &fakeCheckStore{}

	outcome, err := newOrchestrator(gen, store).Run(context.Background(), 4, ai.ScoreItem{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(outcome.Checks) != 2 {
		t.Fatalf("expected 2 surviving checks, got %d", len(outcome.Checks))
	}
	if outcome.Confidence == nil {
		t.Fatal("expected a computed confidence")
	}
	if got := *outcome.Confidence; got < 79.9 || got > 80.1 {
		t.Fatalf("expected mean confidence 80, got %v", got)
	}
	if len(store.inserted) != 2 {
		t.Fatalf("expected 2 persisted checks, got %d", len(store.inserted))
	}
}

func TestRun_AllClaimsFailYieldsNilConfidence(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{
		claims: []ai.Claim{{Text: "claim a"}, {Text: "claim b"}},
		failFor: map[string]error{
			"claim a": retry.Permanent(errors.New("down")),
			"claim b": retry.Permanent(errors.New("down")),
		},
	}

	outcome, err := newOrchestrator(gen, &fakeCheckStore{}).Run(context.Background(), 5, ai.ScoreItem{}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome.Confidence != nil {
		t.Fatal("all checks failed, confidence must stay nil")
	}
}

func TestBelowMinimum(t *testing.T) {
	t.Parallel()

	orch := newOrchestrator(&fakeGenerator{}, nil)

	if orch.BelowMinimum(nil) {
		t.Fatal("nil confidence must never reject")
	}
	low := 20.0
	if !orch.BelowMinimum(&low) {
		t.Fatal("confidence below the floor must reject")
	}
	high := 95.0
	if orch.BelowMinimum(&high) {
		t.Fatal("confidence above the floor must pass")
	}
}
