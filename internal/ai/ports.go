package ai

import (
	"context"
	"encoding/json"
)

// The editorial core never talks to model or search vendors directly; phases
// consume these contracts and adapters live outside the pipeline.

// ScoreResult is the relevance/quality verdict for one candidate item.
type ScoreResult struct {
	Score     float64  `json:"score"`
	Tags      []string `json:"tags"`
	Rationale string   `json:"rationale"`
}

// ScoreItem is the loose candidate shape handed to the scorer.
type ScoreItem struct {
	Title   string          `json:"title"`
	Body    string          `json:"body,omitempty"`
	URL     string          `json:"url,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Scorer ranks raw candidates for a region on a 0-100 scale.
type Scorer interface {
	Score(ctx context.Context, item ScoreItem, regionSlug string) (ScoreResult, error)
}

// Outline is the structured skeleton generated before fact-checking.
type Outline struct {
	Title     string   `json:"title"`
	Sections  []string `json:"sections"`
	KeyPoints []string `json:"key_points"`
}

// Claim is one verifiable assertion extracted from an outline.
type Claim struct {
	Text          string `json:"text"`
	Importance    string `json:"importance,omitempty"`
	SourcesNeeded int    `json:"sources_needed,omitempty"`
}

// Verification result values.
const (
	VerificationVerified   = "verified"
	VerificationPlausible  = "plausible"
	VerificationUnverified = "unverified"
	VerificationDisputed   = "disputed"
)

// ClaimVerdict is the outcome of checking a single claim.
type ClaimVerdict struct {
	Result     string   `json:"result"`
	Confidence float64  `json:"confidence"`
	Rationale  string   `json:"rationale"`
	Sources    []string `json:"sources,omitempty"`
}

// GeneratedArticle is the full content produced by the generation phase.
type GeneratedArticle struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Excerpt  string   `json:"excerpt"`
	Keywords []string `json:"keywords"`
}

// FactCheckInput carries verified claims into article generation.
type FactCheckInput struct {
	ClaimText  string  `json:"claim_text"`
	Result     string  `json:"result"`
	Confidence float64 `json:"confidence"`
}

// Generator covers outline creation, claim extraction, claim verification,
// and final article generation.
type Generator interface {
	Outline(ctx context.Context, item ScoreItem) (Outline, error)
	Claims(ctx context.Context, outline Outline) ([]Claim, error)
	FactCheck(ctx context.Context, claim Claim, contextText string) (ClaimVerdict, error)
	GenerateArticle(ctx context.Context, outline Outline, checks []FactCheckInput) (GeneratedArticle, error)
}

// GeocodeResult locates a venue.
type GeocodeResult struct {
	Latitude   float64 `json:"lat"`
	Longitude  float64 `json:"lng"`
	PostalCode string  `json:"postal_code"`
	PlaceID    string  `json:"place_id"`
}

// Geocoder resolves venue names to coordinates; nil result means not found.
type Geocoder interface {
	GeocodeVenue(ctx context.Context, name, address, regionHint string) (*GeocodeResult, error)
}

// ImageResult is a header image candidate with required attribution.
type ImageResult struct {
	URL          string `json:"url"`
	Attribution  string `json:"attribution"`
	Photographer string `json:"photographer"`
}

// ImageSearcher finds a header image; nil result falls back to the
// placeholder provider, never fails the phase.
type ImageSearcher interface {
	Search(ctx context.Context, keywords []string, orientation string) (*ImageResult, error)
}
