package source

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"townbeat/internal/config"
	"townbeat/internal/draft"
)

func newNormalizer(allowed ...string) *Normalizer {
	cfg := config.DefaultWorkflow()
	cfg.Language.Allowed = allowed
	return NewNormalizer(cfg, zerolog.Nop())
}

func TestNormalize_Article(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"payload_version":"v1",
		"source":"RSS",
		"source_item_id":"item-1",
		"kind":"article",
		"title":"  Council Approves   Parking Changes ",
		"canonical_url":"HTTPS://Example.com/news/parking/?utm_source=mail",
		"published_at":"2026-08-27T14:00:00Z",
		"language":"en-US"
	}`)

	signal, err := newNormalizer("en").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if signal.Kind != draft.KindArticle {
		t.Fatalf("kind = %q", signal.Kind)
	}
	if signal.NormalizedTitle != "council approves parking changes" {
		t.Fatalf("normalized title = %q", signal.NormalizedTitle)
	}
	if signal.CanonicalURL != "https://example.com/news/parking" {
		t.Fatalf("canonical url = %q", signal.CanonicalURL)
	}
	if signal.ExternalID != "rss:item-1" {
		t.Fatalf("external id = %q", signal.ExternalID)
	}
	if signal.Language != "en" {
		t.Fatalf("language = %q", signal.Language)
	}
	if len(signal.PayloadHash) == 0 || len(signal.ContentHash) == 0 {
		t.Fatal("expected both hashes populated")
	}
	if signal.PublishedAt == nil {
		t.Fatal("expected published_at parsed")
	}
}

func TestNormalize_EventCarriesDateAndVenue(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"payload_version":"v1",
		"source":"venue-calendar",
		"source_item_id":"ev-77",
		"kind":"event",
		"title":"Summer Jazz Night",
		"occurs_on":"2026-09-12",
		"venue_name":" Grand Avenue Ballroom ",
		"performer_name":"The Riverside Quartet",
		"language":"en"
	}`)

	signal, err := newNormalizer("en").Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Kind != draft.KindEvent {
		t.Fatalf("kind = %q", signal.Kind)
	}
	if signal.VenueName != "Grand Avenue Ballroom" {
		t.Fatalf("venue = %q", signal.VenueName)
	}
	if signal.OccursOn == nil || signal.OccursOn.Format("2006-01-02") != "2026-09-12" {
		t.Fatalf("occurs on = %v", signal.OccursOn)
	}
}

func TestNormalize_DisallowedLanguage(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"source_item_id":"item-2",
		"kind":"article",
		"title":"Stadtrat beschließt neue Parkregeln",
		"language":"de"
	}`)

	_, err := newNormalizer("en").Normalize(raw)
	if !errors.Is(err, ErrLanguageNotAllowed) {
		t.Fatalf("expected ErrLanguageNotAllowed, got %v", err)
	}
}

func TestNormalize_EmptyAllowlistSkipsDetection(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"source_item_id":"item-3",
		"kind":"article",
		"title":"Stadtrat beschließt neue Parkregeln"
	}`)

	// No allowlist and no declared language: the signal is admitted with an
	// unknown language and the detector is never consulted.
	signal, err := newNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if signal.Language != "" {
		t.Fatalf("language must stay undetected, got %q", signal.Language)
	}
}

func TestNormalize_SchemaViolation(t *testing.T) {
	t.Parallel()

	raw := json.RawMessage(`{"payload_version":"v1","source":"rss","kind":"article","title":"missing id"}`)
	if _, err := newNormalizer("en").Normalize(raw); err == nil {
		t.Fatal("expected schema validation error")
	}
}

func TestExternalID(t *testing.T) {
	t.Parallel()

	if got := ExternalID(" RSS ", "item-1"); got != "rss:item-1" {
		t.Fatalf("external id = %q", got)
	}
	if got := ExternalID("", "item-1"); got != "" {
		t.Fatalf("expected empty id for blank source, got %q", got)
	}
}

func TestLanguageAllowed(t *testing.T) {
	t.Parallel()

	cfg := config.LanguageConfig{Allowed: []string{"en"}}
	if !LanguageAllowed("en-US", cfg) {
		t.Fatal("primary subtag must match the allowlist")
	}
	if LanguageAllowed("de", cfg) {
		t.Fatal("disallowed language must be gated")
	}
	if !LanguageAllowed("", cfg) {
		t.Fatal("unknown language must pass")
	}
	if !LanguageAllowed("de", config.LanguageConfig{}) {
		t.Fatal("empty allowlist must admit everything")
	}
}
