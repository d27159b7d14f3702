package source

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/config"
	"townbeat/internal/dedup"
	"townbeat/internal/draft"
	"townbeat/internal/schema"
)

// ErrLanguageNotAllowed marks a signal whose detected language is outside the
// configured allowlist. Callers drop the signal without retrying.
var ErrLanguageNotAllowed = errors.New("signal language not allowed")

// NormalizedSignal is an admitted raw signal: schema-valid, canonicalized,
// language-gated, and hashed for the dedup ladder.
type NormalizedSignal struct {
	Kind            draft.Kind
	Source          string
	Title           string
	NormalizedTitle string
	CanonicalURL    string
	SourceHost      string
	ExternalID      string
	BodyText        string
	Language        string
	Topics          []string
	VenueName       string
	PerformerName   string
	OccursOn        *time.Time
	StartsAt        *time.Time
	PublishedAt     *time.Time
	PayloadHash     []byte
	ContentHash     []byte
	Payload         json.RawMessage
}

// Normalizer turns collector payloads into admitted signals.
type Normalizer struct {
	cfg    config.WorkflowConfig
	logger zerolog.Logger
}

func NewNormalizer(cfg config.WorkflowConfig, logger zerolog.Logger) *Normalizer {
	return &Normalizer{cfg: cfg, logger: logger}
}

// Normalize validates raw against the signal schema and canonicalizes it.
// Schema violations and disallowed languages return errors; both are final
// for the payload, never retried.
func (n *Normalizer) Normalize(raw json.RawMessage) (*NormalizedSignal, error) {
	payload, err := schema.ValidateSignalPayload(raw)
	if err != nil {
		return nil, fmt.Errorf("validate signal payload: %w", err)
	}

	title := strings.TrimSpace(payload.Title)
	bodyText := ""
	if payload.BodyText != nil {
		bodyText = CleanText(*payload.BodyText)
	}

	language := ""
	if payload.Language != nil {
		language = PrimaryLanguage(*payload.Language)
	}
	// An empty allowlist admits every language, so detection cannot change
	// the outcome and the detector models stay unloaded.
	if language == "" && len(n.cfg.Language.Allowed) > 0 {
		language = DetectLanguage(strings.TrimSpace(title + "\n" + bodyText))
	}
	if !LanguageAllowed(language, n.cfg.Language) {
		return nil, fmt.Errorf("%w: %q", ErrLanguageNotAllowed, language)
	}

	canonicalURL, host := "", ""
	if payload.CanonicalURL != nil {
		canonicalURL, host = NormalizeURL(*payload.CanonicalURL)
	}

	signal := &NormalizedSignal{
		Kind:            draft.Kind(payload.Kind),
		Source:          strings.ToLower(strings.TrimSpace(payload.Source)),
		Title:           title,
		NormalizedTitle: dedup.NormalizeField(title),
		CanonicalURL:    canonicalURL,
		SourceHost:      host,
		ExternalID:      ExternalID(payload.Source, payload.SourceItemID),
		BodyText:        bodyText,
		Language:        language,
		Topics:          payload.Topics,
		PayloadHash:     hashBytes(raw),
		Payload:         raw,
	}
	if payload.VenueName != nil {
		signal.VenueName = strings.TrimSpace(*payload.VenueName)
	}
	if payload.PerformerName != nil {
		signal.PerformerName = strings.TrimSpace(*payload.PerformerName)
	}
	signal.OccursOn = payload.OccursDate()
	if payload.StartsAt != nil {
		if startsAt, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(*payload.StartsAt)); parseErr == nil {
			utc := startsAt.UTC()
			signal.StartsAt = &utc
		}
	}
	if payload.PublishedAt != nil {
		if publishedAt, parseErr := time.Parse(time.RFC3339, strings.TrimSpace(*payload.PublishedAt)); parseErr == nil {
			utc := publishedAt.UTC()
			signal.PublishedAt = &utc
		}
	}

	signal.ContentHash = dedup.GenerateContentHash(signal.Title, signal.OccursOn, signal.VenueName, signal.CanonicalURL)
	return signal, nil
}

// ExternalID joins the source name and its item id into the stable
// cross-source identifier used by the dedup ladder.
func ExternalID(sourceName, itemID string) string {
	sourceName = strings.ToLower(strings.TrimSpace(sourceName))
	itemID = strings.TrimSpace(itemID)
	if sourceName == "" || itemID == "" {
		return ""
	}
	return sourceName + ":" + itemID
}

func hashBytes(raw []byte) []byte {
	sum := sha256.Sum256(raw)
	return sum[:]
}
