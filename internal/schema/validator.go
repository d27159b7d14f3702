package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed signal.schema.json
var signalSchemaJSON string

// SignalPayload is the validated shape of one ingested raw signal. Collectors
// submit this envelope for both article leads and event listings.
type SignalPayload struct {
	PayloadVersion string          `json:"payload_version"`
	Source         string          `json:"source"`
	SourceItemID   string          `json:"source_item_id"`
	Kind           string          `json:"kind"`
	Title          string          `json:"title"`
	CanonicalURL   *string         `json:"canonical_url,omitempty"`
	PublishedAt    *string         `json:"published_at,omitempty"`
	OccursOn       *string         `json:"occurs_on,omitempty"`
	StartsAt       *string         `json:"starts_at,omitempty"`
	VenueName      *string         `json:"venue_name,omitempty"`
	PerformerName  *string         `json:"performer_name,omitempty"`
	BodyText       *string         `json:"body_text,omitempty"`
	Language       *string         `json:"language,omitempty"`
	Topics         []string        `json:"topics,omitempty"`
	SourceMetadata json.RawMessage `json:"source_metadata,omitempty"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateSignalPayload checks raw against the embedded JSON schema plus the
// semantic rules the schema cannot express, and decodes the result.
func ValidateSignalPayload(raw json.RawMessage) (*SignalPayload, error) {
	value, err := decodeStrictJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	compiled, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}
	if err := compiled.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var payload SignalPayload
	if err := json.Unmarshal(normalized, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("signal.schema.json", strings.NewReader(signalSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiled, err := compiler.Compile("signal.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}
		compiledSchema = compiled
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}
	return value, nil
}

func validateSemantics(payload *SignalPayload) error {
	if payload == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(payload.Title) == "" {
		return fmt.Errorf("title must not be empty")
	}
	if strings.TrimSpace(payload.Source) == "" {
		return fmt.Errorf("source must not be empty")
	}
	if strings.TrimSpace(payload.SourceItemID) == "" {
		return fmt.Errorf("source_item_id must not be empty")
	}

	if payload.CanonicalURL != nil {
		trimmed := strings.TrimSpace(*payload.CanonicalURL)
		if trimmed == "" {
			return fmt.Errorf("canonical_url must not be empty")
		}
		if _, err := url.ParseRequestURI(trimmed); err != nil {
			return fmt.Errorf("canonical_url is not a valid URI: %w", err)
		}
	}
	if payload.PublishedAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.PublishedAt)); err != nil {
			return fmt.Errorf("published_at must be RFC3339: %w", err)
		}
	}
	if payload.StartsAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*payload.StartsAt)); err != nil {
			return fmt.Errorf("starts_at must be RFC3339: %w", err)
		}
	}
	if payload.OccursOn != nil {
		if _, err := time.Parse("2006-01-02", strings.TrimSpace(*payload.OccursOn)); err != nil {
			return fmt.Errorf("occurs_on must be a calendar date: %w", err)
		}
	}
	if payload.Kind == "event" && payload.OccursOn == nil && payload.StartsAt == nil {
		return fmt.Errorf("event payloads need occurs_on or starts_at")
	}

	for i, topic := range payload.Topics {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("topics[%d] must not be empty", i)
		}
	}
	return nil
}

// OccursDate resolves the event date, preferring the explicit occurs_on field
// over the starts_at timestamp. Returns nil when neither is present.
func (p *SignalPayload) OccursDate() *time.Time {
	if p == nil {
		return nil
	}
	if p.OccursOn != nil {
		if parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*p.OccursOn)); err == nil {
			return &parsed
		}
	}
	if p.StartsAt != nil {
		if parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(*p.StartsAt)); err == nil {
			day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}
