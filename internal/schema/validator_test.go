package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestValidateSignalPayload_ValidArticle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"source_item_id":"item-4821",
		"kind":"article",
		"title":"Council approves downtown parking changes",
		"canonical_url":"https://example.com/news/parking-changes",
		"published_at":"2026-08-27T14:00:00Z",
		"language":"en",
		"topics":["news","business"]
	}`)

	item, err := ValidateSignalPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	if item.Kind != "article" {
		t.Fatalf("expected kind=article, got %q", item.Kind)
	}
	if item.SourceItemID != "item-4821" {
		t.Fatalf("expected source_item_id=item-4821, got %q", item.SourceItemID)
	}
}

func TestValidateSignalPayload_ValidEvent(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"venue-calendar",
		"source_item_id":"ev-77",
		"kind":"event",
		"title":"Summer Jazz Night",
		"occurs_on":"2026-09-12",
		"venue_name":"Grand Avenue Ballroom",
		"performer_name":"The Riverside Quartet"
	}`)

	item, err := ValidateSignalPayload(payload)
	if err != nil {
		t.Fatalf("expected payload to be valid, got error: %v", err)
	}
	date := item.OccursDate()
	if date == nil || date.Format("2006-01-02") != "2026-09-12" {
		t.Fatalf("expected occurs date 2026-09-12, got %v", date)
	}
}

func TestValidateSignalPayload_MissingRequired(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"kind":"article",
		"title":"Missing source item id"
	}`)

	if _, err := ValidateSignalPayload(payload); err == nil {
		t.Fatal("expected validation to fail for missing source_item_id")
	}
}

func TestValidateSignalPayload_UnknownKind(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"source_item_id":"x",
		"kind":"podcast",
		"title":"Unsupported kind"
	}`)

	if _, err := ValidateSignalPayload(payload); err == nil {
		t.Fatal("expected validation to fail for unknown kind")
	}
}

func TestValidateSignalPayload_WhitespaceTitle(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"rss",
		"source_item_id":"x",
		"kind":"article",
		"title":"   "
	}`)

	_, err := ValidateSignalPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for whitespace-only title")
	}
	if !strings.Contains(err.Error(), "title must not be empty") {
		t.Fatalf("expected title semantic error, got: %v", err)
	}
}

func TestValidateSignalPayload_EventNeedsDate(t *testing.T) {
	payload := json.RawMessage(`{
		"payload_version":"v1",
		"source":"venue-calendar",
		"source_item_id":"ev-1",
		"kind":"event",
		"title":"Undated open mic"
	}`)

	_, err := ValidateSignalPayload(payload)
	if err == nil {
		t.Fatal("expected validation to fail for event without a date")
	}
	if !strings.Contains(err.Error(), "occurs_on or starts_at") {
		t.Fatalf("expected event date error, got: %v", err)
	}
}

func TestValidateSignalPayload_TrailingContent(t *testing.T) {
	payload := json.RawMessage(`{"payload_version":"v1","source":"rss","source_item_id":"x","kind":"article","title":"ok"} {}`)

	if _, err := ValidateSignalPayload(payload); err == nil {
		t.Fatal("expected validation to fail for trailing JSON content")
	}
}
