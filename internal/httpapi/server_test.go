package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"townbeat/internal/draft"
)

func TestParsePositiveInt(t *testing.T) {
	t.Parallel()

	if got, err := parsePositiveInt("", 25, 1, 200); err != nil || got != 25 {
		t.Fatalf("empty input: got %d, err %v", got, err)
	}
	if got, err := parsePositiveInt(" 42 ", 25, 1, 200); err != nil || got != 42 {
		t.Fatalf("trimmed input: got %d, err %v", got, err)
	}
	if _, err := parsePositiveInt("abc", 25, 1, 200); err == nil {
		t.Fatal("expected error for non-integer")
	}
	if _, err := parsePositiveInt("500", 25, 1, 200); err == nil {
		t.Fatal("expected error for out-of-range value")
	}
}

func TestParseTimeFilter(t *testing.T) {
	t.Parallel()

	got, err := parseTimeFilter("2026-08-27T10:00:00Z", false)
	if err != nil || got == nil {
		t.Fatalf("RFC3339 input: got %v, err %v", got, err)
	}

	endOfDay, err := parseTimeFilter("2026-08-27", true)
	if err != nil || endOfDay == nil {
		t.Fatalf("date input: got %v, err %v", endOfDay, err)
	}
	if endOfDay.Hour() != 23 || endOfDay.Minute() != 59 {
		t.Fatalf("end-of-day must land at the last instant, got %v", endOfDay)
	}

	if _, err := parseTimeFilter("yesterday", false); err == nil {
		t.Fatal("expected error for invalid format")
	}
}

func TestBuildDraftListQuery_Article(t *testing.T) {
	t.Parallel()

	sqlText, args, err := buildDraftListQuery(draftListFilter{
		RegionID: 7,
		Kind:     draft.KindArticle,
		Status:   "rejected",
		Query:    "bakery",
		Page:     2,
		PageSize: 25,
	})
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	for _, fragment := range []string{
		"FROM editorial.article_drafts",
		"region_id = ?",
		"status = ?",
		"source_title ILIKE ?",
		"ORDER BY article_draft_id DESC",
		"LIMIT 25",
		"OFFSET 25",
	} {
		if !strings.Contains(sqlText, fragment) {
			t.Fatalf("query missing %q:\n%s", fragment, sqlText)
		}
	}
	if len(args) != 3 {
		t.Fatalf("expected 3 args, got %v", args)
	}
	if args[2] != "%bakery%" {
		t.Fatalf("search arg = %v", args[2])
	}
}

func TestBuildDraftCountQuery_EventWithoutFilters(t *testing.T) {
	t.Parallel()

	sqlText, args, err := buildDraftCountQuery(draftListFilter{
		RegionID: 3,
		Kind:     draft.KindEvent,
		Page:     1,
		PageSize: 25,
	})
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	if !strings.Contains(sqlText, "SELECT COUNT(*) FROM editorial.event_drafts") {
		t.Fatalf("unexpected query:\n%s", sqlText)
	}
	if strings.Contains(sqlText, "status") || strings.Contains(sqlText, "ILIKE") {
		t.Fatalf("optional filters must be absent:\n%s", sqlText)
	}
	if len(args) != 1 || args[0] != int64(3) {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestBuildPostListQuery(t *testing.T) {
	t.Parallel()

	regionID := int64(4)
	breaking := true
	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	sqlText, args, err := buildPostListQuery(postListFilter{
		RegionID: &regionID,
		Category: "events",
		Breaking: &breaking,
		From:     &from,
		Page:     1,
		PageSize: 10,
	})
	if err != nil {
		t.Fatalf("build query: %v", err)
	}

	for _, fragment := range []string{
		"FROM editorial.published_posts p",
		"JOIN editorial.regions r ON r.region_id = p.region_id",
		"p.region_id = ?",
		"p.category = ?",
		"p.breaking = ?",
		"p.published_at >= ?",
		"ORDER BY p.published_at DESC, p.post_id DESC",
		"LIMIT 10",
	} {
		if !strings.Contains(sqlText, fragment) {
			t.Fatalf("query missing %q:\n%s", fragment, sqlText)
		}
	}
	if len(args) != 4 {
		t.Fatalf("expected 4 args, got %v", args)
	}
}

func TestHandleHealth(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zerolog.Nop(), Options{})
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "success" {
		t.Fatalf("jsend status = %q", body.Status)
	}
	data, ok := body.Data.(map[string]any)
	if !ok || data["service"] != "townbeat" {
		t.Fatalf("unexpected payload: %v", body.Data)
	}
}

func TestHandleDrafts_MissingRegion(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zerolog.Nop(), Options{})
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drafts", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}

	var body jsendResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Status != "fail" {
		t.Fatalf("jsend status = %q", body.Status)
	}
}

func TestHandleDrafts_BadKind(t *testing.T) {
	t.Parallel()

	srv := NewServer(nil, zerolog.Nop(), Options{})
	e := srv.buildEcho()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drafts?region=riverton&kind=story", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}
