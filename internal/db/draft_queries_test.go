package db

import (
	"strings"
	"testing"
	"time"

	"townbeat/internal/draft"
)

func TestDateWindowQueryDatedCandidate(t *testing.T) {
	t.Parallel()

	table, idColumn, _, dateColumn, err := draftTable(draft.KindEvent)
	if err != nil {
		t.Fatalf("draft table: %v", err)
	}

	date := time.Date(2026, 9, 12, 15, 0, 0, 0, time.UTC)
	query, args := dateWindowQuery(table, idColumn, "COALESCE(venue_name, '')", dateColumn, 7, &date, 3)

	if !strings.Contains(query, "starts_on BETWEEN ? AND ?") {
		t.Fatalf("query missing date window:\n%s", query)
	}
	if len(args) != 3 {
		t.Fatalf("expected scope id plus two bounds, got %d args", len(args))
	}
	lo, hi := args[1].(time.Time), args[2].(time.Time)
	if lo.Format("2006-01-02") != "2026-09-09" || hi.Format("2006-01-02") != "2026-09-15" {
		t.Fatalf("window bounds = %v .. %v", lo, hi)
	}
}

func TestDateWindowQueryDatelessCandidate(t *testing.T) {
	t.Parallel()

	table, idColumn, _, dateColumn, err := draftTable(draft.KindArticle)
	if err != nil {
		t.Fatalf("draft table: %v", err)
	}

	query, args := dateWindowQuery(table, idColumn, "''", dateColumn, 7, nil, 3)

	if !strings.Contains(query, "signal_date IS NULL") {
		t.Fatalf("dateless candidate must scan only dateless drafts:\n%s", query)
	}
	if strings.Contains(query, "BETWEEN") {
		t.Fatalf("dateless candidate must not carry window bounds:\n%s", query)
	}
	if len(args) != 1 {
		t.Fatalf("expected only the scope id, got %d args", len(args))
	}
}

func TestDateWindowQueryClampsNegativeWindow(t *testing.T) {
	t.Parallel()

	date := time.Date(2026, 9, 12, 0, 0, 0, 0, time.UTC)
	_, args := dateWindowQuery("editorial.event_drafts", "event_draft_id", "''", "starts_on", 7, &date, -5)

	lo, hi := args[1].(time.Time), args[2].(time.Time)
	if !lo.Equal(hi) || lo.Format("2006-01-02") != "2026-09-12" {
		t.Fatalf("negative window must clamp to same-day, got %v .. %v", lo, hi)
	}
}
