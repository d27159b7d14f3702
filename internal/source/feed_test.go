package source

import (
	"strings"
	"testing"
	"time"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Town Wire</title>
    <item>
      <title>Council approves downtown parking changes</title>
      <link>https://example.com/news/parking-changes</link>
      <guid>parking-changes-2026</guid>
      <description>The council voted 5-2 on Tuesday.</description>
      <category>news</category>
      <pubDate>Thu, 27 Aug 2026 14:00:00 GMT</pubDate>
    </item>
    <item>
      <title>   </title>
      <link>https://example.com/untitled</link>
    </item>
  </channel>
</rss>`

func TestParseFeed(t *testing.T) {
	t.Parallel()

	items, err := NewFeedFetcher(0).ParseFeed(strings.NewReader(sampleRSS))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the untitled item dropped, got %d items", len(items))
	}

	item := items[0]
	if item.Title != "Council approves downtown parking changes" {
		t.Fatalf("title = %q", item.Title)
	}
	if item.GUID != "parking-changes-2026" {
		t.Fatalf("guid = %q", item.GUID)
	}
	if item.Summary != "The council voted 5-2 on Tuesday." {
		t.Fatalf("summary = %q", item.Summary)
	}
	if len(item.Categories) != 1 || item.Categories[0] != "news" {
		t.Fatalf("categories = %v", item.Categories)
	}
	want := time.Date(2026, 8, 27, 14, 0, 0, 0, time.UTC)
	if item.Published == nil || !item.Published.Equal(want) {
		t.Fatalf("published = %v, want %v", item.Published, want)
	}
}

func TestParseFeed_Malformed(t *testing.T) {
	t.Parallel()

	if _, err := NewFeedFetcher(0).ParseFeed(strings.NewReader("not a feed")); err == nil {
		t.Fatal("expected parse error for malformed feed")
	}
}
