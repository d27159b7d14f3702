package source

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// FeedItem is one entry pulled from an RSS or Atom feed, reduced to the
// fields the admission path consumes.
type FeedItem struct {
	Title      string
	Link       string
	GUID       string
	Summary    string
	Published  *time.Time
	Categories []string
}

// FeedFetcher pulls region source feeds.
type FeedFetcher struct {
	parser  *gofeed.Parser
	timeout time.Duration
}

func NewFeedFetcher(timeout time.Duration) *FeedFetcher {
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	parser := gofeed.NewParser()
	parser.UserAgent = defaultUserAgent
	return &FeedFetcher{parser: parser, timeout: timeout}
}

// Fetch downloads and parses the feed at feedURL.
func (f *FeedFetcher) Fetch(ctx context.Context, feedURL string) ([]FeedItem, error) {
	trimmed := strings.TrimSpace(feedURL)
	if trimmed == "" {
		return nil, fmt.Errorf("feed URL is required")
	}

	fetchCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	feed, err := f.parser.ParseURLWithContext(trimmed, fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", trimmed, err)
	}
	return mapFeedItems(feed), nil
}

// ParseFeed parses feed XML from r without fetching.
func (f *FeedFetcher) ParseFeed(r io.Reader) ([]FeedItem, error) {
	feed, err := f.parser.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return mapFeedItems(feed), nil
}

func mapFeedItems(feed *gofeed.Feed) []FeedItem {
	if feed == nil {
		return nil
	}

	items := make([]FeedItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}

		mapped := FeedItem{
			Title:      title,
			Link:       strings.TrimSpace(item.Link),
			GUID:       strings.TrimSpace(item.GUID),
			Summary:    CleanText(item.Description),
			Categories: item.Categories,
		}
		if item.PublishedParsed != nil {
			published := item.PublishedParsed.UTC()
			mapped.Published = &published
		} else if item.UpdatedParsed != nil {
			updated := item.UpdatedParsed.UTC()
			mapped.Published = &updated
		}
		items = append(items, mapped)
	}
	return items
}
