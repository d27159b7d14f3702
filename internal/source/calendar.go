package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// CalendarEvent is one listing scraped from a venue calendar page.
type CalendarEvent struct {
	Title         string
	VenueName     string
	PerformerName string
	DetailURL     string
	StartsAt      *time.Time
	OccursOn      *time.Time
}

// Date layouts accepted in calendar markup, most specific first.
var calendarTimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04",
	"2006-01-02",
}

// CalendarFetcher adapts FetchCalendar to the workflow calendar port.
type CalendarFetcher struct {
	opts FetchOptions
}

func NewCalendarFetcher(opts FetchOptions) *CalendarFetcher {
	return &CalendarFetcher{opts: opts}
}

func (f *CalendarFetcher) Fetch(ctx context.Context, pageURL string) ([]CalendarEvent, error) {
	return FetchCalendar(ctx, pageURL, f.opts)
}

// FetchCalendar downloads a venue calendar page and extracts its listings.
func FetchCalendar(ctx context.Context, pageURL string, opts FetchOptions) ([]CalendarEvent, error) {
	page := strings.TrimSpace(pageURL)
	if page == "" {
		return nil, fmt.Errorf("calendar URL is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	bodyLimit := opts.BodyByteLimit
	if bodyLimit <= 0 {
		bodyLimit = DefaultBodyByteLimit
	}

	fetchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, page, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	userAgent := strings.TrimSpace(opts.UserAgent)
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch calendar: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch status %d", resp.StatusCode)
	}

	return ParseCalendarHTML(io.LimitReader(resp.Body, bodyLimit), page)
}

// ParseCalendarHTML extracts event listings from a venue calendar page.
// It looks for schema.org Event microdata first, then falls back to the
// common .event card convention. baseURL resolves relative detail links.
func ParseCalendarHTML(r io.Reader, baseURL string) ([]CalendarEvent, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse calendar html: %w", err)
	}

	base, _ := url.Parse(strings.TrimSpace(baseURL))

	selection := doc.Find(`[itemtype$="schema.org/Event"]`)
	if selection.Length() == 0 {
		selection = doc.Find(".event")
	}

	var events []CalendarEvent
	selection.Each(func(_ int, node *goquery.Selection) {
		event := CalendarEvent{
			Title:         firstText(node, `[itemprop="name"]`, ".event-title", "h2", "h3"),
			VenueName:     firstText(node, `[itemprop="location"]`, ".event-venue", ".venue"),
			PerformerName: firstText(node, `[itemprop="performer"]`, ".event-performer", ".performer"),
		}
		if event.Title == "" {
			return
		}

		if href, ok := node.Find("a[href]").First().Attr("href"); ok {
			event.DetailURL = resolveLink(base, href)
		}

		raw := firstAttr(node, "datetime", `time[datetime]`, `[itemprop="startDate"]`)
		if raw == "" {
			raw = firstText(node, ".event-date", ".date")
		}
		if parsed, hasClock := parseCalendarTime(raw); parsed != nil {
			day := time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 0, 0, 0, 0, time.UTC)
			event.OccursOn = &day
			if hasClock {
				event.StartsAt = parsed
			}
		}

		events = append(events, event)
	})

	return events, nil
}

func firstText(node *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(node.Find(selector).First().Text()); text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

func firstAttr(node *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		if value, ok := node.Find(selector).First().Attr(attr); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

func parseCalendarTime(raw string) (*time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, false
	}
	for _, layout := range calendarTimeLayouts {
		parsed, err := time.Parse(layout, trimmed)
		if err != nil {
			continue
		}
		utc := parsed.UTC()
		return &utc, layout != "2006-01-02"
	}
	return nil, false
}

func resolveLink(base *url.URL, href string) string {
	trimmed := strings.TrimSpace(href)
	if trimmed == "" {
		return ""
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.String()
}
