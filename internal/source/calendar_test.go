package source

import (
	"strings"
	"testing"
)

const microdataCalendar = `
<html><body>
  <div itemscope itemtype="https://schema.org/Event">
    <span itemprop="name">Summer Jazz Night</span>
    <span itemprop="location">Grand Avenue Ballroom</span>
    <span itemprop="performer">The Riverside Quartet</span>
    <time itemprop="startDate" datetime="2026-09-12T19:30:00Z">Sep 12</time>
    <a href="/events/summer-jazz-night">Details</a>
  </div>
  <div itemscope itemtype="https://schema.org/Event">
    <span itemprop="name">Open Mic</span>
    <time datetime="2026-09-14">Sep 14</time>
  </div>
</body></html>`

const cardCalendar = `
<html><body>
  <div class="event">
    <h3 class="event-title">Farmers Market</h3>
    <span class="event-venue">Town Square</span>
    <span class="event-date">2026-09-05</span>
  </div>
  <div class="event">
    <h3></h3>
  </div>
</body></html>`

func TestParseCalendarHTML_Microdata(t *testing.T) {
	t.Parallel()

	events, err := ParseCalendarHTML(strings.NewReader(microdataCalendar), "https://venue.example.com/calendar")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	first := events[0]
	if first.Title != "Summer Jazz Night" {
		t.Fatalf("title = %q", first.Title)
	}
	if first.VenueName != "Grand Avenue Ballroom" {
		t.Fatalf("venue = %q", first.VenueName)
	}
	if first.PerformerName != "The Riverside Quartet" {
		t.Fatalf("performer = %q", first.PerformerName)
	}
	if first.DetailURL != "https://venue.example.com/events/summer-jazz-night" {
		t.Fatalf("detail url = %q", first.DetailURL)
	}
	if first.StartsAt == nil || first.StartsAt.Format("2006-01-02T15:04") != "2026-09-12T19:30" {
		t.Fatalf("starts at = %v", first.StartsAt)
	}
	if first.OccursOn == nil || first.OccursOn.Format("2006-01-02") != "2026-09-12" {
		t.Fatalf("occurs on = %v", first.OccursOn)
	}

	// Date-only markup sets the day but not a start time.
	second := events[1]
	if second.StartsAt != nil {
		t.Fatalf("expected no start time for date-only event, got %v", second.StartsAt)
	}
	if second.OccursOn == nil || second.OccursOn.Format("2006-01-02") != "2026-09-14" {
		t.Fatalf("occurs on = %v", second.OccursOn)
	}
}

func TestParseCalendarHTML_CardFallback(t *testing.T) {
	t.Parallel()

	events, err := ParseCalendarHTML(strings.NewReader(cardCalendar), "https://venue.example.com")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected the untitled card dropped, got %d events", len(events))
	}
	if events[0].Title != "Farmers Market" || events[0].VenueName != "Town Square" {
		t.Fatalf("unexpected event: %+v", events[0])
	}
	if events[0].OccursOn == nil || events[0].OccursOn.Format("2006-01-02") != "2026-09-05" {
		t.Fatalf("occurs on = %v", events[0].OccursOn)
	}
}
