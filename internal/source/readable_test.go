package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCleanText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		raw  string
		want string
	}{
		{"collapses spaces", "a   b\t c", "a b c"},
		{"keeps paragraphs", "first line\n\nsecond line", "first line\n\nsecond line"},
		{"windows line endings", "first\r\nsecond", "first\n\nsecond"},
		{"blank input", "  \n \t ", ""},
	}
	for _, tc := range cases {
		if got := CleanText(tc.raw); got != tc.want {
			t.Fatalf("%s: CleanText(%q) = %q, want %q", tc.name, tc.raw, got, tc.want)
		}
	}
}

func TestTruncateText(t *testing.T) {
	t.Parallel()

	if got, cut := TruncateText("short text", 100); got != "short text" || cut {
		t.Fatalf("text under the limit must pass through, got %q cut=%v", got, cut)
	}
	if got, cut := TruncateText("untouched", 0); got != "untouched" || cut {
		t.Fatalf("zero limit must disable clipping, got %q cut=%v", got, cut)
	}

	got, cut := TruncateText(strings.Repeat("x", 50), 10)
	if !cut {
		t.Fatal("long text must report clipping")
	}
	if runes := []rune(got); len(runes) != 10 || !strings.HasSuffix(got, "…") {
		t.Fatalf("clipped text = %q (%d runes)", got, len(runes))
	}
}

func TestReadableFetcherPlainText(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("The bakery on Main Street   opened this week.\n"))
	}))
	defer server.Close()

	fetcher := NewReadableFetcher(FetchOptions{HTTPClient: server.Client()})
	text, err := fetcher.Extract(context.Background(), server.URL, "New bakery opens")
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if text != "The bakery on Main Street opened this week." {
		t.Fatalf("extracted text = %q", text)
	}
}

func TestFetchReadableTextErrors(t *testing.T) {
	t.Parallel()

	if _, err := FetchReadableText(context.Background(), "  ", "title", FetchOptions{}); err == nil {
		t.Fatal("blank URL must fail")
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	if _, err := FetchReadableText(context.Background(), server.URL, "title", FetchOptions{HTTPClient: server.Client()}); err == nil {
		t.Fatal("non-2xx status must fail")
	}
}
