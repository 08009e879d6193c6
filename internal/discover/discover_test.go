package discover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohaanymo/veld/internal/selector"
)

func TestIsManifestURLRecognizesExtensions(t *testing.T) {
	cases := map[string]bool{
		"https://cdn.example.com/video/index.m3u8":   true,
		"https://cdn.example.com/video/index.mpd":    true,
		"https://cdn.example.com/video/manifest.xml": true,
		"https://example.com/watch?v=abc":             false,
	}
	for u, want := range cases {
		if got := IsManifestURL(u); got != want {
			t.Errorf("IsManifestURL(%q) = %v, want %v", u, got, want)
		}
	}
}

func TestExtractManifestURLsDedupesAndPreservesOrder(t *testing.T) {
	html := `
		<html><body>
		<script>var src = "https://cdn.example.com/a.m3u8?token=1";</script>
		<source src='https://cdn.example.com/b.mpd'>
		<script>var src2 = "https://cdn.example.com/a.m3u8?token=1";</script>
		</body></html>`

	got := ExtractManifestURLs(html)
	want := []string{
		"https://cdn.example.com/a.m3u8?token=1",
		"https://cdn.example.com/b.mpd",
	}
	if len(got) != len(want) {
		t.Fatalf("got %d urls, want %d: %v", len(got), len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("url[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFindManifestURLsFetchesAndScrapes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<a href="https://cdn.example.com/stream.m3u8">watch</a>`))
	}))
	defer srv.Close()

	urls, err := FindManifestURLs(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("FindManifestURLs: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://cdn.example.com/stream.m3u8" {
		t.Fatalf("got %v, want single scraped URL", urls)
	}
}

func TestChooseManifestURLAutoSelectsSingleHit(t *testing.T) {
	got, err := ChooseManifestURL([]string{"https://a.example.com/x.m3u8"}, selector.ModeRaw, strings.NewReader(""), &strings.Builder{})
	if err != nil {
		t.Fatalf("ChooseManifestURL: %v", err)
	}
	if got != "https://a.example.com/x.m3u8" {
		t.Fatalf("got %q, want single URL returned unprompted", got)
	}
}

func TestChooseManifestURLModeNoneTakesFirst(t *testing.T) {
	urls := []string{"https://a.example.com/1.m3u8", "https://a.example.com/2.m3u8"}
	got, err := ChooseManifestURL(urls, selector.ModeNone, strings.NewReader(""), &strings.Builder{})
	if err != nil {
		t.Fatalf("ChooseManifestURL: %v", err)
	}
	if got != urls[0] {
		t.Fatalf("got %q, want first URL under ModeNone", got)
	}
}

func TestChooseManifestURLPromptsForIndex(t *testing.T) {
	urls := []string{"https://a.example.com/1.m3u8", "https://a.example.com/2.m3u8"}
	var out strings.Builder
	got, err := ChooseManifestURL(urls, selector.ModeRaw, strings.NewReader("2\n"), &out)
	if err != nil {
		t.Fatalf("ChooseManifestURL: %v", err)
	}
	if got != urls[1] {
		t.Fatalf("got %q, want second URL selected by index", got)
	}
	if !strings.Contains(out.String(), "multiple manifest URLs found") {
		t.Fatalf("expected prompt text, got %q", out.String())
	}
}

func TestChooseManifestURLRejectsOutOfRangeIndex(t *testing.T) {
	urls := []string{"https://a.example.com/1.m3u8", "https://a.example.com/2.m3u8"}
	_, err := ChooseManifestURL(urls, selector.ModeRaw, strings.NewReader("9\n"), &strings.Builder{})
	if err == nil {
		t.Fatal("expected error for out-of-range selection")
	}
}
