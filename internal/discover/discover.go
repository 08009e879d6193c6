// Package discover finds adaptive-streaming manifest URLs embedded in an
// HTML page, for inputs that are a page URL rather than a direct manifest.
package discover

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/mohaanymo/veld/internal/selector"
)

// manifestURLRe matches a quoted absolute URL ending in .m3u8, .m3u, or
// .mpd, optionally followed by a query string.
var manifestURLRe = regexp.MustCompile(`["'](https?://[^"']*\.(?:m3u8|m3u|mpd)[^"']*)["']`)

// ManifestExtensions lists the direct-manifest extensions recognized
// without needing HTML scraping.
var ManifestExtensions = []string{".m3u8", ".m3u", ".mpd", ".xml"}

// IsManifestURL reports whether u's path ends in a recognized manifest
// extension, meaning it can be fetched directly without scraping.
func IsManifestURL(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	path := parsed.Path
	for _, ext := range ManifestExtensions {
		if len(path) >= len(ext) && path[len(path)-len(ext):] == ext {
			return true
		}
	}
	return false
}

// FindManifestURLs fetches pageURL and scrapes its body for embedded
// manifest URLs, deduping while preserving first-seen order.
func FindManifestURLs(ctx context.Context, client *http.Client, pageURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("discover: building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("discover: fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discover: %s returned status %d", pageURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("discover: reading %s: %w", pageURL, err)
	}

	return ExtractManifestURLs(string(body)), nil
}

// ChooseManifestURL resolves ambiguity when scraping found more than one
// candidate manifest URL, using the same interaction-mode switch
// (none/raw/modern) as stream selection: ModeNone auto-selects the first
// hit, ModeRaw prompts for a 1-based index, ModeModern falls back to raw
// prompting since a page-URL pick has no meaningful multi-select track
// picker to render.
func ChooseManifestURL(urls []string, mode selector.Mode, in io.Reader, out io.Writer) (string, error) {
	if len(urls) == 0 {
		return "", fmt.Errorf("discover: no manifest URLs found")
	}
	if len(urls) == 1 || mode == selector.ModeNone {
		return urls[0], nil
	}

	fmt.Fprintln(out, "multiple manifest URLs found:")
	for i, u := range urls {
		fmt.Fprintf(out, "  %d) %s\n", i+1, u)
	}
	fmt.Fprint(out, "select one [1]: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return urls[0], nil
	}
	line := scanner.Text()
	if line == "" {
		return urls[0], nil
	}
	idx, err := strconv.Atoi(line)
	if err != nil || idx < 1 || idx > len(urls) {
		return "", fmt.Errorf("discover: invalid selection %q", line)
	}
	return urls[idx-1], nil
}

// ExtractManifestURLs scrapes html for quoted absolute manifest URLs,
// deduping while preserving first-seen order.
func ExtractManifestURLs(html string) []string {
	matches := manifestURLRe.FindAllStringSubmatch(html, -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		u := m[1]
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, u)
	}
	return out
}
