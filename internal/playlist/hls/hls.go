// Package hls parses M3U8 master and media playlists into the uniform
// playlist model.
package hls

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohaanymo/veld/internal/playlist"
)

// Parser fetches and parses HLS manifests.
type Parser struct {
	Client *http.Client
}

// New returns a Parser using client for HTTP fetches.
func New(client *http.Client) *Parser {
	return &Parser{Client: client}
}

// CanParse reports whether uri looks like an HLS manifest reference.
func (p *Parser) CanParse(uri string) bool {
	return strings.Contains(uri, ".m3u8") || strings.Contains(uri, ".m3u") || strings.Contains(uri, "format=m3u8")
}

// Parse fetches uri and returns the normalized MasterPlaylist, dispatching
// to master or media parsing based on content.
func (p *Parser) Parse(ctx context.Context, uri string) (*playlist.MasterPlaylist, error) {
	body, err := p.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}

	master := &playlist.MasterPlaylist{PlaylistType: playlist.PlaylistHLS, URI: uri}

	if strings.Contains(body, "#EXT-X-STREAM-INF") {
		if err := p.parseMaster(ctx, uri, body, master); err != nil {
			return nil, err
		}
		return master, nil
	}

	mp, err := ParseMediaPlaylist(body, uri)
	if err != nil {
		return nil, err
	}
	mp.ID = playlist.NewID(uri, uri)
	master.Streams = append(master.Streams, mp)
	return master, nil
}

func (p *Parser) fetch(ctx context.Context, uri string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return "", err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("hls: fetching %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("hls: %s returned status %d", uri, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

var attrRe = regexp.MustCompile(`([A-Z0-9-]+)=("[^"]*"|[^,]*)`)

func parseAttributes(line string) map[string]string {
	attrs := map[string]string{}
	for _, m := range attrRe.FindAllStringSubmatch(line, -1) {
		key := m[1]
		val := strings.Trim(m[2], `"`)
		attrs[key] = val
	}
	return attrs
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

func (p *Parser) parseMaster(ctx context.Context, baseURI, body string, master *playlist.MasterPlaylist) error {
	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var pendingVideoAttrs map[string]string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			pendingVideoAttrs = parseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			uri, ok := attrs["URI"]
			if !ok {
				continue
			}
			variantURL := resolveURL(baseURI, uri)
			mp, err := p.fetchAndParseMedia(ctx, variantURL)
			if err != nil {
				return err
			}
			mp.MediaType = mediaTypeFromAttrs(attrs)
			mp.Language = attrs["LANGUAGE"]
			mp.ID = playlist.NewID(baseURI, attrs["GROUP-ID"]+"_"+attrs["LANGUAGE"]+"_"+attrs["NAME"])
			master.Streams = append(master.Streams, mp)
		case line != "" && !strings.HasPrefix(line, "#"):
			if pendingVideoAttrs != nil {
				variantURL := resolveURL(baseURI, line)
				mp, err := p.fetchAndParseMedia(ctx, variantURL)
				if err != nil {
					return err
				}
				mp.MediaType = playlist.MediaVideo
				mp.Bandwidth = parseInt64(pendingVideoAttrs["BANDWIDTH"])
				mp.Resolution = parseResolution(pendingVideoAttrs["RESOLUTION"])
				mp.Codecs = pendingVideoAttrs["CODECS"]
				mp.FrameRate = parseFloat(pendingVideoAttrs["FRAME-RATE"])
				sig := pendingVideoAttrs["RESOLUTION"] + "_" + pendingVideoAttrs["BANDWIDTH"]
				mp.ID = playlist.NewID(baseURI, sig)
				master.Streams = append(master.Streams, mp)
				pendingVideoAttrs = nil
			}
		}
	}
	return scanner.Err()
}

func (p *Parser) fetchAndParseMedia(ctx context.Context, uri string) (*playlist.MediaPlaylist, error) {
	body, err := p.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	return ParseMediaPlaylist(body, uri)
}

func mediaTypeFromAttrs(attrs map[string]string) playlist.MediaType {
	switch attrs["TYPE"] {
	case "AUDIO":
		return playlist.MediaAudio
	case "SUBTITLES", "CLOSED-CAPTIONS":
		return playlist.MediaSubtitles
	case "VIDEO":
		return playlist.MediaVideo
	default:
		return playlist.MediaUndefined
	}
}

func parseResolution(s string) *playlist.Resolution {
	if s == "" {
		return nil
	}
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return nil
	}
	w, err1 := strconv.Atoi(parts[0])
	h, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return nil
	}
	return &playlist.Resolution{Width: w, Height: h}
}

func parseInt64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// keyMethod maps an EXT-X-KEY METHOD/KEYFORMAT pair to the uniform KeyMethod.
func keyMethod(method, keyFormat string) playlist.KeyMethod {
	if method == "NONE" {
		return playlist.KeyNone
	}
	switch strings.ToLower(keyFormat) {
	case "urn:uuid:edef8ba9-79d6-4ace-a3c8-27dcd51d21ed", // widevine
		"urn:uuid:9a04f079-9840-4286-ab92-e65be0885f95", // playready
		"com.apple.streamingkeydelivery":                // fairplay
		return playlist.KeyMp4Decrypt
	}
	switch method {
	case "AES-128":
		return playlist.KeyAES128
	case "SAMPLE-AES":
		return playlist.KeySampleAES
	case "SAMPLE-AES-CENC", "SAMPLE-AES-CTR":
		return playlist.KeyMp4Decrypt
	}
	return playlist.KeyOther
}

// ParseMediaPlaylist parses one HLS media playlist's segments. Byte-range
// state chains across segments: BYTERANGE without an explicit offset starts
// at the previous segment's end. EXT-X-KEY/EXT-X-MAP persist across
// following segments until replaced. Segment.Index carries the absolute
// media sequence number (EXT-X-MEDIA-SEQUENCE plus position), not a
// from-zero count, since implicit AES-128 IV derivation needs the real
// sequence number.
func ParseMediaPlaylist(body, baseURL string) (*playlist.MediaPlaylist, error) {
	mp := &playlist.MediaPlaylist{URI: baseURL, MediaType: playlist.MediaUndefined}

	scanner := bufio.NewScanner(strings.NewReader(body))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	var (
		currentKey      *playlist.Key
		currentMap      *playlist.InitMap
		pendingDuration float64
		pendingRange    *playlist.ByteRange
		byteRangeCursor int64
		sequenceBase    int64
		sequenceCursor  int64
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"):
			sequenceBase = parseInt64(strings.TrimPrefix(line, "#EXT-X-MEDIA-SEQUENCE:"))
			sequenceCursor = sequenceBase
			mp.MediaSequence = sequenceBase
		case strings.HasPrefix(line, "#EXT-X-I-FRAMES-ONLY"):
			mp.IFrame = true
		case strings.HasPrefix(line, "#EXT-X-PLAYLIST-TYPE:VOD"):
			mp.Live = false
		case strings.HasPrefix(line, "#EXT-X-ENDLIST"):
			mp.Live = false
		case strings.HasPrefix(line, "#EXTINF:"):
			val := strings.TrimPrefix(line, "#EXTINF:")
			val = strings.SplitN(val, ",", 2)[0]
			pendingDuration, _ = strconv.ParseFloat(val, 64)
		case strings.HasPrefix(line, "#EXT-X-BYTERANGE:"):
			val := strings.TrimPrefix(line, "#EXT-X-BYTERANGE:")
			pendingRange = parseByteRange(val, byteRangeCursor)
		case strings.HasPrefix(line, "#EXT-X-KEY:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-KEY:"))
			method := keyMethod(attrs["METHOD"], attrs["KEYFORMAT"])
			if method == playlist.KeyNone {
				currentKey = nil
				continue
			}
			currentKey = &playlist.Key{
				Method:    method,
				URI:       resolveURL(baseURL, attrs["URI"]),
				IV:        attrs["IV"],
				KeyFormat: attrs["KEYFORMAT"],
			}
		case strings.HasPrefix(line, "#EXT-X-MAP:"):
			attrs := parseAttributes(strings.TrimPrefix(line, "#EXT-X-MAP:"))
			m := &playlist.InitMap{URI: resolveURL(baseURL, attrs["URI"])}
			if br, ok := attrs["BYTERANGE"]; ok {
				m.Range = parseByteRange(br, 0)
			}
			currentMap = m
		case line != "" && !strings.HasPrefix(line, "#"):
			seg := &playlist.Segment{
				Index:    int(sequenceCursor),
				URI:      resolveURL(baseURL, line),
				Duration: pendingDuration,
				Range:    pendingRange,
				Map:      currentMap,
				Key:      currentKey,
			}
			if pendingRange != nil {
				byteRangeCursor = pendingRange.End + 1
			}
			mp.Segments = append(mp.Segments, seg)
			sequenceCursor++
			pendingRange = nil
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return mp, nil
}

// parseByteRange parses HLS's "length@offset" BYTERANGE form (offset
// optional, chaining from prevEnd when absent).
func parseByteRange(s string, prevEnd int64) *playlist.ByteRange {
	parts := strings.SplitN(s, "@", 2)
	length, _ := strconv.ParseInt(parts[0], 10, 64)
	var start int64
	if len(parts) == 2 {
		start, _ = strconv.ParseInt(parts[1], 10, 64)
	} else {
		start = prevEnd
	}
	return &playlist.ByteRange{Start: start, End: start + length - 1}
}
