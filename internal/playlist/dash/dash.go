// Package dash parses MPD manifests into the uniform playlist model,
// implementing the six DASH segment-addressing modes in spec precedence
// order.
package dash

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohaanymo/veld/internal/mp4"
	"github.com/mohaanymo/veld/internal/playlist"
)

// Logger is the minimal interface the DASH parser needs to report
// addressing-mode conflicts.
type Logger interface {
	Warn(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Parser fetches and parses DASH manifests.
type Parser struct {
	Client *http.Client
	Log    Logger
}

// New returns a Parser using client for HTTP fetches.
func New(client *http.Client) *Parser {
	return &Parser{Client: client, Log: noopLogger{}}
}

// CanParse reports whether uri looks like a DASH manifest reference.
func (p *Parser) CanParse(uri string) bool {
	return strings.Contains(uri, ".mpd")
}

// --- MPD XML shape ---

type mpdXML struct {
	XMLName     xml.Name     `xml:"MPD"`
	BaseURL     string       `xml:"BaseURL"`
	Periods     []periodXML  `xml:"Period"`
}

type periodXML struct {
	Duration       string          `xml:"duration,attr"`
	BaseURL        string          `xml:"BaseURL"`
	AdaptationSets []adaptationSet `xml:"AdaptationSet"`
}

type adaptationSet struct {
	ID                string               `xml:"id,attr"`
	MimeType          string               `xml:"mimeType,attr"`
	ContentType       string               `xml:"contentType,attr"`
	Lang              string               `xml:"lang,attr"`
	FrameRate         string               `xml:"frameRate,attr"`
	BaseURL           string               `xml:"BaseURL"`
	SegmentTemplate   *segmentTemplate     `xml:"SegmentTemplate"`
	SegmentList       *segmentList         `xml:"SegmentList"`
	ContentProtection []contentProtection  `xml:"ContentProtection"`
	Representations   []representationXML  `xml:"Representation"`
}

type representationXML struct {
	ID                string              `xml:"id,attr"`
	Bandwidth         int64               `xml:"bandwidth,attr"`
	Width             int                 `xml:"width,attr"`
	Height            int                 `xml:"height,attr"`
	Codecs            string              `xml:"codecs,attr"`
	FrameRate         string              `xml:"frameRate,attr"`
	AudioChannels     *audioChannelConfig `xml:"AudioChannelConfiguration"`
	BaseURL           string              `xml:"BaseURL"`
	SegmentTemplate   *segmentTemplate    `xml:"SegmentTemplate"`
	SegmentList       *segmentList        `xml:"SegmentList"`
	SegmentBase       *segmentBase        `xml:"SegmentBase"`
	ContentProtection []contentProtection `xml:"ContentProtection"`
}

type audioChannelConfig struct {
	Value string `xml:"value,attr"`
}

type contentProtection struct {
	SchemeIDURI string `xml:"schemeIdUri,attr"`
	Value       string `xml:"value,attr"`
	DefaultKID  string `xml:"default_KID,attr"`
}

type segmentTemplate struct {
	Media          string          `xml:"media,attr"`
	Initialization string          `xml:"initialization,attr"`
	Duration       int64           `xml:"duration,attr"`
	Timescale      int64           `xml:"timescale,attr"`
	StartNumber    *int64          `xml:"startNumber,attr"`
	SegmentTimeline *segmentTimeline `xml:"SegmentTimeline"`
}

type segmentTimeline struct {
	S []segmentTimelineEntry `xml:"S"`
}

type segmentTimelineEntry struct {
	T *int64 `xml:"t,attr"`
	D int64  `xml:"d,attr"`
	R *int64 `xml:"r,attr"`
}

type segmentList struct {
	Initialization *urlType    `xml:"Initialization"`
	SegmentURLs    []segmentURL `xml:"SegmentURL"`
}

type urlType struct {
	SourceURL string `xml:"sourceURL,attr"`
	Range     string `xml:"range,attr"`
}

type segmentURL struct {
	Media      string `xml:"media,attr"`
	MediaRange string `xml:"mediaRange,attr"`
}

type segmentBase struct {
	IndexRange     string   `xml:"indexRange,attr"`
	Initialization *urlType `xml:"Initialization"`
}

// Parse fetches uri and returns the normalized MasterPlaylist using the
// first Period in the manifest.
func (p *Parser) Parse(ctx context.Context, uri string) (*playlist.MasterPlaylist, error) {
	data, err := p.fetch(ctx, uri)
	if err != nil {
		return nil, err
	}
	var doc mpdXML
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("dash: parsing MPD: %w", err)
	}
	if len(doc.Periods) == 0 {
		return nil, fmt.Errorf("dash: manifest has no Period")
	}

	master := &playlist.MasterPlaylist{PlaylistType: playlist.PlaylistDASH, URI: uri}
	period := doc.Periods[0]
	periodDuration := parseISO8601Duration(period.Duration)

	mpdBase := resolveBase(uri, doc.BaseURL)
	periodBase := resolveBase(mpdBase, period.BaseURL)

	for _, as := range period.AdaptationSets {
		asBase := resolveBase(periodBase, as.BaseURL)
		for _, rep := range as.Representations {
			mp, err := p.convertRepresentation(ctx, uri, asBase, as, rep, periodDuration)
			if err != nil {
				return nil, err
			}
			master.Streams = append(master.Streams, mp)
		}
	}
	return master, nil
}

func (p *Parser) fetch(ctx context.Context, uri string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("dash: fetching %s: %w", uri, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("dash: %s returned status %d", uri, resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func resolveBase(base, ref string) string {
	if ref == "" {
		return base
	}
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

func detectMediaType(as adaptationSet, rep representationXML) playlist.MediaType {
	mime := as.MimeType
	switch {
	case strings.HasPrefix(mime, "video"):
		return playlist.MediaVideo
	case strings.HasPrefix(mime, "audio"):
		return playlist.MediaAudio
	case strings.HasPrefix(mime, "text"), strings.HasPrefix(mime, "application/ttml"), strings.Contains(mime, "vtt"):
		return playlist.MediaSubtitles
	}
	switch as.ContentType {
	case "video":
		return playlist.MediaVideo
	case "audio":
		return playlist.MediaAudio
	case "text":
		return playlist.MediaSubtitles
	}
	if rep.Width > 0 && rep.Height > 0 {
		return playlist.MediaVideo
	}
	return playlist.MediaUndefined
}

func (p *Parser) convertRepresentation(ctx context.Context, manifestURL, base string, as adaptationSet, rep representationXML, periodDuration float64) (*playlist.MediaPlaylist, error) {
	if rep.ID == "" {
		return nil, fmt.Errorf("dash: representation missing required @id attribute")
	}

	mp := &playlist.MediaPlaylist{
		ID:        playlist.NewID(manifestURL, rep.ID),
		MediaType: detectMediaType(as, rep),
		Bandwidth: rep.Bandwidth,
		Codecs:    rep.Codecs,
	}
	if rep.Width > 0 && rep.Height > 0 {
		mp.Resolution = &playlist.Resolution{Width: rep.Width, Height: rep.Height}
	}
	if as.Lang != "" {
		mp.Language = as.Lang
	}
	if rep.AudioChannels != nil {
		if n, err := strconv.Atoi(rep.AudioChannels.Value); err == nil {
			mp.Channels = n
		}
	}
	fr := rep.FrameRate
	if fr == "" {
		fr = as.FrameRate
	}
	mp.FrameRate = parseFrameRate(fr)

	repBase := resolveBase(base, rep.BaseURL)

	var defaultKID string
	for _, cp := range as.ContentProtection {
		if cp.DefaultKID != "" {
			defaultKID = cp.DefaultKID
		}
	}
	for _, cp := range rep.ContentProtection {
		if cp.DefaultKID != "" {
			defaultKID = cp.DefaultKID // representation-level wins if present
		}
	}

	var key *playlist.Key
	if defaultKID != "" {
		key = &playlist.Key{Method: playlist.KeyMp4Decrypt, DefaultKID: defaultKID}
	}

	segments, mapRef, err := p.resolveAddressing(ctx, repBase, as, rep, rep.ID, periodDuration)
	if err != nil {
		return nil, err
	}
	for _, s := range segments {
		s.Key = key
	}
	mp.Segments = segments
	if mapRef != nil {
		for _, s := range mp.Segments {
			if s.Map == nil {
				s.Map = mapRef
			}
		}
	}
	return mp, nil
}

// resolveAddressing implements DASH's addressing-mode precedence:
// AdaptationSet>SegmentList, Representation>SegmentList,
// SegmentTemplate+Timeline, SegmentTemplate@duration, SegmentBase@indexRange,
// plain BaseURL.
func (p *Parser) resolveAddressing(ctx context.Context, base string, as adaptationSet, rep representationXML, repID string, periodDuration float64) ([]*playlist.Segment, *playlist.InitMap, error) {
	hasSegmentBase := rep.SegmentBase != nil && rep.SegmentBase.IndexRange != ""
	hasSegmentList := as.SegmentList != nil || rep.SegmentList != nil
	if hasSegmentBase && hasSegmentList {
		p.logger().Warn("dash: representation has both SegmentList and SegmentBase@indexRange; SegmentList takes precedence", "representation", repID)
	}

	if as.SegmentList != nil {
		return p.segmentsFromList(base, as.SegmentList, repID)
	}
	if rep.SegmentList != nil {
		return p.segmentsFromList(base, rep.SegmentList, repID)
	}

	tmpl := rep.SegmentTemplate
	if tmpl == nil {
		tmpl = as.SegmentTemplate
	}
	if tmpl != nil && tmpl.SegmentTimeline != nil {
		return p.segmentsFromTemplateTimeline(base, tmpl, repID, rep.Bandwidth, periodDuration)
	}
	if tmpl != nil {
		return p.segmentsFromTemplateDuration(base, tmpl, repID, rep.Bandwidth, periodDuration)
	}

	if hasSegmentBase {
		return p.segmentsFromSidx(ctx, base, rep.SegmentBase)
	}

	// Plain BaseURL: a single segment equal to the representation's
	// resolved BaseURL, duration = period duration.
	return []*playlist.Segment{{Index: 0, URI: base, Duration: periodDuration}}, nil, nil
}

func (p *Parser) logger() Logger {
	if p.Log == nil {
		return noopLogger{}
	}
	return p.Log
}

func (p *Parser) segmentsFromList(base string, list *segmentList, repID string) ([]*playlist.Segment, *playlist.InitMap, error) {
	var initMap *playlist.InitMap
	if list.Initialization != nil {
		initMap = &playlist.InitMap{URI: resolveBase(base, list.Initialization.SourceURL)}
		if list.Initialization.Range != "" {
			initMap.Range = parseRangeAttr(list.Initialization.Range)
		}
	}
	segments := make([]*playlist.Segment, 0, len(list.SegmentURLs))
	for i, su := range list.SegmentURLs {
		seg := &playlist.Segment{
			Index: i,
			URI:   resolveBase(base, su.Media),
			Map:   initMap,
		}
		if su.MediaRange != "" {
			seg.Range = parseRangeAttr(su.MediaRange)
		}
		segments = append(segments, seg)
	}
	return segments, initMap, nil
}

func parseRangeAttr(s string) *playlist.ByteRange {
	parts := strings.SplitN(s, "-", 2)
	if len(parts) != 2 {
		return nil
	}
	start, err1 := strconv.ParseInt(parts[0], 10, 64)
	end, err2 := strconv.ParseInt(parts[1], 10, 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	return &playlist.ByteRange{Start: start, End: end}
}

var templateVarRe = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(%0(\d+)d)?\$`)

// expandTemplate substitutes $RepresentationID$, $Bandwidth$, $Number$,
// $Time$ (with optional %0Nd zero-padding) against a URL template.
func expandTemplate(tmpl, repID string, bandwidth, number, time int64) string {
	return templateVarRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		groups := templateVarRe.FindStringSubmatch(match)
		name := groups[1]
		pad := groups[3]

		var value string
		switch name {
		case "RepresentationID":
			return repID
		case "Bandwidth":
			value = strconv.FormatInt(bandwidth, 10)
		case "Number":
			value = strconv.FormatInt(number, 10)
		case "Time":
			value = strconv.FormatInt(time, 10)
		}
		if pad != "" {
			width, _ := strconv.Atoi(pad)
			for len(value) < width {
				value = "0" + value
			}
		}
		return value
	})
}

func (p *Parser) segmentsFromTemplateTimeline(base string, tmpl *segmentTemplate, repID string, bandwidth int64, periodDuration float64) ([]*playlist.Segment, *playlist.InitMap, error) {
	timescale := tmpl.Timescale
	if timescale == 0 {
		timescale = 1
	}
	startNumber := int64(1)
	if tmpl.StartNumber != nil {
		startNumber = *tmpl.StartNumber
	}

	var initMap *playlist.InitMap
	if tmpl.Initialization != "" {
		initMap = &playlist.InitMap{URI: resolveBase(base, expandTemplate(tmpl.Initialization, repID, bandwidth, 0, 0))}
	}

	var segments []*playlist.Segment
	number := startNumber
	var currentTime int64
	first := true

	for _, s := range tmpl.SegmentTimeline.S {
		if s.T != nil {
			currentTime = *s.T
		} else if first {
			currentTime = 0
		}
		first = false

		repeat := int64(0)
		if s.R != nil {
			repeat = *s.R
		}

		if repeat < 0 {
			// r=-1 means "repeat until the period ends". Derive the count
			// from how many more whole s.D-sized steps fit between this S's
			// start and the period boundary, both expressed in @timescale
			// ticks.
			repeat = 0
			if s.D > 0 && periodDuration > 0 {
				periodEndTicks := int64(math.Round(periodDuration * float64(timescale)))
				remainingTicks := periodEndTicks - currentTime
				if remainingTicks > 0 {
					if n := (remainingTicks + s.D - 1) / s.D; n > 1 {
						repeat = n - 1
					}
				}
			}
		}

		for i := int64(0); i <= repeat; i++ {
			uri := resolveBase(base, expandTemplate(tmpl.Media, repID, bandwidth, number, currentTime))
			segments = append(segments, &playlist.Segment{
				Index:    int(number - startNumber),
				URI:      uri,
				Duration: float64(s.D) / float64(timescale),
				Map:      initMap,
			})
			currentTime += s.D
			number++
		}
	}
	return segments, initMap, nil
}

func (p *Parser) segmentsFromTemplateDuration(base string, tmpl *segmentTemplate, repID string, bandwidth int64, periodDuration float64) ([]*playlist.Segment, *playlist.InitMap, error) {
	if tmpl.Duration == 0 {
		return nil, nil, fmt.Errorf("dash: SegmentTemplate@duration addressing requires @duration")
	}
	timescale := tmpl.Timescale
	if timescale == 0 {
		timescale = 1
	}
	startNumber := int64(1)
	if tmpl.StartNumber != nil {
		startNumber = *tmpl.StartNumber
	}

	var initMap *playlist.InitMap
	if tmpl.Initialization != "" {
		initMap = &playlist.InitMap{URI: resolveBase(base, expandTemplate(tmpl.Initialization, repID, bandwidth, 0, 0))}
	}

	segmentDuration := float64(tmpl.Duration) / float64(timescale)
	totalSegments := int64(math.Ceil(periodDuration / segmentDuration))
	if totalSegments <= 0 {
		totalSegments = 1
	}

	segments := make([]*playlist.Segment, 0, totalSegments)
	for i := int64(0); i < totalSegments; i++ {
		number := startNumber + i
		uri := resolveBase(base, expandTemplate(tmpl.Media, repID, bandwidth, number, i*tmpl.Duration))
		segments = append(segments, &playlist.Segment{
			Index:    int(i),
			URI:      uri,
			Duration: segmentDuration,
			Map:      initMap,
		})
	}
	return segments, initMap, nil
}

func (p *Parser) segmentsFromSidx(ctx context.Context, base string, sb *segmentBase) ([]*playlist.Segment, *playlist.InitMap, error) {
	indexRange := parseRangeAttr(sb.IndexRange)
	if indexRange == nil {
		return nil, nil, fmt.Errorf("dash: malformed SegmentBase@indexRange %q", sb.IndexRange)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", indexRange.Start, indexRange.End))
	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("dash: fetching sidx range: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}

	var sidx *mp4.SIDXBox
	parser := mp4.NewParser().FullBox("sidx", func(box *mp4.ParsedBox) error {
		b, err := mp4.ParseSIDX(box.Reader, *box.Version)
		if err != nil {
			return err
		}
		sidx = b
		return nil
	})
	if err := parser.Parse(data, true, false); err != nil {
		return nil, nil, fmt.Errorf("dash: parsing sidx box: %w", err)
	}
	if sidx == nil {
		return nil, nil, fmt.Errorf("dash: no sidx box found in indexRange")
	}

	// The init map covers bytes [0, indexRange.end].
	initMap := &playlist.InitMap{URI: base, Range: &playlist.ByteRange{Start: 0, End: indexRange.End}}

	var segments []*playlist.Segment
	offset := indexRange.End + 1
	for i, ref := range sidx.References {
		start := offset
		end := offset + int64(ref.ReferencedSize) - 1
		segments = append(segments, &playlist.Segment{
			Index:    i,
			URI:      base,
			Duration: float64(ref.SubsegmentDuration) / float64(sidx.Timescale),
			Range:    &playlist.ByteRange{Start: start, End: end},
			Map:      initMap,
		})
		offset = end + 1
	}
	return segments, initMap, nil
}

var isoDurationRe = regexp.MustCompile(`^PT(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?$`)

// parseISO8601Duration parses an ISO-8601 "PT#H#M#S" duration into seconds.
func parseISO8601Duration(s string) float64 {
	m := isoDurationRe.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	var total float64
	if m[1] != "" {
		h, _ := strconv.ParseFloat(m[1], 64)
		total += h * 3600
	}
	if m[2] != "" {
		mi, _ := strconv.ParseFloat(m[2], 64)
		total += mi * 60
	}
	if m[3] != "" {
		s, _ := strconv.ParseFloat(m[3], 64)
		total += s
	}
	return total
}

// parseFrameRate parses "num/den" or a bare number.
func parseFrameRate(s string) float64 {
	if s == "" {
		return 0
	}
	if strings.Contains(s, "/") {
		parts := strings.SplitN(s, "/", 2)
		num, err1 := strconv.ParseFloat(parts[0], 64)
		den, err2 := strconv.ParseFloat(parts[1], 64)
		if err1 == nil && err2 == nil && den != 0 {
			return num / den
		}
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
