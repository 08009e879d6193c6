package subtitle

import (
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// spanRe matches one <span attrs>content</span>, non-greedy so the match
// ends at the first closing tag.
var spanRe = regexp.MustCompile(`(?s)<span([^>]*)>(.*?)</span>`)

type ttmlDocument struct {
	Body ttmlBody `xml:"body"`
}

type ttmlBody struct {
	Divs []ttmlDiv `xml:"div"`
}

type ttmlDiv struct {
	Paragraphs []ttmlParagraph `xml:"p"`
}

type ttmlParagraph struct {
	Begin   string `xml:"begin,attr"`
	End     string `xml:"end,attr"`
	Content string `xml:",innerxml"`
}

// ParseTTML decodes a TTML document (the payload of an stpp sample) into
// Subtitles. Nested <span> styling is rendered directly as simple
// HTML-ish <b>/<i>/<u> tags in the cue payload.
func ParseTTML(doc string) (*Subtitles, error) {
	doc = strings.ReplaceAll(doc, "<br></br>", "\n")
	doc = strings.ReplaceAll(doc, "<br/>", "\n")
	doc = strings.ReplaceAll(doc, "<br />", "\n")

	var tt ttmlDocument
	if err := xml.Unmarshal([]byte(doc), &tt); err != nil {
		return nil, fmt.Errorf("subtitle: parsing ttml document: %w", err)
	}

	var cues []Cue
	for _, div := range tt.Body.Divs {
		for _, p := range div.Paragraphs {
			start, err := parseTTMLDuration(p.Begin)
			if err != nil {
				return nil, fmt.Errorf("subtitle: parsing ttml begin time %q: %w", p.Begin, err)
			}
			end, err := parseTTMLDuration(p.End)
			if err != nil {
				return nil, fmt.Errorf("subtitle: parsing ttml end time %q: %w", p.End, err)
			}
			cues = append(cues, Cue{
				Start:   start,
				End:     end,
				Payload: renderTTMLContent(p.Content),
			})
		}
	}
	return &Subtitles{Cues: cues}, nil
}

// renderTTMLContent strips <span> wrappers down to their text content,
// applying bold/italic/underline markup for the common style attributes.
// Spans are resolved innermost-first by repeated single-span replacement:
// each pass takes the first closing tag and the last opening tag before it.
func renderTTMLContent(content string) string {
	for strings.Contains(content, "<span") {
		end := strings.Index(content, "</span>")
		if end == -1 {
			break
		}
		start := strings.LastIndex(content[:end], "<span")
		if start == -1 {
			break
		}
		loc := spanRe.FindStringSubmatchIndex(content[start:])
		if loc == nil {
			break
		}
		attrs := content[start+loc[2] : start+loc[3]]
		inner := content[start+loc[4] : start+loc[5]]
		content = content[:start] + renderSpanText(attrs, inner) + content[start+loc[1]:]
	}
	return strings.TrimSpace(content)
}

func renderSpanText(attrs, text string) string {
	if strings.Contains(attrs, `fontWeight="bold"`) {
		text = "<b>" + text + "</b>"
	}
	if strings.Contains(attrs, `fontStyle="italic"`) {
		text = "<i>" + text + "</i>"
	}
	if strings.Contains(attrs, `textDecoration="underline"`) {
		text = "<u>" + text + "</u>"
	}
	return text
}

// parseTTMLDuration parses a TTML clock-time value ("hh:mm:ss.mmm" or
// frame-rate-qualified "hh:mm:ss:ff") into seconds.
func parseTTMLDuration(d string) (float64, error) {
	d = strings.TrimSuffix(d, "s")
	d = strings.ReplaceAll(d, ",", ".")
	parts := strings.Split(d, ":")
	isFrames := len(parts) >= 4

	var total float64
	i := len(parts) - 1

	if isFrames {
		frames, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, err
		}
		total += frames / 1000.0
		i--
	}
	if i >= 0 {
		secs, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, err
		}
		total += secs
		i--
	}
	if i >= 0 {
		mins, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, err
		}
		total += mins * 60
		i--
	}
	if i >= 0 {
		hrs, err := strconv.ParseFloat(parts[i], 64)
		if err != nil {
			return 0, err
		}
		total += hrs * 3600
		i--
	}
	return total, nil
}
