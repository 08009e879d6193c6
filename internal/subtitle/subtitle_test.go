package subtitle

import (
	"bytes"
	"strings"
	"testing"
)

func TestWriteVTTFormatsTimestamps(t *testing.T) {
	subs := &Subtitles{Cues: []Cue{
		{Start: 1.5, End: 3.25, Payload: "hello"},
	}}
	var buf bytes.Buffer
	if err := WriteVTT(&buf, subs); err != nil {
		t.Fatalf("WriteVTT: %v", err)
	}
	got := buf.String()
	if !strings.HasPrefix(got, "WEBVTT\n\n") {
		t.Fatalf("missing WEBVTT header: %q", got)
	}
	if !strings.Contains(got, "00:00:01.500 --> 00:00:03.250") {
		t.Fatalf("timestamp not formatted as expected: %q", got)
	}
	if !strings.Contains(got, "hello") {
		t.Fatalf("missing payload: %q", got)
	}
}

func TestWriteSRTUsesCommaAndSequenceNumbers(t *testing.T) {
	subs := &Subtitles{Cues: []Cue{
		{Start: 0, End: 1, Payload: "one"},
		{Start: 1, End: 2, Payload: "two"},
	}}
	var buf bytes.Buffer
	if err := WriteSRT(&buf, subs); err != nil {
		t.Fatalf("WriteSRT: %v", err)
	}
	got := buf.String()
	if !strings.Contains(got, "1\n00:00:00,000 --> 00:00:01,000\none") {
		t.Fatalf("unexpected first cue: %q", got)
	}
	if !strings.Contains(got, "2\n00:00:01,000 --> 00:00:02,000\ntwo") {
		t.Fatalf("unexpected second cue: %q", got)
	}
}

func TestAppendMergesAbuttingCuesWithIdenticalPayload(t *testing.T) {
	subs := &Subtitles{}
	// first segment's last cue
	subs.Append(Cue{Start: 8.0, End: 10.0, Payload: "hello world", Settings: "align:middle"})
	// second segment's first cue: same text/settings, starts exactly where the previous one ended
	subs.Append(Cue{Start: 10.0, End: 12.0, Payload: "hello world", Settings: "align:middle"})

	if len(subs.Cues) != 1 {
		t.Fatalf("got %d cues, want 1 merged cue", len(subs.Cues))
	}
	if subs.Cues[0].Start != 8.0 || subs.Cues[0].End != 12.0 {
		t.Fatalf("merged cue range = %v-%v, want 8.0-12.0", subs.Cues[0].Start, subs.Cues[0].End)
	}
}

func TestAppendKeepsDistinctCuesSeparate(t *testing.T) {
	subs := &Subtitles{}
	subs.Append(Cue{Start: 0, End: 2, Payload: "one"})
	subs.Append(Cue{Start: 2, End: 4, Payload: "two"}) // abuts but different payload
	subs.Append(Cue{Start: 10, End: 12, Payload: "one"}) // same payload but not abutting

	if len(subs.Cues) != 3 {
		t.Fatalf("got %d cues, want 3 (no false merges)", len(subs.Cues))
	}
}

func TestAppendToleratesSubMillisecondRoundingAtBoundary(t *testing.T) {
	subs := &Subtitles{}
	subs.Append(Cue{Start: 4.0, End: 6.0004, Payload: "text", Settings: "line:90%"})
	subs.Append(Cue{Start: 6.0, End: 8.0, Payload: "text", Settings: "line:90%"})

	if len(subs.Cues) != 1 {
		t.Fatalf("got %d cues, want 1 (boundary within mergeEpsilon should still merge)", len(subs.Cues))
	}
	if subs.Cues[0].End != 8.0 {
		t.Fatalf("merged end = %v, want 8.0", subs.Cues[0].End)
	}
}

func TestParseTTMLExtractsParagraphsWithTiming(t *testing.T) {
	doc := `<tt xmlns="http://www.w3.org/ns/ttml"><body><div>
		<p begin="00:00:01.000" end="00:00:02.500">Hello</p>
		<p begin="00:00:03.000" end="00:00:04.000">World</p>
	</div></body></tt>`

	subs, err := ParseTTML(doc)
	if err != nil {
		t.Fatalf("ParseTTML: %v", err)
	}
	if len(subs.Cues) != 2 {
		t.Fatalf("got %d cues, want 2", len(subs.Cues))
	}
	if subs.Cues[0].Start != 1.0 || subs.Cues[0].End != 2.5 {
		t.Fatalf("cue 0 times = %v/%v, want 1.0/2.5", subs.Cues[0].Start, subs.Cues[0].End)
	}
	if subs.Cues[0].Payload != "Hello" {
		t.Fatalf("cue 0 payload = %q, want Hello", subs.Cues[0].Payload)
	}
}

func TestParseTTMLRendersSpanStyling(t *testing.T) {
	doc := `<tt><body><div><p begin="00:00:00.000" end="00:00:01.000"><span fontWeight="bold">loud</span></p></div></body></tt>`
	subs, err := ParseTTML(doc)
	if err != nil {
		t.Fatalf("ParseTTML: %v", err)
	}
	if len(subs.Cues) != 1 {
		t.Fatalf("got %d cues, want 1", len(subs.Cues))
	}
	if subs.Cues[0].Payload != "<b>loud</b>" {
		t.Fatalf("payload = %q, want <b>loud</b>", subs.Cues[0].Payload)
	}
}

func TestParseTTMLDurationHandlesHoursMinutesSeconds(t *testing.T) {
	got, err := parseTTMLDuration("01:02:03.500")
	if err != nil {
		t.Fatalf("parseTTMLDuration: %v", err)
	}
	want := 1*3600.0 + 2*60.0 + 3.5
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}
