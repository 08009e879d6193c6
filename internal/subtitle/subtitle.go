// Package subtitle converts fragmented-mp4 subtitle tracks (wvtt/WebVTT,
// stpp/TTML) into plain-text VTT and SRT files.
package subtitle

import (
	"fmt"
	"math"
)

// mergeEpsilon is the slack allowed when comparing a cue's end against the
// next cue's start for abutment; segment boundary timestamps are derived
// from different tfdt/trun fields than the previous segment's cue end and
// can differ by a sub-millisecond rounding error even when logically
// adjacent.
const mergeEpsilon = 0.001

// Cue is one subtitle cue with its time range in seconds.
type Cue struct {
	ID       string
	Payload  string
	Settings string
	Start    float64
	End      float64
}

// Subtitles is an ordered collection of cues, assembled from one or more
// media segments of a single subtitle stream.
type Subtitles struct {
	Cues []Cue
}

// Append adds cues in time order; cues is trusted to already be in order
// within a single media segment, since segments themselves arrive in
// stream order from internal/merger. A cue whose payload and settings
// match the previously appended cue, and whose start abuts that cue's
// end, is coalesced into it instead of appended as a separate entry —
// this is what collapses a cue that spans a segment boundary (carried as
// two samples with identical text) back into one.
func (s *Subtitles) Append(cues ...Cue) {
	for _, c := range cues {
		if n := len(s.Cues); n > 0 {
			last := &s.Cues[n-1]
			if last.Payload == c.Payload && last.Settings == c.Settings && math.Abs(last.End-c.Start) <= mergeEpsilon {
				last.End = c.End
				continue
			}
		}
		s.Cues = append(s.Cues, c)
	}
}

func formatTimestamp(t float64, fracSep string) string {
	if t < 0 {
		t = 0
	}
	ms := int64(t*1000 + 0.5)
	h := ms / 3600000
	ms -= h * 3600000
	m := ms / 60000
	ms -= m * 60000
	s := ms / 1000
	ms -= s * 1000
	return fmt.Sprintf("%02d:%02d:%02d%s%03d", h, m, s, fracSep, ms)
}

func formatVTTTimestamp(t float64) string { return formatTimestamp(t, ".") }

func formatSRTTimestamp(t float64) string { return formatTimestamp(t, ",") }
