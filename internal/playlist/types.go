// Package playlist defines the uniform internal playlist model that both
// the HLS and DASH parsers lower their very different vocabularies into.
package playlist

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
)

// PlaylistType identifies which manifest family produced a MasterPlaylist.
type PlaylistType string

const (
	PlaylistHLS  PlaylistType = "hls"
	PlaylistDASH PlaylistType = "dash"
)

// MediaType classifies a MediaPlaylist's content.
type MediaType string

const (
	MediaVideo     MediaType = "video"
	MediaAudio     MediaType = "audio"
	MediaSubtitles MediaType = "subtitles"
	MediaUndefined MediaType = "undefined"
)

// KeyMethod identifies the decryption scheme a Key describes.
type KeyMethod string

const (
	KeyNone       KeyMethod = "none"
	KeyAES128     KeyMethod = "aes-128"
	KeySampleAES  KeyMethod = "sample-aes"
	KeyMp4Decrypt KeyMethod = "mp4-decrypt" // CENC, selected by SAMPLE-AES-CENC/CTR or a recognized KEYFORMAT
	KeyOther      KeyMethod = "other"
)

// MasterPlaylist is created once per manifest fetch and is immutable
// thereafter except for the stream selector's sorting.
type MasterPlaylist struct {
	PlaylistType PlaylistType
	URI          string
	Streams      []*MediaPlaylist
}

// Resolution is a video frame size.
type Resolution struct {
	Width, Height int
}

// Pixels returns width*height, used to sort/compare video quality.
func (r Resolution) Pixels() int { return r.Width * r.Height }

// QualityLabel renders a human quality tag ("1080p", "4K", ...).
func (r Resolution) QualityLabel() string {
	switch {
	case r.Height >= 2160:
		return "4K"
	case r.Height >= 1440:
		return "1440p"
	case r.Height >= 1080:
		return "1080p"
	case r.Height >= 720:
		return "720p"
	case r.Height >= 480:
		return "480p"
	case r.Height >= 360:
		return "360p"
	default:
		return itoa(r.Height) + "p"
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ByteRange is an inclusive [Start, End] byte range matching HTTP Range:
// semantics.
type ByteRange struct {
	Start, End int64
}

// Len returns the number of bytes the range spans.
func (r ByteRange) Len() int64 { return r.End - r.Start + 1 }

// InitMap is the initialization segment prepended to every media segment of
// a fragmented stream.
type InitMap struct {
	URI   string
	Range *ByteRange
}

// Key describes the decryption method active for a segment and every
// following segment of its stream until replaced.
type Key struct {
	Method     KeyMethod
	URI        string
	IV         string
	KeyFormat  string
	DefaultKID string
}

// Segment is one fetchable unit of a MediaPlaylist.
type Segment struct {
	Index    int
	URI      string
	Duration float64
	Range    *ByteRange
	Map      *InitMap
	Key      *Key
}

// MediaPlaylist is a single rendition (one HLS variant/alternative, or one
// DASH representation).
type MediaPlaylist struct {
	ID            string
	MediaType     MediaType
	Bandwidth     int64
	Resolution    *Resolution
	Codecs        string
	Channels      int
	Language      string
	FrameRate     float64
	extension     string
	IFrame        bool
	Live          bool
	MediaSequence int64
	URI           string
	Segments      []*Segment
}

// NewID computes the 7-hex content-hash ID from the manifest URL and an
// intra-manifest path (e.g. a DASH Representation @id, or an HLS variant's
// resolution+bandwidth signature).
func NewID(manifestURL, intraPath string) string {
	sum := sha1.Sum([]byte(manifestURL + "|" + intraPath))
	return hex.EncodeToString(sum[:])[:7]
}

// IsEncrypted reports whether any segment carries a non-None key, which
// marks the whole stream as encrypted per spec: the decryption KID is then
// taken from the first keyed segment or derived from tenc.
func (m *MediaPlaylist) IsEncrypted() bool {
	for _, s := range m.Segments {
		if s.Key != nil && s.Key.Method != KeyNone {
			return true
		}
	}
	return false
}

// DefaultKID returns the first non-empty default_kid carried by any
// segment's key, lowercased with hyphens removed.
func (m *MediaPlaylist) DefaultKID() string {
	for _, s := range m.Segments {
		if s.Key != nil && s.Key.DefaultKID != "" {
			return normalizeKID(s.Key.DefaultKID)
		}
	}
	return ""
}

func normalizeKID(kid string) string {
	kid = strings.ToLower(kid)
	kid = strings.ReplaceAll(kid, "-", "")
	return kid
}

// Extension resolves the segment container extension: explicit value wins;
// else if the first segment's map URI ends in .mp4 it becomes m4s, or if its
// own URI ends in .mp4 it becomes mp4; else HLS defaults to ts, DASH to m4s.
func (m *MediaPlaylist) Extension(playlistType PlaylistType) string {
	if m.extension != "" {
		return m.extension
	}
	if len(m.Segments) > 0 {
		first := m.Segments[0]
		if first.Map != nil && strings.HasSuffix(first.Map.URI, ".mp4") {
			return "m4s"
		}
		if strings.HasSuffix(first.URI, ".mp4") {
			return "mp4"
		}
	}
	if playlistType == PlaylistHLS {
		return "ts"
	}
	return "m4s"
}

// SetExtension sets an explicit extension override.
func (m *MediaPlaylist) SetExtension(ext string) { m.extension = ext }
