package veld

import (
	"github.com/mohaanymo/veld/internal/playlist"
)

// TrackType represents the kind of media a Track carries.
type TrackType int

const (
	TrackVideo TrackType = iota
	TrackAudio
	TrackSubtitle
	TrackUnknown
)

func trackTypeOf(mt playlist.MediaType) TrackType {
	switch mt {
	case playlist.MediaVideo:
		return TrackVideo
	case playlist.MediaAudio:
		return TrackAudio
	case playlist.MediaSubtitles:
		return TrackSubtitle
	default:
		return TrackUnknown
	}
}

func (t TrackType) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	case TrackSubtitle:
		return "subtitle"
	default:
		return "unknown"
	}
}

// Track represents one selectable rendition of a parsed manifest: one HLS
// variant/alternative, or one DASH representation.
type Track struct {
	internal *playlist.MediaPlaylist
}

// ID returns the track's unique identifier.
func (t *Track) ID() string {
	return t.internal.ID
}

// Type returns the track's media kind.
func (t *Track) Type() TrackType {
	return trackTypeOf(t.internal.MediaType)
}

// Codec returns the track's codec string (e.g. "avc1.64001f", "mp4a.40.2").
func (t *Track) Codec() string {
	return t.internal.Codecs
}

// Bandwidth returns the track's bandwidth in bits per second.
func (t *Track) Bandwidth() int64 {
	return t.internal.Bandwidth
}

// Width returns the video width in pixels (0 for non-video tracks).
func (t *Track) Width() int {
	if t.internal.Resolution == nil {
		return 0
	}
	return t.internal.Resolution.Width
}

// Height returns the video height in pixels (0 for non-video tracks).
func (t *Track) Height() int {
	if t.internal.Resolution == nil {
		return 0
	}
	return t.internal.Resolution.Height
}

// QualityLabel returns a human-readable quality label (e.g. "1080p", "4K").
func (t *Track) QualityLabel() string {
	if t.internal.Resolution == nil {
		return ""
	}
	return t.internal.Resolution.QualityLabel()
}

// Language returns the track's language code (e.g. "en", "es").
func (t *Track) Language() string {
	return t.internal.Language
}

// Name returns the track's ID, used as its display name.
func (t *Track) Name() string {
	return t.internal.ID
}

// IsVideo reports whether this is a video track.
func (t *Track) IsVideo() bool { return t.internal.MediaType == playlist.MediaVideo }

// IsAudio reports whether this is an audio track.
func (t *Track) IsAudio() bool { return t.internal.MediaType == playlist.MediaAudio }

// IsSubtitle reports whether this is a subtitle track.
func (t *Track) IsSubtitle() bool { return t.internal.MediaType == playlist.MediaSubtitles }

// IsEncrypted reports whether any segment of this track carries a key.
func (t *Track) IsEncrypted() bool {
	return t.internal.IsEncrypted()
}

// SegmentCount returns the number of segments in this track.
func (t *Track) SegmentCount() int {
	return len(t.internal.Segments)
}

// ProgressUpdate reports one segment's download outcome.
type ProgressUpdate struct {
	// SegmentIndex is the index of the segment that was processed.
	SegmentIndex int

	// TrackID is the ID of the track this segment belongs to.
	TrackID string

	// BytesLoaded is the number of bytes downloaded for this segment.
	BytesLoaded int64

	// Completed is true if the segment was successfully downloaded.
	Completed bool

	// Error is non-nil if the segment download or decryption failed.
	Error error
}
