// Package selector implements spec's constraint-based stream selection:
// grouping/sorting the manifest's streams by kind, applying per-kind
// language/resolution/quality constraints, and the three interaction modes
// (none, raw, modern) layered on top.
package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mohaanymo/veld/internal/playlist"
)

// Quality is a coarse preset that picks the first or last entry of an
// already-sorted pool.
type Quality string

const (
	QualityNone  Quality = ""
	QualityBest  Quality = "best"
	QualityWorst Quality = "worst"
)

// VideoConstraint filters/selects from the video pool.
type VideoConstraint struct {
	All         bool
	Skip        bool
	Quality     Quality
	Resolutions [][2]int // explicit (width, height) pairs
}

// AudioConstraint filters/selects from the audio pool.
type AudioConstraint struct {
	All       bool
	Skip      bool
	Languages []string
}

// SubtitleConstraint filters/selects from the subtitle pool.
type SubtitleConstraint struct {
	All       bool
	Skip      bool
	Languages []string
}

// Spec is one selection request. StreamIndices, when non-empty, is a set of
// explicit 1-based indices into the combined (video, then audio, then
// subtitle) display order and overrides every other field.
type Spec struct {
	Video         VideoConstraint
	Audio         AudioConstraint
	Subtitle      SubtitleConstraint
	StreamIndices []int
}

// Pools groups a MasterPlaylist's streams by kind, each sorted: video by
// (resolution_pixels, bandwidth) descending, audio by (channels, bandwidth)
// descending, subtitles preserving manifest order.
type Pools struct {
	Video    []*playlist.MediaPlaylist
	Audio    []*playlist.MediaPlaylist
	Subtitle []*playlist.MediaPlaylist
}

// Group splits and sorts a manifest's streams into Pools.
func Group(streams []*playlist.MediaPlaylist) Pools {
	var p Pools
	for _, s := range streams {
		switch s.MediaType {
		case playlist.MediaAudio:
			p.Audio = append(p.Audio, s)
		case playlist.MediaSubtitles:
			p.Subtitle = append(p.Subtitle, s)
		default:
			p.Video = append(p.Video, s)
		}
	}
	sort.SliceStable(p.Video, func(i, j int) bool {
		pi, pj := pixels(p.Video[i]), pixels(p.Video[j])
		if pi != pj {
			return pi > pj
		}
		return p.Video[i].Bandwidth > p.Video[j].Bandwidth
	})
	sort.SliceStable(p.Audio, func(i, j int) bool {
		ci, cj := p.Audio[i].Channels, p.Audio[j].Channels
		if ci != cj {
			return ci > cj
		}
		return p.Audio[i].Bandwidth > p.Audio[j].Bandwidth
	})
	return p
}

func pixels(m *playlist.MediaPlaylist) int {
	if m.Resolution == nil {
		return 0
	}
	return m.Resolution.Pixels()
}

// All concatenates video, audio, subtitle in that order — the same order
// used both for StreamIndices and for raw/modern interactive listings.
func (p Pools) All() []*playlist.MediaPlaylist {
	out := make([]*playlist.MediaPlaylist, 0, len(p.Video)+len(p.Audio)+len(p.Subtitle))
	out = append(out, p.Video...)
	out = append(out, p.Audio...)
	out = append(out, p.Subtitle...)
	return out
}

// Select applies spec to streams (already the full stream list from a
// MasterPlaylist, any order) and returns the chosen MediaPlaylists.
func Select(streams []*playlist.MediaPlaylist, spec Spec) ([]*playlist.MediaPlaylist, error) {
	if len(streams) == 0 {
		return nil, fmt.Errorf("selector: no streams available")
	}
	pools := Group(streams)

	if len(spec.StreamIndices) > 0 {
		all := pools.All()
		var out []*playlist.MediaPlaylist
		for _, idx := range spec.StreamIndices {
			if idx < 1 || idx > len(all) {
				return nil, fmt.Errorf("selector: stream index %d out of range (1..%d)", idx, len(all))
			}
			out = append(out, all[idx-1])
		}
		return out, nil
	}

	video := selectVideo(pools.Video, spec.Video)
	audio := selectAudio(pools.Audio, spec.Audio)
	subs := selectSubtitle(pools.Subtitle, spec.Subtitle)

	var selected []*playlist.MediaPlaylist
	selected = append(selected, video...)
	selected = append(selected, audio...)
	selected = append(selected, subs...)

	if len(selected) == 0 {
		return nil, fmt.Errorf("selector: nothing matched and no streams to default to")
	}
	return selected, nil
}

func selectVideo(pool []*playlist.MediaPlaylist, c VideoConstraint) []*playlist.MediaPlaylist {
	if len(pool) == 0 {
		return nil
	}

	var matched []*playlist.MediaPlaylist
	if c.All {
		matched = pool
	} else if len(c.Resolutions) > 0 {
		for _, r := range c.Resolutions {
			best := closestResolution(pool, r)
			if best != nil {
				matched = append(matched, best)
			}
		}
	} else if c.Quality == QualityWorst {
		matched = []*playlist.MediaPlaylist{pool[len(pool)-1]}
	} else if c.Quality == QualityBest {
		matched = []*playlist.MediaPlaylist{pool[0]}
	}

	if c.Skip {
		return complement(pool, matched)
	}
	if len(matched) == 0 {
		return []*playlist.MediaPlaylist{pool[0]}
	}
	return matched
}

// closestResolution finds an exact (width, height) match when width is
// given, else (width == 0) the entry whose height is closest to the target,
// implementing the "-1080p" nearest-quality selector syntax.
func closestResolution(pool []*playlist.MediaPlaylist, want [2]int) *playlist.MediaPlaylist {
	if want[0] != 0 {
		for _, s := range pool {
			if s.Resolution != nil && s.Resolution.Width == want[0] && s.Resolution.Height == want[1] {
				return s
			}
		}
		return nil
	}
	var best *playlist.MediaPlaylist
	bestDiff := -1
	for _, s := range pool {
		if s.Resolution == nil {
			continue
		}
		diff := s.Resolution.Height - want[1]
		if diff < 0 {
			diff = -diff
		}
		if bestDiff == -1 || diff < bestDiff {
			bestDiff = diff
			best = s
		}
	}
	return best
}

func selectAudio(pool []*playlist.MediaPlaylist, c AudioConstraint) []*playlist.MediaPlaylist {
	if len(pool) == 0 {
		return nil
	}
	matched := matchByLanguage(pool, c.All, c.Languages)
	if c.Skip {
		return complement(pool, matched)
	}
	if len(matched) == 0 {
		return []*playlist.MediaPlaylist{pool[0]}
	}
	return matched
}

func selectSubtitle(pool []*playlist.MediaPlaylist, c SubtitleConstraint) []*playlist.MediaPlaylist {
	if len(pool) == 0 {
		return nil
	}
	matched := matchByLanguage(pool, c.All, c.Languages)
	if c.Skip {
		return complement(pool, matched)
	}
	if len(matched) == 0 {
		if len(c.Languages) == 0 && !c.All {
			return []*playlist.MediaPlaylist{pool[0]}
		}
		return nil
	}
	return matched
}

// matchByLanguage collects streams matching any of wanted, trying an exact
// normalized-language match first, then a 2-letter-prefix match.
func matchByLanguage(pool []*playlist.MediaPlaylist, all bool, wanted []string) []*playlist.MediaPlaylist {
	if all {
		return pool
	}
	if len(wanted) == 0 {
		return nil
	}
	used := make(map[string]bool)
	var out []*playlist.MediaPlaylist
	for _, want := range wanted {
		normWant := NormalizeLanguage(want)
		var exact, similar *playlist.MediaPlaylist
		for _, s := range pool {
			if used[s.ID] {
				continue
			}
			normLang := NormalizeLanguage(s.Language)
			if normLang == normWant && exact == nil {
				exact = s
			} else if len(normLang) >= 2 && len(normWant) >= 2 && normLang[:2] == normWant[:2] && similar == nil {
				similar = s
			}
		}
		pick := exact
		if pick == nil {
			pick = similar
		}
		if pick != nil {
			used[pick.ID] = true
			out = append(out, pick)
		}
	}
	return out
}

func complement(pool, exclude []*playlist.MediaPlaylist) []*playlist.MediaPlaylist {
	excluded := make(map[string]bool, len(exclude))
	for _, s := range exclude {
		excluded[s.ID] = true
	}
	var out []*playlist.MediaPlaylist
	for _, s := range pool {
		if !excluded[s.ID] {
			out = append(out, s)
		}
	}
	return out
}

// NormalizeLanguage lowercases and maps common ISO 639-2/B and English-name
// aliases to their ISO 639-1 form.
func NormalizeLanguage(lang string) string {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if norm, ok := langAliases[lang]; ok {
		return norm
	}
	return lang
}

var langAliases = map[string]string{
	"eng": "en", "english": "en",
	"ara": "ar", "arb": "ar", "arabic": "ar",
	"jpn": "ja", "japanese": "ja",
	"zho": "zh", "chi": "zh", "chinese": "zh", "cmn": "zh",
	"spa": "es", "spanish": "es",
	"fra": "fr", "fre": "fr", "french": "fr",
	"deu": "de", "ger": "de", "german": "de",
	"por": "pt", "portuguese": "pt",
	"rus": "ru", "russian": "ru",
	"kor": "ko", "korean": "ko",
	"ita": "it", "italian": "it",
	"tur": "tr", "turkish": "tr",
	"hin": "hi", "hindi": "hi",
	"nld": "nl", "dut": "nl", "dutch": "nl",
	"pol": "pl", "polish": "pl",
	"vie": "vi", "vietnamese": "vi",
	"tha": "th", "thai": "th",
	"ind": "id", "indonesian": "id",
	"heb": "he", "hebrew": "he",
	"ell": "el", "gre": "el", "greek": "el",
	"ces": "cs", "cze": "cs", "czech": "cs",
	"ron": "ro", "rum": "ro", "romanian": "ro",
	"hun": "hu", "hungarian": "hu",
	"swe": "sv", "swedish": "sv",
	"dan": "da", "danish": "da",
	"fin": "fi", "finnish": "fi",
	"nor": "no", "norwegian": "no", "nob": "no", "nno": "no",
	"ukr": "uk", "ukrainian": "uk",
}
