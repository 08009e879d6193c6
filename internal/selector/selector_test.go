package selector

import (
	"bytes"
	"strings"
	"testing"

	"github.com/mohaanymo/veld/internal/playlist"
)

func stream(id string, mt playlist.MediaType, w, h int, bw int64, lang string, channels int) *playlist.MediaPlaylist {
	mp := &playlist.MediaPlaylist{ID: id, MediaType: mt, Bandwidth: bw, Language: lang, Channels: channels}
	if w > 0 {
		mp.Resolution = &playlist.Resolution{Width: w, Height: h}
	}
	return mp
}

func sampleStreams() []*playlist.MediaPlaylist {
	return []*playlist.MediaPlaylist{
		stream("v360", playlist.MediaVideo, 640, 360, 800_000, "", 0),
		stream("v1080", playlist.MediaVideo, 1920, 1080, 5_000_000, "", 0),
		stream("v720", playlist.MediaVideo, 1280, 720, 2_500_000, "", 0),
		stream("aen", playlist.MediaAudio, 0, 0, 128_000, "en", 2),
		stream("aar", playlist.MediaAudio, 0, 0, 128_000, "ar", 2),
		stream("sen", playlist.MediaSubtitles, 0, 0, 0, "en", 0),
		stream("sar", playlist.MediaSubtitles, 0, 0, 0, "ar", 0),
	}
}

func TestGroupSortsVideoByResolutionThenBandwidthDescending(t *testing.T) {
	pools := Group(sampleStreams())
	if len(pools.Video) != 3 {
		t.Fatalf("got %d video streams, want 3", len(pools.Video))
	}
	want := []string{"v1080", "v720", "v360"}
	for i, id := range want {
		if pools.Video[i].ID != id {
			t.Fatalf("video[%d] = %s, want %s", i, pools.Video[i].ID, id)
		}
	}
}

func TestSelectDefaultsToBestVideoAndFirstAudio(t *testing.T) {
	selected, err := Select(sampleStreams(), Spec{})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var gotVideo, gotAudio string
	for _, s := range selected {
		switch s.MediaType {
		case playlist.MediaVideo:
			gotVideo = s.ID
		case playlist.MediaAudio:
			if gotAudio == "" {
				gotAudio = s.ID
			}
		}
	}
	if gotVideo != "v1080" {
		t.Fatalf("default video = %s, want v1080 (best)", gotVideo)
	}
	if gotAudio != "aen" {
		t.Fatalf("default audio = %s, want aen (first)", gotAudio)
	}
}

func TestSelectAudioByExactLanguageThenSimilar(t *testing.T) {
	streams := []*playlist.MediaPlaylist{
		stream("a-en-us", playlist.MediaAudio, 0, 0, 128_000, "en-us", 2),
		stream("a-fr", playlist.MediaAudio, 0, 0, 128_000, "fr", 2),
	}
	selected, err := Select(streams, Spec{Audio: AudioConstraint{Languages: []string{"en"}}})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 1 || selected[0].ID != "a-en-us" {
		t.Fatalf("got %v, want similar-match a-en-us", selected)
	}
}

func TestSelectSkipReturnsComplement(t *testing.T) {
	selected, err := Select(sampleStreams(), Spec{
		Video: VideoConstraint{Skip: true, All: true},
	})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	for _, s := range selected {
		if s.MediaType == playlist.MediaVideo {
			t.Fatalf("skip=true with all=true should exclude all video, got %s", s.ID)
		}
	}
}

func TestStreamIndicesOverridesEverything(t *testing.T) {
	selected, err := Select(sampleStreams(), Spec{StreamIndices: []int{1, 4}})
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if len(selected) != 2 || selected[0].ID != "v1080" || selected[1].ID != "aen" {
		t.Fatalf("got %v, want [v1080 aen] (1-based indices into video,audio,subtitle order)", selected)
	}
}

func TestParseExpressionBestVideoPlusLanguage(t *testing.T) {
	spec := ParseExpression("v:-1080p + a:ar")
	if spec.Video.Resolutions[0][1] != 1080 {
		t.Fatalf("video resolution height = %d, want 1080", spec.Video.Resolutions[0][1])
	}
	if len(spec.Audio.Languages) != 1 || spec.Audio.Languages[0] != "ar" {
		t.Fatalf("audio languages = %v, want [ar]", spec.Audio.Languages)
	}

	selected, err := Select(sampleStreams(), spec)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	var gotAudio string
	for _, s := range selected {
		if s.MediaType == playlist.MediaAudio {
			gotAudio = s.ID
		}
	}
	if gotAudio != "aar" {
		t.Fatalf("audio = %s, want aar", gotAudio)
	}
}

func TestResolveRawReadsIndicesFromStdin(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("1,4,6\n")
	selected, err := Resolve(sampleStreams(), Spec{}, ModeRaw, in, &out, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(selected) != 3 {
		t.Fatalf("got %d selected, want 3", len(selected))
	}
	if !strings.Contains(out.String(), "Available streams") {
		t.Fatalf("expected prompt to list available streams")
	}
}

func TestResolveRawBlankLineKeepsDefaults(t *testing.T) {
	var out bytes.Buffer
	in := strings.NewReader("\n")
	selected, err := Resolve(sampleStreams(), Spec{}, ModeRaw, in, &out, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(selected) == 0 {
		t.Fatalf("expected deterministic defaults to be returned on blank input")
	}
}
