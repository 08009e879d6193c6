package mux

import (
	"strings"
	"testing"

	"github.com/mohaanymo/veld/internal/playlist"
)

func TestOrderInputsPutsVideoAudioSubtitleInThatOrder(t *testing.T) {
	inputs := []Input{
		{Stream: &playlist.MediaPlaylist{ID: "s", MediaType: playlist.MediaSubtitles}, Path: "s.vtt"},
		{Stream: &playlist.MediaPlaylist{ID: "a", MediaType: playlist.MediaAudio}, Path: "a.m4s"},
		{Stream: &playlist.MediaPlaylist{ID: "v", MediaType: playlist.MediaVideo}, Path: "v.m4s"},
	}
	ordered := orderInputs(inputs)
	got := []string{ordered[0].Stream.ID, ordered[1].Stream.ID, ordered[2].Stream.ID}
	want := []string{"v", "a", "s"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order[%d] = %s, want %s (full order %v)", i, got[i], want[i], got)
		}
	}
}

func TestBuildArgsUsesMovTextForMP4Subtitles(t *testing.T) {
	inputs := []Input{
		{Stream: &playlist.MediaPlaylist{ID: "v", MediaType: playlist.MediaVideo}, Path: "v.m4s"},
		{Stream: &playlist.MediaPlaylist{ID: "s", MediaType: playlist.MediaSubtitles, Language: "en"}, Path: "s.m4s"},
	}
	args := buildArgs(inputs, "out.mp4")
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "mov_text") {
		t.Fatalf("expected mov_text for mp4 target, got: %s", joined)
	}
	if !strings.Contains(joined, "language=en") {
		t.Fatalf("expected language metadata, got: %s", joined)
	}
	if !strings.Contains(joined, "-disposition:s:0 default") {
		t.Fatalf("expected default disposition on first subtitle, got: %s", joined)
	}
}

func TestBuildArgsSkipsMovTextForMKVTarget(t *testing.T) {
	inputs := []Input{
		{Stream: &playlist.MediaPlaylist{ID: "v", MediaType: playlist.MediaVideo}, Path: "v.m4s"},
		{Stream: &playlist.MediaPlaylist{ID: "s", MediaType: playlist.MediaSubtitles}, Path: "s.m4s"},
	}
	args := buildArgs(inputs, "out.mkv")
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "mov_text") {
		t.Fatalf("did not expect mov_text for mkv target, got: %s", joined)
	}
}

func TestSubtitleStreamIndexCountsOnlySubtitles(t *testing.T) {
	inputs := []Input{
		{Stream: &playlist.MediaPlaylist{MediaType: playlist.MediaVideo}},
		{Stream: &playlist.MediaPlaylist{MediaType: playlist.MediaAudio}},
		{Stream: &playlist.MediaPlaylist{MediaType: playlist.MediaSubtitles}},
		{Stream: &playlist.MediaPlaylist{MediaType: playlist.MediaSubtitles}},
	}
	if got := subtitleStreamIndex(inputs, 2); got != 0 {
		t.Fatalf("first subtitle index = %d, want 0", got)
	}
	if got := subtitleStreamIndex(inputs, 3); got != 1 {
		t.Fatalf("second subtitle index = %d, want 1", got)
	}
}
