// Package mux drives an external ffmpeg process to package downloaded,
// merged streams into a single output container.
package mux

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mohaanymo/veld/internal/playlist"
	"github.com/mohaanymo/veld/internal/verr"
)

// Input is one already-merged stream ready to be muxed: Path is the
// temp file internal/scheduler wrote the stream's decrypted segments to.
type Input struct {
	Stream *playlist.MediaPlaylist
	Path   string
}

// Options configures one Mux invocation.
type Options struct {
	FFmpegPath string
	Verbose    bool
}

// Mux packages inputs into outputPath, ordering -i flags video, then
// audio, then subtitle, and cleans up the input temp files and their
// now-empty directory once ffmpeg exits successfully.
func Mux(ctx context.Context, opts Options, inputs []Input, outputPath string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("mux: no inputs to mux")
	}
	if opts.FFmpegPath == "" {
		path, err := exec.LookPath("ffmpeg")
		if err != nil {
			return fmt.Errorf("mux: ffmpeg not found on PATH: %w", err)
		}
		opts.FFmpegPath = path
	}

	ordered := orderInputs(inputs)

	if err := os.Remove(outputPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("mux: removing pre-existing output: %w", err)
	}

	args := buildArgs(ordered, outputPath)

	if opts.Verbose {
		fmt.Printf("mux: %s %s\n", opts.FFmpegPath, strings.Join(args, " "))
	}

	cmd := exec.CommandContext(ctx, opts.FFmpegPath, args...)
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if opts.Verbose {
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		// Temp files are deliberately left in place on failure so the
		// operator can inspect or retry the mux step by hand.
		return &verr.MuxError{Stderr: stderr.String(), Err: err}
	}

	return cleanupInputs(ordered)
}

// orderInputs sorts video first, then audio, then subtitles, preserving
// relative order within each kind.
func orderInputs(inputs []Input) []Input {
	out := make([]Input, len(inputs))
	copy(out, inputs)
	rank := func(mt playlist.MediaType) int {
		switch mt {
		case playlist.MediaAudio:
			return 1
		case playlist.MediaSubtitles:
			return 2
		default:
			return 0
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Stream.MediaType) < rank(out[j].Stream.MediaType)
	})
	return out
}

func targetIsMP4(outputPath string) bool {
	ext := strings.ToLower(filepath.Ext(outputPath))
	return ext == ".mp4" || ext == ".m4v" || ext == ".mov"
}

// buildArgs constructs the ffmpeg argument list: one -i per input in
// order, "-c copy" for everything except a subtitle stream muxed into an
// mp4-family container (which needs "-c:s mov_text"), per-stream language
// metadata, and default-disposition on the first subtitle track.
func buildArgs(inputs []Input, outputPath string) []string {
	args := []string{"-y", "-hide_banner", "-loglevel", "error"}

	for _, in := range inputs {
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-map_metadata", "-1")
	for i := range inputs {
		args = append(args, "-map", fmt.Sprintf("%d", i))
	}

	args = append(args, "-c", "copy")

	mp4Target := targetIsMP4(outputPath)
	firstSubtitle := true
	for i, in := range inputs {
		if in.Stream.MediaType == playlist.MediaSubtitles {
			if mp4Target {
				args = append(args, fmt.Sprintf("-c:s:%d", subtitleStreamIndex(inputs, i)), "mov_text")
			}
			if firstSubtitle {
				args = append(args, fmt.Sprintf("-disposition:s:%d", subtitleStreamIndex(inputs, i)), "default")
				firstSubtitle = false
			}
		}
		if in.Stream.Language != "" {
			args = append(args, fmt.Sprintf("-metadata:s:%d", i), "language="+in.Stream.Language)
		}
	}

	if mp4Target {
		args = append(args, "-movflags", "+faststart")
	}

	args = append(args, outputPath)
	return args
}

// subtitleStreamIndex returns i's position among subtitle-only inputs,
// since ffmpeg's "-c:s:N"/"-disposition:s:N" selectors are indexed within
// the subtitle stream class, not the overall input list.
func subtitleStreamIndex(inputs []Input, i int) int {
	n := 0
	for j := 0; j < i; j++ {
		if inputs[j].Stream.MediaType == playlist.MediaSubtitles {
			n++
		}
	}
	return n
}

func cleanupInputs(inputs []Input) error {
	var dir string
	for _, in := range inputs {
		if dir == "" {
			dir = filepath.Dir(in.Path)
		}
		if err := os.Remove(in.Path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("mux: removing temp file %s: %w", in.Path, err)
		}
	}
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err == nil && len(entries) == 0 {
		os.Remove(dir)
	}
	return nil
}
