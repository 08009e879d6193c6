package selector

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mohaanymo/veld/internal/playlist"
	"github.com/mohaanymo/veld/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

// Mode is the process-global interaction mode.
type Mode string

const (
	ModeNone   Mode = "none"   // apply spec, log choices, no prompting
	ModeRaw    Mode = "raw"    // list all, read 1-based indices from stdin
	ModeModern Mode = "modern" // multi-select TUI with defaults pre-checked
)

// Logger receives the "log choices" side of ModeNone.
type Logger interface {
	Info(msg string, kv ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}

// Resolve applies spec against streams and, depending on mode, lets the
// user override the deterministic result interactively.
func Resolve(streams []*playlist.MediaPlaylist, spec Spec, mode Mode, in io.Reader, out io.Writer, log Logger) ([]*playlist.MediaPlaylist, error) {
	if log == nil {
		log = noopLogger{}
	}

	defaults, err := Select(streams, spec)
	if err != nil {
		return nil, err
	}

	switch mode {
	case ModeRaw:
		return resolveRaw(streams, defaults, in, out)
	case ModeModern:
		return resolveModern(streams, defaults)
	default:
		for _, s := range defaults {
			log.Info("selected stream", "id", s.ID, "type", string(s.MediaType))
		}
		return defaults, nil
	}
}

func resolveRaw(all, defaults []*playlist.MediaPlaylist, in io.Reader, out io.Writer) ([]*playlist.MediaPlaylist, error) {
	pools := Group(all)
	ordered := pools.All()

	defaultSet := make(map[string]bool, len(defaults))
	for _, s := range defaults {
		defaultSet[s.ID] = true
	}

	fmt.Fprintln(out, "Available streams:")
	for i, s := range ordered {
		marker := " "
		if defaultSet[s.ID] {
			marker = "*"
		}
		fmt.Fprintf(out, "%s %2d) %s %s\n", marker, i+1, s.MediaType, describe(s))
	}
	fmt.Fprint(out, "Enter 1-based indices (comma-separated), or blank for the starred defaults: ")

	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		return defaults, nil
	}
	line := strings.TrimSpace(scanner.Text())
	if line == "" {
		return defaults, nil
	}

	var chosen []*playlist.MediaPlaylist
	for _, tok := range strings.Split(line, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		idx, err := strconv.Atoi(tok)
		if err != nil || idx < 1 || idx > len(ordered) {
			return nil, fmt.Errorf("selector: invalid index %q (valid range 1-%d)", tok, len(ordered))
		}
		chosen = append(chosen, ordered[idx-1])
	}
	if len(chosen) == 0 {
		return defaults, nil
	}
	return chosen, nil
}

func describe(s *playlist.MediaPlaylist) string {
	var parts []string
	if s.Resolution != nil && s.Resolution.Height > 0 {
		parts = append(parts, s.Resolution.QualityLabel())
	}
	if s.Codecs != "" {
		parts = append(parts, s.Codecs)
	}
	if s.Language != "" {
		parts = append(parts, s.Language)
	}
	if s.Bandwidth > 0 {
		parts = append(parts, fmt.Sprintf("%d bps", s.Bandwidth))
	}
	return strings.Join(parts, " ")
}

func resolveModern(all, defaults []*playlist.MediaPlaylist) ([]*playlist.MediaPlaylist, error) {
	picker := tui.NewTrackPicker(all, defaults)
	p := tea.NewProgram(picker)
	finalModel, err := p.Run()
	if err != nil {
		return nil, fmt.Errorf("selector: running picker TUI: %w", err)
	}
	result := finalModel.(*tui.TrackPicker).Result()
	if result.Canceled {
		return nil, fmt.Errorf("selector: selection canceled")
	}
	return result.Selected, nil
}
