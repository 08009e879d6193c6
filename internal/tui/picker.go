package tui

import (
	"fmt"
	"strings"

	"github.com/mohaanymo/veld/internal/playlist"

	tea "github.com/charmbracelet/bubbletea"
)

// TrackPickerResult is returned when track selection is complete.
type TrackPickerResult struct {
	Selected []*playlist.MediaPlaylist
	Canceled bool
}

// TrackPicker is a TUI for interactive track selection.
type TrackPicker struct {
	streams      []*playlist.MediaPlaylist
	videos       []*playlist.MediaPlaylist
	audios       []*playlist.MediaPlaylist
	subtitles    []*playlist.MediaPlaylist
	selected     map[string]bool
	cursor       int
	scrollOffset int
	visibleRows  int
	width        int
	height       int
	done         bool
	canceled     bool
}

// NewTrackPicker creates a new track picker TUI, pre-selecting the streams
// already present in preselected (the selector's deterministic defaults).
func NewTrackPicker(streams []*playlist.MediaPlaylist, preselected []*playlist.MediaPlaylist) *TrackPicker {
	tp := &TrackPicker{
		streams:     streams,
		selected:    make(map[string]bool),
		width:       80,
		height:      24,
		visibleRows: 15,
	}

	for _, s := range streams {
		switch s.MediaType {
		case playlist.MediaSubtitles:
			tp.subtitles = append(tp.subtitles, s)
		case playlist.MediaAudio:
			tp.audios = append(tp.audios, s)
		default:
			tp.videos = append(tp.videos, s)
		}
	}

	for _, s := range preselected {
		tp.selected[s.ID] = true
	}

	return tp
}

func (tp *TrackPicker) Init() tea.Cmd {
	return nil
}

func (tp *TrackPicker) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			tp.canceled = true
			tp.done = true
			return tp, tea.Quit

		case "enter":
			tp.done = true
			return tp, tea.Quit

		case "up", "k":
			if tp.cursor > 0 {
				tp.cursor--
				tp.adjustScroll()
			}

		case "down", "j":
			total := len(tp.videos) + len(tp.audios) + len(tp.subtitles)
			if tp.cursor < total-1 {
				tp.cursor++
				tp.adjustScroll()
			}

		case " ", "x":
			stream := tp.streamAtCursor()
			if stream != nil {
				tp.selected[stream.ID] = !tp.selected[stream.ID]
			}

		case "a":
			for _, s := range tp.audios {
				tp.selected[s.ID] = true
			}

		case "v":
			for _, s := range tp.videos {
				tp.selected[s.ID] = true
			}

		case "s":
			for _, s := range tp.subtitles {
				tp.selected[s.ID] = true
			}

		case "n":
			for k := range tp.selected {
				delete(tp.selected, k)
			}
		}

	case tea.WindowSizeMsg:
		tp.width = msg.Width
		tp.height = msg.Height
	}

	return tp, nil
}

func (tp *TrackPicker) streamAtCursor() *playlist.MediaPlaylist {
	if tp.cursor < len(tp.videos) {
		return tp.videos[tp.cursor]
	}
	audioIdx := tp.cursor - len(tp.videos)
	if audioIdx < len(tp.audios) {
		return tp.audios[audioIdx]
	}
	subIdx := tp.cursor - len(tp.videos) - len(tp.audios)
	if subIdx < len(tp.subtitles) {
		return tp.subtitles[subIdx]
	}
	return nil
}

func (tp *TrackPicker) adjustScroll() {
	if tp.cursor < tp.scrollOffset {
		tp.scrollOffset = tp.cursor
	}
	if tp.cursor >= tp.scrollOffset+tp.visibleRows {
		tp.scrollOffset = tp.cursor - tp.visibleRows + 1
	}
}

func (tp *TrackPicker) View() string {
	w := clamp(tp.width-4, 60, 100)

	var b strings.Builder

	title := titleStyle.Render("⚡ veld")
	subtitle := dimStyle.Render(" - Select Tracks")
	b.WriteString(headerStyle.Width(w).Render(title + subtitle))
	b.WriteString("\n\n")

	type streamItem struct {
		stream  *playlist.MediaPlaylist
		badge   string
		section string
		idx     int
	}

	var allStreams []streamItem
	globalIdx := 0

	for _, v := range tp.videos {
		allStreams = append(allStreams, streamItem{v, "VIDEO", "Video Tracks", globalIdx})
		globalIdx++
	}
	for _, a := range tp.audios {
		allStreams = append(allStreams, streamItem{a, "AUDIO", "Audio Tracks", globalIdx})
		globalIdx++
	}
	for _, s := range tp.subtitles {
		allStreams = append(allStreams, streamItem{s, "SUB", "Subtitle Tracks", globalIdx})
		globalIdx++
	}

	total := len(allStreams)

	if tp.scrollOffset > 0 {
		b.WriteString(dimStyle.Render("  ↑ more tracks above"))
		b.WriteString("\n")
	}

	lastSection := ""
	visibleCount := 0
	for i := tp.scrollOffset; i < total && visibleCount < tp.visibleRows; i++ {
		item := allStreams[i]

		if item.section != lastSection {
			if lastSection != "" {
				b.WriteString("\n")
			}
			b.WriteString(subtitleStyle.Render(item.section))
			b.WriteString("\n\n")
			lastSection = item.section
		}

		isCursor := item.idx == tp.cursor
		isSelected := tp.selected[item.stream.ID]
		b.WriteString(tp.renderStreamRow(item.stream, isCursor, isSelected, item.badge))
		b.WriteString("\n")
		visibleCount++
	}
	b.WriteString("\n")

	if tp.scrollOffset+tp.visibleRows < total {
		b.WriteString(dimStyle.Render("  ↓ more tracks below"))
		b.WriteString("\n")
	}

	count := 0
	for _, v := range tp.selected {
		if v {
			count++
		}
	}
	b.WriteString(dimStyle.Render(fmt.Sprintf("Selected: %d tracks", count)))
	b.WriteString("\n\n")

	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("↑/↓") + " navigate  " +
			keyHelpStyle.Render("space") + " toggle  " +
			keyHelpStyle.Render("enter") + " confirm  " +
			keyHelpStyle.Render("q") + " cancel",
	))
	b.WriteString("\n")
	b.WriteString(helpStyle.Render(
		keyHelpStyle.Render("v") + " all video  " +
			keyHelpStyle.Render("a") + " all audio  " +
			keyHelpStyle.Render("s") + " all subs  " +
			keyHelpStyle.Render("n") + " none",
	))

	return contentStyle.Width(w).Render(b.String())
}

func (tp *TrackPicker) renderStreamRow(s *playlist.MediaPlaylist, cursor, selected bool, badge string) string {
	var b strings.Builder

	if cursor {
		b.WriteString(selectedStyle.Render("▸ "))
	} else {
		b.WriteString("  ")
	}

	if selected {
		b.WriteString(successStyle.Render("[✓] "))
	} else {
		b.WriteString(dimStyle.Render("[ ] "))
	}

	switch badge {
	case "VIDEO":
		b.WriteString(videoBadge.Render("VIDEO"))
	case "AUDIO":
		b.WriteString(audioBadge.Render("AUDIO"))
	case "SUB":
		b.WriteString(subtitleBadge.Render("SUB"))
	}
	b.WriteString(" ")

	if s.Resolution != nil && s.Resolution.Height > 0 {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%-6s", s.Resolution.QualityLabel())))
	} else {
		b.WriteString(valueStyle.Render(fmt.Sprintf("%-6s", "")))
	}
	b.WriteString(" ")

	b.WriteString(normalStyle.Render(fmt.Sprintf("%-15s", s.Codecs)))

	if s.Language != "" {
		b.WriteString(dimStyle.Render(" • "))
		b.WriteString(normalStyle.Render(s.Language))
	}

	if s.Bandwidth > 0 {
		b.WriteString(dimStyle.Render(" • "))
		b.WriteString(dimStyle.Render(formatBandwidth(s.Bandwidth)))
	}

	return b.String()
}

// Result returns the selected streams, in the same order they were
// originally passed to NewTrackPicker.
func (tp *TrackPicker) Result() TrackPickerResult {
	if tp.canceled {
		return TrackPickerResult{Canceled: true}
	}

	var selected []*playlist.MediaPlaylist
	for _, s := range tp.streams {
		if tp.selected[s.ID] {
			selected = append(selected, s)
		}
	}
	return TrackPickerResult{Selected: selected}
}

func formatBandwidth(bw int64) string {
	if bw >= 1000000 {
		return fmt.Sprintf("%.1f Mbps", float64(bw)/1000000)
	}
	if bw >= 1000 {
		return fmt.Sprintf("%.0f kbps", float64(bw)/1000)
	}
	return fmt.Sprintf("%d bps", bw)
}
