package batch

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	colorBg      = lipgloss.Color("#1a1b26")
	colorBorder  = lipgloss.Color("#414868")
	colorMuted   = lipgloss.Color("#565f89")
	colorSubtle  = lipgloss.Color("#787c99")
	colorText    = lipgloss.Color("#a9b1d6")
	colorPrimary = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorSecond  = lipgloss.Color("#bb9af7")
	colorAccent  = lipgloss.Color("#7dcfff")
	colorRose    = lipgloss.Color("#f7768e")
)

var (
	headerStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(0, 2)
	titleStyle  = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	subStyle    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	bodyStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorBorder).Padding(1, 2)
	normalStyle = lipgloss.NewStyle().Foreground(colorText)
	dimStyle    = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle     = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	errStyle    = lipgloss.NewStyle().Foreground(colorRose).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(colorWarning)
	helpStyle   = lipgloss.NewStyle().Foreground(colorMuted)
	keyStyle    = lipgloss.NewStyle().Foreground(colorSubtle)
	spinStyle   = lipgloss.NewStyle().Foreground(colorPrimary)
	barDone     = lipgloss.NewStyle().Foreground(colorPrimary)
	barWait     = lipgloss.NewStyle().Foreground(colorMuted)
	videoBadge  = lipgloss.NewStyle().Foreground(colorBg).Background(colorPrimary).Padding(0, 1).Bold(true)
	audioBadge  = lipgloss.NewStyle().Foreground(colorBg).Background(colorSecond).Padding(0, 1).Bold(true)
	labelStyle  = lipgloss.NewStyle().Foreground(colorSubtle)
	valueStyle  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	selStyle    = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// UI renders a live dashboard of a Manager's jobs until the user quits.
type UI struct {
	manager *Manager
	program *tea.Program
	running bool
}

// NewUI wraps a Manager with a terminal dashboard.
func NewUI(manager *Manager) *UI {
	return &UI{manager: manager}
}

// Run starts the dashboard and blocks until the user quits or the program
// errors.
func (ui *UI) Run() error {
	model := newDashboard(ui.manager)
	ui.program = tea.NewProgram(model, tea.WithAltScreen())
	ui.running = true

	ui.manager.onProgress = func(*Job) { ui.refresh() }
	ui.manager.onStateChange = func(*Job) { ui.refresh() }

	_, err := ui.program.Run()
	ui.running = false
	return err
}

func (ui *UI) refresh() {
	if ui.program != nil && ui.running {
		ui.program.Send(refreshMsg{})
	}
}

type (
	refreshMsg struct{}
	tickMsg    time.Time
)

type dashboard struct {
	manager      *Manager
	width        int
	height       int
	frame        int
	cursor       int
	scrollOffset int
}

func newDashboard(m *Manager) *dashboard {
	return &dashboard{manager: m, width: 80, height: 24}
}

func (d *dashboard) Init() tea.Cmd {
	return tea.Batch(d.tick(), tea.EnterAltScreen)
}

func (d *dashboard) tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (d *dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return d, tea.Quit
		case "up", "k":
			if d.cursor > 0 {
				d.cursor--
				d.adjustScroll()
			}
		case "down", "j":
			if d.cursor < len(d.manager.Jobs())-1 {
				d.cursor++
				d.adjustScroll()
			}
		case "c":
			jobs := d.manager.Jobs()
			if d.cursor < len(jobs) {
				d.manager.Cancel(jobs[d.cursor].ID)
			}
		case "r":
			jobs := d.manager.Jobs()
			if d.cursor < len(jobs) {
				d.manager.Remove(jobs[d.cursor].ID)
				if d.cursor >= len(d.manager.Jobs()) && d.cursor > 0 {
					d.cursor--
				}
			}
		}
	case tea.WindowSizeMsg:
		d.width, d.height = msg.Width, msg.Height
	case tickMsg:
		d.frame++
		return d, d.tick()
	case refreshMsg:
	}
	return d, nil
}

func (d *dashboard) adjustScroll() {
	rows := d.visibleRows()
	if d.cursor < d.scrollOffset {
		d.scrollOffset = d.cursor
	}
	if d.cursor >= d.scrollOffset+rows {
		d.scrollOffset = d.cursor - rows + 1
	}
}

func (d *dashboard) visibleRows() int {
	rows := d.height - 15
	if rows < 5 {
		rows = 5
	}
	return rows
}

func (d *dashboard) View() string {
	w := d.width - 4
	if w < 60 {
		w = 60
	}
	if w > 100 {
		w = 100
	}

	var b strings.Builder
	b.WriteString(d.viewHeader(w))
	b.WriteString("\n\n")
	b.WriteString(d.viewJobs(w))
	return b.String()
}

func (d *dashboard) viewHeader(w int) string {
	title := d.manager.Title()
	if title == "" {
		title = "veld batch"
	}
	line1 := titleStyle.Render("⚡ "+title) + dimStyle.Render(" - queued downloads")

	s := d.manager.Stats()
	line2 := fmt.Sprintf("%s %s  %s %s  %s %s  %s %s",
		labelStyle.Render("active:"), valueStyle.Render(fmt.Sprintf("%d", s.Active)),
		labelStyle.Render("pending:"), normalStyle.Render(fmt.Sprintf("%d", s.Pending)),
		labelStyle.Render("done:"), okStyle.Render(fmt.Sprintf("%d", s.Completed)),
		labelStyle.Render("failed:"), errStyle.Render(fmt.Sprintf("%d", s.Failed)),
	)
	return headerStyle.Width(w).Render(line1 + "\n" + line2)
}

func (d *dashboard) viewJobs(w int) string {
	var b strings.Builder
	b.WriteString(subStyle.Render("Downloads"))
	b.WriteString("\n\n")

	jobs := d.manager.Jobs()
	if len(jobs) == 0 {
		b.WriteString(dimStyle.Render("  no jobs queued"))
		b.WriteString("\n")
	} else {
		rows := d.visibleRows()
		for i := d.scrollOffset; i < len(jobs) && i < d.scrollOffset+rows; i++ {
			b.WriteString(d.renderJob(jobs[i], i == d.cursor, w-6))
			b.WriteString("\n")
		}
		if len(jobs) > rows {
			end := d.scrollOffset + rows
			if end > len(jobs) {
				end = len(jobs)
			}
			b.WriteString(dimStyle.Render(fmt.Sprintf("\n  %d/%d jobs", end, len(jobs))))
		}
	}

	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render(
		keyStyle.Render("up/down") + " navigate  " +
			keyStyle.Render("c") + " cancel  " +
			keyStyle.Render("r") + " remove  " +
			keyStyle.Render("q") + " quit",
	))
	return bodyStyle.Width(w).Render(b.String())
}

func (d *dashboard) renderJob(job *Job, isCursor bool, w int) string {
	j := job.Snapshot()

	var b strings.Builder
	if isCursor {
		b.WriteString(selStyle.Render("> "))
	} else {
		b.WriteString("  ")
	}

	switch j.State {
	case StatePending:
		b.WriteString(dimStyle.Render("o "))
	case StateParsing, StateDownloading:
		b.WriteString(spinStyle.Render(spinnerFrames[d.frame%len(spinnerFrames)] + " "))
	case StateMuxing:
		b.WriteString(warnStyle.Render("* "))
	case StateCompleted:
		b.WriteString(okStyle.Render("v "))
	case StateFailed:
		b.WriteString(errStyle.Render("x "))
	case StateCanceled:
		b.WriteString(dimStyle.Render("- "))
	}

	name := j.ID
	if len(name) > 25 {
		name = name[:22] + "..."
	}
	if isCursor {
		b.WriteString(selStyle.Render(fmt.Sprintf("%-25s", name)))
	} else {
		b.WriteString(normalStyle.Render(fmt.Sprintf("%-25s", name)))
	}
	b.WriteString(" ")

	switch j.State {
	case StateDownloading, StateMuxing:
		width := 20
		pct := j.Progress.Percent()
		filled := int(pct / 100 * float64(width))
		if filled > width {
			filled = width
		}
		bar := barDone.Render(strings.Repeat("#", filled)) + barWait.Render(strings.Repeat(".", width-filled))
		b.WriteString(bar)
		b.WriteString(" ")
		b.WriteString(valueStyle.Render(fmt.Sprintf("%5.1f%%", pct)))
		if j.Progress.Speed > 0 {
			b.WriteString(" " + dimStyle.Render(fmt.Sprintf("%s/s", formatBytes(int64(j.Progress.Speed)))))
		}
		if j.Progress.ETA > 0 {
			b.WriteString(dimStyle.Render(fmt.Sprintf(" ETA %s", formatDuration(j.Progress.ETA))))
		}
	case StatePending:
		b.WriteString(dimStyle.Render("waiting..."))
	case StateParsing:
		b.WriteString(dimStyle.Render("parsing manifest..."))
	case StateCompleted:
		b.WriteString(okStyle.Render("completed"))
		b.WriteString(dimStyle.Render(fmt.Sprintf(" in %s", formatDuration(j.CompletedAt.Sub(j.StartedAt)))))
	case StateFailed:
		msg := "unknown error"
		if j.Err != nil {
			msg = j.Err.Error()
			if len(msg) > 30 {
				msg = msg[:27] + "..."
			}
		}
		b.WriteString(errStyle.Render(msg))
	case StateCanceled:
		b.WriteString(dimStyle.Render("canceled"))
	}

	if (j.State == StateDownloading || j.State == StateMuxing) && len(j.SelectedTracks) > 0 {
		b.WriteString("\n      ")
		for i, t := range j.SelectedTracks {
			if i > 0 {
				b.WriteString(" ")
			}
			switch {
			case t.IsVideo():
				b.WriteString(videoBadge.Render(t.QualityLabel()))
			case t.IsAudio():
				label := "AUDIO"
				if t.Language() != "" {
					label = t.Language()
				}
				b.WriteString(audioBadge.Render(label))
			}
		}
		b.WriteString(dimStyle.Render(fmt.Sprintf("  %d/%d segs", j.Progress.CompletedSegments, j.Progress.TotalSegments)))
	}

	return b.String()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return "0s"
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
