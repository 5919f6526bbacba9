package ui

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#2E8B57"))

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00AA00"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A40000"))
)

// View renders the UI
func (m Model) View() string {
	if m.Done {
		return renderSummary(m)
	}
	return renderScanView(m)
}

// renderScanView renders the in-flight progress display
func renderScanView(m Model) string {
	var b strings.Builder

	b.WriteString(headerStyle.Render("LoudGain 🔊 - ReplayGain 2.0 loudness scanner"))
	b.WriteString("\n")
	mode := "track mode"
	if m.AlbumMode {
		mode = fmt.Sprintf("album mode, %d folder(s)", m.TotalFolders)
	}
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Scanning %d file(s), %s", m.TotalTracks, mode)))
	b.WriteString("\n\n")

	b.WriteString("  ")
	b.WriteString(m.bar.ViewAs(m.Percent()))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("  %d/%d tracks", m.DoneTracks, m.TotalTracks))
	if m.AlbumMode {
		b.WriteString(fmt.Sprintf(", %d/%d folders", m.DoneFolders, m.TotalFolders))
	}
	if m.FailedTracks > 0 || m.FailedDirs > 0 {
		b.WriteString("  ")
		b.WriteString(failStyle.Render(fmt.Sprintf("%d failure(s)", m.FailedTracks+m.FailedDirs)))
	}
	b.WriteString("\n")

	if m.LastPath != "" {
		b.WriteString(subtitleStyle.Render("  " + filepath.Base(m.LastPath)))
		b.WriteString("\n")
	}

	return b.String()
}

// renderSummary renders the end-of-run line
func renderSummary(m Model) string {
	var b strings.Builder

	if m.RunErr != nil {
		b.WriteString(failStyle.Render("✗ " + m.RunErr.Error()))
		b.WriteString("\n")
		return b.String()
	}

	if m.Stats.Clean() {
		b.WriteString(okStyle.Render("✓"))
	} else {
		b.WriteString(failStyle.Render("✗"))
	}
	b.WriteString(fmt.Sprintf(" Scanned %d track(s)", m.Stats.Tracks))
	if m.AlbumMode {
		b.WriteString(fmt.Sprintf(" in %d folder(s)", m.Stats.Folders))
	}
	if m.Stats.TrackFailures > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf(", %d scan failure(s)", m.Stats.TrackFailures)))
	}
	if m.Stats.FolderFailures > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf(", %d album failure(s)", m.Stats.FolderFailures)))
	}
	if m.Stats.TagFailures > 0 {
		b.WriteString(failStyle.Render(fmt.Sprintf(", %d tag failure(s)", m.Stats.TagFailures)))
	}
	b.WriteString(fmt.Sprintf(" in %s\n", m.Elapsed.Round(timeUnit(m.Elapsed))))

	return b.String()
}

// timeUnit picks a rounding granularity that keeps durations readable.
func timeUnit(d time.Duration) time.Duration {
	if d >= time.Minute {
		return time.Second
	}
	return 10 * time.Millisecond
}
