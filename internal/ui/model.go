// Package ui provides the Bubbletea progress display for library scans
package ui

import (
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

// Model is the Bubbletea model for the scan progress UI. The pipeline
// feeds it through the program's Send method; the model itself never
// touches the scanner.
type Model struct {
	TotalTracks  int
	TotalFolders int
	AlbumMode    bool

	DoneTracks   int
	FailedTracks int
	DoneFolders  int
	FailedDirs   int

	LastPath  string
	StartTime time.Time
	Done      bool
	Stats     processor.Stats
	Elapsed   time.Duration
	RunErr    error

	bar progress.Model

	// Channel for receiving events from the pipeline goroutine
	EventChan chan tea.Msg

	Width int
}

// NewModel creates the progress model for a scheduled run.
func NewModel(totalTracks, totalFolders int, albumMode bool) Model {
	return Model{
		TotalTracks:  totalTracks,
		TotalFolders: totalFolders,
		AlbumMode:    albumMode,
		StartTime:    time.Now(),
		bar:          progress.New(progress.WithDefaultGradient()),
		EventChan:    make(chan tea.Msg, 100), // Buffered channel
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.EventChan)
}

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.bar.Width = min(msg.Width-8, 60)

	case TrackDoneMsg:
		m.DoneTracks++
		m.LastPath = msg.Path
		if msg.Err != nil {
			m.FailedTracks++
		}
		return m, waitForEvent(m.EventChan)

	case FolderDoneMsg:
		m.DoneFolders++
		if msg.Err != nil {
			m.FailedDirs++
		}
		return m, waitForEvent(m.EventChan)

	case RunDoneMsg:
		m.Done = true
		m.Stats = msg.Stats
		m.Elapsed = msg.Elapsed
		m.RunErr = msg.Err
		return m, tea.Quit
	}

	return m, nil
}

// Percent is the completed fraction of the scheduled track scans.
func (m Model) Percent() float64 {
	if m.TotalTracks == 0 {
		return 1.0
	}
	return float64(m.DoneTracks) / float64(m.TotalTracks)
}

// waitForEvent creates a command that waits for pipeline events
func waitForEvent(events chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		return <-events
	}
}
