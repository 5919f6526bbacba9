package ui

import (
	"time"

	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

// TrackDoneMsg reports one finished track scan.
type TrackDoneMsg struct {
	Path string
	Err  error
}

// FolderDoneMsg reports one aggregated folder.
type FolderDoneMsg struct {
	Dir string
	Err error
}

// RunDoneMsg reports the end of the whole run.
type RunDoneMsg struct {
	Stats   processor.Stats
	Elapsed time.Duration
	Err     error
}
