// Package processor implements the album-aware scan pipeline: track
// and folder records, loudness aggregation, clipping-prevention gain
// correction and the batching controller that bounds resident memory
// while keeping the worker pool saturated.
package processor

import (
	"fmt"
	"path/filepath"
)

// ScanStatus tracks the lifecycle of a track's measurement.
type ScanStatus int

const (
	StatusNotStarted ScanStatus = iota
	StatusFailed
	StatusSucceeded
)

func (s ScanStatus) String() string {
	switch s {
	case StatusFailed:
		return "failed"
	case StatusSucceeded:
		return "succeeded"
	default:
		return "not started"
	}
}

// Measurement holds the loudness values for one scope (track or
// album) of a track record.
type Measurement struct {
	Loudness      float64 // integrated loudness, LUFS
	Range         float64 // loudness range, LU
	Peak          float64 // true peak, linear
	Gain          float64 // normalization gain, dB
	Clips         bool    // peak would exceed the ceiling after gain
	ClipCorrected bool    // gain was reduced to the ceiling
	NewPeak       float64 // peak after gain, linear
}

// TrackRecord is the unit of scanning. Its track-scope fields are
// written only by its own scan task and its album-scope fields exactly
// once by the owning folder's aggregation task; that single-writer
// discipline is what makes lock-free field access safe.
type TrackRecord struct {
	Path      string
	Container string // container short name, e.g. "flac"
	Codec     string // codec name, e.g. "mp3", "opus"
	Status    ScanStatus
	Reference float64 // reference loudness reported with output, LUFS

	Track Measurement
	Album Measurement

	acc      Accumulator
	albumSet bool
}

// NewTrackRecord creates a record for a discovered path.
func NewTrackRecord(path string) *TrackRecord {
	return &TrackRecord{Path: path}
}

// Dir is the parent directory the record's folder groups by.
func (t *TrackRecord) Dir() string { return filepath.Dir(t.Path) }

// Opus reports whether the track uses the codec whose normalization
// standard fixes the reference at -23 LUFS.
func (t *TrackRecord) Opus() bool { return t.Codec == CodecOpus }

// Scan measures the file through the meter and fills the track-scope
// fields. Rescanning releases the previous accumulator first.
func (t *TrackRecord) Scan(m Meter, pregain float64) error {
	t.ReleaseAccumulator()
	t.albumSet = false
	t.Album = Measurement{}

	scan, err := m.Measure(t.Path)
	if err != nil {
		t.Status = StatusFailed
		return fmt.Errorf("scan %s: %w", t.Path, err)
	}

	t.Container = scan.Container
	t.Codec = scan.Codec
	t.acc = scan.Acc

	if t.Opus() {
		pregain += opusPregainAdjust
	}
	t.Track = Measurement{
		Loudness: scan.Loudness,
		Range:    scan.Range,
		Peak:     scan.Peak,
		Gain:     GainFor(scan.Loudness, pregain),
	}
	t.Reference = ReferenceFor(pregain)
	t.Status = StatusSucceeded
	return nil
}

// setAlbum installs the album-scope values. It enforces the write-once
// rule: only one aggregation task may ever contribute album fields.
func (t *TrackRecord) setAlbum(m Measurement) error {
	if t.albumSet {
		return fmt.Errorf("album values for %s written twice", t.Path)
	}
	t.Album = m
	t.albumSet = true
	return nil
}

// HasAlbum reports whether album aggregation contributed values.
func (t *TrackRecord) HasAlbum() bool { return t.albumSet }

// ReleaseAccumulator destroys the record's measurement state. The
// batching controller calls this once the owning folder has been
// aggregated and emitted, which is what keeps peak residency at one
// wave's worth of accumulators.
func (t *TrackRecord) ReleaseAccumulator() {
	if t.acc != nil {
		t.acc.Release()
		t.acc = nil
	}
}

// FolderRecord owns the ordered track records sharing one directory.
// Member order is submission order and stays stable so output is
// deterministic.
type FolderRecord struct {
	Dir    string
	Tracks []*TrackRecord
}

// NewFolderRecord builds a folder record from pre-grouped paths.
// Folders are never empty.
func NewFolderRecord(paths []string) (*FolderRecord, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("empty audio folder")
	}
	tracks := make([]*TrackRecord, len(paths))
	for i, p := range paths {
		tracks[i] = NewTrackRecord(p)
	}
	return &FolderRecord{Dir: tracks[0].Dir(), Tracks: tracks}, nil
}

func (f *FolderRecord) mixedContainers() bool {
	for _, t := range f.Tracks[1:] {
		if t.Container != f.Tracks[0].Container {
			return true
		}
	}
	return false
}

func (f *FolderRecord) mixedCodecs() bool {
	for _, t := range f.Tracks[1:] {
		if t.Codec != f.Tracks[0].Codec {
			return true
		}
	}
	return false
}

func (f *FolderRecord) hasOpus() bool {
	for _, t := range f.Tracks {
		if t.Opus() {
			return true
		}
	}
	return false
}

func (f *FolderRecord) release() {
	for _, t := range f.Tracks {
		t.ReleaseAccumulator()
	}
}
