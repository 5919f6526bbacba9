package processor

import (
	"errors"
	"fmt"
)

var (
	// ErrMemberScanFailed marks an aggregation skipped because one or
	// more member scans did not succeed.
	ErrMemberScanFailed = errors.New("member scan failed")

	// ErrMixedOpus marks a folder mixing Opus with other codecs.
	// Opus gain sits on a different reference by construction, so an
	// album value over such a mix is numerically meaningless.
	ErrMixedOpus = errors.New("album mixes Opus and non-Opus tracks")
)

// Aggregate combines the member accumulators into album loudness and
// range, takes the album peak as the maximum member peak, and writes
// the album-scope values to every member exactly once. It requires
// every member scan to have succeeded.
//
// Mixed containers or codecs produce a warning through warnf; a mix
// that includes Opus fails outright. warnf may be nil.
func (f *FolderRecord) Aggregate(m Meter, cfg Config, warnf func(format string, args ...any)) error {
	var failed []string
	for _, t := range f.Tracks {
		if t.Status != StatusSucceeded {
			failed = append(failed, t.Path)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("[%s] %w: %d of %d tracks", f.Dir, ErrMemberScanFailed, len(failed), len(f.Tracks))
	}

	if f.mixedContainers() || f.mixedCodecs() {
		if f.hasOpus() {
			return fmt.Errorf("[%s] %w", f.Dir, ErrMixedOpus)
		}
		if warnf != nil {
			warnf("[%s] different file types in the same album", f.Dir)
		}
	}

	accs := make([]Accumulator, len(f.Tracks))
	for i, t := range f.Tracks {
		accs[i] = t.acc
	}
	loudness, lra, err := m.Combine(accs)
	if err != nil {
		return fmt.Errorf("[%s] combine album loudness: %w", f.Dir, err)
	}

	// The mix check above guarantees either all or no members are
	// Opus, so the folder-wide pregain adjustment is safe.
	pregain := cfg.Pregain
	if f.hasOpus() {
		pregain += opusPregainAdjust
	}

	var peak float64
	for _, t := range f.Tracks {
		if t.Track.Peak > peak {
			peak = t.Track.Peak
		}
	}

	album := Measurement{
		Loudness: loudness,
		Range:    lra,
		Peak:     peak,
		Gain:     GainFor(loudness, pregain),
	}
	for _, t := range f.Tracks {
		if err := t.setAlbum(album); err != nil {
			return fmt.Errorf("[%s] %w", f.Dir, err)
		}
	}
	return nil
}
