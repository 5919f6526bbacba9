// Package tags reads and writes ReplayGain 2.0 metadata. MP3 files
// get TXXX frames edited in place; every other container is remuxed
// with a stream copy carrying the new comment fields. Opus files use
// the R128_* Q7.8 convention on a fixed -23 LUFS reference instead of
// REPLAYGAIN_* fields.
package tags

import (
	"fmt"
	"math"
	"os/exec"

	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

// Mode selects what Write puts into files.
type Mode byte

const (
	// ModeSkip leaves files untouched.
	ModeSkip Mode = 's'
	// ModeDelete removes ReplayGain metadata.
	ModeDelete Mode = 'd'
	// ModeWrite writes the standard tag set (gains and peaks).
	ModeWrite Mode = 'i'
	// ModeExtra also writes reference loudness and loudness ranges.
	ModeExtra Mode = 'e'
)

// ParseMode parses the -S flag value.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "s":
		return ModeSkip, nil
	case "d":
		return ModeDelete, nil
	case "i":
		return ModeWrite, nil
	case "e":
		return ModeExtra, nil
	}
	return 0, fmt.Errorf("invalid tag mode %q (want d, i, e or s)", s)
}

// The ReplayGain 2.0 field names, canonical uppercase.
const (
	fieldTrackGain  = "REPLAYGAIN_TRACK_GAIN"
	fieldTrackPeak  = "REPLAYGAIN_TRACK_PEAK"
	fieldTrackRange = "REPLAYGAIN_TRACK_RANGE"
	fieldAlbumGain  = "REPLAYGAIN_ALBUM_GAIN"
	fieldAlbumPeak  = "REPLAYGAIN_ALBUM_PEAK"
	fieldAlbumRange = "REPLAYGAIN_ALBUM_RANGE"
	fieldReference  = "REPLAYGAIN_REFERENCE_LOUDNESS"

	fieldR128TrackGain = "R128_TRACK_GAIN"
	fieldR128AlbumGain = "R128_ALBUM_GAIN"
)

// replayGainFields lists every field Write manages and Remove strips.
var replayGainFields = []string{
	fieldTrackGain, fieldTrackPeak, fieldTrackRange,
	fieldAlbumGain, fieldAlbumPeak, fieldAlbumRange,
	fieldReference,
	fieldR128TrackGain, fieldR128AlbumGain,
}

// Settings configures the tagger.
type Settings struct {
	Mode          Mode
	LowercaseTags bool // MP3 frames in lowercase (some players want this)
	StripTags     bool // MP3: drop a trailing ID3v1 block after saving
	ID3v2Version  int  // 3 or 4
	UnitLU        bool // report gain in LU instead of dB
	FFmpeg        string
}

// Tagger implements the pipeline's tag persistence. One instance is
// shared by all workers; it holds no per-file state.
type Tagger struct {
	cfg Settings
}

// New validates the settings. Empty FFmpeg means lookup on PATH; the
// remux path needs it for every non-MP3 container.
func New(cfg Settings) (*Tagger, error) {
	switch cfg.Mode {
	case ModeSkip, ModeDelete, ModeWrite, ModeExtra:
	default:
		return nil, fmt.Errorf("invalid tag mode %q", string(cfg.Mode))
	}
	if cfg.ID3v2Version == 0 {
		cfg.ID3v2Version = 4
	}
	if cfg.ID3v2Version != 3 && cfg.ID3v2Version != 4 {
		return nil, fmt.Errorf("invalid ID3v2 version %d (want 3 or 4)", cfg.ID3v2Version)
	}
	if cfg.FFmpeg == "" {
		cfg.FFmpeg = "ffmpeg"
	}
	ffmpegBin, err := exec.LookPath(cfg.FFmpeg)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	cfg.FFmpeg = ffmpegBin
	return &Tagger{cfg: cfg}, nil
}

// Unit is the gain unit string written into tags and reports.
func (t *Tagger) Unit() string {
	if t.cfg.UnitLU {
		return "LU"
	}
	return "dB"
}

// Write persists the record's ReplayGain values. Album fields are
// written only when albumMode is set and removed otherwise, so stale
// values from earlier runs never linger.
func (t *Tagger) Write(rec *processor.TrackRecord, albumMode bool) error {
	if t.cfg.Mode == ModeSkip || t.cfg.Mode == ModeDelete {
		return nil
	}
	if rec.Container == "mp3" {
		return t.writeMP3(rec, albumMode)
	}
	if rec.Opus() {
		return t.remux(rec.Path, t.opusFields(rec, albumMode))
	}
	return t.remux(rec.Path, t.standardFields(rec, albumMode))
}

// Remove strips every ReplayGain field from the file.
func (t *Tagger) Remove(path string) error {
	if isMP3Path(path) {
		return t.removeMP3(path)
	}
	cleared := make(map[string]string, len(replayGainFields))
	for _, f := range replayGainFields {
		cleared[f] = ""
	}
	return t.remux(path, cleared)
}

// standardFields builds the REPLAYGAIN_* field map for one record.
// An empty value clears the field.
func (t *Tagger) standardFields(rec *processor.TrackRecord, albumMode bool) map[string]string {
	unit := t.Unit()
	fields := map[string]string{
		fieldTrackGain: fmt.Sprintf("%.2f %s", rec.Track.Gain, unit),
		fieldTrackPeak: fmt.Sprintf("%.6f", rec.Track.Peak),
		// Stale reference values confuse players, drop it unless the
		// extra mode rewrites it below.
		fieldReference:  "",
		fieldTrackRange: "",
		fieldAlbumGain:  "",
		fieldAlbumPeak:  "",
		fieldAlbumRange: "",
	}
	if albumMode {
		fields[fieldAlbumGain] = fmt.Sprintf("%.2f %s", rec.Album.Gain, unit)
		fields[fieldAlbumPeak] = fmt.Sprintf("%.6f", rec.Album.Peak)
	}
	if t.cfg.Mode == ModeExtra {
		fields[fieldReference] = fmt.Sprintf("%.2f LUFS", rec.Reference)
		fields[fieldTrackRange] = fmt.Sprintf("%.2f %s", rec.Track.Range, unit)
		if albumMode {
			fields[fieldAlbumRange] = fmt.Sprintf("%.2f %s", rec.Album.Range, unit)
		}
	}
	return fields
}

// opusFields builds the R128_* field map. The Opus spec forbids
// REPLAYGAIN_* fields in the comment header, so they are cleared.
func (t *Tagger) opusFields(rec *processor.TrackRecord, albumMode bool) map[string]string {
	fields := map[string]string{
		fieldR128TrackGain: fmt.Sprint(Q78(rec.Track.Gain)),
		fieldR128AlbumGain: "",
		fieldTrackGain:     "",
		fieldTrackPeak:     "",
		fieldTrackRange:    "",
		fieldAlbumGain:     "",
		fieldAlbumPeak:     "",
		fieldAlbumRange:    "",
		fieldReference:     "",
	}
	if albumMode {
		fields[fieldR128AlbumGain] = fmt.Sprint(Q78(rec.Album.Gain))
	}
	return fields
}

// Q78 converts a dB gain to the ASCII Q7.8 fixed-point number the
// R128_* fields carry, saturating at the int16 bounds.
func Q78(gain float64) int {
	q := int(math.Round(gain * 256.0))
	if q > math.MaxInt16 {
		return math.MaxInt16
	}
	if q < math.MinInt16 {
		return math.MinInt16
	}
	return q
}
