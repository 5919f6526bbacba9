package tags

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

func TestParseMode(t *testing.T) {
	tests := []struct {
		in   string
		want Mode
		ok   bool
	}{
		{"d", ModeDelete, true},
		{"i", ModeWrite, true},
		{"e", ModeExtra, true},
		{"s", ModeSkip, true},
		{"x", 0, false},
		{"", 0, false},
		{"de", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ParseMode(%q) error = %v, want ok=%v", tt.in, err, tt.ok)
			continue
		}
		if tt.ok && got != tt.want {
			t.Errorf("ParseMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestQ78(t *testing.T) {
	tests := []struct {
		name string
		gain float64
		want int
	}{
		{"zero", 0.0, 0},
		{"one dB", 1.0, 256},
		{"minus five", -5.0, -1280},
		{"rounds up", 0.999, 256},
		{"rounds fraction", -2.3, -589},
		{"saturates high", 1000.0, 32767},
		{"saturates low", -1000.0, -32768},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Q78(tt.gain); got != tt.want {
				t.Errorf("Q78(%v) = %d, want %d", tt.gain, got, tt.want)
			}
		})
	}
}

func trackRecord(gain, peak, lra, reference float64) *processor.TrackRecord {
	rec := processor.NewTrackRecord("x/song.flac")
	rec.Track.Gain = gain
	rec.Track.Peak = peak
	rec.Track.Range = lra
	rec.Reference = reference
	return rec
}

func TestStandardFields(t *testing.T) {
	tg := &Tagger{cfg: Settings{Mode: ModeWrite}}
	rec := trackRecord(-2.0, 0.912345, 4.5, -18.0)

	fields := tg.standardFields(rec, false)
	if got := fields[fieldTrackGain]; got != "-2.00 dB" {
		t.Errorf("track gain = %q", got)
	}
	if got := fields[fieldTrackPeak]; got != "0.912345" {
		t.Errorf("track peak = %q", got)
	}
	for _, cleared := range []string{fieldAlbumGain, fieldAlbumPeak, fieldAlbumRange, fieldReference, fieldTrackRange} {
		if fields[cleared] != "" {
			t.Errorf("%s = %q, want cleared", cleared, fields[cleared])
		}
	}
}

func TestStandardFieldsExtraMode(t *testing.T) {
	tg := &Tagger{cfg: Settings{Mode: ModeExtra, UnitLU: true}}
	rec := trackRecord(-2.0, 0.9, 4.5, -18.0)

	fields := tg.standardFields(rec, false)
	if got := fields[fieldTrackGain]; got != "-2.00 LU" {
		t.Errorf("track gain = %q", got)
	}
	if got := fields[fieldReference]; got != "-18.00 LUFS" {
		t.Errorf("reference = %q", got)
	}
	if got := fields[fieldTrackRange]; got != "4.50 LU" {
		t.Errorf("track range = %q", got)
	}
}

func TestOpusFields(t *testing.T) {
	tg := &Tagger{cfg: Settings{Mode: ModeWrite}}
	rec := trackRecord(-2.0, 0.9, 4.5, -23.0)

	fields := tg.opusFields(rec, false)
	if got := fields[fieldR128TrackGain]; got != "-512" {
		t.Errorf("R128 track gain = %q, want -512", got)
	}
	if fields[fieldR128AlbumGain] != "" {
		t.Errorf("R128 album gain = %q, want cleared", fields[fieldR128AlbumGain])
	}
	// The Opus comment header must not carry REPLAYGAIN_* fields.
	for _, cleared := range []string{fieldTrackGain, fieldTrackPeak, fieldAlbumGain, fieldAlbumPeak, fieldReference} {
		if fields[cleared] != "" {
			t.Errorf("%s = %q, want cleared", cleared, fields[cleared])
		}
	}
}

func TestRemuxArgs(t *testing.T) {
	args := remuxArgs("in.flac", ".rg-in.flac", map[string]string{
		"REPLAYGAIN_TRACK_PEAK": "0.500000",
		"REPLAYGAIN_TRACK_GAIN": "-2.00 dB",
		"REPLAYGAIN_ALBUM_GAIN": "",
	})
	want := []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", "in.flac",
		"-map", "0",
		"-c", "copy",
		"-metadata", "REPLAYGAIN_ALBUM_GAIN=",
		"-metadata", "REPLAYGAIN_TRACK_GAIN=-2.00 dB",
		"-metadata", "REPLAYGAIN_TRACK_PEAK=0.500000",
		".rg-in.flac",
	}
	if !reflect.DeepEqual(args, want) {
		t.Errorf("remuxArgs = %v, want %v", args, want)
	}
}

func TestWantFieldCount(t *testing.T) {
	tests := []struct {
		album, extra bool
		want         int
	}{
		{false, false, 2},
		{false, true, 4},
		{true, false, 4},
		{true, true, 7},
	}
	for _, tt := range tests {
		if got := wantFieldCount(tt.album, tt.extra); got != tt.want {
			t.Errorf("wantFieldCount(%v, %v) = %d, want %d", tt.album, tt.extra, got, tt.want)
		}
	}
}

func TestTagged(t *testing.T) {
	r128Track := map[string]bool{fieldR128TrackGain: true}
	r128Album := map[string]bool{fieldR128TrackGain: true, fieldR128AlbumGain: true}
	standard := map[string]bool{fieldTrackGain: true, fieldTrackPeak: true}

	tests := []struct {
		name    string
		present map[string]bool
		album   bool
		extra   bool
		want    bool
	}{
		// R128 fields win regardless of extension, so opus streams in
		// plain .ogg containers are recognized too.
		{"r128 track", r128Track, false, false, true},
		{"r128 track missing album", r128Track, true, false, false},
		{"r128 album", r128Album, true, false, true},
		{"standard track", standard, false, false, true},
		{"standard track missing extras", standard, false, true, false},
		{"standard track missing album", standard, true, false, false},
		{"untagged", map[string]bool{}, false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tagged(tt.present, tt.album, tt.extra); got != tt.want {
				t.Errorf("tagged(%v, album=%v, extra=%v) = %v, want %v",
					tt.present, tt.album, tt.extra, got, tt.want)
			}
		})
	}
}

func TestIsMP3Path(t *testing.T) {
	if !isMP3Path("x/song.mp3") || !isMP3Path("x/SONG.MP3") {
		t.Error("mp3 paths not recognized")
	}
	if isMP3Path("x/song.flac") || isMP3Path("mp3") {
		t.Error("non-mp3 path recognized")
	}
}

func TestStripID3v1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	payload := []byte("audio-bytes")
	v1 := append([]byte("TAG"), make([]byte, 125)...)
	if err := os.WriteFile(path, append(payload, v1...), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if err := stripID3v1(path); err != nil {
		t.Fatalf("stripID3v1 failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("file = %q, want %q", data, payload)
	}

	// A second pass is a no-op.
	if err := stripID3v1(path); err != nil {
		t.Fatalf("second stripID3v1 failed: %v", err)
	}
	data, _ = os.ReadFile(path)
	if string(data) != string(payload) {
		t.Errorf("file after second pass = %q, want %q", data, payload)
	}
}

func TestMP3WriteReadRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, make([]byte, 512), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tg := &Tagger{cfg: Settings{Mode: ModeWrite, ID3v2Version: 4}}
	rec := processor.NewTrackRecord(path)
	rec.Container = "mp3"
	rec.Codec = "mp3"
	rec.Track.Gain = -2.0
	rec.Track.Peak = 0.5

	if err := tg.Write(rec, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	present := mp3Fields(path)
	if !present[fieldTrackGain] || !present[fieldTrackPeak] {
		t.Fatalf("fields after write = %v", present)
	}
	if !tg.HasTags(path, false) {
		t.Error("HasTags = false after standard write")
	}
	if tg.HasTags(path, true) {
		t.Error("HasTags(album) = true without album fields")
	}

	if err := tg.removeMP3(path); err != nil {
		t.Fatalf("removeMP3 failed: %v", err)
	}
	if tg.HasTags(path, false) {
		t.Error("HasTags = true after removal")
	}
}

func TestMP3LowercaseOption(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.mp3")
	if err := os.WriteFile(path, make([]byte, 512), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	tg := &Tagger{cfg: Settings{Mode: ModeWrite, ID3v2Version: 4, LowercaseTags: true}}
	rec := processor.NewTrackRecord(path)
	rec.Container = "mp3"
	rec.Codec = "mp3"
	rec.Track.Gain = 1.0
	rec.Track.Peak = 0.25

	if err := tg.Write(rec, false); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	// Presence checks are case-insensitive, so lowercase frames still
	// count as tagged.
	if !tg.HasTags(path, false) {
		t.Error("HasTags = false for lowercase frames")
	}
}

func TestWriteSkipModesAreNoops(t *testing.T) {
	for _, mode := range []Mode{ModeSkip, ModeDelete} {
		tg := &Tagger{cfg: Settings{Mode: mode}}
		rec := processor.NewTrackRecord("/nonexistent/file.flac")
		if err := tg.Write(rec, false); err != nil {
			t.Errorf("Write in mode %q touched the file: %v", string(mode), err)
		}
	}
}

func TestUnit(t *testing.T) {
	if got := (&Tagger{cfg: Settings{}}).Unit(); got != "dB" {
		t.Errorf("Unit = %q, want dB", got)
	}
	if got := (&Tagger{cfg: Settings{UnitLU: true}}).Unit(); got != "LU" {
		t.Errorf("Unit = %q, want LU", got)
	}
}

func TestRemuxErrorPrefersStderr(t *testing.T) {
	err := remuxError("  in.flac: Invalid argument\n", os.ErrInvalid)
	if !strings.Contains(err, "Invalid argument") {
		t.Errorf("remuxError = %q", err)
	}
	if got := remuxError("", os.ErrInvalid); got != os.ErrInvalid.Error() {
		t.Errorf("remuxError fallback = %q", got)
	}
}
