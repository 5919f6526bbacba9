package tags

import (
	"os"
	"strings"

	"github.com/bogem/id3v2"
	"github.com/dhowden/tag"
)

// HasTags reports whether the file already carries the complete
// ReplayGain set for the current mode, which is what the
// skip-tagged-files option checks before scheduling a scan. Files
// whose tags cannot be read count as untagged.
func (t *Tagger) HasTags(path string, albumMode bool) bool {
	var present map[string]bool
	if isMP3Path(path) {
		present = mp3Fields(path)
	} else {
		present = rawFields(path)
	}
	return tagged(present, albumMode, t.cfg.Mode == ModeExtra)
}

// tagged decides whether a field set is complete. An R128 track gain
// marks the Opus convention no matter the container extension (Write
// produces it for .opus and opus-in-ogg files alike); anything else
// needs the full REPLAYGAIN_* count for the mode.
func tagged(present map[string]bool, albumMode, extra bool) bool {
	if present[fieldR128TrackGain] {
		return !albumMode || present[fieldR128AlbumGain]
	}
	count := 0
	for _, name := range replayGainFields {
		if present[name] {
			count++
		}
	}
	return count == wantFieldCount(albumMode, extra)
}

// wantFieldCount is the number of distinct ReplayGain fields a fully
// tagged file carries for the given mode.
func wantFieldCount(albumMode, extra bool) int {
	switch {
	case !albumMode && !extra:
		return 2 // track gain + peak
	case albumMode && extra:
		return 7 // everything
	default:
		return 4
	}
}

// mp3Fields collects the uppercase descriptions of the file's TXXX
// frames.
func mp3Fields(path string) map[string]bool {
	present := make(map[string]bool)
	t, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return present
	}
	defer t.Close()

	for _, f := range t.GetFrames(frameIDUserText) {
		if udf, ok := f.(id3v2.UserDefinedTextFrame); ok {
			present[strings.ToUpper(udf.Description)] = true
		}
	}
	return present
}

// rawFields collects ReplayGain field names from any container the
// metadata reader understands. Raw keys vary by format (vorbis
// comments are plain names, MP4 freeform atoms carry a mean prefix),
// so names are matched by uppercase suffix.
func rawFields(path string) map[string]bool {
	present := make(map[string]bool)
	f, err := os.Open(path)
	if err != nil {
		return present
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return present
	}
	for key := range m.Raw() {
		upper := strings.ToUpper(key)
		for _, name := range replayGainFields {
			if strings.HasSuffix(upper, name) {
				present[name] = true
			}
		}
	}
	return present
}
