package tags

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bogem/id3v2"

	"github.com/TheRealFlorita/LoudGain/internal/processor"
)

// frameIDUserText is the ID3v2 frame holding user-defined text pairs;
// ReplayGain values live in its description/value fields.
const frameIDUserText = "TXXX"

func isMP3Path(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".mp3")
}

// writeMP3 edits the file's TXXX frames in place. Existing ReplayGain
// frames are replaced regardless of their case; other frames are kept
// untouched.
func (t *Tagger) writeMP3(rec *processor.TrackRecord, albumMode bool) error {
	fields := t.standardFields(rec, albumMode)
	return t.editMP3(rec.Path, fields)
}

// removeMP3 strips every ReplayGain TXXX frame.
func (t *Tagger) removeMP3(path string) error {
	cleared := make(map[string]string, len(replayGainFields))
	for _, f := range replayGainFields {
		cleared[f] = ""
	}
	return t.editMP3(path, cleared)
}

// editMP3 applies the field map to the file's ID3v2 tag. Empty values
// delete the field.
func (t *Tagger) editMP3(path string, fields map[string]string) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("open id3 tag: %w", err)
	}
	defer tag.Close()

	tag.SetVersion(byte(t.cfg.ID3v2Version))
	encoding := id3v2.EncodingUTF8
	if t.cfg.ID3v2Version == 3 {
		encoding = id3v2.EncodingISO
	}

	existing := tag.GetFrames(frameIDUserText)

	// Keep every frame that is not one of ours; managed fields are
	// re-added below with fresh values and the configured case.
	var kept []id3v2.UserDefinedTextFrame
	for _, f := range existing {
		udf, ok := f.(id3v2.UserDefinedTextFrame)
		if !ok {
			continue
		}
		if _, managed := fields[strings.ToUpper(udf.Description)]; !managed {
			kept = append(kept, udf)
		}
	}

	tag.DeleteFrames(frameIDUserText)
	for _, f := range kept {
		tag.AddFrame(frameIDUserText, f)
	}
	for _, name := range replayGainFields {
		value, ok := fields[name]
		if !ok || value == "" {
			continue
		}
		if t.cfg.LowercaseTags {
			name = strings.ToLower(name)
		}
		tag.AddFrame(frameIDUserText, id3v2.UserDefinedTextFrame{
			Encoding:    encoding,
			Description: name,
			Value:       value,
		})
	}

	if err := tag.Save(); err != nil {
		return fmt.Errorf("save id3 tag: %w", err)
	}
	if t.cfg.StripTags {
		return stripID3v1(path)
	}
	return nil
}

// stripID3v1 truncates a trailing 128-byte ID3v1 block if present.
func stripID3v1(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < 128 {
		return nil
	}

	marker := make([]byte, 3)
	if _, err := f.ReadAt(marker, info.Size()-128); err != nil {
		return err
	}
	if string(marker) != "TAG" {
		return nil
	}
	return f.Truncate(info.Size() - 128)
}
