package tags

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
)

// remux rewrites the file with a stream copy carrying the new comment
// fields. ffmpeg deletes a field when its value is empty, which is how
// stale album or reference entries get cleared. The copy lands in a
// temp file next to the original and replaces it atomically.
func (t *Tagger) remux(path string, fields map[string]string) error {
	dir, base := filepath.Split(path)
	tmp := filepath.Join(dir, ".rg-"+base)

	args := remuxArgs(path, tmp, fields)
	cmd := exec.Command(t.cfg.FFmpeg, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("remux: %s", remuxError(stderr.String(), err))
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("remux: %w", err)
	}
	return nil
}

// remuxArgs builds the ffmpeg argument list, fields in sorted order so
// invocations are deterministic.
func remuxArgs(in, out string, fields map[string]string) []string {
	args := []string{
		"-v", "error",
		"-nostdin",
		"-y",
		"-i", in,
		"-map", "0",
		"-c", "copy",
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		args = append(args, "-metadata", name+"="+fields[name])
	}
	return append(args, out)
}

func remuxError(stderr string, fallback error) string {
	for _, line := range strings.Split(stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return fallback.Error()
}
