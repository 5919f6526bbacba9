// Package library discovers audio files under the requested paths and
// groups them by parent folder for album-aware scanning.
package library

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SupportedExtensions lists every audio extension the scanner accepts,
// lowercase with the leading dot.
var SupportedExtensions = []string{
	".mp3", ".flac", ".ogg", ".oga", ".opus", ".mov", ".mp4", ".m4a",
	".alac", ".aac", ".3gp", ".3g2", ".mj2", ".asf", ".wma", ".wav",
	".wv", ".aif", ".aiff", ".ape",
}

// Options controls discovery.
type Options struct {
	// Recursive descends into subdirectories when the inputs are
	// directories.
	Recursive bool

	// Extensions restricts discovery to a subset of the supported
	// extensions. Empty means all of them. Entries may omit the
	// leading dot; unsupported entries are dropped.
	Extensions []string
}

// ParseExtensions normalizes a comma-separated extension list the way
// the -E flag expects: entries may omit the leading dot, anything not
// in SupportedExtensions is silently discarded.
func ParseExtensions(list string) []string {
	var exts []string
	for _, part := range strings.Split(list, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		if !strings.HasPrefix(part, ".") {
			part = "." + part
		}
		for _, known := range SupportedExtensions {
			if part == known {
				exts = append(exts, part)
				break
			}
		}
	}
	return exts
}

func (o Options) accepts(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	allowed := o.Extensions
	if len(allowed) == 0 {
		allowed = SupportedExtensions
	}
	for _, e := range allowed {
		if ext == e {
			return true
		}
	}
	return false
}

// Discover resolves the input paths to a sorted, deduplicated list of
// audio files. When every input is a directory the directories are
// walked (recursively if requested, unreadable entries skipped);
// otherwise each input is taken as a file candidate and filtered by
// extension, mirroring how explicit file arguments behave.
func Discover(paths []string, opts Options) ([]string, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no paths to scan")
	}

	onlyDirs := true
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			onlyDirs = false
			break
		}
	}

	seen := make(map[string]struct{})
	add := func(p string) {
		if _, dup := seen[p]; !dup && opts.accepts(p) {
			seen[p] = struct{}{}
		}
	}

	if onlyDirs {
		for _, root := range paths {
			err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
				if err != nil {
					// Unreadable entries are skipped, not fatal.
					return nil
				}
				if d.IsDir() {
					if !opts.Recursive && p != filepath.Clean(root) {
						return filepath.SkipDir
					}
					return nil
				}
				if d.Type().IsRegular() {
					add(p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("walk %s: %w", root, err)
			}
		}
	} else {
		for _, p := range paths {
			info, err := os.Stat(p)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", p, err)
			}
			if info.Mode().IsRegular() {
				add(p)
			}
		}
	}

	files := make([]string, 0, len(seen))
	for p := range seen {
		files = append(files, p)
	}
	sort.Strings(files)
	return files, nil
}

// GroupByFolder partitions sorted file paths into per-directory
// groups. Group order follows the first appearance of each directory,
// which keeps output deterministic for a sorted input.
func GroupByFolder(files []string) [][]string {
	index := make(map[string]int)
	var groups [][]string
	for _, f := range files {
		dir := filepath.Dir(f)
		i, ok := index[dir]
		if !ok {
			i = len(groups)
			index[dir] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], f)
	}
	return groups
}
