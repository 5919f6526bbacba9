package library

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestParseExtensions(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"with dots", ".mp3,.flac", []string{".mp3", ".flac"}},
		{"without dots", "mp3,flac", []string{".mp3", ".flac"}},
		{"mixed and spaced", " mp3 , .OGG ", []string{".mp3", ".ogg"}},
		{"unsupported dropped", "mp3,exe,txt", []string{".mp3"}},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseExtensions(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseExtensions(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestDiscoverRecursive(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "album1", "a.flac"))
	touch(t, filepath.Join(root, "album1", "b.flac"))
	touch(t, filepath.Join(root, "album2", "c.mp3"))
	touch(t, filepath.Join(root, "album2", "cover.jpg"))
	touch(t, filepath.Join(root, "notes.txt"))

	files, err := Discover([]string{root}, Options{Recursive: true})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{
		filepath.Join(root, "album1", "a.flac"),
		filepath.Join(root, "album1", "b.flac"),
		filepath.Join(root, "album2", "c.mp3"),
	}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverNonRecursiveStaysShallow(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.flac"))
	touch(t, filepath.Join(root, "sub", "b.flac"))

	files, err := Discover([]string{root}, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{filepath.Join(root, "a.flac")}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverExplicitFiles(t *testing.T) {
	root := t.TempDir()
	flac := filepath.Join(root, "a.flac")
	txt := filepath.Join(root, "b.txt")
	touch(t, flac)
	touch(t, txt)

	files, err := Discover([]string{flac, txt}, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{flac}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverExtensionFilter(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "a.flac"))
	touch(t, filepath.Join(root, "b.mp3"))

	files, err := Discover([]string{root}, Options{
		Recursive:  true,
		Extensions: ParseExtensions("mp3"),
	})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	want := []string{filepath.Join(root, "b.mp3")}
	if !reflect.DeepEqual(files, want) {
		t.Errorf("Discover = %v, want %v", files, want)
	}
}

func TestDiscoverDeduplicates(t *testing.T) {
	root := t.TempDir()
	flac := filepath.Join(root, "a.flac")
	touch(t, flac)

	files, err := Discover([]string{flac, flac}, Options{})
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("Discover = %v, want a single entry", files)
	}
}

func TestDiscoverMissingPath(t *testing.T) {
	if _, err := Discover([]string{"/does/not/exist"}, Options{}); err == nil {
		t.Fatal("Discover succeeded for a missing path")
	}
}

func TestGroupByFolder(t *testing.T) {
	files := []string{
		"lib/album1/a.flac",
		"lib/album1/b.flac",
		"lib/album2/c.mp3",
		"lib/album2/d.mp3",
		"single.flac",
	}
	groups := GroupByFolder(files)
	want := [][]string{
		{"lib/album1/a.flac", "lib/album1/b.flac"},
		{"lib/album2/c.mp3", "lib/album2/d.mp3"},
		{"single.flac"},
	}
	if !reflect.DeepEqual(groups, want) {
		t.Errorf("GroupByFolder = %v, want %v", groups, want)
	}
}

func TestGroupByFolderEmpty(t *testing.T) {
	if groups := GroupByFolder(nil); len(groups) != 0 {
		t.Errorf("GroupByFolder(nil) = %v, want empty", groups)
	}
}
