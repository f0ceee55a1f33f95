package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStreamFilesSortedAndFiltered(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"track02.0.raw", "track00.0.raw", "track01.0.raw", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	files, err := streamFiles(dir)
	if err != nil {
		t.Fatalf("streamFiles: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("expected 3 .raw files, got %d: %v", len(files), files)
	}
	want := []string{"track00.0.raw", "track01.0.raw", "track02.0.raw"}
	for i, w := range want {
		if filepath.Base(files[i]) != w {
			t.Errorf("files[%d] = %q, want %q", i, filepath.Base(files[i]), w)
		}
	}
}

func TestCachePathForIsInsideMediumDirectory(t *testing.T) {
	got := cachePathFor("/captures/disk17")
	want := filepath.Join("/captures/disk17", cacheFileName)
	if got != want {
		t.Errorf("cachePathFor = %q, want %q", got, want)
	}
}

func TestRecognizerNameHandlesNoWinner(t *testing.T) {
	if got := recognizerName(nil); got != "-" {
		t.Errorf("recognizerName(nil) = %q, want %q", got, "-")
	}
}
