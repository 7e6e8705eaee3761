package audio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindRecording(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"sit.wav", "down.MP3", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatalf("write fixture err: %v", err)
		}
	}

	path, ok := FindRecording(dir, "sit")
	if !ok {
		t.Fatal("expected sit.wav to resolve")
	}
	if filepath.Base(path) != "sit.wav" {
		t.Fatalf("unexpected path: %s", path)
	}

	// Extension matching is case-insensitive.
	if _, ok := FindRecording(dir, "down"); !ok {
		t.Fatal("expected down.MP3 to resolve")
	}

	// Non-audio files are not recordings.
	if _, ok := FindRecording(dir, "notes"); ok {
		t.Fatal("expected notes.txt to be rejected")
	}

	if _, ok := FindRecording(dir, "missing"); ok {
		t.Fatal("expected lookup miss for absent name")
	}
}

func TestFindRecordingRejectsPaths(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"", "../sit", "sub/sit", "/etc/passwd"} {
		if _, ok := FindRecording(dir, name); ok {
			t.Fatalf("expected %q rejected", name)
		}
	}
}
