package cmd

import (
	"os"
	"testing"
	"time"
)

func TestDiffCommand(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("keep.txt", "same")
	repo.CreateFile("gone.txt", "bye")
	repo.CreateFile("notes.txt", "hello\n")
	createTestSnapshot(t, "one", []string{})

	repo.Remove("gone.txt")
	repo.CreateFile("new.txt", "hi")
	repo.CreateFile("notes.txt", "hello world\n")
	createTestSnapshot(t, "two", []string{})

	tests := []struct {
		name  string
		args  []string
		text  bool
		json  bool
		toon  bool
		isErr bool
	}{
		{"two ids", []string{"v1.0.0.0", "v1.0.0.1"}, false, false, false, false},
		{"default to latest", []string{"1.0.0.0"}, false, false, false, false},
		{"with text", []string{"v1.0.0.0", "latest"}, true, false, false, false},
		{"json", []string{"v1.0.0.0"}, true, true, false, false},
		{"toon", []string{"v1.0.0.0"}, false, false, true, false},
		{"unknown id", []string{"v7.0.0.0"}, false, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			diffText, diffJSON, diffToon = tt.text, tt.json, tt.toon
			err := runDiff(nil, tt.args)
			diffText, diffJSON, diffToon = false, false, false
			if tt.isErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.isErr && err != nil {
				t.Fatalf("diff failed: %v", err)
			}
		})
	}
}

func TestTextDiffCommand(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("notes.txt", "hello\n")
	repo.WriteBytes("blob.bin", []byte{0, 1, 2, 3})
	createTestSnapshot(t, "one", []string{})

	repo.CreateFile("notes.txt", "hello world\n")
	repo.WriteBytes("blob.bin", []byte{0, 1, 2, 3, 4})
	createTestSnapshot(t, "two", []string{})

	diffJSON, diffToon = false, false
	if err := runTextDiff(nil, []string{"v1.0.0.0", "v1.0.0.1"}); err != nil {
		t.Fatalf("text-diff failed: %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{10 * time.Second, "< 1 minute"},
		{5 * time.Minute, "5 minutes"},
		{3 * time.Hour, "3 hours"},
		{24 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.in); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
