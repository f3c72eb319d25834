package cmd

import (
	"os"
	"testing"

	"github.com/pders01/snapsafe/internal/testutil"
)

func TestListNoSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	// Reset flags
	resetListFlags()

	// Should succeed with no snapshots
	err := runList(nil, []string{})
	if err != nil {
		t.Fatalf("list command failed: %v", err)
	}
}

func TestListWithSnapshots(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("a.txt", "one")
	createTestSnapshot(t, "first", []string{})
	repo.CreateFile("a.txt", "two")
	createTestSnapshot(t, "second", []string{"release"})

	resetListFlags()
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list command failed: %v", err)
	}

	// JSON output
	listJSON = true
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list --json failed: %v", err)
	}

	// Toon output
	listJSON = false
	listToon = true
	if err := runList(nil, []string{}); err != nil {
		t.Fatalf("list --toon failed: %v", err)
	}
	resetListFlags()
}

func TestListWithTagFilter(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("a.txt", "one")
	createTestSnapshot(t, "tagged", []string{"release"})
	createTestSnapshot(t, "plain", []string{})

	resetListFlags()
	listTag = "release"
	err := runList(nil, []string{})
	resetListFlags()
	if err != nil {
		t.Fatalf("list command with tag filter failed: %v", err)
	}
}

func TestListToday(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("a.txt", "one")
	createTestSnapshot(t, "today", []string{})

	resetListFlags()
	listToday = true
	err := runList(nil, []string{})
	resetListFlags()
	if err != nil {
		t.Fatalf("list command with --today failed: %v", err)
	}
}

func TestListSince(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	repo.CreateFile("a.txt", "one")
	createTestSnapshot(t, "recent", []string{})

	resetListFlags()
	listSince = "2020-01-01"
	err := runList(nil, []string{})
	resetListFlags()
	if err != nil {
		t.Fatalf("list command with --since failed: %v", err)
	}
}

func TestListInvalidSinceDate(t *testing.T) {
	repo := newTestRepo(t)
	defer repo.Cleanup()

	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	resetListFlags()
	listSince = "not-a-date"
	err := runList(nil, []string{})
	resetListFlags()
	if err == nil {
		t.Error("expected error for invalid date format")
	}
}

// newTestRepo creates an initialized working tree with an isolated HOME
func newTestRepo(t *testing.T) *testutil.TempTree {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	repo := testutil.NewTempTree(t)
	oldWd, _ := os.Getwd()
	os.Chdir(repo.Path)
	defer os.Chdir(oldWd)

	if err := runInit(nil, []string{}); err != nil {
		repo.Cleanup()
		t.Fatalf("failed to init repository: %v", err)
	}
	return repo
}

func resetListFlags() {
	listTag = ""
	listToday = false
	listSince = ""
	listLimit = 0
	listJSON = false
	listToon = false
}

// Helper function to create test snapshots
func createTestSnapshot(t *testing.T, message string, tags []string) {
	t.Helper()

	snapshotMessage = message
	snapshotTags = tags
	snapshotVersion = ""
	snapshotStats = false
	snapshotJSON = false
	snapshotToon = false

	err := runSnapshot(nil, []string{})
	if err != nil {
		t.Fatalf("failed to create test snapshot: %v", err)
	}
}
