package publish

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestBranchName(t *testing.T) {
	ts := time.Date(2025, 3, 14, 9, 30, 45, 0, time.UTC)
	if got := BranchName(ts); got != "sichter/autofix-20250314-093045" {
		t.Errorf("BranchName = %s", got)
	}
}

func TestBranchNameUsesUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*3600)
	ts := time.Date(2025, 3, 14, 1, 0, 0, 0, loc) // 23:00 the day before in UTC
	if got := BranchName(ts); got != "sichter/autofix-20250313-230000" {
		t.Errorf("BranchName = %s", got)
	}
}

func TestNewCLIBaseResolution(t *testing.T) {
	t.Setenv("SICHTER_REMOTE_BASE", "/srv/clones")
	if c := NewCLI(""); c.base != "/srv/clones" {
		t.Errorf("base = %s", c.base)
	}
	if c := NewCLI("/explicit"); c.base != "/explicit" {
		t.Errorf("explicit base = %s", c.base)
	}
}

func TestListLocal(t *testing.T) {
	base := t.TempDir()
	gitRepo := filepath.Join(base, "acme", "widget", ".git")
	if err := os.MkdirAll(gitRepo, 0o750); err != nil {
		t.Fatal(err)
	}
	// A directory without .git is not a clone.
	if err := os.MkdirAll(filepath.Join(base, "acme", "scratch"), 0o750); err != nil {
		t.Fatal(err)
	}
	// Hidden org dirs are skipped.
	if err := os.MkdirAll(filepath.Join(base, ".cache", "x", ".git"), 0o750); err != nil {
		t.Fatal(err)
	}

	c := NewCLI(base)
	repos, err := c.ListLocal()
	if err != nil {
		t.Fatal(err)
	}
	if len(repos) != 1 || repos[0] != "acme/widget" {
		t.Errorf("repos = %v", repos)
	}
}

func TestListLocalMissingBase(t *testing.T) {
	c := NewCLI(filepath.Join(t.TempDir(), "absent"))
	repos, err := c.ListLocal()
	if err != nil || repos != nil {
		t.Errorf("missing base should be empty: %v, %v", repos, err)
	}
}
