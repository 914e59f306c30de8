package paths

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveXDG(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SICHTER_STATE_HOME", "")
	t.Setenv("XDG_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))

	p := Resolve()
	if p.State != filepath.Join(root, "state", "sichter") {
		t.Errorf("state = %s", p.State)
	}
	if p.Queue != filepath.Join(p.State, "queue") {
		t.Errorf("queue = %s", p.Queue)
	}
	if p.Config != filepath.Join(root, "config", "sichter") {
		t.Errorf("config = %s", p.Config)
	}
}

func TestResolveStateHomeOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SICHTER_STATE_HOME", root)
	t.Setenv("XDG_STATE_HOME", "/ignored")

	p := Resolve()
	if p.State != root {
		t.Errorf("state = %s, want %s", p.State, root)
	}
}

func TestEnsureAndReady(t *testing.T) {
	root := t.TempDir()
	t.Setenv("SICHTER_STATE_HOME", filepath.Join(root, "state"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(root, "config"))

	p := Resolve()
	if missing := p.Ready(); len(missing) != 3 {
		t.Fatalf("expected 3 missing dirs before Ensure, got %v", missing)
	}
	if err := p.Ensure(); err != nil {
		t.Fatal(err)
	}
	if missing := p.Ready(); len(missing) != 0 {
		t.Errorf("missing after Ensure: %v", missing)
	}
	// Idempotent.
	if err := p.Ensure(); err != nil {
		t.Fatal(err)
	}
}

func TestPIDFile(t *testing.T) {
	p := Paths{State: "/tmp/s"}
	if got := p.PIDFile(); got != "/tmp/s/worker.pid" {
		t.Errorf("PIDFile = %s", got)
	}
}

func TestPolicyFilePrefersUserCopy(t *testing.T) {
	root := t.TempDir()
	p := Paths{Config: root}
	user := filepath.Join(root, "policy.yml")

	// Without the user copy the path still points there (it may be created
	// later by a policy write).
	if got := p.PolicyFile(); got != user {
		t.Errorf("PolicyFile = %s, want %s", got, user)
	}

	if err := os.WriteFile(user, []byte("auto_pr: true\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if got := p.PolicyFile(); got != user {
		t.Errorf("PolicyFile = %s, want %s", got, user)
	}
}
