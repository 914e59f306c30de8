package publish

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// PR labels applied to every sichter pull request.
const (
	labelSichter    = "sichter"
	labelAutomation = "automation"
)

// CLI implements Publisher by shelling out to git and gh.
type CLI struct {
	base string // clone base, one subdirectory per org/name
}

// NewCLI creates a publisher cloning under base. Empty base resolves to
// SICHTER_REMOTE_BASE, falling back to ~/repos.
func NewCLI(base string) *CLI {
	if base == "" {
		base = os.Getenv("SICHTER_REMOTE_BASE")
	}
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		base = filepath.Join(home, "repos")
	}
	return &CLI{base: base}
}

// run executes one command in dir and returns its trimmed stdout.
func run(ctx context.Context, dir string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *CLI) EnsureWorkTree(ctx context.Context, repo string) (string, error) {
	dir := filepath.Join(c.base, repo)
	if _, err := os.Stat(filepath.Join(dir, ".git")); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0o750); err != nil {
		return "", fmt.Errorf("create clone base: %w", err)
	}
	if _, err := run(ctx, c.base, "gh", "repo", "clone", repo, dir); err != nil {
		return "", fmt.Errorf("clone %s: %w", repo, err)
	}
	return dir, nil
}

func (c *CLI) DefaultBranch(ctx context.Context, dir string) (string, error) {
	ref, err := run(ctx, dir, "git", "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
	if err == nil && ref != "" {
		return strings.TrimPrefix(ref, "origin/"), nil
	}
	// origin/HEAD may be unset on older clones.
	return "main", nil
}

func (c *CLI) FreshBranch(ctx context.Context, dir, branch string) error {
	if _, err := run(ctx, dir, "git", "fetch", "origin", "--prune", "--tags"); err != nil {
		return err
	}
	base, err := c.DefaultBranch(ctx, dir)
	if err != nil {
		return err
	}
	if _, err := run(ctx, dir, "git", "switch", "--detach", "origin/"+base); err != nil {
		if _, err := run(ctx, dir, "git", "checkout", "--detach", "origin/"+base); err != nil {
			return err
		}
	}
	if _, err := run(ctx, dir, "git", "switch", "-C", branch); err != nil {
		if _, err := run(ctx, dir, "git", "checkout", "-B", branch); err != nil {
			return err
		}
	}
	return nil
}

func (c *CLI) ChangedFiles(ctx context.Context, dir string) ([]string, error) {
	base, err := c.DefaultBranch(ctx, dir)
	if err != nil {
		return nil, err
	}
	out, err := run(ctx, dir, "git", "diff", "--name-only", "origin/"+base)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			files = append(files, line)
		}
	}
	return files, nil
}

func (c *CLI) CommitIfChanges(ctx context.Context, dir, message string) (bool, error) {
	if _, err := run(ctx, dir, "git", "add", "-A"); err != nil {
		return false, err
	}
	// Exit 0 means nothing staged.
	if _, err := run(ctx, dir, "git", "diff", "--cached", "--quiet"); err == nil {
		return false, nil
	}
	if _, err := run(ctx, dir, "git", "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

func (c *CLI) Push(ctx context.Context, dir, branch string) error {
	_, err := run(ctx, dir, "git", "push", "--set-upstream", "origin", branch, "--force-with-lease")
	return err
}

func (c *CLI) CreateOrUpdatePR(ctx context.Context, dir, repo, branch string) (string, error) {
	url, err := run(ctx, dir, "gh", "pr", "view", branch, "--json", "url", "-q", ".url")
	if err == nil && url != "" {
		return url, nil
	}

	base, err := c.DefaultBranch(ctx, dir)
	if err != nil {
		return "", err
	}
	_, err = run(ctx, dir, "gh", "pr", "create",
		"--base", base,
		"--fill",
		"--title", fmt.Sprintf("Sichter: auto PR (%s)", repo),
		"--label", labelSichter,
		"--label", labelAutomation,
	)
	if err != nil {
		return "", err
	}

	url, _ = run(ctx, dir, "gh", "pr", "view", branch, "--json", "url", "-q", ".url")
	return url, nil
}

func (c *CLI) ListRemote(ctx context.Context, org string) ([]string, error) {
	if org == "" {
		return nil, fmt.Errorf("no org configured")
	}
	out, err := run(ctx, c.base, "gh", "repo", "list", org, "--limit", "100", "--json", "name", "-q", ".[].name")
	if err != nil {
		return nil, err
	}
	var repos []string
	for _, line := range strings.Split(out, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			repos = append(repos, org+"/"+line)
		}
	}
	return repos, nil
}

func (c *CLI) ListLocal() ([]string, error) {
	orgs, err := os.ReadDir(c.base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list clones: %w", err)
	}
	var repos []string
	for _, org := range orgs {
		if !org.IsDir() || strings.HasPrefix(org.Name(), ".") {
			continue
		}
		names, err := os.ReadDir(filepath.Join(c.base, org.Name()))
		if err != nil {
			continue
		}
		for _, name := range names {
			if !name.IsDir() {
				continue
			}
			if _, err := os.Stat(filepath.Join(c.base, org.Name(), name.Name(), ".git")); err == nil {
				repos = append(repos, org.Name()+"/"+name.Name())
			}
		}
	}
	return repos, nil
}
