package analyzer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Shellcheck lints shell scripts. Diagnostics are requested in gcc format,
// one per line: file:line:col: level: message [SC1234].
type Shellcheck struct {
	excludes []string
}

// NewShellcheck creates the analyzer with the policy exclude globs applied
// during repository walks.
func NewShellcheck(excludes []string) *Shellcheck {
	return &Shellcheck{excludes: excludes}
}

func (s *Shellcheck) Name() string { return "shellcheck" }

func (s *Shellcheck) Available() bool {
	_, err := exec.LookPath("shellcheck")
	return err == nil
}

var gccLine = regexp.MustCompile(`^(.+?):(\d+):(\d+): (note|warning|error): (.*?)(?: \[(SC\d+)\])?$`)

func (s *Shellcheck) Run(ctx context.Context, root string, files []string) ([]Finding, error) {
	scripts := selectFiles(root, files, s.excludes, ".sh")
	if len(scripts) == 0 {
		return nil, nil
	}

	args := append([]string{"-x", "-f", "gcc"}, scripts...)
	cmd := exec.CommandContext(ctx, "shellcheck", args...)
	cmd.Dir = root
	out, _ := cmd.Output() // non-zero exit means findings, not failure

	var findings []Finding
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		f, ok := parseGCCLine(line, "shellcheck")
		if !ok {
			fmt.Fprintf(os.Stderr, "shellcheck: unparseable diagnostic: %s\n", line)
			continue
		}
		findings = append(findings, f)
	}
	return findings, nil
}

// parseGCCLine parses one gcc-format diagnostic into a finding.
func parseGCCLine(line, tool string) (Finding, bool) {
	m := gccLine.FindStringSubmatch(line)
	if m == nil {
		return Finding{}, false
	}
	lineNo, err := strconv.Atoi(m[2])
	if err != nil {
		return Finding{}, false
	}

	severity := SevWarning
	category := CatCorrectness
	switch m[4] {
	case "note":
		severity = SevInfo
		category = CatStyle
	case "error":
		severity = SevError
	}

	return Finding{
		Severity: severity,
		Category: category,
		File:     m[1],
		Line:     lineNo,
		Message:  m[5],
		Tool:     tool,
		RuleID:   m[6],
	}, true
}

// selectFiles narrows the analyzer input. With an explicit file set it
// filters by extension; otherwise it walks the repository, skipping .git and
// any path matching an exclude glob.
func selectFiles(root string, files []string, excludes []string, exts ...string) []string {
	match := func(path string) bool {
		for _, ext := range exts {
			if strings.HasSuffix(path, ext) {
				return true
			}
		}
		return false
	}

	if files != nil {
		var out []string
		for _, f := range files {
			if match(f) {
				out = append(out, f)
			}
		}
		return out
	}

	var out []string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !match(rel) || Excluded(rel, excludes) {
			return nil
		}
		out = append(out, rel)
		return nil
	})
	return out
}

// Excluded reports whether rel matches any policy exclude glob. Patterns
// match against the repo-relative path and against its base name, mirroring
// fnmatch-style policy files.
func Excluded(rel string, excludes []string) bool {
	for _, pattern := range excludes {
		if ok, err := filepath.Match(pattern, rel); err == nil && ok {
			return true
		}
		if ok, err := filepath.Match(pattern, filepath.Base(rel)); err == nil && ok {
			return true
		}
	}
	return false
}
