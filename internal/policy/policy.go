// Package policy is the sichter policy store: a single YAML document holding
// the recognized options (auto_pr, run_mode, checks, excludes, allowlist, …).
// Reads are best-effort; writes replace the file atomically via a temp
// sibling and rename, so concurrent readers always see a complete document.
package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heimgewebe/sichter/internal/eventlog"
)

// Defaults for recognized options.
const (
	DefaultAutoPR      = true
	DefaultSweepOnOmni = true
	DefaultRunMode     = "deep"
	DefaultOrg         = ""
)

// Store reads and writes the policy document at a fixed path. A nil event
// log disables write events (used by tests).
type Store struct {
	path string
	log  *eventlog.Log
}

// NewStore creates a store bound to path. Writes emit a policy event to log
// when log is non-nil.
func NewStore(path string, log *eventlog.Log) *Store {
	return &Store{path: path, log: log}
}

// Path returns the policy file path.
func (s *Store) Path() string { return s.path }

// Load parses the whole policy file. A missing or empty file yields the
// empty mapping, never an error; only malformed YAML fails.
func (s *Store) Load() (Values, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Values{}, nil
		}
		return nil, fmt.Errorf("read policy: %w", err)
	}
	var values Values
	if err := yaml.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parse policy: %w", err)
	}
	if values == nil {
		values = Values{}
	}
	return values, nil
}

// Write atomically replaces the policy file: serialize to a temp sibling in
// the same directory, flush, rename over the target. The temp file is
// removed on any failure. A successful write emits
// {type:"policy", action:"write", values}.
func (s *Store) Write(values Values) error {
	data, err := yaml.Marshal(values)
	if err != nil {
		return fmt.Errorf("marshal policy: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".policy.yml.tmp-")
	if err != nil {
		return fmt.Errorf("create temp policy: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp policy: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("sync temp policy: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp policy: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace policy: %w", err)
	}

	if s.log != nil {
		if err := s.log.Append(eventlog.Event{Type: "policy", Action: "write", Values: values}); err != nil {
			fmt.Fprintf(os.Stderr, "policy: event append failed: %v\n", err)
		}
	}
	return nil
}

// Values is the parsed policy document.
type Values map[string]any

// Bool coerces the value at key. Native booleans pass through; the strings
// true/1/yes/y/on and false/0/no/n/off are accepted case-insensitively.
// Unset, explicit null, or an unrecognized value returns def (unrecognized
// values are reported to stderr).
func (v Values) Bool(key string, def bool) bool {
	raw, ok := v[key]
	if !ok || raw == nil {
		return def
	}
	b, ok := CoerceBool(raw)
	if !ok {
		fmt.Fprintf(os.Stderr, "policy: %s: cannot interpret %v as bool, using default %v\n", key, raw, def)
		return def
	}
	return b
}

// CoerceBool applies the coercion table to a raw policy value.
func CoerceBool(raw any) (bool, bool) {
	switch val := raw.(type) {
	case bool:
		return val, true
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "1", "yes", "y", "on":
			return true, true
		case "false", "0", "no", "n", "off":
			return false, true
		}
	case int:
		if val == 0 || val == 1 {
			return val == 1, true
		}
	}
	return false, false
}

// String returns the value at key as a string, or def when unset or not a
// string.
func (v Values) String(key, def string) string {
	raw, ok := v[key]
	if !ok || raw == nil {
		return def
	}
	s, ok := raw.(string)
	if !ok {
		return def
	}
	return s
}

// StringSlice returns the ordered sequence at key. Non-string elements are
// stringified; unset yields nil.
func (v Values) StringSlice(key string) []string {
	raw, ok := v[key]
	if !ok || raw == nil {
		return nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if item == nil {
			continue
		}
		out = append(out, fmt.Sprintf("%v", item))
	}
	return out
}

// Map returns the nested mapping at key, or nil.
func (v Values) Map(key string) map[string]any {
	raw, ok := v[key]
	if !ok || raw == nil {
		return nil
	}
	switch m := raw.(type) {
	case map[string]any:
		return m
	case Values:
		return m
	}
	return nil
}

// AutoPR returns the auto_pr option with its default.
func (v Values) AutoPR() bool { return v.Bool("auto_pr", DefaultAutoPR) }

// SweepOnOmnipull reports whether an omnipull-triggered sweep should run.
func (v Values) SweepOnOmnipull() bool { return v.Bool("sweep_on_omnipull", DefaultSweepOnOmni) }

// RunMode returns run_mode, one of deep|light.
func (v Values) RunMode() string { return v.String("run_mode", DefaultRunMode) }

// Org returns the configured organization.
func (v Values) Org() string { return v.String("org", DefaultOrg) }

// Excludes returns the ordered glob patterns excluded from analysis.
func (v Values) Excludes() []string { return v.StringSlice("excludes") }

// Allowlist returns the ordered org/name repository allowlist.
func (v Values) Allowlist() []string { return v.StringSlice("allowlist") }

// CheckEnabled reports whether the named analyzer is enabled in checks.
func (v Values) CheckEnabled(name string) bool {
	checks := v.Map("checks")
	if checks == nil {
		return false
	}
	raw, ok := checks[name]
	if !ok || raw == nil {
		return false
	}
	b, ok := CoerceBool(raw)
	if !ok {
		fmt.Fprintf(os.Stderr, "policy: checks.%s: cannot interpret %v as bool, disabling\n", name, raw)
		return false
	}
	return b
}
