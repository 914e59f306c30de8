// Package analyzer defines the structured Finding model and the analyzer
// capability: external inspection tools invoked as subprocesses whose native
// diagnostics are parsed into findings. The tools themselves are opaque;
// sichter only owns the invocation and the parse.
package analyzer

import (
	"context"
)

// Severity levels, weakest first.
const (
	SevInfo     = "info"
	SevWarning  = "warning"
	SevError    = "error"
	SevCritical = "critical"
	SevQuestion = "question"
)

// Categories.
const (
	CatStyle           = "style"
	CatCorrectness     = "correctness"
	CatSecurity        = "security"
	CatMaintainability = "maintainability"
	CatDrift           = "drift"
)

// Finding is one structured diagnostic.
type Finding struct {
	Severity     string `json:"severity"`
	Category     string `json:"category"`
	File         string `json:"file"`
	Line         int    `json:"line,omitempty"`
	Message      string `json:"message"`
	Tool         string `json:"tool,omitempty"`
	RuleID       string `json:"rule_id,omitempty"`
	FixAvailable bool   `json:"fix_available,omitempty"`
	DedupeKey    string `json:"dedupe_key,omitempty"`
}

// Key derives the dedupe key category:file:rule_id:message[:50], filling
// DedupeKey when empty.
func (f *Finding) Key() string {
	if f.DedupeKey != "" {
		return f.DedupeKey
	}
	msg := f.Message
	if len(msg) > 50 {
		msg = msg[:50]
	}
	f.DedupeKey = f.Category + ":" + f.File + ":" + f.RuleID + ":" + msg
	return f.DedupeKey
}

// Group is one dedupe bucket, ordered by first appearance.
type Group struct {
	Key      string
	Findings []Finding
}

// Dedupe groups findings by dedupe key, preserving first-seen order of both
// keys and members. len(groups) <= len(findings) always holds.
func Dedupe(findings []Finding) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, f := range findings {
		key := f.Key()
		if i, ok := index[key]; ok {
			groups[i].Findings = append(groups[i].Findings, f)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, Group{Key: key, Findings: []Finding{f}})
	}
	return groups
}

// Analyzer is the two-method capability the processor iterates over. Run
// receives the repository root and the selected file set; a nil file set
// means the whole repository.
type Analyzer interface {
	Name() string
	Available() bool
	Run(ctx context.Context, root string, files []string) ([]Finding, error)
}
