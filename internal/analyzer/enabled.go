package analyzer

import (
	"fmt"
	"os"

	"github.com/heimgewebe/sichter/internal/policy"
)

// Enabled returns the analyzers the policy turns on, in a fixed order, with
// unavailable tools skipped (logged, never fatal). The LLM reviewer runs
// only in deep mode.
func Enabled(values policy.Values) []Analyzer {
	excludes := values.Excludes()

	candidates := []Analyzer{
		NewShellcheck(excludes),
		NewYamllint(excludes),
	}
	if values.RunMode() == "deep" {
		candidates = append(candidates, NewLLMReviewer(values.Map("llm")))
	}

	var enabled []Analyzer
	for _, a := range candidates {
		if !values.CheckEnabled(a.Name()) {
			continue
		}
		if !a.Available() {
			fmt.Fprintf(os.Stderr, "analyzer %s not found, skipping\n", a.Name())
			continue
		}
		enabled = append(enabled, a)
	}
	return enabled
}
