package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimgewebe/sichter/internal/analyzer"
	"github.com/heimgewebe/sichter/internal/eventlog"
	"github.com/heimgewebe/sichter/internal/policy"
	"github.com/heimgewebe/sichter/internal/publish"
	"github.com/heimgewebe/sichter/internal/queue"
)

// commitMessage is used for every autofix commit.
const commitMessage = "sichter: autofix"

// Processor runs one job: select the repository set, analyze each work
// tree, and hand publication to the publisher. Per-repository errors are
// recoverable; only the surrounding loop treats a returned error as the
// job's error event.
type Processor struct {
	log    *eventlog.Log
	policy *policy.Store
	pub    publish.Publisher
	logger *log.Logger
	now    func() time.Time
}

// NewProcessor wires the processor's collaborators.
func NewProcessor(evlog *eventlog.Log, store *policy.Store, pub publish.Publisher) *Processor {
	return &Processor{
		log:    evlog,
		policy: store,
		pub:    pub,
		logger: log.New(os.Stdout, "", log.LstdFlags|log.LUTC),
		now:    time.Now,
	}
}

// Process handles a single job to completion.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	values, err := p.policy.Load()
	if err != nil {
		p.logger.Printf("policy load: %v (using defaults)", err)
		values = policy.Values{}
	}

	autoPR := values.AutoPR()
	if job.AutoPR != nil {
		autoPR = *job.AutoPR
	}

	repos, err := p.selectRepos(ctx, job, values)
	if err != nil {
		return err
	}
	p.logger.Printf("job %s: mode=%s repos=%d auto_pr=%v", job.JobID, job.Mode, len(repos), autoPR)

	for _, repo := range repos {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.processRepo(ctx, job, values, repo, autoPR)
	}

	runPostHook(p.logger)
	return nil
}

// selectRepos enumerates the repositories a job covers: an explicit repo,
// the org listing in all mode (local clones when enumeration fails), or the
// local clones otherwise.
func (p *Processor) selectRepos(ctx context.Context, job *queue.Job, values policy.Values) ([]string, error) {
	if job.Repo != "" {
		return []string{job.Repo}, nil
	}
	if job.Mode == queue.ModeAll {
		repos, err := p.pub.ListRemote(ctx, values.Org())
		if err == nil && len(repos) > 0 {
			return repos, nil
		}
		if err != nil {
			p.logger.Printf("org enumeration failed: %v, falling back to local clones", err)
		}
	}
	return p.pub.ListLocal()
}

// processRepo runs the per-repository pipeline. Failures emit events and
// return; they never abort the sweep.
func (p *Processor) processRepo(ctx context.Context, job *queue.Job, values policy.Values, repo string, autoPR bool) {
	dir, err := p.pub.EnsureWorkTree(ctx, repo)
	if err != nil {
		p.logger.Printf("%s: clone failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "clone_failed", Repo: repo, Error: err.Error()})
		return
	}

	branch := publish.BranchName(p.now())
	if err := p.pub.FreshBranch(ctx, dir, branch); err != nil {
		p.logger.Printf("%s: branch setup failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "error", Repo: repo, Message: fmt.Sprintf("branch setup failed: %v", err)})
		return
	}

	files, err := p.selectFiles(ctx, job, values, dir)
	if err != nil {
		p.logger.Printf("%s: changed-file listing failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "error", Repo: repo, Message: fmt.Sprintf("changed-file listing failed: %v", err)})
		return
	}
	if files != nil && len(files) == 0 {
		p.logger.Printf("%s: no analyzable changes", repo)
		p.appendEvent(eventlog.Event{Type: "noop", Repo: repo, Branch: branch})
		return
	}

	p.analyze(ctx, values, repo, dir, files)
	p.publish(ctx, repo, dir, branch, autoPR)
}

// selectFiles builds the analyzer input set. In changed mode: the
// version-control diff against the default remote branch, keeping only
// paths that still exist, resolve inside the repository root, and match no
// exclude glob. Other modes pass the whole repository (nil).
func (p *Processor) selectFiles(ctx context.Context, job *queue.Job, values policy.Values, dir string) ([]string, error) {
	if job.Mode != queue.ModeChanged {
		return nil, nil
	}

	changed, err := p.pub.ChangedFiles(ctx, dir)
	if err != nil {
		return nil, err
	}

	root, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve repo root: %w", err)
	}
	excludes := values.Excludes()

	files := make([]string, 0, len(changed))
	for _, rel := range changed {
		abs := filepath.Join(dir, rel)
		if _, err := os.Lstat(abs); err != nil {
			continue // deleted in the work tree
		}
		real, err := filepath.EvalSymlinks(abs)
		if err != nil {
			p.logger.Printf("skip %s: %v", rel, err)
			continue
		}
		if real != root && !strings.HasPrefix(real, root+string(filepath.Separator)) {
			p.logger.Printf("skip %s: resolves outside repository", rel)
			continue
		}
		if analyzer.Excluded(rel, excludes) {
			continue
		}
		files = append(files, rel)
	}
	return files, nil
}

// analyze runs the enabled analyzers and emits the findings event when any
// findings were produced.
func (p *Processor) analyze(ctx context.Context, values policy.Values, repo, dir string, files []string) {
	var findings []analyzer.Finding
	for _, a := range analyzer.Enabled(values) {
		result, err := a.Run(ctx, dir, files)
		if err != nil {
			p.logger.Printf("%s: analyzer %s: %v", repo, a.Name(), err)
			continue
		}
		p.logger.Printf("%s: analyzer %s: %d findings", repo, a.Name(), len(result))
		findings = append(findings, result...)
	}

	if len(findings) == 0 {
		return
	}
	groups := analyzer.Dedupe(findings)
	p.appendEvent(eventlog.Event{
		Type:    "findings",
		Repo:    repo,
		Count:   len(findings),
		Deduped: len(groups),
	})
}

// publish commits when the work tree changed and pushes/opens a PR when
// auto_pr allows. Push and PR failures emit their events and stop this
// repository only.
func (p *Processor) publish(ctx context.Context, repo, dir, branch string, autoPR bool) {
	committed, err := p.pub.CommitIfChanges(ctx, dir, commitMessage)
	if err != nil {
		p.logger.Printf("%s: commit failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "error", Repo: repo, Message: fmt.Sprintf("commit failed: %v", err)})
		return
	}
	if !committed {
		p.logger.Printf("%s: no changes", repo)
		p.appendEvent(eventlog.Event{Type: "noop", Repo: repo, Branch: branch})
		return
	}

	if !autoPR {
		p.logger.Printf("%s: auto-PR disabled, changes stay local", repo)
		off := false
		p.appendEvent(eventlog.Event{Type: "commit", Repo: repo, Branch: branch, AutoPR: &off})
		return
	}

	if err := p.pub.Push(ctx, dir, branch); err != nil {
		p.logger.Printf("%s: push failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "push_failed", Repo: repo, Branch: branch, Error: err.Error()})
		return
	}
	url, err := p.pub.CreateOrUpdatePR(ctx, dir, repo, branch)
	if err != nil {
		p.logger.Printf("%s: PR failed: %v", repo, err)
		p.appendEvent(eventlog.Event{Type: "pr_failed", Repo: repo, Branch: branch, Error: err.Error()})
		return
	}
	p.logger.Printf("%s: PR %s", repo, url)
	p.appendEvent(eventlog.Event{Type: "pr", Repo: repo, Branch: branch, URL: url})
}

func (p *Processor) appendEvent(ev eventlog.Event) {
	if err := p.log.Append(ev); err != nil {
		p.logger.Printf("event append failed: %v", err)
	}
}
