// Package queue is the durable filesystem job queue. Each job is one file
// queue/<job_id>.json; enqueue writes a temp sibling and renames it into
// place, so the dequeuer never observes a partial job. A job file exists
// exactly while the job has not reached a terminal state.
package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimgewebe/sichter/internal/eventlog"
)

// Job types.
const (
	TypeRepository = "repository"
	TypeSweep      = "sweep"
)

// Job modes.
const (
	ModeAll     = "all"
	ModeChanged = "changed"
	ModeDeep    = "deep"
	ModeLight   = "light"
)

// RepoPattern constrains the org/name form of the repo field.
var RepoPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)

var validModes = map[string]bool{
	ModeAll:     true,
	ModeChanged: true,
	ModeDeep:    true,
	ModeLight:   true,
}

// Job is the unit of work. AutoPR nil means "use policy default".
type Job struct {
	JobID  string `json:"job_id"`
	Type   string `json:"type"`
	Mode   string `json:"mode"`
	Repo   string `json:"repo,omitempty"`
	AutoPR *bool  `json:"auto_pr,omitempty"`
	TS     string `json:"ts"`
}

// UnmarshalJSON tolerates a non-boolean auto_pr value: it is logged and
// dropped, leaving the field unset so the policy default applies.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	var p plain
	err := json.Unmarshal(data, &p)
	if err == nil {
		*j = Job(p)
		return nil
	}

	var raw map[string]json.RawMessage
	if jerr := json.Unmarshal(data, &raw); jerr != nil {
		return err
	}
	v, ok := raw["auto_pr"]
	if !ok {
		return err
	}
	var b bool
	if json.Unmarshal(v, &b) == nil {
		return err // auto_pr was fine, something else is malformed
	}

	fmt.Fprintf(os.Stderr, "job: auto_pr %s is not a boolean, deferring to policy\n", v)
	delete(raw, "auto_pr")
	clean, merr := json.Marshal(raw)
	if merr != nil {
		return err
	}
	// The failed pass may have allocated AutoPR; decode into a fresh value.
	p = plain{}
	if err := json.Unmarshal(clean, &p); err != nil {
		return err
	}
	*j = Job(p)
	return nil
}

// Validate checks type, mode, and the repo pattern. A repository job
// requires a repo.
func (j *Job) Validate() error {
	switch j.Type {
	case TypeRepository, TypeSweep:
	default:
		return fmt.Errorf("invalid job type %q", j.Type)
	}
	if !validModes[j.Mode] {
		return fmt.Errorf("invalid job mode %q", j.Mode)
	}
	if j.Type == TypeRepository && j.Repo == "" {
		return fmt.Errorf("repository job requires repo")
	}
	if j.Repo != "" && !RepoPattern.MatchString(j.Repo) {
		return fmt.Errorf("Invalid repo name format")
	}
	return nil
}

// Queue owns the queue directory. The event log records enqueues; nil
// disables events (tests).
type Queue struct {
	dir string
	log *eventlog.Log
	now func() time.Time
}

// New creates a queue rooted at dir.
func New(dir string, log *eventlog.Log) *Queue {
	return &Queue{dir: dir, log: log, now: time.Now}
}

// Dir returns the queue directory.
func (q *Queue) Dir() string { return q.dir }

// NewJobID generates <epoch-seconds>-<random-hex>. The leading epoch keeps
// lexicographic order aligned with submission order across seconds; the
// suffix disambiguates within one second.
func (q *Queue) NewJobID() string {
	return fmt.Sprintf("%d-%s", q.now().UTC().Unix(), strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Enqueue assigns an ID and timestamp when absent, writes the job file
// atomically, and emits {type:"queue", job_id, payload}. The job file
// becomes visible only after the rename completes.
func (q *Queue) Enqueue(job *Job) error {
	if job.JobID == "" {
		job.JobID = q.NewJobID()
	}
	if job.TS == "" {
		job.TS = q.now().UTC().Format(time.RFC3339)
	}
	if err := job.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	tmp, err := os.CreateTemp(q.dir, ".job-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp job: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp job: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp job: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp job: %w", err)
	}

	target := filepath.Join(q.dir, job.JobID+".json")
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("enqueue %s: %w", job.JobID, err)
	}

	if q.log != nil {
		if err := q.log.Append(eventlog.Event{Type: "queue", JobID: job.JobID, Payload: job}); err != nil {
			fmt.Fprintf(os.Stderr, "queue: event append failed: %v\n", err)
		}
	}
	return nil
}

// List returns the queued job files sorted lexicographically (≈ FIFO).
// Only plain files with a .json suffix count; symlinks and temp siblings are
// ignored.
func (q *Queue) List() ([]string, error) {
	entries, err := os.ReadDir(q.dir)
	if err != nil {
		return nil, fmt.Errorf("list queue: %w", err)
	}
	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, filepath.Join(q.dir, name))
	}
	sort.Strings(files)
	return files, nil
}

// Read parses the job file at path.
func Read(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("parse job %s: %w", filepath.Base(path), err)
	}
	return &job, nil
}

// Remove unlinks a job file after its terminal disposition.
func (q *Queue) Remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "queue: remove %s: %v\n", filepath.Base(path), err)
	}
}

// SnapshotItem describes one queued job for dashboards.
type SnapshotItem struct {
	ID         string `json:"id"`
	Type       string `json:"type,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Repo       string `json:"repo,omitempty"`
	EnqueuedAt string `json:"enqueuedAt"`
}

// Snapshot reports the queue size and the most recent limit jobs in
// chronological order. Unreadable files still count toward size.
type Snapshot struct {
	Size  int            `json:"size"`
	Items []SnapshotItem `json:"items"`
}

// Snapshot builds the current queue state for /overview and the status CLI.
func (q *Queue) Snapshot(limit int) Snapshot {
	files, err := q.List()
	if err != nil || len(files) == 0 {
		return Snapshot{Items: []SnapshotItem{}}
	}

	snap := Snapshot{Size: len(files)}
	recent := files
	if limit > 0 && len(recent) > limit {
		recent = recent[len(recent)-limit:]
	}
	for _, path := range recent {
		item := SnapshotItem{ID: strings.TrimSuffix(filepath.Base(path), ".json")}
		if job, err := Read(path); err == nil {
			item.Type = job.Type
			item.Mode = job.Mode
			item.Repo = job.Repo
		}
		if info, err := os.Stat(path); err == nil {
			item.EnqueuedAt = info.ModTime().UTC().Format(time.RFC3339)
		}
		snap.Items = append(snap.Items, item)
	}
	return snap
}
