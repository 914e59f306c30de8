package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/heimgewebe/sichter/internal/policy"
	"github.com/heimgewebe/sichter/internal/queue"
	"github.com/heimgewebe/sichter/internal/systemd"
)

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "ok")
}

func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	missing := s.paths.Ready()
	body := map[string]any{
		"status": "ok",
		"queue":  dirState(s.paths.Queue, missing),
		"events": dirState(s.paths.Events, missing),
		"logs":   dirState(s.paths.Logs, missing),
	}
	code := http.StatusOK
	if len(missing) > 0 {
		body["status"] = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, body)
}

func dirState(dir string, missing []string) string {
	for _, m := range missing {
		if m == dir {
			return "missing"
		}
	}
	return "ok"
}

// enqueueRequest is the POST /enqueue body.
type enqueueRequest struct {
	Repo   string `json:"repo"`
	Mode   string `json:"mode"`
	AutoPR *bool  `json:"auto_pr"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if !queue.RepoPattern.MatchString(req.Repo) {
		writeError(w, http.StatusBadRequest, "Invalid repo name format")
		return
	}
	if req.Mode == "" {
		req.Mode = queue.ModeChanged
	}

	job := &queue.Job{
		Type:   queue.TypeRepository,
		Mode:   req.Mode,
		Repo:   req.Repo,
		AutoPR: req.AutoPR,
	}
	s.submit(w, job)
}

// sweepRequest is the POST /sweep body.
type sweepRequest struct {
	Mode   string `json:"mode"`
	AutoPR *bool  `json:"auto_pr"`
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req sweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Mode == "" {
		req.Mode = queue.ModeChanged
	}

	job := &queue.Job{
		Type:   queue.TypeSweep,
		Mode:   req.Mode,
		AutoPR: req.AutoPR,
	}
	s.submit(w, job)
}

func (s *Server) submit(w http.ResponseWriter, job *queue.Job) {
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.queue.Enqueue(job); err != nil {
		fmt.Fprintf(os.Stderr, "enqueue failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"enqueued": job.JobID,
		"queued":   job,
	})
}

func (s *Server) handleEventsTail(w http.ResponseWriter, r *http.Request) {
	n := intParam(r, "n", 200)
	since := int64(intParam(r, "since", 0))
	records := s.log.Tail(n, since)

	w.Header().Set("Content-Type", "application/x-ndjson")
	for _, rec := range records {
		fmt.Fprintln(w, rec.Line)
	}
}

func (s *Server) handleEventsRecent(w http.ResponseWriter, r *http.Request) {
	n := intParam(r, "n", 200)
	records := s.log.Tail(n, 0)
	events := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.Payload)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handlePolicyGet(w http.ResponseWriter, _ *http.Request) {
	values, err := s.policy.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "policy unreadable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   s.policy.Path(),
		"values": values,
	})
}

// policyPutRequest is the PUT /policy body.
type policyPutRequest struct {
	Values policy.Values `json:"values"`
}

func (s *Server) handlePolicyPut(w http.ResponseWriter, r *http.Request) {
	var req policyPutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed JSON body")
		return
	}
	if req.Values == nil {
		writeError(w, http.StatusBadRequest, "values object required")
		return
	}
	if err := s.policy.Write(req.Values); err != nil {
		fmt.Fprintf(os.Stderr, "policy write failed: %v\n", err)
		writeError(w, http.StatusInternalServerError, "policy write failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"path":   s.policy.Path(),
		"values": req.Values,
	})
}

func (s *Server) handleLogsLatest(w http.ResponseWriter, _ *http.Request) {
	entries, err := os.ReadDir(s.paths.Logs)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "logs unreadable")
		return
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".log") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		writeError(w, http.StatusNotFound, "no log files")
		return
	}
	sort.Strings(names)

	data, err := os.ReadFile(filepath.Join(s.paths.Logs, names[len(names)-1]))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "log unreadable")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write(data)
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	records := s.log.Tail(50, 0)
	events := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		events = append(events, rec.Payload)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"worker": systemd.Worker(r.Context()),
		"queue":  s.queue.Snapshot(10),
		"events": events,
	})
}

func (s *Server) handleReposStatus(w http.ResponseWriter, _ *http.Request) {
	values, err := s.policy.Load()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "policy unreadable")
		return
	}

	records := s.log.Tail(200, 0)
	repos := make([]map[string]any, 0)
	for _, repo := range values.Allowlist() {
		entry := map[string]any{"name": repo}
		for _, rec := range records {
			if strings.Contains(rec.Line, repo) {
				entry["lastEvent"] = rec.Payload
				break
			}
		}
		repos = append(repos, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
}
