package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/heimgewebe/sichter/internal/auth"
	"github.com/heimgewebe/sichter/internal/paths"
	"github.com/heimgewebe/sichter/internal/queue"
	"github.com/heimgewebe/sichter/internal/ratelimit"
)

const testKey = "test-key"

func testServer(t *testing.T) (*Server, paths.Paths) {
	t.Helper()
	root := t.TempDir()
	p := paths.Paths{
		State:  root,
		Queue:  filepath.Join(root, "queue"),
		Events: filepath.Join(root, "events"),
		Logs:   filepath.Join(root, "logs"),
		Config: filepath.Join(root, "config"),
	}
	srv, err := New(Config{
		Addr:        "127.0.0.1:0",
		Paths:       p,
		Gate:        auth.NewGate(testKey),
		Limiter:     ratelimit.New(1000, time.Minute),
		CORSOrigins: []string{},
	})
	if err != nil {
		t.Fatal(err)
	}
	return srv, p
}

func doJSON(t *testing.T, srv *Server, method, path, body string, withKey bool) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if withKey {
		req.Header.Set(auth.Header, testKey)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, "GET", "/healthz", "", false)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("healthz = %d %q", w.Code, w.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	srv, p := testServer(t)
	w := doJSON(t, srv, "GET", "/readyz", "", false)
	if w.Code != http.StatusOK {
		t.Fatalf("readyz = %d", w.Code)
	}

	if err := os.RemoveAll(p.Queue); err != nil {
		t.Fatal(err)
	}
	w = doJSON(t, srv, "GET", "/readyz", "", false)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz with missing queue = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["queue"] != "missing" || body["events"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestSubmitAndObserve(t *testing.T) {
	srv, p := testServer(t)

	w := doJSON(t, srv, "POST", "/enqueue", `{"repo":"acme/widget","mode":"changed","auto_pr":true}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("enqueue = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Enqueued string    `json:"enqueued"`
		Queued   queue.Job `json:"queued"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Enqueued == "" || resp.Queued.Repo != "acme/widget" {
		t.Errorf("response = %+v", resp)
	}

	// Queue durability: the file exists and parses to the response's job.
	job, err := queue.Read(filepath.Join(p.Queue, resp.Enqueued+".json"))
	if err != nil {
		t.Fatalf("job file: %v", err)
	}
	if job.JobID != resp.Enqueued || job.Mode != "changed" {
		t.Errorf("job = %+v", job)
	}

	// The queue event is visible on the tail.
	w = doJSON(t, srv, "GET", "/events/tail?n=1", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("tail = %d", w.Code)
	}
	line := strings.TrimSpace(w.Body.String())
	if !strings.Contains(line, `"type":"queue"`) || !strings.Contains(line, resp.Enqueued) {
		t.Errorf("tail line = %s", line)
	}
}

func TestInvalidRepo(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, "POST", "/enqueue", `{"repo":"not a repo","mode":"all"}`, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("code = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["detail"] != "Invalid repo name format" {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestMalformedJSON(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, "POST", "/enqueue", `{"repo":`, true)
	if w.Code != http.StatusBadRequest {
		t.Errorf("code = %d", w.Code)
	}
}

func TestAuthMissingKey(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, "POST", "/enqueue", `{"repo":"acme/widget"}`, false)
	if w.Code != http.StatusForbidden {
		t.Fatalf("code = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["detail"] != "API Key is missing" {
		t.Errorf("detail = %q", body["detail"])
	}
}

func TestAuthInvalidKey(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest("POST", "/enqueue", strings.NewReader(`{}`))
	req.Header.Set(auth.Header, "wrong")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("code = %d", w.Code)
	}
}

func TestAuthNotConfiguredFailsClosed(t *testing.T) {
	root := t.TempDir()
	p := paths.Paths{
		State:  root,
		Queue:  filepath.Join(root, "queue"),
		Events: filepath.Join(root, "events"),
		Logs:   filepath.Join(root, "logs"),
		Config: filepath.Join(root, "config"),
	}
	srv, err := New(Config{
		Paths:   p,
		Gate:    auth.NewGate(""),
		Limiter: ratelimit.New(1000, time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}
	w := doJSON(t, srv, "POST", "/enqueue", `{"repo":"acme/widget"}`, false)
	if w.Code != http.StatusForbidden {
		t.Errorf("unconfigured gate must reject: %d", w.Code)
	}
}

func TestRateLimitExceeded(t *testing.T) {
	root := t.TempDir()
	p := paths.Paths{
		State:  root,
		Queue:  filepath.Join(root, "queue"),
		Events: filepath.Join(root, "events"),
		Logs:   filepath.Join(root, "logs"),
		Config: filepath.Join(root, "config"),
	}
	srv, err := New(Config{
		Paths:   p,
		Gate:    auth.NewGate(testKey),
		Limiter: ratelimit.New(3, time.Minute),
	})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		if w := doJSON(t, srv, "GET", "/policy", "", true); w.Code != http.StatusOK {
			t.Fatalf("request %d = %d", i+1, w.Code)
		}
	}
	w := doJSON(t, srv, "GET", "/policy", "", true)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("code = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["detail"] != "rate limit exceeded" {
		t.Errorf("detail = %q", body["detail"])
	}

	// Health probes stay exempt.
	if w := doJSON(t, srv, "GET", "/healthz", "", false); w.Code != http.StatusOK {
		t.Errorf("healthz rate-limited: %d", w.Code)
	}
}

func TestPolicyRoundtrip(t *testing.T) {
	srv, _ := testServer(t)

	w := doJSON(t, srv, "PUT", "/policy", `{"values":{"auto_pr":false}}`, true)
	if w.Code != http.StatusOK {
		t.Fatalf("put = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, srv, "GET", "/policy", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}
	var resp struct {
		Path   string         `json:"path"`
		Values map[string]any `json:"values"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Values["auto_pr"] != false {
		t.Errorf("auto_pr = %v", resp.Values["auto_pr"])
	}

	// The write emitted a policy event.
	w = doJSON(t, srv, "GET", "/events/tail?n=5", "", true)
	if !strings.Contains(w.Body.String(), `"type":"policy"`) {
		t.Errorf("no policy event on tail: %s", w.Body.String())
	}
}

func TestSweep(t *testing.T) {
	srv, p := testServer(t)
	w := doJSON(t, srv, "POST", "/sweep", `{"mode":"all"}`, true)
	if w.Code != http.StatusAccepted {
		t.Fatalf("sweep = %d: %s", w.Code, w.Body.String())
	}
	files, err := os.ReadDir(p.Queue)
	if err != nil || len(files) != 1 {
		t.Fatalf("queue files = %v, %v", files, err)
	}
	job, err := queue.Read(filepath.Join(p.Queue, files[0].Name()))
	if err != nil {
		t.Fatal(err)
	}
	if job.Type != queue.TypeSweep || job.Mode != "all" {
		t.Errorf("job = %+v", job)
	}
}

func TestLogsLatest(t *testing.T) {
	srv, p := testServer(t)

	w := doJSON(t, srv, "GET", "/logs/latest", "", true)
	if w.Code != http.StatusNotFound {
		t.Errorf("no logs = %d", w.Code)
	}

	if err := os.WriteFile(filepath.Join(p.Logs, "worker-20250314-090000.log"), []byte("older\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(p.Logs, "worker-20250314-100000.log"), []byte("newer\n"), 0o640); err != nil {
		t.Fatal(err)
	}
	w = doJSON(t, srv, "GET", "/logs/latest", "", true)
	if w.Code != http.StatusOK || w.Body.String() != "newer\n" {
		t.Errorf("logs/latest = %d %q", w.Code, w.Body.String())
	}
}

func TestOverview(t *testing.T) {
	srv, _ := testServer(t)
	w := doJSON(t, srv, "GET", "/overview", "", true)
	if w.Code != http.StatusOK {
		t.Fatalf("overview = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	for _, key := range []string{"worker", "queue", "events"} {
		if _, ok := body[key]; !ok {
			t.Errorf("overview missing %s", key)
		}
	}
}

func TestCORSExplicitConfiguration(t *testing.T) {
	srv, _ := testServer(t) // empty origin list
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unconfigured CORS must not allow origins, got %q", got)
	}
}

func TestCORSAllowedOrigin(t *testing.T) {
	root := t.TempDir()
	p := paths.Paths{
		State:  root,
		Queue:  filepath.Join(root, "queue"),
		Events: filepath.Join(root, "events"),
		Logs:   filepath.Join(root, "logs"),
		Config: filepath.Join(root, "config"),
	}
	srv, err := New(Config{
		Paths:       p,
		Gate:        auth.NewGate(testKey),
		Limiter:     ratelimit.New(1000, time.Minute),
		CORSOrigins: []string{"https://dashboard.example"},
	})
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest("GET", "/healthz", nil)
	req.Header.Set("Origin", "https://dashboard.example")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://dashboard.example" {
		t.Errorf("allowed origin not echoed: %q", got)
	}
	if w.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Error("credentials not allowed")
	}
}
