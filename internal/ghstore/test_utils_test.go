package ghstore

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeObject is one stored file in the fake contents API.
type fakeObject struct {
	data []byte
	sha  string
}

// fakeGitHub is an in-memory stand-in for the GitHub repository contents
// API: get, put, delete, and directory listing, with blob SHA version
// tokens and conflict detection on stale SHAs.
type fakeGitHub struct {
	t *testing.T

	mu      sync.Mutex
	objects map[string]fakeObject
	nextSHA int

	// failures, when positive, makes the next N requests fail with
	// failStatus before normal handling resumes.
	failures   int
	failStatus int
	// requests counts every request seen, including injected failures.
	requests int
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()
	return &fakeGitHub{t: t, objects: make(map[string]fakeObject)}
}

// seed stores an object directly, bypassing the API.
func (f *fakeGitHub) seed(path string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextSHA++
	sha := fmt.Sprintf("sha-%d", f.nextSHA)
	f.objects[path] = fakeObject{data: data, sha: sha}
	return sha
}

// get returns the stored object bytes, or nil when absent.
func (f *fakeGitHub) get(path string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if obj, ok := f.objects[path]; ok {
		return obj.data
	}
	return nil
}

// failNext makes the next n requests fail with the given status.
func (f *fakeGitHub) failNext(n, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = n
	f.failStatus = status
}

func (f *fakeGitHub) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

func (f *fakeGitHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++
	if f.failures > 0 {
		f.failures--
		writeJSON(w, f.failStatus, map[string]string{"message": "injected failure"})
		return
	}

	const prefix = "/repos/owner/repo/contents/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	path := strings.TrimPrefix(r.URL.Path, prefix)

	switch r.Method {
	case http.MethodGet:
		f.handleGet(w, path)
	case http.MethodPut:
		f.handlePut(w, r, path)
	case http.MethodDelete:
		f.handleDelete(w, r, path)
	default:
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func (f *fakeGitHub) handleGet(w http.ResponseWriter, path string) {
	if obj, ok := f.objects[path]; ok {
		writeJSON(w, http.StatusOK, map[string]any{
			"type":     "file",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString(obj.data),
			"sha":      obj.sha,
		})
		return
	}

	// Directory listing.
	var entries []map[string]string
	for p := range f.objects {
		if strings.HasPrefix(p, path+"/") {
			rest := strings.TrimPrefix(p, path+"/")
			if strings.Contains(rest, "/") {
				continue
			}
			entries = append(entries, map[string]string{
				"name": rest,
				"path": p,
				"type": "file",
			})
		}
	}
	if len(entries) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i]["name"] < entries[j]["name"] })
	writeJSON(w, http.StatusOK, entries)
}

func (f *fakeGitHub) handlePut(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		Content string `json:"content"`
		Branch  string `json:"branch"`
		SHA     string `json:"sha"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Content)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "invalid base64"})
		return
	}

	existing, exists := f.objects[path]
	if exists && req.SHA != existing.sha {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
		return
	}
	if !exists && req.SHA != "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "sha provided for new file"})
		return
	}

	f.nextSHA++
	sha := fmt.Sprintf("sha-%d", f.nextSHA)
	f.objects[path] = fakeObject{data: data, sha: sha}
	status := http.StatusCreated
	if exists {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{"content": map[string]string{"sha": sha}})
}

func (f *fakeGitHub) handleDelete(w http.ResponseWriter, r *http.Request, path string) {
	var req struct {
		Message string `json:"message"`
		SHA     string `json:"sha"`
		Branch  string `json:"branch"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
		return
	}
	existing, exists := f.objects[path]
	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
		return
	}
	if req.SHA != existing.sha {
		writeJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
		return
	}
	delete(f.objects, path)
	writeJSON(w, http.StatusOK, map[string]any{"content": nil})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newTestClient starts a fake contents API and returns a client pointed at
// it with a fast retry policy.
func newTestClient(t *testing.T) (*Client, *fakeGitHub) {
	t.Helper()
	fake := newFakeGitHub(t)
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c := NewClient(Config{
		Owner:   "owner",
		Repo:    "repo",
		Branch:  "main",
		BaseURL: srv.URL,
		Retry:   RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond},
	}, NewStaticToken("test-token"))
	return c, fake
}
