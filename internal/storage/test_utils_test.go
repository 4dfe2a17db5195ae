package storage

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

	"github.com/itaober/memogit/internal/ghstore"
	"github.com/itaober/memogit/internal/models"
)

// testNow is the fixed instant every test clock reports.
var testNow = time.Date(2024, 3, 15, 10, 30, 0, 0, mustLoadLocation("Asia/Shanghai"))

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// newTestClock returns a clock frozen at testNow.
func newTestClock(t *testing.T) *Clock {
	t.Helper()
	clock, err := NewClock("Asia/Shanghai")
	if err != nil {
		t.Fatal(err)
	}
	clock.now = func() time.Time { return testNow }
	return clock
}

// fakeRepo is an in-memory GitHub contents API serving get, put, delete,
// and directory listing with blob SHA version tokens.
type fakeRepo struct {
	mu      sync.Mutex
	objects map[string][]byte
	shas    map[string]string
	nextSHA int
	// failPaths makes requests touching these paths fail with a 500.
	failPaths map[string]bool
	// requests counts API hits per path.
	requests map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		objects:   make(map[string][]byte),
		shas:      make(map[string]string),
		failPaths: make(map[string]bool),
		requests:  make(map[string]int),
	}
}

func (f *fakeRepo) seed(path string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.store(path, data)
}

func (f *fakeRepo) store(path string, data []byte) {
	f.nextSHA++
	f.objects[path] = data
	f.shas[path] = fmt.Sprintf("sha-%d", f.nextSHA)
}

// seedShard stores a memo list at the shard path for month.
func (f *fakeRepo) seedShard(t *testing.T, cfg Config, month string, memos models.MemoList) {
	t.Helper()
	data, err := json.Marshal(memos)
	if err != nil {
		t.Fatal(err)
	}
	f.seed(fmt.Sprintf("%s/%s%s.json", cfg.MemosDir, cfg.MemosFilePrefix, month), data)
}

// shard decodes the memo list stored at the shard path for month, or nil
// when the shard does not exist.
func (f *fakeRepo) shard(t *testing.T, cfg Config, month string) models.MemoList {
	t.Helper()
	f.mu.Lock()
	data := f.objects[fmt.Sprintf("%s/%s%s.json", cfg.MemosDir, cfg.MemosFilePrefix, month)]
	f.mu.Unlock()
	if data == nil {
		return nil
	}
	var list models.MemoList
	if err := json.Unmarshal(data, &list); err != nil {
		t.Fatal(err)
	}
	return list
}

func (f *fakeRepo) has(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok
}

func (f *fakeRepo) requestCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[path]
}

func (f *fakeRepo) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	const prefix = "/repos/owner/repo/contents/"
	path := strings.TrimPrefix(r.URL.Path, prefix)
	f.requests[path]++
	if f.failPaths[path] {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"message": "injected failure"})
		return
	}

	switch r.Method {
	case http.MethodGet:
		if data, ok := f.objects[path]; ok {
			respondJSON(w, http.StatusOK, map[string]any{
				"type":     "file",
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString(data),
				"sha":      f.shas[path],
			})
			return
		}
		var entries []map[string]string
		for p := range f.objects {
			if rest, ok := strings.CutPrefix(p, path+"/"); ok && !strings.Contains(rest, "/") {
				entries = append(entries, map[string]string{"name": rest, "path": p, "type": "file"})
			}
		}
		if len(entries) == 0 {
			respondJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i]["name"] < entries[j]["name"] })
		respondJSON(w, http.StatusOK, entries)

	case http.MethodPut:
		var req struct {
			Content string `json:"content"`
			SHA     string `json:"sha"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, map[string]string{"message": "bad request"})
			return
		}
		if current, ok := f.shas[path]; ok && req.SHA != current {
			respondJSON(w, http.StatusConflict, map[string]string{"message": "sha mismatch"})
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.Content)
		if err != nil {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{"message": "invalid base64"})
			return
		}
		f.store(path, data)
		respondJSON(w, http.StatusCreated, map[string]any{"content": map[string]string{"sha": f.shas[path]}})

	case http.MethodDelete:
		if _, ok := f.objects[path]; !ok {
			respondJSON(w, http.StatusNotFound, map[string]string{"message": "Not Found"})
			return
		}
		delete(f.objects, path)
		delete(f.shas, path)
		respondJSON(w, http.StatusOK, map[string]any{"content": nil})

	default:
		respondJSON(w, http.StatusMethodNotAllowed, map[string]string{"message": "method not allowed"})
	}
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// testEnv bundles the services under test with their fake backing store.
type testEnv struct {
	repo   *fakeRepo
	cfg    Config
	clock  *Clock
	client *ghstore.Client
	memos  *MemoService
	index  *IndexService
	assets *AssetService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	repo := newFakeRepo()
	srv := httptest.NewServer(repo)
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.DeletesPerSecond = 0 // no pacing in tests
	client := ghstore.NewClient(ghstore.Config{
		Owner:   "owner",
		Repo:    "repo",
		Branch:  "main",
		BaseURL: srv.URL,
		Retry:   ghstore.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, ghstore.NewStaticToken("test-token"))
	clock := newTestClock(t)
	assets := NewAssetService(client, cfg)
	return &testEnv{
		repo:   repo,
		cfg:    cfg,
		clock:  clock,
		client: client,
		memos:  NewMemoService(client, clock, cfg, assets),
		index:  NewIndexService(client, cfg),
		assets: assets,
	}
}
