package ghstore

import (
	"strings"
	"testing"

	"github.com/itaober/memogit/internal/models"
)

func TestGetText(t *testing.T) {
	c, fake := newTestClient(t)
	wantSHA := fake.seed("data/memos/memos-202403.json", []byte(`[{"id":"m1"}]`))

	text, sha, err := c.GetText(t.Context(), "data/memos/memos-202403.json")
	if err != nil {
		t.Fatal(err)
	}
	if text != `[{"id":"m1"}]` {
		t.Fatalf("unexpected content: %q", text)
	}
	if sha != wantSHA {
		t.Fatalf("sha = %q, want %q", sha, wantSHA)
	}
}

func TestGetTextNotFound(t *testing.T) {
	c, _ := newTestClient(t)

	_, _, err := c.GetText(t.Context(), "data/memos/missing.json")
	if !models.IsNotFound(err) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestPutCreatesAndReplaces(t *testing.T) {
	c, fake := newTestClient(t)

	sha1, err := c.Put(t.Context(), "data/note.json", []byte("v1"), "docs: update data/note.json", "")
	if err != nil {
		t.Fatal(err)
	}
	if sha1 == "" {
		t.Fatal("expected a version token")
	}
	if got := fake.get("data/note.json"); string(got) != "v1" {
		t.Fatalf("stored %q, want v1", got)
	}

	// A write with an empty expected version lands over the current blob.
	sha2, err := c.Put(t.Context(), "data/note.json", []byte("v2"), "docs: update data/note.json", "")
	if err != nil {
		t.Fatal(err)
	}
	if sha2 == sha1 {
		t.Fatal("version token did not change on replace")
	}
	if got := fake.get("data/note.json"); string(got) != "v2" {
		t.Fatalf("stored %q, want v2", got)
	}
}

func TestPutStaleVersionConflicts(t *testing.T) {
	c, fake := newTestClient(t)
	fake.seed("data/note.json", []byte("v1"))

	_, err := c.Put(t.Context(), "data/note.json", []byte("v2"), "msg", "stale-sha")
	if !models.IsConflict(err) {
		t.Fatalf("expected Conflict, got %v", err)
	}
}

func TestPutMatchingVersionSucceeds(t *testing.T) {
	c, fake := newTestClient(t)
	sha := fake.seed("data/note.json", []byte("v1"))

	if _, err := c.Put(t.Context(), "data/note.json", []byte("v2"), "msg", sha); err != nil {
		t.Fatal(err)
	}
	if got := fake.get("data/note.json"); string(got) != "v2" {
		t.Fatalf("stored %q, want v2", got)
	}
}

func TestDeleteObject(t *testing.T) {
	c, fake := newTestClient(t)
	fake.seed("assets/img.webp", []byte("bytes"))

	deleted, err := c.DeleteObject(t.Context(), "assets/img.webp", "msg", "")
	if err != nil {
		t.Fatal(err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	if fake.get("assets/img.webp") != nil {
		t.Fatal("object still present after delete")
	}
}

func TestDeleteObjectAbsent(t *testing.T) {
	c, _ := newTestClient(t)

	deleted, err := c.DeleteObject(t.Context(), "assets/missing.webp", "msg", "")
	if err != nil {
		t.Fatal(err)
	}
	if deleted {
		t.Fatal("expected deleted=false for an absent object")
	}
}

func TestListDir(t *testing.T) {
	c, fake := newTestClient(t)
	fake.seed("data/memos/memos-202402.json", []byte("[]"))
	fake.seed("data/memos/memos-202403.json", []byte("[]"))
	fake.seed("data/memos/nested/ignored.json", []byte("[]"))

	entries, err := c.ListDir(t.Context(), "data/memos")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Name != "memos-202402.json" || entries[1].Name != "memos-202403.json" {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestListDirMissing(t *testing.T) {
	c, _ := newTestClient(t)

	entries, err := c.ListDir(t.Context(), "data/nowhere")
	if err != nil {
		t.Fatal(err)
	}
	if entries != nil {
		t.Fatalf("expected nil for a missing directory, got %+v", entries)
	}
}

func TestAuthErrorClassified(t *testing.T) {
	c, fake := newTestClient(t)
	fake.failNext(1, 401)

	_, _, err := c.GetText(t.Context(), "data/note.json")
	if models.CodeOf(err) != models.ErrAuthInvalid {
		t.Fatalf("expected AUTH_INVALID, got %v", err)
	}
}

func TestForbiddenClassifiedAsRateLimit(t *testing.T) {
	c, fake := newTestClient(t)
	fake.failNext(1, 403)

	_, _, err := c.GetText(t.Context(), "data/note.json")
	if models.CodeOf(err) != models.ErrRateLimit {
		t.Fatalf("expected RATE_LIMIT, got %v", err)
	}
	if !models.IsRetryable(err) {
		t.Fatal("rate limit errors should be retryable by the caller")
	}
}

func TestContentsURLEscaping(t *testing.T) {
	c, _ := newTestClient(t)

	u := c.contentsURL("data/memos/with space.json")
	if !strings.HasSuffix(u, "/repos/owner/repo/contents/data/memos/with%20space.json") {
		t.Fatalf("unexpected URL: %s", u)
	}
}
