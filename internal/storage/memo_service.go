package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/itaober/memogit/internal/ghstore"
	"github.com/itaober/memogit/internal/models"
)

var errMemoNotFound = models.NotFound("memo")

// MemoService implements memo CRUD over month shards.
//
// Every operation is read whole shard, mutate in memory, write whole shard.
// Writes carry no version precondition: the shard is replaced over whatever
// blob is current, so two concurrent writers to the same shard resolve as
// last-write-wins. The assumed usage pattern is a single active writer per
// shard.
type MemoService struct {
	client *ghstore.Client
	clock  *Clock
	cfg    Config
	assets *AssetService
}

// NewMemoService creates a memo service. assets may be nil, in which case
// the cleanup variants skip orphan deletion.
func NewMemoService(client *ghstore.Client, clock *Clock, cfg Config, assets *AssetService) *MemoService {
	return &MemoService{client: client, clock: clock, cfg: cfg, assets: assets}
}

// shardPath builds the repository path of a month shard.
func (s *MemoService) shardPath(month string) string {
	return fmt.Sprintf("%s/%s%s.json", s.cfg.MemosDir, s.cfg.MemosFilePrefix, month)
}

// newMemoID builds a server-assigned memo ID from the creation instant.
func (s *MemoService) newMemoID(t time.Time) string {
	return fmt.Sprintf("memo_%s_%s", t.Format(idTimeFormat), randSuffix(4))
}

// readShard loads and parses one shard, consulting the request-scoped read
// cache when present. An absent shard is a valid empty list, not an error.
// The returned list is sorted descending by creation time.
func (s *MemoService) readShard(ctx context.Context, month string) (models.MemoList, string, error) {
	path := s.shardPath(month)
	cache := ReadCacheFrom(ctx)
	if cache != nil {
		if memos, version, ok := cache.get(path); ok {
			return memos, version, nil
		}
	}

	text, version, err := s.client.GetText(ctx, path)
	if models.IsNotFound(err) {
		return models.MemoList{}, "", nil
	}
	if err != nil {
		return nil, "", err
	}

	var list models.MemoList
	if err := json.Unmarshal([]byte(text), &list); err != nil {
		return nil, "", fmt.Errorf("parse shard %s: %w", path, err)
	}
	sortMemos(list)
	if cache != nil {
		cache.put(path, list, version)
	}
	return list, version, nil
}

// writeShard replaces one shard wholesale and invalidates the cached read.
func (s *MemoService) writeShard(ctx context.Context, month string, list models.MemoList) error {
	path := s.shardPath(month)
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("encode shard %s: %w", path, err)
	}
	data = append(data, '\n')
	if _, err := s.client.Put(ctx, path, data, "docs: update "+path, ""); err != nil {
		return err
	}
	if cache := ReadCacheFrom(ctx); cache != nil {
		cache.invalidate(path)
	}
	return nil
}

// validateContent applies the shared create/update input rules.
func (s *MemoService) validateContent(content string, images []string) error {
	if content == "" && len(images) == 0 {
		return models.Validation("content or images cannot be empty")
	}
	if len(content) > s.cfg.MaxContentLength {
		return models.Validation(fmt.Sprintf("content too long (max %d characters)", s.cfg.MaxContentLength))
	}
	return nil
}

// Create assigns an ID and creation time server-side and prepends the new
// memo to the current month's shard. Client-supplied creation timestamps
// are never accepted, so shard membership cannot be spoofed.
func (s *MemoService) Create(ctx context.Context, content string, images []string) (*models.Memo, error) {
	content = strings.TrimSpace(content)
	images = models.DedupeImages(images)
	if err := s.validateContent(content, images); err != nil {
		return nil, err
	}
	if images == nil {
		images = []string{}
	}

	now := s.clock.Now()
	month := s.clock.MonthKeyAt(now)
	memo := models.Memo{
		ID:          s.newMemoID(now),
		Content:     content,
		Images:      images,
		CreatedTime: s.clock.Format(now),
	}

	list, _, err := s.readShard(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("create memo: %w", err)
	}
	list = append(models.MemoList{memo}, list...)
	if err := s.writeShard(ctx, month, list); err != nil {
		return nil, fmt.Errorf("create memo %s: %w", memo.ID, err)
	}
	return &memo, nil
}

// Update replaces a memo's content and image set in place. The shard is
// located from the immutable createdTime. It returns the updated memo and
// the image paths the update orphaned (old − new, set difference).
func (s *MemoService) Update(ctx context.Context, id, createdTime, content string, images []string) (*models.Memo, []string, error) {
	month, err := s.clock.MonthKey(createdTime)
	if err != nil {
		return nil, nil, fmt.Errorf("update memo %s: %w", id, err)
	}

	list, _, err := s.readShard(ctx, month)
	if err != nil {
		return nil, nil, fmt.Errorf("update memo %s: %w", id, err)
	}
	idx := slices.IndexFunc(list, func(m models.Memo) bool { return m.ID == id })
	if idx < 0 {
		return nil, nil, fmt.Errorf("update memo %s: %w", id, errMemoNotFound)
	}

	old := list[idx]
	newImages := old.Images
	if images != nil {
		newImages = models.DedupeImages(images)
		if newImages == nil {
			newImages = []string{}
		}
	}
	content = strings.TrimSpace(content)
	if err := s.validateContent(content, newImages); err != nil {
		return nil, nil, fmt.Errorf("update memo %s: %w", id, err)
	}

	removed := models.DiffImages(old.Images, newImages)

	updated := old
	updated.Content = content
	updated.Images = newImages
	updated.UpdatedTime = s.clock.Format(s.clock.Now())
	list[idx] = updated

	if err := s.writeShard(ctx, month, list); err != nil {
		return nil, nil, fmt.Errorf("update memo %s: %w", id, err)
	}
	return &updated, removed, nil
}

// Delete filters a memo out of its shard and returns the removed memo so
// the caller can cascade asset cleanup.
func (s *MemoService) Delete(ctx context.Context, id, createdTime string) (*models.Memo, error) {
	month, err := s.clock.MonthKey(createdTime)
	if err != nil {
		return nil, fmt.Errorf("delete memo %s: %w", id, err)
	}

	list, _, err := s.readShard(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("delete memo %s: %w", id, err)
	}
	idx := slices.IndexFunc(list, func(m models.Memo) bool { return m.ID == id })
	if idx < 0 {
		return nil, fmt.Errorf("delete memo %s: %w", id, errMemoNotFound)
	}

	removed := list[idx]
	list = slices.Delete(list, idx, idx+1)
	if err := s.writeShard(ctx, month, list); err != nil {
		return nil, fmt.Errorf("delete memo %s: %w", id, err)
	}
	return &removed, nil
}

// UpdateWithCleanup updates a memo and hands orphaned images to the asset
// store. Cleanup is best-effort and never fails the update.
func (s *MemoService) UpdateWithCleanup(ctx context.Context, id, createdTime, content string, images []string) (*models.Memo, []string, error) {
	memo, removed, err := s.Update(ctx, id, createdTime, content, images)
	if err != nil {
		return nil, nil, err
	}
	if len(removed) > 0 && s.assets != nil {
		s.assets.DeleteMany(ctx, removed)
	}
	return memo, removed, nil
}

// DeleteWithCleanup deletes a memo and hands its images to the asset store.
// Cleanup is best-effort and never fails the delete.
func (s *MemoService) DeleteWithCleanup(ctx context.Context, id, createdTime string) (*models.Memo, error) {
	memo, err := s.Delete(ctx, id, createdTime)
	if err != nil {
		return nil, err
	}
	if len(memo.Images) > 0 && s.assets != nil {
		s.assets.DeleteMany(ctx, memo.Images)
	}
	return memo, nil
}

// GetByMonth returns one shard's memos, sorted descending by creation
// time. An invalid or absent month yields an empty list, matching the
// read path's lenient contract.
func (s *MemoService) GetByMonth(ctx context.Context, month string) (models.MemoList, error) {
	if !monthKeyRe.MatchString(month) {
		return models.MemoList{}, nil
	}
	list, _, err := s.readShard(ctx, month)
	if err != nil {
		return nil, fmt.Errorf("get memos for %s: %w", month, err)
	}
	return list, nil
}

// GetByMonths flattens several shards, newest month first, de-duplicating
// by memo ID across shard boundaries (repeated "load more" windows can
// overlap).
func (s *MemoService) GetByMonths(ctx context.Context, months []string) (models.MemoList, error) {
	var out models.MemoList
	seen := make(map[string]bool)
	for _, month := range months {
		list, err := s.GetByMonth(ctx, month)
		if err != nil {
			slog.WarnContext(ctx, "Failed to load shard", "month", month, "err", err)
			continue
		}
		for _, m := range list {
			if !seen[m.ID] {
				seen[m.ID] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}

// sortMemos orders a shard descending by creation time. Timestamps are
// zero-padded so lexicographic order equals chronological order.
func sortMemos(list models.MemoList) {
	slices.SortStableFunc(list, func(a, b models.Memo) int {
		return strings.Compare(b.CreatedTime, a.CreatedTime)
	})
}
