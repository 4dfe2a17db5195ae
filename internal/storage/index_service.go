package storage

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/itaober/memogit/internal/ghstore"
)

// monthKeyRe is the strict shard key pattern.
var monthKeyRe = regexp.MustCompile(`^\d{6}$`)

// IndexService derives the shard index from the remote directory listing.
// The index is never persisted separately, so it is eventually consistent
// with the shard objects themselves.
type IndexService struct {
	client *ghstore.Client
	cfg    Config
}

// NewIndexService creates an index service.
func NewIndexService(client *ghstore.Client, cfg Config) *IndexService {
	return &IndexService{client: client, cfg: cfg}
}

// List returns the existing shard keys, strictly descending. Entries that
// do not match the shard filename convention are skipped silently.
func (s *IndexService) List(ctx context.Context) ([]string, error) {
	entries, err := s.client.ListDir(ctx, s.cfg.MemosDir)
	if err != nil {
		return nil, fmt.Errorf("list shard index: %w", err)
	}

	var months []string
	for _, e := range entries {
		if e.Type != "file" {
			continue
		}
		if month, ok := s.parseMonthFromName(e.Name); ok {
			months = append(months, month)
		}
	}
	slices.SortFunc(months, func(a, b string) int { return strings.Compare(b, a) })
	return months, nil
}

// Paginate returns a window of shard keys starting at end (inclusive),
// clamped to the index bounds. An unknown end starts at the first key at
// or after it in descending order; out-of-range values clamp rather than
// error.
func (s *IndexService) Paginate(ctx context.Context, end string, limit int) ([]string, error) {
	keys, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || len(keys) == 0 {
		return nil, nil
	}

	start := 0
	if end != "" {
		start = len(keys)
		for i, k := range keys {
			if k <= end {
				start = i
				break
			}
		}
	}
	stop := min(start+limit, len(keys))
	return keys[start:stop], nil
}

// parseMonthFromName extracts the shard key from a shard filename,
// validating against the strict 6-digit pattern.
func (s *IndexService) parseMonthFromName(name string) (string, bool) {
	month, ok := strings.CutPrefix(name, s.cfg.MemosFilePrefix)
	if !ok {
		return "", false
	}
	month, ok = strings.CutSuffix(month, ".json")
	if !ok || !monthKeyRe.MatchString(month) {
		return "", false
	}
	return month, true
}
