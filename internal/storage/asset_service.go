package storage

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/itaober/memogit/internal/ghstore"
	"github.com/itaober/memogit/internal/imgnorm"
	"github.com/itaober/memogit/internal/models"
)

// uploadConcurrency bounds the parallel fan-out of independent asset
// uploads for one memo.
const uploadConcurrency = 3

// supportedImageTypes lists the MIME types the normalizer can decode.
var supportedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/bmp":  true,
	"image/tiff": true,
}

// UploadItem is one raw image handed to UploadAll.
type UploadItem struct {
	Data     []byte
	MimeType string
}

// AssetService stores normalized images at deterministic paths and
// garbage-collects orphans on behalf of the memo service.
//
// Uploads for one memo fan out in parallel since assets are independent
// objects. Deletions run sequentially and paced, so a cleanup burst never
// trips the remote rate limit; losing an orphan to a failed delete is
// accepted in exchange for never blocking a memo mutation.
type AssetService struct {
	client *ghstore.Client
	cfg    Config
	pace   *rate.Limiter
}

// NewAssetService creates an asset service.
func NewAssetService(client *ghstore.Client, cfg Config) *AssetService {
	pace := rate.NewLimiter(rate.Inf, 1)
	if cfg.DeletesPerSecond > 0 {
		pace = rate.NewLimiter(rate.Limit(cfg.DeletesPerSecond), 1)
	}
	return &AssetService{client: client, cfg: cfg, pace: pace}
}

// Upload validates, normalizes, and stores one image owned by ownerID.
// The stored path is {assetDir}/{ownerID}_{4-char suffix}.webp; writing to
// an existing path overwrites it unconditionally.
func (s *AssetService) Upload(ctx context.Context, data []byte, mimeType, ownerID string) (*models.Asset, error) {
	if ownerID == "" {
		return nil, models.Validation("owner id cannot be empty")
	}
	if len(data) == 0 {
		return nil, models.Validation("image data cannot be empty")
	}
	if !supportedImageTypes[mimeType] {
		return nil, models.Validation(fmt.Sprintf("unsupported image type: %s", mimeType))
	}
	if int64(len(data)) > s.cfg.MaxImageBytes {
		return nil, models.Validation(fmt.Sprintf("image size exceeds limit (max %d MiB)", s.cfg.MaxImageBytes/1024/1024))
	}

	normalized, err := imgnorm.Normalize(data, imgnorm.Options{
		BudgetBytes:  s.cfg.ImageBudgetBytes,
		MaxDimension: s.cfg.MaxImageDimension,
	})
	if err != nil {
		return nil, fmt.Errorf("normalize image for %s: %w", ownerID, err)
	}
	if normalized.BestEffort {
		slog.WarnContext(ctx, "Image exceeds byte budget after normalization",
			"owner", ownerID, "size", len(normalized.Data), "budget", s.cfg.ImageBudgetBytes)
	}

	path := fmt.Sprintf("%s/%s_%s.webp", s.cfg.AssetDir, ownerID, randSuffix(4))
	if _, err := s.client.Put(ctx, path, normalized.Data, "docs: add image "+path, ""); err != nil {
		return nil, fmt.Errorf("upload image %s: %w", path, err)
	}
	return &models.Asset{
		Path:     path,
		MimeType: "image/webp",
		Size:     int64(len(normalized.Data)),
	}, nil
}

// UploadAll uploads several images for one memo concurrently, preserving
// input order in the returned paths. The first failure cancels the rest.
func (s *AssetService) UploadAll(ctx context.Context, items []UploadItem, ownerID string) ([]string, error) {
	paths := make([]string, len(items))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(uploadConcurrency)
	for i, item := range items {
		g.Go(func() error {
			asset, err := s.Upload(ctx, item.Data, item.MimeType, ownerID)
			if err != nil {
				return err
			}
			paths[i] = asset.Path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

// DeleteMany removes assets sequentially, best-effort: a failed path is
// logged and skipped. It never reports an error to the caller.
func (s *AssetService) DeleteMany(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := s.pace.Wait(ctx); err != nil {
			return
		}
		if _, err := s.client.DeleteObject(ctx, path, "docs: delete image "+path, ""); err != nil {
			slog.WarnContext(ctx, "Failed to delete image", "path", path, "err", err)
		}
	}
}
