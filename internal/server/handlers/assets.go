package handlers

import (
	"context"
	"encoding/base64"

	"github.com/itaober/memogit/internal/models"
	"github.com/itaober/memogit/internal/storage"
)

// AssetHandler handles image upload requests.
type AssetHandler struct {
	assets *storage.AssetService
}

// NewAssetHandler creates a new asset handler.
func NewAssetHandler(assets *storage.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// UploadImage is one base64-encoded image in an upload batch.
type UploadImage struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType"`
}

// UploadAssetsRequest uploads one or more images owned by a memo ID.
type UploadAssetsRequest struct {
	ID     string        `json:"id"`
	Images []UploadImage `json:"images"`
}

// UploadAssetsResponse returns the stored paths in input order.
type UploadAssetsResponse struct {
	Paths []string `json:"paths"`
}

// Upload normalizes and stores a batch of images concurrently.
func (h *AssetHandler) Upload(ctx context.Context, req UploadAssetsRequest) (*UploadAssetsResponse, error) {
	if req.ID == "" {
		return nil, models.Validation("id is required")
	}
	if len(req.Images) == 0 {
		return nil, models.Validation("images cannot be empty")
	}

	items := make([]storage.UploadItem, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.ImageBase64)
		if err != nil {
			return nil, models.Validation("invalid base64 image data").Wrap(err)
		}
		items[i] = storage.UploadItem{Data: data, MimeType: img.MimeType}
	}

	paths, err := h.assets.UploadAll(ctx, items, req.ID)
	if err != nil {
		return nil, err
	}
	return &UploadAssetsResponse{Paths: paths}, nil
}
