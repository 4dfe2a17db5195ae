// Package handlers implements the HTTP API handlers.
package handlers

import (
	"context"

	"github.com/itaober/memogit/internal/models"
	"github.com/itaober/memogit/internal/storage"
)

// defaultShardWindow is how many of the newest shards the first page loads.
const defaultShardWindow = 2

// MemoHandler handles memo-related HTTP requests.
type MemoHandler struct {
	memos *storage.MemoService
	index *storage.IndexService
}

// NewMemoHandler creates a new memo handler.
func NewMemoHandler(memos *storage.MemoService, index *storage.IndexService) *MemoHandler {
	return &MemoHandler{memos: memos, index: index}
}

// ListMemosRequest selects a window over the descending shard index.
// End and Limit clamp to the index bounds rather than erroring.
type ListMemosRequest struct {
	End   string `query:"end"`
	Limit int    `query:"limit"`
}

// ListMemosResponse is one page of memos plus the shard keys it covers.
type ListMemosResponse struct {
	Memos  models.MemoList `json:"memos"`
	Months []string        `json:"months"`
}

// List returns a page of memos, newest first, de-duplicated across shard
// boundaries.
func (h *MemoHandler) List(ctx context.Context, req ListMemosRequest) (*ListMemosResponse, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = defaultShardWindow
	}
	months, err := h.index.Paginate(ctx, req.End, limit)
	if err != nil {
		return nil, err
	}
	memos, err := h.memos.GetByMonths(ctx, months)
	if err != nil {
		return nil, err
	}
	if memos == nil {
		memos = models.MemoList{}
	}
	return &ListMemosResponse{Memos: memos, Months: months}, nil
}

// IndexRequest has no parameters.
type IndexRequest struct{}

// IndexResponse lists all shard keys, descending.
type IndexResponse struct {
	Months []string `json:"months"`
}

// Index returns the full shard index.
func (h *MemoHandler) Index(ctx context.Context, _ IndexRequest) (*IndexResponse, error) {
	months, err := h.index.List(ctx)
	if err != nil {
		return nil, err
	}
	return &IndexResponse{Months: months}, nil
}

// CreateMemoRequest carries the client-controlled memo fields. The ID and
// creation time are assigned server-side.
type CreateMemoRequest struct {
	Content string   `json:"content"`
	Images  []string `json:"images"`
}

// Create creates a memo in the current month's shard.
func (h *MemoHandler) Create(ctx context.Context, req CreateMemoRequest) (*models.Memo, error) {
	return h.memos.Create(ctx, req.Content, req.Images)
}

// UpdateMemoRequest carries an in-place memo update. CreatedTime locates
// the shard and is never changed by the update.
type UpdateMemoRequest struct {
	ID          string   `path:"id"`
	CreatedTime string   `json:"createdTime"`
	Content     string   `json:"content"`
	Images      []string `json:"images"`
}

// UpdateMemoResponse returns the updated memo and the asset paths the
// update orphaned (already handed to cleanup, reported for the client).
type UpdateMemoResponse struct {
	Memo          *models.Memo `json:"memo"`
	RemovedImages []string     `json:"removedImages"`
}

// Update updates a memo and garbage-collects orphaned images.
func (h *MemoHandler) Update(ctx context.Context, req UpdateMemoRequest) (*UpdateMemoResponse, error) {
	memo, removed, err := h.memos.UpdateWithCleanup(ctx, req.ID, req.CreatedTime, req.Content, req.Images)
	if err != nil {
		return nil, err
	}
	if removed == nil {
		removed = []string{}
	}
	return &UpdateMemoResponse{Memo: memo, RemovedImages: removed}, nil
}

// DeleteMemoRequest locates a memo by ID and immutable creation time.
type DeleteMemoRequest struct {
	ID          string `path:"id"`
	CreatedTime string `query:"createdTime"`
}

// Delete removes a memo and garbage-collects its images.
func (h *MemoHandler) Delete(ctx context.Context, req DeleteMemoRequest) (*models.Memo, error) {
	return h.memos.DeleteWithCleanup(ctx, req.ID, req.CreatedTime)
}
