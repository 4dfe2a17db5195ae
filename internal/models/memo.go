// Package models defines the core data structures used throughout the application.
package models

import "slices"

// Memo is a single short note stored inside a month shard.
//
// CreatedTime is immutable after creation and determines which shard the
// memo lives in. UpdatedTime is empty until the memo is first updated.
// Images holds asset paths in display order, without duplicates.
type Memo struct {
	ID          string   `json:"id"`
	Content     string   `json:"content"`
	Images      []string `json:"images"`
	CreatedTime string   `json:"createdTime"`
	UpdatedTime string   `json:"updatedTime,omitempty"`
}

// MemoList is the wire format of one shard: a JSON array of memos.
type MemoList []Memo

// Asset describes an uploaded binary object.
type Asset struct {
	Path     string `json:"path"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// DedupeImages returns paths with duplicates removed, preserving order.
func DedupeImages(paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// DiffImages returns the elements of old that are absent from updated.
// Order follows old; the comparison is set-like.
func DiffImages(old, updated []string) []string {
	var removed []string
	for _, p := range old {
		if !slices.Contains(updated, p) {
			removed = append(removed, p)
		}
	}
	return removed
}
