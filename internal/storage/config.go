// Package storage implements the memo document store over a GitHub-backed
// object store.
//
// Memos are sharded into one JSON document per calendar month. Every
// mutation reads the whole shard, rewrites it in memory, and replaces it
// wholesale; the consistency unit is the shard, not the record. Asset
// uploads and orphan cleanup are coupled to memo mutations through the
// AssetService.
package storage

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the storage layout and limits.
type Config struct {
	// Timezone is the fixed zone used to derive shard keys and format
	// timestamps, so the same instant maps to the same shard on any host.
	Timezone string `json:"timezone"`

	// MemosDir is the repository directory holding the month shards.
	MemosDir string `json:"memos_dir"`

	// MemosFilePrefix prefixes each shard filename: {prefix}{YYYYMM}.json.
	MemosFilePrefix string `json:"memos_file_prefix"`

	// AssetDir is the repository directory holding uploaded images.
	AssetDir string `json:"asset_dir"`

	// MaxContentLength caps memo content length in characters.
	MaxContentLength int `json:"max_content_length"`

	// MaxImageBytes caps the accepted size of a raw upload.
	MaxImageBytes int64 `json:"max_image_bytes"`

	// ImageBudgetBytes is the byte budget the normalizer shrinks images to.
	ImageBudgetBytes int64 `json:"image_budget_bytes"`

	// MaxImageDimension bounds the longest image edge after normalization.
	MaxImageDimension int `json:"max_image_dimension"`

	// DeletesPerSecond paces sequential asset cleanup. 0 means unpaced.
	DeletesPerSecond float64 `json:"deletes_per_second"`
}

// DefaultConfig returns the layout the original deployment uses.
func DefaultConfig() Config {
	return Config{
		Timezone:          "Asia/Shanghai",
		MemosDir:          "data/memos",
		MemosFilePrefix:   "memos-",
		AssetDir:          "assets/memos",
		MaxContentLength:  10000,
		MaxImageBytes:     10 * 1024 * 1024,
		ImageBudgetBytes:  338 * 1024 * 1024 / 100, // 3.38 MiB; fits a 4.5 MiB base64 payload
		MaxImageDimension: 1920,
		DeletesPerSecond:  2,
	}
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.MemosDir == "" {
		return errors.New("memos_dir is required")
	}
	if c.MemosFilePrefix == "" {
		return errors.New("memos_file_prefix is required")
	}
	if c.AssetDir == "" {
		return errors.New("asset_dir is required")
	}
	if c.MaxContentLength <= 0 {
		return errors.New("max_content_length must be positive")
	}
	if c.MaxImageBytes <= 0 || c.ImageBudgetBytes <= 0 {
		return errors.New("image size limits must be positive")
	}
	if c.MaxImageDimension <= 0 {
		return errors.New("max_image_dimension must be positive")
	}
	if c.DeletesPerSecond < 0 {
		return errors.New("deletes_per_second must be non-negative")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}
