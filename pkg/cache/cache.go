// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

// Package cache persists enrichment records between runs, so repeated
// traces of the same path do not hammer the lookup providers.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/telekom/tracelens/internal/logger"
	"github.com/telekom/tracelens/pkg/enrich"
)

// TTL is how long a persisted record stays valid.
const TTL = 7 * 24 * time.Hour

// fileVersion guards the on-disk layout.
const fileVersion = 1

var _ enrich.Store = (*Cache)(nil)

// Cache is a file backed enrichment store. Records live in memory
// during a run and are persisted with Flush.
type Cache struct {
	path  string
	store *gocache.Cache
	now   func() time.Time
}

type file struct {
	Version int             `json:"version"`
	Entries []enrich.Record `json:"entries"`
}

// New creates a cache backed by the given file. A missing or corrupt
// file yields an empty cache, stale entries are dropped on load.
func New(ctx context.Context, path string) *Cache {
	c := &Cache{
		path:  path,
		store: gocache.New(TTL, 0),
		now:   time.Now,
	}
	c.load(ctx)
	return c
}

// DefaultPath returns the cache location under the user's home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate home directory: %w", err)
	}
	return filepath.Join(home, ".tracelens", "cache.json"), nil
}

func (c *Cache) load(ctx context.Context) {
	log := logger.FromContext(ctx)
	data, err := os.ReadFile(c.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn("Failed to read cache file", "path", c.path, "error", err)
		}
		return
	}

	var f file
	if err := json.Unmarshal(data, &f); err != nil || f.Version != fileVersion {
		log.Warn("Discarding corrupt cache file", "path", c.path)
		return
	}

	for _, rec := range f.Entries {
		if rec.IP == "" {
			continue
		}
		c.set(rec)
	}
}

// set stores a record for the remainder of its lifetime.
func (c *Cache) set(rec enrich.Record) {
	ttl := TTL - c.now().Sub(rec.FetchedAt)
	if ttl <= 0 {
		return
	}
	c.store.Set(rec.IP, rec, ttl)
}

// Get implements enrich.Store.
func (c *Cache) Get(ip string) (enrich.Record, bool) {
	v, ok := c.store.Get(ip)
	if !ok {
		return enrich.Record{}, false
	}
	return v.(enrich.Record), true
}

// Put implements enrich.Store.
func (c *Cache) Put(ip string, rec enrich.Record) {
	rec.IP = ip
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = c.now()
	}
	c.set(rec)
}

// Flush persists all live records. The file is replaced atomically so
// an interrupted run cannot leave a half written cache behind.
func (c *Cache) Flush(ctx context.Context) error {
	f := file{Version: fileVersion}
	for _, item := range c.store.Items() {
		if item.Expired() {
			continue
		}
		f.Entries = append(f.Entries, item.Object.(enrich.Record))
	}
	slices.SortFunc(f.Entries, func(a, b enrich.Record) int {
		return strings.Compare(a.IP, b.IP)
	})

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err = os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(c.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to write cache: %w", err)
	}
	if err = os.Rename(tmp.Name(), c.path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", c.path, err)
	}

	logger.FromContext(ctx).Debug("Persisted enrichment cache", "path", c.path, "entries", len(f.Entries))
	return nil
}

// Clear drops all records and removes the cache file.
func (c *Cache) Clear() error {
	c.store.Flush()
	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", c.path, err)
	}
	return nil
}
