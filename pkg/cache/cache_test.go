// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telekom/tracelens/pkg/enrich"
)

func testPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cache.json")
}

func TestCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := testPath(t)

	rec := enrich.Record{
		IP:             "8.8.8.8",
		PTR:            "dns.google",
		ASN:            "AS15169",
		Org:            "GOOGLE, US",
		CountryCode:    "US",
		Classification: enrich.ClassPublic,
		FetchedAt:      time.Now().Add(-time.Hour).Truncate(time.Second),
	}

	c := New(ctx, path)
	c.Put(rec.IP, rec)
	require.NoError(t, c.Flush(ctx))

	reopened := New(ctx, path)
	got, ok := reopened.Get("8.8.8.8")
	require.True(t, ok)
	assert.True(t, got.FetchedAt.Equal(rec.FetchedAt))

	got.FetchedAt, rec.FetchedAt = time.Time{}, time.Time{}
	assert.Equal(t, rec, got)
}

func TestCache_LoadDropsExpired(t *testing.T) {
	ctx := context.Background()
	path := testPath(t)

	f := file{
		Version: fileVersion,
		Entries: []enrich.Record{
			{IP: "8.8.8.8", Classification: enrich.ClassPublic, FetchedAt: time.Now().Add(-time.Hour)},
			{IP: "9.9.9.9", Classification: enrich.ClassPublic, FetchedAt: time.Now().Add(-8 * 24 * time.Hour)},
			{Classification: enrich.ClassPublic, FetchedAt: time.Now()},
		},
	}
	data, err := json.Marshal(f)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	c := New(ctx, path)
	_, ok := c.Get("8.8.8.8")
	assert.True(t, ok, "fresh entries survive a reload")
	_, ok = c.Get("9.9.9.9")
	assert.False(t, ok, "entries past their lifetime are dropped")
}

func TestCache_IgnoresCorruptFile(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "definitely { not json"},
		{name: "unknown version", data: `{"version": 99, "entries": []}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testPath(t)
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))

			c := New(ctx, path)
			_, ok := c.Get("8.8.8.8")
			assert.False(t, ok)
		})
	}
}

func TestCache_Put(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	c := New(ctx, testPath(t))
	c.now = func() time.Time { return now }

	t.Run("stamps missing fetch times", func(t *testing.T) {
		c.Put("1.1.1.1", enrich.Record{IP: "1.1.1.1", Classification: enrich.ClassPublic})
		got, ok := c.Get("1.1.1.1")
		require.True(t, ok)
		assert.True(t, got.FetchedAt.Equal(now))
	})

	t.Run("drops records past their lifetime", func(t *testing.T) {
		c.Put("2.2.2.2", enrich.Record{
			IP:        "2.2.2.2",
			FetchedAt: now.Add(-TTL),
		})
		_, ok := c.Get("2.2.2.2")
		assert.False(t, ok)
	})
}

func TestCache_Flush(t *testing.T) {
	ctx := context.Background()
	path := testPath(t)

	c := New(ctx, path)
	c.Put("9.9.9.9", enrich.Record{IP: "9.9.9.9", Classification: enrich.ClassPublic})
	c.Put("1.1.1.1", enrich.Record{IP: "1.1.1.1", Classification: enrich.ClassPublic})
	require.NoError(t, c.Flush(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var f file
	require.NoError(t, json.Unmarshal(data, &f))
	assert.Equal(t, fileVersion, f.Version)
	require.Len(t, f.Entries, 2)
	assert.Equal(t, "1.1.1.1", f.Entries[0].IP, "entries are sorted for stable diffs")
	assert.Equal(t, "9.9.9.9", f.Entries[1].IP)

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

func TestCache_FlushCreatesDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "dir", "cache.json")

	c := New(ctx, path)
	c.Put("1.1.1.1", enrich.Record{IP: "1.1.1.1", Classification: enrich.ClassPublic})
	require.NoError(t, c.Flush(ctx))

	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestCache_Clear(t *testing.T) {
	ctx := context.Background()
	path := testPath(t)

	c := New(ctx, path)
	c.Put("1.1.1.1", enrich.Record{IP: "1.1.1.1", Classification: enrich.ClassPublic})
	require.NoError(t, c.Flush(ctx))

	require.NoError(t, c.Clear())
	_, ok := c.Get("1.1.1.1")
	assert.False(t, ok)
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, c.Clear(), "clearing an empty cache is fine")
}

func TestDefaultPath(t *testing.T) {
	path, err := DefaultPath()
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, filepath.Join(".tracelens", "cache.json")))
}
