package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *BadgerCache {
	t.Helper()
	db, err := Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewBadgerCache(db)
}

func TestBadgerCache_PutGet(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	_, found, err := c.Get(ctx, "https://api.example/q?x=1", "search", "federal_bills")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, c.Put(ctx, "https://api.example/q?x=1", "search", "federal_bills", `{"results":[]}`))

	content, found, err := c.Get(ctx, "https://api.example/q?x=1", "search", "federal_bills")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, `{"results":[]}`, content)

	// the function is part of the key
	_, found, err = c.Get(ctx, "https://api.example/q?x=1", "find", "federal_bills")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestBadgerCache_PutOverwrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Put(ctx, "u", "search", "regulations", "old"))
	require.NoError(t, c.Put(ctx, "u", "search", "regulations", "new"))

	content, _, err := c.Get(ctx, "u", "search", "regulations")
	require.NoError(t, err)
	assert.Equal(t, "new", content)
}

func TestBadgerCache_ClearByType(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	require.NoError(t, c.Put(ctx, "u1", "search", "federal_bills", "a"))
	require.NoError(t, c.Put(ctx, "u2", "search", "federal_bills", "b"))
	require.NoError(t, c.Put(ctx, "u3", "search", "regulations", "c"))

	n, err := c.Clear(ctx, "federal_bills")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, found, err := c.Get(ctx, "u1", "search", "federal_bills")
	require.NoError(t, err)
	assert.False(t, found)

	content, found, err := c.Get(ctx, "u3", "search", "regulations")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c", content)

	n, err = c.Clear(ctx, "federal_bills")
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
