package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIndexRegisterBindsFirstJobID(t *testing.T) {
	idx := NewMemoryIndex(context.Background(), time.Minute, 0)
	ctx := context.Background()

	bound, created, err := idx.Register(ctx, "user-1", "key-1", "job-a")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "job-a", bound)

	// 窗口内重复注册返回首次绑定
	bound, created, err = idx.Register(ctx, "user-1", "key-1", "job-b")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "job-a", bound)
}

func TestMemoryIndexIsolatesUsers(t *testing.T) {
	idx := NewMemoryIndex(context.Background(), time.Minute, 0)
	ctx := context.Background()

	_, _, err := idx.Register(ctx, "user-1", "key-1", "job-a")
	require.NoError(t, err)

	// 另一个用户的同名 key 绑定自己的任务，不被先注册方占用
	bound, created, err := idx.Register(ctx, "user-2", "key-1", "job-b")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "job-b", bound)

	got, err := idx.Lookup(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", got)

	got, err = idx.Lookup(ctx, "user-2", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "job-b", got)
}

func TestMemoryIndexLookup(t *testing.T) {
	idx := NewMemoryIndex(context.Background(), time.Minute, 0)
	ctx := context.Background()

	got, err := idx.Lookup(ctx, "user-1", "missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, _, err = idx.Register(ctx, "user-1", "key-1", "job-a")
	require.NoError(t, err)

	got, err = idx.Lookup(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Equal(t, "job-a", got)
}

func TestMemoryIndexExpiresEntries(t *testing.T) {
	idx := NewMemoryIndex(context.Background(), time.Minute, 0).(*memoryIndex)
	ctx := context.Background()

	_, _, err := idx.Register(ctx, "user-1", "key-1", "job-a")
	require.NoError(t, err)

	idx.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	got, err := idx.Lookup(ctx, "user-1", "key-1")
	require.NoError(t, err)
	assert.Empty(t, got)

	// 过期后的 key 可以重新绑定
	bound, created, err := idx.Register(ctx, "user-1", "key-1", "job-b")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "job-b", bound)
}

func TestMemoryIndexSweepRemovesExpired(t *testing.T) {
	idx := NewMemoryIndex(context.Background(), time.Minute, 0).(*memoryIndex)
	ctx := context.Background()

	_, _, err := idx.Register(ctx, "user-1", "key-1", "job-a")
	require.NoError(t, err)

	idx.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	idx.sweep()

	idx.mu.Lock()
	defer idx.mu.Unlock()
	assert.Empty(t, idx.entries)
}
