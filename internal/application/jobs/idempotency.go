// Package jobs 提供生成任务生命周期管理
package jobs

import (
	"context"
	"sync"
	"time"
)

// IdempotencyIndex 幂等键索引
// 键按用户隔离，同一用户的 key 在保留窗口内重复注册时返回首次绑定的 jobID
type IdempotencyIndex interface {
	// Register 尝试绑定 (userID, key) -> jobID
	// 返回最终绑定的 jobID 以及本次是否为首次注册
	Register(ctx context.Context, userID, key, jobID string) (boundJobID string, created bool, err error)

	// Lookup 查询 (userID, key) 当前绑定的 jobID，未命中返回空串
	Lookup(ctx context.Context, userID, key string) (string, error)
}

// memoryIndex 进程内幂等索引，记录按保留窗口清理
type memoryIndex struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	retention time.Duration
	now       func() time.Time
}

type memoryEntry struct {
	jobID     string
	expiresAt time.Time
}

// NewMemoryIndex 创建进程内幂等索引
// sweepInterval > 0 时启动后台清理，ctx 取消后停止
func NewMemoryIndex(ctx context.Context, retention, sweepInterval time.Duration) IdempotencyIndex {
	idx := &memoryIndex{
		entries:   make(map[string]memoryEntry),
		retention: retention,
		now:       time.Now,
	}
	if sweepInterval > 0 {
		go idx.sweepLoop(ctx, sweepInterval)
	}
	return idx
}

// entryKey 存储键按用户隔离，不同用户的同名 key 互不可见
func entryKey(userID, key string) string {
	return userID + ":" + key
}

func (m *memoryIndex) Register(_ context.Context, userID, key, jobID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	k := entryKey(userID, key)
	if e, ok := m.entries[k]; ok && now.Before(e.expiresAt) {
		return e.jobID, false, nil
	}
	m.entries[k] = memoryEntry{jobID: jobID, expiresAt: now.Add(m.retention)}
	return jobID, true, nil
}

func (m *memoryIndex) Lookup(_ context.Context, userID, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.entries[entryKey(userID, key)]; ok && m.now().Before(e.expiresAt) {
		return e.jobID, nil
	}
	return "", nil
}

func (m *memoryIndex) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *memoryIndex) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for key, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, key)
		}
	}
}
