package store

import (
	"context"
	"sync"
	"time"

	"github.com/rushteam/imputekit/core"
)

// MemoryStore 是内存实现的 Store，用于单实例部署的预测缓存及测试。
// 支持 TTL（过期时间）与最大条目数，进程重启后数据丢失。
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]*entry
	maxEntries int
	clean      *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

type entry struct {
	value []byte
	ttl   *time.Time
}

// NewMemoryStore 创建内存存储；maxEntries <= 0 表示不限制条目数
func NewMemoryStore(maxEntries ...int) *MemoryStore {
	ms := &MemoryStore{
		data:  make(map[string]*entry),
		clean: time.NewTicker(10 * time.Second),
		done:  make(chan struct{}),
	}
	if len(maxEntries) > 0 && maxEntries[0] > 0 {
		ms.maxEntries = maxEntries[0]
	}
	go ms.cleanup()
	return ms
}

func (m *MemoryStore) Name() string { return "memory" }

func (m *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.data[key]
	if !ok {
		return nil, core.ErrStoreNotFound
	}
	if e.ttl != nil && time.Now().After(*e.ttl) {
		return nil, core.ErrStoreNotFound
	}
	return append([]byte(nil), e.value...), nil
}

func (m *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.data[key]; !exists && m.maxEntries > 0 && len(m.data) >= m.maxEntries {
		m.evictLocked()
	}

	e := &entry{value: append([]byte(nil), value...)}
	if len(ttl) > 0 && ttl[0] > 0 {
		expire := time.Now().Add(time.Duration(ttl[0]) * time.Second)
		e.ttl = &expire
	}
	m.data[key] = e
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.data, key)
	return nil
}

// Len 返回当前条目数（包含尚未清理的过期条目）
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		m.clean.Stop()
		close(m.done)
	})
	return nil
}

// evictLocked 先清理过期条目，仍然满时随机淘汰一个（map 遍历顺序不确定）
func (m *MemoryStore) evictLocked() {
	m.removeExpiredLocked(time.Now())
	if len(m.data) < m.maxEntries {
		return
	}
	for k := range m.data {
		delete(m.data, k)
		return
	}
}

func (m *MemoryStore) removeExpiredLocked(now time.Time) {
	for k, e := range m.data {
		if e.ttl != nil && now.After(*e.ttl) {
			delete(m.data, k)
		}
	}
}

func (m *MemoryStore) cleanup() {
	for {
		select {
		case <-m.done:
			return
		case now := <-m.clean.C:
			m.mu.Lock()
			m.removeExpiredLocked(now)
			m.mu.Unlock()
		}
	}
}

var _ core.Store = (*MemoryStore)(nil)
