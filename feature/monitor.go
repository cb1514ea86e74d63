package feature

import (
	"sort"
	"sync"
	"time"
)

// Monitor 记录特征对齐情况
type Monitor interface {
	RecordReconcile(report ReconcileReport)
}

// MonitorFunc 将普通函数适配为 Monitor
type MonitorFunc func(report ReconcileReport)

func (f MonitorFunc) RecordReconcile(report ReconcileReport) { f(report) }

// MultiMonitor 将一次记录分发给多个 Monitor
type MultiMonitor []Monitor

func (m MultiMonitor) RecordReconcile(report ReconcileReport) {
	for _, mon := range m {
		if mon != nil {
			mon.RecordReconcile(report)
		}
	}
}

// FeatureStats 单个特征的对齐统计
type FeatureStats struct {
	FeatureName  string    `json:"feature_name"`
	FilledCount  int64     `json:"filled_count"`  // 被填充默认值的次数
	DroppedCount int64     `json:"dropped_count"` // 被丢弃的次数
	LastSeenTime time.Time `json:"last_seen_time"`
}

// MonitorSnapshot 是 MemoryMonitor 的只读快照
type MonitorSnapshot struct {
	Reconciles int64          `json:"reconciles"`
	Features   []FeatureStats `json:"features"`
}

// MemoryMonitor 是内存特征监控实现，统计每个特征被补齐/丢弃的次数。
// 丢弃次数持续增长通常意味着编码器与模型的训练特征集已不一致。
// 生产环境可以同时接入 StatsD 等外部监控系统（见 MultiMonitor）。
type MemoryMonitor struct {
	mu           sync.RWMutex
	reconciles   int64
	featureStats map[string]*FeatureStats
}

// NewMemoryMonitor 创建内存特征监控
func NewMemoryMonitor() *MemoryMonitor {
	return &MemoryMonitor{
		featureStats: make(map[string]*FeatureStats),
	}
}

func (m *MemoryMonitor) RecordReconcile(report ReconcileReport) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.reconciles++
	for _, name := range report.Filled {
		m.statsLocked(name, now).FilledCount++
	}
	for _, name := range report.Dropped {
		m.statsLocked(name, now).DroppedCount++
	}
}

func (m *MemoryMonitor) statsLocked(name string, now time.Time) *FeatureStats {
	stats := m.featureStats[name]
	if stats == nil {
		stats = &FeatureStats{FeatureName: name}
		m.featureStats[name] = stats
	}
	stats.LastSeenTime = now
	return stats
}

// GetFeatureStats 返回单个特征统计的副本
func (m *MemoryMonitor) GetFeatureStats(name string) (FeatureStats, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats, ok := m.featureStats[name]
	if !ok {
		return FeatureStats{}, false
	}
	return *stats, true
}

// Snapshot 返回所有特征统计（按特征名排序）
func (m *MemoryMonitor) Snapshot() MonitorSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := MonitorSnapshot{
		Reconciles: m.reconciles,
		Features:   make([]FeatureStats, 0, len(m.featureStats)),
	}
	for _, s := range m.featureStats {
		out.Features = append(out.Features, *s)
	}
	sort.Slice(out.Features, func(i, j int) bool {
		return out.Features[i].FeatureName < out.Features[j].FeatureName
	})
	return out
}
