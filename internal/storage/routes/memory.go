// Copyright 2026 fanjia1024
// In-memory route store (for development and tests)

package routes

import (
	"context"
	"sort"
	"sync"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
)

type memoryStore struct {
	mu     sync.RWMutex
	routes map[train.ID]train.Route
}

// NewMemoryStore 创建内存 route store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		memoryStore: memoryStore{routes: make(map[train.ID]train.Route)},
	}
}

// MemoryStore 内存实现，额外提供 Put 供测试与本地环境造数
type MemoryStore struct {
	memoryStore
}

// Put 写入一条路由（生产中由构建管线直接写 Vault）
func (m *MemoryStore) Put(route train.Route) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes[route.Suffix] = route
}

func (m *memoryStore) Get(ctx context.Context, id train.ID) (train.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	route, ok := m.routes[id]
	if !ok {
		return train.Route{}, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "route %s", id)
	}
	return route, nil
}

func (m *memoryStore) List(ctx context.Context) ([]train.Route, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]train.Route, 0, len(m.routes))
	for _, route := range m.routes {
		result = append(result, route)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Suffix < result[j].Suffix })
	return result, nil
}

func (m *memoryStore) Delete(ctx context.Context, id train.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.routes, id)
	return nil
}
