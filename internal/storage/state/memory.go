// Copyright 2026 fanjia1024
// In-memory state store (for development and tests)

package state

import (
	"context"
	"fmt"
	"sync"

	"train-router/internal/train"
	pkgerrors "train-router/pkg/errors"
)

type trainState struct {
	stations []train.StationID
	route    []train.StationID
	typ      train.RouteType
	status   train.Status
	current  train.ProjectRef
	epoch    int
	epochs   int
}

type memoryStore struct {
	mu     sync.Mutex
	trains map[train.ID]*trainState
}

// NewMemoryStore 创建内存状态存储，语义与 Redis 实现一致
func NewMemoryStore() Store {
	return &memoryStore{trains: make(map[train.ID]*trainState)}
}

func (m *memoryStore) Exists(ctx context.Context, id train.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.trains[id]
	return ok, nil
}

func (m *memoryStore) Register(ctx context.Context, route train.Route) error {
	if err := route.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.trains[route.Suffix]; ok {
		return nil
	}
	st := &trainState{
		stations: append([]train.StationID(nil), route.Stations...),
		route:    append([]train.StationID(nil), route.Stations...),
		typ:      route.Type(),
		status:   train.StatusInitialized,
		current:  train.Incoming,
	}
	if route.Periodic {
		st.epochs = route.Epochs
	}
	m.trains[route.Suffix] = st
	return nil
}

func (m *memoryStore) get(id train.ID) (*trainState, error) {
	st, ok := m.trains[id]
	if !ok {
		return nil, pkgerrors.Wrapf(pkgerrors.ErrNotFound, "train %s", id)
	}
	return st, nil
}

func (m *memoryStore) Status(ctx context.Context, id train.ID) (train.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return "", err
	}
	return st.status, nil
}

func (m *memoryStore) SetStatus(ctx context.Context, id train.ID, status train.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.status = status
	return nil
}

func (m *memoryStore) Type(ctx context.Context, id train.ID) (train.RouteType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return "", err
	}
	return st.typ, nil
}

func (m *memoryStore) CurrentStation(ctx context.Context, id train.ID) (train.ProjectRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return "", err
	}
	return st.current, nil
}

func (m *memoryStore) SetCurrentStation(ctx context.Context, id train.ID, ref train.ProjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return err
	}
	st.current = ref
	return nil
}

func (m *memoryStore) PeekNext(ctx context.Context, id train.ID) (train.ProjectRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return "", err
	}
	if len(st.route) > 0 {
		return train.StationRef(st.route[0]), nil
	}
	if st.typ == train.RoutePeriodic && st.epoch < st.epochs {
		return train.StationRef(st.stations[0]), nil
	}
	return train.Outgoing, nil
}

func (m *memoryStore) AdvanceTo(ctx context.Context, id train.ID, ref train.ProjectRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, err := m.get(id)
	if err != nil {
		return err
	}
	if ref == train.Outgoing {
		st.current = ref
		return nil
	}
	if len(st.route) == 0 {
		if st.typ != train.RoutePeriodic || st.epoch >= st.epochs {
			return fmt.Errorf("train %s: route exhausted", id)
		}
		st.epoch++
		st.route = append([]train.StationID(nil), st.stations...)
	}
	if train.StationRef(st.route[0]) != ref {
		return fmt.Errorf("train %s: advance conflict: head %s, target %s", id, st.route[0], ref)
	}
	st.route = st.route[1:]
	st.current = ref
	return nil
}

func (m *memoryStore) Epoch(ctx context.Context, id train.ID) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.trains[id]
	if !ok {
		return 0, 0, nil
	}
	return st.epoch, st.epochs, nil
}

func (m *memoryStore) Remove(ctx context.Context, id train.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.trains, id)
	return nil
}
