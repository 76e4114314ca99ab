package store

import (
	"context"
	"sort"
	"sync"
)

type InMemoryStore struct {
	sets      map[string]map[int64][]byte
	sequences map[string]int64
	mutex     sync.RWMutex
}

var _ Store = (*InMemoryStore)(nil)

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		sets:      make(map[string]map[int64][]byte),
		sequences: make(map[string]int64),
	}
}

func (s *InMemoryStore) NextKey(ctx context.Context, set string) (int64, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.sequences[set]++

	return s.sequences[set], nil
}

func (s *InMemoryStore) Put(ctx context.Context, set string, key int64, data []byte) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	entities, ok := s.sets[set]
	if !ok {
		entities = make(map[int64][]byte)
		s.sets[set] = entities
	}

	entities[key] = append([]byte(nil), data...)

	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, set string, key int64) ([]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	data, ok := s.sets[set][key]
	if !ok {
		return nil, ErrNotFound
	}

	return data, nil
}

func (s *InMemoryStore) List(ctx context.Context, set string) ([][]byte, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entities := s.sets[set]

	keys := make([]int64, 0, len(entities))
	for key := range entities {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	list := make([][]byte, 0, len(keys))
	for _, key := range keys {
		list = append(list, entities[key])
	}

	return list, nil
}

func (s *InMemoryStore) Delete(ctx context.Context, set string, key int64) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.sets[set][key]; !ok {
		return ErrNotFound
	}

	delete(s.sets[set], key)

	return nil
}

func (s *InMemoryStore) Healthcheck(ctx context.Context) error {
	return nil
}
