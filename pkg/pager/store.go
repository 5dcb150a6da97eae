package pager

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"relaybot/pkg/config"
	"relaybot/pkg/logx"
)

// Store maps delivered messages to their paging state. Implementations are safe for
// concurrent use and bounded: the least recently used entries are evicted first.
// Get returns a copy; callers mutate it and Put it back.
type Store interface {
	Get(ctx context.Context, id MessageID) (*State, bool, error)
	Put(ctx context.Context, id MessageID, st *State) error
	Evict(ctx context.Context, id MessageID) error
	Len(ctx context.Context) (int, error)
	Close() error
}

// Open creates the store selected by the configuration.
func Open(ctx context.Context, cfg config.PagerConfig) (Store, error) {
	switch cfg.Store {
	case config.PagerStoreMemory, "":
		return NewMemoryStore(cfg.Capacity)
	case config.PagerStoreSQLite:
		return OpenSQLiteStore(ctx, cfg.SQLitePath, cfg.Capacity)
	default:
		return nil, fmt.Errorf("unknown pager store %q", cfg.Store)
	}
}

// MemoryStore is an in-process LRU store.
type MemoryStore struct {
	cache  *lru.Cache[MessageID, *State]
	logger *logx.Logger
}

// NewMemoryStore creates a store holding at most capacity states.
func NewMemoryStore(capacity int) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = config.DefaultPagerCapacity
	}
	s := &MemoryStore{logger: logx.NewLogger("pager")}
	cache, err := lru.NewWithEvict(capacity, func(id MessageID, _ *State) {
		s.logger.Debug("evicted pager state for %s", id)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create pager cache: %w", err)
	}
	s.cache = cache
	return s, nil
}

// Get returns a copy of the state bound to id.
func (s *MemoryStore) Get(_ context.Context, id MessageID) (*State, bool, error) {
	st, ok := s.cache.Get(id)
	if !ok {
		return nil, false, nil
	}
	return st.Clone(), true, nil
}

// Put binds a copy of st to id, replacing any previous state.
func (s *MemoryStore) Put(_ context.Context, id MessageID, st *State) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("refusing to store state for %s: %w", id, err)
	}
	s.cache.Add(id, st.Clone())
	return nil
}

// Evict removes the state bound to id.
func (s *MemoryStore) Evict(_ context.Context, id MessageID) error {
	s.cache.Remove(id)
	return nil
}

// Len returns the number of stored states.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	return s.cache.Len(), nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
