package pager

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"relaybot/pkg/config"
	"relaybot/pkg/logx"
)

const pagerSchema = `CREATE TABLE IF NOT EXISTS pager_states (
	chat_id     INTEGER NOT NULL,
	message_id  INTEGER NOT NULL,
	state       TEXT NOT NULL,
	accessed_at INTEGER NOT NULL,
	PRIMARY KEY (chat_id, message_id)
)`

const pagerIndex = `CREATE INDEX IF NOT EXISTS idx_pager_states_accessed ON pager_states(accessed_at)`

// SQLiteStore persists pager state so navigation survives restarts. It keeps at most
// capacity rows, dropping the least recently accessed.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
	logger   *logx.Logger

	mu  sync.Mutex
	seq int64 // access clock; larger is more recent
}

// OpenSQLiteStore opens (or creates) the database at path.
func OpenSQLiteStore(ctx context.Context, path string, capacity int) (*SQLiteStore, error) {
	if capacity <= 0 {
		capacity = config.DefaultPagerCapacity
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open pager database: %w", err)
	}
	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, stmt := range []string{"PRAGMA journal_mode = WAL", pagerSchema, pagerIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to initialize pager database: %w", err)
		}
	}

	s := &SQLiteStore{db: db, capacity: capacity, logger: logx.NewLogger("pager")}
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(accessed_at), 0) FROM pager_states`).Scan(&s.seq); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read pager access clock: %w", err)
	}
	s.logger.Info("📦 Pager store opened: %s (capacity %d)", path, capacity)
	return s, nil
}

func (s *SQLiteStore) tick() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

// Get returns the state bound to id and marks it as recently used.
func (s *SQLiteStore) Get(ctx context.Context, id MessageID) (*State, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM pager_states WHERE chat_id = ? AND message_id = ?`,
		id.ChatID, id.MessageID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load pager state %s: %w", id, err)
	}

	var st State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return nil, false, fmt.Errorf("corrupt pager state %s: %w", id, err)
	}
	if err := st.Validate(); err != nil {
		return nil, false, fmt.Errorf("corrupt pager state %s: %w", id, err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE pager_states SET accessed_at = ? WHERE chat_id = ? AND message_id = ?`,
		s.tick(), id.ChatID, id.MessageID); err != nil {
		s.logger.Warn("failed to touch pager state %s: %v", id, err)
	}
	return &st, true, nil
}

// Put binds st to id, replacing any previous state, then prunes beyond capacity.
func (s *SQLiteStore) Put(ctx context.Context, id MessageID, st *State) error {
	if err := st.Validate(); err != nil {
		return fmt.Errorf("refusing to store state for %s: %w", id, err)
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to encode pager state: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO pager_states (chat_id, message_id, state, accessed_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(chat_id, message_id) DO UPDATE SET state = excluded.state, accessed_at = excluded.accessed_at`,
		id.ChatID, id.MessageID, string(raw), s.tick()); err != nil {
		return fmt.Errorf("failed to save pager state %s: %w", id, err)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pager_states WHERE rowid IN (
			SELECT rowid FROM pager_states ORDER BY accessed_at DESC LIMIT -1 OFFSET ?)`,
		s.capacity)
	if err != nil {
		return fmt.Errorf("failed to prune pager states: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("evicted %d pager state(s)", n)
	}
	return nil
}

// Evict removes the state bound to id.
func (s *SQLiteStore) Evict(ctx context.Context, id MessageID) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM pager_states WHERE chat_id = ? AND message_id = ?`,
		id.ChatID, id.MessageID); err != nil {
		return fmt.Errorf("failed to evict pager state %s: %w", id, err)
	}
	return nil
}

// Len returns the number of stored states.
func (s *SQLiteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pager_states`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pager states: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close pager database: %w", err)
	}
	return nil
}
