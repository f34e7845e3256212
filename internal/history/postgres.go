// Package history provides Postgres-backed persistence for conversation
// turns, so assistant context survives restarts.
package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/zhanyun614531-alt/dingtalk-bot/internal/agent/llm"
)

// StoreConfig controls the Postgres connection pool used for conversation
// rows.
type StoreConfig struct {
	DSN             string
	RetainPerConv   int
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// Store writes conversation turns into Postgres.
type Store struct {
	pool   pgxPool
	retain int
}

const schema = `
CREATE TABLE IF NOT EXISTS conversation_messages (
	id BIGSERIAL PRIMARY KEY,
	conversation_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS conversation_messages_conv_idx
	ON conversation_messages (conversation_id, id);
`

// NewStore creates a Postgres-backed Store and ensures the schema exists.
func NewStore(ctx context.Context, cfg StoreConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("history.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure history schema: %w", err)
	}
	return &Store{pool: pool, retain: normalizeRetain(cfg.RetainPerConv)}, nil
}

// NewStoreWithPool constructs a store from an existing pool (primarily for
// testing).
func NewStoreWithPool(pool pgxPool, retainPerConv int) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool, retain: normalizeRetain(retainPerConv)}, nil
}

func normalizeRetain(n int) int {
	if n <= 0 {
		return 50
	}
	return n
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Append inserts one turn and prunes rows past the retention limit.
func (s *Store) Append(ctx context.Context, conversationID, role, content string) error {
	if conversationID == "" {
		return fmt.Errorf("conversation id is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_messages (conversation_id, role, content) VALUES ($1, $2, $3)`,
		conversationID, role, content,
	)
	if err != nil {
		return fmt.Errorf("insert conversation turn: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`DELETE FROM conversation_messages
		WHERE conversation_id = $1 AND id NOT IN (
			SELECT id FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY id DESC LIMIT $2
		)`,
		conversationID, s.retain,
	)
	if err != nil {
		return fmt.Errorf("prune conversation turns: %w", err)
	}
	return nil
}

// Recent returns the newest turns for a conversation in chronological order.
func (s *Store) Recent(ctx context.Context, conversationID string, limit int) ([]llm.Message, error) {
	if limit <= 0 {
		limit = s.retain
	}
	rows, err := s.pool.Query(ctx,
		`SELECT role, content FROM (
			SELECT id, role, content FROM conversation_messages
			WHERE conversation_id = $1
			ORDER BY id DESC LIMIT $2
		) latest ORDER BY id ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversation turns: %w", err)
	}
	defer rows.Close()

	var msgs []llm.Message
	for rows.Next() {
		var msg llm.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("scan conversation turn: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read conversation turns: %w", err)
	}
	return msgs, nil
}
