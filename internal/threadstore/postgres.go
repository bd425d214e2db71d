package threadstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/changesmith/internal/conversation"
)

// PostgresStore keeps conversations in a threads table with a JSONB
// payload. The schema is created on construction; there is nothing else to
// migrate.
type PostgresStore struct {
	db *sql.DB
}

const threadsSchema = `
CREATE TABLE IF NOT EXISTS threads (
	id         TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewPostgresStore ensures the schema exists and returns the store.
func NewPostgresStore(db *sql.DB) (*PostgresStore, error) {
	if _, err := db.Exec(threadsSchema); err != nil {
		return nil, fmt.Errorf("failed to create threads table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM threads WHERE id = $1`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read thread %s: %w", id, err)
	}

	var conv conversation.Conversation
	if err := json.Unmarshal(payload, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode thread %s: %w", id, err)
	}
	return &conv, nil
}

func (s *PostgresStore) Put(ctx context.Context, conv *conversation.Conversation) error {
	payload, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode thread %s: %w", conv.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO threads (id, payload, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = now()
	`, conv.ID, payload)
	if err != nil {
		return fmt.Errorf("failed to write thread %s: %w", conv.ID, err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete thread %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*conversation.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM threads ORDER BY updated_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer rows.Close()

	var convs []*conversation.Conversation
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var conv conversation.Conversation
		if err := json.Unmarshal(payload, &conv); err != nil {
			continue
		}
		convs = append(convs, &conv)
	}
	return convs, rows.Err()
}
