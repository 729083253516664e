package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kethan1/Blogger101-website/internal/auth"
)

// PostgresStore keeps sessions in the sessions table. Expired rows are
// ignored on lookup and removed on the next save.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Save(ctx context.Context, id string, identity Identity, ttl time.Duration) error {
	data, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := s.now().UTC()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now); err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id_hash, identity, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id_hash) DO UPDATE SET identity = EXCLUDED.identity, expires_at = EXCLUDED.expires_at
	`, auth.HashToken(id), data, now.Add(ttl))
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Lookup(ctx context.Context, id string) (Identity, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT identity FROM sessions WHERE id_hash = $1 AND expires_at > $2
	`, auth.HashToken(id), s.now().UTC()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("lookup session: %w", err)
	}

	var identity Identity
	if err := json.Unmarshal(data, &identity); err != nil {
		return Identity{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return identity, nil
}

func (s *PostgresStore) Revoke(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id_hash = $1`, auth.HashToken(id)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
