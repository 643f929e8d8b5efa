package store

import (
	"context"
	"strings"
	"sync"

	"github.com/SrJCBM/BDD-Avanzada/pkg/kv"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS kv_values (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS kv_sets (
	key    TEXT NOT NULL,
	member TEXT NOT NULL,
	seq    BIGSERIAL,
	PRIMARY KEY (key, member)
);`

// PGStore keeps values and sets in two PostgreSQL tables. The tables are
// created on first use, so a database that was down at startup is picked
// up once it comes back.
type PGStore struct {
	pool *pgxpool.Pool

	mu       sync.Mutex
	migrated bool
}

var _ kv.Store = (*PGStore)(nil)

// NewPGStore creates a connection pool for dbURL. The pool connects lazily.
func NewPGStore(ctx context.Context, dbURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	return &PGStore{pool: pool}, nil
}

// Migrate creates the backing tables if they do not exist yet. Every other
// operation calls it until it has succeeded once.
func (s *PGStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.migrated {
		return nil
	}
	if _, err := s.pool.Exec(ctx, pgSchema); err != nil {
		return errors.Wrap(err, "could not create kv tables")
	}
	s.migrated = true
	return nil
}

func (s *PGStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.Migrate(ctx); err != nil {
		return "", false, err
	}
	var v string
	err := s.pool.QueryRow(ctx, `SELECT value FROM kv_values WHERE key = $1`, key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *PGStore) Set(ctx context.Context, key, value string) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_values (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`, key, value)
	return err
}

func (s *PGStore) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	batch.Queue(`DELETE FROM kv_values WHERE key = ANY($1)`, keys)
	batch.Queue(`DELETE FROM kv_sets WHERE key = ANY($1)`, keys)
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PGStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv_values WHERE key LIKE $1
		 UNION
		 SELECT DISTINCT key FROM kv_sets WHERE key LIKE $1
		 ORDER BY 1`, globToLike(pattern))
	if err != nil {
		return nil, err
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

func (s *PGStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	batch := &pgx.Batch{}
	for _, m := range members {
		batch.Queue(`INSERT INTO kv_sets (key, member) VALUES ($1, $2) ON CONFLICT DO NOTHING`, key, m)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

func (s *PGStore) SMembers(ctx context.Context, key string) ([]string, error) {
	if err := s.Migrate(ctx); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `SELECT member FROM kv_sets WHERE key = $1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	members, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if members == nil {
		members = []string{}
	}
	return members, nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}

// globToLike converts a '*' / '?' glob into a LIKE pattern with '\' escapes.
func globToLike(pattern string) string {
	var b strings.Builder
	for _, r := range pattern {
		switch r {
		case '*':
			b.WriteByte('%')
		case '?':
			b.WriteByte('_')
		case '%', '_', '\\':
			b.WriteByte('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
