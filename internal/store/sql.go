package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/solatis/envboot/internal/core/db"
)

// SQL stores preferences in the preferences table via named queries.
type SQL struct {
	q *db.Queries
}

// OpenSQL connects, migrates and loads the named queries.
func OpenSQL(ctx context.Context, dbURL string) (*SQL, error) {
	conn, err := db.Open(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate preference store: %w", err)
	}
	q, err := db.LoadQueries(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &SQL{q: q}, nil
}

func (s *SQL) Get(ctx context.Context, key, def string) (string, error) {
	var value string
	err := s.q.Get(ctx, "get-preference", &value, key)
	if errors.Is(err, sql.ErrNoRows) {
		return def, nil
	}
	if err != nil {
		return "", fmt.Errorf("get preference %s: %w", key, err)
	}
	return value, nil
}

func (s *SQL) Set(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := s.q.Exec(ctx, "upsert-preference", key, value, now); err != nil {
		return fmt.Errorf("set preference %s: %w", key, err)
	}
	return nil
}

func (s *SQL) Delete(ctx context.Context, key string) error {
	if _, err := s.q.Exec(ctx, "delete-preference", key); err != nil {
		return fmt.Errorf("delete preference %s: %w", key, err)
	}
	return nil
}

type preferenceRow struct {
	Key       string `db:"pref_key"`
	Value     string `db:"pref_value"`
	UpdatedAt string `db:"updated_at"`
}

func (s *SQL) List(ctx context.Context) (map[string]string, error) {
	var rows []preferenceRow
	if err := s.q.Select(ctx, "list-preferences", &rows); err != nil {
		return nil, fmt.Errorf("list preferences: %w", err)
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

func (s *SQL) Close() error {
	return s.q.DB().Close()
}
