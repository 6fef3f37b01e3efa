package db

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func openTemp(t *testing.T) *Queries {
	t.Helper()
	ctx := context.Background()
	conn, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := MigrateUp(ctx, conn); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}
	q, err := LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	return q
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url        string
		wantDriver string
		wantSource string
		wantErr    bool
	}{
		{"sqlite://data/envboot.db", "sqlite3", "data/envboot.db", false},
		{"sqlite:///var/lib/envboot.db", "sqlite3", "/var/lib/envboot.db", false},
		{"postgres://u:p@localhost/envboot?sslmode=disable", "postgres", "postgres://u:p@localhost/envboot?sslmode=disable", false},
		{"mysql://localhost/envboot", "", "", true},
		{"sqlite://", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, source, err := ParseURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseURL() error = %v, wantErr %v", err, tt.wantErr)
			}
			if driver != tt.wantDriver || source != tt.wantSource {
				t.Errorf("ParseURL() = %q, %q, want %q, %q", driver, source, tt.wantDriver, tt.wantSource)
			}
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	q := openTemp(t)
	ctx := context.Background()

	if err := MigrateUp(ctx, q.DB()); err != nil {
		t.Fatalf("second MigrateUp() error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(ctx, q.DB())
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatal("MigrateStatus() returned no migrations")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s Applied = false, want true", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s AppliedAt = nil, want timestamp", s.ID)
		}
	}
}

func TestQueries_PreferenceUpsert(t *testing.T) {
	q := openTemp(t)
	ctx := context.Background()
	now := time.Now().UTC().Format(time.RFC3339)

	var value string
	err := q.Get(ctx, "get-preference", &value, "quality")
	if !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("Get() error = %v, want sql.ErrNoRows", err)
	}

	for _, v := range []string{"1080p", "4k"} {
		if _, err := q.Exec(ctx, "upsert-preference", "quality", v, now); err != nil {
			t.Fatalf("Exec(upsert-preference) error = %v, want nil", err)
		}
	}

	if err := q.Get(ctx, "get-preference", &value, "quality"); err != nil {
		t.Fatalf("Get() error = %v, want nil", err)
	}
	if value != "4k" {
		t.Errorf("quality = %q, want %q", value, "4k")
	}

	var keys []string
	if err := q.DB().SelectContext(ctx, &keys, "SELECT pref_key FROM preferences"); err != nil {
		t.Fatalf("Select() error = %v, want nil", err)
	}
	if len(keys) != 1 {
		t.Errorf("len(keys) = %d, want 1", len(keys))
	}
}

func TestQueries_UnknownName(t *testing.T) {
	q := openTemp(t)
	if _, err := q.Exec(context.Background(), "drop-everything"); err == nil {
		t.Error("Exec(unknown) error = nil, want error")
	}
}
