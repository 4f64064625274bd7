package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestRunMigrationsFreshDB(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, runMigrations(ctx, db))
	v, err := schemaVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	for _, table := range []string{"status_transitions", "actions"} {
		var n int
		require.NoError(t, db.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&n))
		assert.Equal(t, 1, n, "table %s", table)
	}
}

func TestRunMigrationsIdempotent(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, runMigrations(ctx, db), "run #%d", i+1)
	}
	v, _ := schemaVersion(ctx, db)
	assert.Equal(t, 1, v)
}

func TestRunMigrationsRejectsNewerSchema(t *testing.T) {
	t.Parallel()

	db := openTestDB(t)
	ctx := context.Background()
	_, err := db.ExecContext(ctx, "PRAGMA user_version = 99")
	require.NoError(t, err)

	assert.ErrorIs(t, runMigrations(ctx, db), ErrSchemaTooNew)
}

func TestLoadMigrationsOrderingAndDuplicates(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/000001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/README.md":         {Data: []byte("ignored")},
	}
	steps, err := loadMigrations(fsys)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, "first", steps[0].name)
	assert.Equal(t, "second", steps[1].name)

	fsys["migrations/000002_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 3;")}
	_, err = loadMigrations(fsys)
	assert.Error(t, err)
}

func TestParseMigrationFilename(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input       string
		wantVersion int
		wantName    string
		wantErr     bool
	}{
		{"000001_init.sql", 1, "init", false},
		{"000042_add_column.sql", 42, "add_column", false},
		{"bad.sql", 0, "", true},
		{"abc_name.sql", 0, "", true},
		{"000000_zero.sql", 0, "", true},
		{"000003_.sql", 0, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()
			version, name, err := parseMigrationFilename(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantName, name)
		})
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}
