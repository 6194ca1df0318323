package database

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"), Migrations(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestNewAppliesEmbeddedMigrations(t *testing.T) {
	db := openTestDB(t)

	var count int
	err := db.Conn.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name IN ('users','messages')",
	).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var applied int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestMigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := New(path, Migrations(), nil)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = New(path, Migrations(), nil)
	require.NoError(t, err)
	defer db.Close()

	var applied int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 1, applied)
}

func TestRecoverableMigrationError(t *testing.T) {
	migrations := fstest.MapFS{
		"001_a.sql": {Data: []byte("CREATE TABLE t (id INTEGER PRIMARY KEY);")},
		"002_b.sql": {Data: []byte("ALTER TABLE t ADD COLUMN name TEXT; ALTER TABLE t ADD COLUMN name TEXT;")},
	}

	db, err := New(filepath.Join(t.TempDir(), "test.db"), migrations, nil)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Conn.Exec("INSERT INTO t (name) VALUES ('x')")
	assert.NoError(t, err)
}

func TestSplitStatements(t *testing.T) {
	sql := `
		CREATE TABLE a (v TEXT);
		INSERT INTO a VALUES ('semi;colon');
		INSERT INTO a VALUES ('it''s; fine')
	`

	stmts := splitStatements(sql)
	require.Len(t, stmts, 3)
	assert.Equal(t, "INSERT INTO a VALUES ('semi;colon')", stmts[1])
	assert.Equal(t, "INSERT INTO a VALUES ('it''s; fine')", stmts[2])
}

func TestSplitStatementsSkipsComments(t *testing.T) {
	sql := `-- başlık; noktalı virgüllü yorum
CREATE TABLE a (
    v TEXT -- satır sonu; yorum
);
/* blok; yorum */ INSERT INTO a VALUES ('--not a comment; /* nor this */');
-- son yorum`

	stmts := splitStatements(sql)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (\n    v TEXT \n)", stmts[0])
	assert.Equal(t, "INSERT INTO a VALUES ('--not a comment; /* nor this */')", stmts[1])
}

func TestEmbeddedMigrationStatementsAreSQL(t *testing.T) {
	raw, err := fs.ReadFile(Migrations(), "001_init.sql")
	require.NoError(t, err)

	stmts := splitStatements(string(raw))
	require.NotEmpty(t, stmts)
	for _, stmt := range stmts {
		assert.True(t, strings.HasPrefix(stmt, "CREATE "), "unexpected statement start: %q", stmt)
	}
}

func TestWithTxCommitAndRollback(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	insert := func(tx *sql.Tx, id string) error {
		_, err := tx.ExecContext(ctx, "INSERT INTO users (id, nickname, created_at) VALUES (?, ?, 0)", id, id)
		return err
	}

	require.NoError(t, WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		return insert(tx, "committed")
	}))

	boom := errors.New("boom")
	err := WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
		if err := insert(tx, "rolled-back"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var count int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = WithTx(ctx, db.Conn, func(tx *sql.Tx) error {
			_, _ = tx.ExecContext(ctx, "INSERT INTO users (id, nickname, created_at) VALUES ('p', 'p', 0)")
			panic("unexpected")
		})
	})

	// Bağlantı serbest kalmış olmalı; aksi halde bu sorgu bloklanırdı
	var count int
	require.NoError(t, db.Conn.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 0, count)
}
