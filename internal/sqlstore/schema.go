// Package sqlstore persists folders and resources in SQLite, with optional FTS5
// full-text ranking.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Composite foreign keys on (…, user_id) make "the referenced folder belongs to
// the same user" a property of the final write, not only of a prior check.
const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS folders (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	parent_id  TEXT,
	name       TEXT NOT NULL,
	color      TEXT NOT NULL DEFAULT '',
	icon       TEXT NOT NULL DEFAULT '',
	sort_order INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	UNIQUE (id, user_id),
	FOREIGN KEY (parent_id, user_id) REFERENCES folders (id, user_id),
	CHECK (parent_id IS NULL OR parent_id <> id)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_folders_sibling_name
	ON folders (user_id, IFNULL(parent_id, ''), name);
CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders (user_id, parent_id);

CREATE TABLE IF NOT EXISTS resources (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	type          TEXT NOT NULL CHECK (type IN ('bookmark', 'prompt', 'snippet', 'document', 'note')),
	folder_id     TEXT,
	title         TEXT NOT NULL,
	tags          TEXT NOT NULL DEFAULT '[]',
	favorite      INTEGER NOT NULL DEFAULT 0,
	annotations   TEXT NOT NULL DEFAULT '',
	url           TEXT NOT NULL DEFAULT '',
	content       TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	platform      TEXT NOT NULL DEFAULT '',
	category      TEXT NOT NULL DEFAULT '',
	code_language TEXT NOT NULL DEFAULT '',
	file_url      TEXT NOT NULL DEFAULT '',
	file_name     TEXT NOT NULL DEFAULT '',
	file_size     INTEGER NOT NULL DEFAULT 0,
	file_type     TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL,
	FOREIGN KEY (folder_id, user_id) REFERENCES folders (id, user_id)
);

CREATE INDEX IF NOT EXISTS idx_resources_user_created ON resources (user_id, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_resources_folder ON resources (user_id, folder_id);
`

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Queries holds the data-access methods. It runs against either the connection
// pool or a single transaction.
type Queries struct {
	q querier
}

// DB wraps a sql.DB with store-specific operations.
type DB struct {
	Queries
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
// Transactions take the write lock at BEGIN, so every InTx call sees a stable
// snapshot for its whole duration.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlstore: apply fts schema: %w", err)
	}
	return &DB{Queries: Queries{q: conn}, conn: conn}, nil
}

// InTx runs fn inside one write transaction. Any error from fn rolls back.
func (db *DB) InTx(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlstore: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&Queries{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: commit: %w", err)
	}
	return nil
}

// Ping checks that the database is reachable.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
