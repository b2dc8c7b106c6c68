package main

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `CREATE TABLE IF NOT EXISTS docs (
	key TEXT PRIMARY KEY,
	doc TEXT NOT NULL
)`

// sqliteBackend keeps one JSON document per row.
type sqliteBackend struct {
	db *sql.DB
}

func openSQLiteBackend(ctx context.Context, path string) (*sqliteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	db, err := sql.Open("sqlite", filepath.Clean(path)+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}
	// One writer keeps commits serialized.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create docs table: %w", err)
	}

	return &sqliteBackend{db: db}, nil
}

func (b *sqliteBackend) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT key, doc FROM docs`)
	if err != nil {
		return nil, fmt.Errorf("query docs: %w", err)
	}
	defer rows.Close()

	docs := make(map[string][]byte)
	for rows.Next() {
		var (
			key string
			doc string
		)
		if err := rows.Scan(&key, &doc); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		docs[key] = []byte(doc)
	}

	return docs, rows.Err()
}

func (b *sqliteBackend) Commit(ctx context.Context, docs map[string][]byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for key, payload := range docs {
		if payload == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM docs WHERE key = ?`, key)
		} else {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO docs (key, doc) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET doc = excluded.doc`,
				key, string(payload))
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (b *sqliteBackend) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}
