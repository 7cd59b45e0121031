// Package sqlstore keeps docstore documents in a single SQL table. It runs on
// PostgreSQL through the pgx stdlib driver and on SQLite through go-sqlite3.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

// Deleting a document leaves a tombstone row that keeps its version, so a
// document created again under the same id continues the sequence instead of
// restarting at 1. A transaction that read the old document then fails its
// version guard.
const (
	postgresSchema = `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data JSONB NOT NULL,
			version BIGINT NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (collection, id)
		)
	`
	postgresAddDeleted = `ALTER TABLE documents ADD COLUMN IF NOT EXISTS deleted BOOLEAN NOT NULL DEFAULT FALSE`
	sqliteSchema       = `
		CREATE TABLE IF NOT EXISTS documents (
			collection TEXT NOT NULL,
			id TEXT NOT NULL,
			data TEXT NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			deleted BOOLEAN NOT NULL DEFAULT FALSE,
			PRIMARY KEY (collection, id)
		)
	`

	getDocumentQuery   = `SELECT data, version FROM documents WHERE collection = ? AND id = ? AND NOT deleted`
	listDocumentsQuery = `SELECT id, data, version FROM documents WHERE collection = ? AND NOT deleted ORDER BY id`
	// revives a tombstone, but never overwrites a live document
	insertQuery = `
		INSERT INTO documents (collection, id, data, version) VALUES (?, ?, ?, 1)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = documents.version + 1, deleted = FALSE
		WHERE documents.deleted
	`
	upsertQuery = `
		INSERT INTO documents (collection, id, data, version) VALUES (?, ?, ?, 1)
		ON CONFLICT (collection, id) DO UPDATE SET data = excluded.data, version = documents.version + 1, deleted = FALSE
	`
	updateQuery       = `UPDATE documents SET data = ?, version = version + 1 WHERE collection = ? AND id = ? AND version = ? AND NOT deleted`
	deleteQuery       = `UPDATE documents SET deleted = TRUE, version = version + 1 WHERE collection = ? AND id = ? AND version = ? AND NOT deleted`
	blindDeleteQuery  = `UPDATE documents SET deleted = TRUE, version = version + 1 WHERE collection = ? AND id = ? AND NOT deleted`
	verifyQuery       = `UPDATE documents SET version = version WHERE collection = ? AND id = ? AND version = ? AND NOT deleted`
	verifyAbsentQuery = `SELECT COUNT(*) FROM documents WHERE collection = ? AND id = ? AND NOT deleted`
)

type row struct {
	ID      string `db:"id"`
	Data    []byte `db:"data"`
	Version int64  `db:"version"`
}

// Store implements docstore.Store on top of *sqlx.DB.
type Store struct {
	db          *sqlx.DB
	maxAttempts int
}

var _ docstore.Store = (*Store)(nil)

// Open connects with the given driver ("pgx" or "sqlite3"), pings and migrates.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	if driver == "sqlite3" {
		// one writer at a time; sqlite serializes anyway and this avoids busy storms
		db.SetMaxOpenConns(1)
	}
	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func New(db *sqlx.DB) *Store {
	return &Store{db: db, maxAttempts: docstore.DefaultMaxAttempts}
}

// SetMaxAttempts overrides the optimistic retry budget.
func (s *Store) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

// DB exposes the underlying handle so other repositories can share the pool.
func (s *Store) DB() *sqlx.DB { return s.db }

// Migrate creates the documents table for the current driver.
func (s *Store) Migrate(ctx context.Context) error {
	schema := postgresSchema
	if s.db.DriverName() == "sqlite3" {
		schema = sqliteSchema
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate documents: %w", err)
	}
	if schema == postgresSchema {
		// tables created before tombstones
		if _, err := s.db.ExecContext(ctx, postgresAddDeleted); err != nil {
			return fmt.Errorf("migrate documents: %w", err)
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	return getDocument(ctx, s.db, ref)
}

type getter interface {
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

func getDocument(ctx context.Context, q getter, ref docstore.Ref) (docstore.Snapshot, error) {
	var r row
	err := q.GetContext(ctx, &r, q.Rebind(getDocumentQuery), ref.Collection, ref.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, classify(fmt.Errorf("get %s: %w", ref, err))
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Version: r.Version, Data: json.RawMessage(r.Data)}, nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(listDocumentsQuery), collection); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]docstore.Snapshot, 0, len(rows))
	for _, r := range rows {
		out = append(out, docstore.Snapshot{
			Ref:     docstore.NewRef(collection, r.ID),
			Exists:  true,
			Version: r.Version,
			Data:    json.RawMessage(r.Data),
		})
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	return docstore.Retry(ctx, s.maxAttempts, func() error {
		return s.attempt(ctx, fn)
	})
}

func (s *Store) attempt(ctx context.Context, fn docstore.TxFunc) error {
	sqlTx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() {
		_ = sqlTx.Rollback()
	}()

	tx := &transaction{tx: sqlTx, buf: docstore.NewBuffer()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.apply(ctx); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

type transaction struct {
	tx  *sqlx.Tx
	buf *docstore.Buffer
}

func (t *transaction) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := t.buf.CheckRead(); err != nil {
		return docstore.Snapshot{}, err
	}
	if s, ok := t.buf.Cached(ref); ok {
		return s, nil
	}
	snap, err := getDocument(ctx, t.tx, ref)
	if err != nil {
		return docstore.Snapshot{}, err
	}
	t.buf.RecordRead(snap)
	return snap, nil
}

func (t *transaction) Set(ref docstore.Ref, v any) error {
	return t.buf.Set(ref, v)
}

func (t *transaction) Update(ref docstore.Ref, fields docstore.Fields) error {
	return t.buf.Update(ref, fields)
}

func (t *transaction) Delete(ref docstore.Ref) error {
	return t.buf.Delete(ref)
}

// apply runs the buffered writes with version guards. A guard that matches no
// row means another transaction committed first.
func (t *transaction) apply(ctx context.Context) error {
	for _, read := range t.buf.ReadOnly() {
		if err := t.verify(ctx, read); err != nil {
			return err
		}
	}

	for _, w := range t.buf.Writes() {
		if err := t.applyWrite(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) verify(ctx context.Context, read docstore.Snapshot) error {
	ref := read.Ref
	if !read.Exists {
		var n int
		if err := t.tx.GetContext(ctx, &n, t.tx.Rebind(verifyAbsentQuery), ref.Collection, ref.ID); err != nil {
			return classify(fmt.Errorf("verify %s: %w", ref, err))
		}
		if n != 0 {
			return fmt.Errorf("%s: %w", ref, docstore.ErrConflict)
		}
		return nil
	}
	return t.exec(ctx, ref, verifyQuery, ref.Collection, ref.ID, read.Version)
}

func (t *transaction) applyWrite(ctx context.Context, w *docstore.Write) error {
	ref := w.Ref
	expected, guarded := w.Expected()

	if w.Kind == docstore.WriteDelete {
		if !guarded {
			_, err := t.tx.ExecContext(ctx, t.tx.Rebind(blindDeleteQuery), ref.Collection, ref.ID)
			return classify(err)
		}
		if expected == 0 {
			return nil
		}
		return t.exec(ctx, ref, deleteQuery, ref.Collection, ref.ID, expected)
	}

	current := docstore.Snapshot{Ref: ref}
	if guarded {
		current = *w.Base
	} else if w.Kind == docstore.WriteUpdate {
		snap, err := getDocument(ctx, t.tx, ref)
		if err != nil {
			return err
		}
		current = snap
		expected, guarded = snap.Version, true
	}

	body, err := w.Resolve(current)
	if err != nil {
		return err
	}

	switch {
	case !guarded:
		_, err := t.tx.ExecContext(ctx, t.tx.Rebind(upsertQuery), ref.Collection, ref.ID, string(body))
		return classify(err)
	case expected == 0:
		return t.exec(ctx, ref, insertQuery, ref.Collection, ref.ID, string(body))
	default:
		return t.exec(ctx, ref, updateQuery, string(body), ref.Collection, ref.ID, expected)
	}
}

// exec runs a guarded statement and turns "no row matched" into ErrConflict.
func (t *transaction) exec(ctx context.Context, ref docstore.Ref, query string, args ...interface{}) error {
	res, err := t.tx.ExecContext(ctx, t.tx.Rebind(query), args...)
	if err != nil {
		return classify(fmt.Errorf("write %s: %w", ref, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", ref, docstore.ErrConflict)
	}
	return nil
}

// classify maps driver-level contention errors onto docstore.ErrConflict so
// that they are retried like version mismatches.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %w", docstore.ErrConflict, err)
		}
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked {
			return fmt.Errorf("%w: %w", docstore.ErrConflict, err)
		}
	}
	return err
}
