// Package memstore is an in-memory docstore used by tests and local runs.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

type document struct {
	data    json.RawMessage
	version int64
}

// Store keeps documents in a map guarded by a RWMutex. Commits take the write
// lock, compare the versions recorded by the transaction and apply all writes
// or none. Versions come from one store-wide sequence, so a document deleted
// and created again never gets back a version a transaction may have read.
type Store struct {
	mu          sync.RWMutex
	docs        map[docstore.Ref]document
	seq         int64
	maxAttempts int
	preCommit   func(attempt int)
}

var _ docstore.Store = (*Store)(nil)

type Option func(*Store)

// WithMaxAttempts overrides docstore.DefaultMaxAttempts.
func WithMaxAttempts(n int) Option {
	return func(s *Store) { s.maxAttempts = n }
}

// WithPreCommitHook runs fn after a transaction function returned and before
// its writes are validated. Tests use it to interleave competing writers.
func WithPreCommitHook(fn func(attempt int)) Option {
	return func(s *Store) { s.preCommit = fn }
}

func New(opts ...Option) *Store {
	s := &Store{
		docs:        make(map[docstore.Ref]document),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) snapshot(ref docstore.Ref) docstore.Snapshot {
	d, ok := s.docs[ref]
	if !ok {
		return docstore.Snapshot{Ref: ref}
	}
	data := make(json.RawMessage, len(d.data))
	copy(data, d.data)
	return docstore.Snapshot{Ref: ref, Exists: true, Version: d.version, Data: data}
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot(ref), nil
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]docstore.Snapshot, 0)
	for ref := range s.docs {
		if ref.Collection == collection {
			out = append(out, s.snapshot(ref))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ref.ID < out[j].Ref.ID })
	return out, nil
}

func (s *Store) Close() error { return nil }

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	attempt := 0
	return docstore.Retry(ctx, s.maxAttempts, func() error {
		attempt++
		tx := &transaction{store: s, buf: docstore.NewBuffer()}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		if s.preCommit != nil {
			s.preCommit(attempt)
		}
		return s.commit(tx.buf)
	})
}

func (s *Store) version(ref docstore.Ref) int64 {
	if d, ok := s.docs[ref]; ok {
		return d.version
	}
	return 0
}

func (s *Store) commit(buf *docstore.Buffer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, read := range buf.ReadOnly() {
		if s.version(read.Ref) != read.Version {
			return fmt.Errorf("%s: %w", read.Ref, docstore.ErrConflict)
		}
	}

	writes := buf.Writes()
	bodies := make([]json.RawMessage, len(writes))
	for i, w := range writes {
		if expected, ok := w.Expected(); ok && s.version(w.Ref) != expected {
			return fmt.Errorf("%s: %w", w.Ref, docstore.ErrConflict)
		}
		body, err := w.Resolve(s.snapshot(w.Ref))
		if err != nil {
			return err
		}
		bodies[i] = body
	}

	for i, w := range writes {
		if w.Kind == docstore.WriteDelete {
			delete(s.docs, w.Ref)
			continue
		}
		s.seq++
		s.docs[ownRef(w.Ref)] = document{data: bodies[i], version: s.seq}
	}
	return nil
}

// ownRef copies the ref strings so stored keys never share memory with the
// caller, whose buffers may be reused.
func ownRef(ref docstore.Ref) docstore.Ref {
	return docstore.Ref{Collection: strings.Clone(ref.Collection), ID: strings.Clone(ref.ID)}
}

type transaction struct {
	store *Store
	buf   *docstore.Buffer
}

func (t *transaction) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := t.buf.CheckRead(); err != nil {
		return docstore.Snapshot{}, err
	}
	if s, ok := t.buf.Cached(ref); ok {
		return s, nil
	}
	snap, err := t.store.Get(ctx, ref)
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
