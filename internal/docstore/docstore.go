// Package docstore describes the transactional document store the shop runs on.
//
// Documents are JSON objects addressed by a collection and an id. Every
// backend offers the same optimistic transaction model: a transaction reads
// documents first, buffers its writes, and at commit verifies that nothing it
// read has changed in the meantime. A conflicting commit reruns the whole
// transaction function against fresh reads.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("docstore: document not found")
	// ErrConflict means a document read by the transaction changed before commit.
	ErrConflict = errors.New("docstore: transaction conflict")
	// ErrReadAfterWrite is returned by Tx.Get once the transaction has written.
	ErrReadAfterWrite = errors.New("docstore: reads must precede writes in a transaction")
	// ErrTransient is returned when a transaction kept conflicting until the
	// retry budget ran out. The caller may retry later.
	ErrTransient = errors.New("docstore: transaction did not commit")
)

// Ref addresses one document.
type Ref struct {
	Collection string
	ID         string
}

// NewRef is a shorthand for Ref{Collection: collection, ID: id}.
func NewRef(collection, id string) Ref {
	return Ref{Collection: collection, ID: id}
}

func (r Ref) String() string {
	return r.Collection + "/" + r.ID
}

// Snapshot is the state of a document at the time it was read.
// Version is 0 for a document that does not exist.
type Snapshot struct {
	Ref     Ref
	Exists  bool
	Version int64
	Data    json.RawMessage
}

// DataTo decodes the document into v.
func (s Snapshot) DataTo(v any) error {
	if !s.Exists {
		return fmt.Errorf("%s: %w", s.Ref, ErrNotFound)
	}
	return json.Unmarshal(s.Data, v)
}

// Fields is a set of top-level field updates.
type Fields map[string]any

// Tx is the handle passed to a transaction function. All Get calls must come
// before the first Set, Update or Delete.
type Tx interface {
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	Set(ref Ref, v any) error
	Update(ref Ref, fields Fields) error
	Delete(ref Ref) error
}

// TxFunc is the body of a transaction. It may run more than once.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is implemented by every backend.
type Store interface {
	RunTransaction(ctx context.Context, fn TxFunc) error
	Get(ctx context.Context, ref Ref) (Snapshot, error)
	List(ctx context.Context, collection string) ([]Snapshot, error)
	Close() error
}
