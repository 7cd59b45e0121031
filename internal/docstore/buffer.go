package docstore

import (
	"encoding/json"
	"fmt"
)

// WriteKind tells a backend how to apply a buffered write.
type WriteKind int

const (
	WriteSet WriteKind = iota + 1
	WriteUpdate
	WriteDelete
)

// Write is one buffered mutation. Base is the snapshot the transaction read
// for the same document, or nil when the document was never read.
type Write struct {
	Ref    Ref
	Kind   WriteKind
	Data   json.RawMessage
	Fields Fields
	Base   *Snapshot
}

// Expected returns the version the document must still have at commit time.
// ok is false for blind writes.
func (w *Write) Expected() (version int64, ok bool) {
	if w.Base == nil {
		return 0, false
	}
	return w.Base.Version, true
}

// Resolve returns the body to store, given the document as it is now.
func (w *Write) Resolve(current Snapshot) (json.RawMessage, error) {
	switch w.Kind {
	case WriteSet:
		return w.Data, nil
	case WriteUpdate:
		if !current.Exists {
			return nil, fmt.Errorf("update %s: %w", w.Ref, ErrNotFound)
		}
		return Merge(current.Data, w.Fields)
	default:
		return nil, nil
	}
}

// Buffer keeps the reads and writes of a single transaction attempt and
// enforces the reads-before-writes rule. Backends embed one per attempt.
type Buffer struct {
	reads     map[Ref]Snapshot
	readOrder []Ref
	writes    map[Ref]*Write
	order     []Ref
}

func NewBuffer() *Buffer {
	return &Buffer{
		reads:  make(map[Ref]Snapshot),
		writes: make(map[Ref]*Write),
	}
}

// CheckRead fails once anything has been written.
func (b *Buffer) CheckRead() error {
	if len(b.writes) > 0 {
		return ErrReadAfterWrite
	}
	return nil
}

// Cached returns a snapshot already read in this attempt.
func (b *Buffer) Cached(ref Ref) (Snapshot, bool) {
	s, ok := b.reads[ref]
	return s, ok
}

// RecordRead remembers the version observed for a document.
func (b *Buffer) RecordRead(s Snapshot) {
	if _, ok := b.reads[s.Ref]; ok {
		return
	}
	b.reads[s.Ref] = s
	b.readOrder = append(b.readOrder, s.Ref)
}

func (b *Buffer) base(ref Ref) *Snapshot {
	if s, ok := b.reads[ref]; ok {
		return &s
	}
	return nil
}

func (b *Buffer) put(w *Write) {
	if _, ok := b.writes[w.Ref]; !ok {
		b.order = append(b.order, w.Ref)
	}
	b.writes[w.Ref] = w
}

// Set replaces the whole document with v encoded as JSON.
func (b *Buffer) Set(ref Ref, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}
	b.put(&Write{Ref: ref, Kind: WriteSet, Data: data, Base: b.base(ref)})
	return nil
}

// Update merges fields into an existing document.
func (b *Buffer) Update(ref Ref, fields Fields) error {
	if prev, ok := b.writes[ref]; ok {
		switch prev.Kind {
		case WriteSet:
			merged, err := Merge(prev.Data, fields)
			if err != nil {
				return err
			}
			prev.Data = merged
			return nil
		case WriteUpdate:
			for k, v := range fields {
				prev.Fields[k] = v
			}
			return nil
		default:
			return fmt.Errorf("update %s: %w", ref, ErrNotFound)
		}
	}

	base := b.base(ref)
	if base != nil && !base.Exists {
		return fmt.Errorf("update %s: %w", ref, ErrNotFound)
	}
	copied := make(Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	b.put(&Write{Ref: ref, Kind: WriteUpdate, Fields: copied, Base: base})
	return nil
}

// Delete removes the document. Deleting a missing document is not an error.
func (b *Buffer) Delete(ref Ref) error {
	b.put(&Write{Ref: ref, Kind: WriteDelete, Base: b.base(ref)})
	return nil
}

// Writes returns the buffered writes in the order they were first issued.
func (b *Buffer) Writes() []*Write {
	out := make([]*Write, 0, len(b.order))
	for _, ref := range b.order {
		out = append(out, b.writes[ref])
	}
	return out
}

// ReadOnly returns the snapshots that were read but not written. Their
// versions must still hold at commit.
func (b *Buffer) ReadOnly() []Snapshot {
	out := make([]Snapshot, 0, len(b.readOrder))
	for _, ref := range b.readOrder {
		if _, written := b.writes[ref]; written {
			continue
		}
		out = append(out, b.reads[ref])
	}
	return out
}

// Merge sets top-level fields on a JSON object.
func Merge(doc json.RawMessage, fields Fields) (json.RawMessage, error) {
	obj := make(map[string]json.RawMessage)
	if len(doc) > 0 {
		if err := json.Unmarshal(doc, &obj); err != nil {
			return nil, fmt.Errorf("decode document: %w", err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode field %q: %w", k, err)
		}
		obj[k] = raw
	}
	return json.Marshal(obj)
}
