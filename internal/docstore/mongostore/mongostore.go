// Package mongostore keeps docstore documents in MongoDB. Each docstore
// collection maps to a Mongo collection holding {_id, version, data, deleted}.
// Transactions need a replica set.
//
// A delete flags the document instead of removing it, so its version keeps
// counting when the id is created again.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

const writeConflictCode = 112

type record struct {
	ID      string   `bson:"_id"`
	Version int64    `bson:"version"`
	Data    bson.Raw `bson:"data"`
	Deleted bool     `bson:"deleted,omitempty"`
}

// live matches documents that have not been deleted.
func live(id string) bson.M {
	return bson.M{"_id": id, "deleted": bson.M{"$ne": true}}
}

// Store implements docstore.Store on a *mongo.Database.
type Store struct {
	client      *mongo.Client
	db          *mongo.Database
	maxAttempts int
}

var _ docstore.Store = (*Store)(nil)

// Connect dials uri and uses the named database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return New(client, database), nil
}

func New(client *mongo.Client, database string) *Store {
	return &Store{
		client:      client,
		db:          client.Database(database),
		maxAttempts: docstore.DefaultMaxAttempts,
	}
}

// SetMaxAttempts overrides the optimistic retry budget.
func (s *Store) SetMaxAttempts(n int) {
	if n > 0 {
		s.maxAttempts = n
	}
}

func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

func (s *Store) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	return s.find(ctx, ref)
}

func (s *Store) find(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	var rec record
	err := s.db.Collection(ref.Collection).FindOne(ctx, live(ref.ID)).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return docstore.Snapshot{Ref: ref}, nil
	}
	if err != nil {
		return docstore.Snapshot{}, classify(fmt.Errorf("get %s: %w", ref, err))
	}
	return toSnapshot(ref.Collection, rec)
}

func (s *Store) List(ctx context.Context, collection string) ([]docstore.Snapshot, error) {
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{"deleted": bson.M{"$ne": true}}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	var recs []record
	if err := cursor.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	out := make([]docstore.Snapshot, 0, len(recs))
	for _, rec := range recs {
		snap, err := toSnapshot(collection, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, nil
}

func (s *Store) RunTransaction(ctx context.Context, fn docstore.TxFunc) error {
	return docstore.Retry(ctx, s.maxAttempts, func() error {
		return s.attempt(ctx, fn)
	})
}

func (s *Store) attempt(ctx context.Context, fn docstore.TxFunc) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	return mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sc.StartTransaction(); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		tx := &transaction{store: s, sc: sc, buf: docstore.NewBuffer()}
		if err := fn(sc, tx); err != nil {
			_ = sc.AbortTransaction(context.Background())
			return err
		}
		if err := tx.apply(); err != nil {
			_ = sc.AbortTransaction(context.Background())
			return err
		}
		if err := sc.CommitTransaction(sc); err != nil {
			return classify(fmt.Errorf("commit: %w", err))
		}
		return nil
	})
}

type transaction struct {
	store *Store
	sc    mongo.SessionContext
	buf   *docstore.Buffer
}

func (t *transaction) Get(ctx context.Context, ref docstore.Ref) (docstore.Snapshot, error) {
	if err := t.buf.CheckRead(); err != nil {
		return docstore.Snapshot{}, err
	}
	if s, ok := t.buf.Cached(ref); ok {
		return s, nil
	}
	snap, err := t.store.find(t.sc, ref)
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

func (t *transaction) coll(ref docstore.Ref) *mongo.Collection {
	return t.store.db.Collection(ref.Collection)
}

// apply writes the buffer inside the open transaction. Documents that were
// only read get a touch write so that a concurrent commit on them surfaces as
// a write conflict.
func (t *transaction) apply() error {
	for _, read := range t.buf.ReadOnly() {
		if !read.Exists {
			n, err := t.coll(read.Ref).CountDocuments(t.sc, live(read.Ref.ID))
			if err != nil {
				return classify(err)
			}
			if n != 0 {
				return fmt.Errorf("%s: %w", read.Ref, docstore.ErrConflict)
			}
			continue
		}
		filter := live(read.Ref.ID)
		filter["version"] = read.Version
		res, err := t.coll(read.Ref).UpdateOne(t.sc, filter,
			bson.M{"$inc": bson.M{"touch": 1}})
		if err := matched(read.Ref, res, err); err != nil {
			return err
		}
	}

	for _, w := range t.buf.Writes() {
		if err := t.applyWrite(w); err != nil {
			return err
		}
	}
	return nil
}

func (t *transaction) applyWrite(w *docstore.Write) error {
	ref := w.Ref
	coll := t.coll(ref)
	expected, guarded := w.Expected()

	if w.Kind == docstore.WriteDelete {
		filter := live(ref.ID)
		if guarded {
			if expected == 0 {
				return nil
			}
			filter["version"] = expected
		}
		res, err := coll.UpdateOne(t.sc, filter,
			bson.M{"$set": bson.M{"deleted": true, "data": bson.D{}}, "$inc": bson.M{"version": 1}})
		if !guarded {
			return classify(err)
		}
		return matched(ref, res, err)
	}

	current := docstore.Snapshot{Ref: ref}
	if guarded {
		current = *w.Base
	} else if w.Kind == docstore.WriteUpdate {
		snap, err := t.store.find(t.sc, ref)
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
	data, err := toBSON(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ref, err)
	}

	switch {
	case !guarded:
		_, err := coll.UpdateOne(t.sc,
			bson.M{"_id": ref.ID},
			bson.M{"$set": bson.M{"data": data, "deleted": false}, "$inc": bson.M{"version": 1}},
			options.Update().SetUpsert(true))
		return classify(err)
	case expected == 0:
		// revives a tombstone or inserts; a live document makes the upsert
		// collide on _id
		_, err := coll.UpdateOne(t.sc,
			bson.M{"_id": ref.ID, "deleted": true},
			bson.M{"$set": bson.M{"data": data, "deleted": false}, "$inc": bson.M{"version": 1}},
			options.Update().SetUpsert(true))
		return classify(err)
	default:
		filter := live(ref.ID)
		filter["version"] = expected
		res, err := coll.UpdateOne(t.sc, filter,
			bson.M{"$set": bson.M{"data": data, "version": expected + 1}})
		return matched(ref, res, err)
	}
}

func matched(ref docstore.Ref, res *mongo.UpdateResult, err error) error {
	if err != nil {
		return classify(fmt.Errorf("write %s: %w", ref, err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("%s: %w", ref, docstore.ErrConflict)
	}
	return nil
}

// classify turns duplicate keys and transaction write conflicts into
// docstore.ErrConflict.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %w", docstore.ErrConflict, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(writeConflictCode) {
			return fmt.Errorf("%w: %w", docstore.ErrConflict, err)
		}
	}
	return err
}

func toSnapshot(collection string, rec record) (docstore.Snapshot, error) {
	ref := docstore.NewRef(collection, rec.ID)
	data, err := toJSON(rec.Data)
	if err != nil {
		return docstore.Snapshot{}, fmt.Errorf("decode %s: %w", ref, err)
	}
	return docstore.Snapshot{Ref: ref, Exists: true, Version: rec.Version, Data: data}, nil
}

// toBSON converts a JSON object to a BSON document using relaxed extended JSON,
// so plain numbers and strings keep their natural BSON types.
func toBSON(body []byte) (bson.D, error) {
	var doc bson.D
	if err := bson.UnmarshalExtJSON(body, false, &doc); err != nil {
		return nil, err
	}
	return doc, nil
}

func toJSON(raw bson.Raw) ([]byte, error) {
	if len(raw) == 0 {
		return []byte(`{}`), nil
	}
	return bson.MarshalExtJSON(raw, false, false)
}
