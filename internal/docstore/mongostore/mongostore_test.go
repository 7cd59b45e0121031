package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
)

func TestDocumentConversionKeepsNumbersUsable(t *testing.T) {
	doc, err := toBSON([]byte(`{"name":"Dulce de leche","weight":4999.5,"active":true,"count":3}`))
	require.NoError(t, err)

	raw, err := bson.Marshal(doc)
	require.NoError(t, err)
	out, err := toJSON(raw)
	require.NoError(t, err)

	var decoded struct {
		Name   string  `json:"name"`
		Weight float64 `json:"weight"`
		Active bool    `json:"active"`
		Count  int     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, "Dulce de leche", decoded.Name)
	assert.Equal(t, 4999.5, decoded.Weight)
	assert.True(t, decoded.Active)
	assert.Equal(t, 3, decoded.Count)
}

func TestToJSONEmpty(t *testing.T) {
	out, err := toJSON(nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(out))
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify(nil))

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	assert.ErrorIs(t, classify(dup), docstore.ErrConflict)

	conflict := mongo.CommandError{Code: writeConflictCode, Labels: []string{"TransientTransactionError"}}
	assert.ErrorIs(t, classify(conflict), docstore.ErrConflict)

	assert.NotErrorIs(t, classify(errors.New("no reachable servers")), docstore.ErrConflict)
}

// Runs against a replica set when MONGO_TEST_URI is set, e.g.
// mongodb://localhost:27017/?replicaSet=rs0
func TestStore_Integration(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, uri, "heladeria_test")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})

	ref := docstore.NewRef("flavors", "mint")
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		return tx.Set(ref, map[string]any{"name": "Mint", "weight": 1000})
	}))
	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		snap, err := tx.Get(ctx, ref)
		if err != nil {
			return err
		}
		var f struct {
			Weight float64 `json:"weight"`
		}
		if err := snap.DataTo(&f); err != nil {
			return err
		}
		return tx.Update(ref, docstore.Fields{"weight": f.Weight - 250})
	}))

	snap, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snap.Version)
	assert.JSONEq(t, `{"name":"Mint","weight":750}`, string(snap.Data))
}

func TestStore_IntegrationRecreateContinuesVersion(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	ctx := context.Background()
	s, err := Connect(ctx, uri, "heladeria_test_recreate")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = s.db.Drop(context.Background())
		_ = s.Close()
	})

	ref := docstore.NewRef("flavors", "lemon")
	create := func(weight int) error {
		return s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
			if _, err := tx.Get(ctx, ref); err != nil {
				return err
			}
			return tx.Set(ref, map[string]any{"weight": weight})
		})
	}
	require.NoError(t, create(2000))
	first, err := s.Get(ctx, ref)
	require.NoError(t, err)

	require.NoError(t, s.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if _, err := tx.Get(ctx, ref); err != nil {
			return err
		}
		return tx.Delete(ref)
	}))
	gone, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.False(t, gone.Exists)
	list, err := s.List(ctx, "flavors")
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, create(100))
	again, err := s.Get(ctx, ref)
	require.NoError(t, err)
	assert.Greater(t, again.Version, first.Version)
	assert.JSONEq(t, `{"weight":100}`, string(again.Data))
}
