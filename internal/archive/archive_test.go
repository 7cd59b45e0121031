package archive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/docstore/memstore"
	"github.com/wichananm65/heladeria-backend/internal/eventlog"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/order"
	"github.com/wichananm65/heladeria-backend/internal/pubsub"
	"github.com/wichananm65/heladeria-backend/internal/stockalert"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

type env struct {
	store    *memstore.Store
	events   *eventlog.InMemoryRepository
	pub      *pubsub.Recorder
	archiver *Archiver
}

func newEnv(t *testing.T, opts ...memstore.Option) *env {
	t.Helper()
	store := memstore.New(opts...)
	events := eventlog.NewInMemoryRepository()
	pub := &pubsub.Recorder{}
	return &env{
		store:    store,
		events:   events,
		pub:      pub,
		archiver: NewArchiver(store, eventlog.NewLogger(events, nil), stockalert.NewRecorder(store, pub)),
	}
}

func (e *env) put(t *testing.T, docs ...interface{}) {
	t.Helper()
	err := e.store.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
		for _, d := range docs {
			var err error
			switch v := d.(type) {
			case flavor.Flavor:
				err = tx.Set(flavor.Ref(v.ID), v)
			case order.Order:
				err = tx.Set(order.Ref(v.ID), v)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func (e *env) weightOf(t *testing.T, id string) float64 {
	t.Helper()
	snap, err := e.store.Get(context.Background(), flavor.Ref(id))
	require.NoError(t, err)
	require.True(t, snap.Exists, "flavor %s missing", id)
	var f flavor.Flavor
	require.NoError(t, snap.DataTo(&f))
	return f.Weight
}

func (e *env) order(t *testing.T, id string) order.Order {
	t.Helper()
	o, err := order.NewRepository(e.store).Get(context.Background(), id)
	require.NoError(t, err)
	return o
}

func (e *env) archivedEvents(t *testing.T, orderID string) []eventlog.Event {
	t.Helper()
	evs, err := e.events.List(context.Background(), eventlog.Query{OrderID: orderID, Types: []eventlog.Type{eventlog.OrderArchived}})
	require.NoError(t, err)
	return evs
}

func completed(id string, items ...order.Item) order.Order {
	return order.Order{ID: id, Status: order.StatusCompleted, Items: items}
}

func item(title string, gustos ...string) order.Item {
	return order.Item{Title: title, Price: 1, Quantity: 1, Gustos: gustos}
}

func fl(id string, grams float64) flavor.Flavor {
	return flavor.Flavor{ID: id, Name: id, Weight: grams, Active: true}
}

func TestArchive_SplitsHalfKiloBetweenTwoFlavors(t *testing.T) {
	e := newEnv(t)
	e.put(t, fl("vanilla", 2000), fl("choco", 2000),
		completed("o1", item("Medio KG de helado", "vanilla", "choco")))

	res, err := e.archiver.Archive(context.Background(), "o1", "admin@x")
	require.NoError(t, err)
	assert.False(t, res.AlreadyArchived)
	require.Len(t, res.Deductions, 2, spew.Sdump(res))
	assert.Equal(t, Deduction{FlavorID: "vanilla", Name: "vanilla", Grams: 250, Remaining: 1750}, res.Deductions[0])

	assert.Equal(t, 1750.0, e.weightOf(t, "vanilla"))
	assert.Equal(t, 1750.0, e.weightOf(t, "choco"))
	o := e.order(t, "o1")
	assert.True(t, o.Archived)
	require.NotNil(t, o.ArchivedAt)

	evs := e.archivedEvents(t, "o1")
	require.Len(t, evs, 1)
	assert.Equal(t, "admin@x", evs[0].Actor)
	assert.Len(t, evs[0].Meta["deductions"], 2)
}

func TestArchive_InsufficientStockLeavesEverythingUntouched(t *testing.T) {
	e := newEnv(t)
	e.put(t, fl("vanilla", 2000), fl("choco", 100),
		completed("o1", item("Medio KG de helado", "vanilla", "choco")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, "choco", insufficient.FlavorID)
	assert.Equal(t, 250.0, insufficient.Required)
	assert.Equal(t, 100.0, insufficient.Available)

	assert.Equal(t, 2000.0, e.weightOf(t, "vanilla"))
	assert.Equal(t, 100.0, e.weightOf(t, "choco"))
	assert.False(t, e.order(t, "o1").Archived)
	assert.Empty(t, e.archivedEvents(t, "o1"))
}

func TestArchive_KiloNeedsFullKilo(t *testing.T) {
	e := newEnv(t)
	e.put(t, fl("mint", 900), completed("o1", item("Kilo", "mint")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, 1000.0, insufficient.Required)
	assert.Equal(t, 900.0, e.weightOf(t, "mint"))
}

func TestArchive_AlreadyArchivedIsNoOp(t *testing.T) {
	e := newEnv(t)
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	o := completed("o1", item("1/4 kg", "vanilla"))
	o.Archived = true
	o.ArchivedAt = &at
	e.put(t, fl("vanilla", 2000), o)

	res, err := e.archiver.Archive(context.Background(), "o1", "admin")
	require.NoError(t, err)
	assert.True(t, res.AlreadyArchived)
	assert.True(t, at.Equal(res.ArchivedAt))
	assert.Empty(t, res.Deductions)
	assert.Equal(t, 2000.0, e.weightOf(t, "vanilla"))
	assert.Empty(t, e.archivedEvents(t, "o1"))
}

func TestArchive_UnknownWeight(t *testing.T) {
	e := newEnv(t)
	e.put(t, fl("vanilla", 2000), completed("o1", item("helado sorpresa", "vanilla")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	var unknown *weight.UnknownWeightError
	require.True(t, errors.As(err, &unknown), "got %v", err)
	assert.Equal(t, "helado sorpresa", unknown.Title)
	assert.Equal(t, 2000.0, e.weightOf(t, "vanilla"))
	assert.False(t, e.order(t, "o1").Archived)
}

func TestArchive_Preconditions(t *testing.T) {
	e := newEnv(t)
	pending := completed("pending", item("1/4", "vanilla"))
	pending.Status = order.StatusPending
	e.put(t, fl("vanilla", 2000),
		pending,
		completed("empty"),
		completed("ghost-flavor", item("1/4", "vanilla"), item("1/4", "ghost")),
	)

	_, err := e.archiver.Archive(context.Background(), "missing", "admin")
	var notFound *OrderNotFoundError
	assert.True(t, errors.As(err, &notFound), "got %v", err)

	_, err = e.archiver.Archive(context.Background(), "pending", "admin")
	var notCompleted *OrderNotCompletedError
	assert.True(t, errors.As(err, &notCompleted), "got %v", err)

	_, err = e.archiver.Archive(context.Background(), "empty", "admin")
	var malformed *MalformedOrderError
	assert.True(t, errors.As(err, &malformed), "got %v", err)

	_, err = e.archiver.Archive(context.Background(), "ghost-flavor", "admin")
	var noFlavor *FlavorNotFoundError
	require.True(t, errors.As(err, &noFlavor), "got %v", err)
	assert.Equal(t, "ghost", noFlavor.FlavorID)
	assert.Equal(t, 2000.0, e.weightOf(t, "vanilla"))
}

func TestArchive_AccumulatesFlavorAcrossItems(t *testing.T) {
	e := newEnv(t)
	// 250 + 125 from vanilla: each item alone fits in 300 g, together they do not
	e.put(t, fl("vanilla", 300), fl("choco", 1000),
		completed("o1", item("1/4 kg", "vanilla"), item("Medio kilo", "vanilla", "choco", "choco", "choco")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient), "got %v", err)
	assert.Equal(t, 375.0, insufficient.Required)
	assert.Equal(t, 300.0, e.weightOf(t, "vanilla"))
	assert.Equal(t, 1000.0, e.weightOf(t, "choco"))
}

func TestRequirements_RoundsShares(t *testing.T) {
	reqs, err := Requirements(completed("o1",
		item("1/4 kg", "a", "b", "c"),
		item("Cucurucho"),
		order.Item{Title: "Pote", Grams: 100, Gustos: []string{"a", "a", "a"}},
	))
	require.NoError(t, err)
	assert.Equal(t, []Requirement{
		{FlavorID: "a", Grams: 183.33},
		{FlavorID: "b", Grams: 83.33},
		{FlavorID: "c", Grams: 83.34},
	}, reqs)
}

func TestRequirements_SharesAddUpToItemWeight(t *testing.T) {
	for _, tt := range []struct {
		title  string
		gustos []string
	}{
		{"1/4 kg", []string{"a", "b", "c"}},
		{"1 kg", []string{"a", "b", "c"}},
		{"Medio kg", []string{"a", "b", "c"}},
		{"1 kg", []string{"a", "b", "c", "d"}},
	} {
		o := completed("o1", item(tt.title, tt.gustos...))
		grams, err := weight.Resolve(tt.title, 0)
		require.NoError(t, err)
		reqs, err := Requirements(o)
		require.NoError(t, err)
		total := 0.0
		for _, r := range reqs {
			total += r.Grams
		}
		assert.Equal(t, grams, weight.Round(total), tt.title)
	}
}

func TestArchive_StockAlerts(t *testing.T) {
	e := newEnv(t)
	e.put(t, fl("vanilla", 3100), fl("choco", 10000),
		completed("o1", item("Medio kg", "vanilla", "choco")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	require.NoError(t, err)

	msgs := e.pub.Messages(pubsub.TopicStockAlerts)
	require.Len(t, msgs, 1)
	assert.Contains(t, string(msgs[0].Payload), `"flavorId":"vanilla"`)
	assert.Contains(t, string(msgs[0].Payload), `"status":"warning"`)
}

func TestArchive_EventLogFailureDoesNotRollBack(t *testing.T) {
	e := newEnv(t)
	e.events.Err = errors.New("event store down")
	e.put(t, fl("vanilla", 2000), completed("o1", item("1/4", "vanilla")))

	_, err := e.archiver.Archive(context.Background(), "o1", "admin")
	require.NoError(t, err)
	assert.True(t, e.order(t, "o1").Archived)
	assert.Equal(t, 1750.0, e.weightOf(t, "vanilla"))
}

func TestArchive_RetriesOnConflictWithFreshReads(t *testing.T) {
	var (
		mu    sync.Mutex
		armed bool
		fired bool
		e     *env
	)
	attempts := 0
	e = newEnv(t, memstore.WithPreCommitHook(func(attempt int) {
		mu.Lock()
		if !armed || fired {
			mu.Unlock()
			return
		}
		fired = true
		mu.Unlock()
		attempts = attempt
		// a stock edit lands between the archive's reads and its commit
		err := e.store.RunTransaction(context.Background(), func(ctx context.Context, tx docstore.Tx) error {
			f, err := flavor.GetInTx(ctx, tx, "vanilla")
			if err != nil {
				return err
			}
			return flavor.SetWeightInTx(tx, f.ID, 400, time.Now())
		})
		if err != nil {
			t.Errorf("competing write: %v", err)
		}
	}))
	e.put(t, fl("vanilla", 2000), completed("o1", item("1/4", "vanilla")))
	mu.Lock()
	armed = true
	mu.Unlock()

	res, err := e.archiver.Archive(context.Background(), "o1", "admin")
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 150.0, res.Deductions[0].Remaining)
	assert.Equal(t, 150.0, e.weightOf(t, "vanilla"))
}

func TestArchive_ConcurrentOrdersSharingAFlavor(t *testing.T) {
	e := newEnv(t, memstore.WithMaxAttempts(50))
	// room for exactly four quarter-kilo orders
	e.put(t, fl("vanilla", 1000))
	const n = 10
	for i := 0; i < n; i++ {
		e.put(t, completed(string(rune('a'+i)), item("1/4 kg", "vanilla")))
	}

	var (
		wg           sync.WaitGroup
		mu           sync.Mutex
		ok, rejected int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := e.archiver.Archive(context.Background(), id, "admin")
			mu.Lock()
			defer mu.Unlock()
			var insufficient *InsufficientStockError
			switch {
			case err == nil:
				ok++
			case errors.As(err, &insufficient):
				rejected++
			default:
				t.Errorf("order %s: %v", id, err)
			}
		}(string(rune('a' + i)))
	}
	wg.Wait()

	assert.Equal(t, 4, ok)
	assert.Equal(t, n-4, rejected)
	assert.Equal(t, 0.0, e.weightOf(t, "vanilla"))
}

func TestArchive_SameOrderTwiceDeductsOnce(t *testing.T) {
	e := newEnv(t, memstore.WithMaxAttempts(50))
	e.put(t, fl("vanilla", 2000), completed("o1", item("1 kg", "vanilla")))

	const n = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		fresh int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.archiver.Archive(context.Background(), "o1", "admin")
			if err != nil {
				t.Errorf("archive: %v", err)
				return
			}
			if !res.AlreadyArchived {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1000.0, e.weightOf(t, "vanilla"))
	assert.Len(t, e.archivedEvents(t, "o1"), 1)
}

func TestOverride(t *testing.T) {
	e := newEnv(t)
	cancelled := completed("c1", item("1/4", "vanilla"))
	cancelled.Status = order.StatusCancelled
	inTransit := completed("t1", item("1/4", "vanilla"))
	inTransit.Status = order.StatusInTransit
	e.put(t, fl("vanilla", 2000), cancelled, inTransit)

	res, err := e.archiver.Override(context.Background(), "c1", "admin")
	require.NoError(t, err)
	assert.True(t, res.Override)
	assert.True(t, e.order(t, "c1").Archived)
	assert.Equal(t, 2000.0, e.weightOf(t, "vanilla"))

	evs := e.archivedEvents(t, "c1")
	require.Len(t, evs, 1)
	assert.Equal(t, true, evs[0].Meta["override"])

	res, err = e.archiver.Override(context.Background(), "c1", "admin")
	require.NoError(t, err)
	assert.True(t, res.AlreadyArchived)
	assert.Len(t, e.archivedEvents(t, "c1"), 1)

	_, err = e.archiver.Override(context.Background(), "t1", "admin")
	var notAllowed *OverrideNotAllowedError
	assert.True(t, errors.As(err, &notAllowed), "got %v", err)
}
