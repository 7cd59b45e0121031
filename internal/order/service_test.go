package order

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wichananm65/heladeria-backend/internal/docstore"
	"github.com/wichananm65/heladeria-backend/internal/docstore/memstore"
	"github.com/wichananm65/heladeria-backend/internal/eventlog"
	"github.com/wichananm65/heladeria-backend/internal/flavor"
	"github.com/wichananm65/heladeria-backend/internal/product"
	"github.com/wichananm65/heladeria-backend/internal/weight"
)

type fixture struct {
	store   *memstore.Store
	flavors *flavor.Service
	events  *eventlog.InMemoryRepository
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	flavors := flavor.NewService(store)
	for _, f := range []flavor.Flavor{
		{ID: "choc", Name: "Chocolate", Weight: 5000, Active: true},
		{ID: "dulce", Name: "Dulce de Leche", Weight: 5000, Active: true},
		{ID: "limon", Name: "Limón", Weight: 5000, Active: true},
		{ID: "menta", Name: "Menta", Weight: 5000, Active: false},
	} {
		_, err := flavors.Create(context.Background(), f)
		require.NoError(t, err)
	}
	events := eventlog.NewInMemoryRepository()
	return &fixture{
		store:   store,
		flavors: flavors,
		events:  events,
		svc:     NewService(store, flavors, eventlog.NewLogger(events, nil)),
	}
}

func (f *fixture) eventTypes(t *testing.T, orderID string) []eventlog.Type {
	t.Helper()
	evs, err := f.events.List(context.Background(), eventlog.Query{OrderID: orderID})
	require.NoError(t, err)
	out := make([]eventlog.Type, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		out = append(out, evs[i].Type)
	}
	return out
}

func cone(gustos ...string) Item {
	return Item{ProductID: "p1", Title: "Helado 1/4 kg", Price: 3500, Quantity: 1, Gustos: gustos}
}

func TestCreate_ResolvesFlavorNames(t *testing.T) {
	f := newFixture(t)

	o, err := f.svc.Create(context.Background(), Order{
		Customer: Customer{Name: "Ana", Phone: "011 2345-6789"},
		Items: []Item{
			cone("chocolate", "DULCE DE LECHE", "limon"),
			{ProductID: "p2", Title: "Cucurucho extra", Price: 250.555, Quantity: 2},
		},
		Shipping: Shipping{Estimated: 800, Zone: "centro"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, []string{"choc", "dulce", "limon"}, o.Items[0].Gustos)
	assert.Equal(t, 4001.11, o.Total)
	assert.Equal(t, "+541123456789", o.Customer.Phone)
	assert.Nil(t, o.Shipping.Final)

	stored, err := f.svc.Get(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.Items, stored.Items)
	assert.Equal(t, []eventlog.Type{eventlog.OrderCreated}, f.eventTypes(t, o.ID))
}

func TestCreate_Rejects(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		items []Item
		check func(t *testing.T, err error)
	}{
		{"empty", nil, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrEmptyOrder) }},
		{"zero quantity", []Item{{Title: "Helado 1/4", Price: 1}}, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidItem) }},
		{"negative price", []Item{{Title: "x", Price: -1, Quantity: 1}}, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrInvalidItem) }},
		{"too many flavors", []Item{cone("choc", "dulce", "limon", "choc")}, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrTooManyFlavors) }},
		{"inactive flavor", []Item{cone("menta")}, func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrFlavorInactive) }},
		{"unknown flavor", []Item{cone("pistacho")}, func(t *testing.T, err error) { assert.ErrorIs(t, err, flavor.ErrNotFound) }},
		{"unknown size", []Item{{Title: "Helado grande", Price: 1, Quantity: 1, Gustos: []string{"choc"}}}, func(t *testing.T, err error) {
			var unknown *weight.UnknownWeightError
			assert.True(t, errors.As(err, &unknown), "got %v", err)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), Order{Items: tt.items})
			require.Error(t, err)
			tt.check(t, err)
		})
	}

	all, err := f.svc.ListActive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCreate_KiloAllowsFourFlavors(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), Order{Items: []Item{
		{Title: "Helado 1 kg", Price: 9000, Quantity: 1, Gustos: []string{"choc", "dulce", "limon", "choc"}},
	}})
	require.NoError(t, err)
}

func TestUpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusCompleted, "admin@x")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	o, err = f.svc.UpdateStatus(ctx, o.ID, StatusInTransit, "admin@x")
	require.NoError(t, err)
	assert.Equal(t, StatusInTransit, o.Status)
	assert.Nil(t, o.CompletedAt)

	// same status is a no-op and logs nothing
	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusInTransit, "admin@x")
	require.NoError(t, err)

	o, err = f.svc.UpdateStatus(ctx, o.ID, StatusCompleted, "admin@x")
	require.NoError(t, err)
	require.NotNil(t, o.CompletedAt)

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusCancelled, "admin@x")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	assert.Equal(t, []eventlog.Type{
		eventlog.OrderCreated, eventlog.OrderStatusChanged, eventlog.OrderStatusChanged,
	}, f.eventTypes(t, o.ID))

	_, err = f.svc.UpdateStatus(ctx, "missing", StatusCancelled, "admin@x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func archive(t *testing.T, f *fixture, id string, at time.Time) {
	t.Helper()
	_, _, err := f.svc.repo.Mutate(context.Background(), id, func(o Order) (docstore.Fields, error) {
		return docstore.Fields{"archived": true, "archivedAt": at}, nil
	})
	require.NoError(t, err)
}

func TestArchivedOrdersAreFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)
	archive(t, f, o.ID, time.Now())

	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusCancelled, "admin")
	assert.ErrorIs(t, err, ErrArchived)
	_, err = f.svc.SetFinalShipping(ctx, o.ID, 100, "admin")
	assert.ErrorIs(t, err, ErrArchived)
	assert.ErrorIs(t, f.svc.Delete(ctx, o.ID, "admin"), ErrArchived)
}

func TestSetFinalShippingAndDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}, Shipping: Shipping{Estimated: 500, Zone: "norte"}})
	require.NoError(t, err)

	_, err = f.svc.SetFinalShipping(ctx, o.ID, -1, "admin")
	assert.ErrorIs(t, err, ErrInvalidItem)

	o, err = f.svc.SetFinalShipping(ctx, o.ID, 650.505, "admin")
	require.NoError(t, err)
	require.NotNil(t, o.Shipping.Final)
	assert.Equal(t, 650.51, *o.Shipping.Final)
	assert.Equal(t, 500.0, o.Shipping.Estimated)
	assert.Equal(t, "norte", o.Shipping.Zone)

	require.NoError(t, f.svc.Delete(ctx, o.ID, "admin"))
	_, err = f.svc.Get(ctx, o.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, []eventlog.Type{
		eventlog.OrderCreated, eventlog.OrderShippingUpdated, eventlog.OrderDeleted,
	}, f.eventTypes(t, o.ID))
}

func TestListArchived(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 5; i++ {
		o, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
		require.NoError(t, err)
		archive(t, f, o.ID, base.Add(time.Duration(i)*time.Hour))
		ids = append(ids, o.ID)
	}
	late, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)
	archive(t, f, late.ID, base.Add(48*time.Hour))
	_, err = f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)

	page, err := f.svc.ListArchived(ctx, PageRequest{Size: 2, Date: "2026-03-10"})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	assert.Equal(t, ids[4], page.Orders[0].ID)
	assert.Equal(t, ids[3], page.Orders[1].ID)
	assert.Equal(t, ids[3], page.Next)

	page, err = f.svc.ListArchived(ctx, PageRequest{Size: 2, Date: "2026-03-10", After: page.Next})
	require.NoError(t, err)
	assert.Equal(t, ids[2], page.Orders[0].ID)

	page, err = f.svc.ListArchived(ctx, PageRequest{Size: 10, Date: "2026-03-10", After: page.Next})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 1)
	assert.Empty(t, page.Next)

	page, err = f.svc.ListArchived(ctx, PageRequest{})
	require.NoError(t, err)
	assert.Len(t, page.Orders, 6)
	assert.Equal(t, late.ID, page.Orders[0].ID)

	_, err = f.svc.ListArchived(ctx, PageRequest{Date: "10/03/2026"})
	assert.ErrorIs(t, err, ErrInvalidDate)
	_, err = f.svc.ListArchived(ctx, PageRequest{After: "nope"})
	assert.ErrorIs(t, err, ErrInvalidCursor)

	active, err := f.svc.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestListCompletedBefore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }

	o, err := f.svc.Create(ctx, Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusInTransit, "admin")
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, o.ID, StatusCompleted, "admin")
	require.NoError(t, err)

	got, err := f.svc.ListCompletedBefore(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = f.svc.ListCompletedBefore(ctx, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, o.ID, got[0].ID)
}

func TestMigrateFlavorRefs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	legacy := Order{
		ID:     "legacy",
		Status: StatusCompleted,
		Items: []Item{
			{Title: "Helado 1/2 kg", Price: 1, Quantity: 1, Gustos: []string{"Chocolate", "dulce de leche", "choc"}},
			{Title: "Helado 1/4 kg", Price: 1, Quantity: 1, Gustos: []string{"Frutilla"}},
		},
	}
	done := Order{ID: "done", Archived: true, Items: []Item{{Title: "1/4", Gustos: []string{"Limón"}}}}
	require.NoError(t, f.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		if err := tx.Set(Ref(legacy.ID), legacy); err != nil {
			return err
		}
		return tx.Set(Ref(done.ID), done)
	}))

	report, err := f.svc.MigrateFlavorRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, []string{"Frutilla"}, report.Unresolved)

	got, err := f.svc.Get(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, []string{"choc", "dulce", "choc"}, got.Items[0].Gustos)
	assert.Equal(t, []string{"Frutilla"}, got.Items[1].Gustos)

	untouched, err := f.svc.Get(ctx, "done")
	require.NoError(t, err)
	assert.Equal(t, []string{"Limón"}, untouched.Items[0].Gustos)

	report, err = f.svc.MigrateFlavorRefs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Updated)
}

func TestEventLogFailureDoesNotFailWrites(t *testing.T) {
	f := newFixture(t)
	f.events.Err = errors.New("disk full")

	o, err := f.svc.Create(context.Background(), Order{Items: []Item{cone("choc")}})
	require.NoError(t, err)
	_, err = f.svc.Get(context.Background(), o.ID)
	assert.NoError(t, err)
}

func TestCreate_UsesCatalog(t *testing.T) {
	f := newFixture(t)
	catalog := product.NewInMemoryRepository([]product.Product{
		{ID: "cuarto", Title: "Cuarto de helado", Price: 2500, Category: product.CategorySizes, Grams: 250, MaxFlavors: 2},
		{ID: "vaso", Title: "Vaso", Price: 3000, Category: product.CategorySizes, Grams: 300},
	})
	f.svc.WithCatalog(catalog)
	ctx := context.Background()

	// the product limit is tighter than what the size allows
	_, err := f.svc.Create(ctx, Order{Items: []Item{{ProductID: "cuarto", Title: "Cuarto de helado", Price: 2500, Quantity: 1, Gustos: []string{"choc", "dulce", "limon"}}}})
	assert.ErrorIs(t, err, ErrTooManyFlavors)

	// grams come from the product, the title alone has no size
	o, err := f.svc.Create(ctx, Order{Items: []Item{{ProductID: "vaso", Title: "Vaso", Price: 3000, Quantity: 1, Gustos: []string{"choc"}}}})
	require.NoError(t, err)
	assert.Equal(t, 300.0, o.Items[0].Grams)
	assert.Equal(t, product.CategorySizes, o.Items[0].Category)

	_, err = f.svc.Create(ctx, Order{Items: []Item{{ProductID: "gone", Title: "KG de helado", Price: 8000, Quantity: 1}}})
	assert.ErrorIs(t, err, ErrUnknownProduct)
}
