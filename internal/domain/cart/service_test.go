package cart

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/cupcake-checkout/internal/domain/apperr"
	"github.com/xenking/cupcake-checkout/internal/domain/catalog"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newTestService(cupcakes ...catalog.Cupcake) (*Service, *mockStore, *mockCache) {
	store := newMockStore()
	cache := &mockCache{}
	cat := &mockCatalog{items: make(map[string]catalog.Cupcake)}
	for _, c := range cupcakes {
		cat.items[c.ID] = c
	}
	return NewService(store, cat, cache), store, cache
}

func TestAddItem(t *testing.T) {
	vanilla := catalog.Cupcake{ID: "c1", Name: "Vanilla", Price: d("12.90"), Stock: 5, IsActive: true}
	retired := catalog.Cupcake{ID: "c2", Name: "Retired", Price: d("9.90"), Stock: 5, IsActive: false}

	tests := []struct {
		name     string
		existing int
		cupcake  string
		quantity int
		wantQty  int
		wantErr  error
	}{
		{name: "new line", cupcake: "c1", quantity: 2, wantQty: 2},
		{name: "merge with existing line", existing: 2, cupcake: "c1", quantity: 3, wantQty: 5},
		{name: "merged quantity exceeds stock", existing: 3, cupcake: "c1", quantity: 3, wantErr: apperr.ErrValidation},
		{name: "quantity exceeds stock", cupcake: "c1", quantity: 6, wantErr: apperr.ErrValidation},
		{name: "zero quantity", cupcake: "c1", quantity: 0, wantErr: apperr.ErrValidation},
		{name: "quantity above maximum", cupcake: "c1", quantity: MaxQuantity + 1, wantErr: apperr.ErrValidation},
		{name: "unknown cupcake", cupcake: "missing", quantity: 1, wantErr: apperr.ErrNotFound},
		{name: "inactive cupcake", cupcake: "c2", quantity: 1, wantErr: apperr.ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store, cache := newTestService(vanilla, retired)
			if tt.existing > 0 {
				store.lines["u1"] = map[string]int{tt.cupcake: tt.existing}
			}

			err := svc.AddItem(context.Background(), "u1", tt.cupcake, tt.quantity)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Zero(t, cache.deletes)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantQty, store.lines["u1"][tt.cupcake])
			assert.Equal(t, 1, cache.deletes)
		})
	}
}

func TestAddItem_InsufficientStockMessage(t *testing.T) {
	svc, _, _ := newTestService(catalog.Cupcake{ID: "c1", Name: "Vanilla", Price: d("1"), Stock: 3, IsActive: true})

	err := svc.AddItem(context.Background(), "u1", "c1", 5)
	require.ErrorIs(t, err, apperr.ErrValidation)
	assert.Contains(t, err.Error(), "Vanilla")
	assert.Contains(t, err.Error(), "Available: 3")
	assert.Contains(t, err.Error(), "requested: 5")
}

func TestUpdateQuantity(t *testing.T) {
	vanilla := catalog.Cupcake{ID: "c1", Name: "Vanilla", Price: d("12.90"), Stock: 5, IsActive: true}

	t.Run("replaces quantity", func(t *testing.T) {
		svc, store, _ := newTestService(vanilla)
		store.lines["u1"] = map[string]int{"c1": 1}

		require.NoError(t, svc.UpdateQuantity(context.Background(), "u1", "c1", 4))
		assert.Equal(t, 4, store.lines["u1"]["c1"])
	})

	t.Run("below minimum", func(t *testing.T) {
		svc, store, _ := newTestService(vanilla)
		store.lines["u1"] = map[string]int{"c1": 1}

		err := svc.UpdateQuantity(context.Background(), "u1", "c1", 0)
		require.ErrorIs(t, err, apperr.ErrValidation)
	})

	t.Run("missing line", func(t *testing.T) {
		svc, _, _ := newTestService(vanilla)

		err := svc.UpdateQuantity(context.Background(), "u1", "c1", 2)
		require.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestRemoveItem_Missing(t *testing.T) {
	svc, _, _ := newTestService()

	err := svc.RemoveItem(context.Background(), "u1", "c1")
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestView_ReadThroughCache(t *testing.T) {
	svc, store, _ := newTestService()
	store.snapshot = Snapshot{
		UserID: "u1",
		Lines:  []Line{{CupcakeID: "c1", Quantity: 2, UnitPrice: d("12.90"), AvailableStock: 10}},
	}

	first, err := svc.View(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, d("25.80").Equal(first.ItemsSubtotal()))
	assert.Equal(t, 1, store.reads)

	second, err := svc.View(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, first.Lines, second.Lines)
	assert.Equal(t, 1, store.reads, "second view must be served from cache")
}

func TestView_CacheErrorFallsBackToStore(t *testing.T) {
	svc, store, cache := newTestService()
	cache.getErr = errors.New("connection refused")
	store.snapshot = Snapshot{UserID: "u1"}

	snap, err := svc.View(context.Background(), "u1")
	require.NoError(t, err)
	assert.True(t, snap.IsEmpty())
	assert.Equal(t, 1, store.reads)
}

// --- Mock implementations ---

type mockStore struct {
	lines    map[string]map[string]int
	snapshot Snapshot
	reads    int
}

func newMockStore() *mockStore {
	return &mockStore{lines: make(map[string]map[string]int)}
}

func (m *mockStore) ReadItems(_ context.Context, _ string) (Snapshot, error) {
	m.reads++
	return m.snapshot, nil
}

func (m *mockStore) FindLine(_ context.Context, userID, cupcakeID string) (*Line, error) {
	qty, ok := m.lines[userID][cupcakeID]
	if !ok {
		return nil, ErrLineNotFound
	}
	return &Line{CupcakeID: cupcakeID, Quantity: qty}, nil
}

func (m *mockStore) InsertLine(_ context.Context, userID, cupcakeID string, quantity int) error {
	if m.lines[userID] == nil {
		m.lines[userID] = make(map[string]int)
	}
	m.lines[userID][cupcakeID] = quantity
	return nil
}

func (m *mockStore) SetQuantity(_ context.Context, userID, cupcakeID string, quantity int) error {
	m.lines[userID][cupcakeID] = quantity
	return nil
}

func (m *mockStore) DeleteLine(_ context.Context, userID, cupcakeID string) error {
	if _, ok := m.lines[userID][cupcakeID]; !ok {
		return ErrLineNotFound
	}
	delete(m.lines[userID], cupcakeID)
	return nil
}

func (m *mockStore) Clear(_ context.Context, userID string) error {
	delete(m.lines, userID)
	return nil
}

type mockCatalog struct {
	items map[string]catalog.Cupcake
}

func (m *mockCatalog) GetByID(_ context.Context, id string) (*catalog.Cupcake, error) {
	c, ok := m.items[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &c, nil
}

type mockCache struct {
	stored  *Snapshot
	getErr  error
	deletes int
}

func (m *mockCache) Get(_ context.Context, _ string) (*Snapshot, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	if m.stored == nil {
		return nil, ErrCacheMiss
	}
	return m.stored, nil
}

func (m *mockCache) Set(_ context.Context, s *Snapshot) error {
	m.stored = s
	return nil
}

func (m *mockCache) Delete(_ context.Context, _ string) error {
	m.deletes++
	m.stored = nil
	return nil
}
