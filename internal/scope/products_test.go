package scope

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/transport"
)

func boolPtr(v bool) *bool { return &v }

func TestAvailable_ExplicitFlagWins(t *testing.T) {
	assert.True(t, Available(api.Product{IsAvailable: boolPtr(true), Status: "deleted"}))
	assert.False(t, Available(api.Product{IsAvailable: boolPtr(false), Status: "on_sale"}))
}

func TestAvailable_StatusKeywords(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"", true},
		{"0", true},
		{"on_sale", true},
		{"ACTIVE", true},
		{"in_stock", true},
		{"published", true},
		{"deleted", false},
		{"DELETED", false},
		{"sold_out", false},
		{"disabled", false},
		{"suspended", false},
		{"offline", false},
		{"unavailable", false},
		// statuses outside both keyword classes read as available
		{"some_new_status", true},
		{"platform_removed", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Available(api.Product{Status: tt.status}), "status %q", tt.status)
	}
}

func TestAvailable_NegativeClassBeatsPositiveSubstrings(t *testing.T) {
	// Every status in the negative class is unavailable even when it embeds
	// a positive keyword ("unbound" vs "bound", "inactive" vs "active").
	negatives := []string{
		"inactive", "unavailable", "off_sale", "offline", "disabled",
		"suspended", "deleted", "sold_out", "not_available", "blocked",
		"invalid", "unbound", "released",
	}
	for _, status := range negatives {
		assert.False(t, Available(api.Product{Status: status}), "status %q", status)
	}

	assert.True(t, Available(api.Product{Status: "bound"}))
	assert.True(t, Available(api.Product{Status: "active"}))
	assert.True(t, Available(api.Product{Status: "available"}))
}

func TestCountProducts(t *testing.T) {
	items := []api.Product{
		{ID: "1", Status: "on_sale"},
		{ID: "2", Status: "deleted"},
		{ID: "3", IsAvailable: boolPtr(true)},
	}

	counts := CountProducts(items, 40)
	assert.Equal(t, ProductCounts{Total: 40, Pulled: 3, Available: 2}, counts)
}

func newProductsView(t *testing.T, handler http.Handler, pollInterval time.Duration) (*ProductsView, *localstate.Store, *query.Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	state, err := localstate.NewStore(t.TempDir())
	require.NoError(t, err)

	cache := query.New()
	view := NewProductsView(ProductsParams{
		Service:      api.NewGMVMaxService(client, "ws-1", "tiktok-business"),
		Cache:        cache,
		State:        state,
		WorkspaceID:  "ws-1",
		AuthID:       "auth-1",
		PollInterval: pollInterval,
		LocalTTL:     10 * time.Minute,
	})
	return view, state, cache
}

func productsHandler(t *testing.T, calls *int32) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/products", r.URL.Path)
		require.Equal(t, "a1", r.URL.Query().Get("advertiser_id"))
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(map[string]any{
			"items": []map[string]any{
				{"product_id": 1, "name": "Lamp", "status": "on_sale"},
				{"product_id": 2, "name": "Mug", "status": "deleted"},
			},
			"total": 2, "page": 1, "page_size": 20,
		})
	})
}

func TestWatch_FetchesAndWritesThrough(t *testing.T) {
	var calls int32
	view, state, _ := newProductsView(t, productsHandler(t, &calls), time.Hour)

	sel := Selection{AuthID: "auth-1", AdvertiserID: "a1", StoreID: "s1"}
	ch := make(chan query.Snapshot, 8)
	sub := view.Watch(sel, 1, 20, func(s query.Snapshot) { ch <- s })
	defer sub.Close()

	var snap query.Snapshot
	deadline := time.After(2 * time.Second)
	for snap.State != query.Success {
		select {
		case snap = <-ch:
		case <-deadline:
			t.Fatal("timed out waiting for products")
		}
	}

	result := snap.Data.(api.ProductPage)
	require.Len(t, result.Items, 2)
	assert.Equal(t, "Lamp", result.Items[0].Title)

	// Write-through mirror lands for page 1 under the selected store.
	assert.Eventually(t, func() bool {
		var rec localstate.ProductsRecord
		return state.Get(localstate.ProductsKey("ws-1", "auth-1", "s1"), 0, &rec) && rec.Total == 2
	}, time.Second, 10*time.Millisecond)

	counts, ok := view.Counts(sel, 1)
	require.True(t, ok)
	assert.Equal(t, ProductCounts{Total: 2, Pulled: 2, Available: 1}, counts)
}

func TestWatch_IncompleteSelectionStaysIdle(t *testing.T) {
	var calls int32
	view, _, _ := newProductsView(t, productsHandler(t, &calls), time.Hour)

	sub := view.Watch(Selection{AuthID: "auth-1", AdvertiserID: "a1"}, 1, 20, nil)
	defer sub.Close()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, atomic.LoadInt32(&calls), "no store selected, no fetch")
}

func TestWatch_LocalCacheSeedsFirstPaint(t *testing.T) {
	var calls int32
	view, state, _ := newProductsView(t, productsHandler(t, &calls), time.Hour)

	state.Put(localstate.ProductsKey("ws-1", "auth-1", "s1"), localstate.ProductsRecord{
		Products: []api.Product{{ID: "9", Title: "Cached"}},
		Total:    1,
	})

	sel := Selection{AuthID: "auth-1", AdvertiserID: "a1", StoreID: "s1"}
	ch := make(chan query.Snapshot, 8)
	sub := view.Watch(sel, 1, 20, func(s query.Snapshot) { ch <- s })
	defer sub.Close()

	select {
	case snap := <-ch:
		require.Equal(t, query.Success, snap.State, "cached record paints immediately")
		result := snap.Data.(api.ProductPage)
		require.Len(t, result.Items, 1)
		assert.Equal(t, "Cached", result.Items[0].Title)
	case <-time.After(time.Second):
		t.Fatal("no initial snapshot")
	}
}

func TestInvalidate_DropsLocalMirrorAndRefetches(t *testing.T) {
	var calls int32
	view, state, _ := newProductsView(t, productsHandler(t, &calls), time.Hour)

	sel := Selection{AuthID: "auth-1", AdvertiserID: "a1", StoreID: "s1"}
	ch := make(chan query.Snapshot, 8)
	sub := view.Watch(sel, 1, 20, func(s query.Snapshot) { ch <- s })
	defer sub.Close()

	deadline := time.After(2 * time.Second)
	for {
		var snap query.Snapshot
		select {
		case snap = <-ch:
		case <-deadline:
			t.Fatal("timed out")
		}
		if snap.State == query.Success {
			break
		}
	}

	view.Invalidate()

	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&calls) >= 2
	}, 2*time.Second, 10*time.Millisecond, "mounted page refetches on invalidate")

	var rec localstate.ProductsRecord
	// The refetch writes through again, so only assert the delete happened
	// before that by checking call count instead of absence.
	state.Get(localstate.ProductsKey("ws-1", "auth-1", "s1"), 0, &rec)
}

func TestWatch_LocalCacheIsPerStore(t *testing.T) {
	var calls int32
	view, state, _ := newProductsView(t, productsHandler(t, &calls), time.Hour)

	// A fresh record cached under another store of the same binding.
	state.Put(localstate.ProductsKey("ws-1", "auth-1", "s1"), localstate.ProductsRecord{
		Products: []api.Product{{ID: "9", Title: "Other store"}},
		Total:    1,
	})

	sel := Selection{AuthID: "auth-1", AdvertiserID: "a1", StoreID: "s2"}
	ch := make(chan query.Snapshot, 8)
	sub := view.Watch(sel, 1, 20, func(s query.Snapshot) { ch <- s })
	defer sub.Close()

	deadline := time.After(2 * time.Second)
	for {
		var snap query.Snapshot
		select {
		case snap = <-ch:
		case <-deadline:
			t.Fatal("timed out waiting for products")
		}
		if snap.State == query.Success {
			result := snap.Data.(api.ProductPage)
			require.Len(t, result.Items, 2, "s2 renders its own fetch, never s1's cache")
			assert.Equal(t, "Lamp", result.Items[0].Title)
			return
		}
		if snap.Data != nil {
			result := snap.Data.(api.ProductPage)
			for _, item := range result.Items {
				assert.NotEqual(t, "Other store", item.Title, "another store's cache must not seed this one")
			}
		}
	}
}
