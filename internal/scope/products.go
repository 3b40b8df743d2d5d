package scope

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/query"
)

// Status keyword classes for products whose payload carries no explicit
// availability flag. The negative class is checked first: "unbound" must not
// read as "bound", nor "not_available" as "available".
var (
	unavailableKeywords = []string{
		"inactive", "unavailable", "off_sale", "offline", "disabled",
		"suspended", "deleted", "sold_out", "not_available", "blocked",
		"invalid", "unbound", "released",
	}
	availableKeywords = []string{
		"available", "on_sale", "active", "online", "enabled", "published",
		"in_stock", "occupied", "binding", "bound", "in_use", "linked",
	}
)

// Available reports whether a product can be targeted. The explicit
// is_available flag always wins; keyword classes coerce bare status strings;
// unknown statuses read as available because the server-side filter is the
// source of truth.
func Available(p api.Product) bool {
	if p.IsAvailable != nil {
		return *p.IsAvailable
	}

	status := strings.ToLower(strings.TrimSpace(p.Status))
	if status == "" || status == "0" {
		return true
	}
	for _, kw := range unavailableKeywords {
		if strings.Contains(status, kw) {
			return false
		}
	}
	for _, kw := range availableKeywords {
		if strings.Contains(status, kw) {
			return true
		}
	}
	return true
}

// ProductCounts is the pull counter shown next to the product list.
type ProductCounts struct {
	Total     int
	Pulled    int
	Available int
}

// CountProducts folds a page into the pull counter. Total comes from the
// server envelope; Pulled and Available from the rows actually received.
func CountProducts(items []api.Product, total int) ProductCounts {
	counts := ProductCounts{Total: total, Pulled: len(items)}
	for _, p := range items {
		if Available(p) {
			counts.Available++
		}
	}
	return counts
}

// ProductsView drives the product listing for one account: cache-backed
// fetches, a poll that keeps the list live, and a write-through local cache
// so a restarted console shows the last known list immediately.
type ProductsView struct {
	svc   *api.GMVMaxService
	cache *query.Cache
	state *localstate.Store

	workspaceID  string
	authID       string
	pollInterval time.Duration
	localTTL     time.Duration
}

type ProductsParams struct {
	Service      *api.GMVMaxService
	Cache        *query.Cache
	State        *localstate.Store
	WorkspaceID  string
	AuthID       string
	PollInterval time.Duration
	LocalTTL     time.Duration
}

func NewProductsView(p ProductsParams) *ProductsView {
	if p.PollInterval <= 0 {
		p.PollInterval = 30 * time.Second
	}
	if p.LocalTTL <= 0 {
		p.LocalTTL = 10 * time.Minute
	}
	return &ProductsView{
		svc:          p.Service,
		cache:        p.Cache,
		state:        p.State,
		workspaceID:  p.WorkspaceID,
		authID:       p.AuthID,
		pollInterval: p.PollInterval,
		localTTL:     p.LocalTTL,
	}
}

// Key addresses the cached product page for a selection.
func (v *ProductsView) Key(sel Selection, page int) query.Key {
	return query.K("products", v.workspaceID, v.authID, sel.AdvertiserID, sel.StoreID, strconv.Itoa(page))
}

// KeyPrefix addresses every cached product page of this account.
func (v *ProductsView) KeyPrefix() query.Key {
	return query.K("products", v.workspaceID, v.authID)
}

// Watch subscribes to the product page behind sel. The local cache seeds the
// first paint when it is fresher than the TTL, the poll keeps the page live,
// and every successful fetch is written back through.
func (v *ProductsView) Watch(sel Selection, page, pageSize int, notify func(query.Snapshot)) *query.Subscription {
	fetch := func(ctx context.Context) (any, error) {
		result, err := v.svc.Products(ctx, v.authID, api.ProductListParams{
			AdvertiserID: sel.AdvertiserID,
			StoreID:      sel.StoreID,
			Page:         page,
			PageSize:     pageSize,
		})
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	opts := query.Options{
		Enabled:          sel.AdvertiserID != "" && sel.StoreID != "",
		StaleTime:        v.localTTL,
		RefetchInterval:  v.pollInterval,
		KeepPreviousData: true,
		OnSuccess: func(data any) {
			if page != 1 || v.state == nil {
				return
			}
			if result, ok := data.(api.ProductPage); ok {
				v.state.Put(localstate.ProductsKey(v.workspaceID, v.authID, sel.StoreID), localstate.ProductsRecord{
					Products: result.Items,
					Total:    result.Total,
				})
			}
		},
	}

	if page == 1 && v.state != nil {
		var rec localstate.ProductsRecord
		localKey := localstate.ProductsKey(v.workspaceID, v.authID, sel.StoreID)
		if v.state.Get(localKey, v.localTTL, &rec) {
			opts.InitialData = api.ProductPage{Items: rec.Products, Total: rec.Total, Page: 1}
			if savedAt, ok := v.state.SavedAt(localKey); ok {
				opts.InitialFetchedAt = savedAt
			}
		}
	}

	return v.cache.Subscribe(v.Key(sel, page), fetch, opts, notify)
}

// Counts reads the current cached page into the pull counter.
func (v *ProductsView) Counts(sel Selection, page int) (ProductCounts, bool) {
	result, ok := query.Data[api.ProductPage](v.cache, v.Key(sel, page))
	if !ok {
		return ProductCounts{}, false
	}
	return CountProducts(result.Items, result.Total), true
}

// Invalidate drops every cached page for this account and the local mirrors
// of all its stores; mounted pages refetch.
func (v *ProductsView) Invalidate() {
	if v.state != nil {
		v.state.DeletePrefix(localstate.ProductsKeyPrefix(v.workspaceID, v.authID))
	}
	v.cache.Invalidate(v.KeyPrefix())
}
