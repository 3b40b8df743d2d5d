package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/harunnryd/gmvctl/internal/transport"
)

// GMVMaxService wraps the provider-account entity and GMV Max endpoints for
// one workspace/provider pair.
type GMVMaxService struct {
	client      *transport.Client
	workspaceID string
	provider    string
}

func NewGMVMaxService(client *transport.Client, workspaceID, provider string) *GMVMaxService {
	return &GMVMaxService{client: client, workspaceID: workspaceID, provider: provider}
}

func (s *GMVMaxService) accountPath(authID, suffix string) string {
	return fmt.Sprintf("/tenants/%s/providers/%s/accounts/%s%s",
		url.PathEscape(s.workspaceID), url.PathEscape(s.provider), url.PathEscape(authID), suffix)
}

func (s *GMVMaxService) BusinessCenters(ctx context.Context, authID string) (Page[BusinessCenter], error) {
	var out Page[BusinessCenter]
	if err := s.client.Get(ctx, s.accountPath(authID, "/business-centers"), nil, &out); err != nil {
		return Page[BusinessCenter]{}, err
	}
	return out, nil
}

func (s *GMVMaxService) Advertisers(ctx context.Context, authID, bcID string) (Page[Advertiser], error) {
	var out Page[Advertiser]
	query := transport.Query{"bc_id": bcID}.Values()
	if err := s.client.Get(ctx, s.accountPath(authID, "/advertisers"), query, &out); err != nil {
		return Page[Advertiser]{}, err
	}
	return out, nil
}

func (s *GMVMaxService) Stores(ctx context.Context, authID, advertiserID string) ([]Store, error) {
	var out Page[storeWire]
	query := transport.Query{"advertiser_id": advertiserID}.Values()
	if err := s.client.Get(ctx, s.accountPath(authID, "/stores"), query, &out); err != nil {
		return nil, err
	}

	stores := make([]Store, 0, len(out.Items))
	for _, w := range out.Items {
		stores = append(stores, w.normalize())
	}
	return stores, nil
}

type ProductListParams struct {
	AdvertiserID string
	StoreID      string
	Page         int
	PageSize     int
}

// ProductPage carries the raw page plus the counts the products cache keeps.
type ProductPage struct {
	Items    []Product
	Total    int
	Page     int
	PageSize int
}

func (s *GMVMaxService) Products(ctx context.Context, authID string, params ProductListParams) (ProductPage, error) {
	var out Page[productWire]
	query := transport.Query{
		"advertiser_id": params.AdvertiserID,
		"store_id":      params.StoreID,
		"page":          transport.Itoa(params.Page),
		"page_size":     transport.Itoa(params.PageSize),
	}.Values()
	if err := s.client.Get(ctx, s.accountPath(authID, "/products"), query, &out); err != nil {
		return ProductPage{}, err
	}

	page := ProductPage{
		Total:    out.Total,
		Page:     out.Page,
		PageSize: out.PageSize,
		Items:    make([]Product, 0, len(out.Items)),
	}
	for _, w := range out.Items {
		page.Items = append(page.Items, w.normalize())
	}
	return page, nil
}

// Options fetches the cascade metadata. When etag is non-empty a conditional
// GET is issued; notModified=true means the snapshot behind etag is current.
func (s *GMVMaxService) Options(ctx context.Context, authID, etag string) (OptionsSnapshot, string, bool, error) {
	var out OptionsSnapshot
	newETag, notModified, err := s.client.ConditionalGet(ctx, s.accountPath(authID, "/gmvmax/options"), nil, etag, &out)
	if err != nil {
		return OptionsSnapshot{}, "", false, err
	}
	return out, newETag, notModified, nil
}

func (s *GMVMaxService) GetConfig(ctx context.Context, authID string) (BindingConfig, error) {
	var wire bindingConfigWire
	if err := s.client.Get(ctx, s.accountPath(authID, "/gmvmax/config"), nil, &wire); err != nil {
		return BindingConfig{}, err
	}
	return wire.normalize(), nil
}

func (s *GMVMaxService) PutConfig(ctx context.Context, authID string, cfg BindingConfig) error {
	body := map[string]any{
		"bc_id":              cfg.BCID,
		"advertiser_id":      cfg.AdvertiserID,
		"store_id":           cfg.StoreID,
		"auto_sync_products": cfg.AutoSyncProducts,
	}
	return s.client.Put(ctx, s.accountPath(authID, "/gmvmax/config"), body, nil)
}

func (s *GMVMaxService) TriggerSync(ctx context.Context, authID string, req SyncRequest) (SyncAccepted, error) {
	var out SyncAccepted
	if err := s.client.Post(ctx, s.accountPath(authID, "/sync"), req, &out); err != nil {
		return SyncAccepted{}, err
	}
	return out, nil
}

func (s *GMVMaxService) SyncRun(ctx context.Context, authID, runID string) (SyncRun, error) {
	var wire syncRunWire
	path := s.accountPath(authID, fmt.Sprintf("/sync-runs/%s", url.PathEscape(runID)))
	if err := s.client.Get(ctx, path, nil, &wire); err != nil {
		return SyncRun{}, err
	}
	return wire.normalize(), nil
}

// Strategy endpoints live under the campaign resource.

func (s *GMVMaxService) campaignPath(authID, campaignID, suffix string) string {
	return s.accountPath(authID, fmt.Sprintf("/gmvmax/campaigns/%s%s", url.PathEscape(campaignID), suffix))
}

func (s *GMVMaxService) GetStrategy(ctx context.Context, authID, campaignID string) (Strategy, error) {
	var out Strategy
	if err := s.client.Get(ctx, s.campaignPath(authID, campaignID, "/strategy"), nil, &out); err != nil {
		return Strategy{}, err
	}
	return out, nil
}

func (s *GMVMaxService) PutStrategy(ctx context.Context, authID, campaignID string, body map[string]any) error {
	return s.client.Put(ctx, s.campaignPath(authID, campaignID, "/strategy"), body, nil)
}

func (s *GMVMaxService) PreviewStrategy(ctx context.Context, authID, campaignID string, body map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := s.client.Post(ctx, s.campaignPath(authID, campaignID, "/strategy/preview"), body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *GMVMaxService) Metrics(ctx context.Context, authID, campaignID, from, to string) ([]MetricsEntry, error) {
	var out struct {
		Items []MetricsEntry `json:"items"`
	}
	query := transport.Query{"from": from, "to": to}.Values()
	if err := s.client.Get(ctx, s.campaignPath(authID, campaignID, "/metrics"), query, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
