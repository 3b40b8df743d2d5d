package api

import (
	"encoding/json"
	"time"
)

// Session is the authenticated identity, at most one per process.
type Session struct {
	ID              string
	Email           string
	Username        string
	DisplayName     string
	IsPlatformAdmin bool
	WorkspaceID     string
	Role            string
}

type sessionWire struct {
	ID                 FlexString `json:"id"`
	Email              string     `json:"email"`
	Username           string     `json:"username"`
	DisplayName        string     `json:"display_name"`
	DisplayNameAlt     string     `json:"displayName"`
	IsPlatformAdmin    FlexBool   `json:"is_platform_admin"`
	IsPlatformAdminAlt FlexBool   `json:"isPlatformAdmin"`
	WorkspaceID        FlexString `json:"workspace_id"`
	WorkspaceIDAlt     FlexString `json:"workspaceId"`
	Role               string     `json:"role"`
}

func (w sessionWire) normalize() Session {
	return Session{
		ID:              w.ID.String(),
		Email:           w.Email,
		Username:        w.Username,
		DisplayName:     firstNonEmpty(w.DisplayName, w.DisplayNameAlt, w.Username),
		IsPlatformAdmin: w.IsPlatformAdmin.Bool() || w.IsPlatformAdminAlt.Bool(),
		WorkspaceID:     firstNonEmpty(w.WorkspaceID.String(), w.WorkspaceIDAlt.String()),
		Role:            w.Role,
	}
}

// Page is the server's paginated envelope.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var wire struct {
		Items       []T     `json:"items"`
		Total       FlexInt `json:"total"`
		Page        FlexInt `json:"page"`
		PageSize    FlexInt `json:"page_size"`
		PageSizeAlt FlexInt `json:"pageSize"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	p.Items = wire.Items
	p.Total = wire.Total.Int()
	p.Page = wire.Page.Int()
	p.PageSize = wire.PageSize.Int()
	if p.PageSize == 0 {
		p.PageSize = wire.PageSizeAlt.Int()
	}
	return nil
}

type Tenant struct {
	WorkspaceID string `json:"workspace_id"`
	CompanyCode string `json:"company_code"`
	CompanyName string `json:"company_name"`
}

type TenantMeta struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	CompanyCode string `json:"company_code"`
}

// Binding is a stored authorization linking a workspace to a provider account.
type Binding struct {
	AuthID    string
	Alias     string
	Provider  string
	IsPrimary bool
	Status    string
	CreatedAt time.Time
}

type bindingWire struct {
	ID           FlexString `json:"id"`
	AuthID       FlexString `json:"auth_id"`
	Alias        string     `json:"alias"`
	Provider     string     `json:"provider"`
	IsPrimary    FlexBool   `json:"is_primary"`
	IsPrimaryAlt FlexBool   `json:"isPrimary"`
	Status       string     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (w bindingWire) normalize() Binding {
	return Binding{
		AuthID:    firstNonEmpty(w.AuthID.String(), w.ID.String()),
		Alias:     w.Alias,
		Provider:  w.Provider,
		IsPrimary: w.IsPrimary.Bool() || w.IsPrimaryAlt.Bool(),
		Status:    w.Status,
		CreatedAt: w.CreatedAt,
	}
}

type ProviderApp struct {
	AppID   string `json:"app_id"`
	Name    string `json:"name"`
	AuthURL string `json:"auth_url"`
}

type BusinessCenter struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
}

type Advertiser struct {
	ID   FlexString `json:"id"`
	Name string     `json:"name"`
	BCID FlexString `json:"bc_id"`
}

// Store carries both wire spellings of its owning business center.
type Store struct {
	ID           string
	Name         string
	AdvertiserID string
	BCID         string
}

type storeWire struct {
	ID             FlexString `json:"id"`
	Name           string     `json:"name"`
	AdvertiserID   FlexString `json:"advertiser_id"`
	BCID           FlexString `json:"bc_id"`
	AuthorizedBCID FlexString `json:"store_authorized_bc_id"`
}

func (w storeWire) normalize() Store {
	return Store{
		ID:           w.ID.String(),
		Name:         w.Name,
		AdvertiserID: w.AdvertiserID.String(),
		BCID:         firstNonEmpty(w.BCID.String(), w.AuthorizedBCID.String()),
	}
}

// Product keeps the raw availability signals; the availability predicate
// lives with the scope machine.
type Product struct {
	ID          string
	Title       string
	Status      string
	IsAvailable *bool
	Price       float64
}

type productWire struct {
	ID          FlexString      `json:"id"`
	ProductID   FlexString      `json:"product_id"`
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	Status      json.RawMessage `json:"status"`
	IsAvailable *FlexBool       `json:"is_available"`
	Available   *FlexBool       `json:"available"`
	Price       FlexFloat       `json:"price"`
}

func (w productWire) normalize() Product {
	p := Product{
		ID:    firstNonEmpty(w.ID.String(), w.ProductID.String()),
		Title: firstNonEmpty(w.Title, w.Name),
		Price: w.Price.Float(),
	}

	if len(w.Status) > 0 {
		var s FlexString
		if err := json.Unmarshal(w.Status, &s); err == nil {
			p.Status = s.String()
		}
	}

	if w.IsAvailable != nil {
		v := w.IsAvailable.Bool()
		p.IsAvailable = &v
	} else if w.Available != nil {
		v := w.Available.Bool()
		p.IsAvailable = &v
	}

	return p
}

// OptionsSnapshot is the cascade metadata behind an entity tag.
type OptionsSnapshot struct {
	BusinessCenters []BusinessCenter `json:"bcs"`
	Advertisers     []Advertiser     `json:"advertisers"`
	Stores          []Store          `json:"-"`
	Links           OptionLinks      `json:"links"`
	Summary         string           `json:"summary"`
	Refresh         string           `json:"refresh,omitempty"`
	IdempotencyKey  string           `json:"idempotency_key,omitempty"`
}

type OptionLinks struct {
	BCToAdvertisers    map[string][]string `json:"bc_to_advertisers"`
	AdvertiserToStores map[string][]string `json:"advertiser_to_stores"`
}

func (o *OptionsSnapshot) UnmarshalJSON(data []byte) error {
	type alias OptionsSnapshot
	var wire struct {
		alias
		Stores []storeWire `json:"stores"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	*o = OptionsSnapshot(wire.alias)
	o.Stores = make([]Store, 0, len(wire.Stores))
	for _, s := range wire.Stores {
		o.Stores = append(o.Stores, s.normalize())
	}
	return nil
}

// Sync run statuses. Terminal statuses never transition again.
const (
	SyncStatusPending   = "pending"
	SyncStatusScheduled = "scheduled"
	SyncStatusQueued    = "queued"
	SyncStatusRunning   = "running"
	SyncStatusSucceeded = "succeeded"
	SyncStatusFailed    = "failed"
	SyncStatusCanceled  = "canceled"
)

type SyncRun struct {
	ID           string
	Status       string
	ErrorCode    string
	ErrorMessage string
	Stats        map[string]any
}

type syncRunWire struct {
	ID           FlexString     `json:"id"`
	RunID        FlexString     `json:"run_id"`
	Status       string         `json:"status"`
	ErrorCode    string         `json:"error_code"`
	ErrorMessage string         `json:"error_message"`
	Stats        map[string]any `json:"stats"`
}

func (w syncRunWire) normalize() SyncRun {
	return SyncRun{
		ID:           firstNonEmpty(w.ID.String(), w.RunID.String()),
		Status:       w.Status,
		ErrorCode:    w.ErrorCode,
		ErrorMessage: w.ErrorMessage,
		Stats:        w.Stats,
	}
}

// Terminal reports whether the run status is in the terminal set.
func (r SyncRun) Terminal() bool {
	switch r.Status {
	case SyncStatusSucceeded, SyncStatusFailed, SyncStatusCanceled:
		return true
	}
	return false
}

// SyncRequest is the canonical flat sync payload.
type SyncRequest struct {
	Scope              string `json:"scope"`
	Mode               string `json:"mode"`
	AdvertiserID       string `json:"advertiser_id"`
	StoreID            string `json:"store_id"`
	BCID               string `json:"bc_id,omitempty"`
	ProductEligibility string `json:"product_eligibility"`
	IdempotencyKey     string `json:"idempotency_key,omitempty"`
}

type SyncAccepted struct {
	RunID          FlexString `json:"run_id"`
	IdempotencyKey string     `json:"idempotency_key"`
	Status         string     `json:"status,omitempty"`
}

// BindingConfig is the server-saved scope selection for an account binding.
type BindingConfig struct {
	BCID             string
	AdvertiserID     string
	StoreID          string
	AutoSyncProducts bool
}

type bindingConfigWire struct {
	BCID                FlexString `json:"bc_id"`
	AdvertiserID        FlexString `json:"advertiser_id"`
	StoreID             FlexString `json:"store_id"`
	AutoSyncProducts    FlexBool   `json:"auto_sync_products"`
	AutoSyncProductsAlt FlexBool   `json:"autoSyncProducts"`
}

func (w bindingConfigWire) normalize() BindingConfig {
	return BindingConfig{
		BCID:             w.BCID.String(),
		AdvertiserID:     w.AdvertiserID.String(),
		StoreID:          w.StoreID.String(),
		AutoSyncProducts: w.AutoSyncProducts.Bool() || w.AutoSyncProductsAlt.Bool(),
	}
}

// Policy modes and enforcement modes form closed sets.
const (
	PolicyModeWhitelist = "WHITELIST"
	PolicyModeBlacklist = "BLACKLIST"

	EnforcementEnforce = "ENFORCE"
	EnforcementDryRun  = "DRYRUN"
	EnforcementOff     = "OFF"
)

type Policy struct {
	ID              string         `json:"id"`
	ProviderKey     string         `json:"provider_key"`
	Name            string         `json:"name"`
	Mode            string         `json:"mode"`
	EnforcementMode string         `json:"enforcement_mode"`
	Domains         []string       `json:"domains"`
	BusinessScopes  BusinessScopes `json:"business_scopes"`
	Limits          PolicyLimits   `json:"limits"`
	IsEnabled       bool           `json:"is_enabled"`
	Description     string         `json:"description"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type BusinessScopes struct {
	Include ScopeSelector `json:"include,omitempty"`
	Exclude ScopeSelector `json:"exclude,omitempty"`
}

type ScopeSelector struct {
	BCIDs         []string `json:"bc_ids,omitempty"`
	AdvertiserIDs []string `json:"advertiser_ids,omitempty"`
	StoreIDs      []string `json:"store_ids,omitempty"`
	ProductIDs    []string `json:"product_ids,omitempty"`
}

type PolicyLimits struct {
	RateLimitRPS      float64 `json:"rate_limit_rps,omitempty"`
	RateBurst         int     `json:"rate_burst,omitempty"`
	CooldownSeconds   int     `json:"cooldown_seconds,omitempty"`
	MaxConcurrency    int     `json:"max_concurrency,omitempty"`
	MaxEntitiesPerRun int     `json:"max_entities_per_run,omitempty"`
	WindowCron        string  `json:"window_cron,omitempty"`
}

type Provider struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// Strategy is the per-campaign automation configuration.
type Strategy struct {
	Enabled           bool       `json:"enabled"`
	CooldownMinutes   int        `json:"cooldown_minutes"`
	MinRuntimeMinutes *int       `json:"min_runtime_minutes,omitempty"`
	Thresholds        Thresholds `json:"thresholds"`
	Rules             []Rule     `json:"rules"`
}

type Thresholds struct {
	TargetROI               *float64 `json:"target_roi,omitempty"`
	MinROI                  *float64 `json:"min_roi,omitempty"`
	MaxROI                  *float64 `json:"max_roi,omitempty"`
	MinImpressions          *int     `json:"min_impressions,omitempty"`
	MinClicks               *int     `json:"min_clicks,omitempty"`
	MaxBudgetRaisePctPerDay *float64 `json:"max_budget_raise_pct_per_day,omitempty"`
	MaxBudgetCutPctPerDay   *float64 `json:"max_budget_cut_pct_per_day,omitempty"`
	MaxRoasStepPerAdjust    *float64 `json:"max_roas_step_per_adjust,omitempty"`
}

type Rule struct {
	ID     string  `json:"id,omitempty"`
	Metric string  `json:"metric"`
	Op     string  `json:"op"`
	Value  float64 `json:"value"`
	Action string  `json:"action"`
	Amount float64 `json:"amount,omitempty"`
}

// MetricsEntry is one row of the campaign metrics time series.
type MetricsEntry struct {
	Date        string     `json:"date"`
	Spend       FlexFloat  `json:"spend"`
	GMV         FlexFloat  `json:"gmv"`
	Orders      FlexInt    `json:"orders"`
	CTR         FlexFloat  `json:"ctr"`
	CPC         FlexFloat  `json:"cpc"`
	CPM         FlexFloat  `json:"cpm"`
	Impressions FlexInt    `json:"impressions"`
	Clicks      FlexInt    `json:"clicks"`
	CreativeID  FlexString `json:"creative_id"`
	ProductID   FlexString `json:"product_id"`
}
