// Package scope owns the account scope cascade: binding, optional business
// center, advertiser, store, plus the listing mode. One transition function
// mutates the selection so invalid intermediate states cannot exist, and
// every accepted transition is mirrored to the location bar and the local
// state store.
package scope

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/nav"
)

type Mode string

const (
	ModeStore   Mode = "store"
	ModeProduct Mode = "product"
)

// Selection is the full scope tuple. Zero levels below the deepest set level
// are always empty strings.
type Selection struct {
	AuthID       string
	Mode         Mode
	BCID         string
	AdvertiserID string
	StoreID      string
}

// Complete reports whether the selection can drive data views.
func (s Selection) Complete() bool {
	return s.AuthID != "" && s.AdvertiserID != "" && s.StoreID != ""
}

// Machine holds the current selection and the options snapshot it is
// validated against.
type Machine struct {
	svc     *api.GMVMaxService
	state   *localstate.Store
	history *nav.History
	bus     *feedback.Bus

	workspaceID string
	scopeTTL    time.Duration

	mu       sync.RWMutex
	sel      Selection
	snapshot api.OptionsSnapshot
	etag     string
	subs     map[int]func(Selection)
	nextSub  int
}

type MachineParams struct {
	Service     *api.GMVMaxService
	State       *localstate.Store
	History     *nav.History
	Bus         *feedback.Bus
	WorkspaceID string
	ScopeTTL    time.Duration
}

func NewMachine(p MachineParams) *Machine {
	if p.ScopeTTL <= 0 {
		p.ScopeTTL = 24 * time.Hour
	}
	return &Machine{
		svc:         p.Service,
		state:       p.State,
		history:     p.History,
		bus:         p.Bus,
		workspaceID: p.WorkspaceID,
		scopeTTL:    p.ScopeTTL,
		subs:        make(map[int]func(Selection)),
	}
}

// Selection returns the current scope tuple.
func (m *Machine) Selection() Selection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sel
}

// Snapshot returns the options snapshot the selection is validated against.
func (m *Machine) Snapshot() api.OptionsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// SetBinding switches the account binding. Everything below it is cleared,
// including the cached options snapshot, which belongs to the old binding.
func (m *Machine) SetBinding(authID string) {
	m.transition(func(sel *Selection) {
		if sel.AuthID == authID {
			return
		}
		sel.AuthID = authID
		sel.BCID = ""
		sel.AdvertiserID = ""
		sel.StoreID = ""
	}, true)
}

// SetMode flips the listing mode without touching the entity levels.
func (m *Machine) SetMode(mode Mode) {
	m.transition(func(sel *Selection) {
		sel.Mode = mode
	}, false)
}

// SetBC selects a business center, clearing advertiser and store.
func (m *Machine) SetBC(bcID string) {
	m.transition(func(sel *Selection) {
		if sel.BCID == bcID {
			return
		}
		sel.BCID = bcID
		sel.AdvertiserID = ""
		sel.StoreID = ""
	}, false)
}

// SetAdvertiser selects an advertiser, clearing the store.
func (m *Machine) SetAdvertiser(advertiserID string) {
	m.transition(func(sel *Selection) {
		if sel.AdvertiserID == advertiserID {
			return
		}
		sel.AdvertiserID = advertiserID
		sel.StoreID = ""
	}, false)
}

// SetStore selects a store.
func (m *Machine) SetStore(storeID string) {
	m.transition(func(sel *Selection) {
		sel.StoreID = storeID
	}, false)
}

// transition is the single mutation path: apply the change, mirror the
// result outward, notify.
func (m *Machine) transition(mutate func(*Selection), resetSnapshot bool) {
	m.mu.Lock()
	before := m.sel
	mutate(&m.sel)
	if m.sel == before {
		m.mu.Unlock()
		return
	}
	if resetSnapshot {
		m.snapshot = api.OptionsSnapshot{}
		m.etag = ""
	}
	sel := m.sel
	subs := m.subscribersLocked()
	m.mu.Unlock()

	m.mirror(sel)
	for _, fn := range subs {
		fn(sel)
	}
}

// mirror writes the selection to the location bar (replace, not push) and
// the local state store.
func (m *Machine) mirror(sel Selection) {
	if m.history != nil {
		m.history.SetParams(map[string]string{
			"auth_id":       sel.AuthID,
			"mode":          string(sel.Mode),
			"bc_id":         sel.BCID,
			"advertiser_id": sel.AdvertiserID,
			"store_id":      sel.StoreID,
		})
	}
	if m.state != nil {
		m.state.Put(localstate.ScopeKey(m.workspaceID), localstate.ScopeRecord{
			AuthID:       sel.AuthID,
			Mode:         string(sel.Mode),
			BCID:         sel.BCID,
			AdvertiserID: sel.AdvertiserID,
			StoreID:      sel.StoreID,
		})
	}
}

// Subscribe registers a selection listener and returns an unsubscribe func.
func (m *Machine) Subscribe(fn func(Selection)) func() {
	m.mu.Lock()
	m.nextSub++
	id := m.nextSub
	m.subs[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.subs, id)
		m.mu.Unlock()
	}
}

func (m *Machine) subscribersLocked() []func(Selection) {
	subs := make([]func(Selection), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	return subs
}

// Hydrate restores the selection at startup. Precedence: location bar, then
// a local record fresher than the scope TTL, then the server-saved config,
// then the primary (or first) binding with everything below empty. The
// restored selection is pruned against freshly loaded options.
func (m *Machine) Hydrate(ctx context.Context, bindings []api.Binding) error {
	sel := m.fromLocation()

	if sel.AdvertiserID == "" {
		var rec localstate.ScopeRecord
		if m.state != nil && m.state.Get(localstate.ScopeKey(m.workspaceID), m.scopeTTL, &rec) {
			if sel.AuthID == "" {
				sel.AuthID = rec.AuthID
			}
			if rec.Mode != "" {
				sel.Mode = Mode(rec.Mode)
			}
			sel.BCID = rec.BCID
			sel.AdvertiserID = rec.AdvertiserID
			sel.StoreID = rec.StoreID
		}
	}

	if sel.AuthID == "" {
		sel.AuthID = defaultBinding(bindings)
	}
	if sel.Mode == "" {
		sel.Mode = ModeStore
	}

	if sel.AdvertiserID == "" && sel.AuthID != "" {
		if cfg, err := m.svc.GetConfig(ctx, sel.AuthID); err == nil {
			sel.BCID = cfg.BCID
			sel.AdvertiserID = cfg.AdvertiserID
			sel.StoreID = cfg.StoreID
		} else {
			slog.Debug("No server-saved scope config", "auth_id", sel.AuthID, "error", err)
		}
	}

	m.mu.Lock()
	m.sel = sel
	m.mu.Unlock()
	m.mirror(sel)

	if sel.AuthID == "" {
		return nil
	}
	return m.LoadOptions(ctx)
}

func (m *Machine) fromLocation() Selection {
	if m.history == nil {
		return Selection{}
	}
	return Selection{
		AuthID:       m.history.Param("auth_id"),
		Mode:         Mode(m.history.Param("mode")),
		BCID:         m.history.Param("bc_id"),
		AdvertiserID: m.history.Param("advertiser_id"),
		StoreID:      m.history.Param("store_id"),
	}
}

func defaultBinding(bindings []api.Binding) string {
	for _, b := range bindings {
		if b.IsPrimary {
			return b.AuthID
		}
	}
	if len(bindings) > 0 {
		return bindings[0].AuthID
	}
	return ""
}

// LoadOptions fetches the options snapshot unconditionally and prunes the
// selection against it.
func (m *Machine) LoadOptions(ctx context.Context) error {
	m.mu.RLock()
	authID := m.sel.AuthID
	m.mu.RUnlock()

	snapshot, etag, _, err := m.svc.Options(ctx, authID, "")
	if err != nil {
		return err
	}

	m.adoptSnapshot(snapshot, etag)
	return nil
}

// RefreshOptions issues a conditional fetch against the held entity tag and
// reports the outcome on the feedback bus.
func (m *Machine) RefreshOptions(ctx context.Context) error {
	m.mu.RLock()
	authID := m.sel.AuthID
	etag := m.etag
	m.mu.RUnlock()

	snapshot, newETag, notModified, err := m.svc.Options(ctx, authID, etag)
	if err != nil {
		if m.bus != nil {
			m.bus.Error("刷新可选项失败")
		}
		return err
	}

	if notModified {
		if m.bus != nil {
			m.bus.Info("元数据未发生变化")
		}
		return nil
	}

	// The server may answer 200 with a refresh signal instead of data: it
	// timed out collecting the snapshot and keeps refreshing under the
	// returned idempotency key. Held state stays as-is.
	if snapshot.Refresh == "timeout" {
		slog.Info("Options refresh continuing server-side", "idempotency_key", snapshot.IdempotencyKey)
		if m.bus != nil {
			m.bus.Info("元数据刷新仍在进行，请稍后再看")
		}
		return nil
	}

	m.adoptSnapshot(snapshot, newETag)
	if m.bus != nil {
		m.bus.Success("已刷新最新可选项")
	}
	return nil
}

func (m *Machine) adoptSnapshot(snapshot api.OptionsSnapshot, etag string) {
	m.mu.Lock()
	m.snapshot = snapshot
	m.etag = etag
	before := m.sel
	pruneSelection(&m.sel, snapshot)
	changed := m.sel != before
	sel := m.sel
	var subs []func(Selection)
	if changed {
		subs = m.subscribersLocked()
	}
	m.mu.Unlock()

	if changed {
		slog.Info("Scope selection pruned against refreshed options",
			"auth_id", sel.AuthID, "advertiser_id", sel.AdvertiserID, "store_id", sel.StoreID)
		m.mirror(sel)
		for _, fn := range subs {
			fn(sel)
		}
	}
}

// pruneSelection clears any level the snapshot no longer offers, and with it
// everything below.
func pruneSelection(sel *Selection, snap api.OptionsSnapshot) {
	if sel.BCID != "" && !hasBC(snap, sel.BCID) {
		sel.BCID = ""
		sel.AdvertiserID = ""
		sel.StoreID = ""
	}
	if sel.AdvertiserID != "" {
		valid := hasAdvertiser(snap, sel.AdvertiserID)
		if valid && sel.BCID != "" {
			valid = linked(snap.Links.BCToAdvertisers[sel.BCID], sel.AdvertiserID)
		}
		if !valid {
			sel.AdvertiserID = ""
			sel.StoreID = ""
		}
	}
	if sel.StoreID != "" {
		valid := hasStore(snap, sel.StoreID)
		if valid && sel.AdvertiserID != "" && len(snap.Links.AdvertiserToStores) > 0 {
			valid = linked(snap.Links.AdvertiserToStores[sel.AdvertiserID], sel.StoreID)
		}
		if !valid {
			sel.StoreID = ""
		}
	}
}

func hasBC(snap api.OptionsSnapshot, id string) bool {
	for _, bc := range snap.BusinessCenters {
		if bc.ID.String() == id {
			return true
		}
	}
	return false
}

func hasAdvertiser(snap api.OptionsSnapshot, id string) bool {
	for _, adv := range snap.Advertisers {
		if adv.ID.String() == id {
			return true
		}
	}
	return false
}

func hasStore(snap api.OptionsSnapshot, id string) bool {
	for _, st := range snap.Stores {
		if st.ID == id {
			return true
		}
	}
	return false
}

func linked(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// AdvertiserOptions lists the advertisers valid under the current BC, or all
// of them when no BC is selected.
func (m *Machine) AdvertiserOptions() []api.Advertiser {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sel.BCID == "" {
		return m.snapshot.Advertisers
	}
	allowed := m.snapshot.Links.BCToAdvertisers[m.sel.BCID]
	var out []api.Advertiser
	for _, adv := range m.snapshot.Advertisers {
		if linked(allowed, adv.ID.String()) {
			out = append(out, adv)
		}
	}
	return out
}

// StoreOptions lists the stores valid under the current advertiser.
func (m *Machine) StoreOptions() []api.Store {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.sel.AdvertiserID == "" {
		return nil
	}
	if len(m.snapshot.Links.AdvertiserToStores) == 0 {
		var out []api.Store
		for _, st := range m.snapshot.Stores {
			if st.AdvertiserID == m.sel.AdvertiserID {
				out = append(out, st)
			}
		}
		return out
	}

	allowed := m.snapshot.Links.AdvertiserToStores[m.sel.AdvertiserID]
	var out []api.Store
	for _, st := range m.snapshot.Stores {
		if linked(allowed, st.ID) {
			out = append(out, st)
		}
	}
	return out
}

// SaveConfig persists the current selection server-side for this binding.
func (m *Machine) SaveConfig(ctx context.Context, autoSync bool) error {
	sel := m.Selection()
	return m.svc.PutConfig(ctx, sel.AuthID, api.BindingConfig{
		BCID:             sel.BCID,
		AdvertiserID:     sel.AdvertiserID,
		StoreID:          sel.StoreID,
		AutoSyncProducts: autoSync,
	})
}
