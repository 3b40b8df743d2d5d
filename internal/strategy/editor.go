// Package strategy edits the per-campaign automation strategy: a local
// draft diffed against the server copy, a normalization pass before save,
// and a server-side preview shown verbatim.
package strategy

import (
	"context"
	"reflect"
	"sync"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/query"
)

// MinCooldownMinutes is the floor the automation loop tolerates; anything
// lower is clamped, not rejected.
const MinCooldownMinutes = 10

type Editor struct {
	svc        *api.GMVMaxService
	bus        *feedback.Bus
	cache      *query.Cache
	authID     string
	campaignID string

	mu     sync.RWMutex
	server api.Strategy
	draft  api.Strategy
	loaded bool
}

func NewEditor(svc *api.GMVMaxService, bus *feedback.Bus, cache *query.Cache, authID, campaignID string) *Editor {
	return &Editor{svc: svc, bus: bus, cache: cache, authID: authID, campaignID: campaignID}
}

// Key addresses the cached strategy of this campaign.
func (e *Editor) Key() query.Key {
	return query.K("strategy", e.authID, e.campaignID)
}

// Load fetches the server strategy and resets the draft to it.
func (e *Editor) Load(ctx context.Context) error {
	strat, err := e.svc.GetStrategy(ctx, e.authID, e.campaignID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.server = strat
	e.draft = strat
	e.loaded = true
	e.mu.Unlock()
	return nil
}

func (e *Editor) Draft() api.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.draft
}

func (e *Editor) SetDraft(s api.Strategy) {
	e.mu.Lock()
	e.draft = s
	e.mu.Unlock()
}

// Dirty reports whether the draft diverges from the server copy.
func (e *Editor) Dirty() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded && !reflect.DeepEqual(e.draft, e.server)
}

// Discard resets the draft to the server copy.
func (e *Editor) Discard() {
	e.mu.Lock()
	e.draft = e.server
	e.mu.Unlock()
}

// Normalize applies the clamps the server would apply anyway, so the draft
// the operator sees matches what gets saved.
func Normalize(s api.Strategy) api.Strategy {
	if s.CooldownMinutes < MinCooldownMinutes {
		s.CooldownMinutes = MinCooldownMinutes
	}
	return s
}

// BuildPayload flattens a strategy into the wire body. Empty thresholds and
// rules are sent as explicit nulls so the server clears them instead of
// leaving stale values.
func BuildPayload(s api.Strategy) map[string]any {
	body := map[string]any{
		"enabled":          s.Enabled,
		"cooldown_minutes": s.CooldownMinutes,
	}
	if s.MinRuntimeMinutes != nil {
		body["min_runtime_minutes"] = *s.MinRuntimeMinutes
	}

	if s.Thresholds == (api.Thresholds{}) {
		body["thresholds"] = nil
	} else {
		body["thresholds"] = s.Thresholds
	}

	if len(s.Rules) == 0 {
		body["rules"] = nil
	} else {
		body["rules"] = s.Rules
	}
	return body
}

// Save normalizes the draft, persists it, and adopts it as the new server
// copy.
func (e *Editor) Save(ctx context.Context) error {
	e.mu.Lock()
	normalized := Normalize(e.draft)
	e.draft = normalized
	e.mu.Unlock()

	if err := e.svc.PutStrategy(ctx, e.authID, e.campaignID, BuildPayload(normalized)); err != nil {
		return err
	}

	e.mu.Lock()
	e.server = normalized
	e.mu.Unlock()

	// Any mounted view of this strategy re-renders from the saved copy, not
	// from a stale cache entry.
	if e.cache != nil {
		e.cache.Invalidate(e.Key())
	}
	if e.bus != nil {
		e.bus.Success("策略草稿已保存")
	}
	return nil
}

// Preview evaluates the normalized draft server-side without saving and
// returns the response untouched.
func (e *Editor) Preview(ctx context.Context) (map[string]any, error) {
	e.mu.RLock()
	draft := e.draft
	e.mu.RUnlock()

	return e.svc.PreviewStrategy(ctx, e.authID, e.campaignID, BuildPayload(Normalize(draft)))
}
