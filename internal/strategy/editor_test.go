package strategy

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/transport"
)

func newEditor(t *testing.T, handler http.Handler) (*Editor, *feedback.Bus, *query.Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	bus := feedback.NewBus(0)
	cache := query.New()
	t.Cleanup(cache.Clear)
	svc := api.NewGMVMaxService(client, "ws-1", "tiktok-business")
	return NewEditor(svc, bus, cache, "auth-1", "camp-1"), bus, cache
}

func floatPtr(v float64) *float64 { return &v }

func serverStrategy() map[string]any {
	return map[string]any{
		"enabled":          true,
		"cooldown_minutes": 30,
		"thresholds":       map[string]any{"target_roi": 2.5},
		"rules": []map[string]any{
			{"id": "r1", "metric": "roi", "op": "lt", "value": 1.5, "action": "pause"},
		},
	}
}

func TestEditor_LoadAndDirty(t *testing.T) {
	editor, _, _ := newEditor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/gmvmax/campaigns/camp-1/strategy", r.URL.Path)
		json.NewEncoder(w).Encode(serverStrategy())
	}))

	require.NoError(t, editor.Load(context.Background()))
	assert.False(t, editor.Dirty())

	draft := editor.Draft()
	assert.Equal(t, 30, draft.CooldownMinutes)
	require.NotNil(t, draft.Thresholds.TargetROI)
	assert.Equal(t, 2.5, *draft.Thresholds.TargetROI)

	draft.CooldownMinutes = 45
	editor.SetDraft(draft)
	assert.True(t, editor.Dirty())

	editor.Discard()
	assert.False(t, editor.Dirty())
}

func TestNormalize_ClampsCooldown(t *testing.T) {
	assert.Equal(t, MinCooldownMinutes, Normalize(api.Strategy{CooldownMinutes: 3}).CooldownMinutes)
	assert.Equal(t, MinCooldownMinutes, Normalize(api.Strategy{}).CooldownMinutes)
	assert.Equal(t, 30, Normalize(api.Strategy{CooldownMinutes: 30}).CooldownMinutes)
}

func TestBuildPayload_EmptySectionsBecomeNull(t *testing.T) {
	body := BuildPayload(api.Strategy{Enabled: true, CooldownMinutes: 15})

	assert.Nil(t, body["thresholds"], "empty thresholds serialize as null")
	assert.Nil(t, body["rules"], "empty rules serialize as null")
	_, hasRuntime := body["min_runtime_minutes"]
	assert.False(t, hasRuntime)

	full := BuildPayload(api.Strategy{
		CooldownMinutes: 15,
		Thresholds:      api.Thresholds{TargetROI: floatPtr(2)},
		Rules:           []api.Rule{{Metric: "roi", Op: "lt", Value: 1, Action: "pause"}},
	})
	assert.NotNil(t, full["thresholds"])
	assert.NotNil(t, full["rules"])
}

func TestSave_NormalizesAndAdoptsDraft(t *testing.T) {
	var saved map[string]any
	editor, bus, _ := newEditor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(serverStrategy())
		case http.MethodPut:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	require.NoError(t, editor.Load(context.Background()))
	draft := editor.Draft()
	draft.CooldownMinutes = 3
	editor.SetDraft(draft)

	require.NoError(t, editor.Save(context.Background()))

	assert.Equal(t, float64(MinCooldownMinutes), saved["cooldown_minutes"], "cooldown clamped before the wire")
	assert.False(t, editor.Dirty(), "saved draft becomes the server copy")
	assert.Equal(t, MinCooldownMinutes, editor.Draft().CooldownMinutes, "the visible draft shows the clamp")

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, "策略草稿已保存", notice.Message)
}

func TestSave_DropsCachedStrategy(t *testing.T) {
	editor, _, cache := newEditor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			json.NewEncoder(w).Encode(serverStrategy())
		case http.MethodPut:
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	require.NoError(t, editor.Load(context.Background()))
	cache.SetData(editor.Key(), "stale strategy view")

	require.NoError(t, editor.Save(context.Background()))

	// The cached view is stale now: the next mount refetches instead of
	// serving the pre-save copy, fresh window notwithstanding.
	fetched := make(chan struct{}, 1)
	sub := cache.Subscribe(editor.Key(), func(ctx context.Context) (any, error) {
		fetched <- struct{}{}
		return "fresh", nil
	}, query.Options{Enabled: true, StaleTime: time.Hour}, nil)
	defer sub.Close()

	select {
	case <-fetched:
	case <-time.After(time.Second):
		t.Fatal("saved strategy did not invalidate the cached view")
	}
}

func TestPreview_ReturnsServerVerdictVerbatim(t *testing.T) {
	editor, _, _ := newEditor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(serverStrategy())
		default:
			require.Equal(t, "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/gmvmax/campaigns/camp-1/strategy/preview", r.URL.Path)
			json.NewEncoder(w).Encode(map[string]any{
				"would_adjust": true,
				"projected":    map[string]any{"roas_target": 2.8, "note": "上调预算"},
			})
		}
	}))

	require.NoError(t, editor.Load(context.Background()))
	out, err := editor.Preview(context.Background())
	require.NoError(t, err)

	assert.Equal(t, true, out["would_adjust"])
	projected := out["projected"].(map[string]any)
	assert.Equal(t, "上调预算", projected["note"])
}
