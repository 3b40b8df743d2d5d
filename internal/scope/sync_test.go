package scope

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/gmvctl/internal/api"
	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/transport"
)

func newSyncRunner(t *testing.T, handler http.Handler) (*SyncRunner, *feedback.Bus, *query.Cache, *localstate.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	state, err := localstate.NewStore(t.TempDir())
	require.NoError(t, err)

	bus := feedback.NewBus(0)
	cache := query.New()
	runner := NewSyncRunner(SyncParams{
		Service:      api.NewGMVMaxService(client, "ws-1", "tiktok-business"),
		Bus:          bus,
		Cache:        cache,
		State:        state,
		WorkspaceID:  "ws-1",
		Provider:     "tiktok-business",
		InitialDelay: 10 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
		WallClock:    500 * time.Millisecond,
	})
	return runner, bus, cache, state
}

func TestTrigger_SuccessReportsRunAndInvalidates(t *testing.T) {
	var polls int32
	var gotReq api.SyncRequest
	runner, bus, cache, state := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/sync":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
			json.NewEncoder(w).Encode(map[string]any{"run_id": 42, "status": "queued"})
		case "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/sync-runs/42":
			if atomic.AddInt32(&polls, 1) < 2 {
				json.NewEncoder(w).Encode(map[string]any{"run_id": 42, "status": "running"})
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"run_id": 42, "status": "succeeded"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	cache.SetData(query.K("products", "ws-1", "auth-1", "a1", "s1", "1"), "stale-page")
	state.Put(localstate.ProductsKey("ws-1", "auth-1", "s1"), localstate.ProductsRecord{Total: 9})

	sel := Selection{AuthID: "auth-1", Mode: ModeStore, AdvertiserID: "a1", StoreID: "s1"}
	run, err := runner.Trigger(context.Background(), "auth-1", sel, "available_only")
	require.NoError(t, err)
	assert.Equal(t, "42", run.ID)
	assert.Equal(t, api.SyncStatusSucceeded, run.Status)

	// The flat payload always syncs products; the selection only decides
	// which IDs travel with it.
	assert.Equal(t, "products", gotReq.Scope)
	assert.Equal(t, "store", gotReq.Mode)
	assert.Equal(t, "a1", gotReq.AdvertiserID)
	assert.Equal(t, "s1", gotReq.StoreID)
	assert.Equal(t, "available_only", gotReq.ProductEligibility)
	assert.Len(t, gotReq.IdempotencyKey, 26, "ULID idempotency key")

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, "同步任务完成（运行 #42）", notice.Message)
	assert.Equal(t, feedback.Success, notice.Tone)

	var rec localstate.ProductsRecord
	assert.False(t, state.Get(localstate.ProductsKey("ws-1", "auth-1", "s1"), 0, &rec), "local product mirror dropped")

	last, ok := runner.LastRun("auth-1")
	require.True(t, ok)
	assert.Equal(t, "42", last.RunID)
	assert.Equal(t, api.SyncStatusSucceeded, last.Status)
}

func TestBuildRequest_ScopeAlwaysProducts(t *testing.T) {
	req := buildRequest(Selection{AuthID: "auth-1", Mode: ModeProduct, AdvertiserID: "a1"}, "")
	assert.Equal(t, "products", req.Scope)
	assert.Equal(t, "product", req.Mode)
	assert.Equal(t, "gmv_max", req.ProductEligibility, "eligibility defaults when the caller passes none")

	withStore := buildRequest(Selection{AuthID: "auth-1", AdvertiserID: "a1", StoreID: "s1"}, "all")
	assert.Equal(t, "products", withStore.Scope, "a store selection changes the IDs, not the scope")
	assert.Equal(t, "all", withStore.ProductEligibility)
}

func TestTrigger_ConflictWarnsAndReturns(t *testing.T) {
	runner, bus, _, _ := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "SYNC_IN_PROGRESS", "message": "busy"}})
	}))

	_, err := runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
	require.ErrorIs(t, err, gmvErrors.ErrConflict)

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, "同步任务仍在进行中，请稍后重试", notice.Message)
	assert.Equal(t, feedback.Warning, notice.Tone)
}

func TestTrigger_RateLimitedWarns(t *testing.T) {
	runner, bus, _, _ := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "RATE_LIMITED", "message": "slow down"}})
	}))

	_, err := runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
	require.ErrorIs(t, err, gmvErrors.ErrTooFrequent)

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, "操作过于频繁，请稍后再试", notice.Message)
}

func TestTrigger_FailureSurfacesRunError(t *testing.T) {
	runner, bus, _, _ := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/sync":
			json.NewEncoder(w).Encode(map[string]any{"run_id": "r9"})
		default:
			json.NewEncoder(w).Encode(map[string]any{
				"run_id": "r9", "status": "failed", "error_message": "上游接口超时",
			})
		}
	}))

	run, err := runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
	require.NoError(t, err)
	assert.Equal(t, api.SyncStatusFailed, run.Status)

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, feedback.Error, notice.Tone)
	assert.Contains(t, notice.Message, "上游接口超时")
}

func TestTrigger_WallClockTimeoutReportsUnknown(t *testing.T) {
	runner, bus, _, _ := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/sync":
			json.NewEncoder(w).Encode(map[string]any{"run_id": "r1"})
		default:
			json.NewEncoder(w).Encode(map[string]any{"run_id": "r1", "status": "running"})
		}
	}))

	_, err := runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
	require.ErrorIs(t, err, ErrSyncTimeout)

	notice, ok := bus.Current()
	require.True(t, ok)
	assert.Equal(t, "状态未知", notice.Message)
	assert.Equal(t, feedback.Info, notice.Tone)
}

func TestTrigger_SecondConcurrentTriggerRejectedLocally(t *testing.T) {
	release := make(chan struct{})
	runner, bus, _, _ := newSyncRunner(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tenants/ws-1/providers/tiktok-business/accounts/auth-1/sync":
			json.NewEncoder(w).Encode(map[string]any{"run_id": "r1"})
		default:
			<-release
			json.NewEncoder(w).Encode(map[string]any{"run_id": "r1", "status": "succeeded"})
		}
	}))

	done := make(chan struct{})
	go func() {
		defer close(done)
		runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
	}()

	assert.Eventually(t, func() bool {
		_, err := runner.Trigger(context.Background(), "auth-1", Selection{AdvertiserID: "a1"}, "all")
		return err != nil && notice(bus) == "同步任务仍在进行中，请稍后重试"
	}, time.Second, 20*time.Millisecond)

	close(release)
	<-done
}

func notice(bus *feedback.Bus) string {
	n, ok := bus.Current()
	if !ok {
		return ""
	}
	return n.Message
}
