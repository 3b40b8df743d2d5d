package scope

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/harunnryd/gmvctl/internal/api"
	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/query"
)

// ErrSyncTimeout reports that a run never reached a terminal status within
// the wall-clock budget. The run may still finish server-side.
var ErrSyncTimeout = errors.New("sync run still pending after timeout")

// SyncRunner triggers product sync runs and watches them to completion. One
// run at a time per runner; the server rejects overlap with 409 anyway.
type SyncRunner struct {
	svc   *api.GMVMaxService
	bus   *feedback.Bus
	cache *query.Cache
	state *localstate.Store

	workspaceID string
	provider    string

	initialDelay time.Duration
	pollInterval time.Duration
	wallClock    time.Duration

	mu      sync.Mutex
	running bool
}

type SyncParams struct {
	Service     *api.GMVMaxService
	Bus         *feedback.Bus
	Cache       *query.Cache
	State       *localstate.Store
	WorkspaceID string
	Provider    string

	InitialDelay time.Duration
	PollInterval time.Duration
	WallClock    time.Duration
}

func NewSyncRunner(p SyncParams) *SyncRunner {
	if p.InitialDelay <= 0 {
		p.InitialDelay = 1200 * time.Millisecond
	}
	if p.PollInterval <= 0 {
		p.PollInterval = 2 * time.Second
	}
	if p.WallClock <= 0 {
		p.WallClock = 3 * time.Minute
	}
	return &SyncRunner{
		svc:          p.Service,
		bus:          p.Bus,
		cache:        p.Cache,
		state:        p.State,
		workspaceID:  p.WorkspaceID,
		provider:     p.Provider,
		initialDelay: p.InitialDelay,
		pollInterval: p.PollInterval,
		wallClock:    p.WallClock,
	}
}

// buildRequest flattens the selection into the sync payload. The scope field
// names what is synced, always "products"; the selection level only decides
// which IDs travel with it.
func buildRequest(sel Selection, eligibility string) api.SyncRequest {
	if eligibility == "" {
		eligibility = "gmv_max"
	}
	return api.SyncRequest{
		Scope:              "products",
		Mode:               string(sel.Mode),
		AdvertiserID:       sel.AdvertiserID,
		StoreID:            sel.StoreID,
		BCID:               sel.BCID,
		ProductEligibility: eligibility,
		IdempotencyKey:     ulid.Make().String(),
	}
}

// Trigger starts a sync run for the selection and blocks until it reaches a
// terminal status or the wall-clock budget expires. Every outcome lands as
// exactly one feedback notice.
func (r *SyncRunner) Trigger(ctx context.Context, authID string, sel Selection, eligibility string) (api.SyncRun, error) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		r.bus.Warning("同步任务仍在进行中，请稍后重试")
		return api.SyncRun{}, gmvErrors.ErrConflict
	}
	r.running = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.running = false
		r.mu.Unlock()
	}()

	r.bus.Info("正在触发…")

	req := buildRequest(sel, eligibility)
	accepted, err := r.svc.TriggerSync(ctx, authID, req)
	if err != nil {
		switch {
		case errors.Is(err, gmvErrors.ErrConflict):
			r.bus.Warning("同步任务仍在进行中，请稍后重试")
		case errors.Is(err, gmvErrors.ErrTooFrequent):
			r.bus.Warning("操作过于频繁，请稍后再试")
		default:
			r.bus.Error(fmt.Sprintf("同步触发失败：%s", gmvErrors.MessageOf(err)))
		}
		return api.SyncRun{}, err
	}

	runID := accepted.RunID.String()
	slog.Info("Sync run accepted", "run_id", runID, "auth_id", authID, "idempotency_key", req.IdempotencyKey)
	r.rememberRun(authID, runID, accepted.Status)

	run, err := r.watch(ctx, authID, runID)
	if err != nil {
		if errors.Is(err, ErrSyncTimeout) {
			r.bus.Info("状态未知")
		}
		return run, err
	}

	r.rememberRun(authID, run.ID, run.Status)
	switch run.Status {
	case api.SyncStatusSucceeded:
		r.bus.Success(fmt.Sprintf("同步任务完成（运行 #%s）", run.ID))
		r.invalidateAfterSync(authID)
	case api.SyncStatusCanceled:
		r.bus.Warning(fmt.Sprintf("同步任务已取消（运行 #%s）", run.ID))
	default:
		message := run.ErrorMessage
		if message == "" {
			message = run.ErrorCode
		}
		if message == "" {
			message = "未知错误"
		}
		r.bus.Error(fmt.Sprintf("同步任务失败：%s", message))
	}
	return run, nil
}

// watch polls the run after the initial delay until it turns terminal or the
// wall clock runs out. Poll errors are tolerated; the next tick retries.
func (r *SyncRunner) watch(ctx context.Context, authID, runID string) (api.SyncRun, error) {
	deadline := time.Now().Add(r.wallClock)

	select {
	case <-ctx.Done():
		return api.SyncRun{}, ctx.Err()
	case <-time.After(r.initialDelay):
	}

	var last api.SyncRun
	for {
		run, err := r.svc.SyncRun(ctx, authID, runID)
		if err != nil {
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			slog.Warn("Sync run poll failed", "run_id", runID, "error", err)
		} else {
			last = run
			if run.Terminal() {
				return run, nil
			}
		}

		if time.Now().After(deadline) {
			return last, ErrSyncTimeout
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-time.After(r.pollInterval):
		}
	}
}

// invalidateAfterSync refetches everything a completed sync may have
// changed: product pages, the options snapshot, and the binding config.
func (r *SyncRunner) invalidateAfterSync(authID string) {
	if r.state != nil {
		r.state.DeletePrefix(localstate.ProductsKeyPrefix(r.workspaceID, authID))
	}
	if r.cache != nil {
		r.cache.Invalidate(query.K("products", r.workspaceID, authID))
		r.cache.Invalidate(query.K("gmvmax", r.workspaceID, authID))
	}
}

func (r *SyncRunner) rememberRun(authID, runID, status string) {
	if r.state == nil || runID == "" {
		return
	}
	r.state.Put(localstate.LastRunKey(r.workspaceID, r.provider, authID), localstate.LastRunRecord{
		RunID:  runID,
		Status: status,
	})
}

// LastRun returns the most recently observed run for an account, if any.
func (r *SyncRunner) LastRun(authID string) (localstate.LastRunRecord, bool) {
	var rec localstate.LastRunRecord
	if r.state == nil {
		return rec, false
	}
	ok := r.state.Get(localstate.LastRunKey(r.workspaceID, r.provider, authID), 0, &rec)
	return rec, ok
}
