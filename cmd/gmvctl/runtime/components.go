package runtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/authflow"
	"github.com/harunnryd/gmvctl/internal/config"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/nav"
	"github.com/harunnryd/gmvctl/internal/policyadmin"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/scope"
	"github.com/harunnryd/gmvctl/internal/session"
	"github.com/harunnryd/gmvctl/internal/transport"
)

// Components wires the platform-level surfaces: transport, local state,
// query cache, and auth. Workspace-scoped surfaces hang off a
// WorkspaceComponents bound after login, because the workspace is only
// known once a session exists.
type Components struct {
	Ctx    context.Context
	Cancel context.CancelFunc

	Config *config.Config

	Client *transport.Client
	State  *localstate.Store
	Lock   *localstate.InstanceLock
	Cache  *query.Cache
	Bus    *feedback.Bus
	Nav    *nav.History

	Auth     *api.AuthService
	Gate     *session.Gate
	Flow     *authflow.Flow
	Policies *policyadmin.Controller

	Workspace *WorkspaceComponents
}

// WorkspaceComponents are the surfaces scoped to one tenant workspace.
type WorkspaceComponents struct {
	ID string

	GMVMax *api.GMVMaxService
	TTB    *api.TTBService

	Machine     *scope.Machine
	Sync        *scope.SyncRunner
	ProductsFor func(authID string) *scope.ProductsView
}

func NewComponents(ctx context.Context, cfg *config.Config) (*Components, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)

	components := &Components{
		Ctx:    ctx,
		Cancel: cancel,
		Config: cfg,
	}

	timeout, err := config.DurationOrDefault(cfg.Server.Timeout, config.DefaultServerTimeout)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init transport: %w", err)
	}

	client, err := transport.New(cfg.Server.BaseURL, timeout)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init transport: %w", err)
	}
	components.Client = client

	state, err := localstate.NewStore(cfg.State.Dir)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init local state: %w", err)
	}
	components.State = state

	lockTimeout, err := config.DurationOrDefault(cfg.State.LockTimeout, config.DefaultStateLockTimeout)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init instance lock: %w", err)
	}
	lockRetry, err := config.DurationOrDefault(cfg.State.LockRetry, config.DefaultStateLockRetry)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("init instance lock: %w", err)
	}

	lock, err := localstate.AcquireLock(cfg.State.Dir, localstate.LockConfig{
		Timeout:  lockTimeout,
		Retry:    lockRetry,
		MaxRetry: cfg.State.LockMaxRetry,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("another gmvctl instance holds the state directory: %w", err)
	}
	components.Lock = lock

	components.Cache = query.New()
	components.Bus = feedback.NewBus(0)
	components.Nav = nav.NewHistory(nav.Location{Path: "/gmv-max"})

	components.Auth = api.NewAuthService(client)
	components.Gate = session.NewGate(components.Auth, components.Cache)
	components.Flow = authflow.NewFlow(components.Gate, components.Auth, state)

	components.Policies = policyadmin.NewController(policyadmin.ControllerParams{
		Service:  api.NewPolicyService(client),
		Cache:    components.Cache,
		Bus:      components.Bus,
		History:  components.Nav,
		PageSize: cfg.Policies.PageSize,
		Sort:     cfg.Policies.Sort,
	})

	slog.Debug("Components initialized", "base_url", cfg.Server.BaseURL, "state_dir", cfg.State.Dir)
	return components, nil
}

// BindWorkspace constructs the workspace-scoped surfaces. Safe to call again
// with the same ID; binding a different workspace replaces the previous set.
func (c *Components) BindWorkspace(workspaceID string) (*WorkspaceComponents, error) {
	if workspaceID == "" {
		return nil, fmt.Errorf("workspace id is empty")
	}
	if c.Workspace != nil && c.Workspace.ID == workspaceID {
		return c.Workspace, nil
	}

	cfg := c.Config
	scopeTTL, err := config.DurationOrDefault(cfg.Scope.TTL, config.DefaultScopeTTL)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}
	productsTTL, err := config.DurationOrDefault(cfg.Scope.ProductsTTL, config.DefaultScopeProductsTTL)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}
	productsPoll, err := config.DurationOrDefault(cfg.Scope.ProductsPollInterval, config.DefaultProductsPollInterval)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}
	syncDelay, err := config.DurationOrDefault(cfg.Sync.InitialDelay, config.DefaultSyncInitialDelay)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}
	syncPoll, err := config.DurationOrDefault(cfg.Sync.PollInterval, config.DefaultSyncPollInterval)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}
	syncWall, err := config.DurationOrDefault(cfg.Sync.WallClockTimeout, config.DefaultSyncWallClockTimeout)
	if err != nil {
		return nil, fmt.Errorf("bind workspace: %w", err)
	}

	provider := cfg.Workspace.Provider
	gmvmax := api.NewGMVMaxService(c.Client, workspaceID, provider)

	ws := &WorkspaceComponents{
		ID:     workspaceID,
		GMVMax: gmvmax,
		TTB:    api.NewTTBService(c.Client, workspaceID),
		Machine: scope.NewMachine(scope.MachineParams{
			Service:     gmvmax,
			State:       c.State,
			History:     c.Nav,
			Bus:         c.Bus,
			WorkspaceID: workspaceID,
			ScopeTTL:    scopeTTL,
		}),
		Sync: scope.NewSyncRunner(scope.SyncParams{
			Service:      gmvmax,
			Bus:          c.Bus,
			Cache:        c.Cache,
			State:        c.State,
			WorkspaceID:  workspaceID,
			Provider:     provider,
			InitialDelay: syncDelay,
			PollInterval: syncPoll,
			WallClock:    syncWall,
		}),
		ProductsFor: func(authID string) *scope.ProductsView {
			return scope.NewProductsView(scope.ProductsParams{
				Service:      gmvmax,
				Cache:        c.Cache,
				State:        c.State,
				WorkspaceID:  workspaceID,
				AuthID:       authID,
				PollInterval: productsPoll,
				LocalTTL:     productsTTL,
			})
		},
	}

	c.Workspace = ws
	return ws, nil
}

func (c *Components) Stop() {
	c.Cancel()
	c.Cache.Clear()
	if c.Lock != nil {
		c.Lock.Release()
	}
}
