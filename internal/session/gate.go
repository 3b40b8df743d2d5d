// Package session owns the authenticated/unauthenticated boundary. Every
// data surface sits behind the gate: nothing fetches until the boot probe
// settles, and logout tears the cache down so no tenant data survives into
// the next session.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/harunnryd/gmvctl/internal/api"
	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/query"
)

type Status int

const (
	// Unknown is the pre-boot state; callers must not treat it as logged out.
	Unknown Status = iota
	Unauthenticated
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Unknown:
		return "unknown"
	case Unauthenticated:
		return "unauthenticated"
	case Authenticated:
		return "authenticated"
	}
	return "invalid"
}

// WorkspaceChoiceError reports that the credentials matched more than one
// workspace; the caller must pick one and retry with LoginWorkspace.
type WorkspaceChoiceError struct {
	Tenants []api.Tenant
}

func (e *WorkspaceChoiceError) Error() string {
	return fmt.Sprintf("credentials match %d workspaces; choose one", len(e.Tenants))
}

// Gate tracks session status and serializes the login/logout transitions.
type Gate struct {
	auth  *api.AuthService
	cache *query.Cache

	mu      sync.RWMutex
	status  Status
	session api.Session
	subs    map[int]func(Status)
	nextSub int
}

func NewGate(auth *api.AuthService, cache *query.Cache) *Gate {
	return &Gate{
		auth:  auth,
		cache: cache,
		subs:  make(map[int]func(Status)),
	}
}

// Boot probes the server session once at startup. needsOwnerInit is true only
// when the probe failed because the platform has never been initialized.
func (g *Gate) Boot(ctx context.Context) (status Status, needsOwnerInit bool, err error) {
	sess, err := g.auth.Session(ctx)
	if err == nil {
		g.setAuthenticated(sess)
		return Authenticated, false, nil
	}

	if !errors.Is(err, gmvErrors.ErrUnauthorized) {
		// Transient failure: stay Unknown so the caller can retry instead of
		// bouncing the operator to login.
		slog.Warn("Session probe failed", "error", err)
		return Unknown, false, err
	}

	exists, probeErr := g.auth.OwnerExists(ctx)
	if probeErr != nil {
		slog.Warn("Owner probe failed, assuming initialized", "error", probeErr)
		exists = true
	}

	g.setStatus(Unauthenticated)
	return Unauthenticated, !exists, nil
}

// Login authenticates without naming a workspace. When the server rejects
// with AUTH_FAILED because the username spans workspaces, the tenant list is
// discovered: a single match retries automatically, several surface as a
// WorkspaceChoiceError.
func (g *Gate) Login(ctx context.Context, username, password string, remember bool) (api.Session, error) {
	sess, err := g.auth.Login(ctx, api.LoginRequest{
		Username: username,
		Password: password,
		Remember: remember,
	})
	if err == nil {
		g.setAuthenticated(sess)
		return sess, nil
	}

	if !gmvErrors.IsCode(err, gmvErrors.CodeAuthFailed) {
		return api.Session{}, err
	}

	tenants, discoverErr := g.auth.DiscoverTenants(ctx, username)
	if discoverErr != nil || len(tenants) == 0 {
		// Discovery came up empty: the original rejection stands.
		return api.Session{}, err
	}

	if len(tenants) == 1 {
		return g.LoginWorkspace(ctx, username, password, remember, tenants[0].WorkspaceID)
	}
	return api.Session{}, &WorkspaceChoiceError{Tenants: tenants}
}

// LoginWorkspace retries authentication against one chosen workspace.
func (g *Gate) LoginWorkspace(ctx context.Context, username, password string, remember bool, workspaceID string) (api.Session, error) {
	sess, err := g.auth.Login(ctx, api.LoginRequest{
		Username:    username,
		Password:    password,
		Remember:    remember,
		WorkspaceID: workspaceID,
	})
	if err != nil {
		return api.Session{}, err
	}
	g.setAuthenticated(sess)
	return sess, nil
}

// Logout ends the server session and drops every cached record. The cache is
// cleared even when the server call fails; stale tenant data is worse than a
// dangling cookie.
func (g *Gate) Logout(ctx context.Context) error {
	err := g.auth.Logout(ctx)
	g.cache.Clear()
	g.setStatus(Unauthenticated)
	if err != nil {
		slog.Warn("Logout request failed, local session cleared anyway", "error", err)
	}
	return err
}

// Status returns the current gate state.
func (g *Gate) Status() Status {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.status
}

// Session returns the authenticated session, if any.
func (g *Gate) Session() (api.Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.status != Authenticated {
		return api.Session{}, false
	}
	return g.session, true
}

// Subscribe registers a status listener and returns an unsubscribe func.
func (g *Gate) Subscribe(fn func(Status)) func() {
	g.mu.Lock()
	g.nextSub++
	id := g.nextSub
	g.subs[id] = fn
	g.mu.Unlock()

	return func() {
		g.mu.Lock()
		delete(g.subs, id)
		g.mu.Unlock()
	}
}

func (g *Gate) setAuthenticated(sess api.Session) {
	g.mu.Lock()
	g.session = sess
	changed := g.status != Authenticated
	g.status = Authenticated
	subs := g.subscribersLocked(changed)
	g.mu.Unlock()

	slog.Info("Session established", "user", sess.Username, "workspace", sess.WorkspaceID)
	for _, fn := range subs {
		fn(Authenticated)
	}
}

func (g *Gate) setStatus(status Status) {
	g.mu.Lock()
	changed := g.status != status
	g.status = status
	if status != Authenticated {
		g.session = api.Session{}
	}
	subs := g.subscribersLocked(changed)
	g.mu.Unlock()

	for _, fn := range subs {
		fn(status)
	}
}

func (g *Gate) subscribersLocked(changed bool) []func(Status) {
	if !changed {
		return nil
	}
	subs := make([]func(Status), 0, len(g.subs))
	for _, fn := range g.subs {
		subs = append(subs, fn)
	}
	return subs
}
