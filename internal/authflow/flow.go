// Package authflow drives the interactive login and first-run owner setup.
// It remembers the operator's username across sessions when asked to; the
// password itself is never written anywhere.
package authflow

import (
	"context"
	"errors"

	"github.com/harunnryd/gmvctl/internal/api"
	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/session"
)

// ErrAlreadyInitialized reports that the platform owner already exists; the
// caller should route straight to login.
var ErrAlreadyInitialized = errors.New("platform already initialized")

// ErrPasswordTooWeak rejects owner passwords below the Medium bucket.
var ErrPasswordTooWeak = errors.New("password too weak")

type Flow struct {
	gate  *session.Gate
	auth  *api.AuthService
	state *localstate.Store
}

func NewFlow(gate *session.Gate, auth *api.AuthService, state *localstate.Store) *Flow {
	return &Flow{gate: gate, auth: auth, state: state}
}

// Prefill returns the remembered username and whether remember was on last
// time. Both read as zero values on a fresh install.
func (f *Flow) Prefill() (username string, remember bool) {
	f.state.Get(localstate.KeyRemember, 0, &remember)
	if remember {
		f.state.Get(localstate.KeyUsername, 0, &username)
	}
	return username, remember
}

// Login authenticates through the gate and persists (or clears) the
// remembered username on success.
func (f *Flow) Login(ctx context.Context, username, password string, remember bool) (api.Session, error) {
	sess, err := f.gate.Login(ctx, username, password, remember)
	if err != nil {
		return api.Session{}, err
	}
	f.persistRemember(username, remember)
	return sess, nil
}

// LoginWorkspace completes a login after the tenant picker.
func (f *Flow) LoginWorkspace(ctx context.Context, username, password string, remember bool, workspaceID string) (api.Session, error) {
	sess, err := f.gate.LoginWorkspace(ctx, username, password, remember, workspaceID)
	if err != nil {
		return api.Session{}, err
	}
	f.persistRemember(username, remember)
	return sess, nil
}

// Logout ends the session and purges account-scoped local caches. The
// remembered username survives so the next login can prefill it.
func (f *Flow) Logout(ctx context.Context) error {
	err := f.gate.Logout(ctx)
	f.state.Delete(localstate.KeyCreditCache)
	return err
}

func (f *Flow) persistRemember(username string, remember bool) {
	if remember {
		f.state.Put(localstate.KeyRemember, true)
		f.state.Put(localstate.KeyUsername, username)
		return
	}
	f.state.Delete(localstate.KeyRemember)
	f.state.Delete(localstate.KeyUsername)
}

// OwnerInit creates the platform owner account. Passwords below Medium are
// rejected locally; a server-side ALREADY_INITIALIZED maps to
// ErrAlreadyInitialized so the caller can fall through to login.
func (f *Flow) OwnerInit(ctx context.Context, email, password string) error {
	if ScorePassword(password) < Medium {
		return ErrPasswordTooWeak
	}

	err := f.auth.OwnerInit(ctx, api.OwnerInitRequest{Email: email, Password: password})
	if err == nil {
		return nil
	}
	if gmvErrors.IsCode(err, gmvErrors.CodeAlreadyInitialized) {
		return ErrAlreadyInitialized
	}
	return err
}
