package authflow

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
	"github.com/harunnryd/gmvctl/internal/localstate"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/session"
	"github.com/harunnryd/gmvctl/internal/transport"
)

func newFlow(t *testing.T, handler http.Handler) (*Flow, *localstate.Store) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, 5*time.Second)
	require.NoError(t, err)

	state, err := localstate.NewStore(t.TempDir())
	require.NoError(t, err)

	auth := api.NewAuthService(client)
	gate := session.NewGate(auth, query.New())
	return NewFlow(gate, auth, state), state
}

func loginOK(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/platform/auth/login", r.URL.Path)
		var req api.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": req.Username})
	})
}

func TestLogin_RememberPersistsUsernameOnly(t *testing.T) {
	flow, state := newFlow(t, loginOK(t))

	_, err := flow.Login(context.Background(), "op@acme.com", "hunter2hunter2", true)
	require.NoError(t, err)

	username, remember := flow.Prefill()
	assert.True(t, remember)
	assert.Equal(t, "op@acme.com", username)

	var leaked string
	assert.False(t, state.Get("hunter2hunter2", 0, &leaked), "the password is never persisted")
}

func TestLogin_NoRememberClearsPrefill(t *testing.T) {
	flow, _ := newFlow(t, loginOK(t))

	_, err := flow.Login(context.Background(), "op@acme.com", "hunter2hunter2", true)
	require.NoError(t, err)
	_, err = flow.Login(context.Background(), "op@acme.com", "hunter2hunter2", false)
	require.NoError(t, err)

	username, remember := flow.Prefill()
	assert.False(t, remember)
	assert.Empty(t, username)
}

func TestLogin_FailurePersistsNothing(t *testing.T) {
	flow, _ := newFlow(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "BAD_CREDENTIALS", "message": "nope"}})
	}))

	_, err := flow.Login(context.Background(), "op@acme.com", "wrong-password", true)
	require.Error(t, err)

	username, remember := flow.Prefill()
	assert.False(t, remember)
	assert.Empty(t, username)
}

func TestLogout_PurgesCreditCacheKeepsUsername(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /platform/auth/login", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "op@acme.com"})
	})
	mux.HandleFunc("POST /platform/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	flow, state := newFlow(t, mux)

	_, err := flow.Login(context.Background(), "op@acme.com", "hunter2hunter2", true)
	require.NoError(t, err)
	state.Put(localstate.KeyCreditCache, map[string]int{"balance": 42})

	require.NoError(t, flow.Logout(context.Background()))

	var credit map[string]int
	assert.False(t, state.Get(localstate.KeyCreditCache, 0, &credit), "credit cache is account-scoped")

	username, remember := flow.Prefill()
	assert.True(t, remember)
	assert.Equal(t, "op@acme.com", username)
}

func TestOwnerInit_WeakPasswordRejectedLocally(t *testing.T) {
	called := false
	flow, _ := newFlow(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	err := flow.OwnerInit(context.Background(), "owner@acme.com", "password")
	assert.ErrorIs(t, err, ErrPasswordTooWeak)
	assert.False(t, called, "a weak password never reaches the server")
}

func TestOwnerInit_AlreadyInitializedRoutesToLogin(t *testing.T) {
	flow, _ := newFlow(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/platform/admin/init", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "ALREADY_INITIALIZED", "message": "owner exists"}})
	}))

	err := flow.OwnerInit(context.Background(), "owner@acme.com", "Str0ng-Passw0rd!")
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

func TestOwnerInit_Succeeds(t *testing.T) {
	flow, _ := newFlow(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req api.OwnerInitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "owner@acme.com", req.Email)
		w.WriteHeader(http.StatusCreated)
	}))

	require.NoError(t, flow.OwnerInit(context.Background(), "owner@acme.com", "Str0ng-Passw0rd!"))
}

func TestScorePassword_Buckets(t *testing.T) {
	tests := []struct {
		password string
		want     Strength
	}{
		{"", TooShort},
		{"short1!", TooShort},
		{"password", Weak},
		{"aaaaaaaa1", Weak},
		{"password1", Medium},
		{"Password1", Strong},
		{"Password1!", Strong},
		{"Password1!Extra", VeryStrong},
		{"correcthorsebatterystaple", Strong},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ScorePassword(tt.password), "password %q", tt.password)
	}
}

func TestScorePassword_TripleRepeatCostsABucket(t *testing.T) {
	assert.Equal(t, Strong, ScorePassword("Abcd1212"))
	assert.Equal(t, Medium, ScorePassword("Abcd1112"), "a run of three identical characters drops a bucket")
}
