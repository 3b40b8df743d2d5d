package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/query"
	"github.com/harunnryd/gmvctl/internal/transport"
)

func newGate(t *testing.T, handler http.Handler) (*Gate, *query.Cache) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := transport.New(srv.URL, 5*time.Second)
	require.NoError(t, err)
	cache := query.New()
	return NewGate(api.NewAuthService(client), cache), cache
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{"code": code, "message": message},
	})
}

func TestBoot_ActiveSessionAuthenticates(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/platform/auth/session", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "op", "workspace_id": "ws-1"})
	}))

	status, needsInit, err := gate.Boot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Authenticated, status)
	assert.False(t, needsInit)

	sess, ok := gate.Session()
	require.True(t, ok)
	assert.Equal(t, "op", sess.Username)
}

func TestBoot_401ProbesOwnerExists(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/platform/auth/session":
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "no session")
		case "/platform/admin/exists":
			json.NewEncoder(w).Encode(map[string]bool{"exists": false})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	status, needsInit, err := gate.Boot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Unauthenticated, status)
	assert.True(t, needsInit, "uninitialized platform routes to owner setup")
}

func TestBoot_TransientFailureStaysUnknown(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadGateway, "", "upstream")
	}))

	status, _, err := gate.Boot(context.Background())
	require.Error(t, err)
	assert.Equal(t, Unknown, status)
	assert.Equal(t, Unknown, gate.Status(), "a flaky probe must not bounce the operator to login")
}

func TestLogin_SingleTenantRetriesAutomatically(t *testing.T) {
	var loginBodies []api.LoginRequest
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/platform/auth/login":
			var req api.LoginRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			loginBodies = append(loginBodies, req)
			if req.WorkspaceID == "" {
				writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "ambiguous")
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": req.Username, "workspace_id": req.WorkspaceID})
		case "/platform/auth/tenants/discover":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]string{{"workspace_id": "ws-7", "company_name": "Acme"}},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	sess, err := gate.Login(context.Background(), "op", "secret", true)
	require.NoError(t, err)
	assert.Equal(t, "ws-7", sess.WorkspaceID)
	require.Len(t, loginBodies, 2)
	assert.Equal(t, "ws-7", loginBodies[1].WorkspaceID)
	assert.Equal(t, Authenticated, gate.Status())
}

func TestLogin_MultipleTenantsSurfaceChoice(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/platform/auth/login":
			writeError(w, http.StatusUnauthorized, "AUTH_FAILED", "ambiguous")
		case "/platform/auth/tenants/discover":
			json.NewEncoder(w).Encode(map[string]any{
				"items": []map[string]string{
					{"workspace_id": "ws-1", "company_name": "Acme"},
					{"workspace_id": "ws-2", "company_name": "Globex"},
				},
			})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := gate.Login(context.Background(), "op", "secret", false)

	var choice *WorkspaceChoiceError
	require.ErrorAs(t, err, &choice)
	assert.Len(t, choice.Tenants, 2)
	assert.Equal(t, Unknown, gate.Status(), "a pending choice is not a failed login")
}

func TestLogin_PlainRejectionPropagates(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusUnauthorized, "BAD_CREDENTIALS", "wrong password")
	}))

	_, err := gate.Login(context.Background(), "op", "wrong", false)
	require.Error(t, err)

	var choice *WorkspaceChoiceError
	assert.False(t, errors.As(err, &choice), "a hard rejection must not open the tenant picker")
	assert.NotEqual(t, Authenticated, gate.Status())
}

func TestLogout_ClearsCacheEvenOnServerFailure(t *testing.T) {
	gate, cache := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/platform/auth/session":
			json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "op"})
		case "/platform/auth/logout":
			writeError(w, http.StatusBadGateway, "", "upstream")
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	_, _, err := gate.Boot(context.Background())
	require.NoError(t, err)
	cache.SetData(query.K("policies", "ws-1"), "sensitive")

	err = gate.Logout(context.Background())
	require.Error(t, err)

	assert.Equal(t, Unauthenticated, gate.Status())
	_, ok := cache.GetData(query.K("policies", "ws-1"))
	assert.False(t, ok, "tenant data must not survive logout")
	_, ok = gate.Session()
	assert.False(t, ok)
}

func TestSubscribe_NotifiesOnTransition(t *testing.T) {
	gate, _ := newGate(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/platform/auth/session":
			json.NewEncoder(w).Encode(map[string]any{"id": 1, "username": "op"})
		case "/platform/auth/logout":
			w.WriteHeader(http.StatusNoContent)
		}
	}))

	var transitions []Status
	unsub := gate.Subscribe(func(s Status) { transitions = append(transitions, s) })
	defer unsub()

	_, _, err := gate.Boot(context.Background())
	require.NoError(t, err)
	require.NoError(t, gate.Logout(context.Background()))

	assert.Equal(t, []Status{Authenticated, Unauthenticated}, transitions)
}
