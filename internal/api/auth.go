package api

import (
	"context"

	gmvErrors "github.com/harunnryd/gmvctl/internal/errors"
	"github.com/harunnryd/gmvctl/internal/transport"
)

// AuthService wraps the platform auth endpoints.
type AuthService struct {
	client *transport.Client
}

func NewAuthService(client *transport.Client) *AuthService {
	return &AuthService{client: client}
}

// Session probes the current session. A 401 propagates unchanged so the
// session gate can branch on it.
func (s *AuthService) Session(ctx context.Context) (Session, error) {
	var wire sessionWire
	if err := s.client.Get(ctx, "/platform/auth/session", nil, &wire); err != nil {
		return Session{}, err
	}
	return wire.normalize(), nil
}

type LoginRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	Remember    bool   `json:"remember"`
	WorkspaceID string `json:"workspace_id,omitempty"`
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest) (Session, error) {
	var wire sessionWire
	if err := s.client.Post(ctx, "/platform/auth/login", req, &wire); err != nil {
		return Session{}, err
	}
	return wire.normalize(), nil
}

func (s *AuthService) Logout(ctx context.Context) error {
	return s.client.Post(ctx, "/platform/auth/logout", nil, nil)
}

// DiscoverTenants asks which workspaces accept the given username. Used after
// an AUTH_FAILED login to drive the tenant picker.
func (s *AuthService) DiscoverTenants(ctx context.Context, username string) ([]Tenant, error) {
	var out struct {
		Items []Tenant `json:"items"`
	}
	body := map[string]string{"username": username}
	if err := s.client.Post(ctx, "/platform/auth/tenants/discover", body, &out); err != nil {
		return nil, gmvErrors.Wrap(err, "discover tenants")
	}
	return out.Items, nil
}

func (s *AuthService) OwnerExists(ctx context.Context) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := s.client.Get(ctx, "/platform/admin/exists", nil, &out); err != nil {
		return false, gmvErrors.Wrap(err, "check platform owner")
	}
	return out.Exists, nil
}

type OwnerInitRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *AuthService) OwnerInit(ctx context.Context, req OwnerInitRequest) error {
	return s.client.Post(ctx, "/platform/admin/init", req, nil)
}
