package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/harunnryd/gmvctl/internal/transport"
)

// TTBService wraps the TikTok Business OAuth binding endpoints for one
// workspace.
type TTBService struct {
	client      *transport.Client
	workspaceID string
}

func NewTTBService(client *transport.Client, workspaceID string) *TTBService {
	return &TTBService{client: client, workspaceID: workspaceID}
}

func (s *TTBService) path(suffix string) string {
	return fmt.Sprintf("/tenants/%s/oauth/tiktok-business%s", url.PathEscape(s.workspaceID), suffix)
}

func (s *TTBService) Bindings(ctx context.Context) ([]Binding, error) {
	var out struct {
		Items []bindingWire `json:"items"`
	}
	if err := s.client.Get(ctx, s.path("/bindings"), nil, &out); err != nil {
		return nil, err
	}

	bindings := make([]Binding, 0, len(out.Items))
	for _, w := range out.Items {
		bindings = append(bindings, w.normalize())
	}
	return bindings, nil
}

func (s *TTBService) ProviderApps(ctx context.Context) ([]ProviderApp, error) {
	var out struct {
		Items []ProviderApp `json:"items"`
	}
	if err := s.client.Get(ctx, s.path("/provider-apps"), nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}

// Authz starts the provider authorization flow and returns the URL the
// operator must open.
func (s *TTBService) Authz(ctx context.Context, appID string) (string, error) {
	var out struct {
		AuthURL string `json:"auth_url"`
	}
	body := map[string]string{"app_id": appID}
	if err := s.client.Post(ctx, s.path("/authz"), body, &out); err != nil {
		return "", err
	}
	return out.AuthURL, nil
}

// Revoke revokes a binding; remote=true also revokes the grant provider-side.
func (s *TTBService) Revoke(ctx context.Context, authID string, remote bool) error {
	suffix := fmt.Sprintf("/bindings/%s/revoke", url.PathEscape(authID))
	query := transport.Query{"remote": transport.Btoa(remote)}.Values()
	return s.client.PostWithQuery(ctx, s.path(suffix), query, nil, nil)
}

func (s *TTBService) DeleteBinding(ctx context.Context, authID string) error {
	return s.client.Delete(ctx, s.path(fmt.Sprintf("/bindings/%s", url.PathEscape(authID))), nil)
}

func (s *TTBService) SetAlias(ctx context.Context, authID, alias string) error {
	suffix := fmt.Sprintf("/bindings/%s/alias", url.PathEscape(authID))
	return s.client.Patch(ctx, s.path(suffix), map[string]string{"alias": alias}, nil)
}

func (s *TTBService) SetPrimary(ctx context.Context, authID string) error {
	suffix := fmt.Sprintf("/bindings/%s/set-primary", url.PathEscape(authID))
	return s.client.Post(ctx, s.path(suffix), nil, nil)
}
