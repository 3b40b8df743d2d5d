package api

import (
	"context"
	"fmt"
	"net/url"

	"github.com/harunnryd/gmvctl/internal/transport"
)

// TenantService wraps tenant metadata endpoints.
type TenantService struct {
	client *transport.Client
}

func NewTenantService(client *transport.Client) *TenantService {
	return &TenantService{client: client}
}

func (s *TenantService) Meta(ctx context.Context, workspaceID string) (TenantMeta, error) {
	var out TenantMeta
	path := fmt.Sprintf("/tenants/%s/meta", url.PathEscape(workspaceID))
	if err := s.client.Get(ctx, path, nil, &out); err != nil {
		return TenantMeta{}, err
	}
	return out, nil
}
