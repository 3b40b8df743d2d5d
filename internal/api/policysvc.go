package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/harunnryd/gmvctl/internal/transport"
)

// PolicyService wraps the platform access-policy endpoints.
type PolicyService struct {
	client *transport.Client
}

func NewPolicyService(client *transport.Client) *PolicyService {
	return &PolicyService{client: client}
}

// PolicyListParams mirror the server's list filters. Empty values are
// dropped from the query string.
type PolicyListParams struct {
	ProviderKey string
	Mode        string
	Domain      string
	Status      string
	Page        int
	PageSize    int
	Sort        string
}

func (p PolicyListParams) values() url.Values {
	return transport.Query{
		"provider_key": p.ProviderKey,
		"mode":         p.Mode,
		"domain":       p.Domain,
		"status":       p.Status,
		"page":         transport.Itoa(p.Page),
		"page_size":    transport.Itoa(p.PageSize),
		"sort":         p.Sort,
	}.Values()
}

func (s *PolicyService) List(ctx context.Context, params PolicyListParams) (Page[Policy], error) {
	var out Page[Policy]
	if err := s.client.Get(ctx, "/platform/policies", params.values(), &out); err != nil {
		return Page[Policy]{}, err
	}
	return out, nil
}

func (s *PolicyService) Create(ctx context.Context, body map[string]any) (Policy, error) {
	var out Policy
	if err := s.client.Post(ctx, "/platform/policies", body, &out); err != nil {
		return Policy{}, err
	}
	return out, nil
}

func (s *PolicyService) Update(ctx context.Context, id string, body map[string]any) (Policy, error) {
	var out Policy
	path := fmt.Sprintf("/platform/policies/%s", url.PathEscape(id))
	if err := s.client.Put(ctx, path, body, &out); err != nil {
		return Policy{}, err
	}
	return out, nil
}

func (s *PolicyService) Toggle(ctx context.Context, id string, enabled bool) error {
	path := fmt.Sprintf("/platform/policies/%s/toggle", url.PathEscape(id))
	return s.client.Patch(ctx, path, map[string]bool{"enabled": enabled}, nil)
}

func (s *PolicyService) Delete(ctx context.Context, id string) error {
	path := fmt.Sprintf("/platform/policies/%s", url.PathEscape(id))
	return s.client.Delete(ctx, path, nil)
}

// DryRun evaluates candidates against a policy without side effects and
// returns the raw server response for verbatim display.
func (s *PolicyService) DryRun(ctx context.Context, id string, candidates any) (json.RawMessage, error) {
	var out json.RawMessage
	path := fmt.Sprintf("/platform/policies/%s/dry-run", url.PathEscape(id))
	body := map[string]any{"candidates": candidates}
	if err := s.client.Post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PolicyService) Providers(ctx context.Context) ([]Provider, error) {
	var out struct {
		Items []Provider `json:"items"`
	}
	if err := s.client.Get(ctx, "/platform/policies/providers", nil, &out); err != nil {
		return nil, err
	}
	return out.Items, nil
}
