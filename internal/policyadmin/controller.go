// Package policyadmin drives the platform access-policy admin surface: the
// filtered list, the editor with its validation pass, and the optimistic
// enable toggle.
package policyadmin

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/harunnryd/gmvctl/internal/api"
	"github.com/harunnryd/gmvctl/internal/feedback"
	"github.com/harunnryd/gmvctl/internal/nav"
	"github.com/harunnryd/gmvctl/internal/query"
)

type Controller struct {
	svc      *api.PolicyService
	cache    *query.Cache
	bus      *feedback.Bus
	history  *nav.History
	validate *validator.Validate

	defaultPageSize int
	defaultSort     string
}

type ControllerParams struct {
	Service  *api.PolicyService
	Cache    *query.Cache
	Bus      *feedback.Bus
	History  *nav.History
	PageSize int
	Sort     string
}

func NewController(p ControllerParams) *Controller {
	if p.PageSize <= 0 {
		p.PageSize = 20
	}
	if p.Sort == "" {
		p.Sort = "-updated_at"
	}
	return &Controller{
		svc:             p.Service,
		cache:           p.Cache,
		bus:             p.Bus,
		history:         p.History,
		validate:        validator.New(),
		defaultPageSize: p.PageSize,
		defaultSort:     p.Sort,
	}
}

// Params reads the list filters off the location bar, applying defaults.
func (c *Controller) Params() api.PolicyListParams {
	params := api.PolicyListParams{
		Page:     1,
		PageSize: c.defaultPageSize,
		Sort:     c.defaultSort,
	}
	if c.history == nil {
		return params
	}

	params.ProviderKey = c.history.Param("provider_key")
	params.Mode = c.history.Param("mode")
	params.Domain = c.history.Param("domain")
	params.Status = c.history.Param("status")
	if page, err := strconv.Atoi(c.history.Param("page")); err == nil && page > 0 {
		params.Page = page
	}
	if size, err := strconv.Atoi(c.history.Param("page_size")); err == nil && size > 0 {
		params.PageSize = size
	}
	if sort := c.history.Param("sort"); sort != "" {
		params.Sort = sort
	}
	return params
}

// SetFilter writes one filter to the location bar and rewinds to page 1; a
// filter change re-anchors the list.
func (c *Controller) SetFilter(key, value string) {
	if c.history == nil {
		return
	}
	c.history.SetParams(map[string]string{key: value, "page": ""})
}

// SetPage moves to a page, keeping the filters.
func (c *Controller) SetPage(page int) {
	if c.history == nil {
		return
	}
	value := ""
	if page > 1 {
		value = strconv.Itoa(page)
	}
	c.history.SetParam("page", value)
}

func listKey(params api.PolicyListParams) query.Key {
	return query.K("policies", "list",
		params.ProviderKey, params.Mode, params.Domain, params.Status,
		strconv.Itoa(params.Page), strconv.Itoa(params.PageSize), params.Sort)
}

// Watch subscribes to the list page behind params. The previous page stays
// visible while the next one loads.
func (c *Controller) Watch(params api.PolicyListParams, notify func(query.Snapshot)) *query.Subscription {
	fetch := func(ctx context.Context) (any, error) {
		page, err := c.svc.List(ctx, params)
		if err != nil {
			return nil, err
		}
		return page, nil
	}
	return c.cache.Subscribe(listKey(params), fetch, query.Options{
		Enabled:          true,
		KeepPreviousData: true,
	}, notify)
}

// Save validates the form and creates (empty id) or updates the policy. One
// success notice per outcome; the list refetches.
func (c *Controller) Save(ctx context.Context, id string, form PolicyForm) (api.Policy, error) {
	body, err := NormalizePolicy(c.validate, form)
	if err != nil {
		return api.Policy{}, err
	}

	var policy api.Policy
	if id == "" {
		policy, err = c.svc.Create(ctx, body)
	} else {
		policy, err = c.svc.Update(ctx, id, body)
	}
	if err != nil {
		return api.Policy{}, err
	}

	if id == "" {
		c.bus.Success("策略已创建")
	} else {
		c.bus.Success("策略已更新")
	}
	c.cache.Invalidate(query.K("policies", "list"))
	return policy, nil
}

// Toggle flips is_enabled optimistically: the cached row changes first, the
// request follows, and a rejection puts the prior value back with one
// failure notice.
func (c *Controller) Toggle(ctx context.Context, id string, enabled bool) error {
	key := listKey(c.Params())
	prior, hadPage := query.Data[api.Page[api.Policy]](c.cache, key)
	if hadPage {
		c.cache.SetData(key, flipEnabled(prior, id, enabled))
	}

	if err := c.svc.Toggle(ctx, id, enabled); err != nil {
		if hadPage {
			c.cache.SetData(key, prior)
		}
		c.bus.Error("切换失败")
		return err
	}

	c.cache.Invalidate(query.K("policies", "list"))
	return nil
}

func flipEnabled(page api.Page[api.Policy], id string, enabled bool) api.Page[api.Policy] {
	items := make([]api.Policy, len(page.Items))
	copy(items, page.Items)
	for i := range items {
		if items[i].ID == id {
			items[i].IsEnabled = enabled
		}
	}
	page.Items = items
	return page
}

// Delete removes a policy and refetches the list.
func (c *Controller) Delete(ctx context.Context, id string) error {
	if err := c.svc.Delete(ctx, id); err != nil {
		return err
	}
	c.bus.Success("策略已删除")
	c.cache.Invalidate(query.K("policies", "list"))
	return nil
}

// DryRun evaluates candidates against a policy and returns the server
// verdict untouched for verbatim display.
func (c *Controller) DryRun(ctx context.Context, id string, candidates any) (json.RawMessage, error) {
	out, err := c.svc.DryRun(ctx, id, candidates)
	if err != nil {
		slog.Warn("Policy dry-run failed", "policy_id", id, "error", err)
		return nil, err
	}
	return out, nil
}

// Providers lists the provider keys the filter dropdown offers.
func (c *Controller) Providers(ctx context.Context) ([]api.Provider, error) {
	return c.svc.Providers(ctx)
}
