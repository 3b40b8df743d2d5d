package policyadmin

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/harunnryd/gmvctl/internal/api"
)

// domainPattern accepts bare domains and single-level wildcards, already
// lowercased.
var domainPattern = regexp.MustCompile(`^(?:\*\.)?(?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)

// PolicyForm is the editable policy shape before normalization. Scopes are
// edited as raw JSON text and validated structurally.
type PolicyForm struct {
	Name            string `validate:"required,max=128"`
	ProviderKey     string `validate:"required"`
	Mode            string `validate:"required,oneof=WHITELIST BLACKLIST"`
	EnforcementMode string `validate:"omitempty,oneof=ENFORCE DRYRUN OFF"`
	Domains         []string
	ScopesJSON      string
	Limits          api.PolicyLimits
	Description     string `validate:"max=1024"`
	IsEnabled       bool
}

// ValidationError aggregates every problem found in one pass so the form can
// show them all at once.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid policy: %s", strings.Join(e.Problems, "; "))
}

func (e *ValidationError) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

// NormalizePolicy validates the form and returns the request body for
// create/update. Domains are lowercased and deduplicated before matching;
// the scopes JSON is checked against the closed key set; window_cron must
// parse as a standard cron expression.
func NormalizePolicy(v *validator.Validate, form PolicyForm) (map[string]any, error) {
	verr := &ValidationError{}

	if err := v.Struct(form); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return nil, err
		}
		for _, fe := range fieldErrs {
			verr.add("%s fails %q", fe.Field(), fe.Tag())
		}
	}

	domains := normalizeDomains(form.Domains, verr)
	scopes := parseScopes(form.ScopesJSON, verr)

	if form.Limits.WindowCron != "" {
		if _, err := cron.ParseStandard(form.Limits.WindowCron); err != nil {
			verr.add("window_cron %q does not parse: %v", form.Limits.WindowCron, err)
		}
	}

	if len(verr.Problems) > 0 {
		return nil, verr
	}

	body := map[string]any{
		"name":         form.Name,
		"provider_key": form.ProviderKey,
		"mode":         form.Mode,
		"domains":      domains,
		"is_enabled":   form.IsEnabled,
	}
	if form.EnforcementMode != "" {
		body["enforcement_mode"] = form.EnforcementMode
	}
	if scopes != nil {
		body["business_scopes"] = scopes
	}
	if form.Description != "" {
		body["description"] = form.Description
	}
	if limits := limitsBody(form.Limits); len(limits) > 0 {
		body["limits"] = limits
	}
	return body, nil
}

func normalizeDomains(raw []string, verr *ValidationError) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, d := range raw {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || seen[d] {
			continue
		}
		if !domainPattern.MatchString(d) {
			verr.add("domain %q is not a valid domain", d)
			continue
		}
		seen[d] = true
		out = append(out, d)
	}
	if len(out) == 0 {
		verr.add("at least one domain is required")
	}
	return out
}

// Closed key sets for the scopes JSON.
var (
	scopeSections = map[string]bool{"include": true, "exclude": true}
	scopeKeys     = map[string]bool{
		"bc_ids":         true,
		"advertiser_ids": true,
		"store_ids":      true,
		"product_ids":    true,
	}
)

func parseScopes(raw string, verr *ValidationError) map[string]map[string][]string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var sections map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &sections); err != nil {
		verr.add("scopes JSON does not parse: %v", err)
		return nil
	}

	out := make(map[string]map[string][]string, len(sections))
	for section, sectionRaw := range sections {
		if !scopeSections[section] {
			verr.add("scopes key %q is not allowed (want include/exclude)", section)
			continue
		}

		var lists map[string]json.RawMessage
		if err := json.Unmarshal(sectionRaw, &lists); err != nil {
			verr.add("scopes.%s must be an object: %v", section, err)
			continue
		}

		selector := make(map[string][]string, len(lists))
		for key, listRaw := range lists {
			if !scopeKeys[key] {
				verr.add("scopes.%s key %q is not allowed", section, key)
				continue
			}
			var ids []string
			if err := json.Unmarshal(listRaw, &ids); err != nil {
				verr.add("scopes.%s.%s must be a string array: %v", section, key, err)
				continue
			}
			selector[key] = dedupe(ids)
		}
		if len(selector) > 0 {
			out[section] = selector
		}
	}

	if len(out) == 0 {
		return nil
	}
	return out
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func limitsBody(l api.PolicyLimits) map[string]any {
	out := map[string]any{}
	if l.RateLimitRPS > 0 {
		out["rate_limit_rps"] = l.RateLimitRPS
	}
	if l.RateBurst > 0 {
		out["rate_burst"] = l.RateBurst
	}
	if l.CooldownSeconds > 0 {
		out["cooldown_seconds"] = l.CooldownSeconds
	}
	if l.MaxConcurrency > 0 {
		out["max_concurrency"] = l.MaxConcurrency
	}
	if l.MaxEntitiesPerRun > 0 {
		out["max_entities_per_run"] = l.MaxEntitiesPerRun
	}
	if l.WindowCron != "" {
		out["window_cron"] = l.WindowCron
	}
	return out
}
