package localstate

import (
	"fmt"

	"github.com/harunnryd/gmvctl/internal/api"
)

// Well-known keys. The gmv.max.v1 namespace versions the scope and product
// cache records together; bumping it orphans old entries instead of trying to
// migrate them.
const (
	namespaceScope    = "gmv.max.v1:__scope__"
	namespaceProducts = "gmv.max.v1:__products__"

	KeyRemember = "gmv.remember"
	KeyUsername = "gmv.username"

	// KeyCreditCache holds the platform credit balance snapshot some servers
	// attach to the session. It is account-scoped, so it is purged on logout.
	KeyCreditCache = "kie_platform_key_credit_cache"
)

// ScopeKey addresses the persisted account scope selection of one workspace.
func ScopeKey(workspaceID string) string {
	return fmt.Sprintf("%s:%s", namespaceScope, workspaceID)
}

// ProductsKey addresses the cached product list of one store. The store ID is
// part of the key: pools of different stores under the same binding never
// seed each other.
func ProductsKey(workspaceID, authID, storeID string) string {
	return fmt.Sprintf("%s:%s:%s:%s", namespaceProducts, workspaceID, authID, storeID)
}

// ProductsKeyPrefix covers every store's cached product list of one account.
func ProductsKeyPrefix(workspaceID, authID string) string {
	return fmt.Sprintf("%s:%s:%s:", namespaceProducts, workspaceID, authID)
}

// LastRunKey addresses the last observed sync run of one account.
func LastRunKey(workspaceID, provider, authID string) string {
	return fmt.Sprintf("ttb:last-run:%s:%s:%s", workspaceID, provider, authID)
}

// ScopeRecord is the persisted account scope selection of one workspace.
type ScopeRecord struct {
	AuthID       string `json:"auth_id,omitempty"`
	Mode         string `json:"mode"`
	BCID         string `json:"bc_id,omitempty"`
	AdvertiserID string `json:"advertiser_id"`
	StoreID      string `json:"store_id"`
}

// ProductsRecord caches one product listing page set for offline-ish reads.
type ProductsRecord struct {
	Products []api.Product `json:"products"`
	Total    int           `json:"total"`
}

// LastRunRecord remembers the most recent sync run so a restarted console can
// resume watching it.
type LastRunRecord struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}
