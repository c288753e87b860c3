package cache

import (
	"net/url"
	"slices"
	"strings"
)

// Key identifies a cached collection result.
type Key struct {
	// Kind separates result types sharing one endpoint (e.g. "count").
	Kind string

	// Tenant scopes the entry to one platform tenant (empty for single-tenant use).
	Tenant string

	// Endpoint is the collection path (e.g. "/inventory/managedObjects").
	Endpoint string

	// Query holds the filter parameters. Paging parameters do not belong here.
	Query url.Values
}

// String generates a deterministic key.
// Format: c8y:kind:tenant:endpoint:param1=v1,v2:param2=v
//
// Example:
//
//	c8y:count:t12345:inventory/managedObjects:fragmentType=c8y_IsDevice
func (k Key) String() string {
	parts := []string{"c8y", k.Kind, k.Tenant}

	if endpoint := strings.Trim(k.Endpoint, "/"); endpoint != "" {
		parts = append(parts, endpoint)
	}

	keys := make([]string, 0, len(k.Query))
	for key := range k.Query {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	for _, key := range keys {
		values := slices.Clone(k.Query[key])
		slices.Sort(values)
		parts = append(parts, key+"="+strings.Join(values, ","))
	}

	return strings.Join(parts, ":")
}

// Pattern returns a redis MATCH pattern covering every key of the same kind,
// tenant and endpoint, regardless of query.
func (k Key) Pattern() string {
	base := Key{Kind: k.Kind, Tenant: k.Tenant, Endpoint: k.Endpoint}.String()
	return escapeGlob(base) + "*"
}

func escapeGlob(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)
	return r.Replace(s)
}
