package cache

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const defaultBindingTTL = 5 * time.Minute

// BindingResolverCache stores hot-path channel binding lookups for webhook ingest.
type BindingResolverCache interface {
	GetBinding(routingID string) (snowflake.ID, bool)
	SetBinding(routingID string, accountID snowflake.ID)
	InvalidateBinding(routingID string)
}

type bindingResolverCache struct {
	bindings   Cache[string, snowflake.ID]
	bindingTTL time.Duration
}

// NewBindingResolverCache returns an in-memory cache tuned for webhook ingest.
func NewBindingResolverCache() BindingResolverCache {
	return &bindingResolverCache{
		bindings:   NewTTLCache[string, snowflake.ID](),
		bindingTTL: defaultBindingTTL,
	}
}

func (c *bindingResolverCache) GetBinding(routingID string) (snowflake.ID, bool) {
	return c.bindings.Get(cacheKey(routingID))
}

func (c *bindingResolverCache) SetBinding(routingID string, accountID snowflake.ID) {
	if accountID == 0 {
		return
	}
	c.bindings.Set(cacheKey(routingID), accountID, c.bindingTTL)
}

func (c *bindingResolverCache) InvalidateBinding(routingID string) {
	c.bindings.Delete(cacheKey(routingID))
}

func cacheKey(parts ...string) string {
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		values = append(values, strings.ToLower(trimmed))
	}
	return strings.Join(values, "|")
}
