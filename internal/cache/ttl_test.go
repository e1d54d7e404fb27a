package cache

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheRoundTrip(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Minute)
	value, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, value)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Delete("a")
	_, ok = c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheExpiry(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, time.Nanosecond)
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int]()

	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestBindingResolverCache(t *testing.T) {
	c := NewBindingResolverCache()

	c.SetBinding("556199998888", snowflake.ID(42))
	id, ok := c.GetBinding("556199998888")
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	// lookups are case and whitespace insensitive
	id, ok = c.GetBinding("  556199998888 ")
	assert.True(t, ok)
	assert.Equal(t, snowflake.ID(42), id)

	// a zero account id is never cached
	c.SetBinding("other", 0)
	_, ok = c.GetBinding("other")
	assert.False(t, ok)

	c.InvalidateBinding("556199998888")
	_, ok = c.GetBinding("556199998888")
	assert.False(t, ok)
}
