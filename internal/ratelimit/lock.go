package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// releases only while the caller still owns the key
const conversationUnlockScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

const defaultConversationTTL = 30 * time.Second

// conversationLock serializes pipeline work per (account, phone) pair so a
// burst of concurrent deliveries triggers at most one forward.
type conversationLock struct {
	client *redis.Client
	unlock *redis.Script
	ttl    time.Duration
}

func newConversationLock(client *redis.Client, ttl time.Duration) *conversationLock {
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	return &conversationLock{
		client: client,
		unlock: redis.NewScript(conversationUnlockScript),
		ttl:    ttl,
	}
}

func conversationKey(accountID, phone string) string {
	return fmt.Sprintf(keyConversationLock, strings.TrimSpace(accountID), strings.TrimSpace(phone))
}

func (c *conversationLock) acquire(ctx context.Context, accountID, phone string) (string, bool, error) {
	token := uuid.NewString()
	ok, err := c.client.SetNX(ctx, conversationKey(accountID, phone), token, c.ttl).Result()
	if err != nil {
		return "", false, err
	}
	return token, ok, nil
}

func (c *conversationLock) release(ctx context.Context, accountID, phone, token string) error {
	if token == "" {
		return nil
	}
	return c.unlock.Run(ctx, c.client, []string{conversationKey(accountID, phone)}, token).Err()
}
