package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/turioshq/gateway/internal/config"
)

const (
	keyWebhookIngestSource = "webhook:ingest:source:%s"
	keyConversationLock    = "webhook:conversation:lock:%s:%s"
)

// WebhookIngestLimiter throttles inbound webhook traffic per routing id
// and serializes concurrent deliveries for the same conversation.
type WebhookIngestLimiter struct {
	enabled bool

	bucket *TokenBucket
	lock   *conversationLock

	rate  float64
	burst int
}

func NewWebhookIngestLimiter(cfg config.Config) (*WebhookIngestLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return nil, nil
	}

	addr := strings.TrimSpace(limitCfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("rate limit redis addr is required")
	}
	if limitCfg.IngestRate <= 0 || limitCfg.IngestBurst <= 0 {
		return nil, errors.New("webhook ingest rate limit must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: strings.TrimSpace(limitCfg.RedisPassword),
		DB:       limitCfg.RedisDB,
	})

	return &WebhookIngestLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		lock:    newConversationLock(client, time.Duration(limitCfg.ConcurrencyTTLSeconds)*time.Second),
		rate:    limitCfg.IngestRate,
		burst:   limitCfg.IngestBurst,
	}, nil
}

func (l *WebhookIngestLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *WebhookIngestLimiter) AllowSource(ctx context.Context, routingID string) (bool, error) {
	if !l.Enabled() {
		return true, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyWebhookIngestSource, strings.TrimSpace(routingID)), l.rate, l.burst)
}

func (l *WebhookIngestLimiter) TryLockConversation(ctx context.Context, accountID, phone string) (string, bool, error) {
	if !l.Enabled() {
		return "", true, nil
	}
	return l.lock.acquire(ctx, accountID, phone)
}

func (l *WebhookIngestLimiter) ReleaseConversation(ctx context.Context, accountID, phone, token string) error {
	if !l.Enabled() {
		return nil
	}
	return l.lock.release(ctx, accountID, phone, token)
}
