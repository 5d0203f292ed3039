package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	id "creditengine/pkg/domain"
)

const submissionKeyPrefix = "submission:"

// releaseScript deletes the key only if it still holds our token, so an
// expired guard never releases a newer holder's claim.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisGuard claims evaluations across instances with SET NX PX.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Acquire(ctx context.Context, appID id.ApplicationID, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := g.client.SetNX(ctx, submissionKeyPrefix+appID.String(), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("acquire submission guard: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (g *RedisGuard) Release(ctx context.Context, appID id.ApplicationID, token string) error {
	if err := releaseScript.Run(ctx, g.client, []string{submissionKeyPrefix + appID.String()}, token).Err(); err != nil {
		return fmt.Errorf("release submission guard: %w", err)
	}
	return nil
}

type heldGuard struct {
	token     string
	expiresAt time.Time
}

// MemoryGuard is the single-instance guard used without Redis.
type MemoryGuard struct {
	mu   sync.Mutex
	held map[id.ApplicationID]heldGuard
	now  func() time.Time
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{held: make(map[id.ApplicationID]heldGuard), now: time.Now}
}

func (g *MemoryGuard) Acquire(_ context.Context, appID id.ApplicationID, ttl time.Duration) (string, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if h, ok := g.held[appID]; ok && now.Before(h.expiresAt) {
		return "", false, nil
	}
	token := uuid.NewString()
	g.held[appID] = heldGuard{token: token, expiresAt: now.Add(ttl)}
	return token, true, nil
}

func (g *MemoryGuard) Release(_ context.Context, appID id.ApplicationID, token string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if h, ok := g.held[appID]; ok && h.token == token {
		delete(g.held, appID)
	}
	return nil
}
