package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"marketplace-api/pkg/logging"

	"github.com/redis/go-redis/v9"
)

// CallbackGuard remembers gateway callbacks that were already reconciled so
// duplicate webhook deliveries can be answered from stored state.
// Correctness never depends on it; reconciliation is itself conditional.
type CallbackGuard interface {
	Seen(ctx context.Context, key string) (bool, error)
	Remember(ctx context.Context, key string) error
}

// CallbackKey derives the guard key for one callback delivery
func CallbackKey(paymentID, gatewayTxnID, status string) string {
	data := fmt.Sprintf("%s:%s:%s", paymentID, gatewayTxnID, status)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// MemoryCallbackGuard keeps processed callbacks in memory
type MemoryCallbackGuard struct {
	processed       map[string]time.Time
	mutex           sync.RWMutex
	cleanupInterval time.Duration
	ttl             time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// NewMemoryCallbackGuard creates the guard and starts its cleanup goroutine
func NewMemoryCallbackGuard(ttl time.Duration) *MemoryCallbackGuard {
	g := &MemoryCallbackGuard{
		processed:       make(map[string]time.Time),
		cleanupInterval: time.Hour,
		ttl:             ttl,
		stopCleanup:     make(chan struct{}),
	}

	go g.startCleanupRoutine()

	return g
}

func (g *MemoryCallbackGuard) Seen(ctx context.Context, key string) (bool, error) {
	g.mutex.RLock()
	defer g.mutex.RUnlock()

	processedAt, exists := g.processed[key]
	return exists && time.Since(processedAt) < g.ttl, nil
}

func (g *MemoryCallbackGuard) Remember(ctx context.Context, key string) error {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.processed[key] = time.Now()
	return nil
}

func (g *MemoryCallbackGuard) startCleanupRoutine() {
	ticker := time.NewTicker(g.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.cleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

func (g *MemoryCallbackGuard) cleanup() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	initialCount := len(g.processed)
	for key, processedAt := range g.processed {
		if time.Since(processedAt) > g.ttl {
			delete(g.processed, key)
		}
	}

	if cleaned := initialCount - len(g.processed); cleaned > 0 {
		logging.Infof("Callback guard cleanup: removed %d entries, remaining: %d", cleaned, len(g.processed))
	}
}

// Stop stops the cleanup goroutine
func (g *MemoryCallbackGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stopCleanup) })
}

// RedisCallbackGuard shares processed callbacks across instances
type RedisCallbackGuard struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCallbackGuard creates a Redis-backed guard
func NewRedisCallbackGuard(client *redis.Client, ttl time.Duration) *RedisCallbackGuard {
	return &RedisCallbackGuard{client: client, ttl: ttl}
}

func (g *RedisCallbackGuard) Seen(ctx context.Context, key string) (bool, error) {
	exists, err := g.client.Exists(ctx, g.redisKey(key)).Result()
	if err != nil {
		return false, err
	}
	return exists > 0, nil
}

func (g *RedisCallbackGuard) Remember(ctx context.Context, key string) error {
	return g.client.SetNX(ctx, g.redisKey(key), time.Now().Unix(), g.ttl).Err()
}

func (g *RedisCallbackGuard) redisKey(key string) string {
	return "payment_callback:" + key
}
