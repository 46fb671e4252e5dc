package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCallbackGuard(t *testing.T) {
	guard := NewMemoryCallbackGuard(time.Hour)
	defer guard.Stop()
	ctx := context.Background()

	key := CallbackKey("payment-1", "GW1", string(GatewaySuccess))
	assert.NotEqual(t, key, CallbackKey("payment-1", "GW1", string(GatewayFailure)))

	seen, err := guard.Seen(ctx, key)
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, guard.Remember(ctx, key))
	seen, err = guard.Seen(ctx, key)
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryCallbackGuardExpiresEntries(t *testing.T) {
	guard := NewMemoryCallbackGuard(time.Millisecond)
	defer guard.Stop()
	ctx := context.Background()

	require.NoError(t, guard.Remember(ctx, "k"))
	time.Sleep(5 * time.Millisecond)

	seen, err := guard.Seen(ctx, "k")
	require.NoError(t, err)
	assert.False(t, seen)

	guard.cleanup()
	guard.mutex.RLock()
	assert.Empty(t, guard.processed)
	guard.mutex.RUnlock()

	// Stop is safe to call twice
	guard.Stop()
}
