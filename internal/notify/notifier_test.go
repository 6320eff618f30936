package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func received(ch <-chan struct{}, wait time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(wait):
		return false
	}
}

func TestLocalNotifier_DeliversToTopicOnly(t *testing.T) {
	n := NewLocalNotifier()
	ctx := context.Background()

	a, err := n.Subscribe(ctx, FollowingTopic("alice"))
	require.NoError(t, err)
	b, err := n.Subscribe(ctx, FollowersTopic("alice"))
	require.NoError(t, err)
	assert.Equal(t, 2, n.Active())

	require.NoError(t, n.Publish(ctx, FollowingTopic("alice")))
	assert.True(t, received(a.C(), time.Second))
	assert.False(t, received(b.C(), 20*time.Millisecond))

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
	assert.Zero(t, n.Active())
}

func TestLocalNotifier_Coalesces(t *testing.T) {
	n := NewLocalNotifier()
	ctx := context.Background()
	sub, err := n.Subscribe(ctx, "t")
	require.NoError(t, err)
	defer sub.Close()

	for i := 0; i < 5; i++ {
		require.NoError(t, n.Publish(ctx, "t"))
	}
	assert.True(t, received(sub.C(), time.Second))
	assert.False(t, received(sub.C(), 20*time.Millisecond))
}

func TestRedisNotifier(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	n := NewRedisNotifier(client)
	ctx := context.Background()
	sub, err := n.Subscribe(ctx, FollowersTopic("bob"))
	require.NoError(t, err)

	require.NoError(t, n.Publish(ctx, FollowersTopic("bob")))
	assert.True(t, received(sub.C(), 2*time.Second))

	require.NoError(t, n.Publish(ctx, FollowersTopic("carol")))
	assert.False(t, received(sub.C(), 50*time.Millisecond))

	require.NoError(t, sub.Close())
	assert.NoError(t, sub.Close())
	assert.Eventually(t, func() bool {
		return len(mr.PubSubChannels("critichord:*")) == 0
	}, 2*time.Second, 10*time.Millisecond)
}
