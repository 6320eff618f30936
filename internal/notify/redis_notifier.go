package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "critichord:"

// RedisNotifier 基于 redis pub/sub，多实例部署时使用
type RedisNotifier struct {
	client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{client: client}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic string) error {
	return n.client.Publish(ctx, channelPrefix+topic, "1").Err()
}

// Subscribe 等待服务端确认订阅后才返回，确保之后的 Publish 不会丢失
func (n *RedisNotifier) Subscribe(ctx context.Context, topic string) (Subscription, error) {
	ps := n.client.Subscribe(ctx, channelPrefix+topic)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}
	s := &redisSub{ps: ps, ch: make(chan struct{}, 1), done: make(chan struct{})}
	go s.pump()
	return s, nil
}

type redisSub struct {
	ps   *redis.PubSub
	ch   chan struct{}
	done chan struct{}
	once sync.Once
	err  error
}

func (s *redisSub) pump() {
	msgs := s.ps.Channel()
	for {
		select {
		case _, ok := <-msgs:
			if !ok {
				return
			}
			signal(s.ch)
		case <-s.done:
			return
		}
	}
}

func (s *redisSub) C() <-chan struct{} { return s.ch }

func (s *redisSub) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.err = s.ps.Close()
	})
	return s.err
}
