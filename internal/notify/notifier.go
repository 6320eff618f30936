// Package notify delivers "something changed" signals for a topic to live subscribers.
// Signals carry no payload; subscribers re-read state after each one, so a slow
// subscriber only ever sees the latest state (signals coalesce).
package notify

import (
	"context"
	"sync"
)

// Notifier publishes change signals and opens subscriptions on topics.
type Notifier interface {
	Publish(ctx context.Context, topic string) error
	Subscribe(ctx context.Context, topic string) (Subscription, error)
}

// Subscription is a live registration. Close releases it and is safe to call more than once.
type Subscription interface {
	C() <-chan struct{}
	Close() error
}

func FollowingTopic(userID string) string { return "following:" + userID }

func FollowersTopic(userID string) string { return "followers:" + userID }

// LocalNotifier fans signals out in-process.
type LocalNotifier struct {
	mu   sync.Mutex
	subs map[string]map[*localSub]struct{}
}

func NewLocalNotifier() *LocalNotifier {
	return &LocalNotifier{subs: make(map[string]map[*localSub]struct{})}
}

func (n *LocalNotifier) Publish(_ context.Context, topic string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for s := range n.subs[topic] {
		signal(s.ch)
	}
	return nil
}

func (n *LocalNotifier) Subscribe(_ context.Context, topic string) (Subscription, error) {
	s := &localSub{n: n, topic: topic, ch: make(chan struct{}, 1)}
	n.mu.Lock()
	if n.subs[topic] == nil {
		n.subs[topic] = make(map[*localSub]struct{})
	}
	n.subs[topic][s] = struct{}{}
	n.mu.Unlock()
	return s, nil
}

// Active reports the number of open subscriptions across all topics.
func (n *LocalNotifier) Active() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, set := range n.subs {
		total += len(set)
	}
	return total
}

func (n *LocalNotifier) remove(s *localSub) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set := n.subs[s.topic]
	delete(set, s)
	if len(set) == 0 {
		delete(n.subs, s.topic)
	}
}

type localSub struct {
	n     *LocalNotifier
	topic string
	ch    chan struct{}
	once  sync.Once
}

func (s *localSub) C() <-chan struct{} { return s.ch }

func (s *localSub) Close() error {
	s.once.Do(func() { s.n.remove(s) })
	return nil
}

// signal 非阻塞投递，缓冲区已有未消费信号时直接合并
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
