package pubsub

import (
	"context"
	"sync"
)

// subscription is one Subscribe call on a LocalPubSub
type subscription struct {
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// LocalPubSub implements PubSub within a single process
type LocalPubSub struct {
	mu     sync.Mutex
	subs   map[string]map[*subscription]struct{}
	closed bool
}

// NewLocalPubSub creates a new local pub/sub.
func NewLocalPubSub() *LocalPubSub {
	return &LocalPubSub{
		subs: make(map[string]map[*subscription]struct{}),
	}
}

// Publish delivers payload to every current subscriber of channel. Sends happen
// under the lock so a subscription cannot be closed mid-send; full buffers drop.
func (l *LocalPubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := Message{Channel: channel, Payload: payload}
	for sub := range l.subs[channel] {
		select {
		case sub.ch <- msg:
		default:
		}
	}

	return nil
}

// Subscribe returns a channel that receives messages published to the given channel.
func (l *LocalPubSub) Subscribe(ctx context.Context, channel string) (<-chan Message, error) {
	sub := &subscription{
		channel: channel,
		ch:      make(chan Message, subscriberBuffer),
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		sub.close()
		return sub.ch, nil
	}
	if l.subs[channel] == nil {
		l.subs[channel] = make(map[*subscription]struct{})
	}
	l.subs[channel][sub] = struct{}{}
	l.mu.Unlock()

	go func() {
		<-ctx.Done()
		l.remove(sub)
	}()

	return sub.ch, nil
}

func (l *LocalPubSub) remove(sub *subscription) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if subs, ok := l.subs[sub.channel]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(l.subs, sub.channel)
		}
	}
	sub.close()
}

// subscriberCount reports the number of live subscriptions on channel
func (l *LocalPubSub) subscriberCount(channel string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.subs[channel])
}

// Close closes every subscription
func (l *LocalPubSub) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, subs := range l.subs {
		for sub := range subs {
			sub.close()
		}
	}
	l.subs = make(map[string]map[*subscription]struct{})
	l.closed = true

	return nil
}
