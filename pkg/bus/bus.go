// Package bus provides a typed publish/subscribe channel keyed by an
// arbitrary comparable key. Subscribers receive messages for their keys, or
// everything when subscribed without keys. Delivery is asynchronous and
// decoupled from the publisher's tick.
package bus

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// Message pairs a routing key with a payload.
type Message[K comparable, M any] struct {
	Key     K
	Message M
}

// Publisher publishes messages under a fixed key.
type Publisher[M any] func(ctx context.Context, msg M)

type Bus[K comparable, M any] struct {
	log   *zap.Logger
	ready chan struct{}

	ch         chan Message[K, M]
	keySubs    *xsync.MapOf[K, map[chan Message[K, M]]struct{}]
	globalSubs *xsync.MapOf[chan Message[K, M], struct{}]
}

func NewBus[K comparable, M any](log *zap.Logger) *Bus[K, M] {
	return &Bus[K, M]{
		log:        log,
		ready:      make(chan struct{}),
		ch:         make(chan Message[K, M]),
		keySubs:    xsync.NewMapOf[K, map[chan Message[K, M]]struct{}](),
		globalSubs: xsync.NewMapOf[chan Message[K, M], struct{}](),
	}
}

// Start launches the delivery worker. It returns once the bus accepts
// publishes; delivery stops when ctx is cancelled.
func (b *Bus[K, M]) Start(ctx context.Context) error {
	if b.ch == nil {
		return fmt.Errorf("bus is not initialized")
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-b.ch:
				b.deliver(ctx, msg)
			}
		}
	}()
	close(b.ready)
	return nil
}

func (b *Bus[K, M]) Ready() <-chan struct{} {
	return b.ready
}

func (b *Bus[K, M]) Publish(ctx context.Context, key K, msg M) {
	select {
	case <-ctx.Done():
	case b.ch <- Message[K, M]{Key: key, Message: msg}:
	}
}

// CreatePublisher binds Publish to a fixed key.
func (b *Bus[K, M]) CreatePublisher(key K) Publisher[M] {
	return func(ctx context.Context, msg M) {
		b.Publish(ctx, key, msg)
	}
}

func (b *Bus[K, M]) deliver(ctx context.Context, msg Message[K, M]) {
	b.globalSubs.Range(func(sub chan Message[K, M], _ struct{}) bool {
		select {
		case <-ctx.Done():
			return false
		case sub <- msg:
		}
		return true
	})
	subs, ok := b.keySubs.Load(msg.Key)
	if !ok {
		return
	}
	for sub := range subs {
		select {
		case <-ctx.Done():
			return
		case sub <- msg:
		}
	}
}

// Subscribe returns a channel receiving messages for the given keys, or all
// messages when no key is given. The subscription ends and the channel
// closes when ctx is cancelled.
func (b *Bus[K, M]) Subscribe(ctx context.Context, keys ...K) <-chan Message[K, M] {
	ch := make(chan Message[K, M])
	if len(keys) == 0 {
		b.globalSubs.Store(ch, struct{}{})
		go func() {
			<-ctx.Done()
			b.globalSubs.Delete(ch)
			close(ch)
		}()
		return ch
	}
	// Subscriber maps are copy-on-write so delivery iterates them without
	// holding any lock.
	for _, k := range keys {
		b.keySubs.Compute(k, func(old map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
			val := make(map[chan Message[K, M]]struct{}, len(old)+1)
			for sub := range old {
				val[sub] = struct{}{}
			}
			val[ch] = struct{}{}
			return val, false
		})
	}
	go func() {
		<-ctx.Done()
		for _, k := range keys {
			b.keySubs.Compute(k, func(old map[chan Message[K, M]]struct{}, ok bool) (map[chan Message[K, M]]struct{}, bool) {
				val := make(map[chan Message[K, M]]struct{}, len(old))
				for sub := range old {
					if sub != ch {
						val[sub] = struct{}{}
					}
				}
				return val, len(val) == 0
			})
		}
		close(ch)
	}()
	return ch
}
