package store

import (
	"context"
	"sync"

	"github.com/dailyyoga/vidcache/playlist"
	"github.com/smallnest/chanx"
)

// Subscription is one consumer's view of the store
type Subscription interface {
	// C delivers snapshots in commit order without skipping any.
	// It is closed when the subscription or the store is closed.
	C() <-chan playlist.Snapshot
	// Close detaches the subscription; it never affects the store or other subscribers
	Close()
}

// SubscribeOption customizes a subscription
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	replayCurrent bool
}

// WithCurrent delivers the current snapshot first, before any later commit
func WithCurrent() SubscribeOption {
	return func(o *subscribeOptions) {
		o.replayCurrent = true
	}
}

// broadcaster fans committed snapshots out to subscribers.
// Each subscriber owns an unbounded queue, so a slow consumer delays nobody
// and never misses a snapshot.
type broadcaster struct {
	mu         sync.Mutex
	nextID     uint64
	subs       map[uint64]*subscription
	bufferSize int
	closed     bool
}

func newBroadcaster(bufferSize int) *broadcaster {
	return &broadcaster{
		subs:       make(map[uint64]*subscription),
		bufferSize: bufferSize,
	}
}

// commit runs swap and delivers its result while holding the subscriber
// lock, so a concurrent subscribe sees a snapshot either as replay or as a
// delivery but never both.
func (b *broadcaster) commit(swap func() playlist.Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := swap()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		sub.queue.In <- snap
	}
}

func (b *broadcaster) subscribe(replay bool, current func() playlist.Snapshot) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	sub := &subscription{
		queue:  chanx.NewUnboundedChan[playlist.Snapshot](ctx, b.bufferSize),
		cancel: cancel,
		owner:  b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.queue.In)
		return sub
	}
	if replay {
		sub.queue.In <- current()
	}
	b.nextID++
	sub.id = b.nextID
	b.subs[sub.id] = sub
	return sub
}

func (b *broadcaster) detach(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// closeAll ends every subscription after its queued snapshots are read
func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.queue.In)
		delete(b.subs, id)
	}
}

func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type subscription struct {
	id     uint64
	queue  *chanx.UnboundedChan[playlist.Snapshot]
	cancel context.CancelFunc
	owner  *broadcaster
}

func (s *subscription) C() <-chan playlist.Snapshot {
	return s.queue.Out
}

func (s *subscription) Close() {
	s.owner.detach(s.id)
	// stops the queue goroutine even if nobody drains Out
	s.cancel()
}
