// Package hub implements the subscription fan-out used by Subscribe. Each
// subscriber registers a glob pattern and receives a KeyUpdate on every Set
// or Remove whose key matches it. Delivery is best-effort: a subscriber that
// cannot keep up never blocks the writer that produced the update.
package hub

import (
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/glob"
	"go.uber.org/zap"
)

// ChangeKind distinguishes a Set from a Remove in a KeyUpdate.
type ChangeKind int

const (
	// ChangeSet reports that key now holds Value.
	ChangeSet ChangeKind = iota
	// ChangeRemove reports that key no longer exists.
	ChangeRemove
)

// KeyUpdate is delivered to a subscriber whenever a live write affects a
// key matching its pattern.
type KeyUpdate struct {
	Key   []byte
	Value []byte
	Kind  ChangeKind
}

// subscriber holds one registered subscription.
type subscriber struct {
	id      uint64
	pattern string
	ch      chan KeyUpdate
	lagged  atomic.Uint64
}

// Config configures a Hub.
type Config struct {
	Logger          *zap.SugaredLogger
	ChannelCapacity int
}

// Hub tracks every active subscription and fans out key updates to the ones
// whose pattern matches.
type Hub struct {
	log      *zap.SugaredLogger
	capacity int

	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscriber
}

// New creates an empty Hub. A non-positive capacity falls back to 64, the
// default subscription channel capacity.
func New(config Config) *Hub {
	capacity := config.ChannelCapacity
	if capacity <= 0 {
		capacity = 64
	}

	return &Hub{
		log:      config.Logger,
		capacity: capacity,
		subs:     make(map[uint64]*subscriber),
	}
}

// Subscribe registers pattern and returns the channel updates arrive on
// plus an unsubscribe function. The pattern is validated eagerly so a
// malformed pattern is rejected at Subscribe time rather than silently
// matching nothing forever.
func (h *Hub) Subscribe(pattern string) (<-chan KeyUpdate, func(), error) {
	if _, err := glob.Match(pattern, ""); err != nil {
		return nil, nil, err
	}

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	sub := &subscriber{id: id, pattern: pattern, ch: make(chan KeyUpdate, h.capacity)}
	h.subs[id] = sub
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if existing, ok := h.subs[id]; ok {
			close(existing.ch)
			delete(h.subs, id)
		}
	}

	return sub.ch, unsubscribe, nil
}

// Publish delivers update to every subscriber whose pattern matches key. It
// never blocks: a subscriber whose channel is full has the update dropped
// and its Lagged counter incremented instead.
func (h *Hub) Publish(key string, update KeyUpdate) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		matched, err := glob.Match(sub.pattern, key)
		if err != nil || !matched {
			continue
		}

		select {
		case sub.ch <- update:
		default:
			sub.lagged.Add(1)
			h.log.Warnw("subscriber lagging, dropping update", "key", key, "pattern", sub.pattern)
		}
	}
}

// Lagged returns how many updates have been dropped for the subscriber
// identified by the channel it returned from Subscribe. Returns 0 if the
// subscription is no longer active.
func (h *Hub) Lagged(ch <-chan KeyUpdate) uint64 {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, sub := range h.subs {
		if sub.ch == ch {
			return sub.lagged.Load()
		}
	}
	return 0
}

// Close unsubscribes and closes every active subscriber's channel.
func (h *Hub) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, sub := range h.subs {
		close(sub.ch)
		delete(h.subs, id)
	}
	return nil
}
