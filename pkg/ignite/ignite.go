// Package ignite provides a high-performance key/value data store
// designed for fast read and write operations, inspired by Bitcask.
// It combines an in-memory hash table (index) with an append-only log
// structure on disk to achieve high throughput. It is designed for
// applications requiring fast read and write operations, such as caching,
// session management, and real-time data processing, aiming to provide a
// simple, efficient, and reliable solution for embedded key-value storage
// in Go applications.
package ignite

import (
	"context"

	"github.com/iamNilotpal/ignite/internal/engine"
	"github.com/iamNilotpal/ignite/internal/hub"
	"github.com/iamNilotpal/ignite/pkg/logger"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/iamNilotpal/ignite/pkg/recorder"
)

// KeyUpdate is delivered to a subscriber whenever a live write affects a
// key matching its subscribed pattern.
type KeyUpdate = hub.KeyUpdate

// Store is the public surface every Ignite instance implements: durable
// Set/Get/Remove, glob-pattern Find, best-effort change subscription, and
// an orderly Close.
type Store interface {
	Set(key, value []byte) error
	Get(key []byte) ([]byte, error)
	Remove(key []byte) error
	Find(pattern []byte) ([][]byte, error)
	Subscribe(pattern []byte) (<-chan KeyUpdate, func(), error)
	Close() error
}

// Instance represents an Ignite key/value data store. It encapsulates the
// core engine responsible for data handling and the configuration options
// for this specific database instance.
//
// Instance is the primary entry point for interacting with the Ignite
// store, providing methods for setting, getting, removing, and watching
// key-value pairs.
type Instance struct {
	engine  *engine.Engine
	options *options.Options
}

var _ Store = (*Instance)(nil)

// NewInstance creates and opens a new Ignite DB instance: it replays
// whatever segment log already exists under the configured data directory
// and holds the directory's advisory lock for the lifetime of the
// instance.
func NewInstance(ctx context.Context, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)

	resolved := options.NewDefaultOptions()
	for _, opt := range opts {
		opt(&resolved)
	}

	eng, err := engine.New(ctx, &engine.Config{
		Logger:   log,
		Options:  &resolved,
		Recorder: recorder.Noop{},
	})
	if err != nil {
		return nil, err
	}

	return &Instance{engine: eng, options: &resolved}, nil
}

// Set stores a key-value pair in the database. If the key already exists,
// its value is replaced. The operation is durable: it is not acknowledged
// until the record has been appended to the active segment.
func (i *Instance) Set(key, value []byte) error {
	return i.engine.Set(key, value)
}

// Get retrieves the value associated with the given key.
func (i *Instance) Get(key []byte) ([]byte, error) {
	return i.engine.Get(key)
}

// Remove deletes a key-value pair from the database by appending a
// tombstone record. The space it occupied on disk is reclaimed the next
// time compaction runs.
func (i *Instance) Remove(key []byte) error {
	return i.engine.Remove(key)
}

// Find returns every live key matching pattern's glob grammar.
func (i *Instance) Find(pattern []byte) ([][]byte, error) {
	return i.engine.Find(pattern)
}

// Subscribe registers pattern and returns a channel of KeyUpdate events for
// every live Set/Remove whose key matches it, plus an unsubscribe function
// the caller must invoke once it stops reading from the channel.
func (i *Instance) Subscribe(pattern []byte) (<-chan KeyUpdate, func(), error) {
	return i.engine.Subscribe(pattern)
}

// Compact forces an immediate compaction pass regardless of the configured
// dead-byte threshold. Compaction otherwise runs automatically in the
// background once that threshold is crossed.
func (i *Instance) Compact() error {
	return i.engine.Compact()
}

// Close gracefully shuts down the Ignite DB instance, releasing all
// associated resources: closing every subscription, releasing the
// in-memory index, closing open segment file handles, and releasing the
// data directory's advisory lock.
func (i *Instance) Close() error {
	return i.engine.Close()
}
