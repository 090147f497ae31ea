// Package engine provides the core database engine implementation for the
// Ignite storage system.
//
// The engine serves as the central coordinator and entry point for all
// database operations. It orchestrates the interaction between the
// subsystems that make up the store:
//   - segment: the append-only log of on-disk record files
//   - index: the in-memory map from key to disk location
//   - compaction: background reclamation of space held by dead records
//   - hub: best-effort fan-out of key changes to subscribers
//   - recovery: replaying the log into the index when the engine opens
//
// The engine implements a thread-safe interface with proper lifecycle
// management, ensuring resources are properly initialized and cleaned up.
// It uses atomic operations for state management to provide consistent
// behavior across concurrent operations.
package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/iamNilotpal/ignite/internal/compaction"
	"github.com/iamNilotpal/ignite/internal/glob"
	"github.com/iamNilotpal/ignite/internal/hub"
	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/record"
	"github.com/iamNilotpal/ignite/internal/recovery"
	"github.com/iamNilotpal/ignite/internal/segment"
	ierrors "github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/filesys"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/iamNilotpal/ignite/pkg/recorder"
	"go.uber.org/zap"
)

// ErrEngineClosed is returned when attempting to perform operations on a
// closed engine.
var ErrEngineClosed = errors.New("operation failed: cannot access closed engine")

// lockFileName is the advisory-lock sentinel held for the data directory's
// lifetime, preventing a second process from opening the same store.
const lockFileName = "LOCK"

// Engine represents the main database engine that coordinates all
// subsystems. It acts as the primary interface for database operations and
// manages the lifecycle of all internal components. The engine is designed
// to be thread-safe and supports concurrent operations while maintaining
// data consistency.
type Engine struct {
	options *options.Options   // options contains all configuration parameters for the engine and its subsystems.
	log     *zap.SugaredLogger // log provides structured logging capabilities throughout the engine.
	closed  atomic.Bool        // closed is an atomic boolean that tracks the engine's lifecycle state.
	rec     recorder.Recorder  // rec receives counters and byte observations from the hot paths.

	writeMu   sync.Mutex     // serializes the append-then-index-update sequence for Set/Remove.
	compactWG sync.WaitGroup // tracks the background goroutine maybeCompact launches, so Close can wait for it.

	idx        *index.Index
	seg        *segment.Log
	compactor  *compaction.Compactor
	hub        *hub.Hub
	lockHandle *os.File
}

// Config holds all the parameters needed to initialize a new Engine instance.
type Config struct {
	Options  *options.Options
	Logger   *zap.SugaredLogger
	Recorder recorder.Recorder
}

// New opens the data directory named by config.Options.DataDir, acquiring
// its advisory lock, replaying its segment log into a fresh index, and
// returning an Engine ready to serve Set/Get/Remove/Find/Subscribe calls.
func New(ctx context.Context, config *Config) (*Engine, error) {
	if config == nil || config.Options == nil || config.Logger == nil {
		return nil, ierrors.NewConfigurationValidationError("config", "Options and Logger are required")
	}

	rec := config.Recorder
	if rec == nil {
		rec = recorder.Noop{}
	}

	if err := os.MkdirAll(config.Options.DataDir, 0755); err != nil {
		return nil, ierrors.ClassifyDirectoryCreationError(err, config.Options.DataDir)
	}

	lockPath := filepath.Join(config.Options.DataDir, lockFileName)
	lockHandle, err := filesys.Lock(lockPath)
	if err != nil {
		if errors.Is(err, filesys.ErrAlreadyLocked) {
			return nil, ierrors.NewStorageError(err, ierrors.ErrorCodeDirectoryLocked, "data directory is already open by another process").
				WithPath(config.Options.DataDir)
		}
		return nil, err
	}

	seg, err := segment.Open(config.Options.DataDir, config.Options.SegmentRollBytes, config.Options.SyncOnWrite, config.Logger)
	if err != nil {
		filesys.Unlock(lockHandle)
		return nil, err
	}

	idx, err := index.New(ctx, &index.Config{DataDir: config.Options.DataDir, Logger: config.Logger})
	if err != nil {
		filesys.Unlock(lockHandle)
		return nil, err
	}

	compactor := compaction.New(seg, idx, compaction.Config{
		ThresholdBytes: config.Options.CompactionThresholdBytes,
		Logger:         config.Logger,
	})

	if err := recovery.Replay(seg, idx, compactor, config.Logger); err != nil {
		filesys.Unlock(lockHandle)
		return nil, err
	}

	h := hub.New(hub.Config{
		Logger:          config.Logger,
		ChannelCapacity: config.Options.SubscriptionChannelCapacity,
	})

	e := &Engine{
		options:    config.Options,
		log:        config.Logger,
		rec:        rec,
		idx:        idx,
		seg:        seg,
		compactor:  compactor,
		hub:        h,
		lockHandle: lockHandle,
	}

	e.log.Infow("engine opened", "dataDir", config.Options.DataDir, "keys", idx.Len())
	return e, nil
}

// Set writes key=value durably, making it immediately visible to Get, Find,
// and any matching subscriber.
func (e *Engine) Set(key, value []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	if len(key) == 0 || len(key) > record.MaxKeyLen {
		return ierrors.NewValidationError(nil, ierrors.ErrorCodeKeyTooLarge, "key length out of bounds").
			WithField("key").WithRule("length").WithProvided(len(key)).WithExpected(record.MaxKeyLen)
	}
	if len(value) > record.MaxValueLen {
		return ierrors.NewValidationError(nil, ierrors.ErrorCodeValueTooLarge, "value length out of bounds").
			WithField("value").WithRule("length").WithProvided(len(value)).WithExpected(record.MaxValueLen)
	}

	data := record.Encode(record.Command{Kind: record.KindSet, Key: key, Value: value})

	e.writeMu.Lock()
	segID, offset, err := e.seg.Append(data)
	if err != nil {
		e.writeMu.Unlock()
		return err
	}

	loc := index.Location{SegmentID: segID, Offset: offset, Length: uint32(len(data))}
	prev, existed, err := e.idx.Upsert(string(key), loc)
	e.writeMu.Unlock()
	if err != nil {
		return err
	}

	if existed {
		e.compactor.AddDeadBytes(uint64(prev.Length))
	}

	e.rec.IncCounter("ignite.set", 1)
	e.rec.ObserveBytes("ignite.record_bytes", int64(len(data)))

	e.hub.Publish(string(key), hub.KeyUpdate{Key: key, Value: value, Kind: hub.ChangeSet})
	e.maybeCompact()
	return nil
}

// Get returns the current value stored for key. It reports an *IndexError
// with code ErrorCodeIndexKeyNotFound if key has no live entry.
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	loc, ok, err := e.idx.Get(string(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ierrors.NewKeyNotFoundError(string(key))
	}

	raw, err := e.seg.ReadAt(loc.SegmentID, loc.Offset, int(loc.Length))
	if err != nil {
		return nil, err
	}

	cmd, _, err := record.DecodeAt(bytes.NewReader(raw), 0)
	if err != nil {
		return nil, ierrors.NewStorageError(err, ierrors.ErrorCodeSegmentCorrupted, "stored record failed to decode").
			WithSegmentID(int(loc.SegmentID)).WithOffset(int(loc.Offset))
	}

	e.rec.IncCounter("ignite.get", 1)
	return cmd.Value, nil
}

// Remove deletes key. A key with no live entry performs no write and
// reports the same not-found error as Get.
func (e *Engine) Remove(key []byte) error {
	if e.closed.Load() {
		return ErrEngineClosed
	}

	e.writeMu.Lock()

	_, existed, err := e.idx.Get(string(key))
	if err != nil {
		e.writeMu.Unlock()
		return err
	}
	if !existed {
		e.writeMu.Unlock()
		return ierrors.NewKeyNotFoundError(string(key))
	}

	data := record.Encode(record.Command{Kind: record.KindRemove, Key: key})
	if _, _, err := e.seg.Append(data); err != nil {
		e.writeMu.Unlock()
		return err
	}

	prev, _, err := e.idx.Delete(string(key))
	e.writeMu.Unlock()
	if err != nil {
		return err
	}

	e.compactor.AddDeadBytes(uint64(prev.Length))
	e.rec.IncCounter("ignite.remove", 1)

	e.hub.Publish(string(key), hub.KeyUpdate{Key: key, Kind: hub.ChangeRemove})
	e.maybeCompact()
	return nil
}

// Find returns every live key matching pattern's glob grammar ('_' one
// byte, '*' zero or more bytes, '\' escapes). It observes only keys that
// were live in the index at the moment of the call.
func (e *Engine) Find(pattern []byte) ([][]byte, error) {
	if e.closed.Load() {
		return nil, ErrEngineClosed
	}

	keys := e.idx.Keys()
	matched := make([][]byte, 0)

	for _, k := range keys {
		ok, err := glob.Match(string(pattern), k)
		if err != nil {
			return nil, ierrors.NewValidationError(err, ierrors.ErrorCodeBadPattern, "malformed find pattern").
				WithField("pattern").WithRule("glob_grammar").WithProvided(string(pattern))
		}
		if ok {
			matched = append(matched, []byte(k))
		}
	}

	return matched, nil
}

// Subscribe registers pattern and returns a channel of KeyUpdate events for
// every live Set/Remove whose key matches it, plus an unsubscribe function.
// Delivery is best-effort: a subscriber that falls behind has updates
// dropped rather than blocking writers.
func (e *Engine) Subscribe(pattern []byte) (<-chan hub.KeyUpdate, func(), error) {
	if e.closed.Load() {
		return nil, nil, ErrEngineClosed
	}
	return e.hub.Subscribe(string(pattern))
}

// Compact forces an immediate compaction pass regardless of the configured
// dead-byte threshold.
func (e *Engine) Compact() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return e.compactor.Compact()
}

// maybeCompact runs a compaction pass on its own goroutine if the dead-byte
// watermark has been crossed, so callers of Set/Remove are never blocked by
// it.
func (e *Engine) maybeCompact() {
	if !e.compactor.ShouldCompact() {
		return
	}

	e.compactWG.Add(1)
	go func() {
		defer e.compactWG.Done()
		if err := e.compactor.Compact(); err != nil {
			e.log.Errorw("background compaction failed", "error", err)
		}
	}()
}

// Close gracefully shuts down the engine and releases all associated
// resources: subscriptions, the index, the segment log, and the advisory
// directory lock. It waits for any background compaction started by
// maybeCompact to quiesce before closing the index or segment log, so a
// compaction in flight never touches a file handle out from under Close.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	e.compactWG.Wait()
	e.hub.Close()

	if err := e.idx.Close(); err != nil {
		e.log.Warnw("index close reported an error", "error", err)
	}

	if err := e.seg.Close(); err != nil {
		e.log.Warnw("segment log close reported an error", "error", err)
	}

	if err := filesys.Unlock(e.lockHandle); err != nil {
		return err
	}

	e.log.Infow("engine closed")
	return nil
}
