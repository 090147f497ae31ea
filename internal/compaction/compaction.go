// Package compaction implements the background rewrite that reclaims space
// held by dead records: old values a Set has superseded, and tombstoned
// keys a Remove has taken off the index. It never holds the index's write
// lock for the expensive part of the job (reading and rewriting live
// records); it only takes the lock briefly to snapshot and, at the very
// end, to conditionally swap in the new locations.
package compaction

import (
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/immutable"
	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"go.uber.org/zap"
)

// Config configures a Compactor.
type Config struct {
	ThresholdBytes uint64
	Logger         *zap.SugaredLogger
}

// Compactor tracks how many bytes of dead records have accumulated since
// the last run and performs the rewrite when asked.
type Compactor struct {
	log       *segment.Log
	idx       *index.Index
	zl        *zap.SugaredLogger
	threshold uint64

	runMu sync.Mutex // only one compaction runs at a time

	uncompacted atomic.Uint64
}

// New builds a Compactor bound to a specific segment log and index.
func New(segLog *segment.Log, idx *index.Index, config Config) *Compactor {
	return &Compactor{
		log:       segLog,
		idx:       idx,
		zl:        config.Logger,
		threshold: config.ThresholdBytes,
	}
}

// AddDeadBytes accounts for n more bytes of on-disk space that no longer
// belong to any live key (a Set's superseded old record, a Remove's
// tombstoned record). It returns the running total.
func (c *Compactor) AddDeadBytes(n uint64) uint64 {
	return c.uncompacted.Add(n)
}

// ShouldCompact reports whether the accumulated dead-byte total has crossed
// the configured threshold.
func (c *Compactor) ShouldCompact() bool {
	return c.uncompacted.Load() >= c.threshold
}

// Compact performs one full compaction pass:
//
//  1. Snapshot the index (key -> location) and the set of segments sealed
//     at that instant; every one of those segments is retired by this round,
//     whether or not a live key still points into it, since a sealed
//     segment's only live records (if any) are all present in the snapshot
//     and about to be rewritten. The then-active segment is excluded: it
//     isn't sealed yet, so concurrent writes may still be landing in it.
//  2. Rotate the log: the previously active segment is sealed (but not yet
//     retired), a fresh segment is opened exclusively for this compactor's
//     rewritten records, and live writers move on to a distinct successor.
//  3. Stream every snapshotted location's raw record bytes into the new
//     segment, recording where each key landed.
//  4. Fsync the new segment.
//  5. Conditionally swap the index: a key only adopts its new location if
//     the index still holds the exact location the snapshot saw, so a
//     concurrent Set/Remove that landed during steps 2-4 is never clobbered.
//  6. Unlink the segments sealed at snapshot time.
//  7. Subtract from the dead-byte counter the total it held when the round
//     started; bytes added while the round ran are kept for the next one.
func (c *Compactor) Compact() error {
	c.runMu.Lock()
	defer c.runMu.Unlock()

	deadAtStart := c.uncompacted.Load()
	snapshot := c.idx.Snapshot()
	if len(snapshot) == 0 {
		c.uncompacted.Store(0)
		return nil
	}

	// Captured immediately after the index snapshot, before rotation, so it
	// names exactly the segments sealed at snapshot time and never includes
	// whatever segment is still active (and thus still writable).
	retired := c.log.SealedIDs()

	// The snapshot is staged into a persistent sorted map so the rewrite
	// loop below can iterate it without holding any index lock and without
	// the snapshot being invalidated by further index mutations.
	staged := &immutable.SortedMap[string, index.Location]{}
	for key, loc := range snapshot {
		staged = staged.Set(key, loc)
	}

	compactionID, err := c.log.RotateForCompaction()
	if err != nil {
		return err
	}

	writer, err := c.log.CompactionWriter(compactionID)
	if err != nil {
		return err
	}
	defer writer.Close()

	remap := make(map[string]index.Location, staged.Len())

	it := staged.Iterator()
	for !it.Done() {
		key, loc, _ := it.Next()

		raw, err := c.log.ReadAt(loc.SegmentID, loc.Offset, int(loc.Length))
		if err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "compaction failed to read live record").
				WithSegmentID(int(loc.SegmentID)).WithOffset(int(loc.Offset))
		}

		offset, err := writer.Append(raw)
		if err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "compaction failed to rewrite record").
				WithSegmentID(int(compactionID))
		}

		remap[key] = index.Location{SegmentID: compactionID, Offset: offset, Length: loc.Length}
	}

	if err := writer.Fsync(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "compaction failed to fsync new segment").
			WithSegmentID(int(compactionID))
	}

	applied, err := c.idx.CompareAndSwapAll(remap, snapshot)
	if err != nil {
		return err
	}

	if err := c.log.CommitCompaction(retired, compactionID); err != nil {
		return err
	}

	c.zl.Infow("compaction complete",
		"keysRewritten", staged.Len(), "keysSwapped", applied,
		"segmentsRetired", len(retired), "compactionSegment", compactionID)

	c.uncompacted.Add(^(deadAtStart - 1))
	return nil
}
