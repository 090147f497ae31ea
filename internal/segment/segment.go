// Package segment owns the on-disk segment files that make up the
// append-only log: the directory listing, the single active segment that
// accepts writes, and positioned reads into any segment (active or sealed).
// It knows nothing about keys, values, or the index; it only ever moves
// opaque, already-framed record bytes.
package segment

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/seginfo"
	"go.uber.org/zap"
)

// file is the single segment currently accepting appends.
type file struct {
	id   uint32
	f    *os.File
	size int64
}

// Log manages the data directory's segment files: exactly one active
// segment plus any number of sealed, immutable segments.
type Log struct {
	mu sync.Mutex // serializes appends and rotation; readers take it only to look up the active segment.

	dataDir     string
	rollBytes   uint64
	syncOnWrite bool
	log         *zap.SugaredLogger

	active *file

	sealedMu sync.RWMutex
	sealed   map[uint32]struct{}
}

// Open discovers the segments already present in dataDir and prepares the
// log for writing, following spec's recovery rule: the highest-numbered
// segment becomes active if it is still under the roll threshold, otherwise
// a fresh segment is opened above it. If dataDir is empty, segment 1 is
// created. Existing segments found to be corrupt are NOT inspected here;
// that is internal/recovery's job once the log is open.
func Open(dataDir string, rollBytes uint64, syncOnWrite bool, zl *zap.SugaredLogger) (*Log, error) {
	if err := seginfo.EnsureDataDir(dataDir); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to create data directory").
			WithPath(dataDir)
	}

	ids, err := seginfo.ListSegmentIDs(dataDir)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to list segment files").
			WithPath(dataDir)
	}

	l := &Log{
		dataDir:     dataDir,
		rollBytes:   rollBytes,
		syncOnWrite: syncOnWrite,
		log:         zl,
		sealed:      make(map[uint32]struct{}, len(ids)),
	}

	if len(ids) == 0 {
		active, err := l.createSegment(1)
		if err != nil {
			return nil, err
		}
		l.active = active
		return l, nil
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	highest := ids[len(ids)-1]
	for _, id := range ids[:len(ids)-1] {
		l.sealed[id] = struct{}{}
	}

	info, err := os.Stat(seginfo.PathFor(dataDir, highest))
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat highest segment").
			WithPath(dataDir)
	}

	if uint64(info.Size()) < rollBytes {
		active, err := l.openExistingForWrite(highest, info.Size())
		if err != nil {
			return nil, err
		}
		l.active = active
	} else {
		l.sealed[highest] = struct{}{}
		active, err := l.createSegment(highest + 1)
		if err != nil {
			return nil, err
		}
		l.active = active
	}

	return l, nil
}

func (l *Log) createSegment(id uint32) (*file, error) {
	path := seginfo.PathFor(l.dataDir, id)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, seginfo.GenerateName(id))
	}
	l.log.Infow("segment created", "id", id, "path", path)
	return &file{id: id, f: f}, nil
}

func (l *Log) openExistingForWrite(id uint32, size int64) (*file, error) {
	path := seginfo.PathFor(l.dataDir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, seginfo.GenerateName(id))
	}
	l.log.Infow("resuming active segment", "id", id, "path", path, "size", size)
	return &file{id: id, f: f, size: size}, nil
}

// ActiveID returns the id of the segment currently accepting writes.
func (l *Log) ActiveID() uint32 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.id
}

// SealedIDs returns the ids of every sealed (immutable) segment, sorted
// ascending. The active segment is never included.
func (l *Log) SealedIDs() []uint32 {
	l.sealedMu.RLock()
	defer l.sealedMu.RUnlock()

	ids := make([]uint32, 0, len(l.sealed))
	for id := range l.sealed {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// AllSegmentIDs returns every known segment id, sealed and active, sorted
// ascending. Used by recovery to replay the whole directory in order.
func (l *Log) AllSegmentIDs() []uint32 {
	ids := l.SealedIDs()
	l.mu.Lock()
	ids = append(ids, l.active.id)
	l.mu.Unlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Append writes data to the active segment, rolling to a fresh segment
// first if the write would exceed the configured roll threshold (an empty
// active segment takes the write whatever its size). It returns the segment
// id and the pre-append offset the record now lives at.
func (l *Log) Append(data []byte) (uint32, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if uint64(l.active.size)+uint64(len(data)) > l.rollBytes && l.active.size > 0 {
		if err := l.rotateLocked(); err != nil {
			return 0, 0, err
		}
	}

	offset := l.active.size
	n, err := l.active.f.Write(data)
	if err != nil {
		return 0, 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to append record").
			WithSegmentID(int(l.active.id)).WithOffset(int(offset))
	}
	l.active.size += int64(n)

	if l.syncOnWrite {
		if err := l.active.f.Sync(); err != nil {
			return 0, 0, errors.ClassifySyncError(err, seginfo.GenerateName(l.active.id), l.dataDir, int(offset))
		}
	}

	return l.active.id, offset, nil
}

// rotateLocked seals the current active segment and opens a fresh one with
// the next id. Caller must hold l.mu.
func (l *Log) rotateLocked() error {
	sealedID := l.active.id
	if err := l.active.f.Close(); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to close sealed segment").
			WithSegmentID(int(sealedID))
	}

	l.sealedMu.Lock()
	l.sealed[sealedID] = struct{}{}
	l.sealedMu.Unlock()

	next, err := l.createSegment(l.nextID())
	if err != nil {
		return err
	}
	l.active = next
	return nil
}

// nextID returns the smallest id strictly greater than every segment id the
// log currently knows about. Caller must hold l.mu.
func (l *Log) nextID() uint32 {
	max := l.active.id
	for _, id := range l.SealedIDs() {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// ReadAt performs a positioned read of length bytes at offset within the
// named segment. It is safe to call concurrently with Append and with other
// ReadAt calls, including against the active segment: active.f.ReadAt uses
// pread(2) semantics, which never touch the shared append cursor.
func (l *Log) ReadAt(id uint32, offset int64, length int) ([]byte, error) {
	l.mu.Lock()
	active := l.active
	l.mu.Unlock()

	buf := make([]byte, length)

	if active.id == id {
		n, err := active.f.ReadAt(buf, offset)
		if err == nil || n >= length {
			return buf, nil
		}
		// A rotation that ran after the lookup above closes this handle; the
		// now-sealed file is still on disk, so it is read by path below.
		if pathErr, ok := err.(*os.PathError); !ok || pathErr.Err != os.ErrClosed {
			return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read active segment").
				WithSegmentID(int(id)).WithOffset(int(offset))
		}
	}

	path := seginfo.PathFor(l.dataDir, id)
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to open sealed segment").
			WithSegmentID(int(id)).WithPath(path)
	}
	defer f.Close()

	n, err := f.ReadAt(buf, offset)
	if err != nil && n < length {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read sealed segment").
			WithSegmentID(int(id)).WithOffset(int(offset))
	}
	return buf, nil
}

// Size returns the current size in bytes of the named segment, active or
// sealed.
func (l *Log) Size(id uint32) (int64, error) {
	l.mu.Lock()
	if l.active.id == id {
		size := l.active.size
		l.mu.Unlock()
		return size, nil
	}
	l.mu.Unlock()

	info, err := os.Stat(seginfo.PathFor(l.dataDir, id))
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// TruncateActive is used by recovery to drop a truncated tail record from
// the active segment before the engine is exposed to callers. It must only
// be called before any writer has observed the log.
func (l *Log) TruncateActive(newSize int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.active.f.Truncate(newSize); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to truncate active segment tail").
			WithSegmentID(int(l.active.id)).WithOffset(int(newSize))
	}
	l.active.size = newSize
	return nil
}

// RotateForCompaction prepares a segment for the compactor to write
// rewritten records into, per spec's compaction step 2. It performs two
// rotations back to back under the writer lock: the first freezes whatever
// is currently active (it is sealed but NOT returned as the compaction
// target, and is not retired by this compaction round, since it was not
// sealed at snapshot time) and creates the segment the compactor will
// exclusively write into (compactionID); the second seals compactionID at
// once and moves live writers on to a distinct successor, so no concurrent
// Set/Remove ever lands in compactionID.
func (l *Log) RotateForCompaction() (compactionID uint32, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.rotateLocked(); err != nil {
		return 0, err
	}
	compactionID = l.active.id

	if err := l.rotateLocked(); err != nil {
		return 0, err
	}

	return compactionID, nil
}

// CompactionWriter returns an independent, sequential writer over the
// segment file created by RotateForCompaction. It is not tracked as the
// log's active segment, so it never competes with live writers.
func (l *Log) CompactionWriter(id uint32) (*CompactionWriter, error) {
	path := seginfo.PathFor(l.dataDir, id)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path, seginfo.GenerateName(id))
	}
	return &CompactionWriter{id: id, f: f}, nil
}

// CommitCompaction records compactedID as sealed (RotateForCompaction has
// already sealed it, and ReadAt serves it from the moment it is created),
// forgets the retired segment ids, and unlinks their files from disk. Callers must have already
// fsynced compactedID and swung the index before calling this.
func (l *Log) CommitCompaction(retired []uint32, compactedID uint32) error {
	l.sealedMu.Lock()
	l.sealed[compactedID] = struct{}{}
	for _, id := range retired {
		delete(l.sealed, id)
	}
	l.sealedMu.Unlock()

	for _, id := range retired {
		path := seginfo.PathFor(l.dataDir, id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to unlink retired segment").
				WithSegmentID(int(id)).WithPath(path)
		}
	}
	return nil
}

// Close closes the active segment's file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active.f.Close()
}

// CompactionWriter sequentially appends already-encoded records to a
// segment the compactor owns exclusively, tracking offsets itself.
type CompactionWriter struct {
	id   uint32
	f    *os.File
	size int64
}

// Append writes data at the writer's current offset and returns that
// offset.
func (w *CompactionWriter) Append(data []byte) (int64, error) {
	offset := w.size
	n, err := w.f.Write(data)
	if err != nil {
		return 0, fmt.Errorf("compaction writer: append to segment %d: %w", w.id, err)
	}
	w.size += int64(n)
	return offset, nil
}

// Fsync flushes the compaction segment to stable storage.
func (w *CompactionWriter) Fsync() error {
	return w.f.Sync()
}

// Close closes the compaction writer's file handle.
func (w *CompactionWriter) Close() error {
	return w.f.Close()
}
