package index

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Location contains the absolute minimum metadata required to locate and
// retrieve a data entry from disk storage. This structure is the primary
// memory consumer in the entire system, making every field choice critical
// for overall scalability.
//
// Each Location serves as a precise "address" that tells the system exactly
// where to find a piece of data without requiring any scanning or additional
// lookups: which segment file, what byte offset within it, and how many
// bytes the framed record occupies.
type Location struct {
	// SegmentID identifies which segment file contains this entry.
	SegmentID uint32

	// Offset specifies the exact byte position within the segment file
	// where this entry's record begins. A read uses this offset to perform
	// a direct positioned read, jumping immediately to the correct position
	// rather than scanning the file for it.
	Offset int64

	// Length is the total number of bytes the framed record occupies on
	// disk, header included. It lets a read fetch the entire record with a
	// single I/O call sized exactly to the record.
	Length uint32
}

// Index represents the in-memory hash table that maps live keys to their
// most recent disk location. This structure embodies the central component
// of the Bitcask architecture: keep every key in memory for O(1) lookup
// while storing only compact metadata about each entry, so the system can
// handle datasets much larger than available RAM while read latency stays
// flat.
type Index struct {
	dataDir   string              // Filesystem path where segment files are stored.
	log       *zap.SugaredLogger  // Structured logging.
	locations map[string]Location // Core mapping from key to its current disk location.
	mu        sync.RWMutex        // Exclusive for writes and compaction swap, shared for reads and snapshots.
	closed    atomic.Bool         // Whether the index has been closed.
}

// Config encapsulates the configuration parameters required to initialize
// an Index.
type Config struct {
	DataDir string             // Filesystem directory containing segment files.
	Logger  *zap.SugaredLogger // Structured logging for Index operations.
}
