package options

const (
	// DefaultDataDir is the base directory IgniteDB stores its data files in
	// when no other directory is specified during initialization.
	DefaultDataDir = "/var/lib/ignitedb"

	// DefaultSegmentRollBytes is the default size at which the active
	// segment is sealed and a new one opened (1 MiB).
	DefaultSegmentRollBytes uint64 = 1 * 1024 * 1024

	// DefaultCompactionThresholdBytes is the default uncompacted-bytes
	// watermark that triggers automatic compaction (1 MiB).
	DefaultCompactionThresholdBytes uint64 = 1 * 1024 * 1024

	// DefaultSyncOnWrite is the default fsync-per-write policy.
	DefaultSyncOnWrite = false

	// DefaultSubscriptionChannelCapacity is the default per-subscriber
	// delivery channel buffer size.
	DefaultSubscriptionChannelCapacity = 64
)

// Holds the default configuration settings for an IgniteDB instance.
var defaultOptions = Options{
	DataDir:                     DefaultDataDir,
	SegmentRollBytes:            DefaultSegmentRollBytes,
	CompactionThresholdBytes:    DefaultCompactionThresholdBytes,
	SyncOnWrite:                 DefaultSyncOnWrite,
	SubscriptionChannelCapacity: DefaultSubscriptionChannelCapacity,
}

// NewDefaultOptions returns a fresh copy of the default options.
func NewDefaultOptions() Options {
	return defaultOptions
}
