// Package recovery rebuilds the in-memory index by replaying every segment
// file on disk, in segment id order, as engine.New does before it exposes a
// store to callers.
package recovery

import (
	"errors"

	"github.com/iamNilotpal/ignite/internal/compaction"
	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/record"
	"github.com/iamNilotpal/ignite/internal/segment"
	ierrors "github.com/iamNilotpal/ignite/pkg/errors"
	"go.uber.org/zap"
)

// segmentReader adapts segment.Log's positioned reads to the io.ReaderAt
// shape record.DecodeAt expects, pinned to one segment id.
type segmentReader struct {
	log *segment.Log
	id  uint32
}

func (r segmentReader) ReadAt(p []byte, off int64) (int, error) {
	data, err := r.log.ReadAt(r.id, off, len(p))
	if err != nil {
		return 0, err
	}
	copy(p, data)
	return len(data), nil
}

// Replay streams every segment known to log, oldest id first, applying each
// decoded Set/Remove to idx exactly as a live write would. A truncated
// record (an unfinished write, as left by a crash mid-append) is tolerated
// on any segment: on the active segment it is cut off the file in place; on
// a sealed segment replay of that segment stops at the truncated record and
// the file is left as it is. Any other decode failure, including a CRC
// mismatch, is treated as fatal corruption.
//
// Whenever a replayed Set or Remove supersedes a record already applied
// during this same replay, its length is fed into compactor's dead-byte
// counter, exactly as a live write would. This means a store reopened with
// pre-existing dead weight on disk can cross the compaction threshold and
// compact immediately, rather than waiting on fresh writes to add another
// full threshold's worth on top of it.
func Replay(log *segment.Log, idx *index.Index, compactor *compaction.Compactor, zl *zap.SugaredLogger) error {
	ids := log.AllSegmentIDs()
	activeID := log.ActiveID()

	for _, id := range ids {
		size, err := log.Size(id)
		if err != nil {
			return ierrors.NewStorageError(err, ierrors.ErrorCodeIO, "failed to stat segment during recovery").
				WithSegmentID(int(id))
		}

		reader := segmentReader{log: log, id: id}
		var offset int64

		for offset < size {
			cmd, recLen, err := record.DecodeAt(reader, offset)
			if err != nil {
				var truncated *record.ErrTruncated
				if errors.As(err, &truncated) {
					if id != activeID {
						zl.Warnw("truncated tail in a sealed segment during recovery, stopping replay of this segment",
							"segment", id, "offset", offset)
						break
					}

					zl.Infow("truncating unfinished tail write from active segment", "segment", id, "offset", offset)
					if err := log.TruncateActive(offset); err != nil {
						return err
					}
					break
				}

				return ierrors.NewStorageError(err, ierrors.ErrorCodeSegmentCorrupted, "segment corrupted during recovery").
					WithSegmentID(int(id)).WithOffset(int(offset))
			}

			loc := index.Location{SegmentID: id, Offset: offset, Length: uint32(recLen)}
			switch cmd.Kind {
			case record.KindSet:
				prev, existed, err := idx.Upsert(string(cmd.Key), loc)
				if err != nil {
					return err
				}
				if existed {
					compactor.AddDeadBytes(uint64(prev.Length))
				}
			case record.KindRemove:
				prev, existed, err := idx.Delete(string(cmd.Key))
				if err != nil {
					return err
				}
				if existed {
					compactor.AddDeadBytes(uint64(prev.Length))
				}
			}

			offset += recLen
		}
	}

	return nil
}
