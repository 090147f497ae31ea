package compaction

import (
	"bytes"
	"context"
	"testing"

	"github.com/iamNilotpal/ignite/internal/index"
	"github.com/iamNilotpal/ignite/internal/record"
	"github.com/iamNilotpal/ignite/internal/segment"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRig(t *testing.T) (*segment.Log, *index.Index) {
	t.Helper()
	zl := zap.NewNop().Sugar()

	seg, err := segment.Open(t.TempDir(), 1<<20, false, zl)
	require.NoError(t, err)
	t.Cleanup(func() { seg.Close() })

	idx, err := index.New(context.Background(), &index.Config{DataDir: t.TempDir(), Logger: zl})
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	return seg, idx
}

func put(t *testing.T, seg *segment.Log, idx *index.Index, key, value string) {
	t.Helper()
	data := record.Encode(record.Command{Kind: record.KindSet, Key: []byte(key), Value: []byte(value)})
	id, offset, err := seg.Append(data)
	require.NoError(t, err)
	_, _, err = idx.Upsert(key, index.Location{SegmentID: id, Offset: offset, Length: uint32(len(data))})
	require.NoError(t, err)
}

func TestShouldCompactRespectsThreshold(t *testing.T) {
	c := New(nil, nil, Config{ThresholdBytes: 100, Logger: zap.NewNop().Sugar()})

	require.False(t, c.ShouldCompact())
	c.AddDeadBytes(50)
	require.False(t, c.ShouldCompact())
	c.AddDeadBytes(51)
	require.True(t, c.ShouldCompact())
}

func TestCompactRewritesLiveKeysAndUnlinksRetiredSegments(t *testing.T) {
	seg, idx := newTestRig(t)
	zl := zap.NewNop().Sugar()

	put(t, seg, idx, "a", "1")
	put(t, seg, idx, "b", "2")
	put(t, seg, idx, "a", "1-updated")

	oldestSegmentID := uint32(1)

	// Force a roll so the record above is sealed, otherwise it is excluded
	// from this compaction round as the pre-rotation active segment.
	_, err := seg.RotateForCompaction()
	require.NoError(t, err)

	c := New(seg, idx, Config{ThresholdBytes: 1, Logger: zl})
	c.AddDeadBytes(1000)
	require.True(t, c.ShouldCompact())

	require.NoError(t, c.Compact())
	require.False(t, c.ShouldCompact())

	locA, ok, err := idx.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	locB, ok, err := idx.Get("b")
	require.NoError(t, err)
	require.True(t, ok)

	require.NotEqual(t, oldestSegmentID, locA.SegmentID)
	require.NotEqual(t, oldestSegmentID, locB.SegmentID)

	_, err = seg.Size(oldestSegmentID)
	require.Error(t, err, "the retired segment's file should have been unlinked")

	rawA, err := seg.ReadAt(locA.SegmentID, locA.Offset, int(locA.Length))
	require.NoError(t, err)
	cmdA, _, err := record.DecodeAt(bytes.NewReader(rawA), 0)
	require.NoError(t, err)
	require.Equal(t, "1-updated", string(cmdA.Value))
}

func TestCompactRetiresFullyDeadSegmentNoLiveKeyReferences(t *testing.T) {
	seg, idx := newTestRig(t)
	zl := zap.NewNop().Sugar()

	// Every write below targets the same key, so once the second write lands
	// in segment 3 (RotateForCompaction seals 1 and 2 and makes 3 active),
	// segment 1 holds nothing but a superseded record: no live key points
	// into it anymore.
	put(t, seg, idx, "a", "1")
	_, err := seg.RotateForCompaction()
	require.NoError(t, err)
	put(t, seg, idx, "a", "2")

	require.Contains(t, seg.AllSegmentIDs(), uint32(1))

	c := New(seg, idx, Config{ThresholdBytes: 1, Logger: zl})
	c.AddDeadBytes(1000)
	require.NoError(t, c.Compact())

	require.NotContains(t, seg.AllSegmentIDs(), uint32(1),
		"a sealed segment with no live references should still be retired")

	_, err = seg.Size(1)
	require.Error(t, err, "the retired segment's file should have been unlinked")
}

func TestCompactSkipsKeyChangedConcurrently(t *testing.T) {
	seg, idx := newTestRig(t)

	put(t, seg, idx, "a", "1")
	put(t, seg, idx, "b", "2")

	_, err := seg.RotateForCompaction()
	require.NoError(t, err)

	snapshot := idx.Snapshot()
	require.Len(t, snapshot, 2)

	// Simulate a concurrent write landing on "b" between snapshot and swap by
	// updating it through the normal path before Compact() runs.
	put(t, seg, idx, "b", "2-newer")
	locBBeforeCompact, _, err := idx.Get("b")
	require.NoError(t, err)

	// Compact() takes its own fresh snapshot internally, so to exercise the
	// CAS-skip path we drive it through a manual remap mirroring Compact's
	// internal steps using the stale snapshot captured above.
	remap := map[string]index.Location{
		"a": {SegmentID: 99, Offset: 0, Length: snapshot["a"].Length},
		"b": {SegmentID: 99, Offset: snapshot["a"].Length, Length: snapshot["b"].Length},
	}
	applied, err := idx.CompareAndSwapAll(remap, snapshot)
	require.NoError(t, err)
	require.Equal(t, 1, applied)

	locB, _, err := idx.Get("b")
	require.NoError(t, err)
	require.Equal(t, locBBeforeCompact, locB)
}

func TestCompactWithEmptyIndexIsNoop(t *testing.T) {
	seg, idx := newTestRig(t)
	c := New(seg, idx, Config{ThresholdBytes: 1, Logger: zap.NewNop().Sugar()})
	c.AddDeadBytes(10)

	require.NoError(t, c.Compact())
	require.False(t, c.ShouldCompact())
}
