package engine

import (
	"bytes"
	"context"
	"testing"

	"github.com/iamNilotpal/ignite/internal/hub"
	"github.com/iamNilotpal/ignite/pkg/errors"
	"github.com/iamNilotpal/ignite/pkg/options"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestEngine(t *testing.T, opts ...options.OptionFunc) *Engine {
	t.Helper()

	o := options.NewDefaultOptions()
	o.DataDir = t.TempDir()
	for _, apply := range opts {
		apply(&o)
	}

	e, err := New(context.Background(), &Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func TestSetGetRoundTrip(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Set([]byte("k1"), []byte("v1")))

	val, err := e.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))
}

func TestGetMissingKeyReturnsIndexKeyNotFound(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Get([]byte("missing"))
	require.Error(t, err)

	indexErr, ok := errors.AsIndexError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeIndexKeyNotFound, indexErr.Code())
}

func TestSetOverwriteUpdatesValue(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, e.Set([]byte("k1"), []byte("v2")))

	val, err := e.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(val))
}

func TestRemoveDeletesKey(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, e.Remove([]byte("k1")))

	_, err := e.Get([]byte("k1"))
	require.Error(t, err)
}

func TestRemoveOfAbsentKeyPerformsNoWriteAndReportsNotFound(t *testing.T) {
	e := newTestEngine(t)

	err := e.Remove([]byte("never-set"))
	require.Error(t, err)

	indexErr, ok := errors.AsIndexError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeIndexKeyNotFound, indexErr.Code())
}

func TestSetRejectsOversizedKey(t *testing.T) {
	e := newTestEngine(t)

	oversized := bytes.Repeat([]byte("k"), 65*1024)
	err := e.Set(oversized, []byte("v"))
	require.Error(t, err)

	valErr, ok := errors.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeKeyTooLarge, valErr.Code())
}

func TestSetRejectsOversizedValue(t *testing.T) {
	e := newTestEngine(t)

	oversized := bytes.Repeat([]byte("v"), 5*1024*1024)
	err := e.Set([]byte("k"), oversized)
	require.Error(t, err)

	valErr, ok := errors.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeValueTooLarge, valErr.Code())
}

func TestSetRejectsEmptyKey(t *testing.T) {
	e := newTestEngine(t)

	err := e.Set([]byte(""), []byte("v"))
	require.Error(t, err)

	valErr, ok := errors.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeKeyTooLarge, valErr.Code())
}

func TestFindMatchesGlobPattern(t *testing.T) {
	e := newTestEngine(t)

	require.NoError(t, e.Set([]byte("user:1"), []byte("alice")))
	require.NoError(t, e.Set([]byte("user:2"), []byte("bob")))
	require.NoError(t, e.Set([]byte("order:1"), []byte("widget")))

	matched, err := e.Find([]byte("user:*"))
	require.NoError(t, err)
	require.Len(t, matched, 2)
}

func TestFindRejectsBadPattern(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Find([]byte(`trailing\`))
	require.Error(t, err)

	valErr, ok := errors.AsValidationError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeBadPattern, valErr.Code())
}

func TestSubscribeReceivesLiveUpdates(t *testing.T) {
	e := newTestEngine(t)

	ch, unsubscribe, err := e.Subscribe([]byte("user:*"))
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, e.Set([]byte("user:1"), []byte("alice")))

	update := <-ch
	require.Equal(t, "user:1", string(update.Key))
	require.Equal(t, hub.ChangeSet, update.Kind)
}

func TestCompactReclaimsSupersededRecords(t *testing.T) {
	e := newTestEngine(t, options.WithSegmentRollBytes(1), options.WithCompactionThresholdBytes(1<<30))

	require.NoError(t, e.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, e.Set([]byte("k1"), []byte("v2")))
	require.NoError(t, e.Set([]byte("k1"), []byte("v3")))

	require.NoError(t, e.Compact())

	val, err := e.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v3", string(val))
}

func TestCloseIsIdempotentAndRejectsFurtherUse(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.Close())
	require.ErrorIs(t, e.Close(), ErrEngineClosed)

	err := e.Set([]byte("k"), []byte("v"))
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestSecondOpenOfSameDataDirIsRejected(t *testing.T) {
	dir := t.TempDir()
	o := options.NewDefaultOptions()
	o.DataDir = dir

	first, err := New(context.Background(), &Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer first.Close()

	_, err = New(context.Background(), &Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.Error(t, err)

	storageErr, ok := errors.AsStorageError(err)
	require.True(t, ok)
	require.Equal(t, errors.ErrorCodeDirectoryLocked, storageErr.Code())
}

func TestReopenReplaysExistingData(t *testing.T) {
	dir := t.TempDir()
	o := options.NewDefaultOptions()
	o.DataDir = dir

	e1, err := New(context.Background(), &Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	require.NoError(t, e1.Set([]byte("k1"), []byte("v1")))
	require.NoError(t, e1.Close())

	e2, err := New(context.Background(), &Config{Options: &o, Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	defer e2.Close()

	val, err := e2.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, "v1", string(val))
}
