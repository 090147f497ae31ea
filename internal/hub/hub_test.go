package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHub(t *testing.T, capacity int) *Hub {
	t.Helper()
	return New(Config{Logger: zap.NewNop().Sugar(), ChannelCapacity: capacity})
}

func TestSubscribeReceivesMatchingUpdate(t *testing.T) {
	h := newTestHub(t, 4)

	ch, unsubscribe, err := h.Subscribe("user:*")
	require.NoError(t, err)
	defer unsubscribe()

	h.Publish("user:1", KeyUpdate{Key: []byte("user:1"), Value: []byte("alice"), Kind: ChangeSet})
	h.Publish("order:1", KeyUpdate{Key: []byte("order:1"), Value: []byte("ignored"), Kind: ChangeSet})

	select {
	case update := <-ch:
		require.Equal(t, "user:1", string(update.Key))
		require.Equal(t, ChangeSet, update.Kind)
	case <-time.After(time.Second):
		t.Fatal("expected a matching update to be delivered")
	}

	select {
	case update := <-ch:
		t.Fatalf("did not expect a second update, got %+v", update)
	default:
	}
}

func TestSubscribeRejectsBadPattern(t *testing.T) {
	h := newTestHub(t, 4)
	_, _, err := h.Subscribe(`trailing\`)
	require.Error(t, err)
}

func TestPublishDropsWhenChannelFullAndIncrementsLagged(t *testing.T) {
	h := newTestHub(t, 1)

	ch, unsubscribe, err := h.Subscribe("*")
	require.NoError(t, err)
	defer unsubscribe()

	h.Publish("a", KeyUpdate{Key: []byte("a"), Kind: ChangeSet})
	h.Publish("b", KeyUpdate{Key: []byte("b"), Kind: ChangeSet})
	h.Publish("c", KeyUpdate{Key: []byte("c"), Kind: ChangeSet})

	require.Equal(t, uint64(2), h.Lagged(ch))

	update := <-ch
	require.Equal(t, "a", string(update.Key))
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	h := newTestHub(t, 4)

	ch, unsubscribe, err := h.Subscribe("*")
	require.NoError(t, err)
	unsubscribe()

	_, ok := <-ch
	require.False(t, ok)
}

func TestCloseClosesAllSubscribers(t *testing.T) {
	h := newTestHub(t, 4)

	ch1, _, err := h.Subscribe("*")
	require.NoError(t, err)
	ch2, _, err := h.Subscribe("*")
	require.NoError(t, err)

	require.NoError(t, h.Close())

	_, ok1 := <-ch1
	_, ok2 := <-ch2
	require.False(t, ok1)
	require.False(t, ok2)
}
