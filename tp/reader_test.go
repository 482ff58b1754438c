package tp

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adred-codev/toroni/rmp"
)

func newTestReader(t *testing.T, h *testHarness, events *[]LifecycleEvent) *Reader {
	t.Helper()
	var mu sync.Mutex
	rmpReader, err := rmp.NewReaderWithBackpressure(h.ring, h.rmpInfo)
	require.NoError(t, err)

	onEvent := func(e LifecycleEvent) {
		mu.Lock()
		*events = append(*events, e)
		mu.Unlock()
	}

	r, err := NewReader(rmpReader, h.topicInfo, newChanNotifier(), onEvent, 20*time.Millisecond, testLogger())
	require.NoError(t, err)
	return r
}

func TestReaderDispatchesToMatchingChannel(t *testing.T) {
	h := newTestHarness(t)
	var events []LifecycleEvent
	r := newTestReader(t, h, &events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Run(ctx)
	defer r.Close()

	var mu sync.Mutex
	var received []string
	cr := r.CreateChannelReader("orders/created", false, func(channel string, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	})
	require.NotNil(t, cr)

	aw, err := NewAsyncWriter(h.writer, h.ring, h.topicInfo, newChanNotifier(), noBackpressure, testLogger())
	require.NoError(t, err)
	postMsg(t, aw, false, "orders/created", []byte("a"))
	postMsg(t, aw, false, "orders/updated", []byte("b"))
	postMsg(t, aw, false, "orders/created", []byte("c"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"a", "c"}, received)
	mu.Unlock()

	require.Contains(t, events, FirstCreated)
}

func TestReaderHidesMessagesWrittenBeforeSubscription(t *testing.T) {
	h := newTestHarness(t)
	var events []LifecycleEvent
	r := newTestReader(t, h, &events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Run(ctx)
	defer r.Close()

	aw, err := NewAsyncWriter(h.writer, h.ring, h.topicInfo, newChanNotifier(), noBackpressure, testLogger())
	require.NoError(t, err)

	postMsg(t, aw, false, "orders/created", []byte("stale"))
	require.Eventually(t, func() bool { return h.ring.FreePos() > 0 }, time.Second, time.Millisecond)

	var mu sync.Mutex
	var received []string
	r.CreateChannelReader("orders/created", false, func(channel string, payload []byte) {
		mu.Lock()
		received = append(received, string(payload))
		mu.Unlock()
	})

	postMsg(t, aw, false, "orders/created", []byte("fresh"))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	require.Equal(t, []string{"fresh"}, received)
	mu.Unlock()
}

func TestReaderCloseChannelReaderFiresLastClosed(t *testing.T) {
	h := newTestHarness(t)
	var events []LifecycleEvent
	r := newTestReader(t, h, &events)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Run(ctx)
	defer r.Close()

	cr := r.CreateChannelReader("orders/created", false, func(string, []byte) {})
	r.CloseChannelReader(cr)

	require.Contains(t, events, FirstCreated)
	require.Contains(t, events, LastClosed)
}
