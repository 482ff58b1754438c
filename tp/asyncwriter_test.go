package tp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/adred-codev/toroni/rmp"
)

func TestAsyncWriterPostDeliversAndNotifies(t *testing.T) {
	h := newTestHarness(t)
	notifier := newChanNotifier()

	aw, err := NewAsyncWriter(h.writer, h.ring, h.topicInfo, notifier, noBackpressure, testLogger())
	require.NoError(t, err)

	msg, err := aw.CreateMessage(false, "orders/created", []byte("payload"))
	require.NoError(t, err)
	aw.Post(msg)

	require.Eventually(t, func() bool {
		ok, _ := notifier.Peek()
		return ok
	}, time.Second, time.Millisecond, "expected a notification after posting")

	require.Equal(t, uint64(1), h.ring.Stats().NotificationCount.Load())
}

func TestAsyncWriterCreateMessageRejectsOversized(t *testing.T) {
	h := newTestHarness(t)
	notifier := newChanNotifier()

	aw, err := NewAsyncWriter(h.writer, h.ring, h.topicInfo, notifier, noBackpressure, testLogger())
	require.NoError(t, err)

	oversized := make([]byte, h.writer.MaxMessageSize()+1)
	msg, err := aw.CreateMessage(false, "orders/created", oversized)
	require.ErrorIs(t, err, rmp.ErrMessageTooLarge)
	require.Nil(t, msg)
}

func TestAsyncWriterDrainsConcurrentPostsInOrder(t *testing.T) {
	h := newTestHarness(t)
	notifier := newChanNotifier()

	aw, err := NewAsyncWriter(h.writer, h.ring, h.topicInfo, notifier, noBackpressure, testLogger())
	require.NoError(t, err)

	reader, err := rmp.NewReaderWithBackpressure(h.ring, h.rmpInfo)
	require.NoError(t, err)
	reader.Activate()

	const n = 50
	for i := 0; i < n; i++ {
		msg, err := aw.CreateMessage(false, "orders/created", []byte{byte(i)})
		require.NoError(t, err)
		aw.Post(msg)
	}

	require.Eventually(t, func() bool {
		return h.ring.FreePos() > 0
	}, 2*time.Second, time.Millisecond)

	var got []byte
	cb := rmp.NewBufferedCopyConfirm(func(data []byte) {
		msg, err := Deserialize(data)
		require.NoError(t, err)
		got = append(got, msg.Payload[0])
	})
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n && time.Now().Before(deadline) {
		reader.ReadEx(cb)
		time.Sleep(time.Millisecond)
	}

	require.Len(t, got, n)
	for i, b := range got {
		require.Equal(t, byte(i), b, "messages must be delivered in post order")
	}
}
