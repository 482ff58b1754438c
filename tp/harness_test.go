package tp

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/traits/procmutex"
)

const testRingSize = uint64(8192)
const testMaxReaders = uint32(8)

// chanNotifier is an in-process Notifier used by tests in place of a real
// UDP or NATS backend: Send pushes into a coalescing channel, Wait/Peek
// read from it.
type chanNotifier struct {
	mu     sync.Mutex
	signal chan struct{}
}

func newChanNotifier() *chanNotifier {
	return &chanNotifier{signal: make(chan struct{}, 1)}
}

func (n *chanNotifier) Send() error {
	select {
	case n.signal <- struct{}{}:
	default:
	}
	return nil
}

func (n *chanNotifier) Wait(ctx context.Context) error {
	select {
	case <-n.signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (n *chanNotifier) Peek() (bool, error) {
	select {
	case v := <-n.signal:
		select {
		case n.signal <- v:
		default:
		}
		return true, nil
	default:
		return false, nil
	}
}

func (n *chanNotifier) Close() error { return nil }

type testHarness struct {
	ring      *rmp.Ring
	rmpInfo   *rmp.ReaderInfoTable
	topicInfo *ReaderInfo
	writer    *rmp.Writer
	lockDir   string
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	lockDir := t.TempDir()

	ringMem := make([]byte, rmp.RegionSize(testRingSize))
	ring := rmp.Attach(ringMem)
	require.NoError(t, ring.Init(testRingSize))

	riMem := make([]byte, rmp.ReaderInfoRegionSize(testMaxReaders))
	rmpInfo := rmp.AttachReaderInfo(riMem, testMaxReaders, lockDir)
	rmpInfo.Init(testMaxReaders)

	genMem := make([]byte, TopicHeaderSize())
	topicInfo := AttachReaderInfo(rmpInfo, genMem)
	topicInfo.Init()

	writerLockFile := filepath.Join(lockDir, "writer.lock")
	handle, err := procmutex.Open(ring.WriterMutex(), writerLockFile)
	require.NoError(t, err)

	writer, err := rmp.NewWriter(ring, rmpInfo, handle)
	require.NoError(t, err)

	return &testHarness{ring: ring, rmpInfo: rmpInfo, topicInfo: topicInfo, writer: writer, lockDir: lockDir}
}

func noBackpressure(bpPos, freePos rmp.Position) bool { return false }

// postMsg builds and posts a message in one step, failing the test on a
// CreateMessage error so call sites that don't care about rejection don't
// have to unpack the tuple themselves.
func postMsg(t *testing.T, aw *AsyncWriter, postToDescendants bool, channel string, payload []byte) {
	t.Helper()
	msg, err := aw.CreateMessage(postToDescendants, channel, payload)
	require.NoError(t, err)
	aw.Post(msg)
}

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}
