package tp

import (
	"github.com/rs/zerolog"

	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/traits/notify"
	"github.com/adred-codev/toroni/traits/queue"
)

// BackpressureFunc decides whether to keep retrying a write that would
// overrun an active reader. See rmp.BackpressureHandler; bpPos is likewise
// always reported as 0 here, forwarded unchanged from the underlying
// rmp.Writer call site.
type BackpressureFunc func(bpPos, freePos rmp.Position) bool

// AsyncWriter decouples posting a topic message from writing it to the
// ring: Post only ever appends to an in-memory staging queue and returns
// immediately, while a single drainer goroutine — started on the
// idle-to-active edge of that queue — does the actual rmp.Writer.WriteEx
// calls. This keeps publishers (which may be request-handling goroutines
// that cannot afford to block on ring contention) off the writer's lock.
type AsyncWriter struct {
	writer     *rmp.Writer
	ring       *rmp.Ring
	readerInfo *ReaderInfo
	notifier   notify.Notifier
	bp         BackpressureFunc
	staging    *queue.MPSC[[]byte]
	log        zerolog.Logger
	onBatch    func(n int)
}

// NewAsyncWriter constructs an AsyncWriter over an rmp.Writer already bound
// to ring. bp is consulted whenever a write would overrun an active
// reader; notifier wakes blocked readers when the drainer finds the staging
// queue empty and before each backpressure decision.
func NewAsyncWriter(writer *rmp.Writer, ring *rmp.Ring, readerInfo *ReaderInfo, notifier notify.Notifier, bp BackpressureFunc, log zerolog.Logger) (*AsyncWriter, error) {
	if !readerInfo.Initialized() {
		return nil, ErrUninitialized
	}
	return &AsyncWriter{
		writer:     writer,
		ring:       ring,
		readerInfo: readerInfo,
		notifier:   notifier,
		bp:         bp,
		staging:    queue.NewMPSC[[]byte](),
		log:        log,
	}, nil
}

// SetBatchObserver registers fn to be called with the number of messages
// written on every drain pass that writes at least one. Intended for
// histogram-style observability; nil is a valid no-op value.
func (w *AsyncWriter) SetBatchObserver(fn func(n int)) {
	w.onBatch = fn
}

// CreateMessage serializes a topic message ready for Post, stamping it with
// the current publish generation so any ChannelReader created after this
// call (but whose registration has not yet observed this generation) will
// correctly treat it as pre-existing once it does. It returns
// rmp.ErrMessageTooLarge if the serialized size exceeds the ring's
// MaxMessageSize, rejecting an oversized message at creation rather than
// letting Post silently drop it later.
func (w *AsyncWriter) CreateMessage(postToDescendants bool, channel string, payload []byte) ([]byte, error) {
	size := SizeOf(channel, len(payload))
	if uint32(size) > w.writer.MaxMessageSize() {
		return nil, rmp.ErrMessageTooLarge
	}
	gen := w.readerInfo.nextGen()
	buf := make([]byte, size)
	Serialize(buf, gen, postToDescendants, channel, payload)
	return buf, nil
}

// Post enqueues msg for asynchronous writing. If the staging queue was
// idle, Post starts the drain goroutine; concurrent posters that lose that
// race simply enqueue and return.
func (w *AsyncWriter) Post(msg []byte) {
	if w.staging.Enqueue(msg) {
		go w.procWriter()
	}
}

// procWriter drains the staging queue until it goes idle, writing each
// message in FIFO order, and notifies readers once on the final empty check
// before exiting. Every drainer run ends with that check, so readers are
// woken after everything that was written, and a Post that arrives after it
// starts a new drainer that notifies in turn.
func (w *AsyncWriter) procWriter() {
	for {
		batch, more := w.staging.Drain()
		if !more {
			w.notifyReaders()
			return
		}
		for _, msg := range batch {
			if err := w.writer.WriteEx(msg, w.bpWrapper); err != nil {
				// CreateMessage already rejects oversized messages, so
				// this only fires for a message built some other way;
				// log rather than drop it silently.
				w.log.Error().Err(err).Msg("tp: write failed")
			}
		}
		if w.onBatch != nil {
			w.onBatch(len(batch))
		}
	}
}

// bpWrapper is what rmp.Writer.WriteEx actually calls on backpressure. It
// always notifies readers and bumps the notification counter before
// consulting the caller's own BackpressureFunc — even a writer that is
// about to decide to force the write through first gives every reader a
// chance to catch up.
func (w *AsyncWriter) bpWrapper(bpPos, freePos rmp.Position) bool {
	w.notifyReaders()
	return w.bp(bpPos, freePos)
}

func (w *AsyncWriter) notifyReaders() {
	w.ring.Stats().NotificationCount.Add(1)
	if err := w.notifier.Send(); err != nil {
		// Notification is a wakeup hint, not a delivery guarantee: a
		// failed Send just means readers fall back to their own poll
		// interval, so this is logged rather than returned.
		w.log.Warn().Err(err).Msg("tp: notify readers failed")
	}
}
