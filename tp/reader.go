package tp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/adred-codev/toroni/rmp"
	"github.com/adred-codev/toroni/traits/notify"
	"github.com/adred-codev/toroni/traits/queue"
)

// LifecycleEvent identifies a reader-count transition on a Reader.
type LifecycleEvent int

const (
	// FirstCreated fires when the reader's channel-reader count goes from
	// zero to one.
	FirstCreated LifecycleEvent = iota
	// LastClosed fires when the reader's channel-reader count goes from
	// one to zero.
	LastClosed
	// AllExpired fires when the underlying rmp reader itself falls behind
	// far enough to be expired by the writer, meaning every ChannelReader
	// on this Reader has lost whatever was in flight at that moment.
	AllExpired
)

// LifecycleFunc is notified of Reader lifecycle transitions; it runs on
// whichever internal queue triggered it and must not block.
type LifecycleFunc func(event LifecycleEvent)

// Reader drains one shared rmp stream for an entire process and dispatches
// each message to every currently registered ChannelReader whose topic
// matches. It keeps two independent serial queues so that adding or
// removing a subscription never waits behind a read pass, and a read pass
// is never interleaved with another read pass: subscriber mutations
// (CreateChannelReader/CloseChannelReader) run on mutateQueue; RMP reads
// and dispatch run on readQueue.
type Reader struct {
	rmpReader  *rmp.ReaderWithBackpressure
	readerInfo *ReaderInfo
	notifier   notify.Notifier
	onEvent    LifecycleFunc
	log        zerolog.Logger

	pollInterval time.Duration

	mutateQueue *queue.Serial
	readQueue   *queue.Serial

	mu             sync.Mutex
	channelReaders map[string]*ChannelReader

	cancel context.CancelFunc
}

// NewReader constructs a Reader. pollInterval bounds how long a dropped or
// delayed notification can stall delivery, since Notifier.Send is
// best-effort; pass 0 to disable the fallback poll and rely solely on
// notifications.
func NewReader(rmpReader *rmp.ReaderWithBackpressure, readerInfo *ReaderInfo, notifier notify.Notifier, onEvent LifecycleFunc, pollInterval time.Duration, log zerolog.Logger) (*Reader, error) {
	if !readerInfo.Initialized() {
		return nil, ErrUninitialized
	}
	return &Reader{
		rmpReader:      rmpReader,
		readerInfo:     readerInfo,
		notifier:       notifier,
		onEvent:        onEvent,
		log:            log,
		pollInterval:   pollInterval,
		mutateQueue:    queue.NewSerial(64, log),
		readQueue:      queue.NewSerial(1, log),
		channelReaders: make(map[string]*ChannelReader),
	}, nil
}

// CreateChannelReader registers a new subscription and blocks until it has
// actually been applied, so the returned ChannelReader is guaranteed
// dispatch-eligible for the next read pass. It is stamped with the current
// publish generation: any message already written before this call
// returns will never reach this subscription.
func (r *Reader) CreateChannelReader(name string, handleDescendants bool, handler Handler) *ChannelReader {
	done := make(chan *ChannelReader, 1)
	r.mutateQueue.Submit(func() {
		cr := &ChannelReader{
			name:              name,
			handler:           handler,
			handleDescendants: handleDescendants,
			readerGen:         r.readerInfo.currentGen(),
		}
		r.mu.Lock()
		wasEmpty := len(r.channelReaders) == 0
		r.channelReaders[name] = cr
		r.mu.Unlock()
		if wasEmpty {
			r.onEvent(FirstCreated)
		}
		done <- cr
	})
	return <-done
}

// CloseChannelReader unregisters cr and blocks until the removal has been
// applied.
func (r *Reader) CloseChannelReader(cr *ChannelReader) {
	done := make(chan struct{})
	r.mutateQueue.Submit(func() {
		r.mu.Lock()
		delete(r.channelReaders, cr.name)
		empty := len(r.channelReaders) == 0
		r.mu.Unlock()
		if empty {
			r.onEvent(LastClosed)
		}
		close(done)
	})
	<-done
}

// Run activates the underlying rmp reader and starts the background
// goroutine that waits for notifications (and, if pollInterval > 0, polls
// on a timer as a backstop) and schedules read passes. The returned
// lifetime is bound to ctx as well as to Close, whichever comes first.
func (r *Reader) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.rmpReader.Activate()
	r.readQueue.TrySubmit(r.readAndDispatch)
	go r.notifyLoop(ctx)
}

func (r *Reader) notifyLoop(ctx context.Context) {
	for {
		waitCtx := ctx
		var cancel context.CancelFunc
		if r.pollInterval > 0 {
			waitCtx, cancel = context.WithTimeout(ctx, r.pollInterval)
		}
		err := r.notifier.Wait(waitCtx)
		timedOut := waitCtx.Err() == context.DeadlineExceeded
		if cancel != nil {
			cancel()
		}

		if ctx.Err() != nil {
			return
		}
		if err != nil && !timedOut {
			// An unexpected Notifier error rather than our own poll
			// timeout: back off briefly so a persistently broken
			// Notifier cannot spin this goroutine.
			r.log.Warn().Err(err).Msg("tp: notifier wait failed")
			time.Sleep(10 * time.Millisecond)
			continue
		}
		r.readQueue.TrySubmit(r.readAndDispatch)
	}
}

// readAndDispatch runs one ReadEx pass to the ring's current tail,
// dispatching every message frame encountered to matching ChannelReaders.
func (r *Reader) readAndDispatch() {
	cb := &dispatchCopyConfirm{reader: r}
	result := r.rmpReader.ReadEx(cb)
	if result == rmp.ReadExpiredPosition {
		r.onEvent(AllExpired)
	}
}

// Close stops the notify loop and both internal queues, then releases the
// underlying rmp reader's slot. Run must have been called first.
func (r *Reader) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	r.mutateQueue.Stop()
	r.readQueue.Stop()
	return r.rmpReader.Close()
}

// dispatchCopyConfirm decodes a ring message exactly once (Confirm) and
// fans it out to every currently registered matching ChannelReader, rather
// than having each subscriber re-parse the same bytes.
type dispatchCopyConfirm struct {
	reader *Reader
	buf    []byte
}

func (d *dispatchCopyConfirm) Copy(data []byte) bool {
	if cap(d.buf) < len(data) {
		d.buf = make([]byte, len(data))
	} else {
		d.buf = d.buf[:len(data)]
	}
	copy(d.buf, data)
	return true
}

func (d *dispatchCopyConfirm) Confirm() {
	msg, err := Deserialize(d.buf)
	if err != nil {
		d.reader.log.Warn().Err(err).Msg("tp: dropping malformed topic message")
		return
	}

	d.reader.mu.Lock()
	var matched []*ChannelReader
	for _, cr := range d.reader.channelReaders {
		if cr.matches(msg) {
			matched = append(matched, cr)
		}
	}
	d.reader.mu.Unlock()

	for _, cr := range matched {
		cr.handler(msg.Channel, msg.Payload)
	}
}
