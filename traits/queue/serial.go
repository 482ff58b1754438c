package queue

import (
	"runtime/debug"
	"sync"

	"github.com/rs/zerolog"
)

// Task is a unit of work run by a Serial queue.
type Task func()

// Serial is a single-worker FIFO queue: tasks submitted to it always run in
// submission order, one at a time, on a dedicated goroutine. It is the
// primitive the topic reader uses to keep subscriber-mutation calls
// (CreateChannelReader/CloseChannelReader) and RMP reads each internally
// ordered, without letting either block the other's queue.
//
// Modeled on a fixed-size worker pool reduced to a single worker: the same
// buffered-channel-of-tasks shape, the same panic-recovery wrapper around
// task execution, with the multi-worker fan-out removed since FIFO
// ordering across workers cannot be guaranteed once there is more than one.
type Serial struct {
	tasks  chan Task
	log    zerolog.Logger
	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewSerial starts a Serial queue with the given buffered capacity for
// pending tasks.
func NewSerial(capacity int, log zerolog.Logger) *Serial {
	s := &Serial{
		tasks:  make(chan Task, capacity),
		log:    log,
		stopCh: make(chan struct{}),
	}
	s.wg.Add(1)
	go s.run()
	return s
}

func (s *Serial) run() {
	defer s.wg.Done()
	for {
		select {
		case t, ok := <-s.tasks:
			if !ok {
				return
			}
			s.exec(t)
		case <-s.stopCh:
			return
		}
	}
}

func (s *Serial) exec(t Task) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("serial queue task panicked")
		}
	}()
	t()
}

// Submit enqueues t. It blocks if the queue's buffer is full, applying
// backpressure to the submitter rather than dropping work: unlike the
// fire-and-forget WorkerPool this is derived from, subscriber mutations and
// RMP reads must not be silently lost.
func (s *Serial) Submit(t Task) {
	select {
	case s.tasks <- t:
	case <-s.stopCh:
	}
}

// TrySubmit enqueues t without blocking, reporting false if the buffer is
// currently full. Used by callers that want at most one pending "do the
// work again" task queued — a second notification arriving while one is
// already pending can safely be dropped, since the pending task will cover
// whatever the second notification would have triggered anyway.
func (s *Serial) TrySubmit(t Task) bool {
	select {
	case s.tasks <- t:
		return true
	default:
		return false
	}
}

// Stop drains no further tasks and waits for the running worker to exit.
func (s *Serial) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}
