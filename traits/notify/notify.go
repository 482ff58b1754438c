// Package notify provides the notification primitive external to RMP/TP:
// a way for a writer to wake readers that may be blocked waiting for new
// data, without those readers busy-polling the ring. RMP and TP never
// require it for correctness — a reader that never gets woken simply
// finds nothing new next time it looks — but without it, readers must
// poll, which wastes CPU under light load.
package notify

import "context"

// Notifier is a best-effort wakeup signal. Send is fire-and-forget: it
// never blocks waiting for a receiver. Wait blocks until a notification
// arrives or ctx is done. Peek reports whether a notification is currently
// available without consuming it, for readers that want to decide whether
// it's worth doing a read pass before committing to a blocking Wait.
type Notifier interface {
	Send() error
	Wait(ctx context.Context) error
	Peek() (bool, error)
	Close() error
}
