package notify

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS is an alternate Notifier backend over NATS core pub/sub, useful when
// ring and reader processes are spread across hosts that do not share a
// multicast-capable link. Send publishes an empty-payload message; Wait
// consumes from, and Peek inspects without consuming, a per-process
// subscription channel.
type NATS struct {
	nc      *nats.Conn
	subject string
	sub     *nats.Subscription
	msgs    chan *nats.Msg
}

// NewNATS subscribes to subject on an existing connection and returns a
// ready-to-use Notifier. The caller owns nc's lifecycle.
func NewNATS(nc *nats.Conn, subject string) (*NATS, error) {
	msgs := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("notify: nats subscribe %s: %w", subject, err)
	}
	return &NATS{nc: nc, subject: subject, sub: sub, msgs: msgs}, nil
}

// Send publishes an empty wakeup message to the subject.
func (n *NATS) Send() error {
	if err := n.nc.Publish(n.subject, nil); err != nil {
		return fmt.Errorf("notify: nats publish %s: %w", n.subject, err)
	}
	return nil
}

// Wait blocks until a message arrives on the subscription or ctx is done.
func (n *NATS) Wait(ctx context.Context) error {
	select {
	case <-n.msgs:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Peek reports whether a message is currently buffered without consuming
// it.
func (n *NATS) Peek() (bool, error) {
	select {
	case m := <-n.msgs:
		select {
		case n.msgs <- m:
		default:
		}
		return true, nil
	default:
		return false, nil
	}
}

// Close unsubscribes; it does not close the underlying connection.
func (n *NATS) Close() error {
	if err := n.sub.Unsubscribe(); err != nil {
		return fmt.Errorf("notify: nats unsubscribe: %w", err)
	}
	return nil
}
