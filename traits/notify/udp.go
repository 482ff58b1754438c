package notify

import (
	"context"
	"fmt"
	"net"
)

// UDPMulticast is the reference Notifier binding: a one-byte multicast UDP
// datagram per Send, received by every process joined to the group. It
// requires no broker and no shared filesystem object, matching the
// reference implementation's notification primitive.
type UDPMulticast struct {
	recv   *net.UDPConn
	send   *net.UDPConn
	signal chan struct{}
	closed chan struct{}
}

// NewUDPMulticast joins group:port on iface (nil picks the default
// multicast-capable interface) and returns a ready-to-use Notifier.
func NewUDPMulticast(group string, port int, iface *net.Interface) (*UDPMulticast, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}

	recv, err := net.ListenMulticastUDP("udp4", iface, addr)
	if err != nil {
		return nil, fmt.Errorf("notify: listen multicast %s:%d: %w", group, port, err)
	}

	send, err := net.DialUDP("udp4", nil, addr)
	if err != nil {
		recv.Close()
		return nil, fmt.Errorf("notify: dial multicast %s:%d: %w", group, port, err)
	}

	u := &UDPMulticast{recv: recv, send: send, signal: make(chan struct{}, 1), closed: make(chan struct{})}
	go u.pump()
	return u, nil
}

func (u *UDPMulticast) pump() {
	buf := make([]byte, 1)
	for {
		_, _, err := u.recv.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-u.closed:
				return
			default:
				continue
			}
		}
		select {
		case u.signal <- struct{}{}:
		default:
		}
	}
}

// Send multicasts a one-byte wakeup datagram. It never blocks on a
// receiver: UDP delivery is unacknowledged and best-effort.
func (u *UDPMulticast) Send() error {
	if _, err := u.send.Write([]byte{1}); err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}
	return nil
}

// Wait blocks until a notification arrives or ctx is done. Concurrent
// notifications received while nothing is waiting coalesce into a single
// pending wakeup, same as the ring's own sparse position publishing: a
// reader only needs to know "something changed", not how many times.
func (u *UDPMulticast) Wait(ctx context.Context) error {
	select {
	case <-u.signal:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-u.closed:
		return net.ErrClosed
	}
}

// Peek reports whether a notification is pending without consuming it.
func (u *UDPMulticast) Peek() (bool, error) {
	select {
	case sig := <-u.signal:
		select {
		case u.signal <- sig:
		default:
		}
		return true, nil
	default:
		return false, nil
	}
}

// Close stops the receive pump and releases both sockets.
func (u *UDPMulticast) Close() error {
	close(u.closed)
	_ = u.recv.Close()
	return u.send.Close()
}
