package notify

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func loopbackMulticastIface(t *testing.T) *net.Interface {
	t.Helper()
	ifaces, err := net.Interfaces()
	require.NoError(t, err)
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagMulticast != 0 && ifc.Flags&net.FlagUp != 0 {
			return &ifc
		}
	}
	t.Skip("no multicast-capable interface available in this environment")
	return nil
}

func TestUDPMulticastSendWait(t *testing.T) {
	iface := loopbackMulticastIface(t)

	u, err := NewUDPMulticast("239.255.19.71", 17171, iface)
	if err != nil {
		t.Skipf("multicast unavailable in this environment: %v", err)
	}
	defer u.Close()

	require.NoError(t, u.Send())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, u.Wait(ctx))
}

func TestUDPMulticastWaitTimesOutWithNoSend(t *testing.T) {
	iface := loopbackMulticastIface(t)

	u, err := NewUDPMulticast("239.255.19.72", 17172, iface)
	if err != nil {
		t.Skipf("multicast unavailable in this environment: %v", err)
	}
	defer u.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	err = u.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestUDPMulticastPeekNonDestructive(t *testing.T) {
	iface := loopbackMulticastIface(t)

	u, err := NewUDPMulticast("239.255.19.73", 17173, iface)
	if err != nil {
		t.Skipf("multicast unavailable in this environment: %v", err)
	}
	defer u.Close()

	require.NoError(t, u.Send())
	time.Sleep(50 * time.Millisecond)

	pending, err := u.Peek()
	require.NoError(t, err)
	require.True(t, pending)

	pending, err = u.Peek()
	require.NoError(t, err)
	require.True(t, pending, "Peek must not consume the pending notification")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, u.Wait(ctx))
}
