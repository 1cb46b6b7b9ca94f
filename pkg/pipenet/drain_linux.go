//go:build linux

package pipenet

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"golang.org/x/sys/unix"
)

// drainConn polls the socket's send queue (SIOCOUTQ) until the peer has read
// every byte written to it.
func drainConn(ctx context.Context, netConn net.Conn) error {
	sc, ok := netConn.(syscall.Conn)
	if !ok {
		return nil
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	b := &backoff.Backoff{Min: 50 * time.Microsecond, Max: 20 * time.Millisecond, Factor: 2}
	for {
		var pending int
		var ioctlErr error
		err = raw.Control(func(fd uintptr) {
			pending, ioctlErr = unix.IoctlGetInt(int(fd), unix.SIOCOUTQ)
		})
		if err == nil {
			err = ioctlErr
		}
		if err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}
