//go:build windows

package pipenet

import (
	"context"
	"net"

	"golang.org/x/sys/windows"
)

// drainConn waits, like WaitForPipeDrain, until the client end has read
// everything written to the pipe instance. FlushFileBuffers cannot be
// interrupted, so ctx is only checked before the call.
func drainConn(ctx context.Context, netConn net.Conn) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, ok := netConn.(interface{ Fd() uintptr })
	if !ok {
		return nil
	}
	return windows.FlushFileBuffers(windows.Handle(f.Fd()))
}
