//go:build !linux && !windows

package pipenet

import (
	"context"
	"net"
)

// drainConn has no way to observe the peer's progress on this platform; the data
// has already been flushed to the kernel.
func drainConn(ctx context.Context, netConn net.Conn) error {
	return ctx.Err()
}
