//go:build !windows

package pipenet

import (
	"github.com/prep/socketpair"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// Pair returns two connected Conns that are not bound to any named endpoint. It
// is used to run a channel against an in-process peer.
func Pair(logger pipeshare.Logger) (*Conn, *Conn, error) {
	a, b, err := socketpair.New("unix")
	if err != nil {
		return nil, nil, logger.Errorf("Unable to create socketpair: %s", err)
	}
	return NewConn(logger, a, nil), NewConn(logger, b, nil), nil
}
