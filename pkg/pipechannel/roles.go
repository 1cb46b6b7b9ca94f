package pipechannel

import (
	"context"
	"time"

	"github.com/sammck-go/pipechan/pkg/pipenet"
)

// roleStrategy is the part of a Channel that differs between its two ends.
type roleStrategy interface {
	role() Role

	// connect blocks until a peer is attached or ctx is done
	connect(ctx context.Context, c *Channel) (*pipenet.Conn, error)

	// disconnect ends a connection gracefully before the Channel closes it
	disconnect(c *Channel, conn *pipenet.Conn)
}

func newRoleStrategy(role Role) roleStrategy {
	if role == Listener {
		return listenerRole{}
	}
	return initiatorRole{}
}

type initiatorRole struct{}

func (initiatorRole) role() Role { return Initiator }

func (initiatorRole) connect(ctx context.Context, c *Channel) (*pipenet.Conn, error) {
	return pipenet.Dial(ctx, c.logger, c.path, c.cfg.dialOptions())
}

// An initiator cannot hang up on a listener, so it waits for the listener to
// read whatever it wrote last.
func (initiatorRole) disconnect(c *Channel, conn *pipenet.Conn) {
	ctx := context.Background()
	if c.cfg.CloseDrainTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.CloseDrainTimeout)
		defer cancel()
	}
	if err := conn.Drain(ctx); err != nil {
		c.logger.DLogf("Drain before close failed: %s", err)
	}
}

type listenerRole struct{}

func (listenerRole) role() Role { return Listener }

// connect registers a listening instance for the duration of one accept. The
// endpoint may be held by another process; binding is retried until it frees up.
func (listenerRole) connect(ctx context.Context, c *Channel) (*pipenet.Conn, error) {
	b := c.cfg.dialOptions().NewBackoff()
	for {
		l, err := pipenet.Listen(c.logger, c.path)
		if err == nil {
			conn, err := l.Accept(ctx)
			l.Close()
			if err == nil || ctx.Err() != nil {
				return conn, err
			}
			c.logger.DLogf("Accept failed: %s", err)
		} else {
			c.logger.DLogf("Listen failed: %s", err)
		}
		t := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

func (listenerRole) disconnect(c *Channel, conn *pipenet.Conn) {
	if err := conn.Disconnect(); err != nil {
		c.logger.DLogf("Disconnect failed: %s", err)
	}
}
