package pipenet

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// Default retry intervals used when DialOptions leaves them zero.
const (
	DefaultMinRetryInterval = 20 * time.Millisecond
	DefaultMaxRetryInterval = 1 * time.Second
)

// DialOptions tunes how Dial waits for an endpoint that does not exist yet.
type DialOptions struct {
	MinRetryInterval time.Duration
	MaxRetryInterval time.Duration
}

// NewBackoff returns the retry schedule described by opts.
func (opts DialOptions) NewBackoff() *backoff.Backoff {
	b := &backoff.Backoff{
		Min:    opts.MinRetryInterval,
		Max:    opts.MaxRetryInterval,
		Factor: 2,
		Jitter: true,
	}
	if b.Min <= 0 {
		b.Min = DefaultMinRetryInterval
	}
	if b.Max < b.Min {
		b.Max = DefaultMaxRetryInterval
		if b.Max < b.Min {
			b.Max = b.Min
		}
	}
	return b
}

var dialStats pipeshare.ConnStats

// Dial connects to the endpoint at path. If nothing is listening there yet it
// keeps retrying, with backoff, until a listener appears or ctx is done.
func Dial(ctx context.Context, logger pipeshare.Logger, path string, opts DialOptions) (*Conn, error) {
	b := opts.NewBackoff()
	var watcher *endpointWatcher
	watching := false
	defer func() { watcher.Close() }()

	for {
		netConn, err := dialPath(ctx, path)
		if err == nil {
			dialStats.New()
			conn := NewConn(logger, netConn, &dialStats)
			conn.DLogf("%s connected to %q (attempt %d)", &dialStats, path, int(b.Attempt())+1)
			return conn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !watching {
			watcher = newEndpointWatcher(logger, path)
			watching = true
		}
		d := b.Duration()
		logger.TLogf("Dial %q failed, retrying in %s: %s", path, d, err)
		t := time.NewTimer(d)
		select {
		case <-t.C:
		case <-watcher.Changed():
			t.Stop()
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		}
	}
}
