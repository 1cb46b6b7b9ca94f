// Package pipenet provides the local duplex stream used by pipe channels: named
// endpoints addressed by a channel name, line-oriented reads, flushed writes, drain
// waits and a best-effort liveness check.
//
// On Windows an endpoint is a named pipe (\\.\pipe\<name>). Elsewhere it is a unix
// domain socket, by default at <tempdir>/CoreFxPipe_<name>, which is the path .NET uses
// for named pipes on Unix, so channels interoperate with those processes.
package pipenet

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jpillora/sizestr"
	pipeshare "github.com/sammck-go/pipechan/share"
)

var nextConnID int32

// AllocConnID allocates a unique Conn ID number, for logging purposes
func AllocConnID() int32 {
	return atomic.AddInt32(&nextConnID, 1)
}

var _ pipeshare.AsyncShutdowner = (*Conn)(nil)

// Conn is one established end of a pipe connection. Reads are line oriented and
// only the receive loop of the owning channel reads from it; writes are serialized.
type Conn struct {
	pipeshare.ShutdownHelper
	ID      int32
	strname string
	netConn net.Conn
	stats   *pipeshare.ConnStats

	reader *bufio.Reader

	wlock  sync.Mutex
	writer *bufio.Writer

	broken          int32
	numBytesRead    int64
	numBytesWritten int64
}

// NewConn wraps an established net.Conn. stats may be nil; if it is not, the
// connection has already been counted with stats.New() and is released from it when
// the Conn shuts down.
func NewConn(logger pipeshare.Logger, netConn net.Conn, stats *pipeshare.ConnStats) *Conn {
	c := &Conn{
		ID:      AllocConnID(),
		netConn: netConn,
		stats:   stats,
	}
	c.reader = bufio.NewReader(countingReader{c})
	c.writer = bufio.NewWriter(countingWriter{c})
	c.strname = fmt.Sprintf("[%d]Conn(%s)", c.ID, remoteName(netConn))
	c.InitShutdownHelper(logger.Fork("%s", c.strname), c)
	return c
}

func remoteName(netConn net.Conn) string {
	if addr := netConn.RemoteAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	if addr := netConn.LocalAddr(); addr != nil && addr.String() != "" {
		return addr.String()
	}
	return "pipe"
}

func (c *Conn) String() string {
	return c.strname
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It should take completionError
// as an advisory completion value, actually shut down, then return the real completion value.
func (c *Conn) HandleOnceShutdown(completionErr error) error {
	c.markBroken()
	err := c.netConn.Close()
	if err != nil {
		err = c.Errorf("close failed: %s", err)
	}
	if c.stats != nil {
		c.stats.Close()
	}
	c.DLogf("closed (read %s, wrote %s)",
		sizestr.ToString(c.GetNumBytesRead()), sizestr.ToString(c.GetNumBytesWritten()))
	if completionErr == nil {
		completionErr = err
	}
	return completionErr
}

func (c *Conn) markBroken() {
	atomic.StoreInt32(&c.broken, 1)
}

// IsConnected is a best-effort liveness check. It turns false once an I/O error has
// been seen or the Conn has been closed; a peer that went away silently is only
// detected by the next read or write.
func (c *Conn) IsConnected() bool {
	return atomic.LoadInt32(&c.broken) == 0 && !c.IsStartedShutdown()
}

// ReadLine blocks until a complete line is available and returns it without its
// terminator ("\n" or "\r\n"). An unterminated final line is returned before the
// end-of-stream error.
func (c *Conn) ReadLine() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return strings.TrimRight(line, "\r"), nil
		}
		c.markBroken()
		return "", err
	}
	return strings.TrimRight(line[:len(line)-1], "\r"), nil
}

// WriteLine writes text followed by a newline and flushes it to the stream.
func (c *Conn) WriteLine(text string) error {
	c.wlock.Lock()
	defer c.wlock.Unlock()
	_, err := c.writer.WriteString(text)
	if err == nil {
		err = c.writer.WriteByte('\n')
	}
	if err == nil {
		err = c.writer.Flush()
	}
	if err != nil {
		c.markBroken()
	}
	return err
}

// Drain blocks until everything written so far has been consumed by the peer, or
// ctx is done. On platforms without a way to observe the peer's progress it only
// guarantees that the data has left this process.
func (c *Conn) Drain(ctx context.Context) error {
	err := drainConn(ctx, c.netConn)
	if err != nil && ctx.Err() == nil {
		c.markBroken()
	}
	return err
}

// Disconnect hangs up on the peer: the write half is shut down so the peer's
// next read reports end-of-stream. The Conn still has to be closed.
func (c *Conn) Disconnect() error {
	whc, _ := c.netConn.(pipeshare.WriteHalfCloser)
	if whc == nil {
		c.DLogf("Disconnect() ignored--CloseWrite not implemented by %T", c.netConn)
		return nil
	}
	err := whc.CloseWrite()
	if err != nil {
		return c.Errorf("CloseWrite failed: %s", err)
	}
	return nil
}

// GetNumBytesRead returns the number of bytes read so far
func (c *Conn) GetNumBytesRead() int64 {
	return atomic.LoadInt64(&c.numBytesRead)
}

// GetNumBytesWritten returns the number of bytes written so far
func (c *Conn) GetNumBytesWritten() int64 {
	return atomic.LoadInt64(&c.numBytesWritten)
}

type countingReader struct{ c *Conn }

func (r countingReader) Read(p []byte) (int, error) {
	n, err := r.c.netConn.Read(p)
	atomic.AddInt64(&r.c.numBytesRead, int64(n))
	return n, err
}

type countingWriter struct{ c *Conn }

func (w countingWriter) Write(p []byte) (int, error) {
	n, err := w.c.netConn.Write(p)
	atomic.AddInt64(&w.c.numBytesWritten, int64(n))
	return n, err
}
