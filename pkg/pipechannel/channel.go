// Package pipechannel provides Channel, one end of a line-oriented duplex pipe
// between two processes on the same host. A Channel is either an Initiator, which
// connects to a named endpoint, or a Listener, which waits for initiators on it.
//
// Once opened, a Channel keeps itself connected: a lost connection is reported as
// Disconnected followed by WaitingForConnection, and the channel reconnects on its
// own until it is closed. Connection problems are never returned to the caller;
// they are only visible through state change notifications.
package pipechannel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sammck-go/pipechan/pkg/pipemsg"
	"github.com/sammck-go/pipechan/pkg/pipenet"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// ErrInvalidName is returned when a channel is created with an empty or blank name
var ErrInvalidName = errors.New("pipe channel name must not be empty")

// Channel is one end of a named pipe connection.
//
// Open, Close, Send and SendMessage may be called from any goroutine, including
// from notification handlers, but calls of the same method should not race each
// other.
type Channel struct {
	logger   pipeshare.Logger
	id       uuid.UUID
	name     string
	path     string
	cfg      Config
	strategy roleStrategy
	codec    *pipemsg.Codec
	events   *dispatcher

	lock     sync.Mutex
	sm       stateMachine
	sess     *session
	disposed bool
}

// session is one Open..Close span of a Channel.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// conn is the attached stream while Connected; guarded by Channel.lock
	conn *pipenet.Conn
}

// New creates a Channel for role on the endpoint called name. cfg may be nil.
func New(role Role, name string, cfg *Config) (*Channel, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	c := &Channel{
		id:       uuid.New(),
		name:     name,
		cfg:      cfg.withDefaults(),
		strategy: newRoleStrategy(role),
	}
	c.path = pipenet.EndpointPath(c.cfg.Dir, name)
	c.logger = c.cfg.Logger.Fork("Channel(%s %q %s)", role, name, c.id.String()[:8])
	c.codec = pipemsg.NewCodec(c.logger, c.cfg.Registry)
	c.events = newDispatcher(c.logger)
	c.sm.notify = c.events.stateChanged
	c.logger.DLogf("Created on %q", c.path)
	return c, nil
}

// NewInitiator creates a Channel that connects to the endpoint called name
func NewInitiator(name string, cfg *Config) (*Channel, error) {
	return New(Initiator, name, cfg)
}

// NewListener creates a Channel that waits for initiators on the endpoint called name
func NewListener(name string, cfg *Config) (*Channel, error) {
	return New(Listener, name, cfg)
}

// Name returns the channel name
func (c *Channel) Name() string {
	return c.name
}

// Path returns the OS path of the channel's endpoint
func (c *Channel) Path() string {
	return c.path
}

// Role returns which end of the pipe this is
func (c *Channel) Role() Role {
	return c.strategy.role()
}

// ID returns a value that is unique to this Channel instance
func (c *Channel) ID() uuid.UUID {
	return c.id
}

// Codec returns the codec used for typed messages. Use it to decode the lines
// delivered to OnMessageReceived handlers.
func (c *Channel) Codec() *pipemsg.Codec {
	return c.codec
}

func (c *Channel) String() string {
	return c.logger.Prefix()
}

// State returns the current connection state
func (c *Channel) State() State {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sm.state
}

// IsOpen returns true between Open and Close
func (c *Channel) IsOpen() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.sess != nil
}

// OnStateChanged adds a handler that is called with every new State. Handlers
// added before Open see every transition.
func (c *Channel) OnStateChanged(h func(State)) {
	c.events.addStateHandler(h)
}

// OnMessageSent adds a handler that is called with the text of every completed Send
func (c *Channel) OnMessageSent(h func(string)) {
	c.events.addSentHandler(h)
}

// OnMessageReceived adds a handler that is called with every non-blank line received
func (c *Channel) OnMessageReceived(h func(string)) {
	c.events.addReceivedHandler(h)
}

// setState must be called with c.lock held.
func (c *Channel) setState(s State) {
	if err := c.sm.transition(s); err != nil {
		c.logger.ELogf("%s", err)
		return
	}
	c.logger.DLogf("State > %s", s)
}

// Open starts connecting. It returns at once, after announcing
// WaitingForConnection; Connected is announced once a peer is attached. It does
// nothing if the channel is already open or has been disposed.
func (c *Channel) Open() {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.disposed || c.sess != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.sess = s
	c.setState(WaitingForConnection)
	go c.supervise(s)
}

// supervise runs one session: connect, receive until the connection is lost,
// and start over, until the session is detached by Close or Dispose.
func (c *Channel) supervise(s *session) {
	defer close(s.done)
	b := c.cfg.dialOptions().NewBackoff()
	for {
		conn, err := c.strategy.connect(s.ctx, c)
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			d := b.Duration()
			c.logger.DLogf("Connect failed, retrying in %s: %s", d, err)
			t := time.NewTimer(d)
			select {
			case <-s.ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
			continue
		}
		b.Reset()

		c.lock.Lock()
		if c.sess != s {
			c.lock.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		c.setState(Connected)
		c.lock.Unlock()

		c.receive(conn)
		conn.Close()

		c.lock.Lock()
		if c.sess != s {
			c.lock.Unlock()
			return
		}
		s.conn = nil
		c.setState(Disconnected)
		c.setState(WaitingForConnection)
		c.lock.Unlock()
	}
}

// receive delivers lines from conn until it fails.
func (c *Channel) receive(conn *pipenet.Conn) {
	for conn.IsConnected() {
		line, err := conn.ReadLine()
		if err != nil {
			c.logger.DLogf("Read failed: %s", err)
			return
		}
		if strings.TrimSpace(line) == "" {
			continue
		}
		c.logger.TLogf("Received > %s", line)
		c.events.messageReceived(line)
	}
}

// Close disconnects gracefully and announces Disconnected. A listener hangs up on
// its peer; an initiator first waits for the peer to read what it has sent. Any
// pending connect, accept or read is abandoned. Close does nothing if the channel
// is not open.
func (c *Channel) Close() {
	c.lock.Lock()
	s := c.sess
	if s == nil {
		c.lock.Unlock()
		return
	}
	c.sess = nil
	conn := s.conn
	s.cancel()
	c.lock.Unlock()

	if conn != nil {
		c.strategy.disconnect(c, conn)
		conn.Close()
	}
	<-s.done

	c.lock.Lock()
	c.setState(Disconnected)
	c.lock.Unlock()
}

// Dispose releases the channel's stream without a graceful disconnect and without
// a state change notification. The channel cannot be opened again. Dispose may be
// called more than once.
func (c *Channel) Dispose() {
	c.lock.Lock()
	if c.disposed {
		c.lock.Unlock()
		return
	}
	c.disposed = true
	s := c.sess
	c.sess = nil
	var conn *pipenet.Conn
	if s != nil {
		conn = s.conn
		s.cancel()
	}
	c.sm.reset()
	c.lock.Unlock()

	if conn != nil {
		conn.Close()
	}
	if s != nil {
		<-s.done
	}
	c.logger.DLogf("Disposed")
}

// current returns the open session and its attached stream, if connected.
func (c *Channel) current() (*session, *pipenet.Conn) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.sess == nil || c.sess.conn == nil {
		return nil, nil
	}
	return c.sess, c.sess.conn
}

// Send writes text as one line and waits until the peer has read it, then
// announces it to OnMessageSent handlers. It silently does nothing if the channel
// is not connected or text is blank. A failed write drops the connection, which
// is then re-established as usual; no notification is sent for the text.
func (c *Channel) Send(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	s, conn := c.current()
	if conn == nil || !conn.IsConnected() {
		return
	}
	if err := conn.WriteLine(text); err != nil {
		c.logger.DLogf("Write failed, dropping connection: %s", err)
		conn.StartShutdown(err)
		return
	}
	if err := conn.Drain(s.ctx); err != nil {
		if s.ctx.Err() == nil {
			c.logger.DLogf("Drain failed, dropping connection: %s", err)
			conn.StartShutdown(err)
		}
		return
	}
	c.logger.TLogf("Send > %s", text)
	c.events.messageSent(text)
}

// SendMessage encodes msg as its tag followed by its body and sends it as one
// line, like Send. It does nothing if msg is nil or the channel is not connected.
// An error is returned only if msg cannot be encoded.
func (c *Channel) SendMessage(msg pipemsg.Message) error {
	if msg == nil {
		return nil
	}
	if _, conn := c.current(); conn == nil || !conn.IsConnected() {
		return nil
	}
	line, err := c.codec.Encode(msg)
	if err != nil {
		return err
	}
	c.Send(line)
	return nil
}
