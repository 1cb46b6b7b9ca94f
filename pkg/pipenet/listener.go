package pipenet

import (
	"context"
	"fmt"
	"net"
	"sync"

	pipeshare "github.com/sammck-go/pipechan/share"
)

// hubs holds the acceptor hub of every endpoint path that has at least one
// Listener registered in this process.
var hubs = struct {
	lock    sync.Mutex
	entries map[string]*acceptHub
}{entries: make(map[string]*acceptHub)}

// acceptHub shares one OS listening endpoint among all the Listeners registered
// for the same path. Each accepted connection is handed to exactly one of them.
type acceptHub struct {
	pipeshare.ShutdownHelper
	path     string
	listener net.Listener
	refs     int
	stats    pipeshare.ConnStats
	ready    chan net.Conn
}

// Listener is one listening instance of a named endpoint. Several Listeners may
// be open for the same path at once.
type Listener struct {
	logger    pipeshare.Logger
	hub       *acceptHub
	closeOnce sync.Once
}

// Listen registers a new listening instance for path, binding the OS endpoint
// if this is the first instance in the process. It fails if the endpoint cannot
// be bound, e.g. because another process owns it.
func Listen(logger pipeshare.Logger, path string) (*Listener, error) {
	hubs.lock.Lock()
	defer hubs.lock.Unlock()

	h := hubs.entries[path]
	if h == nil {
		var err error
		h, err = newAcceptHub(logger, path)
		if err != nil {
			return nil, err
		}
		hubs.entries[path] = h
	}
	h.refs++
	h.DLogf("registered listener instance (%d total)", h.refs)
	return &Listener{logger: logger, hub: h}, nil
}

func newAcceptHub(logger pipeshare.Logger, path string) (*acceptHub, error) {
	h := &acceptHub{
		path:  path,
		ready: make(chan net.Conn),
	}
	h.InitShutdownHelper(logger.Fork("AcceptHub(%q)", path), h)
	l, err := listenPath(h.Logger, path)
	if err != nil {
		return nil, err
	}
	h.listener = l
	loopDone := make(chan struct{})
	h.AddShutdownChildChan(loopDone)
	go h.acceptLoop(loopDone)
	return h, nil
}

func (h *acceptHub) acceptLoop(loopDone chan struct{}) {
	defer close(loopDone)
	for {
		netConn, err := h.listener.Accept()
		if err != nil {
			if !h.IsStartedShutdown() {
				h.DLogf("Accept failed: %s", err)
				go h.StartShutdown(err)
			}
			return
		}
		select {
		case h.ready <- netConn:
		case <-h.ShutdownStartedChan():
			netConn.Close()
			return
		}
	}
}

// HandleOnceShutdown will be called exactly once, in its own goroutine. It should take completionError
// as an advisory completion value, actually shut down, then return the real completion value.
func (h *acceptHub) HandleOnceShutdown(completionErr error) error {
	hubs.lock.Lock()
	if hubs.entries[h.path] == h {
		delete(hubs.entries, h.path)
	}
	hubs.lock.Unlock()

	err := h.listener.Close()
	if err != nil {
		h.DLogf("close of listener failed, ignoring: %s", err)
	}
	h.DLogf("%s stopped listening", &h.stats)
	return completionErr
}

// release drops one registration, shutting the hub down with the last one.
func (h *acceptHub) release() {
	hubs.lock.Lock()
	h.refs--
	last := h.refs == 0
	hubs.lock.Unlock()
	if last {
		h.Close()
	}
}

// Path returns the endpoint path this Listener is bound to
func (l *Listener) Path() string {
	return l.hub.path
}

// Accept waits for the next incoming connection on the endpoint. It returns
// when a connection arrives, ctx is done, or the endpoint fails.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	h := l.hub
	select {
	case netConn := <-h.ready:
		n := h.stats.New()
		conn := NewConn(l.logger, netConn, &h.stats)
		conn.DLogf("%s accepted connection #%d", &h.stats, n)
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-h.ShutdownStartedChan():
		err := h.WaitShutdown()
		if err == nil {
			err = fmt.Errorf("%s: endpoint closed", h.Logger.Prefix())
		}
		return nil, err
	}
}

// Close unregisters this listening instance. The OS endpoint is released when
// the last instance for the path is closed. Connections already accepted are
// not affected.
func (l *Listener) Close() error {
	l.closeOnce.Do(l.hub.release)
	return nil
}
