//go:build !windows

package pipechannel

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sammck-go/pipechan/pkg/pipemsg"
	pipeshare "github.com/sammck-go/pipechan/share"
)

const testName = "t"

func testConfig(t *testing.T) *Config {
	return &Config{
		Dir:               t.TempDir(),
		Logger:            pipeshare.NewNilLogger().Fork("%s", t.Name()),
		MinRetryInterval:  5 * time.Millisecond,
		MaxRetryInterval:  50 * time.Millisecond,
		CloseDrainTimeout: 5 * time.Second,
	}
}

// recorder collects the notifications of one channel.
type recorder struct {
	lock     sync.Mutex
	states   []State
	sent     []string
	received []string
}

func record(c *Channel) *recorder {
	r := &recorder{}
	c.OnStateChanged(func(s State) {
		r.lock.Lock()
		r.states = append(r.states, s)
		r.lock.Unlock()
	})
	c.OnMessageSent(func(text string) {
		r.lock.Lock()
		r.sent = append(r.sent, text)
		r.lock.Unlock()
	})
	c.OnMessageReceived(func(text string) {
		r.lock.Lock()
		r.received = append(r.received, text)
		r.lock.Unlock()
	})
	return r
}

func (r *recorder) States() []State {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]State(nil), r.states...)
}

func (r *recorder) Sent() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.sent...)
}

func (r *recorder) Received() []string {
	r.lock.Lock()
	defer r.lock.Unlock()
	return append([]string(nil), r.received...)
}

func (r *recorder) count(s State) int {
	n := 0
	for _, x := range r.States() {
		if x == s {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newChannel(t *testing.T, role Role, cfg *Config) (*Channel, *recorder) {
	t.Helper()
	c, err := New(role, testName, cfg)
	if err != nil {
		t.Fatalf("New(%s) failed: %s", role, err)
	}
	t.Cleanup(c.Dispose)
	return c, record(c)
}

// connectedPair returns a listener and an initiator on the same endpoint, both Connected.
func connectedPair(t *testing.T) (*Channel, *recorder, *Channel, *recorder) {
	t.Helper()
	cfg := testConfig(t)
	l, lrec := newChannel(t, Listener, cfg)
	i, irec := newChannel(t, Initiator, cfg)
	l.Open()
	i.Open()
	waitFor(t, "both ends connected", func() bool {
		return l.State() == Connected && i.State() == Connected
	})
	return l, lrec, i, irec
}

func TestNewValidName(t *testing.T) {
	for _, name := range []string{"a", "my-pipe", " padded ", "/tmp/explicit.sock"} {
		for _, role := range []Role{Initiator, Listener} {
			c, err := New(role, name, nil)
			if err != nil {
				t.Fatalf("New(%s, %q) failed: %s", role, name, err)
			}
			if c.State() != Disconnected || c.IsOpen() {
				t.Errorf("new channel is %s, open=%v", c.State(), c.IsOpen())
			}
			if c.Name() != name || c.Role() != role {
				t.Errorf("Name()=%q Role()=%s", c.Name(), c.Role())
			}
		}
	}
}

func TestNewInvalidName(t *testing.T) {
	for _, name := range []string{"", " ", "\t\r\n"} {
		if _, err := NewInitiator(name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("NewInitiator(%q) = %v, want ErrInvalidName", name, err)
		}
		if _, err := NewListener(name, nil); !errors.Is(err, ErrInvalidName) {
			t.Errorf("NewListener(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}

func TestInitiatorWaitsForListener(t *testing.T) {
	c, rec := newChannel(t, Initiator, testConfig(t))
	c.Open()
	if c.State() != WaitingForConnection {
		t.Fatalf("state after Open = %s", c.State())
	}
	time.Sleep(100 * time.Millisecond)
	if c.State() != WaitingForConnection {
		t.Fatalf("state without a listener = %s", c.State())
	}
	c.Close()
	if c.State() != Disconnected {
		t.Fatalf("state after Close = %s", c.State())
	}
	c.events.wait()
	got := fmt.Sprint(rec.States())
	if want := fmt.Sprint([]State{WaitingForConnection, Disconnected}); got != want {
		t.Fatalf("notifications = %s, want %s", got, want)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	c, rec := newChannel(t, Listener, testConfig(t))
	c.Open()
	c.Open()
	c.events.wait()
	if n := rec.count(WaitingForConnection); n != 1 {
		t.Fatalf("%d WaitingForConnection notifications after two Opens", n)
	}
	c.Close()
}

func TestListenerAndInitiatorConnect(t *testing.T) {
	l, lrec, i, irec := connectedPair(t)
	l.events.wait()
	i.events.wait()
	want := fmt.Sprint([]State{WaitingForConnection, Connected})
	if got := fmt.Sprint(lrec.States()); got != want {
		t.Errorf("listener notifications = %s, want %s", got, want)
	}
	if got := fmt.Sprint(irec.States()); got != want {
		t.Errorf("initiator notifications = %s, want %s", got, want)
	}
}

func TestSendText(t *testing.T) {
	l, lrec, i, irec := connectedPair(t)

	i.Send("hello listener")
	i.events.wait()
	if got := irec.Sent(); len(got) != 1 || got[0] != "hello listener" {
		t.Fatalf("initiator sent notifications = %q", got)
	}
	waitFor(t, "listener to receive", func() bool { return len(lrec.Received()) > 0 })

	l.Send("hello initiator")
	waitFor(t, "initiator to receive", func() bool { return len(irec.Received()) > 0 })

	time.Sleep(50 * time.Millisecond)
	if got := lrec.Received(); len(got) != 1 || got[0] != "hello listener" {
		t.Fatalf("listener received = %q", got)
	}
	if got := irec.Received(); len(got) != 1 || got[0] != "hello initiator" {
		t.Fatalf("initiator received = %q", got)
	}
}

func TestSendPreservesOrder(t *testing.T) {
	_, lrec, i, _ := connectedPair(t)
	const n = 50
	for k := 0; k < n; k++ {
		i.Send(fmt.Sprintf("msg %d", k))
	}
	waitFor(t, "all messages", func() bool { return len(lrec.Received()) == n })
	for k, got := range lrec.Received() {
		if want := fmt.Sprintf("msg %d", k); got != want {
			t.Fatalf("message %d = %q, want %q", k, got, want)
		}
	}
}

func TestSendBlankIsIgnored(t *testing.T) {
	_, lrec, i, irec := connectedPair(t)
	i.Send("")
	i.Send("  \t")
	i.Send("marker")
	waitFor(t, "marker", func() bool { return len(lrec.Received()) > 0 })
	i.events.wait()
	if got := lrec.Received(); len(got) != 1 || got[0] != "marker" {
		t.Fatalf("listener received %q", got)
	}
	if got := irec.Sent(); len(got) != 1 {
		t.Fatalf("initiator sent notifications %q", got)
	}
}

func TestSendTypedMessage(t *testing.T) {
	l, lrec, i, irec := connectedPair(t)
	if err := i.SendMessage(pipemsg.NewExample(42)); err != nil {
		t.Fatalf("SendMessage failed: %s", err)
	}
	waitFor(t, "typed message", func() bool { return len(lrec.Received()) > 0 })

	line := lrec.Received()[0]
	i.events.wait()
	if sent := irec.Sent(); len(sent) != 1 || sent[0] != line {
		t.Fatalf("sent %q, received %q", sent, line)
	}
	msg, ok := l.Codec().Decode(line).(*pipemsg.Example)
	if !ok {
		t.Fatalf("received line %q does not decode to an Example", line)
	}
	if msg.ID != 42 {
		t.Fatalf("decoded id = %d, want 42", msg.ID)
	}
}

type unregistered struct{}

func (unregistered) MessageType() string { return "::nobody::" }

func TestSendMessageEncodeError(t *testing.T) {
	_, _, i, irec := connectedPair(t)
	if err := i.SendMessage(unregistered{}); !errors.Is(err, pipemsg.ErrUnknownType) {
		t.Fatalf("SendMessage(unregistered) = %v, want ErrUnknownType", err)
	}
	if err := i.SendMessage(nil); err != nil {
		t.Fatalf("SendMessage(nil) = %v", err)
	}
	i.events.wait()
	if len(irec.Sent()) != 0 {
		t.Fatalf("sent notifications after failed encodes: %q", irec.Sent())
	}
}

func TestSendWhileDisconnected(t *testing.T) {
	c, rec := newChannel(t, Initiator, testConfig(t))
	c.Send("nobody listens")
	if err := c.SendMessage(pipemsg.NewExample(1)); err != nil {
		t.Fatalf("SendMessage while disconnected = %v", err)
	}

	c.Open()
	c.Send("still nobody")
	c.events.wait()
	if len(rec.Sent()) != 0 {
		t.Fatalf("sent notifications while not connected: %q", rec.Sent())
	}
	c.Close()
}

func TestAutoReconnect(t *testing.T) {
	l, lrec, i, irec := connectedPair(t)

	// Kill the listener's stream behind the channel's back.
	_, conn := l.current()
	if conn == nil {
		t.Fatalf("connected listener has no stream")
	}
	conn.Close()

	want := []State{WaitingForConnection, Connected, Disconnected, WaitingForConnection, Connected}
	for name, rec := range map[string]*recorder{"initiator": irec, "listener": lrec} {
		waitFor(t, name+" to reconnect", func() bool { return len(rec.States()) >= len(want) })
		if got := fmt.Sprint(rec.States()[:len(want)]); got != fmt.Sprint(want) {
			t.Fatalf("%s notifications = %s, want %s", name, got, fmt.Sprint(want))
		}
	}
	waitFor(t, "both ends connected", func() bool {
		return l.State() == Connected && i.State() == Connected
	})

	i.Send("after reconnect")
	waitFor(t, "message after reconnect", func() bool { return len(lrec.Received()) > 0 })
}

func TestCloseIsIdempotent(t *testing.T) {
	_, _, i, irec := connectedPair(t)
	i.Close()
	i.Close()
	i.events.wait()
	if n := irec.count(Disconnected); n != 1 {
		t.Fatalf("%d Disconnected notifications, want 1 (%s)", n, irec.States())
	}
	if i.IsOpen() || i.State() != Disconnected {
		t.Fatalf("after Close: open=%v state=%s", i.IsOpen(), i.State())
	}
}

func TestListenerCloseHangsUp(t *testing.T) {
	l, _, i, irec := connectedPair(t)
	l.Close()
	if l.State() != Disconnected {
		t.Fatalf("listener state after Close = %s", l.State())
	}
	waitFor(t, "initiator to notice hang-up", func() bool {
		return irec.count(Disconnected) == 1 && i.State() == WaitingForConnection
	})

	l.Open()
	waitFor(t, "reconnect after reopen", func() bool { return i.State() == Connected })
}

func TestReopenAfterClose(t *testing.T) {
	l, _, i, irec := connectedPair(t)
	i.Close()
	i.Open()
	waitFor(t, "initiator to reconnect", func() bool {
		return i.State() == Connected && l.State() == Connected
	})
	i.Send("again")
	i.events.wait()
	if got := irec.Sent(); len(got) != 1 || got[0] != "again" {
		t.Fatalf("sent notifications = %q", got)
	}
}

func TestMultipleListenerInstances(t *testing.T) {
	cfg := testConfig(t)
	l1, _ := newChannel(t, Listener, cfg)
	l2, _ := newChannel(t, Listener, cfg)
	l1.Open()
	l2.Open()
	time.Sleep(50 * time.Millisecond)

	i, _ := newChannel(t, Initiator, cfg)
	i.Open()
	waitFor(t, "initiator connected", func() bool { return i.State() == Connected })
	waitFor(t, "one listener connected", func() bool {
		return l1.State() == Connected || l2.State() == Connected
	})
	time.Sleep(100 * time.Millisecond)
	if l1.State() == Connected && l2.State() == Connected {
		t.Fatalf("one initiator was accepted by both listener instances")
	}
	waiting := l1
	if l1.State() == Connected {
		waiting = l2
	}
	if waiting.State() != WaitingForConnection {
		t.Fatalf("idle listener instance is %s", waiting.State())
	}

	i2, _ := newChannel(t, Initiator, cfg)
	i2.Open()
	waitFor(t, "second initiator served by the idle instance", func() bool {
		return waiting.State() == Connected && i2.State() == Connected
	})
}

func TestHandlersMayCallBack(t *testing.T) {
	l, _, i, irec := connectedPair(t)
	l.OnMessageReceived(func(text string) {
		l.Send("echo: " + text)
	})
	i.Send("ping")
	waitFor(t, "echo", func() bool {
		got := irec.Received()
		return len(got) == 1 && got[0] == "echo: ping"
	})
}

func TestDispose(t *testing.T) {
	l, lrec, i, _ := connectedPair(t)
	l.events.wait()
	before := len(lrec.States())
	l.Dispose()
	l.Dispose()
	l.events.wait()
	if got := lrec.States(); len(got) != before {
		t.Fatalf("Dispose emitted notifications: %s", got)
	}
	if l.IsOpen() {
		t.Fatalf("disposed channel is open")
	}
	l.Open()
	if l.IsOpen() {
		t.Fatalf("disposed channel reopened")
	}
	waitFor(t, "initiator to notice disposal", func() bool { return i.State() == WaitingForConnection })
}
