//go:build !windows

package pipenet

import (
	"context"
	"io"
	"testing"
	"time"

	pipeshare "github.com/sammck-go/pipechan/share"
)

func testLogger(t *testing.T) pipeshare.Logger {
	return pipeshare.NewNilLogger().Fork("%s", t.Name())
}

func newTestPair(t *testing.T) (*Conn, *Conn) {
	a, b, err := Pair(testLogger(t))
	if err != nil {
		t.Fatalf("Pair() failed: %s", err)
	}
	t.Cleanup(func() {
		a.Close()
		b.Close()
	})
	return a, b
}

func TestConnLines(t *testing.T) {
	a, b := newTestPair(t)

	for _, line := range []string{"hello", "", "::example::body"} {
		if err := a.WriteLine(line); err != nil {
			t.Fatalf("WriteLine(%q) failed: %s", line, err)
		}
		got, err := b.ReadLine()
		if err != nil {
			t.Fatalf("ReadLine() failed: %s", err)
		}
		if got != line {
			t.Fatalf("ReadLine() = %q, want %q", got, line)
		}
	}

	if err := a.WriteLine("windows\r"); err != nil {
		t.Fatalf("WriteLine failed: %s", err)
	}
	if got, _ := b.ReadLine(); got != "windows" {
		t.Fatalf("trailing CR not stripped: %q", got)
	}

	if a.GetNumBytesWritten() != b.GetNumBytesRead() {
		t.Fatalf("byte counts differ: wrote %d, read %d", a.GetNumBytesWritten(), b.GetNumBytesRead())
	}
}

func TestConnDisconnect(t *testing.T) {
	a, b := newTestPair(t)

	if err := a.WriteLine("last"); err != nil {
		t.Fatalf("WriteLine failed: %s", err)
	}
	if err := a.Disconnect(); err != nil {
		t.Fatalf("Disconnect failed: %s", err)
	}
	if got, err := b.ReadLine(); err != nil || got != "last" {
		t.Fatalf("ReadLine() = %q, %v; want data written before Disconnect", got, err)
	}
	if _, err := b.ReadLine(); err != io.EOF {
		t.Fatalf("ReadLine() after peer Disconnect = %v, want EOF", err)
	}
	if b.IsConnected() {
		t.Fatalf("IsConnected true after end of stream")
	}
}

func TestConnClose(t *testing.T) {
	a, b := newTestPair(t)
	if !a.IsConnected() {
		t.Fatalf("fresh Conn not connected")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %s", err)
	}
	if a.IsConnected() {
		t.Fatalf("IsConnected true after Close")
	}
	if err := a.WriteLine("x"); err == nil {
		t.Fatalf("WriteLine on a closed Conn succeeded")
	}
	if _, err := b.ReadLine(); err == nil {
		t.Fatalf("ReadLine from a closed peer succeeded")
	}
}

func TestConnDrainAfterRead(t *testing.T) {
	a, b := newTestPair(t)
	if err := a.WriteLine("ping"); err != nil {
		t.Fatalf("WriteLine failed: %s", err)
	}
	if _, err := b.ReadLine(); err != nil {
		t.Fatalf("ReadLine failed: %s", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.Drain(ctx); err != nil {
		t.Fatalf("Drain after peer read = %v", err)
	}
}
