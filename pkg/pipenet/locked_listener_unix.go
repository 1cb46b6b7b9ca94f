//go:build !windows

package pipenet

import (
	"net"
	"os"
	"path/filepath"
	"sync"

	pipeshare "github.com/sammck-go/pipechan/share"
	"golang.org/x/sys/unix"
)

// LockedUnixSocketListener is a wrapper around a unix domain socket listener
// that holds a flock-style lock on a parallel ".lock" file. The lock tells a live
// listener (in another process) apart from an orphaned socket file left behind by
// a crash, which is removed.
type LockedUnixSocketListener struct {
	pipeshare.Logger
	lock         sync.Mutex
	path         string
	lockPath     string
	lockFd       *os.File
	unixListener *net.UnixListener
	closed       bool
	closeErr     error
	done         chan struct{}
}

// NewLockedUnixSocketListener listens on a unix domain socket at path after
// creating and locking "<path>.lock". It fails if another process holds the lock.
func NewLockedUnixSocketListener(logger pipeshare.Logger, path string) (*LockedUnixSocketListener, error) {
	l := &LockedUnixSocketListener{
		Logger: logger.Fork("LockedUnixSocketListener(%q)", path),
		done:   make(chan struct{}),
	}
	if path == "" {
		return nil, l.Errorf("Empty unix domain socket path")
	}
	abspath, err := filepath.Abs(path)
	if err != nil {
		return nil, l.Errorf("Invalid unix domain socket pathname %q: %s", path, err)
	}
	l.path = abspath
	l.lockPath = abspath + ".lock"

	info, err := os.Stat(abspath)
	if err != nil && !os.IsNotExist(err) {
		return nil, l.Errorf("Could not stat unix domain socket pathname %q: %s", abspath, err)
	}
	if info != nil && (info.Mode()&os.ModeSocket) == 0 {
		return nil, l.Errorf("Path %q exists and is not a unix domain socket", abspath)
	}

	lockFd, err := os.OpenFile(l.lockPath, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return nil, l.Errorf("Unable to open unix domain socket lockfile %q: %s", l.lockPath, err)
	}
	err = unix.Flock(int(lockFd.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		lockFd.Close()
		return nil, l.Errorf("Unix domain socket in use (lockfile %q is locked): %s", l.lockPath, err)
	}
	l.lockFd = lockFd

	if info != nil {
		l.DLogf("Removing orphaned unix domain socket %q", abspath)
		if err := os.Remove(abspath); err != nil && !os.IsNotExist(err) {
			l.Close()
			return nil, l.Errorf("Unable to remove orphaned unix domain socket %q: %s", abspath, err)
		}
	}

	unixListener, err := net.ListenUnix("unix", &net.UnixAddr{Name: abspath, Net: "unix"})
	if err != nil {
		l.Close()
		return nil, l.Errorf("Unix domain socket listen failed for path %q: %s", abspath, err)
	}
	// the socket file is removed explicitly in Close, after the lock is checked
	unixListener.SetUnlinkOnClose(false)
	l.unixListener = unixListener
	l.DLogf("Listening on unix domain socket path %q", abspath)
	return l, nil
}

// Close implements net.Listener Close method, releasing the socket lockfile
// after closing the listen socket
func (l *LockedUnixSocketListener) Close() error {
	l.lock.Lock()
	closed := l.closed
	l.closed = true
	l.lock.Unlock()

	if closed {
		<-l.done
		return l.closeErr
	}

	var ucloseErr error
	var unlockErr error
	if l.unixListener != nil {
		os.Remove(l.path)
		ucloseErr = l.unixListener.Close()
	}
	if l.lockFd != nil {
		// Remove the lockfile before releasing the lock; a new listener may
		// immediately recreate and claim it.
		os.Remove(l.lockPath)
		err := unix.Flock(int(l.lockFd.Fd()), unix.LOCK_UN)
		if err != nil {
			l.lockFd.Close()
			unlockErr = l.DLogErrorf("Unlock of lockfile %q failed: %s", l.lockPath, err)
		} else if err = l.lockFd.Close(); err != nil {
			unlockErr = l.DLogErrorf("Close of lockfile %q failed: %s", l.lockPath, err)
		}
	}
	l.closeErr = ucloseErr
	if l.closeErr == nil {
		l.closeErr = unlockErr
	}
	close(l.done)
	return l.closeErr
}

func (l *LockedUnixSocketListener) String() string {
	return l.Logger.Prefix()
}

// Accept implements net.Listener Accept method, delegating to the unix listen socket
func (l *LockedUnixSocketListener) Accept() (net.Conn, error) {
	return l.unixListener.Accept()
}

// Addr implements net.Listener Addr method, delegating to the unix listen socket
func (l *LockedUnixSocketListener) Addr() net.Addr {
	return l.unixListener.Addr()
}
