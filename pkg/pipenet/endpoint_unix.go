//go:build !windows

package pipenet

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	pipeshare "github.com/sammck-go/pipechan/share"
)

// EndpointPrefix is prepended to a channel name to form the socket file name.
const EndpointPrefix = "CoreFxPipe_"

// EndpointPath returns the unix domain socket path for a channel name. Absolute
// names are used verbatim; other names live in dir (os.TempDir() if dir is "").
func EndpointPath(dir, name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, EndpointPrefix+name)
}

func listenPath(logger pipeshare.Logger, path string) (net.Listener, error) {
	return NewLockedUnixSocketListener(logger, path)
}

func dialPath(ctx context.Context, path string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, "unix", path)
}

// endpointWatcher signals when the socket file for a path is (re)created, so a
// waiting initiator can retry immediately instead of at its next backoff tick.
type endpointWatcher struct {
	pipeshare.Logger
	path    string
	fsw     *fsnotify.Watcher
	changed chan struct{}
	done    chan struct{}
}

func newEndpointWatcher(logger pipeshare.Logger, path string) *endpointWatcher {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.DLogf("fsnotify unavailable, polling only: %s", err)
		return nil
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		logger.DLogf("Cannot watch %q, polling only: %s", filepath.Dir(path), err)
		fsw.Close()
		return nil
	}
	w := &endpointWatcher{
		Logger:  logger,
		path:    path,
		fsw:     fsw,
		changed: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *endpointWatcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || !event.Has(fsnotify.Create) {
				continue
			}
			w.TLogf("endpoint created: %s", event.Name)
			select {
			case w.changed <- struct{}{}:
			default:
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.DLogf("endpoint watcher error: %s", err)
		}
	}
}

// Changed returns a channel that receives a value after the endpoint is created.
// A nil watcher never signals.
func (w *endpointWatcher) Changed() <-chan struct{} {
	if w == nil {
		return nil
	}
	return w.changed
}

func (w *endpointWatcher) Close() {
	if w == nil {
		return
	}
	w.fsw.Close()
	<-w.done
}
