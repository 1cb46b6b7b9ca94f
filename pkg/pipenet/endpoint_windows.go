//go:build windows

package pipenet

import (
	"context"
	"net"
	"strings"

	winio "github.com/Microsoft/go-winio"
	pipeshare "github.com/sammck-go/pipechan/share"
)

const pipeNamespace = `\\.\pipe\`

// EndpointPath returns the named pipe path for a channel name. dir is ignored;
// names that already carry the pipe namespace are used verbatim.
func EndpointPath(dir, name string) string {
	if strings.HasPrefix(name, pipeNamespace) {
		return name
	}
	return pipeNamespace + name
}

func listenPath(logger pipeshare.Logger, path string) (net.Listener, error) {
	cfg := &winio.PipeConfig{
		InputBufferSize:  65536,
		OutputBufferSize: 65536,
	}
	l, err := winio.ListenPipe(path, cfg)
	if err != nil {
		return nil, logger.Errorf("ListenPipe failed for %q: %s", path, err)
	}
	logger.DLogf("Listening on named pipe %q", path)
	return l, nil
}

func dialPath(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

// endpointWatcher is not available for the pipe namespace; initiators poll.
type endpointWatcher struct{}

func newEndpointWatcher(logger pipeshare.Logger, path string) *endpointWatcher {
	return nil
}

func (w *endpointWatcher) Changed() <-chan struct{} {
	return nil
}

func (w *endpointWatcher) Close() {}
