//go:build !windows

package acceptor

import (
	"net"
	"os"

	"ghostwriter/internal/ghosterr"
)

// ListenLocal opens a Unix domain socket at path, removing a stale
// socket file left behind by a prior unclean exit.
func ListenLocal(path string) (net.Listener, error) {
	if _, err := os.Stat(path); err == nil {
		_ = os.Remove(path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, ghosterr.New(ghosterr.KindFileIO, "listen on local socket "+path, err)
	}
	return ln, nil
}
