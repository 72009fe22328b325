//go:build windows

package acceptor

import (
	"net"

	"github.com/Microsoft/go-winio"

	"ghostwriter/internal/ghosterr"
)

// ListenLocal opens a named pipe at path (e.g. `\\.\pipe\ghostwriter`),
// fulfilling the "local socket" mode on Windows where Unix domain
// sockets are not the idiomatic choice.
func ListenLocal(path string) (net.Listener, error) {
	ln, err := winio.ListenPipe(path, nil)
	if err != nil {
		return nil, ghosterr.New(ghosterr.KindFileIO, "listen on named pipe "+path, err)
	}
	return ln, nil
}
