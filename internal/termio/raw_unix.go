//go:build !windows

package termio

import (
	"golang.org/x/sys/unix"
)

// unixState holds the termios snapshot restored by Restore.
type unixState struct {
	fd   int
	saved unix.Termios
}

// MakeRaw puts fd (normally os.Stdin.Fd()) into cbreak mode: no line
// buffering, no echo, signals and special characters passed through
// raw so the keymap decoder sees every byte the terminal produces.
func MakeRaw(fd int) (*State, error) {
	saved, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return nil, err
	}
	raw := *saved
	raw.Iflag &^= unix.IXON | unix.ICRNL | unix.BRKINT | unix.INPCK | unix.ISTRIP
	raw.Oflag &^= unix.OPOST
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.IEXTEN | unix.ISIG
	raw.Cflag |= unix.CS8
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, &raw); err != nil {
		return nil, err
	}
	return &State{inner: &unixState{fd: fd, saved: *saved}}, nil
}

func restore(s *State) error {
	us := s.inner.(*unixState)
	return unix.IoctlSetTermios(us.fd, ioctlSetTermios, &us.saved)
}
