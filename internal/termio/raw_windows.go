//go:build windows

package termio

import "golang.org/x/sys/windows"

type windowsState struct {
	handle windows.Handle
	saved  uint32
}

// MakeRaw disables line-input, echo, and processed-input console modes
// so raw key bytes reach the decoder, mirroring the unix cbreak setup.
func MakeRaw(fd int) (*State, error) {
	handle := windows.Handle(fd)
	var saved uint32
	if err := windows.GetConsoleMode(handle, &saved); err != nil {
		return nil, err
	}
	raw := saved &^ (windows.ENABLE_LINE_INPUT | windows.ENABLE_ECHO_INPUT | windows.ENABLE_PROCESSED_INPUT)
	if err := windows.SetConsoleMode(handle, raw); err != nil {
		return nil, err
	}
	return &State{inner: &windowsState{handle: handle, saved: saved}}, nil
}

func restore(s *State) error {
	ws := s.inner.(*windowsState)
	return windows.SetConsoleMode(ws.handle, ws.saved)
}
