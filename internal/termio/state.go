// Package termio puts the controlling terminal into raw mode for local
// editor sessions and decodes its byte stream into keymap.Event values.
// The actual screen layout is a renderer concern outside this module;
// termio only owns the raw-mode toggle and the escape-sequence decoder
// that both a local terminal and a WebSocket-connected client need.
package termio

// State is an opaque handle returned by MakeRaw; pass it to Restore to
// put the terminal back the way MakeRaw found it.
type State struct {
	inner any
}

// Restore undoes MakeRaw. Safe to call once per successful MakeRaw.
func Restore(s *State) error {
	return restore(s)
}
