// Command ghostwriter is the CLI entry point: local mode runs a session
// in-process against the controlling terminal, server mode listens for
// one remote editor client, and connect mode dials a running server.
// This file is glue only — it wires channels between session, acceptor,
// and transport, and contains no editing logic of its own.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"

	"ghostwriter/internal/acceptor"
	"ghostwriter/internal/config"
	"ghostwriter/internal/keymap"
	"ghostwriter/internal/protocol"
	"ghostwriter/internal/session"
	"ghostwriter/internal/termio"
	"ghostwriter/internal/transport"
	"ghostwriter/internal/viewport"
)

const (
	exitOK        = 0
	exitConfigErr = 1
	exitRuntime   = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return exitConfigErr
	}

	mode, rest := args[0], args[1:]
	switch mode {
	case "local":
		return runLocal(rest)
	case "server":
		return runServer(rest)
	case "connect":
		return runConnect(rest)
	default:
		usage()
		return exitConfigErr
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ghostwriter local <path> | server -file path [-listen addr] [-socket path] [-password secret] [-config path] | connect <ws-url> [-secret s]")
}

// runLocal launches an in-process session over path and drives it from
// the controlling terminal until Ctrl+Q or EOF.
func runLocal(args []string) int {
	if len(args) < 1 {
		usage()
		return exitConfigErr
	}
	path := args[0]

	s, err := session.Open(path, path+".wal", session.DefaultConfig())
	if err != nil {
		slog.Error("[main] failed to open session", "path", path, "error", err)
		return exitConfigErr
	}

	rawState, err := termio.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		slog.Error("[main] failed to set raw terminal mode", "error", err)
		return exitRuntime
	}
	defer termio.Restore(rawState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	go renderLoop(ctx, s)
	go drainAcks(ctx, s)

	s.Cmds() <- session.Cmd{Kind: session.CmdRequestFrame, Reason: "initial"}

	decoder := termio.NewDecoder(os.Stdin)
	exitCode := exitOK
loop:
	for {
		select {
		case <-sig:
			break loop
		default:
		}

		ev, err := decoder.Next()
		if err != nil {
			if errors.Is(err, termio.ErrQuit) {
				break loop
			}
			slog.Warn("[main] terminal input closed", "error", err)
			break loop
		}
		cmd, ok := keymap.Map(ev)
		if !ok {
			continue
		}
		if sendCmd, ok2 := toSessionCmd(cmd); ok2 {
			s.Cmds() <- sendCmd
		}
	}

	cancel()
	<-done
	return exitCode
}

func toSessionCmd(cmd keymap.Command) (session.Cmd, bool) {
	switch cmd.Kind {
	case keymap.CmdInsert:
		return session.Cmd{Kind: session.CmdInsert, Text: cmd.Text}, true
	case keymap.CmdDeletePrev:
		return session.Cmd{Kind: session.CmdDeletePrev}, true
	case keymap.CmdDeleteNext:
		return session.Cmd{Kind: session.CmdDeleteNext}, true
	case keymap.CmdMove:
		return session.Cmd{Kind: session.CmdMove, Dir: cmd.Dir}, true
	case keymap.CmdSelect:
		return session.Cmd{Kind: session.CmdSelect, Dir: cmd.Dir}, true
	default:
		return session.Cmd{}, false
	}
}

// drainAcks discards Acks in local mode, where there is no remote client
// to reconcile against; it exists only so Session.Acks() never fills up
// and back-pressures the actor loop (Session.Acks' doc comment).
func drainAcks(ctx context.Context, s *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-s.Acks():
			if !ok {
				return
			}
		}
	}
}

// renderLoop drains frames from s and paints them to the terminal until
// ctx is cancelled.
func renderLoop(ctx context.Context, s *session.Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-s.Frames():
			if !ok {
				return
			}
			paint(frame)
		}
	}
}

// paint draws a Frame with the minimal ANSI this CLI glue owns: clear,
// home cursor, print each line, position the primary caret. A real
// renderer (syntax-aware, multi-cursor) is an external collaborator.
func paint(f viewport.Frame) {
	var b strings.Builder
	b.WriteString("\x1b[2J\x1b[H")
	for _, line := range f.Lines {
		b.WriteString(line.Text)
		b.WriteString("\r\n")
	}
	b.WriteString(f.StatusLeft)
	if f.StatusRight != "" {
		b.WriteString("  ")
		b.WriteString(f.StatusRight)
	}
	if len(f.Cursors) > 0 {
		c := f.Cursors[0]
		fmt.Fprintf(&b, "\x1b[%d;%dH", c.Line+1, c.Col+1)
	}
	os.Stdout.WriteString(b.String())
}

// runServer starts the acceptor, loading listen address, password, and
// heartbeat/rate-limit parameters from the config file (or -listen/
// -socket/-password flag overrides), then blocks serving one client at a
// time, each driving a fresh in-process session over -file.
func runServer(args []string) int {
	var listenAddr, socketPath, password, filePath, configPath string
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-listen":
			i++
			listenAddr = argAt(args, i)
		case "-socket":
			i++
			socketPath = argAt(args, i)
		case "-password":
			i++
			password = argAt(args, i)
		case "-file":
			i++
			filePath = argAt(args, i)
		case "-config":
			i++
			configPath = argAt(args, i)
		default:
			usage()
			return exitConfigErr
		}
	}
	if filePath == "" {
		fmt.Fprintln(os.Stderr, "server mode requires -file <path>")
		return exitConfigErr
	}
	if configPath == "" {
		configPath = config.DefaultPath()
	}

	cfg, err := config.EnsureFile(configPath)
	if err != nil {
		slog.Error("[main] failed to load config", "path", configPath, "error", err)
		return exitConfigErr
	}
	for _, w := range config.ConsumeDefaultPathWarnings() {
		slog.Warn("[main] " + w)
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
		cfg.LocalSocketPath = ""
	}
	if socketPath != "" {
		cfg.LocalSocketPath = socketPath
		cfg.ListenAddr = ""
	}
	if password != "" {
		hash := acceptor.HashPassword(password, randomSalt())
		cfg.Password = &hash
	}

	acceptorCfg := acceptor.Config{
		Password:     cfg.Password,
		RateLimitN:   cfg.RateLimitN,
		RateLimitW:   cfg.RateLimitWindow(),
		PingInterval: cfg.PingInterval(),
	}
	a := acceptor.New(acceptorCfg)

	ln, err := listenFor(cfg)
	if err != nil {
		slog.Error("[main] failed to listen", "error", err)
		return exitConfigErr
	}
	defer ln.Close()
	slog.Info("[main] server listening", "addr", ln.Addr().String())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		ln.Close()
	}()

	handle := func(t *transport.Transport, hello protocol.Hello) {
		serveSession(ctx, t, hello, filePath, cfg)
	}
	if err := a.Serve(ln, handle); err != nil {
		slog.Error("[main] serve error", "error", err)
		return exitRuntime
	}
	return exitOK
}

func listenFor(cfg config.Config) (net.Listener, error) {
	if cfg.LocalSocketPath != "" {
		return acceptor.ListenLocal(cfg.LocalSocketPath)
	}
	return net.Listen("tcp", cfg.ListenAddr)
}

// serveSession drives one accepted connection's editing session: decode
// client commands off the transport, execute them against a fresh
// session.Session, and push frames/acks back until the socket closes.
func serveSession(ctx context.Context, t *transport.Transport, _ protocol.Hello, filePath string, cfg config.Config) {
	sessCfg := session.Config{
		DebounceDelay:       cfg.DebounceDelay(),
		WALCompactThreshold: cfg.WALCompactThreshold,
	}
	s, err := session.Open(filePath, filePath+".wal", sessCfg)
	if err != nil {
		sendError(t, protocol.ErrorProtocol, "failed to open file")
		return
	}

	sessCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				slog.Error("[main] session panicked", "panic", r)
				cancel()
			}
		}()
		s.Run(sessCtx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	go func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case frame, ok := <-s.Frames():
				if !ok {
					return
				}
				env := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeFrame, Data: protocol.EncodeFrame(frame)}
				if err := t.Send(protocol.EncodeEnvelope(env)); err != nil {
					return
				}
			}
		}
	}()

	go func() {
		for {
			select {
			case <-sessCtx.Done():
				return
			case ack, ok := <-s.Acks():
				if !ok {
					return
				}
				env := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeAck, Data: protocol.EncodeAck(ack)}
				if err := t.Send(protocol.EncodeEnvelope(env)); err != nil {
					return
				}
			}
		}
	}()

	for {
		select {
		case <-sessCtx.Done():
			return
		case raw, ok := <-t.Recv():
			if !ok {
				return
			}
			cmd, ok := decodeClientCommand(raw)
			if !ok {
				sendError(t, protocol.ErrorProtocol, "malformed envelope")
				continue
			}
			s.Cmds() <- cmd
		}
	}
}

func decodeClientCommand(raw []byte) (session.Cmd, bool) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		return session.Cmd{}, false
	}
	switch env.Type {
	case protocol.TypeInsert:
		ins, err := protocol.DecodeInsert(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdInsert, Text: ins.Text, Seq: ins.Seq}, true
	case protocol.TypeDelete:
		del, err := protocol.DecodeDelete(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdDeleteRange, Start: int(del.Start), End: int(del.End), Seq: del.Seq}, true
	case protocol.TypeMove:
		mv, err := protocol.DecodeMove(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdMove, Dir: mv.Dir}, true
	case protocol.TypeSelect:
		sel, err := protocol.DecodeSelect(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdSelect, Dir: sel.Dir}, true
	case protocol.TypeResize:
		rz, err := protocol.DecodeResize(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdResize, Cols: int(rz.Cols), Rows: int(rz.Rows)}, true
	case protocol.TypeRequestFrame:
		rf, err := protocol.DecodeRequestFrame(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		return session.Cmd{Kind: session.CmdRequestFrame, Reason: rf.Reason}, true
	case protocol.TypeDeleteDir:
		dd, err := protocol.DecodeDeleteDir(env.Data)
		if err != nil {
			return session.Cmd{}, false
		}
		switch dd.Dir {
		case protocol.DirLeft:
			return session.Cmd{Kind: session.CmdDeletePrev, Seq: dd.Seq}, true
		case protocol.DirRight:
			return session.Cmd{Kind: session.CmdDeleteNext, Seq: dd.Seq}, true
		default:
			return session.Cmd{}, false
		}
	case protocol.TypeSave:
		return session.Cmd{Kind: session.CmdSave}, true
	default:
		return session.Cmd{}, false
	}
}

func sendError(t *transport.Transport, code protocol.ErrorCode, msg string) {
	env := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeError, Data: protocol.EncodeError(protocol.ErrorPayload{Code: code, Message: msg})}
	_ = t.Send(protocol.EncodeEnvelope(env))
}

// runConnect dials url, runs the Hello/Auth handshake, requests an
// initial frame, and then mirrors runLocal's terminal loop over the
// remote session.
func runConnect(args []string) int {
	if len(args) < 1 {
		usage()
		return exitConfigErr
	}
	url := args[0]
	var secret string
	for i := 1; i < len(args); i++ {
		if args[i] == "-secret" {
			i++
			secret = argAt(args, i)
		}
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		slog.Error("[main] dial failed", "url", url, "error", err)
		return exitRuntime
	}
	t := transport.New(conn, 50*time.Millisecond)
	defer t.Close()

	helloEnv := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeHello, Data: protocol.EncodeHello(protocol.Hello{ClientName: "ghostwriter-cli"})}
	if err := t.Send(protocol.EncodeEnvelope(helloEnv)); err != nil {
		slog.Error("[main] hello failed", "error", err)
		return exitRuntime
	}

	if secret != "" {
		authEnv := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeAuth, Data: protocol.EncodeAuth(protocol.Auth{Secret: secret})}
		if err := t.Send(protocol.EncodeEnvelope(authEnv)); err != nil {
			slog.Error("[main] auth failed", "error", err)
			return exitRuntime
		}
	}

	reqEnv := protocol.Envelope{Version: protocol.Version, Type: protocol.TypeRequestFrame, Data: protocol.EncodeRequestFrame(protocol.RequestFrame{Reason: "initial"})}
	if err := t.Send(protocol.EncodeEnvelope(reqEnv)); err != nil {
		slog.Error("[main] initial request failed", "error", err)
		return exitRuntime
	}

	rawState, err := termio.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		slog.Error("[main] failed to set raw terminal mode", "error", err)
		return exitRuntime
	}
	defer termio.Restore(rawState)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-t.Recv():
				if !ok {
					return
				}
				handleServerEnvelope(raw)
			}
		}
	}()

	decoder := termio.NewDecoder(os.Stdin)
	var seq uint32
	for {
		ev, err := decoder.Next()
		if err != nil {
			if !errors.Is(err, termio.ErrQuit) {
				slog.Warn("[main] terminal input closed", "error", err)
			}
			return exitOK
		}
		cmd, ok := keymap.Map(ev)
		if !ok {
			continue
		}
		if cmd.Kind == keymap.CmdInsert || cmd.Kind == keymap.CmdDeletePrev || cmd.Kind == keymap.CmdDeleteNext {
			seq++
		}
		if err := sendClientCommand(t, cmd, seq); err != nil {
			slog.Error("[main] send failed", "error", err)
			return exitRuntime
		}
	}
}

func handleServerEnvelope(raw []byte) {
	env, err := protocol.DecodeEnvelope(raw)
	if err != nil {
		return
	}
	switch env.Type {
	case protocol.TypeFrame:
		frame, err := protocol.DecodeFrame(env.Data)
		if err == nil {
			paint(frame)
		}
	case protocol.TypeAck:
		ack, err := protocol.DecodeAck(env.Data)
		if err == nil {
			slog.Debug("[main] ack", "seq", ack.Seq, "doc_version", ack.DocVersion)
		}
	case protocol.TypeError:
		payload, err := protocol.DecodeError(env.Data)
		if err == nil {
			slog.Warn("[main] server error", "code", payload.Code.String(), "message", payload.Message)
		}
	}
}

// sendClientCommand encodes cmd as its wire envelope. seq is stamped on
// Insert/DeleteDir so the matching Ack can be reconciled against this
// command; it is ignored for commands with no Ack (Move/Select).
func sendClientCommand(t *transport.Transport, cmd keymap.Command, seq uint32) error {
	var env protocol.Envelope
	switch cmd.Kind {
	case keymap.CmdInsert:
		env = protocol.Envelope{Version: protocol.Version, Type: protocol.TypeInsert, Data: protocol.EncodeInsert(protocol.Insert{Text: cmd.Text, Seq: seq})}
	case keymap.CmdDeletePrev:
		env = protocol.Envelope{Version: protocol.Version, Type: protocol.TypeDeleteDir, Data: protocol.EncodeDeleteDir(protocol.DeleteDir{Dir: protocol.DirLeft, Seq: seq})}
	case keymap.CmdDeleteNext:
		env = protocol.Envelope{Version: protocol.Version, Type: protocol.TypeDeleteDir, Data: protocol.EncodeDeleteDir(protocol.DeleteDir{Dir: protocol.DirRight, Seq: seq})}
	case keymap.CmdMove:
		env = protocol.Envelope{Version: protocol.Version, Type: protocol.TypeMove, Data: protocol.EncodeMove(protocol.Move{Dir: cmd.Dir})}
	case keymap.CmdSelect:
		env = protocol.Envelope{Version: protocol.Version, Type: protocol.TypeSelect, Data: protocol.EncodeSelect(protocol.Select{Dir: cmd.Dir})}
	default:
		return nil
	}
	return t.Send(protocol.EncodeEnvelope(env))
}

func argAt(args []string, i int) string {
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

func randomSalt() []byte {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		slog.Warn("[main] weak salt source", "error", err)
	}
	return salt
}
