// Package transport wraps one WebSocket connection with the framing,
// heartbeat, and back-pressure rules the editing core depends on: a
// reader goroutine forwards binary frames and answers pings, a pinger
// goroutine ticks Ping frames on a fixed interval, and last_pong is kept
// for callers above this package to judge peer liveness.
package transport

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ghostwriter/internal/ghosterr"
)

// writeDeadline bounds a single WebSocket write; a connection that
// cannot absorb a frame within this window is treated as dead.
const writeDeadline = 5 * time.Second

// Transport owns the lifetime of one *websocket.Conn: reading, writing,
// and heartbeat are all serialized through it.
//
// Lock ordering: writeMu is independent of pongMu; neither is held while
// acquiring the other.
type Transport struct {
	conn *websocket.Conn

	writeMu sync.Mutex

	pongMu   sync.Mutex
	lastPong time.Time

	recv chan []byte
	done chan struct{}

	closeOnce sync.Once
}

// New wraps conn and starts its reader and pinger goroutines. pingInterval
// is the fixed delay between server-initiated Ping frames.
func New(conn *websocket.Conn, pingInterval time.Duration) *Transport {
	t := &Transport{
		conn:     conn,
		lastPong: time.Now(),
		recv:     make(chan []byte, 8),
		done:     make(chan struct{}),
	}
	conn.SetPongHandler(func(string) error {
		t.pongMu.Lock()
		t.lastPong = time.Now()
		t.pongMu.Unlock()
		return nil
	})
	go t.readLoop()
	go t.pingLoop(pingInterval)
	return t
}

// Send writes a Binary frame. Safe for concurrent use with Send, Close,
// and the internal pinger.
func (t *Transport) Send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		return ghosterr.New(ghosterr.KindTimeout, "set write deadline", err)
	}
	if err := t.conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return ghosterr.New(ghosterr.KindTimeout, "write binary frame", err)
	}
	return nil
}

// Recv returns the channel of forwarded binary payloads. It is closed
// when the reader loop exits (peer close, read error, or Close).
func (t *Transport) Recv() <-chan []byte { return t.recv }

// LastPong returns the instant of the most recently observed Pong,
// initialized to construction time.
func (t *Transport) LastPong() time.Time {
	t.pongMu.Lock()
	defer t.pongMu.Unlock()
	return t.lastPong
}

// Close shuts down the underlying connection and halts both goroutines.
// Safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		err = t.conn.Close()
	})
	return err
}

func (t *Transport) readLoop() {
	defer close(t.recv)
	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			select {
			case t.recv <- data:
			case <-t.done:
				return
			}
		case websocket.PingMessage:
			t.writeMu.Lock()
			_ = t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = t.conn.WriteMessage(websocket.PongMessage, data)
			t.writeMu.Unlock()
		case websocket.CloseMessage:
			return
		}
	}
}

func (t *Transport) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			setErr := t.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			var sendErr error
			if setErr == nil {
				sendErr = t.conn.WriteMessage(websocket.PingMessage, nil)
			}
			t.writeMu.Unlock()
			if setErr != nil || sendErr != nil {
				slog.Debug("[transport] ping failed, connection likely dead")
				return
			}
		}
	}
}
