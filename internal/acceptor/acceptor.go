// Package acceptor serializes incoming connections into at most one
// active session: it runs the WebSocket upgrade, the Hello/Auth
// handshake, and a rolling-window rate limit before handing a live
// connection to the caller's session handler.
package acceptor

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/argon2"

	"ghostwriter/internal/ghosterr"
	"ghostwriter/internal/protocol"
	"ghostwriter/internal/transport"
)

// PasswordHash is a parsed argon2id hash as produced by HashPassword.
// The yaml tags let internal/config persist it directly inside a
// session config file; yaml.v3 encodes []byte fields as base64.
type PasswordHash struct {
	Salt    []byte `yaml:"salt"`
	Hash    []byte `yaml:"hash"`
	Time    uint32 `yaml:"time"`
	Memory  uint32 `yaml:"memory"`
	Threads uint8  `yaml:"threads"`
}

// HashPassword derives a PasswordHash for secret using fixed,
// conservative argon2id parameters. Intended for use by the
// configuration layer when a server operator sets a password.
func HashPassword(secret string, salt []byte) PasswordHash {
	const (
		timeCost   = 1
		memoryCost = 64 * 1024
		threads    = 4
		keyLen     = 32
	)
	hash := argon2.IDKey([]byte(secret), salt, timeCost, memoryCost, threads, keyLen)
	return PasswordHash{Salt: salt, Hash: hash, Time: timeCost, Memory: memoryCost, Threads: threads}
}

// Verify reports whether secret matches the stored hash.
func (p PasswordHash) Verify(secret string) bool {
	candidate := argon2.IDKey([]byte(secret), p.Salt, p.Time, p.Memory, p.Threads, uint32(len(p.Hash)))
	if len(candidate) != len(p.Hash) {
		return false
	}
	var diff byte
	for i := range candidate {
		diff |= candidate[i] ^ p.Hash[i]
	}
	return diff == 0
}

// Config governs handshake policy.
type Config struct {
	// Password is nil when the server requires no Auth step.
	Password     *PasswordHash
	RateLimitN   int
	RateLimitW   time.Duration
	PingInterval time.Duration
}

// DefaultConfig returns the operational defaults suggested by the
// acceptor's handshake contract: a modest rate limit and a heartbeat
// interval with comfortable margin against typical RTT.
func DefaultConfig() Config {
	return Config{
		RateLimitN:   3,
		RateLimitW:   2 * time.Second,
		PingInterval: 50 * time.Millisecond,
	}
}

// SessionHandler runs a connection's session loop once the handshake
// has completed. It owns reading from t.Recv() and writing frames via
// t.Send() until the connection ends.
type SessionHandler func(t *transport.Transport, hello protocol.Hello)

// Acceptor admits at most one live session at a time over TCP or a
// local socket.
type Acceptor struct {
	cfg     Config
	limiter *RateLimiter

	mu   sync.Mutex
	busy bool

	upgrader websocket.Upgrader
}

// New returns an Acceptor governed by cfg.
func New(cfg Config) *Acceptor {
	if cfg.RateLimitN <= 0 {
		cfg.RateLimitN = DefaultConfig().RateLimitN
	}
	if cfg.RateLimitW <= 0 {
		cfg.RateLimitW = DefaultConfig().RateLimitW
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultConfig().PingInterval
	}
	return &Acceptor{
		cfg:     cfg,
		limiter: NewRateLimiter(cfg.RateLimitN, cfg.RateLimitW),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve runs an HTTP server over ln, upgrading every request to a
// WebSocket connection and running the handshake state machine before
// invoking handle. It blocks until ln is closed.
func (a *Acceptor) Serve(ln net.Listener, handle SessionHandler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		a.handleConnection(w, r, handle)
	})
	server := &http.Server{Handler: mux}
	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return ghosterr.New(ghosterr.KindFileIO, "acceptor serve", err)
}

func (a *Acceptor) handleConnection(w http.ResponseWriter, r *http.Request, handle SessionHandler) {
	if !a.limiter.Allow(time.Now()) {
		a.rejectPreUpgrade(w, r, protocol.ErrorRateLimit, "retry after window elapses")
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[acceptor] upgrade failed", "error", err)
		return
	}
	t := transport.New(conn, a.cfg.PingInterval)

	if !a.tryAcquire() {
		a.sendError(t, protocol.ErrorBusy, "busy")
		_ = t.Close()
		return
	}
	defer a.release()

	hello, ok := a.expectHello(t)
	if !ok {
		_ = t.Close()
		return
	}

	if a.cfg.Password != nil {
		if !a.expectAuth(t) {
			_ = t.Close()
			return
		}
	}

	handle(t, hello)
	_ = t.Close()
}

func (a *Acceptor) tryAcquire() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		return false
	}
	a.busy = true
	return true
}

func (a *Acceptor) release() {
	a.mu.Lock()
	a.busy = false
	a.mu.Unlock()
}

func (a *Acceptor) expectHello(t *transport.Transport) (protocol.Hello, bool) {
	select {
	case raw, ok := <-t.Recv():
		if !ok {
			return protocol.Hello{}, false
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil || env.Type != protocol.TypeHello {
			a.sendError(t, protocol.ErrorProtocol, "expected Hello")
			return protocol.Hello{}, false
		}
		hello, err := protocol.DecodeHello(env.Data)
		if err != nil {
			a.sendError(t, protocol.ErrorProtocol, "malformed Hello")
			return protocol.Hello{}, false
		}
		return hello, true
	case <-time.After(10 * time.Second):
		return protocol.Hello{}, false
	}
}

func (a *Acceptor) expectAuth(t *transport.Transport) bool {
	select {
	case raw, ok := <-t.Recv():
		if !ok {
			return false
		}
		env, err := protocol.DecodeEnvelope(raw)
		if err != nil || env.Type != protocol.TypeAuth {
			a.sendError(t, protocol.ErrorProtocol, "expected Auth")
			return false
		}
		auth, err := protocol.DecodeAuth(env.Data)
		if err != nil || !a.cfg.Password.Verify(auth.Secret) {
			a.sendError(t, protocol.ErrorUnauthorized, "bad credentials")
			return false
		}
		return true
	case <-time.After(10 * time.Second):
		return false
	}
}

func (a *Acceptor) sendError(t *transport.Transport, code protocol.ErrorCode, msg string) {
	env := protocol.Envelope{
		Version: protocol.Version,
		Type:    protocol.TypeError,
		Data:    protocol.EncodeError(protocol.ErrorPayload{Code: code, Message: msg}),
	}
	if err := t.Send(protocol.EncodeEnvelope(env)); err != nil {
		slog.Debug("[acceptor] failed to send error envelope", "error", err)
	}
}

// rejectPreUpgrade replies to a rate-limited connection attempt before
// the WebSocket handshake completes, since by definition it must not be
// allowed to reach the session gate.
func (a *Acceptor) rejectPreUpgrade(w http.ResponseWriter, r *http.Request, code protocol.ErrorCode, msg string) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	t := transport.New(conn, a.cfg.PingInterval)
	a.sendError(t, code, msg)
	_ = t.Close()
}
