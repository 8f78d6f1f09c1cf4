package signal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/core"
)

// CloseAuthFailed is the websocket close code sent when the credential is
// rejected. The close reason starts with "auth_failed".
const CloseAuthFailed = 4001

type Options struct {
	ReadLimit    int64
	PingPeriod   time.Duration
	PongWait     time.Duration
	WriteWait    time.Duration
	SendBuffer   int
	RateLimit    int
	RateInterval time.Duration
	// AllowedOrigins lists extra browser origins (scheme://host[:port])
	// besides the server's own host.
	AllowedOrigins []string
}

func (o Options) withDefaults() Options {
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32768
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 5 * time.Second
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

type SignalWSController struct {
	Orch     *orch.Orchestrator
	Opts     Options
	Limiter  *RateLimiter
	upgrader websocket.Upgrader
}

func NewSignalWSController(o *orch.Orchestrator, opts Options) *SignalWSController {
	opts = opts.withDefaults()
	ctl := &SignalWSController{
		Orch:    o,
		Opts:    opts,
		Limiter: NewRateLimiter(opts.RateLimit, opts.RateInterval),
	}
	ctl.upgrader = websocket.Upgrader{CheckOrigin: ctl.checkOrigin}
	return ctl
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients), same-host origins and the configured allow list. The cookie
// session makes the socket credentialed, so any other page is refused.
func (ctl *SignalWSController) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if strings.EqualFold(u.Host, r.Host) {
		return true
	}
	for _, allowed := range ctl.Opts.AllowedOrigins {
		if strings.EqualFold(strings.TrimSuffix(allowed, "/"), origin) {
			return true
		}
	}
	log.Warn().Str("module", "signal").Str("origin", origin).Str("host", r.Host).Msg("ws origin rejected")
	return false
}

// WsSignalConn queues outbound frames for the write pump. Close stops
// accepting frames; the write pump flushes what is queued and then closes
// the socket.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

var _ core.SignalConnection = (*WsSignalConn)(nil)

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// HandleSignal upgrades the request, authenticates the credential and runs
// the connection until either side closes it.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, w http.ResponseWriter, r *http.Request, credential string) {
	ws, err := ctl.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.Opts.SendBuffer),
	}
	ctx, cancel := context.WithCancel(ctx)

	sid, err := ctl.Orch.Connect(ctx, credential, conn, cancel)
	if err != nil {
		cancel()
		ctl.rejectAuth(ws, err)
		return
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("remote", r.RemoteAddr).Msg("new WS connection")

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, sid, conn)
}

func (ctl *SignalWSController) rejectAuth(ws *websocket.Conn, err error) {
	reason := "auth_failed"
	if !errors.Is(err, core.ErrAuth) {
		reason = "auth_failed: unavailable"
	} else if msg := err.Error(); msg != "" {
		reason = fmt.Sprintf("auth_failed: %s", msg)
	}
	// Close reasons are limited to 123 bytes.
	if len(reason) > 123 {
		reason = reason[:123]
	}
	deadline := time.Now().Add(ctl.Opts.WriteWait)
	msg := websocket.FormatCloseMessage(CloseAuthFailed, reason)
	if werr := ws.WriteControl(websocket.CloseMessage, msg, deadline); werr != nil {
		log.Debug().Err(werr).Str("module", "signal").Msg("write auth close")
	}
	_ = ws.Close()
	log.Info().Str("module", "signal").Str("reason", reason).Msg("ws rejected")
}
