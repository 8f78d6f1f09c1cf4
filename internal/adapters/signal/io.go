package signal

import (
	"context"
	"encoding/json"
	"errors"
	"runtime/debug"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
)

// Inbound event types.
const (
	InPing               = "ping"
	InWhoAmI             = "whoami"
	InJoinTextChannel    = "join-text-channel"
	InSendChatMessage    = "send-chat-message"
	InJoinVoiceRoom      = "join-voice-room"
	InLeaveVoiceRoom     = "leave-voice-room"
	InSetVoiceState      = "set-voice-state"
	InSignalingOffer     = "signaling-offer"
	InSignalingAnswer    = "signaling-answer"
	InSignalingICE       = "signaling-ice"
	InSendDirect         = "send-direct-message"
	InGetDirect          = "get-direct-messages"
	InAdminKick          = "admin-kick"
	InAdminDisconnect    = "admin-disconnect"
	InAdminCreate        = "admin-create-channel"
	InAdminDelete        = "admin-delete-channel"
	InAdminDeleteMessage = "admin-delete-message"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.Opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.Opts.WriteWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Msg("writePump ping")
				return
			}
		}
	}
}

// readPump handles one session's events in order. Its exit is the single
// place a session is torn down.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sid core.SessionID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("readPump closing")
		ctl.Orch.OnDisconnect(sid)
		ctl.Limiter.Forget(sid)
		c.Close()
		cancel()
	}()

	c.conn.SetReadLimit(ctl.Opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.Opts.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("sid", string(sid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					log.Warn().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("readPump read error")
				}
				return
			}
			ctl.handleSignal(ctx, sid, data)
		}
	}
}

type envelope struct {
	Type string `json:"type"`
}

// handleSignal dispatches one inbound frame. A panic is contained to the frame.
func (ctl *SignalWSController) handleSignal(ctx context.Context, sid core.SessionID, data []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("module", "signal").Str("sid", string(sid)).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("handler panic")
			_ = ctl.Orch.Registry.Send(sid, core.ErrorEvent("internal error"))
		}
	}()

	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.reportError(sid, core.Invalid("bad json"))
		return
	}

	var err error
	switch env.Type {
	case InPing:
		err = ctl.Orch.Ping(sid)
	case InWhoAmI:
		err = ctl.handleWhoAmI(sid)
	case InJoinTextChannel:
		err = ctl.handleJoinText(ctx, sid, data)
	case InSendChatMessage:
		err = ctl.handleChat(ctx, sid, data)
	case InJoinVoiceRoom:
		err = ctl.handleJoinVoice(sid, data)
	case InLeaveVoiceRoom:
		err = ctl.handleLeaveVoice(sid)
	case InSetVoiceState:
		err = ctl.handleVoiceState(sid, data)
	case InSignalingOffer, InSignalingAnswer, InSignalingICE:
		err = ctl.handleSignaling(sid, env.Type, data)
	case InSendDirect:
		err = ctl.handleDirect(ctx, sid, data)
	case InGetDirect:
		err = ctl.handleDirectHistory(ctx, sid, data)
	case InAdminKick:
		err = ctl.handleAdminKick(sid, data)
	case InAdminDisconnect:
		err = ctl.handleAdminDisconnect(sid, data)
	case InAdminCreate:
		err = ctl.handleAdminCreate(ctx, sid, data)
	case InAdminDelete:
		err = ctl.handleAdminDelete(ctx, sid, data)
	case InAdminDeleteMessage:
		err = ctl.handleAdminDeleteMessage(ctx, sid, data)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		err = core.Invalid("unknown event type %q", env.Type)
	}
	ctl.reportError(sid, err)
}

// reportError turns a handler error into at most one error event for the
// initiating session. Benign races stay silent.
func (ctl *SignalWSController) reportError(sid core.SessionID, err error) {
	if err == nil {
		return
	}
	var perr *core.PersistenceError
	var msg string
	switch {
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrClosed), errors.Is(err, core.ErrBackpressure):
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("dropped")
		return
	case errors.Is(err, core.ErrUnauthorized):
		msg = "permission denied: admin only"
	case errors.As(err, &perr):
		msg = "storage unavailable, try again later"
	case errors.Is(err, core.ErrInvalid), errors.Is(err, core.ErrRateLimited):
		msg = err.Error()
	default:
		log.Error().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("unhandled error")
		msg = "internal error"
	}
	_ = ctl.Orch.Registry.Send(sid, core.ErrorEvent(msg))
}

func decode[T any](data []byte) (T, error) {
	var p T
	if err := json.Unmarshal(data, &p); err != nil {
		return p, core.Invalid("bad payload")
	}
	return p, nil
}

func (ctl *SignalWSController) allow(sid core.SessionID) error {
	if ctl.Limiter.Allow(sid) {
		return nil
	}
	return core.ErrRateLimited
}
