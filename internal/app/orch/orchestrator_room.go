package orch

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func (o *Orchestrator) JoinVoice(sid core.SessionID, room domain.RoomName) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	res, err := o.Voice.Join(sid, room)
	if err != nil {
		return err
	}
	if res.Changed {
		o.Presence.Broadcast()
	}
	return nil
}

func (o *Orchestrator) LeaveVoice(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if room, ok := o.Voice.Leave(sid); ok {
		log.Debug().Str("module", "orch").Str("sid", string(sid)).Str("room", string(room)).Msg("left voice")
		o.Presence.Broadcast()
	}
}

func (o *Orchestrator) SetVoiceState(sid core.SessionID, field string, value bool) error {
	f, err := domain.ParseVoiceField(field)
	if err != nil {
		return core.Invalid("%v", err)
	}
	return o.Voice.SetState(sid, f, value)
}
