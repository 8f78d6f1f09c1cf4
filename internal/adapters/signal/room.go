package signal

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

type namePayload struct {
	Name string `json:"name"`
}

func (ctl *SignalWSController) handleJoinVoice(sid core.SessionID, data []byte) error {
	p, err := decode[namePayload](data)
	if err != nil {
		return err
	}
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", p.Name).Msg("join voice")
	return ctl.Orch.JoinVoice(sid, domain.RoomName(p.Name))
}

// handleLeaveVoice leaves the current room; the connection stays open.
func (ctl *SignalWSController) handleLeaveVoice(sid core.SessionID) error {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Msg("leave voice")
	ctl.Orch.LeaveVoice(sid)
	return nil
}

func (ctl *SignalWSController) handleVoiceState(sid core.SessionID, data []byte) error {
	type statePayload struct {
		Field string `json:"field"`
		Value *bool  `json:"value"`
	}
	p, err := decode[statePayload](data)
	if err != nil {
		return err
	}
	if p.Value == nil {
		return core.Invalid("value is required")
	}
	return ctl.Orch.SetVoiceState(sid, p.Field, *p.Value)
}

func (ctl *SignalWSController) handleJoinText(ctx context.Context, sid core.SessionID, data []byte) error {
	p, err := decode[namePayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.JoinText(ctx, sid, domain.ChannelName(p.Name))
}

func (ctl *SignalWSController) handleChat(ctx context.Context, sid core.SessionID, data []byte) error {
	type chatPayload struct {
		Text        string              `json:"text"`
		Mentions    []string            `json:"mentions"`
		Attachments []domain.Attachment `json:"attachments"`
	}
	if err := ctl.allow(sid); err != nil {
		return err
	}
	p, err := decode[chatPayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.SendChat(ctx, sid, app.ChatInput{
		Text:        p.Text,
		Mentions:    p.Mentions,
		Attachments: p.Attachments,
	})
}
