package signal

import (
	"context"

	"github.com/dkeye/parley/internal/app/orch"
	"github.com/dkeye/parley/internal/core"
)

type targetPayload struct {
	TargetUsername string `json:"targetUsername"`
}

func (ctl *SignalWSController) handleAdminKick(sid core.SessionID, data []byte) error {
	p, err := decode[targetPayload](data)
	if err != nil {
		return err
	}
	_, err = ctl.Orch.KickFromVoice(sid, p.TargetUsername)
	return err
}

func (ctl *SignalWSController) handleAdminDisconnect(sid core.SessionID, data []byte) error {
	p, err := decode[targetPayload](data)
	if err != nil {
		return err
	}
	_, err = ctl.Orch.DisconnectUser(sid, p.TargetUsername)
	return err
}

func (ctl *SignalWSController) handleAdminCreate(ctx context.Context, sid core.SessionID, data []byte) error {
	type createPayload struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		ChannelType string `json:"channelType"`
	}
	p, err := decode[createPayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.CreateChannel(ctx, sid, orch.ChannelInput{
		Name:        p.Name,
		Description: p.Description,
		Type:        p.ChannelType,
	})
}

func (ctl *SignalWSController) handleAdminDelete(ctx context.Context, sid core.SessionID, data []byte) error {
	type deletePayload struct {
		Name string `json:"name"`
	}
	p, err := decode[deletePayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.DeleteChannel(ctx, sid, p.Name)
}

func (ctl *SignalWSController) handleAdminDeleteMessage(ctx context.Context, sid core.SessionID, data []byte) error {
	type deleteMessagePayload struct {
		ID int64 `json:"id"`
	}
	p, err := decode[deleteMessagePayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.DeleteMessage(ctx, sid, p.ID)
}
