package signal

import (
	"context"

	"github.com/dkeye/parley/internal/core"
)

func (ctl *SignalWSController) handleWhoAmI(sid core.SessionID) error {
	return ctl.Orch.WhoAmI(sid)
}

func (ctl *SignalWSController) handleDirect(ctx context.Context, sid core.SessionID, data []byte) error {
	type directPayload struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := ctl.allow(sid); err != nil {
		return err
	}
	p, err := decode[directPayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.SendDirect(ctx, sid, p.To, p.Text)
}

func (ctl *SignalWSController) handleDirectHistory(ctx context.Context, sid core.SessionID, data []byte) error {
	type historyPayload struct {
		With string `json:"with"`
	}
	p, err := decode[historyPayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.DirectHistory(ctx, sid, p.With)
}
