package signal

import (
	"encoding/json"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
)

// handleSignaling forwards an offer, answer or ICE candidate. The payload
// stays raw JSON; only the peers read it.
func (ctl *SignalWSController) handleSignaling(sid core.SessionID, kind string, data []byte) error {
	type signalPayload struct {
		TargetSessionID core.SessionID  `json:"targetSessionId"`
		Payload         json.RawMessage `json:"payload"`
	}
	if err := ctl.allow(sid); err != nil {
		return err
	}
	p, err := decode[signalPayload](data)
	if err != nil {
		return err
	}
	return ctl.Orch.Signal(app.SignalKind(kind), sid, p.TargetSessionID, p.Payload)
}
