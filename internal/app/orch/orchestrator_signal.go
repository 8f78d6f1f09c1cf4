package orch

import (
	"encoding/json"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
)

// Signal relays one negotiation message. Silent drops come back as
// core.ErrNotFound.
func (o *Orchestrator) Signal(kind app.SignalKind, from, to core.SessionID, payload json.RawMessage) error {
	return o.Relay.Relay(kind, from, to, payload)
}
