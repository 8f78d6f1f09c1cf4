package app

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/parley/internal/core"
	"github.com/rs/zerolog/log"
)

// SignalKind is one of the three negotiation message kinds.
type SignalKind string

const (
	SignalOffer     SignalKind = "signaling-offer"
	SignalAnswer    SignalKind = "signaling-answer"
	SignalCandidate SignalKind = "signaling-ice"
)

func (k SignalKind) Valid() bool {
	return k == SignalOffer || k == SignalAnswer || k == SignalCandidate
}

// SignalRelay forwards offers, answers and ICE candidates between two
// sessions without looking inside the payload.
//
// A sender must be in some voice room. By default the relay does not check
// that the target shares that room: a target id is only ever learned from a
// join notification. SameRoom tightens that to co-membership.
type SignalRelay struct {
	Registry *Registry
	SameRoom bool
}

// Relay returns core.ErrNotFound for every silent drop.
func (r *SignalRelay) Relay(kind SignalKind, from, to core.SessionID, payload json.RawMessage) error {
	if !kind.Valid() {
		return core.Invalid("unknown signal kind %q", kind)
	}
	if to == "" {
		return core.Invalid("target session is required")
	}
	if len(payload) == 0 {
		return core.Invalid("signal payload is required")
	}

	sender, err := r.Registry.Lookup(from)
	if err != nil {
		return err
	}
	if !sender.InVoice() {
		log.Debug().Str("module", "app.relay").Str("sid", string(from)).Str("kind", string(kind)).Msg("sender not in voice, dropped")
		return fmt.Errorf("sender %s not in a voice room: %w", from, core.ErrNotFound)
	}
	target, err := r.Registry.Lookup(to)
	if err != nil {
		log.Debug().Str("module", "app.relay").Str("to", string(to)).Str("kind", string(kind)).Msg("target gone, dropped")
		return err
	}
	if r.SameRoom && target.VoiceRoom != sender.VoiceRoom {
		log.Debug().Str("module", "app.relay").Str("sid", string(from)).Str("to", string(to)).Msg("cross-room signal dropped")
		return fmt.Errorf("target %s not in room %s: %w", to, sender.VoiceRoom, core.ErrNotFound)
	}

	err = r.Registry.Send(to, core.SignalEvent{
		Type:          string(kind),
		FromSessionID: from,
		FromUsername:  sender.User.Username,
		Payload:       payload,
	})
	log.Debug().Str("module", "app.relay").Str("sid", string(from)).Str("to", string(to)).Str("kind", string(kind)).Err(err).Msg("signal relayed")
	return err
}
