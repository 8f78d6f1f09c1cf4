package core

import (
	"time"

	"github.com/dkeye/parley/internal/domain"
)

type SessionID string

// Session is a read-only copy of a registry entry.
// The registry is the only owner of the live record.
type Session struct {
	ID          SessionID
	User        domain.User
	TextChannel domain.ChannelName
	VoiceRoom   domain.RoomName
	ConnectedAt time.Time
}

func (s Session) InVoice() bool { return s.VoiceRoom != "" }
