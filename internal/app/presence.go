package app

import "github.com/dkeye/parley/internal/core"

// Presence derives the online-user view from the registry. The view is
// never stored; every broadcast is a full snapshot.
type Presence struct {
	Registry *Registry
}

func (p *Presence) Snapshot() []core.PresenceEntry {
	sessions := p.Registry.All()
	out := make([]core.PresenceEntry, 0, len(sessions))
	for _, s := range sessions {
		entry := core.PresenceEntry{
			Username: s.User.Username,
			IsAdmin:  s.User.IsAdmin,
		}
		if s.InVoice() {
			room := s.VoiceRoom
			entry.VoiceRoom = &room
		}
		out = append(out, entry)
	}
	return out
}

func (p *Presence) Broadcast() {
	p.Registry.SendAll(core.OnlineUsersEvent{
		Type:  core.EvOnlineUsers,
		Users: p.Snapshot(),
	})
}
