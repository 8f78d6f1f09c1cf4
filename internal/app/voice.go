package app

import (
	"strings"
	"sync"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// VoicePhase is the per-session voice state machine:
// NoVoice -> JoiningRoom -> InRoom -> NoVoice.
type VoicePhase int

const (
	NoVoice VoicePhase = iota
	JoiningRoom
	InRoom
)

func (p VoicePhase) String() string {
	switch p {
	case JoiningRoom:
		return "joining"
	case InRoom:
		return "in_room"
	default:
		return "no_voice"
	}
}

// participant is the VoiceParticipantState of one session. It exists iff the
// session's voice room field is set.
type participant struct {
	phase VoicePhase
	room  domain.RoomName
	state domain.VoiceState
}

// leaveCause selects the notice the departing session receives.
type leaveCause int

const (
	leaveSelf leaveCause = iota
	leaveKicked
	leaveDisconnected
)

// VoiceCoordinator owns voice-room membership and participant state.
// Every transition runs under one mutex, so a room switch is fully torn
// down and re-broadcast before the new room sees the session.
type VoiceCoordinator struct {
	Registry *Registry
	Rooms    core.RoomManager

	mu           sync.Mutex
	participants map[core.SessionID]*participant
	// prefs holds mute/deafen toggled before ever joining a room.
	prefs map[core.SessionID]domain.VoiceState
}

func NewVoiceCoordinator(reg *Registry, rooms core.RoomManager) *VoiceCoordinator {
	return &VoiceCoordinator{
		Registry:     reg,
		Rooms:        rooms,
		participants: make(map[core.SessionID]*participant),
		prefs:        make(map[core.SessionID]domain.VoiceState),
	}
}

// JoinResult reports what a join did.
type JoinResult struct {
	Changed bool
	Left    domain.RoomName
	Peers   []core.Peer
}

func (c *VoiceCoordinator) Join(sid core.SessionID, name domain.RoomName) (JoinResult, error) {
	name = domain.RoomName(strings.TrimSpace(string(name)))
	if name == "" {
		return JoinResult{}, core.Invalid("room name is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.Registry.Lookup(sid)
	if err != nil {
		return JoinResult{}, err
	}

	var res JoinResult
	if p, ok := c.participants[sid]; ok {
		if p.room == name && p.phase == InRoom {
			return res, nil
		}
		res.Left = p.room
		c.leaveLocked(sess, p, leaveSelf, "")
	}

	p := &participant{phase: JoiningRoom, room: name}
	if pref, ok := c.prefs[sid]; ok {
		p.state.Muted = pref.Muted
		p.state.Deafened = pref.Deafened
	}
	c.participants[sid] = p

	room := c.Rooms.GetOrCreate(name)
	for _, other := range room.Members() {
		if other == sid {
			continue
		}
		if o, err := c.Registry.Lookup(other); err == nil {
			res.Peers = append(res.Peers, core.Peer{SessionID: other, Username: o.User.Username})
		}
	}
	room.AddMember(sid)
	if err := c.Registry.SetVoiceRoom(sid, name); err != nil {
		room.RemoveMember(sid)
		delete(c.participants, sid)
		return JoinResult{}, err
	}
	p.phase = InRoom
	res.Changed = true

	log.Info().Str("module", "app.voice").Str("sid", string(sid)).Str("room", string(name)).Int("peers", len(res.Peers)).Msg("joined voice room")

	peers := res.Peers
	if peers == nil {
		peers = []core.Peer{}
	}
	_ = c.Registry.Send(sid, core.VoiceJoinedEvent{
		Type:      core.EvVoiceJoined,
		Room:      name,
		SessionID: sid,
		Peers:     peers,
		State:     p.state,
	})
	c.broadcastRosterLocked(name)

	joined := core.VoiceMembershipEvent{
		Type:      core.EvUserJoinedVoice,
		Username:  sess.User.Username,
		SessionID: sid,
		Room:      name,
	}
	c.Registry.SendTo(peerIDs(res.Peers), joined)

	for _, f := range p.state.Enabled() {
		c.Registry.SendAll(core.VoiceStateEvent{
			Type:      core.EvVoiceState,
			Username:  sess.User.Username,
			SessionID: sid,
			Field:     f,
			Value:     true,
		})
	}
	return res, nil
}

// Leave is idempotent: a session with no room produces no broadcast.
func (c *VoiceCoordinator) Leave(sid core.SessionID) (domain.RoomName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[sid]
	if !ok {
		return "", false
	}
	sess, err := c.Registry.Lookup(sid)
	if err != nil {
		sess = core.Session{ID: sid}
	}
	room := p.room
	c.leaveLocked(sess, p, leaveSelf, "")
	return room, true
}

// Kick tears the target down like Leave but sends it a kicked notice.
func (c *VoiceCoordinator) Kick(sid core.SessionID, reason string) (domain.RoomName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.participants[sid]
	if !ok {
		return "", false
	}
	sess, err := c.Registry.Lookup(sid)
	if err != nil {
		sess = core.Session{ID: sid}
	}
	room := p.room
	c.leaveLocked(sess, p, leaveKicked, reason)
	return room, true
}

// Teardown is the terminal transition on disconnect.
func (c *VoiceCoordinator) Teardown(sid core.SessionID) (domain.RoomName, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.prefs, sid)
	p, ok := c.participants[sid]
	if !ok {
		return "", false
	}
	sess, err := c.Registry.Lookup(sid)
	if err != nil {
		sess = core.Session{ID: sid}
	}
	room := p.room
	c.leaveLocked(sess, p, leaveDisconnected, "")
	return room, true
}

// Evict kicks every member of a room.
func (c *VoiceCoordinator) Evict(name domain.RoomName, reason string) []core.SessionID {
	room, ok := c.Rooms.GetRoom(name)
	if !ok {
		return nil
	}
	members := room.Members()
	for _, sid := range members {
		c.Kick(sid, reason)
	}
	c.Rooms.StopRoom(name)
	return members
}

// SetState updates one toggle and broadcasts it to every session. Outside a
// room only mute and deafen are kept, as a preference for the next join.
func (c *VoiceCoordinator) SetState(sid core.SessionID, field domain.VoiceField, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sess, err := c.Registry.Lookup(sid)
	if err != nil {
		return err
	}
	if p, ok := c.participants[sid]; ok {
		p.state.Set(field, value)
	} else {
		if !field.PreJoin() {
			return core.ErrNotFound
		}
		pref := c.prefs[sid]
		pref.Set(field, value)
		c.prefs[sid] = pref
	}
	log.Debug().Str("module", "app.voice").Str("sid", string(sid)).Str("field", string(field)).Bool("value", value).Msg("voice state changed")

	c.Registry.SendAll(core.VoiceStateEvent{
		Type:      core.EvVoiceState,
		Username:  sess.User.Username,
		SessionID: sid,
		Field:     field,
		Value:     value,
	})
	return nil
}

func (c *VoiceCoordinator) RoomOf(sid core.SessionID) (domain.RoomName, VoicePhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.participants[sid]; ok {
		return p.room, p.phase
	}
	return "", NoVoice
}

// State returns the participant state, or the pre-join preference.
func (c *VoiceCoordinator) State(sid core.SessionID) (domain.VoiceState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.participants[sid]; ok {
		return p.state, true
	}
	pref, ok := c.prefs[sid]
	return pref, ok
}

func (c *VoiceCoordinator) Roster(name domain.RoomName) []core.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rosterLocked(name)
}

// Usernames lists the room's members by username in join order.
func (c *VoiceCoordinator) Usernames(name domain.RoomName) []string {
	roster := c.Roster(name)
	out := make([]string, 0, len(roster))
	for _, p := range roster {
		out = append(out, p.Username)
	}
	return out
}

func (c *VoiceCoordinator) leaveLocked(sess core.Session, p *participant, cause leaveCause, reason string) {
	sid := sess.ID
	name := p.room

	if room, ok := c.Rooms.GetRoom(name); ok {
		room.RemoveMember(sid)
		if room.MemberCount() == 0 {
			c.Rooms.StopRoom(name)
		}
	}
	delete(c.participants, sid)
	_ = c.Registry.SetVoiceRoom(sid, "")
	log.Info().Str("module", "app.voice").Str("sid", string(sid)).Str("room", string(name)).Int("cause", int(cause)).Msg("left voice room")

	switch cause {
	case leaveSelf:
		_ = c.Registry.Send(sid, core.VoiceLeftEvent{Type: core.EvVoiceLeft, Room: name})
	case leaveKicked:
		_ = c.Registry.Send(sid, core.KickedEvent{Type: core.EvKicked, Reason: reason, Room: name})
	case leaveDisconnected:
	}

	c.broadcastRosterLocked(name)

	var remaining []core.SessionID
	if room, ok := c.Rooms.GetRoom(name); ok {
		remaining = room.Members()
	}
	c.Registry.SendTo(remaining, core.VoiceMembershipEvent{
		Type:      core.EvUserLeftVoice,
		Username:  sess.User.Username,
		SessionID: sid,
		Room:      name,
	})
}

func (c *VoiceCoordinator) rosterLocked(name domain.RoomName) []core.Participant {
	room, ok := c.Rooms.GetRoom(name)
	if !ok {
		return []core.Participant{}
	}
	members := room.Members()
	out := make([]core.Participant, 0, len(members))
	for _, sid := range members {
		sess, err := c.Registry.Lookup(sid)
		if err != nil {
			continue
		}
		var state domain.VoiceState
		if p, ok := c.participants[sid]; ok {
			state = p.state
		}
		out = append(out, core.Participant{SessionID: sid, Username: sess.User.Username, State: state})
	}
	return out
}

// broadcastRosterLocked sends the room's roster to every session, not just
// its members: the roster drives the room list UI.
func (c *VoiceCoordinator) broadcastRosterLocked(name domain.RoomName) {
	roster := c.rosterLocked(name)
	users := make([]string, 0, len(roster))
	for _, p := range roster {
		users = append(users, p.Username)
	}
	c.Registry.SendAll(core.VoiceRosterEvent{
		Type:         core.EvVoiceRoster,
		Room:         name,
		Users:        users,
		Participants: roster,
	})
}

func peerIDs(peers []core.Peer) []core.SessionID {
	out := make([]core.SessionID, 0, len(peers))
	for _, p := range peers {
		out = append(out, p.SessionID)
	}
	return out
}
