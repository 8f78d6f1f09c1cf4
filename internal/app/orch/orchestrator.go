package orch

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

type Options struct {
	Store  core.Store
	Auth   core.Authenticator
	Policy app.Policy

	HistoryLimit    int
	StrictSignaling bool
	ICEServers      []webrtc.ICEServer
}

// Orchestrator wires the components together and is the only entry point
// the transport adapters call. mu serializes compound transitions with the
// presence broadcast that follows them; store calls run outside it.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Voice    *app.VoiceCoordinator
	Text     *app.TextRouter
	Direct   *app.DirectMessenger
	Relay    *app.SignalRelay
	Presence *app.Presence
	Gate     app.AdminGate
	Store    core.Store

	ICEServers []webrtc.ICEServer

	mu sync.Mutex
}

func New(opts Options) *Orchestrator {
	policy := opts.Policy
	if policy == nil {
		policy = app.SimplePolicy{}
	}
	reg := app.NewRegistry(opts.Auth, policy)
	rooms := core.NewRoomManager()
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Voice:    app.NewVoiceCoordinator(reg, rooms),
		Text:     &app.TextRouter{Registry: reg, Store: opts.Store, HistoryLimit: opts.HistoryLimit},
		Direct:   &app.DirectMessenger{Registry: reg, Store: opts.Store, HistoryLimit: opts.HistoryLimit},
		Relay:    &app.SignalRelay{Registry: reg, SameRoom: opts.StrictSignaling},
		Presence: &app.Presence{Registry: reg},
		Store:    opts.Store,

		ICEServers: opts.ICEServers,
	}
}

// Connect admits a connection and sends it the initial state: who it is,
// the presence snapshot, the channel catalog and the voice rooms with
// their live rosters.
func (o *Orchestrator) Connect(ctx context.Context, credential string, conn core.SignalConnection, cancel context.CancelFunc) (core.SessionID, error) {
	sid, err := o.Registry.Admit(ctx, credential, conn, cancel)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("connection rejected")
		return "", err
	}

	_ = o.WhoAmI(sid)

	// Presence goes out before the catalog reads hit the store.
	o.mu.Lock()
	o.Presence.Broadcast()
	o.mu.Unlock()

	if err := o.sendCatalog(ctx, sid); err != nil {
		_ = o.Registry.Send(sid, core.ErrorEvent("could not load channels"))
	}
	return sid, nil
}

// OnDisconnect is the terminal transition. It is safe to call more than once.
func (o *Orchestrator) OnDisconnect(sid core.SessionID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.teardownLocked(sid)
}

func (o *Orchestrator) teardownLocked(sid core.SessionID) bool {
	if _, err := o.Registry.Lookup(sid); err != nil {
		return false
	}
	o.Voice.Teardown(sid)
	o.Text.LeaveAll(sid)
	o.Registry.Remove(sid)
	o.Presence.Broadcast()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("session torn down")
	return true
}

func (o *Orchestrator) WhoAmI(sid core.SessionID) error {
	sess, err := o.Registry.Lookup(sid)
	if err != nil {
		return err
	}
	info := core.UserInfoEvent{
		Type:        core.EvUserInfo,
		SessionID:   sid,
		Username:    sess.User.Username,
		IsAdmin:     sess.User.IsAdmin,
		TextChannel: sess.TextChannel,
		VoiceRoom:   sess.VoiceRoom,
		ICEServers:  o.ICEServers,
	}
	if state, ok := o.Voice.State(sid); ok {
		info.VoiceState = &state
	}
	return o.Registry.Send(sid, info)
}

func (o *Orchestrator) Ping(sid core.SessionID) error {
	return o.Registry.Send(sid, core.NoticeEvent{Type: core.EvPong})
}

// Shutdown closes every live connection. Each read loop then runs its own
// teardown.
func (o *Orchestrator) Shutdown() {
	for _, sess := range o.Registry.All() {
		_ = o.Registry.Send(sess.ID, core.KickedEvent{Type: core.EvKicked, Reason: "server shutting down"})
		o.Registry.Disconnect(sess.ID)
	}
}

func (o *Orchestrator) TextChannels(ctx context.Context) ([]domain.Channel, error) {
	channels, err := o.Store.ListChannels(ctx, domain.ChannelText)
	if err != nil {
		return nil, core.Persistence("list channels", err)
	}
	return channels, nil
}

// VoiceRoomList merges the voice catalog with live rosters. Rooms that are
// live but not in the catalog are listed too.
func (o *Orchestrator) VoiceRoomList(ctx context.Context) ([]core.VoiceRoomEntry, error) {
	catalog, err := o.Store.ListChannels(ctx, domain.ChannelVoice)
	if err != nil {
		return nil, core.Persistence("list voice rooms", err)
	}
	seen := make(map[domain.RoomName]bool, len(catalog))
	out := make([]core.VoiceRoomEntry, 0, len(catalog))
	for _, ch := range catalog {
		name := domain.RoomName(ch.Name)
		seen[name] = true
		out = append(out, core.VoiceRoomEntry{
			Name:        name,
			Description: ch.Description,
			Users:       o.Voice.Usernames(name),
		})
	}
	for _, info := range o.Rooms.List() {
		if seen[info.Name] {
			continue
		}
		out = append(out, core.VoiceRoomEntry{Name: info.Name, Users: o.Voice.Usernames(info.Name)})
	}
	return out, nil
}

func (o *Orchestrator) sendCatalog(ctx context.Context, sid core.SessionID) error {
	text, err := o.TextChannels(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("load text channels")
		return err
	}
	rooms, err := o.VoiceRoomList(ctx)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Msg("load voice rooms")
		return err
	}
	_ = o.Registry.Send(sid, core.ChannelListEvent{Type: core.EvChannelList, Channels: text})
	return o.Registry.Send(sid, core.VoiceRoomListEvent{Type: core.EvVoiceRoomList, Rooms: rooms})
}

func (o *Orchestrator) broadcastCatalog(ctx context.Context) error {
	text, err := o.TextChannels(ctx)
	if err != nil {
		return err
	}
	rooms, err := o.VoiceRoomList(ctx)
	if err != nil {
		return err
	}
	o.Registry.SendAll(core.ChannelListEvent{Type: core.EvChannelList, Channels: text})
	o.Registry.SendAll(core.VoiceRoomListEvent{Type: core.EvVoiceRoomList, Rooms: rooms})
	return nil
}
