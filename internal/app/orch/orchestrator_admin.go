package orch

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

// authorize returns the actor's session or core.ErrUnauthorized. Nothing
// is mutated before it passes.
func (o *Orchestrator) authorize(sid core.SessionID, action app.Action) (core.Session, error) {
	sess, err := o.Registry.Lookup(sid)
	if err != nil {
		return core.Session{}, err
	}
	if !o.Gate.Authorize(sess, action) {
		log.Warn().Str("module", "orch").Str("sid", string(sid)).Str("username", sess.User.Username).Str("action", string(action)).Msg("privileged action denied")
		return core.Session{}, fmt.Errorf("%s: %w", action, core.ErrUnauthorized)
	}
	return sess, nil
}

// KickFromVoice removes every session of username from its voice room and
// returns how many were kicked. Zero is "nothing to do", not an error.
func (o *Orchestrator) KickFromVoice(actor core.SessionID, username string) (int, error) {
	admin, err := o.authorize(actor, app.ActionKick)
	if err != nil {
		return 0, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, core.Invalid("target username is required")
	}

	o.mu.Lock()
	kicked := 0
	for _, sess := range o.Registry.ByUsername(username) {
		if _, ok := o.Voice.Kick(sess.ID, "kicked by "+admin.User.Username); ok {
			kicked++
		}
	}
	if kicked > 0 {
		o.Presence.Broadcast()
	}
	o.mu.Unlock()

	log.Info().Str("module", "orch").Str("admin", admin.User.Username).Str("target", username).Int("kicked", kicked).Msg("kick from voice")
	if kicked == 0 {
		_ = o.Registry.Send(actor, core.SuccessEvent(username+" is not in a voice room, nothing to do"))
	} else {
		_ = o.Registry.Send(actor, core.SuccessEvent(fmt.Sprintf("kicked %s from voice", username)))
	}
	return kicked, nil
}

// DisconnectUser closes every connection of username. The target gets a
// kicked notice before its transport closes.
func (o *Orchestrator) DisconnectUser(actor core.SessionID, username string) (int, error) {
	admin, err := o.authorize(actor, app.ActionDisconnect)
	if err != nil {
		return 0, err
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, core.Invalid("target username is required")
	}

	o.mu.Lock()
	n := 0
	for _, sess := range o.Registry.ByUsername(username) {
		_ = o.Registry.Send(sess.ID, core.KickedEvent{Type: core.EvKicked, Reason: "disconnected by " + admin.User.Username})
		o.Registry.Disconnect(sess.ID)
		if o.teardownLocked(sess.ID) {
			n++
		}
	}
	o.mu.Unlock()

	log.Info().Str("module", "orch").Str("admin", admin.User.Username).Str("target", username).Int("sessions", n).Msg("disconnect user")
	if n == 0 {
		_ = o.Registry.Send(actor, core.SuccessEvent(username+" is not online, nothing to do"))
	} else {
		_ = o.Registry.Send(actor, core.SuccessEvent(fmt.Sprintf("disconnected %s", username)))
	}
	return n, nil
}

type ChannelInput struct {
	Name        string
	Description string
	Type        string
}

func (o *Orchestrator) CreateChannel(ctx context.Context, actor core.SessionID, in ChannelInput) error {
	if _, err := o.authorize(actor, app.ActionCreateChannel); err != nil {
		return err
	}
	t, err := domain.ParseChannelType(in.Type)
	if err != nil {
		return core.Invalid("%v", err)
	}
	ch := &domain.Channel{Name: strings.TrimSpace(in.Name), Description: strings.TrimSpace(in.Description), Type: t}
	if err := ch.Validate(); err != nil {
		return core.Invalid("%v", err)
	}
	if err := o.Store.CreateChannel(ctx, ch); err != nil {
		if errors.Is(err, core.ErrExists) {
			return core.Invalid("%s channel %q already exists", t, ch.Name)
		}
		return core.Persistence("create channel", err)
	}
	log.Info().Str("module", "orch").Str("name", ch.Name).Str("type", string(t)).Msg("channel created")

	_ = o.Registry.Send(actor, core.SuccessEvent(fmt.Sprintf("created %s channel %s", t, ch.Name)))
	return o.broadcastCatalog(ctx)
}

// DeleteChannel removes a catalog entry. Live members of a deleted voice
// room are kicked; sessions in a deleted text channel lose their channel.
func (o *Orchestrator) DeleteChannel(ctx context.Context, actor core.SessionID, name string) error {
	if _, err := o.authorize(actor, app.ActionDeleteChannel); err != nil {
		return err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Invalid("channel name is required")
	}
	ch, err := o.Store.DeleteChannel(ctx, name)
	if err != nil {
		return core.Persistence("delete channel", err)
	}
	if ch == nil {
		return core.Invalid("channel %q does not exist", name)
	}

	o.mu.Lock()
	switch ch.Type {
	case domain.ChannelVoice:
		if evicted := o.Voice.Evict(domain.RoomName(ch.Name), "room deleted"); len(evicted) > 0 {
			o.Presence.Broadcast()
		}
	case domain.ChannelText:
		o.Text.Evict(domain.ChannelName(ch.Name))
	}
	o.mu.Unlock()
	log.Info().Str("module", "orch").Str("name", ch.Name).Str("type", string(ch.Type)).Msg("channel deleted")

	_ = o.Registry.Send(actor, core.SuccessEvent(fmt.Sprintf("deleted %s channel %s", ch.Type, ch.Name)))
	return o.broadcastCatalog(ctx)
}

func (o *Orchestrator) DeleteMessage(ctx context.Context, actor core.SessionID, id int64) error {
	if _, err := o.authorize(actor, app.ActionDeleteMessage); err != nil {
		return err
	}
	if id <= 0 {
		return core.Invalid("message id is required")
	}
	if _, err := o.Text.Delete(ctx, id); err != nil {
		return err
	}
	_ = o.Registry.Send(actor, core.SuccessEvent("message deleted"))
	return nil
}
