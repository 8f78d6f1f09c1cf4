package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type sessionEntry struct {
	session core.Session
	conn    core.SignalConnection
	cancel  context.CancelFunc
}

// Registry is the Session Registry: one entry per authenticated live
// connection. It is the single owner of session records; everything else
// holds session ids and reads copies.
type Registry struct {
	Auth   core.Authenticator
	Policy Policy

	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry
	now      func() time.Time
}

func NewRegistry(auth core.Authenticator, policy Policy) *Registry {
	return &Registry{
		Auth:     auth,
		Policy:   policy,
		sessions: make(map[core.SessionID]*sessionEntry),
		now:      time.Now,
	}
}

// Admit verifies the credential and creates a session with empty channel
// and room fields. The credential check happens outside the lock.
func (r *Registry) Admit(ctx context.Context, credential string, conn core.SignalConnection, cancel context.CancelFunc) (core.SessionID, error) {
	if r.Auth == nil {
		return "", fmt.Errorf("%w: no authenticator configured", core.ErrAuth)
	}
	user, err := r.Auth.Authenticate(ctx, credential)
	if err != nil {
		if errors.Is(err, core.ErrAuth) {
			return "", err
		}
		return "", fmt.Errorf("%w: %v", core.ErrAuth, err)
	}

	sid := core.SessionID(uuid.NewString())
	r.mu.Lock()
	r.sessions[sid] = &sessionEntry{
		session: core.Session{
			ID:          sid,
			User:        *user,
			ConnectedAt: r.now(),
		},
		conn:   conn,
		cancel: cancel,
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("username", user.Username).Bool("admin", user.IsAdmin).Msg("session admitted")
	return sid, nil
}

func (r *Registry) Lookup(sid core.SessionID) (core.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.session, nil
	}
	return core.Session{}, fmt.Errorf("session %s: %w", sid, core.ErrNotFound)
}

// Remove drops the entry and returns its last state. Cleanup of channel and
// room membership is the caller's job and must happen before Remove.
func (r *Registry) Remove(sid core.SessionID) (core.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return core.Session{}, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("session removed")
	return e.session, true
}

// SetTextChannel replaces the session's text channel in one step and returns
// the previous one.
func (r *Registry) SetTextChannel(sid core.SessionID, name domain.ChannelName) (domain.ChannelName, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return "", fmt.Errorf("session %s: %w", sid, core.ErrNotFound)
	}
	prev := e.session.TextChannel
	e.session.TextChannel = name
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("from", string(prev)).Str("channel", string(name)).Msg("updated text channel")
	return prev, nil
}

func (r *Registry) SetVoiceRoom(sid core.SessionID, room domain.RoomName) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return fmt.Errorf("session %s: %w", sid, core.ErrNotFound)
	}
	e.session.VoiceRoom = room
	log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(room)).Msg("updated voice room")
	return nil
}

// All returns every live session ordered by connection time.
func (r *Registry) All() []core.Session {
	r.mu.RLock()
	out := make([]core.Session, 0, len(r.sessions))
	for _, e := range r.sessions {
		out = append(out, e.session)
	}
	r.mu.RUnlock()
	sortSessions(out)
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// InTextChannel derives channel membership by scanning sessions.
func (r *Registry) InTextChannel(name domain.ChannelName) []core.SessionID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.SessionID, 0)
	for sid, e := range r.sessions {
		if e.session.TextChannel == name {
			out = append(out, sid)
		}
	}
	return out
}

// ByUsername returns every live session of one account.
func (r *Registry) ByUsername(username string) []core.Session {
	r.mu.RLock()
	out := make([]core.Session, 0, 1)
	for _, e := range r.sessions {
		if e.session.User.Username == username {
			out = append(out, e.session)
		}
	}
	r.mu.RUnlock()
	sortSessions(out)
	return out
}

// Disconnect closes the session's transport. The adapter's read loop
// notices and runs the teardown.
func (r *Registry) Disconnect(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.conn != nil {
		e.conn.Close()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("disconnect requested")
	return true
}

// Cancel cancels the connection-scoped context. The transport stops writing
// at once, without flushing its queue.
func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.cancel != nil {
		e.cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}

func (r *Registry) Send(sid core.SessionID, v any) error {
	frame, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return r.sendFrame(sid, frame)
}

func (r *Registry) SendTo(sids []core.SessionID, v any) {
	frame, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.registry").Msg("encode event")
		return
	}
	for _, sid := range sids {
		_ = r.sendFrame(sid, frame)
	}
}

func (r *Registry) SendAll(v any) {
	r.mu.RLock()
	sids := make([]core.SessionID, 0, len(r.sessions))
	for sid := range r.sessions {
		sids = append(sids, sid)
	}
	r.mu.RUnlock()
	r.SendTo(sids, v)
}

func (r *Registry) sendFrame(sid core.SessionID, frame core.Frame) error {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	var (
		sess core.Session
		conn core.SignalConnection
	)
	if ok {
		sess, conn = e.session, e.conn
	}
	r.mu.RUnlock()
	if conn == nil {
		return fmt.Errorf("session %s: %w", sid, core.ErrNotFound)
	}
	err := conn.TrySend(frame)
	if errors.Is(err, core.ErrBackpressure) {
		r.onBackpressure(sess)
	}
	return err
}

func (r *Registry) onBackpressure(sess core.Session) {
	log.Warn().Str("module", "app.registry").Str("sid", string(sess.ID)).Msg("send queue full")
	if r.Policy == nil {
		return
	}
	switch r.Policy.OnBackPressure(sess) {
	case KickMember:
		// A full queue will not drain in time; drop the writer too.
		r.Disconnect(sess.ID)
		r.Cancel(sess.ID)
	case DropFrame, NoAction:
	}
}

func sortSessions(s []core.Session) {
	sort.Slice(s, func(i, j int) bool {
		if !s[i].ConnectedAt.Equal(s[j].ConnectedAt) {
			return s[i].ConnectedAt.Before(s[j].ConnectedAt)
		}
		return s[i].ID < s[j].ID
	})
}
