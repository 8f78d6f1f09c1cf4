package orch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/adapters/store"
	"github.com/dkeye/parley/internal/app"
	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (c *fakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames = nil
}

func (c *fakeConn) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.frames))
	for _, f := range c.frames {
		var head struct {
			Type string `json:"type"`
		}
		_ = json.Unmarshal(f, &head)
		out = append(out, head.Type)
	}
	return out
}

func last[T any](t *testing.T, c *fakeConn, typ string) T {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(c.frames[i], &head))
		if head.Type == typ {
			var v T
			require.NoError(t, json.Unmarshal(c.frames[i], &v))
			return v
		}
	}
	t.Fatalf("no %s event received", typ)
	var zero T
	return zero
}

// tokenAuth accepts "name" and "name:admin".
type tokenAuth struct{}

func (tokenAuth) Authenticate(_ context.Context, credential string) (*domain.User, error) {
	if credential == "" {
		return nil, errors.New("missing credential")
	}
	name, admin := strings.CutSuffix(credential, ":admin")
	return domain.NewUser(name, admin)
}

func newOrch(t *testing.T) *Orchestrator {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.CreateChannel(ctx, &domain.Channel{Name: "general", Type: domain.ChannelText}))
	require.NoError(t, st.CreateChannel(ctx, &domain.Channel{Name: "Lounge", Description: "chill", Type: domain.ChannelVoice}))
	return New(Options{
		Store:      st,
		Auth:       tokenAuth{},
		ICEServers: []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
	})
}

func connect(t *testing.T, o *Orchestrator, credential string) (core.SessionID, *fakeConn) {
	t.Helper()
	conn := &fakeConn{}
	sid, err := o.Connect(context.Background(), credential, conn, func() {})
	require.NoError(t, err)
	return sid, conn
}

func TestConnectSendsInitialState(t *testing.T) {
	o := newOrch(t)
	_, other := connect(t, o, "bob")
	other.reset()

	sid, conn := connect(t, o, "alice:admin")
	assert.Equal(t, []string{
		core.EvUserInfo,
		core.EvOnlineUsers,
		core.EvChannelList,
		core.EvVoiceRoomList,
	}, conn.types())

	info := last[core.UserInfoEvent](t, conn, core.EvUserInfo)
	assert.Equal(t, sid, info.SessionID)
	assert.True(t, info.IsAdmin)
	assert.Nil(t, info.VoiceState)
	require.Len(t, info.ICEServers, 1)

	channels := last[core.ChannelListEvent](t, conn, core.EvChannelList)
	require.Len(t, channels.Channels, 1)
	assert.Equal(t, "general", channels.Channels[0].Name)

	rooms := last[core.VoiceRoomListEvent](t, conn, core.EvVoiceRoomList)
	require.Len(t, rooms.Rooms, 1)
	assert.Equal(t, "chill", rooms.Rooms[0].Description)

	online := last[core.OnlineUsersEvent](t, other, core.EvOnlineUsers)
	assert.Len(t, online.Users, 2)
}

func TestConnectRejectsBadCredential(t *testing.T) {
	o := newOrch(t)
	_, err := o.Connect(context.Background(), "", &fakeConn{}, nil)
	assert.ErrorIs(t, err, core.ErrAuth)
	assert.Zero(t, o.Registry.Count())
}

func TestDisconnectTearsDown(t *testing.T) {
	o := newOrch(t)
	a, _ := connect(t, o, "alice")
	_, connB := connect(t, o, "bob")
	require.NoError(t, o.JoinVoice(a, "Lounge"))
	require.NoError(t, o.JoinText(context.Background(), a, "general"))
	connB.reset()

	o.OnDisconnect(a)
	_, err := o.Registry.Lookup(a)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, exists := o.Rooms.GetRoom("Lounge")
	assert.False(t, exists)
	assert.Empty(t, o.Registry.InTextChannel("general"))

	online := last[core.OnlineUsersEvent](t, connB, core.EvOnlineUsers)
	require.Len(t, online.Users, 1)
	assert.Equal(t, "bob", online.Users[0].Username)

	connB.reset()
	o.OnDisconnect(a)
	assert.Empty(t, connB.types())
}

func TestJoinVoiceBroadcastsPresence(t *testing.T) {
	o := newOrch(t)
	a, _ := connect(t, o, "alice")
	_, connB := connect(t, o, "bob")
	connB.reset()

	require.NoError(t, o.JoinVoice(a, "Lounge"))
	online := last[core.OnlineUsersEvent](t, connB, core.EvOnlineUsers)
	require.NotNil(t, online.Users[0].VoiceRoom)
	assert.EqualValues(t, "Lounge", *online.Users[0].VoiceRoom)

	connB.reset()
	require.NoError(t, o.JoinVoice(a, "Lounge"))
	assert.Empty(t, connB.types(), "re-joining the same room changes nothing")

	o.LeaveVoice(a)
	online = last[core.OnlineUsersEvent](t, connB, core.EvOnlineUsers)
	assert.Nil(t, online.Users[0].VoiceRoom)
}

func TestSetVoiceStateRejectsUnknownField(t *testing.T) {
	o := newOrch(t)
	a, _ := connect(t, o, "alice")
	assert.ErrorIs(t, o.SetVoiceState(a, "volume", true), core.ErrInvalid)
	assert.NoError(t, o.SetVoiceState(a, "muted", true))
}

func TestWhoAmIReportsVoiceState(t *testing.T) {
	o := newOrch(t)
	a, conn := connect(t, o, "alice")

	require.NoError(t, o.SetVoiceState(a, "deafened", true))
	require.NoError(t, o.WhoAmI(a))
	info := last[core.UserInfoEvent](t, conn, core.EvUserInfo)
	require.NotNil(t, info.VoiceState)
	assert.True(t, info.VoiceState.Deafened)
	assert.Empty(t, info.VoiceRoom)

	require.NoError(t, o.JoinVoice(a, "Lounge"))
	require.NoError(t, o.SetVoiceState(a, "camera", true))
	require.NoError(t, o.WhoAmI(a))
	info = last[core.UserInfoEvent](t, conn, core.EvUserInfo)
	assert.Equal(t, domain.RoomName("Lounge"), info.VoiceRoom)
	require.NotNil(t, info.VoiceState)
	assert.True(t, info.VoiceState.Deafened)
	assert.True(t, info.VoiceState.Camera)
}

func TestNonAdminKickIsRejected(t *testing.T) {
	o := newOrch(t)
	a, connA := connect(t, o, "alice")
	b, connB := connect(t, o, "bob")
	require.NoError(t, o.JoinVoice(b, "Lounge"))
	connA.reset()
	connB.reset()

	n, err := o.KickFromVoice(a, "bob")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Zero(t, n)
	assert.Empty(t, connA.types())
	assert.Empty(t, connB.types())
	room, _ := o.Voice.RoomOf(b)
	assert.EqualValues(t, "Lounge", room)

	_, err = o.DisconnectUser(a, "bob")
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.False(t, connB.isClosed())

	assert.ErrorIs(t, o.CreateChannel(context.Background(), a, ChannelInput{Name: "x", Type: "text"}), core.ErrUnauthorized)
	assert.ErrorIs(t, o.DeleteChannel(context.Background(), a, "general"), core.ErrUnauthorized)
	assert.ErrorIs(t, o.DeleteMessage(context.Background(), a, 1), core.ErrUnauthorized)
}

func TestAdminKick(t *testing.T) {
	o := newOrch(t)
	admin, connAdmin := connect(t, o, "root:admin")
	b, connB := connect(t, o, "bob")
	require.NoError(t, o.JoinVoice(b, "Lounge"))

	n, err := o.KickFromVoice(admin, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	kicked := last[core.KickedEvent](t, connB, core.EvKicked)
	assert.Equal(t, "kicked by root", kicked.Reason)
	assert.False(t, connB.isClosed())

	n, err = o.KickFromVoice(admin, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
	notice := last[core.NoticeEvent](t, connAdmin, core.EvSuccess)
	assert.Contains(t, notice.Message, "nothing to do")
}

func TestAdminDisconnect(t *testing.T) {
	o := newOrch(t)
	admin, connAdmin := connect(t, o, "root:admin")
	b, connB := connect(t, o, "bob")
	require.NoError(t, o.JoinVoice(b, "Lounge"))

	n, err := o.DisconnectUser(admin, "bob")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, connB.isClosed())
	assert.Contains(t, connB.types(), core.EvKicked)
	_, err = o.Registry.Lookup(b)
	assert.ErrorIs(t, err, core.ErrNotFound)

	online := last[core.OnlineUsersEvent](t, connAdmin, core.EvOnlineUsers)
	assert.Len(t, online.Users, 1)

	o.OnDisconnect(b)
	n, err = o.DisconnectUser(admin, "bob")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestAdminChannelLifecycle(t *testing.T) {
	ctx := context.Background()
	o := newOrch(t)
	admin, _ := connect(t, o, "root:admin")
	b, connB := connect(t, o, "bob")

	require.NoError(t, o.CreateChannel(ctx, admin, ChannelInput{Name: "Stage", Type: "voice"}))
	rooms := last[core.VoiceRoomListEvent](t, connB, core.EvVoiceRoomList)
	assert.Len(t, rooms.Rooms, 2)

	err := o.CreateChannel(ctx, admin, ChannelInput{Name: "Stage", Type: "voice"})
	assert.ErrorIs(t, err, core.ErrInvalid)
	err = o.CreateChannel(ctx, admin, ChannelInput{Name: "x", Type: "video"})
	assert.ErrorIs(t, err, core.ErrInvalid)

	require.NoError(t, o.JoinVoice(b, "Stage"))
	require.NoError(t, o.DeleteChannel(ctx, admin, "Stage"))
	kicked := last[core.KickedEvent](t, connB, core.EvKicked)
	assert.Equal(t, "room deleted", kicked.Reason)
	room, _ := o.Voice.RoomOf(b)
	assert.Empty(t, room)

	require.NoError(t, o.JoinText(ctx, b, "general"))
	require.NoError(t, o.DeleteChannel(ctx, admin, "general"))
	sess, err := o.Registry.Lookup(b)
	require.NoError(t, err)
	assert.Empty(t, sess.TextChannel)
	channels := last[core.ChannelListEvent](t, connB, core.EvChannelList)
	assert.Empty(t, channels.Channels)

	assert.ErrorIs(t, o.DeleteChannel(ctx, admin, "general"), core.ErrInvalid)
}

func TestAdminDeleteMessage(t *testing.T) {
	ctx := context.Background()
	o := newOrch(t)
	admin, _ := connect(t, o, "root:admin")
	b, connB := connect(t, o, "bob")
	require.NoError(t, o.JoinText(ctx, b, "general"))
	require.NoError(t, o.SendChat(ctx, b, app.ChatInput{Text: "spam"}))
	msg := last[core.ChatMessageEvent](t, connB, core.EvChatMessage)

	require.NoError(t, o.DeleteMessage(ctx, admin, msg.Message.ID))
	deleted := last[core.MessageDeletedEvent](t, connB, core.EvMessageDeleted)
	assert.Equal(t, msg.Message.ID, deleted.ID)
	assert.ErrorIs(t, o.DeleteMessage(ctx, admin, msg.Message.ID), core.ErrInvalid)
}

func TestVoiceRoomListIncludesLiveRooms(t *testing.T) {
	o := newOrch(t)
	a, _ := connect(t, o, "alice")
	require.NoError(t, o.JoinVoice(a, "Pop-up"))

	rooms, err := o.VoiceRoomList(context.Background())
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.EqualValues(t, "Lounge", rooms[0].Name)
	assert.Empty(t, rooms[0].Users)
	assert.EqualValues(t, "Pop-up", rooms[1].Name)
	assert.Equal(t, []string{"alice"}, rooms[1].Users)
}

func TestSignalCrossRoomDelivers(t *testing.T) {
	o := newOrch(t)
	a, _ := connect(t, o, "A")
	b, connB := connect(t, o, "B")
	require.NoError(t, o.JoinVoice(a, "X"))
	require.NoError(t, o.JoinVoice(b, "Y"))

	require.NoError(t, o.Signal(app.SignalOffer, a, b, json.RawMessage(`{"sdp":"..."}`)))
	got := last[core.SignalEvent](t, connB, string(app.SignalOffer))
	assert.Equal(t, a, got.FromSessionID)
}

func TestShutdownClosesConnections(t *testing.T) {
	o := newOrch(t)
	_, connA := connect(t, o, "alice")
	o.Shutdown()
	assert.True(t, connA.isClosed())
	assert.Contains(t, connA.types(), core.EvKicked)
}

// checkSingleRoom asserts that every session sits in at most one room and
// that the room index, the registry and the coordinator agree.
func checkSingleRoom(t *testing.T, o *Orchestrator, sids []core.SessionID) {
	t.Helper()
	seen := make(map[core.SessionID]domain.RoomName)
	for _, info := range o.Rooms.List() {
		room, ok := o.Rooms.GetRoom(info.Name)
		if !ok {
			continue
		}
		for _, sid := range room.Members() {
			prev, dup := seen[sid]
			assert.False(t, dup, "%s in both %s and %s", sid, prev, info.Name)
			seen[sid] = info.Name
		}
	}
	for _, sid := range sids {
		sess, err := o.Registry.Lookup(sid)
		if !assert.NoError(t, err) {
			continue
		}
		assert.Equal(t, seen[sid], sess.VoiceRoom, "registry room of %s", sid)

		room, phase := o.Voice.RoomOf(sid)
		assert.Equal(t, sess.VoiceRoom, room, "coordinator room of %s", sid)
		if room == "" {
			assert.Equal(t, app.NoVoice, phase)
		} else {
			assert.Equal(t, app.InRoom, phase)
		}
	}
}

// Run with -race.
func TestConcurrentVoiceSingleRoom(t *testing.T) {
	o := newOrch(t)
	rooms := []domain.RoomName{"Lounge", "Gaming", "Music"}
	const (
		sessions = 12
		rounds   = 150
	)
	sids := make([]core.SessionID, 0, sessions)
	for i := range sessions {
		sid, _ := connect(t, o, fmt.Sprintf("user%02d", i))
		sids = append(sids, sid)
	}

	done := make(chan struct{})
	checked := make(chan int)
	go func() {
		n := 0
		defer func() { checked <- n }()
		for {
			o.mu.Lock()
			checkSingleRoom(t, o, sids)
			o.mu.Unlock()
			n++
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	var wg sync.WaitGroup
	for i, sid := range sids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r := range rounds {
				switch (i + r) % 5 {
				case 0, 1, 2:
					assert.NoError(t, o.JoinVoice(sid, rooms[(i+r)%len(rooms)]))
				case 3:
					assert.NoError(t, o.SetVoiceState(sid, "muted", r%2 == 0))
				case 4:
					o.LeaveVoice(sid)
				}
			}
		}()
	}
	wg.Wait()
	close(done)
	assert.Positive(t, <-checked)

	checkSingleRoom(t, o, sids)
	total := 0
	for _, info := range o.Rooms.List() {
		total += info.MemberCount
	}
	inVoice := 0
	for _, sess := range o.Registry.All() {
		if sess.InVoice() {
			inVoice++
		}
	}
	assert.Equal(t, inVoice, total)
}
