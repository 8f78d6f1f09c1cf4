package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/parley/internal/core"
	"github.com/dkeye/parley/internal/domain"
)

func steppingClock() func() time.Time {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return func() time.Time {
		n++
		return base.Add(time.Duration(n) * time.Second)
	}
}

func TestRegistryAdmit(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})

	sid, _ := admit(t, reg, "alice:admin")
	sess, err := reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, "alice", sess.User.Username)
	assert.True(t, sess.User.IsAdmin)
	assert.Empty(t, sess.TextChannel)
	assert.Empty(t, sess.VoiceRoom)

	_, err = reg.Admit(context.Background(), "bad", &fakeConn{}, nil)
	assert.ErrorIs(t, err, core.ErrAuth)
	assert.Equal(t, 1, reg.Count())

	noAuth := NewRegistry(nil, nil)
	_, err = noAuth.Admit(context.Background(), "alice", &fakeConn{}, nil)
	assert.ErrorIs(t, err, core.ErrAuth)
}

func TestRegistryLookupAfterRemove(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})
	sid, conn := admit(t, reg, "alice")

	removed, ok := reg.Remove(sid)
	require.True(t, ok)
	assert.Equal(t, sid, removed.ID)

	_, err := reg.Lookup(sid)
	assert.ErrorIs(t, err, core.ErrNotFound)
	_, ok = reg.Remove(sid)
	assert.False(t, ok)

	assert.ErrorIs(t, reg.Send(sid, core.SuccessEvent("hi")), core.ErrNotFound)
	_, err = reg.SetTextChannel(sid, "general")
	assert.ErrorIs(t, err, core.ErrNotFound)
	assert.Empty(t, conn.types())
}

func TestRegistryQueries(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})
	reg.now = steppingClock()

	a, _ := admit(t, reg, "alice")
	b, _ := admit(t, reg, "bob")
	a2, _ := admit(t, reg, "alice")

	all := reg.All()
	require.Len(t, all, 3)
	assert.Equal(t, []core.SessionID{a, b, a2}, []core.SessionID{all[0].ID, all[1].ID, all[2].ID})

	alices := reg.ByUsername("alice")
	require.Len(t, alices, 2)
	assert.Equal(t, a, alices[0].ID)

	prev, err := reg.SetTextChannel(a, "general")
	require.NoError(t, err)
	assert.Empty(t, prev)
	_, err = reg.SetTextChannel(b, "general")
	require.NoError(t, err)
	prev, err = reg.SetTextChannel(a, "random")
	require.NoError(t, err)
	assert.EqualValues(t, "general", prev)

	assert.ElementsMatch(t, []core.SessionID{b}, reg.InTextChannel("general"))
	assert.ElementsMatch(t, []core.SessionID{a}, reg.InTextChannel("random"))
}

func TestRegistrySendAll(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})
	_, c1 := admit(t, reg, "alice")
	_, c2 := admit(t, reg, "bob")

	reg.SendAll(core.SuccessEvent("hello"))
	assert.Equal(t, []string{core.EvSuccess}, c1.types())
	assert.Equal(t, []string{core.EvSuccess}, c2.types())
}

func TestRegistryBackpressureDisconnects(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	conn := &fakeConn{full: true}
	sid, err := reg.Admit(ctx, "alice", conn, cancel)
	require.NoError(t, err)

	err = reg.Send(sid, core.SuccessEvent("hi"))
	assert.ErrorIs(t, err, core.ErrBackpressure)
	assert.True(t, conn.isClosed())
	assert.ErrorIs(t, ctx.Err(), context.Canceled, "a stalled writer is not waited for")
}

type noActionPolicy struct{}

func (noActionPolicy) OnBackPressure(core.Session) BackpressureAction { return NoAction }

// Run with -race: the backpressure path must not read the session record
// while a channel switch writes it.
func TestRegistryBackpressureDuringChannelSwitch(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, noActionPolicy{})
	conn := &fakeConn{full: true}
	sid, err := reg.Admit(context.Background(), "alice", conn, func() {})
	require.NoError(t, err)

	const rounds = 500
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range rounds {
			name := domain.ChannelName("a")
			if i%2 == 1 {
				name = "b"
			}
			_, _ = reg.SetTextChannel(sid, name)
			_ = reg.SetVoiceRoom(sid, domain.RoomName(name))
		}
	}()
	go func() {
		defer wg.Done()
		for range rounds {
			assert.ErrorIs(t, reg.Send(sid, core.SuccessEvent("hi")), core.ErrBackpressure)
		}
	}()
	wg.Wait()

	sess, err := reg.Lookup(sid)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelName("b"), sess.TextChannel)
	assert.False(t, conn.isClosed())
}

type dropPolicy struct{}

func (dropPolicy) OnBackPressure(core.Session) BackpressureAction { return DropFrame }

func TestRegistryBackpressureDropPolicy(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, dropPolicy{})
	sid, conn := admit(t, reg, "alice")
	conn.full = true

	_ = reg.Send(sid, core.SuccessEvent("hi"))
	assert.False(t, conn.isClosed())
}

func TestRegistryCancel(t *testing.T) {
	reg := NewRegistry(fakeAuth{}, SimplePolicy{})
	ctx, cancel := context.WithCancel(context.Background())
	sid, err := reg.Admit(ctx, "alice", &fakeConn{}, cancel)
	require.NoError(t, err)

	assert.True(t, reg.Cancel(sid))
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
	assert.False(t, reg.Cancel("missing"))
	assert.False(t, reg.Disconnect("missing"))
}

func TestAdminGate(t *testing.T) {
	gate := AdminGate{}
	admin := core.Session{}
	admin.User.IsAdmin = true
	assert.True(t, gate.Authorize(admin, ActionKick))
	assert.False(t, gate.Authorize(core.Session{}, ActionDeleteChannel))
}
