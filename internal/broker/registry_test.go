package broker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestRegistry_RegisterAndBind(t *testing.T) {
	r := NewRegistry(nil)
	now := time.Now()

	id := r.Register(&mockTransport{}, now)
	require.NotEmpty(t, id)

	conn, ok := r.Get(id)
	require.True(t, ok)
	assert.False(t, conn.Identified())
	assert.False(t, conn.InRoom())
	assert.True(t, conn.Alive)
	assert.Equal(t, now, conn.LastPong)

	require.NoError(t, r.BindIdentity(id, "u1", "alice"))
	conn, _ = r.Get(id)
	assert.Equal(t, "u1", conn.UserID)
	assert.Equal(t, "alice", conn.Username)

	err := r.BindIdentity("missing", "u2", "bob")
	assert.ErrorIs(t, err, ErrUnknownConnection)
}

func TestRegistry_ClearIdentityKeepsVerified(t *testing.T) {
	r := NewRegistry(nil)
	asserted := r.Register(&mockTransport{}, time.Now())
	verified := r.Register(&mockTransport{}, time.Now())

	require.NoError(t, r.BindIdentity(asserted, "u1", "alice"))
	require.NoError(t, r.BindVerified(verified, "u2", "bob"))

	require.NoError(t, r.ClearIdentity(asserted))
	require.NoError(t, r.ClearIdentity(verified))

	conn, _ := r.Get(asserted)
	assert.False(t, conn.Identified())
	conn, _ = r.Get(verified)
	assert.Equal(t, "u2", conn.UserID)
}

func TestRegistry_MarkPongUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	assert.NotPanics(t, func() { r.MarkPong("missing", time.Now()) })
}

func TestRegistry_Send(t *testing.T) {
	r := NewRegistry(nil)
	ok := &mockTransport{}
	broken := &mockTransport{sendErr: errors.New("buffer full")}
	okID := r.Register(ok, time.Now())
	brokenID := r.Register(broken, time.Now())

	require.NoError(t, r.Send(okID, []byte(`{"type":"pong"}`)))
	assert.Len(t, ok.sent, 1)

	assert.ErrorIs(t, r.Send(brokenID, []byte("x")), ErrConnectionClosed)
	assert.ErrorIs(t, r.Send("missing", []byte("x")), ErrUnknownConnection)
}

func TestRegistry_EvictIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	tr := &mockTransport{}
	id := r.Register(tr, time.Now())

	conn, ok := r.Evict(id)
	require.True(t, ok)
	assert.Equal(t, id, conn.ID)
	assert.False(t, conn.Alive)
	assert.True(t, tr.isClosed())
	assert.Equal(t, 0, r.Len())

	_, ok = r.Evict(id)
	assert.False(t, ok)
}

func TestRegistry_SweepDead(t *testing.T) {
	r := NewRegistry(nil)
	start := time.Now()

	stale := &mockTransport{}
	fresh := &mockTransport{}
	staleID := r.Register(stale, start)
	freshID := r.Register(fresh, start)

	r.MarkPong(freshID, start.Add(50*time.Second))

	dead := r.SweepDead(start.Add(61*time.Second), 60*time.Second)
	require.Len(t, dead, 1)
	assert.Equal(t, staleID, dead[0].ID)
	assert.True(t, stale.isClosed())
	assert.False(t, fresh.isClosed())

	_, ok := r.Get(staleID)
	assert.False(t, ok)
	_, ok = r.Get(freshID)
	assert.True(t, ok)
}

func TestRegistry_Allow(t *testing.T) {
	r := NewRegistry(func() *rate.Limiter { return rate.NewLimiter(rate.Limit(1), 2) })
	now := time.Now()
	id := r.Register(&mockTransport{}, now)

	assert.True(t, r.Allow(id, now))
	assert.True(t, r.Allow(id, now))
	assert.False(t, r.Allow(id, now))
	assert.True(t, r.Allow(id, now.Add(time.Second)))
	assert.False(t, r.Allow("missing", now))
}
