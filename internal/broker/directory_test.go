package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectory_JoinCreatesRoom(t *testing.T) {
	d := NewDirectory(0)
	now := time.Now()

	members, err := d.Join("r1", "c1", now)
	require.NoError(t, err)
	assert.Equal(t, []string{"c1"}, members)

	members, err = d.Join("r1", "c2", now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, []string{"c1", "c2"}, members)

	info, ok := d.Get("r1")
	require.True(t, ok)
	assert.Equal(t, 2, info.Members)
	assert.Equal(t, now, info.CreatedAt)
	assert.Equal(t, now.Add(time.Second), info.LastActivity)
}

func TestDirectory_Capacity(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		joiners []string
		wantErr bool
	}{
		{name: "unlimited", max: 0, joiners: []string{"c1", "c2", "c3"}},
		{name: "at capacity", max: 2, joiners: []string{"c1", "c2"}},
		{name: "over capacity", max: 2, joiners: []string{"c1", "c2", "c3"}, wantErr: true},
		{name: "rejoin at capacity", max: 2, joiners: []string{"c1", "c2", "c2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDirectory(tt.max)
			var err error
			for _, c := range tt.joiners {
				_, err = d.Join("r1", c, time.Now())
			}
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrRoomFull)
				assert.False(t, d.CanJoin("r1", "c3"))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDirectory_LeaveKeepsEmptyRoom(t *testing.T) {
	d := NewDirectory(0)
	now := time.Now()
	_, _ = d.Join("r1", "c1", now)
	_, _ = d.Join("r1", "c2", now)

	assert.False(t, d.Leave("r1", "c1", now))
	assert.True(t, d.Leave("r1", "c2", now))
	assert.Empty(t, d.Members("r1"))
	assert.Equal(t, 1, d.Len())

	assert.False(t, d.Leave("unknown", "c1", now))
}

func TestDirectory_MembersOfUnknownRoom(t *testing.T) {
	d := NewDirectory(0)
	assert.Empty(t, d.Members("nope"))
}

func TestDirectory_SweepIdle(t *testing.T) {
	d := NewDirectory(0)
	start := time.Now()

	_, _ = d.Join("idle", "c1", start)
	d.Leave("idle", "c1", start)

	_, _ = d.Join("recent", "c2", start)
	d.Leave("recent", "c2", start.Add(50*time.Minute))

	_, _ = d.Join("occupied", "c3", start)

	removed := d.SweepIdle(start.Add(61*time.Minute), time.Hour)
	assert.Equal(t, []string{"idle"}, removed)

	_, ok := d.Get("idle")
	assert.False(t, ok)
	_, ok = d.Get("recent")
	assert.True(t, ok)
	_, ok = d.Get("occupied")
	assert.True(t, ok)
}

func TestDirectory_TouchDefersSweep(t *testing.T) {
	d := NewDirectory(0)
	start := time.Now()
	_, _ = d.Join("r1", "c1", start)
	d.Leave("r1", "c1", start)

	d.Touch("r1", start.Add(30*time.Minute))
	assert.Empty(t, d.SweepIdle(start.Add(61*time.Minute), time.Hour))
	assert.Equal(t, []string{"r1"}, d.SweepIdle(start.Add(91*time.Minute), time.Hour))
}
