package broker

import (
	"context"
	"time"

	"room-broker/pkg/logger"
)

// SweepDeadConnections evicts connections whose last ping is older than the
// heartbeat timeout and tells their rooms they left. It returns the number evicted.
func (b *Broker) SweepDeadConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	dead := b.conns.SweepDead(b.now(), b.cfg.HeartbeatTimeout)
	for _, conn := range dead {
		if conn.InRoom() {
			b.leaveRoomLocked(conn)
		}
		logger.Info("Connection %s (%s) evicted: no ping for over %s", conn.ID, conn.Username, b.cfg.HeartbeatTimeout)
	}
	b.drainDropsLocked()
	return len(dead)
}

// SweepIdleRooms deletes empty rooms idle for longer than the idle timeout
// and returns their ids.
func (b *Broker) SweepIdleRooms() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := b.rooms.SweepIdle(b.now(), b.cfg.IdleRoomTimeout)
	for _, id := range removed {
		logger.Debug("Cleaned up idle room %s", id)
	}
	return removed
}

// Run drives the heartbeat and idle-room sweeps until ctx is done.
func (b *Broker) Run(ctx context.Context) error {
	heartbeat := time.NewTicker(b.cfg.HeartbeatInterval)
	defer heartbeat.Stop()
	idle := time.NewTicker(b.cfg.RoomSweepInterval)
	defer idle.Stop()

	logger.Info("Broker sweeps running: heartbeat every %s (timeout %s), idle rooms every %s (timeout %s)",
		b.cfg.HeartbeatInterval, b.cfg.HeartbeatTimeout, b.cfg.RoomSweepInterval, b.cfg.IdleRoomTimeout)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-heartbeat.C:
			if n := b.SweepDeadConnections(); n > 0 {
				logger.Info("Heartbeat sweep evicted %d connection(s)", n)
			}
		case <-idle.C:
			if removed := b.SweepIdleRooms(); len(removed) > 0 {
				logger.Info("Idle sweep removed %d room(s)", len(removed))
			}
		}
	}
}
