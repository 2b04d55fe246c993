package smbclient

import (
	"context"
	"sync"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/types"
	"github.com/marmos91/smbclient/internal/smb/worker"
)

// breakRegistry is the connection's notification sink: it receives
// server-initiated oplock and lease break notifications from the worker
// and routes them to registered handlers, acknowledging unclaimed breaks
// itself so the server is never left waiting.
type breakRegistry struct {
	mu       sync.Mutex
	conn     *Connection
	oplock   map[types.FileID]func(level types.OplockLevel)
	lease    map[[16]byte]func(newState uint32)
}

func (r *breakRegistry) bind(c *Connection) {
	r.mu.Lock()
	r.conn = c
	r.mu.Unlock()
}

// registerOplock routes break notifications for a file id.
func (r *breakRegistry) registerOplock(id types.FileID, fn func(types.OplockLevel)) {
	r.mu.Lock()
	if r.oplock == nil {
		r.oplock = make(map[types.FileID]func(types.OplockLevel))
	}
	r.oplock[id] = fn
	r.mu.Unlock()
}

func (r *breakRegistry) unregisterOplock(id types.FileID) {
	r.mu.Lock()
	delete(r.oplock, id)
	r.mu.Unlock()
}

// registerLease routes lease break notifications for a lease key.
func (r *breakRegistry) registerLease(key [16]byte, fn func(newState uint32)) {
	r.mu.Lock()
	if r.lease == nil {
		r.lease = make(map[[16]byte]func(uint32))
	}
	r.lease[key] = fn
	r.mu.Unlock()
}

func (r *breakRegistry) unregisterLease(key [16]byte) {
	r.mu.Lock()
	delete(r.lease, key)
	r.mu.Unlock()
}

// HandleNotification implements worker.NotificationSink. It is invoked on
// the worker's receive goroutine, and acknowledging a break round-trips
// through that same goroutine, so the work runs detached.
func (r *breakRegistry) HandleNotification(in *worker.Incoming) {
	if in.Header.Command != types.CommandOplockBreak {
		logger.Debug("ignoring unexpected notification",
			logger.KeyCommand, in.Header.Command.String(),
			logger.KeyMessageID, in.Header.MessageID)
		return
	}

	// The structure size distinguishes oplock breaks (24) from lease
	// breaks (44).
	if len(in.Raw) >= header.Size+2 {
		switch uint16(in.Raw[header.Size]) | uint16(in.Raw[header.Size+1])<<8 {
		case 24:
			go r.handleOplockBreak(in.Raw)
			return
		case 44:
			go r.handleLeaseBreak(in.Raw)
			return
		}
	}
	logger.Warn("malformed break notification", "bytes", len(in.Raw))
}

func (r *breakRegistry) handleOplockBreak(raw []byte) {
	n, err := msg.DecodeOplockBreakNotification(raw)
	if err != nil {
		logger.Warn("bad oplock break", logger.KeyError, err)
		return
	}

	r.mu.Lock()
	handler := r.oplock[types.FileID(n.FileID)]
	conn := r.conn
	r.mu.Unlock()

	if handler != nil {
		handler(types.OplockLevel(n.OplockLevel))
	}

	// Acknowledge at the level the server lowered us to.
	if conn == nil {
		return
	}
	sess := conn.currentSession()
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = conn.roundTrip(ctx, &request{
		command:   types.CommandOplockBreak,
		sessionID: sess.id,
		body: (&msg.OplockBreakAcknowledgment{
			OplockLevel: n.OplockLevel,
			FileID:      n.FileID,
		}).Encode(),
	})
	if err != nil {
		logger.Warn("oplock break ack failed", logger.KeyError, err)
	}
}

func (r *breakRegistry) handleLeaseBreak(raw []byte) {
	n, err := msg.DecodeLeaseBreakNotification(raw)
	if err != nil {
		logger.Warn("bad lease break", logger.KeyError, err)
		return
	}

	r.mu.Lock()
	handler := r.lease[n.LeaseKey]
	conn := r.conn
	r.mu.Unlock()

	if handler != nil {
		handler(n.NewLeaseState)
	}

	if conn == nil {
		return
	}
	sess := conn.currentSession()
	if sess == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err = conn.roundTrip(ctx, &request{
		command:   types.CommandOplockBreak,
		sessionID: sess.id,
		body: (&msg.LeaseBreakAcknowledgment{
			LeaseKey:   n.LeaseKey,
			LeaseState: n.NewLeaseState,
		}).Encode(),
	})
	if err != nil {
		logger.Warn("lease break ack failed", logger.KeyError, err)
	}
}
