// Package worker owns the transport, the transformer, the credit budget,
// and the correlation of outstanding message ids to waiters. Two
// implementations satisfy the same contract: ParallelWorker runs a
// dedicated receive goroutine and supports concurrent senders;
// SingleWorker runs send-then-receive on the caller with one request in
// flight. The connection takes either by composition.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/transform"
)

// MessageIDNotify is the well-known id carried by server-initiated
// notifications (oplock and lease breaks).
const MessageIDNotify = ^uint64(0)

// ErrNotConnected is returned after Stop or transport loss.
var ErrNotConnected = errors.New("worker: not connected")

// ErrCreditStarvation is returned when a request's charge can never be
// satisfied by the credit window.
var ErrCreditStarvation = errors.New("worker: request would exhaust credits")

// ErrConnectionDead is returned for requests after a fatal receive error.
var ErrConnectionDead = errors.New("worker: connection failed")

// DuplicateMessageIDError reports an id already present in the outstanding
// set, which is a fatal programming error.
type DuplicateMessageIDError struct {
	ID uint64
}

func (e *DuplicateMessageIDError) Error() string {
	return fmt.Sprintf("worker: duplicate outstanding message id %d", e.ID)
}

// UnexpectedMessageIDError reports a response whose id does not match the
// expectation (single-threaded flavor only).
type UnexpectedMessageIDError struct {
	Got      uint64
	Expected uint64
}

func (e *UnexpectedMessageIDError) Error() string {
	return fmt.Sprintf("worker: unexpected message id %d, expected %d", e.Got, e.Expected)
}

// OperationTimeoutError reports a receive that exceeded its deadline. The
// request stays outstanding; its id is retired when the response arrives.
type OperationTimeoutError struct {
	Task     string
	Duration time.Duration
}

func (e *OperationTimeoutError) Error() string {
	return fmt.Sprintf("worker: %s timed out after %s", e.Task, e.Duration)
}

// Outgoing is one request handed to Send. The header's message id, credit
// charge, and credit request fields are filled in by the worker.
type Outgoing struct {
	Header *header.Header
	Body   []byte

	// PayloadHint is the larger of the request payload and the expected
	// response payload, driving the credit charge.
	PayloadHint uint32

	// Options adjust the transformer (skip signing during negotiate,
	// force encryption for a tree).
	Options transform.Options
}

// Incoming is one received plain message.
type Incoming struct {
	Header *header.Header
	Raw    []byte // full message: header + body
}

// Pending correlates a sent request with its eventual response.
type Pending struct {
	id    uint64
	ch    chan *Incoming
	fatal chan struct{} // closed when the connection dies
}

// MessageID returns the id allocated to the request.
func (p *Pending) MessageID() uint64 { return p.id }

// NotificationSink receives server-initiated messages: oplock breaks,
// lease breaks, and async interim notifications that match no waiter.
type NotificationSink interface {
	HandleNotification(msg *Incoming)
}

// Worker is the contract shared by both scheduling flavors.
type Worker interface {
	// Send allocates a message id and credits, applies transforms, and
	// writes the request. The returned Pending is the receive handle.
	Send(msg *Outgoing) (*Pending, error)

	// Receive blocks until the response for p arrives, the context is
	// cancelled, or the configured timeout elapses.
	Receive(ctx context.Context, p *Pending) (*Incoming, error)

	// SendControl writes a message without allocating a message id or
	// consuming credits. Used for CANCEL, which carries the id of the
	// request it targets.
	SendControl(msg *Outgoing) error

	// SetNextMessageID overrides the id allocator, used once after the
	// SMB1 multi-protocol probe consumed message id 0. Must be called
	// before any Send.
	SetNextMessageID(id uint64)

	// SetNotificationSink registers the destination for server pushes.
	SetNotificationSink(sink NotificationSink)

	// Transformer exposes the crypto pipeline for FSM state installs.
	Transformer() *transform.Transformer

	// SetTimeout adjusts the per-operation receive timeout.
	SetTimeout(d time.Duration) error

	// Stop tears down the worker and the transport.
	Stop() error
}

// CreditCharge computes the charge for a payload: one credit per 64 KiB,
// minimum one.
// [MS-SMB2] Section 3.2.4.1.5
func CreditCharge(payload uint32) uint16 {
	if payload == 0 {
		return 1
	}
	charge := (payload + 65535) / 65536
	if charge > 0xFFFF {
		return 0xFFFF
	}
	return uint16(charge)
}
