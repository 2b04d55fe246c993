package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/metrics"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/transport"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// ParallelWorker is the default scheduling flavor: a dedicated goroutine
// owns the transport's read half and dispatches responses to single-slot
// waiter channels; a mutex around the write half serializes frame
// emission. Senders may call Send concurrently from any goroutine.
//
// Cancelling an awaiting goroutine does not cancel the server-side
// operation: the reader still consumes the eventual response and retires
// the message id then.
type ParallelWorker struct {
	transport   transport.Transport
	transformer *transform.Transformer
	credits     *creditBudget
	timeout     atomicDuration

	writeMu sync.Mutex // serializes transform + frame emission
	nextID  uint64     // guarded by writeMu; ids are allocated in send order

	mu          sync.Mutex
	outstanding map[uint64]*Pending
	asyncIDs    map[uint64]uint64 // async id -> message id
	sink        NotificationSink
	dead        bool
	deadErr     error

	stopOnce sync.Once
	done     chan struct{}
}

type atomicDuration struct {
	mu sync.Mutex
	d  time.Duration
}

func (a *atomicDuration) get() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.d
}

func (a *atomicDuration) set(d time.Duration) {
	a.mu.Lock()
	a.d = d
	a.mu.Unlock()
}

// NewParallelWorker starts the receive loop over the given transport.
func NewParallelWorker(t transport.Transport, timeout time.Duration, creditsBacklog uint16) *ParallelWorker {
	w := &ParallelWorker{
		transport:   t,
		transformer: &transform.Transformer{},
		credits:     newCreditBudget(creditsBacklog),
		outstanding: make(map[uint64]*Pending),
		asyncIDs:    make(map[uint64]uint64),
		done:        make(chan struct{}),
	}
	w.timeout.set(timeout)
	go w.receiveLoop()
	return w
}

// Transformer implements Worker.
func (w *ParallelWorker) Transformer() *transform.Transformer {
	return w.transformer
}

// SetNotificationSink implements Worker.
func (w *ParallelWorker) SetNotificationSink(sink NotificationSink) {
	w.mu.Lock()
	w.sink = sink
	w.mu.Unlock()
}

// SetTimeout implements Worker.
func (w *ParallelWorker) SetTimeout(d time.Duration) error {
	w.timeout.set(d)
	return nil
}

// Send implements Worker.
func (w *ParallelWorker) Send(m *Outgoing) (*Pending, error) {
	charge := CreditCharge(m.PayloadHint)
	if err := w.credits.consume(charge); err != nil {
		return nil, err
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	if w.dead {
		err := w.deadErr
		w.mu.Unlock()
		if err == nil {
			err = ErrConnectionDead
		}
		return nil, err
	}
	w.mu.Unlock()

	m.Header.MessageID = w.nextID
	w.nextID += uint64(charge)
	m.Header.CreditCharge = charge
	m.Header.Credits = w.credits.request(charge)

	pending := &Pending{
		id:    m.Header.MessageID,
		ch:    make(chan *Incoming, 1),
		fatal: make(chan struct{}),
	}
	w.mu.Lock()
	if _, exists := w.outstanding[pending.id]; exists {
		w.mu.Unlock()
		return nil, &DuplicateMessageIDError{ID: pending.id}
	}
	w.outstanding[pending.id] = pending
	metrics.RequestsInFlight.Set(float64(len(w.outstanding)))
	w.mu.Unlock()

	frame, err := w.transformer.TransformOutgoing(msg.Pack(m.Header, m.Body), m.Options)
	if err != nil {
		w.retire(pending.id)
		return nil, err
	}
	if err := w.transport.Send(frame); err != nil {
		w.retire(pending.id)
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(m.Header.Command.String()).Inc()
	metrics.BytesSent.Add(float64(len(frame)))
	return pending, nil
}

// SendControl implements Worker: writes the message as-is, without id
// allocation or credit consumption.
func (w *ParallelWorker) SendControl(m *Outgoing) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	frame, err := w.transformer.TransformOutgoing(msg.Pack(m.Header, m.Body), m.Options)
	if err != nil {
		return err
	}
	if err := w.transport.Send(frame); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(m.Header.Command.String()).Inc()
	metrics.BytesSent.Add(float64(len(frame)))
	return nil
}

// SetNextMessageID implements Worker.
func (w *ParallelWorker) SetNextMessageID(id uint64) {
	w.writeMu.Lock()
	w.nextID = id
	w.writeMu.Unlock()
}

// Receive implements Worker.
func (w *ParallelWorker) Receive(ctx context.Context, p *Pending) (*Incoming, error) {
	timeout := w.timeout.get()
	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer = time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case in := <-p.ch:
		return in, nil
	case <-ctx.Done():
		// The request stays outstanding; the reader consumes and discards
		// the eventual response.
		return nil, ctx.Err()
	case <-timeoutCh:
		metrics.Timeouts.Inc()
		return nil, &OperationTimeoutError{Task: "receive next message", Duration: timeout}
	case <-p.fatal:
		return nil, w.deadError()
	case <-w.done:
		return nil, ErrNotConnected
	}
}

func (w *ParallelWorker) deadError() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.deadErr != nil {
		return w.deadErr
	}
	return ErrConnectionDead
}

// Stop implements Worker.
func (w *ParallelWorker) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		w.credits.close()
		err = w.transport.Close()
	})
	return err
}

func (w *ParallelWorker) retire(id uint64) {
	w.mu.Lock()
	delete(w.outstanding, id)
	metrics.RequestsInFlight.Set(float64(len(w.outstanding)))
	w.mu.Unlock()
}

// receiveLoop owns the transport read half: it reads frames, untransforms
// them, and dispatches each plain message.
func (w *ParallelWorker) receiveLoop() {
	for {
		frame, err := w.transport.Receive()
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			if transport.IsTimeout(err) {
				continue
			}
			w.fail(err)
			return
		}
		metrics.BytesReceived.Add(float64(len(frame)))

		parts, err := w.transformer.TransformIncoming(frame)
		if err != nil {
			// Signature verification failure is fatal to the connection.
			if errors.Is(err, transform.ErrSignatureVerificationFailed) {
				w.fail(err)
				return
			}
			logger.Warn("dropping undecodable frame", logger.KeyError, err)
			continue
		}
		for _, part := range parts {
			w.dispatch(part)
		}
	}
}

// fail marks the connection dead and wakes every waiter.
func (w *ParallelWorker) fail(err error) {
	w.mu.Lock()
	w.dead = true
	w.deadErr = err
	for id, p := range w.outstanding {
		close(p.fatal)
		delete(w.outstanding, id)
	}
	w.mu.Unlock()
	w.credits.close()
	logger.Warn("receive loop terminated", logger.KeyError, err)
}

// dispatch routes one plain message: to its waiter by message id, or to
// the notification sink for server pushes.
func (w *ParallelWorker) dispatch(raw []byte) {
	hdr, err := header.Parse(raw)
	if err != nil {
		logger.Warn("dropping unparseable message", logger.KeyError, err)
		return
	}
	metrics.MessagesReceived.WithLabelValues(hdr.Command.String()).Inc()
	w.credits.grant(hdr.Credits)

	in := &Incoming{Header: hdr, Raw: raw}

	// Async interim response: record the async id against the pending
	// request and keep waiting for the final response.
	if hdr.IsAsync() && hdr.Status == types.StatusPending {
		w.mu.Lock()
		if _, ok := w.outstanding[hdr.MessageID]; ok {
			w.asyncIDs[hdr.AsyncID] = hdr.MessageID
		}
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	p, ok := w.outstanding[hdr.MessageID]
	if ok {
		delete(w.outstanding, hdr.MessageID)
		for asyncID, msgID := range w.asyncIDs {
			if msgID == hdr.MessageID {
				delete(w.asyncIDs, asyncID)
			}
		}
	}
	metrics.RequestsInFlight.Set(float64(len(w.outstanding)))
	sink := w.sink
	w.mu.Unlock()

	if ok {
		// Single-slot channel: delivery never blocks; abandoned waiters
		// (cancelled or timed out) simply leave the response to the GC.
		p.ch <- in
		return
	}

	if hdr.MessageID == MessageIDNotify || hdr.IsAsync() {
		metrics.Notifications.Inc()
		if sink != nil {
			sink.HandleNotification(in)
		} else {
			logger.Debug("notification with no sink",
				logger.KeyCommand, hdr.Command.String())
		}
		return
	}

	logger.Warn("response for unknown message id",
		logger.KeyMessageID, hdr.MessageID,
		logger.KeyCommand, hdr.Command.String())
}
