package worker

import (
	"context"
	"time"

	"github.com/marmos91/smbclient/internal/metrics"
	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/transport"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// SingleWorker is the single-threaded scheduling flavor: send and receive
// run sequentially on the caller's goroutine, one request in flight at a
// time, no locks on the hot path. Notifications reach the sink only while a
// Receive call is reading frames for a pending request.
type SingleWorker struct {
	transport   transport.Transport
	transformer *transform.Transformer
	credits     *creditBudget
	timeout     time.Duration
	nextID      uint64
	sink        NotificationSink
	stopped     bool
}

// NewSingleWorker wraps the transport without spawning any goroutine.
func NewSingleWorker(t transport.Transport, timeout time.Duration, creditsBacklog uint16) *SingleWorker {
	t.SetReadTimeout(timeout)
	return &SingleWorker{
		transport:   t,
		transformer: &transform.Transformer{},
		credits:     newCreditBudget(creditsBacklog),
		timeout:     timeout,
	}
}

// Transformer implements Worker.
func (w *SingleWorker) Transformer() *transform.Transformer {
	return w.transformer
}

// SetNotificationSink implements Worker.
func (w *SingleWorker) SetNotificationSink(sink NotificationSink) {
	w.sink = sink
}

// SetTimeout implements Worker.
func (w *SingleWorker) SetTimeout(d time.Duration) error {
	if w.stopped {
		return ErrNotConnected
	}
	w.timeout = d
	return w.transport.SetReadTimeout(d)
}

// Send implements Worker.
func (w *SingleWorker) Send(m *Outgoing) (*Pending, error) {
	if w.stopped {
		return nil, ErrNotConnected
	}
	charge := CreditCharge(m.PayloadHint)
	if err := w.credits.consume(charge); err != nil {
		return nil, err
	}

	m.Header.MessageID = w.nextID
	w.nextID += uint64(charge)
	m.Header.CreditCharge = charge
	m.Header.Credits = w.credits.request(charge)

	frame, err := w.transformer.TransformOutgoing(msg.Pack(m.Header, m.Body), m.Options)
	if err != nil {
		return nil, err
	}
	if err := w.transport.Send(frame); err != nil {
		return nil, err
	}
	metrics.MessagesSent.WithLabelValues(m.Header.Command.String()).Inc()
	metrics.BytesSent.Add(float64(len(frame)))
	return &Pending{id: m.Header.MessageID}, nil
}

// SendControl implements Worker: writes the message as-is, without id
// allocation or credit consumption.
func (w *SingleWorker) SendControl(m *Outgoing) error {
	if w.stopped {
		return ErrNotConnected
	}
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
func (w *SingleWorker) SetNextMessageID(id uint64) {
	w.nextID = id
}

// Receive implements Worker: reads frames until the response matching p
// arrives. A response with any other id is a protocol violation in this
// flavor; notifications are handed to the sink and skipped.
func (w *SingleWorker) Receive(ctx context.Context, p *Pending) (*Incoming, error) {
	if w.stopped {
		return nil, ErrNotConnected
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := w.transport.Receive()
		if err != nil {
			if transport.IsTimeout(err) {
				metrics.Timeouts.Inc()
				return nil, &OperationTimeoutError{Task: "receive next message", Duration: w.timeout}
			}
			return nil, err
		}
		metrics.BytesReceived.Add(float64(len(frame)))

		parts, err := w.transformer.TransformIncoming(frame)
		if err != nil {
			return nil, err
		}
		for _, part := range parts {
			hdr, err := header.Parse(part)
			if err != nil {
				return nil, err
			}
			metrics.MessagesReceived.WithLabelValues(hdr.Command.String()).Inc()
			w.credits.grant(hdr.Credits)

			if hdr.MessageID == MessageIDNotify {
				metrics.Notifications.Inc()
				if w.sink != nil {
					w.sink.HandleNotification(&Incoming{Header: hdr, Raw: part})
				}
				continue
			}
			if hdr.IsAsync() && hdr.Status == types.StatusPending {
				// Interim response to our own request; keep reading.
				if hdr.MessageID == p.id {
					continue
				}
			}
			if hdr.MessageID != p.id {
				return nil, &UnexpectedMessageIDError{Got: hdr.MessageID, Expected: p.id}
			}
			return &Incoming{Header: hdr, Raw: part}, nil
		}
	}
}

// Stop implements Worker.
func (w *SingleWorker) Stop() error {
	if w.stopped {
		return ErrNotConnected
	}
	w.stopped = true
	w.credits.close()
	return w.transport.Close()
}
