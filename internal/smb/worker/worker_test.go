package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// fakeTransport is an in-memory scripted transport: frames written by the
// worker land in sent; frames pushed to incoming are returned by Receive.
type fakeTransport struct {
	mu       sync.Mutex
	sent     [][]byte
	sentCh   chan []byte
	incoming chan []byte
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		sentCh:   make(chan []byte, 64),
		incoming: make(chan []byte, 64),
	}
}

func (f *fakeTransport) Send(frame []byte) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return io.ErrClosedPipe
	}
	cp := make([]byte, len(frame))
	copy(cp, frame)
	f.sent = append(f.sent, cp)
	f.mu.Unlock()
	f.sentCh <- cp
	return nil
}

func (f *fakeTransport) Receive() ([]byte, error) {
	frame, ok := <-f.incoming
	if !ok {
		return nil, io.EOF
	}
	return frame, nil
}

func (f *fakeTransport) SetReadTimeout(time.Duration) error { return nil }

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.incoming)
	}
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return "fake:445" }

// responseFor builds a response frame for a parsed request header.
func responseFor(hdr *header.Header, credits uint16) []byte {
	resp := &header.Header{
		Command:   hdr.Command,
		Credits:   credits,
		Flags:     types.FlagResponse,
		MessageID: hdr.MessageID,
		SessionID: hdr.SessionID,
	}
	body := make([]byte, 8)
	return append(resp.Encode(), body...)
}

func echoRequest() *Outgoing {
	return &Outgoing{
		Header: &header.Header{Command: types.CommandEcho},
		Body:   []byte{0x04, 0x00, 0x00, 0x00},
	}
}

func TestParallelSendReceive(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()

	p, err := w.Send(echoRequest())
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	sent := <-ft.sentCh
	hdr, err := header.Parse(sent)
	if err != nil {
		t.Fatalf("parse sent: %v", err)
	}
	if hdr.MessageID != 0 {
		t.Errorf("first message id = %d, want 0", hdr.MessageID)
	}
	if hdr.CreditCharge != 1 {
		t.Errorf("credit charge = %d, want 1", hdr.CreditCharge)
	}
	ft.incoming <- responseFor(hdr, 64)

	in, err := w.Receive(context.Background(), p)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if in.Header.MessageID != 0 {
		t.Errorf("response id = %d", in.Header.MessageID)
	}
}

func TestParallelMessageIDsStrictlyIncreasing(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 1024)
	defer w.Stop()

	// Seed enough credits.
	w.credits.grant(128)

	var ids []uint64
	for i := 0; i < 8; i++ {
		req := echoRequest()
		if i == 3 {
			// A multi-credit request advances the id by its charge.
			req.PayloadHint = 3 * 65536
		}
		p, err := w.Send(req)
		if err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
		ids = append(ids, p.MessageID())
	}

	seen := map[uint64]bool{}
	for i, id := range ids {
		if seen[id] {
			t.Errorf("duplicate id %d", id)
		}
		seen[id] = true
		if i > 0 && id <= ids[i-1] {
			t.Errorf("ids not strictly increasing: %v", ids)
		}
	}
	// The charge-3 request at index 3 must advance the next id by 3.
	if ids[4]-ids[3] != 3 {
		t.Errorf("id gap after multi-credit request = %d, want 3", ids[4]-ids[3])
	}
}

func TestParallelOutOfOrderResponses(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()
	w.credits.grant(16)

	p1, _ := w.Send(echoRequest())
	p2, _ := w.Send(echoRequest())

	h1, _ := header.Parse(<-ft.sentCh)
	h2, _ := header.Parse(<-ft.sentCh)

	// Respond in reverse order.
	ft.incoming <- responseFor(h2, 8)
	ft.incoming <- responseFor(h1, 8)

	in2, err := w.Receive(context.Background(), p2)
	if err != nil {
		t.Fatalf("receive p2: %v", err)
	}
	in1, err := w.Receive(context.Background(), p1)
	if err != nil {
		t.Fatalf("receive p1: %v", err)
	}
	if in1.Header.MessageID != p1.MessageID() || in2.Header.MessageID != p2.MessageID() {
		t.Error("waiters saw wrong responses")
	}
}

func TestParallelTimeout(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, 30*time.Millisecond, 64)
	defer w.Stop()

	p, err := w.Send(echoRequest())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	<-ft.sentCh

	_, err = w.Receive(context.Background(), p)
	var timeoutErr *OperationTimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("expected OperationTimeoutError, got %v", err)
	}

	// The id stays reserved until the response arrives.
	w.mu.Lock()
	_, stillThere := w.outstanding[p.MessageID()]
	w.mu.Unlock()
	if !stillThere {
		t.Error("timed-out request must stay outstanding")
	}
}

func TestParallelCancellation(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()

	p, _ := w.Send(echoRequest())
	hdr, _ := header.Parse(<-ft.sentCh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := w.Receive(ctx, p); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The late response is still consumed and the id retired.
	ft.incoming <- responseFor(hdr, 8)
	deadline := time.After(time.Second)
	for {
		w.mu.Lock()
		_, open := w.outstanding[p.MessageID()]
		w.mu.Unlock()
		if !open {
			break
		}
		select {
		case <-deadline:
			t.Fatal("message id never retired after late response")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestCreditStarvationRejected(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()

	// A charge beyond the whole backlog window can never succeed.
	req := echoRequest()
	req.PayloadHint = 100 * 65536
	if _, err := w.Send(req); !errors.Is(err, ErrCreditStarvation) {
		t.Fatalf("expected ErrCreditStarvation, got %v", err)
	}
}

func TestCreditsBlockUntilGranted(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()

	// The initial balance is one credit; the second send must block until
	// the first response grants more.
	p1, err := w.Send(echoRequest())
	if err != nil {
		t.Fatalf("send 1: %v", err)
	}
	h1, _ := header.Parse(<-ft.sentCh)

	sent2 := make(chan error, 1)
	go func() {
		_, err := w.Send(echoRequest())
		sent2 <- err
	}()

	select {
	case err := <-sent2:
		t.Fatalf("second send completed without credits: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	ft.incoming <- responseFor(h1, 4)
	if _, err := w.Receive(context.Background(), p1); err != nil {
		t.Fatalf("receive 1: %v", err)
	}
	select {
	case err := <-sent2:
		if err != nil {
			t.Fatalf("second send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("second send never unblocked after the grant")
	}
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []*Incoming
}

func (s *recordingSink) HandleNotification(m *Incoming) {
	s.mu.Lock()
	s.msgs = append(s.msgs, m)
	s.mu.Unlock()
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestNotificationRouting(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()
	sink := &recordingSink{}
	w.SetNotificationSink(sink)

	// Oplock break with the well-known notify id.
	notify := &header.Header{
		Command:   types.CommandOplockBreak,
		Flags:     types.FlagResponse,
		MessageID: MessageIDNotify,
	}
	ft.incoming <- append(notify.Encode(), make([]byte, 24)...)

	deadline := time.After(time.Second)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("notification never dispatched")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if sink.msgs[0].Header.Command != types.CommandOplockBreak {
		t.Errorf("command = %v", sink.msgs[0].Header.Command)
	}
}

func TestAsyncInterimThenFinal(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, time.Second, 64)
	defer w.Stop()

	p, _ := w.Send(&Outgoing{
		Header: &header.Header{Command: types.CommandChangeNotify},
		Body:   make([]byte, 32),
	})
	hdr, _ := header.Parse(<-ft.sentCh)

	// Interim: async + STATUS_PENDING keeps the request outstanding.
	interim := &header.Header{
		Command:   types.CommandChangeNotify,
		Status:    types.StatusPending,
		Flags:     types.FlagResponse | types.FlagAsync,
		MessageID: hdr.MessageID,
		AsyncID:   777,
		Credits:   1,
	}
	ft.incoming <- append(interim.Encode(), make([]byte, 9)...)

	// Final response completes the waiter.
	final := &header.Header{
		Command:   types.CommandChangeNotify,
		Flags:     types.FlagResponse,
		MessageID: hdr.MessageID,
		Credits:   1,
	}
	ft.incoming <- append(final.Encode(), make([]byte, 9)...)

	in, err := w.Receive(context.Background(), p)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if in.Header.Status != types.StatusSuccess {
		t.Errorf("status = %v", in.Header.Status)
	}
}

func TestFatalErrorWakesWaiters(t *testing.T) {
	ft := newFakeTransport()
	w := NewParallelWorker(ft, 10*time.Second, 64)

	p, _ := w.Send(echoRequest())
	<-ft.sentCh

	// Kill the transport under the reader.
	ft.Close()

	if _, err := w.Receive(context.Background(), p); err == nil {
		t.Fatal("expected error after transport failure")
	}
	// Subsequent sends fail fast.
	if _, err := w.Send(echoRequest()); err == nil {
		t.Fatal("send after death must fail")
	}
}

func TestSingleWorkerSendReceive(t *testing.T) {
	ft := newFakeTransport()
	w := NewSingleWorker(ft, time.Second, 64)
	defer w.Stop()

	p, err := w.Send(echoRequest())
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	hdr, _ := header.Parse(<-ft.sentCh)
	ft.incoming <- responseFor(hdr, 8)

	in, err := w.Receive(context.Background(), p)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if in.Header.MessageID != p.MessageID() {
		t.Error("wrong response")
	}
}

func TestSingleWorkerUnexpectedID(t *testing.T) {
	ft := newFakeTransport()
	w := NewSingleWorker(ft, time.Second, 64)
	defer w.Stop()

	p, _ := w.Send(echoRequest())
	<-ft.sentCh

	wrong := &header.Header{
		Command:   types.CommandEcho,
		Flags:     types.FlagResponse,
		MessageID: p.MessageID() + 99,
		Credits:   1,
	}
	ft.incoming <- append(wrong.Encode(), make([]byte, 4)...)

	_, err := w.Receive(context.Background(), p)
	var idErr *UnexpectedMessageIDError
	if !errors.As(err, &idErr) {
		t.Fatalf("expected UnexpectedMessageIDError, got %v", err)
	}
	if idErr.Expected != p.MessageID() {
		t.Errorf("expected field = %d", idErr.Expected)
	}
}

func TestCreditCharge(t *testing.T) {
	tests := []struct {
		payload uint32
		want    uint16
	}{
		{0, 1},
		{1, 1},
		{65536, 1},
		{65537, 2},
		{3 * 65536, 3},
		{13, 1},
	}
	for _, tt := range tests {
		if got := CreditCharge(tt.payload); got != tt.want {
			t.Errorf("CreditCharge(%d) = %d, want %d", tt.payload, got, tt.want)
		}
	}
}
