package transport

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

func pipePair(maxFrame int) (*TCPTransport, *TCPTransport) {
	a, b := net.Pipe()
	return &TCPTransport{tcpStream{conn: a, maxFrame: maxFrame}},
		&TCPTransport{tcpStream{conn: b, maxFrame: maxFrame}}
}

func TestTCPFrameRoundTrip(t *testing.T) {
	client, server := pipePair(DefaultMaxFrameSize)
	defer client.Close()
	defer server.Close()

	payload := bytes.Repeat([]byte{0xFE, 'S', 'M', 'B'}, 100)
	go func() {
		client.Send(payload)
	}()
	got, err := server.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("frame corrupted in transit")
	}
}

func TestTCPFrameTooLarge(t *testing.T) {
	client, server := pipePair(64)
	defer client.Close()
	defer server.Close()

	go client.Send(make([]byte, 128))
	if _, err := server.Receive(); err == nil {
		t.Fatal("oversized frame must be rejected")
	}
}

func TestTCPReadTimeout(t *testing.T) {
	client, server := pipePair(DefaultMaxFrameSize)
	defer client.Close()
	defer server.Close()

	server.SetReadTimeout(20 * time.Millisecond)
	_, err := server.Receive()
	if !IsTimeout(err) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestTCPClosedTransport(t *testing.T) {
	client, _ := pipePair(DefaultMaxFrameSize)
	client.Close()
	if err := client.Send([]byte{1}); err != ErrNotConnected {
		t.Errorf("send after close: %v", err)
	}
	if _, err := client.Receive(); err != ErrNotConnected {
		t.Errorf("receive after close: %v", err)
	}
}

func TestNetBIOSNameEncoding(t *testing.T) {
	enc := encodeNetBIOSName("*SMBSERVER")
	if len(enc) != 34 {
		t.Fatalf("encoded length = %d, want 34", len(enc))
	}
	if enc[0] != 32 || enc[33] != 0 {
		t.Error("length prefix or terminator wrong")
	}
	// '*' = 0x2A encodes to 'C','K'.
	if enc[1] != 'C' || enc[2] != 'K' {
		t.Errorf("first byte encodes to %c%c, want CK", enc[1], enc[2])
	}
}

func TestNetBIOSKeepAliveSkipped(t *testing.T) {
	a, b := net.Pipe()
	client := &NetBIOSTransport{tcpStream{conn: a, maxFrame: DefaultMaxFrameSize}}
	defer client.Close()
	defer b.Close()

	go func() {
		// Keep-alive, then a real session message.
		b.Write([]byte{nbKeepAlive, 0, 0, 0})
		payload := []byte("frame")
		pkt := make([]byte, 4+len(payload))
		pkt[0] = nbSessionMessage
		binary.BigEndian.PutUint16(pkt[2:4], uint16(len(payload)))
		copy(pkt[4:], payload)
		b.Write(pkt)
	}()

	got, err := client.Receive()
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if string(got) != "frame" {
		t.Errorf("got %q", got)
	}
}

func TestNetBIOSSessionRequest(t *testing.T) {
	a, b := net.Pipe()
	client := &NetBIOSTransport{tcpStream{conn: a, maxFrame: DefaultMaxFrameSize}}
	defer client.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() {
		done <- client.sessionRequest("*SMBSERVER", "WORKSTATION")
	}()

	// Fake server: read the request, answer positively.
	var hdr [4]byte
	if _, err := io.ReadFull(b, hdr[:]); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if hdr[0] != nbSessionRequest {
		t.Fatalf("type = 0x%02X", hdr[0])
	}
	body := make([]byte, binary.BigEndian.Uint16(hdr[2:4]))
	if _, err := io.ReadFull(b, body); err != nil {
		t.Fatalf("server read body: %v", err)
	}
	if len(body) != 68 {
		t.Errorf("two encoded names = %d bytes, want 68", len(body))
	}
	b.Write([]byte{nbPositiveResponse, 0, 0, 0})

	if err := <-done; err != nil {
		t.Fatalf("session request: %v", err)
	}
}
