package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
)

// NetBIOS session service framing (port 139): a one-byte packet type and a
// 17-bit length. A session request naming the called/calling NetBIOS names
// precedes SMB traffic.
// [RFC 1002] Section 4.3

const (
	nbSessionMessage       = 0x00
	nbSessionRequest       = 0x81
	nbPositiveResponse     = 0x82
	nbNegativeResponse     = 0x83
	nbRetargetResponse     = 0x84
	nbKeepAlive            = 0x85
)

// NetBIOSTransport frames SMB2 messages inside NetBIOS session packets.
type NetBIOSTransport struct {
	tcpStream
}

// NetBIOSDialer dials NetBIOS session transports (default port 139).
type NetBIOSDialer struct {
	// CalledName is the server's NetBIOS name; "*SMBSERVER" by default.
	CalledName string

	// CallingName is the client's NetBIOS name.
	CallingName string

	MaxFrameSize int
}

// DefaultPort implements Dialer.
func (NetBIOSDialer) DefaultPort() uint16 { return 139 }

// Dial implements Dialer: connects and performs the session request
// exchange before handing the transport over.
func (d NetBIOSDialer) Dial(ctx context.Context, address string) (Transport, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	maxFrame := d.MaxFrameSize
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	t := &NetBIOSTransport{tcpStream{conn: conn, maxFrame: maxFrame}}

	called := d.CalledName
	if called == "" {
		called = "*SMBSERVER"
	}
	calling := d.CallingName
	if calling == "" {
		calling = "SMBCLIENT"
	}
	if err := t.sessionRequest(called, calling); err != nil {
		conn.Close()
		return nil, fmt.Errorf("netbios session request: %w", err)
	}
	logger.Debug("NetBIOS session established",
		logger.KeyServer, address, "called", called)
	return t, nil
}

// sessionRequest sends the RFC 1002 SESSION REQUEST and waits for the
// positive response.
func (t *NetBIOSTransport) sessionRequest(called, calling string) error {
	body := append(encodeNetBIOSName(called), encodeNetBIOSName(calling)...)
	pkt := make([]byte, 4+len(body))
	pkt[0] = nbSessionRequest
	pkt[1] = byte(len(body) >> 16)
	binary.BigEndian.PutUint16(pkt[2:4], uint16(len(body)))
	copy(pkt[4:], body)
	if _, err := t.conn.Write(pkt); err != nil {
		return err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return err
	}
	length := int(hdr[1]&0x01)<<16 | int(binary.BigEndian.Uint16(hdr[2:4]))
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return err
	}

	switch hdr[0] {
	case nbPositiveResponse:
		return nil
	case nbNegativeResponse:
		code := byte(0)
		if len(payload) > 0 {
			code = payload[0]
		}
		return fmt.Errorf("session rejected (code 0x%02X)", code)
	case nbRetargetResponse:
		return fmt.Errorf("session retargeted (not followed)")
	default:
		return fmt.Errorf("unexpected session response type 0x%02X", hdr[0])
	}
}

// encodeNetBIOSName applies first-level encoding: the name is space-padded
// to 16 bytes and each byte split into two nibbles offset by 'A'.
// [RFC 1001] Section 14.1
func encodeNetBIOSName(name string) []byte {
	padded := strings.ToUpper(name)
	if len(padded) > 16 {
		padded = padded[:16]
	}
	padded += strings.Repeat(" ", 16-len(padded))

	out := make([]byte, 0, 34)
	out = append(out, 32) // encoded length
	for i := 0; i < 16; i++ {
		out = append(out, 'A'+padded[i]>>4, 'A'+padded[i]&0x0F)
	}
	out = append(out, 0) // scope terminator
	return out
}

// Send implements Transport.
func (t *NetBIOSTransport) Send(frame []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	if len(frame) > 0x1FFFF {
		return fmt.Errorf("%w: %d bytes exceed the NetBIOS length field", ErrFrameTooLarge, len(frame))
	}
	buf := make([]byte, 4+len(frame))
	buf[0] = nbSessionMessage
	buf[1] = byte(len(frame) >> 16)
	binary.BigEndian.PutUint16(buf[2:4], uint16(len(frame)))
	copy(buf[4:], frame)
	_, err := t.conn.Write(buf)
	return err
}

// Receive implements Transport. Keep-alives are consumed silently.
func (t *NetBIOSTransport) Receive() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	for {
		if err := t.applyDeadline(); err != nil {
			return nil, err
		}
		var hdr [4]byte
		if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
			return nil, err
		}
		length := int(hdr[1]&0x01)<<16 | int(binary.BigEndian.Uint16(hdr[2:4]))
		if length > t.maxFrame {
			return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, t.maxFrame)
		}
		frame := make([]byte, length)
		if _, err := io.ReadFull(t.conn, frame); err != nil {
			return nil, err
		}
		if hdr[0] == nbKeepAlive {
			continue
		}
		if hdr[0] != nbSessionMessage {
			return nil, fmt.Errorf("unexpected NetBIOS packet type 0x%02X", hdr[0])
		}
		return frame, nil
	}
}

// SetReadTimeout implements Transport.
func (t *NetBIOSTransport) SetReadTimeout(d time.Duration) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.readTimeout = d
	return nil
}

// Close implements Transport.
func (t *NetBIOSTransport) Close() error {
	if t.conn == nil {
		return ErrNotConnected
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// RemoteAddr implements Transport.
func (t *NetBIOSTransport) RemoteAddr() string {
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}
