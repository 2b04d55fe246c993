// Package transport abstracts the byte-stream under the SMB client: one
// complete SMB2 or transform frame in, one out. Direct TCP (port 445) and
// NetBIOS session service (port 139) framings are provided; the interface
// leaves room for QUIC or RDMA implementations without touching the core.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
)

// ErrNotConnected is returned by operations on a closed transport.
var ErrNotConnected = errors.New("transport: not connected")

// ErrFrameTooLarge is returned when a peer announces a frame beyond the
// configured maximum.
var ErrFrameTooLarge = errors.New("transport: frame too large")

// DefaultMaxFrameSize bounds a single received frame (16 MiB covers the
// largest negotiated transact sizes plus transform overhead).
const DefaultMaxFrameSize = 16 * 1024 * 1024

// Transport delivers and receives opaque framed payloads.
type Transport interface {
	// Send writes one complete frame.
	Send(frame []byte) error

	// Receive reads one complete frame.
	Receive() ([]byte, error)

	// SetReadTimeout bounds each Receive call. Zero disables the timeout.
	SetReadTimeout(d time.Duration) error

	// Close tears the connection down.
	Close() error

	// RemoteAddr names the peer, for logging.
	RemoteAddr() string
}

// Dialer opens a Transport to an endpoint.
type Dialer interface {
	Dial(ctx context.Context, address string) (Transport, error)

	// DefaultPort is used when the address carries no port.
	DefaultPort() uint16
}

// tcpStream is the shared stream handling under both framings.
type tcpStream struct {
	conn        net.Conn
	readTimeout time.Duration
	maxFrame    int
}

func (s *tcpStream) applyDeadline() error {
	if s.readTimeout > 0 {
		return s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	}
	return s.conn.SetReadDeadline(time.Time{})
}

// TCPTransport frames SMB2 messages for direct TCP transport: a zero type
// byte and a 24-bit big-endian length prefix each frame.
// [MS-SMB2] Section 2.1
type TCPTransport struct {
	tcpStream
}

// TCPDialer dials direct-TCP transports (default port 445).
type TCPDialer struct {
	// MaxFrameSize overrides DefaultMaxFrameSize when non-zero.
	MaxFrameSize int
}

// DefaultPort implements Dialer.
func (TCPDialer) DefaultPort() uint16 { return 445 }

// Dial implements Dialer.
func (d TCPDialer) Dial(ctx context.Context, address string) (Transport, error) {
	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	maxFrame := d.MaxFrameSize
	if maxFrame == 0 {
		maxFrame = DefaultMaxFrameSize
	}
	logger.Debug("direct TCP transport connected", logger.KeyServer, address)
	return &TCPTransport{tcpStream{conn: conn, maxFrame: maxFrame}}, nil
}

// Send implements Transport.
func (t *TCPTransport) Send(frame []byte) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	if len(frame) > 0xFFFFFF {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(frame))
	}
	buf := make([]byte, 4+len(frame))
	buf[1] = byte(len(frame) >> 16)
	buf[2] = byte(len(frame) >> 8)
	buf[3] = byte(len(frame))
	copy(buf[4:], frame)
	_, err := t.conn.Write(buf)
	return err
}

// Receive implements Transport.
func (t *TCPTransport) Receive() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	if err := t.applyDeadline(); err != nil {
		return nil, err
	}

	var hdr [4]byte
	if _, err := io.ReadFull(t.conn, hdr[:]); err != nil {
		return nil, err
	}
	length := int(hdr[1])<<16 | int(hdr[2])<<8 | int(hdr[3])
	if length > t.maxFrame {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFrameTooLarge, length, t.maxFrame)
	}
	frame := make([]byte, length)
	if _, err := io.ReadFull(t.conn, frame); err != nil {
		return nil, err
	}
	return frame, nil
}

// SetReadTimeout implements Transport.
func (t *TCPTransport) SetReadTimeout(d time.Duration) error {
	if t.conn == nil {
		return ErrNotConnected
	}
	t.readTimeout = d
	return nil
}

// Close implements Transport.
func (t *TCPTransport) Close() error {
	if t.conn == nil {
		return ErrNotConnected
	}
	err := t.conn.Close()
	t.conn = nil
	return err
}

// RemoteAddr implements Transport.
func (t *TCPTransport) RemoteAddr() string {
	if t.conn == nil {
		return ""
	}
	return t.conn.RemoteAddr().String()
}

// IsTimeout reports whether err is a transport read timeout.
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
