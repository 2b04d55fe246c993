// Package transform implements the SMB2 transform envelopes and the
// session-bound transformer pipeline: signing, encryption, compression on
// the way out; decompression, decryption, signature verification on the way
// in; plus the rolling pre-auth integrity hash.
package transform

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// TransformHeaderSize is the size of the encrypted transform header.
const TransformHeaderSize = 52

// aadOffset marks where the authenticated additional data begins: the
// transform header from the nonce field through the session id.
const aadOffset = 20

// TransformHeader is the encrypted envelope header (magic 0xFD 'S' 'M' 'B').
// [MS-SMB2] Section 2.2.41
type TransformHeader struct {
	Signature           [16]byte
	Nonce               [16]byte // 11 significant bytes, zero padded
	OriginalMessageSize uint32
	Flags               uint16 // cipher id below 3.1.1, flags for 3.1.1
	SessionID           uint64
}

// Encode serializes the transform header.
func (h *TransformHeader) Encode() []byte {
	w := smbenc.NewWriter(TransformHeaderSize)
	w.WriteUint32(types.TransformProtocolID)
	w.WriteBytes(h.Signature[:])
	w.WriteBytes(h.Nonce[:])
	w.WriteUint32(h.OriginalMessageSize)
	w.WriteUint16(0) // Reserved
	w.WriteUint16(h.Flags)
	w.WriteUint64(h.SessionID)
	return w.Bytes()
}

// DecodeTransformHeader parses the encrypted envelope header.
func DecodeTransformHeader(data []byte) (*TransformHeader, error) {
	r := smbenc.NewReader(data)
	if r.ReadUint32() != types.TransformProtocolID {
		return nil, fmt.Errorf("transform header: bad protocol id")
	}
	h := &TransformHeader{}
	sig := r.ReadBytes(16)
	nonce := r.ReadBytes(16)
	h.OriginalMessageSize = r.ReadUint32()
	r.Skip(2) // Reserved
	h.Flags = r.ReadUint16()
	h.SessionID = r.ReadUint64()
	if r.Err() != nil {
		return nil, fmt.Errorf("transform header: %w", r.Err())
	}
	copy(h.Signature[:], sig)
	copy(h.Nonce[:], nonce)
	return h, nil
}

// CompressionHeaderSize is the size of the unchained compression header.
const CompressionHeaderSize = 16

// CompressionHeader is the compressed envelope header (magic 0xFC 'S' 'M' 'B').
// [MS-SMB2] Section 2.2.42
type CompressionHeader struct {
	OriginalSize uint32
	Algorithm    uint16
	Flags        uint16
	Offset       uint32 // unchained: bytes of uncompressed prefix after the header
}

// Encode serializes the compression header.
func (h *CompressionHeader) Encode() []byte {
	w := smbenc.NewWriter(CompressionHeaderSize)
	w.WriteUint32(types.CompressionProtocolID)
	w.WriteUint32(h.OriginalSize)
	w.WriteUint16(h.Algorithm)
	w.WriteUint16(h.Flags)
	w.WriteUint32(h.Offset)
	return w.Bytes()
}

// DecodeCompressionHeader parses the compressed envelope header.
func DecodeCompressionHeader(data []byte) (*CompressionHeader, error) {
	r := smbenc.NewReader(data)
	if r.ReadUint32() != types.CompressionProtocolID {
		return nil, fmt.Errorf("compression header: bad protocol id")
	}
	h := &CompressionHeader{}
	h.OriginalSize = r.ReadUint32()
	h.Algorithm = r.ReadUint16()
	h.Flags = r.ReadUint16()
	h.Offset = r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("compression header: %w", r.Err())
	}
	return h, nil
}

// IsChained returns true if the payload is a chain of per-algorithm segments.
func (h *CompressionHeader) IsChained() bool {
	return h.Flags&types.CompressionTransformFlagChained != 0
}

// MagicOf classifies a received frame by its first byte: 0xFE plain, 0xFD
// encrypted, 0xFC compressed.
func MagicOf(frame []byte) (byte, error) {
	if len(frame) < 4 {
		return 0, fmt.Errorf("frame too short for protocol id: %d bytes", len(frame))
	}
	if frame[1] != 'S' || frame[2] != 'M' || frame[3] != 'B' {
		return 0, fmt.Errorf("unknown protocol id % X", frame[:4])
	}
	switch frame[0] {
	case 0xFE, 0xFD, 0xFC:
		return frame[0], nil
	default:
		return 0, fmt.Errorf("unknown protocol id % X", frame[:4])
	}
}
