// Package header provides SMB2 message header parsing and encoding.
//
// The SMB2 header is a 64-byte structure that prefixes every SMB2 message.
// It exists in two forms: the sync form carries Reserved(4)+TreeID(4) at
// offset 32, the async form (FlagAsync set) carries a single 64-bit AsyncID
// in the same bytes.
//
// Reference: [MS-SMB2] Section 2.2.1
package header

import (
	"encoding/binary"
	"errors"

	"github.com/marmos91/smbclient/internal/smb/types"
)

// Size is the fixed size of the SMB2 header (64 bytes).
const Size = 64

// Signature field location within the header.
const (
	SignatureOffset = 48
	SignatureSize   = 16
)

var (
	// ErrInvalidProtocolID indicates the message doesn't start with 0xFE 'S' 'M' 'B'.
	ErrInvalidProtocolID = errors.New("invalid SMB2 protocol ID")
	// ErrMessageTooShort indicates the message is too short to contain an SMB2 header.
	ErrMessageTooShort = errors.New("message too short for SMB2 header")
	// ErrInvalidHeaderSize indicates the header structure size field is not 64.
	ErrInvalidHeaderSize = errors.New("invalid SMB2 header structure size")
)

// Header represents the common SMB2 message header.
//
// Some fields change meaning with context:
//   - Status carries NT_STATUS in responses and ChannelSequence in 3.x requests.
//   - Credits carries CreditRequest in requests, CreditResponse in responses.
//   - Reserved/TreeID are replaced by AsyncID when FlagAsync is set.
//
// [MS-SMB2] Section 2.2.1
type Header struct {
	// CreditCharge indicates how many credits this operation consumes.
	// See [MS-SMB2] 3.2.4.1.5 for the calculation.
	CreditCharge uint16

	// Status contains the NT_STATUS code in responses.
	Status types.Status

	// Command identifies the SMB2 operation.
	Command types.Command

	// Credits carries CreditRequest or CreditResponse.
	Credits uint16

	// Flags contains header flags (response, async, signed, related).
	Flags types.HeaderFlags

	// NextCommand is the offset to the next command in a compound chain.
	// Zero for the last (or only) command.
	NextCommand uint32

	// MessageID uniquely identifies this message on the connection.
	MessageID uint64

	// Reserved carries the process id in sync form; unused by this client.
	Reserved uint32

	// TreeID identifies the tree connection. Valid only in sync form.
	TreeID uint32

	// AsyncID is valid only when Flags.IsAsync(); it occupies the
	// Reserved+TreeID bytes on the wire.
	AsyncID uint64

	// SessionID identifies the session.
	SessionID uint64

	// Signature contains the message signature when FlagSigned is set.
	Signature [16]byte
}

// IsResponse returns true if this is a response header.
func (h *Header) IsResponse() bool { return h.Flags.IsResponse() }

// IsAsync returns true if the header is in async form.
func (h *Header) IsAsync() bool { return h.Flags.IsAsync() }

// IsSigned returns true if the message is signed.
func (h *Header) IsSigned() bool { return h.Flags.IsSigned() }

// IsRelated returns true if this is a related compound operation.
func (h *Header) IsRelated() bool { return h.Flags.IsRelated() }

// Encode serializes the header to wire format (little-endian).
func (h *Header) Encode() []byte {
	buf := make([]byte, Size)

	binary.LittleEndian.PutUint32(buf[0:4], types.SMB2ProtocolID)
	binary.LittleEndian.PutUint16(buf[4:6], Size)
	binary.LittleEndian.PutUint16(buf[6:8], h.CreditCharge)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(h.Status))
	binary.LittleEndian.PutUint16(buf[12:14], uint16(h.Command))
	binary.LittleEndian.PutUint16(buf[14:16], h.Credits)
	binary.LittleEndian.PutUint32(buf[16:20], uint32(h.Flags))
	binary.LittleEndian.PutUint32(buf[20:24], h.NextCommand)
	binary.LittleEndian.PutUint64(buf[24:32], h.MessageID)
	if h.IsAsync() {
		binary.LittleEndian.PutUint64(buf[32:40], h.AsyncID)
	} else {
		binary.LittleEndian.PutUint32(buf[32:36], h.Reserved)
		binary.LittleEndian.PutUint32(buf[36:40], h.TreeID)
	}
	binary.LittleEndian.PutUint64(buf[40:48], h.SessionID)
	copy(buf[48:64], h.Signature[:])

	return buf
}

// Parse extracts a Header from wire format.
func Parse(data []byte) (*Header, error) {
	if len(data) < Size {
		return nil, ErrMessageTooShort
	}

	if binary.LittleEndian.Uint32(data[0:4]) != types.SMB2ProtocolID {
		return nil, ErrInvalidProtocolID
	}

	if binary.LittleEndian.Uint16(data[4:6]) != Size {
		return nil, ErrInvalidHeaderSize
	}

	h := &Header{
		CreditCharge: binary.LittleEndian.Uint16(data[6:8]),
		Status:       types.Status(binary.LittleEndian.Uint32(data[8:12])),
		Command:      types.Command(binary.LittleEndian.Uint16(data[12:14])),
		Credits:      binary.LittleEndian.Uint16(data[14:16]),
		Flags:        types.HeaderFlags(binary.LittleEndian.Uint32(data[16:20])),
		NextCommand:  binary.LittleEndian.Uint32(data[20:24]),
		MessageID:    binary.LittleEndian.Uint64(data[24:32]),
		SessionID:    binary.LittleEndian.Uint64(data[40:48]),
	}
	if h.IsAsync() {
		h.AsyncID = binary.LittleEndian.Uint64(data[32:40])
	} else {
		h.Reserved = binary.LittleEndian.Uint32(data[32:36])
		h.TreeID = binary.LittleEndian.Uint32(data[36:40])
	}
	copy(h.Signature[:], data[48:64])

	return h, nil
}

// IsSMB2Message reports whether data starts with the SMB2 protocol ID.
func IsSMB2Message(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(data[0:4]) == types.SMB2ProtocolID
}
