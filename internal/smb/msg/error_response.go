package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
)

// ErrorResponse is the generic SMB2 ERROR response body sent with a failure
// status. ErrorData is non-empty only for a few statuses (symlink errors,
// buffer-too-small hints, DFS referrals).
// [MS-SMB2] Section 2.2.2
type ErrorResponse struct {
	ErrorContextCount uint8
	ErrorData         []byte
}

const errorResponseStructureSize = 9

// DecodeErrorResponse parses an ERROR response from the full message.
func DecodeErrorResponse(message []byte) (*ErrorResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("ERROR response", errorResponseStructureSize)
	resp := &ErrorResponse{}
	resp.ErrorContextCount = r.ReadUint8()
	r.Skip(1) // Reserved
	byteCount := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("error response: %w", r.Err())
	}
	if byteCount > 0 {
		resp.ErrorData = r.ReadBytes(int(byteCount))
		if r.Err() != nil {
			return nil, fmt.Errorf("error response data: %w", r.Err())
		}
	}
	return resp, nil
}

// OplockBreakNotification is the server-initiated oplock break.
// [MS-SMB2] Section 2.2.23
type OplockBreakNotification struct {
	OplockLevel uint8
	FileID      [16]byte
}

const oplockBreakStructureSize = 24

// DecodeOplockBreakNotification parses an oplock break notification from the
// full message. Lease breaks use a 44-byte structure and are decoded by
// DecodeLeaseBreakNotification instead; the structure size distinguishes them.
func DecodeOplockBreakNotification(message []byte) (*OplockBreakNotification, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("OPLOCK_BREAK notification", oplockBreakStructureSize)
	n := &OplockBreakNotification{}
	n.OplockLevel = r.ReadUint8()
	r.Skip(1) // Reserved
	r.Skip(4) // Reserved2
	fid := r.ReadBytes(16)
	if r.Err() != nil {
		return nil, fmt.Errorf("oplock break: %w", r.Err())
	}
	copy(n.FileID[:], fid)
	return n, nil
}

// OplockBreakAcknowledgment acknowledges an oplock break.
// [MS-SMB2] Section 2.2.24
type OplockBreakAcknowledgment struct {
	OplockLevel uint8
	FileID      [16]byte
}

// Encode serializes the oplock break acknowledgment body.
func (a *OplockBreakAcknowledgment) Encode() []byte {
	w := smbenc.NewWriter(24)
	w.WriteUint16(oplockBreakStructureSize)
	w.WriteUint8(a.OplockLevel)
	w.WriteUint8(0)  // Reserved
	w.WriteUint32(0) // Reserved2
	w.WriteBytes(a.FileID[:])
	return w.Bytes()
}

// LeaseBreakNotification is the server-initiated lease break.
// [MS-SMB2] Section 2.2.23.2
type LeaseBreakNotification struct {
	NewEpoch          uint16
	Flags             uint32
	LeaseKey          [16]byte
	CurrentLeaseState uint32
	NewLeaseState     uint32
}

const leaseBreakStructureSize = 44

// DecodeLeaseBreakNotification parses a lease break notification from the
// full message.
func DecodeLeaseBreakNotification(message []byte) (*LeaseBreakNotification, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("LEASE_BREAK notification", leaseBreakStructureSize)
	n := &LeaseBreakNotification{}
	n.NewEpoch = r.ReadUint16()
	n.Flags = r.ReadUint32()
	key := r.ReadBytes(16)
	n.CurrentLeaseState = r.ReadUint32()
	n.NewLeaseState = r.ReadUint32()
	r.Skip(4) // BreakReason
	r.Skip(4) // AccessMaskHint
	r.Skip(4) // ShareMaskHint
	if r.Err() != nil {
		return nil, fmt.Errorf("lease break: %w", r.Err())
	}
	copy(n.LeaseKey[:], key)
	return n, nil
}

// LeaseBreakAcknowledgment acknowledges a lease break.
// [MS-SMB2] Section 2.2.24.2
type LeaseBreakAcknowledgment struct {
	LeaseKey   [16]byte
	LeaseState uint32
}

const leaseBreakAckStructureSize = 36

// Encode serializes the lease break acknowledgment body.
func (a *LeaseBreakAcknowledgment) Encode() []byte {
	w := smbenc.NewWriter(36)
	w.WriteUint16(leaseBreakAckStructureSize)
	w.WriteUint16(0) // Reserved
	w.WriteUint32(0) // Flags
	w.WriteBytes(a.LeaseKey[:])
	w.WriteUint32(a.LeaseState)
	w.WriteUint64(0) // LeaseDuration
	return w.Bytes()
}
