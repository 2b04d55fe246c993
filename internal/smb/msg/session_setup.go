package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// SessionSetupRequest is the SMB2 SESSION_SETUP request carrying one SPNEGO
// token of the authentication exchange.
// [MS-SMB2] Section 2.2.5
type SessionSetupRequest struct {
	Flags             uint8
	SecurityMode      types.SecurityMode
	Capabilities      types.Capabilities
	PreviousSessionID uint64
	SecurityBuffer    []byte
}

const sessionSetupRequestStructureSize = 25

// Encode serializes the SESSION_SETUP request body.
func (r *SessionSetupRequest) Encode() []byte {
	w := smbenc.NewWriter(24 + len(r.SecurityBuffer))
	w.WriteUint16(sessionSetupRequestStructureSize)
	w.WriteUint8(r.Flags)
	w.WriteUint8(uint8(r.SecurityMode))
	w.WriteUint32(uint32(r.Capabilities))
	w.WriteUint32(0) // Channel
	secOffsetPos := w.Len()
	w.WriteUint16(0) // SecurityBufferOffset
	w.WriteUint16(uint16(len(r.SecurityBuffer)))
	w.WriteUint64(r.PreviousSessionID)
	w.PatchUint16(secOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes(r.SecurityBuffer)
	return w.Bytes()
}

// DecodeSessionSetupRequest parses a SESSION_SETUP request from the full
// message; the symmetric direction of the request codec.
func DecodeSessionSetupRequest(message []byte) (*SessionSetupRequest, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("SESSION_SETUP request", sessionSetupRequestStructureSize)
	req := &SessionSetupRequest{}
	req.Flags = r.ReadUint8()
	req.SecurityMode = types.SecurityMode(r.ReadUint8())
	req.Capabilities = types.Capabilities(r.ReadUint32())
	r.Skip(4) // Channel
	secOffset := r.ReadUint16()
	secLength := r.ReadUint16()
	req.PreviousSessionID = r.ReadUint64()
	if r.Err() != nil {
		return nil, fmt.Errorf("session setup request: %w", r.Err())
	}
	if secLength > 0 {
		sub := r.Sub(int(secOffset), int(secLength))
		req.SecurityBuffer = sub.ReadBytes(int(secLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("session setup request security buffer: %w", r.Err())
		}
	}
	return req, nil
}

// SessionSetupResponse is the SMB2 SESSION_SETUP response.
// [MS-SMB2] Section 2.2.6
type SessionSetupResponse struct {
	SessionFlags   types.SessionFlags
	SecurityBuffer []byte
}

const sessionSetupResponseStructureSize = 9

// DecodeSessionSetupResponse parses a SESSION_SETUP response from the full
// message (header included).
func DecodeSessionSetupResponse(message []byte) (*SessionSetupResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("SESSION_SETUP response", sessionSetupResponseStructureSize)
	resp := &SessionSetupResponse{}
	resp.SessionFlags = types.SessionFlags(r.ReadUint16())
	secOffset := r.ReadUint16()
	secLength := r.ReadUint16()
	if r.Err() != nil {
		return nil, fmt.Errorf("session setup response: %w", r.Err())
	}

	if secLength > 0 {
		sub := r.Sub(int(secOffset), int(secLength))
		resp.SecurityBuffer = sub.ReadBytes(int(secLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("session setup response security buffer: %w", r.Err())
		}
	}

	return resp, nil
}

// IsGuest returns true if the server granted the session as guest.
func (r *SessionSetupResponse) IsGuest() bool {
	return r.SessionFlags&types.SessionFlagIsGuest != 0
}

// IsNull returns true for a null/anonymous session.
func (r *SessionSetupResponse) IsNull() bool {
	return r.SessionFlags&types.SessionFlagIsNull != 0
}

// EncryptData returns true if the server demands encryption for the session.
func (r *SessionSetupResponse) EncryptData() bool {
	return r.SessionFlags&types.SessionFlagEncryptData != 0
}

// LogoffRequest is the SMB2 LOGOFF request.
// [MS-SMB2] Section 2.2.7
type LogoffRequest struct{}

// Encode serializes the LOGOFF request body.
func (LogoffRequest) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4) // StructureSize
	w.WriteUint16(0) // Reserved
	return w.Bytes()
}

// DecodeLogoffResponse validates a LOGOFF response.
func DecodeLogoffResponse(message []byte) error {
	if len(message) < header.Size {
		return smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)
	r.ExpectStructureSize("LOGOFF response", 4)
	if r.Err() != nil {
		return fmt.Errorf("logoff response: %w", r.Err())
	}
	return nil
}

// EchoRequest is the SMB2 ECHO request.
// [MS-SMB2] Section 2.2.28
type EchoRequest struct{}

// Encode serializes the ECHO request body.
func (EchoRequest) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes()
}

// DecodeEchoResponse validates an ECHO response.
func DecodeEchoResponse(message []byte) error {
	if len(message) < header.Size {
		return smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)
	r.ExpectStructureSize("ECHO response", 4)
	if r.Err() != nil {
		return fmt.Errorf("echo response: %w", r.Err())
	}
	return nil
}

// CancelRequest is the SMB2 CANCEL request. The target is addressed purely
// through the header (message id, or async id with FlagAsync).
// [MS-SMB2] Section 2.2.30
type CancelRequest struct{}

// Encode serializes the CANCEL request body.
func (CancelRequest) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes()
}
