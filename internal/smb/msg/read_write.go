package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// ReadRequest is the SMB2 READ request.
// [MS-SMB2] Section 2.2.19
type ReadRequest struct {
	Length       uint32
	Offset       uint64
	FileID       types.FileID
	MinimumCount uint32
}

const readRequestStructureSize = 49

// Encode serializes the READ request body.
func (r *ReadRequest) Encode() []byte {
	w := smbenc.NewWriter(49)
	w.WriteUint16(readRequestStructureSize)
	w.WriteUint8(0) // Padding hint
	w.WriteUint8(0) // Flags
	w.WriteUint32(r.Length)
	w.WriteUint64(r.Offset)
	w.WriteBytes(r.FileID[:])
	w.WriteUint32(r.MinimumCount)
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // ReadChannelInfoOffset
	w.WriteUint16(0) // ReadChannelInfoLength
	// The request buffer must contain one byte.
	w.WriteUint8(0)
	return w.Bytes()
}

// ReadResponse is the SMB2 READ response.
// [MS-SMB2] Section 2.2.20
type ReadResponse struct {
	Data          []byte
	DataRemaining uint32
}

const readResponseStructureSize = 17

// DecodeReadResponse parses a READ response from the full message.
func DecodeReadResponse(message []byte) (*ReadResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("READ response", readResponseStructureSize)
	dataOffset := r.ReadUint8()
	r.Skip(1) // Reserved
	dataLength := r.ReadUint32()
	dataRemaining := r.ReadUint32()
	r.Skip(4) // Reserved2
	if r.Err() != nil {
		return nil, fmt.Errorf("read response: %w", r.Err())
	}

	resp := &ReadResponse{DataRemaining: dataRemaining}
	if dataLength > 0 {
		sub := r.Sub(int(dataOffset), int(dataLength))
		resp.Data = sub.ReadBytes(int(dataLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("read response data: %w", r.Err())
		}
	}
	return resp, nil
}

// WriteRequest is the SMB2 WRITE request.
// [MS-SMB2] Section 2.2.21
type WriteRequest struct {
	Offset uint64
	FileID types.FileID
	Data   []byte

	// WriteThrough requests that the server not complete the write until
	// the data is on stable storage.
	WriteThrough bool
}

const writeRequestStructureSize = 49

// Write flags, [MS-SMB2] Section 2.2.21.
const writeFlagWriteThrough uint32 = 0x00000001

// Encode serializes the WRITE request body.
func (r *WriteRequest) Encode() []byte {
	w := smbenc.NewWriter(48 + len(r.Data))
	w.WriteUint16(writeRequestStructureSize)
	dataOffsetPos := w.Len()
	w.WriteUint16(0) // DataOffset
	w.WriteUint32(uint32(len(r.Data)))
	w.WriteUint64(r.Offset)
	w.WriteBytes(r.FileID[:])
	w.WriteUint32(0) // Channel
	w.WriteUint32(0) // RemainingBytes
	w.WriteUint16(0) // WriteChannelInfoOffset
	w.WriteUint16(0) // WriteChannelInfoLength
	var flags uint32
	if r.WriteThrough {
		flags |= writeFlagWriteThrough
	}
	w.WriteUint32(flags)
	w.PatchUint16(dataOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes(r.Data)
	return w.Bytes()
}

// WriteResponse is the SMB2 WRITE response.
// [MS-SMB2] Section 2.2.22
type WriteResponse struct {
	Count uint32
}

const writeResponseStructureSize = 17

// DecodeWriteResponse parses a WRITE response from the full message.
func DecodeWriteResponse(message []byte) (*WriteResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("WRITE response", writeResponseStructureSize)
	r.Skip(2) // Reserved
	count := r.ReadUint32()
	r.Skip(4) // Remaining
	r.Skip(2) // WriteChannelInfoOffset
	r.Skip(2) // WriteChannelInfoLength
	if r.Err() != nil {
		return nil, fmt.Errorf("write response: %w", r.Err())
	}
	return &WriteResponse{Count: count}, nil
}

// FlushRequest is the SMB2 FLUSH request.
// [MS-SMB2] Section 2.2.17
type FlushRequest struct {
	FileID types.FileID
}

const flushRequestStructureSize = 24

// Encode serializes the FLUSH request body.
func (r *FlushRequest) Encode() []byte {
	w := smbenc.NewWriter(24)
	w.WriteUint16(flushRequestStructureSize)
	w.WriteUint16(0) // Reserved1
	w.WriteUint32(0) // Reserved2
	w.WriteBytes(r.FileID[:])
	return w.Bytes()
}

// DecodeFlushResponse validates a FLUSH response.
func DecodeFlushResponse(message []byte) error {
	if len(message) < header.Size {
		return smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)
	r.ExpectStructureSize("FLUSH response", 4)
	if r.Err() != nil {
		return fmt.Errorf("flush response: %w", r.Err())
	}
	return nil
}

// IoctlRequest is the SMB2 IOCTL request.
// [MS-SMB2] Section 2.2.31
type IoctlRequest struct {
	CtlCode           uint32
	FileID            types.FileID
	Input             []byte
	MaxOutputResponse uint32

	// Fsctl marks the request as a filesystem control (the common case).
	Fsctl bool
}

const ioctlRequestStructureSize = 57

const ioctlFlagIsFsctl uint32 = 0x00000001

// Encode serializes the IOCTL request body.
func (r *IoctlRequest) Encode() []byte {
	w := smbenc.NewWriter(56 + len(r.Input))
	w.WriteUint16(ioctlRequestStructureSize)
	w.WriteUint16(0) // Reserved
	w.WriteUint32(r.CtlCode)
	w.WriteBytes(r.FileID[:])
	inOffsetPos := w.Len()
	w.WriteUint32(0) // InputOffset
	w.WriteUint32(uint32(len(r.Input)))
	w.WriteUint32(0) // MaxInputResponse
	w.WriteUint32(0) // OutputOffset
	w.WriteUint32(0) // OutputCount
	w.WriteUint32(r.MaxOutputResponse)
	var flags uint32
	if r.Fsctl {
		flags |= ioctlFlagIsFsctl
	}
	w.WriteUint32(flags)
	w.WriteUint32(0) // Reserved2
	if len(r.Input) > 0 {
		w.PatchUint32(inOffsetPos, uint32(header.Size+w.Len()))
		w.WriteBytes(r.Input)
	}
	return w.Bytes()
}

// IoctlResponse is the SMB2 IOCTL response.
// [MS-SMB2] Section 2.2.32
type IoctlResponse struct {
	CtlCode uint32
	FileID  types.FileID
	Output  []byte
}

const ioctlResponseStructureSize = 49

// DecodeIoctlResponse parses an IOCTL response from the full message.
func DecodeIoctlResponse(message []byte) (*IoctlResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("IOCTL response", ioctlResponseStructureSize)
	r.Skip(2) // Reserved
	ctlCode := r.ReadUint32()
	fid := r.ReadBytes(16)
	r.Skip(4) // InputOffset
	r.Skip(4) // InputCount
	outOffset := r.ReadUint32()
	outCount := r.ReadUint32()
	r.Skip(4) // Flags
	r.Skip(4) // Reserved2
	if r.Err() != nil {
		return nil, fmt.Errorf("ioctl response: %w", r.Err())
	}

	resp := &IoctlResponse{CtlCode: ctlCode}
	copy(resp.FileID[:], fid)
	if outCount > 0 {
		sub := r.Sub(int(outOffset), int(outCount))
		resp.Output = sub.ReadBytes(int(outCount))
		if r.Err() != nil {
			return nil, fmt.Errorf("ioctl response output: %w", r.Err())
		}
	}
	return resp, nil
}
