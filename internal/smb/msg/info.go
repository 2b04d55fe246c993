package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// QueryInfoRequest is the SMB2 QUERY_INFO request.
// [MS-SMB2] Section 2.2.37
type QueryInfoRequest struct {
	InfoType            types.InfoType
	FileInfoClass       uint8
	OutputBufferLength  uint32
	AdditionalInfo      types.AdditionalInfo
	Flags               uint32
	FileID              types.FileID
	Input               []byte
}

const queryInfoRequestStructureSize = 41

// Encode serializes the QUERY_INFO request body.
func (r *QueryInfoRequest) Encode() []byte {
	w := smbenc.NewWriter(40 + len(r.Input))
	w.WriteUint16(queryInfoRequestStructureSize)
	w.WriteUint8(uint8(r.InfoType))
	w.WriteUint8(r.FileInfoClass)
	w.WriteUint32(r.OutputBufferLength)
	inOffsetPos := w.Len()
	w.WriteUint16(0) // InputBufferOffset
	w.WriteUint16(0) // Reserved
	w.WriteUint32(uint32(len(r.Input)))
	w.WriteUint32(uint32(r.AdditionalInfo))
	w.WriteUint32(r.Flags)
	w.WriteBytes(r.FileID[:])
	if len(r.Input) > 0 {
		w.PatchUint16(inOffsetPos, uint16(header.Size+w.Len()))
		w.WriteBytes(r.Input)
	}
	return w.Bytes()
}

// QueryInfoResponse is the SMB2 QUERY_INFO response. The output buffer is
// interpreted by the caller against the class it asked for.
// [MS-SMB2] Section 2.2.38
type QueryInfoResponse struct {
	Output []byte
}

const queryInfoResponseStructureSize = 9

// DecodeQueryInfoResponse parses a QUERY_INFO response from the full message.
func DecodeQueryInfoResponse(message []byte) (*QueryInfoResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("QUERY_INFO response", queryInfoResponseStructureSize)
	outOffset := r.ReadUint16()
	outLength := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("query info response: %w", r.Err())
	}

	resp := &QueryInfoResponse{}
	if outLength > 0 {
		sub := r.Sub(int(outOffset), int(outLength))
		resp.Output = sub.ReadBytes(int(outLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("query info response output: %w", r.Err())
		}
	}
	return resp, nil
}

// SetInfoRequest is the SMB2 SET_INFO request.
// [MS-SMB2] Section 2.2.39
type SetInfoRequest struct {
	InfoType       types.InfoType
	FileInfoClass  uint8
	AdditionalInfo types.AdditionalInfo
	FileID         types.FileID
	Buffer         []byte
}

const setInfoRequestStructureSize = 33

// Encode serializes the SET_INFO request body.
func (r *SetInfoRequest) Encode() []byte {
	w := smbenc.NewWriter(32 + len(r.Buffer))
	w.WriteUint16(setInfoRequestStructureSize)
	w.WriteUint8(uint8(r.InfoType))
	w.WriteUint8(r.FileInfoClass)
	w.WriteUint32(uint32(len(r.Buffer)))
	bufOffsetPos := w.Len()
	w.WriteUint16(0) // BufferOffset
	w.WriteUint16(0) // Reserved
	w.WriteUint32(uint32(r.AdditionalInfo))
	w.WriteBytes(r.FileID[:])
	w.PatchUint16(bufOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes(r.Buffer)
	return w.Bytes()
}

// DecodeSetInfoResponse validates a SET_INFO response.
func DecodeSetInfoResponse(message []byte) error {
	if len(message) < header.Size {
		return smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)
	r.ExpectStructureSize("SET_INFO response", 2)
	if r.Err() != nil {
		return fmt.Errorf("set info response: %w", r.Err())
	}
	return nil
}

// QueryDirectoryRequest is the SMB2 QUERY_DIRECTORY request.
// [MS-SMB2] Section 2.2.33
type QueryDirectoryRequest struct {
	FileInfoClass      types.FileInfoClass
	Flags              types.QueryDirectoryFlags
	FileIndex          uint32
	FileID             types.FileID
	Pattern            string
	OutputBufferLength uint32
}

const queryDirectoryRequestStructureSize = 33

// Encode serializes the QUERY_DIRECTORY request body.
func (r *QueryDirectoryRequest) Encode() []byte {
	pattern := smbenc.EncodeUTF16(r.Pattern)
	w := smbenc.NewWriter(32 + len(pattern))
	w.WriteUint16(queryDirectoryRequestStructureSize)
	w.WriteUint8(uint8(r.FileInfoClass))
	w.WriteUint8(uint8(r.Flags))
	w.WriteUint32(r.FileIndex)
	w.WriteBytes(r.FileID[:])
	nameOffsetPos := w.Len()
	w.WriteUint16(0) // FileNameOffset
	w.WriteUint16(uint16(len(pattern)))
	w.WriteUint32(r.OutputBufferLength)
	if len(pattern) > 0 {
		w.PatchUint16(nameOffsetPos, uint16(header.Size+w.Len()))
		w.WriteBytes(pattern)
	}
	return w.Bytes()
}

// QueryDirectoryResponse is the SMB2 QUERY_DIRECTORY response. The buffer
// holds chained directory information entries.
// [MS-SMB2] Section 2.2.34
type QueryDirectoryResponse struct {
	Buffer []byte
}

const queryDirectoryResponseStructureSize = 9

// DecodeQueryDirectoryResponse parses a QUERY_DIRECTORY response from the
// full message.
func DecodeQueryDirectoryResponse(message []byte) (*QueryDirectoryResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("QUERY_DIRECTORY response", queryDirectoryResponseStructureSize)
	outOffset := r.ReadUint16()
	outLength := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("query directory response: %w", r.Err())
	}

	resp := &QueryDirectoryResponse{}
	if outLength > 0 {
		sub := r.Sub(int(outOffset), int(outLength))
		resp.Buffer = sub.ReadBytes(int(outLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("query directory response buffer: %w", r.Err())
		}
	}
	return resp, nil
}

// ChangeNotifyRequest is the SMB2 CHANGE_NOTIFY request.
// [MS-SMB2] Section 2.2.35
type ChangeNotifyRequest struct {
	Recursive          bool
	OutputBufferLength uint32
	FileID             types.FileID
	CompletionFilter   types.NotifyFilter
}

const changeNotifyRequestStructureSize = 32

// Encode serializes the CHANGE_NOTIFY request body.
func (r *ChangeNotifyRequest) Encode() []byte {
	w := smbenc.NewWriter(32)
	w.WriteUint16(changeNotifyRequestStructureSize)
	var flags uint16
	if r.Recursive {
		flags |= types.ChangeNotifyFlagWatchTree
	}
	w.WriteUint16(flags)
	w.WriteUint32(r.OutputBufferLength)
	w.WriteBytes(r.FileID[:])
	w.WriteUint32(uint32(r.CompletionFilter))
	w.WriteUint32(0) // Reserved
	return w.Bytes()
}

// ChangeNotifyResponse is the SMB2 CHANGE_NOTIFY response. The buffer holds
// chained FILE_NOTIFY_INFORMATION records.
// [MS-SMB2] Section 2.2.36
type ChangeNotifyResponse struct {
	Buffer []byte
}

const changeNotifyResponseStructureSize = 9

// DecodeChangeNotifyResponse parses a CHANGE_NOTIFY response from the full
// message.
func DecodeChangeNotifyResponse(message []byte) (*ChangeNotifyResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("CHANGE_NOTIFY response", changeNotifyResponseStructureSize)
	outOffset := r.ReadUint16()
	outLength := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("change notify response: %w", r.Err())
	}

	resp := &ChangeNotifyResponse{}
	if outLength > 0 {
		sub := r.Sub(int(outOffset), int(outLength))
		resp.Buffer = sub.ReadBytes(int(outLength))
		if r.Err() != nil {
			return nil, fmt.Errorf("change notify response buffer: %w", r.Err())
		}
	}
	return resp, nil
}
