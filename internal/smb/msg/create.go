package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// CreateRequest is the SMB2 CREATE request.
// [MS-SMB2] Section 2.2.13
type CreateRequest struct {
	OplockLevel        types.OplockLevel
	ImpersonationLevel types.ImpersonationLevel
	DesiredAccess      types.AccessMask
	FileAttributes     types.FileAttributes
	ShareAccess        types.ShareAccess
	CreateDisposition  types.CreateDisposition
	CreateOptions      types.CreateOptions

	// Name is the share-relative path, without a leading backslash.
	Name string

	// Contexts are optional create contexts (lease, durable handle, ...).
	Contexts []CreateContext
}

const createRequestStructureSize = 57

// Encode serializes the CREATE request body.
func (r *CreateRequest) Encode() []byte {
	name := smbenc.EncodeUTF16(r.Name)
	w := smbenc.NewWriter(56 + len(name) + 64)
	w.WriteUint16(createRequestStructureSize)
	w.WriteUint8(0) // SecurityFlags
	w.WriteUint8(uint8(r.OplockLevel))
	w.WriteUint32(uint32(r.ImpersonationLevel))
	w.WriteUint64(0) // SmbCreateFlags
	w.WriteUint64(0) // Reserved
	w.WriteUint32(uint32(r.DesiredAccess))
	w.WriteUint32(uint32(r.FileAttributes))
	w.WriteUint32(uint32(r.ShareAccess))
	w.WriteUint32(uint32(r.CreateDisposition))
	w.WriteUint32(uint32(r.CreateOptions))

	nameOffsetPos := w.Len()
	w.WriteUint16(0) // NameOffset
	w.WriteUint16(uint16(len(name)))
	ctxOffsetPos := w.Len()
	w.WriteUint32(0) // CreateContextsOffset
	ctxLengthPos := w.Len()
	w.WriteUint32(0) // CreateContextsLength

	// The buffer must contain at least one byte even for an empty name.
	w.PatchUint16(nameOffsetPos, uint16(header.Size+w.Len()))
	if len(name) == 0 {
		w.WriteZeros(1)
	} else {
		w.WriteBytes(name)
	}

	if len(r.Contexts) > 0 {
		w.Pad(8)
		ctxStart := w.Len()
		w.PatchUint32(ctxOffsetPos, uint32(header.Size+ctxStart))
		encodeCreateContexts(w, r.Contexts)
		w.PatchUint32(ctxLengthPos, uint32(w.Len()-ctxStart))
	}

	return w.Bytes()
}

// CreateResponse is the SMB2 CREATE response.
// [MS-SMB2] Section 2.2.14
type CreateResponse struct {
	OplockLevel    types.OplockLevel
	Flags          uint8
	CreateAction   types.CreateAction
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
	FileID         types.FileID
	Contexts       []CreateContext
}

const createResponseStructureSize = 89

// DecodeCreateResponse parses a CREATE response from the full message.
func DecodeCreateResponse(message []byte) (*CreateResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("CREATE response", createResponseStructureSize)
	resp := &CreateResponse{}
	resp.OplockLevel = types.OplockLevel(r.ReadUint8())
	resp.Flags = r.ReadUint8()
	resp.CreateAction = types.CreateAction(r.ReadUint32())
	resp.CreationTime = r.ReadUint64()
	resp.LastAccessTime = r.ReadUint64()
	resp.LastWriteTime = r.ReadUint64()
	resp.ChangeTime = r.ReadUint64()
	resp.AllocationSize = r.ReadUint64()
	resp.EndOfFile = r.ReadUint64()
	resp.FileAttributes = types.FileAttributes(r.ReadUint32())
	r.Skip(4) // Reserved2
	fid := r.ReadBytes(16)
	ctxOffset := r.ReadUint32()
	ctxLength := r.ReadUint32()
	if r.Err() != nil {
		return nil, fmt.Errorf("create response: %w", r.Err())
	}
	copy(resp.FileID[:], fid)

	if ctxLength > 0 {
		sub := r.Sub(int(ctxOffset), int(ctxLength))
		ctxs, err := decodeCreateContexts(sub)
		if err != nil {
			return nil, fmt.Errorf("create response contexts: %w", err)
		}
		resp.Contexts = ctxs
	}

	return resp, nil
}

// Well-known create context names.
// [MS-SMB2] Section 2.2.13.2
const (
	CreateCtxLeaseV1       = "RqLs"
	CreateCtxDurableV2     = "DH2Q"
	CreateCtxDurableV2Resp = "DH2Q"
	CreateCtxQueryOnDiskID = "QFid"
	CreateCtxMaximalAccess = "MxAc"
)

// CreateContext is a single create context in a CREATE request or response.
// Contexts chain with a NextOffset field, 8-byte aligned.
// [MS-SMB2] Section 2.2.13.2
type CreateContext struct {
	Name string
	Data []byte
}

// encodeCreateContexts emits the chained context list, back-patching each
// prior Next field with the aligned distance to the next entry.
func encodeCreateContexts(w *smbenc.Writer, ctxs []CreateContext) {
	for i, ctx := range ctxs {
		entryStart := w.Len()
		nextPos := entryStart
		w.WriteUint32(0) // Next, patched below
		w.WriteUint16(0) // NameOffset, patched
		w.WriteUint16(uint16(len(ctx.Name)))
		w.WriteUint16(0) // Reserved
		w.WriteUint16(0) // DataOffset, patched
		w.WriteUint32(uint32(len(ctx.Data)))
		w.PatchUint16(nextPos+4, uint16(w.Len()-entryStart))
		w.WriteBytes([]byte(ctx.Name))
		if len(ctx.Data) > 0 {
			w.Pad(8)
			w.PatchUint16(nextPos+10, uint16(w.Len()-entryStart))
			w.WriteBytes(ctx.Data)
		}
		if i < len(ctxs)-1 {
			w.Pad(8)
			w.PatchUint32(nextPos, uint32(w.Len()-entryStart))
		}
	}
}

// decodeCreateContexts walks the chained context list until a zero Next
// offset or the end of the bounded sub-stream.
func decodeCreateContexts(r *smbenc.Reader) ([]CreateContext, error) {
	var ctxs []CreateContext
	base := 0
	for {
		sub := r.Sub(base, r.Remaining()+r.Position()-base)
		if sub.Err() != nil {
			return nil, sub.Err()
		}
		next := sub.ReadUint32()
		nameOffset := sub.ReadUint16()
		nameLength := sub.ReadUint16()
		sub.Skip(2) // Reserved
		dataOffset := sub.ReadUint16()
		dataLength := sub.ReadUint32()
		if sub.Err() != nil {
			return nil, sub.Err()
		}

		nameSub := sub.Sub(int(nameOffset), int(nameLength))
		name := nameSub.ReadBytes(int(nameLength))
		if sub.Err() != nil {
			return nil, sub.Err()
		}
		ctx := CreateContext{Name: string(name)}
		if dataLength > 0 {
			dataSub := sub.Sub(int(dataOffset), int(dataLength))
			ctx.Data = dataSub.ReadBytes(int(dataLength))
			if sub.Err() != nil {
				return nil, sub.Err()
			}
		}
		ctxs = append(ctxs, ctx)

		if next == 0 {
			return ctxs, nil
		}
		base += int(next)
	}
}

// FindCreateContext returns the first context with the given name, or nil.
func FindCreateContext(ctxs []CreateContext, name string) *CreateContext {
	for i := range ctxs {
		if ctxs[i].Name == name {
			return &ctxs[i]
		}
	}
	return nil
}

// LeaseContext is the SMB2_CREATE_REQUEST_LEASE_V2 payload.
// [MS-SMB2] Section 2.2.13.2.10
type LeaseContext struct {
	LeaseKey      [16]byte
	LeaseState    types.LeaseState
	ParentKey     [16]byte
	Epoch         uint16
}

// Encode serializes the lease v2 context data.
func (l LeaseContext) Encode() []byte {
	w := smbenc.NewWriter(52)
	w.WriteBytes(l.LeaseKey[:])
	w.WriteUint32(uint32(l.LeaseState))
	w.WriteUint32(0) // Flags
	w.WriteUint64(0) // LeaseDuration
	w.WriteBytes(l.ParentKey[:])
	w.WriteUint16(l.Epoch)
	w.WriteUint16(0) // Reserved
	return w.Bytes()
}

// DecodeLeaseContext parses a lease v2 response context payload.
func DecodeLeaseContext(data []byte) (LeaseContext, error) {
	r := smbenc.NewReader(data)
	var l LeaseContext
	key := r.ReadBytes(16)
	l.LeaseState = types.LeaseState(r.ReadUint32())
	r.Skip(4) // Flags
	r.Skip(8) // LeaseDuration
	if r.Remaining() >= 20 {
		parent := r.ReadBytes(16)
		l.Epoch = r.ReadUint16()
		copy(l.ParentKey[:], parent)
	}
	if r.Err() != nil {
		return LeaseContext{}, fmt.Errorf("lease context: %w", r.Err())
	}
	copy(l.LeaseKey[:], key)
	return l, nil
}

// DurableHandleV2Context is the SMB2_CREATE_DURABLE_HANDLE_REQUEST_V2 payload.
// [MS-SMB2] Section 2.2.13.2.4
type DurableHandleV2Context struct {
	Timeout    uint32
	Persistent bool
	CreateGUID [16]byte
}

// Encode serializes the durable handle v2 context data.
func (d DurableHandleV2Context) Encode() []byte {
	w := smbenc.NewWriter(32)
	w.WriteUint32(d.Timeout)
	var flags uint32
	if d.Persistent {
		flags = 0x00000002
	}
	w.WriteUint32(flags)
	w.WriteZeros(8) // Reserved
	w.WriteBytes(d.CreateGUID[:])
	return w.Bytes()
}

// QueryOnDiskID is the SMB2_CREATE_QUERY_ON_DISK_ID response payload.
// [MS-SMB2] Section 2.2.14.2.9
type QueryOnDiskID struct {
	DiskFileID uint64
	VolumeID   uint64
}

// DecodeQueryOnDiskID parses the on-disk id response context payload.
func DecodeQueryOnDiskID(data []byte) (QueryOnDiskID, error) {
	r := smbenc.NewReader(data)
	q := QueryOnDiskID{
		DiskFileID: r.ReadUint64(),
		VolumeID:   r.ReadUint64(),
	}
	if r.Err() != nil {
		return QueryOnDiskID{}, fmt.Errorf("query on disk id: %w", r.Err())
	}
	return q, nil
}

// CloseRequest is the SMB2 CLOSE request.
// [MS-SMB2] Section 2.2.15
type CloseRequest struct {
	Flags  types.CloseFlags
	FileID types.FileID
}

const closeRequestStructureSize = 24

// Encode serializes the CLOSE request body.
func (r *CloseRequest) Encode() []byte {
	w := smbenc.NewWriter(24)
	w.WriteUint16(closeRequestStructureSize)
	w.WriteUint16(uint16(r.Flags))
	w.WriteUint32(0) // Reserved
	w.WriteBytes(r.FileID[:])
	return w.Bytes()
}

// CloseResponse is the SMB2 CLOSE response.
// [MS-SMB2] Section 2.2.16
type CloseResponse struct {
	Flags          types.CloseFlags
	CreationTime   uint64
	LastAccessTime uint64
	LastWriteTime  uint64
	ChangeTime     uint64
	AllocationSize uint64
	EndOfFile      uint64
	FileAttributes types.FileAttributes
}

const closeResponseStructureSize = 60

// DecodeCloseResponse parses a CLOSE response from the full message.
func DecodeCloseResponse(message []byte) (*CloseResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("CLOSE response", closeResponseStructureSize)
	resp := &CloseResponse{}
	resp.Flags = types.CloseFlags(r.ReadUint16())
	r.Skip(4) // Reserved
	resp.CreationTime = r.ReadUint64()
	resp.LastAccessTime = r.ReadUint64()
	resp.LastWriteTime = r.ReadUint64()
	resp.ChangeTime = r.ReadUint64()
	resp.AllocationSize = r.ReadUint64()
	resp.EndOfFile = r.ReadUint64()
	resp.FileAttributes = types.FileAttributes(r.ReadUint32())
	if r.Err() != nil {
		return nil, fmt.Errorf("close response: %w", r.Err())
	}
	return resp, nil
}
