package msg

import (
	"fmt"

	"github.com/marmos91/smbclient/internal/smb/header"
	"github.com/marmos91/smbclient/internal/smb/smbenc"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// TreeConnectRequest is the SMB2 TREE_CONNECT request.
// [MS-SMB2] Section 2.2.9
type TreeConnectRequest struct {
	// Path is the full UNC share path, e.g. `\\server\share`.
	Path string
}

const treeConnectRequestStructureSize = 9

// Encode serializes the TREE_CONNECT request body.
func (r *TreeConnectRequest) Encode() []byte {
	path := smbenc.EncodeUTF16(r.Path)
	w := smbenc.NewWriter(8 + len(path))
	w.WriteUint16(treeConnectRequestStructureSize)
	w.WriteUint16(0) // Flags
	pathOffsetPos := w.Len()
	w.WriteUint16(0) // PathOffset
	w.WriteUint16(uint16(len(path)))
	w.PatchUint16(pathOffsetPos, uint16(header.Size+w.Len()))
	w.WriteBytes(path)
	return w.Bytes()
}

// TreeConnectResponse is the SMB2 TREE_CONNECT response.
// [MS-SMB2] Section 2.2.10
type TreeConnectResponse struct {
	ShareType     types.ShareType
	ShareFlags    types.ShareFlags
	Capabilities  types.ShareCapabilities
	MaximalAccess types.AccessMask
}

const treeConnectResponseStructureSize = 16

// DecodeTreeConnectResponse parses a TREE_CONNECT response from the full
// message.
func DecodeTreeConnectResponse(message []byte) (*TreeConnectResponse, error) {
	if len(message) < header.Size {
		return nil, smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)

	r.ExpectStructureSize("TREE_CONNECT response", treeConnectResponseStructureSize)
	resp := &TreeConnectResponse{}
	resp.ShareType = types.ShareType(r.ReadUint8())
	r.Skip(1) // Reserved
	resp.ShareFlags = types.ShareFlags(r.ReadUint32())
	resp.Capabilities = types.ShareCapabilities(r.ReadUint32())
	resp.MaximalAccess = types.AccessMask(r.ReadUint32())
	if r.Err() != nil {
		return nil, fmt.Errorf("tree connect response: %w", r.Err())
	}
	return resp, nil
}

// EncryptData returns true if the share demands per-share encryption.
func (r *TreeConnectResponse) EncryptData() bool {
	return r.ShareFlags&types.ShareFlagEncryptData != 0
}

// TreeDisconnectRequest is the SMB2 TREE_DISCONNECT request.
// [MS-SMB2] Section 2.2.11
type TreeDisconnectRequest struct{}

// Encode serializes the TREE_DISCONNECT request body.
func (TreeDisconnectRequest) Encode() []byte {
	w := smbenc.NewWriter(4)
	w.WriteUint16(4)
	w.WriteUint16(0)
	return w.Bytes()
}

// DecodeTreeDisconnectResponse validates a TREE_DISCONNECT response.
func DecodeTreeDisconnectResponse(message []byte) error {
	if len(message) < header.Size {
		return smbenc.ErrShortRead
	}
	r := smbenc.NewReader(message)
	r.Skip(header.Size)
	r.ExpectStructureSize("TREE_DISCONNECT response", 4)
	if r.Err() != nil {
		return fmt.Errorf("tree disconnect response: %w", r.Err())
	}
	return nil
}
