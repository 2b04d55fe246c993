package smbclient

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/fscc"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Handle is an opened file or directory on a tree. File and Directory
// embed it for the shared operations (close, query/set info, security,
// ioctl).
//
// A handle carries a finalizer that attempts a best-effort CLOSE; the
// failure path is logged, never propagated. The tree keeps every open
// handle in its handle table until Close, and the handle points back at
// its tree, so the finalizer does not run for a handle dropped without
// Close while its tree is reachable, and is not guaranteed to run after.
// Connection.Close closes the handles still open.
type Handle struct {
	tree          *Tree
	fileID        types.FileID
	path          string
	grantedAccess types.AccessMask
	oplockLevel   types.OplockLevel
	leaseKey      [16]byte
	leaseState    types.LeaseState
	attributes    types.FileAttributes
	endOfFile     uint64
	createAction  types.CreateAction
	onDiskID      *msg.QueryOnDiskID

	mu     sync.Mutex
	closed bool
}

// FileID returns the server-assigned 16-byte file id.
func (h *Handle) FileID() types.FileID { return h.fileID }

// Path returns the share-relative path the handle was opened with.
func (h *Handle) Path() string { return h.path }

// EndOfFile returns the size reported at open.
func (h *Handle) EndOfFile() uint64 { return h.endOfFile }

// CreateAction returns what the server did at open.
func (h *Handle) CreateAction() types.CreateAction { return h.createAction }

// LeaseState returns the granted lease state, if a lease was requested.
func (h *Handle) LeaseState() types.LeaseState { return h.leaseState }

// OnDiskID returns the on-disk id context, when requested at open.
func (h *Handle) OnDiskID() (diskFileID, volumeID uint64, ok bool) {
	if h.onDiskID == nil {
		return 0, 0, false
	}
	return h.onDiskID.DiskFileID, h.onDiskID.VolumeID, true
}

// OnOplockBreak registers a callback for oplock break notifications on
// this handle. The connection acknowledges the break either way.
func (h *Handle) OnOplockBreak(fn func(types.OplockLevel)) {
	h.tree.session.conn.breaks.registerOplock(h.fileID, fn)
}

// OnLeaseBreak registers a callback for lease break notifications on this
// handle's lease key. Only meaningful when a lease was requested at open.
func (h *Handle) OnLeaseBreak(fn func(newState uint32)) {
	h.tree.session.conn.breaks.registerLease(h.leaseKey, fn)
}

// arm installs the best-effort close finalizer.
func (h *Handle) arm() {
	runtime.SetFinalizer(h, func(h *Handle) {
		h.mu.Lock()
		closed := h.closed
		h.mu.Unlock()
		if closed {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := h.Close(ctx); err != nil {
			logger.Warn("dropped handle close failed",
				logger.KeyPath, h.path, logger.KeyError, err)
		}
	})
}

// Close releases the handle on the server.
func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()
	runtime.SetFinalizer(h, nil)
	h.tree.forgetHandle(h.fileID)
	h.tree.session.conn.breaks.unregisterOplock(h.fileID)
	h.tree.session.conn.breaks.unregisterLease(h.leaseKey)

	_, err := h.roundTrip(ctx, types.CommandClose,
		(&msg.CloseRequest{FileID: h.fileID}).Encode(), 0)
	return err
}

// roundTrip issues one command against the handle's tree and session.
func (h *Handle) roundTrip(ctx context.Context, cmd types.Command, body []byte, payloadHint uint32, allowed ...types.Status) (*responseEnvelope, error) {
	in, err := h.tree.session.conn.roundTrip(ctx, &request{
		command:     cmd,
		sessionID:   h.tree.session.id,
		treeID:      h.tree.id,
		body:        body,
		payloadHint: payloadHint,
		options:     h.tree.session.treeOptions(h.tree),
		allowed:     allowed,
	})
	if err != nil {
		return nil, err
	}
	return &responseEnvelope{raw: in.Raw, status: in.Header.Status}, nil
}

type responseEnvelope struct {
	raw    []byte
	status types.Status
}

// QueryInfo retrieves a file information class.
func (h *Handle) QueryInfo(ctx context.Context, class types.FileInfoClass) ([]byte, error) {
	body := (&msg.QueryInfoRequest{
		InfoType:           types.InfoTypeFile,
		FileInfoClass:      uint8(class),
		OutputBufferLength: 64 * 1024,
		FileID:             h.fileID,
	}).Encode()
	env, err := h.roundTrip(ctx, types.CommandQueryInfo, body, 64*1024)
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeQueryInfoResponse(env.raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "query info response", Err: err}
	}
	return resp.Output, nil
}

// QueryFileInfo retrieves and decodes a file information class. Interpreting
// the result as a different class fails with
// fscc.UnexpectedInformationTypeError.
func (h *Handle) QueryFileInfo(ctx context.Context, class types.FileInfoClass) (fscc.FileInfo, error) {
	out, err := h.QueryInfo(ctx, class)
	if err != nil {
		return nil, err
	}
	fi, err := fscc.DecodeFileInfo(class, out)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "file information", Err: err}
	}
	return fi, nil
}

// QueryFsInfo retrieves a filesystem information class.
func (h *Handle) QueryFsInfo(ctx context.Context, class types.FsInfoClass) ([]byte, error) {
	body := (&msg.QueryInfoRequest{
		InfoType:           types.InfoTypeFilesystem,
		FileInfoClass:      uint8(class),
		OutputBufferLength: 64 * 1024,
		FileID:             h.fileID,
	}).Encode()
	env, err := h.roundTrip(ctx, types.CommandQueryInfo, body, 64*1024)
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeQueryInfoResponse(env.raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "query info response", Err: err}
	}
	return resp.Output, nil
}

// SetInfo sets a file information class from its serialized form.
func (h *Handle) SetInfo(ctx context.Context, class types.FileInfoClass, buffer []byte) error {
	body := (&msg.SetInfoRequest{
		InfoType:      types.InfoTypeFile,
		FileInfoClass: uint8(class),
		FileID:        h.fileID,
		Buffer:        buffer,
	}).Encode()
	env, err := h.roundTrip(ctx, types.CommandSetInfo, body, creditPayloadHint(len(buffer)))
	if err != nil {
		return err
	}
	return msg.DecodeSetInfoResponse(env.raw)
}

// QuerySecurity retrieves the handle's security descriptor.
func (h *Handle) QuerySecurity(ctx context.Context, info types.AdditionalInfo) ([]byte, error) {
	body := (&msg.QueryInfoRequest{
		InfoType:           types.InfoTypeSecurity,
		OutputBufferLength: 64 * 1024,
		AdditionalInfo:     info,
		FileID:             h.fileID,
	}).Encode()
	env, err := h.roundTrip(ctx, types.CommandQueryInfo, body, 64*1024)
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeQueryInfoResponse(env.raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "query security response", Err: err}
	}
	return resp.Output, nil
}

// SetSecurity replaces components of the handle's security descriptor.
func (h *Handle) SetSecurity(ctx context.Context, info types.AdditionalInfo, descriptor []byte) error {
	body := (&msg.SetInfoRequest{
		InfoType:       types.InfoTypeSecurity,
		AdditionalInfo: info,
		FileID:         h.fileID,
		Buffer:         descriptor,
	}).Encode()
	env, err := h.roundTrip(ctx, types.CommandSetInfo, body, creditPayloadHint(len(descriptor)))
	if err != nil {
		return err
	}
	return msg.DecodeSetInfoResponse(env.raw)
}

// Ioctl issues an FSCTL against the handle.
func (h *Handle) Ioctl(ctx context.Context, ctlCode uint32, input []byte, maxOutput uint32) ([]byte, error) {
	body := (&msg.IoctlRequest{
		CtlCode:           ctlCode,
		FileID:            h.fileID,
		Input:             input,
		MaxOutputResponse: maxOutput,
		Fsctl:             true,
	}).Encode()
	hint := creditPayloadHint(len(input))
	if maxOutput > hint {
		hint = maxOutput
	}
	env, err := h.roundTrip(ctx, types.CommandIoctl, body, hint, types.StatusBufferOverflow)
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeIoctlResponse(env.raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "ioctl response", Err: err}
	}
	return resp.Output, nil
}
