package smbclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Tree is one connected share within a session.
type Tree struct {
	session     *Session
	id          uint32
	share       string
	shareType   types.ShareType
	caps        types.ShareCapabilities
	maxAccess   types.AccessMask
	encryptData bool

	mu      sync.Mutex
	handles map[types.FileID]*Handle
	dead    bool
}

// ID returns the tree id.
func (t *Tree) ID() uint32 { return t.id }

// Share returns the UNC share path.
func (t *Tree) Share() string { return t.share }

// EncryptData reports whether the share demands per-share encryption.
func (t *Tree) EncryptData() bool { return t.encryptData }

// CreateParams parameterizes Create beyond the common path/disposition.
type CreateParams struct {
	DesiredAccess     types.AccessMask
	FileAttributes    types.FileAttributes
	ShareAccess       types.ShareAccess
	CreateDisposition types.CreateDisposition
	CreateOptions     types.CreateOptions
	OplockLevel       types.OplockLevel

	// RequestLease asks for a v2 lease with a random key.
	RequestLease types.LeaseState

	// DurableHandle requests a durable handle v2.
	DurableHandle bool

	// QueryOnDiskID requests the on-disk id response context.
	QueryOnDiskID bool
}

// Create opens or creates a file or directory on the tree. Path is
// share-relative with backslash separators and no leading backslash.
func (t *Tree) Create(ctx context.Context, path string, params CreateParams) (*Handle, error) {
	if t.isDead() {
		return nil, fmt.Errorf("%w: tree disconnected", ErrInvalidState)
	}

	req := &msg.CreateRequest{
		OplockLevel:        params.OplockLevel,
		ImpersonationLevel: types.ImpersonationImpersonation,
		DesiredAccess:      params.DesiredAccess,
		FileAttributes:     params.FileAttributes,
		ShareAccess:        params.ShareAccess,
		CreateDisposition:  params.CreateDisposition,
		CreateOptions:      params.CreateOptions,
		Name:               path,
	}

	var leaseKey [16]byte
	if params.RequestLease != types.LeaseStateNone {
		id := uuid.New()
		copy(leaseKey[:], id[:])
		req.OplockLevel = types.OplockLevelLease
		req.Contexts = append(req.Contexts, msg.CreateContext{
			Name: msg.CreateCtxLeaseV1,
			Data: msg.LeaseContext{LeaseKey: leaseKey, LeaseState: params.RequestLease}.Encode(),
		})
	}
	if params.DurableHandle {
		var createGUID [16]byte
		id := uuid.New()
		copy(createGUID[:], id[:])
		req.Contexts = append(req.Contexts, msg.CreateContext{
			Name: msg.CreateCtxDurableV2,
			Data: msg.DurableHandleV2Context{Timeout: 0, CreateGUID: createGUID}.Encode(),
		})
	}
	if params.QueryOnDiskID {
		req.Contexts = append(req.Contexts, msg.CreateContext{Name: msg.CreateCtxQueryOnDiskID})
	}

	in, err := t.session.conn.roundTrip(ctx, &request{
		command:   types.CommandCreate,
		sessionID: t.session.id,
		treeID:    t.id,
		body:      req.Encode(),
		options:   t.session.treeOptions(t),
	})
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeCreateResponse(in.Raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "create response", Err: err}
	}

	h := &Handle{
		tree:          t,
		fileID:        resp.FileID,
		path:          path,
		grantedAccess: params.DesiredAccess,
		oplockLevel:   resp.OplockLevel,
		attributes:    resp.FileAttributes,
		endOfFile:     resp.EndOfFile,
		createAction:  resp.CreateAction,
		leaseKey:      leaseKey,
	}
	if lease := msg.FindCreateContext(resp.Contexts, msg.CreateCtxLeaseV1); lease != nil {
		if lc, err := msg.DecodeLeaseContext(lease.Data); err == nil {
			h.leaseState = lc.LeaseState
		}
	}
	if disk := msg.FindCreateContext(resp.Contexts, msg.CreateCtxQueryOnDiskID); disk != nil {
		if q, err := msg.DecodeQueryOnDiskID(disk.Data); err == nil {
			h.onDiskID = &q
		}
	}

	t.mu.Lock()
	if t.handles == nil {
		t.handles = make(map[types.FileID]*Handle)
	}
	t.handles[h.fileID] = h
	t.mu.Unlock()
	h.arm()

	logger.Debug("handle opened",
		logger.KeyPath, path,
		logger.KeyTree, t.id,
		"action", resp.CreateAction)
	return h, nil
}

// OpenFile opens an existing file for reading.
func (t *Tree) OpenFile(ctx context.Context, path string) (*File, error) {
	h, err := t.Create(ctx, path, CreateParams{
		DesiredAccess:     types.FileReadData | types.FileReadAttributes | types.ReadControl,
		ShareAccess:       types.FileShareRead | types.FileShareWrite,
		CreateDisposition: types.FileOpen,
		CreateOptions:     types.FileNonDirectoryFile,
	})
	if err != nil {
		return nil, err
	}
	return &File{Handle: h}, nil
}

// CreateFile creates a new file for writing, failing if it exists.
func (t *Tree) CreateFile(ctx context.Context, path string) (*File, error) {
	h, err := t.Create(ctx, path, CreateParams{
		DesiredAccess:     types.FileReadData | types.FileWriteData | types.FileReadAttributes | types.FileWriteAttributes,
		ShareAccess:       types.FileShareRead,
		CreateDisposition: types.FileCreate,
		CreateOptions:     types.FileNonDirectoryFile,
	})
	if err != nil {
		return nil, err
	}
	return &File{Handle: h}, nil
}

// OpenDirectory opens a directory for enumeration or watching.
func (t *Tree) OpenDirectory(ctx context.Context, path string) (*Directory, error) {
	h, err := t.Create(ctx, path, CreateParams{
		DesiredAccess:     types.FileListDirectory | types.FileReadAttributes,
		ShareAccess:       types.FileShareRead | types.FileShareWrite | types.FileShareDelete,
		CreateDisposition: types.FileOpen,
		CreateOptions:     types.FileDirectoryFile,
	})
	if err != nil {
		return nil, err
	}
	return &Directory{Handle: h}, nil
}

// Disconnect sends TREE_DISCONNECT and invalidates the tree.
func (t *Tree) Disconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.dead {
		t.mu.Unlock()
		return nil
	}
	t.dead = true
	t.mu.Unlock()

	_, err := t.session.conn.roundTrip(ctx, &request{
		command:   types.CommandTreeDisconnect,
		sessionID: t.session.id,
		treeID:    t.id,
		body:      msg.TreeDisconnectRequest{}.Encode(),
	})
	t.session.forgetTree(t.id)
	return err
}

// shutdown closes open handles and disconnects; failures are logged.
func (t *Tree) shutdown(ctx context.Context) {
	t.mu.Lock()
	handles := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		handles = append(handles, h)
	}
	t.mu.Unlock()

	for _, h := range handles {
		if err := h.Close(ctx); err != nil {
			logger.Warn("handle close failed during shutdown",
				logger.KeyPath, h.path, logger.KeyError, err)
		}
	}
	if err := t.Disconnect(ctx); err != nil {
		logger.Warn("tree disconnect failed during shutdown",
			logger.KeyShare, t.share, logger.KeyError, err)
	}
}

func (t *Tree) isDead() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dead
}

func (t *Tree) forgetHandle(id types.FileID) {
	t.mu.Lock()
	delete(t.handles, id)
	t.mu.Unlock()
}
