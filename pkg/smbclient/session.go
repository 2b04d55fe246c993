package smbclient

import (
	"context"
	"fmt"
	"sync"

	"github.com/marmos91/smbclient/internal/logger"
	"github.com/marmos91/smbclient/internal/smb/msg"
	"github.com/marmos91/smbclient/internal/smb/transform"
	"github.com/marmos91/smbclient/internal/smb/types"
)

// Session is one authenticated session on a connection. Closing the
// session invalidates every tree and handle under it.
type Session struct {
	conn  *Connection
	id    uint64
	flags types.SessionFlags

	mu    sync.Mutex
	trees map[uint32]*Tree
	dead  bool
}

// ID returns the server-assigned session id.
func (s *Session) ID() uint64 { return s.id }

// IsGuest reports whether the server granted the session as guest.
func (s *Session) IsGuest() bool {
	return s.flags&types.SessionFlagIsGuest != 0
}

// TreeConnect connects to a share by name (`data`) or full UNC path
// (`\\server\data`).
func (s *Session) TreeConnect(ctx context.Context, share string) (*Tree, error) {
	if share == "" {
		return nil, fmt.Errorf("%w: empty share", ErrInvalidArgument)
	}
	unc := share
	if share[0] != '\\' {
		unc = `\\` + s.conn.serverName + `\` + share
	}

	in, err := s.conn.roundTrip(ctx, &request{
		command:   types.CommandTreeConnect,
		sessionID: s.id,
		body:      (&msg.TreeConnectRequest{Path: unc}).Encode(),
	})
	if err != nil {
		return nil, err
	}
	resp, err := msg.DecodeTreeConnectResponse(in.Raw)
	if err != nil {
		return nil, &InvalidMessageError{Detail: "tree connect response", Err: err}
	}

	tree := &Tree{
		session:     s,
		id:          in.Header.TreeID,
		share:       unc,
		shareType:   resp.ShareType,
		caps:        resp.Capabilities,
		maxAccess:   resp.MaximalAccess,
		encryptData: resp.EncryptData() && !s.conn.cfg.EncryptionMode.IsDisabled(),
	}

	s.mu.Lock()
	if s.trees == nil {
		s.trees = make(map[uint32]*Tree)
	}
	s.trees[tree.id] = tree
	s.mu.Unlock()

	s.conn.mu.Lock()
	if s.conn.state == StateSessionEstablished {
		s.conn.state = StateTreeConnected
	}
	s.conn.mu.Unlock()

	logger.Info("tree connected",
		logger.KeyShare, unc,
		logger.KeyTree, tree.id,
		"encrypt", tree.encryptData)
	return tree, nil
}

// Logoff terminates the session. Handles and trees under it become
// invalid.
func (s *Session) Logoff(ctx context.Context) error {
	s.mu.Lock()
	if s.dead {
		s.mu.Unlock()
		return nil
	}
	s.dead = true
	s.mu.Unlock()

	_, err := s.conn.roundTrip(ctx, &request{
		command:   types.CommandLogoff,
		sessionID: s.id,
		body:      msg.LogoffRequest{}.Encode(),
	})
	return err
}

// shutdown is the graceful-teardown path from Connection.Close: close
// handles, disconnect trees, log off. Failures are logged and ignored.
func (s *Session) shutdown(ctx context.Context) {
	s.mu.Lock()
	trees := make([]*Tree, 0, len(s.trees))
	for _, t := range s.trees {
		trees = append(trees, t)
	}
	s.mu.Unlock()

	for _, t := range trees {
		t.shutdown(ctx)
	}
	if err := s.Logoff(ctx); err != nil {
		logger.Warn("logoff failed during shutdown", logger.KeyError, err)
	}
}

func (s *Session) forgetTree(id uint32) {
	s.mu.Lock()
	delete(s.trees, id)
	s.mu.Unlock()
}

// treeOptions returns the transform options for requests against a tree.
func (s *Session) treeOptions(t *Tree) transform.Options {
	return transform.Options{Encrypt: t.encryptData}
}
